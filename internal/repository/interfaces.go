// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"

	"github.com/hitoshi/todoman/internal/model"
)

// ErrDuplicate は一意制約違反で書き込みが拒否されたことを表す。
var ErrDuplicate = errors.New("duplicate record")

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByGoogleID はGoogleのsubjectでユーザーを検索する。見つからない場合はnilを返す。
	FindByGoogleID(ctx context.Context, googleID string) (*model.User, error)

	// Create はユーザーを作成する。google_idまたはemailが重複する場合はErrDuplicateを返す。
	Create(ctx context.Context, user *model.User) error

	// UpdateProfile はユーザーのメールアドレスと表示名を更新する。
	UpdateProfile(ctx context.Context, user *model.User) error
}

// TodoRepository はTodoデータの永続化インターフェース。
// すべての操作は所有者のユーザーIDで絞り込まれる。
type TodoRepository interface {
	// ListByUser はユーザーのTodoを表示順で取得する。
	ListByUser(ctx context.Context, userID string, filter model.TodoFilter) ([]*model.Todo, error)

	// FindByIDAndUser は指定ユーザーが所有するTodoを取得する。見つからない場合はnilを返す。
	FindByIDAndUser(ctx context.Context, id, userID string) (*model.Todo, error)

	// Create はTodoを作成する。
	Create(ctx context.Context, todo *model.Todo) error

	// Update はTodoの内容を更新する。対象が存在しない場合はfalseを返す。
	Update(ctx context.Context, todo *model.Todo) (bool, error)

	// DeleteByIDAndUser は指定ユーザーが所有するTodoを削除する。対象が存在しない場合はfalseを返す。
	DeleteByIDAndUser(ctx context.Context, id, userID string) (bool, error)
}
