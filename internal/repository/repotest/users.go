// Package repotest はテスト用のインメモリリポジトリ実装を提供する。
package repotest

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/hitoshi/todoman/internal/model"
	"github.com/hitoshi/todoman/internal/repository"
)

var _ repository.UserRepository = (*UserRepo)(nil)

// UserRepo はUserRepositoryのインメモリ実装。
// google_idとemailの一意制約を再現する。
// 各Err系フィールドを設定すると該当操作がそのエラーを返す。
type UserRepo struct {
	mu    sync.RWMutex
	users map[string]*model.User

	FindErr   error
	CreateErr error
	UpdateErr error
}

// NewUserRepo は空のUserRepoを生成する。
func NewUserRepo() *UserRepo {
	return &UserRepo{users: make(map[string]*model.User)}
}

// FindByID は指定IDのユーザーのコピーを返す。
func (r *UserRepo) FindByID(_ context.Context, id string) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.FindErr != nil {
		return nil, r.FindErr
	}
	if u, ok := r.users[id]; ok {
		clone := *u
		return &clone, nil
	}
	return nil, nil
}

// FindByGoogleID はGoogleのsubjectでユーザーを検索する。
func (r *UserRepo) FindByGoogleID(_ context.Context, googleID string) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.FindErr != nil {
		return nil, r.FindErr
	}
	for _, u := range r.users {
		if u.GoogleID == googleID {
			clone := *u
			return &clone, nil
		}
	}
	return nil, nil
}

// Create はユーザーを保存する。IDが空の場合は採番する。
func (r *UserRepo) Create(_ context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.CreateErr != nil {
		return r.CreateErr
	}
	if err := r.checkUniqueLocked(user); err != nil {
		return err
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	clone := *user
	r.users[user.ID] = &clone
	return nil
}

// UpdateProfile はメールアドレスと表示名を更新する。
func (r *UserRepo) UpdateProfile(_ context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.UpdateErr != nil {
		return r.UpdateErr
	}
	stored, ok := r.users[user.ID]
	if !ok {
		return fmt.Errorf("user not found: %s", user.ID)
	}
	if err := r.checkUniqueLocked(user); err != nil {
		return err
	}
	stored.Email = user.Email
	stored.Name = user.Name
	stored.UpdatedAt = user.UpdatedAt
	return nil
}

// Count は保存されているユーザー数を返す。
func (r *UserRepo) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}

// Put はテスト用にユーザーを直接保存する。
func (r *UserRepo) Put(user *model.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *user
	r.users[user.ID] = &clone
}

func (r *UserRepo) checkUniqueLocked(user *model.User) error {
	for id, u := range r.users {
		if id == user.ID {
			continue
		}
		if u.GoogleID == user.GoogleID {
			return fmt.Errorf("google_id %q: %w", user.GoogleID, repository.ErrDuplicate)
		}
		if u.Email == user.Email {
			return fmt.Errorf("email %q: %w", user.Email, repository.ErrDuplicate)
		}
	}
	return nil
}
