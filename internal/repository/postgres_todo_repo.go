package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/todoman/internal/model"
)

// PostgresTodoRepo はPostgreSQLを使用したTodoリポジトリ。
type PostgresTodoRepo struct {
	db *sql.DB
}

// NewPostgresTodoRepo はPostgresTodoRepoを生成する。
func NewPostgresTodoRepo(db *sql.DB) *PostgresTodoRepo {
	return &PostgresTodoRepo{db: db}
}

// deadlineはYYYY-MM-DD文字列として読み書きする
const todoColumns = `id, user_id, name, priority, to_char(deadline, 'YYYY-MM-DD'), completed, created_at, updated_at`

// todoOrder は一覧の表示順。期限なしは末尾に並ぶ。
const todoOrder = `ORDER BY priority ASC, deadline ASC NULLS LAST, created_at DESC`

// ListByUser はユーザーのTodoを表示順で取得する。
func (r *PostgresTodoRepo) ListByUser(ctx context.Context, userID string, filter model.TodoFilter) ([]*model.Todo, error) {
	query := `SELECT ` + todoColumns + ` FROM todos WHERE user_id = $1`
	args := []any{userID}
	if filter.Priority != nil {
		query += ` AND priority = $2`
		args = append(args, int(*filter.Priority))
	}
	query += ` ` + todoOrder

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list todos: %w", err)
	}
	defer rows.Close()

	todos := make([]*model.Todo, 0)
	for rows.Next() {
		todo, err := scanTodo(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan todo: %w", err)
		}
		todos = append(todos, todo)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate todos: %w", err)
	}
	return todos, nil
}

// FindByIDAndUser は指定ユーザーが所有するTodoを取得する。見つからない場合はnilを返す。
func (r *PostgresTodoRepo) FindByIDAndUser(ctx context.Context, id, userID string) (*model.Todo, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+todoColumns+` FROM todos WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	todo, err := scanTodo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find todo: %w", err)
	}
	return todo, nil
}

// Create はTodoを作成する。
func (r *PostgresTodoRepo) Create(ctx context.Context, todo *model.Todo) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO todos (id, user_id, name, priority, deadline, completed, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, NULLIF($5, '')::date, $6, $7, $8)`,
		todo.ID, todo.UserID, todo.Name, int(todo.Priority), todo.Deadline, todo.Completed,
		todo.CreatedAt, todo.UpdatedAt,
	)
	if err != nil {
		return wrapWriteError("failed to insert todo", err)
	}
	return nil
}

// Update はTodoの内容を更新する。対象が存在しない場合はfalseを返す。
func (r *PostgresTodoRepo) Update(ctx context.Context, todo *model.Todo) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE todos
		 SET name = $1, priority = $2, deadline = NULLIF($3, '')::date, completed = $4, updated_at = $5
		 WHERE id = $6 AND user_id = $7`,
		todo.Name, int(todo.Priority), todo.Deadline, todo.Completed, todo.UpdatedAt,
		todo.ID, todo.UserID,
	)
	if err != nil {
		return false, wrapWriteError("failed to update todo", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// DeleteByIDAndUser は指定ユーザーが所有するTodoを削除する。対象が存在しない場合はfalseを返す。
func (r *PostgresTodoRepo) DeleteByIDAndUser(ctx context.Context, id, userID string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM todos WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete todo: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTodo(s rowScanner) (*model.Todo, error) {
	todo := &model.Todo{}
	var priority int
	var deadline sql.NullString
	err := s.Scan(&todo.ID, &todo.UserID, &todo.Name, &priority, &deadline,
		&todo.Completed, &todo.CreatedAt, &todo.UpdatedAt)
	if err != nil {
		return nil, err
	}
	todo.Priority = model.Priority(priority)
	todo.Deadline = deadline.String
	return todo, nil
}

// compile-time interface check
var _ TodoRepository = (*PostgresTodoRepo)(nil)
