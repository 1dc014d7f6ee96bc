package repotest

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/hitoshi/todoman/internal/model"
	"github.com/hitoshi/todoman/internal/repository"
)

var _ repository.TodoRepository = (*TodoRepo)(nil)

// TodoRepo はTodoRepositoryのインメモリ実装。
type TodoRepo struct {
	mu    sync.RWMutex
	todos map[string]*model.Todo

	ListErr error
}

// NewTodoRepo は空のTodoRepoを生成する。
func NewTodoRepo() *TodoRepo {
	return &TodoRepo{todos: make(map[string]*model.Todo)}
}

// ListByUser はユーザーのTodoを表示順で返す。
func (r *TodoRepo) ListByUser(_ context.Context, userID string, filter model.TodoFilter) ([]*model.Todo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.ListErr != nil {
		return nil, r.ListErr
	}
	todos := make([]*model.Todo, 0)
	for _, t := range r.todos {
		if t.UserID != userID {
			continue
		}
		if filter.Priority != nil && t.Priority != *filter.Priority {
			continue
		}
		clone := *t
		todos = append(todos, &clone)
	}
	slices.SortFunc(todos, model.CompareTodos)
	return todos, nil
}

// FindByIDAndUser は指定ユーザーが所有するTodoのコピーを返す。
func (r *TodoRepo) FindByIDAndUser(_ context.Context, id, userID string) (*model.Todo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.todos[id]
	if !ok || t.UserID != userID {
		return nil, nil
	}
	clone := *t
	return &clone, nil
}

// Create はTodoを保存する。IDが空の場合は採番する。
func (r *TodoRepo) Create(_ context.Context, todo *model.Todo) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if todo.ID == "" {
		todo.ID = uuid.NewString()
	}
	clone := *todo
	r.todos[todo.ID] = &clone
	return nil
}

// Update はTodoを上書きする。
func (r *TodoRepo) Update(_ context.Context, todo *model.Todo) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.todos[todo.ID]
	if !ok || stored.UserID != todo.UserID {
		return false, nil
	}
	clone := *todo
	r.todos[todo.ID] = &clone
	return true, nil
}

// DeleteByIDAndUser は指定ユーザーが所有するTodoを削除する。
func (r *TodoRepo) DeleteByIDAndUser(_ context.Context, id, userID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.todos[id]
	if !ok || t.UserID != userID {
		return false, nil
	}
	delete(r.todos, id)
	return true, nil
}
