package handler

import (
	"time"

	"github.com/hitoshi/todoman/internal/model"
)

// userResponse はユーザー情報のJSON表現。
type userResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	GoogleID  string    `json:"google_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func newUserResponse(u *model.User) *userResponse {
	if u == nil {
		return nil
	}
	return &userResponse{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		GoogleID:  u.GoogleID,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

type refreshResponse struct {
	AccessToken string        `json:"access_token"`
	User        *userResponse `json:"user"`
}

type currentUserResponse struct {
	User *userResponse `json:"user"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// todoResponse はTodoのJSON表現。期限が未設定の場合はnull。
type todoResponse struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	Priority  string    `json:"priority"`
	Deadline  *string   `json:"deadline"`
	Completed bool      `json:"completed"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func newTodoResponse(t *model.Todo) todoResponse {
	resp := todoResponse{
		ID:        t.ID,
		UserID:    t.UserID,
		Name:      t.Name,
		Priority:  t.Priority.String(),
		Completed: t.Completed,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
	if t.HasDeadline() {
		deadline := t.Deadline
		resp.Deadline = &deadline
	}
	return resp
}

type todoEnvelope struct {
	Todo todoResponse `json:"todo"`
}

type todoListResponse struct {
	Todos []todoResponse `json:"todos"`
}
