package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/hitoshi/todoman/internal/middleware"
	"github.com/hitoshi/todoman/internal/model"
	"github.com/hitoshi/todoman/internal/todo"
)

// TodoServiceInterface はTodoハンドラーが必要とするサービスインターフェース。
type TodoServiceInterface interface {
	List(ctx context.Context, userID, priority string) ([]*model.Todo, error)
	Create(ctx context.Context, userID string, in todo.Input) (*model.Todo, error)
	Update(ctx context.Context, userID, id string, in todo.Input) (*model.Todo, error)
	Delete(ctx context.Context, userID, id string) error
}

// TodoHandler はTodo管理のHTTPハンドラー。
type TodoHandler struct {
	service TodoServiceInterface
}

// NewTodoHandler はTodoHandlerを生成する。
func NewTodoHandler(service TodoServiceInterface) *TodoHandler {
	return &TodoHandler{service: service}
}

// nullableString はJSONのnullと未指定を区別して受け取る文字列。
type nullableString struct {
	set   bool
	value string
}

// UnmarshalJSON はnullを空文字列として受け取る。
func (n *nullableString) UnmarshalJSON(b []byte) error {
	n.set = true
	if bytes.Equal(b, []byte("null")) {
		n.value = ""
		return nil
	}
	return json.Unmarshal(b, &n.value)
}

func (n nullableString) ptr() *string {
	if !n.set {
		return nil
	}
	v := n.value
	return &v
}

// todoParams はリクエストボディ {"todo": {...}} の中身。
type todoParams struct {
	Name      nullableString `json:"name"`
	Priority  nullableString `json:"priority"`
	Deadline  nullableString `json:"deadline"`
	Completed *bool          `json:"completed"`
}

type todoRequest struct {
	Todo *todoParams `json:"todo"`
}

// List はログインユーザーのTodo一覧を返す。
// GET /todos?priority=high
func (h *TodoHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		middleware.WriteError(w, r, http.StatusUnauthorized, "Unauthorized")
		return
	}

	todos, err := h.service.List(r.Context(), userID, r.URL.Query().Get("priority"))
	if err != nil {
		writeTodoError(w, r, err)
		return
	}

	resp := todoListResponse{Todos: make([]todoResponse, len(todos))}
	for i, t := range todos {
		resp.Todos[i] = newTodoResponse(t)
	}
	render.JSON(w, r, resp)
}

// Create はTodoを作成する。
// POST /todos
func (h *TodoHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		middleware.WriteError(w, r, http.StatusUnauthorized, "Unauthorized")
		return
	}

	in, ok := decodeTodoInput(w, r)
	if !ok {
		return
	}

	created, err := h.service.Create(r.Context(), userID, in)
	if err != nil {
		writeTodoError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, todoEnvelope{Todo: newTodoResponse(created)})
}

// Update はTodoを部分更新する。
// PATCH /todos/{id}、PUT /todos/{id}
func (h *TodoHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		middleware.WriteError(w, r, http.StatusUnauthorized, "Unauthorized")
		return
	}

	in, ok := decodeTodoInput(w, r)
	if !ok {
		return
	}

	updated, err := h.service.Update(r.Context(), userID, chi.URLParam(r, "id"), in)
	if err != nil {
		writeTodoError(w, r, err)
		return
	}

	render.JSON(w, r, todoEnvelope{Todo: newTodoResponse(updated)})
}

// Delete はTodoを削除する。
// DELETE /todos/{id}
func (h *TodoHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		middleware.WriteError(w, r, http.StatusUnauthorized, "Unauthorized")
		return
	}

	if err := h.service.Delete(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		writeTodoError(w, r, err)
		return
	}

	render.JSON(w, r, messageResponse{Message: "Todo deleted successfully"})
}

// decodeTodoInput はリクエストボディを解析する。失敗時は400を書き込みfalseを返す。
func decodeTodoInput(w http.ResponseWriter, r *http.Request) (todo.Input, bool) {
	var req todoRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil || req.Todo == nil {
		middleware.WriteError(w, r, http.StatusBadRequest, model.NewInvalidRequestError().Message)
		return todo.Input{}, false
	}

	return todo.Input{
		Name:      req.Todo.Name.ptr(),
		Priority:  req.Todo.Priority.ptr(),
		Deadline:  req.Todo.Deadline.ptr(),
		Completed: req.Todo.Completed,
	}, true
}

// writeTodoError はサービスのエラーをHTTPレスポンスに変換する。
func writeTodoError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case model.ErrCodeTodoNotFound:
			middleware.WriteError(w, r, http.StatusNotFound, apiErr.Message)
			return
		case model.ErrCodeValidationFailed:
			middleware.WriteValidationErrors(w, r, apiErr.Details)
			return
		}
	}

	slog.Error("todo request failed",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	middleware.WriteInternalServerError(w, r)
}
