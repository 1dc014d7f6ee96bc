package apiclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// User はAPIが返すユーザー情報。
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	GoogleID  string    `json:"google_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Todo はAPIが返すTodo。
type Todo struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	Priority  string    `json:"priority"`
	Deadline  *string   `json:"deadline"`
	Completed bool      `json:"completed"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TodoInput はTodoの作成・更新内容。nilのフィールドは送信しない。
// Deadlineに空文字列を指定すると期限を削除する。
type TodoInput struct {
	Name      *string `json:"name,omitempty"`
	Priority  *string `json:"priority,omitempty"`
	Deadline  *string `json:"deadline,omitempty"`
	Completed *bool   `json:"completed,omitempty"`
}

type todoRequest struct {
	Todo TodoInput `json:"todo"`
}

type todoEnvelope struct {
	Todo *Todo `json:"todo"`
}

type todoList struct {
	Todos []*Todo `json:"todos"`
}

type userEnvelope struct {
	User *User `json:"user"`
}

type refreshResponse struct {
	AccessToken string `json:"access_token"`
	User        *User  `json:"user"`
}

// LoginURL はOAuthフローの開始URLを返す。ブラウザで開く用途。
func (c *Client) LoginURL() string {
	return c.resolve("/auth/google")
}

// StartLogin はOAuthフローを開始し、IdPの認可URLを返す。
// stateのCookieはCookie Jarに保存される。
func (c *Client) StartLogin(ctx context.Context) (string, error) {
	resp, err := c.send(ctx, http.MethodGet, "/auth/google", nil, "")
	if err != nil {
		return "", err
	}
	discard(resp)
	if resp.StatusCode != http.StatusFound {
		return "", &Error{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}
	return resp.Header.Get("Location"), nil
}

// CompleteLogin はIdPから受け取った認可コードとstateでコールバックを呼び、
// リダイレクト先からアクセストークンを取り出して保存する。
func (c *Client) CompleteLogin(ctx context.Context, code, state string) error {
	q := url.Values{"code": {code}, "state": {state}}
	resp, err := c.send(ctx, http.MethodGet, "/auth/google/callback?"+q.Encode(), nil, "")
	if err != nil {
		return err
	}
	discard(resp)
	if resp.StatusCode != http.StatusFound {
		return &Error{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}
	return c.HandleCallbackURL(resp.Header.Get("Location"))
}

// HandleCallbackURL はフロントエンドのコールバックURLを解釈する。
// フラグメントのaccess_tokenを保存し、?error=<code> の場合は*LoginErrorを返す。
func (c *Client) HandleCallbackURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid callback URL: %w", err)
	}
	if code := u.Query().Get("error"); code != "" {
		return &LoginError{Code: code}
	}

	fragment, err := url.ParseQuery(u.Fragment)
	if err != nil {
		return fmt.Errorf("invalid callback fragment: %w", err)
	}
	token := fragment.Get("access_token")
	if token == "" {
		return &LoginError{Code: "missing_access_token"}
	}
	c.store.SetAccessToken(token)
	c.coordinator.Reset()
	return nil
}

// Refresh はリフレッシュCookieでアクセストークンを更新する。
// 同時に呼ばれた場合も交換は1回だけ行われる。
func (c *Client) Refresh(ctx context.Context) (string, error) {
	return c.coordinator.AwaitToken(ctx, c.store.AccessToken())
}

// CurrentUser はログイン中のユーザーを返す。
func (c *Client) CurrentUser(ctx context.Context) (*User, error) {
	var out userEnvelope
	if err := c.Do(ctx, http.MethodGet, "/auth/current_user", nil, &out); err != nil {
		return nil, err
	}
	return out.User, nil
}

// SignOut はリフレッシュCookieを削除し、保存しているアクセストークンを破棄する。
func (c *Client) SignOut(ctx context.Context) error {
	err := c.Do(ctx, http.MethodDelete, "/auth/sign_out", nil, nil)
	c.store.Clear()
	return err
}

// ListTodos はTodo一覧を返す。priorityが空でない場合は絞り込む。
func (c *Client) ListTodos(ctx context.Context, priority string) ([]*Todo, error) {
	path := "/todos"
	if priority != "" {
		path += "?" + url.Values{"priority": {priority}}.Encode()
	}
	var out todoList
	if err := c.Do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Todos, nil
}

// CreateTodo はTodoを作成する。
func (c *Client) CreateTodo(ctx context.Context, in TodoInput) (*Todo, error) {
	var out todoEnvelope
	if err := c.Do(ctx, http.MethodPost, "/todos", todoRequest{Todo: in}, &out); err != nil {
		return nil, err
	}
	return out.Todo, nil
}

// UpdateTodo はTodoを部分更新する。
func (c *Client) UpdateTodo(ctx context.Context, id string, in TodoInput) (*Todo, error) {
	var out todoEnvelope
	if err := c.Do(ctx, http.MethodPatch, "/todos/"+url.PathEscape(id), todoRequest{Todo: in}, &out); err != nil {
		return nil, err
	}
	return out.Todo, nil
}

// DeleteTodo はTodoを削除する。
func (c *Client) DeleteTodo(ctx context.Context, id string) error {
	return c.Do(ctx, http.MethodDelete, "/todos/"+url.PathEscape(id), nil, nil)
}
