// Package apiclient はtodoman APIのGoクライアントを提供する。
// ブラウザと同様にリフレッシュCookieをCookie Jarで保持し、
// アクセストークンの期限切れを検知すると1回だけリフレッシュして再送する。
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"
)

// Config はClientの設定。
type Config struct {
	// BaseURL はAPIサーバーのURL（例: https://api.example.com）。
	BaseURL string
	// HTTPClient は通信に使うクライアント。nilの場合はタイムアウト付きの新しいクライアントを使う。
	// Jarが未設定の場合はpublicsuffix対応のCookie Jarを設定する。
	HTTPClient *http.Client
	// Store はアクセストークンの保存先。nilの場合はMemoryTokenStoreを使う。
	Store TokenStore
	// OnSessionExpired はリフレッシュに失敗したときに呼ばれる。再ログインへの誘導に使う。
	OnSessionExpired func()
}

// Client はtodoman APIのクライアント。
type Client struct {
	baseURL     *url.URL
	http        *http.Client
	store       TokenStore
	coordinator *RefreshCoordinator
}

// Error はAPIが返したエラーレスポンス。
type Error struct {
	StatusCode int
	Message    string
	Details    []string
}

// Error はerrorインターフェースを実装する。
func (e *Error) Error() string {
	if len(e.Details) > 0 {
		return fmt.Sprintf("api error %d: %s", e.StatusCode, strings.Join(e.Details, "; "))
	}
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

// LoginError はOAuthコールバックがエラーコード付きで戻ってきたことを表す。
type LoginError struct {
	Code string
}

// Error はerrorインターフェースを実装する。
func (e *LoginError) Error() string {
	return "login failed: " + e.Code
}

// New はClientを生成する。
func New(cfg Config) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q", cfg.BaseURL)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	} else {
		clone := *httpClient
		httpClient = &clone
	}
	if httpClient.Jar == nil {
		jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if err != nil {
			return nil, fmt.Errorf("failed to create cookie jar: %w", err)
		}
		httpClient.Jar = jar
	}
	// OAuthのリダイレクト先はクライアント側で解釈する
	httpClient.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	store := cfg.Store
	if store == nil {
		store = &MemoryTokenStore{}
	}

	c := &Client{
		baseURL: base,
		http:    httpClient,
		store:   store,
	}
	c.coordinator = NewRefreshCoordinator(store, c.exchangeRefreshCookie, cfg.OnSessionExpired)
	return c, nil
}

// AccessToken は現在のアクセストークンを返す。
func (c *Client) AccessToken() string {
	return c.store.AccessToken()
}

// Do はBearerトークンを付けてAPIを呼び出し、レスポンスをoutにデコードする。
// 401を受け取った場合はトークンを再取得して1回だけ再送する。再送後の401はそのまま返す。
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		payload = b
	}

	token := c.store.AccessToken()
	resp, err := c.send(ctx, method, path, payload, token)
	if err != nil {
		return err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		discard(resp)

		fresh, err := c.coordinator.AwaitToken(ctx, token)
		if err != nil {
			return err
		}
		resp, err = c.send(ctx, method, path, payload, fresh)
		if err != nil {
			return err
		}
	}

	return decodeResponse(resp, out)
}

// send は1回分のリクエストを送る。
func (c *Client) send(ctx context.Context, method, path string, payload []byte, token string) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.resolve(path), body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return resp, nil
}

// exchangeRefreshCookie はリフレッシュCookieを送り、新しいアクセストークンを受け取る。
// Cookie Jarのリフレッシュトークンもレスポンスで置き換わる。
func (c *Client) exchangeRefreshCookie(ctx context.Context) (string, error) {
	resp, err := c.send(ctx, http.MethodPost, "/auth/refresh", nil, "")
	if err != nil {
		return "", err
	}
	var out refreshResponse
	if err := decodeResponse(resp, &out); err != nil {
		return "", err
	}
	if out.AccessToken == "" {
		return "", errors.New("refresh response has no access token")
	}
	return out.AccessToken, nil
}

// resolve はBaseURLのパスを残したままpathを連結する。
func (c *Client) resolve(path string) string {
	return c.baseURL.String() + path
}

// decodeResponse はレスポンスを読み切って閉じる。4xx/5xxは*Errorに変換する。
func decodeResponse(resp *http.Response, out any) error {
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var body struct {
			Error  string   `json:"error"`
			Errors []string `json:"errors"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		message := body.Error
		if message == "" {
			message = http.StatusText(resp.StatusCode)
		}
		return &Error{StatusCode: resp.StatusCode, Message: message, Details: body.Errors}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func discard(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
