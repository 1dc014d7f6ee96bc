// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/render"

	"github.com/hitoshi/todoman/internal/auth"
	"github.com/hitoshi/todoman/internal/middleware"
	"github.com/hitoshi/todoman/internal/model"
)

const (
	refreshCookieName = "refresh_token"
	refreshCookiePath = "/auth"
	oauthStateCookie  = "oauth_state"
	oauthStateMaxAge  = 600 // 10分
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	GetLoginURL(state string) string
	HandleCallback(ctx context.Context, code string) (*auth.Session, error)
	RefreshSession(ctx context.Context, refreshToken string) (*auth.Session, error)
}

// RequestAuthorizer はリクエストの送信者を特定する。
type RequestAuthorizer interface {
	Authorize(r *http.Request) (*model.User, bool)
}

// CookieCodec はCookie値の署名と検証を行う。
type CookieCodec interface {
	Encode(name, value string) (string, error)
	Decode(name, encoded string) (string, error)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	FrontendURL   string
	CookieDomain  string
	CookieSecure  bool
	RefreshMaxAge time.Duration // リフレッシュCookieの有効期間
}

// AuthHandler はOAuth認証とトークン更新のHTTPハンドラー。
type AuthHandler struct {
	service    AuthServiceInterface
	authorizer RequestAuthorizer
	cookies    CookieCodec
	config     AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, authorizer RequestAuthorizer, cookies CookieCodec, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service:    service,
		authorizer: authorizer,
		cookies:    cookies,
		config:     config,
	}
}

// Login はGoogle OAuthフローを開始する。
// GET /auth/google
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	state, err := generateState()
	if err != nil {
		slog.Error("failed to generate oauth state", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w, r)
		return
	}

	// stateをCookieに保存（CSRF対策）
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/auth/google",
		MaxAge:   oauthStateMaxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.service.GetLoginURL(state), http.StatusFound)
}

// Callback はOAuthコールバックを処理する。
// GET /auth/google/callback?code=xxx&state=yyy
//
// 成功時はリフレッシュCookieを設定し、アクセストークンをURLフラグメントに載せて
// フロントエンドにリダイレクトする。失敗時は /login?error=<code> にリダイレクトする。
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	state := query.Get("state")
	stateCookie, err := r.Cookie(oauthStateCookie)
	h.clearStateCookie(w)
	if err != nil || state == "" || stateCookie.Value != state {
		slog.Warn("oauth state mismatch", slog.String("query_state", state))
		h.redirectLoginError(w, r, auth.CodeAuthenticationFailed)
		return
	}

	if providerErr := query.Get("error"); providerErr != "" {
		slog.Warn("oauth provider returned error", slog.String("error", providerErr))
		h.redirectLoginError(w, r, auth.CodeAuthenticationFailed)
		return
	}

	code := query.Get("code")
	if code == "" {
		h.redirectLoginError(w, r, auth.CodeAuthenticationFailed)
		return
	}

	session, err := h.service.HandleCallback(r.Context(), code)
	if err != nil {
		slog.Error("oauth callback failed", slog.String("error", err.Error()))
		h.redirectLoginError(w, r, callbackErrorCode(err))
		return
	}

	if err := h.setRefreshCookie(w, session.RefreshToken); err != nil {
		slog.Error("failed to sign refresh cookie", slog.String("error", err.Error()))
		h.redirectLoginError(w, r, auth.CodeServerError)
		return
	}

	fragment := url.Values{"access_token": {session.AccessToken}}.Encode()
	http.Redirect(w, r, h.config.FrontendURL+"/auth/callback#"+fragment, http.StatusFound)
}

// Refresh はリフレッシュCookieを検証し、アクセストークンを再発行する。
// リフレッシュトークンも毎回ローテーションする。
// POST /auth/refresh
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	session, err := h.service.RefreshSession(r.Context(), h.readRefreshCookie(r))
	if err != nil {
		message := auth.MsgTokenRefreshFailed
		var authErr *auth.Error
		if errors.As(err, &authErr) && authErr.Message != "" {
			message = authErr.Message
		}
		middleware.WriteError(w, r, http.StatusUnauthorized, message)
		return
	}

	if err := h.setRefreshCookie(w, session.RefreshToken); err != nil {
		slog.Error("failed to sign refresh cookie", slog.String("error", err.Error()))
		middleware.WriteError(w, r, http.StatusUnauthorized, auth.MsgTokenRefreshFailed)
		return
	}

	render.JSON(w, r, refreshResponse{
		AccessToken: session.AccessToken,
		User:        newUserResponse(session.User),
	})
}

// SignOut はリフレッシュCookieを削除する。サーバー側で失効させるトークンはない。
// DELETE /auth/sign_out
func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     refreshCookiePath,
		Domain:   h.config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	render.JSON(w, r, messageResponse{Message: "Signed out successfully"})
}

// CurrentUser はアクセストークンの持ち主を返す。
// GET /auth/current_user
func (h *AuthHandler) CurrentUser(w http.ResponseWriter, r *http.Request) {
	user, ok := h.authorizer.Authorize(r)
	if !ok {
		middleware.WriteError(w, r, http.StatusUnauthorized, "Not authenticated")
		return
	}

	render.JSON(w, r, currentUserResponse{User: newUserResponse(user)})
}

// setRefreshCookie は署名済みのリフレッシュトークンをHttpOnly Cookieに設定する。
func (h *AuthHandler) setRefreshCookie(w http.ResponseWriter, refreshToken string) error {
	value, err := h.cookies.Encode(refreshCookieName, refreshToken)
	if err != nil {
		return err
	}

	maxAge := int(h.config.RefreshMaxAge / time.Second)
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    value,
		Path:     refreshCookiePath,
		Domain:   h.config.CookieDomain,
		MaxAge:   maxAge,
		Expires:  time.Now().Add(h.config.RefreshMaxAge),
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// readRefreshCookie はリフレッシュCookieを検証して中身を返す。
// Cookieが無い場合や署名が一致しない場合は空文字列を返す。
func (h *AuthHandler) readRefreshCookie(r *http.Request) string {
	cookie, err := r.Cookie(refreshCookieName)
	if err != nil || cookie.Value == "" {
		return ""
	}
	value, err := h.cookies.Decode(refreshCookieName, cookie.Value)
	if err != nil {
		slog.Warn("refresh cookie rejected", slog.String("error", err.Error()))
		return ""
	}
	return value
}

func (h *AuthHandler) clearStateCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    "",
		Path:     "/auth/google",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) redirectLoginError(w http.ResponseWriter, r *http.Request, code string) {
	http.Redirect(w, r, h.config.FrontendURL+"/login?error="+url.QueryEscape(code), http.StatusFound)
}

// callbackErrorCode はログイン失敗をリダイレクト用のエラーコードに変換する。
func callbackErrorCode(err error) string {
	var authErr *auth.Error
	if errors.As(err, &authErr) {
		switch authErr.Code {
		case auth.CodeAuthenticationFailed, auth.CodeUserCreationFailed:
			return authErr.Code
		}
	}
	return auth.CodeServerError
}

// generateState はCSRF対策用のランダムなstate値を生成する。
func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
