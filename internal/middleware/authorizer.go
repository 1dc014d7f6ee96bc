package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/todoman/internal/model"
	"github.com/hitoshi/todoman/internal/token"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	// userContextKey は認証済みユーザーを格納するキー。
	userContextKey = contextKey("user")
	// userIDContextKey はユーザーIDのみを格納するキー。
	userIDContextKey = contextKey("user_id")
)

// bearerPrefix はAuthorizationヘッダーのスキーム部分。大文字小文字を区別する。
const bearerPrefix = "Bearer "

// TokenVerifier はアクセストークンを検証する。
type TokenVerifier interface {
	Verify(tokenString string) (*token.Claims, error)
}

// UserFinder はIDでユーザーを取得する。見つからない場合はnilを返す。
type UserFinder interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
}

// Authorizer はBearerトークンからリクエストの利用者を特定する。
type Authorizer struct {
	tokens TokenVerifier
	users  UserFinder
}

// NewAuthorizer はAuthorizerを生成する。
func NewAuthorizer(tokens TokenVerifier, users UserFinder) *Authorizer {
	return &Authorizer{tokens: tokens, users: users}
}

// BearerToken は "Bearer <token>" 形式のヘッダー値からトークンを取り出す。
func BearerToken(header string) (string, bool) {
	if !strings.HasPrefix(header, bearerPrefix) {
		return "", false
	}
	raw := header[len(bearerPrefix):]
	if raw == "" || strings.ContainsAny(raw, " \t") {
		return "", false
	}
	return raw, true
}

// Authorize はリクエストを送ったユーザーを返す。
// トークンが無い、不正、アクセストークンでない、ユーザーが存在しない場合はfalseを返す。
func (a *Authorizer) Authorize(r *http.Request) (*model.User, bool) {
	if user, ok := UserFromContext(r.Context()); ok {
		return user, true
	}

	raw, ok := BearerToken(r.Header.Get("Authorization"))
	if !ok {
		return nil, false
	}

	claims, err := a.tokens.Verify(raw)
	if err != nil {
		return nil, false
	}
	if claims.Kind != token.KindAccess {
		slog.Warn("non-access token presented as bearer",
			slog.String("kind", string(claims.Kind)),
			slog.String("path", r.URL.Path),
		)
		return nil, false
	}

	user, err := a.users.FindByID(r.Context(), claims.UserID())
	if err != nil {
		slog.Error("failed to load user for request",
			slog.String("user_id", claims.UserID()),
			slog.String("error", err.Error()),
		)
		return nil, false
	}
	if user == nil {
		return nil, false
	}
	return user, true
}

// Middleware は認証を必須とするミドルウェアを返す。
// 認証に失敗した場合は401 {"error":"Unauthorized"} を返す。
func (a *Authorizer) Middleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := a.Authorize(r)
			if !ok {
				WriteError(w, r, http.StatusUnauthorized, "Unauthorized")
				return
			}

			markRequestUser(r.Context(), user.ID)
			next.ServeHTTP(w, r.WithContext(ContextWithUser(r.Context(), user)))
		})
	}
}

// UserFromContext はコンテキストから認証済みユーザーを取得する。
func UserFromContext(ctx context.Context) (*model.User, bool) {
	user, ok := ctx.Value(userContextKey).(*model.User)
	if !ok || user == nil {
		return nil, false
	}
	return user, true
}

// ContextWithUser はコンテキストに認証済みユーザーを注入する。
func ContextWithUser(ctx context.Context, user *model.User) context.Context {
	ctx = context.WithValue(ctx, userContextKey, user)
	return context.WithValue(ctx, userIDContextKey, user.ID)
}

// UserIDFromContext はコンテキストからユーザーIDを取得する。
func UserIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", false
	}
	return userID, true
}

// ContextWithUserID はコンテキストにユーザーIDを注入する。テスト用。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}
