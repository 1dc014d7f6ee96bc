// Package auth はOAuth認証フロー、ユーザーの紐付け、トークンセッションの発行を提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/hitoshi/todoman/internal/metrics"
	"github.com/hitoshi/todoman/internal/model"
	"github.com/hitoshi/todoman/internal/token"
)

// Session はログインまたはリフレッシュで発行されたトークンの組。
type Session struct {
	AccessToken  string
	RefreshToken string
	User         *model.User
}

// IdentityLinker はIdPの主張をローカルユーザーに対応付ける。
type IdentityLinker interface {
	Link(ctx context.Context, assertion ExternalIdentity) (*model.User, error)
}

// UserFinder はIDでユーザーを取得する。見つからない場合はnilを返す。
type UserFinder interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
}

// TokenCodec はトークンの発行と検証を行う。
type TokenCodec interface {
	Issue(subject string, kind token.Kind) (string, error)
	Verify(tokenString string) (*token.Claims, error)
}

// Recorder は認証フローの結果を記録する。
type Recorder interface {
	RecordLogin(outcome string)
	RecordRefresh(outcome string)
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	oauth    OAuthProvider
	linker   IdentityLinker
	users    UserFinder
	tokens   TokenCodec
	recorder Recorder
}

// NewService はServiceを生成する。recorderがnilの場合は記録しない。
func NewService(oauth OAuthProvider, linker IdentityLinker, users UserFinder, tokens TokenCodec, recorder Recorder) *Service {
	if recorder == nil {
		recorder = metrics.NopCollector{}
	}
	return &Service{
		oauth:    oauth,
		linker:   linker,
		users:    users,
		tokens:   tokens,
		recorder: recorder,
	}
}

// GetLoginURL はOAuth認証URLを生成する。
func (s *Service) GetLoginURL(state string) string {
	return s.oauth.GetLoginURL(state)
}

// HandleCallback は認可コードを交換し、ログインを完了する。
// 交換に失敗した場合はauthentication_failedを返す。
func (s *Service) HandleCallback(ctx context.Context, code string) (*Session, error) {
	ident, err := s.oauth.ExchangeCode(ctx, code)
	if err != nil {
		slog.Warn("oauth code exchange failed", slog.String("error", err.Error()))
		ident = nil
	}
	return s.CompleteLogin(ctx, ident)
}

// CompleteLogin はIdPの主張からユーザーを確定し、トークンの組を発行する。
// 失敗時は*Errorを返し、Codeは authentication_failed、user_creation_failed、
// server_error のいずれか。処理中のpanicはserver_errorとして扱う。
func (s *Service) CompleteLogin(ctx context.Context, ident *ExternalIdentity) (session *Session, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("panic during login",
				slog.Any("panic", rec),
				slog.String("stack", string(debug.Stack())),
			)
			session, err = nil, &Error{Code: CodeServerError, Err: fmt.Errorf("panic: %v", rec)}
		}
		s.recorder.RecordLogin(loginOutcome(err))
	}()

	if ident == nil {
		return nil, &Error{Code: CodeAuthenticationFailed}
	}

	user, linkErr := s.linker.Link(ctx, *ident)
	if linkErr != nil {
		slog.Warn("identity link failed", slog.String("error", linkErr.Error()))
		if errors.Is(linkErr, ErrUserCreationFailed) {
			return nil, &Error{Code: CodeUserCreationFailed, Err: linkErr}
		}
		return nil, &Error{Code: CodeServerError, Err: linkErr}
	}
	if user == nil {
		return nil, &Error{Code: CodeUserCreationFailed}
	}

	session, issueErr := s.issue(user)
	if issueErr != nil {
		slog.Error("failed to issue session", slog.String("error", issueErr.Error()))
		return nil, &Error{Code: CodeServerError, Err: issueErr}
	}

	slog.Info("user logged in", slog.String("user_id", user.ID))
	return session, nil
}

// RefreshSession はリフレッシュトークンを検証し、新しいトークンの組を発行する。
// 失敗時はCodeがunauthorizedの*Errorを返し、Messageに理由を持つ。
// 古いリフレッシュトークンは失効させず、有効期限まで使用できる。
func (s *Service) RefreshSession(ctx context.Context, refreshToken string) (session *Session, err error) {
	outcome := "error"
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("panic during token refresh",
				slog.Any("panic", rec),
				slog.String("stack", string(debug.Stack())),
			)
			session, err = nil, unauthorized(MsgTokenRefreshFailed, fmt.Errorf("panic: %v", rec))
			outcome = "error"
		}
		s.recorder.RecordRefresh(outcome)
	}()

	if refreshToken == "" {
		outcome = "missing"
		return nil, unauthorized(MsgRefreshTokenNotFound, nil)
	}

	claims, verifyErr := s.tokens.Verify(refreshToken)
	if verifyErr != nil {
		outcome = "invalid"
		return nil, unauthorized(MsgInvalidRefreshToken, verifyErr)
	}
	if claims.Kind != token.KindRefresh {
		outcome = "invalid"
		return nil, unauthorized(MsgInvalidRefreshToken, fmt.Errorf("token kind %q", claims.Kind))
	}

	user, findErr := s.users.FindByID(ctx, claims.UserID())
	if findErr != nil {
		slog.Error("failed to load user for refresh", slog.String("error", findErr.Error()))
		return nil, unauthorized(MsgTokenRefreshFailed, findErr)
	}
	if user == nil {
		outcome = "user_not_found"
		return nil, unauthorized(MsgUserNotFound, nil)
	}

	session, issueErr := s.issue(user)
	if issueErr != nil {
		slog.Error("failed to issue session", slog.String("error", issueErr.Error()))
		return nil, unauthorized(MsgTokenRefreshFailed, issueErr)
	}

	outcome = "success"
	return session, nil
}

// issue はユーザーに対してアクセストークンとリフレッシュトークンを発行する。
func (s *Service) issue(user *model.User) (*Session, error) {
	access, err := s.tokens.Issue(user.ID, token.KindAccess)
	if err != nil {
		return nil, err
	}
	refresh, err := s.tokens.Issue(user.ID, token.KindRefresh)
	if err != nil {
		return nil, err
	}
	return &Session{AccessToken: access, RefreshToken: refresh, User: user}, nil
}

func loginOutcome(err error) string {
	if err == nil {
		return "success"
	}
	var authErr *Error
	if errors.As(err, &authErr) {
		return authErr.Code
	}
	return CodeServerError
}
