package auth

import (
	"errors"
	"fmt"
)

// ログイン失敗時にフロントエンドへ渡すエラーコード
const (
	CodeAuthenticationFailed = "authentication_failed"
	CodeUserCreationFailed   = "user_creation_failed"
	CodeServerError          = "server_error"
	CodeUnauthorized         = "unauthorized"
)

// リフレッシュ失敗時のメッセージ。レスポンスの error フィールドにそのまま使用する。
const (
	MsgRefreshTokenNotFound = "Refresh token not found"
	MsgInvalidRefreshToken  = "Invalid refresh token"
	MsgUserNotFound         = "User not found"
	MsgTokenRefreshFailed   = "Token refresh failed"
)

// ErrUserCreationFailed はIdPの主張からユーザーを確定できなかったことを表す。
var ErrUserCreationFailed = errors.New("user creation failed")

// Error は認証フローの失敗を表す。
// Codeはクライアントに返す分類で、Errは内部のログ用の原因。
type Error struct {
	Code    string
	Message string
	Err     error
}

// Error はerrorインターフェースを実装する。
func (e *Error) Error() string {
	msg := e.Code
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap は原因のエラーを返す。
func (e *Error) Unwrap() error {
	return e.Err
}

func unauthorized(message string, cause error) *Error {
	return &Error{Code: CodeUnauthorized, Message: message, Err: cause}
}

// LinkError はIdentityLinkerの失敗を表す。
// errors.Is(err, ErrUserCreationFailed) は常にtrueになる。
type LinkError struct {
	Reason string
	Err    error
}

// Error はerrorインターフェースを実装する。
func (e *LinkError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("identity link failed: %s: %v", e.Reason, e.Err)
	}
	return "identity link failed: " + e.Reason
}

// Unwrap は原因のエラーを返す。
func (e *LinkError) Unwrap() error {
	return e.Err
}

// Is はErrUserCreationFailedとの比較でtrueを返す。
func (e *LinkError) Is(target error) bool {
	return target == ErrUserCreationFailed
}
