// Package model はドメインモデルを定義する。
package model

import (
	"fmt"
	"strings"
)

// APIError はクライアントに返却するエラーを表す。
// Detailsはバリデーションエラーなど複数のメッセージを持つ場合に使用する。
type APIError struct {
	Code    string   // エラーコード
	Message string   // エラーメッセージ
	Details []string // バリデーションエラーの一覧
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	if len(e.Details) > 0 {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, strings.Join(e.Details, "; "))
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeTodoNotFound     = "TODO_NOT_FOUND"
	ErrCodeValidationFailed = "VALIDATION_FAILED"
	ErrCodeInvalidRequest   = "INVALID_REQUEST"
)

// NewTodoNotFoundError はTodo未検出エラーを生成する。
// 他ユーザーのTodoや不正なIDの場合も同じエラーを返す。
func NewTodoNotFoundError() *APIError {
	return &APIError{
		Code:    ErrCodeTodoNotFound,
		Message: "Todo not found",
	}
}

// NewValidationError はバリデーションエラーを生成する。
func NewValidationError(details []string) *APIError {
	return &APIError{
		Code:    ErrCodeValidationFailed,
		Message: "Validation failed",
		Details: details,
	}
}

// NewInvalidRequestError はリクエストボディの解析失敗エラーを生成する。
func NewInvalidRequestError() *APIError {
	return &APIError{
		Code:    ErrCodeInvalidRequest,
		Message: "Invalid request body",
	}
}
