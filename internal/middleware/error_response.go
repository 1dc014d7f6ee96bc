package middleware

import (
	"net/http"

	"github.com/go-chi/render"
)

// ErrorResponseBody は単一メッセージのエラーレスポンス。
type ErrorResponseBody struct {
	Error string `json:"error"`
}

// ValidationErrorResponseBody はバリデーションエラーのレスポンス。
type ValidationErrorResponseBody struct {
	Errors []string `json:"errors"`
}

// WriteError は {"error": message} 形式のエラーレスポンスを書き込む。
func WriteError(w http.ResponseWriter, r *http.Request, statusCode int, message string) {
	render.Status(r, statusCode)
	render.JSON(w, r, ErrorResponseBody{Error: message})
}

// WriteValidationErrors は422と {"errors": [...]} を書き込む。
func WriteValidationErrors(w http.ResponseWriter, r *http.Request, details []string) {
	if details == nil {
		details = []string{}
	}
	render.Status(r, http.StatusUnprocessableEntity)
	render.JSON(w, r, ValidationErrorResponseBody{Errors: details})
}

// WriteInternalServerError は内部エラーの共通レスポンスを書き込む。
// 詳細はログにのみ記録し、クライアントには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter, r *http.Request) {
	WriteError(w, r, http.StatusInternalServerError, "Internal server error")
}
