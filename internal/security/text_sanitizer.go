// Package security はアプリケーションのセキュリティ機能を提供する。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer はユーザー入力のプレーンテキストからHTMLを除去する。
// Todo名など、表示時にHTMLとして解釈されてはならない値に使用する。
type TextSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はbluemondayのStrictPolicyを使用するTextSanitizerを生成する。
// StrictPolicyはすべてのタグを除去し、テキストのみを残す。
func NewTextSanitizer() *TextSanitizer {
	return &TextSanitizer{policy: bluemonday.StrictPolicy()}
}

// Sanitize はタグを除去し、前後の空白を取り除いた文字列を返す。
// bluemondayがエスケープした実体参照は元の文字に戻す。
func (s *TextSanitizer) Sanitize(input string) string {
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(input)))
}
