// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizer はリードの自由記述欄からHTMLを除去し、
// プレーンテキストとして保存できる形に整える。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizerService は自由記述テキストのサニタイズ機能のインターフェース。
type TextSanitizerService interface {
	// Sanitize は全てのタグを除去し、前後の空白を取り除いたテキストを返す。
	// script, styleの中身は破棄する。空文字列の入力には空文字列を返す。
	Sanitize(raw string) string
}

// TextSanitizer はbluemondayのStrictPolicyを使用したTextSanitizerServiceの実装。
// ポリシーは生成後に変更しないため、複数goroutineから同時に使用できる。
type TextSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerを生成する。
func NewTextSanitizer() *TextSanitizer {
	return &TextSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize は全てのタグを除去したプレーンテキストを返す。
// StrictPolicyがエスケープした文字実体参照は元の文字に戻す。
// 結果はHTMLとして解釈しない前提のテキストであり、表示側でエスケープすること。
func (s *TextSanitizer) Sanitize(raw string) string {
	if raw == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(raw)))
}

// compile-time interface check
var _ TextSanitizerService = (*TextSanitizer)(nil)
