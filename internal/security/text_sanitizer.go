// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizer はフォームから送信された自由記述テキストからHTMLマークアップを除去し、
// 管理画面や通知メールにスクリプトが混入しないようにする。
// bluemondayのStrictPolicyを使用し、全てのタグを除去してテキストのみを残す。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer はプレーンテキストのサニタイズ機能のインターフェースを定義する。
// 問い合わせの説明文など、保存前のユーザー入力に使用される。
type TextSanitizer interface {
	// Sanitize は入力から全てのHTMLタグを除去したプレーンテキストを返す。
	// script, styleタグは中身ごと除去する。
	// エスケープされた文字実体参照は元の文字に戻す（保存値はHTMLではなくテキスト）。
	// 前後の空白は除去する。同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(raw string) string
}

// textSanitizer はTextSanitizerの実装。
// bluemondayのポリシーはスレッドセーフなため共有して使用する。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerの新しいインスタンスを生成する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize は入力から全てのHTMLタグを除去する。
func (s *textSanitizer) Sanitize(raw string) string {
	if raw == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(raw)))
}

// compile-time interface check
var _ TextSanitizer = (*textSanitizer)(nil)
