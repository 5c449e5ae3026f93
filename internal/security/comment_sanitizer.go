// Package security はアプリケーションのセキュリティ機能を提供する。
//
// CommentSanitizer は公式ブログのコメント本文をサニタイズする。
// コメント本文はHTMLエンティティと改行タグを含む短いテキストで、
// bluemondayの許可リストポリシーで改行以外のタグをすべて除去する。
package security

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// CommentSanitizer はコメント本文のサニタイズ機能のインターフェースを定義する。
type CommentSanitizer interface {
	// Sanitize はコメント本文から改行(br)以外のタグを除去して返す。
	// テキストはHTMLエスケープされた状態で返される。
	// 前後の空白は除去する。同一入力に対して常に同一出力を返す。
	Sanitize(rawHTML string) string
}

type commentSanitizer struct {
	policy *bluemonday.Policy
}

// NewCommentSanitizer はCommentSanitizerの新しいインスタンスを生成する。
// script, style等は中身ごと除去される。
func NewCommentSanitizer() *commentSanitizer {
	p := bluemonday.NewPolicy()
	p.AllowElements("br")
	return &commentSanitizer{policy: p}
}

// Sanitize はコメント本文をサニタイズする。
func (s *commentSanitizer) Sanitize(rawHTML string) string {
	return strings.TrimSpace(s.policy.Sanitize(rawHTML))
}
