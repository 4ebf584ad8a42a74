// Package security はアプリケーションのセキュリティ機能を提供する。
//
// ContentSanitizerService はClickUpから取得したタスク説明文をサニタイズし、
// ダッシュボードに表示される前にXSS攻撃などのリスクを除去する。
// bluemondayライブラリを使用した許可リストベースのポリシーで、
// 安全なタグのみを通過させる。
package security

import (
	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizerService はタスク説明文のサニタイズ機能のインターフェース。
// 同期時の正規化処理でスナップショット保存前に使用される。
type ContentSanitizerService interface {
	// Sanitize はHTML混じりの説明文をサニタイズして安全な文字列を返す。
	// 許可タグ（p, br, ul, ol, li, blockquote, pre, code, strong, em, a）のみを
	// 通過させ、script, iframe, styleタグおよびon*イベント属性を除去する。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(raw string) string
}

// contentSanitizer はContentSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type contentSanitizer struct {
	policy *bluemonday.Policy
}

// NewContentSanitizer はContentSanitizerServiceの新しいインスタンスを生成する。
// ClickUpのタスク説明はMarkdown由来の軽いHTMLを含むことがあるため、
// 基本的な整形タグのみを許可する。
//   - 許可タグ: p, br, ul, ol, li, blockquote, pre, code, strong, em, a
//   - aタグ: href属性のみ、target="_blank" と rel="noopener noreferrer" を強制付与
//   - script, iframe, style および on* イベント属性は許可リスト外のため除去される
func NewContentSanitizer() *contentSanitizer {
	p := bluemonday.NewPolicy()

	p.AllowElements(
		"p", "br", "ul", "ol", "li",
		"blockquote", "pre", "code",
		"strong", "em",
	)

	p.AllowAttrs("href").OnElements("a")
	p.AllowStandardURLs()
	p.AllowRelativeURLs(false)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)

	return &contentSanitizer{
		policy: p,
	}
}

// Sanitize は説明文をサニタイズして安全な文字列を返す。
func (s *contentSanitizer) Sanitize(raw string) string {
	return s.policy.Sanitize(raw)
}

// compile-time interface check
var _ ContentSanitizerService = (*contentSanitizer)(nil)
