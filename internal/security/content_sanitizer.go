// Package security はアプリケーションのセキュリティ機能を提供する。
//
// ContentSanitizerService は予定詳細の自由記述コンテンツをサニタイズし、
// XSS攻撃などのセキュリティリスクからユーザーを保護する。
// bluemondayライブラリを使用した許可リストベースのポリシーで、
// 安全なタグのみを通過させる。
package security

import (
	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizerService はコンテンツのサニタイズ機能のインターフェースを定義する。
// 予定詳細の保存前に使用される。
type ContentSanitizerService interface {
	// SanitizeContent は詳細コンテンツをサニタイズして安全なHTMLを返す。
	// 許可タグ（p, br, ul, ol, li, blockquote, pre, code, strong, em）のみを通過させ、
	// script, iframe, styleタグおよびon*イベント属性を除去する。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	SanitizeContent(raw string) string

	// SanitizeText はタイトルなどの短いテキストから全てのタグを除去する。
	SanitizeText(raw string) string
}

// contentSanitizer はContentSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type contentSanitizer struct {
	content *bluemonday.Policy
	text    *bluemonday.Policy
}

// NewContentSanitizer はContentSanitizerServiceの新しいインスタンスを生成する。
// 初期化時にbluemondayのカスタムポリシーを構築する。
// ポリシーの内容:
//   - 詳細コンテンツ: p, br, ul, ol, li, blockquote, pre, code, strong, em のみ許可
//   - script, iframe, style および全てのon*イベント属性は許可リスト外として除去
//   - テキストフィールド: 全タグを除去するStrictPolicy
func NewContentSanitizer() *contentSanitizer {
	p := bluemonday.NewPolicy()
	p.AllowElements(
		"p", "br", "ul", "ol", "li",
		"blockquote", "pre", "code",
		"strong", "em",
	)

	return &contentSanitizer{
		content: p,
		text:    bluemonday.StrictPolicy(),
	}
}

// SanitizeContent は詳細コンテンツをサニタイズして安全なHTMLを返す。
func (s *contentSanitizer) SanitizeContent(raw string) string {
	return s.content.Sanitize(raw)
}

// SanitizeText は全てのタグを除去したテキストを返す。
func (s *contentSanitizer) SanitizeText(raw string) string {
	return s.text.Sanitize(raw)
}

// compile-time interface check
var _ ContentSanitizerService = (*contentSanitizer)(nil)
