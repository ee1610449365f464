package middleware

import (
	"net/http"
	"strings"

	"github.com/hitoshi/planman/internal/model"
)

// Requirement はルートが要求する認証レベルを表す。
type Requirement int

const (
	// Public は匿名アクセスを許可する。
	Public Requirement = iota
	// AuthenticatedRequired は検証済み識別情報を必須とする。
	AuthenticatedRequired
)

// PolicyRule はパスパターンと要求レベルの組を表す。
// パターンは前方一致で、"{"以降はワイルドカードとして扱う。
type PolicyRule struct {
	Method      string // 空文字列は全メソッドに一致
	Pattern     string
	Requirement Requirement
}

// RoutePolicy は順序付きのルートポリシーテーブル。
// 上から順に評価し、最初に一致した規則を適用する（first-match-wins）。
// どの規則にも一致しないパスはAuthenticatedRequiredとして扱う。
type RoutePolicy struct {
	rules []PolicyRule
}

// NewRoutePolicy はRoutePolicyを生成する。
func NewRoutePolicy(rules []PolicyRule) *RoutePolicy {
	return &RoutePolicy{rules: rules}
}

// Resolve はメソッドとパスに適用される要求レベルを返す。
func (p *RoutePolicy) Resolve(method, path string) Requirement {
	for _, rule := range p.rules {
		if rule.Method != "" && rule.Method != method {
			continue
		}
		if matchPattern(rule.Pattern, path) {
			return rule.Requirement
		}
	}
	// 未掲載のルートはデフォルトで認証必須
	return AuthenticatedRequired
}

// matchPattern はパスパターンとリクエストパスを照合する。
// パターン中の"{"以降はパスパラメーターとして任意の1セグメントに一致する。
func matchPattern(pattern, path string) bool {
	if idx := strings.Index(pattern, "{"); idx >= 0 {
		prefix := pattern[:idx]
		if !strings.HasPrefix(path, prefix) {
			return false
		}
		rest := path[len(prefix):]
		return rest != "" && !strings.Contains(rest, "/")
	}
	return pattern == path
}

// NewAuthorizationMiddleware はルートポリシーを適用するミドルウェアを返す。
// 認証ミドルウェアの後段に配置し、AuthenticatedRequiredなルートに
// 識別情報なしで到達したリクエストをハンドラー実行前に401で拒否する。
func NewAuthorizationMiddleware(policy *RoutePolicy) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if policy.Resolve(r.Method, r.URL.Path) == AuthenticatedRequired {
				if IdentityFromContext(r.Context()) == nil {
					WriteErrorResponse(w, http.StatusUnauthorized, model.NewAuthenticationRequiredError())
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
