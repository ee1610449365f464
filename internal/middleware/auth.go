// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/planman/internal/metrics"
	"github.com/hitoshi/planman/internal/model"
	"github.com/hitoshi/planman/internal/token"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// identityContextKey はリクエストコンテキストに検証済み識別情報を格納するためのキー。
var identityContextKey = contextKey("identity")

// bearerTokenContextKey は生のベアラートークン文字列を格納するためのキー。
// ログアウトとlogincheckがセッションレジストリの照会に使う。
var bearerTokenContextKey = contextKey("bearer_token")

// SessionFinder はセッションレジストリの照会に必要なインターフェース。
// repository.SessionRepositoryの部分集合として定義する。
type SessionFinder interface {
	FindByToken(ctx context.Context, tokenString string) (*model.SessionRecord, error)
}

// NewAuthMiddleware はAuthorizationヘッダーのベアラートークンを検証し、
// 解決した識別情報をリクエストコンテキストに注入するミドルウェアを返す。
//
// このミドルウェアはリクエストを拒否しない。トークンの欠落・不正・期限切れは
// すべて「匿名」に縮退し、認可の判断は後段のルートポリシーに委ねる。
// sessionFinderが非nilの場合、検証済みトークンに対応するセッションレコードが
// レジストリに生きていることを追加で要求する（ログアウト済みトークンの失効）。
func NewAuthMiddleware(codec *token.Codec, sessionFinder SessionFinder, collector metrics.MetricsCollector) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := extractBearerToken(r)
			if tokenString == "" {
				next.ServeHTTP(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), bearerTokenContextKey, tokenString)

			identity, err := codec.Verify(tokenString)
			if err != nil {
				// 検証失敗は匿名として続行。リクエストを落とさない。
				if collector != nil {
					collector.RecordTokenVerifyFailure(verifyFailureReason(err))
				}
				slog.Debug("token verification failed, treating as anonymous",
					slog.String("reason", verifyFailureReason(err)),
				)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			if sessionFinder != nil {
				record, err := sessionFinder.FindByToken(ctx, tokenString)
				if err != nil {
					slog.Error("failed to check session registry",
						slog.String("error", err.Error()),
					)
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				}
				if record == nil {
					// ログアウト等で失効したトークンは匿名扱い
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				}
			}

			ctx = context.WithValue(ctx, identityContextKey, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IdentityFromContext はリクエストコンテキストから検証済み識別情報を取得する。
// 匿名リクエストではnilを返す。
func IdentityFromContext(ctx context.Context) *model.TokenIdentity {
	identity, ok := ctx.Value(identityContextKey).(*model.TokenIdentity)
	if !ok {
		return nil
	}
	return identity
}

// ContextWithIdentity はコンテキストに識別情報を注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithIdentity(ctx context.Context, identity *model.TokenIdentity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}

// ContextWithBearerToken はコンテキストに生のベアラートークンを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithBearerToken(ctx context.Context, tokenString string) context.Context {
	return context.WithValue(ctx, bearerTokenContextKey, tokenString)
}

// BearerTokenFromContext はリクエストコンテキストから生のベアラートークンを取得する。
// Authorizationヘッダーがなかった場合は空文字列を返す。
func BearerTokenFromContext(ctx context.Context) string {
	tokenString, _ := ctx.Value(bearerTokenContextKey).(string)
	return tokenString
}

// extractBearerToken はAuthorizationヘッダーからベアラートークンを取り出す。
func extractBearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

// verifyFailureReason は検証エラーをメトリクス用の理由ラベルに変換する。
func verifyFailureReason(err error) string {
	switch {
	case errors.Is(err, token.ErrExpired):
		return "expired"
	case errors.Is(err, token.ErrSignatureInvalid):
		return "signature_invalid"
	default:
		return "malformed"
	}
}
