// Package token は署名付き・期限付きの識別トークンの発行と検証を提供する。
//
// トークンはHS256で署名されたJWTで、クレームは {sub: ユーザーID, role: 役割,
// iat: 発行時刻, exp: 有効期限} の単一の正準セットに統一されている。
// 発行・検証ともに純粋なCPU処理であり、I/Oを行わない。
// 署名鍵は起動時に1回読み込まれ、以降変更されない。
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/planman/internal/model"
)

const issuer = "planman"

// 検証失敗の型付きエラー。
// 認証ミドルウェアはいずれのエラーも「匿名として継続」に縮退させるため、
// 呼び出し側でリクエストを落とす判断には使用しない。
var (
	// ErrMalformed はトークンが構造的に不正な場合のエラー。
	ErrMalformed = errors.New("token is malformed")
	// ErrSignatureInvalid は署名が一致しない場合のエラー。
	ErrSignatureInvalid = errors.New("token signature is invalid")
	// ErrExpired は埋め込みの有効期限が過ぎている場合のエラー。
	ErrExpired = errors.New("token is expired")
)

// Claims はトークンに埋め込むクレームセット。
// subjectにユーザーID、roleに役割を保持する。
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role,omitempty"`
}

// Codec はトークンの発行と検証を行う。
// 状態を持たないため、並行呼び出しに対して安全。
type Codec struct {
	signingKey []byte
	ttl        time.Duration
}

// NewCodec はCodecを生成する。
// signingKeyはプロセス全体で共有される署名鍵、ttlは発行するトークンの有効期間。
func NewCodec(signingKey []byte, ttl time.Duration) *Codec {
	return &Codec{
		signingKey: signingKey,
		ttl:        ttl,
	}
}

// TTL は発行するトークンの有効期間を返す。
// セッションレジストリのTTLはこの値と一致させる。
func (c *Codec) TTL() time.Duration {
	return c.ttl
}

// Issue は指定ユーザーの署名付きトークンを発行する。
// 戻り値はトークン文字列と埋め込まれた有効期限。
func (c *Codec) Issue(userID string, role model.Role) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(c.ttl)

	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Role: string(role),
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString(c.signingKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}

	return signed, expiresAt, nil
}

// Verify はトークン文字列を検証し、解決された識別情報を返す。
// 失敗は ErrMalformed / ErrSignatureInvalid / ErrExpired のいずれかに分類される。
// 期限切れの判定は署名の一致可否に関わらず優先される。
func (c *Codec) Verify(tokenString string) (*model.TokenIdentity, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return c.signingKey, nil
	}, jwt.WithIssuer(issuer))

	if err != nil {
		return nil, c.classifyError(tokenString, err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrMalformed
	}

	return &model.TokenIdentity{
		UserID: claims.Subject,
		Role:   model.Role(claims.Role),
	}, nil
}

// classifyError はjwtライブラリの検証エラーを型付きエラーに分類する。
// 署名不一致の場合でも、未検証クレームのexpが過ぎていればErrExpiredを返す。
func (c *Codec) classifyError(tokenString string, err error) error {
	if errors.Is(err, jwt.ErrTokenExpired) {
		return ErrExpired
	}

	if errors.Is(err, jwt.ErrTokenSignatureInvalid) {
		if expiredUnverified(tokenString) {
			return ErrExpired
		}
		return ErrSignatureInvalid
	}

	return ErrMalformed
}

// expiredUnverified は署名を検証せずにexpクレームの超過のみを判定する。
func expiredUnverified(tokenString string) bool {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return false
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return claims.ExpiresAt.Before(time.Now())
}
