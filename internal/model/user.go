// Package model はドメインモデルを定義する。
package model

import "time"

// Role はユーザーの役割を表す閉じた列挙型。
// トークンのroleクレームに埋め込まれ、認可判定で参照される。
type Role string

const (
	// RoleMember は通常の登録ユーザーを表す。
	RoleMember Role = "member"
	// RoleAdmin は管理者を表す。
	RoleAdmin Role = "admin"
)

// IsValid は定義済みの役割かどうかを返す。
func (r Role) IsValid() bool {
	switch r {
	case RoleMember, RoleAdmin:
		return true
	default:
		return false
	}
}

// User はサービス利用ユーザーを表す。
// PasswordHashはbcryptによる一方向ハッシュであり、平文は保持しない。
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TokenIdentity は検証済みトークンから解決された識別情報を表す。
// 認証ミドルウェアがリクエストコンテキストに注入し、
// ハンドラーと認可判定から参照される。
type TokenIdentity struct {
	UserID string
	Role   Role
}

// SessionRecord はセッションレジストリのエントリを表す。
// トークン文字列をキーとし、有効期限はトークン自身のexpと一致する。
// SessionRecordがトークンの埋め込み期限より長生きすることはない。
type SessionRecord struct {
	Token     string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}
