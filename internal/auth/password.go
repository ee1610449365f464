// Package auth は資格情報検証、トークン発行、セッション管理を提供する。
package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Hasher はbcryptによるパスワードハッシュの生成と照合を行う。
type Hasher struct {
	cost int

	// dummyHash はアカウント不存在時のタイミング差を埋めるための照合用ハッシュ。
	// 実ハッシュと同じコストで生成し、未知のメールアドレスに対しても
	// 必ず1回bcrypt照合を行うことで応答時間からアカウントの有無を推測できないようにする。
	dummyHash string
}

// NewHasher はHasherを生成する。コストが範囲外の場合はbcryptのデフォルトを使う。
func NewHasher(cost int) (*Hasher, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte("planman-dummy-credential"), cost)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare dummy hash: %w", err)
	}
	return &Hasher{cost: cost, dummyHash: string(dummy)}, nil
}

// CompareDummy はダミーハッシュに対する照合を行う。結果は常に破棄される。
func (h *Hasher) CompareDummy(password string) {
	_ = bcrypt.CompareHashAndPassword([]byte(h.dummyHash), []byte(password))
}

// Hash は平文パスワードのbcryptハッシュを返す。
func (h *Hasher) Hash(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashed), nil
}

// Compare は保存されたハッシュと平文パスワードを照合する。
// 一致しない場合はfalseを返す。
func (h *Hasher) Compare(hashedPassword, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password)) == nil
}
