// Package model はドメインモデルを定義する。
package model

import "time"

// Plan は保護対象リソースである予定を表す。
//
// 所有状態はOwned（UserID非nil）とGuest（GuestKey非nil）の排他的二状態で、
// 両方が同時にセットされること、両方が空になることはない。
// DBのCHECK制約がこの不変条件を強制する。
type Plan struct {
	ID        string
	Title     string
	CreatedAt time.Time

	// Start, End は予定の開始・終了時刻。作成直後のプランでは未設定（nil）。
	Start *time.Time
	End   *time.Time

	// UserID は所有者のユーザーID。ゲスト状態の間はnil。
	UserID *string
	// GuestKey は匿名プランを識別する不透明キー。クレーム後はnil。
	GuestKey *string

	// Detail は1対1の詳細サブレコード。プランとライフサイクルを共有する。
	Detail *PlanDetail
}

// PlanDetail はプランの詳細サブレコードを表す。
// 自由記述のコンテンツと外部会話参照IDを保持し、
// 親プランの作成・更新・削除と同時に処理される。
type PlanDetail struct {
	PlanID          string
	Content         string
	ConversationRef string
}

// Owned はプランが認証済みユーザーに所有されているかを返す。
func (p *Plan) Owned() bool {
	return p.UserID != nil
}

// OwnedBy は指定ユーザーがこのプランの所有者であるかを返す。
// ゲスト状態のプランには常にfalseを返す。
func (p *Plan) OwnedBy(userID string) bool {
	return p.UserID != nil && *p.UserID == userID
}
