// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/planman/internal/model"
)

// ストア制約違反を表すセンチネルエラー。
var (
	// ErrDuplicateEmail はメールアドレスのUNIQUE制約違反を表す。
	ErrDuplicateEmail = errors.New("email already exists")
	// ErrGuestKeyConflict はゲストキーのUNIQUE制約違反を表す。
	// 事前の存在確認は行わず、ストアの制約を衝突検出の唯一の根拠とする。
	ErrGuestKeyConflict = errors.New("guest key already exists")
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// Create はユーザーを作成する。
	// メールアドレスが重複している場合はErrDuplicateEmailを返す。
	Create(ctx context.Context, user *model.User) error
}

// SessionRepository はセッションレジストリの永続化インターフェース。
// トークン文字列をキーとし、期限切れエントリは読み取りから不可視となる。
type SessionRepository interface {
	// Create はセッションレコードを作成する。
	// 有効期限はトークンの埋め込みexpと一致させること。
	Create(ctx context.Context, record *model.SessionRecord) error

	// FindByToken は指定トークンのレコードを取得する。
	// 存在しない、または期限切れの場合はnilを返す。
	FindByToken(ctx context.Context, tokenString string) (*model.SessionRecord, error)

	// DeleteByToken は指定トークンのレコードを削除する（ログアウト・失効）。
	DeleteByToken(ctx context.Context, tokenString string) error

	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
}

// PlanRepository は予定データの永続化インターフェース。
// 所有状態の遷移（クレーム）は単一トランザクションで原子的に行う。
type PlanRepository interface {
	// Create は予定を詳細サブレコードごと作成する。
	// ゲストキーが衝突した場合はErrGuestKeyConflictを返す。
	Create(ctx context.Context, plan *model.Plan) error

	// FindByID は指定IDの予定を詳細付きで取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Plan, error)

	// FindByGuestKey はゲストキーで予定を検索する。
	// キーが存在しない（クレーム済みを含む）場合はnilを返す。
	FindByGuestKey(ctx context.Context, guestKey string) (*model.Plan, error)

	// ListByUserID は指定ユーザーが所有する予定の一覧を開始時刻順で返す。
	ListByUserID(ctx context.Context, userID string) ([]*model.Plan, error)

	// ListByUserIDAndRange は指定ユーザーの予定のうち、開始時刻が
	// [from, to) に含まれるものを返す。
	ListByUserIDAndRange(ctx context.Context, userID string, from, to time.Time) ([]*model.Plan, error)

	// UpdateFields は予定のタイトル・時刻・詳細を更新する。
	// 所有状態には触れない。対象が存在しない場合はfalseを返す。
	UpdateFields(ctx context.Context, plan *model.Plan) (bool, error)

	// UpdateFieldsByGuestKey はゲストキーで特定した予定のフィールドを更新する。
	// 所有状態には触れない。キーが存在しない場合はnilを返す。
	UpdateFieldsByGuestKey(ctx context.Context, guestKey string, plan *model.Plan) (*model.Plan, error)

	// ClaimAndUpdate はゲストキーで特定した予定の所有権をuserIDへ原子的に移し、
	// 同一トランザクションでフィールドを更新する。
	// ゲストキーのクリアと所有者の設定が別々に観測されることはない。
	// キーが存在しない（既にクレーム済みを含む）場合はnilを返す。
	ClaimAndUpdate(ctx context.Context, guestKey, userID string, plan *model.Plan) (*model.Plan, error)

	// Delete は指定IDの予定を削除する。詳細サブレコードはCASCADE削除される。
	// 対象が存在しない場合はfalseを返す。
	Delete(ctx context.Context, id string) (bool, error)
}
