// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, plan, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthenticated        = "UNAUTHENTICATED"
	ErrCodeAuthenticationRequired = "AUTHENTICATION_REQUIRED"
	ErrCodeForbidden              = "FORBIDDEN"
	ErrCodePlanNotFound           = "PLAN_NOT_FOUND"
	ErrCodeInvalidRequest         = "INVALID_REQUEST"
	ErrCodeKeyCollision           = "KEY_COLLISION"
	ErrCodeEmailTaken             = "EMAIL_TAKEN"
)

// NewUnauthenticatedError はログイン失敗エラーを生成する。
// アカウントの存在有無と誤パスワードを区別しない単一のメッセージを返す。
func NewUnauthenticatedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthenticated,
		Message:  "メールアドレスまたはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認して再度お試しください。",
	}
}

// NewAuthenticationRequiredError は認証必須ルートに未認証でアクセスした場合のエラーを生成する。
func NewAuthenticationRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeAuthenticationRequired,
		Message:  "ログインが必要です。（会員専用機能）",
		Category: "auth",
		Action:   "ログインしてから再度お試しください。",
	}
}

// NewForbiddenError は所有者以外によるリソース操作のエラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "この予定を操作する権限がありません。",
		Category: "auth",
		Action:   "自分が作成した予定のみ操作できます。",
	}
}

// NewGuestPlanNotEditableError はゲスト所有プランを会員経路で直接編集しようとした場合のエラーを生成する。
// 所有者不一致のForbiddenとは理由を区別する。
func NewGuestPlanNotEditableError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "ゲストの予定は会員編集の対象ではありません。",
		Category: "auth",
		Action:   "ゲストキーを添えて保存エンドポイントから更新してください。",
	}
}

// NewPlanNotFoundError は予定未検出エラーを生成する。
func NewPlanNotFoundError(planID string) *APIError {
	return &APIError{
		Code:     ErrCodePlanNotFound,
		Message:  fmt.Sprintf("指定された予定が見つかりません: %s", planID),
		Category: "plan",
		Action:   "予定IDを確認してください。",
	}
}

// NewGuestKeyNotFoundError はゲストキーに対応する予定が存在しない場合のエラーを生成する。
// クレーム済みの予定は旧ゲストキーからは到達できない。
func NewGuestKeyNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodePlanNotFound,
		Message:  "指定されたゲストキーに対応する予定が見つかりません。",
		Category: "plan",
		Action:   "新しい予定を開始するか、ログインして保存済みの予定を参照してください。",
	}
}

// NewInvalidRequestError は識別情報とゲストキーの不正な組み合わせのエラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("リクエストが不正です: %s", reason),
		Category: "validation",
		Action:   "ゲストキーまたはログイン状態のいずれかを添えてリクエストしてください。",
	}
}

// NewKeyCollisionError はゲストキー生成の衝突が再試行後も解消しない場合のエラーを生成する。
// 乱数源の異常を示唆するため、発生時はアラート対象となる。
func NewKeyCollisionError() *APIError {
	return &APIError{
		Code:     ErrCodeKeyCollision,
		Message:  "ゲストキーの生成に失敗しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewEmailTakenError はメールアドレス重複エラーを生成する。
func NewEmailTakenError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailTaken,
		Message:  "このメールアドレスは既に登録されています。",
		Category: "validation",
		Action:   "別のメールアドレスを使用するか、ログインしてください。",
	}
}
