package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/planman/internal/model"
)

// PostgresPlanRepo はPostgreSQLを使用した予定リポジトリ。
type PostgresPlanRepo struct {
	db *sql.DB
}

// NewPostgresPlanRepo はPostgresPlanRepoを生成する。
func NewPostgresPlanRepo(db *sql.DB) *PostgresPlanRepo {
	return &PostgresPlanRepo{db: db}
}

// planColumns は予定と詳細をLEFT JOINで取得するSELECT句。
const planColumns = `
	p.id, p.title, p.start_time, p.end_time, p.user_id, p.guest_key, p.created_at,
	d.content, d.conversation_ref`

// scanPlan は1行をPlanへ読み取る。詳細サブレコードがない場合はDetailはnilのまま。
func scanPlan(scanner interface{ Scan(dest ...interface{}) error }) (*model.Plan, error) {
	plan := &model.Plan{}
	var content, conversationRef sql.NullString
	err := scanner.Scan(
		&plan.ID, &plan.Title, &plan.Start, &plan.End,
		&plan.UserID, &plan.GuestKey, &plan.CreatedAt,
		&content, &conversationRef,
	)
	if err != nil {
		return nil, err
	}
	if content.Valid {
		plan.Detail = &model.PlanDetail{
			PlanID:          plan.ID,
			Content:         content.String,
			ConversationRef: conversationRef.String,
		}
	}
	return plan, nil
}

// Create は予定を詳細サブレコードごと作成する。
// ゲストキーが衝突した場合はErrGuestKeyConflictを返す。
func (r *PostgresPlanRepo) Create(ctx context.Context, plan *model.Plan) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// 予定を作成
	_, err = tx.ExecContext(ctx,
		`INSERT INTO plans (id, title, start_time, end_time, user_id, guest_key, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		plan.ID, plan.Title, plan.Start, plan.End, plan.UserID, plan.GuestKey, plan.CreatedAt,
	)
	if isUniqueViolation(err) {
		return ErrGuestKeyConflict
	}
	if err != nil {
		return fmt.Errorf("failed to insert plan: %w", err)
	}

	// 詳細サブレコードを作成
	if plan.Detail != nil {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO plan_details (plan_id, content, conversation_ref)
			 VALUES ($1, $2, $3)`,
			plan.ID, plan.Detail.Content, plan.Detail.ConversationRef,
		)
		if err != nil {
			return fmt.Errorf("failed to insert plan detail: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// FindByID は指定IDの予定を詳細付きで取得する。見つからない場合はnilを返す。
func (r *PostgresPlanRepo) FindByID(ctx context.Context, id string) (*model.Plan, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+planColumns+`
		 FROM plans p
		 LEFT JOIN plan_details d ON d.plan_id = p.id
		 WHERE p.id = $1`,
		id,
	)
	plan, err := scanPlan(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find plan by ID: %w", err)
	}
	return plan, nil
}

// FindByGuestKey はゲストキーで予定を検索する。
// キーが存在しない（クレーム済みを含む）場合はnilを返す。
func (r *PostgresPlanRepo) FindByGuestKey(ctx context.Context, guestKey string) (*model.Plan, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+planColumns+`
		 FROM plans p
		 LEFT JOIN plan_details d ON d.plan_id = p.id
		 WHERE p.guest_key = $1`,
		guestKey,
	)
	plan, err := scanPlan(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find plan by guest key: %w", err)
	}
	return plan, nil
}

// ListByUserID は指定ユーザーが所有する予定の一覧を開始時刻順で返す。
func (r *PostgresPlanRepo) ListByUserID(ctx context.Context, userID string) ([]*model.Plan, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+planColumns+`
		 FROM plans p
		 LEFT JOIN plan_details d ON d.plan_id = p.id
		 WHERE p.user_id = $1
		 ORDER BY p.start_time, p.id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	defer rows.Close()

	return collectPlans(rows)
}

// ListByUserIDAndRange は指定ユーザーの予定のうち、開始時刻が
// [from, to) に含まれるものを開始時刻順で返す。
func (r *PostgresPlanRepo) ListByUserIDAndRange(ctx context.Context, userID string, from, to time.Time) ([]*model.Plan, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+planColumns+`
		 FROM plans p
		 LEFT JOIN plan_details d ON d.plan_id = p.id
		 WHERE p.user_id = $1 AND p.start_time >= $2 AND p.start_time < $3
		 ORDER BY p.start_time, p.id`,
		userID, from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list plans by range: %w", err)
	}
	defer rows.Close()

	return collectPlans(rows)
}

func collectPlans(rows *sql.Rows) ([]*model.Plan, error) {
	var plans []*model.Plan
	for rows.Next() {
		plan, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan plan: %w", err)
		}
		plans = append(plans, plan)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate plans: %w", err)
	}
	return plans, nil
}

// UpdateFields は予定のタイトル・時刻・詳細を更新する。
// 所有状態には触れない。対象が存在しない場合はfalseを返す。
func (r *PostgresPlanRepo) UpdateFields(ctx context.Context, plan *model.Plan) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`UPDATE plans SET title = $2, start_time = $3, end_time = $4 WHERE id = $1`,
		plan.ID, plan.Title, plan.Start, plan.End,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update plan: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return false, nil
	}

	if err := upsertDetail(ctx, tx, plan.ID, plan.Detail); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return true, nil
}

// UpdateFieldsByGuestKey はゲストキーで特定した予定のフィールドを更新する。
// 所有状態には触れない。キーが存在しない場合はnilを返す。
func (r *PostgresPlanRepo) UpdateFieldsByGuestKey(ctx context.Context, guestKey string, plan *model.Plan) (*model.Plan, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	updated := &model.Plan{GuestKey: &guestKey}
	err = tx.QueryRowContext(ctx,
		`UPDATE plans SET title = $2, start_time = $3, end_time = $4
		 WHERE guest_key = $1
		 RETURNING id, title, start_time, end_time, user_id, created_at`,
		guestKey, plan.Title, plan.Start, plan.End,
	).Scan(&updated.ID, &updated.Title, &updated.Start, &updated.End, &updated.UserID, &updated.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update plan by guest key: %w", err)
	}

	if err := upsertDetail(ctx, tx, updated.ID, plan.Detail); err != nil {
		return nil, err
	}
	updated.Detail = detailFor(updated.ID, plan.Detail)

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return updated, nil
}

// ClaimAndUpdate はゲストキーで特定した予定の所有権をuserIDへ原子的に移し、
// 同一トランザクションでフィールドを更新する。
// ゲストキーのクリアと所有者の設定は単一のUPDATE文で行われ、
// 中間状態が観測されることはない。
// キーが存在しない（既にクレーム済みを含む）場合はnilを返す。
func (r *PostgresPlanRepo) ClaimAndUpdate(ctx context.Context, guestKey, userID string, plan *model.Plan) (*model.Plan, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	claimed := &model.Plan{UserID: &userID}
	err = tx.QueryRowContext(ctx,
		`UPDATE plans SET user_id = $2, guest_key = NULL, title = $3, start_time = $4, end_time = $5
		 WHERE guest_key = $1
		 RETURNING id, title, start_time, end_time, created_at`,
		guestKey, userID, plan.Title, plan.Start, plan.End,
	).Scan(&claimed.ID, &claimed.Title, &claimed.Start, &claimed.End, &claimed.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim plan: %w", err)
	}

	if err := upsertDetail(ctx, tx, claimed.ID, plan.Detail); err != nil {
		return nil, err
	}
	claimed.Detail = detailFor(claimed.ID, plan.Detail)

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return claimed, nil
}

// Delete は指定IDの予定を削除する。詳細サブレコードはCASCADE削除される。
// 対象が存在しない場合はfalseを返す。
func (r *PostgresPlanRepo) Delete(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM plans WHERE id = $1`,
		id,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete plan: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// upsertDetail は詳細サブレコードを更新する。detailがnilの場合は削除する。
func upsertDetail(ctx context.Context, tx *sql.Tx, planID string, detail *model.PlanDetail) error {
	if detail == nil {
		_, err := tx.ExecContext(ctx,
			`DELETE FROM plan_details WHERE plan_id = $1`,
			planID,
		)
		if err != nil {
			return fmt.Errorf("failed to delete plan detail: %w", err)
		}
		return nil
	}

	_, err := tx.ExecContext(ctx,
		`INSERT INTO plan_details (plan_id, content, conversation_ref)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (plan_id) DO UPDATE SET content = $2, conversation_ref = $3`,
		planID, detail.Content, detail.ConversationRef,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert plan detail: %w", err)
	}
	return nil
}

func detailFor(planID string, detail *model.PlanDetail) *model.PlanDetail {
	if detail == nil {
		return nil
	}
	return &model.PlanDetail{
		PlanID:          planID,
		Content:         detail.Content,
		ConversationRef: detail.ConversationRef,
	}
}

// compile-time interface check
var _ PlanRepository = (*PostgresPlanRepo)(nil)
