// Package plan は予定リソースのビジネスロジックと
// ゲストプランの所有権移転（クレーム）プロトコルを提供する。
package plan

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/planman/internal/metrics"
	"github.com/hitoshi/planman/internal/model"
	"github.com/hitoshi/planman/internal/repository"
	"github.com/hitoshi/planman/internal/security"
)

// SaveInput は保存エンドポイントが受け取る予定フィールドを表す。
type SaveInput struct {
	PlanID          string // 会員による既存予定の更新時のみ使用
	Title           string
	Start           *time.Time
	End             *time.Time
	Content         string
	ConversationRef string
}

// Service は予定に関するビジネスロジックを提供する。
type Service struct {
	planRepo  repository.PlanRepository
	sanitizer security.ContentSanitizerService
	collector metrics.MetricsCollector
}

// NewService はServiceを生成する。collectorはnilでもよい。
func NewService(
	planRepo repository.PlanRepository,
	sanitizer security.ContentSanitizerService,
	collector metrics.MetricsCollector,
) *Service {
	return &Service{
		planRepo:  planRepo,
		sanitizer: sanitizer,
		collector: collector,
	}
}

// StartGuestPlan は認証なしで新しいゲストプランを開始する。
// ゲストキーは暗号論的乱数源から生成し、一意性はストアのUNIQUE制約を根拠とする。
// 衝突した場合は新しいキーで1回だけ再試行し、それでも衝突する場合は
// 乱数源の異常としてKEY_COLLISIONエラーを返す。
func (s *Service) StartGuestPlan(ctx context.Context) (*model.Plan, error) {
	for attempt := 0; attempt < 2; attempt++ {
		guestKey := uuid.New().String()
		plan := &model.Plan{
			ID:        uuid.New().String(),
			GuestKey:  &guestKey,
			CreatedAt: time.Now(),
		}

		err := s.planRepo.Create(ctx, plan)
		if err == nil {
			slog.Info("guest plan started", slog.String("plan_id", plan.ID))
			return plan, nil
		}
		if err != repository.ErrGuestKeyConflict {
			return nil, fmt.Errorf("failed to create guest plan: %w", err)
		}

		slog.Warn("guest key collision, retrying with a fresh key",
			slog.Int("attempt", attempt+1),
		)
	}

	return nil, model.NewKeyCollisionError()
}

// Save は予定の作成・更新・クレームを1つの経路で処理する。
//
//   - ゲストキーあり + 識別情報あり: クレーム。所有権の移転とフィールド更新を
//     単一トランザクションで原子的に行う。
//   - ゲストキーのみ: ゲストのままのフィールド更新。所有状態は変化しない。
//   - 識別情報のみ: 新しいOwnedプランの作成（PlanID指定時は既存予定の更新）。
//   - どちらもなし: INVALID_REQUEST。
func (s *Service) Save(ctx context.Context, input SaveInput, identityID, guestKey *string) (*model.Plan, error) {
	fields := s.buildFields(input)

	if guestKey != nil && *guestKey != "" {
		if identityID != nil {
			return s.claim(ctx, *guestKey, *identityID, fields)
		}

		updated, err := s.planRepo.UpdateFieldsByGuestKey(ctx, *guestKey, fields)
		if err != nil {
			return nil, fmt.Errorf("failed to update guest plan: %w", err)
		}
		if updated == nil {
			// クレーム済みの予定は旧ゲストキーからは到達できない
			return nil, model.NewGuestKeyNotFoundError()
		}
		return updated, nil
	}

	if identityID != nil {
		if input.PlanID != "" {
			return s.Update(ctx, input.PlanID, input, *identityID)
		}

		fields.ID = uuid.New().String()
		fields.UserID = identityID
		fields.CreatedAt = time.Now()
		if err := s.planRepo.Create(ctx, fields); err != nil {
			return nil, fmt.Errorf("failed to create owned plan: %w", err)
		}
		slog.Info("owned plan created",
			slog.String("plan_id", fields.ID),
			slog.String("user_id", *identityID),
		)
		return fields, nil
	}

	return nil, model.NewInvalidRequestError("ゲストキーとログイン状態のどちらも指定されていません")
}

// claim はゲストプランの所有権をidentityIDへ移す。
func (s *Service) claim(ctx context.Context, guestKey, identityID string, fields *model.Plan) (*model.Plan, error) {
	claimed, err := s.planRepo.ClaimAndUpdate(ctx, guestKey, identityID, fields)
	if err != nil {
		return nil, fmt.Errorf("failed to claim plan: %w", err)
	}
	if claimed == nil {
		// 並行するクレームに敗れた場合もここに到達する
		return nil, model.NewGuestKeyNotFoundError()
	}

	if s.collector != nil {
		s.collector.RecordPlanClaimed()
	}
	slog.Info("guest plan claimed",
		slog.String("plan_id", claimed.ID),
		slog.String("user_id", identityID),
	)
	return claimed, nil
}

// Update は会員所有の予定のフィールドを更新する。
// 所有者以外はForbidden、ゲスト所有の予定はこの経路では編集できない。
func (s *Service) Update(ctx context.Context, planID string, input SaveInput, identityID string) (*model.Plan, error) {
	current, err := s.planRepo.FindByID(ctx, planID)
	if err != nil {
		return nil, fmt.Errorf("failed to find plan: %w", err)
	}
	if current == nil {
		return nil, model.NewPlanNotFoundError(planID)
	}
	if !current.Owned() {
		return nil, model.NewGuestPlanNotEditableError()
	}
	if !current.OwnedBy(identityID) {
		return nil, model.NewForbiddenError()
	}

	fields := s.buildFields(input)
	fields.ID = planID

	ok, err := s.planRepo.UpdateFields(ctx, fields)
	if err != nil {
		return nil, fmt.Errorf("failed to update plan: %w", err)
	}
	if !ok {
		return nil, model.NewPlanNotFoundError(planID)
	}

	fields.UserID = current.UserID
	fields.CreatedAt = current.CreatedAt
	return fields, nil
}

// Delete は会員所有の予定を削除する。所有権の判定はUpdateと同一。
func (s *Service) Delete(ctx context.Context, planID, identityID string) error {
	current, err := s.planRepo.FindByID(ctx, planID)
	if err != nil {
		return fmt.Errorf("failed to find plan: %w", err)
	}
	if current == nil {
		return model.NewPlanNotFoundError(planID)
	}
	if !current.Owned() {
		return model.NewGuestPlanNotEditableError()
	}
	if !current.OwnedBy(identityID) {
		return model.NewForbiddenError()
	}

	deleted, err := s.planRepo.Delete(ctx, planID)
	if err != nil {
		return fmt.Errorf("failed to delete plan: %w", err)
	}
	if !deleted {
		return model.NewPlanNotFoundError(planID)
	}

	slog.Info("plan deleted",
		slog.String("plan_id", planID),
		slog.String("user_id", identityID),
	)
	return nil
}

// List は識別情報が所有する予定の一覧を返す。
func (s *Service) List(ctx context.Context, identityID string) ([]*model.Plan, error) {
	plans, err := s.planRepo.ListByUserID(ctx, identityID)
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	return plans, nil
}

// ListByDate は指定日（その日の0時から24時間）に開始する予定の一覧を返す。
func (s *Service) ListByDate(ctx context.Context, identityID string, date time.Time) ([]*model.Plan, error) {
	from := date.Truncate(24 * time.Hour)
	plans, err := s.planRepo.ListByUserIDAndRange(ctx, identityID, from, from.Add(24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("failed to list plans by date: %w", err)
	}
	return plans, nil
}

// Detail は予定を詳細付きで返す。
// 未検出と所有者不一致は区別せず、どちらもPLAN_NOT_FOUNDを返す。
func (s *Service) Detail(ctx context.Context, planID, identityID string) (*model.Plan, error) {
	current, err := s.planRepo.FindByID(ctx, planID)
	if err != nil {
		return nil, fmt.Errorf("failed to find plan: %w", err)
	}
	if current == nil || !current.OwnedBy(identityID) {
		return nil, model.NewPlanNotFoundError(planID)
	}
	return current, nil
}

// ResolveForExport はエクスポート対象の予定を解決する。
//
//   - 識別情報 + 予定ID: 所有者一致を要求する。不一致はForbidden。
//   - ゲストキーのみ: 所有状態がまだGuest(key)であることを要求する。
//     クレーム済みの予定は旧キーでは解決できない。
//   - それ以外の組み合わせ: INVALID_REQUEST。
func (s *Service) ResolveForExport(ctx context.Context, planID, guestKey string, identityID *string) (*model.Plan, error) {
	switch {
	case identityID != nil && planID != "":
		current, err := s.planRepo.FindByID(ctx, planID)
		if err != nil {
			return nil, fmt.Errorf("failed to find plan: %w", err)
		}
		if current == nil {
			return nil, model.NewPlanNotFoundError(planID)
		}
		if !current.OwnedBy(*identityID) {
			return nil, model.NewForbiddenError()
		}
		return current, nil

	case identityID == nil && guestKey != "":
		current, err := s.planRepo.FindByGuestKey(ctx, guestKey)
		if err != nil {
			return nil, fmt.Errorf("failed to find plan by guest key: %w", err)
		}
		if current == nil {
			return nil, model.NewGuestKeyNotFoundError()
		}
		return current, nil

	default:
		return nil, model.NewInvalidRequestError("予定IDとログイン状態の組、またはゲストキーを指定してください")
	}
}

// buildFields は入力をサニタイズ済みの予定フィールドに変換する。
// コンテンツと会話参照がどちらも空の場合、詳細サブレコードは持たない。
func (s *Service) buildFields(input SaveInput) *model.Plan {
	fields := &model.Plan{
		Title: s.sanitizer.SanitizeText(input.Title),
		Start: input.Start,
		End:   input.End,
	}
	content := s.sanitizer.SanitizeContent(input.Content)
	if content != "" || input.ConversationRef != "" {
		fields.Detail = &model.PlanDetail{
			Content:         content,
			ConversationRef: input.ConversationRef,
		}
	}
	return fields
}
