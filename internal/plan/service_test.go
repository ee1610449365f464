package plan

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/planman/internal/model"
	"github.com/hitoshi/planman/internal/repository"
	"github.com/hitoshi/planman/internal/security"
)

// --- インメモリフェイク ---

// memPlanRepo はミューテックスで保護されたインメモリのPlanRepository。
// クレームの「ちょうど1回」の性質をDBなしで検証するために使う。
type memPlanRepo struct {
	mu    sync.Mutex
	plans map[string]*model.Plan // id -> plan
}

func newMemPlanRepo() *memPlanRepo {
	return &memPlanRepo{plans: make(map[string]*model.Plan)}
}

func (m *memPlanRepo) Create(ctx context.Context, plan *model.Plan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if plan.GuestKey != nil {
		for _, p := range m.plans {
			if p.GuestKey != nil && *p.GuestKey == *plan.GuestKey {
				return repository.ErrGuestKeyConflict
			}
		}
	}
	copied := *plan
	m.plans[plan.ID] = &copied
	return nil
}

func (m *memPlanRepo) FindByID(ctx context.Context, id string) (*model.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.plans[id]; ok {
		copied := *p
		return &copied, nil
	}
	return nil, nil
}

func (m *memPlanRepo) FindByGuestKey(ctx context.Context, guestKey string) (*model.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.plans {
		if p.GuestKey != nil && *p.GuestKey == guestKey {
			copied := *p
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *memPlanRepo) ListByUserID(ctx context.Context, userID string) ([]*model.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Plan
	for _, p := range m.plans {
		if p.OwnedBy(userID) {
			copied := *p
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (m *memPlanRepo) ListByUserIDAndRange(ctx context.Context, userID string, from, to time.Time) ([]*model.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Plan
	for _, p := range m.plans {
		if p.OwnedBy(userID) && p.Start != nil && !p.Start.Before(from) && p.Start.Before(to) {
			copied := *p
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (m *memPlanRepo) UpdateFields(ctx context.Context, plan *model.Plan) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.plans[plan.ID]
	if !ok {
		return false, nil
	}
	p.Title = plan.Title
	p.Start = plan.Start
	p.End = plan.End
	p.Detail = plan.Detail
	return true, nil
}

func (m *memPlanRepo) UpdateFieldsByGuestKey(ctx context.Context, guestKey string, plan *model.Plan) (*model.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.plans {
		if p.GuestKey != nil && *p.GuestKey == guestKey {
			p.Title = plan.Title
			p.Start = plan.Start
			p.End = plan.End
			p.Detail = plan.Detail
			copied := *p
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *memPlanRepo) ClaimAndUpdate(ctx context.Context, guestKey, userID string, plan *model.Plan) (*model.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.plans {
		if p.GuestKey != nil && *p.GuestKey == guestKey {
			p.UserID = &userID
			p.GuestKey = nil
			p.Title = plan.Title
			p.Start = plan.Start
			p.End = plan.End
			p.Detail = plan.Detail
			copied := *p
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *memPlanRepo) Delete(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.plans[id]; !ok {
		return false, nil
	}
	delete(m.plans, id)
	return true, nil
}

// compile-time interface check
var _ repository.PlanRepository = (*memPlanRepo)(nil)

// --- テストヘルパー ---

func newTestService(repo repository.PlanRepository) *Service {
	return NewService(repo, security.NewContentSanitizer(), nil)
}

func apiErrCode(t *testing.T, err error) string {
	t.Helper()
	apiErr, ok := err.(*model.APIError)
	if !ok {
		t.Fatalf("expected APIError, got %T: %v", err, err)
	}
	return apiErr.Code
}

func strPtr(s string) *string { return &s }

// --- テスト ---

func TestStartGuestPlan_CreatesGuestPlan(t *testing.T) {
	ctx := context.Background()
	repo := newMemPlanRepo()
	svc := newTestService(repo)

	plan, err := svc.StartGuestPlan(ctx)
	if err != nil {
		t.Fatalf("StartGuestPlan() error = %v", err)
	}

	if plan.ID == "" {
		t.Error("expected non-empty plan ID")
	}
	if plan.GuestKey == nil || *plan.GuestKey == "" {
		t.Fatal("expected non-empty guest key")
	}
	if plan.Owned() {
		t.Error("expected guest state")
	}
}

func TestStartGuestPlan_RetriesOnceOnCollision(t *testing.T) {
	ctx := context.Background()

	calls := 0
	repo := &mockPlanRepo{
		createFn: func(ctx context.Context, plan *model.Plan) error {
			calls++
			if calls == 1 {
				return repository.ErrGuestKeyConflict
			}
			return nil
		},
	}
	svc := newTestService(repo)

	plan, err := svc.StartGuestPlan(ctx)
	if err != nil {
		t.Fatalf("StartGuestPlan() error = %v", err)
	}
	if plan == nil {
		t.Fatal("expected plan after retry")
	}
	if calls != 2 {
		t.Errorf("create calls = %d, want 2", calls)
	}
}

func TestStartGuestPlan_PersistentCollision_ReturnsKeyCollision(t *testing.T) {
	ctx := context.Background()

	repo := &mockPlanRepo{
		createFn: func(ctx context.Context, plan *model.Plan) error {
			return repository.ErrGuestKeyConflict
		},
	}
	svc := newTestService(repo)

	_, err := svc.StartGuestPlan(ctx)
	if code := apiErrCode(t, err); code != model.ErrCodeKeyCollision {
		t.Errorf("error code = %q, want %q", code, model.ErrCodeKeyCollision)
	}
}

// ゲスト開始 → ゲスト保存 → ログイン後の再保存でクレーム、という
// 本流シナリオの往復を検証する。
func TestSave_GuestRoundTripThenClaim(t *testing.T) {
	ctx := context.Background()
	repo := newMemPlanRepo()
	svc := newTestService(repo)

	started, err := svc.StartGuestPlan(ctx)
	if err != nil {
		t.Fatalf("StartGuestPlan() error = %v", err)
	}
	guestKey := *started.GuestKey

	// ゲストのまま保存: 所有状態は変化しない
	saved, err := svc.Save(ctx, SaveInput{Title: "旅行"}, nil, &guestKey)
	if err != nil {
		t.Fatalf("guest Save() error = %v", err)
	}
	if saved.Owned() {
		t.Error("guest save must not change ownership")
	}
	if saved.GuestKey == nil || *saved.GuestKey != guestKey {
		t.Error("guest key must survive a guest save")
	}
	if saved.Title != "旅行" {
		t.Errorf("title = %q, want %q", saved.Title, "旅行")
	}

	// 認証後の再保存: クレームが成立する
	claimed, err := svc.Save(ctx, SaveInput{Title: "旅行"}, strPtr("user-42"), &guestKey)
	if err != nil {
		t.Fatalf("claiming Save() error = %v", err)
	}
	if !claimed.OwnedBy("user-42") {
		t.Errorf("claimed.UserID = %v, want user-42", claimed.UserID)
	}
	if claimed.GuestKey != nil {
		t.Error("guest key must be nil after claim")
	}
	if claimed.Title != "旅行" {
		t.Errorf("title lost during claim: %q", claimed.Title)
	}

	// 別の識別情報による二度目のクレームはPLAN_NOT_FOUND
	_, err = svc.Save(ctx, SaveInput{Title: "乗っ取り"}, strPtr("user-99"), &guestKey)
	if code := apiErrCode(t, err); code != model.ErrCodePlanNotFound {
		t.Errorf("second claim error code = %q, want %q", code, model.ErrCodePlanNotFound)
	}
}

func TestSave_IdentityOnly_CreatesOwnedPlan(t *testing.T) {
	ctx := context.Background()
	repo := newMemPlanRepo()
	svc := newTestService(repo)

	start := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	plan, err := svc.Save(ctx, SaveInput{
		Title:   "打合せ",
		Start:   &start,
		End:     &end,
		Content: "<p>議題</p>",
	}, strPtr("user-1"), nil)
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if !plan.OwnedBy("user-1") {
		t.Error("expected owned plan")
	}
	if plan.GuestKey != nil {
		t.Error("owned plan must not carry a guest key")
	}
	if plan.Detail == nil || plan.Detail.Content != "<p>議題</p>" {
		t.Errorf("unexpected detail: %+v", plan.Detail)
	}
}

func TestSave_NeitherIdentityNorGuestKey_ReturnsInvalidRequest(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(newMemPlanRepo())

	_, err := svc.Save(ctx, SaveInput{Title: "x"}, nil, nil)
	if code := apiErrCode(t, err); code != model.ErrCodeInvalidRequest {
		t.Errorf("error code = %q, want %q", code, model.ErrCodeInvalidRequest)
	}

	empty := ""
	_, err = svc.Save(ctx, SaveInput{Title: "x"}, nil, &empty)
	if code := apiErrCode(t, err); code != model.ErrCodeInvalidRequest {
		t.Errorf("error code = %q, want %q", code, model.ErrCodeInvalidRequest)
	}
}

func TestSave_SanitizesContent(t *testing.T) {
	ctx := context.Background()
	repo := newMemPlanRepo()
	svc := newTestService(repo)

	plan, err := svc.Save(ctx, SaveInput{
		Title:   `<b>予定</b>`,
		Content: `<p>メモ</p><script>alert(1)</script>`,
	}, strPtr("user-1"), nil)
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if strings.Contains(plan.Title, "<") {
		t.Errorf("title not stripped: %q", plan.Title)
	}
	if plan.Detail == nil || strings.Contains(plan.Detail.Content, "script") {
		t.Errorf("content not sanitized: %+v", plan.Detail)
	}
}

// 同一ゲストキーへの並行クレームでちょうど1人だけが勝つことを検証する。
func TestSave_ConcurrentClaims_ExactlyOneWinner(t *testing.T) {
	ctx := context.Background()
	repo := newMemPlanRepo()
	svc := newTestService(repo)

	started, err := svc.StartGuestPlan(ctx)
	if err != nil {
		t.Fatalf("StartGuestPlan() error = %v", err)
	}
	guestKey := *started.GuestKey

	const claimers = 10
	var wg sync.WaitGroup
	errs := make([]error, claimers)
	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			userID := "user-" + string(rune('a'+i))
			_, errs[i] = svc.Save(ctx, SaveInput{Title: "争奪"}, &userID, &guestKey)
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
			continue
		}
		if code := apiErrCode(t, err); code != model.ErrCodePlanNotFound {
			t.Errorf("loser error code = %q, want %q", code, model.ErrCodePlanNotFound)
		}
	}
	if winners != 1 {
		t.Errorf("winners = %d, want exactly 1", winners)
	}
}

func TestUpdate_OwnerMismatch_ReturnsForbidden(t *testing.T) {
	ctx := context.Background()
	repo := newMemPlanRepo()
	svc := newTestService(repo)

	plan, err := svc.Save(ctx, SaveInput{Title: "本人の予定"}, strPtr("owner"), nil)
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	_, err = svc.Update(ctx, plan.ID, SaveInput{Title: "改ざん"}, "intruder")
	if code := apiErrCode(t, err); code != model.ErrCodeForbidden {
		t.Errorf("error code = %q, want %q", code, model.ErrCodeForbidden)
	}

	// 元の予定は変化していない
	got, _ := repo.FindByID(ctx, plan.ID)
	if got.Title != "本人の予定" {
		t.Errorf("title = %q, want unchanged", got.Title)
	}
}

func TestUpdate_GuestOwnedPlan_ReturnsForbidden(t *testing.T) {
	ctx := context.Background()
	repo := newMemPlanRepo()
	svc := newTestService(repo)

	started, err := svc.StartGuestPlan(ctx)
	if err != nil {
		t.Fatalf("StartGuestPlan() error = %v", err)
	}

	// ゲスト所有の予定は会員更新経路では編集できない
	_, err = svc.Update(ctx, started.ID, SaveInput{Title: "x"}, "user-1")
	if code := apiErrCode(t, err); code != model.ErrCodeForbidden {
		t.Errorf("error code = %q, want %q", code, model.ErrCodeForbidden)
	}
}

// 同一フィールドでの更新を2回適用しても結果が変わらないこと（冪等性）を検証
func TestUpdate_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := newMemPlanRepo()
	svc := newTestService(repo)

	plan, err := svc.Save(ctx, SaveInput{Title: "v1"}, strPtr("user-1"), nil)
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	input := SaveInput{Title: "v2", Content: "<p>memo</p>"}
	first, err := svc.Update(ctx, plan.ID, input, "user-1")
	if err != nil {
		t.Fatalf("first Update() error = %v", err)
	}
	second, err := svc.Update(ctx, plan.ID, input, "user-1")
	if err != nil {
		t.Fatalf("second Update() error = %v", err)
	}

	if first.Title != second.Title || first.Detail.Content != second.Detail.Content {
		t.Errorf("update not idempotent: %+v vs %+v", first, second)
	}
}

func TestDelete_RemovesOwnedPlan(t *testing.T) {
	ctx := context.Background()
	repo := newMemPlanRepo()
	svc := newTestService(repo)

	plan, err := svc.Save(ctx, SaveInput{Title: "消す予定"}, strPtr("user-1"), nil)
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if err := svc.Delete(ctx, plan.ID, "user-1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	got, _ := repo.FindByID(ctx, plan.ID)
	if got != nil {
		t.Error("expected plan to be deleted")
	}

	// 既に存在しない予定の削除はPLAN_NOT_FOUND
	err = svc.Delete(ctx, plan.ID, "user-1")
	if code := apiErrCode(t, err); code != model.ErrCodePlanNotFound {
		t.Errorf("error code = %q, want %q", code, model.ErrCodePlanNotFound)
	}
}

func TestDelete_OwnerMismatch_ReturnsForbidden(t *testing.T) {
	ctx := context.Background()
	repo := newMemPlanRepo()
	svc := newTestService(repo)

	plan, err := svc.Save(ctx, SaveInput{Title: "本人の予定"}, strPtr("owner"), nil)
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	err = svc.Delete(ctx, plan.ID, "intruder")
	if code := apiErrCode(t, err); code != model.ErrCodeForbidden {
		t.Errorf("error code = %q, want %q", code, model.ErrCodeForbidden)
	}
}

func TestDetail_CrossOwner_ReturnsPlanNotFound(t *testing.T) {
	ctx := context.Background()
	repo := newMemPlanRepo()
	svc := newTestService(repo)

	plan, err := svc.Save(ctx, SaveInput{Title: "秘密の予定", Content: "<p>場所</p>"}, strPtr("owner"), nil)
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	// 所有者本人は詳細を取得できる
	got, err := svc.Detail(ctx, plan.ID, "owner")
	if err != nil {
		t.Fatalf("Detail() error = %v", err)
	}
	if got.Detail == nil || got.Detail.Content != "<p>場所</p>" {
		t.Errorf("unexpected detail: %+v", got.Detail)
	}

	// 他人には存在自体を漏らさない
	_, err = svc.Detail(ctx, plan.ID, "intruder")
	if code := apiErrCode(t, err); code != model.ErrCodePlanNotFound {
		t.Errorf("error code = %q, want %q", code, model.ErrCodePlanNotFound)
	}
}

func TestListByDate_FiltersBySingleDay(t *testing.T) {
	ctx := context.Background()
	repo := newMemPlanRepo()
	svc := newTestService(repo)

	day := time.Date(2026, 5, 20, 0, 0, 0, 0, time.UTC)
	mk := func(title string, start time.Time) {
		t.Helper()
		if _, err := svc.Save(ctx, SaveInput{Title: title, Start: &start}, strPtr("user-1"), nil); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}
	mk("前日", day.Add(-time.Hour))
	mk("当日", day.Add(12*time.Hour))
	mk("翌日", day.Add(24*time.Hour))

	plans, err := svc.ListByDate(ctx, "user-1", day)
	if err != nil {
		t.Fatalf("ListByDate() error = %v", err)
	}
	if len(plans) != 1 || plans[0].Title != "当日" {
		t.Errorf("unexpected result: %+v", plans)
	}
}

func TestResolveForExport(t *testing.T) {
	ctx := context.Background()
	repo := newMemPlanRepo()
	svc := newTestService(repo)

	owned, err := svc.Save(ctx, SaveInput{Title: "会員の予定"}, strPtr("owner"), nil)
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	guest, err := svc.StartGuestPlan(ctx)
	if err != nil {
		t.Fatalf("StartGuestPlan() error = %v", err)
	}
	guestKey := *guest.GuestKey

	// 識別情報 + 予定ID: 所有者一致で解決
	got, err := svc.ResolveForExport(ctx, owned.ID, "", strPtr("owner"))
	if err != nil {
		t.Fatalf("ResolveForExport() error = %v", err)
	}
	if got.ID != owned.ID {
		t.Errorf("resolved wrong plan: %q", got.ID)
	}

	// 所有者不一致はForbidden
	_, err = svc.ResolveForExport(ctx, owned.ID, "", strPtr("intruder"))
	if code := apiErrCode(t, err); code != model.ErrCodeForbidden {
		t.Errorf("error code = %q, want %q", code, model.ErrCodeForbidden)
	}

	// ゲストキーのみ: Guest状態の予定を解決
	got, err = svc.ResolveForExport(ctx, "", guestKey, nil)
	if err != nil {
		t.Fatalf("ResolveForExport() by guest key error = %v", err)
	}
	if got.ID != guest.ID {
		t.Errorf("resolved wrong plan: %q", got.ID)
	}

	// クレーム済みの予定は旧ゲストキーでは解決できない
	if _, err := svc.Save(ctx, SaveInput{Title: "claimed"}, strPtr("owner"), &guestKey); err != nil {
		t.Fatalf("claiming Save() error = %v", err)
	}
	_, err = svc.ResolveForExport(ctx, "", guestKey, nil)
	if code := apiErrCode(t, err); code != model.ErrCodePlanNotFound {
		t.Errorf("error code = %q, want %q", code, model.ErrCodePlanNotFound)
	}

	// 不正な組み合わせはINVALID_REQUEST
	_, err = svc.ResolveForExport(ctx, "", "", nil)
	if code := apiErrCode(t, err); code != model.ErrCodeInvalidRequest {
		t.Errorf("error code = %q, want %q", code, model.ErrCodeInvalidRequest)
	}
}

// --- 関数フィールド式モック（エラー経路用） ---

type mockPlanRepo struct {
	createFn func(ctx context.Context, plan *model.Plan) error
}

func (m *mockPlanRepo) Create(ctx context.Context, plan *model.Plan) error {
	if m.createFn != nil {
		return m.createFn(ctx, plan)
	}
	return nil
}

func (m *mockPlanRepo) FindByID(ctx context.Context, id string) (*model.Plan, error) {
	return nil, nil
}

func (m *mockPlanRepo) FindByGuestKey(ctx context.Context, guestKey string) (*model.Plan, error) {
	return nil, nil
}

func (m *mockPlanRepo) ListByUserID(ctx context.Context, userID string) ([]*model.Plan, error) {
	return nil, nil
}

func (m *mockPlanRepo) ListByUserIDAndRange(ctx context.Context, userID string, from, to time.Time) ([]*model.Plan, error) {
	return nil, nil
}

func (m *mockPlanRepo) UpdateFields(ctx context.Context, plan *model.Plan) (bool, error) {
	return false, nil
}

func (m *mockPlanRepo) UpdateFieldsByGuestKey(ctx context.Context, guestKey string, plan *model.Plan) (*model.Plan, error) {
	return nil, nil
}

func (m *mockPlanRepo) ClaimAndUpdate(ctx context.Context, guestKey, userID string, plan *model.Plan) (*model.Plan, error) {
	return nil, nil
}

func (m *mockPlanRepo) Delete(ctx context.Context, id string) (bool, error) {
	return false, nil
}

// compile-time interface check
var _ repository.PlanRepository = (*mockPlanRepo)(nil)
