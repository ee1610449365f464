package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/planman/internal/middleware"
	"github.com/hitoshi/planman/internal/model"
	"github.com/hitoshi/planman/internal/plan"
)

// PlanServiceInterface は予定ハンドラーが必要とするサービスインターフェース。
type PlanServiceInterface interface {
	// StartGuestPlan は認証なしで新しいゲストプランを開始する。
	StartGuestPlan(ctx context.Context) (*model.Plan, error)
	// Save はゲストキーまたは識別情報に基づいて予定を保存する。
	Save(ctx context.Context, input plan.SaveInput, identityID, guestKey *string) (*model.Plan, error)
	// Update は会員所有の既存予定を更新する。
	Update(ctx context.Context, planID string, input plan.SaveInput, identityID string) (*model.Plan, error)
	// Delete は会員所有の予定を削除する。
	Delete(ctx context.Context, planID, identityID string) error
	// List は会員の全予定を返す。
	List(ctx context.Context, identityID string) ([]*model.Plan, error)
	// ListByDate は指定日の予定を返す。
	ListByDate(ctx context.Context, identityID string, date time.Time) ([]*model.Plan, error)
	// Detail は予定の詳細を返す。
	Detail(ctx context.Context, planID, identityID string) (*model.Plan, error)
}

// PlanHandler は予定管理のHTTPハンドラー。
type PlanHandler struct {
	service PlanServiceInterface
}

// NewPlanHandler はPlanHandlerを生成する。
func NewPlanHandler(service PlanServiceInterface) *PlanHandler {
	return &PlanHandler{service: service}
}

// savePlanRequest は予定保存リクエストのボディ。
// start/endはRFC3339形式の文字列で、省略可能。
type savePlanRequest struct {
	PlanID          string `json:"plan_id"`
	GuestKey        string `json:"guest_key"`
	Title           string `json:"title"`
	Start           string `json:"start"`
	End             string `json:"end"`
	Content         string `json:"content"`
	ConversationRef string `json:"conversation_ref"`
}

// toSaveInput はリクエストボディをサービス入力に変換する。
func (req *savePlanRequest) toSaveInput() (plan.SaveInput, error) {
	start, err := parseOptionalTime(req.Start)
	if err != nil {
		return plan.SaveInput{}, model.NewInvalidRequestError("startの形式が正しくありません（RFC3339）")
	}
	end, err := parseOptionalTime(req.End)
	if err != nil {
		return plan.SaveInput{}, model.NewInvalidRequestError("endの形式が正しくありません（RFC3339）")
	}
	return plan.SaveInput{
		PlanID:          req.PlanID,
		Title:           req.Title,
		Start:           start,
		End:             end,
		Content:         req.Content,
		ConversationRef: req.ConversationRef,
	}, nil
}

func parseOptionalTime(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// startPlanResponse はゲストプラン開始のレスポンス。
type startPlanResponse struct {
	PlanID   string `json:"plan_id"`
	GuestKey string `json:"guest_key"`
}

// Start は新しいゲストプランを開始する。
// POST /plans/start
func (h *PlanHandler) Start(w http.ResponseWriter, r *http.Request) {
	created, err := h.service.StartGuestPlan(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	guestKey := ""
	if created.GuestKey != nil {
		guestKey = *created.GuestKey
	}
	writeJSONResponse(w, http.StatusCreated, startPlanResponse{
		PlanID:   created.ID,
		GuestKey: guestKey,
	})
}

// Save は予定を保存する。匿名リクエストはguest_keyで、認証済み
// リクエストは識別情報で所有権を解決する。guest_keyを添えた
// 認証済みリクエストは保存と同時に所有権の引き渡しを行う。
// POST /plans/save
func (h *PlanHandler) Save(w http.ResponseWriter, r *http.Request) {
	var req savePlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidBodyResponse(w)
		return
	}

	input, err := req.toSaveInput()
	if err != nil {
		handleServiceError(w, err)
		return
	}

	var identityID *string
	if identity := middleware.IdentityFromContext(r.Context()); identity != nil {
		identityID = &identity.UserID
	}
	var guestKey *string
	if req.GuestKey != "" {
		guestKey = &req.GuestKey
	}

	saved, err := h.service.Save(r.Context(), input, identityID, guestKey)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, toPlanResponse(saved))
}

// List は会員の全予定を返す。予定がない場合は204を返す。
// GET /plans/get_plans
func (h *PlanHandler) List(w http.ResponseWriter, r *http.Request) {
	identity := middleware.IdentityFromContext(r.Context())
	if identity == nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewAuthenticationRequiredError())
		return
	}

	plans, err := h.service.List(r.Context(), identity.UserID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writePlanList(w, plans)
}

// ListByDate は指定日の予定を返す。予定がない場合は204を返す。
// GET /plans/get_plans_by_date?date=YYYY-MM-DD
func (h *PlanHandler) ListByDate(w http.ResponseWriter, r *http.Request) {
	identity := middleware.IdentityFromContext(r.Context())
	if identity == nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewAuthenticationRequiredError())
		return
	}

	date, err := time.Parse("2006-01-02", r.URL.Query().Get("date"))
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidRequestError("dateパラメーターはYYYY-MM-DD形式で指定してください"))
		return
	}

	plans, err := h.service.ListByDate(r.Context(), identity.UserID, date)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writePlanList(w, plans)
}

// Detail は予定の詳細を返す。
// 他人の予定は存在の有無を含めて404で隠す。
// GET /plans/get_detail_plans?plandetails={id}
func (h *PlanHandler) Detail(w http.ResponseWriter, r *http.Request) {
	identity := middleware.IdentityFromContext(r.Context())
	if identity == nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewAuthenticationRequiredError())
		return
	}

	planID := r.URL.Query().Get("plandetails")
	if planID == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidRequestError("plandetailsパラメーターが必要です"))
		return
	}

	detail, err := h.service.Detail(r.Context(), planID, identity.UserID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, toPlanResponse(detail))
}

// Update は会員所有の既存予定を更新する。
// PUT /plans/update/{id}
func (h *PlanHandler) Update(w http.ResponseWriter, r *http.Request) {
	identity := middleware.IdentityFromContext(r.Context())
	if identity == nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewAuthenticationRequiredError())
		return
	}

	planID := chi.URLParam(r, "id")

	var req savePlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidBodyResponse(w)
		return
	}

	input, err := req.toSaveInput()
	if err != nil {
		handleServiceError(w, err)
		return
	}

	updated, err := h.service.Update(r.Context(), planID, input, identity.UserID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, toPlanResponse(updated))
}

// Delete は会員所有の予定を削除する。
// DELETE /plans/delete/{id}
func (h *PlanHandler) Delete(w http.ResponseWriter, r *http.Request) {
	identity := middleware.IdentityFromContext(r.Context())
	if identity == nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewAuthenticationRequiredError())
		return
	}

	planID := chi.URLParam(r, "id")

	if err := h.service.Delete(r.Context(), planID, identity.UserID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// writePlanList は予定一覧を書き込む。空の場合は204を返す。
func writePlanList(w http.ResponseWriter, plans []*model.Plan) {
	if len(plans) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	responses := make([]planResponse, 0, len(plans))
	for _, p := range plans {
		responses = append(responses, toPlanResponse(p))
	}
	writeJSONResponse(w, http.StatusOK, responses)
}
