package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/hitoshi/planman/internal/auth"
	"github.com/hitoshi/planman/internal/metrics"
	"github.com/hitoshi/planman/internal/middleware"
	"github.com/hitoshi/planman/internal/model"
)

// AuthServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	// Register は新規ユーザーを登録する。
	Register(ctx context.Context, email, password string) (*model.User, error)
	// EmailAvailable はメールアドレスが未登録かどうかを返す。
	EmailAvailable(ctx context.Context, email string) (bool, error)
	// Login は資格情報を検証しトークンを発行する。
	Login(ctx context.Context, email, password string) (*auth.LoginResult, error)
	// Logout はトークンに対応するセッションを失効させる。
	Logout(ctx context.Context, tokenString string) error
	// SessionAlive はトークンのセッションがレジストリで生きているかを返す。
	SessionAlive(ctx context.Context, tokenString string) (bool, error)
}

// UserHandler はアカウント管理のHTTPハンドラー。
type UserHandler struct {
	service   AuthServiceInterface
	collector metrics.MetricsCollector
}

// NewUserHandler はUserHandlerを生成する。collectorはnilでもよい。
func NewUserHandler(service AuthServiceInterface, collector metrics.MetricsCollector) *UserHandler {
	return &UserHandler{
		service:   service,
		collector: collector,
	}
}

// credentialsRequest は登録・ログインリクエストのボディ。
type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// registerResponse はユーザー登録成功のレスポンス。
type registerResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// loginResponse はログイン成功のレスポンス。
type loginResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
}

// Register は新規ユーザー登録を処理する。
// POST /api/users/register
func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidBodyResponse(w)
		return
	}

	user, err := h.service.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, registerResponse{
		ID:    user.ID,
		Email: user.Email,
	})
}

// EmailCheck はメールアドレスの登録可否を返す。
// GET /api/users/email_check?email=
func (h *UserHandler) EmailCheck(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if email == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidRequestError("emailパラメーターが必要です"))
		return
	}

	available, err := h.service.EmailAvailable(r.Context(), email)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]bool{"available": available})
}

// Login は資格情報を検証しベアラートークンを発行する。
// POST /api/users/login
func (h *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidBodyResponse(w)
		return
	}

	result, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if h.collector != nil {
			h.collector.RecordLoginFailure()
		}
		handleServiceError(w, err)
		return
	}

	if h.collector != nil {
		h.collector.RecordLoginSuccess()
	}
	writeJSONResponse(w, http.StatusOK, loginResponse{
		Token:     result.Token,
		ExpiresAt: result.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

// Logout はトークンに対応するセッションを失効させる。
// トークンがない・すでに失効済みでも成功を返す（冪等）。
// POST /api/users/logout
func (h *UserHandler) Logout(w http.ResponseWriter, r *http.Request) {
	tokenString := middleware.BearerTokenFromContext(r.Context())

	if err := h.service.Logout(r.Context(), tokenString); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// LoginCheck は現在のリクエストの認証状態を返す。
// 認証済みかつセッションがレジストリで生きていれば"users"、それ以外は"Guest"。
// セッション照会はミドルウェアの検証設定に関わらずここで必ず行う。
// GET /api/users/logincheck
func (h *UserHandler) LoginCheck(w http.ResponseWriter, r *http.Request) {
	status := "Guest"
	if middleware.IdentityFromContext(r.Context()) != nil {
		alive, err := h.service.SessionAlive(r.Context(), middleware.BearerTokenFromContext(r.Context()))
		if err != nil {
			handleServiceError(w, err)
			return
		}
		if alive {
			status = "users"
		}
	}

	writeJSONResponse(w, http.StatusOK, map[string]string{"status": status})
}
