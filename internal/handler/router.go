package handler

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/planman/internal/metrics"
	"github.com/hitoshi/planman/internal/middleware"
	"github.com/hitoshi/planman/internal/token"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	TokenCodec        *token.Codec
	SessionFinder     middleware.SessionFinder // nilの場合セッションレジストリ照会をスキップ
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger
	Policy            *middleware.RoutePolicy

	// サービス
	AuthService    AuthServiceInterface
	PlanService    PlanServiceInterface
	ExportResolver ExportResolver

	// 監視
	Collector metrics.MetricsCollector
	Gatherer  prometheus.Gatherer // /metrics の出力元。nilの場合エンドポイントを公開しない
	DB        *sql.DB             // ヘルスチェックの疎通確認に使う。nil可
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → Logging → Metrics → Auth → RateLimit(General) → Authorization
//
// 認証ミドルウェアはリクエストを拒否せず、認可の判断はルートポリシーが行う。
// ログイン専用レート制限は POST /api/users/login のみに追加で適用する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	if deps.Logger != nil {
		r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	}
	if deps.Collector != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.Collector))
	}
	r.Use(middleware.NewAuthMiddleware(deps.TokenCodec, deps.SessionFinder, deps.Collector))
	if deps.RateLimiter != nil {
		r.Use(deps.RateLimiter.GeneralMiddleware())
	}
	r.Use(middleware.NewAuthorizationMiddleware(deps.Policy))

	userHandler := NewUserHandler(deps.AuthService, deps.Collector)
	planHandler := NewPlanHandler(deps.PlanService)
	exportHandler := NewExportHandler(deps.ExportResolver, deps.Collector)

	// アカウント管理
	r.Route("/api/users", func(r chi.Router) {
		if deps.RateLimiter != nil {
			r.With(deps.RateLimiter.LoginMiddleware()).Post("/login", userHandler.Login)
		} else {
			r.Post("/login", userHandler.Login)
		}
		r.Post("/register", userHandler.Register)
		r.Get("/email_check", userHandler.EmailCheck)
		r.Post("/logout", userHandler.Logout)
		r.Get("/logincheck", userHandler.LoginCheck)
	})

	// 予定管理
	r.Route("/plans", func(r chi.Router) {
		// ゲストフロー
		r.Post("/start", planHandler.Start)
		r.Post("/save", planHandler.Save)

		// 会員専用
		r.Get("/get_plans", planHandler.List)
		r.Get("/get_plans_by_date", planHandler.ListByDate)
		r.Get("/get_detail_plans", planHandler.Detail)
		r.Put("/update/{id}", planHandler.Update)
		r.Delete("/delete/{id}", planHandler.Delete)

		// エクスポート
		r.Route("/export", func(r chi.Router) {
			r.Get("/pdf", exportHandler.ExportPDF)
			r.Get("/jpg", exportHandler.ExportJPG)
		})
	})

	// 運用エンドポイント
	r.Get("/health", healthHandler(deps.DB))
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))
	}

	return r
}

// healthHandler はヘルスチェックハンドラーを返す。
// DBが設定されている場合は疎通確認も行う。
func healthHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			if err := db.PingContext(r.Context()); err != nil {
				slog.Error("health check failed", slog.String("error", err.Error()))
				writeJSONResponse(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
				return
			}
		}
		writeJSONResponse(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
