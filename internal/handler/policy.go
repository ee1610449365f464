package handler

import (
	"net/http"

	"github.com/hitoshi/planman/internal/middleware"
)

// DefaultRoutePolicy は全APIエンドポイントのルートポリシーテーブルを返す。
//
// テーブルは上から順に評価される。掲載されていないルートはすべて
// 認証必須として扱われるため、エンドポイントの追加漏れは
// 「誤って公開される」のではなく「誤って閉じる」方向に倒れる。
func DefaultRoutePolicy() *middleware.RoutePolicy {
	return middleware.NewRoutePolicy([]middleware.PolicyRule{
		// アカウント
		{Method: http.MethodPost, Pattern: "/api/users/register", Requirement: middleware.Public},
		{Method: http.MethodGet, Pattern: "/api/users/email_check", Requirement: middleware.Public},
		{Method: http.MethodPost, Pattern: "/api/users/login", Requirement: middleware.Public},
		{Method: http.MethodPost, Pattern: "/api/users/logout", Requirement: middleware.Public},
		{Method: http.MethodGet, Pattern: "/api/users/logincheck", Requirement: middleware.Public},

		// ゲストフロー（匿名のまま予定を作成・保存できる）
		{Method: http.MethodPost, Pattern: "/plans/start", Requirement: middleware.Public},
		{Method: http.MethodPost, Pattern: "/plans/save", Requirement: middleware.Public},

		// エクスポート（ゲストキーでもアクセスできる）
		{Method: http.MethodGet, Pattern: "/plans/export/pdf", Requirement: middleware.Public},
		{Method: http.MethodGet, Pattern: "/plans/export/jpg", Requirement: middleware.Public},

		// 運用エンドポイント
		{Method: http.MethodGet, Pattern: "/health", Requirement: middleware.Public},
		{Method: http.MethodGet, Pattern: "/metrics", Requirement: middleware.Public},

		// 会員専用の予定操作
		{Method: http.MethodGet, Pattern: "/plans/get_plans", Requirement: middleware.AuthenticatedRequired},
		{Method: http.MethodGet, Pattern: "/plans/get_plans_by_date", Requirement: middleware.AuthenticatedRequired},
		{Method: http.MethodGet, Pattern: "/plans/get_detail_plans", Requirement: middleware.AuthenticatedRequired},
		{Method: http.MethodPut, Pattern: "/plans/update/{id}", Requirement: middleware.AuthenticatedRequired},
		{Method: http.MethodDelete, Pattern: "/plans/delete/{id}", Requirement: middleware.AuthenticatedRequired},
	})
}
