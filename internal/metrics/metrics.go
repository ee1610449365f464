// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層とミドルウェアから利用する。
type MetricsCollector interface {
	RecordLoginSuccess()
	RecordLoginFailure()
	RecordTokenVerifyFailure(reason string)
	RecordPlanClaimed()
	RecordExport(format string)
	RecordHTTPStatus(statusCode int)
	RecordSessionsPurged(count int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	loginSuccess    prometheus.Counter
	loginFail       prometheus.Counter
	tokenVerifyFail *prometheus.CounterVec
	plansClaimed    prometheus.Counter
	exports         *prometheus.CounterVec
	httpStatus      *prometheus.CounterVec
	sessionsPurged  prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		loginSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "planman_login_success_total",
			Help: "ログイン成功の合計数",
		}),
		loginFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "planman_login_fail_total",
			Help: "ログイン失敗の合計数",
		}),
		tokenVerifyFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "planman_token_verify_fail_total",
			Help: "トークン検証失敗の理由別合計数",
		}, []string{"reason"}),
		plansClaimed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "planman_plans_claimed_total",
			Help: "ゲストプランのクレーム成立の合計数",
		}),
		exports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "planman_exports_total",
			Help: "フォーマット別のエクスポート合計数",
		}, []string{"format"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "planman_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		sessionsPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "planman_sessions_purged_total",
			Help: "クリーンアップジョブが削除した期限切れセッションの合計数",
		}),
	}

	reg.MustRegister(
		c.loginSuccess,
		c.loginFail,
		c.tokenVerifyFail,
		c.plansClaimed,
		c.exports,
		c.httpStatus,
		c.sessionsPurged,
	)

	return c
}

// RecordLoginSuccess はログイン成功を記録する。
func (c *Collector) RecordLoginSuccess() {
	c.loginSuccess.Inc()
}

// RecordLoginFailure はログイン失敗を記録する。
func (c *Collector) RecordLoginFailure() {
	c.loginFail.Inc()
}

// RecordTokenVerifyFailure はトークン検証失敗を理由別に記録する。
// reasonは malformed / signature_invalid / expired のいずれか。
func (c *Collector) RecordTokenVerifyFailure(reason string) {
	c.tokenVerifyFail.WithLabelValues(reason).Inc()
}

// RecordPlanClaimed はゲストプランのクレーム成立を記録する。
func (c *Collector) RecordPlanClaimed() {
	c.plansClaimed.Inc()
}

// RecordExport はエクスポートをフォーマット別に記録する。
func (c *Collector) RecordExport(format string) {
	c.exports.WithLabelValues(format).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordSessionsPurged はクリーンアップで削除されたセッション数を記録する。
func (c *Collector) RecordSessionsPurged(count int64) {
	c.sessionsPurged.Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
