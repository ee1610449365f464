// Package cleanup は期限切れセッションの自動削除ジョブを提供する。
// セッションレジストリの読み取りは常にexpires_atでフィルタされるため、
// このジョブは正しさではなくテーブルの肥大化防止のために存在する。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/planman/internal/metrics"
)

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// SessionPurgeJob は期限切れセッションの定期削除ジョブ。
// 冪等な削除処理で、削除対象がない場合でもエラーにならない。
type SessionPurgeJob struct {
	db        Executor
	logger    *slog.Logger
	collector metrics.MetricsCollector // nil可
}

// NewSessionPurgeJob は新しいSessionPurgeJobを生成する。
func NewSessionPurgeJob(db Executor, logger *slog.Logger, collector metrics.MetricsCollector) *SessionPurgeJob {
	return &SessionPurgeJob{
		db:        db,
		logger:    logger,
		collector: collector,
	}
}

// Run は期限切れセッションを削除する。
func (j *SessionPurgeJob) Run(ctx context.Context) error {
	start := time.Now()

	query := `DELETE FROM sessions WHERE expires_at <= now()`
	result, err := j.db.ExecContext(ctx, query)
	if err != nil {
		j.logger.Error("セッションクリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("セッションクリーンアップの実行に失敗: %w", err)
	}

	purgedCount, err := result.RowsAffected()
	if err != nil {
		j.logger.Error("削除件数の取得に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("削除件数の取得に失敗: %w", err)
	}

	if j.collector != nil {
		j.collector.RecordSessionsPurged(purgedCount)
	}

	duration := time.Since(start)
	j.logger.Info("セッションクリーンアップジョブが完了しました",
		slog.Int64("purged_count", purgedCount),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}
