// Package retention はクローズ済み問い合わせの自動削除ジョブを提供する。
// 対応完了（completed）またはキャンセル（cancelled）のまま保持期間を過ぎた問い合わせを
// 日次バッチで削除する。
package retention

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/solidfoundation/internal/metrics"
)

// DefaultInterval はジョブの実行間隔。
const DefaultInterval = 24 * time.Hour

// ClosedContactDeleter はクローズ済み問い合わせの削除を行う。
// repository.ContactRepositoryが満たす。
type ClosedContactDeleter interface {
	DeleteClosedBefore(ctx context.Context, before time.Time) (int64, error)
}

// Job は保持期間を超過したクローズ済み問い合わせの自動削除ジョブ。
// 削除は冪等で、対象がない場合もエラーにならない。
type Job struct {
	repo    ClosedContactDeleter
	logger  *slog.Logger
	metrics metrics.MetricsCollector
	now     func() time.Time

	// RetentionDays は問い合わせの保持日数。0以下の場合ジョブは何もしない。
	RetentionDays int
}

// NewJob は新しいJobを生成する。collectorはnil可。
func NewJob(repo ClosedContactDeleter, logger *slog.Logger, collector metrics.MetricsCollector, retentionDays int) *Job {
	return &Job{
		repo:          repo,
		logger:        logger,
		metrics:       collector,
		now:           time.Now,
		RetentionDays: retentionDays,
	}
}

// Enabled は保持期間が設定されているかを返す。
func (j *Job) Enabled() bool {
	return j.RetentionDays > 0
}

// Run は保持期間を超過したクローズ済み問い合わせを削除し、削除件数を返す。
// 最終更新日時がRetentionDays日前より古いものが対象。
func (j *Job) Run(ctx context.Context) (int64, error) {
	if !j.Enabled() {
		return 0, nil
	}

	start := j.now()
	cutoff := start.AddDate(0, 0, -j.RetentionDays)

	deleted, err := j.repo.DeleteClosedBefore(ctx, cutoff)
	if err != nil {
		j.logger.Error("retention job failed",
			slog.String("error", err.Error()),
			slog.Int("retention_days", j.RetentionDays),
		)
		return 0, fmt.Errorf("failed to delete closed contact requests: %w", err)
	}

	if j.metrics != nil {
		j.metrics.RecordRetentionDeleted(deleted)
	}

	j.logger.Info("retention job completed",
		slog.Int64("deleted_count", deleted),
		slog.Int("retention_days", j.RetentionDays),
		slog.Time("cutoff", cutoff),
		slog.Float64("duration_ms", float64(j.now().Sub(start).Milliseconds())),
	)
	return deleted, nil
}

// Start は起動直後に1回、その後intervalごとにRunを実行する。
// ctxがキャンセルされるまでブロックする。
func (j *Job) Start(ctx context.Context, interval time.Duration) {
	if !j.Enabled() {
		j.logger.Info("retention job disabled")
		<-ctx.Done()
		return
	}
	if interval <= 0 {
		interval = DefaultInterval
	}

	j.runOnce(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.runOnce(ctx)
		}
	}
}

// runOnce はRunを実行する。エラーはRun内でログ済みのため、次回の実行に委ねる。
func (j *Job) runOnce(ctx context.Context) {
	_, _ = j.Run(ctx)
}
