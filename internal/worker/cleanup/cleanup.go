// Package cleanup は完了したダウンロードジョブの定期削除を提供する。
// ジョブのZIPはメモリ上に保持されるため、保持期間を過ぎたものを
// 一定間隔で削除してメモリを解放する。
package cleanup

import (
	"context"
	"log/slog"
	"time"
)

// DefaultInterval は削除処理の実行間隔。
const DefaultInterval = time.Minute

// Pruner は期限切れデータの削除インターフェース。download.JobManagerが満たす。
type Pruner interface {
	// Prune は保持期間を過ぎたデータを削除し、削除件数を返す。
	Prune() int
}

// CleanupJob は期限切れダウンロードジョブの定期削除ジョブ。
// 冪等であり、削除対象がない場合も問題なく完了する。
type CleanupJob struct {
	pruner   Pruner
	logger   *slog.Logger
	Interval time.Duration // 実行間隔（デフォルト: 1分）
}

// NewCleanupJob は新しいCleanupJobを生成する。
func NewCleanupJob(pruner Pruner, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		pruner:   pruner,
		logger:   logger,
		Interval: DefaultInterval,
	}
}

// Run は期限切れのジョブを1回削除し、削除件数を返す。
func (j *CleanupJob) Run(ctx context.Context) int {
	start := time.Now()
	deleted := j.pruner.Prune()

	if deleted > 0 {
		j.logger.Info("期限切れのダウンロードジョブを削除しました",
			slog.Int("deleted_count", deleted),
			slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
		)
	}
	return deleted
}

// Start はIntervalごとにRunを実行する。コンテキストがキャンセルされるまで継続する。
func (j *CleanupJob) Start(ctx context.Context) {
	interval := j.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("ダウンロードジョブの削除処理を停止しました")
			return
		case <-ticker.C:
			j.Run(ctx)
		}
	}
}
