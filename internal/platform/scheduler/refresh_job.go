package scheduler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/jinford/scrape-rag/internal/core/scrape"
)

// DefaultRefreshSchedule は毎週月曜3時の再取得スケジュール
const DefaultRefreshSchedule = "0 3 * * 1"

// Refresher は登録済み全URLの再取得を実行します
type Refresher interface {
	RefreshAll(ctx context.Context) (*scrape.BatchReport, error)
}

// RefreshJob は定期的に全ページを再取得するcronジョブ
type RefreshJob struct {
	refresher Refresher
	schedule  string
	cron      *cron.Cron
	logger    *slog.Logger
}

// NewRefreshJob は新しいRefreshJobを作成します。scheduleが空ならデフォルトを使います。
func NewRefreshJob(refresher Refresher, schedule string, logger *slog.Logger) *RefreshJob {
	if schedule == "" {
		schedule = DefaultRefreshSchedule
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RefreshJob{
		refresher: refresher,
		schedule:  schedule,
		cron:      cron.New(),
		logger:    logger,
	}
}

// Start はスケジュールを登録してcronを開始します
func (j *RefreshJob) Start() error {
	_, err := j.cron.AddFunc(j.schedule, j.run)
	if err != nil {
		return fmt.Errorf("cronスケジュールの登録に失敗: %w", err)
	}

	j.cron.Start()
	j.logger.Info("定期再取得ジョブを開始しました", "schedule", j.schedule)
	return nil
}

// Stop はcronを停止し、実行中のジョブの完了を待ちます
func (j *RefreshJob) Stop() {
	ctx := j.cron.Stop()
	<-ctx.Done()
	j.logger.Info("定期再取得ジョブを停止しました")
}

func (j *RefreshJob) run() {
	j.logger.Info("定期再取得を開始します")

	report, err := j.refresher.RefreshAll(context.Background())
	if err != nil {
		j.logger.Error("定期再取得に失敗", "error", err)
		return
	}

	code, message := report.Aggregate()
	j.logger.Info("定期再取得が完了しました",
		"status", code,
		"message", message,
		"pages", len(report.Pages),
	)
}
