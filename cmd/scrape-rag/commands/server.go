package commands

import (
	"context"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/jinford/scrape-rag/internal/api"
	"github.com/jinford/scrape-rag/internal/platform/scheduler"
)

// ServerStartAction はHTTPサーバと定期再取得ジョブを起動するコマンドのアクション
func ServerStartAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	// 定期再取得ジョブ
	refreshJob := scheduler.NewRefreshJob(appCtx.Service, appCtx.Config.Scraper.RefreshCron, appCtx.Logger)
	if err := refreshJob.Start(); err != nil {
		return err
	}
	defer refreshJob.Stop()

	port := appCtx.Config.Server.Port
	if p := cmd.Int("port"); p > 0 {
		port = int(p)
	}

	server := api.NewServer(port, appCtx.Service, appCtx.Logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}
