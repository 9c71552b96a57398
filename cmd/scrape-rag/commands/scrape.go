package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/jinford/scrape-rag/internal/core/scrape"
)

// ScrapePageAction は1ページを取得してインデックスを更新するコマンドのアクション
func ScrapePageAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	req := scrape.PageRequest{
		URL:         cmd.String("url"),
		Description: cmd.String("description"),
		Owner:       cmd.String("owner"),
	}

	message, err := appCtx.Service.ScrapePage(ctx, req)
	if err != nil {
		return fmt.Errorf("ページの処理に失敗: %w", err)
	}

	appCtx.Logger.Info("ページの処理が完了しました", "url", req.URL, "result", message)
	return nil
}

// batchFilePage はバッチ入力ファイルの1エントリ
type batchFilePage struct {
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
	Owner       string `json:"owner,omitempty"`
}

// ScrapeBatchAction は複数ページをまとめて処理するコマンドのアクション。
// 対象は --url の繰り返しか、--file のJSON配列で指定する。
func ScrapeBatchAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")

	var reqs []scrape.PageRequest
	for _, url := range cmd.StringSlice("url") {
		reqs = append(reqs, scrape.PageRequest{URL: url})
	}

	if file := cmd.String("file"); file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("バッチ入力ファイルの読み込みに失敗: %w", err)
		}
		var pages []batchFilePage
		if err := json.Unmarshal(data, &pages); err != nil {
			return fmt.Errorf("バッチ入力ファイルの解析に失敗: %w", err)
		}
		for _, page := range pages {
			reqs = append(reqs, scrape.PageRequest{
				URL:         page.URL,
				Description: page.Description,
				Owner:       page.Owner,
			})
		}
	}

	if len(reqs) == 0 {
		return fmt.Errorf("処理対象のURLが指定されていません")
	}

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	report, err := appCtx.Service.ScrapeBatch(ctx, reqs)
	if err != nil {
		return fmt.Errorf("バッチの処理に失敗: %w", err)
	}

	printReport(appCtx, report)
	return nil
}

// ScrapeRefreshAction は登録済み全URLを再取得するコマンドのアクション
func ScrapeRefreshAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	report, err := appCtx.Service.RefreshAll(ctx)
	if err != nil {
		return fmt.Errorf("再取得に失敗: %w", err)
	}

	printReport(appCtx, report)
	return nil
}

func printReport(appCtx *AppContext, report *scrape.BatchReport) {
	for _, page := range report.Pages {
		appCtx.Logger.Info("ページの処理結果",
			"url", page.URL, "status", page.Code, "message", page.Message)
	}

	code, message := report.Aggregate()
	appCtx.Logger.Info("バッチの処理が完了しました",
		"status", code, "message", message, "pages", len(report.Pages))
}
