package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/jinford/scrape-rag/cmd/scrape-rag/commands"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 構造化ログの設定
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	envFlag := func() *cli.StringFlag {
		return &cli.StringFlag{
			Name:  "env",
			Usage: "環境変数ファイルパス",
			Value: ".env",
		}
	}

	app := &cli.Command{
		Name:  "scrape-rag",
		Usage: "WebページのRAGインデックス同期パイプライン",
		Commands: []*cli.Command{
			{
				Name:  "scrape",
				Usage: "ページ取得とインデックス更新コマンド",
				Commands: []*cli.Command{
					{
						Name:  "page",
						Usage: "1ページを取得してインデックスを更新",
						Flags: []cli.Flag{
							envFlag(),
							&cli.StringFlag{
								Name:     "url",
								Usage:    "取得するページのURL",
								Required: true,
							},
							&cli.StringFlag{
								Name:  "description",
								Usage: "ページの説明",
							},
							&cli.StringFlag{
								Name:  "owner",
								Usage: "ページの所有者",
							},
						},
						Action: commands.ScrapePageAction,
					},
					{
						Name:  "batch",
						Usage: "複数ページをまとめて処理",
						Flags: []cli.Flag{
							envFlag(),
							&cli.StringSliceFlag{
								Name:  "url",
								Usage: "取得するページのURL（複数指定可）",
							},
							&cli.StringFlag{
								Name:  "file",
								Usage: "ページ指定のJSON配列ファイル",
							},
						},
						Action: commands.ScrapeBatchAction,
					},
					{
						Name:   "refresh",
						Usage:  "登録済み全URLを再取得",
						Flags:  []cli.Flag{envFlag()},
						Action: commands.ScrapeRefreshAction,
					},
				},
			},
			{
				Name:  "server",
				Usage: "HTTPサーバコマンド",
				Commands: []*cli.Command{
					{
						Name:  "start",
						Usage: "HTTPサーバと定期再取得ジョブを起動",
						Flags: []cli.Flag{
							envFlag(),
							&cli.IntFlag{
								Name:  "port",
								Usage: "リッスンするポート番号",
							},
						},
						Action: commands.ServerStartAction,
					},
				},
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatalf("エラー: %v", err)
	}
}
