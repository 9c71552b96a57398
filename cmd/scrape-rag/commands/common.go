package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jinford/scrape-rag/internal/core/scrape"
	"github.com/jinford/scrape-rag/internal/infra/httpfetch"
	"github.com/jinford/scrape-rag/internal/infra/openai"
	"github.com/jinford/scrape-rag/internal/infra/postgres"
	"github.com/jinford/scrape-rag/internal/platform/config"
	"github.com/jinford/scrape-rag/internal/platform/logger"
	"github.com/jinford/scrape-rag/pkg/db"
)

// AppContext はコマンド実行に必要な共通コンテキストを保持する
type AppContext struct {
	Config   *config.Config
	Logger   *slog.Logger
	Database *db.DB
	Store    *postgres.Store
	Embedder *openai.Embedder
	Service  *scrape.Service
}

// NewAppContext は設定を読み込み、DBに接続して AppContext を作成する
func NewAppContext(ctx context.Context, envFile string) (*AppContext, error) {
	// 設定の読み込み
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, fmt.Errorf("設定の読み込みに失敗: %w", err)
	}

	// ロガーの初期化
	appLogger := logger.New(logger.Config{
		Level:  logger.ParseLevel(cfg.Log.Level),
		Format: cfg.Log.Format,
	})

	// データベース接続
	database, err := db.New(ctx, db.ConnectionParams{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
	})
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}

	// ストアとスキーマの初期化
	store := postgres.NewStore(database.Pool, cfg.OpenAI.EmbeddingDimension, appLogger)
	if err := store.EnsureSchema(ctx); err != nil {
		database.Close()
		return nil, err
	}

	// 埋め込みクライアント
	embedder := openai.NewEmbedder(cfg.OpenAI.APIKey,
		openai.WithEmbeddingModel(cfg.OpenAI.EmbeddingModel),
		openai.WithEmbeddingDimension(cfg.OpenAI.EmbeddingDimension),
	)

	// トークンカウンタ
	tokens, err := scrape.NewTiktokenCounter()
	if err != nil {
		database.Close()
		return nil, err
	}

	// フェッチャ
	fetcher := httpfetch.New(
		httpfetch.WithTimeout(cfg.Scraper.FetchTimeout),
		httpfetch.WithLogger(appLogger),
	)

	// パイプラインの組み立て
	service := scrape.NewService(fetcher, store, store, embedder, tokens,
		scrape.WithLogger(appLogger),
		scrape.WithChunkSize(cfg.Scraper.ChunkSize),
		scrape.WithURLLocker(store),
		scrape.WithCoordinatorOptions(
			scrape.WithTokenBudget(cfg.Scraper.TokenBudget),
			scrape.WithPollInterval(cfg.Scraper.PollInterval),
			scrape.WithBatchCeiling(cfg.Scraper.BatchCeiling),
		),
	)

	return &AppContext{
		Config:   cfg,
		Logger:   appLogger,
		Database: database,
		Store:    store,
		Embedder: embedder,
		Service:  service,
	}, nil
}

// Close はAppContextが保持するリソースをクリーンアップする
func (ac *AppContext) Close() {
	if ac.Embedder != nil {
		_ = ac.Embedder.Close()
	}
	if ac.Database != nil {
		ac.Database.Close()
	}
}
