package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持します
type Config struct {
	// Database設定
	Database DatabaseConfig

	// OpenAI設定（Embeddings用）
	OpenAI OpenAIConfig

	// スクレイパー設定
	Scraper ScraperConfig

	// HTTPサーバ設定
	Server ServerConfig

	// ログ設定
	Log LogConfig
}

// DatabaseConfig はデータベース接続設定
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// OpenAIConfig はOpenAI API設定
type OpenAIConfig struct {
	APIKey             string
	EmbeddingModel     string
	EmbeddingDimension int
}

// ScraperConfig はページ取得とインデックス更新の設定
type ScraperConfig struct {
	FetchTimeout  time.Duration // 1ページ取得のHTTPタイムアウト
	ChunkSize     int           // チャンク分割の文字数上限
	TokenBudget   int           // バッチ埋め込み1リクエストあたりのトークン上限
	PollInterval  time.Duration // バッチジョブのポーリング間隔
	BatchCeiling  time.Duration // バッチジョブ全体の待機上限（超過で同期フォールバック）
	RefreshCron   string        // 全URL再取得のcronスケジュール
}

// ServerConfig はHTTPサーバ設定
type ServerConfig struct {
	Port int
}

// LogConfig はログ出力設定
type LogConfig struct {
	Level  string
	Format string
}

// Load は環境変数または.envファイルから設定を読み込みます
func Load(envFilePath string) (*Config, error) {
	// .envファイルが存在する場合は読み込む
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			// ファイルが存在しない場合はエラーとしない（環境変数のみで動作可能）
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to load .env file: %w", err)
			}
		}
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "scraperag"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "scraperag"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		OpenAI: OpenAIConfig{
			APIKey:             getEnv("OPENAI_API_KEY", ""),
			EmbeddingModel:     getEnv("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
			EmbeddingDimension: getEnvAsInt("OPENAI_EMBEDDING_DIMENSION", 1536),
		},
		Scraper: ScraperConfig{
			FetchTimeout: time.Duration(getEnvAsInt("SCRAPER_FETCH_TIMEOUT_SECONDS", 15)) * time.Second,
			ChunkSize:    getEnvAsInt("SCRAPER_CHUNK_SIZE", 1000),
			TokenBudget:  getEnvAsInt("SCRAPER_BATCH_TOKEN_BUDGET", 2500),
			PollInterval: time.Duration(getEnvAsInt("SCRAPER_BATCH_POLL_SECONDS", 5)) * time.Second,
			BatchCeiling: time.Duration(getEnvAsInt("SCRAPER_BATCH_CEILING_HOURS", 30)) * time.Hour,
			RefreshCron:  getEnv("SCRAPER_REFRESH_CRON", "0 3 * * 1"),
		},
		Server: ServerConfig{
			Port: getEnvAsInt("SERVER_PORT", 8080),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if cfg.Scraper.ChunkSize <= 0 {
		return nil, fmt.Errorf("SCRAPER_CHUNK_SIZE must be positive, got %d", cfg.Scraper.ChunkSize)
	}
	if cfg.Scraper.TokenBudget <= 0 {
		return nil, fmt.Errorf("SCRAPER_BATCH_TOKEN_BUDGET must be positive, got %d", cfg.Scraper.TokenBudget)
	}

	return cfg, nil
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt は環境変数を整数として取得します
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
