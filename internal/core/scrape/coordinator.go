package scrape

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"
)

// バッチ埋め込みの既定値
const (
	DefaultTokenBudget  = 2500
	DefaultPollInterval = 5 * time.Second
	DefaultBatchCeiling = 30 * time.Hour
)

// batchPhase はバッチジョブ追跡の内部状態
type batchPhase int

const (
	phaseSubmitted batchPhase = iota
	phasePolling
	phaseCompleted
	phaseFailed
	phaseCancelled
)

// EmbeddingCoordinator は差分チャンクの埋め込み取得を束ねます。
//
// チャンクをトークン上限以下のバッチに貪欲に詰め、バッチジョブとして
// 投入してポーリングします。全体の経過時間が上限を超えたら実行中の
// ジョブをキャンセルし、残りを1件ずつ同期呼び出しで処理します。
type EmbeddingCoordinator struct {
	client       EmbeddingClient
	tokenBudget  int
	pollInterval time.Duration
	ceiling      time.Duration
	logger       *slog.Logger
}

// CoordinatorOption はEmbeddingCoordinatorの設定オプション
type CoordinatorOption func(*EmbeddingCoordinator)

// WithTokenBudget は1バッチあたりのトークン上限を設定します
func WithTokenBudget(budget int) CoordinatorOption {
	return func(c *EmbeddingCoordinator) {
		if budget > 0 {
			c.tokenBudget = budget
		}
	}
}

// WithPollInterval はジョブ状態のポーリング間隔を設定します
func WithPollInterval(interval time.Duration) CoordinatorOption {
	return func(c *EmbeddingCoordinator) {
		if interval > 0 {
			c.pollInterval = interval
		}
	}
}

// WithBatchCeiling はバッチ全体の待機時間上限を設定します
func WithBatchCeiling(ceiling time.Duration) CoordinatorOption {
	return func(c *EmbeddingCoordinator) {
		if ceiling > 0 {
			c.ceiling = ceiling
		}
	}
}

// WithCoordinatorLogger はロガーを設定します
func WithCoordinatorLogger(logger *slog.Logger) CoordinatorOption {
	return func(c *EmbeddingCoordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewEmbeddingCoordinator は新しいEmbeddingCoordinatorを作成します
func NewEmbeddingCoordinator(client EmbeddingClient, opts ...CoordinatorOption) *EmbeddingCoordinator {
	c := &EmbeddingCoordinator{
		client:       client,
		tokenBudget:  DefaultTokenBudget,
		pollInterval: DefaultPollInterval,
		ceiling:      DefaultBatchCeiling,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// EmbedChanged は全ページの差分チャンクに埋め込みを付与します。
//
// バッチはページをまたいで詰められます。単体でトークン上限を超える
// チャンクは単独のバッチになります。完了後、埋め込みが付かなかった
// チャンクが1つでもあればErrEmbeddingMissingで失敗します。
func (c *EmbeddingCoordinator) EmbedChanged(ctx context.Context, pages []*DiffResult) error {
	start := time.Now()

	byID := make(map[string]*ChangedChunk)
	var batch []BatchItem
	batchTokens := 0
	nextID := 0

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := c.processBatch(ctx, batch, byID, start); err != nil {
			return err
		}
		batch = nil
		batchTokens = 0
		return nil
	}

	for _, page := range pages {
		for _, chunk := range page.Changed {
			if chunk.Content == "" {
				c.logger.Warn("空のチャンクをスキップします", "url", page.URL, "chunk_number", chunk.Number)
				continue
			}

			if len(batch) > 0 && batchTokens+chunk.Tokens > c.tokenBudget {
				if err := flush(); err != nil {
					return err
				}
			}

			id := strconv.Itoa(nextID)
			nextID++
			byID[id] = chunk
			batch = append(batch, BatchItem{CustomID: id, Text: chunk.Content})
			batchTokens += chunk.Tokens
		}
	}

	if err := flush(); err != nil {
		return err
	}

	for _, page := range pages {
		for _, chunk := range page.Changed {
			if chunk.Content != "" && chunk.Embedding == nil {
				return fmt.Errorf("url %s chunk %d: %w", page.URL, chunk.Number, ErrEmbeddingMissing)
			}
		}
	}

	return nil
}

// processBatch は1バッチを投入から完了まで追跡します
func (c *EmbeddingCoordinator) processBatch(ctx context.Context, items []BatchItem, byID map[string]*ChangedChunk, start time.Time) error {
	// 上限を既に超えているなら投入せず同期処理に切り替える
	if time.Since(start) > c.ceiling {
		c.logger.Warn("待機時間の上限を超過、同期フォールバックに切り替えます",
			"elapsed", time.Since(start).String(), "items", len(items))
		return c.embedSequential(ctx, items, byID)
	}

	jobID, err := c.client.SubmitBatch(ctx, items)
	if err != nil {
		return fmt.Errorf("バッチジョブの投入に失敗: %w", err)
	}

	c.logger.Info("バッチジョブを投入しました", "job_id", jobID, "items", len(items))

	phase := phaseSubmitted
	for {
		switch phase {
		case phaseSubmitted, phasePolling:
			if time.Since(start) > c.ceiling {
				c.logger.Warn("待機時間の上限を超過、ジョブをキャンセルして同期フォールバックに切り替えます",
					"job_id", jobID, "elapsed", time.Since(start).String())
				if err := c.client.CancelBatch(ctx, jobID); err != nil {
					c.logger.Error("ジョブのキャンセルに失敗", "job_id", jobID, "error", err)
				}
				return c.embedSequential(ctx, items, byID)
			}

			state, err := c.client.BatchStatus(ctx, jobID)
			if err != nil {
				return fmt.Errorf("バッチジョブの状態取得に失敗: %w", err)
			}

			switch state {
			case BatchJobCompleted:
				phase = phaseCompleted
			case BatchJobFailed:
				phase = phaseFailed
			case BatchJobCancelled:
				phase = phaseCancelled
			default:
				phase = phasePolling
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(c.pollInterval):
				}
			}

		case phaseCompleted:
			results, err := c.client.BatchResults(ctx, jobID)
			if err != nil {
				return fmt.Errorf("バッチ結果の取得に失敗: %w", err)
			}
			for id, embedding := range results {
				chunk, ok := byID[id]
				if !ok {
					return fmt.Errorf("custom_id %q: %w", id, ErrEmbeddingMissing)
				}
				chunk.Embedding = embedding
			}
			c.logger.Info("バッチジョブが完了しました", "job_id", jobID, "results", len(results))
			return nil

		case phaseFailed:
			return fmt.Errorf("job %s: %w", jobID, ErrBatchFailed)

		case phaseCancelled:
			return fmt.Errorf("job %s: %w", jobID, ErrBatchCancelled)
		}
	}
}

// embedSequential はバッチを使わず1件ずつ同期的に埋め込みを取得します
func (c *EmbeddingCoordinator) embedSequential(ctx context.Context, items []BatchItem, byID map[string]*ChangedChunk) error {
	for _, item := range items {
		embedding, err := c.client.Embed(ctx, item.Text)
		if err != nil {
			return fmt.Errorf("同期フォールバックの埋め込み取得に失敗: %w", err)
		}
		byID[item.CustomID].Embedding = embedding
	}
	return nil
}
