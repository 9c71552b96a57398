package scrape

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"
)

// DiffEngine は取得済みページと保存済みチャンクの差分を計算します
type DiffEngine struct {
	vectors VectorStore
	tokens  TokenCounter
	logger  *slog.Logger
}

// NewDiffEngine は新しいDiffEngineを作成します
func NewDiffEngine(vectors VectorStore, tokens TokenCounter, logger *slog.Logger) *DiffEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &DiffEngine{
		vectors: vectors,
		tokens:  tokens,
		logger:  logger,
	}
}

// Build は正規化済み本文とチャンク列から差分を組み立てます。
//
// isNewはドキュメントストアに既存バージョンが無いページであることを示し、
// その場合ExistingChunkCountはNewPageSentinelになります。既存ページでは
// 保存済みチャンクをチャンク番号順に読み、同じ番号のチャンクハッシュが
// 一致するものを除外します。番号が既存範囲内で不一致のチャンクには
// DeleteOldを立て、再利用側が旧行を先に消せるようにします。
//
// リクエストの説明・所有者がプレースホルダのままなら、先頭の既存チャンク
// から引き継ぎます。
func (e *DiffEngine) Build(ctx context.Context, req PageRequest, content, contentHash string, chunks []string, isNew bool) (*DiffResult, error) {
	existingCount := NewPageSentinel
	var existing []*ChunkRecord

	if !isNew {
		var err error
		existing, err = e.vectors.ChunksByURL(ctx, req.URL)
		if err != nil {
			return nil, fmt.Errorf("既存チャンクの取得に失敗: %w", err)
		}
		sort.Slice(existing, func(i, j int) bool {
			return existing[i].ChunkNumber < existing[j].ChunkNumber
		})
		existingCount = len(existing)

		if existingCount > 0 {
			if req.Description == DefaultDescription {
				req.Description = existing[0].Description
			}
			if req.Owner == DefaultOwner {
				req.Owner = existing[0].Owner
			}
		}
	}

	diff := &DiffResult{
		URL:                req.URL,
		Description:        req.Description,
		Owner:              req.Owner,
		Content:            content,
		ContentHash:        contentHash,
		ExistingChunkCount: existingCount,
		NewChunkCount:      len(chunks),
		CapturedAt:         time.Now().UTC(),
	}

	for i, chunkText := range chunks {
		hash, err := Fingerprint(chunkText)
		if err != nil {
			return nil, fmt.Errorf("チャンク%dのハッシュ計算に失敗: %w", i, err)
		}

		deleteOld := false
		if i < existingCount {
			if existing[i].ChunkHash == hash {
				continue
			}
			deleteOld = true
		}

		diff.Changed = append(diff.Changed, &ChangedChunk{
			Number:    i,
			Content:   chunkText,
			Hash:      hash,
			Tokens:    e.tokens.Count(chunkText),
			DeleteOld: deleteOld,
		})
	}

	e.logger.Debug("差分を計算しました",
		"url", req.URL,
		"existing_chunks", existingCount,
		"new_chunks", len(chunks),
		"changed_chunks", len(diff.Changed),
	)

	return diff, nil
}
