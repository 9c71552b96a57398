package scrape

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// Reconciler は差分をベクトルストアとドキュメントストアへ適用します。
//
// 2ストア間のトランザクションは張らないため、ベクトルストア更新後・
// ドキュメントストア更新前に落ちると次回の再取得で自己修復されるまで
// 不整合が残ります。
type Reconciler struct {
	documents DocumentStore
	vectors   VectorStore
	logger    *slog.Logger
}

// NewReconciler は新しいReconcilerを作成します
func NewReconciler(documents DocumentStore, vectors VectorStore, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		documents: documents,
		vectors:   vectors,
		logger:    logger,
	}
}

// Apply は1ページ分の差分を永続化します。
//
// 変更チャンクごとに旧行を削除してから新行を保存し、縮んだ分の
// 末尾チャンクを削除し、最後にドキュメントストアの現行世代を
// version=前版+1 で置き換えてアーカイブに追記します。
// 全チャンクに埋め込みが付いていることが前提です。
func (r *Reconciler) Apply(ctx context.Context, diff *DiffResult) error {
	recordID := uuid.New()

	for _, chunk := range diff.Changed {
		if chunk.Embedding == nil {
			return fmt.Errorf("url %s chunk %d: %w", diff.URL, chunk.Number, ErrEmbeddingMissing)
		}

		if chunk.DeleteOld {
			if err := r.vectors.DeleteChunk(ctx, diff.URL, chunk.Number); err != nil {
				return fmt.Errorf("旧チャンク%dの削除に失敗: %w", chunk.Number, err)
			}
		}

		record := &ChunkRecord{
			ID:          fmt.Sprintf("%s-%d", recordID, chunk.Number),
			URL:         diff.URL,
			Description: diff.Description,
			Owner:       diff.Owner,
			PageHash:    diff.ContentHash,
			ChunkNumber: chunk.Number,
			ChunkHash:   chunk.Hash,
			Content:     chunk.Content,
			Embedding:   chunk.Embedding,
			CapturedAt:  diff.CapturedAt,
		}
		if err := r.vectors.Upsert(ctx, record); err != nil {
			return fmt.Errorf("チャンク%dの保存に失敗: %w", chunk.Number, err)
		}
	}

	// ページが縮んだ場合、旧版の末尾チャンクを取り除く
	for n := diff.NewChunkCount; n < diff.ExistingChunkCount; n++ {
		if err := r.vectors.DeleteChunk(ctx, diff.URL, n); err != nil {
			return fmt.Errorf("末尾チャンク%dの削除に失敗: %w", n, err)
		}
	}

	version := 1
	latest, err := r.documents.LatestVersion(ctx, diff.URL)
	if err != nil {
		return fmt.Errorf("最新バージョンの取得に失敗: %w", err)
	}
	if prev, ok := latest.Get(); ok {
		version = prev.Version + 1
	}

	page := &PageVersion{
		ID:          recordID,
		URL:         diff.URL,
		Description: diff.Description,
		Content:     diff.Content,
		ContentHash: diff.ContentHash,
		Version:     version,
		Owner:       diff.Owner,
		CapturedAt:  diff.CapturedAt,
	}

	if err := r.documents.DeleteCurrent(ctx, diff.URL); err != nil {
		return fmt.Errorf("現行世代の削除に失敗: %w", err)
	}
	if err := r.documents.Insert(ctx, page); err != nil {
		return fmt.Errorf("スナップショットの保存に失敗: %w", err)
	}
	if err := r.documents.InsertArchive(ctx, page); err != nil {
		return fmt.Errorf("アーカイブへの追記に失敗: %w", err)
	}

	r.logger.Info("ページを更新しました",
		"url", diff.URL,
		"version", version,
		"changed_chunks", len(diff.Changed),
		"total_chunks", diff.NewChunkCount,
	)

	return nil
}
