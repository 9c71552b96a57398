package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"github.com/samber/mo"

	"github.com/jinford/scrape-rag/internal/core/scrape"
	"github.com/jinford/scrape-rag/pkg/lock"
)

// Store はドキュメントストアとベクトルストアの両方をPostgreSQL上に実装します。
// ページスナップショットは pages / pages_archive、チャンクは page_chunks に
// 保存し、埋め込みはpgvectorのvector型で持ちます。
type Store struct {
	pool      *pgxpool.Pool
	dimension int
	logger    *slog.Logger
}

var (
	_ scrape.DocumentStore = (*Store)(nil)
	_ scrape.VectorStore   = (*Store)(nil)
	_ scrape.URLLocker     = (*Store)(nil)
)

// NewStore は新しいStoreを作成します
func NewStore(pool *pgxpool.Pool, dimension int, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		pool:      pool,
		dimension: dimension,
		logger:    logger,
	}
}

// EnsureSchema は必要なテーブルとインデックスを作成します
func (s *Store) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS pages (
			id UUID PRIMARY KEY,
			url TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL,
			content_hash TEXT NOT NULL,
			version INT NOT NULL,
			owner TEXT NOT NULL DEFAULT '',
			captured_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS pages_url_version_idx
			ON pages (url ASC, version DESC)`,
		`CREATE TABLE IF NOT EXISTS pages_archive (
			id UUID NOT NULL,
			url TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL,
			content_hash TEXT NOT NULL,
			version INT NOT NULL,
			owner TEXT NOT NULL DEFAULT '',
			captured_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS pages_archive_url_version_idx
			ON pages_archive (url ASC, version DESC)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS page_chunks (
			id TEXT PRIMARY KEY,
			url TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			owner TEXT NOT NULL DEFAULT '',
			page_hash TEXT NOT NULL,
			chunk_number INT NOT NULL,
			chunk_hash TEXT NOT NULL,
			content TEXT NOT NULL,
			embedding vector(%d),
			captured_at TIMESTAMPTZ NOT NULL
		)`, s.dimension),
		`CREATE UNIQUE INDEX IF NOT EXISTS page_chunks_url_number_idx
			ON page_chunks (url, chunk_number)`,
	}

	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("スキーマの作成に失敗: %w", err)
		}
	}

	s.logger.Debug("スキーマを確認しました")
	return nil
}

// LatestVersion はURLの最新スナップショットを返します
func (s *Store) LatestVersion(ctx context.Context, url string) (mo.Option[*scrape.PageVersion], error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, url, description, content, content_hash, version, owner, captured_at
		FROM pages
		WHERE url = $1
		ORDER BY version DESC
		LIMIT 1`, url)

	var page scrape.PageVersion
	err := row.Scan(
		&page.ID, &page.URL, &page.Description, &page.Content,
		&page.ContentHash, &page.Version, &page.Owner, &page.CapturedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return mo.None[*scrape.PageVersion](), nil
	}
	if err != nil {
		return mo.None[*scrape.PageVersion](), fmt.Errorf("ページの取得に失敗: %w", err)
	}

	return mo.Some(&page), nil
}

// Insert は現行世代にスナップショットを追加します
func (s *Store) Insert(ctx context.Context, page *scrape.PageVersion) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO pages (id, url, description, content, content_hash, version, owner, captured_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		page.ID, page.URL, page.Description, page.Content,
		page.ContentHash, page.Version, page.Owner, page.CapturedAt,
	)
	if err != nil {
		return fmt.Errorf("ページの保存に失敗: %w", err)
	}
	return nil
}

// DeleteCurrent は現行世代からURLの行を削除します
func (s *Store) DeleteCurrent(ctx context.Context, url string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM pages WHERE url = $1`, url); err != nil {
		return fmt.Errorf("ページの削除に失敗: %w", err)
	}
	return nil
}

// InsertArchive はアーカイブにスナップショットを追記します
func (s *Store) InsertArchive(ctx context.Context, page *scrape.PageVersion) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO pages_archive (id, url, description, content, content_hash, version, owner, captured_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		page.ID, page.URL, page.Description, page.Content,
		page.ContentHash, page.Version, page.Owner, page.CapturedAt,
	)
	if err != nil {
		return fmt.Errorf("アーカイブへの追記に失敗: %w", err)
	}
	return nil
}

// ListURLs は現行世代に存在する全URLを返します
func (s *Store) ListURLs(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT url FROM pages ORDER BY url`)
	if err != nil {
		return nil, fmt.Errorf("URL一覧の取得に失敗: %w", err)
	}
	defer rows.Close()

	var urls []string
	for rows.Next() {
		var url string
		if err := rows.Scan(&url); err != nil {
			return nil, fmt.Errorf("URLの読み取りに失敗: %w", err)
		}
		urls = append(urls, url)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("URL一覧の読み取りに失敗: %w", err)
	}

	return urls, nil
}

// ChunksByURL はURLの全チャンクをチャンク番号昇順で返します
func (s *Store) ChunksByURL(ctx context.Context, url string) ([]*scrape.ChunkRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, url, description, owner, page_hash, chunk_number, chunk_hash, content, embedding, captured_at
		FROM page_chunks
		WHERE url = $1
		ORDER BY chunk_number ASC`, url)
	if err != nil {
		return nil, fmt.Errorf("チャンクの取得に失敗: %w", err)
	}
	defer rows.Close()

	var chunks []*scrape.ChunkRecord
	for rows.Next() {
		var chunk scrape.ChunkRecord
		var embedding pgvector.Vector
		if err := rows.Scan(
			&chunk.ID, &chunk.URL, &chunk.Description, &chunk.Owner,
			&chunk.PageHash, &chunk.ChunkNumber, &chunk.ChunkHash,
			&chunk.Content, &embedding, &chunk.CapturedAt,
		); err != nil {
			return nil, fmt.Errorf("チャンクの読み取りに失敗: %w", err)
		}
		chunk.Embedding = embedding.Slice()
		chunks = append(chunks, &chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("チャンクの読み取りに失敗: %w", err)
	}

	return chunks, nil
}

// Upsert はチャンクを保存します。同一URL・番号の行は置き換えます。
func (s *Store) Upsert(ctx context.Context, chunk *scrape.ChunkRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO page_chunks (id, url, description, owner, page_hash, chunk_number, chunk_hash, content, embedding, captured_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (url, chunk_number) DO UPDATE SET
			id = EXCLUDED.id,
			description = EXCLUDED.description,
			owner = EXCLUDED.owner,
			page_hash = EXCLUDED.page_hash,
			chunk_hash = EXCLUDED.chunk_hash,
			content = EXCLUDED.content,
			embedding = EXCLUDED.embedding,
			captured_at = EXCLUDED.captured_at`,
		chunk.ID, chunk.URL, chunk.Description, chunk.Owner,
		chunk.PageHash, chunk.ChunkNumber, chunk.ChunkHash,
		chunk.Content, pgvector.NewVector(chunk.Embedding), chunk.CapturedAt,
	)
	if err != nil {
		return fmt.Errorf("チャンクの保存に失敗: %w", err)
	}
	return nil
}

// DeleteChunk はURLとチャンク番号で1チャンクを削除します
func (s *Store) DeleteChunk(ctx context.Context, url string, chunkNumber int) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM page_chunks WHERE url = $1 AND chunk_number = $2`, url, chunkNumber)
	if err != nil {
		return fmt.Errorf("チャンクの削除に失敗: %w", err)
	}
	return nil
}

// DeleteByURL はURLの全チャンクを削除します
func (s *Store) DeleteByURL(ctx context.Context, url string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM page_chunks WHERE url = $1`, url); err != nil {
		return fmt.Errorf("チャンクの削除に失敗: %w", err)
	}
	return nil
}

// LockURL はURL単位のアドバイザリロックを獲得します
func (s *Store) LockURL(ctx context.Context, url string) (func(), error) {
	lockID := lock.GenerateLockID("scrape-rag", url)
	sessionLock, err := lock.AcquireSession(ctx, s.pool, lockID)
	if err != nil {
		return nil, err
	}

	return func() {
		if err := sessionLock.Release(context.Background()); err != nil {
			s.logger.Error("URLロックの解放に失敗", "url", url, "error", err)
		}
	}, nil
}
