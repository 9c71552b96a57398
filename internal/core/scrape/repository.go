package scrape

import (
	"context"

	"github.com/samber/mo"
)

// DocumentStore はページスナップショットの永続化を担います。
// 現行世代とアーカイブの2系列を持ち、アーカイブは追記のみです。
type DocumentStore interface {
	// LatestVersion はURLの最新スナップショットを返します。未登録ならNone。
	LatestVersion(ctx context.Context, url string) (mo.Option[*PageVersion], error)

	// Insert は現行世代にスナップショットを追加します
	Insert(ctx context.Context, page *PageVersion) error

	// DeleteCurrent は現行世代からURLの行を削除します（アーカイブは対象外）
	DeleteCurrent(ctx context.Context, url string) error

	// InsertArchive はアーカイブにスナップショットを追記します
	InsertArchive(ctx context.Context, page *PageVersion) error

	// ListURLs は現行世代に存在する全URLを返します
	ListURLs(ctx context.Context) ([]string, error)
}

// VectorStore はチャンクと埋め込みの永続化を担います
type VectorStore interface {
	// ChunksByURL はURLの全チャンクをチャンク番号昇順で返します
	ChunksByURL(ctx context.Context, url string) ([]*ChunkRecord, error)

	// Upsert はチャンクを保存します（同一URL・番号の行は置き換え）
	Upsert(ctx context.Context, chunk *ChunkRecord) error

	// DeleteChunk はURLとチャンク番号で1チャンクを削除します
	DeleteChunk(ctx context.Context, url string, chunkNumber int) error

	// DeleteByURL はURLの全チャンクを削除します
	DeleteByURL(ctx context.Context, url string) error
}

// URLLocker は同一URLの更新をプロセス横断で直列化します
type URLLocker interface {
	// LockURL はロックを獲得し、解放関数を返します
	LockURL(ctx context.Context, url string) (release func(), err error)
}
