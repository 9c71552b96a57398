package scrape

import (
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultDescription は説明未指定時のプレースホルダ。
	// 既存ページの再取得時、このままなら保存済みの説明を引き継ぐ。
	DefaultDescription = "Brief description of the webpage."

	// DefaultOwner は所有者未指定時のプレースホルダ。扱いはDefaultDescriptionと同じ。
	DefaultOwner = "FEI STU"
)

// NewPageSentinel は既存チャンクが存在しない新規ページを表す件数センチネル
const NewPageSentinel = -1

// PageRequest はスクレイプ対象ページの指定
type PageRequest struct {
	URL         string
	Description string
	Owner       string
}

// WithPlaceholders は未指定のメタデータをプレースホルダで埋めたコピーを返します
func (r PageRequest) WithPlaceholders() PageRequest {
	if r.Description == "" {
		r.Description = DefaultDescription
	}
	if r.Owner == "" {
		r.Owner = DefaultOwner
	}
	return r
}

// PageVersion はドキュメントストアに保存される1時点のページスナップショット
type PageVersion struct {
	ID          uuid.UUID
	URL         string
	Description string
	Content     string // 正規化済み本文
	ContentHash string // 本文全体のMD5
	Version     int    // 同一URL内で単調増加
	Owner       string
	CapturedAt  time.Time
}

// ChunkRecord はベクトルストアに保存される1チャンク。
// IDは "{ページ書き込みごとのUUID}-{チャンク番号}" 形式。
type ChunkRecord struct {
	ID          string
	URL         string
	Description string
	Owner       string
	PageHash    string
	ChunkNumber int
	ChunkHash   string
	Content     string
	Embedding   []float32
	CapturedAt  time.Time
}

// ChangedChunk は差分検出で埋め込み対象となったチャンク
type ChangedChunk struct {
	Number    int
	Content   string
	Hash      string
	Tokens    int
	DeleteOld bool // 同じ番号の旧チャンクを先に削除する必要があるか
	Embedding []float32
}

// DiffResult は1ページ分の差分計算結果
type DiffResult struct {
	URL         string
	Description string
	Owner       string
	Content     string
	ContentHash string

	// ExistingChunkCount は保存済みチャンク数。新規ページは NewPageSentinel。
	ExistingChunkCount int
	// NewChunkCount は今回の分割で得られたチャンク数
	NewChunkCount int

	Changed    []*ChangedChunk
	CapturedAt time.Time
}
