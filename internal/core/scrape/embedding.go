package scrape

import (
	"context"
	"errors"
)

var (
	// ErrBatchFailed はバッチジョブがプロバイダ側で失敗した場合のエラー
	ErrBatchFailed = errors.New("embedding batch job failed")

	// ErrBatchCancelled はバッチジョブが外部からキャンセルされた場合のエラー
	ErrBatchCancelled = errors.New("embedding batch job cancelled")

	// ErrEmbeddingMissing はバッチ結果に対応する埋め込みが見つからない場合のエラー
	ErrEmbeddingMissing = errors.New("embedding missing for chunk")
)

// BatchJobState はバッチジョブの状態
type BatchJobState int

const (
	// BatchJobRunning は投入済みで未完了（validating / in_progress / finalizing / cancelling）
	BatchJobRunning BatchJobState = iota
	// BatchJobCompleted は正常完了
	BatchJobCompleted
	// BatchJobFailed は失敗または期限切れ
	BatchJobFailed
	// BatchJobCancelled はキャンセル済み
	BatchJobCancelled
)

// String はログ出力用の状態名を返します
func (s BatchJobState) String() string {
	switch s {
	case BatchJobRunning:
		return "running"
	case BatchJobCompleted:
		return "completed"
	case BatchJobFailed:
		return "failed"
	case BatchJobCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// BatchItem はバッチ投入する1テキスト。CustomIDで結果と突き合わせます。
type BatchItem struct {
	CustomID string
	Text     string
}

// EmbeddingClient は埋め込みプロバイダへの接続を抽象化します。
// 同期の単発呼び出しと、非同期のバッチジョブの両方を提供します。
type EmbeddingClient interface {
	// Embed は1テキストの埋め込みを同期的に取得します
	Embed(ctx context.Context, text string) ([]float32, error)

	// SubmitBatch はバッチジョブを投入し、ジョブIDを返します
	SubmitBatch(ctx context.Context, items []BatchItem) (string, error)

	// BatchStatus はジョブの現在状態を返します
	BatchStatus(ctx context.Context, jobID string) (BatchJobState, error)

	// CancelBatch はジョブのキャンセルを要求します
	CancelBatch(ctx context.Context, jobID string) error

	// BatchResults は完了したジョブの結果をCustomID→埋め込みのマップで返します
	BatchResults(ctx context.Context, jobID string) (map[string][]float32, error)

	// Close は保持するリソースを解放します
	Close() error
}
