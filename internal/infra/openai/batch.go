package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/openai/openai-go/v3"

	"github.com/jinford/scrape-rag/internal/core/scrape"
)

// batchRequestLine はBatch API入力ファイルの1行
type batchRequestLine struct {
	CustomID string             `json:"custom_id"`
	Method   string             `json:"method"`
	URL      string             `json:"url"`
	Body     batchEmbeddingBody `json:"body"`
}

type batchEmbeddingBody struct {
	Input      string `json:"input"`
	Model      string `json:"model"`
	Dimensions int    `json:"dimensions,omitempty"`
}

// batchResultLine はBatch API出力ファイルの1行
type batchResultLine struct {
	CustomID string `json:"custom_id"`
	Response struct {
		StatusCode int `json:"status_code"`
		Body       struct {
			Data []struct {
				Embedding []float32 `json:"embedding"`
			} `json:"data"`
		} `json:"body"`
	} `json:"response"`
}

// SubmitBatch はテキスト群をJSONLに固めてBatch APIへ投入し、ジョブIDを返す
func (e *Embedder) SubmitBatch(ctx context.Context, items []scrape.BatchItem) (string, error) {
	if len(items) == 0 {
		return "", fmt.Errorf("no batch items provided")
	}

	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	for _, item := range items {
		line := batchRequestLine{
			CustomID: item.CustomID,
			Method:   "POST",
			URL:      "/v1/embeddings",
			Body: batchEmbeddingBody{
				Input:      item.Text,
				Model:      e.model,
				Dimensions: e.dimension,
			},
		}
		if err := encoder.Encode(line); err != nil {
			return "", fmt.Errorf("failed to encode batch request: %w", err)
		}
	}

	file, err := e.client.Files.New(ctx, openai.FileNewParams{
		File:    openai.File(bytes.NewReader(buf.Bytes()), "embeddings.jsonl", "application/jsonl"),
		Purpose: openai.FilePurposeBatch,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload batch file: %w", err)
	}

	batch, err := e.client.Batches.New(ctx, openai.BatchNewParams{
		InputFileID:      file.ID,
		Endpoint:         openai.BatchNewParamsEndpointV1Embeddings,
		CompletionWindow: openai.BatchNewParamsCompletionWindow24h,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create batch job: %w", err)
	}

	return batch.ID, nil
}

// BatchStatus はジョブの現在状態を返す
func (e *Embedder) BatchStatus(ctx context.Context, jobID string) (scrape.BatchJobState, error) {
	batch, err := e.client.Batches.Get(ctx, jobID)
	if err != nil {
		return scrape.BatchJobRunning, fmt.Errorf("failed to retrieve batch job: %w", err)
	}

	switch batch.Status {
	case openai.BatchStatusCompleted:
		return scrape.BatchJobCompleted, nil
	case openai.BatchStatusFailed, openai.BatchStatusExpired:
		return scrape.BatchJobFailed, nil
	case openai.BatchStatusCancelled:
		return scrape.BatchJobCancelled, nil
	default:
		// validating / in_progress / finalizing / cancelling
		return scrape.BatchJobRunning, nil
	}
}

// CancelBatch はジョブのキャンセルを要求する
func (e *Embedder) CancelBatch(ctx context.Context, jobID string) error {
	if _, err := e.client.Batches.Cancel(ctx, jobID); err != nil {
		return fmt.Errorf("failed to cancel batch job: %w", err)
	}
	return nil
}

// BatchResults は完了したジョブの出力ファイルを読み、CustomID→埋め込みを返す
func (e *Embedder) BatchResults(ctx context.Context, jobID string) (map[string][]float32, error) {
	batch, err := e.client.Batches.Get(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve batch job: %w", err)
	}

	if batch.OutputFileID == "" {
		return nil, fmt.Errorf("batch job %s has no output file", jobID)
	}

	resp, err := e.client.Files.Content(ctx, batch.OutputFileID)
	if err != nil {
		return nil, fmt.Errorf("failed to download batch output: %w", err)
	}
	defer resp.Body.Close()

	results := make(map[string][]float32)
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}

		var result batchResultLine
		if err := json.Unmarshal(line, &result); err != nil {
			return nil, fmt.Errorf("failed to decode batch result line: %w", err)
		}
		if len(result.Response.Body.Data) == 0 {
			return nil, fmt.Errorf("custom_id %q: %w", result.CustomID, scrape.ErrEmbeddingMissing)
		}

		results[result.CustomID] = result.Response.Body.Data[0].Embedding
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read batch output: %w", err)
	}

	return results, nil
}
