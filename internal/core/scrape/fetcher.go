package scrape

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrFetchTimeout はページ取得のタイムアウト
	ErrFetchTimeout = errors.New("request timed out")

	// ErrConnection は接続レベルの失敗（DNS、到達不能など）
	ErrConnection = errors.New("connection error")

	// ErrEmptyBody は2xx応答だが本文が空の場合のエラー
	ErrEmptyBody = errors.New("fetched page body is empty")
)

// HTTPStatusError は2xx以外の応答を表します
type HTTPStatusError struct {
	Code   int
	Reason string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Reason)
}

// FetchResult は取得に成功したページ
type FetchResult struct {
	StatusCode int
	Body       string
}

// Fetcher はURLからページ本文を取得します。
// 失敗はErrFetchTimeout、ErrConnection、*HTTPStatusError、ErrEmptyBodyの
// いずれかに分類して返します。
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*FetchResult, error)
}
