package httpfetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/jinford/scrape-rag/internal/core/scrape"
)

// DefaultTimeout は1ページ取得の既定タイムアウト
const DefaultTimeout = 15 * time.Second

// Fetcher はnet/httpによるscrape.Fetcher実装。
// 失敗をドメインのエラー分類に写してから返します。
type Fetcher struct {
	client *http.Client
	logger *slog.Logger
}

var _ scrape.Fetcher = (*Fetcher)(nil)

// Option はFetcherの設定オプション
type Option func(*Fetcher)

// WithTimeout はHTTPタイムアウトを設定します
func WithTimeout(timeout time.Duration) Option {
	return func(f *Fetcher) {
		if timeout > 0 {
			f.client.Timeout = timeout
		}
	}
}

// WithLogger はロガーを設定します
func WithLogger(logger *slog.Logger) Option {
	return func(f *Fetcher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// New は新しいFetcherを作成します
func New(opts ...Option) *Fetcher {
	f := &Fetcher{
		client: &http.Client{Timeout: DefaultTimeout},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch はURLをGETして本文を返します
func (f *Fetcher) Fetch(ctx context.Context, url string) (*scrape.FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", url, scrape.ErrConnection)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("%s: %w", url, scrape.ErrFetchTimeout)
		}
		return nil, fmt.Errorf("%s: %w", url, scrape.ErrConnection)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", url, scrape.ErrConnection)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		f.logger.Warn("2xx以外の応答を受信", "url", url, "status", resp.StatusCode)
		return nil, &scrape.HTTPStatusError{
			Code:   resp.StatusCode,
			Reason: http.StatusText(resp.StatusCode),
		}
	}

	if strings.TrimSpace(string(body)) == "" {
		return nil, fmt.Errorf("%s: %w", url, scrape.ErrEmptyBody)
	}

	return &scrape.FetchResult{
		StatusCode: resp.StatusCode,
		Body:       string(body),
	}, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
