package scrape

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
)

// ErrMissingURL はURL未指定のリクエストに対するエラー
var ErrMissingURL = errors.New("request url must not be empty")

// DefaultChunkSize はチャンク分割の既定の文字数上限
const DefaultChunkSize = 1000

// Service はページ取得からストア反映までのパイプラインを束ねます
type Service struct {
	fetcher     Fetcher
	documents   DocumentStore
	vectors     VectorStore
	embeddings  EmbeddingClient
	diff        *DiffEngine
	coordinator *EmbeddingCoordinator
	reconciler  *Reconciler
	locker      URLLocker
	chunkSize   int
	logger      *slog.Logger

	coordinatorOpts []CoordinatorOption

	// locker未設定時のプロセス内フォールバック
	muxes sync.Map
}

// ServiceOption はServiceの設定オプション
type ServiceOption func(*Service)

// WithChunkSize はチャンク分割の文字数上限を設定します
func WithChunkSize(size int) ServiceOption {
	return func(s *Service) {
		if size > 0 {
			s.chunkSize = size
		}
	}
}

// WithLogger はロガーを設定します
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithURLLocker はプロセス横断のURLロックを設定します
func WithURLLocker(locker URLLocker) ServiceOption {
	return func(s *Service) {
		s.locker = locker
	}
}

// WithCoordinatorOptions はバッチ埋め込みの設定を転送します
func WithCoordinatorOptions(opts ...CoordinatorOption) ServiceOption {
	return func(s *Service) {
		s.coordinatorOpts = append(s.coordinatorOpts, opts...)
	}
}

// NewService は新しいServiceを作成します
func NewService(fetcher Fetcher, documents DocumentStore, vectors VectorStore, embeddings EmbeddingClient, tokens TokenCounter, opts ...ServiceOption) *Service {
	s := &Service{
		fetcher:    fetcher,
		documents:  documents,
		vectors:    vectors,
		embeddings: embeddings,
		chunkSize:  DefaultChunkSize,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.diff = NewDiffEngine(vectors, tokens, s.logger)
	s.coordinator = NewEmbeddingCoordinator(embeddings, append([]CoordinatorOption{WithCoordinatorLogger(s.logger)}, s.coordinatorOpts...)...)
	s.reconciler = NewReconciler(documents, vectors, s.logger)

	return s
}

// ScrapePage は1ページを取得してストアへ反映します。
// 取得や正規化の失敗はそのままエラーとして返します（StatusForErrorで
// HTTPステータスへ変換できます）。本文が前回から変わっていなければ
// 何も書き込みません。
func (s *Service) ScrapePage(ctx context.Context, req PageRequest) (string, error) {
	if req.URL == "" {
		return "", ErrMissingURL
	}
	req = req.WithPlaceholders()

	release, err := s.lockURL(ctx, req.URL)
	if err != nil {
		return "", fmt.Errorf("URLロックの獲得に失敗: %w", err)
	}
	defer release()

	result, err := s.fetcher.Fetch(ctx, req.URL)
	if err != nil {
		return "", err
	}

	content, err := NormalizeHTML(result.Body)
	if err != nil {
		return "", err
	}

	contentHash, err := Fingerprint(content)
	if err != nil {
		return "", err
	}

	latest, err := s.documents.LatestVersion(ctx, req.URL)
	if err != nil {
		return "", fmt.Errorf("最新バージョンの取得に失敗: %w", err)
	}

	isNew := true
	if prev, ok := latest.Get(); ok {
		isNew = false
		if prev.ContentHash == contentHash {
			s.logger.Info("本文に変更なし、更新をスキップします", "url", req.URL, "version", prev.Version)
			return MessageSuccess, nil
		}
	}

	chunks, err := SplitText(content, s.chunkSize)
	if err != nil {
		return "", err
	}

	diff, err := s.diff.Build(ctx, req, content, contentHash, chunks, isNew)
	if err != nil {
		return "", err
	}

	for _, chunk := range diff.Changed {
		embedding, err := s.embeddings.Embed(ctx, chunk.Content)
		if err != nil {
			return "", fmt.Errorf("埋め込みの取得に失敗: %w", err)
		}
		chunk.Embedding = embedding
	}

	if err := s.reconciler.Apply(ctx, diff); err != nil {
		return "", err
	}

	return MessageSuccess, nil
}

// ScrapeBatch は複数ページをまとめて処理し、URLごとの結果を報告します。
//
// 取得・正規化の失敗はそのページの結果に記録するだけで他のページの処理は
// 続行します。埋め込みバッチはページをまたいで詰められるため、その失敗は
// バッチ全体の失敗としてエラーを返します（レポートは途中経過を保持）。
func (s *Service) ScrapeBatch(ctx context.Context, reqs []PageRequest) (*BatchReport, error) {
	unique, err := uniqueRequests(reqs)
	if err != nil {
		return nil, err
	}

	report := NewBatchReport()

	type pendingPage struct {
		req     PageRequest
		content string
		hash    string
	}

	// 取得フェーズ: URLごとに結果を記録し、成功分だけ先へ進める
	var pending []*pendingPage
	for _, req := range unique {
		result, err := s.fetcher.Fetch(ctx, req.URL)
		if err != nil {
			code, msg := StatusForError(err)
			report.Add(req.URL, code, msg)
			s.logger.Warn("ページの取得に失敗", "url", req.URL, "status", code, "error", err)
			continue
		}

		content, err := NormalizeHTML(result.Body)
		if err != nil {
			code, msg := StatusForError(err)
			report.Add(req.URL, code, msg)
			continue
		}

		hash, err := Fingerprint(content)
		if err != nil {
			report.Add(req.URL, http.StatusInternalServerError, err.Error())
			continue
		}

		report.Add(req.URL, http.StatusOK, MessageFetched)
		pending = append(pending, &pendingPage{req: req, content: content, hash: hash})
	}

	// ロックはURL昇順で獲得し、反映完了まで保持する
	sorted := make([]*pendingPage, len(pending))
	copy(sorted, pending)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].req.URL < sorted[j].req.URL })
	for _, page := range sorted {
		release, err := s.lockURL(ctx, page.req.URL)
		if err != nil {
			return report, fmt.Errorf("URLロックの獲得に失敗: %w", err)
		}
		defer release()
	}

	// 差分フェーズ
	var diffs []*DiffResult
	for _, page := range pending {
		latest, err := s.documents.LatestVersion(ctx, page.req.URL)
		if err != nil {
			report.Set(page.req.URL, http.StatusInternalServerError, err.Error())
			continue
		}

		isNew := true
		if prev, ok := latest.Get(); ok {
			isNew = false
			if prev.ContentHash == page.hash {
				s.logger.Info("本文に変更なし、更新をスキップします", "url", page.req.URL, "version", prev.Version)
				continue
			}
		}

		chunks, err := SplitText(page.content, s.chunkSize)
		if err != nil {
			report.Set(page.req.URL, http.StatusInternalServerError, err.Error())
			continue
		}

		diff, err := s.diff.Build(ctx, page.req, page.content, page.hash, chunks, isNew)
		if err != nil {
			report.Set(page.req.URL, http.StatusInternalServerError, err.Error())
			continue
		}

		diffs = append(diffs, diff)
	}

	// 埋め込みフェーズ: バッチはページをまたぐため、失敗は全体の失敗
	if err := s.coordinator.EmbedChanged(ctx, diffs); err != nil {
		return report, fmt.Errorf("埋め込みバッチの処理に失敗: %w", err)
	}

	// 反映フェーズ
	for _, diff := range diffs {
		if err := s.reconciler.Apply(ctx, diff); err != nil {
			report.Set(diff.URL, http.StatusInternalServerError, err.Error())
			s.logger.Error("ストアへの反映に失敗", "url", diff.URL, "error", err)
		}
	}

	return report, nil
}

// RefreshAll は登録済みの全URLを再取得します
func (s *Service) RefreshAll(ctx context.Context) (*BatchReport, error) {
	urls, err := s.documents.ListURLs(ctx)
	if err != nil {
		return nil, fmt.Errorf("URL一覧の取得に失敗: %w", err)
	}

	if len(urls) == 0 {
		s.logger.Info("登録済みのURLがないため再取得をスキップします")
		return NewBatchReport(), nil
	}

	reqs := make([]PageRequest, 0, len(urls))
	for _, url := range urls {
		reqs = append(reqs, PageRequest{URL: url}.WithPlaceholders())
	}

	s.logger.Info("全URLの再取得を開始します", "urls", len(urls))
	return s.ScrapeBatch(ctx, reqs)
}

// ListChunks はURLの保存済みチャンクを返します
func (s *Service) ListChunks(ctx context.Context, url string) ([]*ChunkRecord, error) {
	if url == "" {
		return nil, ErrMissingURL
	}
	return s.vectors.ChunksByURL(ctx, url)
}

// DeletePage はURLの現行データを両ストアから削除します。アーカイブは残ります。
func (s *Service) DeletePage(ctx context.Context, url string) error {
	if url == "" {
		return ErrMissingURL
	}

	release, err := s.lockURL(ctx, url)
	if err != nil {
		return fmt.Errorf("URLロックの獲得に失敗: %w", err)
	}
	defer release()

	if err := s.vectors.DeleteByURL(ctx, url); err != nil {
		return fmt.Errorf("チャンクの削除に失敗: %w", err)
	}
	if err := s.documents.DeleteCurrent(ctx, url); err != nil {
		return fmt.Errorf("ページの削除に失敗: %w", err)
	}

	s.logger.Info("ページを削除しました", "url", url)
	return nil
}

// lockURL は設定に応じてプロセス横断ロックかプロセス内ミューテックスを使います
func (s *Service) lockURL(ctx context.Context, url string) (func(), error) {
	if s.locker != nil {
		return s.locker.LockURL(ctx, url)
	}

	v, _ := s.muxes.LoadOrStore(url, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock, nil
}

// uniqueRequests はURLで重複排除します（先勝ち）。URLが空ならエラー。
func uniqueRequests(reqs []PageRequest) ([]PageRequest, error) {
	seen := make(map[string]struct{}, len(reqs))
	unique := make([]PageRequest, 0, len(reqs))

	for _, req := range reqs {
		if req.URL == "" {
			return nil, ErrMissingURL
		}
		if _, ok := seen[req.URL]; ok {
			continue
		}
		seen[req.URL] = struct{}{}
		unique = append(unique, req.WithPlaceholders())
	}

	return unique, nil
}

// StatusForError はパイプラインのエラーをHTTPステータスと説明文に写します
func StatusForError(err error) (int, string) {
	var statusErr *HTTPStatusError
	switch {
	case errors.Is(err, ErrMissingURL):
		return http.StatusBadRequest, "The request url must not be empty."
	case errors.Is(err, ErrFetchTimeout):
		return http.StatusRequestTimeout, "The request timed out."
	case errors.Is(err, ErrConnection):
		return http.StatusServiceUnavailable, "A connection error occurred."
	case errors.As(err, &statusErr):
		return http.StatusNotFound, fmt.Sprintf("The page could not be retrieved (status %d %s).", statusErr.Code, statusErr.Reason)
	case errors.Is(err, ErrEmptyContent), errors.Is(err, ErrEmptyBody):
		return http.StatusInternalServerError, "The page did not contain any indexable content."
	case errors.Is(err, ErrBatchFailed), errors.Is(err, ErrBatchCancelled):
		return http.StatusBadRequest, "The embedding provider rejected the batch job."
	default:
		return http.StatusInternalServerError, fmt.Sprintf("An unexpected error occurred: %v", err)
	}
}
