package scrape

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/samber/mo"
)

// runeTokenCounter は1文字=1トークンとして数えるテスト用カウンタ
type runeTokenCounter struct{}

func (runeTokenCounter) Count(text string) int { return len([]rune(text)) }

// memoryStore はDocumentStoreとVectorStoreのインメモリ実装。
// 呼び出し順の検証用に操作ログを記録する。
type memoryStore struct {
	mu      sync.Mutex
	pages   map[string]*PageVersion
	archive []*PageVersion
	chunks  map[string]map[int]*ChunkRecord
	ops     []string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		pages:  make(map[string]*PageVersion),
		chunks: make(map[string]map[int]*ChunkRecord),
	}
}

func (s *memoryStore) log(format string, args ...any) {
	s.ops = append(s.ops, fmt.Sprintf(format, args...))
}

func (s *memoryStore) LatestVersion(_ context.Context, url string) (mo.Option[*PageVersion], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if page, ok := s.pages[url]; ok {
		return mo.Some(page), nil
	}
	return mo.None[*PageVersion](), nil
}

func (s *memoryStore) Insert(_ context.Context, page *PageVersion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log("insert %s v%d", page.URL, page.Version)
	s.pages[page.URL] = page
	return nil
}

func (s *memoryStore) DeleteCurrent(_ context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log("delete-current %s", url)
	delete(s.pages, url)
	return nil
}

func (s *memoryStore) InsertArchive(_ context.Context, page *PageVersion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log("archive %s v%d", page.URL, page.Version)
	s.archive = append(s.archive, page)
	return nil
}

func (s *memoryStore) ListURLs(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	urls := make([]string, 0, len(s.pages))
	for url := range s.pages {
		urls = append(urls, url)
	}
	sort.Strings(urls)
	return urls, nil
}

func (s *memoryStore) ChunksByURL(_ context.Context, url string) ([]*ChunkRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var chunks []*ChunkRecord
	for _, chunk := range s.chunks[url] {
		chunks = append(chunks, chunk)
	}
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].ChunkNumber < chunks[j].ChunkNumber })
	return chunks, nil
}

func (s *memoryStore) Upsert(_ context.Context, chunk *ChunkRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log("upsert %s #%d", chunk.URL, chunk.ChunkNumber)
	if s.chunks[chunk.URL] == nil {
		s.chunks[chunk.URL] = make(map[int]*ChunkRecord)
	}
	s.chunks[chunk.URL][chunk.ChunkNumber] = chunk
	return nil
}

func (s *memoryStore) DeleteChunk(_ context.Context, url string, chunkNumber int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log("delete-chunk %s #%d", url, chunkNumber)
	delete(s.chunks[url], chunkNumber)
	return nil
}

func (s *memoryStore) DeleteByURL(_ context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log("delete-url %s", url)
	delete(s.chunks, url)
	return nil
}

func (s *memoryStore) writeOps() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ops := make([]string, len(s.ops))
	copy(ops, s.ops)
	return ops
}

// fakeEmbeddingClient は投入内容を記録するテスト用のEmbeddingClient。
// 既定ではバッチは即時完了し、全項目に埋め込みを返す。
type fakeEmbeddingClient struct {
	mu       sync.Mutex
	jobs     map[string][]BatchItem
	order    []string
	cancels  []string
	embedded []string

	stayRunning bool            // 状態が常にrunningのまま
	failBatch   bool            // 状態がfailedになる
	dropIDs     map[string]bool // 結果から除外するCustomID
	embedErr    error           // 同期Embedの失敗
}

func newFakeEmbeddingClient() *fakeEmbeddingClient {
	return &fakeEmbeddingClient{jobs: make(map[string][]BatchItem)}
}

func (f *fakeEmbeddingClient) Embed(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	f.embedded = append(f.embedded, text)
	return []float32{0.5}, nil
}

func (f *fakeEmbeddingClient) SubmitBatch(_ context.Context, items []BatchItem) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	jobID := fmt.Sprintf("job-%d", len(f.order))
	copied := make([]BatchItem, len(items))
	copy(copied, items)
	f.jobs[jobID] = copied
	f.order = append(f.order, jobID)
	return jobID, nil
}

func (f *fakeEmbeddingClient) BatchStatus(_ context.Context, _ string) (BatchJobState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stayRunning {
		return BatchJobRunning, nil
	}
	if f.failBatch {
		return BatchJobFailed, nil
	}
	return BatchJobCompleted, nil
}

func (f *fakeEmbeddingClient) CancelBatch(_ context.Context, jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels = append(f.cancels, jobID)
	return nil
}

func (f *fakeEmbeddingClient) BatchResults(_ context.Context, jobID string) (map[string][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	results := make(map[string][]float32)
	for _, item := range f.jobs[jobID] {
		if f.dropIDs[item.CustomID] {
			continue
		}
		results[item.CustomID] = []float32{1.0}
	}
	return results, nil
}

func (f *fakeEmbeddingClient) Close() error { return nil }

func (f *fakeEmbeddingClient) batches() [][]BatchItem {
	f.mu.Lock()
	defer f.mu.Unlock()
	var batches [][]BatchItem
	for _, jobID := range f.order {
		batches = append(batches, f.jobs[jobID])
	}
	return batches
}

// fakeFetcher はURLごとに固定の本文またはエラーを返すテスト用フェッチャ
type fakeFetcher struct {
	pages map[string]string
	errs  map[string]error
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (*FetchResult, error) {
	if err, ok := f.errs[url]; ok {
		return nil, err
	}
	body, ok := f.pages[url]
	if !ok {
		return nil, ErrConnection
	}
	return &FetchResult{StatusCode: 200, Body: body}, nil
}
