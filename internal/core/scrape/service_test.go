package scrape

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pageHTML(paragraphs ...string) string {
	var sb strings.Builder
	sb.WriteString("<html><body>")
	for _, p := range paragraphs {
		sb.WriteString("<p>")
		sb.WriteString(p)
		sb.WriteString("</p>")
	}
	sb.WriteString("</body></html>")
	return sb.String()
}

func newTestService(fetcher Fetcher, store *memoryStore, client *fakeEmbeddingClient) *Service {
	return NewService(fetcher, store, store, client, runeTokenCounter{},
		WithChunkSize(120),
		WithCoordinatorOptions(WithPollInterval(time.Millisecond)),
	)
}

func TestScrapePageNewPage(t *testing.T) {
	store := newMemoryStore()
	client := newFakeEmbeddingClient()
	fetcher := &fakeFetcher{pages: map[string]string{
		"https://example.com/a": pageHTML("First paragraph about the topic.", "Second paragraph with more words."),
	}}

	service := newTestService(fetcher, store, client)

	message, err := service.ScrapePage(context.Background(), PageRequest{URL: "https://example.com/a"})
	require.NoError(t, err)
	assert.Equal(t, MessageSuccess, message)

	page, ok := store.pages["https://example.com/a"]
	require.True(t, ok)
	assert.Equal(t, 1, page.Version)
	assert.Equal(t, DefaultDescription, page.Description)
	assert.Equal(t, DefaultOwner, page.Owner)

	chunks, err := store.ChunksByURL(context.Background(), "https://example.com/a")
	require.NoError(t, err)
	assert.NotEmpty(t, chunks)
	for _, chunk := range chunks {
		assert.NotNil(t, chunk.Embedding)
		assert.Equal(t, page.ContentHash, chunk.PageHash)
	}
}

func TestScrapePageIdempotentRescrape(t *testing.T) {
	store := newMemoryStore()
	client := newFakeEmbeddingClient()
	fetcher := &fakeFetcher{pages: map[string]string{
		"https://example.com/a": pageHTML("Stable content that does not change."),
	}}

	service := newTestService(fetcher, store, client)

	_, err := service.ScrapePage(context.Background(), PageRequest{URL: "https://example.com/a"})
	require.NoError(t, err)

	opsAfterFirst := len(store.writeOps())
	embedsAfterFirst := len(client.embedded)

	message, err := service.ScrapePage(context.Background(), PageRequest{URL: "https://example.com/a"})
	require.NoError(t, err)
	assert.Equal(t, MessageSuccess, message)

	assert.Len(t, store.writeOps(), opsAfterFirst, "an unchanged page must cause zero writes")
	assert.Len(t, client.embedded, embedsAfterFirst, "an unchanged page must cause zero embedding calls")

	page := store.pages["https://example.com/a"]
	assert.Equal(t, 1, page.Version, "the version must not advance without a content change")
}

func TestScrapePageFetchError(t *testing.T) {
	store := newMemoryStore()
	client := newFakeEmbeddingClient()
	fetcher := &fakeFetcher{errs: map[string]error{"https://example.com/down": ErrConnection}}

	service := newTestService(fetcher, store, client)

	_, err := service.ScrapePage(context.Background(), PageRequest{URL: "https://example.com/down"})
	require.ErrorIs(t, err, ErrConnection)

	code, _ := StatusForError(err)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Empty(t, store.writeOps())
}

func TestScrapePageMissingURL(t *testing.T) {
	service := newTestService(&fakeFetcher{}, newMemoryStore(), newFakeEmbeddingClient())

	_, err := service.ScrapePage(context.Background(), PageRequest{})
	require.ErrorIs(t, err, ErrMissingURL)

	code, _ := StatusForError(err)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestScrapeBatchIsolatesFailures(t *testing.T) {
	store := newMemoryStore()
	client := newFakeEmbeddingClient()
	fetcher := &fakeFetcher{
		pages: map[string]string{
			"https://example.com/a": pageHTML("Page a body text."),
			"https://example.com/b": pageHTML("Page b body text."),
		},
		errs: map[string]error{
			"https://example.com/c": ErrConnection,
		},
	}

	service := newTestService(fetcher, store, client)

	report, err := service.ScrapeBatch(context.Background(), []PageRequest{
		{URL: "https://example.com/a"},
		{URL: "https://example.com/b"},
		{URL: "https://example.com/c"},
	})
	require.NoError(t, err)
	require.Len(t, report.Pages, 3)

	assert.True(t, report.Succeeded("https://example.com/a"))
	assert.True(t, report.Succeeded("https://example.com/b"))

	failed, ok := report.Status("https://example.com/c")
	require.True(t, ok)
	assert.Equal(t, http.StatusServiceUnavailable, failed.Code)

	code, message := report.Aggregate()
	assert.Equal(t, http.StatusMultiStatus, code)
	assert.Equal(t, MessagePartialSuccess, message)

	// 成功したページはストアに反映されている
	assert.Contains(t, store.pages, "https://example.com/a")
	assert.Contains(t, store.pages, "https://example.com/b")
	assert.NotContains(t, store.pages, "https://example.com/c")
}

func TestScrapeBatchAllFailed(t *testing.T) {
	service := newTestService(&fakeFetcher{errs: map[string]error{
		"https://example.com/x": ErrFetchTimeout,
	}}, newMemoryStore(), newFakeEmbeddingClient())

	report, err := service.ScrapeBatch(context.Background(), []PageRequest{{URL: "https://example.com/x"}})
	require.NoError(t, err)

	status, ok := report.Status("https://example.com/x")
	require.True(t, ok)
	assert.Equal(t, http.StatusRequestTimeout, status.Code)

	code, message := report.Aggregate()
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, MessageAllFailed, message)
}

func TestScrapeBatchEmptyInput(t *testing.T) {
	service := newTestService(&fakeFetcher{}, newMemoryStore(), newFakeEmbeddingClient())

	report, err := service.ScrapeBatch(context.Background(), nil)
	require.NoError(t, err)

	code, message := report.Aggregate()
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, MessageNoPages, message)
}

func TestScrapeBatchDeduplicatesURLs(t *testing.T) {
	store := newMemoryStore()
	client := newFakeEmbeddingClient()
	fetcher := &fakeFetcher{pages: map[string]string{
		"https://example.com/a": pageHTML("Page a body text."),
	}}

	service := newTestService(fetcher, store, client)

	report, err := service.ScrapeBatch(context.Background(), []PageRequest{
		{URL: "https://example.com/a"},
		{URL: "https://example.com/a"},
	})
	require.NoError(t, err)
	assert.Len(t, report.Pages, 1, "duplicate urls collapse into a single entry")
}

func TestScrapeBatchMissingURL(t *testing.T) {
	service := newTestService(&fakeFetcher{}, newMemoryStore(), newFakeEmbeddingClient())

	_, err := service.ScrapeBatch(context.Background(), []PageRequest{{URL: ""}})
	require.ErrorIs(t, err, ErrMissingURL)
}

func TestScrapeBatchEmbeddingFailureIsFatal(t *testing.T) {
	store := newMemoryStore()
	client := newFakeEmbeddingClient()
	client.failBatch = true
	fetcher := &fakeFetcher{pages: map[string]string{
		"https://example.com/a": pageHTML("Page a body text."),
	}}

	service := newTestService(fetcher, store, client)

	_, err := service.ScrapeBatch(context.Background(), []PageRequest{{URL: "https://example.com/a"}})
	require.ErrorIs(t, err, ErrBatchFailed)

	// 埋め込みが無いページは反映されない
	assert.NotContains(t, store.pages, "https://example.com/a")
}

func TestRefreshAll(t *testing.T) {
	store := newMemoryStore()
	client := newFakeEmbeddingClient()
	fetcher := &fakeFetcher{pages: map[string]string{
		"https://example.com/a": pageHTML("Page a body text."),
	}}

	service := newTestService(fetcher, store, client)

	_, err := service.ScrapePage(context.Background(), PageRequest{URL: "https://example.com/a"})
	require.NoError(t, err)

	report, err := service.RefreshAll(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Pages, 1)
	assert.True(t, report.Succeeded("https://example.com/a"))

	// 内容が変わっていないのでバージョンはそのまま
	assert.Equal(t, 1, store.pages["https://example.com/a"].Version)
}

func TestRefreshAllEmptyStore(t *testing.T) {
	service := newTestService(&fakeFetcher{}, newMemoryStore(), newFakeEmbeddingClient())

	report, err := service.RefreshAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Pages)
}

func TestDeletePage(t *testing.T) {
	store := newMemoryStore()
	client := newFakeEmbeddingClient()
	fetcher := &fakeFetcher{pages: map[string]string{
		"https://example.com/a": pageHTML("Page a body text."),
	}}

	service := newTestService(fetcher, store, client)

	_, err := service.ScrapePage(context.Background(), PageRequest{URL: "https://example.com/a"})
	require.NoError(t, err)
	archived := len(store.archive)

	require.NoError(t, service.DeletePage(context.Background(), "https://example.com/a"))

	assert.NotContains(t, store.pages, "https://example.com/a")
	chunks, err := store.ChunksByURL(context.Background(), "https://example.com/a")
	require.NoError(t, err)
	assert.Empty(t, chunks)
	assert.Len(t, store.archive, archived, "deleting a page never touches the archive")
}

func TestListChunks(t *testing.T) {
	store := newMemoryStore()
	client := newFakeEmbeddingClient()
	fetcher := &fakeFetcher{pages: map[string]string{
		"https://example.com/a": pageHTML("Page a body text."),
	}}

	service := newTestService(fetcher, store, client)

	_, err := service.ScrapePage(context.Background(), PageRequest{URL: "https://example.com/a"})
	require.NoError(t, err)

	chunks, err := service.ListChunks(context.Background(), "https://example.com/a")
	require.NoError(t, err)
	assert.NotEmpty(t, chunks)

	_, err = service.ListChunks(context.Background(), "")
	require.ErrorIs(t, err, ErrMissingURL)
}
