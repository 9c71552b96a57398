package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/scrape-rag/internal/core/scrape"
)

// fakeService は固定の結果を返すテスト用ScraperService
type fakeService struct {
	pageMessage string
	pageErr     error
	report      *scrape.BatchReport
	batchErr    error
	chunks      []*scrape.ChunkRecord
	chunksErr   error
	deleteErr   error

	gotPage  scrape.PageRequest
	gotBatch []scrape.PageRequest
	gotURL   string
}

func (f *fakeService) ScrapePage(_ context.Context, req scrape.PageRequest) (string, error) {
	f.gotPage = req
	return f.pageMessage, f.pageErr
}

func (f *fakeService) ScrapeBatch(_ context.Context, reqs []scrape.PageRequest) (*scrape.BatchReport, error) {
	f.gotBatch = reqs
	return f.report, f.batchErr
}

func (f *fakeService) ListChunks(_ context.Context, url string) ([]*scrape.ChunkRecord, error) {
	f.gotURL = url
	return f.chunks, f.chunksErr
}

func (f *fakeService) DeletePage(_ context.Context, url string) error {
	f.gotURL = url
	return f.deleteErr
}

func TestScrapePageHandler(t *testing.T) {
	service := &fakeService{pageMessage: scrape.MessageSuccess}
	handler := NewScraperHandler(service, nil)

	body := `{"url": "https://example.com/a", "description": "desc", "owner": "me"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/scraper", strings.NewReader(body))
	rec := httptest.NewRecorder()

	handler.ScrapePage(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://example.com/a", service.gotPage.URL)
	assert.Equal(t, "desc", service.gotPage.Description)

	var resp singleResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, scrape.MessageSuccess, resp.Data)
}

func TestScrapePageHandlerErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{name: "タイムアウト", err: scrape.ErrFetchTimeout, wantCode: http.StatusRequestTimeout},
		{name: "接続エラー", err: scrape.ErrConnection, wantCode: http.StatusServiceUnavailable},
		{name: "URL未指定", err: scrape.ErrMissingURL, wantCode: http.StatusBadRequest},
		{name: "リモートの404", err: &scrape.HTTPStatusError{Code: 404, Reason: "Not Found"}, wantCode: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewScraperHandler(&fakeService{pageErr: tt.err}, nil)

			req := httptest.NewRequest(http.MethodPost, "/api/v1/scraper", strings.NewReader(`{"url": "https://x"}`))
			rec := httptest.NewRecorder()

			handler.ScrapePage(rec, req)
			assert.Equal(t, tt.wantCode, rec.Code)
		})
	}
}

func TestScrapePageHandlerInvalidBody(t *testing.T) {
	handler := NewScraperHandler(&fakeService{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/scraper", strings.NewReader("not json"))
	rec := httptest.NewRecorder()

	handler.ScrapePage(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestScrapeBatchHandlerPartialSuccess(t *testing.T) {
	report := scrape.NewBatchReport()
	report.Add("https://a", http.StatusOK, scrape.MessageFetched)
	report.Add("https://b", http.StatusServiceUnavailable, "A connection error occurred.")

	service := &fakeService{report: report}
	handler := NewScraperHandler(service, nil)

	body := `{"pages": [{"url": "https://a"}, {"url": "https://b"}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/scraper/batch", strings.NewReader(body))
	rec := httptest.NewRecorder()

	handler.ScrapeBatch(rec, req)

	assert.Equal(t, http.StatusMultiStatus, rec.Code)
	require.Len(t, service.gotBatch, 2)

	var resp batchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, http.StatusMultiStatus, resp.Status)
	require.Len(t, resp.Pages, 2)
	assert.Equal(t, "https://a", resp.Pages[0].URL)
	assert.Equal(t, http.StatusOK, resp.Pages[0].Status)
	assert.Equal(t, http.StatusServiceUnavailable, resp.Pages[1].Status)
}

func TestScrapeBatchHandlerFatalError(t *testing.T) {
	service := &fakeService{batchErr: scrape.ErrBatchFailed}
	handler := NewScraperHandler(service, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/scraper/batch", strings.NewReader(`{"pages": [{"url": "https://a"}]}`))
	rec := httptest.NewRecorder()

	handler.ScrapeBatch(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListChunksHandler(t *testing.T) {
	service := &fakeService{chunks: []*scrape.ChunkRecord{
		{ID: "id-0", URL: "https://a", ChunkNumber: 0, Content: "chunk text"},
	}}
	handler := NewScraperHandler(service, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/scraper/chunks?url=https://a", nil)
	rec := httptest.NewRecorder()

	handler.ListChunks(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://a", service.gotURL)

	var resp chunksResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Chunks, 1)
	assert.Equal(t, "chunk text", resp.Chunks[0].Content)
}

func TestDeletePageHandler(t *testing.T) {
	service := &fakeService{}
	handler := NewScraperHandler(service, nil)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/scraper?url=https://a", nil)
	rec := httptest.NewRecorder()

	handler.DeletePage(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://a", service.gotURL)
}

func TestDeletePageHandlerMissingURL(t *testing.T) {
	service := &fakeService{deleteErr: scrape.ErrMissingURL}
	handler := NewScraperHandler(service, nil)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/scraper", nil)
	rec := httptest.NewRecorder()

	handler.DeletePage(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
