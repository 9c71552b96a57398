package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/jinford/scrape-rag/internal/core/scrape"
)

// ScraperService はハンドラが必要とするパイプライン操作
type ScraperService interface {
	ScrapePage(ctx context.Context, req scrape.PageRequest) (string, error)
	ScrapeBatch(ctx context.Context, reqs []scrape.PageRequest) (*scrape.BatchReport, error)
	ListChunks(ctx context.Context, url string) ([]*scrape.ChunkRecord, error)
	DeletePage(ctx context.Context, url string) error
}

// ScraperHandler はスクレイパーAPIのHTTPハンドラ
type ScraperHandler struct {
	service ScraperService
	logger  *slog.Logger
}

// NewScraperHandler は新しいScraperHandlerを作成します
func NewScraperHandler(service ScraperService, logger *slog.Logger) *ScraperHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ScraperHandler{
		service: service,
		logger:  logger,
	}
}

type pageRequestBody struct {
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
	Owner       string `json:"owner,omitempty"`
}

type batchRequestBody struct {
	Pages []pageRequestBody `json:"pages"`
}

type singleResponse struct {
	Status int    `json:"status"`
	Data   string `json:"data"`
}

type pageStatusBody struct {
	URL     string `json:"url"`
	Status  int    `json:"status"`
	Message string `json:"message"`
}

type batchResponse struct {
	Status  int              `json:"status"`
	Message string           `json:"message"`
	Pages   []pageStatusBody `json:"pages"`
}

type chunkBody struct {
	ID          string    `json:"id"`
	URL         string    `json:"url"`
	ChunkNumber int       `json:"chunk_number"`
	ChunkHash   string    `json:"chunk_hash"`
	Content     string    `json:"content"`
	Description string    `json:"description"`
	Owner       string    `json:"owner"`
	CapturedAt  time.Time `json:"captured_at"`
}

type chunksResponse struct {
	Status int         `json:"status"`
	URL    string      `json:"url"`
	Chunks []chunkBody `json:"chunks"`
}

type errorResponse struct {
	Status int    `json:"status"`
	Error  string `json:"error"`
}

// ScrapePage は POST /api/v1/scraper を処理します
func (h *ScraperHandler) ScrapePage(w http.ResponseWriter, r *http.Request) {
	var body pageRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Status: http.StatusBadRequest,
			Error:  "invalid request body",
		})
		return
	}

	message, err := h.service.ScrapePage(r.Context(), scrape.PageRequest{
		URL:         body.URL,
		Description: body.Description,
		Owner:       body.Owner,
	})
	if err != nil {
		code, msg := scrape.StatusForError(err)
		h.logger.Warn("ページの処理に失敗", "url", body.URL, "status", code, "error", err)
		writeJSON(w, code, errorResponse{Status: code, Error: msg})
		return
	}

	writeJSON(w, http.StatusOK, singleResponse{Status: http.StatusOK, Data: message})
}

// ScrapeBatch は POST /api/v1/scraper/batch を処理します
func (h *ScraperHandler) ScrapeBatch(w http.ResponseWriter, r *http.Request) {
	var body batchRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Status: http.StatusBadRequest,
			Error:  "invalid request body",
		})
		return
	}

	reqs := make([]scrape.PageRequest, 0, len(body.Pages))
	for _, page := range body.Pages {
		reqs = append(reqs, scrape.PageRequest{
			URL:         page.URL,
			Description: page.Description,
			Owner:       page.Owner,
		})
	}

	report, err := h.service.ScrapeBatch(r.Context(), reqs)
	if err != nil {
		code, msg := scrape.StatusForError(err)
		h.logger.Error("バッチの処理に失敗", "status", code, "error", err)
		writeJSON(w, code, errorResponse{Status: code, Error: msg})
		return
	}

	code, message := report.Aggregate()
	resp := batchResponse{
		Status:  code,
		Message: message,
		Pages:   make([]pageStatusBody, 0, len(report.Pages)),
	}
	for _, page := range report.Pages {
		resp.Pages = append(resp.Pages, pageStatusBody{
			URL:     page.URL,
			Status:  page.Code,
			Message: page.Message,
		})
	}

	writeJSON(w, code, resp)
}

// ListChunks は GET /api/v1/scraper/chunks を処理します
func (h *ScraperHandler) ListChunks(w http.ResponseWriter, r *http.Request) {
	url := r.URL.Query().Get("url")

	chunks, err := h.service.ListChunks(r.Context(), url)
	if err != nil {
		code, msg := scrape.StatusForError(err)
		writeJSON(w, code, errorResponse{Status: code, Error: msg})
		return
	}

	resp := chunksResponse{
		Status: http.StatusOK,
		URL:    url,
		Chunks: make([]chunkBody, 0, len(chunks)),
	}
	for _, chunk := range chunks {
		resp.Chunks = append(resp.Chunks, chunkBody{
			ID:          chunk.ID,
			URL:         chunk.URL,
			ChunkNumber: chunk.ChunkNumber,
			ChunkHash:   chunk.ChunkHash,
			Content:     chunk.Content,
			Description: chunk.Description,
			Owner:       chunk.Owner,
			CapturedAt:  chunk.CapturedAt,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

// DeletePage は DELETE /api/v1/scraper を処理します
func (h *ScraperHandler) DeletePage(w http.ResponseWriter, r *http.Request) {
	url := r.URL.Query().Get("url")

	if err := h.service.DeletePage(r.Context(), url); err != nil {
		code, msg := scrape.StatusForError(err)
		writeJSON(w, code, errorResponse{Status: code, Error: msg})
		return
	}

	writeJSON(w, http.StatusOK, singleResponse{
		Status: http.StatusOK,
		Data:   scrape.MessageSuccess,
	})
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
