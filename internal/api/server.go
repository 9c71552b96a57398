package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/jinford/scrape-rag/internal/api/handlers"
)

// Server はスクレイパーAPIのHTTPサーバ
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer はルーティングを組み立ててServerを作成します
func NewServer(port int, service handlers.ScraperService, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	scraperHandler := handlers.NewScraperHandler(service, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api/v1", func(api chi.Router) {
		api.Post("/scraper", scraperHandler.ScrapePage)
		api.Post("/scraper/batch", scraperHandler.ScrapeBatch)
		api.Get("/scraper/chunks", scraperHandler.ListChunks)
		api.Delete("/scraper", scraperHandler.DeletePage)
	})

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Start はHTTPサーバを起動します。Shutdownされるまでブロックします。
func (s *Server) Start() error {
	s.logger.Info("HTTPサーバを起動します", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("HTTPサーバの起動に失敗: %w", err)
	}
	return nil
}

// Shutdown はHTTPサーバを停止します
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("HTTPサーバを停止します")
	return s.httpServer.Shutdown(ctx)
}
