// Package apihttp exposes the worker's monitoring surface: a health check,
// Prometheus metrics, a read-only account listing, and a WebSocket feed of
// pipeline state transitions. It never drives the download pipeline itself.
package apihttp

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"rssbox/internal/domain"
)

type Server struct {
	accounts  AccountLister
	downloads DownloadLister
	logger    *slog.Logger
	wsHub     *wsHub
	handler   http.Handler
}

type ServerOption func(*Server)

func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = logger }
}

func WithAccountLister(accounts AccountLister) ServerOption {
	return func(s *Server) { s.accounts = accounts }
}

func WithDownloadLister(downloads DownloadLister) ServerOption {
	return func(s *Server) { s.downloads = downloads }
}

func NewServer(opts ...ServerOption) *Server {
	s := &Server{}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	s.wsHub = newWSHub(s.logger)
	go s.wsHub.run()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/accounts", s.handleAccounts)
	mux.HandleFunc("/downloads", s.handleDownloads)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ws", s.handleWS)

	traced := otelhttp.NewHandler(loggingMiddleware(s.logger, mux), "rssbox-worker",
		otelhttp.WithFilter(func(r *http.Request) bool {
			p := r.URL.Path
			return p != "/metrics" && p != "/healthz"
		}),
	)
	s.handler = recoveryMiddleware(s.logger, rateLimitMiddleware(20, 40, metricsMiddleware(corsMiddleware(traced))))
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Close gracefully disconnects every WebSocket client.
func (s *Server) Close() {
	if s.wsHub != nil {
		s.wsHub.Close()
	}
}

// BroadcastStatus implements ports.StatusBroadcaster, pushing a single
// pipeline transition to every connected monitoring client.
func (s *Server) BroadcastStatus(event domain.StatusEvent) {
	if s.wsHub == nil {
		return
	}
	s.wsHub.BroadcastStatus(StatusEvent{
		Kind:     event.Kind,
		ID:       event.ID,
		From:     event.From,
		To:       event.To,
		At:       event.At,
		WorkerID: string(event.WorkerID),
	})
}
