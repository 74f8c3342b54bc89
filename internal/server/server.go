package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zombor/handwriting-extractor/internal/extraction"
)

// MaxUploadSize is the largest accepted upload (10 MiB)
const MaxUploadSize = 10 << 20

// Server handles HTTP requests for handwriting extraction
type Server struct {
	agent   *extraction.Agent
	storage Storage
	version string
	router  chi.Router
	http    *http.Server
}

// NewServer creates a new Server. agent may be nil when it failed to
// initialize; extraction endpoints then answer 503.
func NewServer(agent *extraction.Agent, storage Storage, version string) *Server {
	s := &Server{
		agent:   agent,
		storage: storage,
		version: version,
		router:  chi.NewRouter(),
	}
	s.registerRoutes()
	s.http = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// registerRoutes registers all API routes on the server's router
func (s *Server) registerRoutes() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
		MaxAge:           3600,
	}))

	s.router.Get("/", s.handleRoot)
	s.router.Get("/health", s.handleHealth)
	s.router.Post("/upload", s.handleUpload)
	s.router.Delete("/cleanup", s.handleCleanup)
	s.router.Get("/traces", s.handleListTraces)
	s.router.Handle("/metrics", promhttp.Handler())
}

// Start starts the HTTP server and blocks until it stops
func (s *Server) Start(addr string) error {
	slog.Info("Starting server", "address", addr)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// ServeHTTP implements http.Handler for testing
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
