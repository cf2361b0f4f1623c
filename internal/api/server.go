package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"wasim/internal/config"
	"wasim/internal/core"
	"wasim/internal/identity"
)

// Server is the serve-mode HTTP surface: run triggering, the inbound
// reply callback, and single-message sends.
type Server struct {
	cfg    config.Config
	store  core.Store
	client *http.Client
	clock  core.Clock
	gen    identity.Generator
	logger *log.Logger

	// One run at a time; the trigger handler is synchronous and a second
	// run would interleave replies on the shared feed.
	running atomic.Bool
}

func New(cfg config.Config, st core.Store) *Server {
	return &Server{
		cfg:    cfg,
		store:  st,
		client: &http.Client{Timeout: 30 * time.Second},
		clock:  core.RealClock{},
		logger: log.New(log.Writer(), "api: ", log.LstdFlags),
	}
}

// Router assembles the chi mux with the middleware stack.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/stress-test", s.handleRunInfo)
		r.Post("/stress-test", s.handleTrigger)
		r.Get("/receive", s.handleHistory)
		r.Post("/receive", s.handleReceive)
		r.Post("/send-webhook", s.handleSendWebhook)
	})

	return r
}

// ListenAndServe runs the HTTP server until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.Server.Listen,
		Handler: s.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// Response helpers

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now(),
		"store":     s.cfg.Store.Backend,
	})
}
