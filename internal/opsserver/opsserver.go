// Package opsserver is the opt-in operational listener that runs
// alongside a batch pass: health, recent run history and pprof. It is
// read-only; the pipeline never depends on it.
package opsserver

import (
	"context"
	"log"
	"net/http"
	"net/http/pprof"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"skyblock-ah-tracker/internal/middleware"
	"skyblock-ah-tracker/internal/repository"
	"skyblock-ah-tracker/pkg/response"
)

// defaultRunLimit bounds GET /runs when no limit parameter is given.
const defaultRunLimit = 20

// Server serves the ops endpoints on one address.
type Server struct {
	srv *http.Server
}

// New builds the listener. store backs the /runs endpoint.
func New(addr string, store repository.Store) *Server {
	r := chi.NewRouter()

	r.Use(middleware.Recovery)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging)
	r.Use(cors.Handler(cors.Options{
		// The read-only viewer may poll this listener from anywhere.
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/healthz", handleHealth)
	r.Get("/runs", handleRuns(store))

	r.Route("/debug/pprof", func(r chi.Router) {
		r.Get("/", pprof.Index)
		r.Get("/cmdline", pprof.Cmdline)
		r.Get("/profile", pprof.Profile)
		r.Get("/symbol", pprof.Symbol)
		r.Get("/trace", pprof.Trace)
		r.Get("/{name}", func(w http.ResponseWriter, req *http.Request) {
			pprof.Handler(chi.URLParam(req, "name")).ServeHTTP(w, req)
		})
	})

	return &Server{
		srv: &http.Server{
			Addr:         addr,
			Handler:      r,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
	}
}

// Start begins serving in the background. Listen errors other than a
// clean shutdown are logged, not fatal: the pipeline outlives a dead
// ops listener.
func (s *Server) Start() {
	go func() {
		log.Printf("[ops] listening on %s", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[ops] listener error: %v", err)
		}
	}()
}

// Shutdown drains the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// healthResponse is the /healthz payload.
type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	response.OK(w, healthResponse{Status: "healthy", Timestamp: time.Now().UTC()})
}

func handleRuns(store repository.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := defaultRunLimit
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 || n > 500 {
				response.Error(w, http.StatusBadRequest, "limit must be between 1 and 500")
				return
			}
			limit = n
		}

		runs, err := store.GetRecentRuns(r.Context(), limit)
		if err != nil {
			log.Printf("[ops] failed to load runs: %v", err)
			response.Error(w, http.StatusInternalServerError, "failed to load run history")
			return
		}
		response.OK(w, runs)
	}
}
