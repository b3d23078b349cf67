// Package api serves the read-only HTTP admin surface: health, stats as
// JSON, and Prometheus metrics. The TCP protocol remains the only mutation
// path.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/nukekv/nukekv/internal/config"
	"github.com/nukekv/nukekv/internal/store"
)

// Server is the HTTP admin server.
type Server struct {
	store *store.Store
	cfg   *config.Config
	http  *http.Server
	log   zerolog.Logger
}

// statsResponse mirrors the STATS command as a structured document.
type statsResponse struct {
	Version       string `json:"version"`
	Protocol      string `json:"protocol"`
	DebugMode     bool   `json:"debug_mode"`
	WorkerThreads int    `json:"worker_threads"`

	Persistence   bool   `json:"persistence"`
	BatchSize     int64  `json:"batch_size"`
	UnsavedOps    int64  `json:"unsaved_ops"`
	DiskSize      int64  `json:"disk_size_bytes"`
	Caching       bool   `json:"caching"`
	MemoryLimit   int64  `json:"memory_limit_bytes"`
	MemoryUsed    int64  `json:"memory_used_bytes"`
	TotalKeys     int    `json:"total_keys"`
	KeysWithTTL   int    `json:"keys_with_ttl"`
	Evictions     uint64 `json:"evictions"`
	ExpiredKeys   uint64 `json:"expired_keys"`
	SnapshotSaves uint64 `json:"snapshot_saves"`
}

// New builds the admin server. Version and protocol name come from the
// handler package via the caller.
func New(st *store.Store, cfg *config.Config, version, protocolName string, logger zerolog.Logger) *Server {
	s := &Server{
		store: st,
		cfg:   cfg,
		log:   logger.With().Str("component", "http").Logger(),
	}

	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/v1/stats", s.handleStats(version, protocolName)).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	s.http = &http.Server{
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleStats(version, protocolName string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := statsResponse{
			Version:       version,
			Protocol:      protocolName,
			DebugMode:     s.store.Debug(),
			WorkerThreads: s.cfg.Workers(),
			Persistence:   s.store.Persistence(),
			BatchSize:     s.store.BatchSize(),
			UnsavedOps:    s.store.Dirty(),
			DiskSize:      s.store.DiskSize(),
			Caching:       s.store.CachingEnabled(),
			MemoryLimit:   s.store.MemoryLimit(),
			MemoryUsed:    s.store.MemoryUsed(),
			TotalKeys:     s.store.Len(),
			KeysWithTTL:   s.store.TTLCount(),
			Evictions:     s.store.Evictions(),
			ExpiredKeys:   s.store.ExpiredKeys(),
			SnapshotSaves: s.store.SnapshotSaves(),
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			s.log.Error().Err(err).Msg("encode stats response")
		}
	}
}

// ListenAndServe blocks serving addr until Shutdown.
func (s *Server) ListenAndServe(addr string) error {
	s.http.Addr = addr
	s.log.Info().Str("addr", addr).Msg("http admin server listening")
	return s.http.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
