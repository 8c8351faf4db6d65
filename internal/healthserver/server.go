// Package healthserver exposes persond's liveness and readiness
// signal (C8's "expose a liveness signal") as a minimal HTTP server,
// adapted from the teacher's API server but stripped of every concern
// that only matters when there is an external API surface to protect.
package healthserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/persondomain/persond/internal/healthserver/middleware"
	"github.com/persondomain/persond/internal/snapshot"
)

// Checker reports whether a dependency can currently serve requests.
// eventstore.Store and eventstore.Publisher-backing connections
// satisfy this directly.
type Checker interface {
	HealthCheck(ctx context.Context) error
}

// Config configures the health server's address and timeouts.
type Config struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server serves /healthz (process liveness, always succeeds once the
// dispatcher loop is running) and /readyz (dependency reachability).
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	startTime  time.Time
	checks     map[string]Checker
}

// New builds a Server. checks is a name -> dependency map; every entry
// is probed on every /readyz call.
func New(cfg Config, checks map[string]Checker) *Server {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	s := &Server{
		logger:    logger,
		startTime: time.Now(),
		checks:    checks,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleLiveness)
	mux.HandleFunc("/readyz", s.handleReadiness)

	handler := middleware.Apply(mux,
		middleware.WithCorrelationID(),
		middleware.WithRecovery(logger),
		middleware.WithRequestLogger(logger),
	)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s
}

type livenessBody struct {
	Status                    string `json:"status"`
	UptimeSeconds             int64  `json:"uptime_seconds"`
	SnapshotCorruptionFallbacks int64 `json:"snapshot_corruption_fallbacks"`
}

func (s *Server) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	body := livenessBody{
		Status:                      "alive",
		UptimeSeconds:               int64(time.Since(s.startTime).Seconds()),
		SnapshotCorruptionFallbacks: snapshot.CorruptionFallbacks(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(body)
}

type readinessBody struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	body := readinessBody{Status: "ready", Checks: make(map[string]string, len(s.checks))}

	for name, checker := range s.checks {
		if err := checker.HealthCheck(r.Context()); err != nil {
			body.Status = "not_ready"
			body.Checks[name] = err.Error()

			continue
		}

		body.Checks[name] = "ok"
	}

	status := http.StatusOK
	if body.Status != "ready" {
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// Start serves until ctx is cancelled, then shuts down gracefully
// within shutdownGrace.
func (s *Server) Start(ctx context.Context, shutdownGrace time.Duration) error {
	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("health server listening", slog.String("address", s.httpServer.Addr))

		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- fmt.Errorf("healthserver: %w", err)
		}
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()

		s.logger.Info("health server shutting down")

		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("healthserver: shutdown: %w", err)
		}

		return nil
	}
}
