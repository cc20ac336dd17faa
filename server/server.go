// Package server exposes proof verification and the member message board
// over HTTP.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	auth "github.com/zkjwt/go-zkjwt-auth"
	"github.com/zkjwt/go-zkjwt-auth/storage"
	"go.uber.org/zap"
)

const (
	defaultMaxRequestSize  = 1 << 20
	defaultRequestTimeout  = 2 * time.Minute
	defaultShutdownTimeout = 30 * time.Second
	defaultMessageLimit    = 20
	maxMessageLimit        = 200
)

// Verifier runs the verification of a submitted proof.
type Verifier interface {
	Verify(ctx context.Context, req auth.VerifyRequest) (*auth.Result, error)
}

// Server holds the handlers' dependencies.
type Server struct {
	verifier Verifier
	store    storage.Store
	srsPath  string

	gatherer       prometheus.Gatherer
	corsOrigins    []string
	maxRequestSize int64
	requestTimeout time.Duration
	now            func() time.Time
	logger         *zap.Logger
}

// Option configures Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// WithGatherer serves the collectors of g on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// WithCORS allows cross-origin requests from origins.
func WithCORS(origins ...string) Option {
	return func(s *Server) {
		s.corsOrigins = origins
	}
}

// WithClock replaces time.Now for member expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		s.now = now
	}
}

// New creates a Server. Proofs are checked locally against srsPath.
func New(verifier Verifier, store storage.Store, srsPath string, opts ...Option) *Server {
	s := &Server{
		verifier:       verifier,
		store:          store,
		srsPath:        srsPath,
		gatherer:       prometheus.DefaultGatherer,
		maxRequestSize: defaultMaxRequestSize,
		requestTimeout: defaultRequestTimeout,
		now:            time.Now,
		logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.requestTimeout + 10*time.Second,
		IdleTimeout:       2 * time.Minute,
		MaxHeaderBytes:    1 << 20,
	}

	serverErr := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", zap.String("addr", addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		return errors.Wrap(err, "server error")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()
	s.logger.Info("shutting down server")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "server shutdown failed")
	}
	return nil
}
