// Package health provides an HTTP health check endpoint as a service. When
// a metrics gatherer is bound it also serves Prometheus metrics.
package health

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vk/conflux/internal/binding"
	"github.com/vk/conflux/internal/ctxlog"
	"github.com/vk/conflux/internal/materialize"
	"github.com/vk/conflux/internal/service"
	"github.com/vk/conflux/internal/telemetry"
)

// Module registers the health kind.
type Module struct{}

func (m *Module) Register(r *materialize.Registry) {
	r.RegisterKind("health", New)
}

// New returns an unconfigured server. It declares an optional import of the
// metrics gatherer, so metrics are served whenever the application has one.
func New() service.Service {
	s := &Server{}
	s.Meta().Imports = []service.Import{{Capability: telemetry.GathererCapability, Optional: true}}
	return s
}

// Server is the `health` service kind.
type Server struct {
	service.Base
	Addr            string        `cfg:"addr" default:"127.0.0.1:8081"`
	Path            string        `cfg:"path" default:"/health"`
	MetricsPath     string        `cfg:"metrics-path" default:"/metrics"`
	ShutdownTimeout time.Duration `cfg:"shutdown-timeout" default:"5s"`

	mux      *http.ServeMux
	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	done     chan struct{}
}

func (s *Server) Configure(ctx context.Context, b service.Binder) error {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Configuring health check server.", "addr", s.Addr)

	s.mux = http.NewServeMux()
	s.mux.HandleFunc(s.Path, s.healthHandler(logger))

	gatherer, err := service.Get[prometheus.Gatherer](b, telemetry.GathererCapability, "")
	switch {
	case errors.Is(err, binding.ErrUnbound):
		logger.Debug("No metrics gatherer bound, metrics endpoint disabled.")
	case err != nil:
		return err
	default:
		s.mux.Handle(s.MetricsPath, telemetry.Handler(gatherer))
	}
	return nil
}

func (s *Server) healthHandler(logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger.Debug("Health check endpoint hit.", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "OK")
	}
}

// Start binds the listener and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)

	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return fmt.Errorf("health check server: %w", err)
	}

	s.mu.Lock()
	s.listener = ln
	s.server = &http.Server{Handler: s.mux, ReadHeaderTimeout: 5 * time.Second}
	s.done = make(chan struct{})
	srv, done := s.server, s.done
	s.mu.Unlock()

	go func() {
		defer close(done)
		logger.Info("🩺 Health check server starting", "address", fmt.Sprintf("http://%s%s", ln.Addr(), s.Path))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Health check server failed unexpectedly", "error", err)
		}
	}()
	return nil
}

// ListenAddr returns the bound address, or "" when the server is not running.
func (s *Server) ListenAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)

	s.mu.Lock()
	srv, done := s.server, s.done
	s.server, s.listener = nil, nil
	s.mu.Unlock()

	if srv == nil {
		logger.Debug("Health check server was not running.")
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.ShutdownTimeout)
	defer cancel()

	logger.Info("🩺 Shutting down health check server...")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("health check server shutdown: %w", err)
	}
	<-done
	logger.Debug("Health check server shut down gracefully.")
	return nil
}
