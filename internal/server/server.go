// Package server constructs and runs the relay HTTP service: it owns the
// connection registry, upgrades /ws/{selfId}/{peerId} requests into relay
// sessions, and releases every session on shutdown.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/Tyrowin/peerrelay/internal/log"
	"github.com/Tyrowin/peerrelay/internal/metrics"
	"github.com/Tyrowin/peerrelay/internal/relay"
)

// Server is one relay process: HTTP surface, registry and live sessions.
type Server struct {
	cfg      Config
	log      *log.Logger
	registry *relay.Registry
	metrics  *metrics.Collector
	gatherer *prometheus.Registry
	origins  originPolicy
	upgrader websocket.Upgrader
	http     *http.Server

	// ctx is cancelled on shutdown; every session runs under it.
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	closing  bool
	sessions sync.WaitGroup
}

// New builds a Server from cfg. The registry is created here, once per
// server, and handed to every session explicitly.
func New(cfg Config) (*Server, error) {
	cfg = sanitizeConfig(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := log.GetLogger("server")

	gatherer := prometheus.NewRegistry()
	gatherer.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:      cfg,
		log:      logger,
		registry: relay.NewRegistry(),
		metrics:  metrics.New(gatherer),
		gatherer: gatherer,
		origins:  newOriginPolicy(cfg.AllowedOrigins, logger),
		ctx:      ctx,
		cancel:   cancel,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.origins.allows,
	}
	s.http = &http.Server{
		Addr:         cfg.Listen,
		Handler:      s.routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

// Handler returns the HTTP handler with every route mounted.
func (s *Server) Handler() http.Handler { return s.http.Handler }

// Registry returns the server's connection registry.
func (s *Server) Registry() *relay.Registry { return s.registry }

// Metrics returns the server's collectors.
func (s *Server) Metrics() *metrics.Collector { return s.metrics }

// Config returns the sanitized configuration the server runs with.
func (s *Server) Config() Config { return s.cfg }

// ListenAndServe listens on the configured address and serves until
// Shutdown is called.
func (s *Server) ListenAndServe() error {
	l, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return err
	}
	return s.Serve(l)
}

// Serve accepts connections on l until Shutdown is called.
func (s *Server) Serve(l net.Listener) error {
	s.log.Info("server listening", "addr", l.Addr().String())
	if err := s.http.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, closes every session with a going-away
// frame and waits for their goroutines until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down", "sessions", s.registry.Len())

	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()

	httpErr := s.http.Shutdown(ctx)
	if httpErr != nil {
		s.log.Error("http server shutdown failed", httpErr)
	}

	s.cancel()

	done := make(chan struct{})
	go func() {
		s.sessions.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info("shutdown completed")
		return httpErr
	case <-ctx.Done():
		s.log.Warn("shutdown timeout reached, some sessions may still be running")
		return ctx.Err()
	}
}

// startSession runs session in its own goroutine unless shutdown began.
func (s *Server) startSession(session *relay.Session) bool {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return false
	}
	s.sessions.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.sessions.Done()
		if err := session.Run(s.ctx); err != nil {
			s.log.Debug("session ended with error", "self", session.ID(), "conn", session.InstanceID(), "err", err)
		}
	}()
	return true
}

func (s *Server) sessionOptions() relay.Options {
	opts := s.cfg.SessionOptions()
	opts.Logger = log.GetLogger("relay")
	opts.Observer = s.metrics
	return opts
}
