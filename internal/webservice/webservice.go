// Package webservice provides the HTTP server exposing the merged flight data, and its metrics listener.
package webservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	promserver "github.com/cinascorp/Peyda/internal/metrics"
	"github.com/cinascorp/Peyda/internal/webservice/handlers"
	"github.com/cinascorp/Peyda/internal/webservice/metrics"
	"github.com/cinascorp/Peyda/internal/webservice/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"
)

const (
	limiterSweepInterval = time.Minute
	limiterIdle          = 10 * time.Minute
)

// Server holds the API and metrics HTTP servers and their configuration.
type Server struct {
	httpServer *http.Server
	metrics    *promserver.Server
	om         dOriginsManager
	limiter    *middleware.IPLimiter

	mu       sync.RWMutex
	listener net.Listener

	// This context is used to interrupt any action.
	// It must be the parent of gracefulCtx.
	ctx    context.Context
	cancel context.CancelFunc

	// This context is canceled to start a graceful shutdown.
	gracefulCtx    context.Context
	gracefulCancel context.CancelFunc
}

// StaticConfig holds the configuration fixed for the life of the server.
type StaticConfig struct {
	ListenHost  string
	ListenPort  int
	MetricsHost string
	MetricsPort int

	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	RequestTimeout time.Duration
	MaxHeaderBytes int

	// RateLimit is the number of requests per second allowed per client IP, 0 disabling the limit.
	RateLimit float64
	RateBurst int
}

type dOriginsManager interface {
	Load() error
	Watch(context.Context) (<-chan struct{}, <-chan error, error)
	AllowedOrigins() []string
}

// New creates a Server serving api, with CORS origins from om and metrics gathered in reg.
func New(ctx context.Context, om dOriginsManager, api *handlers.API, reg *prometheus.Registry, sc StaticConfig) (*Server, error) {
	if err := om.Load(); err != nil {
		return nil, fmt.Errorf("failed to load allowed origins: %v", err)
	}
	if reg == nil {
		reg = promserver.NewRegistry()
	}

	ctx, cancel := context.WithCancel(ctx)
	gCtx, gCancel := context.WithCancel(ctx)

	s := Server{
		om:      om,
		limiter: middleware.NewIPLimiter(rate.Limit(sc.RateLimit), sc.RateBurst),
		metrics: promserver.New(promserver.Config{
			Host:         sc.MetricsHost,
			Port:         sc.MetricsPort,
			ReadTimeout:  sc.ReadTimeout,
			WriteTimeout: sc.WriteTimeout,
		}, reg),

		ctx:    ctx,
		cancel: cancel,

		gracefulCtx:    gCtx,
		gracefulCancel: gCancel,
	}

	mw := metrics.New(reg)
	mux := http.NewServeMux()
	mux.Handle("GET /health", mw.Monitor("health", http.HandlerFunc(api.Health)))
	mux.Handle("GET /flights", mw.Monitor("flights", http.HandlerFunc(api.Flights)))
	mux.Handle("GET /track/{icao24}", mw.Monitor("track", http.HandlerFunc(api.Track)))
	mux.Handle("GET /version", mw.Monitor("version", http.HandlerFunc(handlers.Version)))

	handler := http.TimeoutHandler(mux, sc.RequestTimeout, "")
	handler = s.limiter.RateLimitMiddleware(handler)
	handler = middleware.CORS(om, handler)

	s.httpServer = &http.Server{
		Addr:           net.JoinHostPort(sc.ListenHost, strconv.Itoa(sc.ListenPort)),
		ReadTimeout:    sc.ReadTimeout,
		WriteTimeout:   sc.WriteTimeout,
		Handler:        handler,
		MaxHeaderBytes: sc.MaxHeaderBytes,
	}

	return &s, nil
}

// Run binds both listeners and serves until Quit is called or a server fails.
func (s *Server) Run() error {
	// already asked to quit?
	select {
	case <-s.gracefulCtx.Done():
		return errors.New("server is already shutting down")
	default:
	}

	_, watchErr, err := s.om.Watch(s.gracefulCtx)
	if err != nil {
		s.cancel()
		return fmt.Errorf("failed to start watching allowed origins: %v", err)
	}

	l, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		s.cancel()
		return fmt.Errorf("failed to listen on %s: %v", s.httpServer.Addr, err)
	}
	if err := s.metrics.Listen(); err != nil {
		l.Close()
		s.cancel()
		return fmt.Errorf("failed to start metrics listener: %v", err)
	}
	s.mu.Lock()
	s.listener = l
	s.mu.Unlock()
	slog.Info("Starting server", "addr", l.Addr().String(), "metrics_addr", s.metrics.Addr())

	serverErr := make(chan error, 2)
	go func() {
		if err := s.httpServer.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()
	go func() {
		if err := s.metrics.Serve(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- fmt.Errorf("metrics server: %v", err)
		}
	}()
	go s.sweepLimiter()

	for {
		select {
		case <-s.gracefulCtx.Done():
			slog.Info("Graceful shutdown initiated")
			// use parent ctx so if you call s.cancel() elsewhere it unblocks Shutdown immediately
			err := errors.Join(s.httpServer.Shutdown(s.ctx), s.metrics.Shutdown(s.ctx))
			s.cancel()
			if err != nil {
				slog.Error("Graceful shutdown failed", "err", err)
				return err
			}
			slog.Info("Server shut down gracefully")
			return nil

		case err := <-serverErr:
			slog.Error("Server encountered error", "err", err)
			_ = s.closeAll()
			return err

		case err, ok := <-watchErr:
			if !ok {
				// The watcher stops with the graceful context.
				watchErr = nil
				continue
			}
			slog.Error("Origins watcher encountered unrecoverable error", "err", err)
			return errors.Join(err, s.closeAll())
		}
	}
}

// sweepLimiter drops the rate limiting state of idle clients until the server stops.
func (s *Server) sweepLimiter() {
	t := time.NewTicker(limiterSweepInterval)
	defer t.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-t.C:
			if n := s.limiter.Forget(limiterIdle); n > 0 {
				slog.Debug("Forgot idle clients", "count", n)
			}
		}
	}
}

func (s *Server) closeAll() error {
	err := errors.Join(s.httpServer.Close(), s.metrics.Close())
	s.cancel()
	return err
}

// Quit shuts down the servers, waiting for in-flight requests unless force is set.
func (s *Server) Quit(force bool) {
	if force {
		_ = s.closeAll()
	} else {
		s.gracefulCancel()
	}
	slog.Info("Server quit")
}

// Addr returns the address the API listens on, or an empty string before Run.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// MetricsAddr returns the address the metrics are served on, or an empty string before Run.
func (s *Server) MetricsAddr() string {
	return s.metrics.Addr()
}
