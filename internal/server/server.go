package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"auth-service/pkg/config"
)

// DefaultPort is the port the service binds when server.port is not configured.
const DefaultPort = 4000

// ErrNotListening is returned by Serve when Listen has not bound a socket yet.
var ErrNotListening = errors.New("server is not listening")

// Server represents the HTTP server
type Server struct {
	httpServer      *http.Server
	logger          *slog.Logger
	port            int
	shutdownTimeout time.Duration
	lock            *instanceLock

	mu       sync.Mutex
	listener net.Listener

	shutdownOnce sync.Once
	shutdownErr  error
}

// New creates a new server instance from the root configuration
func New(cfg *config.Config, logger *slog.Logger) *Server {
	serverCfg := cfg.GetSubConfig("server")
	port := serverCfg.GetIntWithDefault("port", DefaultPort)

	srv := &Server{
		logger:          logger,
		port:            port,
		shutdownTimeout: serverCfg.GetDurationWithDefault("shutdownTimeout", 10*time.Second),
	}

	if lockFile := serverCfg.GetString("lockFile"); lockFile != "" {
		srv.lock = newInstanceLock(lockFile, serverCfg.GetDurationWithDefault("lockTimeout", 0))
	}

	srv.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      srv.routes(),
		ReadTimeout:  serverCfg.GetDurationWithDefault("readTimeout", 15*time.Second),
		WriteTimeout: serverCfg.GetDurationWithDefault("writeTimeout", 15*time.Second),
		IdleTimeout:  serverCfg.GetDurationWithDefault("idleTimeout", 60*time.Second),
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}

	return srv
}

// Listen takes the instance lock, if one is configured, and binds the TCP port.
// A port that is already in use is reported here, before anything is served.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return fmt.Errorf("server already listening on %s", s.listener.Addr())
	}

	if err := s.lock.acquire(context.Background()); err != nil {
		return err
	}

	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		s.lock.release()
		return fmt.Errorf("failed to bind %s: %w", s.httpServer.Addr, err)
	}
	s.listener = ln

	port := s.port
	if tcpAddr, ok := ln.Addr().(*net.TCPAddr); ok {
		port = tcpAddr.Port
	}
	s.logger.Info(fmt.Sprintf("Auth service running on port %d", port), "addr", ln.Addr().String())
	return nil
}

// Serve answers requests on the bound listener until the server is shut down.
func (s *Server) Serve() error {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()

	if ln == nil {
		return ErrNotListening
	}
	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server stopped: %w", err)
	}
	return nil
}

// Start binds the port and serves until the server is shut down
func (s *Server) Start() error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve()
}

// Run binds the port and serves until ctx is cancelled, then shuts down within
// the configured shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.ServeContext(ctx)
}

// ServeContext serves on an already bound listener until ctx is cancelled.
func (s *Server) ServeContext(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		// Serve also returns nil after a direct Shutdown; the watcher must still exit.
		defer cancel()
		return s.Serve()
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// Shutdown gracefully shuts down the server and releases the instance lock.
// Only the first call does the work; later calls return its result.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() {
		s.shutdownErr = s.shutdown(ctx)
	})
	return s.shutdownErr
}

func (s *Server) shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server gracefully")
	err := s.httpServer.Shutdown(ctx)

	s.mu.Lock()
	if s.listener != nil {
		// Serve may never have run, in which case Shutdown did not close it.
		if cerr := s.listener.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) && err == nil {
			err = cerr
		}
	}
	s.mu.Unlock()

	if lerr := s.lock.release(); lerr != nil && err == nil {
		err = lerr
	}
	return err
}

// Addr returns the bound address, or nil before Listen
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Port returns the configured server port
func (s *Server) Port() int {
	return s.port
}
