// Package server owns the HTTP listener lifecycle: a TCP listener, an
// optional unix socket for same-host hook scripts, and graceful
// shutdown of both.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
)

type Config struct {
	// Addr is the TCP listen address. Port 0 picks an ephemeral port;
	// Addr() reports the bound one.
	Addr string

	// SocketPath, when set, serves the same handler on a unix socket.
	SocketPath string

	Handler http.Handler
}

type Server struct {
	cfg    Config
	http   *http.Server
	tcpLn  net.Listener
	unix   *http.Server
	unixLn net.Listener
}

// New binds the listeners without serving yet, so the caller learns
// about port conflicts before any background work starts.
func New(cfg Config) (*Server, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("addr required")
	}
	if cfg.Handler == nil {
		return nil, fmt.Errorf("handler required")
	}

	tcpLn, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", cfg.Addr, err)
	}
	s := &Server{
		cfg:   cfg,
		http:  &http.Server{Handler: cfg.Handler},
		tcpLn: tcpLn,
	}

	if cfg.SocketPath != "" {
		// A previous unclean shutdown leaves the socket file behind.
		if err := os.Remove(cfg.SocketPath); err != nil && !os.IsNotExist(err) {
			tcpLn.Close()
			return nil, fmt.Errorf("remove stale socket: %w", err)
		}
		ln, err := net.Listen("unix", cfg.SocketPath)
		if err != nil {
			tcpLn.Close()
			return nil, fmt.Errorf("unix listen: %w", err)
		}
		if err := os.Chmod(cfg.SocketPath, 0o660); err != nil {
			ln.Close()
			tcpLn.Close()
			return nil, fmt.Errorf("chmod socket: %w", err)
		}
		s.unixLn = ln
		s.unix = &http.Server{Handler: cfg.Handler}
	}

	return s, nil
}

// Addr returns the bound TCP address.
func (s *Server) Addr() string {
	return s.tcpLn.Addr().String()
}

// SocketPath returns the unix socket path, empty when not configured.
func (s *Server) SocketPath() string {
	return s.cfg.SocketPath
}

// Start serves until Shutdown. It blocks; run it on its own goroutine
// when the caller has more to do.
func (s *Server) Start() error {
	if s.unixLn != nil {
		go func() {
			if err := s.unix.Serve(s.unixLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("server: unix socket: %v", err)
			}
		}()
		log.Printf("server: listening on unix socket %s", s.cfg.SocketPath)
	}
	log.Printf("server: listening on %s", s.Addr())
	err := s.http.Serve(s.tcpLn)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains both listeners and removes the socket file.
func (s *Server) Shutdown(ctx context.Context) error {
	var firstErr error

	if s.unix != nil {
		if err := s.unix.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if s.cfg.SocketPath != "" {
		os.Remove(s.cfg.SocketPath)
	}

	if err := s.http.Shutdown(ctx); err != nil && firstErr == nil {
		firstErr = err
	}

	return firstErr
}
