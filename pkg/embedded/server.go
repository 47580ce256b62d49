// Package embedded runs a fully wired chronicle instance inside a host
// process: store, backend selector, broadcaster, WebSocket hub and HTTP
// API on an ephemeral port. Host apps and integration tests use it to
// capture events without a separately managed daemon.
package embedded

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/memyselfandm/chronicle-sub000/client"
	"github.com/memyselfandm/chronicle-sub000/internal/auth"
	"github.com/memyselfandm/chronicle-sub000/internal/backend"
	"github.com/memyselfandm/chronicle-sub000/internal/broadcast"
	httpapi "github.com/memyselfandm/chronicle-sub000/internal/http"
	"github.com/memyselfandm/chronicle-sub000/internal/server"
	"github.com/memyselfandm/chronicle-sub000/internal/storage/sqlite"
	"github.com/memyselfandm/chronicle-sub000/internal/ws"
)

// Config configures the embedded instance.
type Config struct {
	// DBPath is the SQLite file. Empty means a file under os.TempDir(),
	// removed on Stop.
	DBPath string

	// Addr is the listen address; empty binds an ephemeral localhost
	// port.
	Addr string

	// AdminKey enables the destructive admin routes when set.
	AdminKey string
}

// Server is a running embedded instance.
type Server struct {
	store       *sqlite.ResilientStore
	selector    *backend.Selector
	hub         *ws.Hub
	broadcaster *broadcast.Broadcaster
	srv         *server.Server
	cancel      context.CancelFunc
	serveErr    chan error
	tempDB      string
}

// Start brings up a complete instance and returns once the listener is
// bound. Callers must Stop it.
func Start(cfg Config) (*Server, error) {
	dbPath := cfg.DBPath
	tempDB := ""
	if dbPath == "" {
		dir, err := os.MkdirTemp("", "chronicle-embedded-")
		if err != nil {
			return nil, fmt.Errorf("temp db dir: %w", err)
		}
		tempDB = dir
		dbPath = filepath.Join(dir, "chronicle.db")
	}
	addr := cfg.Addr
	if addr == "" {
		addr = "127.0.0.1:0"
	}

	base, err := sqlite.New(dbPath)
	if err != nil {
		cleanupTemp(tempDB)
		return nil, fmt.Errorf("open store: %w", err)
	}
	store := sqlite.NewResilient(base)

	ctx, cancel := context.WithCancel(context.Background())
	fail := func(err error) (*Server, error) {
		cancel()
		store.Close()
		cleanupTemp(tempDB)
		return nil, err
	}

	selector := backend.NewSelector(nil, backend.NewLocal(store))
	selector.Detect(ctx)

	hub := ws.NewHub()
	hub.Start(ctx)

	broadcaster := broadcast.New(store, hub,
		broadcast.WithTransformers(broadcast.NewCategoryTagger(), broadcast.NewSecretRedactor()),
	)
	broadcaster.Start(ctx)

	svc := httpapi.NewService(store, selector).WithConnectionCounter(hub)
	router := httpapi.NewRouter(svc, auth.NewAdminKey(cfg.AdminKey), hub.Handler())

	srv, err := server.New(server.Config{Addr: addr, Handler: router})
	if err != nil {
		hub.Stop()
		broadcaster.Stop()
		return fail(fmt.Errorf("bind: %w", err))
	}

	s := &Server{
		store:       store,
		selector:    selector,
		hub:         hub,
		broadcaster: broadcaster,
		srv:         srv,
		cancel:      cancel,
		serveErr:    make(chan error, 1),
		tempDB:      tempDB,
	}
	go func() { s.serveErr <- srv.Start() }()
	return s, nil
}

// URL is the instance's base URL.
func (s *Server) URL() string {
	return "http://" + s.srv.Addr()
}

// Client returns an API client bound to this instance.
func (s *Server) Client() *client.Client {
	return client.New(s.URL())
}

// Store exposes the underlying store for direct inspection in tests.
func (s *Server) Store() *sqlite.ResilientStore {
	return s.store
}

// Stop shuts everything down in dependency order and removes a
// temp-created database.
func (s *Server) Stop() error {
	ctx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	err := s.srv.Shutdown(ctx)
	s.broadcaster.Stop()
	s.hub.Stop()
	s.cancel()

	if serveErr := <-s.serveErr; serveErr != nil && err == nil {
		err = serveErr
	}
	if closeErr := s.store.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	cleanupTemp(s.tempDB)
	return err
}

func cleanupTemp(dir string) {
	if dir != "" {
		os.RemoveAll(dir)
	}
}
