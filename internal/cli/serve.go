package cli

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/memyselfandm/chronicle-sub000/internal/auth"
	"github.com/memyselfandm/chronicle-sub000/internal/backend"
	"github.com/memyselfandm/chronicle-sub000/internal/broadcast"
	"github.com/memyselfandm/chronicle-sub000/internal/config"
	httpapi "github.com/memyselfandm/chronicle-sub000/internal/http"
	"github.com/memyselfandm/chronicle-sub000/internal/server"
	"github.com/memyselfandm/chronicle-sub000/internal/storage/sqlite"
	"github.com/memyselfandm/chronicle-sub000/internal/ws"
)

const healthProbeInterval = 30 * time.Second

// Serve assembles and runs the daemon until ctx is cancelled.
func Serve(ctx context.Context, cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	base, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	store := sqlite.NewResilient(base)
	defer store.Close()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	maintainer := sqlite.NewMaintainer(store, cfg.CheckpointInterval, cfg.RetentionDays)
	maintainer.Start(runCtx)
	defer maintainer.Stop()

	var remote backend.Backend
	if cfg.RemoteURL != "" {
		remote = backend.NewRemote(cfg.RemoteURL, cfg.RemoteAPIKey)
	}
	selector := backend.NewSelector(remote, backend.NewLocal(store))
	selector.Detect(runCtx)
	go probeHealth(runCtx, selector)

	hub := ws.NewHub()
	hub.Start(runCtx)
	defer hub.Stop()

	broadcaster := broadcast.New(store, hub,
		broadcast.WithInterval(cfg.PollInterval),
		broadcast.WithTransformers(broadcast.NewCategoryTagger(), broadcast.NewSecretRedactor()),
	)
	broadcaster.Start(runCtx)
	defer broadcaster.Stop()

	svc := httpapi.NewService(store, selector).WithConnectionCounter(hub)
	router := httpapi.NewRouter(svc, auth.NewAdminKey(cfg.AdminKey), hub.Handler())

	srv, err := server.New(server.Config{
		Addr:       cfg.Addr,
		SocketPath: cfg.SocketPath,
		Handler:    router,
	})
	if err != nil {
		return err
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Start() }()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	log.Printf("server: shutting down")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-serveErr
}

// probeHealth periodically re-probes the backends so a recovered remote
// is promoted back without waiting for a write to fail.
func probeHealth(ctx context.Context, sel *backend.Selector) {
	ticker := time.NewTicker(healthProbeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sel.CheckHealth(ctx)
		}
	}
}
