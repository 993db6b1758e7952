package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"net/url"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/manpreetbhatti/codecollab/internal/api"
	"github.com/manpreetbhatti/codecollab/internal/config"
	"github.com/manpreetbhatti/codecollab/internal/ratelimit"
	"github.com/manpreetbhatti/codecollab/internal/retention"
	"github.com/manpreetbhatti/codecollab/internal/room"
	"github.com/manpreetbhatti/codecollab/internal/runner"
	"github.com/manpreetbhatti/codecollab/internal/versions"
	"github.com/manpreetbhatti/codecollab/internal/ws"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg := config.Load()
	cfg.BindFlags(pflag.CommandLine)
	pflag.Parse()

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func run(ctx context.Context, cfg config.Config) error {
	store, err := versions.Open(ctx, cfg.VersionStore)
	if err != nil {
		return err
	}
	defer store.Close()

	rooms := room.NewRegistry(room.Options{Store: store})

	hub := ws.NewHub(rooms)
	hub.AllowOrigin(cfg.AllowedOrigin)
	go hub.Run()
	defer hub.Stop()

	gateway, err := runner.New(cfg.RunnerConfig())
	if err != nil {
		return err
	}

	limiters := ratelimit.NewClientLimiters(cfg.RunRate, cfg.RunBurst)
	defer limiters.Stop()

	if cfg.RetentionEnabled() {
		svc := retention.New(rooms, retention.Config{
			Interval:    cfg.RetentionInterval,
			MaxVersions: cfg.MaxVersions,
			RoomIdleTTL: cfg.RoomIdleTTL,
		})
		svc.Start()
		defer svc.Stop()
	}

	apiHandler := api.New(hub, gateway, limiters)
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           apiHandler.Router(cfg.AllowedOrigin),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Printf("🌸 CodeCollab server starting on %s", cfg.Addr)
	log.Printf("📁 Version store: %s", redactDSN(cfg.VersionStore))
	log.Printf("▶️  Runner: %s", cfg.Runner)
	log.Println("Endpoints:")
	log.Println("  - WebSocket: /ws")
	log.Println("  - Health:    GET /health")
	log.Println("  - Stats:     GET /api/stats")
	log.Println("  - Rooms:     GET /api/rooms")
	log.Println("  - Room:      GET /api/rooms/{roomId}")
	log.Println("  - Versions:  GET /api/rooms/versions/{roomId}")
	log.Println("  - Diff:      GET /api/rooms/versions/{roomId}/diff?from=N&to=M")
	log.Println("  - Run:       POST /api/run")

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Println("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	// Hijacked WebSocket connections are not tracked by Shutdown; the
	// deferred hub.Stop closes them.
	return srv.Shutdown(shutdownCtx)
}

// redactDSN hides credentials before the DSN is logged
func redactDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		return dsn
	}
	return u.Redacted()
}
