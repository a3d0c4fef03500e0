// Command partyhub runs the party-session server: the WebSocket-driven
// chat and macro-resolution hub for a tabletop RPG's live party channels.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tbrpg/partyhub/internal/config"
	"github.com/tbrpg/partyhub/internal/dice"
	"github.com/tbrpg/partyhub/internal/encounter"
	"github.com/tbrpg/partyhub/internal/hub"
	"github.com/tbrpg/partyhub/internal/macro"
	"github.com/tbrpg/partyhub/internal/mention"
	"github.com/tbrpg/partyhub/internal/model"
	"github.com/tbrpg/partyhub/internal/statscache"
	"github.com/tbrpg/partyhub/internal/store"
)

const ConfigPath = "config/partyhub.yaml"

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig)
		cancel()
	}()

	if err := run(ctx); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfgPath := ConfigPath
	if p := os.Getenv("PARTYHUB_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.LoadServer(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	})))
	slog.Info("party-hub starting", "bind", cfg.BindAddress, "port", cfg.Port, "log_level", cfg.LogLevel)

	if cfg.AbilityMaxUsesPerLevel > 0 {
		model.AbilityMaxUsesPerLevel = cfg.AbilityMaxUsesPerLevel
	}

	if err := store.Migrate(ctx, cfg.Database.DSN()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	slog.Info("database migrations applied")

	pgStore, err := store.NewPostgresStore(ctx, cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pgStore.Close()
	slog.Info("database connected")

	cache := statscache.New()
	mentionResolver := mention.New(cache, pgStore)
	encounterMachine := encounter.New(pgStore, cache)
	diceEngine := dice.New(rand.Uint64(), rand.Uint64())
	dispatcher := macro.New(diceEngine, mentionResolver, cache, encounterMachine, pgStore, cfg)

	partyHub := hub.New(pgStore, cache, dispatcher, hub.StaticAuthResolver{}, cfg)

	mux := http.NewServeMux()
	partyHub.Routes(mux)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.BindAddress, cfg.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // WebSocket connections are long-lived
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("starting party-hub server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("party-hub server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		slog.Info("stopping party-hub server")
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// parseLogLevel converts string log level to slog.Level. Defaults to Info
// if invalid or empty.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
