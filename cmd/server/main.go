package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/rowstore/internal/config"
	"github.com/JonMunkholm/rowstore/internal/core"
	"github.com/JonMunkholm/rowstore/internal/logging"
	"github.com/JonMunkholm/rowstore/internal/web"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// Overload lets a local .env win over the inherited environment
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"persistence", cfg.Database.Enabled(),
		"etl_max_processes", cfg.ETL.MaxProcesses,
		"query_regexp", cfg.Query.Regexp,
		"rate_limit_enabled", cfg.Rate.Enabled,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := connect(ctx, &cfg.Database)
	if err != nil {
		return err
	}
	if pool != nil {
		defer pool.Close()
	}

	service, err := core.NewService(ctx, pool, cfg)
	if err != nil {
		return err
	}
	if err := service.Load(ctx); err != nil {
		return err
	}

	server := web.NewServer(service, cfg)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("server starting", "addr", cfg.Server.Addr(), "version", core.Version)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}

		if etl := service.EtlStatus(); etl.Active > 0 {
			slog.Info("waiting for ingestion jobs to complete",
				"active", etl.Active,
				"max_concurrent", etl.MaxConcurrent,
			)
		}
		if err := service.Shutdown(shutdownCtx); err != nil {
			slog.Warn("ingestion jobs did not complete in time", "error", err)
			return nil
		}
		slog.Info("all ingestion jobs completed")
		return nil
	})

	return g.Wait()
}

// connect opens the PostgreSQL pool, or returns nil when persistence is off.
func connect(ctx context.Context, cfg *config.DatabaseConfig) (*pgxpool.Pool, error) {
	if !cfg.Enabled() {
		slog.Info("persistence disabled, datasets are kept in memory")
		return nil, nil
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, err
	}
	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	if u, err := url.Parse(cfg.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	} else {
		slog.Info("connected to database")
	}
	return pool, nil
}
