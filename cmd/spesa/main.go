package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"spesa/internal/amqp"
	"spesa/internal/backend"
	"spesa/internal/cache"
	"spesa/internal/cli"
	"spesa/internal/config"
	apphttp "spesa/internal/http"
	applog "spesa/internal/log"
	"spesa/internal/query"
	"spesa/internal/services"
	"spesa/internal/storage"
	"spesa/internal/store"
)

func main() {
	cfg, logger := cli.Bootstrap(applog.ComponentApp)
	logger.Info("Starting spesa", "component", applog.ComponentApp, "backend", cfg.DataBackend, "port", cfg.Port)

	ctx, stop := cli.GracefulShutdown(logger)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Application error", "component", applog.ComponentApp, "error", err)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully", "component", applog.ComponentApp)
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return err
	}
	be, err := backend.NewFactory(logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		return err
	}
	if be.Cleanup != nil {
		defer func() {
			if err := be.Cleanup(); err != nil {
				logger.Error("Failed to close backend", "component", applog.ComponentBackend, "error", err)
			}
		}()
	}

	repo := storage.NewSnapshotRepository(be.Store, cfg.StorageKey, cfg.LegacyStorageKey)
	st := store.New(repo, store.WithLocation(loc))
	if err := st.Load(ctx); err != nil {
		return err
	}
	logger.Info("Store ready", "component", applog.ComponentStore, "key", repo.Key(), "version", st.Version())

	var events services.EventPublisher
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			// events are best effort; the tracker works without a broker
			logger.Warn("AMQP unavailable, change events disabled", "component", applog.ComponentAMQP, "error", err)
		} else {
			defer client.Close()
			events = client
			logger.Info("Publishing change events", "component", applog.ComponentAMQP, "exchange", cfg.AMQPExchange)
		}
	}

	dashCache := cache.NewLRUCache[query.Dashboard](cfg.CacheSize, cfg.CacheTTL)
	listCache := cache.NewLRUCache[services.ListView](cfg.CacheSize, cfg.CacheTTL)
	cacheManager := cache.NewManager()
	cacheManager.Register(dashCache)
	cacheManager.Register(listCache)
	cacheManager.StartCleanup(cfg.CacheTTL)
	defer cacheManager.Stop()

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Store:              st,
		Expenses:           services.NewExpenseService(st, events).WithListCache(listCache),
		Dashboard:          services.NewDashboardService(st, dashCache),
		Backup:             services.NewBackupService(st, repo, events),
		Ready:              be.Ready,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		Logger:             applog.New(applog.Config{Component: applog.ComponentHTTP, Handler: logger.Handler()}),
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("HTTP server listening", "component", applog.ComponentHTTP, "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	start := time.Now()
	err = g.Wait()
	logger.Info("HTTP server stopped", "component", applog.ComponentHTTP, "uptime", time.Since(start).Round(time.Second).String())
	return err
}
