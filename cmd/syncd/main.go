// Package main is the entry point for the tillsync background daemon.
// It owns one tenant session: local cache and queue, entity stores, the
// replay engine, and the sync orchestrator.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tillsync/internal/core/scope"
	"tillsync/internal/infrastructure/storage/sqlite"
	"tillsync/internal/remote"
	"tillsync/internal/replay"
	"tillsync/internal/store"
	"tillsync/internal/syncer"
	"tillsync/pkg/logger"
)

func main() {
	log, err := logger.New(logger.Config{
		Level:       getEnv("LOG_LEVEL", "info"),
		Development: getEnv("APP_ENV", "development") == "development",
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sc := scope.New(mustEnv("ORG_ID"), getEnv("STORE_ID", ""))
	ctx = scope.WithScope(ctx, sc)

	log.Infow("starting tillsync daemon", "scope", sc.String())

	// Durable local state: cache + queue in one embedded database.
	db, err := sqlite.Open(ctx, getEnv("TILLSYNC_DB", "tillsync.db"), log)
	if err != nil {
		log.Fatalw("failed to open local database", "error", err)
	}
	defer db.Close()

	cacheStore, err := sqlite.NewCacheStore(db)
	if err != nil {
		log.Fatalw("failed to init cache store", "error", err)
	}
	queueStore := sqlite.NewQueueStore(db)

	// Remote authority.
	client := remote.NewClient(remote.ClientConfig{
		BaseURL: mustEnv("API_BASE_URL"),
		Tokens:  remote.StaticToken(getEnv("API_TOKEN", "")),
	}, log)

	// Entity stores for this session.
	products := store.NewProductStore(sc, client, cacheStore, queueStore, log)
	customers := store.NewCustomerStore(sc, client, cacheStore, queueStore, log)
	bills := store.NewBillStore(sc, client, cacheStore, queueStore, log)
	alerts := store.NewAlertStore(sc, client, cacheStore, log)
	products.BindAlerts(alerts)

	engine := replay.New(queueStore, log)
	products.RegisterReplay(engine)
	customers.RegisterReplay(engine)
	bills.RegisterReplay(engine)

	orch := syncer.New(syncer.Config{
		Probe:    client,
		Engine:   engine,
		Queue:    queueStore,
		Interval: getDurationEnv("SYNC_INTERVAL", syncer.DefaultInterval),
		Log:      log,
	})
	orch.Register(products)
	orch.Register(customers)
	orch.Register(bills)
	orch.Register(alerts)

	// Serve cached snapshots immediately; the first cycle overwrites them.
	for _, load := range []func(context.Context) error{
		products.Load, customers.Load, bills.Load, alerts.Load,
	} {
		if err := load(ctx); err != nil {
			log.Warnw("initial load incomplete, continuing offline", "error", err)
		}
	}

	orch.Start(ctx)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down...")
	orch.Stop()
	cancel()

	state := orch.State(context.Background())
	log.Infow("daemon stopped", "pending_changes", state.PendingChanges)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		fmt.Printf("required environment variable %s is not set\n", key)
		os.Exit(1)
	}
	return v
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
