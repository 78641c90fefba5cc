package main

import (
	"context"
	"log"
	"log/slog"

	"go.temporal.io/sdk/client"
	temporallog "go.temporal.io/sdk/log"
	"go.temporal.io/sdk/worker"

	natsadapter "github.com/samirrijal/overlapscan/internal/adapters/nats"
	"github.com/samirrijal/overlapscan/internal/adapters/postgres"
	"github.com/samirrijal/overlapscan/internal/adapters/valkey"
	"github.com/samirrijal/overlapscan/internal/app"
	"github.com/samirrijal/overlapscan/internal/core/ports"
	"github.com/samirrijal/overlapscan/internal/core/usecases"
	"github.com/samirrijal/overlapscan/internal/pkg/config"
	"github.com/samirrijal/overlapscan/internal/pkg/logging"
	"github.com/samirrijal/overlapscan/internal/workflows"
)

func main() {
	cfg, err := config.Load("overlapscan-worker")
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	closeLog := logging.Setup(cfg.Log.Level, cfg.Log.Format, cfg.Log.File)
	defer closeLog()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	var cacheSvc ports.CacheService
	if cache, err := valkey.New(cfg.Valkey.Addr); err != nil {
		slog.Warn("valkey unavailable", "error", err)
	} else {
		defer cache.Close()
		cacheSvc = cache
	}

	var publisher ports.EventPublisher
	if pub, err := natsadapter.NewPublisher(cfg.NATS.URL); err != nil {
		slog.Warn("nats unavailable", "error", err)
	} else {
		defer pub.Close()
		publisher = pub
	}

	sources, closeSources, err := app.Sources(ctx, cfg)
	if err != nil {
		log.Fatalf("sources: %v", err)
	}
	defer closeSources()

	scanSvc := usecases.NewScanService(
		app.ScanServiceConfig(cfg),
		sources,
		app.TaskResolver(cfg),
		postgres.NewScanRunRepo(db),
		publisher,
		cacheSvc,
	)

	c, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
		Logger:    temporallog.NewStructuredLogger(slog.Default()),
	})
	if err != nil {
		log.Fatalf("temporal client: %v", err)
	}
	defer c.Close()

	w := worker.New(c, cfg.Temporal.TaskQueue, worker.Options{})

	w.RegisterWorkflow(workflows.BatchScanWorkflow)
	w.RegisterActivity(&workflows.ScanActivities{Scans: scanSvc})

	slog.Info("scan worker started", "task_queue", cfg.Temporal.TaskQueue, "sources", scanSvc.Sources())
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatalf("worker: %v", err)
	}
}
