package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"

	"github.com/samirrijal/overlapscan/internal/adapters/http"
	natsadapter "github.com/samirrijal/overlapscan/internal/adapters/nats"
	"github.com/samirrijal/overlapscan/internal/adapters/postgres"
	"github.com/samirrijal/overlapscan/internal/adapters/valkey"
	"github.com/samirrijal/overlapscan/internal/app"
	"github.com/samirrijal/overlapscan/internal/core/ports"
	"github.com/samirrijal/overlapscan/internal/core/usecases"
	"github.com/samirrijal/overlapscan/internal/pkg/config"
	"github.com/samirrijal/overlapscan/internal/pkg/logging"
	"github.com/samirrijal/overlapscan/internal/pkg/telemetry"
)

var version = "dev"

func main() {
	cfg, err := config.Load("overlapscan-api")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	closeLog := logging.Setup(cfg.Log.Level, cfg.Log.Format, cfg.Log.File)
	defer closeLog()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.TempoAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()
	if v, err := db.PostGISVersion(ctx); err == nil {
		slog.Info("database connected", "postgis", v)
	}
	go db.ReportPoolStats(ctx, 15*time.Second)

	// Optional ports stay nil interfaces when their backend is down.
	var cacheSvc ports.CacheService
	cache, err := valkey.New(cfg.Valkey.Addr)
	if err != nil {
		slog.Warn("valkey unavailable", "error", err)
	} else {
		defer cache.Close()
		cacheSvc = cache
	}

	var publisher ports.EventPublisher
	pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats unavailable", "error", err)
	} else {
		defer pub.Close()
		publisher = pub
	}

	// Raw NATS connection for the WebSocket relay
	natsConn, err := natsadapter.RawConn(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats ws conn unavailable", "error", err)
	} else {
		defer natsConn.Close()
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

	deps := &http.Dependencies{
		Scans:       scanSvc,
		NATS:        natsConn,
		DB:          db,
		Cache:       cache,
		ScanTimeout: time.Duration(cfg.Server.ScanTimeout) * time.Second,
		Version:     version,
	}

	server := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    1024 * 1024, // 1 MB max request body
		AppName:      "overlapscan API",
	})
	server.Use(cors.New(cors.Config{
		AllowOrigins:     "*",
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, If-None-Match",
		ExposeHeaders:    "X-Scan-Truncated, Location, Link, ETag",
		AllowCredentials: false,
		MaxAge:           3600,
	}))

	http.SetupRoutes(server, deps)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("API server starting", "addr", addr, "sources", scanSvc.Sources())
		if err := server.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received, draining connections...", "signal", sig.String())

	// Scans in flight may need their full timeout.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), deps.ScanTimeout+5*time.Second)
	defer shutdownCancel()

	if err := server.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	slog.Info("server stopped")
}
