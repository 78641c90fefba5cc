package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/fiber/v2/middleware/timeout"
	"github.com/gofiber/websocket/v2"

	"github.com/samirrijal/overlapscan/internal/pkg/metrics"
)

const (
	apiVersion         = "1.0.0"
	readTimeout        = 15 * time.Second
	defaultScanTimeout = 120 * time.Second
)

// SetupRoutes registers all REST, GraphQL, and WebSocket routes.
func SetupRoutes(app *fiber.App, deps *Dependencies) {
	app.Use(recover.New())

	app.Use(metrics.Middleware())
	app.Get("/metrics", metrics.Handler())

	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))

	app.Use(requestid.New())
	app.Use(RequestIDLogMiddleware())
	app.Use(AccessLogMiddleware())

	// Scans are expensive upstream; the limit is per IP.
	app.Use(limiter.New(limiter.Config{
		Max:        120,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return newError(c, fiber.StatusTooManyRequests, "rate_limited", "too many requests, please try again later")
		},
	}))

	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Set("X-API-Version", apiVersion)
		return c.Next()
	})

	app.Use(ETagMiddleware())
	app.Use(CachingMiddleware())

	// Health & readiness (no timeout, fast internal checks)
	app.Get("/v1/health", HealthHandler(deps))
	app.Get("/v1/ready", ReadyHandler(deps))

	scanTimeout := deps.ScanTimeout
	if scanTimeout <= 0 {
		scanTimeout = defaultScanTimeout
	}

	v1 := app.Group("/v1")
	v1.Post("/scans", timeout.NewWithContext(CreateScanHandler(deps), scanTimeout))
	v1.Get("/scans", timeout.NewWithContext(ListScansHandler(deps), readTimeout))
	v1.Get("/scans/:id", timeout.NewWithContext(GetScanHandler(deps), readTimeout))
	v1.Get("/scans/:id/overlaps.geojson", timeout.NewWithContext(ScanGeoJSONHandler(deps), readTimeout))
	v1.Get("/scans/:id/overlaps.csv", timeout.NewWithContext(ScanCSVHandler(deps), readTimeout))
	v1.Get("/scans/:id/summary", timeout.NewWithContext(ScanSummaryHandler(deps), readTimeout))
	v1.Get("/bbox/validate", ValidateBBoxHandler(deps))
	v1.Get("/sources", ListSourcesHandler(deps))

	app.Post("/graphql", timeout.NewWithContext(GraphQLHandler(deps), readTimeout))

	specPath := deps.SpecPath
	if specPath == "" {
		specPath = DefaultSpecPath
	}
	SetupDocs(app, specPath)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(WebSocketHandler(deps.NATS)))
}
