package http

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
)

// HealthHandler returns a basic liveness check.
func HealthHandler(deps *Dependencies) fiber.Handler {
	startedAt := time.Now()
	version := deps.Version
	if version == "" {
		version = "dev"
	}

	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"uptime":  time.Since(startedAt).String(),
			"version": version,
			"sources": deps.Scans.Sources(),
		})
	}
}

// readyCheck is one dependency checked by ReadyHandler. A failing optional check is
// reported but does not make the service unready.
type readyCheck struct {
	name     string
	required bool
	// ping is nil when the dependency is not configured.
	ping func(ctx context.Context) error
}

// runReadyChecks returns each check's status and whether every required check passed.
func runReadyChecks(ctx context.Context, checks []readyCheck) (map[string]string, bool) {
	out := make(map[string]string, len(checks))
	ready := true
	for _, c := range checks {
		if c.ping == nil {
			out[c.name] = "not configured"
			ready = ready && !c.required
			continue
		}
		if err := c.ping(ctx); err != nil {
			out[c.name] = "error: " + err.Error()
			ready = ready && !c.required
			continue
		}
		out[c.name] = "ok"
	}
	return out, ready
}

func (deps *Dependencies) readyChecks() []readyCheck {
	checks := []readyCheck{{name: "database", required: true}, {name: "nats"}, {name: "cache"}}
	if deps.DB != nil {
		checks[0].ping = func(ctx context.Context) error { return deps.DB.Pool.Ping(ctx) }
	}
	if deps.NATS != nil {
		checks[1].ping = func(context.Context) error {
			if !deps.NATS.IsConnected() {
				return errors.New("disconnected")
			}
			return nil
		}
	}
	if deps.Cache != nil {
		checks[2].ping = deps.Cache.Ping
	}
	return checks
}

// ReadyHandler checks the database, NATS and cache. Only the database is required:
// without it runs cannot be stored or listed. NATS and the cache degrade to no events
// and no caching.
func ReadyHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 3*time.Second)
		defer cancel()

		checks, ready := runReadyChecks(ctx, deps.readyChecks())

		status := "ready"
		code := fiber.StatusOK
		if !ready {
			status = "not ready"
			code = fiber.StatusServiceUnavailable
		}

		return c.Status(code).JSON(fiber.Map{
			"status": status,
			"checks": checks,
		})
	}
}
