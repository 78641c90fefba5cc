package http

import (
	"time"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/overlapscan/internal/adapters/postgres"
	"github.com/samirrijal/overlapscan/internal/adapters/valkey"
	"github.com/samirrijal/overlapscan/internal/core/usecases"
)

// Dependencies holds all services needed by HTTP handlers.
type Dependencies struct {
	Scans *usecases.ScanService
	NATS  *nats.Conn
	DB    *postgres.DB
	Cache *valkey.Cache

	// ScanTimeout bounds POST /v1/scans, which fetches and scans synchronously.
	ScanTimeout time.Duration
	Version     string
	// SpecPath overrides DefaultSpecPath.
	SpecPath string
}
