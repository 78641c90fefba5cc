// Package app builds the footprint sources and scan service from configuration. It is
// shared by the API server, the worker and the CLI.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/samirrijal/overlapscan/internal/adapters/hotosm"
	"github.com/samirrijal/overlapscan/internal/adapters/osmdb"
	"github.com/samirrijal/overlapscan/internal/adapters/overpass"
	"github.com/samirrijal/overlapscan/internal/adapters/postpass"
	"github.com/samirrijal/overlapscan/internal/core/domain"
	"github.com/samirrijal/overlapscan/internal/core/ports"
	"github.com/samirrijal/overlapscan/internal/core/usecases"
	"github.com/samirrijal/overlapscan/internal/pkg/config"
)

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// Sources builds every configured footprint source. osmdb is included only when its
// DSN is set; a connection failure there is an error when it is the default source and
// a warning otherwise. The returned func closes what was opened.
func Sources(ctx context.Context, cfg *config.Config) ([]ports.FootprintSource, func(), error) {
	sources := []ports.FootprintSource{
		postpass.New(cfg.Postpass.URL, seconds(cfg.Postpass.Timeout), cfg.Postpass.MaxFeatures),
		overpass.New(cfg.Overpass.URL, seconds(cfg.Overpass.Timeout), cfg.Overpass.MaxParallel, cfg.Overpass.MaxFeatures),
	}
	closeFn := func() {}

	if cfg.OSMDB.DSN != "" {
		src, err := osmdb.New(ctx, cfg.OSMDB.DSN, cfg.OSMDB.Table, cfg.OSMDB.SRID, cfg.OSMDB.MaxFeatures)
		switch {
		case err == nil:
			sources = append(sources, src)
			closeFn = func() { _ = src.Close() }
		case cfg.Scan.DefaultSource == osmdb.Name:
			return nil, closeFn, fmt.Errorf("osmdb source: %w", err)
		default:
			slog.Warn("osmdb source unavailable", "error", err)
		}
	}
	return sources, closeFn, nil
}

// TaskResolver returns the HOT Tasking Manager resolver.
func TaskResolver(cfg *config.Config) ports.TaskResolver {
	return hotosm.New(cfg.HOTOSM.URL, seconds(cfg.HOTOSM.Timeout))
}

// ScanServiceConfig maps the scan section onto the service tunables.
func ScanServiceConfig(cfg *config.Config) usecases.ScanServiceConfig {
	return usecases.ScanServiceConfig{
		DefaultSource: cfg.Scan.DefaultSource,
		Defaults: domain.ScanOptions{
			MinOverlapAreaSquareMeters: cfg.Scan.MinOverlapArea,
			MaxPairs:                   cfg.Scan.MaxPairs,
			MaxComparisons:             cfg.Scan.MaxComparisons,
		}.WithDefaults(),
		CacheTTL:            cfg.Scan.CacheTTL,
		MaxBBoxAreaSquareKm: cfg.Scan.MaxBBoxAreaSquareKm,
	}
}
