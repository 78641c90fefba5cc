package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/samirrijal/overlapscan/internal/pkg/metrics"
)

// maxConns bounds the pool. Saves hold one connection for the whole pair insert.
const maxConns = 20

// DB wraps the pgx pool used for scan runs.
type DB struct {
	Pool *pgxpool.Pool
}

// New opens the pool and checks that PostGIS is installed.
func New(ctx context.Context, dsn string) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = maxConns
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	db := &DB{Pool: pool}

	if _, err := db.PostGISVersion(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return db, nil
}

// PostGISVersion returns postgis_lib_version(). It fails when the extension is missing,
// which means migrations have not been applied.
func (db *DB) PostGISVersion(ctx context.Context) (string, error) {
	var v string
	if err := db.Pool.QueryRow(ctx, "SELECT postgis_lib_version()").Scan(&v); err != nil {
		return "", fmt.Errorf("postgis check (run migrations first): %w", err)
	}
	return v, nil
}

// ReportPoolStats publishes pool gauges every interval until ctx is done.
func (db *DB) ReportPoolStats(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.UpdateDBPoolMetrics(db.Pool.Stat())
		}
	}
}

func (db *DB) Close() {
	db.Pool.Close()
}
