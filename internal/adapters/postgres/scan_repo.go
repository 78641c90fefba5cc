package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/paulmach/orb/encoding/wkb"

	"github.com/samirrijal/overlapscan/internal/core/domain"
	"github.com/samirrijal/overlapscan/internal/export"
)

// ScanRunRepo implements ports.ScanRunRepository with pgx and PostGIS.
type ScanRunRepo struct {
	db *DB
}

// NewScanRunRepo creates a new ScanRunRepo.
func NewScanRunRepo(db *DB) *ScanRunRepo {
	return &ScanRunRepo{db: db}
}

// Save stores the run and all its pairs in one transaction.
func (r *ScanRunRepo) Save(ctx context.Context, run *domain.ScanRun) error {
	issues, err := json.Marshal(run.Result.Issues)
	if err != nil {
		return fmt.Errorf("marshal issues: %w", err)
	}

	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO scan_runs (
			id, bbox, task_id, source,
			min_overlap_area, max_pairs, max_comparisons,
			footprints_fetched, footprints_examined, pairs_examined, pair_count,
			truncated, geometry_errors, issues, started_at, duration_ms
		)
		VALUES ($1, ST_MakeEnvelope($2, $3, $4, $5, 4326), $6, $7,
		        $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`, run.ID, run.BBox.West, run.BBox.South, run.BBox.East, run.BBox.North, run.TaskID, run.Source,
		run.Options.MinOverlapAreaSquareMeters, run.Options.MaxPairs, run.Options.MaxComparisons,
		run.FootprintsFetched, run.Result.FootprintsExamined, run.Result.PairsExamined, len(run.Result.Pairs),
		run.Result.Truncated, run.Result.GeometryErrors, issues, run.StartedAt, run.DurationMillis)
	if err != nil {
		return fmt.Errorf("insert scan run: %w", err)
	}

	if len(run.Result.Pairs) > 0 {
		batch := &pgx.Batch{}
		for i, p := range run.Result.Pairs {
			var geomWKT *string
			if p.Geometry != nil {
				w := export.GeometryWKT(p.Geometry)
				geomWKT = &w
			}
			batch.Queue(`
				INSERT INTO overlap_pairs (run_id, rank, id_a, id_b, area_m2, centroid, geom)
				VALUES ($1, $2, $3, $4, $5,
				        ST_SetSRID(ST_MakePoint($6, $7), 4326)::geography,
				        ST_GeomFromText($8, 4326))
			`, run.ID, i, p.IDA, p.IDB, p.AreaSquareMeters, p.Centroid.Lon, p.Centroid.Lat, geomWKT)
		}
		br := tx.SendBatch(ctx, batch)
		for range run.Result.Pairs {
			if _, err := br.Exec(); err != nil {
				_ = br.Close()
				return fmt.Errorf("batch exec: %w", err)
			}
		}
		if err := br.Close(); err != nil {
			return fmt.Errorf("batch close: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// GetByID returns a run with its pairs in stored order.
func (r *ScanRunRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.ScanRun, error) {
	var (
		run    domain.ScanRun
		issues []byte
	)
	err := r.db.Pool.QueryRow(ctx, `
		SELECT id, ST_XMin(bbox), ST_YMin(bbox), ST_XMax(bbox), ST_YMax(bbox),
		       task_id, source, min_overlap_area, max_pairs, max_comparisons,
		       footprints_fetched, footprints_examined, pairs_examined,
		       truncated, geometry_errors, COALESCE(issues, '[]'), started_at, duration_ms
		FROM scan_runs WHERE id = $1
	`, id).Scan(
		&run.ID, &run.BBox.West, &run.BBox.South, &run.BBox.East, &run.BBox.North,
		&run.TaskID, &run.Source, &run.Options.MinOverlapAreaSquareMeters, &run.Options.MaxPairs, &run.Options.MaxComparisons,
		&run.FootprintsFetched, &run.Result.FootprintsExamined, &run.Result.PairsExamined,
		&run.Result.Truncated, &run.Result.GeometryErrors, &issues, &run.StartedAt, &run.DurationMillis,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(issues, &run.Result.Issues); err != nil {
		return nil, fmt.Errorf("decode issues: %w", err)
	}
	run.Center = run.BBox.Center()
	run.Duration = time.Duration(run.DurationMillis) * time.Millisecond

	rows, err := r.db.Pool.Query(ctx, `
		SELECT id_a, id_b, area_m2,
		       ST_X(centroid::geometry) AS lon, ST_Y(centroid::geometry) AS lat,
		       ST_AsBinary(geom)
		FROM overlap_pairs
		WHERE run_id = $1
		ORDER BY rank
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	run.Result.Pairs = []domain.OverlapPair{}
	for rows.Next() {
		var (
			p   domain.OverlapPair
			raw []byte
		)
		if err := rows.Scan(&p.IDA, &p.IDB, &p.AreaSquareMeters, &p.Centroid.Lon, &p.Centroid.Lat, &raw); err != nil {
			return nil, err
		}
		if raw != nil {
			g, err := wkb.Unmarshal(raw)
			if err != nil {
				return nil, fmt.Errorf("decode overlap geometry: %w", err)
			}
			p.Geometry = g
		}
		run.Result.Pairs = append(run.Result.Pairs, p)
	}
	return &run, rows.Err()
}

// List returns run summaries, newest first, with the total run count.
func (r *ScanRunRepo) List(ctx context.Context, offset, limit int) ([]domain.ScanRunSummary, int, error) {
	var total int
	if err := r.db.Pool.QueryRow(ctx, `SELECT count(*) FROM scan_runs`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, ST_XMin(bbox), ST_YMin(bbox), ST_XMax(bbox), ST_YMax(bbox),
		       task_id, source, started_at, duration_ms,
		       pair_count, footprints_examined, truncated, geometry_errors
		FROM scan_runs
		ORDER BY started_at DESC
		OFFSET $1 LIMIT $2
	`, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	runs := []domain.ScanRunSummary{}
	for rows.Next() {
		var s domain.ScanRunSummary
		if err := rows.Scan(
			&s.ID, &s.BBox.West, &s.BBox.South, &s.BBox.East, &s.BBox.North,
			&s.TaskID, &s.Source, &s.StartedAt, &s.DurationMillis,
			&s.PairCount, &s.FootprintsExamined, &s.Truncated, &s.GeometryErrors,
		); err != nil {
			return nil, 0, err
		}
		runs = append(runs, s)
	}
	return runs, total, rows.Err()
}
