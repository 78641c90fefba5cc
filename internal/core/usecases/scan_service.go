package usecases

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"

	"github.com/samirrijal/overlapscan/internal/core/domain"
	"github.com/samirrijal/overlapscan/internal/core/ports"
	"github.com/samirrijal/overlapscan/internal/core/scanner"
	"github.com/samirrijal/overlapscan/internal/export"
	"github.com/samirrijal/overlapscan/internal/pkg/geospatial"
	"github.com/samirrijal/overlapscan/internal/pkg/logging"
	"github.com/samirrijal/overlapscan/internal/pkg/metrics"
	"github.com/samirrijal/overlapscan/internal/pkg/telemetry"
)

// issueLogLimit caps how many skipped footprints are logged individually per scan.
const issueLogLimit = 10

// Center is the centre-and-radius form of a scan area.
type Center struct {
	Lat          float64 `json:"lat"`
	Lon          float64 `json:"lon"`
	RadiusMeters float64 `json:"radius"`
}

// ScanRequest selects the area (exactly one of BBox, TaskID or Center), the source and
// the budgets. Nil or zero budget fields take the service defaults.
type ScanRequest struct {
	BBox           *domain.BoundingBox
	TaskID         *int
	Center         *Center
	Source         string
	MinOverlapArea *float64
	MaxPairs       int
	MaxComparisons int
}

// ScanServiceConfig holds the tunables of ScanService.
type ScanServiceConfig struct {
	DefaultSource       string
	Defaults            domain.ScanOptions
	CacheTTL            int
	MaxBBoxAreaSquareKm float64
}

// ScanService fetches footprints, runs the overlap scanner and records the run.
// Task resolver, repository, publisher and cache are optional.
type ScanService struct {
	cfg       ScanServiceConfig
	sources   map[string]ports.FootprintSource
	tasks     ports.TaskResolver
	runs      ports.ScanRunRepository
	publisher ports.EventPublisher
	cache     ports.CacheService
	now       func() time.Time
}

// NewScanService creates a new ScanService.
func NewScanService(
	cfg ScanServiceConfig,
	sources []ports.FootprintSource,
	tasks ports.TaskResolver,
	runs ports.ScanRunRepository,
	publisher ports.EventPublisher,
	cache ports.CacheService,
) *ScanService {
	bySource := make(map[string]ports.FootprintSource, len(sources))
	for _, s := range sources {
		bySource[s.Name()] = s
	}
	return &ScanService{
		cfg:       cfg,
		sources:   bySource,
		tasks:     tasks,
		runs:      runs,
		publisher: publisher,
		cache:     cache,
		now:       time.Now,
	}
}

// Sources lists the registered footprint sources, sorted.
func (s *ScanService) Sources() []string {
	names := make([]string, 0, len(s.sources))
	for n := range s.sources {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ResolveBBox turns the area fields of req into a validated box.
func (s *ScanService) ResolveBBox(ctx context.Context, req ScanRequest) (domain.BoundingBox, error) {
	given := 0
	for _, set := range []bool{req.BBox != nil, req.TaskID != nil, req.Center != nil} {
		if set {
			given++
		}
	}
	if given != 1 {
		return domain.BoundingBox{}, &domain.ValidationError{
			Err: errors.New("exactly one of bbox, task_id or center is required"),
		}
	}

	var (
		bbox domain.BoundingBox
		err  error
	)
	switch {
	case req.BBox != nil:
		bbox = *req.BBox
		err = bbox.Validate()
	case req.TaskID != nil:
		if s.tasks == nil {
			return domain.BoundingBox{}, fmt.Errorf("task lookup is not configured")
		}
		bbox, err = s.tasks.ResolveTask(ctx, *req.TaskID)
	case req.Center != nil:
		c := req.Center
		if c.RadiusMeters <= 0 {
			return domain.BoundingBox{}, &domain.ValidationError{
				Field: "radius", Value: c.RadiusMeters, Err: domain.ErrDegenerateBox,
			}
		}
		if c.Lat < -90 || c.Lat > 90 || c.Lon < -180 || c.Lon > 180 {
			return domain.BoundingBox{}, &domain.ValidationError{Field: "center", Err: domain.ErrOutOfRange}
		}
		bbox, err = domain.NewBoundingBox(geospatial.BoundingBox(c.Lat, c.Lon, c.RadiusMeters))
	}
	if err != nil {
		return domain.BoundingBox{}, err
	}

	if limit := s.cfg.MaxBBoxAreaSquareKm; limit > 0 {
		if area := bbox.AreaSquareKm(); area > limit {
			return domain.BoundingBox{}, &domain.ValidationError{Field: "area_km2", Value: area, Err: domain.ErrBBoxTooLarge}
		}
	}
	return bbox, nil
}

func (s *ScanService) options(req ScanRequest) domain.ScanOptions {
	opts := s.cfg.Defaults
	if req.MinOverlapArea != nil {
		opts.MinOverlapAreaSquareMeters = *req.MinOverlapArea
	}
	if req.MaxPairs > 0 {
		opts.MaxPairs = req.MaxPairs
	}
	if req.MaxComparisons > 0 {
		opts.MaxComparisons = req.MaxComparisons
	}
	return opts.WithDefaults()
}

func (s *ScanService) source(name string) (ports.FootprintSource, error) {
	if name == "" {
		name = s.cfg.DefaultSource
	}
	src, ok := s.sources[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownSource, name)
	}
	return src, nil
}

// Run executes one scan end to end. Validation errors are returned before any fetch.
func (s *ScanService) Run(ctx context.Context, req ScanRequest) (*domain.ScanRun, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "ScanService.Run")
	defer span.End()
	log := logging.FromContext(ctx)

	src, err := s.source(req.Source)
	if err != nil {
		return nil, err
	}
	bbox, err := s.ResolveBBox(ctx, req)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	opts := s.options(req)

	span.SetAttributes(
		telemetry.AttrSource.String(src.Name()),
		telemetry.AttrBBox.String(bbox.String()),
	)
	if req.TaskID != nil {
		span.SetAttributes(telemetry.AttrTaskID.Int(*req.TaskID))
	}

	started := s.now()
	footprints, err := s.fetchFootprints(ctx, src, bbox)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	scanStart := time.Now()
	_, scanSpan := telemetry.Tracer().Start(ctx, "scanner.Scan")
	res, err := scanner.Scan(ctx, bbox, footprints, opts)
	if err != nil {
		scanSpan.End()
		metrics.ScansTotal.WithLabelValues(src.Name(), "error").Inc()
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("scan: %w", err)
	}
	scanSpan.SetAttributes(
		telemetry.AttrPairs.Int(len(res.Pairs)),
		telemetry.AttrPairsExamined.Int(res.PairsExamined),
		telemetry.AttrTruncated.Bool(res.Truncated),
		telemetry.AttrGeometryErrors.Int(res.GeometryErrors),
	)
	scanSpan.End()
	metrics.ObserveScan(src.Name(), time.Since(scanStart).Seconds(), len(res.Pairs), res.GeometryErrors, res.Truncated)

	for i, is := range res.Issues {
		if i == issueLogLimit {
			log.Warn("more footprints skipped", "count", len(res.Issues)-issueLogLimit)
			break
		}
		log.Warn("footprint skipped", "footprint_id", is.FootprintID, "reason", is.Reason)
	}
	if res.Truncated {
		log.Warn("scan truncated",
			"pairs", len(res.Pairs),
			"pairs_examined", res.PairsExamined,
			"max_pairs", opts.MaxPairs,
			"max_comparisons", opts.MaxComparisons,
		)
	}

	duration := s.now().Sub(started)
	run := &domain.ScanRun{
		ID:                uuid.New(),
		BBox:              bbox,
		Center:            bbox.Center(),
		TaskID:            req.TaskID,
		Source:            src.Name(),
		Options:           opts,
		StartedAt:         started.UTC(),
		Duration:          duration,
		DurationMillis:    duration.Milliseconds(),
		FootprintsFetched: len(footprints),
		Result:            *res,
	}

	if s.runs != nil {
		if err := s.runs.Save(ctx, run); err != nil {
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("save scan run: %w", err)
		}
	}

	if s.publisher != nil {
		ev := &domain.ScanCompletedEvent{
			RunID:          run.ID,
			Source:         run.Source,
			BBox:           run.BBox,
			TaskID:         run.TaskID,
			PairCount:      len(res.Pairs),
			Truncated:      res.Truncated,
			GeometryErrors: res.GeometryErrors,
			CompletedAt:    s.now().UTC(),
		}
		if err := s.publisher.PublishScanCompleted(ctx, ev); err != nil {
			log.Warn("publish scan completed", "run_id", run.ID, "error", err)
		}
	}

	log.Info("scan completed",
		"run_id", run.ID,
		"source", run.Source,
		"bbox", bbox.String(),
		"footprints", len(footprints),
		"pairs", len(res.Pairs),
		"truncated", res.Truncated,
		"duration_ms", run.DurationMillis,
	)
	return run, nil
}

func (s *ScanService) fetchFootprints(ctx context.Context, src ports.FootprintSource, bbox domain.BoundingBox) ([]domain.Footprint, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "FootprintSource.Footprints")
	defer span.End()
	span.SetAttributes(telemetry.AttrSource.String(src.Name()))

	cacheKey := fmt.Sprintf("footprints:%s:%.6f:%.6f:%.6f:%.6f", src.Name(), bbox.West, bbox.South, bbox.East, bbox.North)
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, cacheKey); err == nil {
			if fps, err := export.DecodeFootprints(data); err == nil {
				metrics.CacheHits.WithLabelValues("footprints").Inc()
				span.SetAttributes(telemetry.AttrCacheHit.Bool(true), telemetry.AttrFootprints.Int(len(fps)))
				return fps, nil
			}
		}
		metrics.CacheMisses.WithLabelValues("footprints").Inc()
	}

	start := time.Now()
	fps, err := src.Footprints(ctx, bbox, 0)
	metrics.SourceFetchDuration.WithLabelValues(src.Name()).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.SourceFetchErrors.WithLabelValues(src.Name()).Inc()
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("fetch footprints from %s: %w", src.Name(), err)
	}
	metrics.FootprintsFetched.WithLabelValues(src.Name()).Observe(float64(len(fps)))
	span.SetAttributes(telemetry.AttrCacheHit.Bool(false), telemetry.AttrFootprints.Int(len(fps)))

	if s.cache != nil && s.cfg.CacheTTL > 0 {
		if data, err := export.EncodeFootprints(fps); err == nil {
			_ = s.cache.Set(ctx, cacheKey, data, s.cfg.CacheTTL)
		}
	}
	return fps, nil
}

// Get returns a stored run.
func (s *ScanService) Get(ctx context.Context, id uuid.UUID) (*domain.ScanRun, error) {
	if s.runs == nil {
		return nil, domain.ErrRunNotFound
	}

	cacheKey := "scans:id:" + id.String()
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, cacheKey); err == nil {
			var run domain.ScanRun
			if err := json.Unmarshal(data, &run); err == nil {
				return &run, nil
			}
		}
	}

	run, err := s.runs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	// Stored runs are immutable.
	if s.cache != nil {
		if data, err := json.Marshal(run); err == nil {
			_ = s.cache.Set(ctx, cacheKey, data, 3600)
		}
	}
	return run, nil
}

// List returns run summaries, newest first, and the total count.
func (s *ScanService) List(ctx context.Context, offset, limit int) ([]domain.ScanRunSummary, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	if s.runs == nil {
		return []domain.ScanRunSummary{}, 0, nil
	}
	return s.runs.List(ctx, offset, limit)
}
