package usecases_test

import (
	"context"
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/google/uuid"
	"github.com/paulmach/orb"

	"github.com/samirrijal/overlapscan/internal/core/domain"
	"github.com/samirrijal/overlapscan/internal/core/ports"
	"github.com/samirrijal/overlapscan/internal/core/usecases"
)

// --- Mocks ---

type mockSource struct {
	name        string
	calls       int
	footprintFn func(ctx context.Context, bbox domain.BoundingBox, limit int) ([]domain.Footprint, error)
}

func (m *mockSource) Name() string { return m.name }

func (m *mockSource) Footprints(ctx context.Context, bbox domain.BoundingBox, limit int) ([]domain.Footprint, error) {
	m.calls++
	if m.footprintFn != nil {
		return m.footprintFn(ctx, bbox, limit)
	}
	return nil, nil
}

type mockResolver struct {
	resolveFn func(ctx context.Context, taskID int) (domain.BoundingBox, error)
}

func (m *mockResolver) ResolveTask(ctx context.Context, taskID int) (domain.BoundingBox, error) {
	return m.resolveFn(ctx, taskID)
}

type mockRunRepo struct {
	saved     []*domain.ScanRun
	saveErr   error
	getByIDFn func(ctx context.Context, id uuid.UUID) (*domain.ScanRun, error)
	listFn    func(ctx context.Context, offset, limit int) ([]domain.ScanRunSummary, int, error)
}

func (m *mockRunRepo) Save(ctx context.Context, run *domain.ScanRun) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saved = append(m.saved, run)
	return nil
}

func (m *mockRunRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.ScanRun, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, domain.ErrRunNotFound
}

func (m *mockRunRepo) List(ctx context.Context, offset, limit int) ([]domain.ScanRunSummary, int, error) {
	if m.listFn != nil {
		return m.listFn(ctx, offset, limit)
	}
	return nil, 0, nil
}

type mockPublisher struct {
	events []*domain.ScanCompletedEvent
	err    error
}

func (m *mockPublisher) PublishScanCompleted(ctx context.Context, ev *domain.ScanCompletedEvent) error {
	m.events = append(m.events, ev)
	return m.err
}

var errCacheMiss = errors.New("cache miss")

type memCache struct {
	data map[string][]byte
	sets int
}

func newMemCache() *memCache { return &memCache{data: map[string][]byte{}} }

func (c *memCache) Get(ctx context.Context, key string) ([]byte, error) {
	if v, ok := c.data[key]; ok {
		return v, nil
	}
	return nil, errCacheMiss
}

func (c *memCache) Set(ctx context.Context, key string, value []byte, ttlSeconds int) error {
	c.sets++
	c.data[key] = value
	return nil
}

func (c *memCache) Delete(ctx context.Context, key string) error {
	delete(c.data, key)
	return nil
}

// --- Fixtures ---

const lat0, lon0 = 43.26, -2.93

func square(x0, y0, size float64) orb.Polygon {
	mLat := orb.EarthRadius * math.Pi / 180
	mLon := mLat * math.Cos(lat0*math.Pi/180)
	pt := func(x, y float64) orb.Point { return orb.Point{lon0 + x/mLon, lat0 + y/mLat} }
	return orb.Polygon{orb.Ring{
		pt(x0, y0), pt(x0+size, y0), pt(x0+size, y0+size), pt(x0, y0+size), pt(x0, y0),
	}}
}

func overlappingSource() *mockSource {
	return &mockSource{
		name: "fake",
		footprintFn: func(ctx context.Context, bbox domain.BoundingBox, limit int) ([]domain.Footprint, error) {
			return []domain.Footprint{
				{ID: "way/2", Geometry: square(10, 10, 20)},
				{ID: "way/1", Geometry: square(0, 0, 20)},
				{ID: "way/3", Geometry: square(300, 300, 20)},
			}, nil
		},
	}
}

func testBBox() *domain.BoundingBox {
	b, _ := domain.NewBoundingBox(lon0-0.01, lat0-0.01, lon0+0.01, lat0+0.01)
	return &b
}

type harness struct {
	src   *mockSource
	repo  *mockRunRepo
	pub   *mockPublisher
	cache *memCache
	svc   *usecases.ScanService
}

func newHarness(src *mockSource) *harness {
	h := &harness{src: src, repo: &mockRunRepo{}, pub: &mockPublisher{}, cache: newMemCache()}
	resolver := &mockResolver{resolveFn: func(ctx context.Context, taskID int) (domain.BoundingBox, error) {
		if taskID == 404 {
			return domain.BoundingBox{}, domain.ErrTaskNotFound
		}
		return *testBBox(), nil
	}}
	h.svc = usecases.NewScanService(usecases.ScanServiceConfig{
		DefaultSource:       "fake",
		Defaults:            domain.ScanOptions{MinOverlapAreaSquareMeters: 1},
		CacheTTL:            300,
		MaxBBoxAreaSquareKm: 25,
	}, []ports.FootprintSource{src}, resolver, h.repo, h.pub, h.cache)
	return h
}

// --- Tests ---

func TestScanService_Run(t *testing.T) {
	h := newHarness(overlappingSource())

	run, err := h.svc.Run(context.Background(), usecases.ScanRequest{BBox: testBBox()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if run.Source != "fake" || run.FootprintsFetched != 3 {
		t.Errorf("unexpected run %+v", run)
	}
	if len(run.Result.Pairs) != 1 {
		t.Fatalf("expected 1 pair, got %d", len(run.Result.Pairs))
	}
	p := run.Result.Pairs[0]
	if p.IDA != "way/1" || p.IDB != "way/2" {
		t.Errorf("expected way/1|way/2, got %s|%s", p.IDA, p.IDB)
	}
	if math.Abs(p.AreaSquareMeters-100) > 1 {
		t.Errorf("expected ~100 m², got %v", p.AreaSquareMeters)
	}
	if run.Options.MaxPairs != domain.DefaultMaxPairs {
		t.Errorf("default budget not applied: %+v", run.Options)
	}
	if run.Center != testBBox().Center() {
		t.Errorf("center = %+v", run.Center)
	}

	if len(h.repo.saved) != 1 || h.repo.saved[0].ID != run.ID {
		t.Error("run was not saved")
	}
	if len(h.pub.events) != 1 || h.pub.events[0].RunID != run.ID || h.pub.events[0].PairCount != 1 {
		t.Errorf("unexpected events %+v", h.pub.events)
	}
}

func TestScanService_Run_UsesFootprintCache(t *testing.T) {
	h := newHarness(overlappingSource())
	req := usecases.ScanRequest{BBox: testBBox()}

	first, err := h.svc.Run(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	second, err := h.svc.Run(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if h.src.calls != 1 {
		t.Errorf("expected 1 upstream fetch, got %d", h.src.calls)
	}
	if len(second.Result.Pairs) != len(first.Result.Pairs) {
		t.Errorf("cached scan differs: %d vs %d pairs", len(second.Result.Pairs), len(first.Result.Pairs))
	}
}

func TestScanService_Run_CachedScanKeepsBadFootprints(t *testing.T) {
	src := &mockSource{
		name: "fake",
		footprintFn: func(ctx context.Context, bbox domain.BoundingBox, limit int) ([]domain.Footprint, error) {
			return []domain.Footprint{
				{ID: "way/1", Geometry: square(0, 0, 20)},
				{ID: "way/2", Geometry: nil, Attributes: map[string]string{"building": "yes"}},
				{ID: "", Geometry: square(5, 5, 20)},
				{ID: "way/3", Geometry: square(10, 10, 20)},
			}, nil
		},
	}
	h := newHarness(src)
	req := usecases.ScanRequest{BBox: testBBox()}

	first, err := h.svc.Run(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	second, err := h.svc.Run(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}

	if src.calls != 1 {
		t.Errorf("expected second scan to be served from cache, got %d upstream fetches", src.calls)
	}
	if first.Result.GeometryErrors != 2 {
		t.Errorf("expected 2 geometry errors, got %d", first.Result.GeometryErrors)
	}
	if first.FootprintsFetched != second.FootprintsFetched {
		t.Errorf("footprints fetched: %d vs %d", first.FootprintsFetched, second.FootprintsFetched)
	}
	if !reflect.DeepEqual(first.Result, second.Result) {
		t.Errorf("cached scan differs:\nfirst:  %+v\nsecond: %+v", first.Result, second.Result)
	}
}

func TestScanService_Run_RequestOverrides(t *testing.T) {
	h := newHarness(overlappingSource())
	minArea := 500.0

	run, err := h.svc.Run(context.Background(), usecases.ScanRequest{
		BBox:           testBBox(),
		MinOverlapArea: &minArea,
		MaxComparisons: 2,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(run.Result.Pairs) != 0 {
		t.Errorf("min area not applied: %+v", run.Result.Pairs)
	}
	if !run.Result.Truncated || run.Result.PairsExamined != 2 {
		t.Errorf("expected truncation after 2 comparisons, got %+v", run.Result)
	}
}

func TestScanService_Run_ValidationErrors(t *testing.T) {
	h := newHarness(overlappingSource())
	task := 7
	bad := domain.BoundingBox{West: 8, South: 48, East: 8, North: 48}

	tests := []struct {
		name    string
		req     usecases.ScanRequest
		wantErr error
	}{
		{"no area", usecases.ScanRequest{}, nil},
		{"two areas", usecases.ScanRequest{BBox: testBBox(), TaskID: &task}, nil},
		{"degenerate", usecases.ScanRequest{BBox: &bad}, domain.ErrDegenerateBox},
		{"zero radius", usecases.ScanRequest{Center: &usecases.Center{Lat: 43, Lon: -2}}, domain.ErrDegenerateBox},
		{"center out of range", usecases.ScanRequest{Center: &usecases.Center{Lat: 95, Lon: -2, RadiusMeters: 10}}, domain.ErrOutOfRange},
		{"too large", usecases.ScanRequest{BBox: &domain.BoundingBox{West: 0, South: 0, East: 1, North: 1}}, domain.ErrBBoxTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.svc.Run(context.Background(), tt.req)
			var ve *domain.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected *ValidationError, got %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
	if h.src.calls != 0 {
		t.Errorf("source must not be queried for invalid requests, got %d calls", h.src.calls)
	}
}

func TestScanService_Run_UnknownSource(t *testing.T) {
	h := newHarness(overlappingSource())
	_, err := h.svc.Run(context.Background(), usecases.ScanRequest{BBox: testBBox(), Source: "nope"})
	if !errors.Is(err, domain.ErrUnknownSource) {
		t.Fatalf("expected ErrUnknownSource, got %v", err)
	}
}

func TestScanService_Run_TaskAndCenter(t *testing.T) {
	h := newHarness(overlappingSource())

	task := 12
	run, err := h.svc.Run(context.Background(), usecases.ScanRequest{TaskID: &task})
	if err != nil {
		t.Fatal(err)
	}
	if run.TaskID == nil || *run.TaskID != 12 || run.BBox != *testBBox() {
		t.Errorf("unexpected run %+v", run)
	}

	missing := 404
	if _, err := h.svc.Run(context.Background(), usecases.ScanRequest{TaskID: &missing}); !errors.Is(err, domain.ErrTaskNotFound) {
		t.Errorf("expected ErrTaskNotFound, got %v", err)
	}

	run, err = h.svc.Run(context.Background(), usecases.ScanRequest{Center: &usecases.Center{Lat: lat0, Lon: lon0, RadiusMeters: 200}})
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(run.Center.Lat-lat0) > 1e-9 || math.Abs(run.Center.Lon-lon0) > 1e-9 {
		t.Errorf("center = %+v", run.Center)
	}
}

func TestScanService_Run_SourceError(t *testing.T) {
	upstream := &domain.UpstreamError{Service: "fake", Status: 504, Err: errors.New("gateway timeout")}
	h := newHarness(&mockSource{
		name: "fake",
		footprintFn: func(ctx context.Context, bbox domain.BoundingBox, limit int) ([]domain.Footprint, error) {
			return nil, upstream
		},
	})

	_, err := h.svc.Run(context.Background(), usecases.ScanRequest{BBox: testBBox()})
	var ue *domain.UpstreamError
	if !errors.As(err, &ue) || ue.Status != 504 {
		t.Fatalf("expected UpstreamError 504, got %v", err)
	}
	if len(h.repo.saved) != 0 || len(h.pub.events) != 0 {
		t.Error("failed scans must not be stored or published")
	}
	if h.cache.sets != 0 {
		t.Error("failed fetches must not be cached")
	}
}

func TestScanService_Run_SaveAndPublishErrors(t *testing.T) {
	h := newHarness(overlappingSource())
	h.pub.err = errors.New("nats down")

	if _, err := h.svc.Run(context.Background(), usecases.ScanRequest{BBox: testBBox()}); err != nil {
		t.Fatalf("publish failures must not fail the scan: %v", err)
	}

	h.repo.saveErr = errors.New("db down")
	if _, err := h.svc.Run(context.Background(), usecases.ScanRequest{BBox: testBBox()}); err == nil {
		t.Fatal("expected save error")
	}
}

func TestScanService_WithoutOptionalPorts(t *testing.T) {
	svc := usecases.NewScanService(usecases.ScanServiceConfig{DefaultSource: "fake"},
		[]ports.FootprintSource{overlappingSource()}, nil, nil, nil, nil)

	run, err := svc.Run(context.Background(), usecases.ScanRequest{BBox: testBBox()})
	if err != nil {
		t.Fatal(err)
	}
	if len(run.Result.Pairs) != 1 {
		t.Errorf("expected 1 pair, got %d", len(run.Result.Pairs))
	}

	task := 1
	if _, err := svc.Run(context.Background(), usecases.ScanRequest{TaskID: &task}); err == nil {
		t.Error("expected error without a task resolver")
	}
	if _, err := svc.Get(context.Background(), run.ID); !errors.Is(err, domain.ErrRunNotFound) {
		t.Errorf("expected ErrRunNotFound, got %v", err)
	}
	runs, total, err := svc.List(context.Background(), 0, 10)
	if err != nil || total != 0 || len(runs) != 0 {
		t.Errorf("List() = %v, %d, %v", runs, total, err)
	}
}

func TestScanService_Get_ReadThroughCache(t *testing.T) {
	h := newHarness(overlappingSource())
	id := uuid.New()
	calls := 0
	h.repo.getByIDFn = func(ctx context.Context, got uuid.UUID) (*domain.ScanRun, error) {
		calls++
		if got != id {
			return nil, domain.ErrRunNotFound
		}
		return &domain.ScanRun{ID: id, Source: "fake", Result: domain.ScanResult{
			Pairs: []domain.OverlapPair{{IDA: "a", IDB: "b", AreaSquareMeters: 9, Geometry: square(0, 0, 3)}},
		}}, nil
	}

	for i := 0; i < 2; i++ {
		run, err := h.svc.Get(context.Background(), id)
		if err != nil {
			t.Fatal(err)
		}
		if run.ID != id || len(run.Result.Pairs) != 1 || run.Result.Pairs[0].Geometry == nil {
			t.Errorf("unexpected run %+v", run)
		}
	}
	if calls != 1 {
		t.Errorf("expected 1 repository call, got %d", calls)
	}

	if _, err := h.svc.Get(context.Background(), uuid.New()); !errors.Is(err, domain.ErrRunNotFound) {
		t.Errorf("expected ErrRunNotFound, got %v", err)
	}
}

func TestScanService_List_ClampsLimit(t *testing.T) {
	h := newHarness(overlappingSource())
	var gotOffset, gotLimit int
	h.repo.listFn = func(ctx context.Context, offset, limit int) ([]domain.ScanRunSummary, int, error) {
		gotOffset, gotLimit = offset, limit
		return nil, 0, nil
	}

	_, _, _ = h.svc.List(context.Background(), -5, 1000)
	if gotOffset != 0 || gotLimit != 20 {
		t.Errorf("expected offset 0 limit 20, got %d/%d", gotOffset, gotLimit)
	}
}

func TestScanService_Sources(t *testing.T) {
	svc := usecases.NewScanService(usecases.ScanServiceConfig{}, []ports.FootprintSource{
		&mockSource{name: "postpass"}, &mockSource{name: "osmdb"}, &mockSource{name: "overpass"},
	}, nil, nil, nil, nil)
	got := svc.Sources()
	if len(got) != 3 || got[0] != "osmdb" || got[2] != "postpass" {
		t.Errorf("Sources() = %v", got)
	}
}
