package scanner_test

import (
	"context"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samirrijal/overlapscan/internal/core/domain"
	"github.com/samirrijal/overlapscan/internal/core/scanner"
)

const (
	originLon = 8.0
	originLat = 48.0
)

var metersPerDegLat = orb.EarthRadius * math.Pi / 180

// local converts meters east/north of the origin to WGS84.
func local(x, y float64) orb.Point {
	metersPerDegLon := metersPerDegLat * math.Cos(originLat*math.Pi/180)
	return orb.Point{originLon + x/metersPerDegLon, originLat + y/metersPerDegLat}
}

func rect(x0, y0, x1, y1 float64) orb.Polygon {
	return orb.Polygon{orb.Ring{
		local(x0, y0), local(x1, y0), local(x1, y1), local(x0, y1), local(x0, y0),
	}}
}

func fp(id string, g orb.Geometry) domain.Footprint {
	return domain.Footprint{ID: id, Geometry: g, Attributes: map[string]string{"building": "yes"}}
}

func testBBox(t *testing.T) domain.BoundingBox {
	t.Helper()
	b, err := domain.NewBoundingBox(originLon-0.01, originLat-0.01, originLon+0.01, originLat+0.01)
	require.NoError(t, err)
	return b
}

func pairKeys(pairs []domain.OverlapPair) []string {
	keys := make([]string, len(pairs))
	for i, p := range pairs {
		keys[i] = p.IDA + "|" + p.IDB
	}
	return keys
}

func TestScan_TenByTenOverlap(t *testing.T) {
	footprints := []domain.Footprint{
		fp("A", rect(0, 0, 20, 20)),
		fp("B", rect(10, 10, 30, 30)),
		fp("C", rect(500, 500, 520, 520)),
	}

	res, err := scanner.Scan(context.Background(), testBBox(t), footprints, domain.ScanOptions{MinOverlapAreaSquareMeters: 50})
	require.NoError(t, err)

	require.Len(t, res.Pairs, 1)
	p := res.Pairs[0]
	assert.Equal(t, "A", p.IDA)
	assert.Equal(t, "B", p.IDB)
	assert.InDelta(t, 100, p.AreaSquareMeters, 1)
	assert.False(t, res.Truncated)
	assert.Equal(t, 3, res.FootprintsExamined)
	assert.Equal(t, 3, res.PairsExamined)
	assert.Zero(t, res.GeometryErrors)

	want := local(15, 15)
	assert.InDelta(t, want.Lon(), p.Centroid.Lon, 1e-7)
	assert.InDelta(t, want.Lat(), p.Centroid.Lat, 1e-7)
	assert.NotNil(t, p.Geometry)
}

func TestScan_Empty(t *testing.T) {
	res, err := scanner.Scan(context.Background(), testBBox(t), nil, domain.ScanOptions{})
	require.NoError(t, err)
	assert.Empty(t, res.Pairs)
	assert.NotNil(t, res.Pairs)
	assert.False(t, res.Truncated)
	assert.Zero(t, res.FootprintsExamined)
}

func TestScan_NoOverlaps(t *testing.T) {
	footprints := []domain.Footprint{
		fp("a", rect(0, 0, 10, 10)),
		fp("b", rect(10, 0, 20, 10)), // shares an edge with a
		fp("c", rect(100, 100, 110, 110)),
	}
	res, err := scanner.Scan(context.Background(), testBBox(t), footprints, domain.ScanOptions{})
	require.NoError(t, err)
	assert.Empty(t, res.Pairs)
	assert.False(t, res.Truncated)
	assert.Equal(t, 3, res.PairsExamined)
}

func TestScan_DegenerateBBox(t *testing.T) {
	bad := domain.BoundingBox{West: 8.0, South: 48.0, East: 8.0, North: 48.0}
	res, err := scanner.Scan(context.Background(), bad, []domain.Footprint{fp("a", rect(0, 0, 1, 1))}, domain.ScanOptions{})
	assert.ErrorIs(t, err, domain.ErrDegenerateBox)
	assert.Nil(t, res)
}

func TestScan_SkipsInvalidFootprints(t *testing.T) {
	bowtie := orb.Polygon{orb.Ring{local(0, 0), local(20, 20), local(20, 0), local(0, 20), local(0, 0)}}
	footprints := []domain.Footprint{
		fp("bowtie", bowtie),
		fp("empty", orb.Polygon{orb.Ring{}}),
		fp("A", rect(0, 0, 20, 20)),
		fp("open", orb.Polygon{orb.Ring{local(0, 0), local(5, 0), local(5, 5), local(0, 5)}}),
		fp("point", local(1, 1)),
		fp("", rect(0, 0, 5, 5)),
		fp("A", rect(0, 0, 5, 5)),
		fp("B", rect(10, 10, 30, 30)),
	}

	res, err := scanner.Scan(context.Background(), testBBox(t), footprints, domain.ScanOptions{MinOverlapAreaSquareMeters: 50})
	require.NoError(t, err)

	assert.Equal(t, []string{"A|B"}, pairKeys(res.Pairs))
	assert.Equal(t, 6, res.GeometryErrors)
	assert.Len(t, res.Issues, 6)
	assert.Equal(t, 2, res.FootprintsExamined)

	skipped := map[string]bool{}
	for _, is := range res.Issues {
		skipped[is.FootprintID] = true
		assert.NotEmpty(t, is.Reason)
	}
	for _, id := range []string{"bowtie", "empty", "open", "point", "", "A"} {
		assert.True(t, skipped[id], "expected issue for %q", id)
	}
}

func TestScan_Containment(t *testing.T) {
	footprints := []domain.Footprint{
		fp("outer", rect(0, 0, 40, 40)),
		fp("inner", rect(10, 10, 20, 20)),
	}
	res, err := scanner.Scan(context.Background(), testBBox(t), footprints, domain.ScanOptions{})
	require.NoError(t, err)
	require.Len(t, res.Pairs, 1)
	assert.Equal(t, "inner", res.Pairs[0].IDA)
	assert.Equal(t, "outer", res.Pairs[0].IDB)
	assert.InDelta(t, 100, res.Pairs[0].AreaSquareMeters, 1)
}

func TestScan_MinimumAreaIsExclusive(t *testing.T) {
	footprints := []domain.Footprint{
		fp("A", rect(0, 0, 20, 20)),
		fp("B", rect(10, 10, 30, 30)),
	}
	res, err := scanner.Scan(context.Background(), testBBox(t), footprints, domain.ScanOptions{MinOverlapAreaSquareMeters: 150})
	require.NoError(t, err)
	assert.Empty(t, res.Pairs)
}

func TestScan_FiltersByBBox(t *testing.T) {
	footprints := []domain.Footprint{
		fp("A", rect(0, 0, 20, 20)),
		fp("B", rect(10, 10, 30, 30)),
		fp("far1", rect(5000, 5000, 5020, 5020)),
		fp("far2", rect(5010, 5010, 5030, 5030)),
	}
	res, err := scanner.Scan(context.Background(), testBBox(t), footprints, domain.ScanOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"A|B"}, pairKeys(res.Pairs))
	assert.Equal(t, 2, res.FootprintsExamined)
	assert.Equal(t, 1, res.PairsExamined)
}

func TestScan_IgnoresBadFootprintsOutsideBBox(t *testing.T) {
	farBowtie := orb.Polygon{orb.Ring{
		local(5000, 5000), local(5020, 5020), local(5020, 5000), local(5000, 5020), local(5000, 5000),
	}}
	footprints := []domain.Footprint{
		fp("A", rect(0, 0, 20, 20)),
		fp("far-bowtie", farBowtie),
		fp("far-open", orb.Polygon{orb.Ring{local(5000, 5000), local(5005, 5000), local(5005, 5005), local(5000, 5005)}}),
		fp("B", rect(10, 10, 30, 30)),
		fp("no-geometry", nil),
	}
	res, err := scanner.Scan(context.Background(), testBBox(t), footprints, domain.ScanOptions{})
	require.NoError(t, err)

	assert.Equal(t, []string{"A|B"}, pairKeys(res.Pairs))
	assert.Equal(t, 2, res.FootprintsExamined)
	require.Equal(t, 1, res.GeometryErrors, "only the footprint that cannot be placed counts")
	assert.Equal(t, "no-geometry", res.Issues[0].FootprintID)
}

// stack returns n footprints that all overlap each other, with shrinking overlaps.
func stack(n int) []domain.Footprint {
	out := make([]domain.Footprint, n)
	for i := range out {
		off := float64(i) * 3
		out[i] = fp(string(rune('a'+i)), rect(off, off, off+30, off+30))
	}
	return out
}

func TestScan_TruncatesOnComparisonBudget(t *testing.T) {
	footprints := stack(5)
	full, err := scanner.Scan(context.Background(), testBBox(t), footprints, domain.ScanOptions{})
	require.NoError(t, err)
	require.False(t, full.Truncated)
	require.Len(t, full.Pairs, 10)

	part, err := scanner.Scan(context.Background(), testBBox(t), footprints, domain.ScanOptions{MaxComparisons: 4})
	require.NoError(t, err)
	assert.True(t, part.Truncated)
	assert.Equal(t, 4, part.PairsExamined)
	assert.Len(t, part.Pairs, 4)
	assert.Subset(t, pairKeys(full.Pairs), pairKeys(part.Pairs))

	exact, err := scanner.Scan(context.Background(), testBBox(t), footprints, domain.ScanOptions{MaxComparisons: 10})
	require.NoError(t, err)
	assert.False(t, exact.Truncated, "budget equal to the candidate count must not truncate")
}

func TestScan_TruncatesOnPairBudget(t *testing.T) {
	res, err := scanner.Scan(context.Background(), testBBox(t), stack(4), domain.ScanOptions{MaxPairs: 2})
	require.NoError(t, err)
	assert.True(t, res.Truncated)
	assert.Len(t, res.Pairs, 2)
}

func TestScan_OrderingAndDeterminism(t *testing.T) {
	footprints := []domain.Footprint{
		fp("z", rect(0, 0, 20, 20)),
		fp("y", rect(10, 10, 30, 30)),   // overlaps z by 100
		fp("m", rect(100, 0, 140, 40)),
		fp("k", rect(110, 10, 140, 40)), // inside m: 900
		fp("q", rect(200, 0, 210, 10)),
		fp("p", rect(205, 0, 215, 10)), // 50
	}

	first, err := scanner.Scan(context.Background(), testBBox(t), footprints, domain.ScanOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"k|m", "y|z", "p|q"}, pairKeys(first.Pairs))

	for _, p := range first.Pairs {
		assert.Less(t, p.IDA, p.IDB)
		assert.Greater(t, p.AreaSquareMeters, 0.0)
	}

	second, err := scanner.Scan(context.Background(), testBBox(t), footprints, domain.ScanOptions{})
	require.NoError(t, err)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("scan is not deterministic (-first +second):\n%s", diff)
	}
}

func TestScan_MultiPolygon(t *testing.T) {
	mp := orb.MultiPolygon{rect(0, 0, 10, 10), rect(50, 50, 60, 60)}
	footprints := []domain.Footprint{
		fp("multi", mp),
		fp("solo", rect(55, 55, 70, 70)),
	}
	res, err := scanner.Scan(context.Background(), testBBox(t), footprints, domain.ScanOptions{})
	require.NoError(t, err)
	require.Len(t, res.Pairs, 1)
	assert.InDelta(t, 25, res.Pairs[0].AreaSquareMeters, 0.5)
}

func TestScan_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := scanner.Scan(ctx, testBBox(t), stack(3), domain.ScanOptions{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, res)
}
