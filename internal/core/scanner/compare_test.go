package scanner

import (
	"slices"
	"testing"

	"github.com/paulmach/orb"

	"github.com/samirrijal/overlapscan/internal/core/domain"
)

func TestComparePairs(t *testing.T) {
	pairs := []domain.OverlapPair{
		{IDA: "b", IDB: "c", AreaSquareMeters: 10},
		{IDA: "a", IDB: "z", AreaSquareMeters: 10},
		{IDA: "a", IDB: "c", AreaSquareMeters: 10},
		{IDA: "x", IDB: "y", AreaSquareMeters: 99},
	}
	slices.SortFunc(pairs, comparePairs)

	var got []string
	for _, p := range pairs {
		got = append(got, p.IDA+p.IDB)
	}
	want := []string{"xy", "ac", "az", "bc"}
	if !slices.Equal(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestPolygonal(t *testing.T) {
	if polygonal(nil) != nil {
		t.Error("nil geometry should have no polygonal part")
	}
	if polygonal(orb.LineString{{0, 0}, {1, 1}}) != nil {
		t.Error("a line has no polygonal part")
	}

	square := orb.Polygon{orb.Ring{{0, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 0}}}
	got := polygonal(orb.Collection{orb.Point{5, 5}, orb.LineString{{0, 0}, {1, 1}}, square})
	if _, ok := got.(orb.Polygon); !ok {
		t.Fatalf("expected orb.Polygon, got %T", got)
	}

	got = polygonal(orb.Collection{square, orb.MultiPolygon{square}})
	if mp, ok := got.(orb.MultiPolygon); !ok || len(mp) != 2 {
		t.Errorf("expected 2-polygon MultiPolygon, got %#v", got)
	}
}
