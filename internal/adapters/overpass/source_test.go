package overpass

import (
	"strings"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/serjvanilla/go-overpass"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samirrijal/overlapscan/internal/core/domain"
)

func building(id int64, tags map[string]string, coords ...[2]float64) *overpass.Way {
	nodes := make([]*overpass.Node, 0, len(coords))
	for _, c := range coords {
		nodes = append(nodes, &overpass.Node{Lat: c[1], Lon: c[0]})
	}
	return &overpass.Way{Meta: overpass.Meta{ID: id, Tags: tags}, Nodes: nodes}
}

func square(x, y float64) [][2]float64 {
	return [][2]float64{{x, y}, {x + 0.001, y}, {x + 0.001, y + 0.001}, {x, y + 0.001}, {x, y}}
}

func TestQuery(t *testing.T) {
	bbox := domain.BoundingBox{West: 8, South: 48, East: 8.01, North: 48.01}
	q := Query(bbox, 90*time.Second)

	assert.True(t, strings.HasPrefix(q, "[out:json][timeout:90];"))
	assert.Contains(t, q, `way["building"](48,8,48.01,8.01);`)
	assert.Contains(t, Query(bbox, 0), "[timeout:60]")
}

func TestConvert(t *testing.T) {
	result := overpass.Result{
		Ways: map[int64]*overpass.Way{
			30: building(30, map[string]string{"building": "yes", "name": "Hall"}, square(8, 48)...),
			10: building(10, map[string]string{"building": "house"}, square(8.002, 48)...),
			20: building(20, map[string]string{"highway": "residential"}, square(8.004, 48)...),
			40: {Meta: overpass.Meta{ID: 40, Tags: map[string]string{"building": "yes"}}},
		},
	}

	got := convert(result, 0)
	require.Len(t, got, 2)
	assert.Equal(t, "way/10", got[0].ID)
	assert.Equal(t, "way/30", got[1].ID)
	assert.Equal(t, "Hall", got[1].Attributes["name"])

	poly, ok := got[0].Geometry.(orb.Polygon)
	require.True(t, ok)
	require.Len(t, poly, 1)
	assert.Len(t, poly[0], 5)
	assert.True(t, poly[0].Closed())
	assert.Equal(t, orb.Point{8.002, 48}, poly[0][0])
}

func TestConvert_Limit(t *testing.T) {
	result := overpass.Result{Ways: map[int64]*overpass.Way{}}
	for i := int64(1); i <= 5; i++ {
		result.Ways[i] = building(i, map[string]string{"building": "yes"}, square(8+float64(i)*0.01, 48)...)
	}

	got := convert(result, 3)
	require.Len(t, got, 3)
	assert.Equal(t, "way/3", got[2].ID)
}
