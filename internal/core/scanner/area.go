package scanner

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/planar"
	"github.com/twpayne/go-geos"
)

// intersect returns the polygonal part of a ∩ b, or nil when it is empty or has no area.
// GEOS topology exceptions surface as panics in go-geos; they are turned into errors so
// one pathological pair cannot abort the scan.
func intersect(a, b *geos.Geom) (g orb.Geometry, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("intersection: %v", r)
		}
	}()

	inter := a.Intersection(b)
	defer inter.Destroy()
	if inter.IsEmpty() {
		return nil, nil
	}

	decoded, err := wkb.Unmarshal(inter.ToWKB())
	if err != nil {
		return nil, fmt.Errorf("decode intersection: %w", err)
	}
	return polygonal(decoded), nil
}

// polygonal drops the points and lines a touching intersection can produce.
func polygonal(g orb.Geometry) orb.Geometry {
	var polys orb.MultiPolygon
	var walk func(orb.Geometry)
	walk = func(g orb.Geometry) {
		switch g := g.(type) {
		case orb.Polygon:
			if len(g) > 0 {
				polys = append(polys, g)
			}
		case orb.MultiPolygon:
			for _, p := range g {
				walk(p)
			}
		case orb.Collection:
			for _, c := range g {
				walk(c)
			}
		}
	}
	walk(g)

	switch len(polys) {
	case 0:
		return nil
	case 1:
		return polys[0]
	default:
		return polys
	}
}

// geodesicArea is the spherical-excess area in square meters.
func geodesicArea(g orb.Geometry) float64 {
	return math.Abs(geo.Area(g))
}

func centroid(g orb.Geometry) orb.Point {
	c, _ := planar.CentroidArea(g)
	return c
}
