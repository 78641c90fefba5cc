package scanner

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/twpayne/go-geos"

	"github.com/samirrijal/overlapscan/internal/core/domain"
)

// candidate is a footprint that passed preparation.
type candidate struct {
	fp    domain.Footprint
	bound orb.Bound
	geom  *geos.Geom
}

// prepare drops footprints whose envelope misses box, then checks the rest and builds
// their GEOS geometry. Footprints that fail are returned as issues and never reach the
// pair loop.
func prepare(gctx *geos.Context, footprints []domain.Footprint, box orb.Bound) ([]candidate, []domain.GeometryError) {
	var (
		out    = make([]candidate, 0, len(footprints))
		issues []domain.GeometryError
		seen   = make(map[string]struct{}, len(footprints))
	)

	for _, fp := range footprints {
		if outside(fp.Geometry, box) {
			continue
		}
		if fp.ID == "" {
			issues = append(issues, domain.GeometryError{Reason: "missing id"})
			continue
		}
		if _, dup := seen[fp.ID]; dup {
			issues = append(issues, domain.GeometryError{FootprintID: fp.ID, Reason: "duplicate id"})
			continue
		}
		seen[fp.ID] = struct{}{}

		if err := checkGeometry(fp.Geometry); err != nil {
			issues = append(issues, domain.GeometryError{FootprintID: fp.ID, Reason: err.Error()})
			continue
		}

		g, err := toGEOS(gctx, fp.Geometry)
		if err != nil {
			issues = append(issues, domain.GeometryError{FootprintID: fp.ID, Reason: err.Error()})
			continue
		}
		if !g.IsValid() {
			reason := g.IsValidReason()
			g.Destroy()
			issues = append(issues, domain.GeometryError{FootprintID: fp.ID, Reason: "invalid geometry: " + reason})
			continue
		}

		out = append(out, candidate{fp: fp, bound: fp.Geometry.Bound(), geom: g})
	}
	return out, issues
}

// outside reports whether g has a non-empty envelope that misses box. Missing or empty
// geometries are kept so the checks below record them.
func outside(g orb.Geometry, box orb.Bound) bool {
	if g == nil {
		return false
	}
	b := g.Bound()
	return !b.IsEmpty() && !b.Intersects(box)
}

func checkGeometry(g orb.Geometry) error {
	switch g := g.(type) {
	case nil:
		return errors.New("missing geometry")
	case orb.Polygon:
		return checkPolygon(g)
	case orb.MultiPolygon:
		if len(g) == 0 {
			return errors.New("empty multipolygon")
		}
		for i, p := range g {
			if err := checkPolygon(p); err != nil {
				return fmt.Errorf("polygon %d: %w", i, err)
			}
		}
		return nil
	default:
		return fmt.Errorf("unsupported geometry type %s", g.GeoJSONType())
	}
}

func checkPolygon(p orb.Polygon) error {
	if len(p) == 0 {
		return errors.New("empty polygon")
	}
	for i, r := range p {
		if len(r) < 4 {
			return fmt.Errorf("ring %d has %d points, need at least 4", i, len(r))
		}
		if !r.Closed() {
			return fmt.Errorf("ring %d is not closed", i)
		}
		for _, pt := range r {
			lon, lat := pt.Lon(), pt.Lat()
			if math.IsNaN(lon) || math.IsNaN(lat) || lon < -180 || lon > 180 || lat < -90 || lat > 90 {
				return fmt.Errorf("ring %d: coordinate (%v, %v) out of range", i, lon, lat)
			}
		}
	}
	return nil
}

func toGEOS(gctx *geos.Context, g orb.Geometry) (*geos.Geom, error) {
	b, err := wkb.Marshal(g)
	if err != nil {
		return nil, fmt.Errorf("encode geometry: %w", err)
	}
	gg, err := gctx.NewGeomFromWKB(b)
	if err != nil {
		return nil, fmt.Errorf("parse geometry: %w", err)
	}
	return gg, nil
}
