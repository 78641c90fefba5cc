// Package export renders scan results as GeoJSON, CSV and WKT, and encodes footprints for
// the cache.
package export

import (
	"fmt"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/geojson"

	"github.com/samirrijal/overlapscan/internal/core/domain"
)

// PairsFeatureCollection returns one feature per overlap. Pairs without a geometry are
// drawn at their centroid.
func PairsFeatureCollection(res *domain.ScanResult) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	if res == nil {
		return fc
	}
	for _, p := range res.Pairs {
		var g orb.Geometry = p.Centroid.Point()
		if p.Geometry != nil {
			g = p.Geometry
		}
		f := geojson.NewFeature(g)
		f.Properties["id_a"] = p.IDA
		f.Properties["id_b"] = p.IDB
		f.Properties["area_m2"] = p.AreaSquareMeters
		f.Properties["centroid_lon"] = p.Centroid.Lon
		f.Properties["centroid_lat"] = p.Centroid.Lat
		fc.Append(f)
	}
	return fc
}

// GeometryWKT returns g as WKT, or "" for nil.
func GeometryWKT(g orb.Geometry) string {
	if g == nil {
		return ""
	}
	return wkt.MarshalString(g)
}

// EncodeFootprints writes footprints as a GeoJSON FeatureCollection in input order. The
// footprint id is the feature id and attributes become properties. A footprint without a
// geometry is written with "geometry": null.
func EncodeFootprints(fps []domain.Footprint) ([]byte, error) {
	fc := geojson.NewFeatureCollection()
	for _, fp := range fps {
		g := fp.Geometry
		if g == nil {
			// An empty collection marshals as null; a nil geometry would panic in orb.
			g = orb.Collection{}
		}
		f := geojson.NewFeature(g)
		f.ID = fp.ID
		for k, v := range fp.Attributes {
			f.Properties[k] = v
		}
		fc.Append(f)
	}
	return fc.MarshalJSON()
}

// DecodeFootprints is the inverse of EncodeFootprints. Footprints without an id or a
// geometry are kept so the scanner can report them. Non-string properties are
// formatted with %v.
func DecodeFootprints(data []byte) ([]domain.Footprint, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("decode footprints: %w", err)
	}

	out := make([]domain.Footprint, 0, len(fc.Features))
	for _, f := range fc.Features {
		attrs := make(map[string]string, len(f.Properties))
		for k, v := range f.Properties {
			if v == nil {
				continue
			}
			attrs[k] = PropertyString(v)
		}
		out = append(out, domain.Footprint{ID: featureID(f), Geometry: f.Geometry, Attributes: attrs})
	}
	return out, nil
}

func featureID(f *geojson.Feature) string {
	if f.ID != nil {
		return PropertyString(f.ID)
	}
	if v, ok := f.Properties["id"]; ok && v != nil {
		return PropertyString(v)
	}
	return ""
}

// PropertyString formats a decoded JSON value. Whole numbers print without a fraction so
// OSM ids survive the float64 round trip.
func PropertyString(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case float64:
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}
