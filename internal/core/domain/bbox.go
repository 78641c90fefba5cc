package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

// BoundingBox is a validated WGS84 rectangle. Build it with NewBoundingBox or ParseBBox.
type BoundingBox struct {
	West  float64 `json:"west"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	North float64 `json:"north"`
}

// NewBoundingBox validates the four edges and returns the box.
//
// Range problems are reported before ordering problems, so a box that is both out of
// range and inverted yields ErrOutOfRange.
func NewBoundingBox(west, south, east, north float64) (BoundingBox, error) {
	b := BoundingBox{West: west, South: south, East: east, North: north}
	if err := b.Validate(); err != nil {
		return BoundingBox{}, err
	}
	return b, nil
}

// Validate checks the invariants of a box that was built by hand. The zero value is rejected.
func (b BoundingBox) Validate() error {
	lons := []struct {
		name string
		v    float64
	}{{"west", b.West}, {"east", b.East}}
	for _, c := range lons {
		if math.IsNaN(c.v) || c.v < -180 || c.v > 180 {
			return &ValidationError{Field: c.name, Value: c.v, Err: ErrOutOfRange}
		}
	}
	lats := []struct {
		name string
		v    float64
	}{{"south", b.South}, {"north", b.North}}
	for _, c := range lats {
		if math.IsNaN(c.v) || c.v < -90 || c.v > 90 {
			return &ValidationError{Field: c.name, Value: c.v, Err: ErrOutOfRange}
		}
	}

	if b.West >= b.East {
		return &ValidationError{Field: "west", Value: b.West, Err: ErrDegenerateBox}
	}
	if b.South >= b.North {
		return &ValidationError{Field: "south", Value: b.South, Err: ErrDegenerateBox}
	}
	return nil
}

// ParseBBox parses "west,south,east,north".
func ParseBBox(s string) (BoundingBox, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return BoundingBox{}, &ValidationError{
			Err: fmt.Errorf("bbox must have 4 components, got %d", len(parts)),
		}
	}

	var v [4]float64
	names := [4]string{"west", "south", "east", "north"}
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return BoundingBox{}, &ValidationError{Err: fmt.Errorf("invalid %s: %w", names[i], err)}
		}
		v[i] = f
	}

	return NewBoundingBox(v[0], v[1], v[2], v[3])
}

// FromBound builds a box from an orb bound and validates it.
func FromBound(b orb.Bound) (BoundingBox, error) {
	return NewBoundingBox(b.Min.Lon(), b.Min.Lat(), b.Max.Lon(), b.Max.Lat())
}

// Bound returns the box as an orb bound.
func (b BoundingBox) Bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{b.West, b.South},
		Max: orb.Point{b.East, b.North},
	}
}

// Center returns the midpoint, used to centre map previews.
func (b BoundingBox) Center() GeoPoint {
	return GeoPoint{Lat: (b.South + b.North) / 2, Lon: (b.West + b.East) / 2}
}

// AreaSquareKm is the geodesic area of the box.
func (b BoundingBox) AreaSquareKm() float64 {
	return math.Abs(geo.Area(b.Bound())) / 1e6
}

func (b BoundingBox) String() string {
	return fmt.Sprintf("%s,%s,%s,%s",
		strconv.FormatFloat(b.West, 'f', -1, 64),
		strconv.FormatFloat(b.South, 'f', -1, 64),
		strconv.FormatFloat(b.East, 'f', -1, 64),
		strconv.FormatFloat(b.North, 'f', -1, 64),
	)
}
