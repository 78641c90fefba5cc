package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

const (
	DefaultMaxPairs       = 5000
	DefaultMaxComparisons = 2_000_000
)

// Footprint is one building outline. Geometry is an orb.Polygon or orb.MultiPolygon in WGS84.
type Footprint struct {
	ID         string            `json:"id"`
	Geometry   orb.Geometry      `json:"-"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// ScanOptions bounds a scan. Zero MaxPairs or MaxComparisons select the defaults.
type ScanOptions struct {
	MinOverlapAreaSquareMeters float64 `json:"min_overlap_area"`
	MaxPairs                   int     `json:"max_pairs"`
	MaxComparisons             int     `json:"max_comparisons"`
}

// WithDefaults fills zero or negative budgets.
func (o ScanOptions) WithDefaults() ScanOptions {
	if o.MaxPairs <= 0 {
		o.MaxPairs = DefaultMaxPairs
	}
	if o.MaxComparisons <= 0 {
		o.MaxComparisons = DefaultMaxComparisons
	}
	if o.MinOverlapAreaSquareMeters < 0 {
		o.MinOverlapAreaSquareMeters = 0
	}
	return o
}

// OverlapPair is one pair of footprints whose outlines intersect. IDA < IDB.
type OverlapPair struct {
	IDA              string       `json:"id_a"`
	IDB              string       `json:"id_b"`
	AreaSquareMeters float64      `json:"area_m2"`
	Centroid         GeoPoint     `json:"centroid"`
	Geometry         orb.Geometry `json:"-"`
}

// MarshalJSON renders the overlap geometry as a GeoJSON geometry object.
func (p OverlapPair) MarshalJSON() ([]byte, error) {
	type alias OverlapPair
	out := struct {
		alias
		Geometry *geojson.Geometry `json:"geometry,omitempty"`
	}{alias: alias(p)}
	if p.Geometry != nil {
		out.Geometry = geojson.NewGeometry(p.Geometry)
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts the form written by MarshalJSON.
func (p *OverlapPair) UnmarshalJSON(data []byte) error {
	type alias OverlapPair
	var in struct {
		alias
		Geometry *geojson.Geometry `json:"geometry"`
	}
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*p = OverlapPair(in.alias)
	if in.Geometry != nil {
		p.Geometry = in.Geometry.Geometry()
	}
	return nil
}

// ScanResult is the caller-owned output of one scan.
//
// When Truncated is true a budget was hit, so a missing pair is not proof that two
// footprints do not overlap.
type ScanResult struct {
	Pairs              []OverlapPair   `json:"pairs"`
	FootprintsExamined int             `json:"footprints_examined"`
	PairsExamined      int             `json:"pairs_examined"`
	Truncated          bool            `json:"truncated"`
	GeometryErrors     int             `json:"geometry_errors"`
	Issues             []GeometryError `json:"issues,omitempty"`
}

// ScanRun records one end-to-end invocation: input, source and result.
type ScanRun struct {
	ID                uuid.UUID     `json:"id"`
	BBox              BoundingBox   `json:"bbox"`
	Center            GeoPoint      `json:"center"`
	TaskID            *int          `json:"task_id,omitempty"`
	Source            string        `json:"source"`
	Options           ScanOptions   `json:"options"`
	StartedAt         time.Time     `json:"started_at"`
	Duration          time.Duration `json:"-"`
	DurationMillis    int64         `json:"duration_ms"`
	FootprintsFetched int           `json:"footprints_fetched"`
	Result            ScanResult    `json:"result"`
}

// ScanRunSummary is the list view of a ScanRun, without pairs.
type ScanRunSummary struct {
	ID                 uuid.UUID   `json:"id"`
	BBox               BoundingBox `json:"bbox"`
	TaskID             *int        `json:"task_id,omitempty"`
	Source             string      `json:"source"`
	StartedAt          time.Time   `json:"started_at"`
	DurationMillis     int64       `json:"duration_ms"`
	PairCount          int         `json:"pair_count"`
	FootprintsExamined int         `json:"footprints_examined"`
	Truncated          bool        `json:"truncated"`
	GeometryErrors     int         `json:"geometry_errors"`
}

// Summary returns the list view of the run.
func (r *ScanRun) Summary() ScanRunSummary {
	return ScanRunSummary{
		ID:                 r.ID,
		BBox:               r.BBox,
		TaskID:             r.TaskID,
		Source:             r.Source,
		StartedAt:          r.StartedAt,
		DurationMillis:     r.DurationMillis,
		PairCount:          len(r.Result.Pairs),
		FootprintsExamined: r.Result.FootprintsExamined,
		Truncated:          r.Result.Truncated,
		GeometryErrors:     r.Result.GeometryErrors,
	}
}

// ScanCompletedEvent is published after a run is stored.
type ScanCompletedEvent struct {
	RunID          uuid.UUID   `json:"run_id"`
	Source         string      `json:"source"`
	BBox           BoundingBox `json:"bbox"`
	TaskID         *int        `json:"task_id,omitempty"`
	PairCount      int         `json:"pair_count"`
	Truncated      bool        `json:"truncated"`
	GeometryErrors int         `json:"geometry_errors"`
	CompletedAt    time.Time   `json:"completed_at"`
}
