// Package postpass fetches building footprints from Geofabrik's Postpass service, a
// read-only PostGIS database of OpenStreetMap data queried over HTTP.
package postpass

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/paulmach/orb/geojson"

	"github.com/samirrijal/overlapscan/internal/core/domain"
	"github.com/samirrijal/overlapscan/internal/export"
)

// Name is the source name used in requests and metrics.
const Name = "postpass"

// attributeColumns are copied from OSM tags into footprint attributes.
var attributeColumns = []string{"building", "name", "addr:housenumber", "addr:street"}

// maxResponseBytes caps a response body read into memory.
const maxResponseBytes = 256 << 20

var osmTypes = map[string]string{"N": "node", "W": "way", "R": "relation"}

// Source implements ports.FootprintSource against the Postpass interpreter endpoint.
type Source struct {
	endpoint    string
	client      *http.Client
	maxFeatures int
	maxBody     int64
}

// New creates a Postpass source. maxFeatures <= 0 means no upstream limit.
func New(endpoint string, timeout time.Duration, maxFeatures int) *Source {
	return &Source{
		endpoint:    endpoint,
		client:      &http.Client{Timeout: timeout},
		maxFeatures: maxFeatures,
		maxBody:     maxResponseBytes,
	}
}

func (s *Source) Name() string { return Name }

// Query returns the SQL sent for bbox. Coordinates come from a validated box and are
// formatted as plain decimals.
func Query(bbox domain.BoundingBox, limit int) string {
	var b strings.Builder
	b.WriteString("SELECT osm_type, osm_id")
	for _, col := range attributeColumns {
		fmt.Fprintf(&b, ", tags->>'%s' AS \"%s\"", col, col)
	}
	fmt.Fprintf(&b, `, geom
FROM postpass_polygon
WHERE tags ? 'building'
  AND geom && ST_MakeEnvelope(%s, %s, %s, %s, 4326)
ORDER BY osm_type, osm_id`,
		formatCoord(bbox.West), formatCoord(bbox.South), formatCoord(bbox.East), formatCoord(bbox.North))
	if limit > 0 {
		fmt.Fprintf(&b, "\nLIMIT %d", limit)
	}
	return b.String()
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Footprints posts the building query and decodes the GeoJSON response.
func (s *Source) Footprints(ctx context.Context, bbox domain.BoundingBox, limit int) ([]domain.Footprint, error) {
	if limit <= 0 || (s.maxFeatures > 0 && limit > s.maxFeatures) {
		limit = s.maxFeatures
	}

	form := url.Values{}
	form.Set("data", Query(bbox, limit))
	form.Set("options[geojson]", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/geo+json, application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &domain.UpstreamError{Service: Name, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBody+1))
	if err != nil {
		return nil, &domain.UpstreamError{Service: Name, Status: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}
	if int64(len(body)) > s.maxBody {
		return nil, &domain.UpstreamError{Service: Name, Status: resp.StatusCode, Err: fmt.Errorf("response exceeds %d bytes", s.maxBody)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &domain.UpstreamError{Service: Name, Status: resp.StatusCode, Err: fmt.Errorf("%s", snippet(body))}
	}

	return decode(body)
}

func decode(body []byte) ([]domain.Footprint, error) {
	fc, err := geojson.UnmarshalFeatureCollection(body)
	if err != nil {
		return nil, &domain.UpstreamError{Service: Name, Err: fmt.Errorf("decode response: %w", err)}
	}

	out := make([]domain.Footprint, 0, len(fc.Features))
	for _, f := range fc.Features {
		attrs := make(map[string]string, len(attributeColumns))
		for _, col := range attributeColumns {
			if v, ok := f.Properties[col]; ok && v != nil {
				attrs[col] = export.PropertyString(v)
			}
		}
		out = append(out, domain.Footprint{
			ID:         footprintID(f.Properties),
			Geometry:   f.Geometry,
			Attributes: attrs,
		})
	}
	return out, nil
}

// footprintID builds "way/123" from the osm_type and osm_id columns. Rows without an
// osm_id get an empty id and are reported by the scanner.
func footprintID(props geojson.Properties) string {
	rawID, ok := props["osm_id"]
	if !ok || rawID == nil {
		return ""
	}
	id := export.PropertyString(rawID)

	typ := "way"
	if t, ok := props["osm_type"].(string); ok && t != "" {
		if long, ok := osmTypes[strings.ToUpper(t)]; ok {
			typ = long
		} else {
			typ = strings.ToLower(t)
		}
	}
	return typ + "/" + id
}

func snippet(body []byte) string {
	const maxLen = 200
	s := strings.TrimSpace(string(body))
	if len(s) > maxLen {
		n := maxLen
		for n > 0 && !utf8.RuneStart(s[n]) {
			n--
		}
		return s[:n] + "..."
	}
	if s == "" {
		return "empty response"
	}
	return s
}
