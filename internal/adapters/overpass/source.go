// Package overpass fetches building ways from an Overpass API endpoint.
package overpass

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/paulmach/orb"
	"github.com/serjvanilla/go-overpass"

	"github.com/samirrijal/overlapscan/internal/core/domain"
)

// Name is the source name used in requests and metrics.
const Name = "overpass"

// Source implements ports.FootprintSource. Only closed building ways are returned;
// multipolygon relations are not assembled.
type Source struct {
	client      *overpass.Client
	timeout     time.Duration
	maxFeatures int
}

func New(endpoint string, timeout time.Duration, maxParallel, maxFeatures int) *Source {
	if maxParallel <= 0 {
		maxParallel = 1
	}
	httpClient := &http.Client{
		Timeout: timeout,
	}
	client := overpass.NewWithSettings(endpoint, maxParallel, httpClient)
	return &Source{
		client:      &client,
		timeout:     timeout,
		maxFeatures: maxFeatures,
	}
}

func (s *Source) Name() string { return Name }

// Query builds the Overpass QL for building ways in bbox. Overpass expects (south,west,north,east).
func Query(bbox domain.BoundingBox, timeout time.Duration) string {
	secs := int(timeout.Seconds())
	if secs <= 0 {
		secs = 60
	}
	return fmt.Sprintf(`[out:json][timeout:%d];
way["building"](%s,%s,%s,%s);
out body;
>;
out skel qt;`, secs, coord(bbox.South), coord(bbox.West), coord(bbox.North), coord(bbox.East))
}

func coord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

type queryResult struct {
	result overpass.Result
	err    error
}

// Footprints runs the query. The client has no context support, so cancellation
// abandons the in-flight request rather than aborting it.
func (s *Source) Footprints(ctx context.Context, bbox domain.BoundingBox, limit int) ([]domain.Footprint, error) {
	if limit <= 0 || (s.maxFeatures > 0 && limit > s.maxFeatures) {
		limit = s.maxFeatures
	}

	done := make(chan queryResult, 1)
	go func() {
		res, err := s.client.Query(Query(bbox, s.timeout))
		done <- queryResult{result: res, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-done:
		if r.err != nil {
			return nil, &domain.UpstreamError{Service: Name, Err: r.err}
		}
		return convert(r.result, limit), nil
	}
}

// convert turns building ways into footprints in ascending way id order.
func convert(result overpass.Result, limit int) []domain.Footprint {
	ids := make([]int64, 0, len(result.Ways))
	for id, way := range result.Ways {
		if way == nil || len(way.Nodes) == 0 {
			continue
		}
		if _, ok := way.Tags["building"]; !ok {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}

	footprints := make([]domain.Footprint, 0, len(ids))
	for _, id := range ids {
		way := result.Ways[id]
		ring := make(orb.Ring, 0, len(way.Nodes))
		for _, n := range way.Nodes {
			if n == nil {
				continue
			}
			ring = append(ring, orb.Point{n.Lon, n.Lat})
		}

		attrs := make(map[string]string, len(way.Tags))
		for k, v := range way.Tags {
			attrs[k] = v
		}
		footprints = append(footprints, domain.Footprint{
			ID:         "way/" + strconv.FormatInt(id, 10),
			Geometry:   orb.Polygon{ring},
			Attributes: attrs,
		})
	}
	return footprints
}
