// Package hotosm resolves HOT Tasking Manager task ids to bounding boxes.
package hotosm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/samirrijal/overlapscan/internal/core/domain"
)

const service = "hotosm"

// Resolver implements ports.TaskResolver against the Tasking Manager v2 API.
type Resolver struct {
	baseURL string
	client  *http.Client
}

// New creates a resolver for baseURL, e.g. "https://tasks.hotosm.org/api/v2.0".
func New(baseURL string, timeout time.Duration) *Resolver {
	return &Resolver{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

type taskResponse struct {
	BBox     []float64        `json:"bbox"`
	Geometry *json.RawMessage `json:"geometry"`
}

// ResolveTask returns the task's bbox field, or the envelope of its geometry when the
// field is absent.
func (r *Resolver) ResolveTask(ctx context.Context, taskID int) (domain.BoundingBox, error) {
	if taskID <= 0 {
		return domain.BoundingBox{}, &domain.ValidationError{Field: "task_id", Value: float64(taskID), Err: domain.ErrOutOfRange}
	}

	url := fmt.Sprintf("%s/tasks/%d", r.baseURL, taskID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return domain.BoundingBox{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return domain.BoundingBox{}, &domain.UpstreamError{Service: service, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return domain.BoundingBox{}, fmt.Errorf("%w: %d", domain.ErrTaskNotFound, taskID)
	case resp.StatusCode != http.StatusOK:
		return domain.BoundingBox{}, &domain.UpstreamError{Service: service, Status: resp.StatusCode, Err: errors.New(http.StatusText(resp.StatusCode))}
	}

	var task taskResponse
	if err := json.NewDecoder(resp.Body).Decode(&task); err != nil {
		return domain.BoundingBox{}, &domain.UpstreamError{Service: service, Err: fmt.Errorf("decode task: %w", err)}
	}
	return task.bbox()
}

func (t taskResponse) bbox() (domain.BoundingBox, error) {
	if len(t.BBox) == 4 {
		return domain.NewBoundingBox(t.BBox[0], t.BBox[1], t.BBox[2], t.BBox[3])
	}
	if t.Geometry == nil {
		return domain.BoundingBox{}, &domain.UpstreamError{Service: service, Err: errors.New("task has neither bbox nor geometry")}
	}

	g, err := geojson.UnmarshalGeometry(*t.Geometry)
	if err != nil {
		return domain.BoundingBox{}, &domain.UpstreamError{Service: service, Err: fmt.Errorf("decode geometry: %w", err)}
	}

	var bound orb.Bound
	switch geom := g.Geometry().(type) {
	case orb.Polygon:
		if len(geom) == 0 {
			return domain.BoundingBox{}, &domain.UpstreamError{Service: service, Err: errors.New("task geometry is empty")}
		}
		bound = geom[0].Bound()
	case orb.MultiPolygon:
		if len(geom) == 0 || len(geom[0]) == 0 {
			return domain.BoundingBox{}, &domain.UpstreamError{Service: service, Err: errors.New("task geometry is empty")}
		}
		bound = geom.Bound()
	default:
		return domain.BoundingBox{}, &domain.UpstreamError{Service: service, Err: fmt.Errorf("unsupported task geometry %s", geom.GeoJSONType())}
	}
	return domain.FromBound(bound)
}
