package http

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/samirrijal/overlapscan/internal/core/domain"
	"github.com/samirrijal/overlapscan/internal/core/usecases"
	"github.com/samirrijal/overlapscan/internal/export"
)

const (
	headerScanTruncated = "X-Scan-Truncated"
	mimeGeoJSON         = "application/geo+json"
	mimeCSV             = "text/csv; charset=utf-8"
)

// scanRequest is the body of POST /v1/scans. Exactly one of bbox, task_id and center
// selects the area.
type scanRequest struct {
	BBox           []float64        `json:"bbox"`
	TaskID         *int             `json:"task_id"`
	Center         *usecases.Center `json:"center"`
	Source         string           `json:"source"`
	MinOverlapArea *float64         `json:"min_overlap_area"`
	MaxPairs       int              `json:"max_pairs"`
	MaxComparisons int              `json:"max_comparisons"`
}

func (r scanRequest) toUsecase() (usecases.ScanRequest, string) {
	req := usecases.ScanRequest{
		TaskID:         r.TaskID,
		Center:         r.Center,
		Source:         r.Source,
		MinOverlapArea: r.MinOverlapArea,
		MaxPairs:       r.MaxPairs,
		MaxComparisons: r.MaxComparisons,
	}
	if r.BBox != nil {
		if len(r.BBox) != 4 {
			return req, "bbox must have 4 numbers [west, south, east, north]"
		}
		req.BBox = &domain.BoundingBox{West: r.BBox[0], South: r.BBox[1], East: r.BBox[2], North: r.BBox[3]}
	}
	if r.MaxPairs < 0 || r.MaxComparisons < 0 {
		return req, "max_pairs and max_comparisons must not be negative"
	}
	if r.MinOverlapArea != nil && *r.MinOverlapArea < 0 {
		return req, "min_overlap_area must not be negative"
	}
	return req, ""
}

// CreateScanHandler runs a scan synchronously and returns the stored run.
func CreateScanHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body scanRequest
		if err := json.Unmarshal(c.Body(), &body); err != nil {
			return errBadRequest(c, "invalid JSON body: "+err.Error())
		}
		req, problem := body.toUsecase()
		if problem != "" {
			return errBadRequest(c, problem)
		}

		run, err := deps.Scans.Run(c.UserContext(), req)
		if err != nil {
			return errFromDomain(c, err)
		}

		c.Set(headerScanTruncated, strconv.FormatBool(run.Result.Truncated))
		c.Location("/v1/scans/" + run.ID.String())
		return c.Status(fiber.StatusCreated).JSON(run)
	}
}

// ListScansHandler returns run summaries, newest first.
func ListScansHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		offset, limit := pageParams(c)

		runs, total, err := deps.Scans.List(c.UserContext(), offset, limit)
		if err != nil {
			return errFromDomain(c, err)
		}

		pg := Pagination{Offset: offset, Limit: limit, Total: total}
		SetLinkHeaders(c, pg)
		return c.JSON(Page[domain.ScanRunSummary]{Data: runs, Pagination: pg})
	}
}

// loadRun fetches the run named by the :id parameter. When it returns a nil run the
// response has been written and the handler returns err unchanged.
func loadRun(c *fiber.Ctx, deps *Dependencies) (*domain.ScanRun, error) {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return nil, errBadRequest(c, "id must be a UUID")
	}
	run, err := deps.Scans.Get(c.UserContext(), id)
	if err != nil {
		return nil, errFromDomain(c, err)
	}
	return run, nil
}

// GetScanHandler returns one stored run with all pairs.
func GetScanHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		run, err := loadRun(c, deps)
		if run == nil {
			return err
		}
		c.Set(headerScanTruncated, strconv.FormatBool(run.Result.Truncated))
		return c.JSON(run)
	}
}

// ScanGeoJSONHandler serves a run's overlaps as a GeoJSON download.
func ScanGeoJSONHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		run, err := loadRun(c, deps)
		if run == nil {
			return err
		}

		data, err := export.PairsFeatureCollection(&run.Result).MarshalJSON()
		if err != nil {
			return errInternal(c, "encode geojson")
		}
		c.Set(headerScanTruncated, strconv.FormatBool(run.Result.Truncated))
		c.Attachment(export.FileName(run, "geojson"))
		c.Set(fiber.HeaderContentType, mimeGeoJSON)
		return c.Send(data)
	}
}

// ScanCSVHandler serves a run's overlaps as CSV.
func ScanCSVHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		run, err := loadRun(c, deps)
		if run == nil {
			return err
		}

		var buf bytes.Buffer
		if err := export.WritePairsCSV(&buf, &run.Result); err != nil {
			return errInternal(c, "encode csv")
		}
		c.Set(headerScanTruncated, strconv.FormatBool(run.Result.Truncated))
		c.Attachment(export.FileName(run, "csv"))
		c.Set(fiber.HeaderContentType, mimeCSV)
		return c.Send(buf.Bytes())
	}
}

// ScanSummaryHandler returns area statistics for a run's pairs.
func ScanSummaryHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		run, err := loadRun(c, deps)
		if run == nil {
			return err
		}
		return c.JSON(export.Summarize(&run.Result))
	}
}

// ValidateBBoxHandler checks a "w,s,e,n" box without scanning it.
func ValidateBBoxHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := c.Query("bbox")
		if raw == "" {
			return errBadRequest(c, "bbox query parameter is required")
		}
		bbox, err := domain.ParseBBox(raw)
		if err != nil {
			return errFromDomain(c, err)
		}
		if _, err := deps.Scans.ResolveBBox(c.UserContext(), usecases.ScanRequest{BBox: &bbox}); err != nil {
			return errFromDomain(c, err)
		}
		return c.JSON(fiber.Map{
			"bbox":     bbox,
			"center":   bbox.Center(),
			"area_km2": bbox.AreaSquareKm(),
		})
	}
}

// ListSourcesHandler returns the registered footprint source names.
func ListSourcesHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"sources": deps.Scans.Sources()})
	}
}
