package export

import (
	"strconv"
	"strings"

	"github.com/samirrijal/overlapscan/internal/core/domain"
)

// FileName is the download name for a run's overlaps, e.g.
// "overlapping_buildings_task_1234.geojson" or
// "overlapping_buildings_bbox_8_48_8.01_48.01.csv".
func FileName(run *domain.ScanRun, ext string) string {
	var suffix string
	if run.TaskID != nil {
		suffix = "task_" + strconv.Itoa(*run.TaskID)
	} else {
		suffix = "bbox_" + strings.ReplaceAll(run.BBox.String(), ",", "_")
	}
	return "overlapping_buildings_" + suffix + "." + strings.TrimPrefix(ext, ".")
}
