package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/samirrijal/overlapscan/internal/core/domain"
	"github.com/samirrijal/overlapscan/internal/core/usecases"
	"github.com/samirrijal/overlapscan/internal/export"
	"github.com/samirrijal/overlapscan/internal/pkg/logging"
)

const (
	formatTable   = "table"
	formatJSON    = "json"
	formatGeoJSON = "geojson"
	formatCSV     = "csv"
)

type scanOptions struct {
	bbox           string
	task           int
	center         string
	source         string
	minArea        float64
	maxPairs       int
	maxComparisons int
	format         string
	out            string
}

func newScanCmd(env Env) *cobra.Command {
	o := &scanOptions{}
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan an area for overlapping buildings",
		Long: `Scan an area for overlapping building footprints.

Exactly one of --bbox, --task or --center selects the area.

Examples:
  overlapscan scan --bbox 8.54,47.36,8.56,47.38
  overlapscan scan --task 17523 --format geojson --out .
  overlapscan scan --center 47.37,8.55,500 --source overpass --min-area 5
  overlapscan scan --bbox 8.54,47.36,8.56,47.38 --format csv --out overlaps.csv`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd, env, o)
		},
	}

	f := cmd.Flags()
	f.StringVar(&o.bbox, "bbox", "", "area as west,south,east,north")
	f.IntVar(&o.task, "task", 0, "HOT Tasking Manager task id")
	f.StringVar(&o.center, "center", "", "area as lat,lon,radius_m")
	f.StringVarP(&o.source, "source", "s", "", "footprint source (default from config)")
	f.Float64Var(&o.minArea, "min-area", 0, "minimum overlap area in m² (default from config)")
	f.IntVar(&o.maxPairs, "max-pairs", 0, "stop after this many overlaps")
	f.IntVar(&o.maxComparisons, "max-comparisons", 0, "stop after this many candidate pairs")
	f.StringVarP(&o.format, "format", "f", formatTable, "output format: table, json, geojson or csv")
	f.StringVarP(&o.out, "out", "o", "", "write to this file, or into this directory under the default name")
	cmd.MarkFlagsMutuallyExclusive("bbox", "task", "center")
	cmd.MarkFlagsOneRequired("bbox", "task", "center")
	return cmd
}

func (o *scanOptions) request(cmd *cobra.Command) (usecases.ScanRequest, error) {
	req := usecases.ScanRequest{
		Source:         o.source,
		MaxPairs:       o.maxPairs,
		MaxComparisons: o.maxComparisons,
	}
	if cmd.Flags().Changed("min-area") {
		minArea := o.minArea
		req.MinOverlapArea = &minArea
	}

	switch {
	case o.bbox != "":
		bbox, err := domain.ParseBBox(o.bbox)
		if err != nil {
			return req, err
		}
		req.BBox = &bbox
	case cmd.Flags().Changed("task"):
		task := o.task
		req.TaskID = &task
	case o.center != "":
		c, err := parseCenter(o.center)
		if err != nil {
			return req, err
		}
		req.Center = c
	}
	return req, nil
}

// parseCenter parses "lat,lon,radius".
func parseCenter(s string) (*usecases.Center, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return nil, &domain.ValidationError{
			Field: "center",
			Err:   fmt.Errorf("expected lat,lon,radius, got %q", s),
		}
	}
	var v [3]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, &domain.ValidationError{Field: "center", Err: err}
		}
		v[i] = f
	}
	return &usecases.Center{Lat: v[0], Lon: v[1], RadiusMeters: v[2]}, nil
}

func extension(format string) string {
	if format == formatTable {
		return "txt"
	}
	return format
}

func runScan(cmd *cobra.Command, env Env, o *scanOptions) error {
	switch o.format {
	case formatTable, formatJSON, formatGeoJSON, formatCSV:
	default:
		return fmt.Errorf("unknown format %q (want table, json, geojson or csv)", o.format)
	}
	req, err := o.request(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	log := logging.FromContext(ctx)

	cfg, err := env.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	svc, closeFn, err := env.NewScanService(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	run, err := svc.Run(ctx, req)
	if err != nil {
		return err
	}

	w := env.Out
	if o.out != "" {
		path := o.out
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			path = filepath.Join(path, export.FileName(run, extension(o.format)))
		}
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()
		w = f
		log.Info("writing results", "path", path, "format", o.format)
	}

	if err := writeRun(w, run, o.format); err != nil {
		return fmt.Errorf("write %s: %w", o.format, err)
	}

	if run.Result.Truncated {
		fmt.Fprintln(env.Err, defaultTheme.warningStyle().Render(fmt.Sprintf(
			"Scan truncated after %d candidate pairs; the overlap list may be incomplete.",
			run.Result.PairsExamined)))
	}
	return nil
}

func writeRun(w io.Writer, run *domain.ScanRun, format string) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	case formatGeoJSON:
		data, err := export.PairsFeatureCollection(&run.Result).MarshalJSON()
		if err != nil {
			return err
		}
		_, err = w.Write(append(data, '\n'))
		return err
	case formatCSV:
		return export.WritePairsCSV(w, &run.Result)
	default:
		return writeTable(w, run)
	}
}

func writeTable(w io.Writer, run *domain.ScanRun) error {
	theme := defaultTheme
	res := run.Result

	var b strings.Builder
	b.WriteString(theme.headingStyle().Render("Scan "+run.ID.String()) + "\n")
	fmt.Fprintf(&b, "  bbox       %s\n", run.BBox)
	if run.TaskID != nil {
		fmt.Fprintf(&b, "  task       %d\n", *run.TaskID)
	}
	fmt.Fprintf(&b, "  source     %s\n", run.Source)
	fmt.Fprintf(&b, "  footprints %d fetched, %d examined\n", run.FootprintsFetched, res.FootprintsExamined)
	fmt.Fprintf(&b, "  compared   %d pairs in %d ms\n", res.PairsExamined, run.DurationMillis)
	if res.GeometryErrors > 0 {
		b.WriteString(theme.warningStyle().Render(fmt.Sprintf("  skipped    %d invalid footprints", res.GeometryErrors)) + "\n")
	}
	b.WriteString("\n")

	if len(res.Pairs) == 0 {
		b.WriteString(theme.successStyle().Render("No overlapping buildings found.") + "\n")
		_, err := io.WriteString(w, b.String())
		return err
	}

	s := export.Summarize(&res)
	b.WriteString(theme.headingStyle().Render(fmt.Sprintf("Overlaps (%d)", s.Count)) + "\n")
	fmt.Fprintf(&b, "  total %.1f m², mean %.1f m², median %.1f m², p90 %.1f m², max %.1f m²\n\n",
		s.TotalArea, s.MeanArea, s.MedianArea, s.P90Area, s.MaxArea)

	rows := make([][]string, 0, len(res.Pairs))
	for _, p := range res.Pairs {
		rows = append(rows, []string{
			p.IDA,
			p.IDB,
			strconv.FormatFloat(p.AreaSquareMeters, 'f', 1, 64),
			strconv.FormatFloat(p.Centroid.Lat, 'f', 6, 64),
			strconv.FormatFloat(p.Centroid.Lon, 'f', 6, 64),
		})
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID A", "ID B", "AREA M²", "LAT", "LON").
		Rows(rows...)
	b.WriteString(t.String() + "\n")

	if res.Truncated {
		b.WriteString(theme.hintStyle().Render("Budget reached: a missing pair is not proof of no overlap.") + "\n")
	}
	_, err := io.WriteString(w, b.String())
	return err
}
