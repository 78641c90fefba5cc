package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/samirrijal/overlapscan/internal/app"
	"github.com/samirrijal/overlapscan/internal/core/domain"
	"github.com/samirrijal/overlapscan/internal/core/usecases"
)

func newValidateCmd(env Env) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <west,south,east,north>",
		Short: "Check a bounding box without scanning it",
		Long: `Check that a bounding box is well formed and within the configured area limit.

Examples:
  overlapscan validate 8.54,47.36,8.56,47.38`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bbox, err := domain.ParseBBox(args[0])
			if err != nil {
				return err
			}
			cfg, err := env.LoadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			// Area checks need no sources.
			svc := usecases.NewScanService(app.ScanServiceConfig(cfg), nil, nil, nil, nil, nil)
			bbox, err = svc.ResolveBBox(cmd.Context(), usecases.ScanRequest{BBox: &bbox})
			if err != nil {
				return err
			}

			center := bbox.Center()
			fmt.Fprintln(env.Out, defaultTheme.successStyle().Render("valid"))
			fmt.Fprintf(env.Out, "  bbox   %s\n", bbox)
			fmt.Fprintf(env.Out, "  center %.6f,%.6f\n", center.Lat, center.Lon)
			fmt.Fprintf(env.Out, "  area   %.3f km²\n", bbox.AreaSquareKm())
			return nil
		},
	}
}
