package cli

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.temporal.io/sdk/client"

	"github.com/samirrijal/overlapscan/internal/workflows"
)

func newBatchCmd(env Env) *cobra.Command {
	var (
		in   workflows.BatchScanInput
		wait bool
	)
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Scan many Tasking Manager tasks on the worker",
		Long: `Start a batch scan workflow over several HOT Tasking Manager tasks. The runs
are stored by the worker and can be fetched from the API.

Examples:
  overlapscan batch --tasks 101,102,103
  overlapscan batch --tasks 101,102 --source overpass --wait`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if cmd.Flags().Changed("min-area") {
				v, _ := cmd.Flags().GetFloat64("min-area")
				in.MinOverlapArea = &v
			}

			cfg, err := env.LoadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			c, err := client.Dial(client.Options{
				HostPort:  cfg.Temporal.HostPort,
				Namespace: cfg.Temporal.Namespace,
			})
			if err != nil {
				return fmt.Errorf("temporal client: %w", err)
			}
			defer c.Close()

			opts := client.StartWorkflowOptions{
				ID:        "batch-scan-" + uuid.NewString(),
				TaskQueue: cfg.Temporal.TaskQueue,
			}
			we, err := c.ExecuteWorkflow(ctx, opts, workflows.BatchScanWorkflow, in)
			if err != nil {
				return fmt.Errorf("start batch scan: %w", err)
			}
			fmt.Fprintf(env.Out, "started workflow %s (run %s)\n", we.GetID(), we.GetRunID())
			if !wait {
				return nil
			}

			var res workflows.BatchScanResult
			if err := we.Get(ctx, &res); err != nil {
				return fmt.Errorf("batch scan: %w", err)
			}
			for _, r := range res.Runs {
				line := fmt.Sprintf("task %-8d run %s  %d overlaps", r.TaskID, r.RunID, r.PairCount)
				if r.Truncated {
					line = defaultTheme.warningStyle().Render(line + "  (truncated)")
				}
				fmt.Fprintln(env.Out, line)
			}
			for _, f := range res.Failures {
				fmt.Fprintln(env.Out, defaultTheme.errorStyle().Render(fmt.Sprintf("task %-8d failed: %s", f.TaskID, f.Error)))
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.IntSliceVar(&in.TaskIDs, "tasks", nil, "comma-separated task ids")
	f.StringVarP(&in.Source, "source", "s", "", "footprint source (default from config)")
	f.Float64("min-area", 0, "minimum overlap area in m² (default from config)")
	f.IntVar(&in.MaxPairs, "max-pairs", 0, "per-task pair budget")
	f.IntVar(&in.MaxComparisons, "max-comparisons", 0, "per-task comparison budget")
	f.IntVar(&in.MaxParallel, "parallel", workflows.DefaultMaxParallel, "tasks scanned at once")
	f.BoolVar(&wait, "wait", false, "wait for the batch and print each run")
	_ = cmd.MarkFlagRequired("tasks")
	return cmd
}
