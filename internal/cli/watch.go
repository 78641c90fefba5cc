package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/samirrijal/overlapscan/internal/core/domain"
)

func newWatchCmd(env Env) *cobra.Command {
	var source string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print scans as they complete",
		Long: `Follow the scan-completed events published by the API server and worker.
Runs until interrupted.

Examples:
  overlapscan watch
  overlapscan watch --source osmdb`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := env.LoadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			sub, err := env.NewSubscriber(cfg)
			if err != nil {
				return err
			}
			defer sub.Close()

			err = sub.SubscribeScanCompleted(ctx, func(_ context.Context, ev *domain.ScanCompletedEvent) error {
				if source != "" && ev.Source != source {
					return nil
				}
				fmt.Fprintln(env.Out, formatEvent(ev))
				return nil
			})
			if err != nil {
				return fmt.Errorf("subscribe: %w", err)
			}

			fmt.Fprintln(env.Err, defaultTheme.hintStyle().Render("Waiting for scans, Ctrl+C to stop."))
			<-ctx.Done()
			return nil
		},
	}
	cmd.Flags().StringVarP(&source, "source", "s", "", "only show scans from this source")
	return cmd
}

func formatEvent(ev *domain.ScanCompletedEvent) string {
	line := fmt.Sprintf("%s  %s  %-8s  %s  %d overlaps",
		ev.CompletedAt.Format("15:04:05"), ev.RunID, ev.Source, ev.BBox, ev.PairCount)
	if ev.TaskID != nil {
		line += fmt.Sprintf("  task %d", *ev.TaskID)
	}
	if ev.Truncated {
		return defaultTheme.warningStyle().Render(line + "  (truncated)")
	}
	if ev.PairCount > 0 {
		return defaultTheme.errorStyle().Render(line)
	}
	return line
}
