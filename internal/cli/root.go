// Package cli provides the overlapscan command-line interface.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	natsadapter "github.com/samirrijal/overlapscan/internal/adapters/nats"
	"github.com/samirrijal/overlapscan/internal/app"
	"github.com/samirrijal/overlapscan/internal/core/ports"
	"github.com/samirrijal/overlapscan/internal/core/usecases"
	"github.com/samirrijal/overlapscan/internal/pkg/config"
	"github.com/samirrijal/overlapscan/internal/pkg/logging"
)

// Version is set at build time.
var Version = "dev"

// Env is what the commands read from and write to. Zero fields take the defaults
// used by the overlapscan binary.
type Env struct {
	Out io.Writer
	Err io.Writer

	// LoadConfig defaults to config.Load.
	LoadConfig func() (*config.Config, error)
	// NewScanService defaults to a service over the configured sources with no run store.
	NewScanService func(ctx context.Context, cfg *config.Config) (*usecases.ScanService, func(), error)
	// NewSubscriber defaults to an ephemeral JetStream consumer.
	NewSubscriber func(cfg *config.Config) (Subscriber, error)
}

// Subscriber follows scan-completed events until closed.
type Subscriber interface {
	ports.EventSubscriber
	Close()
}

func (e Env) withDefaults() Env {
	if e.Out == nil {
		e.Out = os.Stdout
	}
	if e.Err == nil {
		e.Err = os.Stderr
	}
	if e.LoadConfig == nil {
		e.LoadConfig = func() (*config.Config, error) {
			return config.Load("overlapscan-cli")
		}
	}
	if e.NewScanService == nil {
		e.NewScanService = newScanService
	}
	if e.NewSubscriber == nil {
		e.NewSubscriber = func(cfg *config.Config) (Subscriber, error) {
			return natsadapter.NewSubscriber(cfg.NATS.URL, "")
		}
	}
	return e
}

func newScanService(ctx context.Context, cfg *config.Config) (*usecases.ScanService, func(), error) {
	sources, closeFn, err := app.Sources(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	svc := usecases.NewScanService(app.ScanServiceConfig(cfg), sources, app.TaskResolver(cfg), nil, nil, nil)
	return svc, closeFn, nil
}

// NewRootCmd builds the command tree.
func NewRootCmd(env Env) *cobra.Command {
	env = env.withDefaults()

	var (
		verbose  bool
		logFile  string
		closeLog func() error
	)

	root := &cobra.Command{
		Use:   "overlapscan",
		Short: "Find overlapping OSM building footprints",
		Long: `overlapscan fetches the building footprints inside a bounding box and reports
every pair whose outlines overlap, with the overlap area in square metres.

The area can be given as a bbox, a HOT Tasking Manager task id or a centre point
with a radius. Scans are bounded by a pair budget and a comparison budget; a
truncated result is flagged.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			var w io.Writer
			if logFile != "" {
				f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
				if err != nil {
					return fmt.Errorf("open log file: %w", err)
				}
				w, closeLog = f, f.Close
			}
			logger := logging.NewCLI(env.Err, w, level)
			cmd.SetContext(logging.WithLogger(cmd.Context(), logger))
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if closeLog != nil {
				_ = closeLog()
			}
		},
	}
	root.SetOut(env.Out)
	root.SetErr(env.Err)

	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	root.PersistentFlags().StringVar(&logFile, "log-file", "", "append JSON logs to this file")

	root.AddCommand(newScanCmd(env))
	root.AddCommand(newValidateCmd(env))
	root.AddCommand(newWatchCmd(env))
	root.AddCommand(newBatchCmd(env))
	return root
}

// Execute runs the overlapscan command until it finishes or is interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return NewRootCmd(Env{}).ExecuteContext(ctx)
}
