package cli

import (
	"context"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/stallwatch/stallwatch/internal/report"
)

// StatsOptions holds flags for the stats command.
type StatsOptions struct {
	*RootOptions
	Window time.Duration
}

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "stats",
		Short:         "Show per-kind trade aggregates for a trailing window",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(opts, cmd)
		},
	}

	cmd.Flags().DurationVarP(&opts.Window, "window", "w", 0, "trailing window (0 uses the configured default)")

	return cmd
}

func runStats(opts *StatsOptions, cmd *cobra.Command) error {
	a, err := openApp(opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.Close()

	window := opts.Window
	if window <= 0 {
		window = a.Config.Report.Window
	}

	stats, err := a.Ledger.StatsSince(context.Background(), window)
	if err != nil {
		return WrapExitError(ExitFailure, "read trade statistics", err)
	}

	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return f.Emit(stats, func(w io.Writer) error {
		return report.RenderStats(w, window, stats)
	})
}
