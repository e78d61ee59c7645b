package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/stallwatch/stallwatch/internal/report"
)

// ExportOptions holds flags for the export command.
type ExportOptions struct {
	*RootOptions
	Limit  int
	Window time.Duration
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "export <file.xlsx>",
		Short:         "Export trades and statistics to a spreadsheet",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(opts, cmd, args[0])
		},
	}

	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 0, "maximum number of trades (0 uses the configured default)")
	cmd.Flags().DurationVarP(&opts.Window, "window", "w", 0, "statistics window (0 uses the configured default)")

	return cmd
}

func runExport(opts *ExportOptions, cmd *cobra.Command, path string) error {
	a, err := openApp(opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.Close()

	limit := opts.Limit
	if limit <= 0 {
		limit = a.Config.Report.Limit
	}
	window := opts.Window
	if window <= 0 {
		window = a.Config.Report.Window
	}

	ctx := context.Background()
	trades, err := a.Ledger.RecentTrades(ctx, limit)
	if err != nil {
		return WrapExitError(ExitFailure, "read trades", err)
	}
	stats, err := a.Ledger.StatsSince(ctx, window)
	if err != nil {
		return WrapExitError(ExitFailure, "read trade statistics", err)
	}

	if err := report.ExportXLSX(path, trades, stats); err != nil {
		return WrapExitError(ExitFailure, "write spreadsheet", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "exported %d trades to %s\n", len(trades), path)
	return nil
}
