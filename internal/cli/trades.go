package cli

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/stallwatch/stallwatch/internal/report"
)

// TradesOptions holds flags for the trades command.
type TradesOptions struct {
	*RootOptions
	Limit int
}

// NewTradesCommand creates the trades command.
func NewTradesCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TradesOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "trades",
		Short:         "List the most recent inferred trades",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrades(opts, cmd)
		},
	}

	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 0, "maximum number of trades (0 uses the configured default)")

	return cmd
}

func runTrades(opts *TradesOptions, cmd *cobra.Command) error {
	a, err := openApp(opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.Close()

	limit := opts.Limit
	if limit <= 0 {
		limit = a.Config.Report.Limit
	}

	trades, err := a.Ledger.RecentTrades(context.Background(), limit)
	if err != nil {
		return WrapExitError(ExitFailure, "read trades", err)
	}

	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return f.Emit(trades, func(w io.Writer) error {
		return report.RenderTrades(w, trades)
	})
}
