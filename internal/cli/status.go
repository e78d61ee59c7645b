package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/stallwatch/stallwatch/internal/report"
	"github.com/stallwatch/stallwatch/internal/store"
)

// StatusOptions holds flags for the status command.
type StatusOptions struct {
	*RootOptions
}

// statusResult is the JSON payload for the status command.
type statusResult struct {
	Pool    store.Stats `json:"pool"`
	Pending int         `json:"pending_items"`
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatusOptions{RootOptions: rootOpts}

	return &cobra.Command{
		Use:           "status",
		Short:         "Show pool health and queue backlog",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(opts, cmd)
		},
	}
}

func runStatus(opts *StatusOptions, cmd *cobra.Command) error {
	a, err := openApp(opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.Close()

	pending, err := a.Queue.PendingCount(context.Background())
	if err != nil {
		return WrapExitError(ExitFailure, "read queue backlog", err)
	}

	result := statusResult{
		Pool:    a.Pool.Stats(),
		Pending: pending,
	}

	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return f.Emit(result, func(w io.Writer) error {
		if err := report.RenderPoolStats(w, result.Pool); err != nil {
			return err
		}
		_, err := fmt.Fprintf(w, "pending items\t%d\n", result.Pending)
		return err
	})
}
