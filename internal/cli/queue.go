package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/stallwatch/stallwatch/internal/ledger"
	"github.com/stallwatch/stallwatch/internal/scanqueue"
)

// QueueOptions holds flags for the queue command group.
type QueueOptions struct {
	*RootOptions
	Priority int
}

// NewQueueCommand creates the queue command group.
func NewQueueCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueueOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "queue",
		Short:         "Manage the item scan queue",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	add := &cobra.Command{
		Use:           "add <item>",
		Short:         "Enqueue an item for scanning",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQueueAdd(opts, cmd, args[0])
		},
	}
	add.Flags().IntVarP(&opts.Priority, "priority", "p", 0, "scan priority, higher first")

	next := &cobra.Command{
		Use:           "next",
		Short:         "Claim the next pending item and mark it active",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQueueNext(opts, cmd)
		},
	}

	done := &cobra.Command{
		Use:           "done <item>",
		Short:         "Mark an item's scan as completed",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQueueDone(opts, cmd, args[0])
		},
	}

	cmd.AddCommand(add, next, done)
	return cmd
}

func runQueueAdd(opts *QueueOptions, cmd *cobra.Command, item string) error {
	a, err := openApp(opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.Close()

	itemKey := ledger.NormalizeItemKey(item)
	if err := a.Queue.Add(context.Background(), itemKey, opts.Priority); err != nil {
		return WrapExitError(ExitFailure, "enqueue item", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "queued %q with priority %d\n", itemKey, opts.Priority)
	return nil
}

func runQueueNext(opts *QueueOptions, cmd *cobra.Command) error {
	a, err := openApp(opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()
	itemKey, ok, err := a.Queue.Next(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "claim next item", err)
	}
	if !ok {
		fmt.Fprintln(cmd.OutOrStdout(), "queue is empty")
		return nil
	}
	if err := a.Queue.SetStatus(ctx, itemKey, scanqueue.StatusActive); err != nil {
		return WrapExitError(ExitFailure, "mark item active", err)
	}

	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return f.Emit(map[string]string{"item_key": itemKey}, func(w io.Writer) error {
		_, err := fmt.Fprintln(w, itemKey)
		return err
	})
}

func runQueueDone(opts *QueueOptions, cmd *cobra.Command, item string) error {
	a, err := openApp(opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.Close()

	itemKey := ledger.NormalizeItemKey(item)
	if err := a.Queue.SetStatus(context.Background(), itemKey, scanqueue.StatusCompleted); err != nil {
		return WrapExitError(ExitFailure, "mark item completed", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "completed %q\n", itemKey)
	return nil
}
