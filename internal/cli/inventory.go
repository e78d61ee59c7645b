package cli

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/stallwatch/stallwatch/internal/ledger"
	"github.com/stallwatch/stallwatch/internal/report"
)

// InventoryOptions holds flags for the inventory command.
type InventoryOptions struct {
	*RootOptions
}

// NewInventoryCommand creates the inventory command.
func NewInventoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InventoryOptions{RootOptions: rootOpts}

	return &cobra.Command{
		Use:           "inventory <item>",
		Short:         "Show which traders currently list an item, cheapest first",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInventory(opts, cmd, args[0])
		},
	}
}

func runInventory(opts *InventoryOptions, cmd *cobra.Command, item string) error {
	a, err := openApp(opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.Close()

	itemKey := ledger.NormalizeItemKey(item)
	rows, err := a.Ledger.Inventory(context.Background(), itemKey)
	if err != nil {
		return WrapExitError(ExitFailure, "read inventory", err)
	}

	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return f.Emit(rows, func(w io.Writer) error {
		return report.RenderInventory(w, itemKey, rows)
	})
}
