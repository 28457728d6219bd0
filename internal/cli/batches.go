package cli

import (
	"fmt"

	"visedit-cli/internal/store"

	"github.com/spf13/cobra"
)

func newBatchesCmd(app *App) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "batches",
		Short: "List recently sent batches, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				return writeErr(cmd, errInvalidArg("limit", fmt.Sprint(limit), "a positive number"))
			}
			rows, err := app.store().ListBatches(cmd.Context(), limit)
			if err != nil {
				return writeErr(cmd, err)
			}
			if rows == nil {
				rows = []store.BatchRow{}
			}
			return writeOut(cmd, app, rows)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of batches")
	return cmd
}
