package cli

import (
	"errors"
	"strconv"

	"visedit-cli/internal/history"

	"github.com/spf13/cobra"
)

type historyRow struct {
	ID       int64  `json:"id"`
	Kind     string `json:"kind"`
	Selector string `json:"selector"`
	Included bool   `json:"included"`
	Preview  string `json:"preview"`
	At       string `json:"at"`
}

type historyList struct {
	Records  []historyRow `json:"records"`
	Selected int          `json:"selected"`
	CanUndo  bool         `json:"canUndo"`
	CanRedo  bool         `json:"canRedo"`
}

func newHistoryCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect and curate pending edits",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List pending edits",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := loadLedger(cmd.Context(), app)
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, listHistory(l))
		},
	})
	cmd.AddCommand(newHistoryMutateCmd(app, "discard", "Drop an edit without sending it", func(l *history.Ledger, id int64) error {
		return l.Remove(id)
	}))
	cmd.AddCommand(newHistoryMutateCmd(app, "include", "Include an edit in the next commit", func(l *history.Ledger, id int64) error {
		return l.SetIncluded(id, true)
	}))
	cmd.AddCommand(newHistoryMutateCmd(app, "exclude", "Keep an edit out of the next commit", func(l *history.Ledger, id int64) error {
		return l.SetIncluded(id, false)
	}))
	return cmd
}

func newHistoryMutateCmd(app *App, use, short string, apply func(*history.Ledger, int64) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return writeErr(cmd, errInvalidArg("id", args[0], "a record number"))
			}
			ctx := cmd.Context()
			l, err := loadLedger(ctx, app)
			if err != nil {
				return writeErr(cmd, err)
			}
			if err := apply(l, id); err != nil {
				var nf history.NotFoundError
				if errors.As(err, &nf) {
					return writeErr(cmd, errNotFound("record", args[0]))
				}
				return writeErr(cmd, err)
			}
			if err := app.store().SaveLedger(ctx, l.Snapshot()); err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, listHistory(l))
		},
	}
}

func listHistory(l *history.Ledger) historyList {
	out := historyList{
		Records:  []historyRow{},
		Selected: len(l.Selected()),
		CanUndo:  l.CanUndo(),
		CanRedo:  l.CanRedo(),
	}
	for _, r := range l.Records() {
		out.Records = append(out.Records, historyRow{
			ID:       r.ID,
			Kind:     string(r.Kind()),
			Selector: r.Selector,
			Included: r.Included,
			Preview:  r.Preview,
			At:       r.Timestamp.UTC().Format("2006-01-02T15:04:05Z"),
		})
	}
	return out
}
