package cli

import (
	"errors"

	"visedit-cli/internal/commit"
	"visedit-cli/internal/editor"

	"github.com/spf13/cobra"
)

type commitBatch struct {
	Number  int     `json:"number"`
	ID      string  `json:"id"`
	Records []int64 `json:"records"`
}

type commitResult struct {
	Batches   []commitBatch `json:"batches"`
	Sent      int           `json:"sent"`
	Completed int           `json:"completed"`
	Committed []int64       `json:"committed"`
	Remaining int           `json:"remaining"`
	Error     string        `json:"error,omitempty"`
}

func newCommitCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "commit",
		Short: "Send included edits to the agent",
		Long:  "Send included edits to the agent in token-bounded batches. Edits leave the history only when every batch completed.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := loadLedger(cmd.Context(), app)
			if err != nil {
				return writeErr(cmd, err)
			}
			s := editor.New(nil, editor.Options{
				Ledger:    l,
				Committer: newAgentCommitter(app),
				Log:       app.logger("editor"),
				OnChange:  persistLedger(app),
			})
			res, err := s.Commit(cmd.Context())
			if errors.Is(err, editor.ErrNothingToCommit) {
				return writeOut(cmd, app, summarize(res, l.Len(), nil))
			}
			if werr := writeOut(cmd, app, summarize(res, l.Len(), err)); werr != nil {
				return werr
			}
			if err != nil {
				return writeErr(cmd, err)
			}
			return nil
		},
	}
}

func summarize(res commit.Result, remaining int, err error) commitResult {
	out := commitResult{
		Batches:   []commitBatch{},
		Sent:      res.Sent,
		Completed: res.Completed,
		Committed: []int64{},
		Remaining: remaining,
	}
	for _, b := range res.Batches {
		out.Batches = append(out.Batches, commitBatch{Number: b.Number, ID: b.ID, Records: b.IDs()})
	}
	if len(res.Batches) > 0 && res.Done() {
		out.Committed = res.CommittedIDs()
	}
	if err != nil {
		out.Error = err.Error()
	}
	return out
}
