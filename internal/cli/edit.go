package cli

import (
	"path/filepath"

	"visedit-cli/internal/editor"
	"visedit-cli/internal/logging"
	"visedit-cli/internal/tui"

	"github.com/spf13/cobra"
)

type editOptions struct {
	url  string
	file string
}

func newEditCmd(app *App) *cobra.Command {
	var opts editOptions
	cmd := &cobra.Command{
		Use:   "edit",
		Short: "Open a page in the interactive editor",
		Example: `  visedit edit --url http://localhost:3000
  visedit edit --file testdata/page.html`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEdit(cmd, app, opts)
		},
	}
	cmd.Flags().StringVar(&opts.url, "url", envOr("VISEDIT_URL", ""), "Page URL to load in the browser")
	cmd.Flags().StringVar(&opts.file, "file", "", "HTML snapshot with data-rect boxes")
	return cmd
}

func runEdit(cmd *cobra.Command, app *App, opts editOptions) error {
	if opts.url == "" && opts.file == "" {
		opts.url = envOr("VISEDIT_URL", "")
	}
	// The TUI owns the terminal, so logs go to a file next to the store.
	if app.Config.Log.File == "" {
		log, err := logging.New(app.Config.Log.Level, filepath.Join(filepath.Dir(app.Config.Store.Path), "visedit.log"))
		if err != nil {
			return writeErr(cmd, err)
		}
		app.Log = log
	}

	ctx := cmd.Context()
	doc, br, err := loadDocument(ctx, app, opts.url, opts.file)
	if err != nil {
		return writeErr(cmd, err)
	}
	ledger, err := loadLedger(ctx, app)
	if err != nil {
		return writeErr(cmd, err)
	}

	sopts := editor.Options{
		Ledger:    ledger,
		Committer: newAgentCommitter(app),
		Log:       app.logger("editor"),
		OnChange:  persistLedger(app),
	}
	topts := tui.Options{Title: opts.file, Log: app.logger("tui")}
	if br != nil {
		defer br.Close()
		sopts.Screenshotter = br
		topts.Title = opts.url
		topts.Reload = br.Refresh
	}
	s := editor.New(doc, sopts)
	topts.Session = s
	return tui.Run(ctx, topts)
}
