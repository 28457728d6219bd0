package cli

import (
	"fmt"
	"os"
	"strings"

	"visedit-cli/internal/config"
	"visedit-cli/internal/format"
	"visedit-cli/internal/logging"
	"visedit-cli/internal/store"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type App struct {
	ConfigPath string
	StorePath  string
	PrettyJSON bool
	Format     string
	LogLevel   string
	LogFile    string

	Config *config.Config
	Log    *zap.Logger
}

func NewRootCmd() *cobra.Command {
	app := &App{}

	cmd := &cobra.Command{
		Use:          "visedit",
		Short:        "Visual page editor that hands edits to a coding agent",
		SilenceUsage: true,
		Example: strings.TrimSpace(`
  # Edit a running dev server in the terminal
  visedit edit --url http://localhost:3000

  # Start the agent endpoint for the current project
  visedit serve --project .

  # Review and send pending edits
  visedit history list
  visedit commit
`),
		RunE: func(cmd *cobra.Command, args []string) error {
			// No subcommand => interactive editor.
			if cmd.HasSubCommands() && len(args) == 0 {
				return runEdit(cmd, app, editOptions{})
			}
			return cmd.Help()
		},
	}

	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return app.init(cmd)
	}
	cmd.PersistentPostRunE = func(cmd *cobra.Command, args []string) error {
		if app.Log != nil {
			_ = app.Log.Sync()
		}
		return nil
	}

	cmd.PersistentFlags().StringVar(&app.ConfigPath, "config", envOr("VISEDIT_CONFIG", ""), "Path to config.yaml (default: ~/.visedit/config.yaml if present)")
	cmd.PersistentFlags().StringVar(&app.StorePath, "store", "", "Path to the sqlite store (overrides config)")
	cmd.PersistentFlags().BoolVar(&app.PrettyJSON, "pretty", false, "Pretty-print output")
	cmd.PersistentFlags().StringVar(&app.Format, "format", envOr("VISEDIT_FORMAT", format.JSON), "Output format (json|edn)")
	cmd.PersistentFlags().StringVar(&app.LogLevel, "log-level", "", "Log level (debug|info|warn|error)")
	cmd.PersistentFlags().StringVar(&app.LogFile, "log-file", "", "Write logs to this file instead of stderr")

	cmd.AddCommand(newEditCmd(app))
	cmd.AddCommand(newServeCmd(app))
	cmd.AddCommand(newInspectCmd(app))
	cmd.AddCommand(newHistoryCmd(app))
	cmd.AddCommand(newPreviewCmd(app))
	cmd.AddCommand(newCommitCmd(app))
	cmd.AddCommand(newBatchesCmd(app))

	return cmd
}

// init loads config and builds the logger. Flags win over the config file and
// environment.
func (app *App) init(cmd *cobra.Command) error {
	path, optional := app.ConfigPath, false
	if path == "" {
		path, optional = config.DefaultPath(), true
	}
	cfg, err := config.Load(path, optional)
	if err != nil {
		return writeErr(cmd, err)
	}
	if app.StorePath != "" {
		cfg.Store.Path = app.StorePath
	}
	if app.LogLevel != "" {
		cfg.Log.Level = app.LogLevel
	}
	if app.LogFile != "" {
		cfg.Log.File = app.LogFile
	}
	app.Config = cfg

	log, err := logging.New(cfg.Log.Level, cfg.Log.File)
	if err != nil {
		return writeErr(cmd, err)
	}
	app.Log = log
	return nil
}

func (app *App) store() store.Store {
	return store.Store{Path: app.Config.Store.Path}
}

// logger returns the app logger, or a nop logger before init ran.
func (app *App) logger(name string) *zap.Logger {
	if app.Log == nil {
		return zap.NewNop()
	}
	return app.Log.Named(name)
}

func envOr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func writeOut(cmd *cobra.Command, app *App, v any) error {
	return format.Write(cmd.OutOrStdout(), v, app.Format, app.PrettyJSON)
}

func writeErr(cmd *cobra.Command, err error) error {
	fmt.Fprintln(cmd.ErrOrStderr(), err.Error())
	return err
}
