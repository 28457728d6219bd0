package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"visedit-cli/internal/agent"
	"visedit-cli/internal/wire"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func newServeCmd(app *App) *cobra.Command {
	var (
		addr    string
		project string
		agentP  string
		usePTY  bool
		noWatch bool
		dryRun  bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the agent endpoint that turns edit batches into agent runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			sc := app.Config.Server
			if cmd.Flags().Changed("addr") {
				sc.Addr = addr
			}
			if cmd.Flags().Changed("project") {
				sc.ProjectDir = project
			}
			if cmd.Flags().Changed("agent") {
				sc.AgentPath = agentP
			}
			if cmd.Flags().Changed("pty") {
				sc.PTY = usePTY
			}
			log := app.logger("agent")

			proj, err := agent.AnalyzeProject(sc.ProjectDir)
			if err != nil {
				log.Warn("project analysis failed", zap.Error(err))
				proj = agent.FallbackProject
			}

			var runner agent.Runner
			if dryRun {
				runner = &agent.LogRunner{Log: log.Named("dry-run")}
			} else {
				runner = &agent.CommandRunner{
					Path: sc.AgentPath,
					Args: sc.AgentArgs,
					Dir:  sc.ProjectDir,
					PTY:  sc.PTY,
					Log:  log.Named("runner"),
					OnEvent: func(ev agent.Event) {
						if ev.Content != "" {
							fmt.Fprintf(cmd.ErrOrStderr(), "[%s] %s\n", ev.Type, ev.Content)
						}
					},
				}
			}

			srv, err := agent.NewServer(agent.ServerConfig{
				Addr:           sc.Addr,
				Project:        proj,
				Runner:         runner,
				Log:            log,
				RequestTimeout: app.Config.Commit.RequestTimeout,
			})
			if err != nil {
				return writeErr(cmd, err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return srv.ListenAndServe(gctx) })

			if sc.WatchEnabled() && !noWatch {
				msg, _ := json.Marshal(wire.Reload{Type: wire.TypeReload})
				rl, err := agent.NewReloader(sc.ProjectDir, func() { srv.Hub().Broadcast(msg) }, log.Named("reload"))
				if err != nil {
					stop()
					_ = g.Wait()
					return writeErr(cmd, err)
				}
				rl.Debounce = sc.ReloadDebounce
				g.Go(func() error { return rl.Run(gctx) })
			}

			fmt.Fprintf(cmd.ErrOrStderr(), "visedit agent endpoint on ws://%s/ws/message (%s)\n", srv.Addr(), proj)
			if err := g.Wait(); err != nil {
				return writeErr(cmd, err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config: localhost:9998)")
	cmd.Flags().StringVar(&project, "project", "", "Project directory the agent works in")
	cmd.Flags().StringVar(&agentP, "agent", "", "Agent command (default from config: claude)")
	cmd.Flags().BoolVar(&usePTY, "pty", false, "Run the agent in a pseudo-terminal")
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "Disable live reload")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Log instructions instead of running the agent")
	return cmd
}
