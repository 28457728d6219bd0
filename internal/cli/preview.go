package cli

import (
	"fmt"
	"strings"

	"visedit-cli/internal/agent"
	"visedit-cli/internal/tui"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newPreviewCmd(app *App) *cobra.Command {
	var (
		project string
		raw     bool
		width   int
	)
	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Show the agent instructions the next commit would send",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if width < 20 {
				return writeErr(cmd, errInvalidArg("width", fmt.Sprint(width), "at least 20"))
			}
			l, err := loadLedger(cmd.Context(), app)
			if err != nil {
				return writeErr(cmd, err)
			}
			if project == "" {
				project = app.Config.Server.ProjectDir
			}
			proj, err := agent.AnalyzeProject(project)
			if err != nil {
				app.logger("preview").Warn("project analysis failed", zap.Error(err))
				proj = agent.FallbackProject
			}

			batches := app.planner().Plan(l.Selected())
			if len(batches) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Nothing to commit.")
				return nil
			}
			var b strings.Builder
			for i, batch := range batches {
				if i > 0 {
					b.WriteString("\n---\n\n")
				}
				fmt.Fprintf(&b, "## Batch %d of %d (%d records)\n\n", batch.Number, batch.Total, len(batch.Records))
				b.WriteString("```text\n")
				b.WriteString(strings.TrimRight(agent.FormatInstruction(batch.Message(), proj), "\n"))
				b.WriteString("\n```\n")
			}
			md := b.String()
			if raw {
				fmt.Fprint(cmd.OutOrStdout(), md)
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), tui.RenderMarkdown(md, width))
			return nil
		},
	}
	cmd.Flags().StringVar(&project, "project", "", "Project directory to describe (default: server.projectDir)")
	cmd.Flags().BoolVar(&raw, "raw", false, "Print markdown without rendering")
	cmd.Flags().IntVar(&width, "width", 100, "Wrap width for rendered output")
	return cmd
}
