// Package tui is the terminal front end of the editor: a mouse-driven canvas
// of the page's element boxes with a history panel.
package tui

import (
	"context"

	"visedit-cli/internal/dom"
	"visedit-cli/internal/editor"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"
)

type Options struct {
	Session *editor.Session
	Title   string
	Log     *zap.Logger
	// Reload recaptures the page. Nil disables the reload key.
	Reload func(ctx context.Context) (*dom.Document, error)
}

func Run(ctx context.Context, opts Options) error {
	applyColorProfilePreference()
	applyThemePreference()
	applyGlyphPreference()

	if opts.Title == "" {
		opts.Title = "visedit"
	}
	m := newModel(ctx, opts)
	_, err := tea.NewProgram(m,
		tea.WithAltScreen(),
		tea.WithMouseAllMotion(),
		tea.WithContext(ctx),
	).Run()
	opts.Session.Disable()
	return err
}
