package tui

import (
	"fmt"
	"io"
	"strings"

	"visedit-cli/internal/history"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	xansi "github.com/charmbracelet/x/ansi"
)

const historyPanelWidth = 44

type recordItem struct {
	rec history.Record
}

func (i recordItem) FilterValue() string { return i.rec.Selector }
func (i recordItem) Title() string {
	return fmt.Sprintf("%s %d %s", glyphIncluded(i.rec.Included), i.rec.ID, history.Describe(i.rec.Change))
}

// compactItemDelegate renders one record per line. Excluded records are
// dimmed.
type compactItemDelegate struct {
	normal   lipgloss.Style
	excluded lipgloss.Style
	selected lipgloss.Style
}

func newCompactItemDelegate() compactItemDelegate {
	return compactItemDelegate{
		normal:   lipgloss.NewStyle(),
		excluded: lipgloss.NewStyle().Foreground(colorExcludedFg),
		selected: lipgloss.NewStyle().
			Foreground(colorSelectedFg).
			Background(colorSelectedBg).
			Bold(true),
	}
}

func (d compactItemDelegate) Height() int                             { return 1 }
func (d compactItemDelegate) Spacing() int                            { return 0 }
func (d compactItemDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd { return nil }

func (d compactItemDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	contentW := m.Width()
	if contentW < 4 {
		return
	}
	it, ok := item.(recordItem)
	if !ok {
		return
	}
	style := d.normal
	switch {
	case index == m.Index():
		style = d.selected
	case !it.rec.Included:
		style = d.excluded
	}

	line := it.Title()
	lineW := xansi.StringWidth(line)
	if lineW < contentW {
		line += strings.Repeat(" ", contentW-lineW)
	} else if lineW > contentW {
		line = xansi.Cut(line, 0, contentW)
	}
	fmt.Fprint(w, style.Render(line))
}

func newHistoryList() list.Model {
	l := list.New(nil, newCompactItemDelegate(), historyPanelWidth, 10)
	l.SetShowTitle(false)
	l.SetShowStatusBar(false)
	l.SetShowPagination(false)
	l.SetShowHelp(false)
	l.SetShowFilter(false)
	l.SetFilteringEnabled(false)
	l.DisableQuitKeybindings()
	return l
}

// setRecords replaces the list items and keeps the cursor on the same record
// id when it is still present.
func setRecords(l *list.Model, records []history.Record) {
	var keep int64 = -1
	if it, ok := l.SelectedItem().(recordItem); ok {
		keep = it.rec.ID
	}
	items := make([]list.Item, 0, len(records))
	idx := len(records) - 1
	for i, r := range records {
		items = append(items, recordItem{rec: r})
		if r.ID == keep {
			idx = i
		}
	}
	l.SetItems(items)
	if idx >= 0 {
		l.Select(idx)
	}
}

func renderHistoryPanel(l list.Model, width, height int) string {
	title := lipgloss.NewStyle().Bold(true).Render("History")
	body := l.View()
	if len(l.Items()) == 0 {
		body = styleMuted().Render("No changes yet.")
	}
	return normalizePane(title+"\n"+body, width, height)
}
