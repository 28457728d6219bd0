package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"visedit-cli/internal/commit"
	"visedit-cli/internal/dom"
	"visedit-cli/internal/drag"
	"visedit-cli/internal/editor"
	"visedit-cli/internal/geom"
	"visedit-cli/internal/history"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"
)

type inputMode int

const (
	modeCanvas inputMode = iota
	modeArea
	modeInstruction
	modeText
)

type (
	commitDoneMsg struct {
		res commit.Result
		err error
	}
	instructionDoneMsg struct {
		rec history.Record
		err error
	}
	reloadDoneMsg struct {
		doc *dom.Document
		err error
	}
)

type model struct {
	ctx    context.Context
	s      *editor.Session
	title  string
	log    *zap.Logger
	reload func(context.Context) (*dom.Document, error)

	width, height int
	canvas        canvas

	keys keyMap
	help help.Model

	mode      inputMode
	input     textinput.Model
	areaStart *geom.Point
	area      *geom.Bounds
	textNode  *dom.Node

	history     list.Model
	showHistory bool

	feedback  drag.Feedback
	status    string
	statusErr bool
}

func newModel(ctx context.Context, opts Options) model {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	in := textinput.New()
	in.Prompt = ""
	in.CharLimit = 500

	m := model{
		ctx:     ctx,
		s:       opts.Session,
		title:   opts.Title,
		log:     log,
		reload:  opts.Reload,
		keys:    newKeyMap(),
		help:    help.New(),
		input:   in,
		history: newHistoryList(),
	}
	m.s.Enable()
	m.refreshHistory()
	m.resize(80, 24)
	return m
}

func (m model) Init() tea.Cmd { return nil }

func (m *model) resize(w, h int) {
	m.width, m.height = max(w, 20), max(h, 6)
	m.canvas = newCanvas(m.canvasWidth(), m.canvasHeight(), m.s.Document().Viewport)
	m.history.SetSize(historyPanelWidth, m.canvasHeight()-1)
}

// Header, footer and help each take one line.
func (m model) canvasHeight() int { return m.height - 3 }

func (m model) canvasWidth() int {
	if m.showHistory && m.width > historyPanelWidth+20 {
		return m.width - historyPanelWidth - 1
	}
	return m.width
}

func (m *model) refreshHistory() {
	setRecords(&m.history, m.s.Ledger().Records())
}

func (m *model) setStatus(format string, args ...any) {
	m.status, m.statusErr = fmt.Sprintf(format, args...), false
}

func (m *model) setError(err error) {
	m.status, m.statusErr = err.Error(), true
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil
	case tea.MouseMsg:
		return m.updateMouse(msg)
	case tea.KeyMsg:
		return m.updateKey(msg)
	case commitDoneMsg:
		m.refreshHistory()
		switch {
		case errors.Is(msg.err, editor.ErrNothingToCommit):
			m.setStatus("nothing to commit")
		case msg.err != nil:
			m.setError(msg.err)
			m.showHistory = true
			m.resize(m.width, m.height)
		default:
			m.setStatus("committed %d records in %d batches", len(msg.res.CommittedIDs()), len(msg.res.Batches))
		}
		return m, nil
	case instructionDoneMsg:
		if msg.err != nil {
			m.setError(msg.err)
			return m, nil
		}
		m.refreshHistory()
		m.setStatus("instruction recorded for %s", msg.rec.Selector)
		return m, nil
	case reloadDoneMsg:
		if msg.err != nil {
			m.setError(msg.err)
			return m, nil
		}
		m.s.Reset(msg.doc)
		m.feedback = drag.Feedback{}
		m.resize(m.width, m.height)
		m.setStatus("page reloaded")
		return m, nil
	}
	return m, nil
}

// cell converts a mouse position to canvas coordinates. The canvas starts
// below the header line.
func (m model) cell(msg tea.MouseMsg) (col, row int, ok bool) {
	col, row = msg.X, msg.Y-1
	return col, row, col >= 0 && row >= 0 && col < m.canvas.cols && row < m.canvas.rows
}

func (m model) updateMouse(msg tea.MouseMsg) (tea.Model, tea.Cmd) {
	col, row, inside := m.cell(msg)
	p := m.canvas.toPx(col, row)
	ptr := drag.Pointer{X: p.X, Y: p.Y, Modifier: msg.Shift}

	switch msg.Action {
	case tea.MouseActionMotion:
		switch {
		case m.mode == modeArea && m.areaStart != nil:
			b := geom.BoundsFromPoints(*m.areaStart, p)
			m.area = &b
		case m.s.Dragging():
			m.feedback = m.s.PointerMove(ptr)
			if m.feedback.Invalid {
				m.setError(errors.New(m.feedback.Reason))
			} else {
				m.status = ""
			}
		case inside && m.mode == modeCanvas:
			m.s.Hover(p, time.Now())
		}
		return m, nil

	case tea.MouseActionPress:
		if msg.Button != tea.MouseButtonLeft || !inside {
			return m, nil
		}
		switch m.mode {
		case modeArea:
			m.areaStart = &p
			b := geom.Bounds{X: p.X, Y: p.Y}
			m.area = &b
			return m, nil
		case modeCanvas:
		default:
			return m, nil
		}
		if sel := m.s.Selected(); sel != nil {
			h := m.canvas.handleAt(sel.Box(), col, row)
			if err := m.s.PointerDown(ptr, h); err == nil {
				m.feedback = drag.Feedback{Box: sel.Box()}
				return m, nil
			}
		}
		n, err := m.s.Click(p)
		if err != nil {
			m.setError(err)
			return m, nil
		}
		if n != nil {
			m.setStatus("selected %s", dom.Selector(n))
		} else {
			m.status = ""
		}
		return m, nil

	case tea.MouseActionRelease:
		if m.mode == modeArea && m.areaStart != nil {
			return m.finishArea()
		}
		if !m.s.Dragging() {
			return m, nil
		}
		out, err := m.s.PointerUp(ptr)
		m.feedback = drag.Feedback{}
		if err != nil {
			m.setError(err)
			return m, nil
		}
		switch out.Kind {
		case drag.OutcomeCommitted:
			m.refreshHistory()
			m.setStatus("%s", history.Describe(out.Change))
		case drag.OutcomeRolledBack:
			m.setError(errors.New(out.Reason))
		default:
			m.status = ""
		}
		return m, nil
	}
	return m, nil
}

func (m model) finishArea() (tea.Model, tea.Cmd) {
	area := *m.area
	m.areaStart = nil
	if area.Width < editor.MinAreaSize || area.Height < editor.MinAreaSize {
		m.area = nil
		m.setError(editor.ErrAreaTooSmall)
		return m, nil
	}
	n := len(m.s.ElementsIn(area))
	m.mode = modeInstruction
	m.input.SetValue("")
	m.input.Placeholder = "What should change here?"
	m.setStatus("%d elements in area", n)
	return m, m.input.Focus()
}

func (m model) updateKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.mode == modeText || m.mode == modeInstruction {
		return m.updateInput(msg)
	}
	k := m.keys
	switch {
	case key.Matches(msg, k.Quit):
		m.s.Disable()
		return m, tea.Quit
	case key.Matches(msg, k.Cancel):
		if m.mode == modeArea {
			m.mode, m.area, m.areaStart = modeCanvas, nil, nil
			m.status = ""
			return m, nil
		}
		out := m.s.Escape()
		m.feedback = drag.Feedback{}
		if out.Kind == drag.OutcomeRolledBack {
			m.setStatus("gesture cancelled")
		} else {
			m.status = ""
		}
		return m, nil
	case key.Matches(msg, k.Undo):
		r, err := m.s.Undo()
		return m.afterLedger("undid", r, err)
	case key.Matches(msg, k.Redo):
		r, err := m.s.Redo()
		return m.afterLedger("redid", r, err)
	case key.Matches(msg, k.Discard):
		r, ok := m.focusedRecord()
		if !ok {
			return m, nil
		}
		return m.afterLedger("discarded", r, m.s.Discard(r.ID))
	case key.Matches(msg, k.Toggle):
		r, ok := m.focusedRecord()
		if !ok {
			return m, nil
		}
		inc, err := m.s.Toggle(r.ID)
		verb := "excluded"
		if inc {
			verb = "included"
		}
		return m.afterLedger(verb, r, err)
	case key.Matches(msg, k.EditText):
		n := m.s.Selected()
		if !editor.Editable(n) {
			m.setError(editor.ErrNotEditable)
			return m, nil
		}
		m.mode, m.textNode = modeText, n
		m.input.SetValue(n.Text)
		m.input.Placeholder = ""
		m.input.CursorEnd()
		return m, m.input.Focus()
	case key.Matches(msg, k.Instruction):
		m.s.Escape()
		m.mode, m.area, m.areaStart = modeArea, nil, nil
		m.setStatus("drag to select an area")
		return m, nil
	case key.Matches(msg, k.Commit):
		if m.s.Committing() {
			m.setError(editor.ErrCommitInProgress)
			return m, nil
		}
		n := len(m.s.Ledger().Selected())
		m.setStatus("committing %d records...", n)
		s, ctx := m.s, m.ctx
		return m, func() tea.Msg {
			res, err := s.Commit(ctx)
			return commitDoneMsg{res: res, err: err}
		}
	case key.Matches(msg, k.History):
		m.showHistory = !m.showHistory
		m.resize(m.width, m.height)
		return m, nil
	case key.Matches(msg, k.Reload):
		if m.reload == nil {
			m.setError(errors.New("reload needs a live page"))
			return m, nil
		}
		m.setStatus("reloading...")
		reload, ctx := m.reload, m.ctx
		return m, func() tea.Msg {
			doc, err := reload(ctx)
			return reloadDoneMsg{doc: doc, err: err}
		}
	}
	if m.showHistory {
		var cmd tea.Cmd
		m.history, cmd = m.history.Update(msg)
		return m, cmd
	}
	return m, nil
}

// focusedRecord is the record under the history cursor, or the newest
// record when the panel is hidden.
func (m model) focusedRecord() (history.Record, bool) {
	if m.showHistory {
		if it, ok := m.history.SelectedItem().(recordItem); ok {
			return it.rec, true
		}
		return history.Record{}, false
	}
	recs := m.s.Ledger().Records()
	if len(recs) == 0 {
		return history.Record{}, false
	}
	return recs[len(recs)-1], true
}

func (m model) afterLedger(verb string, r history.Record, err error) (tea.Model, tea.Cmd) {
	m.feedback = drag.Feedback{}
	if err != nil {
		m.setError(err)
		return m, nil
	}
	m.refreshHistory()
	m.setStatus("%s %d: %s", verb, r.ID, history.Describe(r.Change))
	return m, nil
}

func (m model) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.input.Blur()
		m.mode, m.area, m.textNode = modeCanvas, nil, nil
		m.status = ""
		return m, nil
	case "enter":
		value := m.input.Value()
		m.input.Blur()
		mode := m.mode
		m.mode = modeCanvas
		if mode == modeText {
			n := m.textNode
			m.textNode = nil
			r, err := m.s.EditText(n, value)
			if errors.Is(err, editor.ErrUnchanged) {
				m.status = ""
				return m, nil
			}
			return m.afterLedger("edited", r, err)
		}
		area := *m.area
		m.area = nil
		s, ctx := m.s, m.ctx
		m.setStatus("capturing area...")
		return m, func() tea.Msg {
			rec, err := s.AddInstruction(ctx, area, value)
			return instructionDoneMsg{rec: rec, err: err}
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m model) View() string {
	header := lipgloss.NewStyle().Bold(true).Render(m.title)
	counts := fmt.Sprintf("  %d changes, %d selected", m.s.Ledger().Len(), len(m.s.Ledger().Selected()))
	if m.s.Committing() {
		counts += "  committing"
	}
	header = normalizePane(header+styleMuted().Render(counts), m.width, 1)

	var target *dom.Node
	if !m.feedback.Invalid {
		target = m.feedback.Target
	}
	body := m.canvas.render(m.s.Document(), scene{
		hovered:  m.s.Hovered(),
		selected: m.s.Selected(),
		target:   target,
		invalid:  m.feedback.Invalid,
		area:     m.area,
	})
	body = normalizePane(body, m.canvas.cols, m.canvas.rows)
	if m.showHistory && m.canvas.cols < m.width {
		panel := renderHistoryPanel(m.history, historyPanelWidth, m.canvas.rows)
		body = lipgloss.JoinHorizontal(lipgloss.Top, body, " ", panel)
	}

	return strings.Join([]string{header, body, m.footer(), m.help.View(m.keys)}, "\n")
}

func (m model) footer() string {
	switch m.mode {
	case modeText, modeInstruction:
		label := "text: "
		if m.mode == modeInstruction {
			label = "instruction: "
		}
		return label + renderInputLine(m.width-len(label), m.input.View())
	}
	st := styleMuted()
	if m.statusErr {
		st = lipgloss.NewStyle().Foreground(colorErrorFg)
	} else if m.status != "" {
		st = lipgloss.NewStyle().Foreground(colorOKFg)
	}
	line := m.status
	if g := m.s.Gesture(); g != nil && !m.feedback.Invalid {
		line = fmt.Sprintf("%s %s", g.Mode, dom.Selector(g.Node))
		if t := m.feedback.Target; t != nil {
			line += " " + glyphArrow() + " " + dom.Selector(t)
		}
	}
	return normalizePane(st.Render(line), m.width, 1)
}
