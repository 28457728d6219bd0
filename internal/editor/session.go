// Package editor ties the document, the drag engine, the change ledger and
// the commit dispatcher into one editing session driven by pointer and key
// events.
package editor

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"visedit-cli/internal/commit"
	"visedit-cli/internal/dom"
	"visedit-cli/internal/drag"
	"visedit-cli/internal/geom"
	"visedit-cli/internal/history"

	"go.uber.org/zap"
)

const (
	DefaultHoverInterval = 16 * time.Millisecond
	MinAreaSize          = 10

	hoverDepth   = 3
	hoverMinSize = 5
	bodySelector = "body"
)

var (
	ErrDisabled         = errors.New("editor is not enabled")
	ErrNotEditable      = errors.New("element text cannot be edited")
	ErrUnchanged        = errors.New("text is unchanged")
	ErrAreaTooSmall     = fmt.Errorf("area must be at least %dx%d px", MinAreaSize, MinAreaSize)
	ErrEmptyInstruction = errors.New("instruction is empty")
	ErrNothingToCommit  = errors.New("no changes selected for commit")
	ErrCommitInProgress = errors.New("a commit is already in progress")
	ErrCommitFailed     = errors.New("commit failed")
)

var editableTags = []string{
	"P", "H1", "H2", "H3", "H4", "H5", "H6",
	"SPAN", "A", "BUTTON", "LABEL", "LI", "TD", "TH", "DIV",
}

// Screenshotter captures a region of the rendered page as a base64 PNG.
type Screenshotter interface {
	Screenshot(ctx context.Context, area geom.Bounds) (string, error)
}

// Committer delivers records to the agent. *commit.Dispatcher satisfies it.
type Committer interface {
	Dispatch(ctx context.Context, records []history.Record) commit.Result
}

type Options struct {
	Ledger        *history.Ledger
	Committer     Committer
	Screenshotter Screenshotter
	Log           *zap.Logger

	// OnChange is called with the ledger state after every mutation.
	OnChange func(history.State)

	HoverInterval time.Duration
}

// Session is one editing session over a document. Event methods must be
// called from a single goroutine; Commit may run concurrently with them.
type Session struct {
	doc       *dom.Document
	ledger    *history.Ledger
	committer Committer
	shots     Screenshotter
	log       *zap.Logger
	onChange  func(history.State)

	engine     *drag.Engine
	hoverEvery time.Duration
	lastHover  time.Time
	hovered    *dom.Node

	committing atomic.Bool
}

func New(doc *dom.Document, opts Options) *Session {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	l := opts.Ledger
	if l == nil {
		l = history.NewLedger()
	}
	return &Session{
		doc:        doc,
		ledger:     l,
		committer:  opts.Committer,
		shots:      opts.Screenshotter,
		log:        log,
		onChange:   opts.OnChange,
		hoverEvery: opts.HoverInterval,
	}
}

func (s *Session) Document() *dom.Document  { return s.doc }
func (s *Session) Ledger() *history.Ledger  { return s.ledger }
func (s *Session) Enabled() bool            { return s.engine != nil }
func (s *Session) Hovered() *dom.Node       { return s.hovered }
func (s *Session) Committing() bool         { return s.committing.Load() }
func (s *Session) Dragging() bool           { return s.engine != nil && s.engine.Active() }
func (s *Session) applier() history.Applier { return history.DocumentApplier{Doc: s.doc} }

// Gesture returns the live drag session, or nil.
func (s *Session) Gesture() *drag.Session {
	if s.engine == nil {
		return nil
	}
	return s.engine.Session()
}

// Enable starts accepting pointer input. It is a no-op when already enabled.
func (s *Session) Enable() {
	if s.engine != nil {
		return
	}
	if s.hoverEvery <= 0 {
		s.hoverEvery = DefaultHoverInterval
	}
	s.engine = drag.NewEngine(s.doc, s.log.Named("drag"))
	s.log.Debug("editor enabled")
}

// Disable rolls back any live gesture and drops selection and hover state.
func (s *Session) Disable() {
	if s.engine == nil {
		return
	}
	if out := s.engine.Cancel(); out.Kind == drag.OutcomeRolledBack {
		s.log.Debug("gesture rolled back on disable")
	}
	s.engine = nil
	s.hovered = nil
	s.lastHover = time.Time{}
	s.log.Debug("editor disabled")
}

// Reset swaps in a freshly captured document. Any gesture is rolled back
// and selection is dropped; the ledger is kept.
func (s *Session) Reset(doc *dom.Document) {
	enabled := s.engine != nil
	s.Disable()
	s.doc = doc
	if enabled {
		s.Enable()
	}
}

// Selected returns the selected node, or nil.
func (s *Session) Selected() *dom.Node {
	if s.engine == nil {
		return nil
	}
	return s.engine.Selected()
}

// Hover updates the hover highlight for a pointer at p. Samples closer than
// the hover interval to the previous one are dropped. The bool reports
// whether the highlighted node changed.
func (s *Session) Hover(p geom.Point, now time.Time) (*dom.Node, bool) {
	if s.engine == nil {
		return nil, false
	}
	if s.engine.Active() {
		return s.setHover(nil)
	}
	if !s.lastHover.IsZero() && now.Sub(s.lastHover) < s.hoverEvery {
		return s.hovered, false
	}
	s.lastHover = now
	return s.setHover(s.hoverTarget(p))
}

func (s *Session) setHover(n *dom.Node) (*dom.Node, bool) {
	changed := n != s.hovered
	s.hovered = n
	return n, changed
}

// hoverTarget climbs at most three levels from the hit node to the first
// visible box larger than 5px in both dimensions. The document roots are
// never highlighted.
func (s *Session) hoverTarget(p geom.Point) *dom.Node {
	n := s.doc.HitTest(p, nil)
	body := s.doc.Body()
	for depth := 0; n != nil && depth < hoverDepth; depth++ {
		if n == body || n == s.doc.Root || n.IsOverlay() {
			return nil
		}
		if n.Visible() && n.Rect.Width > hoverMinSize && n.Rect.Height > hoverMinSize {
			return n
		}
		n = n.Parent()
	}
	return nil
}

// Click selects the node under p. Clicking empty space clears the selection.
func (s *Session) Click(p geom.Point) (*dom.Node, error) {
	if s.engine == nil {
		return nil, ErrDisabled
	}
	n := s.doc.HitTest(p, nil)
	if n != nil && (n == s.doc.Root || n == s.doc.Body()) {
		n = nil
	}
	if err := s.engine.Select(n); err != nil {
		return nil, err
	}
	if n != nil {
		s.log.Debug("selected", zap.String("selector", dom.Selector(n)))
	}
	return n, nil
}

// Select sets the selection directly.
func (s *Session) Select(n *dom.Node) error {
	if s.engine == nil {
		return ErrDisabled
	}
	return s.engine.Select(n)
}

// PointerDown starts a gesture on the selected node. Without a handle the
// press must land inside the selected node.
func (s *Session) PointerDown(p drag.Pointer, h drag.Handle) error {
	if s.engine == nil {
		return ErrDisabled
	}
	sel := s.engine.Selected()
	if sel == nil {
		return drag.ErrNotSelected
	}
	if h == drag.HandleNone {
		hit := s.doc.HitTest(p.Point(), nil)
		if hit == nil || !sel.Contains(hit) {
			return drag.ErrNotSelected
		}
	}
	s.hovered = nil
	return s.engine.PointerDown(sel, p, h)
}

// PointerMove advances a live gesture. Moves are never throttled.
func (s *Session) PointerMove(p drag.Pointer) drag.Feedback {
	if s.engine == nil || !s.engine.Active() {
		return drag.Feedback{}
	}
	return s.engine.PointerMove(p)
}

// PointerUp ends the gesture and records a committed outcome in the ledger.
func (s *Session) PointerUp(p drag.Pointer) (drag.Outcome, error) {
	if s.engine == nil {
		return drag.Outcome{}, ErrDisabled
	}
	out, err := s.engine.PointerUp(p)
	if err != nil {
		return out, err
	}
	if out.Kind == drag.OutcomeCommitted {
		r := s.ledger.Append(out.Selector, out.Change, "")
		s.log.Info("change recorded",
			zap.Int64("id", r.ID),
			zap.String("kind", string(r.Kind())),
			zap.String("selector", r.Selector))
		s.changed()
	}
	return out, nil
}

// Escape aborts a live gesture and resets any gesture state left on the last
// released node. When idle it also clears the selection.
func (s *Session) Escape() drag.Outcome {
	if s.engine == nil {
		return drag.Outcome{}
	}
	wasActive := s.engine.Active()
	out := s.engine.Cancel()
	if !wasActive {
		_ = s.engine.Select(nil)
	}
	return out
}

// Editable reports whether n carries text the user may rewrite.
func Editable(n *dom.Node) bool {
	if n == nil || n.IsOverlay() || strings.TrimSpace(n.TextContent()) == "" {
		return false
	}
	if _, ok := n.Attrs["contenteditable"]; ok {
		return true
	}
	return slices.Contains(editableTags, n.Tag)
}

// EditText replaces the direct text of n and records the edit.
func (s *Session) EditText(n *dom.Node, text string) (history.Record, error) {
	if s.engine == nil {
		return history.Record{}, ErrDisabled
	}
	if s.engine.Active() {
		return history.Record{}, drag.ErrSessionActive
	}
	if !Editable(n) {
		return history.Record{}, ErrNotEditable
	}
	old := n.Text
	if strings.TrimSpace(old) == strings.TrimSpace(text) {
		return history.Record{}, ErrUnchanged
	}
	sel := dom.Selector(n)
	n.SetText(text)
	r := s.ledger.Append(sel, history.TextChange{OldText: old, NewText: text}, "")
	s.log.Info("text edited", zap.Int64("id", r.ID), zap.String("selector", sel))
	s.changed()
	return r, nil
}

// ElementsIn returns the page elements lying fully inside area, in document
// order. Editor overlays and the document roots are skipped.
func (s *Session) ElementsIn(area geom.Bounds) []*dom.Node {
	var out []*dom.Node
	body := s.doc.Body()
	body.Walk(func(n *dom.Node) bool {
		if n.IsOverlay() {
			return false
		}
		if n == body {
			return true
		}
		r := n.Rect
		if r.Left() >= area.Left() && r.Right() <= area.Right() &&
			r.Top() >= area.Top() && r.Bottom() <= area.Bottom() {
			out = append(out, n)
		}
		return true
	})
	return out
}

// AddInstruction records a free-form instruction for a region of the page.
// A failed screenshot is logged and the record is kept without one.
func (s *Session) AddInstruction(ctx context.Context, area geom.Bounds, instruction string) (history.Record, error) {
	instruction = strings.TrimSpace(instruction)
	if instruction == "" {
		return history.Record{}, ErrEmptyInstruction
	}
	if area.Width < MinAreaSize || area.Height < MinAreaSize {
		return history.Record{}, ErrAreaTooSmall
	}
	nodes := s.ElementsIn(area)
	infos := make([]dom.ElementInfo, 0, len(nodes))
	for _, n := range nodes {
		infos = append(infos, dom.Info(n))
	}

	var shot string
	if s.shots != nil {
		var err error
		shot, err = s.shots.Screenshot(ctx, area)
		if err != nil {
			if ctx.Err() != nil {
				return history.Record{}, ctx.Err()
			}
			s.log.Warn("area screenshot failed", zap.Error(err))
			shot = ""
		}
	}

	sel := bodySelector
	if len(nodes) > 0 {
		sel = dom.Selector(nodes[0])
	}
	r := s.ledger.Append(sel, history.AIChange{
		Instruction:  instruction,
		Area:         area,
		Elements:     infos,
		ElementCount: len(infos),
		Screenshot:   shot,
	}, "")
	s.log.Info("instruction recorded", zap.Int64("id", r.ID), zap.Int("elements", len(infos)))
	s.changed()
	return r, nil
}

// Undo reverts the most recent record. A live gesture is cancelled first.
func (s *Session) Undo() (history.Record, error) {
	s.cancelGesture()
	r, err := s.ledger.Undo(s.applier())
	if err != nil {
		return r, err
	}
	s.changed()
	return r, nil
}

func (s *Session) Redo() (history.Record, error) {
	s.cancelGesture()
	r, err := s.ledger.Redo(s.applier())
	if err != nil {
		return r, err
	}
	s.changed()
	return r, nil
}

// Discard drops a record from the ledger without touching the document.
func (s *Session) Discard(id int64) error {
	if err := s.ledger.Remove(id); err != nil {
		return err
	}
	s.changed()
	return nil
}

func (s *Session) SetIncluded(id int64, included bool) error {
	if err := s.ledger.SetIncluded(id, included); err != nil {
		return err
	}
	s.changed()
	return nil
}

func (s *Session) Toggle(id int64) (bool, error) {
	v, err := s.ledger.Toggle(id)
	if err != nil {
		return v, err
	}
	s.changed()
	return v, nil
}

// Commit sends every included record to the agent. Records are removed from
// the ledger only when every batch completed; on any failure the ledger is
// left as it was and the returned error wraps ErrCommitFailed.
func (s *Session) Commit(ctx context.Context) (commit.Result, error) {
	if s.committer == nil {
		return commit.Result{}, fmt.Errorf("%w: no agent connection", ErrCommitFailed)
	}
	if !s.committing.CompareAndSwap(false, true) {
		return commit.Result{}, ErrCommitInProgress
	}
	defer s.committing.Store(false)

	records := s.ledger.Selected()
	if len(records) == 0 {
		return commit.Result{}, ErrNothingToCommit
	}
	res := s.committer.Dispatch(ctx, records)
	if !res.Done() {
		cause := res.Err
		if cause == nil {
			cause = fmt.Errorf("%d of %d batches completed", res.Completed, len(res.Batches))
		}
		s.log.Warn("commit failed", zap.Int("records", len(records)), zap.Error(cause))
		return res, fmt.Errorf("%w: %w", ErrCommitFailed, cause)
	}
	s.ledger.Clear(res.CommittedIDs())
	s.log.Info("commit complete", zap.Int("records", len(records)), zap.Int("batches", len(res.Batches)))
	s.changed()
	return res, nil
}

func (s *Session) cancelGesture() {
	if s.engine != nil && s.engine.Active() {
		s.engine.Cancel()
	}
}

func (s *Session) changed() {
	if s.onChange != nil {
		s.onChange(s.ledger.Snapshot())
	}
}
