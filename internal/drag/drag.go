// Package drag runs the pointer gesture state machine: moving, resizing and
// reordering the selected node, with a rollback path for every exit.
package drag

import (
	"errors"
	"math"

	"visedit-cli/internal/dom"
	"visedit-cli/internal/droptarget"
	"visedit-cli/internal/geom"
	"visedit-cli/internal/history"
	"visedit-cli/internal/layout"
	"visedit-cli/internal/reorder"

	"go.uber.org/zap"
)

var (
	ErrSessionActive = errors.New("a drag session is already active")
	ErrOverlayTarget = errors.New("editor overlays cannot be dragged")
	ErrNotSelected   = errors.New("target is not the selected element")
	ErrNoSession     = errors.New("no drag session is active")
)

type Mode int

const (
	ModeIdle Mode = iota
	ModeMove
	ModeReorder
	ModeResize
)

func (m Mode) String() string {
	switch m {
	case ModeMove:
		return "move"
	case ModeReorder:
		return "reorder"
	case ModeResize:
		return "resize"
	default:
		return "idle"
	}
}

// Handle names a resize handle. The empty handle starts a move.
type Handle string

const (
	HandleNone Handle = ""
	HandleN    Handle = "n"
	HandleS    Handle = "s"
	HandleE    Handle = "e"
	HandleW    Handle = "w"
	HandleNE   Handle = "ne"
	HandleNW   Handle = "nw"
	HandleSE   Handle = "se"
	HandleSW   Handle = "sw"
)

const (
	invalidOutline = "2px dashed #ef4444"
	reorderZIndex  = "10000"
	reorderOpacity = "0.8"
)

func (h Handle) hasN() bool { return h == HandleN || h == HandleNE || h == HandleNW }
func (h Handle) hasS() bool { return h == HandleS || h == HandleSE || h == HandleSW }
func (h Handle) hasE() bool { return h == HandleE || h == HandleNE || h == HandleSE }
func (h Handle) hasW() bool { return h == HandleW || h == HandleNW || h == HandleSW }

// ParseHandle validates a handle name.
func ParseHandle(s string) (Handle, bool) {
	switch h := Handle(s); h {
	case HandleNone, HandleN, HandleS, HandleE, HandleW, HandleNE, HandleNW, HandleSE, HandleSW:
		return h, true
	}
	return HandleNone, false
}

// Pointer is a pointer sample. Modifier is the secondary key (shift).
type Pointer struct {
	X        float64
	Y        float64
	Modifier bool
}

func (p Pointer) Point() geom.Point { return geom.Point{X: p.X, Y: p.Y} }

// Feedback describes the live state of a gesture for the UI.
type Feedback struct {
	Mode         Mode
	Invalid      bool
	Reason       string
	Target       *dom.Node
	InsertBefore bool
	Box          geom.Bounds
}

type OutcomeKind int

const (
	OutcomeNoop OutcomeKind = iota
	OutcomeCommitted
	OutcomeRolledBack
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeCommitted:
		return "committed"
	case OutcomeRolledBack:
		return "rolled-back"
	default:
		return "noop"
	}
}

// Outcome is the result of releasing or cancelling a gesture. Committed
// outcomes carry the change to record against Selector.
type Outcome struct {
	Kind     OutcomeKind
	Reason   string
	Selector string
	Change   history.Change
}

// Session is the state of one gesture from press to release.
type Session struct {
	Mode   Mode
	Node   *dom.Node
	Handle Handle

	start      geom.Point
	startBox   geom.Bounds
	startTrans geom.Point
	origParent *dom.Node
	origNext   *dom.Node
	saved      dom.StyleSnapshot

	layout      layout.Context
	arrangement *layout.Arrangement
	reorder     *reorder.State

	dx, dy  float64
	invalid bool
	reason  string
}

// gestureProps are the inline properties only a live gesture writes.
var gestureProps = []string{
	dom.PropPosition,
	dom.PropLeft,
	dom.PropTop,
	dom.PropZIndex,
	dom.PropOpacity,
	dom.PropPointerEvents,
	dom.PropOutline,
	dom.PropTransition,
}

// restPoint is where the last gesture's node settled after release.
type restPoint struct {
	node   *dom.Node
	parent *dom.Node
	next   *dom.Node
	styles dom.StyleSnapshot
}

// Engine owns the current selection and at most one gesture.
type Engine struct {
	doc      *dom.Document
	log      *zap.Logger
	selected *dom.Node
	session  *Session
	rest     *restPoint
}

func NewEngine(doc *dom.Document, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{doc: doc, log: log}
}

func (e *Engine) Selected() *dom.Node { return e.selected }
func (e *Engine) Active() bool        { return e.session != nil }
func (e *Engine) Session() *Session   { return e.session }

// Select changes the selection. A nil node clears it.
func (e *Engine) Select(n *dom.Node) error {
	if e.session != nil {
		return ErrSessionActive
	}
	if n != nil && n.IsOverlay() {
		return ErrOverlayTarget
	}
	e.selected = n
	return nil
}

// PointerDown starts a gesture on the selected node. A non-empty handle
// starts a resize, otherwise a move.
func (e *Engine) PointerDown(target *dom.Node, p Pointer, h Handle) error {
	if e.session != nil {
		return ErrSessionActive
	}
	if target == nil || target.IsOverlay() {
		return ErrOverlayTarget
	}
	if target != e.selected {
		return ErrNotSelected
	}
	tx, ty := target.Translation()
	s := &Session{
		Mode:       ModeMove,
		Node:       target,
		Handle:     h,
		start:      p.Point(),
		startBox:   target.Box(),
		startTrans: geom.Point{X: tx, Y: ty},
		origParent: target.Parent(),
		origNext:   target.NextSibling(),
		saved:      target.SnapshotStyles(dom.MutableProps...),
	}
	if h != HandleNone {
		s.Mode = ModeResize
	} else {
		s.layout = layout.Classify(target.Parent())
		s.arrangement = layout.Arrange(target)
	}
	e.session = s
	e.log.Debug("drag start", zap.Stringer("mode", s.Mode), zap.String("handle", string(h)), zap.String("selector", dom.Selector(target)))
	return nil
}

// PointerMove advances the gesture. Without a session it is a no-op.
func (e *Engine) PointerMove(p Pointer) Feedback {
	s := e.session
	if s == nil {
		return Feedback{Mode: ModeIdle}
	}
	dx, dy := p.X-s.start.X, p.Y-s.start.Y
	switch s.Mode {
	case ModeResize:
		e.resize(s, dx, dy, p.Modifier)
	case ModeMove:
		if layout.ShouldReorder(s.layout, s.arrangement, dx, dy, p.Modifier) && e.enterReorder(s) {
			e.reorderMove(s, dx, dy)
		} else {
			e.freeMove(s, p, dx, dy)
		}
	case ModeReorder:
		e.reorderMove(s, dx, dy)
	}
	fb := Feedback{Mode: s.Mode, Invalid: s.invalid, Reason: s.reason, Box: s.Node.Box()}
	if s.reorder != nil {
		fb.Target = s.reorder.Target
		fb.InsertBefore = s.reorder.InsertBefore
	}
	return fb
}

func (e *Engine) enterReorder(s *Session) bool {
	st := reorder.Start(s.Node, s.layout, s.arrangement)
	if st == nil {
		return false
	}
	s.Mode = ModeReorder
	s.reorder = st
	s.invalid = false
	s.reason = ""
	n := s.Node
	n.ClearStyle(dom.PropTransform)
	n.ClearStyle(dom.PropOutline)
	n.SetStyle(dom.PropPosition, "fixed")
	n.SetStyle(dom.PropZIndex, reorderZIndex)
	n.SetStyle(dom.PropOpacity, reorderOpacity)
	n.SetStyle(dom.PropPointerEvents, "none")
	n.SetStyle(dom.PropWidth, dom.FormatPx(s.startBox.Width))
	n.SetStyle(dom.PropHeight, dom.FormatPx(s.startBox.Height))
	e.log.Debug("drag entered reorder", zap.Stringer("axis", st.Axis), zap.Int("index", st.OriginalIndex))
	return true
}

func (e *Engine) reorderMove(s *Session, dx, dy float64) {
	box := s.startBox.Translate(dx, dy)
	s.Node.SetStyle(dom.PropLeft, dom.FormatPx(box.X))
	s.Node.SetStyle(dom.PropTop, dom.FormatPx(box.Y))
	s.dx, s.dy = dx, dy
	s.reorder.Update(box.Center())
	s.reorder.ApplyOffsets()
}

func (e *Engine) freeMove(s *Session, p Pointer, dx, dy float64) {
	if parent := s.Node.Parent(); parent != nil {
		cb := layout.ContentBox(parent)
		dx = clampRange(dx, cb.Left()-s.startBox.Left(), cb.Right()-s.startBox.Right())
		dy = clampRange(dy, cb.Top()-s.startBox.Top(), cb.Bottom()-s.startBox.Bottom())
	}
	s.dx, s.dy = dx, dy
	s.Node.SetStyle(dom.PropTransform, dom.FormatTranslate(s.startTrans.X+dx, s.startTrans.Y+dy))

	res := droptarget.Find(e.doc, p.Point(), s.Node)
	if res.Valid() {
		s.invalid, s.reason = false, ""
		s.Node.RestoreStyles(dom.StyleSnapshot{dom.PropOutline: s.saved[dom.PropOutline]})
		return
	}
	s.invalid, s.reason = true, res.Reason
	s.Node.SetStyle(dom.PropOutline, invalidOutline)
}

// clampRange clamps v to [lo, hi]. When the box is larger than its container
// the bounds cross and the range is taken the other way round.
func clampRange(v, lo, hi float64) float64 {
	if lo > hi {
		lo, hi = hi, lo
	}
	return math.Max(lo, math.Min(v, hi))
}

func (e *Engine) resize(s *Session, dx, dy float64, modifier bool) {
	sw, sh := s.startBox.Width, s.startBox.Height
	w, h := sw, sh
	switch {
	case s.Handle.hasE():
		w = sw + dx
	case s.Handle.hasW():
		w = sw - dx
	}
	switch {
	case s.Handle.hasS():
		h = sh + dy
	case s.Handle.hasN():
		h = sh - dy
	}

	locked := (s.Node.IsImage() || modifier) && sw > 0 && sh > 0
	if locked {
		ratio := sw / sh
		if math.Abs(w-sw) >= math.Abs(h-sh) {
			h = w / ratio
		} else {
			w = h * ratio
		}
	}

	minSize := layout.MinimumSize(s.Node)
	maxSize := geom.Size{Width: math.Inf(1), Height: math.Inf(1)}
	if parent := s.Node.Parent(); parent != nil {
		cb := layout.ContentBox(parent)
		maxSize = geom.Size{Width: cb.Width, Height: cb.Height}
	}
	w, h = clampSize(w, h, minSize, maxSize, locked)

	tx, ty := s.startTrans.X, s.startTrans.Y
	if s.Handle.hasW() {
		tx += sw - w
	}
	if s.Handle.hasN() {
		ty += sh - h
	}
	s.dx, s.dy = w-sw, h-sh
	s.Node.SetStyle(dom.PropWidth, dom.FormatPx(w))
	s.Node.SetStyle(dom.PropHeight, dom.FormatPx(h))
	if tx != s.startTrans.X || ty != s.startTrans.Y {
		s.Node.SetStyle(dom.PropTransform, dom.FormatTranslate(tx, ty))
	} else {
		s.Node.RestoreStyles(dom.StyleSnapshot{dom.PropTransform: s.saved[dom.PropTransform]})
	}
}

// clampSize keeps a size within [min, max]. The max bound is applied last so
// the container wins when the two conflict. Locked sizes scale uniformly.
func clampSize(w, h float64, min, max geom.Size, locked bool) (float64, float64) {
	if !locked {
		w = math.Min(math.Max(w, min.Width), max.Width)
		h = math.Min(math.Max(h, min.Height), max.Height)
		return w, h
	}
	if w <= 0 || h <= 0 {
		return math.Min(min.Width, max.Width), math.Min(min.Height, max.Height)
	}
	scale := 1.0
	if up := math.Max(min.Width/w, min.Height/h); up > 1 {
		scale = up
	}
	if down := math.Min(max.Width/(w*scale), max.Height/(h*scale)); down < 1 {
		scale *= down
	}
	return w * scale, h * scale
}

// PointerUp ends the gesture and reports what should be recorded. The engine
// is idle afterwards regardless of the outcome.
func (e *Engine) PointerUp(p Pointer) (Outcome, error) {
	s := e.session
	if s == nil {
		return Outcome{}, ErrNoSession
	}
	e.PointerMove(p)
	defer func() {
		e.session = nil
		e.settle(s.Node)
	}()

	switch s.Mode {
	case ModeReorder:
		return e.releaseReorder(s), nil
	case ModeResize:
		return e.releaseTransform(s), nil
	default:
		if s.invalid {
			e.rollback(s)
			e.log.Info("drop rejected", zap.String("reason", s.reason))
			return Outcome{Kind: OutcomeRolledBack, Reason: s.reason}, nil
		}
		return e.releaseTransform(s), nil
	}
}

func (e *Engine) releaseReorder(s *Session) Outcome {
	st := s.reorder
	parent := s.Node.Parent()
	selector := dom.Selector(s.Node)
	parentSel := dom.Selector(parent)
	var targetSel string
	if st.Target != nil {
		targetSel = dom.Selector(st.Target)
	}

	s.Node.RestoreStyles(s.saved)
	mv, ok := st.Commit()
	if !ok {
		e.rollback(s)
		if st.Target == nil {
			return Outcome{Kind: OutcomeRolledBack, Reason: "no reorder target"}
		}
		return Outcome{Kind: OutcomeNoop}
	}
	pos := "after"
	if mv.InsertBefore {
		pos = "before"
	}
	return Outcome{
		Kind:     OutcomeCommitted,
		Selector: selector,
		Change: history.ReorderChange{
			ParentSelector: parentSel,
			TargetSelector: targetSel,
			Position:       pos,
			FromIndex:      mv.FromIndex,
			ToIndex:        mv.ToIndex,
		},
	}
}

func (e *Engine) releaseTransform(s *Session) Outcome {
	n := s.Node
	for _, p := range []string{dom.PropOutline, dom.PropZIndex, dom.PropOpacity, dom.PropPointerEvents, dom.PropTransition} {
		n.RestoreStyles(dom.StyleSnapshot{p: s.saved[p]})
	}
	before := stylesFrom(s.saved)
	after := history.Styles{}
	for _, p := range history.TransformProps {
		if v, ok := n.Style(p); ok {
			after[p] = v
		}
	}
	if s.dx == 0 && s.dy == 0 || equalStyles(before, after) {
		n.RestoreStyles(s.saved)
		return Outcome{Kind: OutcomeNoop}
	}
	return Outcome{
		Kind:     OutcomeCommitted,
		Selector: dom.Selector(n),
		Change:   history.TransformChange{Before: before, After: after},
	}
}

func stylesFrom(snap dom.StyleSnapshot) history.Styles {
	out := history.Styles{}
	for _, p := range history.TransformProps {
		if v := snap[p]; v.Set {
			out[p] = v.Value
		}
	}
	return out
}

func equalStyles(a, b history.Styles) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}

// Cancel aborts any gesture and restores the document to its pre-gesture
// state. When idle it still resets the last released node to where it
// settled, clearing gesture styles left behind and moving it back if it was
// displaced.
func (e *Engine) Cancel() Outcome {
	s := e.session
	e.session = nil
	if s == nil {
		if e.restoreRest() {
			e.log.Info("stale gesture state reset")
			return Outcome{Kind: OutcomeRolledBack, Reason: "cancelled"}
		}
		return Outcome{Kind: OutcomeNoop}
	}
	e.rollback(s)
	e.settle(s.Node)
	e.log.Debug("drag cancelled", zap.Stringer("mode", s.Mode))
	return Outcome{Kind: OutcomeRolledBack, Reason: "cancelled"}
}

// settle records n's current place and gesture styles as its rest point.
func (e *Engine) settle(n *dom.Node) {
	e.rest = &restPoint{
		node:   n,
		parent: n.Parent(),
		next:   n.NextSibling(),
		styles: n.SnapshotStyles(gestureProps...),
	}
}

// restoreRest puts the last released node back at its rest point and reports
// whether anything had drifted.
func (e *Engine) restoreRest() bool {
	r := e.rest
	if r == nil {
		return false
	}
	n := r.node
	changed := false
	for p, v := range r.styles {
		if cur, ok := n.Style(p); ok != v.Set || cur != v.Value {
			changed = true
		}
	}
	n.RestoreStyles(r.styles)
	if r.parent != nil && (n.Parent() != r.parent || n.NextSibling() != r.next) {
		r.parent.InsertBefore(n, r.next)
		changed = true
	}
	return changed
}

func (e *Engine) rollback(s *Session) {
	if s.reorder != nil {
		s.reorder.RestoreSiblings()
	}
	s.Node.RestoreStyles(s.saved)
	if s.origParent != nil && (s.Node.Parent() != s.origParent || s.Node.NextSibling() != s.origNext) {
		s.origParent.InsertBefore(s.Node, s.origNext)
	}
}
