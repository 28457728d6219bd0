// Package reorder tracks a drag that is moving a node between its siblings.
//
// Sibling boxes are captured once when the reorder starts; hit testing during
// the gesture always uses those captured boxes, never the live ones that move
// as the slot opens.
package reorder

import (
	"math"

	"visedit-cli/internal/dom"
	"visedit-cli/internal/geom"
	"visedit-cli/internal/layout"
)

// TieThreshold is the main-axis distance under which the cross axis decides
// between inserting before and after.
const TieThreshold = 5.0

type State struct {
	Node          *dom.Node
	Layout        layout.Context
	Arrangement   *layout.Arrangement
	Axis          layout.Axis
	OriginalIndex int
	NewIndex      int
	Target        *dom.Node
	InsertBefore  bool

	startBox geom.Bounds
	saved    map[*dom.Node]dom.StyleSnapshot
}

// Start begins a reorder of n. It returns nil when n has no arrangement.
func Start(n *dom.Node, ctx layout.Context, arr *layout.Arrangement) *State {
	if arr == nil {
		return nil
	}
	idx := arr.IndexOf(n)
	if idx < 0 {
		return nil
	}
	axis := layout.DominantAxis(ctx, arr)
	if axis == layout.AxisNone {
		axis = layout.AxisVertical
	}
	s := &State{
		Node:          n,
		Layout:        ctx,
		Arrangement:   arr,
		Axis:          axis,
		OriginalIndex: idx,
		NewIndex:      idx,
		startBox:      arr.Rects[idx],
		saved:         map[*dom.Node]dom.StyleSnapshot{},
	}
	for _, sib := range arr.Siblings {
		if sib == n {
			continue
		}
		s.saved[sib] = sib.SnapshotStyles(dom.PropTransform, dom.PropTransition)
	}
	return s
}

// Update recomputes the insertion point for a dragged box centred at center.
func (s *State) Update(center geom.Point) {
	s.Target = nil
	s.InsertBefore = false
	s.NewIndex = s.OriginalIndex

	t := -1
	for i, r := range s.Arrangement.Rects {
		if s.Arrangement.Siblings[i] == s.Node {
			continue
		}
		if r.Contains(center) {
			t = i
			break
		}
	}
	if t < 0 {
		return
	}
	tc := s.Arrangement.Rects[t].Center()
	s.Target = s.Arrangement.Siblings[t]
	s.InsertBefore = before(s.Axis, center, tc)

	pos := t
	if !s.InsertBefore {
		pos = t + 1
	}
	if pos > s.OriginalIndex {
		pos--
	}
	s.NewIndex = pos
}

// before decides the side of the target centre the drag sits on. Within
// TieThreshold on the main axis the cross axis decides; an exact tie on both
// axes inserts after.
func before(axis layout.Axis, p, tc geom.Point) bool {
	main, cross := p.Y-tc.Y, p.X-tc.X
	if axis == layout.AxisHorizontal {
		main, cross = cross, main
	}
	if math.Abs(main) > TieThreshold {
		return main < 0
	}
	return cross < 0
}

// IsNoop reports whether releasing now would leave the order unchanged.
func (s *State) IsNoop() bool {
	return s.Target == nil || s.NewIndex == s.OriginalIndex
}

// Offsets returns the visual shift each sibling needs to open a slot at
// NewIndex. Siblings outside the range between the original and new index
// stay put.
func (s *State) Offsets() map[*dom.Node]geom.Point {
	out := make(map[*dom.Node]geom.Point, len(s.Arrangement.Siblings))
	size := s.startBox.Height
	if s.Axis == layout.AxisHorizontal {
		size = s.startBox.Width
	}
	shift := size + s.Layout.Gap
	for i, sib := range s.Arrangement.Siblings {
		if sib == s.Node {
			continue
		}
		var d float64
		switch {
		case s.Target == nil:
		case s.NewIndex > s.OriginalIndex && i > s.OriginalIndex && i <= s.NewIndex:
			d = -shift
		case s.NewIndex < s.OriginalIndex && i >= s.NewIndex && i < s.OriginalIndex:
			d = shift
		}
		if s.Axis == layout.AxisHorizontal {
			out[sib] = geom.Point{X: d}
		} else {
			out[sib] = geom.Point{Y: d}
		}
	}
	return out
}

// ApplyOffsets writes the slot-opening shift onto each sibling as an inline
// translation layered over whatever translation it had when the reorder began.
func (s *State) ApplyOffsets() {
	for sib, off := range s.Offsets() {
		snap := s.saved[sib]
		base := snap[dom.PropTransform]
		var bx, by float64
		if base.Set {
			bx, by, _ = dom.ParseTranslate(base.Value)
		}
		if off.X == 0 && off.Y == 0 {
			sib.RestoreStyles(dom.StyleSnapshot{dom.PropTransform: base})
			continue
		}
		sib.SetStyle(dom.PropTransition, "transform 150ms ease")
		sib.SetStyle(dom.PropTransform, dom.FormatTranslate(bx+off.X, by+off.Y))
	}
}

// RestoreSiblings puts every sibling's styles back to their pre-reorder state.
func (s *State) RestoreSiblings() {
	for sib, snap := range s.saved {
		sib.RestoreStyles(snap)
	}
}

// Move is the structural change produced by a committed reorder.
type Move struct {
	Parent       *dom.Node
	Target       *dom.Node
	InsertBefore bool
	FromIndex    int
	ToIndex      int
}

// Commit performs the structural move and reflows the parent. It returns
// false without touching the document when the reorder is a no-op.
func (s *State) Commit() (Move, bool) {
	s.RestoreSiblings()
	if s.IsNoop() {
		return Move{}, false
	}
	parent := s.Node.Parent()
	from := s.Node.Index()
	if s.InsertBefore {
		parent.InsertBefore(s.Node, s.Target)
	} else {
		parent.InsertAfter(s.Node, s.Target)
	}
	layout.Reflow(parent)
	return Move{
		Parent:       parent,
		Target:       s.Target,
		InsertBefore: s.InsertBefore,
		FromIndex:    from,
		ToIndex:      s.Node.Index(),
	}, true
}
