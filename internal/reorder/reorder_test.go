package reorder

import (
	"testing"

	"visedit-cli/internal/dom"
	"visedit-cli/internal/geom"
	"visedit-cli/internal/layout"
)

func stack(t *testing.T) (*dom.Node, []*dom.Node) {
	t.Helper()
	parent := dom.NewNode("div")
	parent.Computed.Display = "block"
	parent.Rect = geom.Bounds{Width: 400, Height: 400}
	var kids []*dom.Node
	for i, id := range []string{"a", "b", "c"} {
		c := dom.NewNode("div")
		c.ID = id
		c.Computed.Display = "block"
		c.Rect = geom.Bounds{X: 0, Y: float64(i * 60), Width: 200, Height: 50}
		parent.AppendChild(c)
		kids = append(kids, c)
	}
	return parent, kids
}

func start(t *testing.T, n *dom.Node) *State {
	t.Helper()
	s := Start(n, layout.Classify(n.Parent()), layout.Arrange(n))
	if s == nil {
		t.Fatalf("expected reorder state")
	}
	return s
}

// centerAfter is the dragged centre after moving n by dy.
func centerAfter(n *dom.Node, dy float64) geom.Point {
	c := n.Rect.Center()
	return geom.Point{X: c.X, Y: c.Y + dy}
}

func TestUpdate_InsertionIndex(t *testing.T) {
	cases := []struct {
		name       string
		dragged    int
		dy         float64
		wantTarget string
		wantBefore bool
		wantIndex  int
	}{
		{name: "first below second", dragged: 0, dy: 70, wantTarget: "b", wantBefore: false, wantIndex: 1},
		{name: "third above second", dragged: 2, dy: -70, wantTarget: "b", wantBefore: true, wantIndex: 1},
		{name: "first onto last", dragged: 0, dy: 130, wantTarget: "c", wantBefore: false, wantIndex: 2},
		{name: "first before second is a no-op", dragged: 0, dy: 37, wantTarget: "b", wantBefore: true, wantIndex: 0},
		{name: "tie breaks to after", dragged: 0, dy: 57, wantTarget: "b", wantBefore: false, wantIndex: 1},
	}
	for _, tc := range cases {
		_, kids := stack(t)
		s := start(t, kids[tc.dragged])
		s.Update(centerAfter(kids[tc.dragged], tc.dy))
		if s.Target == nil || s.Target.ID != tc.wantTarget {
			t.Fatalf("%s: target got %v want %s", tc.name, s.Target, tc.wantTarget)
		}
		if s.InsertBefore != tc.wantBefore || s.NewIndex != tc.wantIndex {
			t.Fatalf("%s: got before=%v index=%d want before=%v index=%d", tc.name, s.InsertBefore, s.NewIndex, tc.wantBefore, tc.wantIndex)
		}
	}
}

func TestUpdate_SkipsSelfAndGaps(t *testing.T) {
	_, kids := stack(t)
	s := start(t, kids[1])
	s.Update(centerAfter(kids[1], 10))
	if s.Target != nil || !s.IsNoop() || s.NewIndex != 1 {
		t.Fatalf("expected no target over self: %+v", s.Target)
	}
	s.Update(centerAfter(kids[1], -30))
	if s.Target != nil {
		t.Fatalf("expected no target in gap")
	}
}

func TestBefore_CrossAxisBreaksTie(t *testing.T) {
	tc := geom.Point{X: 100, Y: 100}
	if !before(layout.AxisVertical, geom.Point{X: 90, Y: 103}, tc) {
		t.Fatalf("left of centre within tie should insert before")
	}
	if before(layout.AxisVertical, geom.Point{X: 100, Y: 100}, tc) {
		t.Fatalf("exact tie should insert after")
	}
	if !before(layout.AxisHorizontal, geom.Point{X: 80, Y: 200}, tc) {
		t.Fatalf("horizontal main axis should decide")
	}
}

func TestOffsets_OpenSlot(t *testing.T) {
	_, kids := stack(t)
	s := start(t, kids[0])
	s.Update(centerAfter(kids[0], 130))
	off := s.Offsets()
	if off[kids[1]].Y != -50 || off[kids[2]].Y != -50 {
		t.Fatalf("expected both siblings to shift up: %+v %+v", off[kids[1]], off[kids[2]])
	}
	if _, ok := off[kids[0]]; ok {
		t.Fatalf("dragged node must not be offset")
	}

	s.ApplyOffsets()
	if v, _ := kids[1].Style(dom.PropTransform); v != "translate(0px, -50px)" {
		t.Fatalf("transform: %q", v)
	}
	s.RestoreSiblings()
	if _, ok := kids[1].Style(dom.PropTransform); ok {
		t.Fatalf("transform should be restored to unset")
	}
}

func TestCommit_MovesAndReflows(t *testing.T) {
	parent, kids := stack(t)
	s := start(t, kids[0])
	s.Update(centerAfter(kids[0], 70))
	mv, ok := s.Commit()
	if !ok {
		t.Fatalf("expected a move")
	}
	if mv.FromIndex != 0 || mv.ToIndex != 1 || mv.Target != kids[1] || mv.InsertBefore {
		t.Fatalf("unexpected move: %+v", mv)
	}
	got := parent.Children()
	if got[0] != kids[1] || got[1] != kids[0] || got[2] != kids[2] {
		t.Fatalf("unexpected order")
	}
	if kids[1].Rect.Y != 0 || kids[0].Rect.Y != 60 {
		t.Fatalf("reflow: b=%v a=%v", kids[1].Rect.Y, kids[0].Rect.Y)
	}
}

func TestCommit_NoopLeavesDocument(t *testing.T) {
	parent, kids := stack(t)
	s := start(t, kids[0])
	s.Update(centerAfter(kids[0], 37))
	if _, ok := s.Commit(); ok {
		t.Fatalf("expected no-op")
	}
	if parent.Children()[0] != kids[0] {
		t.Fatalf("order changed")
	}
}
