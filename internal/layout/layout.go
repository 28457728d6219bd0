// Package layout answers layout questions about the live document: how a
// container arranges its children, which axis a drag is travelling along and
// how small a node may be resized.
package layout

import (
	"math"
	"strings"

	"visedit-cli/internal/dom"
	"visedit-cli/internal/geom"
)

const (
	// ReorderThreshold is the dominant-axis displacement that turns a move into a reorder.
	ReorderThreshold = 10.0
	// ArrangementTolerance absorbs rounding and small overlaps between siblings.
	ArrangementTolerance = 10.0
)

type Axis int

const (
	AxisNone Axis = iota
	AxisVertical
	AxisHorizontal
)

func (a Axis) String() string {
	switch a {
	case AxisVertical:
		return "vertical"
	case AxisHorizontal:
		return "horizontal"
	default:
		return "none"
	}
}

// Context classifies a container.
type Context struct {
	Container     *dom.Node `json:"-"`
	IsFlex        bool      `json:"isFlex"`
	IsGrid        bool      `json:"isGrid"`
	IsBlock       bool      `json:"isBlock"`
	FlexDirection string    `json:"flexDirection"`
	Gap           float64   `json:"gap"`
}

// Classify reports the layout model of container. Flex direction defaults to row.
func Classify(container *dom.Node) Context {
	if container == nil {
		return Context{FlexDirection: "row"}
	}
	display := container.Computed.Display
	ctx := Context{
		Container:     container,
		IsFlex:        strings.Contains(display, "flex"),
		IsGrid:        strings.Contains(display, "grid"),
		IsBlock:       display == "block",
		FlexDirection: container.Computed.FlexDirection,
		Gap:           container.Computed.Gap,
	}
	if ctx.FlexDirection == "" {
		ctx.FlexDirection = "row"
	}
	return ctx
}

// IsColumn is true for flex containers laid out top to bottom.
func (c Context) IsColumn() bool {
	return c.IsFlex && strings.HasPrefix(c.FlexDirection, "column")
}

// IsRow is true for flex containers laid out side by side.
func (c Context) IsRow() bool {
	return c.IsFlex && strings.HasPrefix(c.FlexDirection, "row")
}

// Arrangement is the observed geometry of a node and its visible siblings.
type Arrangement struct {
	Siblings     []*dom.Node   `json:"-"`
	Rects        []geom.Bounds `json:"rects"`
	IsVertical   bool          `json:"isVertical"`
	IsHorizontal bool          `json:"isHorizontal"`
	Count        int           `json:"count"`
}

// IndexOf returns the position of n among the arranged siblings.
func (a *Arrangement) IndexOf(n *dom.Node) int {
	for i, s := range a.Siblings {
		if s == n {
			return i
		}
	}
	return -1
}

// Arrange inspects the visible, non-overlay children of n's parent. It
// returns nil when fewer than two qualify. Vertical means every sibling
// starts at or below the previous one's bottom edge, horizontal the same
// along x; both may be false for wrapped or overlapping layouts.
func Arrange(n *dom.Node) *Arrangement {
	parent := n.Parent()
	if parent == nil {
		return nil
	}
	var sibs []*dom.Node
	for _, c := range parent.Children() {
		if c.IsOverlay() || !c.Visible() {
			continue
		}
		sibs = append(sibs, c)
	}
	if len(sibs) < 2 {
		return nil
	}
	rects := make([]geom.Bounds, len(sibs))
	for i, s := range sibs {
		rects[i] = s.Box()
	}
	vertical, horizontal := true, true
	for i := 1; i < len(rects); i++ {
		prev, cur := rects[i-1], rects[i]
		if cur.Top() < prev.Bottom()-ArrangementTolerance {
			vertical = false
		}
		if cur.Left() < prev.Right()-ArrangementTolerance {
			horizontal = false
		}
	}
	return &Arrangement{
		Siblings:     sibs,
		Rects:        rects,
		IsVertical:   vertical,
		IsHorizontal: horizontal,
		Count:        len(sibs),
	}
}

// DominantAxis picks the axis a reorder travels along. Flex direction wins,
// then an unambiguous sibling arrangement, then vertical for grid or block
// containers whose children stack.
func DominantAxis(ctx Context, arr *Arrangement) Axis {
	if arr == nil {
		return AxisNone
	}
	switch {
	case ctx.IsColumn() || (arr.IsVertical && !arr.IsHorizontal):
		return AxisVertical
	case ctx.IsRow() || (arr.IsHorizontal && !arr.IsVertical):
		return AxisHorizontal
	case (ctx.IsGrid || ctx.IsBlock) && arr.IsVertical:
		return AxisVertical
	}
	return AxisNone
}

// ShouldReorder reports whether a drag displaced by (dx, dy) should switch to
// reorder mode. Holding the modifier always keeps free positioning.
func ShouldReorder(ctx Context, arr *Arrangement, dx, dy float64, modifier bool) bool {
	if modifier || arr == nil {
		return false
	}
	switch DominantAxis(ctx, arr) {
	case AxisVertical:
		return math.Abs(dy) > ReorderThreshold
	case AxisHorizontal:
		return math.Abs(dx) > ReorderThreshold
	}
	return false
}

// ContentBox is the padded content area of n.
func ContentBox(n *dom.Node) geom.Bounds {
	p := n.Computed.Padding
	return n.Box().Inset(p.Top, p.Right, p.Bottom, p.Left)
}

const (
	imageMinSide    = 100.0
	textMinWidth    = 100.0
	defaultLineHigh = 20.0
	textSlack       = 10.0
	genericMinSide  = 50.0
)

// MinimumSize is the smallest box a resize may shrink n to.
func MinimumSize(n *dom.Node) geom.Size {
	switch {
	case n.IsImage():
		return geom.Size{Width: imageMinSide, Height: imageMinSide}
	case n.HasDirectText():
		lh := n.Computed.LineHeight
		if lh <= 0 {
			lh = defaultLineHigh
		}
		p := n.Computed.Padding
		return geom.Size{Width: textMinWidth, Height: lh + p.Top + p.Bottom + textSlack}
	}
	return geom.Size{Width: genericMinSide, Height: genericMinSide}
}
