package layout

import (
	"sort"

	"visedit-cli/internal/dom"
	"visedit-cli/internal/geom"
)

// Reflow re-lays out the visible children of container after a structural
// change, so captured boxes follow the new child order. A rendering engine
// does this on its own; the offline model has to do it by hand.
//
// Stacked layouts restack along their axis from the first slot and keep the
// container's gap (or the tightest observed spacing for block flow). Anything
// else keeps its slot positions and hands them out in the new order.
func Reflow(container *dom.Node) {
	var kids []*dom.Node
	for _, c := range container.Children() {
		if c.IsOverlay() || !c.Visible() {
			continue
		}
		kids = append(kids, c)
	}
	if len(kids) < 2 {
		return
	}
	byY := make([]geom.Bounds, len(kids))
	for i, k := range kids {
		byY[i] = k.Rect
	}
	byX := append([]geom.Bounds(nil), byY...)
	sort.SliceStable(byY, func(i, j int) bool {
		if byY[i].Y != byY[j].Y {
			return byY[i].Y < byY[j].Y
		}
		return byY[i].X < byY[j].X
	})
	sort.SliceStable(byX, func(i, j int) bool { return byX[i].X < byX[j].X })

	ctx := Classify(container)
	var axis Axis
	switch {
	case ctx.IsColumn():
		axis = AxisVertical
	case ctx.IsRow():
		axis = AxisHorizontal
	case stacked(byY, AxisVertical):
		axis = AxisVertical
	case stacked(byX, AxisHorizontal):
		axis = AxisHorizontal
	}

	switch axis {
	case AxisVertical:
		restack(kids, byY, axis, gapFor(ctx, byY, axis))
	case AxisHorizontal:
		restack(kids, byX, axis, gapFor(ctx, byX, axis))
	default:
		for i, k := range kids {
			k.Shift(byY[i].X-k.Rect.X, byY[i].Y-k.Rect.Y)
		}
	}
}

func restack(kids []*dom.Node, slots []geom.Bounds, axis Axis, gap float64) {
	cursor := slots[0]
	for _, k := range kids {
		k.Shift(cursor.X-k.Rect.X, cursor.Y-k.Rect.Y)
		if axis == AxisVertical {
			cursor.Y += k.Rect.Height + gap
		} else {
			cursor.X += k.Rect.Width + gap
		}
	}
}

func stacked(slots []geom.Bounds, axis Axis) bool {
	for i := 1; i < len(slots); i++ {
		if axis == AxisVertical && slots[i].Top() < slots[i-1].Bottom()-ArrangementTolerance {
			return false
		}
		if axis == AxisHorizontal && slots[i].Left() < slots[i-1].Right()-ArrangementTolerance {
			return false
		}
	}
	return true
}

func gapFor(ctx Context, slots []geom.Bounds, axis Axis) float64 {
	if ctx.IsFlex || ctx.IsGrid {
		return ctx.Gap
	}
	best := -1.0
	for i := 1; i < len(slots); i++ {
		var g float64
		if axis == AxisVertical {
			g = slots[i].Top() - slots[i-1].Bottom()
		} else {
			g = slots[i].Left() - slots[i-1].Right()
		}
		if g >= 0 && (best < 0 || g < best) {
			best = g
		}
	}
	if best < 0 {
		return 0
	}
	return best
}
