// Package geom holds the viewport-space geometry shared by the edit engine.
package geom

import "math"

// Point is a position in viewport pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Bounds is an axis-aligned rectangle in viewport pixels.
type Bounds struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Size is a width/height pair.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (b Bounds) Left() float64   { return b.X }
func (b Bounds) Top() float64    { return b.Y }
func (b Bounds) Right() float64  { return b.X + b.Width }
func (b Bounds) Bottom() float64 { return b.Y + b.Height }

func (b Bounds) Center() Point {
	return Point{X: b.X + b.Width/2, Y: b.Y + b.Height/2}
}

// Contains reports whether p lies inside b, edges included.
func (b Bounds) Contains(p Point) bool {
	return p.X >= b.Left() && p.X <= b.Right() && p.Y >= b.Top() && p.Y <= b.Bottom()
}

func (b Bounds) Translate(dx, dy float64) Bounds {
	b.X += dx
	b.Y += dy
	return b
}

// Inset shrinks b by the given edge amounts. Width and height never go negative.
func (b Bounds) Inset(top, right, bottom, left float64) Bounds {
	out := Bounds{
		X:      b.X + left,
		Y:      b.Y + top,
		Width:  b.Width - left - right,
		Height: b.Height - top - bottom,
	}
	if out.Width < 0 {
		out.Width = 0
	}
	if out.Height < 0 {
		out.Height = 0
	}
	return out
}

func (b Bounds) Empty() bool { return b.Width <= 0 || b.Height <= 0 }

// Distance is the Euclidean distance between two points.
func Distance(p1, p2 Point) float64 {
	return math.Hypot(p2.X-p1.X, p2.Y-p1.Y)
}

// BoundsFromPoints returns the rectangle spanned by two corners in any order.
func BoundsFromPoints(a, b Point) Bounds {
	return Bounds{
		X:      math.Min(a.X, b.X),
		Y:      math.Min(a.Y, b.Y),
		Width:  math.Abs(b.X - a.X),
		Height: math.Abs(b.Y - a.Y),
	}
}

// ClampToViewport positions a w×h box next to (x, y): to the right of and below
// the point, flipped to the other side when it would overflow, then clamped so
// it stays at least padding away from every viewport edge.
func ClampToViewport(x, y, w, h, padding float64, viewport Size) Point {
	left := x + padding
	top := y + padding

	if left+w > viewport.Width-padding {
		left = x - w - padding
	}
	if top+h > viewport.Height-padding {
		top = y - h - padding
	}

	left = math.Max(padding, math.Min(left, viewport.Width-w-padding))
	top = math.Max(padding, math.Min(top, viewport.Height-h-padding))
	return Point{X: left, Y: top}
}
