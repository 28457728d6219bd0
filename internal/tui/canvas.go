package tui

import (
	"math"
	"strings"

	"visedit-cli/internal/dom"
	"visedit-cli/internal/drag"
	"visedit-cli/internal/geom"

	"github.com/charmbracelet/lipgloss"
)

// canvas maps the page viewport onto a grid of terminal cells.
type canvas struct {
	cols, rows int
	viewport   geom.Size
}

func newCanvas(cols, rows int, viewport geom.Size) canvas {
	if viewport.Width <= 0 || viewport.Height <= 0 {
		viewport = dom.DefaultViewport
	}
	return canvas{cols: max(cols, 1), rows: max(rows, 1), viewport: viewport}
}

func (c canvas) sx() float64 { return c.viewport.Width / float64(c.cols) }
func (c canvas) sy() float64 { return c.viewport.Height / float64(c.rows) }

// toPx returns the page point at the center of a cell.
func (c canvas) toPx(col, row int) geom.Point {
	return geom.Point{
		X: (float64(col) + 0.5) * c.sx(),
		Y: (float64(row) + 0.5) * c.sy(),
	}
}

func (c canvas) toCell(p geom.Point) (int, int) {
	return int(math.Floor(p.X / c.sx())), int(math.Floor(p.Y / c.sy()))
}

// cellRect returns the inclusive cell corners covered by b.
func (c canvas) cellRect(b geom.Bounds) (x0, y0, x1, y1 int) {
	x0, y0 = c.toCell(geom.Point{X: b.Left(), Y: b.Top()})
	x1 = int(math.Ceil(b.Right()/c.sx())) - 1
	y1 = int(math.Ceil(b.Bottom()/c.sy())) - 1
	return x0, y0, max(x1, x0), max(y1, y0)
}

// handleAt reports the resize handle of box b drawn at a cell. Handles sit on
// the four corners and the middle of each edge.
func (c canvas) handleAt(b geom.Bounds, col, row int) drag.Handle {
	x0, y0, x1, y1 := c.cellRect(b)
	if x1-x0 < 2 || y1-y0 < 2 {
		// Too small to tell edges from the inside; only corners count.
		switch {
		case col == x1 && row == y1:
			return drag.HandleSE
		case col == x0 && row == y0:
			return drag.HandleNW
		}
		return drag.HandleNone
	}
	mx, my := (x0+x1)/2, (y0+y1)/2
	switch {
	case col == x0 && row == y0:
		return drag.HandleNW
	case col == x1 && row == y0:
		return drag.HandleNE
	case col == x0 && row == y1:
		return drag.HandleSW
	case col == x1 && row == y1:
		return drag.HandleSE
	case col == mx && row == y0:
		return drag.HandleN
	case col == mx && row == y1:
		return drag.HandleS
	case col == x0 && row == my:
		return drag.HandleW
	case col == x1 && row == my:
		return drag.HandleE
	}
	return drag.HandleNone
}

type ink int

const (
	inkNone ink = iota
	inkBox
	inkLabel
	inkHover
	inkTarget
	inkSelected
	inkInvalid
	inkArea
)

func (k ink) style() lipgloss.Style {
	st := lipgloss.NewStyle()
	switch k {
	case inkBox:
		return faintIfDark(st.Foreground(colorBox))
	case inkLabel:
		return styleMuted()
	case inkHover:
		return st.Foreground(colorHover)
	case inkTarget:
		return st.Foreground(colorTarget).Bold(true)
	case inkSelected:
		return st.Foreground(colorSelected).Bold(true)
	case inkInvalid:
		return st.Foreground(colorInvalid).Bold(true)
	case inkArea:
		return st.Foreground(colorArea)
	}
	return st
}

// scene is what one frame of the canvas shows.
type scene struct {
	hovered  *dom.Node
	selected *dom.Node
	target   *dom.Node
	invalid  bool
	area     *geom.Bounds
}

type grid struct {
	cols, rows int
	runes      [][]rune
	inks       [][]ink
}

func newGrid(cols, rows int) *grid {
	g := &grid{cols: cols, rows: rows, runes: make([][]rune, rows), inks: make([][]ink, rows)}
	for r := range g.runes {
		g.runes[r] = []rune(strings.Repeat(" ", cols))
		g.inks[r] = make([]ink, cols)
	}
	return g
}

func (g *grid) set(col, row int, r rune, k ink) {
	if col < 0 || row < 0 || col >= g.cols || row >= g.rows {
		return
	}
	g.runes[row][col] = r
	g.inks[row][col] = k
}

func (g *grid) box(x0, y0, x1, y1 int, k ink) {
	gl := glyphBox()
	for x := x0 + 1; x < x1; x++ {
		g.set(x, y0, gl[4], k)
		g.set(x, y1, gl[4], k)
	}
	for y := y0 + 1; y < y1; y++ {
		g.set(x0, y, gl[5], k)
		g.set(x1, y, gl[5], k)
	}
	g.set(x0, y0, gl[0], k)
	g.set(x1, y0, gl[1], k)
	g.set(x0, y1, gl[2], k)
	g.set(x1, y1, gl[3], k)
}

func (g *grid) text(col, row, limit int, s string, k ink) {
	for i, r := range []rune(s) {
		if i >= limit {
			return
		}
		g.set(col+i, row, r, k)
	}
}

func (g *grid) String() string {
	var b strings.Builder
	for r := 0; r < g.rows; r++ {
		if r > 0 {
			b.WriteByte('\n')
		}
		start := 0
		for c := 1; c <= g.cols; c++ {
			if c < g.cols && g.inks[r][c] == g.inks[r][start] {
				continue
			}
			run := string(g.runes[r][start:c])
			if k := g.inks[r][start]; k == inkNone {
				b.WriteString(run)
			} else {
				b.WriteString(k.style().Render(run))
			}
			start = c
		}
	}
	return b.String()
}

// render draws every visible element box of doc, then the highlights.
func (c canvas) render(doc *dom.Document, sc scene) string {
	g := newGrid(c.cols, c.rows)
	if doc == nil {
		return g.String()
	}
	body := doc.Body()
	doc.Root.Walk(func(n *dom.Node) bool {
		if n.IsOverlay() {
			return false
		}
		if n == doc.Root || n == body || !n.Visible() {
			return true
		}
		x0, y0, x1, y1 := c.cellRect(n.Box())
		g.box(x0, y0, x1, y1, inkBox)
		if x1-x0 > 2 {
			g.text(x0+1, y0, x1-x0-1, nodeLabel(n), inkLabel)
		}
		return true
	})
	draw := func(n *dom.Node, k ink) {
		if n == nil {
			return
		}
		x0, y0, x1, y1 := c.cellRect(n.Box())
		g.box(x0, y0, x1, y1, k)
		if x1-x0 > 2 {
			g.text(x0+1, y0, x1-x0-1, nodeLabel(n), k)
		}
	}
	if sc.hovered != sc.selected {
		draw(sc.hovered, inkHover)
	}
	draw(sc.target, inkTarget)
	if sc.selected != nil {
		k := inkSelected
		if sc.invalid {
			k = inkInvalid
		}
		draw(sc.selected, k)
		b := sc.selected.Box()
		x0, y0, x1, y1 := c.cellRect(b)
		for y := y0; y <= y1; y++ {
			for x := x0; x <= x1; x++ {
				if c.handleAt(b, x, y) != drag.HandleNone {
					g.set(x, y, glyphHandle(), k)
				}
			}
		}
	}
	if sc.area != nil {
		x0, y0, x1, y1 := c.cellRect(*sc.area)
		g.box(x0, y0, x1, y1, inkArea)
	}
	return g.String()
}

func nodeLabel(n *dom.Node) string {
	label := strings.ToLower(n.Tag)
	if n.ID != "" {
		label += "#" + n.ID
	}
	return label
}
