// Package dom is the in-memory model of the live document being edited.
//
// Each Node carries the layout box and computed style captured from the
// rendered page plus a small set of inline style overrides that the edit
// engine writes while a gesture is in progress.
package dom

import (
	"strings"

	"visedit-cli/internal/geom"
)

// OverlayClassPrefix marks nodes that belong to the editor's own UI.
const OverlayClassPrefix = "vc-"

type Edges struct {
	Top    float64 `json:"top"`
	Right  float64 `json:"right"`
	Bottom float64 `json:"bottom"`
	Left   float64 `json:"left"`
}

// Computed is the subset of computed style the engine reasons about.
type Computed struct {
	Display       string  `json:"display"`
	FlexDirection string  `json:"flexDirection,omitempty"`
	Gap           float64 `json:"gap,omitempty"`
	Padding       Edges   `json:"padding"`
	LineHeight    float64 `json:"lineHeight,omitempty"`
	Visibility    string  `json:"visibility,omitempty"`
}

type Node struct {
	Tag      string
	ID       string
	Classes  []string
	Attrs    map[string]string
	Text     string
	Computed Computed
	Rect     geom.Bounds

	inline   map[string]string
	parent   *Node
	children []*Node
}

// NewNode returns a detached element. Tags are normalised to upper case.
func NewNode(tag string) *Node {
	return &Node{Tag: strings.ToUpper(strings.TrimSpace(tag))}
}

func (n *Node) Parent() *Node { return n.parent }

// Children returns a copy of the child list.
func (n *Node) Children() []*Node {
	out := make([]*Node, len(n.children))
	copy(out, n.children)
	return out
}

func (n *Node) ChildCount() int { return len(n.children) }

// Index is the position of n among its parent's children, or -1 when detached.
func (n *Node) Index() int {
	if n.parent == nil {
		return -1
	}
	for i, c := range n.parent.children {
		if c == n {
			return i
		}
	}
	return -1
}

func (n *Node) NextSibling() *Node {
	i := n.Index()
	if i < 0 || i+1 >= len(n.parent.children) {
		return nil
	}
	return n.parent.children[i+1]
}

func (n *Node) PrevSibling() *Node {
	i := n.Index()
	if i <= 0 {
		return nil
	}
	return n.parent.children[i-1]
}

func (n *Node) AppendChild(child *Node) {
	child.Remove()
	child.parent = n
	n.children = append(n.children, child)
}

// InsertBefore moves child under n, directly before ref. A nil ref appends.
func (n *Node) InsertBefore(child, ref *Node) {
	if child == ref {
		return
	}
	child.Remove()
	if ref == nil || ref.parent != n {
		child.parent = n
		n.children = append(n.children, child)
		return
	}
	i := ref.Index()
	n.children = append(n.children, nil)
	copy(n.children[i+1:], n.children[i:])
	n.children[i] = child
	child.parent = n
}

// InsertAfter moves child under n, directly after ref. A nil ref prepends.
func (n *Node) InsertAfter(child, ref *Node) {
	if child == ref {
		return
	}
	if ref == nil {
		var first *Node
		if len(n.children) > 0 {
			first = n.children[0]
		}
		if first == child {
			return
		}
		n.InsertBefore(child, first)
		return
	}
	next := ref.NextSibling()
	if next == child {
		return
	}
	n.InsertBefore(child, next)
}

// Remove detaches n from its parent.
func (n *Node) Remove() {
	p := n.parent
	if p == nil {
		return
	}
	for i, c := range p.children {
		if c == n {
			p.children = append(p.children[:i], p.children[i+1:]...)
			break
		}
	}
	n.parent = nil
}

// Contains reports whether other is n or one of its descendants.
func (n *Node) Contains(other *Node) bool {
	for cur := other; cur != nil; cur = cur.parent {
		if cur == n {
			return true
		}
	}
	return false
}

// Walk visits n and its descendants in document order. Returning false from fn
// skips the subtree of the visited node.
func (n *Node) Walk(fn func(*Node) bool) {
	if !fn(n) {
		return
	}
	for _, c := range n.Children() {
		c.Walk(fn)
	}
}

func (n *Node) HasClass(name string) bool {
	for _, c := range n.Classes {
		if c == name {
			return true
		}
	}
	return false
}

// IsOverlay reports whether n or any ancestor belongs to the editor UI.
func (n *Node) IsOverlay() bool {
	for cur := n; cur != nil; cur = cur.parent {
		for _, c := range cur.Classes {
			if strings.HasPrefix(c, OverlayClassPrefix) {
				return true
			}
		}
	}
	return false
}

// Visible is false for display:none and visibility:hidden nodes.
func (n *Node) Visible() bool {
	return n.Computed.Display != "none" && n.Computed.Visibility != "hidden"
}

// IsImage reports whether n is image-bearing.
func (n *Node) IsImage() bool {
	switch n.Tag {
	case "IMG", "PICTURE", "SVG", "CANVAS", "VIDEO":
		return true
	}
	return false
}

// HasDirectText reports whether n carries its own text content.
func (n *Node) HasDirectText() bool {
	return strings.TrimSpace(n.Text) != ""
}

// TextContent concatenates the text of n and its descendants.
func (n *Node) TextContent() string {
	var parts []string
	n.Walk(func(c *Node) bool {
		if t := strings.TrimSpace(c.Text); t != "" {
			parts = append(parts, t)
		}
		return true
	})
	return strings.Join(parts, " ")
}

func (n *Node) SetText(text string) { n.Text = text }

// Shift moves the captured boxes of n and all its descendants.
func (n *Node) Shift(dx, dy float64) {
	n.Walk(func(c *Node) bool {
		c.Rect = c.Rect.Translate(dx, dy)
		return true
	})
}
