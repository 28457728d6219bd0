package dom

import (
	"strings"

	"visedit-cli/internal/geom"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Document is the live tree plus the viewport it was laid out in.
type Document struct {
	Root     *Node
	Viewport geom.Size
}

func NewDocument(root *Node, viewport geom.Size) *Document {
	return &Document{Root: root, Viewport: viewport}
}

// Body returns the BODY element, falling back to the root.
func (d *Document) Body() *Node {
	var body *Node
	d.Root.Walk(func(n *Node) bool {
		if body != nil {
			return false
		}
		if n.Tag == "BODY" {
			body = n
			return false
		}
		return true
	})
	if body == nil {
		return d.Root
	}
	return body
}

func (d *Document) Query(selector string) (*Node, error) {
	return Query(d.Root, selector)
}

// Nodes returns every element in document order.
func (d *Document) Nodes() []*Node {
	var out []*Node
	d.Root.Walk(func(n *Node) bool {
		out = append(out, n)
		return true
	})
	return out
}

// HitTest returns the deepest painted node whose box contains p. Overlay
// nodes, invisible nodes and any subtree for which skip returns true are
// never hit. Later siblings paint over earlier ones.
func (d *Document) HitTest(p geom.Point, skip func(*Node) bool) *Node {
	return hitTest(d.Root, p, skip)
}

func hitTest(n *Node, p geom.Point, skip func(*Node) bool) *Node {
	if n.IsOverlay() || !n.Visible() {
		return nil
	}
	if skip != nil && skip(n) {
		return nil
	}
	for i := len(n.children) - 1; i >= 0; i-- {
		if hit := hitTest(n.children[i], p, skip); hit != nil {
			return hit
		}
	}
	if n.Box().Contains(p) {
		return n
	}
	return nil
}

// ElementInfo is the summary of a node attached to instruction records.
type ElementInfo struct {
	TagName   string `json:"tagName"`
	ID        string `json:"id,omitempty"`
	ClassName string `json:"className,omitempty"`
	Selector  string `json:"selector"`
	InnerText string `json:"innerText,omitempty"`
	OuterHTML string `json:"outerHTML,omitempty"`
}

const (
	maxInfoText = 100
	maxInfoHTML = 500
)

func Info(n *Node) ElementInfo {
	return ElementInfo{
		TagName:   n.Tag,
		ID:        n.ID,
		ClassName: strings.Join(selectorClasses(n), " "),
		Selector:  Selector(n),
		InnerText: truncate(n.TextContent(), maxInfoText),
		OuterHTML: truncate(OuterHTML(n), maxInfoHTML),
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// OuterHTML serialises n with its current inline styles.
func OuterHTML(n *Node) string {
	var b strings.Builder
	if err := html.Render(&b, toHTML(n)); err != nil {
		return ""
	}
	return b.String()
}

func toHTML(n *Node) *html.Node {
	tag := strings.ToLower(n.Tag)
	out := &html.Node{
		Type:     html.ElementNode,
		Data:     tag,
		DataAtom: atom.Lookup([]byte(tag)),
	}
	if n.ID != "" {
		out.Attr = append(out.Attr, html.Attribute{Key: "id", Val: n.ID})
	}
	if len(n.Classes) > 0 {
		out.Attr = append(out.Attr, html.Attribute{Key: "class", Val: strings.Join(n.Classes, " ")})
	}
	if s := n.styleAttr(); s != "" {
		out.Attr = append(out.Attr, html.Attribute{Key: "style", Val: s})
	}
	if t := strings.TrimSpace(n.Text); t != "" {
		out.AppendChild(&html.Node{Type: html.TextNode, Data: t})
	}
	for _, c := range n.children {
		if c.IsOverlay() {
			continue
		}
		out.AppendChild(toHTML(c))
	}
	return out
}
