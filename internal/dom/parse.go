package dom

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"visedit-cli/internal/geom"

	"golang.org/x/net/html"
)

// DefaultViewport is used when a fixture does not declare one.
var DefaultViewport = geom.Size{Width: 1280, Height: 800}

// ParseHTML builds a Document from an HTML snapshot. Layout boxes come from
// data-rect="x,y,w,h" attributes; layout-relevant computed style comes from the
// style attribute, with per-tag defaults for display. Properties the editor
// writes (transform, width, ...) become inline styles.
func ParseHTML(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	var top *Node
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			top, err = convert(c)
			if err != nil {
				return nil, err
			}
			break
		}
	}
	if top == nil {
		return nil, fmt.Errorf("parse html: no root element")
	}
	vp := DefaultViewport
	if v := top.Attrs["data-viewport"]; v != "" {
		w, h, ok := strings.Cut(v, "x")
		wf, err1 := strconv.ParseFloat(strings.TrimSpace(w), 64)
		hf, err2 := strconv.ParseFloat(strings.TrimSpace(h), 64)
		if !ok || err1 != nil || err2 != nil {
			return nil, fmt.Errorf("invalid data-viewport %q", v)
		}
		vp = geom.Size{Width: wf, Height: hf}
	}
	return NewDocument(top, vp), nil
}

func convert(h *html.Node) (*Node, error) {
	n := NewNode(h.Data)
	n.Computed.Display = defaultDisplay(n.Tag)
	for _, a := range h.Attr {
		switch a.Key {
		case "id":
			n.ID = a.Val
		case "class":
			n.Classes = strings.Fields(a.Val)
		case "data-rect":
			b, err := parseRect(a.Val)
			if err != nil {
				return nil, err
			}
			n.Rect = b
		case "style":
			applyStyleAttr(n, a.Val)
		default:
			if n.Attrs == nil {
				n.Attrs = map[string]string{}
			}
			n.Attrs[a.Key] = a.Val
		}
	}
	var text []string
	for c := h.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.TextNode:
			if t := strings.TrimSpace(c.Data); t != "" {
				text = append(text, t)
			}
		case html.ElementNode:
			child, err := convert(c)
			if err != nil {
				return nil, err
			}
			n.AppendChild(child)
		}
	}
	n.Text = strings.Join(text, " ")
	return n, nil
}

func parseRect(v string) (geom.Bounds, error) {
	parts := strings.Split(v, ",")
	if len(parts) != 4 {
		return geom.Bounds{}, fmt.Errorf("invalid data-rect %q", v)
	}
	var f [4]float64
	for i, p := range parts {
		x, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return geom.Bounds{}, fmt.Errorf("invalid data-rect %q: %w", v, err)
		}
		f[i] = x
	}
	return geom.Bounds{X: f[0], Y: f[1], Width: f[2], Height: f[3]}, nil
}

func applyStyleAttr(n *Node, attr string) {
	for _, decl := range strings.Split(attr, ";") {
		k, v, ok := strings.Cut(decl, ":")
		if !ok {
			continue
		}
		k = strings.ToLower(strings.TrimSpace(k))
		v = strings.TrimSpace(v)
		switch k {
		case "display":
			n.Computed.Display = v
		case "flex-direction":
			n.Computed.FlexDirection = v
		case "gap":
			n.Computed.Gap, _ = ParsePx(strings.Fields(v + " 0")[0])
		case "visibility":
			n.Computed.Visibility = v
		case "line-height":
			n.Computed.LineHeight, _ = ParsePx(v)
		case "padding":
			n.Computed.Padding = parsePadding(v)
		case "padding-top":
			n.Computed.Padding.Top, _ = ParsePx(v)
		case "padding-right":
			n.Computed.Padding.Right, _ = ParsePx(v)
		case "padding-bottom":
			n.Computed.Padding.Bottom, _ = ParsePx(v)
		case "padding-left":
			n.Computed.Padding.Left, _ = ParsePx(v)
		default:
			for _, p := range MutableProps {
				if p == k {
					n.SetStyle(k, v)
				}
			}
		}
	}
}

// parsePadding handles the 1–4 value shorthand.
func parsePadding(v string) Edges {
	var vals []float64
	for _, f := range strings.Fields(v) {
		px, _ := ParsePx(f)
		vals = append(vals, px)
	}
	switch len(vals) {
	case 1:
		return Edges{vals[0], vals[0], vals[0], vals[0]}
	case 2:
		return Edges{vals[0], vals[1], vals[0], vals[1]}
	case 3:
		return Edges{vals[0], vals[1], vals[2], vals[1]}
	case 4:
		return Edges{vals[0], vals[1], vals[2], vals[3]}
	}
	return Edges{}
}

func defaultDisplay(tag string) string {
	switch tag {
	case "SPAN", "A", "B", "I", "EM", "STRONG", "SMALL", "CODE", "LABEL", "ABBR", "SUB", "SUP", "IMG", "BR":
		return "inline"
	case "BUTTON", "INPUT", "SELECT", "TEXTAREA":
		return "inline-block"
	case "LI":
		return "list-item"
	case "TABLE":
		return "table"
	case "THEAD", "TBODY", "TFOOT":
		return "table-row-group"
	case "TR":
		return "table-row"
	case "TD", "TH":
		return "table-cell"
	case "HEAD", "SCRIPT", "STYLE", "META", "LINK", "TITLE", "TEMPLATE":
		return "none"
	}
	return "block"
}
