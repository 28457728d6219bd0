package dom

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"visedit-cli/internal/geom"
)

// Inline style properties written by the edit engine.
const (
	PropTransform     = "transform"
	PropWidth         = "width"
	PropHeight        = "height"
	PropPosition      = "position"
	PropLeft          = "left"
	PropTop           = "top"
	PropZIndex        = "z-index"
	PropOpacity       = "opacity"
	PropPointerEvents = "pointer-events"
	PropOutline       = "outline"
	PropTransition    = "transition"
)

// MutableProps is every inline property a gesture may touch.
var MutableProps = []string{
	PropTransform,
	PropWidth,
	PropHeight,
	PropPosition,
	PropLeft,
	PropTop,
	PropZIndex,
	PropOpacity,
	PropPointerEvents,
	PropOutline,
	PropTransition,
}

// Style returns the inline value of prop and whether it is set.
func (n *Node) Style(prop string) (string, bool) {
	v, ok := n.inline[prop]
	return v, ok
}

func (n *Node) SetStyle(prop, value string) {
	if n.inline == nil {
		n.inline = map[string]string{}
	}
	n.inline[prop] = value
}

func (n *Node) ClearStyle(prop string) {
	delete(n.inline, prop)
}

// InlineStyles returns a copy of every inline property.
func (n *Node) InlineStyles() map[string]string {
	out := make(map[string]string, len(n.inline))
	for k, v := range n.inline {
		out[k] = v
	}
	return out
}

// StyleValue is one captured inline property. Set is false when the property
// was absent.
type StyleValue struct {
	Value string `json:"value,omitempty"`
	Set   bool   `json:"set"`
}

// StyleSnapshot records presence and value for a fixed property set.
type StyleSnapshot map[string]StyleValue

// SnapshotStyles captures props exactly as they are now.
func (n *Node) SnapshotStyles(props ...string) StyleSnapshot {
	s := make(StyleSnapshot, len(props))
	for _, p := range props {
		v, ok := n.Style(p)
		s[p] = StyleValue{Value: v, Set: ok}
	}
	return s
}

// RestoreStyles puts every captured property back, unsetting those that were
// absent at capture time.
func (n *Node) RestoreStyles(s StyleSnapshot) {
	for p, v := range s {
		if v.Set {
			n.SetStyle(p, v.Value)
		} else {
			n.ClearStyle(p)
		}
	}
}

// Box is the observable layout box: the captured rect adjusted by the inline
// overrides currently applied.
func (n *Node) Box() geom.Bounds {
	b := n.Rect
	if v, ok := n.Style(PropWidth); ok {
		if px, ok := ParsePx(v); ok {
			b.Width = px
		}
	}
	if v, ok := n.Style(PropHeight); ok {
		if px, ok := ParsePx(v); ok {
			b.Height = px
		}
	}
	if pos, _ := n.Style(PropPosition); pos == "fixed" {
		if v, ok := n.Style(PropLeft); ok {
			if px, ok := ParsePx(v); ok {
				b.X = px
			}
		}
		if v, ok := n.Style(PropTop); ok {
			if px, ok := ParsePx(v); ok {
				b.Y = px
			}
		}
	}
	if v, ok := n.Style(PropTransform); ok {
		if dx, dy, ok := ParseTranslate(v); ok {
			b = b.Translate(dx, dy)
		}
	}
	return b
}

// Translation returns the inline translate offset, zero when unset.
func (n *Node) Translation() (float64, float64) {
	v, ok := n.Style(PropTransform)
	if !ok {
		return 0, 0
	}
	dx, dy, _ := ParseTranslate(v)
	return dx, dy
}

// ParsePx parses "12px" or "12".
func ParsePx(v string) (float64, bool) {
	v = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(v), "px"))
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func FormatPx(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64) + "px"
}

// ParseTranslate reads "translate(Xpx, Ypx)". "none" is a zero translation.
func ParseTranslate(v string) (float64, float64, bool) {
	v = strings.TrimSpace(v)
	if v == "" || v == "none" {
		return 0, 0, true
	}
	if !strings.HasPrefix(v, "translate(") || !strings.HasSuffix(v, ")") {
		return 0, 0, false
	}
	args := strings.Split(strings.TrimSuffix(strings.TrimPrefix(v, "translate("), ")"), ",")
	if len(args) != 2 {
		return 0, 0, false
	}
	dx, ok1 := ParsePx(args[0])
	dy, ok2 := ParsePx(args[1])
	if !ok1 || !ok2 {
		return 0, 0, false
	}
	return dx, dy, true
}

func FormatTranslate(dx, dy float64) string {
	return fmt.Sprintf("translate(%s, %s)", FormatPx(dx), FormatPx(dy))
}

// styleAttr renders the inline styles in a stable order.
func (n *Node) styleAttr() string {
	if len(n.inline) == 0 {
		return ""
	}
	keys := make([]string, 0, len(n.inline))
	for k := range n.inline {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteString(" ")
		}
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(n.inline[k])
		b.WriteString(";")
	}
	return b.String()
}
