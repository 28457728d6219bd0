package dom

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	maxSelectorSegments = 4
	maxSelectorClasses  = 3
)

// Selector builds a structural path for n. Nodes with an id are addressed by
// id alone; everything else gets up to four "tag.class" segments with the
// leaf pinned by :nth-child. Editor overlay classes never appear.
func Selector(n *Node) string {
	if n == nil {
		return ""
	}
	if n.ID != "" {
		return "#" + n.ID
	}
	var path []string
	for cur := n; cur != nil; cur = cur.parent {
		seg := strings.ToLower(cur.Tag)
		if cls := selectorClasses(cur); len(cls) > 0 {
			seg += "." + strings.Join(cls, ".")
		}
		if cur.parent != nil && len(path) == 0 {
			seg += fmt.Sprintf(":nth-child(%d)", cur.Index()+1)
		}
		path = append([]string{seg}, path...)
		if len(path) >= maxSelectorSegments {
			break
		}
	}
	return strings.Join(path, " > ")
}

func selectorClasses(n *Node) []string {
	var out []string
	for _, c := range n.Classes {
		if c == "" || strings.HasPrefix(c, OverlayClassPrefix) {
			continue
		}
		out = append(out, c)
		if len(out) == maxSelectorClasses {
			break
		}
	}
	return out
}

type segment struct {
	tag      string
	classes  []string
	nthChild int
}

func parseSegment(s string) (segment, error) {
	var seg segment
	s = strings.TrimSpace(s)
	if i := strings.Index(s, ":nth-child("); i >= 0 {
		rest := strings.TrimSuffix(s[i+len(":nth-child("):], ")")
		n, err := strconv.Atoi(rest)
		if err != nil || n < 1 {
			return seg, fmt.Errorf("invalid nth-child in %q", s)
		}
		seg.nthChild = n
		s = s[:i]
	}
	parts := strings.Split(s, ".")
	seg.tag = strings.ToUpper(parts[0])
	if seg.tag == "" {
		return seg, fmt.Errorf("invalid selector segment %q", s)
	}
	for _, c := range parts[1:] {
		if c != "" {
			seg.classes = append(seg.classes, c)
		}
	}
	return seg, nil
}

func (seg segment) matches(n *Node) bool {
	if n.Tag != seg.tag {
		return false
	}
	for _, c := range seg.classes {
		if !n.HasClass(c) {
			return false
		}
	}
	if seg.nthChild > 0 && n.Index()+1 != seg.nthChild {
		return false
	}
	return true
}

// Query resolves a selector produced by Selector. Paths may be truncated at
// the top, so the first segment can match at any depth. Returns nil when
// nothing matches.
func Query(root *Node, selector string) (*Node, error) {
	selector = strings.TrimSpace(selector)
	if selector == "" {
		return nil, fmt.Errorf("empty selector")
	}
	if strings.HasPrefix(selector, "#") {
		id := selector[1:]
		var found *Node
		root.Walk(func(n *Node) bool {
			if found != nil {
				return false
			}
			if n.ID == id {
				found = n
				return false
			}
			return true
		})
		return found, nil
	}

	raw := strings.Split(selector, ">")
	segs := make([]segment, 0, len(raw))
	for _, r := range raw {
		seg, err := parseSegment(r)
		if err != nil {
			return nil, err
		}
		segs = append(segs, seg)
	}

	var found *Node
	root.Walk(func(n *Node) bool {
		if found != nil {
			return false
		}
		if matchChain(n, segs) {
			found = n
			return false
		}
		return true
	})
	return found, nil
}

func matchChain(n *Node, segs []segment) bool {
	cur := n
	for i := len(segs) - 1; i >= 0; i-- {
		if cur == nil || !segs[i].matches(cur) {
			return false
		}
		cur = cur.parent
	}
	return true
}
