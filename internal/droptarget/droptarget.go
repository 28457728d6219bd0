// Package droptarget decides where a dragged node may legally be placed.
package droptarget

import (
	"fmt"
	"strings"

	"visedit-cli/internal/dom"
	"visedit-cli/internal/geom"
)

// MaxAncestorWalk bounds how far up from the hit node a candidate is searched.
const MaxAncestorWalk = 10

// NoElementReason is reported when nothing but the dragged node or overlays
// lie under the cursor.
const NoElementReason = "No valid drop target under cursor"

// validParents lists the only containers certain elements may live in.
var validParents = map[string][]string{
	"LI":         {"UL", "OL", "MENU"},
	"TR":         {"TABLE", "THEAD", "TBODY", "TFOOT"},
	"TD":         {"TR"},
	"TH":         {"TR"},
	"THEAD":      {"TABLE"},
	"TBODY":      {"TABLE"},
	"TFOOT":      {"TABLE"},
	"CAPTION":    {"TABLE"},
	"COLGROUP":   {"TABLE"},
	"COL":        {"COLGROUP"},
	"OPTION":     {"SELECT", "OPTGROUP", "DATALIST"},
	"OPTGROUP":   {"SELECT"},
	"LEGEND":     {"FIELDSET"},
	"FIGCAPTION": {"FIGURE"},
	"DT":         {"DL"},
	"DD":         {"DL"},
	"SOURCE":     {"AUDIO", "VIDEO", "PICTURE"},
	"TRACK":      {"AUDIO", "VIDEO"},
	"SUMMARY":    {"DETAILS"},
}

// leafTags are replaced or void elements that cannot hold children.
var leafTags = map[string]bool{
	"IMG":    true,
	"INPUT":  true,
	"BR":     true,
	"HR":     true,
	"EMBED":  true,
	"OBJECT": true,
	"VIDEO":  true,
	"AUDIO":  true,
	"CANVAS": true,
	"IFRAME": true,
}

// Rule identifies which placement rule rejected a candidate.
type Rule int

const (
	RuleNone Rule = iota
	RuleNoElement
	RuleLeafParent
	RuleInlineParent
	RuleValidParent
)

// Violation explains why child cannot go into parent.
type Violation struct {
	Rule   Rule
	Reason string
}

// Check applies the placement rules to a single parent/child pair. The
// zero Violation means the pair is allowed.
func Check(parent, child *dom.Node) Violation {
	if allowed, ok := validParents[child.Tag]; ok && !contains(allowed, parent.Tag) {
		return Violation{
			Rule:   RuleValidParent,
			Reason: fmt.Sprintf("%s can only be placed in %s", child.Tag, strings.Join(allowed, ", ")),
		}
	}
	if parent.Computed.Display == "inline" && isBlockLevel(child) {
		return Violation{
			Rule:   RuleInlineParent,
			Reason: "Block-level elements cannot be placed inside inline elements",
		}
	}
	if leafTags[parent.Tag] {
		return Violation{
			Rule:   RuleLeafParent,
			Reason: fmt.Sprintf("%s elements cannot contain other elements", parent.Tag),
		}
	}
	return Violation{}
}

// CanAccept reports whether parent may contain child.
func CanAccept(parent, child *dom.Node) bool {
	return Check(parent, child).Rule == RuleNone
}

func isBlockLevel(n *dom.Node) bool {
	switch n.Computed.Display {
	case "block", "flex", "grid":
		return true
	}
	return false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Result is the outcome of a drop-target search. Target is nil when the drop
// is invalid, in which case Reason explains why.
type Result struct {
	Target *dom.Node
	Reason string
}

func (r Result) Valid() bool { return r.Target != nil }

// Find locates the nearest legal parent for dragged at p. The hit test skips
// the dragged subtree and editor overlays; at most MaxAncestorWalk
// candidates, starting at the hit node, are tried in order. When all fail the
// most specific violation seen is reported.
func Find(doc *dom.Document, p geom.Point, dragged *dom.Node) Result {
	if dragged == nil {
		return Result{Reason: NoElementReason}
	}
	hit := doc.HitTest(p, func(n *dom.Node) bool { return n == dragged })
	if hit == nil {
		return Result{Reason: NoElementReason}
	}
	worst := Violation{Rule: RuleNoElement, Reason: NoElementReason}
	cur := hit
	for i := 0; cur != nil && i < MaxAncestorWalk; i++ {
		v := Check(cur, dragged)
		if v.Rule == RuleNone {
			return Result{Target: cur}
		}
		if v.Rule > worst.Rule {
			worst = v
		}
		cur = cur.Parent()
	}
	return Result{Reason: worst.Reason}
}
