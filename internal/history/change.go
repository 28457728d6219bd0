// Package history is the undoable ledger of accepted edits.
package history

import (
	"fmt"
	"strings"
	"time"

	"visedit-cli/internal/dom"
	"visedit-cli/internal/geom"

	json "github.com/goccy/go-json"
)

type Kind string

const (
	KindTransform Kind = "transform"
	KindReorder   Kind = "reorder"
	KindText      Kind = "text"
	KindAI        Kind = "ai"
)

// Change is the payload of a record. The set of implementations is closed.
type Change interface {
	Kind() Kind
	isChange()
}

// Styles holds the inline properties a transform touches. A missing key
// means the property is unset.
type Styles map[string]string

// TransformProps are the properties captured by a TransformChange.
var TransformProps = []string{dom.PropTransform, dom.PropWidth, dom.PropHeight}

type TransformChange struct {
	Before Styles `json:"before"`
	After  Styles `json:"after"`
}

type ReorderChange struct {
	ParentSelector string `json:"parentSelector"`
	TargetSelector string `json:"targetSelector,omitempty"`
	Position       string `json:"position"`
	FromIndex      int    `json:"fromIndex"`
	ToIndex        int    `json:"toIndex"`
}

type TextChange struct {
	OldText string `json:"oldText"`
	NewText string `json:"newText"`
}

type AIChange struct {
	Instruction  string            `json:"instruction"`
	Area         geom.Bounds       `json:"area"`
	Elements     []dom.ElementInfo `json:"elements,omitempty"`
	ElementCount int               `json:"elementCount"`
	Screenshot   string            `json:"screenshot,omitempty"`
}

func (TransformChange) Kind() Kind { return KindTransform }
func (ReorderChange) Kind() Kind   { return KindReorder }
func (TextChange) Kind() Kind      { return KindText }
func (AIChange) Kind() Kind        { return KindAI }

func (TransformChange) isChange() {}
func (ReorderChange) isChange()   {}
func (TextChange) isChange()      {}
func (AIChange) isChange()        {}

// Record is one accepted edit. Records never hold a live node; the target is
// re-resolved from Selector when needed.
type Record struct {
	ID        int64     `json:"id"`
	Selector  string    `json:"selector"`
	Timestamp time.Time `json:"timestamp"`
	Included  bool      `json:"included"`
	Change    Change    `json:"-"`
	Preview   string    `json:"preview,omitempty"`
}

func (r Record) Kind() Kind {
	if r.Change == nil {
		return ""
	}
	return r.Change.Kind()
}

type recordJSON struct {
	ID        int64           `json:"id"`
	Kind      Kind            `json:"kind"`
	Selector  string          `json:"selector"`
	Timestamp time.Time       `json:"timestamp"`
	Included  bool            `json:"included"`
	Preview   string          `json:"preview,omitempty"`
	Change    json.RawMessage `json:"change"`
}

func (r Record) MarshalJSON() ([]byte, error) {
	if r.Change == nil {
		return nil, fmt.Errorf("record %d has no change", r.ID)
	}
	body, err := json.Marshal(r.Change)
	if err != nil {
		return nil, err
	}
	return json.Marshal(recordJSON{
		ID:        r.ID,
		Kind:      r.Change.Kind(),
		Selector:  r.Selector,
		Timestamp: r.Timestamp,
		Included:  r.Included,
		Preview:   r.Preview,
		Change:    body,
	})
}

func (r *Record) UnmarshalJSON(b []byte) error {
	var raw recordJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	ch, err := DecodeChange(raw.Kind, raw.Change)
	if err != nil {
		return err
	}
	*r = Record{
		ID:        raw.ID,
		Selector:  raw.Selector,
		Timestamp: raw.Timestamp,
		Included:  raw.Included,
		Preview:   raw.Preview,
		Change:    ch,
	}
	return nil
}

// DecodeChange decodes a change body of the given kind.
func DecodeChange(kind Kind, body []byte) (Change, error) {
	switch kind {
	case KindTransform:
		var c TransformChange
		err := json.Unmarshal(body, &c)
		return c, err
	case KindReorder:
		var c ReorderChange
		err := json.Unmarshal(body, &c)
		return c, err
	case KindText:
		var c TextChange
		err := json.Unmarshal(body, &c)
		return c, err
	case KindAI:
		var c AIChange
		err := json.Unmarshal(body, &c)
		return c, err
	default:
		return nil, fmt.Errorf("unknown change kind: %q", kind)
	}
}

// Describe is the one-line summary shown in the history panel.
func Describe(c Change) string {
	switch c := c.(type) {
	case TransformChange:
		var parts []string
		if v, ok := c.After[dom.PropTransform]; ok && v != c.Before[dom.PropTransform] {
			if dx, dy, ok := dom.ParseTranslate(v); ok {
				parts = append(parts, fmt.Sprintf("moved to (%g, %g)", dx, dy))
			}
		}
		w, wok := c.After[dom.PropWidth]
		h, hok := c.After[dom.PropHeight]
		if (wok || hok) && (w != c.Before[dom.PropWidth] || h != c.Before[dom.PropHeight]) {
			parts = append(parts, fmt.Sprintf("resized to %s×%s", orAuto(w), orAuto(h)))
		}
		if len(parts) == 0 {
			return "Transform"
		}
		return "Transform: " + strings.Join(parts, ", ")
	case ReorderChange:
		return fmt.Sprintf("Reorder: position %d → %d", c.FromIndex+1, c.ToIndex+1)
	case TextChange:
		return fmt.Sprintf("Text: %q → %q", clip(c.OldText, 30), clip(c.NewText, 30))
	case AIChange:
		return fmt.Sprintf("AI: %s", clip(c.Instruction, 60))
	}
	return ""
}

func orAuto(s string) string {
	if s == "" {
		return "auto"
	}
	return s
}

func clip(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n-1]) + "…"
}
