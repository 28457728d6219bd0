// Package wire defines the messages exchanged with the remote agent over the
// message socket.
package wire

import (
	"visedit-cli/internal/dom"
	"visedit-cli/internal/geom"
	"visedit-cli/internal/history"

	json "github.com/goccy/go-json"
)

const (
	TypeApplyVisualEdits = "apply-visual-edits"
	TypeReload           = "reload"
)

type Status string

const (
	StatusReceived Status = "received"
	StatusComplete Status = "complete"
	StatusError    Status = "error"
)

// Terminal reports whether s settles a request.
func (s Status) Terminal() bool { return s == StatusComplete || s == StatusError }

// Operation is the per-change operation name understood by the agent.
type Operation string

const (
	OpTransform Operation = "transform"
	OpReorder   Operation = "reorder"
	OpText      Operation = "text"
	OpAI        Operation = "ai"
)

type ReorderData struct {
	ParentSelector       string `json:"parentSelector"`
	FromIndex            int    `json:"fromIndex"`
	ToIndex              int    `json:"toIndex"`
	InsertBeforeSelector string `json:"insertBeforeSelector,omitempty"`
	InsertAfterSelector  string `json:"insertAfterSelector,omitempty"`
}

// Change is one ledger record as sent to the agent.
type Change struct {
	Selector     string            `json:"selector"`
	Operation    Operation         `json:"operation"`
	Styles       map[string]string `json:"styles,omitempty"`
	ReorderData  *ReorderData      `json:"reorderData,omitempty"`
	OldText      string            `json:"oldText"`
	NewText      string            `json:"newText"`
	Instruction  string            `json:"instruction,omitempty"`
	Screenshot   string            `json:"screenshot,omitempty"`
	Bounds       *geom.Bounds      `json:"bounds,omitempty"`
	Elements     []dom.ElementInfo `json:"elements,omitempty"`
	ElementCount int               `json:"elementCount"`
}

type BatchInfo struct {
	Number int `json:"number"`
	Total  int `json:"total"`
}

// ApplyVisualEdits carries one batch of changes.
type ApplyVisualEdits struct {
	Type    string    `json:"type"`
	ID      string    `json:"id"`
	Changes []Change  `json:"changes"`
	Batch   BatchInfo `json:"batch"`
}

// Reply is a status message from the agent. ID correlates it with the
// request it answers.
type Reply struct {
	ID     string `json:"id,omitempty"`
	Type   string `json:"type,omitempty"`
	Status Status `json:"status"`
	Error  string `json:"error,omitempty"`
}

// AreaRequest is a single-shot instruction about a selected screen area.
type AreaRequest struct {
	ID          string `json:"id"`
	Area        Area   `json:"area"`
	Instruction string `json:"instruction"`
	Screenshot  string `json:"screenshot,omitempty"`
}

type Area struct {
	X            float64           `json:"x"`
	Y            float64           `json:"y"`
	Width        float64           `json:"width"`
	Height       float64           `json:"height"`
	ElementCount int               `json:"elementCount"`
	Elements     []dom.ElementInfo `json:"elements"`
}

// Reload tells connected pages to reload.
type Reload struct {
	Type string `json:"type"`
}

// Envelope is used to sniff the type of an inbound message.
type Envelope struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// FromRecord converts a ledger record into its wire form. Every change
// variant must be handled here.
func FromRecord(r history.Record) Change {
	out := Change{Selector: r.Selector}
	switch c := r.Change.(type) {
	case history.TransformChange:
		out.Operation = OpTransform
		out.Styles = make(map[string]string, len(history.TransformProps))
		for _, p := range history.TransformProps {
			out.Styles[p] = c.After[p]
		}
	case history.ReorderChange:
		out.Operation = OpReorder
		rd := &ReorderData{
			ParentSelector: c.ParentSelector,
			FromIndex:      c.FromIndex,
			ToIndex:        c.ToIndex,
		}
		if c.Position == "before" {
			rd.InsertBeforeSelector = c.TargetSelector
		} else {
			rd.InsertAfterSelector = c.TargetSelector
		}
		out.ReorderData = rd
	case history.TextChange:
		out.Operation = OpText
		out.OldText = c.OldText
		out.NewText = c.NewText
	case history.AIChange:
		out.Operation = OpAI
		out.Instruction = c.Instruction
		out.Screenshot = c.Screenshot
		b := c.Area
		out.Bounds = &b
		out.Elements = c.Elements
		out.ElementCount = c.ElementCount
	}
	return out
}

// DecodeApply parses an apply-visual-edits message.
func DecodeApply(b []byte) (ApplyVisualEdits, error) {
	var m ApplyVisualEdits
	err := json.Unmarshal(b, &m)
	return m, err
}
