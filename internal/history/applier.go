package history

import (
	"fmt"

	"visedit-cli/internal/dom"
	"visedit-cli/internal/layout"
)

type TargetNotFoundError struct {
	Selector string
}

func (e TargetNotFoundError) Error() string {
	return fmt.Sprintf("no element matches %s", e.Selector)
}

// DocumentApplier reverts and reapplies records against a live document.
// Targets are resolved from the record's selector at the time of the call.
type DocumentApplier struct {
	Doc *dom.Document
}

func (a DocumentApplier) resolve(sel string) (*dom.Node, error) {
	n, err := a.Doc.Query(sel)
	if err != nil {
		return nil, err
	}
	if n == nil {
		return nil, TargetNotFoundError{Selector: sel}
	}
	return n, nil
}

func (a DocumentApplier) Revert(r Record) error {
	switch c := r.Change.(type) {
	case TransformChange:
		n, err := a.resolve(r.Selector)
		if err != nil {
			return err
		}
		applyStyles(n, c.Before)
		return nil
	case TextChange:
		n, err := a.resolve(r.Selector)
		if err != nil {
			return err
		}
		n.SetText(c.OldText)
		return nil
	case ReorderChange:
		return &IrrevertibleError{ID: r.ID, Kind: KindReorder}
	case AIChange:
		return nil
	default:
		return fmt.Errorf("unknown change type %T", r.Change)
	}
}

func (a DocumentApplier) Reapply(r Record) error {
	switch c := r.Change.(type) {
	case TransformChange:
		n, err := a.resolve(r.Selector)
		if err != nil {
			return err
		}
		applyStyles(n, c.After)
		return nil
	case TextChange:
		n, err := a.resolve(r.Selector)
		if err != nil {
			return err
		}
		n.SetText(c.NewText)
		return nil
	case ReorderChange:
		parent, err := a.resolve(c.ParentSelector)
		if err != nil {
			return err
		}
		kids := parent.Children()
		if c.FromIndex < 0 || c.FromIndex >= len(kids) || c.ToIndex < 0 || c.ToIndex >= len(kids) {
			return fmt.Errorf("reorder indices %d→%d out of range", c.FromIndex, c.ToIndex)
		}
		n := kids[c.FromIndex]
		n.Remove()
		rest := parent.Children()
		if c.ToIndex >= len(rest) {
			parent.AppendChild(n)
		} else {
			parent.InsertBefore(n, rest[c.ToIndex])
		}
		layout.Reflow(parent)
		return nil
	case AIChange:
		return nil
	default:
		return fmt.Errorf("unknown change type %T", r.Change)
	}
}

// applyStyles sets every transform property from s, clearing those absent.
func applyStyles(n *dom.Node, s Styles) {
	for _, p := range TransformProps {
		if v, ok := s[p]; ok {
			n.SetStyle(p, v)
		} else {
			n.ClearStyle(p)
		}
	}
}
