package agent

import (
	"fmt"
	"strings"

	"visedit-cli/internal/wire"
)

const areaElementLimit = 3

// FormatInstruction renders one batch as a numbered list of changes
// followed by guidance for the target codebase.
func FormatInstruction(m wire.ApplyVisualEdits, p Project) string {
	var b strings.Builder
	if m.Batch.Total > 1 {
		fmt.Fprintf(&b, "BATCH %d of %d: I made the following visual changes to elements:\n\n", m.Batch.Number, m.Batch.Total)
	} else {
		b.WriteString("I made the following visual changes to elements:\n\n")
	}

	n := 0
	for _, c := range m.Changes {
		op := c.Operation
		if op == "" {
			op = wire.OpTransform
		}
		switch op {
		case wire.OpReorder:
			rd := c.ReorderData
			if rd == nil {
				continue
			}
			n++
			fmt.Fprintf(&b, "%d. REORDER: Element '%s'\n", n, c.Selector)
			fmt.Fprintf(&b, "   - Parent container: %s\n", rd.ParentSelector)
			fmt.Fprintf(&b, "   - Move from position %d to position %d\n", rd.FromIndex, rd.ToIndex)
			if rd.InsertBeforeSelector != "" {
				fmt.Fprintf(&b, "   - Insert before: %s\n", rd.InsertBeforeSelector)
			} else if rd.InsertAfterSelector != "" {
				fmt.Fprintf(&b, "   - Insert after: %s\n", rd.InsertAfterSelector)
			}
		case wire.OpText:
			n++
			fmt.Fprintf(&b, "%d. TEXT EDIT: Element '%s'\n", n, c.Selector)
			fmt.Fprintf(&b, "   - Old text: \"%s\"\n", c.OldText)
			fmt.Fprintf(&b, "   - New text: \"%s\"\n", c.NewText)
		case wire.OpAI:
			n++
			fmt.Fprintf(&b, "%d. AI INSTRUCTION: '%s'\n", n, c.Instruction)
			fmt.Fprintf(&b, "   - Target: Element '%s'\n", c.Selector)
			fmt.Fprintf(&b, "   - Affected elements: %d\n", c.ElementCount)
			if c.Bounds != nil {
				fmt.Fprintf(&b, "   - Area: (%.0f, %.0f) - %.0f×%.0fpx\n", c.Bounds.X, c.Bounds.Y, c.Bounds.Width, c.Bounds.Height)
			}
		case wire.OpTransform:
			n++
			fmt.Fprintf(&b, "%d. TRANSFORM: Element '%s'\n", n, c.Selector)
			if v := c.Styles["transform"]; v != "" {
				fmt.Fprintf(&b, "   - Position changed: %s\n", v)
			}
			if v := c.Styles["width"]; v != "" {
				fmt.Fprintf(&b, "   - Width: %s\n", v)
			}
			if v := c.Styles["height"]; v != "" {
				fmt.Fprintf(&b, "   - Height: %s\n", v)
			}
		default:
			continue
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, `
Apply these visual changes to the %s codebase (%s styling).

For each change:
- Find the element using the selector
- Update the source code to match the changes described above
- Use the project's existing patterns and styling approach

Make the changes permanent in the appropriate files.`, p.Framework, p.Styling)
	return b.String()
}

// FormatAreaRequest renders a single-shot area instruction on one line.
func FormatAreaRequest(r wire.AreaRequest) string {
	parts := []string{
		r.Instruction,
		fmt.Sprintf("(Selected area: %.0fx%.0f pixels with %d elements:", r.Area.Width, r.Area.Height, r.Area.ElementCount),
	}
	els := r.Area.Elements
	limit := min(len(els), areaElementLimit)
	for _, el := range els[:limit] {
		desc := "<" + strings.ToLower(el.TagName) + ">"
		if el.ID != "" {
			desc += "#" + el.ID
		}
		if fields := strings.Fields(el.ClassName); len(fields) > 0 {
			desc += "." + fields[0]
		}
		parts = append(parts, desc)
	}
	if len(els) > limit {
		parts = append(parts, fmt.Sprintf("+%d more", len(els)-limit))
	}
	parts = append(parts, ")")
	return strings.Join(parts, " ")
}
