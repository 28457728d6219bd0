package cli

import (
	"strings"

	"visedit-cli/internal/dom"
	"visedit-cli/internal/droptarget"
	"visedit-cli/internal/editor"
	"visedit-cli/internal/geom"
	"visedit-cli/internal/layout"

	"github.com/spf13/cobra"
)

type placement struct {
	Valid  bool   `json:"valid"`
	Parent string `json:"parent,omitempty"`
	Reason string `json:"reason,omitempty"`
}

type inspectResult struct {
	Element      dom.ElementInfo     `json:"element"`
	Box          geom.Bounds         `json:"box"`
	Parent       string              `json:"parent,omitempty"`
	Layout       layout.Context      `json:"layout"`
	Arrangement  *layout.Arrangement `json:"arrangement"`
	DominantAxis string              `json:"dominantAxis"`
	Placement    placement           `json:"placement"`
	MinimumSize  geom.Size           `json:"minimumSize"`
	TextEditable bool                `json:"textEditable"`
}

func newInspectCmd(app *App) *cobra.Command {
	var url, file, selector string
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show how the editor sees an element (layout, reorder axis, drop validity, minimum size)",
		Example: `  visedit inspect --file page.html --selector "#hero"
  visedit inspect --url http://localhost:3000 --selector "ul > li:nth-child(2)" --format edn`,
		RunE: func(cmd *cobra.Command, args []string) error {
			selector = strings.TrimSpace(selector)
			if selector == "" {
				return writeErr(cmd, errInvalidArg("selector", selector, "a CSS selector"))
			}
			doc, br, err := loadDocument(cmd.Context(), app, url, file)
			if err != nil {
				return writeErr(cmd, err)
			}
			if br != nil {
				defer br.Close()
			}
			n, err := doc.Query(selector)
			if err != nil {
				return writeErr(cmd, err)
			}
			if n == nil {
				return writeErr(cmd, errNotFound("element", selector))
			}
			return writeOut(cmd, app, inspect(doc, n))
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "Page URL to load in the browser")
	cmd.Flags().StringVar(&file, "file", "", "HTML snapshot with data-rect boxes")
	cmd.Flags().StringVar(&selector, "selector", "", "Element to inspect")
	return cmd
}

func inspect(doc *dom.Document, n *dom.Node) inspectResult {
	ctx := layout.Classify(n.Parent())
	arr := layout.Arrange(n)
	res := inspectResult{
		Element:      dom.Info(n),
		Box:          n.Box(),
		Parent:       dom.Selector(n.Parent()),
		Layout:       ctx,
		Arrangement:  arr,
		DominantAxis: layout.DominantAxis(ctx, arr).String(),
		MinimumSize:  layout.MinimumSize(n),
		TextEditable: editor.Editable(n),
	}
	drop := droptarget.Find(doc, n.Box().Center(), n)
	res.Placement = placement{Valid: drop.Valid(), Reason: drop.Reason}
	if drop.Valid() {
		res.Placement.Parent = dom.Selector(drop.Target)
	}
	return res
}
