package capture

import (
	"testing"

	"visedit-cli/internal/dom"
	"visedit-cli/internal/geom"

	json "github.com/goccy/go-json"
)

const snapshotFixture = `{
  "viewport": {"width": 1024, "height": 700},
  "root": {
    "tag": "HTML", "rect": {"x":0,"y":0,"width":1024,"height":700},
    "style": {"display":"block"},
    "children": [{
      "tag": "BODY", "rect": {"x":0,"y":0,"width":1024,"height":700},
      "style": {"display":"block","padding":[8,8,8,8]},
      "children": [{
        "tag": "UL", "id": "menu", "classes": ["nav"],
        "rect": {"x":8,"y":8,"width":300,"height":130},
        "style": {"display":"flex","flexDirection":"column","gap":"10px 4px","lineHeight":"normal"},
        "children": [
          {"tag":"LI","text":"  One ","rect":{"x":8,"y":8,"width":300,"height":40},"style":{"display":"list-item","lineHeight":"24px"},
           "inline":{"transform":"translate(5px, 0px)","width":""}},
          {"tag":"LI","text":"Two","attrs":{"data-k":"2"},"rect":{"x":8,"y":58,"width":300,"height":40},"style":{"display":"list-item","visibility":"hidden"}}
        ]
      }]
    }]
  }
}`

func TestSnapshotDocument(t *testing.T) {
	var snap Snapshot
	if err := json.Unmarshal([]byte(snapshotFixture), &snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	doc := snap.Document()
	if doc.Viewport != (geom.Size{Width: 1024, Height: 700}) {
		t.Fatalf("viewport: %+v", doc.Viewport)
	}
	if got := doc.Body().Computed.Padding; got != (dom.Edges{Top: 8, Right: 8, Bottom: 8, Left: 8}) {
		t.Fatalf("body padding: %+v", got)
	}

	ul, err := doc.Query("#menu")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if ul.Computed.Gap != 10 || ul.Computed.FlexDirection != "column" || ul.Computed.LineHeight != 0 {
		t.Fatalf("ul computed: %+v", ul.Computed)
	}
	items := ul.Children()
	if len(items) != 2 {
		t.Fatalf("children: %d", len(items))
	}
	if items[0].Text != "One" || items[0].Computed.LineHeight != 24 {
		t.Fatalf("first item: %+v", items[0])
	}
	if v, ok := items[0].Style(dom.PropTransform); !ok || v != "translate(5px, 0px)" {
		t.Fatalf("inline transform: %q %v", v, ok)
	}
	if _, ok := items[0].Style(dom.PropWidth); ok {
		t.Fatalf("empty inline values should be dropped")
	}
	if items[1].Visible() || items[1].Attrs["data-k"] != "2" {
		t.Fatalf("second item: %+v", items[1])
	}
}

func TestEmptySnapshot(t *testing.T) {
	doc := Snapshot{}.Document()
	if doc.Root == nil || doc.Viewport != dom.DefaultViewport {
		t.Fatalf("got %+v", doc)
	}
}
