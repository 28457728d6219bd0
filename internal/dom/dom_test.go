package dom

import (
	"strings"
	"testing"

	"visedit-cli/internal/geom"

	"github.com/google/go-cmp/cmp"
)

const fixture = `<!doctype html>
<html data-viewport="1000x800" data-rect="0,0,1000,800">
<body data-rect="0,0,1000,800">
  <ul id="list" style="display: flex; flex-direction: column; gap: 8px; padding: 10px" data-rect="0,0,400,300">
    <li class="item first vc-selected" data-rect="10,10,380,40">One</li>
    <li class="item" data-rect="10,58,380,40">Two</li>
    <li class="item" data-rect="10,106,380,40">Three</li>
  </ul>
  <div class="card" data-rect="500,0,300,200">
    <p class="lead" data-rect="510,10,280,40">Hello <span data-rect="560,20,40,20">there</span></p>
    <img data-rect="510,60,120,120" style="transform: translate(5px, 5px)">
  </div>
  <div class="vc-overlay" data-rect="0,0,1000,800"></div>
</body>
</html>`

func parseFixture(t *testing.T) *Document {
	t.Helper()
	doc, err := ParseHTML(strings.NewReader(fixture))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return doc
}

func TestParseHTML_ReadsLayoutAndStyles(t *testing.T) {
	doc := parseFixture(t)
	if doc.Viewport != (geom.Size{Width: 1000, Height: 800}) {
		t.Fatalf("viewport: got %+v", doc.Viewport)
	}
	list, err := doc.Query("#list")
	if err != nil || list == nil {
		t.Fatalf("query list: %v %v", list, err)
	}
	want := Computed{Display: "flex", FlexDirection: "column", Gap: 8, Padding: Edges{10, 10, 10, 10}}
	if diff := cmp.Diff(want, list.Computed); diff != "" {
		t.Fatalf("computed mismatch (-want +got):\n%s", diff)
	}
	if list.ChildCount() != 3 {
		t.Fatalf("children: got %d want 3", list.ChildCount())
	}
	img, _ := doc.Query("img")
	if img == nil {
		t.Fatalf("expected img")
	}
	if got := img.Box(); got != (geom.Bounds{X: 515, Y: 65, Width: 120, Height: 120}) {
		t.Fatalf("img box: got %+v", got)
	}
	if img.Computed.Display != "inline" {
		t.Fatalf("img display: got %q", img.Computed.Display)
	}
}

func TestSelector(t *testing.T) {
	doc := parseFixture(t)
	list, _ := doc.Query("#list")
	first := list.Children()[0]
	if got := Selector(first); got != "html > body > ul > li.item.first:nth-child(1)" {
		t.Fatalf("selector: got %q", got)
	}
	if got := Selector(list); got != "#list" {
		t.Fatalf("id selector: got %q", got)
	}
	span, _ := doc.Query("span")
	got := Selector(span)
	if got != "body > div.card > p.lead > span:nth-child(1)" {
		t.Fatalf("selector: got %q", got)
	}
	if n := strings.Count(got, ">") + 1; n > 4 {
		t.Fatalf("too many segments: %d", n)
	}
}

func TestSelectorRoundTrip(t *testing.T) {
	doc := parseFixture(t)
	for _, n := range doc.Nodes() {
		if n.IsOverlay() {
			continue
		}
		sel := Selector(n)
		got, err := doc.Query(sel)
		if err != nil {
			t.Fatalf("query %q: %v", sel, err)
		}
		if got != n {
			t.Fatalf("query %q resolved to a different node", sel)
		}
	}
}

func TestSelectorSkipsOverlayClasses(t *testing.T) {
	doc := parseFixture(t)
	list, _ := doc.Query("#list")
	if got := Selector(list.Children()[0]); strings.Contains(got, "vc-") {
		t.Fatalf("overlay class leaked into selector: %q", got)
	}
}

func TestHitTest_SkipsOverlayAndSubtree(t *testing.T) {
	doc := parseFixture(t)
	span, _ := doc.Query("span")
	if got := doc.HitTest(geom.Point{X: 570, Y: 25}, nil); got != span {
		t.Fatalf("hit: got %v want span", got)
	}
	p := span.Parent()
	got := doc.HitTest(geom.Point{X: 570, Y: 25}, func(n *Node) bool { return n == p })
	if got == nil || got.Tag != "DIV" {
		t.Fatalf("hit with skip: got %+v want card div", got)
	}
}

func TestInsertBeforeAndAfter(t *testing.T) {
	doc := parseFixture(t)
	list, _ := doc.Query("#list")
	kids := list.Children()
	a, b, c := kids[0], kids[1], kids[2]

	list.InsertBefore(c, a)
	if got := list.Children(); got[0] != c || got[1] != a || got[2] != b {
		t.Fatalf("insert before: unexpected order")
	}
	list.InsertAfter(c, b)
	if got := list.Children(); got[0] != a || got[1] != b || got[2] != c {
		t.Fatalf("insert after: unexpected order")
	}
	list.InsertBefore(a, nil)
	if a.Index() != 2 || a.Parent() != list {
		t.Fatalf("append: index %d", a.Index())
	}
	a.Remove()
	if a.Parent() != nil || list.ChildCount() != 2 {
		t.Fatalf("remove failed")
	}
}

func TestStyleSnapshotRestoresPresence(t *testing.T) {
	n := NewNode("div")
	n.SetStyle(PropOpacity, "0.5")
	snap := n.SnapshotStyles(PropOpacity, PropTransform)

	n.SetStyle(PropOpacity, "1")
	n.SetStyle(PropTransform, FormatTranslate(3, 4))
	n.RestoreStyles(snap)

	if v, ok := n.Style(PropOpacity); !ok || v != "0.5" {
		t.Fatalf("opacity: got %q %v", v, ok)
	}
	if _, ok := n.Style(PropTransform); ok {
		t.Fatalf("transform should be unset")
	}
}

func TestParseTranslate(t *testing.T) {
	dx, dy, ok := ParseTranslate("translate(12.5px, -3px)")
	if !ok || dx != 12.5 || dy != -3 {
		t.Fatalf("got %v %v %v", dx, dy, ok)
	}
	if _, _, ok := ParseTranslate("rotate(3deg)"); ok {
		t.Fatalf("expected failure")
	}
	if got := FormatTranslate(1, -2); got != "translate(1px, -2px)" {
		t.Fatalf("format: %q", got)
	}
}

func TestInfoTruncatesText(t *testing.T) {
	n := NewNode("p")
	n.Text = strings.Repeat("x", 300)
	info := Info(n)
	if len(info.InnerText) != 100 {
		t.Fatalf("inner text length %d", len(info.InnerText))
	}
	if !strings.HasPrefix(info.OuterHTML, "<p>") {
		t.Fatalf("outer html: %q", info.OuterHTML)
	}
}
