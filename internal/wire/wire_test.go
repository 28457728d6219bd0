package wire

import (
	"testing"

	"visedit-cli/internal/dom"
	"visedit-cli/internal/geom"
	"visedit-cli/internal/history"

	json "github.com/goccy/go-json"
	"github.com/google/go-cmp/cmp"
)

// encode round-trips c through JSON into a generic map so tests can assert
// on the exact keys sent to the agent.
func encode(t *testing.T, c Change) map[string]any {
	t.Helper()
	b, err := json.Marshal(c)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return m
}

func TestFromRecord(t *testing.T) {
	area := geom.Bounds{X: 10, Y: 20, Width: 300, Height: 150}
	elems := []dom.ElementInfo{{TagName: "h2", ID: "title", Selector: "#title"}}

	cases := []struct {
		name   string
		change history.Change
		want   Change
	}{
		{
			name:   "transform",
			change: history.TransformChange{After: history.Styles{"transform": "translate(10px, 20px)"}},
			want: Change{
				Selector:  "#a",
				Operation: OpTransform,
				Styles:    map[string]string{"transform": "translate(10px, 20px)", "width": "", "height": ""},
			},
		},
		{
			name:   "reorder before",
			change: history.ReorderChange{ParentSelector: "#list", TargetSelector: "#c", Position: "before", FromIndex: 0, ToIndex: 1},
			want: Change{
				Selector:    "#a",
				Operation:   OpReorder,
				ReorderData: &ReorderData{ParentSelector: "#list", FromIndex: 0, ToIndex: 1, InsertBeforeSelector: "#c"},
			},
		},
		{
			name:   "reorder after",
			change: history.ReorderChange{ParentSelector: "#list", TargetSelector: "#c", Position: "after", FromIndex: 0, ToIndex: 2},
			want: Change{
				Selector:    "#a",
				Operation:   OpReorder,
				ReorderData: &ReorderData{ParentSelector: "#list", FromIndex: 0, ToIndex: 2, InsertAfterSelector: "#c"},
			},
		},
		{
			name:   "text",
			change: history.TextChange{OldText: "Pricing", NewText: "Plans"},
			want:   Change{Selector: "#a", Operation: OpText, OldText: "Pricing", NewText: "Plans"},
		},
		{
			name:   "ai",
			change: history.AIChange{Instruction: "make it blue", Area: area, Elements: elems, ElementCount: 1, Screenshot: "data:image/png;base64,AA=="},
			want: Change{
				Selector:     "#a",
				Operation:    OpAI,
				Instruction:  "make it blue",
				Screenshot:   "data:image/png;base64,AA==",
				Bounds:       &area,
				Elements:     elems,
				ElementCount: 1,
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := FromRecord(history.Record{Selector: "#a", Change: tc.change})
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Fatalf("change (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFromRecord_EmptyTextKeepsBothKeys(t *testing.T) {
	m := encode(t, FromRecord(history.Record{
		Selector: "#title",
		Change:   history.TextChange{OldText: "Pricing", NewText: ""},
	}))
	for _, k := range []string{"oldText", "newText"} {
		if _, ok := m[k]; !ok {
			t.Fatalf("%s missing from %v", k, m)
		}
	}
	if m["newText"] != "" {
		t.Fatalf("newText: %v", m["newText"])
	}
}

func TestFromRecord_AIZeroElementCount(t *testing.T) {
	m := encode(t, FromRecord(history.Record{
		Selector: "body",
		Change:   history.AIChange{Instruction: "tidy up", Area: geom.Bounds{Width: 5, Height: 5}},
	}))
	if v, ok := m["elementCount"]; !ok || v != float64(0) {
		t.Fatalf("elementCount: %v %v", v, ok)
	}
}

func TestFromRecord_TransformSendsAllStyleKeys(t *testing.T) {
	m := encode(t, FromRecord(history.Record{
		Selector: "#pic",
		Change:   history.TransformChange{After: history.Styles{"width": "120px", "height": "80px"}},
	}))
	want := map[string]any{"transform": "", "width": "120px", "height": "80px"}
	if diff := cmp.Diff(want, m["styles"]); diff != "" {
		t.Fatalf("styles (-want +got):\n%s", diff)
	}
}
