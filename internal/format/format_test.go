package format

import (
	"bytes"
	"testing"
)

type row struct {
	ID       int64             `json:"id"`
	Selector string            `json:"selector"`
	Included bool              `json:"included"`
	Styles   map[string]string `json:"styles,omitempty"`
	Tags     []string          `json:"tags"`
	Parent   *row              `json:"parent"`
}

func TestWrite(t *testing.T) {
	v := row{ID: 9007199254740993, Selector: "#a", Included: true, Styles: map[string]string{"width": "10px"}, Tags: []string{}}
	cases := []struct {
		name   string
		format string
		pretty bool
		want   string
	}{
		{"json", "json", false, `{"id":9007199254740993,"selector":"#a","included":true,"styles":{"width":"10px"},"tags":[],"parent":null}` + "\n"},
		{"default", "", false, `{"id":9007199254740993,"selector":"#a","included":true,"styles":{"width":"10px"},"tags":[],"parent":null}` + "\n"},
		{"edn", "edn", false, `{:id 9007199254740993 :included true :parent nil :selector "#a" :styles {:width "10px"} :tags []}` + "\n"},
		{"edn pretty", "edn", true, "{\n  :id 9007199254740993\n  :included true\n  :parent nil\n  :selector \"#a\"\n  :styles {\n    :width \"10px\"\n  }\n  :tags []\n}\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := Write(&buf, v, tc.format, tc.pretty); err != nil {
				t.Fatalf("write: %v", err)
			}
			if got := buf.String(); got != tc.want {
				t.Fatalf("got:\n%s\nwant:\n%s", got, tc.want)
			}
		})
	}
}

func TestWriteUnknownFormat(t *testing.T) {
	if err := Write(&bytes.Buffer{}, 1, "yaml", false); err == nil {
		t.Fatalf("expected error")
	}
}
