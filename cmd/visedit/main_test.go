package main

import (
	"reflect"
	"testing"
)

func TestRewritePageArgs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{
			name: "no args",
			in:   []string{"visedit"},
			want: []string{"visedit"},
		},
		{
			name: "url first token",
			in:   []string{"visedit", "http://localhost:3000"},
			want: []string{"visedit", "edit", "--url", "http://localhost:3000"},
		},
		{
			name: "html file",
			in:   []string{"visedit", "testdata/Page.HTML"},
			want: []string{"visedit", "edit", "--file", "testdata/Page.HTML"},
		},
		{
			name: "url after value flag",
			in:   []string{"visedit", "--store", "/tmp/v.db", "https://example.test"},
			want: []string{"visedit", "--store", "/tmp/v.db", "edit", "--url", "https://example.test"},
		},
		{
			name: "url after equals flag",
			in:   []string{"visedit", "--store=/tmp/v.db", "https://example.test"},
			want: []string{"visedit", "--store=/tmp/v.db", "edit", "--url", "https://example.test"},
		},
		{
			name: "url after bool flag",
			in:   []string{"visedit", "--pretty", "https://example.test"},
			want: []string{"visedit", "--pretty", "edit", "--url", "https://example.test"},
		},
		{
			name: "url after double dash",
			in:   []string{"visedit", "--", "https://example.test"},
			want: []string{"visedit", "edit", "--url", "https://example.test"},
		},
		{
			name: "subcommand not rewritten",
			in:   []string{"visedit", "history", "list"},
			want: []string{"visedit", "history", "list"},
		},
		{
			name: "explicit edit not rewritten",
			in:   []string{"visedit", "edit", "--url", "http://localhost:3000"},
			want: []string{"visedit", "edit", "--url", "http://localhost:3000"},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := rewritePageArgs(append([]string(nil), tt.in...))
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("rewritePageArgs(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
