package agent

import (
	"context"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"visedit-cli/internal/dom"
	"visedit-cli/internal/geom"
	"visedit-cli/internal/wire"

	json "github.com/goccy/go-json"
	"github.com/google/go-cmp/cmp"
	"github.com/gorilla/websocket"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestFormatInstruction(t *testing.T) {
	m := wire.ApplyVisualEdits{
		Type:  wire.TypeApplyVisualEdits,
		ID:    "b1",
		Batch: wire.BatchInfo{Number: 1, Total: 2},
		Changes: []wire.Change{
			{Selector: "#hero", Styles: map[string]string{"transform": "translate(10px, 0px)", "width": "200px"}},
			{Selector: "li.item:nth-child(1)", Operation: wire.OpReorder, ReorderData: &wire.ReorderData{
				ParentSelector: "ul", FromIndex: 0, ToIndex: 2, InsertAfterSelector: "li.item:nth-child(3)",
			}},
			{Selector: "h1", Operation: wire.OpText, OldText: "Hello", NewText: "Hi"},
			{Selector: "#card", Operation: wire.OpAI, Instruction: "make it blue", ElementCount: 3,
				Bounds: &geom.Bounds{X: 10, Y: 20, Width: 300, Height: 150}},
			{Selector: "#broken", Operation: wire.OpReorder},
		},
	}
	got := FormatInstruction(m, Project{Framework: "vue", Styling: "tailwind"})
	want := "BATCH 1 of 2: I made the following visual changes to elements:\n\n" +
		"1. TRANSFORM: Element '#hero'\n" +
		"   - Position changed: translate(10px, 0px)\n" +
		"   - Width: 200px\n\n" +
		"2. REORDER: Element 'li.item:nth-child(1)'\n" +
		"   - Parent container: ul\n" +
		"   - Move from position 0 to position 2\n" +
		"   - Insert after: li.item:nth-child(3)\n\n" +
		"3. TEXT EDIT: Element 'h1'\n" +
		"   - Old text: \"Hello\"\n" +
		"   - New text: \"Hi\"\n\n" +
		"4. AI INSTRUCTION: 'make it blue'\n" +
		"   - Target: Element '#card'\n" +
		"   - Affected elements: 3\n" +
		"   - Area: (10, 20) - 300×150px\n\n" +
		"\nApply these visual changes to the vue codebase (tailwind styling).\n\n" +
		"For each change:\n" +
		"- Find the element using the selector\n" +
		"- Update the source code to match the changes described above\n" +
		"- Use the project's existing patterns and styling approach\n\n" +
		"Make the changes permanent in the appropriate files."
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("instruction mismatch (-want +got):\n%s", diff)
	}
}

func TestFormatInstructionSingleBatchHeader(t *testing.T) {
	got := FormatInstruction(wire.ApplyVisualEdits{Batch: wire.BatchInfo{Number: 1, Total: 1}}, FallbackProject)
	if !strings.HasPrefix(got, "I made the following visual changes to elements:\n\n") {
		t.Fatalf("header: %q", got)
	}
}

func TestFormatAreaRequest(t *testing.T) {
	req := wire.AreaRequest{
		Instruction: "tighten spacing",
		Area: wire.Area{Width: 400, Height: 120, ElementCount: 5, Elements: []dom.ElementInfo{
			{TagName: "DIV", ID: "a", ClassName: "row wide"},
			{TagName: "P", ClassName: "lead"},
			{TagName: "SPAN"},
			{TagName: "A"},
			{TagName: "B"},
		}},
	}
	got := FormatAreaRequest(req)
	want := "tighten spacing (Selected area: 400x120 pixels with 5 elements: <div>#a.row <p>.lead <span> +2 more )"
	if got != want {
		t.Fatalf("got %q\nwant %q", got, want)
	}
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestAnalyzeProject(t *testing.T) {
	cases := []struct {
		name  string
		files map[string]string
		want  Project
	}{
		{
			name:  "plain",
			files: map[string]string{"index.html": "<html></html>"},
			want:  Project{Framework: "html", Styling: "css"},
		},
		{
			name: "react tailwind typescript",
			files: map[string]string{
				"package.json": `{"dependencies":{"react":"18","tailwindcss":"3"},"devDependencies":{"typescript":"5"}}`,
			},
			want: Project{Framework: "react", Styling: "tailwind", TypeScript: true},
		},
		{
			name: "vue emotion",
			files: map[string]string{
				"package.json": `{"dependencies":{"vue":"3","@emotion/styled":"11"}}`,
			},
			want: Project{Framework: "vue", Styling: "emotion"},
		},
		{
			name: "css modules and tsx files",
			files: map[string]string{
				"package.json":            `{"dependencies":{"svelte":"4"}}`,
				"src/App.module.css":      ".a{}",
				"src/main.tsx":            "",
				"node_modules/x/index.ts": "",
			},
			want: Project{Framework: "svelte", Styling: "css-modules", TypeScript: true},
		},
		{
			name: "skipped dirs ignored",
			files: map[string]string{
				"package.json":                 `{"dependencies":{"@angular/core":"17"}}`,
				"node_modules/x/a.module.scss": "",
				"dist/app.ts":                  "",
			},
			want: Project{Framework: "angular", Styling: "css"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			for name, body := range tc.files {
				writeFile(t, filepath.Join(dir, name), body)
			}
			got, err := AnalyzeProject(dir)
			if err != nil {
				t.Fatalf("analyze: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got %+v want %+v", got, tc.want)
			}
		})
	}
}

func TestAnalyzeProjectBadManifest(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "package.json"), "{")
	if _, err := AnalyzeProject(dir); err == nil {
		t.Fatalf("expected error")
	}
}

func TestProjectString(t *testing.T) {
	if got := (Project{Framework: "react", Styling: "css", TypeScript: true}).String(); got != "react + css (TypeScript)" {
		t.Fatalf("got %q", got)
	}
}

func TestParseEvent(t *testing.T) {
	ev, err := ParseEvent(`{"type":"tool_use","name":"Edit"}`)
	if err != nil || ev.Type != "tool_use" || ev.Content != "Edit" {
		t.Fatalf("got %+v err %v", ev, err)
	}
	for _, line := range []string{"", "plain text", `{"no":"type"}`, `{broken`} {
		if _, err := ParseEvent(line); err == nil {
			t.Fatalf("%q: expected error", line)
		}
	}
}

func TestCommandRunnerArgs(t *testing.T) {
	r := &CommandRunner{Path: "agent"}
	got := r.args("do it")
	if got[0] != "--print" || got[1] != "do it" {
		t.Fatalf("args: %v", got)
	}
	r.Args = []string{"-m", "{instruction}!"}
	if diff := cmp.Diff([]string{"-m", "do it!"}, r.args("do it")); diff != "" {
		t.Fatalf("args mismatch (-want +got):\n%s", diff)
	}
}

func TestCommandRunnerStreamsEvents(t *testing.T) {
	sh, err := lookSh()
	if err != nil {
		t.Skip("no shell available")
	}
	var events []Event
	r := &CommandRunner{
		Path:    sh,
		Args:    []string{"-c", `echo '{"type":"content","content":"{instruction}"}'; echo noise`},
		Dir:     t.TempDir(),
		OnEvent: func(ev Event) { events = append(events, ev) },
	}
	if err := r.Run(context.Background(), "ok"); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(events) != 1 || events[0].Content != "ok" {
		t.Fatalf("events: %+v", events)
	}

	r.Args = []string{"-c", "exit 3"}
	err = r.Run(context.Background(), "x")
	var ee *ExitError
	if !errors.As(err, &ee) {
		t.Fatalf("err: got %v want ExitError", err)
	}
}

func lookSh() (string, error) {
	for _, p := range []string{"/bin/sh", "/usr/bin/sh"} {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", os.ErrNotExist
}

func dialWS(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", path, err)
	}
	return c
}

func readReply(t *testing.T, c *websocket.Conn) wire.Reply {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := c.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var r wire.Reply
	if err := json.Unmarshal(data, &r); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return r
}

func newTestServer(t *testing.T, runner Runner) *httptest.Server {
	t.Helper()
	s, err := NewServer(ServerConfig{Project: FallbackProject, Runner: runner})
	if err != nil {
		t.Fatalf("server: %v", err)
	}
	return httptest.NewServer(s.Handler())
}

func TestServerAcknowledgesThenCompletes(t *testing.T) {
	runner := &LogRunner{}
	srv := newTestServer(t, runner)
	defer srv.Close()
	c := dialWS(t, srv, "/ws/message")
	defer c.Close()

	msg := wire.ApplyVisualEdits{
		Type: wire.TypeApplyVisualEdits, ID: "batch-1",
		Batch:   wire.BatchInfo{Number: 1, Total: 1},
		Changes: []wire.Change{{Selector: "h1", Operation: wire.OpText, OldText: "a", NewText: "b"}},
	}
	if err := c.WriteJSON(msg); err != nil {
		t.Fatalf("write: %v", err)
	}
	if r := readReply(t, c); r.ID != "batch-1" || r.Type != wire.TypeApplyVisualEdits || r.Status != wire.StatusReceived {
		t.Fatalf("first reply: %+v", r)
	}
	if r := readReply(t, c); r.ID != "batch-1" || r.Type != wire.TypeApplyVisualEdits || r.Status != wire.StatusComplete {
		t.Fatalf("second reply: %+v", r)
	}
	runs := runner.Runs()
	if len(runs) != 1 || !strings.Contains(runs[0], "1. TEXT EDIT: Element 'h1'") {
		t.Fatalf("runs: %q", runs)
	}
}

func TestServerReportsRunnerError(t *testing.T) {
	srv := newTestServer(t, &LogRunner{Err: errors.New("exit status 1")})
	defer srv.Close()
	c := dialWS(t, srv, "/ws/message")
	defer c.Close()

	req := wire.AreaRequest{ID: "req-9", Instruction: "bigger", Area: wire.Area{Width: 10, Height: 10}}
	if err := c.WriteJSON(req); err != nil {
		t.Fatalf("write: %v", err)
	}
	if r := readReply(t, c); r.Status != wire.StatusReceived || r.Type != "" {
		t.Fatalf("first reply: %+v", r)
	}
	r := readReply(t, c)
	if r.ID != "req-9" || r.Type != "" || r.Status != wire.StatusError || r.Error != "exit status 1" {
		t.Fatalf("second reply: %+v", r)
	}
}

func TestServerAreaRepliesCarryNoBatchType(t *testing.T) {
	runner := &LogRunner{}
	srv := newTestServer(t, runner)
	defer srv.Close()
	c := dialWS(t, srv, "/ws/message")
	defer c.Close()

	req := wire.AreaRequest{ID: "req-3", Instruction: "center this", Area: wire.Area{Width: 40, Height: 40}}
	if err := c.WriteJSON(req); err != nil {
		t.Fatalf("write: %v", err)
	}
	for _, want := range []wire.Status{wire.StatusReceived, wire.StatusComplete} {
		r := readReply(t, c)
		if r.ID != "req-3" || r.Status != want || r.Type != "" {
			t.Fatalf("reply: %+v want status %s with no type", r, want)
		}
	}
	if runs := runner.Runs(); len(runs) != 1 {
		t.Fatalf("runs: %q", runs)
	}
}

type blockingRunner struct{}

func (blockingRunner) Run(ctx context.Context, _ string) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestServerRequestTimeout(t *testing.T) {
	s, err := NewServer(ServerConfig{Project: FallbackProject, Runner: blockingRunner{}, RequestTimeout: 50 * time.Millisecond})
	if err != nil {
		t.Fatalf("server: %v", err)
	}
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()
	c := dialWS(t, srv, "/ws/message")
	defer c.Close()

	msg := wire.ApplyVisualEdits{Type: wire.TypeApplyVisualEdits, ID: "slow", Batch: wire.BatchInfo{Number: 1, Total: 1}}
	if err := c.WriteJSON(msg); err != nil {
		t.Fatalf("write: %v", err)
	}
	if r := readReply(t, c); r.Status != wire.StatusReceived {
		t.Fatalf("first reply: %+v", r)
	}
	r := readReply(t, c)
	if r.ID != "slow" || r.Status != wire.StatusError || !strings.Contains(r.Error, "deadline exceeded") {
		t.Fatalf("second reply: %+v", r)
	}
}

func TestServerRejectsMalformed(t *testing.T) {
	srv := newTestServer(t, &LogRunner{})
	defer srv.Close()
	c := dialWS(t, srv, "/ws/message")
	defer c.Close()

	if err := c.WriteMessage(websocket.TextMessage, []byte(`{"type":"apply-visual-edits","id":"x","changes":"nope"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if r := readReply(t, c); r.ID != "x" || r.Status != wire.StatusError {
		t.Fatalf("reply: %+v", r)
	}
	if err := c.WriteMessage(websocket.TextMessage, []byte(`{"type":"mystery","id":"y"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if r := readReply(t, c); r.ID != "y" || r.Status != wire.StatusError {
		t.Fatalf("reply: %+v", r)
	}
}

func TestReloadBroadcast(t *testing.T) {
	s, err := NewServer(ServerConfig{Runner: &LogRunner{}})
	if err != nil {
		t.Fatalf("server: %v", err)
	}
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()
	c := dialWS(t, srv, "/ws/reload")
	defer c.Close()

	deadline := time.Now().Add(5 * time.Second)
	for s.Hub().Len() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("reload client never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}
	s.Hub().Broadcast([]byte(`{"type":"reload"}`))
	_ = c.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := c.ReadMessage()
	if err != nil || string(data) != `{"type":"reload"}` {
		t.Fatalf("got %s err %v", data, err)
	}
}

func TestRelevant(t *testing.T) {
	for path, want := range map[string]bool{
		"src/App.vue": true, "a.tsx": true, "style.less": true, "index.html": true,
		"README.md": false, "go.mod": false, "image.png": false,
	} {
		if got := Relevant(path); got != want {
			t.Fatalf("%s: got %v want %v", path, got, want)
		}
	}
}

func TestReloaderDebounces(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "src", "app.css"), "a{}")

	var fired atomic.Int32
	r, err := NewReloader(dir, func() { fired.Add(1) }, nil)
	if err != nil {
		t.Fatalf("reloader: %v", err)
	}
	r.Debounce = 100 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	writeFile(t, filepath.Join(dir, "notes.md"), "ignored")
	for i := 0; i < 3; i++ {
		writeFile(t, filepath.Join(dir, "src", "app.css"), strings.Repeat("b", i+1))
	}

	deadline := time.Now().Add(5 * time.Second)
	for fired.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	time.Sleep(300 * time.Millisecond)
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := fired.Load(); got != 1 {
		t.Fatalf("notifications: got %d want 1", got)
	}
}
