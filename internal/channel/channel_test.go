package channel

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"visedit-cli/internal/wire"

	json "github.com/goccy/go-json"
	"github.com/google/go-cmp/cmp"
	"github.com/gorilla/websocket"
	"go.uber.org/goleak"
	"golang.org/x/sync/errgroup"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// ackServer answers every apply message with received then complete, and
// prefixes the exchange with a reply for an id nobody asked about.
func ackServer(t *testing.T) *httptest.Server {
	t.Helper()
	up := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		_ = ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"reload"}`))
		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			var env wire.Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				continue
			}
			for _, st := range []wire.Status{wire.StatusReceived, wire.StatusComplete} {
				b, _ := json.Marshal(wire.Reply{ID: env.ID, Status: st})
				if err := ws.WriteMessage(websocket.TextMessage, b); err != nil {
					return
				}
			}
		}
	}))
}

func wsURL(s *httptest.Server) string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func TestSendAndReceiveReplies(t *testing.T) {
	srv := ackServer(t)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := Dial(ctx, wsURL(srv), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	got := make(chan wire.Reply, 4)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return conn.Run(gctx, func(r wire.Reply) { got <- r })
	})

	msg := wire.ApplyVisualEdits{Type: wire.TypeApplyVisualEdits, ID: "b1", Batch: wire.BatchInfo{Number: 1, Total: 1}}
	if err := conn.Send(ctx, msg); err != nil {
		t.Fatalf("send: %v", err)
	}

	var replies []wire.Reply
	for len(replies) < 2 {
		select {
		case r := <-got:
			replies = append(replies, r)
		case <-ctx.Done():
			t.Fatalf("timed out waiting for replies")
		}
	}
	want := []wire.Reply{
		{ID: "b1", Status: wire.StatusReceived},
		{ID: "b1", Status: wire.StatusComplete},
	}
	if diff := cmp.Diff(want, replies); diff != "" {
		t.Fatalf("replies mismatch (-want +got):\n%s", diff)
	}

	if err := conn.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("run: %v", err)
	}
	if err := conn.Send(ctx, msg); err != ErrClosed {
		t.Fatalf("send after close: got %v want ErrClosed", err)
	}
}

func TestRunStopsOnContext(t *testing.T) {
	srv := ackServer(t)
	defer srv.Close()

	conn, err := Dial(context.Background(), wsURL(srv), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- conn.Run(ctx, func(wire.Reply) {}) }()
	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("run: got %v want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("run did not stop")
	}
}

func TestDialFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	if _, err := Dial(context.Background(), wsURL(srv), nil); err == nil {
		t.Fatalf("expected dial error")
	}
}
