// Package channel is the client side of the persistent message socket to the
// remote agent.
package channel

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"visedit-cli/internal/wire"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const writeWait = 10 * time.Second

var ErrClosed = errors.New("channel closed")

// Handler receives each inbound reply.
type Handler func(wire.Reply)

// Conn is one open socket. Writes are serialised; one goroutine reads.
type Conn struct {
	ws  *websocket.Conn
	log *zap.Logger

	wmu    sync.Mutex
	closed chan struct{}
	once   sync.Once
}

// Dial opens the socket at url.
func Dial(ctx context.Context, url string, log *zap.Logger) (*Conn, error) {
	if log == nil {
		log = zap.NewNop()
	}
	d := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
		ReadBufferSize:   32 * 1024,
		WriteBufferSize:  32 * 1024,
	}
	ws, resp, err := d.DialContext(ctx, url, http.Header{})
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return &Conn{ws: ws, log: log, closed: make(chan struct{})}, nil
}

// Send writes v as one JSON text frame.
func (c *Conn) Send(ctx context.Context, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	select {
	case <-c.closed:
		return ErrClosed
	default:
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = c.ws.SetWriteDeadline(deadline)
	return c.ws.WriteMessage(websocket.TextMessage, b)
}

// Run reads replies until the socket closes or ctx ends. Frames that are not
// status replies are logged and skipped.
func (c *Conn) Run(ctx context.Context, h Handler) error {
	stop := context.AfterFunc(ctx, func() { _ = c.Close() })
	defer stop()
	for {
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			select {
			case <-c.closed:
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return nil
			default:
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		if mt != websocket.TextMessage {
			continue
		}
		var r wire.Reply
		if err := json.Unmarshal(data, &r); err != nil || r.Status == "" {
			c.log.Debug("ignoring frame", zap.ByteString("data", truncate(data, 200)))
			continue
		}
		h(r)
	}
}

// Close sends a close frame and releases the socket. It is safe to call
// more than once.
func (c *Conn) Close() error {
	var err error
	c.once.Do(func() {
		close(c.closed)
		c.wmu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.wmu.Unlock()
		err = c.ws.Close()
	})
	return err
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
