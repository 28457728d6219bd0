package agent

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"visedit-cli/internal/wire"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const replyWait = 2 * time.Second

type ServerConfig struct {
	Addr    string
	Project Project
	Runner  Runner
	Hub     *Hub
	Log     *zap.Logger
	// RequestTimeout bounds one runner invocation. Zero means no limit.
	RequestTimeout time.Duration
}

type Server struct {
	cfg ServerConfig
	log *zap.Logger
}

func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Runner == nil {
		return nil, errors.New("agent: missing runner")
	}
	if cfg.Hub == nil {
		cfg.Hub = NewHub(cfg.Log)
	}
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{cfg: cfg, log: log}, nil
}

func (s *Server) Addr() string { return strings.TrimSpace(s.cfg.Addr) }

func (s *Server) Hub() *Hub { return s.cfg.Hub }

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "project": s.cfg.Project.String()})
	})
	r.Get("/ws/message", s.handleMessages)
	r.Get("/ws/reload", s.handleReload)
	return r
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  32 * 1024,
	WriteBufferSize: 32 * 1024,
	CheckOrigin:     localOrigin,
}

// localOrigin accepts same-host and loopback origins; pages are usually
// served by a dev server on another port.
func localOrigin(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return u.Host == r.Host
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.cfg.Hub.Add(conn)
	defer func() {
		s.cfg.Hub.Remove(conn)
		_ = conn.Close()
	}()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// replier serialises writes on one message socket.
type replier struct {
	mu   sync.Mutex
	conn *websocket.Conn
	log  *zap.Logger
}

func (p *replier) send(r wire.Reply) {
	b, err := json.Marshal(r)
	if err != nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = p.conn.SetWriteDeadline(time.Now().Add(replyWait))
	if err := p.conn.WriteMessage(websocket.TextMessage, b); err != nil {
		p.log.Warn("reply failed", zap.String("id", r.ID), zap.Error(err))
	}
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	out := &replier{conn: conn, log: s.log}
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			cancel()
			return
		}
		if mt != websocket.TextMessage {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.dispatch(ctx, out, data)
		}()
	}
}

type inbound struct {
	Type string          `json:"type"`
	ID   string          `json:"id"`
	Area json.RawMessage `json:"area"`
}

func (s *Server) dispatch(ctx context.Context, out *replier, data []byte) {
	var env inbound
	if err := json.Unmarshal(data, &env); err != nil {
		out.send(wire.Reply{Status: wire.StatusError, Error: "invalid message: " + err.Error()})
		return
	}
	switch {
	case env.Type == wire.TypeApplyVisualEdits:
		m, err := wire.DecodeApply(data)
		if err != nil {
			out.send(wire.Reply{ID: env.ID, Status: wire.StatusError, Error: "invalid message: " + err.Error()})
			return
		}
		s.run(ctx, out, env.Type, m.ID, FormatInstruction(m, s.cfg.Project),
			zap.Int("batch", m.Batch.Number), zap.Int("total", m.Batch.Total), zap.Int("changes", len(m.Changes)))
	case env.Type == "" && len(env.Area) > 0:
		var req wire.AreaRequest
		if err := json.Unmarshal(data, &req); err != nil {
			out.send(wire.Reply{ID: env.ID, Status: wire.StatusError, Error: "invalid message: " + err.Error()})
			return
		}
		s.run(ctx, out, env.Type, req.ID, FormatAreaRequest(req), zap.Int("elements", req.Area.ElementCount))
	default:
		s.log.Warn("unknown message type", zap.String("type", env.Type))
		out.send(wire.Reply{ID: env.ID, Status: wire.StatusError, Error: "unknown message type: " + env.Type})
	}
}

// run executes one instruction. Replies echo typ, the inbound message type,
// which is empty for area requests.
func (s *Server) run(ctx context.Context, out *replier, typ, id, instruction string, fields ...zap.Field) {
	out.send(wire.Reply{ID: id, Type: typ, Status: wire.StatusReceived})
	s.log.Info("instruction received", append([]zap.Field{zap.String("id", id)}, fields...)...)
	if d := s.cfg.RequestTimeout; d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	if err := s.cfg.Runner.Run(ctx, instruction); err != nil {
		s.log.Error("instruction failed", zap.String("id", id), zap.Error(err))
		out.send(wire.Reply{ID: id, Type: typ, Status: wire.StatusError, Error: err.Error()})
		return
	}
	out.send(wire.Reply{ID: id, Type: typ, Status: wire.StatusComplete})
}

// ListenAndServe serves until ctx ends.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.Addr(),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
