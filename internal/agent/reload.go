package agent

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const DefaultReloadDebounce = 300 * time.Millisecond

var reloadExts = map[string]bool{
	".vue": true, ".jsx": true, ".tsx": true, ".js": true, ".ts": true,
	".css": true, ".scss": true, ".sass": true, ".less": true, ".html": true,
}

// Relevant reports whether a change to path should reload pages.
func Relevant(path string) bool { return reloadExts[filepath.Ext(path)] }

// Hub fans reload notices out to connected page sockets.
type Hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]*sync.Mutex
	log     *zap.Logger
}

func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{clients: map[*websocket.Conn]*sync.Mutex{}, log: log}
}

func (h *Hub) Add(c *websocket.Conn) {
	h.mu.Lock()
	h.clients[c] = &sync.Mutex{}
	n := len(h.clients)
	h.mu.Unlock()
	h.log.Debug("reload client connected", zap.Int("clients", n))
}

func (h *Hub) Remove(c *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast writes msg to every client; failed clients are dropped.
func (h *Hub) Broadcast(msg []byte) {
	h.mu.Lock()
	snapshot := make(map[*websocket.Conn]*sync.Mutex, len(h.clients))
	for c, m := range h.clients {
		snapshot[c] = m
	}
	h.mu.Unlock()

	for c, m := range snapshot {
		m.Lock()
		_ = c.SetWriteDeadline(time.Now().Add(2 * time.Second))
		err := c.WriteMessage(websocket.TextMessage, msg)
		m.Unlock()
		if err != nil {
			h.log.Debug("dropping reload client", zap.Error(err))
			h.Remove(c)
			_ = c.Close()
		}
	}
}

// Reloader watches a project tree and calls Notify once a burst of relevant
// writes has been quiet for Debounce.
type Reloader struct {
	Dir      string
	Debounce time.Duration
	Notify   func()
	Log      *zap.Logger

	w *fsnotify.Watcher
}

func NewReloader(dir string, notify func(), log *zap.Logger) (*Reloader, error) {
	if log == nil {
		log = zap.NewNop()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("file watcher: %w", err)
	}
	r := &Reloader{Dir: dir, Debounce: DefaultReloadDebounce, Notify: notify, Log: log, w: w}
	if err := r.addTree(dir); err != nil {
		_ = w.Close()
		return nil, err
	}
	return r, nil
}

func (r *Reloader) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && skipDirs[d.Name()] {
			return filepath.SkipDir
		}
		if err := r.w.Add(path); err != nil {
			r.Log.Warn("watch failed", zap.String("dir", path), zap.Error(err))
		}
		return nil
	})
}

// Run processes events until ctx ends, then closes the watcher.
func (r *Reloader) Run(ctx context.Context) error {
	defer r.w.Close()

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-r.w.Events:
			if !ok {
				return nil
			}
			if ev.Op&fsnotify.Create != 0 {
				if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() && !skipDirs[fi.Name()] {
					_ = r.addTree(ev.Name)
					continue
				}
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 || !Relevant(ev.Name) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(r.Debounce)
			} else {
				timer.Reset(r.Debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			r.Log.Info("project changed, reloading pages")
			if r.Notify != nil {
				r.Notify()
			}
		case err, ok := <-r.w.Errors:
			if !ok {
				return nil
			}
			r.Log.Warn("watcher error", zap.Error(err))
		}
	}
}
