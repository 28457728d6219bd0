package commit

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"visedit-cli/internal/wire"

	"go.uber.org/zap"
)

const (
	DefaultBatchTimeout   = 120 * time.Second
	DefaultRequestTimeout = 300 * time.Second
	DefaultBatchDelay     = time.Second
)

var ErrTimeout = errors.New("timed out waiting for the agent")

// TimeoutError reports a correlation id that never settled.
type TimeoutError struct {
	ID    string
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request %s: no completion after %s", e.ID, e.After)
}

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// RemoteError is an explicit error status from the agent.
type RemoteError struct {
	ID      string
	Message string
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("request %s failed on the agent", e.ID)
	}
	return fmt.Sprintf("request %s failed on the agent: %s", e.ID, e.Message)
}

// Timer is the part of *time.Timer the correlator needs.
type Timer interface {
	Stop() bool
}

// Clock schedules timeouts. Tests substitute a manual clock.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

type entry struct {
	kind  string
	done  chan error
	timer Timer
}

// Correlator matches inbound status messages to outstanding requests. An
// entry settles exactly once: on complete, on error, on timeout or on
// cancellation.
type Correlator struct {
	mu      sync.Mutex
	clock   Clock
	log     *zap.Logger
	pending map[string]*entry
}

func NewCorrelator(log *zap.Logger) *Correlator {
	return NewCorrelatorWithClock(log, realClock{})
}

func NewCorrelatorWithClock(log *zap.Logger, clock Clock) *Correlator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Correlator{clock: clock, log: log, pending: map[string]*entry{}}
}

// Register adds a pending batch correlation. The returned channel yields
// exactly one value: nil on completion, otherwise the failure.
func (c *Correlator) Register(id string, timeout time.Duration) <-chan error {
	return c.add("batch", id, timeout)
}

// Track adds a single-request id so its replies are accepted.
func (c *Correlator) Track(id string, timeout time.Duration) <-chan error {
	return c.add("request", id, timeout)
}

func (c *Correlator) add(kind, id string, timeout time.Duration) <-chan error {
	e := &entry{kind: kind, done: make(chan error, 1)}
	c.mu.Lock()
	if old, ok := c.pending[id]; ok {
		old.timer.Stop()
		old.done <- fmt.Errorf("request %s superseded", id)
	}
	c.pending[id] = e
	e.timer = c.clock.AfterFunc(timeout, func() {
		c.settle(id, e, &TimeoutError{ID: id, After: timeout})
	})
	c.mu.Unlock()
	return e.done
}

// Resolve applies an inbound reply. It returns false when the id is not
// pending; such stale replies are logged and otherwise ignored. A received
// acknowledgement keeps the entry pending.
func (c *Correlator) Resolve(r wire.Reply) bool {
	c.mu.Lock()
	e, ok := c.pending[r.ID]
	c.mu.Unlock()
	if !ok {
		c.log.Warn("discarding stale reply", zap.String("id", r.ID), zap.String("status", string(r.Status)))
		return false
	}
	switch r.Status {
	case wire.StatusReceived:
		c.log.Debug("agent acknowledged", zap.String("id", r.ID), zap.String("kind", e.kind))
	case wire.StatusComplete:
		c.settle(r.ID, e, nil)
	case wire.StatusError:
		c.settle(r.ID, e, &RemoteError{ID: r.ID, Message: r.Error})
	default:
		c.log.Warn("unknown reply status", zap.String("id", r.ID), zap.String("status", string(r.Status)))
	}
	return true
}

// Cancel drops a pending entry, settling it with err.
func (c *Correlator) Cancel(id string, err error) {
	c.mu.Lock()
	e, ok := c.pending[id]
	c.mu.Unlock()
	if ok {
		c.settle(id, e, err)
	}
}

func (c *Correlator) settle(id string, e *entry, err error) {
	c.mu.Lock()
	if c.pending[id] != e {
		c.mu.Unlock()
		return
	}
	delete(c.pending, id)
	c.mu.Unlock()
	e.timer.Stop()
	e.done <- err
}

// Pending returns the number of outstanding ids.
func (c *Correlator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// IsPending reports whether id is outstanding.
func (c *Correlator) IsPending(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pending[id]
	return ok
}
