package commit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"visedit-cli/internal/history"
	"visedit-cli/internal/wire"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type manualClock struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*manualTimer
}

type manualTimer struct {
	clock   *manualClock
	at      time.Duration
	f       func()
	stopped bool
}

func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	was := !t.stopped
	t.stopped = true
	return was
}

func (c *manualClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTimer{clock: c, at: c.now + d, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now += d
	var due []func()
	for _, t := range c.timers {
		if !t.stopped && t.at <= c.now {
			t.stopped = true
			due = append(due, t.f)
		}
	}
	c.mu.Unlock()
	for _, f := range due {
		f()
	}
}

type chanSender struct {
	sent chan wire.ApplyVisualEdits
	err  error
}

func newChanSender() *chanSender {
	return &chanSender{sent: make(chan wire.ApplyVisualEdits, 16)}
}

func (s *chanSender) Send(_ context.Context, v any) error {
	if s.err != nil {
		return s.err
	}
	s.sent <- v.(wire.ApplyVisualEdits)
	return nil
}

type memJournal struct {
	mu     sync.Mutex
	events []string
}

func (j *memJournal) BatchSent(_ context.Context, b Batch) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = append(j.events, fmt.Sprintf("sent %d", b.Number))
	return nil
}

func (j *memJournal) BatchSettled(_ context.Context, b Batch, err error) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err != nil {
		j.events = append(j.events, fmt.Sprintf("failed %d", b.Number))
	} else {
		j.events = append(j.events, fmt.Sprintf("complete %d", b.Number))
	}
	return nil
}

func textRecords(n int) []history.Record {
	out := make([]history.Record, n)
	for i := range out {
		out[i] = history.Record{
			ID:       int64(i + 1),
			Selector: fmt.Sprintf("#el%d", i+1),
			Included: true,
			Change:   history.TextChange{OldText: "a", NewText: "b"},
		}
	}
	return out
}

func flat(n int) Estimator {
	return func(history.Record) int { return n }
}

func testDispatcher(s Sender, clock Clock) *Dispatcher {
	d := NewDispatcher(s, NewCorrelatorWithClock(nil, clock), nil)
	d.Planner = Planner{Budget: DefaultTokenBudget, Base: DefaultBaseOverhead, Estimate: flat(200)}
	d.Sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	n := 0
	d.NewID = func() (string, error) {
		n++
		return fmt.Sprintf("batch-%d", n), nil
	}
	return d
}

func TestPlanSplitsOverBudget(t *testing.T) {
	p := Planner{Budget: 6000, Base: 500, Estimate: flat(200)}
	records := textRecords(40)
	if got := p.Total(records); got != 8500 {
		t.Fatalf("total: got %d want 8500", got)
	}
	batches := p.Plan(records)
	if len(batches) != 2 {
		t.Fatalf("batches: got %d want 2", len(batches))
	}
	if len(batches[0].Records) != 27 || len(batches[1].Records) != 13 {
		t.Fatalf("sizes: got %d+%d want 27+13", len(batches[0].Records), len(batches[1].Records))
	}
	for i, b := range batches {
		if b.Number != i+1 || b.Total != 2 {
			t.Fatalf("batch %d numbered %d of %d", i, b.Number, b.Total)
		}
	}
}

func TestPlanSingleBatchWhenFits(t *testing.T) {
	p := Planner{Budget: 6000, Base: 500, Estimate: flat(200)}
	batches := p.Plan(textRecords(27))
	if len(batches) != 1 || len(batches[0].Records) != 27 {
		t.Fatalf("got %d batches", len(batches))
	}
	if p.Plan(nil) != nil {
		t.Fatalf("empty input should plan nothing")
	}
}

func TestPlanOrdersByKindPriority(t *testing.T) {
	records := []history.Record{
		{ID: 1, Change: history.ReorderChange{}},
		{ID: 2, Change: history.TransformChange{}},
		{ID: 3, Change: history.AIChange{}},
		{ID: 4, Change: history.TextChange{}},
		{ID: 5, Change: history.TransformChange{}},
		{ID: 6, Change: history.TextChange{}},
	}
	p := Planner{Budget: 1000, Base: 0, Estimate: flat(300)}
	var got [][]int64
	for _, b := range p.Plan(records) {
		got = append(got, b.IDs())
	}
	want := [][]int64{{4, 6, 3}, {2, 5, 1}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("plan mismatch (-want +got):\n%s", diff)
	}
}

func TestPlanOversizedRecordAlone(t *testing.T) {
	records := textRecords(3)
	est := func(r history.Record) int {
		if r.ID == 2 {
			return 9000
		}
		return 100
	}
	p := Planner{Budget: 6000, Base: 500, Estimate: est}
	batches := p.Plan(records)
	var got [][]int64
	for _, b := range batches {
		got = append(got, b.IDs())
	}
	want := [][]int64{{1}, {2}, {3}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("plan mismatch (-want +got):\n%s", diff)
	}
}

func TestEstimateRecordCountsScreenshot(t *testing.T) {
	plain := history.Record{Selector: "#x", Change: history.AIChange{Instruction: "make it red"}}
	shot := plain
	shot.Change = history.AIChange{Instruction: "make it red", Screenshot: strings.Repeat("A", 4000)}
	a, b := EstimateRecord(plain), EstimateRecord(shot)
	if a <= DefaultRecordOverhead {
		t.Fatalf("estimate %d should exceed overhead", a)
	}
	if b-a < 1000 || b-a > 1010 {
		t.Fatalf("screenshot cost: got %d want about 1000", b-a)
	}
}

func TestBatchMessage(t *testing.T) {
	b := Batch{Number: 2, Total: 3, ID: "abc", Records: textRecords(2)}
	m := b.Message()
	if m.Type != wire.TypeApplyVisualEdits || m.ID != "abc" {
		t.Fatalf("header: %+v", m)
	}
	if m.Batch != (wire.BatchInfo{Number: 2, Total: 3}) {
		t.Fatalf("batch info: %+v", m.Batch)
	}
	if len(m.Changes) != 2 || m.Changes[0].Operation != wire.OpText || m.Changes[1].Selector != "#el2" {
		t.Fatalf("changes: %+v", m.Changes)
	}
}

func TestDispatchAwaitsEachBatch(t *testing.T) {
	s := newChanSender()
	d := testDispatcher(s, &manualClock{})
	j := &memJournal{}
	d.Journal = j

	out := make(chan Result, 1)
	go func() { out <- d.Dispatch(context.Background(), textRecords(40)) }()

	first := <-s.sent
	if first.Batch.Number != 1 || len(first.Changes) == 0 {
		t.Fatalf("first batch: %+v", first.Batch)
	}
	d.Correlator.Resolve(wire.Reply{ID: first.ID, Status: wire.StatusReceived})
	select {
	case m := <-s.sent:
		t.Fatalf("batch %d sent before batch 1 completed", m.Batch.Number)
	case <-time.After(50 * time.Millisecond):
	}
	d.Correlator.Resolve(wire.Reply{ID: first.ID, Status: wire.StatusComplete})

	second := <-s.sent
	if second.Batch.Number != 2 || second.Batch.Total != 2 || len(second.Changes) == 0 {
		t.Fatalf("second batch: %+v", second.Batch)
	}
	d.Correlator.Resolve(wire.Reply{ID: second.ID, Status: wire.StatusComplete})

	res := <-out
	if !res.Done() || res.Sent != 2 || res.Completed != 2 {
		t.Fatalf("result: %+v", res)
	}
	if got := len(res.CommittedIDs()); got != 40 {
		t.Fatalf("committed ids: got %d want 40", got)
	}
	want := []string{"sent 1", "complete 1", "sent 2", "complete 2"}
	if diff := cmp.Diff(want, j.events); diff != "" {
		t.Fatalf("journal mismatch (-want +got):\n%s", diff)
	}
}

func TestDispatchTimeoutStopsRemaining(t *testing.T) {
	s := newChanSender()
	clock := &manualClock{}
	d := testDispatcher(s, clock)

	out := make(chan Result, 1)
	go func() { out <- d.Dispatch(context.Background(), textRecords(40)) }()

	first := <-s.sent
	clock.Advance(119_999 * time.Millisecond)
	if !d.Correlator.IsPending(first.ID) {
		t.Fatalf("batch settled before the timeout elapsed")
	}
	clock.Advance(2 * time.Millisecond)

	res := <-out
	if !errors.Is(res.Err, ErrTimeout) {
		t.Fatalf("err: got %v want timeout", res.Err)
	}
	var be *BatchError
	if !errors.As(res.Err, &be) || be.Number != 1 {
		t.Fatalf("err should name batch 1: %v", res.Err)
	}
	if res.Sent != 1 || res.Completed != 0 {
		t.Fatalf("result: sent %d completed %d", res.Sent, res.Completed)
	}
	select {
	case m := <-s.sent:
		t.Fatalf("batch %d sent after timeout", m.Batch.Number)
	default:
	}
}

func TestDispatchRemoteErrorAborts(t *testing.T) {
	s := newChanSender()
	d := testDispatcher(s, &manualClock{})

	out := make(chan Result, 1)
	go func() { out <- d.Dispatch(context.Background(), textRecords(40)) }()

	first := <-s.sent
	d.Correlator.Resolve(wire.Reply{ID: first.ID, Status: wire.StatusError, Error: "agent exited 1"})
	res := <-out

	var re *RemoteError
	if !errors.As(res.Err, &re) || re.Message != "agent exited 1" {
		t.Fatalf("err: got %v want remote error", res.Err)
	}
	if res.Done() || len(res.CommittedIDs()) != 0 {
		t.Fatalf("nothing should be committed: %+v", res)
	}
}

func TestDispatchSendFailure(t *testing.T) {
	s := newChanSender()
	s.err = errors.New("socket closed")
	d := testDispatcher(s, &manualClock{})
	res := d.Dispatch(context.Background(), textRecords(3))
	if res.Err == nil || !strings.Contains(res.Err.Error(), "socket closed") {
		t.Fatalf("err: %v", res.Err)
	}
	if res.Sent != 0 || d.Correlator.Pending() != 0 {
		t.Fatalf("sent %d pending %d", res.Sent, d.Correlator.Pending())
	}
}

func TestDispatchContextCanceled(t *testing.T) {
	s := newChanSender()
	d := testDispatcher(s, &manualClock{})
	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan Result, 1)
	go func() { out <- d.Dispatch(ctx, textRecords(2)) }()
	<-s.sent
	cancel()
	res := <-out
	if !errors.Is(res.Err, ErrCanceled) {
		t.Fatalf("err: got %v want canceled", res.Err)
	}
	if d.Correlator.Pending() != 0 {
		t.Fatalf("pending: %d", d.Correlator.Pending())
	}
}

func TestCorrelatorStaleAndTracked(t *testing.T) {
	c := NewCorrelatorWithClock(nil, &manualClock{})
	if c.Resolve(wire.Reply{ID: "ghost", Status: wire.StatusComplete}) {
		t.Fatalf("unknown id should be stale")
	}
	done := c.Track("req-1", DefaultRequestTimeout)
	if !c.Resolve(wire.Reply{ID: "req-1", Status: wire.StatusReceived}) {
		t.Fatalf("tracked id should be accepted")
	}
	if c.Pending() != 1 {
		t.Fatalf("received must not settle")
	}
	c.Resolve(wire.Reply{ID: "req-1", Status: wire.StatusComplete})
	if err := <-done; err != nil {
		t.Fatalf("settle: %v", err)
	}
	if c.Resolve(wire.Reply{ID: "req-1", Status: wire.StatusComplete}) {
		t.Fatalf("second completion should be stale")
	}
}
