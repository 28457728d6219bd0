package commit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"visedit-cli/internal/history"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrCanceled = errors.New("commit canceled")

// Sender writes one outbound message on the agent channel.
type Sender interface {
	Send(ctx context.Context, v any) error
}

// Journal observes the batch lifecycle. err is nil for a completed batch.
type Journal interface {
	BatchSent(ctx context.Context, b Batch) error
	BatchSettled(ctx context.Context, b Batch, err error) error
}

// Result summarises a dispatch. Sent counts batches written to the channel;
// Completed counts batches the agent reported complete.
type Result struct {
	Batches   []Batch
	Sent      int
	Completed int
	Err       error
}

// Done reports whether every batch completed.
func (r Result) Done() bool { return r.Err == nil && r.Completed == len(r.Batches) }

// CommittedIDs returns the ids of records in completed batches.
func (r Result) CommittedIDs() []int64 {
	var out []int64
	for _, b := range r.Batches[:r.Completed] {
		out = append(out, b.IDs()...)
	}
	return out
}

// BatchError wraps the failure of one batch.
type BatchError struct {
	Number int
	Total  int
	ID     string
	Err    error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("batch %d of %d (%s): %v", e.Number, e.Total, e.ID, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

// Dispatcher sends batches strictly in sequence: batch n+1 is not written
// until batch n has completed.
type Dispatcher struct {
	Sender     Sender
	Correlator *Correlator
	Planner    Planner
	Journal    Journal
	Timeout    time.Duration
	Delay      time.Duration
	Log        *zap.Logger

	// NewID and Sleep are replaced in tests.
	NewID func() (string, error)
	Sleep func(ctx context.Context, d time.Duration) error
}

func NewDispatcher(s Sender, c *Correlator, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		Sender:     s,
		Correlator: c,
		Planner:    DefaultPlanner(),
		Timeout:    DefaultBatchTimeout,
		Delay:      DefaultBatchDelay,
		Log:        log,
	}
}

func newUUID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Dispatch plans records into batches and sends them one at a time. It
// stops at the first failed batch; later batches are never sent.
func (d *Dispatcher) Dispatch(ctx context.Context, records []history.Record) Result {
	res := Result{Batches: d.Planner.Plan(records)}
	if len(res.Batches) == 0 {
		return res
	}
	newID := d.NewID
	if newID == nil {
		newID = newUUID
	}
	sleep := d.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}

	for i := range res.Batches {
		if i > 0 {
			if err := sleep(ctx, d.Delay); err != nil {
				res.Err = err
				return res
			}
		}
		id, err := newID()
		if err != nil {
			res.Err = fmt.Errorf("correlation id: %w", err)
			return res
		}
		res.Batches[i].ID = id
		b := res.Batches[i]

		done, err := d.send(ctx, b, log)
		if err == nil {
			res.Sent++
			err = d.await(ctx, b, done)
		}
		if d.Journal != nil {
			if jerr := d.Journal.BatchSettled(ctx, b, err); jerr != nil {
				log.Warn("journal settle failed", zap.String("id", b.ID), zap.Error(jerr))
			}
		}
		if err != nil {
			log.Error("batch failed",
				zap.Int("batch", b.Number), zap.Int("total", b.Total),
				zap.String("id", b.ID), zap.Error(err))
			res.Err = &BatchError{Number: b.Number, Total: b.Total, ID: b.ID, Err: err}
			return res
		}
		res.Completed++
		log.Info("batch complete",
			zap.Int("batch", b.Number), zap.Int("total", b.Total), zap.String("id", b.ID))
	}
	return res
}

func (d *Dispatcher) timeout() time.Duration {
	if d.Timeout <= 0 {
		return DefaultBatchTimeout
	}
	return d.Timeout
}

// send registers the batch id before writing so a fast reply is never
// treated as stale.
func (d *Dispatcher) send(ctx context.Context, b Batch, log *zap.Logger) (<-chan error, error) {
	done := d.Correlator.Register(b.ID, d.timeout())
	if err := d.Sender.Send(ctx, b.Message()); err != nil {
		d.Correlator.Cancel(b.ID, err)
		<-done
		return nil, fmt.Errorf("send: %w", err)
	}
	log.Info("batch sent",
		zap.Int("batch", b.Number), zap.Int("total", b.Total),
		zap.String("id", b.ID), zap.Int("changes", len(b.Records)))
	if d.Journal != nil {
		if err := d.Journal.BatchSent(ctx, b); err != nil {
			log.Warn("journal send failed", zap.String("id", b.ID), zap.Error(err))
		}
	}
	return done, nil
}

func (d *Dispatcher) await(ctx context.Context, b Batch, done <-chan error) error {
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		d.Correlator.Cancel(b.ID, ctx.Err())
		return errors.Join(ErrCanceled, <-done)
	}
}
