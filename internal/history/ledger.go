package history

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	ErrNothingToUndo = errors.New("nothing to undo")
	ErrNothingToRedo = errors.New("nothing to redo")
	ErrNotRevertible = errors.New("operation cannot be undone")
)

// IrrevertibleError is returned when undoing a record whose effect cannot be
// reverted in place.
type IrrevertibleError struct {
	ID   int64
	Kind Kind
}

func (e *IrrevertibleError) Error() string {
	return fmt.Sprintf("%s change %d cannot be undone; discard it from history instead", e.Kind, e.ID)
}

func (e *IrrevertibleError) Is(target error) bool { return target == ErrNotRevertible }

type NotFoundError struct {
	ID int64
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("history record not found: %d", e.ID)
}

// Applier performs the document side of undo and redo.
type Applier interface {
	Revert(Record) error
	Reapply(Record) error
}

// Ledger holds the applied records in order plus the undo and redo stacks.
// Record ids are assigned from a monotonic counter and never reused. A record
// id is on at most one of the two stacks.
type Ledger struct {
	mu      sync.Mutex
	now     func() time.Time
	nextID  int64
	records []Record
	undo    []int64
	redo    []Record
}

func NewLedger() *Ledger {
	return &Ledger{now: time.Now, nextID: 1}
}

// Append records a new change. New records are included by default and
// invalidate anything that could have been redone.
func (l *Ledger) Append(selector string, c Change, preview string) Record {
	l.mu.Lock()
	defer l.mu.Unlock()

	if preview == "" {
		preview = Describe(c)
	}
	r := Record{
		ID:        l.nextID,
		Selector:  selector,
		Timestamp: l.now(),
		Included:  true,
		Change:    c,
		Preview:   preview,
	}
	l.nextID++
	l.records = append(l.records, r)
	l.undo = append(l.undo, r.ID)
	l.redo = nil
	return r
}

// Remove discards a record without touching the document.
func (l *Ledger) Remove(id int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	i := l.indexLocked(id)
	if i < 0 {
		return NotFoundError{ID: id}
	}
	l.records = append(l.records[:i], l.records[i+1:]...)
	l.undo = without(l.undo, id)
	return nil
}

// Undo reverts the most recent applied record. Irrevertible records leave
// both stacks untouched.
func (l *Ledger) Undo(a Applier) (Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.undo) == 0 {
		return Record{}, ErrNothingToUndo
	}
	id := l.undo[len(l.undo)-1]
	i := l.indexLocked(id)
	if i < 0 {
		return Record{}, NotFoundError{ID: id}
	}
	r := l.records[i]
	if r.Kind() == KindReorder {
		return r, &IrrevertibleError{ID: r.ID, Kind: r.Kind()}
	}
	if err := a.Revert(r); err != nil {
		return r, fmt.Errorf("undo %d: %w", r.ID, err)
	}
	l.undo = l.undo[:len(l.undo)-1]
	l.records = append(l.records[:i], l.records[i+1:]...)
	l.redo = append(l.redo, r)
	return r, nil
}

// Redo reapplies the most recently undone record.
func (l *Ledger) Redo(a Applier) (Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.redo) == 0 {
		return Record{}, ErrNothingToRedo
	}
	r := l.redo[len(l.redo)-1]
	if err := a.Reapply(r); err != nil {
		return r, fmt.Errorf("redo %d: %w", r.ID, err)
	}
	l.redo = l.redo[:len(l.redo)-1]
	l.records = append(l.records, r)
	l.undo = append(l.undo, r.ID)
	return r, nil
}

// SetIncluded marks whether a record takes part in the next commit.
func (l *Ledger) SetIncluded(id int64, included bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	i := l.indexLocked(id)
	if i < 0 {
		return NotFoundError{ID: id}
	}
	l.records[i].Included = included
	return nil
}

// Toggle flips inclusion and returns the new value.
func (l *Ledger) Toggle(id int64) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	i := l.indexLocked(id)
	if i < 0 {
		return false, NotFoundError{ID: id}
	}
	l.records[i].Included = !l.records[i].Included
	return l.records[i].Included, nil
}

// Records returns the applied records in append order.
func (l *Ledger) Records() []Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Record(nil), l.records...)
}

// Selected returns the included records in append order.
func (l *Ledger) Selected() []Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Record
	for _, r := range l.records {
		if r.Included {
			out = append(out, r)
		}
	}
	return out
}

func (l *Ledger) Get(id int64) (Record, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	i := l.indexLocked(id)
	if i < 0 {
		return Record{}, false
	}
	return l.records[i], true
}

func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

func (l *Ledger) CanUndo() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.undo) > 0
}

func (l *Ledger) CanRedo() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.redo) > 0
}

// Clear drops the given records, typically after they were committed. A
// record undone while its commit was in flight is dropped from the redo stack
// too, so it cannot be reapplied after the agent has already written it.
func (l *Ledger) Clear(ids []int64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	drop := make(map[int64]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	kept := l.records[:0]
	for _, r := range l.records {
		if !drop[r.ID] {
			kept = append(kept, r)
		}
	}
	l.records = kept
	var undo []int64
	for _, id := range l.undo {
		if !drop[id] {
			undo = append(undo, id)
		}
	}
	l.undo = undo
	var redo []Record
	for _, r := range l.redo {
		if !drop[r.ID] {
			redo = append(redo, r)
		}
	}
	l.redo = redo
}

// State is the persisted form of a ledger.
type State struct {
	NextID  int64    `json:"nextId"`
	Records []Record `json:"records"`
	Undo    []int64  `json:"undo"`
	Redo    []Record `json:"redo"`
}

func (l *Ledger) Snapshot() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return State{
		NextID:  l.nextID,
		Records: append([]Record(nil), l.records...),
		Undo:    append([]int64(nil), l.undo...),
		Redo:    append([]Record(nil), l.redo...),
	}
}

// Restore replaces the ledger contents with st.
func (l *Ledger) Restore(st State) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.nextID = st.NextID
	for _, r := range append(append([]Record(nil), st.Records...), st.Redo...) {
		if r.ID >= l.nextID {
			l.nextID = r.ID + 1
		}
	}
	if l.nextID < 1 {
		l.nextID = 1
	}
	l.records = append([]Record(nil), st.Records...)
	l.undo = append([]int64(nil), st.Undo...)
	l.redo = append([]Record(nil), st.Redo...)
}

func (l *Ledger) indexLocked(id int64) int {
	for i, r := range l.records {
		if r.ID == id {
			return i
		}
	}
	return -1
}

func without(ids []int64, id int64) []int64 {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
