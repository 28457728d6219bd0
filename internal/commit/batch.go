// Package commit ships selected ledger records to the remote agent in
// token-budgeted batches and correlates each batch with its completion.
package commit

import (
	"sort"

	"visedit-cli/internal/history"
	"visedit-cli/internal/wire"

	json "github.com/goccy/go-json"
)

const (
	DefaultTokenBudget    = 6000
	DefaultBaseOverhead   = 500
	DefaultRecordOverhead = 200
	charsPerToken         = 4
)

// Estimator returns the estimated token cost of one record.
type Estimator func(history.Record) int

// EstimateRecord approximates the prompt tokens a record costs: a quarter of
// its serialised size plus a fixed per-record instruction overhead.
func EstimateRecord(r history.Record) int {
	return estimateWith(r, DefaultRecordOverhead)
}

func estimateWith(r history.Record, overhead int) int {
	b, err := json.Marshal(wire.FromRecord(r))
	if err != nil {
		return overhead
	}
	return (len(b)+charsPerToken-1)/charsPerToken + overhead
}

// RecordEstimator returns an Estimator with the given per-record overhead.
func RecordEstimator(overhead int) Estimator {
	return func(r history.Record) int { return estimateWith(r, overhead) }
}

// Batch is one group of records sent under a single correlation id.
type Batch struct {
	Number  int
	Total   int
	ID      string
	Records []history.Record
}

// Planner splits records into batches.
type Planner struct {
	Budget   int
	Base     int
	Estimate Estimator
}

func DefaultPlanner() Planner {
	return Planner{Budget: DefaultTokenBudget, Base: DefaultBaseOverhead, Estimate: EstimateRecord}
}

// Total is the estimate for sending records as a single batch.
func (p Planner) Total(records []history.Record) int {
	sum := p.Base
	for _, r := range records {
		sum += p.Estimate(r)
	}
	return sum
}

var kindPriority = map[history.Kind]int{
	history.KindText:      0,
	history.KindAI:        1,
	history.KindTransform: 2,
	history.KindReorder:   3,
}

// Plan returns the batches for records. Everything goes in one batch when
// the total fits the budget. Otherwise records are grouped by kind (text,
// ai, transform, reorder), keeping their relative order, and packed greedily;
// each batch carries the base overhead. A record too large for any batch is
// sent on its own.
func (p Planner) Plan(records []history.Record) []Batch {
	if len(records) == 0 {
		return nil
	}
	if p.Total(records) <= p.Budget {
		return numbered([][]history.Record{append([]history.Record(nil), records...)})
	}

	sorted := append([]history.Record(nil), records...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return kindPriority[sorted[i].Kind()] < kindPriority[sorted[j].Kind()]
	})

	var groups [][]history.Record
	var cur []history.Record
	size := p.Base
	for _, r := range sorted {
		est := p.Estimate(r)
		if len(cur) > 0 && size+est > p.Budget {
			groups = append(groups, cur)
			cur, size = nil, p.Base
		}
		cur = append(cur, r)
		size += est
	}
	if len(cur) > 0 {
		groups = append(groups, cur)
	}
	return numbered(groups)
}

func numbered(groups [][]history.Record) []Batch {
	out := make([]Batch, len(groups))
	for i, g := range groups {
		out[i] = Batch{Number: i + 1, Total: len(groups), Records: g}
	}
	return out
}

// Message builds the outbound message for b.
func (b Batch) Message() wire.ApplyVisualEdits {
	changes := make([]wire.Change, len(b.Records))
	for i, r := range b.Records {
		changes[i] = wire.FromRecord(r)
	}
	return wire.ApplyVisualEdits{
		Type:    wire.TypeApplyVisualEdits,
		ID:      b.ID,
		Changes: changes,
		Batch:   wire.BatchInfo{Number: b.Number, Total: b.Total},
	}
}

// IDs returns the record ids in b.
func (b Batch) IDs() []int64 {
	out := make([]int64, len(b.Records))
	for i, r := range b.Records {
		out[i] = r.ID
	}
	return out
}
