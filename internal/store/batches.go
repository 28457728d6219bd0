package store

import (
	"context"
	"time"

	"visedit-cli/internal/commit"

	json "github.com/goccy/go-json"
)

const (
	BatchSent     = "sent"
	BatchComplete = "complete"
	BatchFailed   = "failed"
)

// BatchRow is one journaled batch.
type BatchRow struct {
	ID        string     `json:"id"`
	Number    int        `json:"number"`
	Total     int        `json:"total"`
	RecordIDs []int64    `json:"recordIds"`
	Status    string     `json:"status"`
	Error     string     `json:"error,omitempty"`
	SentAt    *time.Time `json:"sentAt,omitempty"`
	SettledAt *time.Time `json:"settledAt,omitempty"`
}

// Journal records batch lifecycle events for a dispatcher.
type Journal struct {
	Store Store
	Now   func() time.Time
}

var _ commit.Journal = Journal{}

func (j Journal) now() time.Time {
	if j.Now != nil {
		return j.Now().UTC()
	}
	return time.Now().UTC()
}

func (j Journal) BatchSent(ctx context.Context, b commit.Batch) error {
	db, err := j.Store.openSQLite(ctx)
	if err != nil {
		return err
	}
	defer db.Close()
	ids, _ := json.Marshal(b.IDs())
	_, err = db.ExecContext(ctx, `INSERT INTO batches(id, number, total, record_ids_json, status, sent_at_unixms)
		VALUES(?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET status = excluded.status, sent_at_unixms = excluded.sent_at_unixms`,
		b.ID, b.Number, b.Total, string(ids), BatchSent, j.now().UnixMilli())
	return err
}

func (j Journal) BatchSettled(ctx context.Context, b commit.Batch, cause error) error {
	db, err := j.Store.openSQLite(ctx)
	if err != nil {
		return err
	}
	defer db.Close()
	status, msg := BatchComplete, ""
	if cause != nil {
		status, msg = BatchFailed, cause.Error()
	}
	ids, _ := json.Marshal(b.IDs())
	_, err = db.ExecContext(ctx, `INSERT INTO batches(id, number, total, record_ids_json, status, error, settled_at_unixms)
		VALUES(?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET status = excluded.status, error = excluded.error, settled_at_unixms = excluded.settled_at_unixms`,
		b.ID, b.Number, b.Total, string(ids), status, msg, j.now().UnixMilli())
	return err
}

// ListBatches returns journaled batches, newest first. limit <= 0 means all.
func (s Store) ListBatches(ctx context.Context, limit int) ([]BatchRow, error) {
	db, err := s.openSQLite(ctx)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	q := `SELECT id, number, total, record_ids_json, status, COALESCE(error, ''), sent_at_unixms, settled_at_unixms
		FROM batches ORDER BY COALESCE(sent_at_unixms, settled_at_unixms) DESC, number DESC`
	var args []any
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []BatchRow
	for rows.Next() {
		var (
			r       BatchRow
			ids     string
			sent    *int64
			settled *int64
		)
		if err := rows.Scan(&r.ID, &r.Number, &r.Total, &ids, &r.Status, &r.Error, &sent, &settled); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(ids), &r.RecordIDs); err != nil {
			return nil, err
		}
		r.SentAt = fromUnixMs(sent)
		r.SettledAt = fromUnixMs(settled)
		out = append(out, r)
	}
	return out, rows.Err()
}

func fromUnixMs(v *int64) *time.Time {
	if v == nil {
		return nil
	}
	t := time.UnixMilli(*v).UTC()
	return &t
}
