package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"visedit-cli/internal/history"

	json "github.com/goccy/go-json"
)

const (
	stackLive = "live"
	stackRedo = "redo"
)

// SaveLedger replaces the persisted ledger with st.
func (s Store) SaveLedger(ctx context.Context, st history.State) error {
	db, err := s.openSQLite(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	tx, err := db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	undo, err := json.Marshal(st.Undo)
	if err != nil {
		return err
	}
	meta := map[string]string{
		"next_id":   strconv.FormatInt(st.NextID, 10),
		"undo_json": string(undo),
	}
	for k, v := range meta {
		if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO meta(k, v) VALUES(?, ?)`, k, v); err != nil {
			return err
		}
	}

	// Replace-all: a ledger holds at most a few hundred records.
	if _, err := tx.ExecContext(ctx, `DELETE FROM ledger_records`); err != nil {
		return err
	}
	insert := func(stack string, rs []history.Record) error {
		for i, r := range rs {
			raw, err := json.Marshal(r)
			if err != nil {
				return fmt.Errorf("record %d: %w", r.ID, err)
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO ledger_records(stack, pos, id, kind, selector, included, json) VALUES(?, ?, ?, ?, ?, ?, ?)`,
				stack, i, r.ID, string(r.Kind()), r.Selector, boolToInt(r.Included), string(raw)); err != nil {
				return err
			}
		}
		return nil
	}
	if err := insert(stackLive, st.Records); err != nil {
		return err
	}
	if err := insert(stackRedo, st.Redo); err != nil {
		return err
	}
	return tx.Commit()
}

// LoadLedger returns the persisted ledger; an empty store yields an empty
// state.
func (s Store) LoadLedger(ctx context.Context) (history.State, error) {
	var st history.State
	db, err := s.openSQLite(ctx)
	if err != nil {
		return st, err
	}
	defer db.Close()

	var v string
	err = db.QueryRowContext(ctx, `SELECT v FROM meta WHERE k = ?`, "next_id").Scan(&v)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return st, err
	default:
		if st.NextID, err = strconv.ParseInt(v, 10, 64); err != nil {
			return st, fmt.Errorf("meta next_id: %w", err)
		}
	}
	err = db.QueryRowContext(ctx, `SELECT v FROM meta WHERE k = ?`, "undo_json").Scan(&v)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return st, err
	default:
		if err := json.Unmarshal([]byte(v), &st.Undo); err != nil {
			return st, fmt.Errorf("meta undo_json: %w", err)
		}
	}

	if st.Records, err = readRecords(ctx, db, stackLive); err != nil {
		return st, err
	}
	if st.Redo, err = readRecords(ctx, db, stackRedo); err != nil {
		return st, err
	}
	return st, nil
}

func readRecords(ctx context.Context, db *sql.DB, stack string) ([]history.Record, error) {
	rows, err := db.QueryContext(ctx, `SELECT json FROM ledger_records WHERE stack = ? ORDER BY pos`, stack)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []history.Record
	for rows.Next() {
		var js string
		if err := rows.Scan(&js); err != nil {
			return nil, err
		}
		var r history.Record
		if err := json.Unmarshal([]byte(js), &r); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// LoadInto restores the persisted ledger into l.
func (s Store) LoadInto(ctx context.Context, l *history.Ledger) error {
	st, err := s.LoadLedger(ctx)
	if err != nil {
		return err
	}
	l.Restore(st)
	return nil
}
