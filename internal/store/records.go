package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/hurttlocker/intake/internal/record"
)

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const recordColumns = `kind, session_id, fields, expected, completed, COALESCE(user_ip, ''), created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*record.Record, error) {
	var (
		r        record.Record
		kind     string
		fields   string
		expected string
	)
	if err := row.Scan(&kind, &r.SessionID, &fields, &expected, &r.Completed, &r.UserIP, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.Kind = record.Kind(kind)
	r.Fields = map[string]record.Value{}
	if err := json.Unmarshal([]byte(fields), &r.Fields); err != nil {
		return nil, fmt.Errorf("decoding fields of %s/%s: %w", kind, r.SessionID, err)
	}
	for k, v := range r.Fields {
		if v.IsAbsent() {
			delete(r.Fields, k)
		}
	}
	if err := json.Unmarshal([]byte(expected), &r.Expected); err != nil {
		return nil, fmt.Errorf("decoding expected of %s/%s: %w", kind, r.SessionID, err)
	}
	return &r, nil
}

func getRecord(ctx context.Context, q queryer, kind record.Kind, sessionID string) (*record.Record, error) {
	r, err := scanRecord(q.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM records WHERE kind = ? AND session_id = ?`,
		string(kind), sessionID,
	))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting record %s/%s: %w", kind, sessionID, err)
	}
	return r, nil
}

// GetRecord returns the record of a session, or ErrNotFound.
func (s *SQLiteStore) GetRecord(ctx context.Context, kind record.Kind, sessionID string) (*record.Record, error) {
	return getRecord(ctx, s.db, kind, sessionID)
}

func putRecord(ctx context.Context, tx *sql.Tx, r *record.Record) error {
	fields, err := json.Marshal(r.Fields)
	if err != nil {
		return fmt.Errorf("encoding fields: %w", err)
	}
	expected := r.Expected
	if expected == nil {
		expected = []string{}
	}
	exp, err := json.Marshal(expected)
	if err != nil {
		return fmt.Errorf("encoding expected: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO records (kind, session_id, fields, expected, completed, user_ip, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(kind, session_id) DO UPDATE SET
			fields = excluded.fields,
			expected = excluded.expected,
			completed = excluded.completed,
			user_ip = excluded.user_ip,
			updated_at = excluded.updated_at`,
		string(r.Kind), r.SessionID, string(fields), string(exp), r.Completed,
		nullIfEmpty(r.UserIP), r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("saving record %s/%s: %w", r.Kind, r.SessionID, err)
	}
	return nil
}

// loadOrNew reads the record inside tx, or starts an empty one.
func loadOrNew(ctx context.Context, tx *sql.Tx, kind record.Kind, sessionID string, now time.Time) (*record.Record, error) {
	r, err := getRecord(ctx, tx, kind, sessionID)
	if err == ErrNotFound {
		r = record.New(kind, sessionID)
		r.CreatedAt = now
		return r, nil
	}
	return r, err
}

// CommitTurn appends turn and applies upd to the session's record in one
// transaction. Writes to fields that already hold a value are dropped, even
// when the caller staged them from a stale read.
func (s *SQLiteStore) CommitTurn(ctx context.Context, turn *record.Turn, upd RecordUpdate) (*CommitResult, error) {
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}
	now := turn.CreatedAt

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertTurn(ctx, tx, turn); err != nil {
		return nil, err
	}

	r, err := loadOrNew(ctx, tx, turn.Kind, turn.SessionID, now)
	if err != nil {
		return nil, err
	}

	res := &CommitResult{Record: r}
	for name, v := range upd.Writes {
		if r.SetIfAbsent(name, v) {
			res.Written = append(res.Written, name)
		}
	}
	sort.Strings(res.Written)

	if upd.Complete && !r.Completed {
		r.Completed = true
		res.Completed = true
	}
	r.Expected = append([]string(nil), upd.Expected...)
	if r.UserIP == "" {
		r.UserIP = turn.UserIP
	}
	r.UpdatedAt = now

	if err := putRecord(ctx, tx, r); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing turn: %w", err)
	}
	return res, nil
}

// UpdateFields applies operator or audit values to an existing record. With
// overwrite unset only absent fields are written. Absent values in an
// overwrite clear the field.
func (s *SQLiteStore) UpdateFields(ctx context.Context, kind record.Kind, sessionID string, values map[string]record.Value, overwrite bool) (*CommitResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	r, err := getRecord(ctx, tx, kind, sessionID)
	if err != nil {
		return nil, err
	}

	res := &CommitResult{Record: r}
	for name, v := range values {
		switch {
		case overwrite && v.IsAbsent():
			if r.Has(name) {
				delete(r.Fields, name)
				res.Written = append(res.Written, name)
			}
		case overwrite:
			if !r.Get(name).Equal(v) {
				r.Fields[name] = v
				res.Written = append(res.Written, name)
			}
		default:
			if r.SetIfAbsent(name, v) {
				res.Written = append(res.Written, name)
			}
		}
	}
	sort.Strings(res.Written)
	if len(res.Written) == 0 {
		return res, nil
	}

	r.UpdatedAt = time.Now().UTC()
	if err := putRecord(ctx, tx, r); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing update: %w", err)
	}
	return res, nil
}

// ListRecords returns records of one kind, newest first.
func (s *SQLiteStore) ListRecords(ctx context.Context, kind record.Kind, opts ListOpts) ([]*record.Record, error) {
	if opts.Limit <= 0 {
		opts.Limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM records WHERE kind = ?
		 ORDER BY created_at DESC, session_id ASC LIMIT ? OFFSET ?`,
		string(kind), opts.Limit, opts.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}
	defer rows.Close()

	var out []*record.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating records: %w", err)
	}
	return out, nil
}

// RecordStats counts records of one kind. Today is the UTC day of now.
func (s *SQLiteStore) RecordStats(ctx context.Context, kind record.Kind, now time.Time) (*RecordStats, error) {
	day := now.UTC().Truncate(24 * time.Hour)
	st := &RecordStats{}
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN completed THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN created_at >= ? THEN 1 ELSE 0 END), 0)
		 FROM records WHERE kind = ?`,
		day, string(kind),
	).Scan(&st.Total, &st.Completed, &st.Today)
	if err != nil {
		return nil, fmt.Errorf("record stats: %w", err)
	}
	st.InProgress = st.Total - st.Completed
	return st, nil
}

// DeleteSession removes the turns and the record of a session.
func (s *SQLiteStore) DeleteSession(ctx context.Context, kind record.Kind, sessionID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, "DELETE FROM records WHERE kind = ? AND session_id = ?", string(kind), sessionID)
	if err != nil {
		return fmt.Errorf("deleting record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM turns WHERE kind = ? AND session_id = ?", string(kind), sessionID); err != nil {
		return fmt.Errorf("deleting turns: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing delete: %w", err)
	}
	return nil
}
