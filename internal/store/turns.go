package store

import (
	"context"
	"database/sql"
	"fmt"
	"slices"

	"github.com/hurttlocker/intake/internal/record"
)

// History returns the turns of a session, oldest first. A positive limit
// keeps only the most recent limit turns.
func (s *SQLiteStore) History(ctx context.Context, kind record.Kind, sessionID string, limit int) ([]record.Turn, error) {
	query := `SELECT id, kind, session_id, seq, user_message, assistant_response,
			COALESCE(user_ip, ''), COALESCE(user_agent, ''), created_at
		 FROM turns WHERE kind = ? AND session_id = ?`
	args := []any{string(kind), sessionID}
	if limit > 0 {
		query += ` ORDER BY seq DESC LIMIT ?`
		args = append(args, limit)
	} else {
		query += ` ORDER BY seq ASC`
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	var turns []record.Turn
	for rows.Next() {
		var t record.Turn
		var k string
		if err := rows.Scan(&t.ID, &k, &t.SessionID, &t.Seq, &t.UserMessage, &t.AssistantResponse,
			&t.UserIP, &t.UserAgent, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning turn: %w", err)
		}
		t.Kind = record.Kind(k)
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating turns: %w", err)
	}
	if limit > 0 {
		slices.Reverse(turns)
	}
	return turns, nil
}

// CountTurns returns how many turns a session has.
func (s *SQLiteStore) CountTurns(ctx context.Context, kind record.Kind, sessionID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM turns WHERE kind = ? AND session_id = ?", string(kind), sessionID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting turns: %w", err)
	}
	return n, nil
}

func insertTurn(ctx context.Context, tx *sql.Tx, t *record.Turn) error {
	var seq int
	if err := tx.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(seq), 0) + 1 FROM turns WHERE kind = ? AND session_id = ?",
		string(t.Kind), t.SessionID,
	).Scan(&seq); err != nil {
		return fmt.Errorf("next turn seq: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO turns (kind, session_id, seq, user_message, assistant_response, user_ip, user_agent, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		string(t.Kind), t.SessionID, seq, t.UserMessage, t.AssistantResponse,
		nullIfEmpty(t.UserIP), nullIfEmpty(t.UserAgent), t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting turn: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting last insert id: %w", err)
	}
	t.ID = id
	t.Seq = seq
	return nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
