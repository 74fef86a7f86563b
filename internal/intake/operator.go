package intake

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/hurttlocker/intake/internal/extract"
	"github.com/hurttlocker/intake/internal/llm"
	"github.com/hurttlocker/intake/internal/record"
	"github.com/hurttlocker/intake/internal/store"
)

var (
	// ErrUnknownField is returned when an operator edit names a field the
	// schema does not define.
	ErrUnknownField = errors.New("unknown field")
	// ErrInvalidValue is returned when an edit cannot be typed for its field.
	ErrInvalidValue = errors.New("invalid value")
)

// Session is the stored state of one session.
type Session struct {
	Record   *record.Record `json:"record"`
	Turns    []record.Turn  `json:"turns"`
	Progress int            `json:"progress"`
	Pending  []string       `json:"pending,omitempty"`
}

// RecordSummary is a record with its completion score.
type RecordSummary struct {
	*record.Record
	Progress int `json:"progress"`
}

// RecordList is one page of records plus counts over all of them.
type RecordList struct {
	Records []RecordSummary    `json:"records"`
	Stats   *store.RecordStats `json:"stats"`
}

// AuditReport is what an audit changed.
type AuditReport struct {
	Proposed map[string]record.Value `json:"proposed"`
	Skipped  []string                `json:"skipped,omitempty"`
	Written  []string                `json:"written"`
	Record   *record.Record          `json:"record"`
	Progress int                     `json:"progress"`
}

// Enabled reports whether the chat for kind is switched on. A missing setting
// counts as on; only the value "false" switches it off.
func (e *Engine) Enabled(ctx context.Context, kind record.Kind) (bool, error) {
	rt, err := e.runtime(kind)
	if err != nil {
		return false, err
	}
	return e.enabled(ctx, rt.schema)
}

func (e *Engine) enabled(ctx context.Context, s *record.Schema) (bool, error) {
	if s.EnabledSetting == "" {
		return true, nil
	}
	v, err := e.store.GetSetting(ctx, s.EnabledSetting)
	if errors.Is(err, store.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return !strings.EqualFold(strings.TrimSpace(v), "false"), nil
}

// SetEnabled switches the chat for kind on or off.
func (e *Engine) SetEnabled(ctx context.Context, kind record.Kind, on bool) error {
	rt, err := e.runtime(kind)
	if err != nil {
		return err
	}
	if rt.schema.EnabledSetting == "" {
		return fmt.Errorf("%s chat has no enable switch", kind)
	}
	if err := e.store.SetSetting(ctx, rt.schema.EnabledSetting, strconv.FormatBool(on)); err != nil {
		return err
	}
	e.log.Info("chat switch changed", "kind", kind, "enabled", on)
	return nil
}

// Session returns the record and turns of a session, or store.ErrNotFound.
func (e *Engine) Session(ctx context.Context, kind record.Kind, sessionID string) (*Session, error) {
	rt, err := e.runtime(kind)
	if err != nil {
		return nil, err
	}
	rec, err := e.store.GetRecord(ctx, kind, sessionID)
	if err != nil {
		return nil, err
	}
	turns, err := e.store.History(ctx, kind, sessionID, 0)
	if err != nil {
		return nil, err
	}
	return &Session{
		Record:   rec,
		Turns:    turns,
		Progress: record.Score(rt.schema, rec),
		Pending:  record.PendingMilestones(rt.schema, rec),
	}, nil
}

// Records lists records of kind, newest first, with counts as of now.
func (e *Engine) Records(ctx context.Context, kind record.Kind, opts store.ListOpts, now time.Time) (*RecordList, error) {
	rt, err := e.runtime(kind)
	if err != nil {
		return nil, err
	}
	recs, err := e.store.ListRecords(ctx, kind, opts)
	if err != nil {
		return nil, err
	}
	stats, err := e.store.RecordStats(ctx, kind, now)
	if err != nil {
		return nil, err
	}
	out := &RecordList{Records: make([]RecordSummary, 0, len(recs)), Stats: stats}
	for _, r := range recs {
		out.Records = append(out.Records, RecordSummary{Record: r, Progress: record.Score(rt.schema, r)})
	}
	return out, nil
}

// UpdateFields overwrites record fields with operator-supplied values. Raw
// values are coerced to each field's type; nil clears a field.
func (e *Engine) UpdateFields(ctx context.Context, kind record.Kind, sessionID string, raw map[string]any) (*record.Record, error) {
	rt, err := e.runtime(kind)
	if err != nil {
		return nil, err
	}
	values := make(map[string]record.Value, len(raw))
	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, ok := rt.schema.Field(name); !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownField, name)
		}
		v, err := rt.schema.Coerce(name, raw[name])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidValue, err)
		}
		values[name] = v
	}

	unlock := e.locks.lock(lockKey(kind, sessionID))
	defer unlock()
	cr, err := e.store.UpdateFields(ctx, kind, sessionID, values, true)
	if err != nil {
		return nil, err
	}
	e.log.Info("record fields updated", "kind", kind, "session_id", sessionID, "fields", cr.Written)
	return cr.Record, nil
}

// Delete removes a session's record and turns.
func (e *Engine) Delete(ctx context.Context, kind record.Kind, sessionID string) error {
	if _, err := e.runtime(kind); err != nil {
		return err
	}
	unlock := e.locks.lock(lockKey(kind, sessionID))
	defer unlock()
	if err := e.store.DeleteSession(ctx, kind, sessionID); err != nil {
		return err
	}
	e.log.Info("session deleted", "kind", kind, "session_id", sessionID)
	return nil
}

// Audit re-reads a session's whole transcript with the text generator and
// applies the proposed values. By default only absent fields are filled;
// overwrite replaces existing values as well.
func (e *Engine) Audit(ctx context.Context, kind record.Kind, sessionID string, overwrite bool, opts ...extract.AuditorOption) (*AuditReport, error) {
	rt, err := e.runtime(kind)
	if err != nil {
		return nil, err
	}
	if e.provider == nil {
		return nil, errors.New("audit: no text generation provider configured")
	}

	unlock := e.locks.lock(lockKey(kind, sessionID))
	defer unlock()

	if _, err := e.store.GetRecord(ctx, kind, sessionID); err != nil {
		return nil, err
	}
	turns, err := e.store.History(ctx, kind, sessionID, 0)
	if err != nil {
		return nil, err
	}
	result, err := extract.NewAuditor(e.provider, rt.schema, opts...).Audit(ctx, turns)
	if err != nil {
		return nil, fmt.Errorf("auditing %s %s: %w", kind, sessionID, err)
	}
	cr, err := e.store.UpdateFields(ctx, kind, sessionID, result.Values, overwrite)
	if err != nil {
		return nil, err
	}
	e.log.Info("audit applied", "kind", kind, "session_id", sessionID,
		"proposed", len(result.Values), "written", len(cr.Written), "overwrite", overwrite)
	return &AuditReport{
		Proposed: result.Values,
		Skipped:  result.Skipped,
		Written:  cr.Written,
		Record:   cr.Record,
		Progress: record.Score(rt.schema, cr.Record),
	}, nil
}

// Provider returns the text generator, or nil.
func (e *Engine) Provider() llm.Provider { return e.provider }
