// Package intake runs conversational intake sessions: it extracts field values
// from each user message, asks the text generator for the next question,
// decides completion and commits the turn with its record writes.
package intake

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/hurttlocker/intake/internal/catalog"
	"github.com/hurttlocker/intake/internal/extract"
	"github.com/hurttlocker/intake/internal/llm"
	"github.com/hurttlocker/intake/internal/logger"
	"github.com/hurttlocker/intake/internal/record"
	"github.com/hurttlocker/intake/internal/store"
)

var (
	// ErrEmptyMessage is returned for a blank user message.
	ErrEmptyMessage = errors.New("message is empty")
	// ErrUnknownKind is returned for a record kind the engine has no schema for.
	ErrUnknownKind = errors.New("unknown record kind")
)

// Status describes how a turn was handled.
type Status string

const (
	StatusOK           Status = "ok"
	StatusDisabled     Status = "disabled"
	StatusLimitReached Status = "limit_reached"
	// StatusDegraded means generation failed and the fallback text was used.
	// Extraction still ran and the turn was stored.
	StatusDegraded Status = "degraded"
)

// TurnMeta is client information stored with a turn.
type TurnMeta struct {
	UserIP    string
	UserAgent string
}

// TurnResult is the outcome of one user message.
type TurnResult struct {
	SessionID string      `json:"session_id"`
	Kind      record.Kind `json:"kind"`
	Response  string      `json:"response"`
	Status    Status      `json:"status"`
	Degraded  bool        `json:"degraded,omitempty"`
	Progress  int         `json:"progress"`
	Completed bool        `json:"completed"`
	// Written lists the fields this turn set.
	Written  []string       `json:"written,omitempty"`
	Detected string         `json:"detected_job,omitempty"`
	Record   *record.Record `json:"-"`
}

// Config wires an Engine.
type Config struct {
	Store    store.Store
	Provider llm.Provider
	// Catalog is optional; without it no entities are detected.
	Catalog *catalog.Catalog
	// Schemas overrides the built-in schemas per kind.
	Schemas map[record.Kind]*record.Schema
	Logger  *logger.Logger

	// GenerationTimeout bounds each attempt (0 = DefaultGenerationTimeout).
	GenerationTimeout time.Duration
	// GenerationRetries is the retry count after a failed attempt.
	// 0 uses DefaultGenerationRetries; negative disables retries.
	GenerationRetries int
}

type kindRuntime struct {
	schema   *record.Schema
	pipeline *extract.Pipeline
	matcher  *extract.Matcher
	prompt   *template.Template
}

// Engine handles intake turns for every configured record kind.
type Engine struct {
	store    store.Store
	provider llm.Provider
	catalog  *catalog.Catalog
	detector *catalog.Detector
	kinds    map[record.Kind]*kindRuntime
	log      *logger.Logger
	locks    *sessionLocks
	timeout  time.Duration
	retries  int
}

// New creates an Engine. Kinds without an override use the built-in schema.
func New(cfg Config) (*Engine, error) {
	if cfg.Store == nil {
		return nil, errors.New("intake: store is required")
	}
	e := &Engine{
		store:    cfg.Store,
		provider: cfg.Provider,
		catalog:  cfg.Catalog,
		kinds:    map[record.Kind]*kindRuntime{},
		log:      cfg.Logger,
		locks:    newSessionLocks(),
		timeout:  cfg.GenerationTimeout,
		retries:  cfg.GenerationRetries,
	}
	if e.log == nil {
		e.log = logger.Nop()
	}
	if e.timeout <= 0 {
		e.timeout = DefaultGenerationTimeout
	}
	switch {
	case e.retries == 0:
		e.retries = DefaultGenerationRetries
	case e.retries < 0:
		e.retries = 0
	}
	if e.catalog != nil {
		e.detector = catalog.NewDetector(e.catalog, nil)
	}

	for _, kind := range []record.Kind{record.KindInterview, record.KindSurvey} {
		s, ok := cfg.Schemas[kind]
		if !ok || s == nil {
			var err error
			if s, err = record.Load(kind); err != nil {
				return nil, err
			}
		}
		tmpl, err := parsePrompt(s)
		if err != nil {
			return nil, err
		}
		e.kinds[kind] = &kindRuntime{
			schema:   s,
			pipeline: extract.NewPipeline(s),
			matcher:  extract.NewMatcher(s),
			prompt:   tmpl,
		}
	}
	return e, nil
}

// Schema returns the schema used for kind.
func (e *Engine) Schema(kind record.Kind) (*record.Schema, error) {
	rt, err := e.runtime(kind)
	if err != nil {
		return nil, err
	}
	return rt.schema, nil
}

func (e *Engine) runtime(kind record.Kind) (*kindRuntime, error) {
	rt, ok := e.kinds[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return rt, nil
}

func lockKey(kind record.Kind, sessionID string) string {
	return string(kind) + "/" + sessionID
}

// HandleTurn processes one user message. A blank sessionID starts a new
// session. Turns of the same session are handled one at a time.
func (e *Engine) HandleTurn(ctx context.Context, kind record.Kind, sessionID, message string, meta TurnMeta) (*TurnResult, error) {
	rt, err := e.runtime(kind)
	if err != nil {
		return nil, err
	}
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, ErrEmptyMessage
	}
	if sessionID = strings.TrimSpace(sessionID); sessionID == "" {
		sessionID = uuid.NewString()
	}
	s := rt.schema
	log := e.log.With("kind", kind, "session_id", sessionID)

	unlock := e.locks.lock(lockKey(kind, sessionID))
	defer unlock()

	res := &TurnResult{SessionID: sessionID, Kind: kind, Status: StatusOK}

	enabled, err := e.enabled(ctx, s)
	if err != nil {
		return nil, err
	}
	if !enabled {
		res.Status = StatusDisabled
		res.Response = s.Messages.Disabled
		return res, nil
	}

	history, err := e.store.History(ctx, kind, sessionID, 0)
	if err != nil {
		return nil, err
	}
	rec, err := e.loadRecord(ctx, kind, sessionID)
	if err != nil {
		return nil, err
	}
	if s.MaxTurns > 0 && len(history) >= s.MaxTurns {
		log.Info("turn limit reached", "turns", len(history))
		res.Status = StatusLimitReached
		res.Response = s.Messages.Limit
		res.Progress = record.Score(s, rec)
		res.Completed = rec.Completed
		res.Record = rec
		return res, nil
	}

	active := e.activeFields(rt, rec, history)
	det := e.detect(s, message, history)
	if det.Detected() {
		log.Debug("job detected", "title", det.Title, "wants_details", det.WantsDetails, "from_history", det.FromHistory)
	}
	res.Detected = det.Title

	prompt, opts, err := e.request(rt, rec, history, message, det, log)
	if err != nil {
		return nil, err
	}

	in := TurnInput{
		Active:            active,
		Message:           message,
		PriorUserMessages: lo.Map(history, func(t record.Turn, _ int) string { return t.UserMessage }),
		Detected:          det.Title,
	}

	var (
		staging  *Staging
		response string
		g        errgroup.Group
	)
	g.Go(func() error {
		var err error
		response, err = e.generate(ctx, prompt, opts)
		return err
	})
	g.Go(func() error {
		staging = StageTurn(rt.pipeline, rec, in)
		return nil
	})

	completed := false
	expected := active
	if err := g.Wait(); err != nil {
		log.Warn("generation failed, using fallback", "error", err)
		response = s.Messages.Fallback
		res.Status = StatusDegraded
		res.Degraded = true
	} else {
		completed, response = staging.Complete(response)
		expected = rt.matcher.Match(response)
	}
	if fields := staging.Fields(); len(fields) > 0 {
		log.Debug("staged fields", "fields", fields)
	}

	turn := &record.Turn{
		Kind:              kind,
		SessionID:         sessionID,
		UserMessage:       message,
		AssistantResponse: response,
		UserIP:            meta.UserIP,
		UserAgent:         meta.UserAgent,
	}
	// The client may go away once generation is done; the turn still commits.
	cr, err := e.store.CommitTurn(context.WithoutCancel(ctx), turn, store.RecordUpdate{
		Writes:   staging.Writes(),
		Complete: completed,
		Expected: expected,
	})
	if err != nil {
		return nil, fmt.Errorf("committing turn: %w", err)
	}
	if cr.Completed {
		log.Info("record completed", "fields", len(cr.Record.FieldNames()))
	}

	res.Response = response
	res.Written = cr.Written
	res.Record = cr.Record
	res.Completed = cr.Record.Completed
	res.Progress = record.Score(s, cr.Record)
	return res, nil
}

func (e *Engine) loadRecord(ctx context.Context, kind record.Kind, sessionID string) (*record.Record, error) {
	rec, err := e.store.GetRecord(ctx, kind, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return record.New(kind, sessionID), nil
	}
	return rec, err
}

// activeFields returns what the previous assistant turn asked for: the
// tagged fields stored with the record, else a re-match of the last
// assistant response, else the schema's opening fields on a new session.
func (e *Engine) activeFields(rt *kindRuntime, rec *record.Record, history []record.Turn) []string {
	if len(rec.Expected) > 0 {
		return rec.Expected
	}
	if n := len(history); n > 0 {
		return rt.matcher.Match(history[n-1].AssistantResponse)
	}
	return rt.schema.OpeningFields
}

func (e *Engine) detect(s *record.Schema, message string, history []record.Turn) catalog.Detection {
	if !s.DetectEntities || e.detector == nil {
		return catalog.Detection{}
	}
	start := max(0, len(history)-catalog.HistoryWindow)
	recent := lo.Map(history[start:], func(t record.Turn, _ int) catalog.Exchange {
		return catalog.Exchange{User: t.UserMessage, Assistant: t.AssistantResponse}
	})
	return e.detector.Detect(message, recent)
}

// request assembles the generation prompt and options for one turn.
func (e *Engine) request(rt *kindRuntime, rec *record.Record, history []record.Turn, message string, det catalog.Detection, log *logger.Logger) (string, llm.CompletionOpts, error) {
	var jobs []string
	var snap *catalog.Snapshot
	if e.catalog != nil {
		snap = e.catalog.Snapshot()
		jobs = snap.Titles()
	}
	system, err := renderPrompt(rt.prompt, rt.schema, rec, jobs)
	if err != nil {
		return "", llm.CompletionOpts{}, err
	}

	prompt := message
	switch {
	case det.Detected() && det.WantsDetails:
		if desc, ok := snap.Description(det.Title); ok {
			prompt = withJobDescription(message, det.Title, desc)
			log.Debug("job description injected", "title", det.Title)
		} else {
			log.Warn("job description missing", "title", det.Title)
		}
	case det.Detected():
		log.Debug("job description skipped, no details requested", "title", det.Title)
	}

	g := rt.schema.Generation
	return prompt, llm.CompletionOpts{
		System:      system,
		Temperature: g.Temperature,
		MaxTokens:   g.MaxTokens,
		History:     historyMessages(history, g.HistoryTurns),
	}, nil
}
