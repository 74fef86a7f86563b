package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hurttlocker/intake/internal/llm"
	"github.com/hurttlocker/intake/internal/record"
)

const auditSystemPrompt = `Eres un sistema de extracción de datos. Lee la conversación completa y
devuelve un objeto JSON con TODOS los campos listados.

REGLAS:
1. Usa solo información dicha explícitamente por el usuario; nunca inventes.
2. Si un dato no aparece, usa null.
3. Campos booleanos: true o false. Campos numéricos: número. El resto: texto.
4. Devuelve únicamente el objeto JSON, sin texto adicional.`

// AuditResult is the outcome of an audit pass.
type AuditResult struct {
	Values map[string]record.Value `json:"values"`
	// Skipped lists fields whose proposed value could not be typed.
	Skipped []string `json:"skipped,omitempty"`
}

// Auditor asks an LLM to re-read a whole transcript and propose a value for
// every field of a schema.
type Auditor struct {
	provider   llm.Provider
	schema     *record.Schema
	maxRetries int
	backoff    func(attempt int) time.Duration
}

// AuditorOption configures an Auditor.
type AuditorOption func(*Auditor)

// WithMaxRetries sets how many times a failed call is retried.
func WithMaxRetries(n int) AuditorOption {
	return func(a *Auditor) { a.maxRetries = n }
}

// WithBackoff overrides the delay between retries.
func WithBackoff(f func(attempt int) time.Duration) AuditorOption {
	return func(a *Auditor) { a.backoff = f }
}

// NewAuditor creates an Auditor. Retries back off 1s, 2s, 4s...
func NewAuditor(p llm.Provider, schema *record.Schema, opts ...AuditorOption) *Auditor {
	a := &Auditor{
		provider:   p,
		schema:     schema,
		maxRetries: 2,
		backoff:    func(attempt int) time.Duration { return time.Duration(1<<attempt) * time.Second },
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Audit extracts field values from the transcript. Fields the model reports
// as null are left out of the result.
func (a *Auditor) Audit(ctx context.Context, turns []record.Turn) (*AuditResult, error) {
	if len(turns) == 0 {
		return &AuditResult{Values: map[string]record.Value{}}, nil
	}
	prompt := a.buildPrompt(turns)
	opts := llm.CompletionOpts{
		System:      auditSystemPrompt,
		Temperature: 0.1,
		MaxTokens:   2000,
		Format:      "json",
	}

	var lastErr error
	for attempt := 0; attempt <= a.maxRetries; attempt++ {
		raw, err := a.provider.Complete(ctx, prompt, opts)
		if err == nil {
			res, perr := a.parse(raw)
			if perr == nil {
				return res, nil
			}
			err = perr
		}
		lastErr = err

		if attempt == a.maxRetries {
			break
		}

		wait := a.backoff(attempt)
		var apiErr *llm.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == 429 && apiErr.RetryAfter > 0 {
			wait = apiErr.RetryAfter
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil, fmt.Errorf("audit failed after %d attempts: %w", a.maxRetries+1, lastErr)
}

func (a *Auditor) buildPrompt(turns []record.Turn) string {
	var b strings.Builder
	b.WriteString("CAMPOS:\n")
	for _, f := range a.schema.Fields {
		fmt.Fprintf(&b, "- %s (%s): %s\n", f.Name, f.ValueType(), f.Description)
	}
	b.WriteString("\nCONVERSACIÓN:\n")
	for _, t := range turns {
		fmt.Fprintf(&b, "Usuario: %s\nAsistente: %s\n\n", t.UserMessage, t.AssistantResponse)
	}
	b.WriteString("Devuelve el objeto JSON con los campos.")
	return b.String()
}

func (a *Auditor) parse(raw string) (*AuditResult, error) {
	content := StripCodeFence(raw)
	dec := json.NewDecoder(bytes.NewReader([]byte(content)))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	res := &AuditResult{Values: map[string]record.Value{}}
	for name, v := range obj {
		if v == nil {
			continue
		}
		if _, ok := a.schema.Field(name); !ok {
			continue
		}
		val, err := a.schema.Coerce(name, v)
		if err != nil || val.IsAbsent() {
			res.Skipped = append(res.Skipped, name)
			continue
		}
		res.Values[name] = val
	}
	sort.Strings(res.Skipped)
	return res, nil
}

// StripCodeFence removes a surrounding markdown code fence (```json ... ```)
// from an LLM response.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
