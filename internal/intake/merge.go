package intake

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/hurttlocker/intake/internal/extract"
	"github.com/hurttlocker/intake/internal/normalization"
	"github.com/hurttlocker/intake/internal/record"
)

// TurnInput is what the merge policy sees of one user turn.
type TurnInput struct {
	// Active lists the fields the previous assistant turn asked for.
	Active []string
	// Message is the current user message.
	Message string
	// PriorUserMessages are the session's earlier user messages, oldest first.
	PriorUserMessages []string
	// Detected is the catalog title found in the conversation, if any.
	Detected string
}

// Staging accumulates the write set of one turn. A field that already holds
// a value, in the record or earlier in the same staging, is never staged.
type Staging struct {
	schema *record.Schema
	rec    *record.Record
	writes map[string]record.Value
	order  []string
}

func newStaging(schema *record.Schema, rec *record.Record) *Staging {
	return &Staging{schema: schema, rec: rec, writes: map[string]record.Value{}}
}

// Has reports whether a field is set in the record or staged.
func (s *Staging) Has(name string) bool {
	if s.rec.Has(name) {
		return true
	}
	_, ok := s.writes[name]
	return ok
}

// Stage adds a write unless the field is taken or v is absent. Text equal to
// what this turn staged into one of the field's distinct_from fields is
// dropped.
func (s *Staging) Stage(name string, v record.Value) bool {
	if name == "" || v.IsAbsent() || s.Has(name) {
		return false
	}
	if f, ok := s.schema.Field(name); ok {
		for _, other := range f.DistinctFrom {
			if w, staged := s.writes[other]; staged && w.Equal(v) {
				return false
			}
		}
	}
	s.writes[name] = v
	s.order = append(s.order, name)
	return true
}

// Writes returns the staged values.
func (s *Staging) Writes() map[string]record.Value {
	out := make(map[string]record.Value, len(s.writes))
	for k, v := range s.writes {
		out[k] = v
	}
	return out
}

// Fields returns staged field names in staging order.
func (s *Staging) Fields() []string {
	return append([]string(nil), s.order...)
}

// StageTurn applies the merge policy to one user message:
//   - every active field whose extractor yields a value
//   - email and phone on every turn, falling back to all user messages
//   - the position from the detected catalog entry or the keyword table
func StageTurn(p *extract.Pipeline, rec *record.Record, in TurnInput) *Staging {
	schema := p.Schema()
	if rec == nil {
		rec = record.New(schema.Kind, "")
	}
	s := newStaging(schema, rec)

	for _, x := range p.Extract(in.Active, in.Message) {
		s.Stage(x.Field, x.Value)
	}

	var transcript string
	userTranscript := func() string {
		if transcript == "" {
			transcript = strings.Join(append(append([]string(nil), in.PriorUserMessages...), in.Message), "\n")
		}
		return transcript
	}
	if name := schema.Roles.Email; name != "" && !s.Has(name) {
		if v, ok := p.Email(in.Message); ok {
			s.Stage(name, record.Text(v))
		} else if v, ok := p.Email(userTranscript()); ok {
			s.Stage(name, record.Text(v))
		}
	}
	if name := schema.Roles.Phone; name != "" && !s.Has(name) {
		if v, ok := p.Phone(in.Message); ok {
			s.Stage(name, record.Text(v))
		} else if v, ok := p.Phone(userTranscript()); ok {
			s.Stage(name, record.Text(v))
		}
	}

	if name := schema.Roles.Position; name != "" && !s.Has(name) {
		if in.Detected != "" {
			s.Stage(name, record.Text(in.Detected))
		} else if kw, ok := normalization.ContainsAny(in.Message, schema.PositionKeywords); ok {
			s.Stage(name, record.Text(capitalize(kw)))
		}
	}
	return s
}

// Complete decides completion on the assistant response. It stages the
// schema's completion writes and returns the response with the follow-up
// appended when an end phrase is present, every required field is set and
// the record was not completed before.
func (s *Staging) Complete(response string) (bool, string) {
	if s.rec.Completed || strings.TrimSpace(response) == "" {
		return false, response
	}
	c := s.schema.Completion
	if _, ok := normalization.ContainsAny(response, c.EndPhrases); !ok {
		return false, response
	}
	for _, name := range c.Required {
		if !s.Has(name) {
			return false, response
		}
	}
	writes := s.schema.CompletionWrites()
	for _, name := range s.schema.FieldNames() {
		if v, ok := writes[name]; ok {
			s.Stage(name, v)
		}
	}
	return true, response + c.FollowUp
}

func capitalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
