// Package extract pulls typed field values out of free-text answers.
//
// Extraction is rule based and never fails: a message either yields a value
// for a field or it does not. Which fields are attempted for a message is
// decided by the Matcher from what the assistant asked in the previous turn.
// Supported extractors:
//   - email and phone (regex, first match)
//   - yes/no answers (affirmative tokens win over negative ones)
//   - verbatim open text
//   - person names (capitalization heuristic)
//   - small integers (digits or number words)
//
// An optional LLM pass (Auditor) re-reads a whole transcript and proposes
// values for every field of the schema.
package extract

import (
	"regexp"
	"strings"

	"github.com/hurttlocker/intake/internal/record"
)

// Extraction is one value pulled out of a message.
type Extraction struct {
	Field  string              `json:"field"`
	Value  record.Value        `json:"value"`
	Method record.ExtractorKind `json:"method"`
}

// Pipeline runs the extractors configured by a schema.
type Pipeline struct {
	schema        *record.Schema
	regexPatterns map[record.ExtractorKind]*regexPattern
}

// regexPattern is a data type pattern matched against the raw message.
type regexPattern struct {
	regex *regexp.Regexp
	name  string
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithPattern replaces the regex used for a regex-backed extractor.
func WithPattern(kind record.ExtractorKind, re *regexp.Regexp) PipelineOption {
	return func(p *Pipeline) {
		p.regexPatterns[kind] = &regexPattern{regex: re, name: string(kind)}
	}
}

// NewPipeline creates a pipeline for the given schema.
func NewPipeline(schema *record.Schema, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		schema:        schema,
		regexPatterns: initRegexPatterns(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func initRegexPatterns() map[record.ExtractorKind]*regexPattern {
	return map[record.ExtractorKind]*regexPattern{
		record.ExtractEmail: {regex: emailRE, name: "email"},
		record.ExtractPhone: {regex: phoneRE, name: "phone"},
	}
}

// Schema returns the schema the pipeline was built for.
func (p *Pipeline) Schema() *record.Schema { return p.schema }

// Field runs the extractor of field f against message.
func (p *Pipeline) Field(f record.FieldDef, message string) (record.Value, bool) {
	switch f.Extractor {
	case record.ExtractEmail, record.ExtractPhone:
		if s, ok := p.firstMatch(f.Extractor, message); ok {
			return record.Text(s), true
		}
	case record.ExtractBoolean:
		if b, ok := YesNo(message, p.schema.AffirmativeFor(f), p.schema.NegativeFor(f)); ok {
			return record.Bool(b), true
		}
	case record.ExtractVerbatim:
		if s, ok := Verbatim(message); ok {
			return record.Text(s), true
		}
	case record.ExtractName:
		if s, ok := Name(message, p.schema.Affirmative); ok {
			return record.Text(s), true
		}
	case record.ExtractInteger:
		if n, ok := Integer(message); ok {
			return record.Number(float64(n)), true
		}
	}
	return record.Absent(), false
}

// Email returns the first email address in message.
func (p *Pipeline) Email(message string) (string, bool) {
	return p.firstMatch(record.ExtractEmail, message)
}

// Phone returns the first phone number in message.
func (p *Pipeline) Phone(message string) (string, bool) {
	return p.firstMatch(record.ExtractPhone, message)
}

// Extract runs the extractors of the active fields, in schema order, and
// returns every value found. Unknown field names are ignored.
func (p *Pipeline) Extract(active []string, message string) []Extraction {
	if len(active) == 0 || strings.TrimSpace(message) == "" {
		return nil
	}
	want := make(map[string]bool, len(active))
	for _, a := range active {
		want[a] = true
	}

	var out []Extraction
	for _, f := range p.schema.Fields {
		if !want[f.Name] {
			continue
		}
		if v, ok := p.Field(f, message); ok {
			out = append(out, Extraction{Field: f.Name, Value: v, Method: f.Extractor})
		}
	}
	return out
}

func (p *Pipeline) firstMatch(kind record.ExtractorKind, message string) (string, bool) {
	rp, ok := p.regexPatterns[kind]
	if !ok {
		return "", false
	}
	m := strings.TrimSpace(rp.regex.FindString(message))
	if m == "" {
		return "", false
	}
	return m, true
}
