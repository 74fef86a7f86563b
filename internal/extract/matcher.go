package extract

import (
	"strings"

	"github.com/hurttlocker/intake/internal/normalization"
	"github.com/hurttlocker/intake/internal/record"
)

// Matcher decides which fields an assistant utterance is asking about.
type Matcher struct {
	entries []matchEntry
}

type matchEntry struct {
	field    string
	triggers []string
}

// NewMatcher folds the trigger phrases of every field once.
func NewMatcher(schema *record.Schema) *Matcher {
	m := &Matcher{}
	for _, f := range schema.Fields {
		var folded []string
		for _, t := range f.Triggers {
			if ft := normalization.Fold(strings.TrimSpace(t)); ft != "" {
				folded = append(folded, ft)
			}
		}
		if len(folded) > 0 {
			m.entries = append(m.entries, matchEntry{field: f.Name, triggers: folded})
		}
	}
	return m
}

// Match returns every field, in schema order, with a trigger phrase contained
// in the utterance. Comparison ignores case and accents.
func (m *Matcher) Match(utterance string) []string {
	u := normalization.Fold(utterance)
	if strings.TrimSpace(u) == "" {
		return nil
	}
	var out []string
	for _, e := range m.entries {
		for _, t := range e.triggers {
			if strings.Contains(u, t) {
				out = append(out, e.field)
				break
			}
		}
	}
	return out
}

// Active reports whether field is in the active set.
func Active(active []string, field string) bool {
	for _, a := range active {
		if a == field {
			return true
		}
	}
	return false
}
