// Package record defines the partial records filled in by intake
// conversations, the turns that produce them, and the schemas that describe
// which fields exist, how they are extracted and when a record is complete.
package record

import (
	"sort"
	"time"
)

// Kind names a record kind. Each kind has its own schema.
type Kind string

const (
	KindInterview Kind = "interview"
	KindSurvey    Kind = "survey"
)

// ParseKind maps a user-facing name to a Kind.
func ParseKind(s string) (Kind, bool) {
	switch s {
	case "interview", "candidate", "chat":
		return KindInterview, true
	case "survey":
		return KindSurvey, true
	}
	return "", false
}

// Turn is one user message and the assistant response it produced.
type Turn struct {
	ID                int64     `json:"id"`
	Kind              Kind      `json:"kind"`
	SessionID         string    `json:"session_id"`
	Seq               int       `json:"seq"`
	UserMessage       string    `json:"user_message"`
	AssistantResponse string    `json:"assistant_response"`
	UserIP            string    `json:"user_ip,omitempty"`
	UserAgent         string    `json:"user_agent,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// Record is the partial record of one session.
type Record struct {
	Kind      Kind             `json:"kind"`
	SessionID string           `json:"session_id"`
	Fields    map[string]Value `json:"fields"`
	Completed bool             `json:"completed"`
	// Expected lists the fields the last assistant response asked for.
	Expected  []string  `json:"expected,omitempty"`
	UserIP    string    `json:"user_ip,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New returns an empty record.
func New(kind Kind, sessionID string) *Record {
	return &Record{
		Kind:      kind,
		SessionID: sessionID,
		Fields:    map[string]Value{},
	}
}

// Get returns the value of a field, absent if unset.
func (r *Record) Get(name string) Value {
	if r == nil || r.Fields == nil {
		return Absent()
	}
	return r.Fields[name]
}

// Has reports whether a field holds a non-absent value.
func (r *Record) Has(name string) bool {
	return !r.Get(name).IsAbsent()
}

// SetIfAbsent writes v when the field is absent and v is not. It reports
// whether the write happened.
func (r *Record) SetIfAbsent(name string, v Value) bool {
	if v.IsAbsent() || r.Has(name) {
		return false
	}
	if r.Fields == nil {
		r.Fields = map[string]Value{}
	}
	r.Fields[name] = v
	return true
}

// Clone returns a deep copy of r.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	out.Fields = make(map[string]Value, len(r.Fields))
	for k, v := range r.Fields {
		out.Fields[k] = v
	}
	out.Expected = append([]string(nil), r.Expected...)
	return &out
}

// FieldNames returns the names of the non-absent fields, sorted.
func (r *Record) FieldNames() []string {
	names := make([]string, 0, len(r.Fields))
	for k, v := range r.Fields {
		if !v.IsAbsent() {
			names = append(names, k)
		}
	}
	sort.Strings(names)
	return names
}
