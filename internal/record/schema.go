package record

import (
	"embed"
	"fmt"
	"os"
	"strings"

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

//go:embed schemas/*.yaml
var schemaFS embed.FS

// ExtractorKind selects how a field's value is pulled out of a message.
type ExtractorKind string

const (
	ExtractEmail    ExtractorKind = "email"
	ExtractPhone    ExtractorKind = "phone"
	ExtractBoolean  ExtractorKind = "boolean"
	ExtractVerbatim ExtractorKind = "verbatim"
	ExtractName     ExtractorKind = "name"
	ExtractInteger  ExtractorKind = "integer"
	// ExtractNone marks fields written only on completion or by an operator.
	ExtractNone ExtractorKind = "none"
)

// FieldDef describes one field of a schema.
type FieldDef struct {
	Name        string        `yaml:"name"`
	Extractor   ExtractorKind `yaml:"extractor"`
	Description string        `yaml:"description"`
	Triggers    []string      `yaml:"triggers"`
	// Affirmative and Negative override the schema-wide yes/no tokens.
	Affirmative []string `yaml:"affirmative"`
	Negative    []string `yaml:"negative"`
	// DistinctFrom lists fields whose same-turn value this field must not repeat.
	DistinctFrom []string `yaml:"distinct_from"`
	Long         bool     `yaml:"long"`
	// Type overrides the value type for fields without an extractor.
	Type string `yaml:"type"`
}

// ValueType is the type of value the field's extractor produces.
func (f FieldDef) ValueType() ValueType {
	switch f.Type {
	case "bool":
		return TypeBool
	case "number":
		return TypeNumber
	case "text":
		return TypeText
	}
	switch f.Extractor {
	case ExtractBoolean:
		return TypeBool
	case ExtractInteger:
		return TypeNumber
	default:
		return TypeText
	}
}

// Milestone is satisfied when any of its fields is set.
type Milestone struct {
	Name  string   `yaml:"name"`
	AnyOf []string `yaml:"any_of"`
}

// Roles names the fields that get special merge treatment.
type Roles struct {
	Name     string `yaml:"name"`
	Email    string `yaml:"email"`
	Phone    string `yaml:"phone"`
	Position string `yaml:"position"`
}

// Completion describes when and how a record is marked complete.
type Completion struct {
	EndPhrases []string       `yaml:"end_phrases"`
	Required   []string       `yaml:"required"`
	Writes     map[string]any `yaml:"writes"`
	FollowUp   string         `yaml:"follow_up"`
}

// Generation holds the text-generation settings for a kind.
type Generation struct {
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	// HistoryTurns is how many prior turns go into the request; 0 sends all.
	HistoryTurns int `yaml:"history_turns"`
}

// Messages are the fixed texts returned without calling the generator.
type Messages struct {
	Disabled string `yaml:"disabled"`
	Limit    string `yaml:"limit"`
	Fallback string `yaml:"fallback"`
}

// Schema is the static description of one record kind.
type Schema struct {
	Kind             Kind        `yaml:"kind"`
	Roles            Roles       `yaml:"roles"`
	Fields           []FieldDef  `yaml:"fields"`
	OpeningFields    []string    `yaml:"opening_fields"`
	Affirmative      []string    `yaml:"affirmative"`
	Negative         []string    `yaml:"negative"`
	PositionKeywords []string    `yaml:"position_keywords"`
	DetectEntities   bool        `yaml:"detect_entities"`
	Milestones       []Milestone `yaml:"milestones"`
	Completion       Completion  `yaml:"completion"`
	EnabledSetting   string      `yaml:"enabled_setting"`
	MaxTurns         int         `yaml:"max_turns"`
	Generation       Generation  `yaml:"generation"`
	Messages         Messages    `yaml:"messages"`
	SystemPrompt     string      `yaml:"system_prompt"`

	index           map[string]int
	completionWrite map[string]Value
}

// Load returns the built-in schema for kind.
func Load(kind Kind) (*Schema, error) {
	data, err := schemaFS.ReadFile("schemas/" + string(kind) + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("no built-in schema for %q: %w", kind, err)
	}
	return Parse(data)
}

// LoadFile reads a schema from disk.
func LoadFile(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading schema %s: %w", path, err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("schema %s: %w", path, err)
	}
	return s, nil
}

// Parse decodes and validates a YAML schema.
func Parse(data []byte) (*Schema, error) {
	var s Schema
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing schema: %w", err)
	}
	if err := s.init(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Schema) init() error {
	kind, ok := ParseKind(string(s.Kind))
	if !ok {
		return fmt.Errorf("schema has unknown kind %q", s.Kind)
	}
	s.Kind = kind
	s.index = make(map[string]int, len(s.Fields))
	for i, f := range s.Fields {
		if f.Name == "" {
			return fmt.Errorf("field %d has no name", i)
		}
		if _, dup := s.index[f.Name]; dup {
			return fmt.Errorf("duplicate field %q", f.Name)
		}
		switch f.Extractor {
		case ExtractEmail, ExtractPhone, ExtractBoolean, ExtractVerbatim, ExtractName, ExtractInteger, ExtractNone:
		case "":
			s.Fields[i].Extractor = ExtractVerbatim
		default:
			return fmt.Errorf("field %q: unknown extractor %q", f.Name, f.Extractor)
		}
		s.index[f.Name] = i
	}

	refs := []string{s.Roles.Name, s.Roles.Email, s.Roles.Phone, s.Roles.Position}
	refs = append(refs, s.OpeningFields...)
	refs = append(refs, s.Completion.Required...)
	for _, m := range s.Milestones {
		refs = append(refs, m.AnyOf...)
	}
	for _, f := range s.Fields {
		refs = append(refs, f.DistinctFrom...)
	}
	for _, name := range lo.Compact(refs) {
		if _, ok := s.index[name]; !ok {
			return fmt.Errorf("schema references unknown field %q", name)
		}
	}

	s.completionWrite = make(map[string]Value, len(s.Completion.Writes))
	for name, raw := range s.Completion.Writes {
		if _, ok := s.index[name]; !ok {
			return fmt.Errorf("completion writes unknown field %q", name)
		}
		v, err := FromAny(raw)
		if err != nil {
			return fmt.Errorf("completion write %q: %w", name, err)
		}
		s.completionWrite[name] = v
	}
	if s.MaxTurns <= 0 {
		s.MaxTurns = 60
	}
	return nil
}

// Field looks up a field definition by name.
func (s *Schema) Field(name string) (FieldDef, bool) {
	i, ok := s.index[name]
	if !ok {
		return FieldDef{}, false
	}
	return s.Fields[i], true
}

// FieldNames returns every field name in declaration order.
func (s *Schema) FieldNames() []string {
	return lo.Map(s.Fields, func(f FieldDef, _ int) string { return f.Name })
}

// CompletionWrites returns the values staged when a record completes.
func (s *Schema) CompletionWrites() map[string]Value {
	out := make(map[string]Value, len(s.completionWrite))
	for k, v := range s.completionWrite {
		out[k] = v
	}
	return out
}

// AffirmativeFor returns the affirmative tokens that apply to f.
func (s *Schema) AffirmativeFor(f FieldDef) []string {
	if len(f.Affirmative) > 0 {
		return f.Affirmative
	}
	return s.Affirmative
}

// NegativeFor returns the negative tokens that apply to f.
func (s *Schema) NegativeFor(f FieldDef) []string {
	if len(f.Negative) > 0 {
		return f.Negative
	}
	return s.Negative
}

// Coerce converts a loosely typed value (from an operator edit or an audit
// response) into the field's value type.
func (s *Schema) Coerce(name string, raw any) (Value, error) {
	f, ok := s.Field(name)
	if !ok {
		return Absent(), fmt.Errorf("unknown field %q", name)
	}
	v, err := FromAny(raw)
	if err != nil {
		return Absent(), fmt.Errorf("field %q: %w", name, err)
	}
	if v.IsAbsent() || v.Type() == f.ValueType() {
		return v, nil
	}

	switch f.ValueType() {
	case TypeText:
		return Text(v.String()), nil
	case TypeBool:
		if t, ok := v.AsText(); ok {
			switch strings.ToLower(strings.TrimSpace(t)) {
			case "true", "si", "sí", "yes", "1":
				return Bool(true), nil
			case "false", "no", "0":
				return Bool(false), nil
			}
		}
		if n, ok := v.AsNumber(); ok {
			return Bool(n != 0), nil
		}
	case TypeNumber:
		if t, ok := v.AsText(); ok {
			var f float64
			if _, err := fmt.Sscanf(strings.TrimSpace(t), "%g", &f); err == nil {
				return Number(f), nil
			}
		}
	}
	return Absent(), fmt.Errorf("field %q: cannot use %s value %q", name, v.Type(), v.String())
}
