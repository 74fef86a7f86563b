package intake

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/hurttlocker/intake/internal/llm"
	"github.com/hurttlocker/intake/internal/record"
)

// sectionField names the survey's progress marker, shown to the model.
const sectionField = "current_section"

// promptData is what a schema's system_prompt template can reference.
type promptData struct {
	Jobs    []string
	Pending []string
	Section string
}

func parsePrompt(s *record.Schema) (*template.Template, error) {
	tmpl, err := template.New(string(s.Kind)).
		Funcs(template.FuncMap{"join": strings.Join}).
		Option("missingkey=zero").
		Parse(s.SystemPrompt)
	if err != nil {
		return nil, fmt.Errorf("parsing %s system prompt: %w", s.Kind, err)
	}
	return tmpl, nil
}

func renderPrompt(tmpl *template.Template, s *record.Schema, rec *record.Record, jobs []string) (string, error) {
	data := promptData{
		Jobs:    jobs,
		Pending: record.PendingMilestones(s, rec),
		Section: "Inicio",
	}
	if v, ok := rec.Get(sectionField).AsText(); ok {
		data.Section = v
	}
	var b strings.Builder
	if err := tmpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf("rendering %s system prompt: %w", s.Kind, err)
	}
	return b.String(), nil
}

// historyMessages converts the most recent n turns (all when n <= 0) into
// alternating user/assistant messages.
func historyMessages(turns []record.Turn, n int) []llm.Message {
	if n > 0 && len(turns) > n {
		turns = turns[len(turns)-n:]
	}
	out := make([]llm.Message, 0, 2*len(turns))
	for _, t := range turns {
		out = append(out,
			llm.Message{Role: llm.RoleUser, Text: t.UserMessage},
			llm.Message{Role: llm.RoleAssistant, Text: t.AssistantResponse},
		)
	}
	return out
}

// withJobDescription appends a job description block to the user message.
func withJobDescription(message, title, description string) string {
	return fmt.Sprintf("%s\n\n<job_description>\nDetalles del puesto %s:\n%s\n</job_description>", message, title, description)
}
