// Package llm provides a provider-agnostic text-generation adapter.
// Used for assistant turns in intake conversations and for transcript audits.
// Google and OpenRouter speak REST via net/http; OpenAI goes through the
// official SDK.
package llm

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

// Provider is the interface for LLM completions.
type Provider interface {
	// Complete sends a prompt, after any prior turns in opts.History, and
	// returns the response text.
	Complete(ctx context.Context, prompt string, opts CompletionOpts) (string, error)
	// Name returns a human-readable provider name (e.g., "google/gemini-2.5-flash").
	Name() string
}

// Role identifies who produced a history message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one prior conversation message.
type Message struct {
	Role Role
	Text string
}

// CompletionOpts configures a single completion request.
type CompletionOpts struct {
	MaxTokens   int       // Max tokens to generate (0 = provider default)
	Temperature float64   // 0.0-2.0 (0 = deterministic)
	Model       string    // Override model for this request (empty = use provider default)
	Format      string    // "json" for structured output, empty for plain text
	System      string    // System prompt (optional)
	History     []Message // Prior turns, oldest first
}

// Config holds provider configuration.
type Config struct {
	Provider string // "google", "openrouter", "openai"
	Model    string // e.g., "gemini-2.5-flash", "openai/gpt-4o-mini"
	APIKey   string // API key (empty = read from env)
	BaseURL  string // Optional URL override
}

// APIError is a non-2xx response from an upstream API.
type APIError struct {
	Provider   string
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error (status %d): %s", e.Provider, e.StatusCode, e.Body)
}

// Temporary reports whether retrying the call may succeed.
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

func newAPIError(provider string, resp *http.Response, body []byte) *APIError {
	e := &APIError{Provider: provider, StatusCode: resp.StatusCode, Body: string(body)}
	if ra := resp.Header.Get("Retry-After"); ra != "" {
		if seconds, err := strconv.Atoi(ra); err == nil {
			e.RetryAfter = time.Duration(seconds) * time.Second
		}
	}
	return e
}

// NewProvider creates an LLM provider from the given config.
func NewProvider(cfg Config) (Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case "google":
		key := firstEnv(cfg.APIKey, "GEMINI_API_KEY", "GOOGLE_API_KEY")
		if key == "" {
			return nil, fmt.Errorf("google provider requires GEMINI_API_KEY or GOOGLE_API_KEY env var")
		}
		return &googleProvider{
			apiKey:  key,
			model:   orDefault(cfg.Model, "gemini-2.5-flash"),
			baseURL: orDefault(cfg.BaseURL, "https://generativelanguage.googleapis.com/v1beta"),
		}, nil

	case "openrouter":
		key := firstEnv(cfg.APIKey, "OPENROUTER_API_KEY")
		if key == "" {
			return nil, fmt.Errorf("openrouter provider requires OPENROUTER_API_KEY env var")
		}
		return &openrouterProvider{
			apiKey:  key,
			model:   orDefault(cfg.Model, "openai/gpt-4o-mini"),
			baseURL: orDefault(cfg.BaseURL, "https://openrouter.ai/api/v1"),
		}, nil

	case "openai":
		key := firstEnv(cfg.APIKey, "OPENAI_API_KEY")
		if key == "" {
			return nil, fmt.Errorf("openai provider requires OPENAI_API_KEY env var")
		}
		return newOpenAIProvider(key, orDefault(cfg.Model, "gpt-4o-mini"), cfg.BaseURL), nil

	default:
		return nil, fmt.Errorf("unknown LLM provider: %q (supported: google, openrouter, openai)", cfg.Provider)
	}
}

// ParseLLMFlag parses a --llm flag value into a Config.
// Format: "provider/model" e.g., "google/gemini-2.5-flash", "openrouter/openai/gpt-4o-mini"
func ParseLLMFlag(flag string) (Config, error) {
	if flag == "" {
		return Config{Provider: "google", Model: "gemini-2.5-flash"}, nil
	}

	parts := strings.SplitN(flag, "/", 2)
	if len(parts) < 2 || parts[1] == "" {
		return Config{}, fmt.Errorf("invalid --llm format %q: expected provider/model (e.g., google/gemini-2.5-flash)", flag)
	}

	provider := strings.ToLower(parts[0])
	switch provider {
	case "google", "openrouter", "openai":
		return Config{Provider: provider, Model: parts[1]}, nil
	default:
		return Config{}, fmt.Errorf("unknown provider %q in --llm flag (supported: google, openrouter, openai)", provider)
	}
}

func firstEnv(explicit string, keys ...string) string {
	if explicit != "" {
		return explicit
	}
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return ""
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
