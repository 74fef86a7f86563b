package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestParseLLMFlag(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantProv string
		wantMod  string
		wantErr  bool
	}{
		{"empty defaults to google", "", "google", "gemini-2.5-flash", false},
		{"google flash", "google/gemini-2.5-flash", "google", "gemini-2.5-flash", false},
		{"openrouter model", "openrouter/openai/gpt-4o-mini", "openrouter", "openai/gpt-4o-mini", false},
		{"openai model", "openai/gpt-4o-mini", "openai", "gpt-4o-mini", false},
		{"unknown provider", "anthropic/claude", "", "", true},
		{"no slash", "gemini-2.5-flash", "", "", true},
		{"empty model", "google/", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := ParseLLMFlag(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if cfg.Provider != tt.wantProv {
				t.Errorf("provider: got %q, want %q", cfg.Provider, tt.wantProv)
			}
			if cfg.Model != tt.wantMod {
				t.Errorf("model: got %q, want %q", cfg.Model, tt.wantMod)
			}
		})
	}
}

func TestNewProviderErrors(t *testing.T) {
	_, err := NewProvider(Config{Provider: "unknown"})
	if err == nil {
		t.Fatal("expected error for unknown provider")
	}

	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")
	if _, err := NewProvider(Config{Provider: "google"}); err == nil {
		t.Fatal("expected error for google without API key")
	}

	t.Setenv("OPENROUTER_API_KEY", "")
	if _, err := NewProvider(Config{Provider: "openrouter"}); err == nil {
		t.Fatal("expected error for openrouter without API key")
	}

	t.Setenv("OPENAI_API_KEY", "")
	if _, err := NewProvider(Config{Provider: "openai"}); err == nil {
		t.Fatal("expected error for openai without API key")
	}
}

func TestNewProviderFromEnv(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "g-key")
	p, err := NewProvider(Config{Provider: "google"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Name() != "google/gemini-2.5-flash" {
		t.Errorf("unexpected name: %q", p.Name())
	}

	t.Setenv("OPENAI_API_KEY", "o-key")
	p, err = NewProvider(Config{Provider: "openai", Model: "gpt-4o"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Name() != "openai/gpt-4o" {
		t.Errorf("unexpected name: %q", p.Name())
	}
}

func googleOK(text string) googleResponse {
	return googleResponse{
		Candidates: []googleCandidate{
			{Content: googleContent{Parts: []googlePart{{Text: text}}}},
		},
	}
}

func TestGoogleProviderComplete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.Header.Get("x-goog-api-key") != "test-key" {
			t.Errorf("missing api key header")
		}

		var req googleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding request: %v", err)
			return
		}
		if len(req.Contents) != 3 {
			t.Errorf("expected 2 history turns + prompt, got %d contents", len(req.Contents))
			return
		}
		if req.Contents[0].Role != "user" || req.Contents[1].Role != "model" || req.Contents[2].Role != "user" {
			t.Errorf("unexpected roles: %q %q %q", req.Contents[0].Role, req.Contents[1].Role, req.Contents[2].Role)
		}
		if req.Contents[2].Parts[0].Text != "Soy Ana López" {
			t.Errorf("unexpected prompt: %q", req.Contents[2].Parts[0].Text)
		}
		if req.GenerationConfig == nil || req.GenerationConfig.MaxOutputTokens != 500 {
			t.Errorf("max tokens not forwarded")
		}
		if req.SystemInstruction == nil || req.SystemInstruction.Parts[0].Text != "Eres Petrof" {
			t.Errorf("system instruction not sent")
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(googleOK("  Gracias, Ana.  "))
	}))
	defer server.Close()

	p := &googleProvider{apiKey: "test-key", model: "gemini-2.5-flash", baseURL: server.URL}
	result, err := p.Complete(context.Background(), "Soy Ana López", CompletionOpts{
		MaxTokens:   500,
		Temperature: 0.7,
		System:      "Eres Petrof",
		History: []Message{
			{Role: RoleUser, Text: "Hola"},
			{Role: RoleAssistant, Text: "¿Cuál es tu nombre completo?"},
			{Role: RoleUser, Text: "   "},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "Gracias, Ana." {
		t.Errorf("unexpected result: %q", result)
	}
}

func TestGoogleProviderName(t *testing.T) {
	p := &googleProvider{model: "gemini-2.5-flash"}
	if p.Name() != "google/gemini-2.5-flash" {
		t.Errorf("unexpected name: %q", p.Name())
	}
}

func TestGoogleProviderAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"code":429,"message":"quota","status":"RESOURCE_EXHAUSTED"}}`))
	}))
	defer server.Close()

	p := &googleProvider{apiKey: "test", model: "test", baseURL: server.URL}
	_, err := p.Complete(context.Background(), "test", CompletionOpts{})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusTooManyRequests || apiErr.RetryAfter != 7*time.Second {
		t.Errorf("unexpected api error: %+v", apiErr)
	}
	if !apiErr.Temporary() {
		t.Error("429 should be temporary")
	}
}

func TestGoogleProviderEmptyCandidates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(googleResponse{})
	}))
	defer server.Close()

	p := &googleProvider{apiKey: "test", model: "test", baseURL: server.URL}
	if _, err := p.Complete(context.Background(), "test", CompletionOpts{}); err == nil {
		t.Fatal("expected error for empty candidates")
	}
}

func TestOpenRouterProviderComplete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("bad auth header: %q", r.Header.Get("Authorization"))
		}

		var req orRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Model != "openai/gpt-4o-mini" {
			t.Errorf("unexpected model: %q", req.Model)
		}
		if len(req.Messages) != 4 {
			t.Errorf("expected system+2 history+user, got %d", len(req.Messages))
		} else if req.Messages[0].Role != "system" || req.Messages[2].Role != "assistant" {
			t.Errorf("unexpected roles: %+v", req.Messages)
		}
		if req.ResponseFormat == nil || req.ResponseFormat.Type != "json_object" {
			t.Errorf("json format not requested")
		}

		json.NewEncoder(w).Encode(orResponse{
			Choices: []orChoice{{Message: orMessage{Role: "assistant", Content: `{"name":"Ana"}`}, FinishReason: "stop"}},
		})
	}))
	defer server.Close()

	p := &openrouterProvider{apiKey: "test-key", model: "openai/gpt-4o-mini", baseURL: server.URL}
	result, err := p.Complete(context.Background(), "test", CompletionOpts{
		System: "extract",
		Format: "json",
		History: []Message{
			{Role: RoleUser, Text: "hola"},
			{Role: RoleAssistant, Text: "¿nombre?"},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != `{"name":"Ana"}` {
		t.Errorf("unexpected result: %q", result)
	}
}

func TestOpenRouterProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`{"error":{"message":"upstream","type":"server"}}`))
	}))
	defer server.Close()

	p := &openrouterProvider{apiKey: "test", model: "test", baseURL: server.URL}
	_, err := p.Complete(context.Background(), "test", CompletionOpts{})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || !apiErr.Temporary() {
		t.Fatalf("expected temporary *APIError, got %v", err)
	}
}

func TestContextCancellation(t *testing.T) {
	serverDone := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(5 * time.Second):
		case <-serverDone:
		}
	}))
	defer func() {
		close(serverDone)
		server.Close()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	p := &googleProvider{apiKey: "test", model: "test", baseURL: server.URL}
	if _, err := p.Complete(ctx, "test", CompletionOpts{}); err == nil {
		t.Fatal("expected context cancellation error")
	}
}

type countingProvider struct{ calls atomic.Int32 }

func (c *countingProvider) Complete(ctx context.Context, prompt string, opts CompletionOpts) (string, error) {
	c.calls.Add(1)
	return "ok", nil
}

func (c *countingProvider) Name() string { return "test/counting" }

func TestWithRateLimit(t *testing.T) {
	inner := &countingProvider{}
	if WithRateLimit(inner, 0, 0) != Provider(inner) {
		t.Fatal("zero rate should return the provider unchanged")
	}

	p := WithRateLimit(inner, 1, 1)
	if p.Name() != "test/counting" {
		t.Errorf("name should pass through, got %q", p.Name())
	}
	if _, err := p.Complete(context.Background(), "a", CompletionOpts{}); err != nil {
		t.Fatalf("first call: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := p.Complete(ctx, "b", CompletionOpts{}); err == nil {
		t.Fatal("second call within the same minute should wait past the deadline")
	}
	if got := inner.calls.Load(); got != 1 {
		t.Errorf("expected 1 upstream call, got %d", got)
	}
}
