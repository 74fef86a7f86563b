package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// openaiProvider implements Provider with the official OpenAI SDK. It also
// serves any OpenAI-compatible endpoint through BaseURL.
type openaiProvider struct {
	client *openai.Client
	model  string
}

func newOpenAIProvider(apiKey, model, baseURL string) *openaiProvider {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := openai.NewClient(opts...)
	return &openaiProvider{client: &client, model: model}
}

func (p *openaiProvider) Name() string {
	return "openai/" + p.model
}

func (p *openaiProvider) Complete(ctx context.Context, prompt string, opts CompletionOpts) (string, error) {
	model := p.model
	if opts.Model != "" {
		model = opts.Model
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(opts.History)+2)
	if opts.System != "" {
		messages = append(messages, openai.SystemMessage(opts.System))
	}
	for _, m := range opts.History {
		if strings.TrimSpace(m.Text) == "" {
			continue
		}
		if m.Role == RoleAssistant {
			messages = append(messages, openai.AssistantMessage(m.Text))
		} else {
			messages = append(messages, openai.UserMessage(m.Text))
		}
	}
	messages = append(messages, openai.UserMessage(prompt))

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(model),
		Messages:    messages,
		Temperature: openai.Float(opts.Temperature),
	}
	if opts.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(opts.MaxTokens))
	}

	completion, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return "", &APIError{Provider: "openai", StatusCode: apiErr.StatusCode, Body: apiErr.Message}
		}
		return "", fmt.Errorf("sending request: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("empty response from openai API")
	}
	return strings.TrimSpace(completion.Choices[0].Message.Content), nil
}
