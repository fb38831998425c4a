package oracle

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"
)

// Provider names accepted by every operation.
const (
	ProviderGPT4o  = "gpt-4o"
	ProviderGPT5   = "gpt-5"
	ProviderClaude = "claude-sonnet-4.5"
	ProviderStub   = "stub"
)

// Request is one completion call.
type Request struct {
	System    string
	User      string
	Schema    string // JSON Schema the reply must satisfy; empty for free text
	MaxTokens int
}

// SystemPrompt returns System with the reply-format instructions appended.
func (r Request) SystemPrompt() string {
	if r.Schema == "" {
		return r.System
	}
	var b strings.Builder
	b.WriteString(r.System)
	b.WriteString("\n\nRespond with a single JSON object and nothing else. It must validate against this JSON Schema:\n")
	b.WriteString(r.Schema)
	return b.String()
}

// Provider is an external completion backend. Complete returns the raw
// reply text.
type Provider interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, req Request) (string, error)

func (f ProviderFunc) Complete(ctx context.Context, req Request) (string, error) { return f(ctx, req) }

type openAIProvider struct {
	client oai.Client
	model  string
}

func newOpenAIProvider(apiKey, baseURL, model string, timeout time.Duration) (*openAIProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("openai: model must not be empty")
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if timeout > 0 {
		opts = append(opts, option.WithHTTPClient(&http.Client{Timeout: timeout}))
	}
	return &openAIProvider{client: oai.NewClient(opts...), model: model}, nil
}

func (p *openAIProvider) Complete(ctx context.Context, req Request) (string, error) {
	params := oai.ChatCompletionNewParams{
		Model: shared.ChatModel(p.model),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.SystemMessage(req.SystemPrompt()),
			oai.UserMessage(req.User),
		},
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(req.MaxTokens))
	}
	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: empty choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}

type anyLLMProvider struct {
	backend anyllmlib.Provider
	model   string
}

func newAnthropicProvider(apiKey, model string) (*anyLLMProvider, error) {
	if model == "" {
		return nil, fmt.Errorf("anyllm: model must not be empty")
	}
	backend, err := anthropic.New(anyllmlib.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("anyllm: create anthropic backend: %w", err)
	}
	return &anyLLMProvider{backend: backend, model: model}, nil
}

func (p *anyLLMProvider) Complete(ctx context.Context, req Request) (string, error) {
	params := anyllmlib.CompletionParams{
		Model: p.model,
		Messages: []anyllmlib.Message{
			{Role: anyllmlib.RoleSystem, Content: req.SystemPrompt()},
			{Role: "user", Content: req.User},
		},
	}
	if req.MaxTokens > 0 {
		mt := req.MaxTokens
		params.MaxTokens = &mt
	}
	resp, err := p.backend.Completion(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anyllm: completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("anyllm: empty choices in response")
	}
	return resp.Choices[0].Message.ContentString(), nil
}
