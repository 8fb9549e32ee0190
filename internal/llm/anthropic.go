package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/neoclaw-ai/repcoach/internal/config"
)

type anthropicProvider struct {
	client anthropic.Client
	model  anthropic.Model
}

func newAnthropicProvider(cfg config.LLMProviderConfig) (Provider, error) {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return buildAnthropicProvider(cfg.APIKey, cfg.Model, opts...)
}

func newAnthropicProviderForTest(apiKey, model, baseURL string, httpClient *http.Client) (Provider, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return buildAnthropicProvider(apiKey, model,
		option.WithAPIKey(apiKey),
		option.WithBaseURL(baseURL),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(0),
	)
}

func buildAnthropicProvider(apiKey, model string, opts ...option.RequestOption) (Provider, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("anthropic api key is required")
	}
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("anthropic model is required")
	}
	return &anthropicProvider{
		client: anthropic.NewClient(opts...),
		model:  anthropic.Model(model),
	}, nil
}

// Chat sends a provider-agnostic chat request to Anthropic and normalizes the response.
func (p *anthropicProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	msgs, err := toAnthropicMessages(req.Messages)
	if err != nil {
		return nil, err
	}

	body := anthropic.MessageNewParams{
		Model:     p.model,
		MaxTokens: int64(normalizeMaxTokens(req.MaxTokens)),
		Messages:  msgs,
	}
	if req.SystemPrompt != "" {
		body.System = []anthropic.TextBlockParam{{Text: req.SystemPrompt}}
	}

	msg, err := p.client.Messages.New(ctx, body)
	if err != nil {
		return nil, fmt.Errorf("anthropic messages: %w", err)
	}

	var contentParts []string
	for _, block := range msg.Content {
		if v, ok := block.AsAny().(anthropic.TextBlock); ok && v.Text != "" {
			contentParts = append(contentParts, v.Text)
		}
	}
	if len(contentParts) == 0 {
		return nil, errors.New("anthropic response has no text content")
	}

	usage := TokenUsage{
		InputTokens:  int(msg.Usage.InputTokens),
		OutputTokens: int(msg.Usage.OutputTokens),
	}
	usage.TotalTokens = usage.InputTokens + usage.OutputTokens

	return &ChatResponse{
		Content: strings.Join(contentParts, "\n"),
		Usage:   usage,
	}, nil
}

func toAnthropicMessages(messages []ChatMessage) ([]anthropic.MessageParam, error) {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case RoleUser:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		case RoleAssistant:
			out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		default:
			return nil, fmt.Errorf("unsupported message role %q", msg.Role)
		}
	}
	return out, nil
}
