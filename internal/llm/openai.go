package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/neoclaw-ai/repcoach/internal/config"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// openAIProvider talks to any OpenAI-compatible chat completions API
// (OpenAI, xAI, OpenRouter, Ollama).
type openAIProvider struct {
	client openai.Client
	model  string
}

func newOpenAIProvider(cfg config.LLMProviderConfig, defaultBaseURL string) (Provider, error) {
	var opts []option.RequestOption
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return buildOpenAIProvider(cfg.Model, opts...)
}

func newOpenAIProviderForTest(apiKey, model, baseURL string, httpClient *http.Client) (Provider, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return buildOpenAIProvider(model,
		option.WithAPIKey(apiKey),
		option.WithBaseURL(baseURL),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(0),
	)
}

func buildOpenAIProvider(model string, opts ...option.RequestOption) (Provider, error) {
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("openai-compatible model is required")
	}
	return &openAIProvider{
		client: openai.NewClient(opts...),
		model:  model,
	}, nil
}

// Chat sends a provider-agnostic chat request to a chat completions endpoint.
func (p *openAIProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		msgs = append(msgs, openai.SystemMessage(req.SystemPrompt))
	}
	for _, m := range req.Messages {
		switch m.Role {
		case RoleUser:
			msgs = append(msgs, openai.UserMessage(m.Content))
		case RoleAssistant:
			msgs = append(msgs, openai.AssistantMessage(m.Content))
		default:
			return nil, fmt.Errorf("unsupported message role %q", m.Role)
		}
	}

	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:     openai.ChatModel(p.model),
		Messages:  msgs,
		MaxTokens: openai.Int(int64(normalizeMaxTokens(req.MaxTokens))),
	})
	if err != nil {
		return nil, fmt.Errorf("chat completions: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("chat completions response has no choices")
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return nil, errors.New("chat completions response has empty content")
	}

	return &ChatResponse{
		Content: content,
		Usage: TokenUsage{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:  int(resp.Usage.TotalTokens),
		},
	}, nil
}
