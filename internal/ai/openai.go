package ai

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

// OpenAIProvider talks to any OpenAI-compatible /chat/completions endpoint
// (OpenAI itself, OpenRouter).
type OpenAIProvider struct {
	client completionClient
	Model  string
	Opts   Options
}

// completionClient is the subset of *openai.Client we call; tests can fake it.
type completionClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

type OpenAIConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	// Extra headers sent on every request (OpenRouter attribution).
	Headers map[string]string
	Timeout time.Duration
	Opts    Options
}

func NewOpenAIProvider(cfg OpenAIConfig) *OpenAIProvider {
	c := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		c.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	c.HTTPClient = &http.Client{
		Timeout:   timeout,
		Transport: &headerTransport{base: http.DefaultTransport, headers: cfg.Headers},
	}
	return &OpenAIProvider{
		client: openai.NewClientWithConfig(c),
		Model:  cfg.Model,
		Opts:   cfg.Opts,
	}
}

func (p *OpenAIProvider) Chat(ctx context.Context, messages []Message) (string, error) {
	if p.client == nil {
		return "", errors.New("openai: client is nil")
	}
	model := strings.TrimSpace(p.Model)
	if model == "" {
		return "", errors.New("openai: model is required")
	}

	req := openai.ChatCompletionRequest{
		Model:       model,
		MaxTokens:   p.Opts.MaxTokens,
		Temperature: p.Opts.Temperature,
		Messages: func() []openai.ChatCompletionMessage {
			out := make([]openai.ChatCompletionMessage, 0, len(messages))
			for _, m := range messages {
				out = append(out, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
			}
			return out
		}(),
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai: empty response")
	}
	return resp.Choices[0].Message.Content, nil
}

type headerTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if len(t.headers) > 0 {
		req = req.Clone(req.Context())
		for k, v := range t.headers {
			req.Header.Set(k, v)
		}
	}
	return t.base.RoundTrip(req)
}
