package openai

import (
	"context"
	"errors"
	"os"
	"strings"
	"time"

	"crypto-llm-trader/internal/api"
	"crypto-llm-trader/internal/trace"
)

// Provider calls an OpenAI-compatible chat-completions endpoint. Retry
// is left to the caller; each Generate is a single attempt.
type Provider struct {
	model       string
	client      *api.Client
	maxTokens   int
	temperature float32
}

type Params struct {
	Model       string
	BaseURL     string // defaults to the public OpenAI API
	MaxTokens   int
	Temperature float32
	Timeout     time.Duration
}

func New(p Params) *Provider {
	baseURL := p.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	baseURL = strings.TrimRight(baseURL, "/")
	baseURL = strings.TrimSuffix(baseURL, "/chat/completions")

	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Provider{
		model: p.Model,
		client: api.New(
			api.WithBaseURL(baseURL),
			api.WithTimeout(timeout),
		),
		maxTokens:   p.MaxTokens,
		temperature: p.Temperature,
	}
}

func (p *Provider) Model() string { return p.model }

func (p *Provider) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	ctx, span := trace.StartSpan(ctx, "openai-api-call", trace.WithModel(p.model))
	defer span.End()

	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return "", errors.New("OPENAI_API_KEY missing")
	}

	body := map[string]any{
		"model": p.model,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": userPrompt},
		},
		"temperature": p.temperature,
		"max_tokens":  p.maxTokens,
	}

	var r struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	err := p.client.PostJSON(ctx, "/chat/completions", body, &r,
		api.Header{Key: "Authorization", Value: "Bearer " + apiKey})
	if err != nil {
		return "", err
	}
	if len(r.Choices) == 0 {
		return "", errors.New("no choices in completion")
	}
	return strings.TrimSpace(r.Choices[0].Message.Content), nil
}
