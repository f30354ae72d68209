package noop

import (
	"context"

	"crypto-llm-trader/internal/llm"
	"crypto-llm-trader/internal/logger"
)

// Provider is used when no LLM is configured. Every call reports
// ErrProviderDisabled so the coordinator runs in deterministic-only
// mode.
type Provider struct{}

func New() *Provider {
	return &Provider{}
}

func (p *Provider) Model() string { return "noop" }

func (p *Provider) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	logger.Debug(ctx, "Noop provider called - deterministic-only mode")
	return "", llm.ErrProviderDisabled
}
