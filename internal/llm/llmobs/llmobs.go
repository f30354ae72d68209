package llmobs

import (
	"context"

	"crypto-llm-trader/internal/interfaces"
	"crypto-llm-trader/internal/logger"
	"crypto-llm-trader/internal/trace"
)

// observableProvider wraps an OpinionProvider with logging and tracing.
type observableProvider struct {
	provider interfaces.OpinionProvider
}

// Compile-time interface check
var _ interfaces.OpinionProvider = (*observableProvider)(nil)

// Wrap wraps a provider with observability middleware
func Wrap(provider interfaces.OpinionProvider) interfaces.OpinionProvider {
	return &observableProvider{provider: provider}
}

func (op *observableProvider) Model() string { return op.provider.Model() }

func (op *observableProvider) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	ctx, span := trace.StartSpan(ctx, "llm.Generate", trace.WithModel(op.provider.Model()))
	defer span.End()

	// Skip(1) so the log line reports the coordinator, not this wrapper
	logger.DebugSkip(ctx, 1, "Requesting LLM completion",
		"model", op.provider.Model(),
		"prompt_len", len(userPrompt),
	)

	raw, err := op.provider.Generate(ctx, systemPrompt, userPrompt)
	if err != nil {
		logger.DebugSkip(ctx, 1, "LLM completion failed",
			"model", op.provider.Model(),
			"error", err,
		)
		return "", err
	}

	logger.DebugSkip(ctx, 1, "LLM completion received",
		"model", op.provider.Model(),
		"response_len", len(raw),
	)
	return raw, nil
}
