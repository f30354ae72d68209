package engineobs

import (
	"context"

	"crypto-llm-trader/internal/interfaces"
	"crypto-llm-trader/internal/logger"
	"crypto-llm-trader/internal/trace"
	"crypto-llm-trader/internal/types"
)

// observableEngine wraps an Engine with logging and tracing.
type observableEngine struct {
	engine interfaces.Engine
}

// Compile-time interface check
var _ interfaces.Engine = (*observableEngine)(nil)

// Wrap wraps an engine with observability middleware
func Wrap(engine interfaces.Engine) interfaces.Engine {
	return &observableEngine{engine: engine}
}

func (oe *observableEngine) Cycle(ctx context.Context, symbol string) (*types.CycleResult, error) {
	ctx, span := trace.StartSpan(ctx, "engine.Cycle", trace.WithSymbol(symbol))
	defer span.End()

	result, err := oe.engine.Cycle(ctx, symbol)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Cycle failed", err, "symbol", symbol)
		return nil, err
	}

	logger.InfoSkip(ctx, 1, "Cycle complete",
		"symbol", symbol,
		"action", string(result.Decision.Action),
		"applied", result.Applied,
		"confidence", result.Decision.Confidence,
	)
	return result, nil
}

func (oe *observableEngine) Portfolio() types.PortfolioView {
	return oe.engine.Portfolio()
}
