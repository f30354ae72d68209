package interfaces

import (
	"context"

	"crypto-llm-trader/internal/types"
)

// Engine runs one evaluation cycle per symbol and owns portfolio
// state.
type Engine interface {
	Cycle(ctx context.Context, symbol string) (*types.CycleResult, error)
	Portfolio() types.PortfolioView
}
