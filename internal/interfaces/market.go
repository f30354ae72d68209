package interfaces

import (
	"context"

	"crypto-llm-trader/internal/types"
)

// MarketData supplies ordered OHLCV bars per (symbol, timeframe).
// Bars arrive in non-decreasing open-time order; duplicate timestamps
// are ignored idempotently by the source.
type MarketData interface {
	RecentCandles(ctx context.Context, symbol string, tf types.Timeframe, n int) ([]types.Candle, error)
	LastPrice(ctx context.Context, symbol string) (float64, error)
}
