package marketobs

import (
	"context"

	"crypto-llm-trader/internal/interfaces"
	"crypto-llm-trader/internal/logger"
	"crypto-llm-trader/internal/trace"
	"crypto-llm-trader/internal/types"
)

// observableSource wraps a MarketData source with logging and tracing.
type observableSource struct {
	src interfaces.MarketData
}

// Compile-time interface check
var _ interfaces.MarketData = (*observableSource)(nil)

// Wrap wraps a market data source with observability middleware
func Wrap(src interfaces.MarketData) interfaces.MarketData {
	return &observableSource{src: src}
}

func (os *observableSource) RecentCandles(ctx context.Context, symbol string, tf types.Timeframe, n int) ([]types.Candle, error) {
	ctx, span := trace.StartSpan(ctx, "market.RecentCandles", trace.WithSymbol(symbol), trace.WithTimeframe(string(tf)))
	defer span.End()

	candles, err := os.src.RecentCandles(ctx, symbol, tf, n)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch candles", err, "symbol", symbol, "timeframe", tf)
		return nil, err
	}

	logger.DebugSkip(ctx, 1, "Candles fetched", "symbol", symbol, "timeframe", tf, "count", len(candles))
	return candles, nil
}

func (os *observableSource) LastPrice(ctx context.Context, symbol string) (float64, error) {
	ctx, span := trace.StartSpan(ctx, "market.LastPrice", trace.WithSymbol(symbol))
	defer span.End()

	price, err := os.src.LastPrice(ctx, symbol)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch last price", err, "symbol", symbol)
		return 0, err
	}
	return price, nil
}
