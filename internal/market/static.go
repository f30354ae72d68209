package market

import (
	"context"
	"hash/fnv"
	"math/rand"
	"sync"
	"time"

	"crypto-llm-trader/internal/interfaces"
	"crypto-llm-trader/internal/types"
)

// StaticSource generates a seeded random walk per symbol for dry runs
// and tests. Bars are aligned to the timeframe and strictly increasing
// in open time; the same symbol always walks the same path.
type StaticSource struct {
	mu    sync.Mutex
	now   func() time.Time
	bases map[string]float64
}

var _ interfaces.MarketData = (*StaticSource)(nil)

func NewStaticSource() *StaticSource {
	return &StaticSource{
		now:   time.Now,
		bases: map[string]float64{},
	}
}

func (s *StaticSource) RecentCandles(ctx context.Context, symbol string, tf types.Timeframe, n int) ([]types.Candle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rng := rand.New(rand.NewSource(int64(seedFor(symbol)) + int64(tf.Duration())))
	base := s.basePrice(symbol)

	step := tf.Duration()
	end := s.now().Truncate(step)
	out := make([]types.Candle, 0, n)
	price := base
	for i := n; i > 0; i-- {
		drift := (rng.Float64() - 0.5) * base * 0.01
		open := price
		close := price + drift
		high := maxf(open, close) + rng.Float64()*base*0.003
		low := minf(open, close) - rng.Float64()*base*0.003
		out = append(out, types.Candle{
			OpenTime: end.Add(-time.Duration(i) * step).UnixMilli(),
			Open:     open,
			High:     high,
			Low:      low,
			Close:    close,
			Volume:   100 + rng.Float64()*1000,
		})
		price = close
	}
	return out, nil
}

func (s *StaticSource) LastPrice(ctx context.Context, symbol string) (float64, error) {
	candles, err := s.RecentCandles(ctx, symbol, types.TF1h, 1)
	if err != nil {
		return 0, err
	}
	return candles[len(candles)-1].Close, nil
}

func (s *StaticSource) basePrice(symbol string) float64 {
	if p, ok := s.bases[symbol]; ok {
		return p
	}
	// Spread synthetic symbols over a plausible price range.
	p := 100 + float64(seedFor(symbol)%100000)
	s.bases[symbol] = p
	return p
}

func seedFor(symbol string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(symbol))
	return h.Sum32()
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
