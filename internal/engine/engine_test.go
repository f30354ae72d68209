package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crypto-llm-trader/internal/llm/noop"
	"crypto-llm-trader/internal/store"
	"crypto-llm-trader/internal/types"
)

// fakeMarket serves one canned candle series for every symbol and a
// settable last price.
type fakeMarket struct {
	mu      sync.Mutex
	candles []types.Candle
	price   float64
}

func (m *fakeMarket) RecentCandles(_ context.Context, _ string, _ types.Timeframe, _ int) ([]types.Candle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.Candle, len(m.candles))
	copy(out, m.candles)
	return out, nil
}

func (m *fakeMarket) LastPrice(_ context.Context, _ string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.price, nil
}

func (m *fakeMarket) setPrice(p float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.price = p
}

// scriptedProvider always returns the same JSON opinion.
type scriptedProvider struct {
	response string
}

func (p *scriptedProvider) Model() string { return "scripted" }

func (p *scriptedProvider) Generate(_ context.Context, _, _ string) (string, error) {
	return p.response, nil
}

// trendingCandles builds a flat warmup phase followed by a two-up,
// one-down grind higher on rising volume: bullish MACD, OBV, and
// volume without pushing RSI into overbought.
func trendingCandles(n int) []types.Candle {
	candles := make([]types.Candle, 0, n)
	price := 100.0
	vol := 100.0
	openTime := int64(1700000000000)
	for i := 0; i < n; i++ {
		var change float64
		if i < n-30 {
			change = 0.002
			if i%2 == 1 {
				change = -0.002
			}
		} else {
			change = 0.008
			if i%3 == 2 {
				change = -0.008
			}
			vol += 5
		}
		open := price
		close := price * (1 + change)
		high := close
		low := open
		if change < 0 {
			high = open
			low = close
		}
		candles = append(candles, types.Candle{
			OpenTime: openTime,
			Open:     open,
			High:     high * 1.002,
			Low:      low * 0.998,
			Close:    close,
			Volume:   vol,
		})
		price = close
		openTime += 3600_000
	}
	return candles
}

func testConfig() *store.Config {
	cfg := &store.Config{
		Mode:       "DRY_RUN",
		DataSource: "STATIC",
		Symbols:    []string{"BTCUSDT"},
		Timeframes: []string{"1h"},
	}
	cfg.Risk.RiskLevel = 0.5
	cfg.Risk.BaseRisk = 0.1
	cfg.Risk.VolShrinkK = 10
	cfg.Risk.MinConfidence = 0.05
	cfg.Risk.StopATRMult = 2
	cfg.Risk.TakeProfitATRMult = 3
	cfg.Aggregator.NeutralityThreshold = 0.1
	cfg.Aggregator.AgreementBonus = 0.25
	cfg.Indicators.History = 250
	cfg.LLM.Provider = "NOOP"
	cfg.LLM.MaxAttempts = 2
	cfg.LLM.TimeoutSeconds = 1
	cfg.LLM.SignalWeight = 0.5
	cfg.LLM.FallbackWeight = 0.8
	cfg.Portfolio.InitialCash = 10000
	return cfg
}

func bullMarket() *fakeMarket {
	candles := trendingCandles(250)
	return &fakeMarket{candles: candles, price: candles[len(candles)-1].Close}
}

const agreeLong = `{"direction":"long","confidence":0.9,"rationale":"uptrend intact"}`
const disagreeShort = `{"direction":"short","confidence":0.9,"rationale":"blow-off top"}`

func TestCycleOpensLongOnAgreement(t *testing.T) {
	market := bullMarket()
	eng := New(testConfig(), Deps{
		Market:   market,
		Provider: &scriptedProvider{response: agreeLong},
	})

	result, err := eng.Cycle(context.Background(), "BTCUSDT")
	require.NoError(t, err)

	assert.Equal(t, types.OpenLong, result.Decision.Action)
	assert.True(t, result.Applied)
	require.NotNil(t, result.Risk)
	assert.LessOrEqual(t, result.Decision.SizeFraction, result.Risk.MaxPositionFraction+1e-12)
	assert.Greater(t, result.Decision.SizeFraction, 0.0)
	assert.Less(t, result.Decision.StopLoss, result.Risk.EntryPrice)
	assert.Greater(t, result.Decision.TakeProfit, result.Risk.EntryPrice)

	view := eng.Portfolio()
	require.Contains(t, view.Positions, "BTCUSDT")
	assert.Equal(t, types.Long, view.Positions["BTCUSDT"].Direction)
	assert.InDelta(t, result.Decision.SizeFraction, view.TotalAllocation, 1e-12)
	assert.Less(t, view.Cash, 10000.0)
}

func TestAgreementBonusScalesWithinBound(t *testing.T) {
	market := bullMarket()
	eng := New(testConfig(), Deps{
		Market:   market,
		Provider: &scriptedProvider{response: agreeLong},
	})

	result, err := eng.Cycle(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	require.Equal(t, types.OpenLong, result.Decision.Action)

	base := result.Risk.MaxPositionFraction * result.Decision.Confidence
	assert.Greater(t, result.Decision.SizeFraction, base)
	assert.LessOrEqual(t, result.Decision.SizeFraction, result.Risk.MaxPositionFraction+1e-12)
}

func TestCycleConflictHolds(t *testing.T) {
	eng := New(testConfig(), Deps{
		Market:   bullMarket(),
		Provider: &scriptedProvider{response: disagreeShort},
	})

	result, err := eng.Cycle(context.Background(), "BTCUSDT")
	require.NoError(t, err)

	assert.Equal(t, types.Hold, result.Decision.Action)
	assert.True(t, result.Applied)
	assert.Empty(t, eng.Portfolio().Positions)
}

func TestCycleFallbackStillOpens(t *testing.T) {
	// Noop provider forces the deterministic-only path; the decision
	// leans on the signal with no agreement bonus.
	eng := New(testConfig(), Deps{
		Market:   bullMarket(),
		Provider: noop.New(),
	})

	result, err := eng.Cycle(context.Background(), "BTCUSDT")
	require.NoError(t, err)

	assert.False(t, result.Opinion.Valid)
	assert.Equal(t, types.OpenLong, result.Decision.Action)
	assert.True(t, result.Applied)
	// No bonus without a valid agreeing opinion.
	base := result.Risk.MaxPositionFraction * result.Decision.Confidence
	assert.InDelta(t, base, result.Decision.SizeFraction, 1e-12)
}

func TestCycleRiskRejectedHolds(t *testing.T) {
	cfg := testConfig()
	cfg.Risk.MinConfidence = 0.99

	eng := New(cfg, Deps{
		Market:   bullMarket(),
		Provider: &scriptedProvider{response: agreeLong},
	})

	result, err := eng.Cycle(context.Background(), "BTCUSDT")
	require.NoError(t, err)

	assert.Equal(t, types.Hold, result.Decision.Action)
	assert.Contains(t, result.Decision.Reasoning, "risk rejected")
	assert.Empty(t, eng.Portfolio().Positions)
}

func TestCycleHoldsWhilePositionOpen(t *testing.T) {
	eng := New(testConfig(), Deps{
		Market:   bullMarket(),
		Provider: &scriptedProvider{response: agreeLong},
	})
	ctx := context.Background()

	first, err := eng.Cycle(ctx, "BTCUSDT")
	require.NoError(t, err)
	require.Equal(t, types.OpenLong, first.Decision.Action)

	second, err := eng.Cycle(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, types.Hold, second.Decision.Action)
	assert.Len(t, eng.Portfolio().Positions, 1)
}

func TestStopLossClosesPosition(t *testing.T) {
	market := bullMarket()
	eng := New(testConfig(), Deps{
		Market:   market,
		Provider: &scriptedProvider{response: agreeLong},
	})
	ctx := context.Background()

	first, err := eng.Cycle(ctx, "BTCUSDT")
	require.NoError(t, err)
	require.Equal(t, types.OpenLong, first.Decision.Action)

	market.setPrice(first.Decision.StopLoss * 0.99)

	second, err := eng.Cycle(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, types.Close, second.Decision.Action)
	assert.True(t, second.Applied)

	view := eng.Portfolio()
	assert.Empty(t, view.Positions)
	assert.Zero(t, view.TotalAllocation)
}

func TestAllocationNeverExceedsRiskLevel(t *testing.T) {
	cfg := testConfig()
	cfg.Risk.RiskLevel = 0.2
	cfg.Risk.BaseRisk = 0.15

	eng := New(cfg, Deps{
		Market:   bullMarket(),
		Provider: &scriptedProvider{response: agreeLong},
	})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		sym := fmt.Sprintf("SYM%dUSDT", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = eng.Cycle(ctx, sym)
		}()
	}
	wg.Wait()

	view := eng.Portfolio()
	assert.LessOrEqual(t, view.TotalAllocation, cfg.Risk.RiskLevel+1e-9)
	for _, pos := range view.Positions {
		assert.Greater(t, pos.Fraction, 0.0)
	}
}

func TestPortfolioViewIsACopy(t *testing.T) {
	eng := New(testConfig(), Deps{
		Market:   bullMarket(),
		Provider: &scriptedProvider{response: agreeLong},
	})
	ctx := context.Background()

	_, err := eng.Cycle(ctx, "BTCUSDT")
	require.NoError(t, err)

	view := eng.Portfolio()
	delete(view.Positions, "BTCUSDT")

	assert.Len(t, eng.Portfolio().Positions, 1)
}
