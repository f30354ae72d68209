package indicator

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crypto-llm-trader/internal/types"
)

// walkCandles builds a deterministic random-walk series of n hourly
// bars starting at the given price.
func walkCandles(n int, start float64, seed int64) []types.Candle {
	rng := rand.New(rand.NewSource(seed))
	candles := make([]types.Candle, 0, n)
	price := start
	openTime := int64(1700000000000)
	for i := 0; i < n; i++ {
		open := price
		change := (rng.Float64() - 0.5) * 0.02 * price
		close := open + change
		high := math.Max(open, close) * 1.005
		low := math.Min(open, close) * 0.995
		candles = append(candles, types.Candle{
			OpenTime: openTime,
			Open:     open,
			High:     high,
			Low:      low,
			Close:    close,
			Volume:   100 + rng.Float64()*50,
		})
		price = close
		openTime += 3600_000
	}
	return candles
}

func risingCandles(n int) []types.Candle {
	candles := make([]types.Candle, 0, n)
	price := 100.0
	openTime := int64(1700000000000)
	for i := 0; i < n; i++ {
		candles = append(candles, types.Candle{
			OpenTime: openTime,
			Open:     price,
			High:     price * 1.011,
			Low:      price * 0.999,
			Close:    price * 1.01,
			Volume:   100,
		})
		price *= 1.01
		openTime += 3600_000
	}
	return candles
}

func TestComputeEmptySeries(t *testing.T) {
	set := Compute("BTCUSDT", types.TF1h, nil, DefaultSettings())

	assert.False(t, set.RSI.OK)
	assert.False(t, set.MACD.OK)
	assert.False(t, set.Bollinger.OK)
	assert.False(t, set.ADX.OK)
	assert.False(t, set.ATR.OK)
	assert.False(t, set.OBV.OK)
	assert.False(t, set.VolumeSMA.OK)
}

func TestComputeShortWindowGating(t *testing.T) {
	candles := walkCandles(10, 50000, 1)
	set := Compute("BTCUSDT", types.TF1h, candles, DefaultSettings())

	// 10 bars is below every indicator's requirement except OBV slope.
	assert.False(t, set.RSI.OK)
	assert.False(t, set.MACD.OK)
	assert.False(t, set.Bollinger.OK)
	assert.False(t, set.ADX.OK)
	assert.False(t, set.ATR.OK)
	assert.True(t, set.OBV.OK)

	// Bar metadata still reflects the latest candle.
	assert.Equal(t, candles[len(candles)-1].OpenTime, set.BarTime)
	assert.Equal(t, candles[len(candles)-1].Close, set.Close)
}

func TestComputeFullWindow(t *testing.T) {
	candles := walkCandles(250, 50000, 2)
	set := Compute("BTCUSDT", types.TF1h, candles, DefaultSettings())

	require.True(t, set.RSI.OK)
	assert.GreaterOrEqual(t, set.RSI.Value, 0.0)
	assert.LessOrEqual(t, set.RSI.Value, 100.0)

	require.True(t, set.MACD.OK)
	require.True(t, set.Bollinger.OK)
	assert.Greater(t, set.Bollinger.Upper, set.Bollinger.Middle)
	assert.Greater(t, set.Bollinger.Middle, set.Bollinger.Lower)

	require.True(t, set.ADX.OK)
	assert.GreaterOrEqual(t, set.ADX.Value, 0.0)

	require.True(t, set.ATR.OK)
	assert.Greater(t, set.ATR.Value, 0.0)

	require.True(t, set.VolumeSMA.OK)
	assert.Greater(t, set.VolumeSMA.Value, 0.0)
}

func TestComputeIsPure(t *testing.T) {
	candles := walkCandles(250, 3000, 3)
	cfg := DefaultSettings()

	first := Compute("ETHUSDT", types.TF4h, candles, cfg)
	second := Compute("ETHUSDT", types.TF4h, candles, cfg)

	assert.Equal(t, first, second)
}

func TestComputeRisingMarket(t *testing.T) {
	candles := risingCandles(250)
	set := Compute("BTCUSDT", types.TF1d, candles, DefaultSettings())

	require.True(t, set.RSI.OK)
	assert.Greater(t, set.RSI.Value, 70.0)

	require.True(t, set.MACD.OK)
	assert.Greater(t, set.MACD.Line, set.MACD.Signal)

	require.True(t, set.OBV.OK)
	assert.Greater(t, set.OBV.Slope, 0.0)
}

func TestMinHistoryCoversEveryIndicator(t *testing.T) {
	cfg := DefaultSettings()
	candles := walkCandles(cfg.MinHistory(), 50000, 4)

	set := Compute("BTCUSDT", types.TF1h, candles, cfg)

	assert.True(t, set.RSI.OK)
	assert.True(t, set.MACD.OK)
	assert.True(t, set.Bollinger.OK)
	assert.True(t, set.ADX.OK)
	assert.True(t, set.ATR.OK)
	assert.True(t, set.OBV.OK)
	assert.True(t, set.VolumeSMA.OK)
}
