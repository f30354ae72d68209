package indicator

import (
	"errors"
	"math"

	"github.com/markcheno/go-talib"

	"crypto-llm-trader/internal/types"
)

// ErrNotEnoughData marks an indicator whose lookback exceeds the
// supplied window. The aggregator excludes such indicators from the
// vote instead of treating them as zero.
var ErrNotEnoughData = errors.New("not enough data")

// Settings holds the lookback parameters for one computation pass.
type Settings struct {
	RSIPeriod  int
	MACDFast   int
	MACDSlow   int
	MACDSignal int
	BBWindow   int
	BBStdDev   float64
	ADXPeriod  int
	ATRPeriod  int
	VolumeSMA  int
}

// DefaultSettings returns the standard parameterization: RSI-14,
// MACD 12/26/9, Bollinger 20±2σ, ADX-14, ATR-14, volume SMA-20.
func DefaultSettings() Settings {
	return Settings{
		RSIPeriod:  14,
		MACDFast:   12,
		MACDSlow:   26,
		MACDSignal: 9,
		BBWindow:   20,
		BBStdDev:   2.0,
		ADXPeriod:  14,
		ATRPeriod:  14,
		VolumeSMA:  20,
	}
}

// Scalar is a single indicator value; OK is false when the window was
// too short to compute it.
type Scalar struct {
	Value float64
	OK    bool
}

// MACDValue is the MACD line, signal line, and histogram tuple.
type MACDValue struct {
	Line      float64
	Signal    float64
	Histogram float64
	OK        bool
}

// BollingerValue holds the three band levels.
type BollingerValue struct {
	Upper  float64
	Middle float64
	Lower  float64
	OK     bool
}

// OBVValue carries the cumulative on-balance volume and its recent
// slope (difference over the last obvSlopeBars bars).
type OBVValue struct {
	Latest float64
	Slope  float64
	OK     bool
}

// obvSlopeBars is the window used to estimate OBV direction.
const obvSlopeBars = 5

// Set is the full indicator readout for one (symbol, timeframe) at the
// most recent bar. Fields with OK=false carry no usable value.
type Set struct {
	Symbol    string
	Timeframe types.Timeframe
	BarTime   int64
	Close     float64
	Volume    float64

	RSI       Scalar
	MACD      MACDValue
	Bollinger BollingerValue
	ADX       Scalar
	ATR       Scalar
	OBV       OBVValue
	VolumeSMA Scalar
}

// Compute derives the indicator set for the most recent bar of the
// given window. Pure function of its input: same candles, same
// settings, same output.
func Compute(symbol string, tf types.Timeframe, candles []types.Candle, cfg Settings) Set {
	set := Set{Symbol: symbol, Timeframe: tf}
	if len(candles) == 0 {
		return set
	}

	closes := make([]float64, len(candles))
	highs := make([]float64, len(candles))
	lows := make([]float64, len(candles))
	volumes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
		highs[i] = c.High
		lows[i] = c.Low
		volumes[i] = c.Volume
	}
	latest := candles[len(candles)-1]
	set.BarTime = latest.OpenTime
	set.Close = latest.Close
	set.Volume = latest.Volume

	// RSI needs period+1 closes for the first delta.
	if len(closes) > cfg.RSIPeriod {
		series := talib.Rsi(closes, cfg.RSIPeriod)
		set.RSI = scalarFrom(series)
	}

	// MACD signal line only stabilizes after slow+signal bars.
	if len(closes) >= cfg.MACDSlow+cfg.MACDSignal {
		macd, signal, hist := talib.Macd(closes, cfg.MACDFast, cfg.MACDSlow, cfg.MACDSignal)
		m, s, h := last(macd), last(signal), last(hist)
		if !anyNaN(m, s, h) {
			set.MACD = MACDValue{Line: m, Signal: s, Histogram: h, OK: true}
		}
	}

	if len(closes) >= cfg.BBWindow {
		upper, middle, lower := talib.BBands(closes, cfg.BBWindow, cfg.BBStdDev, cfg.BBStdDev, talib.SMA)
		u, m, l := last(upper), last(middle), last(lower)
		if !anyNaN(u, m, l) {
			set.Bollinger = BollingerValue{Upper: u, Middle: m, Lower: l, OK: true}
		}
	}

	// ADX warms up over roughly two periods.
	if len(closes) > 2*cfg.ADXPeriod {
		series := talib.Adx(highs, lows, closes, cfg.ADXPeriod)
		set.ADX = scalarFrom(series)
	}

	if len(closes) > cfg.ATRPeriod {
		series := talib.Atr(highs, lows, closes, cfg.ATRPeriod)
		set.ATR = scalarFrom(series)
	}

	if len(closes) > obvSlopeBars {
		series := talib.Obv(closes, volumes)
		latest := last(series)
		prev := series[len(series)-1-obvSlopeBars]
		if !anyNaN(latest, prev) {
			set.OBV = OBVValue{Latest: latest, Slope: latest - prev, OK: true}
		}
	}

	if len(volumes) >= cfg.VolumeSMA {
		series := talib.Sma(volumes, cfg.VolumeSMA)
		set.VolumeSMA = scalarFrom(series)
	}

	return set
}

// MinHistory returns the number of bars required before every
// indicator in the set can be computed.
func (cfg Settings) MinHistory() int {
	n := cfg.RSIPeriod + 1
	if v := cfg.MACDSlow + cfg.MACDSignal; v > n {
		n = v
	}
	if cfg.BBWindow > n {
		n = cfg.BBWindow
	}
	if v := 2*cfg.ADXPeriod + 1; v > n {
		n = v
	}
	if v := cfg.ATRPeriod + 1; v > n {
		n = v
	}
	if cfg.VolumeSMA > n {
		n = cfg.VolumeSMA
	}
	return n
}

func scalarFrom(series []float64) Scalar {
	v := last(series)
	if math.IsNaN(v) {
		return Scalar{}
	}
	return Scalar{Value: v, OK: true}
}

func last(series []float64) float64 {
	if len(series) == 0 {
		return math.NaN()
	}
	return series[len(series)-1]
}

func anyNaN(vals ...float64) bool {
	for _, v := range vals {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}
