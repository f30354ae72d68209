package signal

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"crypto-llm-trader/internal/indicator"
	"crypto-llm-trader/internal/types"
)

// RSI bands and the ADX trend-strength threshold follow the standard
// readings the indicator engine is parameterized for.
const (
	rsiOversold   = 30.0
	rsiOverbought = 70.0
	adxTrendLevel = 25.0
	weakTrendDamp = 0.5
)

// Weights configures the aggregation. Indicator weights apply within a
// timeframe, timeframe weights across timeframes. Zero-valued fields
// are filled from defaults.
type Weights struct {
	RSI       float64
	MACD      float64
	Bollinger float64
	OBV       float64
	Volume    float64

	Timeframe           map[types.Timeframe]float64
	NeutralityThreshold float64
}

// DefaultWeights biases timeframes toward the daily chart so that
// short-frame noise cannot flip the aggregate on its own.
func DefaultWeights() Weights {
	return Weights{
		RSI:       1.0,
		MACD:      1.0,
		Bollinger: 1.0,
		OBV:       0.5,
		Volume:    0.5,
		Timeframe: map[types.Timeframe]float64{
			types.TF1h: 1,
			types.TF4h: 2,
			types.TF1d: 3,
		},
		NeutralityThreshold: 0.2,
	}
}

// Aggregator reduces per-timeframe indicator sets into one directional
// signal per symbol. Pure: identical inputs always yield the identical
// signal.
type Aggregator struct {
	w Weights
}

func New(w Weights) *Aggregator {
	d := DefaultWeights()
	if w.RSI == 0 {
		w.RSI = d.RSI
	}
	if w.MACD == 0 {
		w.MACD = d.MACD
	}
	if w.Bollinger == 0 {
		w.Bollinger = d.Bollinger
	}
	if w.OBV == 0 {
		w.OBV = d.OBV
	}
	if w.Volume == 0 {
		w.Volume = d.Volume
	}
	if len(w.Timeframe) == 0 {
		w.Timeframe = d.Timeframe
	}
	if w.NeutralityThreshold == 0 {
		w.NeutralityThreshold = d.NeutralityThreshold
	}
	return &Aggregator{w: w}
}

// Aggregate combines the indicator sets of all available timeframes
// for one symbol. Timeframes with no votable indicator are skipped and
// the remaining timeframe weights renormalized; if nothing votes at
// all the signal is flat with zero confidence.
func (a *Aggregator) Aggregate(symbol string, sets map[types.Timeframe]indicator.Set) types.Signal {
	sig := types.Signal{
		Symbol:    symbol,
		Direction: types.Flat,
		Breakdown: make(map[types.Timeframe]float64),
	}

	tfs := make([]types.Timeframe, 0, len(sets))
	for tf := range sets {
		tfs = append(tfs, tf)
	}
	sort.Slice(tfs, func(i, j int) bool { return tfs[i].Duration() < tfs[j].Duration() })

	var weighted, totalWeight float64
	var notes []string
	for _, tf := range tfs {
		set := sets[tf]
		score, ok := a.timeframeScore(set)
		if !ok {
			continue
		}
		w := a.w.Timeframe[tf]
		if w <= 0 {
			w = 1
		}
		weighted += w * score
		totalWeight += w
		sig.Breakdown[tf] = score
		notes = append(notes, describeTimeframe(tf, set))
	}
	if totalWeight == 0 {
		sig.Reasoning = "no indicator produced a vote"
		return sig
	}

	score := clamp(weighted/totalWeight, -1, 1)
	sig.Score = score
	sig.Confidence = math.Abs(score)
	sig.Reasoning = strings.Join(notes, " | ")

	switch {
	case sig.Confidence < a.w.NeutralityThreshold:
		sig.Direction = types.Flat
	case score > 0:
		sig.Direction = types.Long
	default:
		sig.Direction = types.Short
	}
	return sig
}

// timeframeScore is the weighted indicator vote for one timeframe,
// normalized to [-1,1]. Indicators without enough data are excluded
// from both numerator and denominator; a present indicator that votes
// 0 still dilutes the score. Returns ok=false when nothing voted.
func (a *Aggregator) timeframeScore(set indicator.Set) (float64, bool) {
	var sum, weight float64

	if set.RSI.OK {
		vote := 0.0
		if set.RSI.Value < rsiOversold {
			vote = 1
		} else if set.RSI.Value > rsiOverbought {
			vote = -1
		}
		sum += a.w.RSI * vote
		weight += a.w.RSI
	}

	if set.MACD.OK {
		vote := -1.0
		if set.MACD.Line > set.MACD.Signal {
			vote = 1
		}
		sum += a.w.MACD * vote
		weight += a.w.MACD
	}

	if set.Bollinger.OK {
		vote := 0.0
		if set.Close < set.Bollinger.Lower {
			vote = 1
		} else if set.Close > set.Bollinger.Upper {
			vote = -1
		}
		sum += a.w.Bollinger * vote
		weight += a.w.Bollinger
	}

	if set.OBV.OK {
		vote := 0.0
		if set.OBV.Slope > 0 {
			vote = 1
		} else if set.OBV.Slope < 0 {
			vote = -1
		}
		sum += a.w.OBV * vote
		weight += a.w.OBV
	}

	// Above-average volume confirms the move relative to the band
	// midline; thin volume abstains.
	if set.VolumeSMA.OK && set.Bollinger.OK && set.Volume > set.VolumeSMA.Value {
		vote := 0.0
		if set.Close > set.Bollinger.Middle {
			vote = 1
		} else if set.Close < set.Bollinger.Middle {
			vote = -1
		}
		sum += a.w.Volume * vote
		weight += a.w.Volume
	}

	if weight == 0 {
		return 0, false
	}

	score := sum / weight

	// A weak trend (low ADX) halves the score; missing ADX leaves it
	// untouched rather than guessing.
	if set.ADX.OK && set.ADX.Value < adxTrendLevel {
		score *= weakTrendDamp
	}
	return clamp(score, -1, 1), true
}

func describeTimeframe(tf types.Timeframe, set indicator.Set) string {
	rsi := "n/a"
	if set.RSI.OK {
		rsi = fmt.Sprintf("%.1f", set.RSI.Value)
	}
	macd := "n/a"
	if set.MACD.OK {
		if set.MACD.Line > set.MACD.Signal {
			macd = "Bullish"
		} else {
			macd = "Bearish"
		}
	}
	bb := "n/a"
	if set.Bollinger.OK {
		switch {
		case set.Close < set.Bollinger.Lower:
			bb = "Oversold"
		case set.Close > set.Bollinger.Upper:
			bb = "Overbought"
		default:
			bb = "Normal"
		}
	}
	trend := "n/a"
	if set.ADX.OK {
		if set.ADX.Value >= adxTrendLevel {
			trend = fmt.Sprintf("Strong (ADX: %.1f)", set.ADX.Value)
		} else {
			trend = fmt.Sprintf("Weak (ADX: %.1f)", set.ADX.Value)
		}
	}
	return fmt.Sprintf("[%s] RSI: %s, MACD: %s, BB: %s, Trend: %s", strings.ToUpper(string(tf)), rsi, macd, bb, trend)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
