package types

import "time"

// Timeframe is the sampling interval of a candle series.
type Timeframe string

const (
	TF1h Timeframe = "1h"
	TF4h Timeframe = "4h"
	TF1d Timeframe = "1d"
)

// Duration returns the bar interval for the timeframe.
func (tf Timeframe) Duration() time.Duration {
	switch tf {
	case TF4h:
		return 4 * time.Hour
	case TF1d:
		return 24 * time.Hour
	default:
		return time.Hour
	}
}

// Candle is one immutable OHLCV bar. OpenTime is unix milliseconds and
// strictly increases within a series.
type Candle struct {
	OpenTime                       int64
	Open, High, Low, Close, Volume float64
}

// Direction of a signal, opinion, or open position.
type Direction string

const (
	Long  Direction = "long"
	Short Direction = "short"
	Flat  Direction = "flat"
)

// Opposite reports whether two directions are strictly opposed
// (long vs short). Flat never opposes anything.
func (d Direction) Opposite(other Direction) bool {
	return (d == Long && other == Short) || (d == Short && other == Long)
}

// Signal is the deterministic multi-timeframe view for one symbol.
// Confidence is the clamped magnitude of the aggregate score.
type Signal struct {
	Symbol     string                `json:"symbol"`
	Direction  Direction             `json:"direction"`
	Confidence float64               `json:"confidence"`
	Score      float64               `json:"score"`
	Breakdown  map[Timeframe]float64 `json:"timeframe_breakdown"`
	Reasoning  string                `json:"reasoning"`
}

// RiskAssessment bounds a position for one symbol. Prices are in quote
// currency, MaxPositionFraction in [0,1] of total portfolio value.
type RiskAssessment struct {
	Symbol              string  `json:"symbol"`
	MaxPositionFraction float64 `json:"max_position_fraction"`
	StopLoss            float64 `json:"stop_loss"`
	TakeProfit          float64 `json:"take_profit"`
	Volatility          float64 `json:"volatility_estimate"`
	EntryPrice          float64 `json:"entry_price"`
}

// Opinion is the validated (or fallen-back) LLM view for one symbol.
// When Valid is false the direction is copied from the deterministic
// signal and FallbackReason names why.
type Opinion struct {
	Symbol         string    `json:"symbol"`
	Direction      Direction `json:"direction"`
	Confidence     float64   `json:"confidence"`
	Rationale      string    `json:"rationale"`
	Valid          bool      `json:"raw_response_valid"`
	FallbackReason string    `json:"fallback_reason,omitempty"`
	Model          string    `json:"model"`
	CallID         string    `json:"call_id"`
	Timestamp      int64     `json:"timestamp"`
}

// Action is the terminal verb of a decision.
type Action string

const (
	OpenLong  Action = "open_long"
	OpenShort Action = "open_short"
	Close     Action = "close"
	Hold      Action = "hold"
)

// Decision is the immutable output of one evaluation cycle for one
// symbol.
type Decision struct {
	Symbol       string  `json:"symbol"`
	Action       Action  `json:"action"`
	SizeFraction float64 `json:"size_fraction"`
	StopLoss     float64 `json:"stop_loss"`
	TakeProfit   float64 `json:"take_profit"`
	Confidence   float64 `json:"confidence"`
	Reasoning    string  `json:"reasoning"`
	CycleID      string  `json:"cycle_id"`
	Timestamp    int64   `json:"timestamp"`
}

// Position is one open holding inside the portfolio.
type Position struct {
	Symbol     string    `json:"symbol"`
	Direction  Direction `json:"direction"`
	Fraction   float64   `json:"fraction"`
	EntryPrice float64   `json:"entry_price"`
	StopLoss   float64   `json:"stop_loss"`
	TakeProfit float64   `json:"take_profit"`
	OpenedAt   int64     `json:"opened_at"`
}

// PortfolioView is a read-only snapshot of portfolio state handed to
// the risk manager. Mutation happens only through the engine's apply
// path.
type PortfolioView struct {
	Cash            float64
	Positions       map[string]Position
	TotalAllocation float64
	RiskLevel       float64
}

// Headroom is the allocation fraction still available under the
// portfolio risk cap.
func (v PortfolioView) Headroom() float64 {
	h := v.RiskLevel - v.TotalAllocation
	if h < 0 {
		return 0
	}
	return h
}

// CycleResult reports one completed evaluation cycle for one symbol.
type CycleResult struct {
	Symbol   string          `json:"symbol"`
	Decision Decision        `json:"decision"`
	Signal   Signal          `json:"signal"`
	Risk     *RiskAssessment `json:"risk,omitempty"`
	Opinion  Opinion         `json:"opinion"`
	Applied  bool            `json:"applied"`
	Reason   string          `json:"reason,omitempty"`
}
