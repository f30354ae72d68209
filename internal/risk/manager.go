package risk

import (
	"context"
	"fmt"
	"math"

	"crypto-llm-trader/internal/logger"
	"crypto-llm-trader/internal/types"
)

// RejectedError is the terminal risk outcome for a cycle: the engine
// converts it to a hold decision, it is never retried.
type RejectedError struct {
	Symbol string
	Reason string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("risk rejected for %s: %s", e.Symbol, e.Reason)
}

// Config holds the sizing and stop parameters.
type Config struct {
	BaseRisk          float64 // base position fraction before scaling
	VolShrinkK        float64 // volatility shrink factor k
	MinConfidence     float64 // below this the cycle is rejected
	StopATRMult       float64 // stop distance in ATRs
	TakeProfitATRMult float64 // target distance in ATRs
	MinTick           float64 // price tick for stop/target rounding
}

// Manager converts a signal plus portfolio state and volatility into a
// bounded position, or rejects the cycle outright.
type Manager struct {
	cfg Config
}

func NewManager(cfg Config) *Manager {
	if cfg.StopATRMult <= 0 {
		cfg.StopATRMult = 2.0
	}
	if cfg.TakeProfitATRMult <= 0 {
		cfg.TakeProfitATRMult = 3.0
	}
	return &Manager{cfg: cfg}
}

// Assess sizes a position for the signal.
//
// max_position_fraction = base_risk * confidence * 1/(1 + k*vol),
// clamped to the portfolio's remaining headroom. Volatility is the
// ATR/price ratio of the entry timeframe. Stop and target are ATR
// multiples from the entry price, direction aware.
//
// Returns *RejectedError when headroom is exhausted, confidence is
// below the minimum, the signal is flat, or volatility is undefined.
func (m *Manager) Assess(ctx context.Context, sig types.Signal, view types.PortfolioView, entryPrice, atr float64) (*types.RiskAssessment, error) {
	if sig.Direction == types.Flat {
		return nil, m.reject(ctx, sig.Symbol, "signal is flat")
	}
	if sig.Confidence < m.cfg.MinConfidence {
		return nil, m.reject(ctx, sig.Symbol, fmt.Sprintf("confidence %.3f below minimum %.3f", sig.Confidence, m.cfg.MinConfidence))
	}
	if entryPrice <= 0 || math.IsNaN(entryPrice) {
		return nil, m.reject(ctx, sig.Symbol, "entry price undefined")
	}
	if atr <= 0 || math.IsNaN(atr) {
		return nil, m.reject(ctx, sig.Symbol, "volatility undefined: insufficient ATR history")
	}

	headroom := view.Headroom()
	if headroom <= 0 {
		return nil, m.reject(ctx, sig.Symbol, "no allocation headroom")
	}

	vol := atr / entryPrice
	fraction := m.cfg.BaseRisk * sig.Confidence / (1 + m.cfg.VolShrinkK*vol)
	if fraction > headroom {
		fraction = headroom
	}
	if fraction < 0 {
		fraction = 0
	}

	stop := entryPrice - m.cfg.StopATRMult*atr
	target := entryPrice + m.cfg.TakeProfitATRMult*atr
	if sig.Direction == types.Short {
		stop = entryPrice + m.cfg.StopATRMult*atr
		target = entryPrice - m.cfg.TakeProfitATRMult*atr
	}

	return &types.RiskAssessment{
		Symbol:              sig.Symbol,
		MaxPositionFraction: fraction,
		StopLoss:            roundToTick(stop, m.cfg.MinTick),
		TakeProfit:          roundToTick(target, m.cfg.MinTick),
		Volatility:          vol,
		EntryPrice:          entryPrice,
	}, nil
}

func (m *Manager) reject(ctx context.Context, symbol, reason string) *RejectedError {
	logger.Risk(ctx, symbol, "RISK_REJECTED", "reason", reason)
	return &RejectedError{Symbol: symbol, Reason: reason}
}

func roundToTick(price, tick float64) float64 {
	if tick <= 0 {
		return price
	}
	return math.Round(price/tick) * tick
}
