package engine

import (
	"errors"
	"sync"
	"time"

	"crypto-llm-trader/internal/types"
)

// ErrAllocationExceeded is returned when applying a decision would push
// the summed position fractions past the portfolio risk cap.
var ErrAllocationExceeded = errors.New("total allocation would exceed portfolio risk level")

// ErrNoPosition is returned when closing a symbol with nothing open.
var ErrNoPosition = errors.New("no open position for symbol")

// portfolioState is the single mutable portfolio record. All writes go
// through applyOpen/applyClose under the mutex; readers get copies via
// view(). The initial cash amount fixes the portfolio value used to
// convert fractions to quote amounts.
type portfolioState struct {
	mu sync.Mutex

	value           float64
	cash            float64
	realizedPnL     float64
	positions       map[string]types.Position
	totalAllocation float64
	riskLevel       float64
}

func newPortfolioState(initialCash, riskLevel float64) *portfolioState {
	return &portfolioState{
		value:     initialCash,
		cash:      initialCash,
		positions: make(map[string]types.Position),
		riskLevel: riskLevel,
	}
}

// view returns a consistent read-only snapshot. The positions map is
// copied so callers can never mutate live state.
func (p *portfolioState) view() types.PortfolioView {
	p.mu.Lock()
	defer p.mu.Unlock()
	positions := make(map[string]types.Position, len(p.positions))
	for sym, pos := range p.positions {
		positions[sym] = pos
	}
	return types.PortfolioView{
		Cash:            p.cash,
		Positions:       positions,
		TotalAllocation: p.totalAllocation,
		RiskLevel:       p.riskLevel,
	}
}

// applyOpen commits an open decision. The allocation cap is re-checked
// inside the critical section: the risk manager sized the position
// against an earlier snapshot, and concurrent cycles for other symbols
// may have consumed headroom since.
func (p *portfolioState) applyOpen(dec types.Decision, direction types.Direction, entryPrice float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, open := p.positions[dec.Symbol]; open {
		return errors.New("position already open for symbol")
	}
	if p.totalAllocation+dec.SizeFraction > p.riskLevel {
		return ErrAllocationExceeded
	}

	p.positions[dec.Symbol] = types.Position{
		Symbol:     dec.Symbol,
		Direction:  direction,
		Fraction:   dec.SizeFraction,
		EntryPrice: entryPrice,
		StopLoss:   dec.StopLoss,
		TakeProfit: dec.TakeProfit,
		OpenedAt:   time.Now().UnixMilli(),
	}
	p.totalAllocation += dec.SizeFraction
	p.cash -= dec.SizeFraction * p.value
	return nil
}

// applyClose removes the symbol's position and realizes PnL at the
// given exit price.
func (p *portfolioState) applyClose(symbol string, exitPrice float64) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pos, open := p.positions[symbol]
	if !open {
		return 0, ErrNoPosition
	}

	notional := pos.Fraction * p.value
	ret := (exitPrice - pos.EntryPrice) / pos.EntryPrice
	if pos.Direction == types.Short {
		ret = -ret
	}
	pnl := notional * ret

	delete(p.positions, symbol)
	p.totalAllocation -= pos.Fraction
	if p.totalAllocation < 0 {
		p.totalAllocation = 0
	}
	p.cash += notional + pnl
	p.realizedPnL += pnl
	return pnl, nil
}

// position returns the open position for symbol, if any.
func (p *portfolioState) position(symbol string) (types.Position, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pos, ok := p.positions[symbol]
	return pos, ok
}
