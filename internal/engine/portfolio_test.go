package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crypto-llm-trader/internal/types"
)

func openDecision(symbol string, size float64) types.Decision {
	return types.Decision{
		Symbol:       symbol,
		Action:       types.OpenLong,
		SizeFraction: size,
		StopLoss:     90,
		TakeProfit:   120,
	}
}

func TestApplyOpenAndCloseRoundTrip(t *testing.T) {
	p := newPortfolioState(10000, 0.5)

	require.NoError(t, p.applyOpen(openDecision("BTCUSDT", 0.1), types.Long, 100))

	view := p.view()
	assert.InDelta(t, 0.1, view.TotalAllocation, 1e-12)
	assert.InDelta(t, 9000, view.Cash, 1e-9)

	pnl, err := p.applyClose("BTCUSDT", 110)
	require.NoError(t, err)
	// 0.1 * 10000 notional, +10% move.
	assert.InDelta(t, 100, pnl, 1e-9)

	view = p.view()
	assert.Empty(t, view.Positions)
	assert.Zero(t, view.TotalAllocation)
	assert.InDelta(t, 10100, view.Cash, 1e-9)
}

func TestApplyCloseShortProfitsFromDrop(t *testing.T) {
	p := newPortfolioState(10000, 0.5)
	require.NoError(t, p.applyOpen(openDecision("BTCUSDT", 0.2), types.Short, 100))

	pnl, err := p.applyClose("BTCUSDT", 90)
	require.NoError(t, err)
	assert.InDelta(t, 200, pnl, 1e-9)
}

func TestApplyOpenEnforcesAllocationCap(t *testing.T) {
	p := newPortfolioState(10000, 0.3)

	require.NoError(t, p.applyOpen(openDecision("BTCUSDT", 0.2), types.Long, 100))
	err := p.applyOpen(openDecision("ETHUSDT", 0.15), types.Long, 100)
	assert.ErrorIs(t, err, ErrAllocationExceeded)

	// Exactly filling the remaining headroom is fine.
	require.NoError(t, p.applyOpen(openDecision("ETHUSDT", 0.1), types.Long, 100))
	assert.InDelta(t, 0.3, p.view().TotalAllocation, 1e-12)
}

func TestApplyOpenRejectsDuplicateSymbol(t *testing.T) {
	p := newPortfolioState(10000, 0.5)

	require.NoError(t, p.applyOpen(openDecision("BTCUSDT", 0.1), types.Long, 100))
	assert.Error(t, p.applyOpen(openDecision("BTCUSDT", 0.1), types.Long, 100))
}

func TestApplyCloseWithoutPosition(t *testing.T) {
	p := newPortfolioState(10000, 0.5)

	_, err := p.applyClose("BTCUSDT", 100)
	assert.ErrorIs(t, err, ErrNoPosition)
}
