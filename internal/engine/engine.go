package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"crypto-llm-trader/internal/indicator"
	"crypto-llm-trader/internal/interfaces"
	"crypto-llm-trader/internal/llm"
	"crypto-llm-trader/internal/logger"
	"crypto-llm-trader/internal/risk"
	"crypto-llm-trader/internal/signal"
	"crypto-llm-trader/internal/types"
)

// cycleState tracks the per-symbol evaluation lifecycle. A cycle is
// local to one Cycle call; only the apply step touches shared state.
type cycleState string

const (
	stateEvaluating  cycleState = "evaluating"
	stateReconciling cycleState = "reconciling"
	stateDecided     cycleState = "decided"
	stateApplied     cycleState = "applied"
	stateRejected    cycleState = "rejected"
)

// DecisionRecorder persists each completed cycle. Recording failures
// are logged, never fatal.
type DecisionRecorder interface {
	RecordDecision(ctx context.Context, result types.CycleResult) error
}

// Engine drives one symbol through evaluation, reconciliation, and
// portfolio application. Risk assessment and the LLM opinion run
// concurrently; portfolio mutation is serialized through a single
// writer so the allocation cap holds under concurrent cycles.
type Engine struct {
	market      interfaces.MarketData
	aggregator  *signal.Aggregator
	riskMgr     *risk.Manager
	coordinator *llm.Coordinator
	contextProv interfaces.ContextProvider
	recorder    DecisionRecorder
	portfolio   *portfolioState

	timeframes []types.Timeframe
	history    int
	indCfg     indicator.Settings

	agreementBonus float64
	signalWeight   float64
	fallbackWeight float64
}

var _ interfaces.Engine = (*Engine)(nil)

// Portfolio returns a read-only snapshot of current holdings.
func (e *Engine) Portfolio() types.PortfolioView {
	return e.portfolio.view()
}

// Cycle evaluates one symbol end to end and returns the applied (or
// rejected) outcome. Degraded inputs narrow the decision toward hold
// rather than failing the cycle; the returned error is reserved for
// total input loss.
func (e *Engine) Cycle(ctx context.Context, symbol string) (*types.CycleResult, error) {
	cycleID := uuid.New().String()
	e.transition(ctx, symbol, cycleID, stateEvaluating)

	price, err := e.market.LastPrice(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("last price for %s: %w", symbol, err)
	}

	// Protective exits come before any fresh evaluation: a breached
	// stop or target closes the position immediately.
	if pos, open := e.portfolio.position(symbol); open {
		if reason, hit := exitTriggered(pos, price); hit {
			return e.applyClose(ctx, symbol, cycleID, price, reason, types.Signal{Symbol: symbol, Direction: types.Flat})
		}
	}

	sets, err := e.collectIndicators(ctx, symbol)
	if err != nil {
		return nil, err
	}
	sig := e.aggregator.Aggregate(symbol, sets)

	atr := primaryATR(sets, e.timeframes)
	view := e.portfolio.view()

	// Risk sizing and the LLM opinion are independent consumers of the
	// same signal; run them in parallel.
	var (
		assessment *types.RiskAssessment
		riskErr    error
		opinion    types.Opinion
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		assessment, riskErr = e.riskMgr.Assess(gctx, sig, view, price, atr)
		var rejected *risk.RejectedError
		if riskErr != nil && !errors.As(riskErr, &rejected) {
			return riskErr
		}
		return nil
	})
	g.Go(func() error {
		marketContext := ""
		if e.contextProv != nil {
			mc, cerr := e.contextProv.MarketContext(gctx, symbol)
			if cerr != nil {
				logger.Warn(gctx, "market context unavailable", "symbol", symbol, "error", cerr.Error())
			} else {
				marketContext = mc
			}
		}
		opinion = e.coordinator.Opine(gctx, sig, marketContext)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	e.transition(ctx, symbol, cycleID, stateReconciling)
	decision, reason := e.reconcile(symbol, cycleID, sig, assessment, riskErr, opinion)
	e.transition(ctx, symbol, cycleID, stateDecided)

	result := &types.CycleResult{
		Symbol:   symbol,
		Decision: decision,
		Signal:   sig,
		Risk:     assessment,
		Opinion:  opinion,
		Reason:   reason,
	}

	switch decision.Action {
	case types.OpenLong, types.OpenShort:
		direction := types.Long
		if decision.Action == types.OpenShort {
			direction = types.Short
		}
		if applyErr := e.portfolio.applyOpen(decision, direction, price); applyErr != nil {
			e.transition(ctx, symbol, cycleID, stateRejected)
			result.Applied = false
			result.Reason = applyErr.Error()
			logger.Decision(ctx, symbol, string(decision.Action), decision.Confidence,
				"rejected at apply: "+applyErr.Error(), "cycle_id", cycleID)
		} else {
			e.transition(ctx, symbol, cycleID, stateApplied)
			result.Applied = true
			logger.Decision(ctx, symbol, string(decision.Action), decision.Confidence,
				decision.Reasoning, "cycle_id", cycleID, "size_fraction", decision.SizeFraction)
		}
	case types.Close:
		return e.applyClose(ctx, symbol, cycleID, price, reason, sig)
	default:
		e.transition(ctx, symbol, cycleID, stateApplied)
		result.Applied = true
		logger.Decision(ctx, symbol, string(types.Hold), decision.Confidence, reason, "cycle_id", cycleID)
	}

	e.record(ctx, *result)
	return result, nil
}

// collectIndicators fetches candles and computes indicator sets per
// configured timeframe. A failing timeframe is dropped, not fatal; only
// losing every timeframe fails the cycle.
func (e *Engine) collectIndicators(ctx context.Context, symbol string) (map[types.Timeframe]indicator.Set, error) {
	sets := make(map[types.Timeframe]indicator.Set, len(e.timeframes))
	for _, tf := range e.timeframes {
		candles, err := e.market.RecentCandles(ctx, symbol, tf, e.history)
		if err != nil {
			logger.Warn(ctx, "candle fetch failed, dropping timeframe",
				"symbol", symbol, "timeframe", string(tf), "error", err.Error())
			continue
		}
		sets[tf] = indicator.Compute(symbol, tf, candles, e.indCfg)
	}
	if len(sets) == 0 {
		return nil, fmt.Errorf("no market data for %s on any timeframe", symbol)
	}
	return sets, nil
}

// reconcile merges the deterministic signal, the risk assessment, and
// the LLM opinion into one decision. Any unresolved conflict narrows
// to hold.
func (e *Engine) reconcile(symbol, cycleID string, sig types.Signal, assessment *types.RiskAssessment, riskErr error, opinion types.Opinion) (types.Decision, string) {
	now := time.Now().UnixMilli()
	hold := func(reason string, confidence float64) (types.Decision, string) {
		return types.Decision{
			Symbol:     symbol,
			Action:     types.Hold,
			Confidence: confidence,
			Reasoning:  reason,
			CycleID:    cycleID,
			Timestamp:  now,
		}, reason
	}

	confidence := e.blendConfidence(sig, opinion)

	if pos, open := e.portfolio.position(symbol); open {
		if sig.Direction.Opposite(pos.Direction) {
			return types.Decision{
				Symbol:     symbol,
				Action:     types.Close,
				Confidence: confidence,
				Reasoning:  fmt.Sprintf("signal reversed against open %s position", pos.Direction),
				CycleID:    cycleID,
				Timestamp:  now,
			}, "signal reversal"
		}
		return hold("position already open", confidence)
	}

	if sig.Direction == types.Flat {
		return hold("signal is neutral", confidence)
	}
	if riskErr != nil {
		return hold("risk rejected: "+riskErr.Error(), confidence)
	}
	if opinion.Valid && opinion.Direction.Opposite(sig.Direction) {
		return hold(fmt.Sprintf("llm direction %s conflicts with signal %s", opinion.Direction, sig.Direction), confidence)
	}

	size := assessment.MaxPositionFraction * confidence
	if opinion.Valid && opinion.Direction == sig.Direction {
		size = math.Min(size*(1+e.agreementBonus), assessment.MaxPositionFraction)
	}
	if size <= 0 {
		return hold("position size rounded to zero", confidence)
	}

	action := types.OpenLong
	if sig.Direction == types.Short {
		action = types.OpenShort
	}
	reasoning := sig.Reasoning
	if opinion.Valid && opinion.Rationale != "" {
		reasoning += " | LLM: " + opinion.Rationale
	}
	return types.Decision{
		Symbol:       symbol,
		Action:       action,
		SizeFraction: size,
		StopLoss:     assessment.StopLoss,
		TakeProfit:   assessment.TakeProfit,
		Confidence:   confidence,
		Reasoning:    reasoning,
		CycleID:      cycleID,
		Timestamp:    now,
	}, ""
}

// blendConfidence weights the deterministic confidence against the
// opinion's. A fallback opinion carries little independent information,
// so the signal dominates.
func (e *Engine) blendConfidence(sig types.Signal, opinion types.Opinion) float64 {
	w := e.signalWeight
	if !opinion.Valid {
		w = e.fallbackWeight
	}
	c := w*sig.Confidence + (1-w)*opinion.Confidence
	return math.Max(0, math.Min(1, c))
}

func (e *Engine) applyClose(ctx context.Context, symbol, cycleID string, price float64, reason string, sig types.Signal) (*types.CycleResult, error) {
	pnl, err := e.portfolio.applyClose(symbol, price)
	decision := types.Decision{
		Symbol:    symbol,
		Action:    types.Close,
		Reasoning: reason,
		CycleID:   cycleID,
		Timestamp: time.Now().UnixMilli(),
	}
	result := &types.CycleResult{Symbol: symbol, Decision: decision, Signal: sig, Reason: reason}
	if err != nil {
		e.transition(ctx, symbol, cycleID, stateRejected)
		result.Reason = err.Error()
		logger.ErrorWithErr(ctx, "close failed", err, "symbol", symbol, "cycle_id", cycleID)
	} else {
		e.transition(ctx, symbol, cycleID, stateApplied)
		result.Applied = true
		logger.Decision(ctx, symbol, string(types.Close), 0, reason,
			"cycle_id", cycleID, "exit_price", price, "realized_pnl", pnl)
	}
	e.record(ctx, *result)
	return result, nil
}

// exitTriggered reports whether the current price breaches the
// position's stop or target.
func exitTriggered(pos types.Position, price float64) (string, bool) {
	switch pos.Direction {
	case types.Long:
		if pos.StopLoss > 0 && price <= pos.StopLoss {
			return "stop loss hit", true
		}
		if pos.TakeProfit > 0 && price >= pos.TakeProfit {
			return "take profit hit", true
		}
	case types.Short:
		if pos.StopLoss > 0 && price >= pos.StopLoss {
			return "stop loss hit", true
		}
		if pos.TakeProfit > 0 && price <= pos.TakeProfit {
			return "take profit hit", true
		}
	}
	return "", false
}

// primaryATR picks the ATR from the shortest configured timeframe that
// produced one. Sizing wants the finest-grained volatility available.
func primaryATR(sets map[types.Timeframe]indicator.Set, order []types.Timeframe) float64 {
	for _, tf := range order {
		if set, ok := sets[tf]; ok && set.ATR.OK {
			return set.ATR.Value
		}
	}
	return 0
}

func (e *Engine) transition(ctx context.Context, symbol, cycleID string, state cycleState) {
	logger.Debug(ctx, "cycle state", "symbol", symbol, "cycle_id", cycleID, "state", string(state))
}

func (e *Engine) record(ctx context.Context, result types.CycleResult) {
	if e.recorder == nil {
		return
	}
	if err := e.recorder.RecordDecision(ctx, result); err != nil {
		logger.ErrorWithErr(ctx, "decision record failed", err, "symbol", result.Symbol)
	}
}
