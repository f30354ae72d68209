package engine

import (
	"time"

	"crypto-llm-trader/internal/indicator"
	"crypto-llm-trader/internal/interfaces"
	"crypto-llm-trader/internal/llm"
	"crypto-llm-trader/internal/risk"
	"crypto-llm-trader/internal/signal"
	"crypto-llm-trader/internal/store"
	"crypto-llm-trader/internal/types"
)

// Deps collects the engine's collaborators. Market and the opinion
// provider are required; context provider and recorders are optional.
type Deps struct {
	Market      interfaces.MarketData
	Provider    interfaces.OpinionProvider
	ContextProv interfaces.ContextProvider
	CallRec     llm.CallRecorder
	DecisionRec DecisionRecorder
}

// New assembles an Engine from config. All tunables flow from the
// config file; zero values fall back to the package defaults.
func New(cfg *store.Config, deps Deps) *Engine {
	weights := signal.Weights{
		NeutralityThreshold: cfg.Aggregator.NeutralityThreshold,
	}
	if iw := cfg.Aggregator.IndicatorWeights; len(iw) > 0 {
		weights.RSI = iw["rsi"]
		weights.MACD = iw["macd"]
		weights.Bollinger = iw["bollinger"]
		weights.OBV = iw["obv"]
		weights.Volume = iw["volume"]
	}
	if tw := cfg.Aggregator.TimeframeWeights; len(tw) > 0 {
		weights.Timeframe = make(map[types.Timeframe]float64, len(tw))
		for tf, w := range tw {
			weights.Timeframe[types.Timeframe(tf)] = w
		}
	}

	riskCfg := risk.Config{
		BaseRisk:          cfg.Risk.BaseRisk,
		VolShrinkK:        cfg.Risk.VolShrinkK,
		MinConfidence:     cfg.Risk.MinConfidence,
		StopATRMult:       cfg.Risk.StopATRMult,
		TakeProfitATRMult: cfg.Risk.TakeProfitATRMult,
		MinTick:           cfg.Risk.MinTick,
	}

	coordinator := llm.NewCoordinator(deps.Provider, deps.CallRec, llm.Config{
		Timeout:     time.Duration(cfg.LLM.TimeoutSeconds) * time.Second,
		MaxAttempts: cfg.LLM.MaxAttempts,
		System:      cfg.LLM.System,
	})

	indCfg := indicator.Settings{
		RSIPeriod:  cfg.Indicators.RSIPeriod,
		MACDFast:   cfg.Indicators.MACDFast,
		MACDSlow:   cfg.Indicators.MACDSlow,
		MACDSignal: cfg.Indicators.MACDSignal,
		BBWindow:   cfg.Indicators.BBWindow,
		BBStdDev:   cfg.Indicators.BBStdDev,
		ADXPeriod:  cfg.Indicators.ADXPeriod,
		ATRPeriod:  cfg.Indicators.ATRPeriod,
		VolumeSMA:  cfg.Indicators.VolumeSMA,
	}

	return &Engine{
		market:      deps.Market,
		aggregator:  signal.New(weights),
		riskMgr:     risk.NewManager(riskCfg),
		coordinator: coordinator,
		contextProv: deps.ContextProv,
		recorder:    deps.DecisionRec,
		portfolio:   newPortfolioState(cfg.Portfolio.InitialCash, cfg.Risk.RiskLevel),

		timeframes: sortedTimeframes(cfg.ParsedTimeframes()),
		history:    cfg.Indicators.History,
		indCfg:     indCfg,

		agreementBonus: cfg.Aggregator.AgreementBonus,
		signalWeight:   cfg.LLM.SignalWeight,
		fallbackWeight: cfg.LLM.FallbackWeight,
	}
}

// sortedTimeframes orders shortest first so ATR selection and logs are
// deterministic regardless of config order.
func sortedTimeframes(tfs []types.Timeframe) []types.Timeframe {
	out := make([]types.Timeframe, len(tfs))
	copy(out, tfs)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Duration() < out[j-1].Duration(); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}
