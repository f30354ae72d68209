package store

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"crypto-llm-trader/internal/types"
)

type Config struct {
	Mode        string   `yaml:"mode"`
	DataSource  string   `yaml:"data_source"`
	PollSeconds int      `yaml:"poll_seconds"`
	Symbols     []string `yaml:"symbols"`
	Timeframes  []string `yaml:"timeframes"`

	Risk struct {
		RiskLevel        float64 `yaml:"risk_level"`
		BaseRisk         float64 `yaml:"base_risk"`
		VolShrinkK       float64 `yaml:"vol_shrink_k"`
		MinConfidence    float64 `yaml:"min_confidence"`
		StopATRMult      float64 `yaml:"stop_atr_mult"`
		TakeProfitATRMult float64 `yaml:"take_profit_atr_mult"`
		MinTick          float64 `yaml:"min_tick"`
	} `yaml:"risk"`

	Aggregator struct {
		NeutralityThreshold float64            `yaml:"neutrality_threshold"`
		AgreementBonus      float64            `yaml:"agreement_bonus"`
		TimeframeWeights    map[string]float64 `yaml:"timeframe_weights"`
		IndicatorWeights    map[string]float64 `yaml:"indicator_weights"`
	} `yaml:"aggregator"`

	Indicators struct {
		RSIPeriod  int     `yaml:"rsi_period"`
		MACDFast   int     `yaml:"macd_fast"`
		MACDSlow   int     `yaml:"macd_slow"`
		MACDSignal int     `yaml:"macd_signal"`
		BBWindow   int     `yaml:"bb_window"`
		BBStdDev   float64 `yaml:"bb_stddev"`
		ADXPeriod  int     `yaml:"adx_period"`
		ATRPeriod  int     `yaml:"atr_period"`
		VolumeSMA  int     `yaml:"volume_sma"`
		History    int     `yaml:"history"`
	} `yaml:"indicators"`

	LLM struct {
		Provider       string  `yaml:"provider"`
		Model          string  `yaml:"model"`
		BaseURL        string  `yaml:"base_url"`
		MaxTokens      int     `yaml:"max_tokens"`
		Temperature    float32 `yaml:"temperature"`
		System         string  `yaml:"system"`
		TimeoutSeconds int     `yaml:"timeout_seconds"`
		MaxAttempts    int     `yaml:"max_attempts"`
		SignalWeight   float64 `yaml:"signal_weight"`
		FallbackWeight float64 `yaml:"fallback_weight"`
	} `yaml:"llm"`

	News struct {
		Enabled      bool `yaml:"enabled"`
		MaxArticles  int  `yaml:"max_articles"`
		CacheMinutes int  `yaml:"cache_minutes"`
	} `yaml:"news"`

	Portfolio struct {
		InitialCash float64 `yaml:"initial_cash"`
	} `yaml:"portfolio"`
}

func (c *Config) Validate() error {
	if c.Mode != "DRY_RUN" && c.Mode != "LIVE" {
		return fmt.Errorf("invalid mode '%s': must be 'DRY_RUN' or 'LIVE'", c.Mode)
	}
	if c.DataSource != "STATIC" && c.DataSource != "BINANCE" {
		return fmt.Errorf("invalid data_source '%s': must be 'STATIC' or 'BINANCE'", c.DataSource)
	}
	if len(c.Symbols) == 0 {
		return errors.New("symbols cannot be empty")
	}
	if len(c.Timeframes) == 0 {
		return errors.New("timeframes cannot be empty")
	}
	for _, tf := range c.Timeframes {
		switch types.Timeframe(tf) {
		case types.TF1h, types.TF4h, types.TF1d:
		default:
			return fmt.Errorf("invalid timeframe '%s': must be one of 1h, 4h, 1d", tf)
		}
	}
	if c.Risk.RiskLevel <= 0 || c.Risk.RiskLevel > 1 {
		return fmt.Errorf("risk.risk_level must be in (0,1], got %.2f", c.Risk.RiskLevel)
	}
	if c.Risk.BaseRisk <= 0 || c.Risk.BaseRisk > 1 {
		return fmt.Errorf("risk.base_risk must be in (0,1], got %.2f", c.Risk.BaseRisk)
	}
	if c.Aggregator.NeutralityThreshold < 0 || c.Aggregator.NeutralityThreshold >= 1 {
		return fmt.Errorf("aggregator.neutrality_threshold must be in [0,1), got %.2f", c.Aggregator.NeutralityThreshold)
	}
	if c.Aggregator.AgreementBonus < 0 {
		return fmt.Errorf("aggregator.agreement_bonus must be >= 0, got %.2f", c.Aggregator.AgreementBonus)
	}
	if c.LLM.Provider != "OPENAI" && c.LLM.Provider != "NOOP" {
		return fmt.Errorf("llm.provider must be 'OPENAI' or 'NOOP', got '%s'", c.LLM.Provider)
	}
	if c.LLM.Provider == "OPENAI" && c.LLM.Model == "" {
		return errors.New("llm.model is required when provider is OPENAI")
	}
	if c.LLM.MaxAttempts < 1 {
		return fmt.Errorf("llm.max_attempts must be >= 1, got %d", c.LLM.MaxAttempts)
	}
	return nil
}

// ParsedTimeframes returns the configured timeframes as typed values,
// in config order.
func (c *Config) ParsedTimeframes() []types.Timeframe {
	tfs := make([]types.Timeframe, 0, len(c.Timeframes))
	for _, tf := range c.Timeframes {
		tfs = append(tfs, types.Timeframe(tf))
	}
	return tfs
}

func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	applyDefaults(&c)
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func applyDefaults(c *Config) {
	if c.PollSeconds == 0 {
		c.PollSeconds = 60
	}
	if c.DataSource == "" {
		c.DataSource = "STATIC"
	}
	if len(c.Timeframes) == 0 {
		c.Timeframes = []string{"1h", "4h", "1d"}
	}
	if c.Risk.VolShrinkK == 0 {
		c.Risk.VolShrinkK = 10
	}
	if c.Risk.MinConfidence == 0 {
		c.Risk.MinConfidence = 0.1
	}
	if c.Risk.StopATRMult == 0 {
		c.Risk.StopATRMult = 2.0
	}
	if c.Risk.TakeProfitATRMult == 0 {
		c.Risk.TakeProfitATRMult = 3.0
	}
	if c.Aggregator.NeutralityThreshold == 0 {
		c.Aggregator.NeutralityThreshold = 0.2
	}
	if c.Aggregator.AgreementBonus == 0 {
		c.Aggregator.AgreementBonus = 0.25
	}
	if len(c.Aggregator.TimeframeWeights) == 0 {
		c.Aggregator.TimeframeWeights = map[string]float64{"1h": 1, "4h": 2, "1d": 3}
	}
	if c.Indicators.RSIPeriod == 0 {
		c.Indicators.RSIPeriod = 14
	}
	if c.Indicators.MACDFast == 0 {
		c.Indicators.MACDFast = 12
	}
	if c.Indicators.MACDSlow == 0 {
		c.Indicators.MACDSlow = 26
	}
	if c.Indicators.MACDSignal == 0 {
		c.Indicators.MACDSignal = 9
	}
	if c.Indicators.BBWindow == 0 {
		c.Indicators.BBWindow = 20
	}
	if c.Indicators.BBStdDev == 0 {
		c.Indicators.BBStdDev = 2.0
	}
	if c.Indicators.ADXPeriod == 0 {
		c.Indicators.ADXPeriod = 14
	}
	if c.Indicators.ATRPeriod == 0 {
		c.Indicators.ATRPeriod = 14
	}
	if c.Indicators.VolumeSMA == 0 {
		c.Indicators.VolumeSMA = 20
	}
	if c.Indicators.History == 0 {
		c.Indicators.History = 250
	}
	if c.LLM.Provider == "" {
		c.LLM.Provider = "NOOP"
	}
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = 512
	}
	if c.LLM.TimeoutSeconds == 0 {
		c.LLM.TimeoutSeconds = 30
	}
	if c.LLM.MaxAttempts == 0 {
		c.LLM.MaxAttempts = 2
	}
	if c.LLM.SignalWeight == 0 {
		c.LLM.SignalWeight = 0.5
	}
	if c.LLM.FallbackWeight == 0 {
		c.LLM.FallbackWeight = 0.8
	}
	if c.News.MaxArticles == 0 {
		c.News.MaxArticles = 10
	}
	if c.News.CacheMinutes == 0 {
		c.News.CacheMinutes = 60
	}
	if c.Portfolio.InitialCash == 0 {
		c.Portfolio.InitialCash = 10000
	}
}
