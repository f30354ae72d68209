package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crypto-llm-trader/internal/types"
)

const minimalYAML = `
mode: DRY_RUN
symbols:
  - BTCUSDT
  - ETHUSDT
risk:
  risk_level: 0.5
  base_risk: 0.1
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfigAppliesDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, "STATIC", cfg.DataSource)
	assert.Equal(t, 60, cfg.PollSeconds)
	assert.Equal(t, []string{"1h", "4h", "1d"}, cfg.Timeframes)
	assert.Equal(t, "NOOP", cfg.LLM.Provider)
	assert.Equal(t, 2, cfg.LLM.MaxAttempts)
	assert.Equal(t, 30, cfg.LLM.TimeoutSeconds)
	assert.InDelta(t, 0.2, cfg.Aggregator.NeutralityThreshold, 1e-9)
	assert.InDelta(t, 0.25, cfg.Aggregator.AgreementBonus, 1e-9)
	assert.InDelta(t, 10.0, cfg.Risk.VolShrinkK, 1e-9)
	assert.Equal(t, 250, cfg.Indicators.History)
	assert.InDelta(t, 10000.0, cfg.Portfolio.InitialCash, 1e-9)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestParsedTimeframes(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, []types.Timeframe{types.TF1h, types.TF4h, types.TF1d}, cfg.ParsedTimeframes())
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	base := func() *Config {
		cfg := &Config{
			Mode:       "DRY_RUN",
			DataSource: "STATIC",
			Symbols:    []string{"BTCUSDT"},
			Timeframes: []string{"1h"},
		}
		cfg.Risk.RiskLevel = 0.5
		cfg.Risk.BaseRisk = 0.1
		cfg.LLM.Provider = "NOOP"
		cfg.LLM.MaxAttempts = 2
		return cfg
	}

	require.NoError(t, base().Validate())

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad mode", func(c *Config) { c.Mode = "PAPER" }},
		{"bad data source", func(c *Config) { c.DataSource = "KRAKEN" }},
		{"no symbols", func(c *Config) { c.Symbols = nil }},
		{"bad timeframe", func(c *Config) { c.Timeframes = []string{"15m"} }},
		{"risk level too high", func(c *Config) { c.Risk.RiskLevel = 1.5 }},
		{"zero base risk", func(c *Config) { c.Risk.BaseRisk = 0 }},
		{"bad neutrality", func(c *Config) { c.Aggregator.NeutralityThreshold = 1.2 }},
		{"bad provider", func(c *Config) { c.LLM.Provider = "GEMINI" }},
		{"openai without model", func(c *Config) { c.LLM.Provider = "OPENAI"; c.LLM.Model = "" }},
		{"zero attempts", func(c *Config) { c.LLM.MaxAttempts = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
