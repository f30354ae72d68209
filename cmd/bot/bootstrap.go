package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"crypto-llm-trader/internal/auditlog"
	"crypto-llm-trader/internal/engine"
	"crypto-llm-trader/internal/engine/engineobs"
	"crypto-llm-trader/internal/interfaces"
	"crypto-llm-trader/internal/llm/llmobs"
	"crypto-llm-trader/internal/llm/noop"
	"crypto-llm-trader/internal/llm/openai"
	"crypto-llm-trader/internal/logger"
	"crypto-llm-trader/internal/market"
	"crypto-llm-trader/internal/market/marketobs"
	"crypto-llm-trader/internal/news"
	"crypto-llm-trader/internal/store"
	"crypto-llm-trader/internal/trace"
)

// initializeSystem initializes env, logger, and tracer
func initializeSystem() error {
	// Load environment variables
	_ = godotenv.Load()

	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	if err := trace.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize tracer: %v\n", err)
	}

	return nil
}

// loadConfig loads and returns the configuration
func loadConfig(ctx context.Context) (*store.Config, error) {
	path := os.Getenv("TRADER_CONFIG")
	if path == "" {
		path = "config.yaml"
	}
	cfg, err := store.LoadConfig(path)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to load config", err)
		return nil, err
	}
	return cfg, nil
}

// compressOldLogs compresses old audit files if retention is configured
func compressOldLogs(ctx context.Context) {
	if v := os.Getenv("TRADER_LOG_RETENTION_DAYS"); v != "" {
		var n int
		fmt.Sscanf(v, "%d", &n)
		if err := auditlog.CompressOlder(n); err != nil {
			logger.Warn(ctx, "Failed to compress old logs", "error", err)
		}
	}
}

// initializeMarket returns the candle source with observability
func initializeMarket(ctx context.Context, cfg *store.Config) interfaces.MarketData {
	var src interfaces.MarketData
	if cfg.DataSource == "BINANCE" {
		logger.Info(ctx, "Using LIVE candle data from Binance")
		src = market.NewBinanceSource(os.Getenv("BINANCE_BASE_URL"))
	} else {
		logger.Info(ctx, "Using STATIC synthetic candle data for testing")
		src = market.NewStaticSource()
	}

	if cfg.Mode == "DRY_RUN" {
		logger.Warn(ctx, "Running in DRY_RUN mode - positions are simulated")
	}

	// Wrap with observability middleware
	return marketobs.Wrap(src)
}

// initializeProvider returns the opinion provider with observability
func initializeProvider(ctx context.Context, cfg *store.Config) interfaces.OpinionProvider {
	var provider interfaces.OpinionProvider

	switch cfg.LLM.Provider {
	case "OPENAI":
		if os.Getenv("OPENAI_API_KEY") == "" {
			logger.Warn(ctx, "OPENAI_API_KEY not set - falling back to deterministic-only")
			return llmobs.Wrap(noop.New())
		}
		provider = openai.New(openai.Params{
			Model:       cfg.LLM.Model,
			BaseURL:     cfg.LLM.BaseURL,
			MaxTokens:   cfg.LLM.MaxTokens,
			Temperature: cfg.LLM.Temperature,
			Timeout:     time.Duration(cfg.LLM.TimeoutSeconds) * time.Second,
		})
	default:
		provider = noop.New()
		logger.Warn(ctx, "No LLM provider configured - running deterministic-only")
	}

	// Wrap with observability middleware
	return llmobs.Wrap(provider)
}

// initializeContext returns the market-context provider, or nil when
// news is disabled
func initializeContext(cfg *store.Config) interfaces.ContextProvider {
	if !cfg.News.Enabled {
		return nil
	}
	return news.NewService(&news.ServiceConfig{
		MaxArticles:    cfg.News.MaxArticles,
		CacheDuration:  time.Duration(cfg.News.CacheMinutes) * time.Minute,
		ScraperTimeout: 30 * time.Second,
		Enabled:        true,
	})
}

// initializeEngine assembles the engine with observability
func initializeEngine(cfg *store.Config, src interfaces.MarketData, provider interfaces.OpinionProvider, contextProv interfaces.ContextProvider) interfaces.Engine {
	recorder := auditlog.NewRecorder()
	eng := engine.New(cfg, engine.Deps{
		Market:      src,
		Provider:    provider,
		ContextProv: contextProv,
		CallRec:     recorder,
		DecisionRec: recorder,
	})

	// Wrap with observability middleware
	return engineobs.Wrap(eng)
}
