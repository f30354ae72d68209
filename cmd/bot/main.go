package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"crypto-llm-trader/internal/logger"
	"crypto-llm-trader/internal/summary"
	"crypto-llm-trader/internal/trace"
)

func main() {
	if err := initializeSystem(); err != nil {
		log.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := loadConfig(ctx)
	if err != nil {
		log.Fatal(err)
	}

	compressOldLogs(ctx)

	src := initializeMarket(ctx, cfg)
	provider := initializeProvider(ctx, cfg)
	contextProv := initializeContext(cfg)
	eng := initializeEngine(cfg, src, provider, contextProv)

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	tick := time.NewTicker(time.Duration(cfg.PollSeconds) * time.Second)
	defer tick.Stop()
	summaryTick := time.NewTicker(time.Minute)
	defer summaryTick.Stop()

	logger.Info(ctx, "Bot started",
		"mode", cfg.Mode,
		"symbols", cfg.Symbols,
		"poll_seconds", cfg.PollSeconds,
		"llm_provider", cfg.LLM.Provider,
	)

	for {
		select {
		case <-tick.C:
			// Symbols are independent; evaluate them in parallel. A
			// failing symbol logs and skips, never stops the loop.
			g, gctx := errgroup.WithContext(ctx)
			for _, sym := range cfg.Symbols {
				sym := sym
				g.Go(func() error {
					if _, err := eng.Cycle(gctx, sym); err != nil {
						logger.ErrorWithErr(gctx, "Cycle error", err, "symbol", sym)
					}
					return nil
				})
			}
			_ = g.Wait()

			view := eng.Portfolio()
			logger.Info(ctx, "Portfolio",
				"cash", view.Cash,
				"positions", len(view.Positions),
				"total_allocation", view.TotalAllocation,
			)

		case <-summaryTick.C:
			if ok, _ := summary.ShouldRunNow(); ok {
				if p, err := summary.SummarizeYesterday(); err == nil && p != "" {
					logger.Info(ctx, "Daily summary written", "path", p)
				}
			}

		case <-sigc:
			logger.Info(ctx, "Shutting down")
			if p, err := summary.SummarizeToday(); err == nil && p != "" {
				logger.Info(ctx, "Daily summary written", "path", p)
			}
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			_ = trace.Shutdown(shutdownCtx)
			shutdownCancel()
			return

		case <-ctx.Done():
			return
		}
	}
}
