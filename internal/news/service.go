package news

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"crypto-llm-trader/internal/interfaces"
	"crypto-llm-trader/internal/logger"
)

// Service composes scraped headlines and the Fear & Greed index into
// the market-context text handed to the LLM. Results are cached per
// symbol; every failure degrades to an empty context rather than
// failing the cycle.
type Service struct {
	scraper   *Scraper
	fearGreed *FearGreedClient
	cache     *contextCache
	cfg       *ServiceConfig
}

var _ interfaces.ContextProvider = (*Service)(nil)

// ServiceConfig configures the market-context service
type ServiceConfig struct {
	MaxArticles    int           // Maximum articles to scrape per symbol
	CacheDuration  time.Duration // How long to cache composed context
	ScraperTimeout time.Duration // Timeout for scraping operations
	Enabled        bool          // Whether news context is enabled
}

// DefaultServiceConfig returns default configuration
func DefaultServiceConfig() *ServiceConfig {
	return &ServiceConfig{
		MaxArticles:    10,
		CacheDuration:  1 * time.Hour,
		ScraperTimeout: 30 * time.Second,
		Enabled:        true,
	}
}

// contextCache stores composed context per symbol temporarily
type contextCache struct {
	mu   sync.RWMutex
	data map[string]*cacheEntry
	ttl  time.Duration
}

type cacheEntry struct {
	context   string
	timestamp time.Time
}

func newContextCache(ttl time.Duration) *contextCache {
	cache := &contextCache{
		data: make(map[string]*cacheEntry),
		ttl:  ttl,
	}
	go cache.cleanupLoop()
	return cache
}

func (c *contextCache) get(symbol string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, exists := c.data[symbol]
	if !exists || time.Since(entry.timestamp) > c.ttl {
		return "", false
	}
	return entry.context, true
}

func (c *contextCache) set(symbol, context string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[symbol] = &cacheEntry{context: context, timestamp: time.Now()}
}

func (c *contextCache) cleanupLoop() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		c.cleanup()
	}
}

func (c *contextCache) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for symbol, entry := range c.data {
		if now.Sub(entry.timestamp) > c.ttl {
			delete(c.data, symbol)
		}
	}
}

// NewService creates a new market-context service
func NewService(cfg *ServiceConfig) *Service {
	if cfg == nil {
		cfg = DefaultServiceConfig()
	}
	return &Service{
		scraper:   NewScraper(cfg.ScraperTimeout),
		fearGreed: NewFearGreedClient(cfg.ScraperTimeout),
		cache:     newContextCache(cfg.CacheDuration),
		cfg:       cfg,
	}
}

// MarketContext returns the composed context for a symbol, cached or
// fresh. Never returns an error alongside usable content; a fully
// failed fetch yields an empty string.
func (s *Service) MarketContext(ctx context.Context, symbol string) (string, error) {
	if !s.cfg.Enabled {
		return "", nil
	}

	if cached, ok := s.cache.get(symbol); ok {
		logger.Debug(ctx, "Using cached market context", "symbol", symbol)
		return cached, nil
	}

	logger.Info(ctx, "Composing fresh market context", "symbol", symbol)
	composed := s.compose(ctx, symbol)
	if composed != "" {
		s.cache.set(symbol, composed)
	}
	return composed, nil
}

// compose pulls each context section independently; a failed section
// is dropped.
func (s *Service) compose(ctx context.Context, symbol string) string {
	var sections []string

	if fg, err := s.fearGreed.Current(ctx); err != nil {
		logger.Warn(ctx, "Fear & Greed unavailable", "error", err.Error())
	} else {
		sections = append(sections, fmt.Sprintf("Market sentiment: Fear & Greed index %d (%s)", fg.Value, fg.Classification))
	}

	articles, err := s.scraper.ScrapeNews(ctx, symbol, s.cfg.MaxArticles)
	if err != nil {
		logger.ErrorWithErr(ctx, "News scrape failed", err, "symbol", symbol)
	} else if len(articles) > 0 {
		lines := make([]string, 0, len(articles)+1)
		lines = append(lines, "Recent headlines:")
		for _, a := range articles {
			line := fmt.Sprintf("- [%s] %s", a.Source, a.Title)
			if a.PublishedAt != "" {
				line += " (" + a.PublishedAt + ")"
			}
			lines = append(lines, line)
		}
		sections = append(sections, strings.Join(lines, "\n"))
	}

	return strings.Join(sections, "\n\n")
}

// ClearCache removes all cached context
func (s *Service) ClearCache() {
	s.cache.mu.Lock()
	defer s.cache.mu.Unlock()
	s.cache.data = make(map[string]*cacheEntry)
}
