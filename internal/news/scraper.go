package news

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"crypto-llm-trader/internal/logger"
)

// Article is one scraped headline with whatever body text the listing
// page exposed.
type Article struct {
	Title       string
	URL         string
	Content     string
	Source      string
	PublishedAt string
	Symbol      string
}

// Scraper handles scraping news from multiple sources
type Scraper struct {
	sources []Source
	timeout time.Duration
}

// Source defines a news source configuration
type Source struct {
	Name       string
	BaseURL    string
	SearchPath string // e.g., "/search?q={query}"
	Selectors  ArticleSelectors
	RateLimit  time.Duration
}

// ArticleSelectors defines CSS selectors for extracting article data
type ArticleSelectors struct {
	ArticleContainer string
	Title            string
	URL              string
	Content          string
	PublishedAt      string
}

// NewScraper creates a new news scraper with default sources
func NewScraper(timeout time.Duration) *Scraper {
	return &Scraper{
		sources: defaultSources(),
		timeout: timeout,
	}
}

// defaultSources returns the crypto news sources to scrape
func defaultSources() []Source {
	return []Source{
		{
			Name:       "CoinDesk",
			BaseURL:    "https://www.coindesk.com",
			SearchPath: "/search?s={query}",
			Selectors: ArticleSelectors{
				ArticleContainer: "div.searchstudio-results article",
				Title:            "h2 a, h3 a",
				URL:              "h2 a, h3 a",
				Content:          "p",
				PublishedAt:      "time",
			},
			RateLimit: 2 * time.Second,
		},
		{
			Name:       "Cointelegraph",
			BaseURL:    "https://cointelegraph.com",
			SearchPath: "/search?query={query}",
			Selectors: ArticleSelectors{
				ArticleContainer: "article",
				Title:            "a span, h2 a",
				URL:              "a",
				Content:          "p",
				PublishedAt:      "time",
			},
			RateLimit: 2 * time.Second,
		},
	}
}

// ScrapeNews fetches news articles for a symbol from all sources.
// Source failures are logged and skipped; the partial list is returned.
func (s *Scraper) ScrapeNews(ctx context.Context, symbol string, maxArticles int) ([]Article, error) {
	query := coinName(symbol)
	logger.Info(ctx, "Starting news scraping", "symbol", symbol, "query", query, "sources", len(s.sources))

	allArticles := []Article{}
	articlesPerSource := maxArticles / len(s.sources)
	if articlesPerSource < 1 {
		articlesPerSource = 1
	}

	for _, source := range s.sources {
		articles, err := s.scrapeSource(ctx, source, symbol, query, articlesPerSource)
		if err != nil {
			logger.ErrorWithErr(ctx, "Failed to scrape source", err, "source", source.Name, "symbol", symbol)
			continue
		}
		allArticles = append(allArticles, articles...)

		// Rate limiting between sources
		time.Sleep(source.RateLimit)
	}

	logger.Info(ctx, "News scraping completed", "symbol", symbol, "articles", len(allArticles))
	return allArticles, nil
}

func (s *Scraper) scrapeSource(ctx context.Context, source Source, symbol, query string, maxArticles int) ([]Article, error) {
	articles := []Article{}

	c := colly.NewCollector(
		colly.AllowedDomains(domainOf(source.BaseURL)),
		colly.MaxDepth(1),
		colly.Async(false),
	)
	c.SetRequestTimeout(s.timeout)

	// Set user agent to avoid being blocked
	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	})

	c.OnHTML(source.Selectors.ArticleContainer, func(e *colly.HTMLElement) {
		if len(articles) >= maxArticles {
			return
		}

		title := strings.TrimSpace(e.ChildText(source.Selectors.Title))
		if title == "" {
			return
		}

		articleURL := e.ChildAttr(source.Selectors.URL, "href")
		if articleURL == "" {
			return
		}
		if !strings.HasPrefix(articleURL, "http") {
			articleURL = source.BaseURL + articleURL
		}

		articles = append(articles, Article{
			Title:       title,
			URL:         articleURL,
			Content:     strings.TrimSpace(e.ChildText(source.Selectors.Content)),
			Source:      source.Name,
			PublishedAt: strings.TrimSpace(e.ChildText(source.Selectors.PublishedAt)),
			Symbol:      symbol,
		})
	})

	c.OnError(func(r *colly.Response, err error) {
		logger.ErrorWithErr(ctx, "Scraping error", err, "source", source.Name, "url", r.Request.URL.String())
	})

	searchURL := source.BaseURL + strings.ReplaceAll(source.SearchPath, "{query}", url.QueryEscape(query))
	if err := c.Visit(searchURL); err != nil {
		return nil, fmt.Errorf("failed to visit %s: %w", searchURL, err)
	}
	c.Wait()

	return articles, nil
}

// domainOf extracts the hostname from a URL
func domainOf(urlStr string) string {
	u, err := url.Parse(urlStr)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// coinName maps an exchange symbol to the asset name used in search
// queries. Unknown symbols fall back to the base asset ticker.
func coinName(symbol string) string {
	base := strings.ToUpper(symbol)
	for _, quote := range []string{"USDT", "USDC", "BUSD", "USD", "EUR", "BTC"} {
		if strings.HasSuffix(base, quote) && len(base) > len(quote) {
			base = strings.TrimSuffix(base, quote)
			break
		}
	}
	if name, ok := knownCoins[base]; ok {
		return name
	}
	return strings.ToLower(base)
}

var knownCoins = map[string]string{
	"BTC":  "bitcoin",
	"ETH":  "ethereum",
	"SOL":  "solana",
	"BNB":  "bnb",
	"XRP":  "xrp",
	"ADA":  "cardano",
	"DOGE": "dogecoin",
	"DOT":  "polkadot",
	"AVAX": "avalanche",
	"LINK": "chainlink",
}
