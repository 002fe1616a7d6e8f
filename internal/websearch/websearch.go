// Package websearch provides the external search adapter.
//
// The adapter is a narrow boundary to out-of-process search providers.
// It never raises to the caller: provider failures, timeouts, and rate
// limiting all degrade to an empty result set with a logged cause, which
// the orchestrator treats identically to "no useful external information".
//
// Example usage:
//
//	client := websearch.NewClient(
//	    []websearch.Provider{websearch.NewDuckDuckGoProvider(nil)},
//	    websearch.ClientConfig{},
//	    logger,
//	)
//	results := client.Search(ctx, "latest Go release")
package websearch

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Result is one ranked external search result.
type Result struct {
	Title     string  `json:"title"`
	Snippet   string  `json:"snippet"`
	URL       string  `json:"url"`
	Relevance float64 `json:"relevance"`
}

// Searcher is the orchestrator-facing contract. Implementations must not
// return errors; failures degrade to an empty slice.
type Searcher interface {
	Search(ctx context.Context, query string) []Result
}

// Provider is one external search backend. Providers may fail; the client
// converts failures into degraded behavior.
type Provider interface {
	// Name identifies the provider in logs and result metadata.
	Name() string

	// Search returns ranked results for the query.
	Search(ctx context.Context, query string) ([]Result, error)
}

// ClientConfig tunes the provider chain.
type ClientConfig struct {
	// ProviderTimeout bounds each provider attempt (default 10s).
	ProviderTimeout time.Duration `koanf:"provider_timeout"`

	// RatePerMinute caps outbound searches across all providers
	// (default 30).
	RatePerMinute int `koanf:"rate_per_minute"`

	// MaxResults caps results returned per search (default 5).
	MaxResults int `koanf:"max_results"`
}

// Client tries providers in priority order until one returns results.
type Client struct {
	providers []Provider
	cfg       ClientConfig
	limiter   *rate.Limiter
	logger    *zap.Logger
}

// NewClient creates a provider chain client.
func NewClient(providers []Provider, cfg ClientConfig, logger *zap.Logger) *Client {
	if cfg.ProviderTimeout <= 0 {
		cfg.ProviderTimeout = 10 * time.Second
	}
	if cfg.RatePerMinute <= 0 {
		cfg.RatePerMinute = 30
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 5
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		providers: providers,
		cfg:       cfg,
		limiter:   rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RatePerMinute)), cfg.RatePerMinute),
		logger:    logger.Named("websearch"),
	}
}

// Search tries each provider in priority order and returns the first
// non-empty result set, sorted by relevance. It never returns an error:
// exhausted providers, rate limiting, and cancellation all yield an empty
// slice.
func (c *Client) Search(ctx context.Context, query string) []Result {
	if query == "" || len(c.providers) == 0 {
		return nil
	}

	if !c.limiter.Allow() {
		c.logger.Warn("search rate limit exceeded, degrading to no results",
			zap.String("query", query),
		)
		SearchesTotal.WithLabelValues("", "rate_limited").Inc()
		return nil
	}

	for _, provider := range c.providers {
		results := c.tryProvider(ctx, provider, query)
		if len(results) > 0 {
			return results
		}
		if ctx.Err() != nil {
			return nil
		}
	}
	return nil
}

// tryProvider runs one provider under its own timeout.
func (c *Client) tryProvider(ctx context.Context, provider Provider, query string) []Result {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ProviderTimeout)
	defer cancel()

	results, err := provider.Search(ctx, query)
	if err != nil {
		c.logger.Warn("search provider failed, trying next",
			zap.String("provider", provider.Name()),
			zap.Error(err),
		)
		SearchesTotal.WithLabelValues(provider.Name(), "error").Inc()
		return nil
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Relevance > results[j].Relevance
	})
	if len(results) > c.cfg.MaxResults {
		results = results[:c.cfg.MaxResults]
	}

	if len(results) == 0 {
		SearchesTotal.WithLabelValues(provider.Name(), "empty").Inc()
	} else {
		SearchesTotal.WithLabelValues(provider.Name(), "ok").Inc()
	}
	return results
}
