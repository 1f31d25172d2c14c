// Package app assembles providers and the snapshot collector from
// configuration. It is shared by the binaries.
package app

import (
	"time"

	"github.com/rs/zerolog"

	"quotefeed/internal/collector"
	"quotefeed/internal/config"
	"quotefeed/internal/httpx"
	"quotefeed/internal/metrics"
	"quotefeed/internal/provider"
	"quotefeed/internal/provider/bcb"
	"quotefeed/internal/provider/cache"
	"quotefeed/internal/provider/exchangerate"
	"quotefeed/internal/provider/fixer"
	"quotefeed/internal/provider/ratelimit"
	"quotefeed/internal/provider/yahoo"
)

// Throttle wraps p with the configured rate limit and cache. A token bucket
// is preferred when a per-minute rate is set, otherwise a minimum interval.
func Throttle(p provider.Provider, t config.Throttle, log zerolog.Logger, m *metrics.Metrics) provider.Provider {
	opts := []ratelimit.Option{ratelimit.WithLogger(log), ratelimit.WithMetrics(m)}
	if t.MaxRequestsPerMinute > 0 {
		p = ratelimit.New(p, ratelimit.NewTokenBucket(t.MaxRequestsPerMinute, t.Burst), opts...)
	} else if t.MinRequestIntervalSec > 0 {
		p = ratelimit.New(p, &ratelimit.MinInterval{Interval: time.Duration(t.MinRequestIntervalSec) * time.Second}, opts...)
	}
	if t.CacheTTLSeconds > 0 {
		p = &cache.Provider{P: p, TTL: time.Duration(t.CacheTTLSeconds) * time.Second, MaxItems: t.CacheMaxItems}
	}
	return p
}

// Groups returns the currency and index groups with sources in priority
// order: official rate, market rate, keyless backup, credentialed filler.
func Groups(cfg config.Config, h *httpx.Client, log zerolog.Logger, m *metrics.Metrics) (currencies, indices collector.Group) {
	throttle := func(p provider.Provider, t config.Throttle) provider.Provider { return Throttle(p, t, log, m) }

	yopts := []yahoo.ClientOption{yahoo.WithHTTPClient(h)}
	if cfg.Providers.Yahoo.BaseURL != "" {
		yopts = append(yopts, yahoo.WithBaseURL(cfg.Providers.Yahoo.BaseURL))
	}
	yc := yahoo.NewClient(yopts...)

	currencies = collector.Group{Class: provider.ClassCurrency, Keys: cfg.Currencies}
	if cfg.Providers.BCB.Enabled {
		p := bcb.New(h)
		if cfg.Providers.BCB.BaseURL != "" {
			p.BaseURL = cfg.Providers.BCB.BaseURL
		}
		currencies.Sources = append(currencies.Sources, collector.Source{Provider: throttle(p, cfg.Providers.BCB.Throttle)})
	}
	currencies.Sources = append(currencies.Sources, collector.Source{
		Provider: throttle(&yahoo.CurrencyProvider{Client: yc}, cfg.Providers.Yahoo.Throttle),
	})
	if cfg.Providers.ExchangeRate.Enabled {
		p := exchangerate.New(h)
		if cfg.Providers.ExchangeRate.BaseURL != "" {
			p.BaseURL = cfg.Providers.ExchangeRate.BaseURL
		}
		currencies.Sources = append(currencies.Sources, collector.Source{
			Provider: throttle(p, cfg.Providers.ExchangeRate.Throttle),
			Fallback: true,
		})
	}
	fx := fixer.New(h, cfg.Providers.Fixer.APIKey)
	if cfg.Providers.Fixer.BaseURL != "" {
		fx.BaseURL = cfg.Providers.Fixer.BaseURL
	}
	currencies.Sources = append(currencies.Sources, collector.Source{Provider: throttle(fx, cfg.Providers.Fixer.Throttle)})

	indices = collector.Group{
		Class: provider.ClassIndex,
		Keys:  cfg.IndexKeys(),
		Sources: []collector.Source{{
			Provider: throttle(&yahoo.IndexProvider{Client: yc, Symbols: cfg.IndexSymbols}, cfg.Providers.Yahoo.Throttle),
		}},
	}
	return currencies, indices
}

// NewCollector builds the snapshot collector for cfg.
func NewCollector(cfg config.Config, log zerolog.Logger, m *metrics.Metrics) *collector.Collector {
	h := httpx.New(cfg.RequestTimeout())
	currencies, indices := Groups(cfg, h, log, m)
	return collector.New(currencies, indices,
		collector.WithTimeout(cfg.FetchTimeout()),
		collector.WithLogger(log),
		collector.WithMetrics(m),
	)
}
