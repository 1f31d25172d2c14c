// Package ratelimit holds upstream calls back so a provider stays inside its
// quota.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"quotefeed/internal/metrics"
	"quotefeed/internal/provider"
)

// Limiter admits one call per Wait. Wait reports how long the caller was
// held, including when ctx ended first.
type Limiter interface {
	Wait(ctx context.Context) (time.Duration, error)
}

// Provider passes every Fetch of P through L. Waits are observed per
// provider; a fetch abandoned while waiting never reaches P.
type Provider struct {
	P provider.Provider
	L Limiter

	log     zerolog.Logger
	metrics *metrics.Metrics
}

type Option func(*Provider)

func WithLogger(l zerolog.Logger) Option { return func(p *Provider) { p.log = l } }

func WithMetrics(m *metrics.Metrics) Option { return func(p *Provider) { p.metrics = m } }

func New(p provider.Provider, l Limiter, opts ...Option) *Provider {
	out := &Provider{P: p, L: l, log: zerolog.Nop()}
	for _, o := range opts {
		o(out)
	}
	return out
}

func (p *Provider) Name() string { return p.P.Name() }

func (p *Provider) Enabled() bool { return provider.IsEnabled(p.P) }

func (p *Provider) Fetch(ctx context.Context, keys []string) (provider.Quotes, error) {
	name := p.P.Name()
	waited, err := p.L.Wait(ctx)
	p.metrics.ObserveThrottle(name, waited, err != nil)
	if err != nil {
		p.log.Warn().Err(err).Str("provider", name).Dur("waited", waited).Msg("gave up waiting for rate limit")
		return provider.Quotes{}, fmt.Errorf("%s: rate limit: %w", name, err)
	}
	if waited > 0 {
		p.log.Debug().Str("provider", name).Dur("waited", waited).Msg("throttled")
	}
	return p.P.Fetch(ctx, keys)
}

// MinInterval spaces admitted calls at least Interval apart. Each Wait
// reserves the next free slot, so concurrent callers queue instead of
// passing together.
type MinInterval struct {
	Interval time.Duration

	mu   sync.Mutex
	next time.Time
}

func (m *MinInterval) Wait(ctx context.Context) (time.Duration, error) {
	if m.Interval <= 0 {
		return 0, nil
	}
	m.mu.Lock()
	now := time.Now()
	at := m.next
	if at.Before(now) {
		at = now
	}
	m.next = at.Add(m.Interval)
	m.mu.Unlock()

	wait := at.Sub(now)
	if wait <= 0 {
		return 0, nil
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-ctx.Done():
		m.release(at)
		return time.Since(now), ctx.Err()
	case <-t.C:
		return wait, nil
	}
}

// release hands back an unused slot if nobody queued behind it.
func (m *MinInterval) release(at time.Time) {
	m.mu.Lock()
	if m.next.Equal(at.Add(m.Interval)) {
		m.next = at
	}
	m.mu.Unlock()
}
