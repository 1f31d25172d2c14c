// Package collector builds one snapshot per call by querying every
// registered provider and merging each data class.
package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"quotefeed/internal/aggregate"
	"quotefeed/internal/markethours"
	"quotefeed/internal/metrics"
	"quotefeed/internal/provider"
	"quotefeed/internal/snapshot"
)

// Source registers a provider in a group. Its rank is its position in
// Group.Sources.
type Source struct {
	Provider provider.Provider
	Fallback bool
}

// Group is one data class: the logical keys to ask for and the sources
// ordered from most to least trusted.
type Group struct {
	Class   provider.Class
	Keys    []string
	Sources []Source
}

// Collector implements scheduler.Builder.
type Collector struct {
	currencies Group
	indices    Group
	timeout    time.Duration
	log        zerolog.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
	isOpen     func(time.Time) bool
}

type Option func(*Collector)

// WithTimeout bounds each provider call. Default 10s.
func WithTimeout(d time.Duration) Option {
	return func(c *Collector) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithLogger(l zerolog.Logger) Option { return func(c *Collector) { c.log = l } }

func WithMetrics(m *metrics.Metrics) Option { return func(c *Collector) { c.metrics = m } }

// WithClock overrides time.Now, mostly for tests.
func WithClock(now func() time.Time) Option { return func(c *Collector) { c.now = now } }

func New(currencies, indices Group, opts ...Option) *Collector {
	c := &Collector{
		currencies: currencies,
		indices:    indices,
		timeout:    10 * time.Second,
		log:        zerolog.Nop(),
		now:        time.Now,
		isOpen:     markethours.IsOpen,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Build queries both groups concurrently and returns a snapshot. It never
// fails: a group whose sources all failed is simply empty.
func (c *Collector) Build(ctx context.Context) *snapshot.Snapshot {
	var cur, idx provider.Quotes
	var g errgroup.Group
	g.Go(func() error {
		cur = c.collectGroup(ctx, c.currencies)
		return nil
	})
	g.Go(func() error {
		idx = c.collectGroup(ctx, c.indices)
		return nil
	})
	_ = g.Wait()

	takenAt := c.now()
	return snapshot.New(takenAt, cur, idx, c.isOpen(takenAt))
}

func (c *Collector) collectGroup(ctx context.Context, grp Group) (out provider.Quotes) {
	defer func() {
		if v := recover(); v != nil {
			c.log.Error().Str("group", string(grp.Class)).Interface("panic", v).Msg("group collection panicked")
			out = provider.Quotes{}
		}
	}()
	if len(grp.Keys) == 0 || len(grp.Sources) == 0 {
		return provider.Quotes{}
	}

	results := make([]aggregate.Result, len(grp.Sources))
	var g errgroup.Group
	for i, src := range grp.Sources {
		results[i] = aggregate.Result{Source: src.Provider.Name(), Fallback: src.Fallback}
		if !provider.IsEnabled(src.Provider) {
			results[i].Skipped = true
			c.log.Debug().Str("provider", src.Provider.Name()).Msg("provider disabled, skipping")
			continue
		}
		if src.Fallback {
			continue
		}
		g.Go(func() error {
			results[i].Quotes = c.fetch(ctx, src.Provider, grp)
			return nil
		})
	}
	_ = g.Wait()

	// fallbacks run after everything ranked above them is known
	for i, src := range grp.Sources {
		if !src.Fallback || results[i].Skipped {
			continue
		}
		if !aggregate.NeedsFallback(results, i) {
			results[i].Skipped = true
			continue
		}
		c.log.Info().Str("group", string(grp.Class)).Str("provider", src.Provider.Name()).Msg("no data from primary sources, using fallback")
		results[i].Quotes = c.fetch(ctx, src.Provider, grp)
	}

	return aggregate.Merge(results)
}

func (c *Collector) fetch(ctx context.Context, p provider.Provider, grp Group) (qs provider.Quotes) {
	name := p.Name()
	began := time.Now()
	var err error
	defer func() {
		if v := recover(); v != nil {
			err = fmt.Errorf("provider panicked: %v", v)
			qs = provider.Quotes{}
		}
		c.metrics.ObserveFetch(name, time.Since(began), qs.Len(), err)
		if err != nil {
			c.log.Warn().Err(err).Str("provider", name).Str("group", string(grp.Class)).Msg("source unavailable")
			return
		}
		c.log.Debug().Str("provider", name).Int("quotes", qs.Len()).Dur("took", time.Since(began)).Msg("fetched")
	}()

	cctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	qs, err = p.Fetch(cctx, grp.Keys)
	if err != nil {
		qs = provider.Quotes{}
	}
	return qs
}
