// Package scheduler runs the collect-and-dispatch loop.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"quotefeed/internal/metrics"
	"quotefeed/internal/sink"
	"quotefeed/internal/snapshot"
	"quotefeed/internal/workqueue"
)

// ErrNotIdle is returned by Start when the scheduler already ran.
var ErrNotIdle = errors.New("scheduler: not idle")

// Builder produces one snapshot per call. It must not fail; a snapshot with
// empty groups is a valid result.
type Builder interface {
	Build(ctx context.Context) *snapshot.Snapshot
}

type State int32

const (
	Idle State = iota
	Running
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Scheduler calls the builder every interval and hands each snapshot to all
// sinks. Every sink has its own worker with a one-slot mailbox, so a slow
// sink sees the latest snapshot once it is free and never delays the loop.
type Scheduler struct {
	builder     Builder
	sinks       map[string]sink.Sink
	order       []string
	interval    time.Duration
	maxDuration time.Duration
	bounded     bool
	sinkTimeout time.Duration
	collectTTL  time.Duration
	log         zerolog.Logger
	metrics     *metrics.Metrics

	state    atomic.Int32
	latest   atomic.Pointer[snapshot.Snapshot]
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	collect  singleflight.Group
}

type Option func(*Scheduler)

// WithInterval sets the time between tick starts. Default 60s.
func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithMaxDuration bounds the run. The scheduler stops after the tick during
// which d elapses; d == 0 runs exactly one tick. Without this option the run
// is unbounded.
func WithMaxDuration(d time.Duration) Option {
	return func(s *Scheduler) {
		if d < 0 {
			d = 0
		}
		s.maxDuration = d
		s.bounded = true
	}
}

// WithSinkTimeout bounds a single Publish call. Default 15s.
func WithSinkTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.sinkTimeout = d
		}
	}
}

// WithCollectTimeout bounds an out-of-band collection. Default 30s.
func WithCollectTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.collectTTL = d
		}
	}
}

func WithLogger(l zerolog.Logger) Option { return func(s *Scheduler) { s.log = l } }

func WithMetrics(m *metrics.Metrics) Option { return func(s *Scheduler) { s.metrics = m } }

// New returns an idle scheduler.
func New(b Builder, sinks []sink.Sink, opts ...Option) *Scheduler {
	s := &Scheduler{
		builder:     b,
		sinks:       make(map[string]sink.Sink, len(sinks)),
		interval:    60 * time.Second,
		sinkTimeout: 15 * time.Second,
		collectTTL:  30 * time.Second,
		log:         zerolog.Nop(),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
	for i, sk := range sinks {
		key := sk.Name()
		if _, dup := s.sinks[key]; dup {
			key = fmt.Sprintf("%s#%d", key, i)
		}
		s.sinks[key] = sk
		s.order = append(s.order, key)
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Scheduler) State() State { return State(s.state.Load()) }

// Latest returns the snapshot of the last completed tick, or nil.
func (s *Scheduler) Latest() *snapshot.Snapshot { return s.latest.Load() }

// Done is closed once the loop and all sink workers have exited.
func (s *Scheduler) Done() <-chan struct{} { return s.done }

// Wait blocks until Done is closed or ctx ends.
func (s *Scheduler) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start launches the loop. The loop also stops when ctx is canceled.
func (s *Scheduler) Start(ctx context.Context) error {
	if !s.state.CompareAndSwap(int32(Idle), int32(Running)) {
		return ErrNotIdle
	}
	q := workqueue.New(ctx, s.deliver, workqueue.Hooks{
		Dropped: func(key string) {
			s.metrics.SinkDropped(key)
			s.log.Debug().Str("sink", key).Msg("sink busy, pending snapshot replaced")
		},
		Panicked: func(key string, v any) {
			s.metrics.SinkFailed(key)
			s.log.Error().Str("sink", key).Interface("panic", v).Msg("sink panicked")
		},
	})
	s.log.Info().
		Dur("interval", s.interval).
		Bool("bounded", s.bounded).
		Dur("max_duration", s.maxDuration).
		Strs("sinks", s.order).
		Msg("scheduler started")
	go s.run(ctx, q)
	return nil
}

// Stop ends the loop. It does not wait; use Done or Wait. Deliveries
// already handed to sinks are allowed to complete. Stopped is terminal.
func (s *Scheduler) Stop() {
	if s.state.CompareAndSwap(int32(Idle), int32(Stopped)) {
		close(s.done)
		return
	}
	if s.state.CompareAndSwap(int32(Running), int32(Stopped)) {
		s.stopOnce.Do(func() { close(s.stop) })
	}
}

func (s *Scheduler) run(ctx context.Context, q *workqueue.Queue[*snapshot.Snapshot]) {
	defer close(s.done)
	defer q.Close()
	defer s.state.Store(int32(Stopped))

	start := time.Now()
	var deadline <-chan time.Time
	if s.bounded {
		t := time.NewTimer(s.maxDuration)
		defer t.Stop()
		deadline = t.C
	}

	for {
		if s.stopping(ctx) {
			return
		}
		tickStart := time.Now()
		s.tick(ctx, q)

		if s.stopping(ctx) {
			return
		}
		if s.bounded && time.Since(start) >= s.maxDuration {
			s.log.Info().Dur("max_duration", s.maxDuration).Msg("max duration reached")
			return
		}
		wait := s.interval - time.Since(tickStart)
		if wait <= 0 {
			s.log.Warn().Dur("overrun", -wait).Msg("tick overran interval")
			continue
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-s.stop:
			timer.Stop()
			return
		case <-deadline:
			timer.Stop()
			s.log.Info().Dur("max_duration", s.maxDuration).Msg("max duration reached")
			return
		case <-timer.C:
		}
	}
}

func (s *Scheduler) stopping(ctx context.Context) bool {
	select {
	case <-s.stop:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

func (s *Scheduler) tick(ctx context.Context, q *workqueue.Queue[*snapshot.Snapshot]) {
	began := time.Now()
	snap := s.builder.Build(ctx)
	if snap == nil {
		s.log.Error().Msg("builder returned no snapshot")
		return
	}
	s.latest.Store(snap)
	s.metrics.ObserveTick(time.Since(began), snap.MarketOpen())
	s.log.Info().
		Str("snapshot", snap.ID().String()).
		Int("currencies", snap.Currencies().Len()).
		Int("indices", snap.Indices().Len()).
		Bool("market_open", snap.MarketOpen()).
		Dur("took", time.Since(began)).
		Msg("tick")

	for _, key := range s.order {
		q.Submit(key, snap)
	}
}

func (s *Scheduler) deliver(ctx context.Context, key string, snap *snapshot.Snapshot) {
	sk := s.sinks[key]
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.sinkTimeout)
	defer cancel()
	if err := sk.Publish(cctx, snap); err != nil {
		s.metrics.SinkFailed(key)
		s.log.Warn().Err(err).Str("sink", key).Str("snapshot", snap.ID().String()).Msg("sink delivery failed")
	}
}

// Collect runs an out-of-band collection for on-demand callers. Concurrent
// calls share one build, which runs under its own timeout so a caller that
// goes away does not cut it short for the others. Collect returns nil when
// ctx ends first. The result does not replace Latest.
func (s *Scheduler) Collect(ctx context.Context) *snapshot.Snapshot {
	ch := s.collect.DoChan("collect", func() (any, error) {
		bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.collectTTL)
		defer cancel()
		return s.builder.Build(bctx), nil
	})
	select {
	case res := <-ch:
		snap, _ := res.Val.(*snapshot.Snapshot)
		return snap
	case <-ctx.Done():
		return nil
	}
}

// LatestOrCollect returns Latest, collecting once if no tick completed yet.
func (s *Scheduler) LatestOrCollect(ctx context.Context) *snapshot.Snapshot {
	if snap := s.Latest(); snap != nil {
		return snap
	}
	return s.Collect(ctx)
}
