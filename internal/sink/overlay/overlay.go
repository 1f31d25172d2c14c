// Package overlay pushes quote text to a broadcast graphics device.
package overlay

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"quotefeed/internal/metrics"
	"quotefeed/internal/provider"
	"quotefeed/internal/snapshot"
	"quotefeed/internal/workqueue"
)

const (
	DefaultHost    = "10.13.22.82"
	DefaultPort    = 8088
	DefaultInput   = "GC_TARJA"
	DefaultLimit   = 70
	TickerLimit    = 300
	DefaultTimeout = 5 * time.Second
)

// Fields names the device fields a quote key is written to. Empty names are
// not written.
type Fields struct {
	Name  string `json:"name" yaml:"name"`
	Value string `json:"value" yaml:"value"`
	Diff  string `json:"diff" yaml:"diff"`
	Perc  string `json:"perc" yaml:"perc"`
}

type Config struct {
	// Keys maps a quote key to its fields.
	Keys map[string]Fields
	// Ticker is the field receiving every quote on one line; empty disables it.
	Ticker string
	// Limit is the default character limit per field.
	Limit int
	// Limits overrides Limit per field.
	Limits map[string]int
	// Timeout bounds each device call.
	Timeout time.Duration
}

// Update is one text destined for one field.
type Update struct {
	Field string
	Text  string
}

type Sink struct {
	client  *Client
	cfg     Config
	log     zerolog.Logger
	metrics *metrics.Metrics
	queue   *workqueue.Queue[string]
}

type Option func(*Sink)

func WithLogger(l zerolog.Logger) Option { return func(s *Sink) { s.log = l } }

func WithMetrics(m *metrics.Metrics) Option { return func(s *Sink) { s.metrics = m } }

// New starts a sink with one worker per device field. Workers stop when
// Close is called.
func New(ctx context.Context, client *Client, cfg Config, opts ...Option) *Sink {
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultLimit
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	s := &Sink{client: client, cfg: cfg, log: zerolog.Nop()}
	for _, o := range opts {
		o(s)
	}
	s.queue = workqueue.New(ctx, s.send, workqueue.Hooks{
		Panicked: func(field string, v any) {
			s.log.Error().Str("field", field).Interface("panic", v).Msg("overlay worker panicked")
		},
	})
	return s
}

func (s *Sink) Name() string { return "overlay" }

// Publish queues every update derived from snap. It never waits on the device.
func (s *Sink) Publish(_ context.Context, snap *snapshot.Snapshot) error {
	for _, u := range Updates(snap, s.cfg) {
		s.Submit(u.Field, u.Text)
	}
	return nil
}

// Limit returns the character limit of field.
func (s *Sink) Limit(field string) int {
	if n, ok := s.cfg.Limits[field]; ok && n > 0 {
		return n
	}
	if field != "" && field == s.cfg.Ticker {
		return TickerLimit
	}
	return s.cfg.Limit
}

// Submit queues text for field. Text over the field's limit is dropped
// whole and Submit reports false.
func (s *Sink) Submit(field, text string) bool {
	if n := utf8.RuneCountInString(text); n > s.Limit(field) {
		s.log.Warn().Str("field", field).Int("length", n).Int("limit", s.Limit(field)).Msg("overlay text over limit, skipped")
		s.metrics.OverlaySent(field, "skipped")
		return false
	}
	return s.queue.Submit(field, text)
}

// Close waits for queued texts to be sent.
func (s *Sink) Close() { s.queue.Close() }

func (s *Sink) send(ctx context.Context, field, text string) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	if err := s.client.SetText(ctx, field, text); err != nil {
		s.log.Error().Err(err).Str("field", field).Msg("overlay update failed")
		s.metrics.OverlaySent(field, "error")
		return
	}
	s.log.Debug().Str("field", field).Str("text", text).Msg("overlay updated")
	s.metrics.OverlaySent(field, "ok")
}

// Updates derives the field texts for snap, currencies first, in snapshot
// order.
func Updates(snap *snapshot.Snapshot, cfg Config) []Update {
	var out []Update
	var ticker []string
	add := func(field, text string) {
		if field != "" {
			out = append(out, Update{Field: field, Text: text})
		}
	}
	for key, q := range snap.Currencies().All() {
		ticker = append(ticker, Label(key)+" "+q.Value.StringFixed(4)+" "+signed(q.ChangePercent, 2)+"%")
		f, ok := cfg.Keys[key]
		if !ok {
			continue
		}
		add(f.Name, Label(key))
		add(f.Value, q.Value.StringFixed(4))
		add(f.Diff, signed(q.Change, 4))
		add(f.Perc, signed(q.ChangePercent, 2)+"%")
	}
	for key, q := range snap.Indices().All() {
		ticker = append(ticker, Label(key)+" "+q.Value.StringFixed(2)+" "+signed(q.ChangePercent, 2)+"%")
		f, ok := cfg.Keys[key]
		if !ok {
			continue
		}
		add(f.Name, Label(key))
		add(f.Value, q.Value.StringFixed(2))
		add(f.Diff, arrow(q)+signed(q.Change, 2))
		add(f.Perc, signed(q.ChangePercent, 2)+"%")
	}
	if len(ticker) > 0 {
		add(cfg.Ticker, strings.Join(ticker, "   "))
	}
	return out
}

// Label is the on-air name of a quote key.
func Label(key string) string {
	if key == "IBOV" {
		return "IBOVESPA"
	}
	return key
}

func arrow(q provider.Quote) string {
	if q.Change.Sign() >= 0 {
		return "↑"
	}
	return "↓"
}

func signed(v decimal.Decimal, places int32) string {
	if v.Sign() >= 0 {
		return "+" + v.StringFixed(places)
	}
	return v.StringFixed(places)
}
