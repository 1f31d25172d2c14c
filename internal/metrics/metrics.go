// Package metrics holds the Prometheus instruments of the pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is safe to use as a nil pointer: every method is a no-op then.
type Metrics struct {
	Ticks          prometheus.Counter
	TickDuration   prometheus.Histogram
	ProviderErrors *prometheus.CounterVec // labels: provider
	ProviderQuotes *prometheus.GaugeVec   // labels: provider
	ProviderDur    *prometheus.HistogramVec
	ThrottleWait   *prometheus.HistogramVec // labels: provider, result=ok|canceled
	SinkErrors     *prometheus.CounterVec   // labels: sink
	SinkDrops      *prometheus.CounterVec   // labels: sink
	OverlaySends   *prometheus.CounterVec   // labels: field, result=ok|error|skipped
	WSClients      prometheus.Gauge
	MarketOpen     prometheus.Gauge // 0=closed, 1=open
}

// New creates the instruments and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quotefeed_ticks_total",
			Help: "Completed scheduler ticks",
		}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "quotefeed_tick_duration_seconds",
			Help:    "Time spent collecting one snapshot",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		}),
		ProviderErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quotefeed_provider_errors_total",
			Help: "Upstream fetches that failed entirely",
		}, []string{"provider"}),
		ProviderQuotes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "quotefeed_provider_quotes",
			Help: "Quotes returned by the last fetch of each provider",
		}, []string{"provider"}),
		ProviderDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "quotefeed_provider_fetch_duration_seconds",
			Help:    "Upstream fetch latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider"}),
		ThrottleWait: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "quotefeed_provider_throttle_wait_seconds",
			Help:    "Time a fetch was held by its rate limit",
			Buckets: []float64{0, 0.05, 0.25, 1, 5, 15, 30, 60},
		}, []string{"provider", "result"}),
		SinkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quotefeed_sink_errors_total",
			Help: "Failed snapshot deliveries per sink",
		}, []string{"sink"}),
		SinkDrops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quotefeed_sink_drops_total",
			Help: "Snapshots replaced before a busy sink picked them up",
		}, []string{"sink"}),
		OverlaySends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quotefeed_overlay_sends_total",
			Help: "Overlay text updates by outcome",
		}, []string{"field", "result"}),
		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "quotefeed_ws_clients",
			Help: "Connected push subscribers",
		}),
		MarketOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "quotefeed_market_open",
			Help: "Domestic market status of the latest snapshot",
		}),
	}
	reg.MustRegister(
		m.Ticks, m.TickDuration,
		m.ProviderErrors, m.ProviderQuotes, m.ProviderDur, m.ThrottleWait,
		m.SinkErrors, m.SinkDrops, m.OverlaySends,
		m.WSClients, m.MarketOpen,
	)
	return m
}

func (m *Metrics) ObserveTick(d time.Duration, marketOpen bool) {
	if m == nil {
		return
	}
	m.Ticks.Inc()
	m.TickDuration.Observe(d.Seconds())
	if marketOpen {
		m.MarketOpen.Set(1)
	} else {
		m.MarketOpen.Set(0)
	}
}

func (m *Metrics) ObserveFetch(provider string, d time.Duration, quotes int, err error) {
	if m == nil {
		return
	}
	m.ProviderDur.WithLabelValues(provider).Observe(d.Seconds())
	if err != nil {
		m.ProviderErrors.WithLabelValues(provider).Inc()
		quotes = 0
	}
	m.ProviderQuotes.WithLabelValues(provider).Set(float64(quotes))
}

// ObserveThrottle records a rate limit wait. canceled means the caller gave
// up before it was admitted.
func (m *Metrics) ObserveThrottle(provider string, d time.Duration, canceled bool) {
	if m == nil {
		return
	}
	result := "ok"
	if canceled {
		result = "canceled"
	}
	m.ThrottleWait.WithLabelValues(provider, result).Observe(d.Seconds())
}

func (m *Metrics) SinkFailed(sink string) {
	if m == nil {
		return
	}
	m.SinkErrors.WithLabelValues(sink).Inc()
}

func (m *Metrics) SinkDropped(sink string) {
	if m == nil {
		return
	}
	m.SinkDrops.WithLabelValues(sink).Inc()
}

func (m *Metrics) OverlaySent(field, result string) {
	if m == nil {
		return
	}
	m.OverlaySends.WithLabelValues(field, result).Inc()
}

func (m *Metrics) ClientConnected() {
	if m != nil {
		m.WSClients.Inc()
	}
}

func (m *Metrics) ClientDisconnected() {
	if m != nil {
		m.WSClients.Dec()
	}
}
