// Package api serves snapshots, summaries and metrics over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"quotefeed/internal/provider"
	"quotefeed/internal/snapshot"
	"quotefeed/internal/summary"
)

// Source supplies snapshots to the handlers.
type Source interface {
	Latest() *snapshot.Snapshot
	// LatestOrCollect returns Latest, collecting one out of band when no
	// tick has completed yet.
	LatestOrCollect(ctx context.Context) *snapshot.Snapshot
}

type Server struct {
	source   Source
	gatherer prometheus.Gatherer
	push     http.Handler
	log      zerolog.Logger
	now      func() time.Time
	timeout  time.Duration
}

type Option func(*Server)

func WithLogger(l zerolog.Logger) Option { return func(s *Server) { s.log = l } }

// WithGatherer exposes g on /metrics.
func WithGatherer(g prometheus.Gatherer) Option { return func(s *Server) { s.gatherer = g } }

// WithPush serves h on /ws.
func WithPush(h http.Handler) Option { return func(s *Server) { s.push = h } }

// WithCollectTimeout bounds out-of-band collections made by a request.
func WithCollectTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func New(source Source, opts ...Option) *Server {
	s := &Server{
		source:  source,
		log:     zerolog.Nop(),
		now:     time.Now,
		timeout: 30 * time.Second,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("GET /healthz", s.handleHealth)
	api.HandleFunc("GET /api/data", s.handleData)
	api.HandleFunc("GET /api/summary", s.handleSummary)
	api.HandleFunc("GET /api/currencies", s.handleGroup(provider.ClassCurrency))
	api.HandleFunc("GET /api/indices", s.handleGroup(provider.ClassIndex))

	root := http.NewServeMux()
	root.Handle("/", withLogging(s.log, withJSONHeaders(withGzip(recoverPanic(limitBody(api))))))
	if s.gatherer != nil {
		root.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	if s.push != nil {
		root.Handle("GET /ws", s.push)
	}
	return root
}

type dataResponse struct {
	Success    bool               `json:"success"`
	Data       *snapshot.Snapshot `json:"data"`
	LastUpdate *time.Time         `json:"last_update"`
	ServerTime time.Time          `json:"server_time"`
}

type summaryResponse struct {
	Success   bool            `json:"success"`
	Summary   summary.Summary `json:"summary"`
	Timestamp time.Time       `json:"timestamp"`
}

type groupResponse struct {
	Success   bool            `json:"success"`
	Data      provider.Quotes `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

type errorResponse struct {
	Success    bool      `json:"success"`
	Error      string    `json:"error"`
	ServerTime time.Time `json:"server_time"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleData(w http.ResponseWriter, r *http.Request) {
	var last *time.Time
	if latest := s.source.Latest(); latest != nil {
		t := latest.TakenAt()
		last = &t
	}
	snap, ok := s.snapshot(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, dataResponse{
		Success:    true,
		Data:       snap,
		LastUpdate: last,
		ServerTime: s.now(),
	})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, summaryResponse{
		Success:   true,
		Summary:   summary.Summarize(snap),
		Timestamp: s.now(),
	})
}

func (s *Server) handleGroup(class provider.Class) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, ok := s.snapshot(w, r)
		if !ok {
			return
		}
		qs := snap.Currencies()
		if class == provider.ClassIndex {
			qs = snap.Indices()
		}
		writeJSON(w, http.StatusOK, groupResponse{Success: true, Data: qs, Timestamp: s.now()})
	}
}

func (s *Server) snapshot(w http.ResponseWriter, r *http.Request) (*snapshot.Snapshot, bool) {
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	snap := s.source.LatestOrCollect(ctx)
	if snap == nil {
		writeError(w, http.StatusServiceUnavailable, "no data available")
		return nil, false
	}
	return snap, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Success: false, Error: msg, ServerTime: time.Now()})
}
