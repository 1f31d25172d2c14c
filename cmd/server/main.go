package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"quotefeed/internal/alert"
	"quotefeed/internal/api"
	"quotefeed/internal/app"
	"quotefeed/internal/config"
	"quotefeed/internal/httpx"
	"quotefeed/internal/logger"
	"quotefeed/internal/metrics"
	"quotefeed/internal/push"
	"quotefeed/internal/scheduler"
	"quotefeed/internal/sink"
	"quotefeed/internal/sink/jsonfile"
	"quotefeed/internal/sink/overlay"
	"quotefeed/internal/sink/redispub"
	"quotefeed/internal/snapshot"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "path to config.json or config.yaml (optional)")
	flag.Parse()

	// .env is optional
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	log := logger.New("quotefeed", logger.Level(cfg.Debug), false)
	if err != nil {
		log.Fatal().Err(err).Msg("loading config")
	}
	if err := cfg.Validate(); err != nil {
		for _, e := range unwrapJoined(err) {
			log.Warn().Err(e).Msg("config")
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	coll := app.NewCollector(cfg, log.With().Str("component", "collector").Logger(), m)

	var sched *scheduler.Scheduler
	hub := push.NewHub(schedulerSource{&sched}, push.WithLogger(log.With().Str("component", "push").Logger()), push.WithMetrics(m))

	sinks, closers := buildSinks(ctx, cfg, log, m)
	sinks = append(sinks, hub)

	opts := []scheduler.Option{
		scheduler.WithInterval(cfg.Interval()),
		scheduler.WithSinkTimeout(cfg.SinkTimeout()),
		scheduler.WithCollectTimeout(cfg.FetchTimeout() * 2),
		scheduler.WithLogger(log.With().Str("component", "scheduler").Logger()),
		scheduler.WithMetrics(m),
	}
	if d, ok := cfg.MaxDuration(); ok {
		opts = append(opts, scheduler.WithMaxDuration(d))
	}
	sched = scheduler.New(coll, sinks, opts...)

	server := api.New(sched,
		api.WithLogger(log.With().Str("component", "api").Logger()),
		api.WithGatherer(reg),
		api.WithPush(hub),
		api.WithCollectTimeout(cfg.FetchTimeout()*2),
	)
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server")
		}
	}()

	if err := sched.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("starting scheduler")
	}

	select {
	case <-ctx.Done():
	case <-sched.Done():
		log.Info().Msg("collection finished, serving last snapshot until interrupted")
		<-ctx.Done()
	}
	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = sched.Wait(shutdownCtx)
	hub.Close()
	_ = srv.Shutdown(shutdownCtx)
	for _, c := range closers {
		c()
	}
	log.Info().Msg("stopped")
}

// buildSinks returns the optional sinks enabled in cfg and their cleanup
// functions.
func buildSinks(ctx context.Context, cfg config.Config, log zerolog.Logger, m *metrics.Metrics) ([]sink.Sink, []func()) {
	alerts := log.With().Str("component", "alerts").Logger()
	sinks := []sink.Sink{
		sink.Func("alerts", func(_ context.Context, snap *snapshot.Snapshot) error {
			for _, a := range alert.Evaluate(snap) {
				alerts.Warn().Str("key", a.Key).Str("class", string(a.Class)).Str("change_percent", a.ChangePercent.StringFixed(2)).Msg(a.Message())
			}
			return nil
		}),
	}
	var closers []func()

	if cfg.Persistence.Path != "" {
		sinks = append(sinks, &jsonfile.Sink{Path: cfg.Persistence.Path})
	}

	if cfg.Overlay.Enabled {
		client := overlay.NewClient(cfg.Overlay.Host, cfg.Overlay.Port, cfg.Overlay.Input, httpx.New(time.Duration(cfg.Overlay.TimeoutSec)*time.Second))
		ov := overlay.New(ctx, client, cfg.OverlayConfig(),
			overlay.WithLogger(log.With().Str("component", "overlay").Logger()),
			overlay.WithMetrics(m),
		)
		sinks = append(sinks, ov)
		closers = append(closers, ov.Close)
	}

	if cfg.Redis.Enabled {
		dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		rdb, err := redispub.Dial(dialCtx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		cancel()
		if err != nil {
			log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis unavailable; redis sink disabled")
		} else {
			sinks = append(sinks, redispub.New(rdb, cfg.Redis.Prefix, time.Duration(cfg.Redis.TTLSec)*time.Second))
			closers = append(closers, func() { _ = rdb.Close() })
		}
	}
	return sinks, closers
}

// schedulerSource lets the push hub be built before the scheduler it reads
// from.
type schedulerSource struct {
	s **scheduler.Scheduler
}

func (p schedulerSource) Latest() *snapshot.Snapshot { return (*p.s).Latest() }

func (p schedulerSource) Collect(ctx context.Context) *snapshot.Snapshot { return (*p.s).Collect(ctx) }

func unwrapJoined(err error) []error {
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		return j.Unwrap()
	}
	return []error{err}
}
