package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"quotefeed/internal/app"
	"quotefeed/internal/config"
	"quotefeed/internal/logger"
	"quotefeed/internal/scheduler"
	"quotefeed/internal/sink"
	"quotefeed/internal/sink/console"
	"quotefeed/internal/sink/jsonfile"
	"quotefeed/internal/summary"
)

func main() {
	var (
		configPath string
		duration   int
		interval   int
		save       bool
		outDir     string
		clearScr   bool
	)
	flag.StringVar(&configPath, "config", os.Getenv("CONFIG_FILE"), "path to config.json or config.yaml (optional)")
	flag.IntVar(&duration, "duration", -1, "run continuously for this many minutes (0 = one tick, unset = single snapshot)")
	flag.IntVar(&interval, "interval", 0, "seconds between ticks in continuous mode (default from config)")
	flag.BoolVar(&save, "save", false, "write each snapshot to a timestamped JSON file")
	flag.StringVar(&outDir, "out", "", "directory for saved snapshots (default from config)")
	flag.BoolVar(&clearScr, "clear", false, "clear the terminal before each screen")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	log := logger.New("quotefeed-fetch", logger.Level(cfg.Debug), true)
	if err != nil {
		log.Fatal().Err(err).Msg("loading config")
	}
	if err := cfg.Validate(); err != nil {
		log.Warn().Err(err).Msg("config")
	}
	if interval > 0 {
		cfg.UpdateIntervalSec = interval
	}
	if outDir != "" {
		cfg.Persistence.Dir = outDir
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	coll := app.NewCollector(cfg, log, nil)
	screen := console.New(os.Stdout, clearScr)
	sinks := []sink.Sink{screen}
	if save {
		sinks = append(sinks, &jsonfile.Sink{Dir: cfg.Persistence.Dir})
	}

	if duration < 0 {
		if err := once(ctx, coll, sinks, log); err != nil {
			log.Error().Err(err).Msg("fetch")
			os.Exit(1)
		}
		return
	}

	sched := scheduler.New(coll, sinks,
		scheduler.WithInterval(cfg.Interval()),
		scheduler.WithMaxDuration(time.Duration(duration)*time.Minute),
		scheduler.WithLogger(log),
	)
	if err := sched.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("starting scheduler")
	}
	<-sched.Done()
	log.Info().Msg("collection finished")
}

// once collects a single snapshot, hands it to every sink and prints the
// top movers.
func once(ctx context.Context, b scheduler.Builder, sinks []sink.Sink, log zerolog.Logger) error {
	snap := b.Build(ctx)
	if snap.Empty() {
		return errors.New("no quotes collected")
	}
	for _, s := range sinks {
		if err := s.Publish(ctx, snap); err != nil {
			log.Warn().Err(err).Str("sink", s.Name()).Msg("sink delivery failed")
		}
	}

	sum := summary.Summarize(snap)
	fmt.Printf("\n%s\n", sum.Market)
	fmt.Println("Top movers:")
	for _, q := range append(sum.TopCurrencies, sum.TopIndices...) {
		fmt.Printf("  %-12s %s%%\n", q.Key, q.ChangePercent.StringFixed(2))
	}
	fmt.Printf("%d alert(s)\n", len(sum.Alerts))
	return nil
}
