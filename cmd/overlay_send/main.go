// Command overlay_send writes one text to one overlay field.
package main

import (
	"context"
	"flag"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/joho/godotenv"

	"quotefeed/internal/config"
	"quotefeed/internal/httpx"
	"quotefeed/internal/logger"
	"quotefeed/internal/sink/overlay"
)

func main() {
	var (
		configPath string
		host       string
		port       int
		input      string
		field      string
		limit      int
	)
	flag.StringVar(&configPath, "config", os.Getenv("CONFIG_FILE"), "path to config.json or config.yaml (optional)")
	flag.StringVar(&host, "host", "", "overlay host (default from config)")
	flag.IntVar(&port, "port", 0, "overlay port (default from config)")
	flag.StringVar(&input, "input", "", "title input (default from config)")
	flag.StringVar(&field, "field", "", "field name, e.g. TextBlock1.Text")
	flag.IntVar(&limit, "limit", 0, "character limit (default from config)")
	flag.Parse()

	_ = godotenv.Load()
	log := logger.New("quotefeed-overlay", "info", true)

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("loading config")
	}
	if host == "" {
		host = cfg.Overlay.Host
	}
	if port == 0 {
		port = cfg.Overlay.Port
	}
	if input == "" {
		input = cfg.Overlay.Input
	}
	text := strings.Join(flag.Args(), " ")
	if field == "" || text == "" {
		log.Fatal().Msg("usage: overlay_send -field NAME text...")
	}
	if limit <= 0 {
		limit = cfg.OverlayConfig().Limit
		if n, ok := cfg.Overlay.Limits[field]; ok {
			limit = n
		} else if field == cfg.Overlay.Ticker {
			limit = overlay.TickerLimit
		}
	}
	if n := utf8.RuneCountInString(text); n > limit {
		log.Fatal().Int("length", n).Int("limit", limit).Msg("text over limit, not sent")
	}

	client := overlay.NewClient(host, port, input, httpx.New(overlay.DefaultTimeout))
	ctx, cancel := context.WithTimeout(context.Background(), overlay.DefaultTimeout)
	defer cancel()
	if err := client.SetText(ctx, field, text); err != nil {
		log.Fatal().Err(err).Str("url", client.URL(field, text)).Msg("send failed")
	}
	log.Info().Str("field", field).Str("text", text).Msg("sent")
}
