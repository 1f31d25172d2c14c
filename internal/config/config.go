package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"quotefeed/internal/provider/yahoo"
	"quotefeed/internal/sink/overlay"
)

// ErrInvalid marks a configuration value that was rejected and replaced.
var ErrInvalid = errors.New("invalid configuration")

type Server struct {
	Port              string `json:"port" yaml:"port"`
	RequestTimeoutSec int    `json:"request_timeout_sec" yaml:"request_timeout_sec"`
}

// Throttle wraps one upstream with rate limiting and a per-key cache.
type Throttle struct {
	MaxRequestsPerMinute  int `json:"max_requests_per_minute" yaml:"max_requests_per_minute"`
	Burst                 int `json:"burst" yaml:"burst"`
	MinRequestIntervalSec int `json:"min_request_interval_sec" yaml:"min_request_interval_sec"`
	CacheTTLSeconds       int `json:"cache_ttl_sec" yaml:"cache_ttl_sec"`
	CacheMaxItems         int `json:"cache_max_items" yaml:"cache_max_items"`
}

type Yahoo struct {
	BaseURL  string   `json:"base_url" yaml:"base_url"`
	Throttle Throttle `json:"throttle" yaml:"throttle"`
}

type Source struct {
	Enabled  bool     `json:"enabled" yaml:"enabled"`
	BaseURL  string   `json:"base_url" yaml:"base_url"`
	Throttle Throttle `json:"throttle" yaml:"throttle"`
}

type Fixer struct {
	APIKey   string   `json:"api_key" yaml:"api_key"`
	BaseURL  string   `json:"base_url" yaml:"base_url"`
	Throttle Throttle `json:"throttle" yaml:"throttle"`
}

type Providers struct {
	Yahoo        Yahoo  `json:"yahoo" yaml:"yahoo"`
	BCB          Source `json:"bcb" yaml:"bcb"`
	ExchangeRate Source `json:"exchangerate" yaml:"exchangerate"`
	Fixer        Fixer  `json:"fixer" yaml:"fixer"`
}

type Overlay struct {
	Enabled    bool                      `json:"enabled" yaml:"enabled"`
	Host       string                    `json:"host" yaml:"host"`
	Port       int                       `json:"port" yaml:"port"`
	Input      string                    `json:"input" yaml:"input"`
	Fields     map[string]overlay.Fields `json:"fields" yaml:"fields"`
	Ticker     string                    `json:"ticker" yaml:"ticker"`
	Limit      int                       `json:"limit" yaml:"limit"`
	Limits     map[string]int            `json:"limits" yaml:"limits"`
	TimeoutSec int                       `json:"timeout_sec" yaml:"timeout_sec"`
}

type Persistence struct {
	// Path is overwritten on every tick; empty disables the file sink.
	Path string `json:"path" yaml:"path"`
	// Dir receives timestamped one-shot files.
	Dir string `json:"dir" yaml:"dir"`
}

type Redis struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Addr     string `json:"addr" yaml:"addr"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`
	Prefix   string `json:"prefix" yaml:"prefix"`
	TTLSec   int    `json:"ttl_sec" yaml:"ttl_sec"`
}

type Config struct {
	Server Server `json:"server" yaml:"server"`

	// UpdateIntervalSec is the time between tick starts. A nil
	// MaxDurationMin runs until stopped.
	UpdateIntervalSec int  `json:"update_interval" yaml:"update_interval"`
	MaxDurationMin    *int `json:"max_duration_min,omitempty" yaml:"max_duration_min,omitempty"`
	Debug             bool `json:"debug" yaml:"debug"`
	SinkTimeoutSec    int  `json:"sink_timeout_sec" yaml:"sink_timeout_sec"`
	FetchTimeoutSec   int  `json:"fetch_timeout_sec" yaml:"fetch_timeout_sec"`

	Currencies   []string          `json:"currencies" yaml:"currencies"`
	Indices      []string          `json:"indices" yaml:"indices"`
	IndexSymbols map[string]string `json:"index_symbols" yaml:"index_symbols"`
	Stocks       []string          `json:"stocks" yaml:"stocks"`

	Providers   Providers   `json:"providers" yaml:"providers"`
	Overlay     Overlay     `json:"overlay" yaml:"overlay"`
	Persistence Persistence `json:"persistence" yaml:"persistence"`
	Redis       Redis       `json:"redis" yaml:"redis"`
}

func Default() Config {
	return Config{
		Server:            Server{Port: "5000", RequestTimeoutSec: 10},
		UpdateIntervalSec: 60,
		SinkTimeoutSec:    15,
		FetchTimeoutSec:   10,
		Currencies:        []string{"USD-BRL", "USD-EUR", "USD-JPY", "USD-CNY", "USD-INR", "USD-KRW"},
		Indices:           []string{"IBOV", "SP500", "NASDAQ", "DOW", "DAX", "FTSE", "NIKKEI", "HANG_SENG"},
		IndexSymbols:      copyMap(yahoo.DefaultIndices),
		Providers: Providers{
			Yahoo: Yahoo{
				Throttle: Throttle{MaxRequestsPerMinute: 120, Burst: 8, CacheTTLSeconds: 30, CacheMaxItems: 1000},
			},
			BCB: Source{Enabled: true, Throttle: Throttle{MinRequestIntervalSec: 1, CacheTTLSeconds: 300}},
			ExchangeRate: Source{
				Enabled:  true,
				Throttle: Throttle{MinRequestIntervalSec: 1, CacheTTLSeconds: 60},
			},
			Fixer: Fixer{Throttle: Throttle{MaxRequestsPerMinute: 2, Burst: 1, CacheTTLSeconds: 3600}},
		},
		Overlay: Overlay{
			Host:       overlay.DefaultHost,
			Port:       overlay.DefaultPort,
			Input:      overlay.DefaultInput,
			Fields:     map[string]overlay.Fields{},
			Limit:      overlay.DefaultLimit,
			Limits:     map[string]int{},
			TimeoutSec: int(overlay.DefaultTimeout / time.Second),
		},
		Persistence: Persistence{Dir: "."},
		Redis:       Redis{Addr: "localhost:6379", Prefix: "quotefeed", TTLSec: 300},
	}
}

// Load reads a JSON or YAML (by extension) config file from path. If path is
// empty, config.json, config.yaml and config.yml are tried in that order; a
// missing file yields defaults. Environment variables override file values.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		for _, p := range []string{"config.json", "config.yaml", "config.yml"} {
			if _, err := os.Stat(p); err == nil {
				path = p
				break
			}
		}
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			if err := decode(path, b, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func decode(path string, b []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(b, cfg)
	default:
		return json.Unmarshal(b, cfg)
	}
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Port = v
	}
	if x, ok := envInt("REQUEST_TIMEOUT_SEC"); ok {
		cfg.Server.RequestTimeoutSec = x
	}
	if x, ok := envInt("UPDATE_INTERVAL"); ok {
		cfg.UpdateIntervalSec = x
	}
	if x, ok := envInt("MAX_DURATION_MIN"); ok {
		cfg.MaxDurationMin = &x
	}
	if b, ok := envBool("DEBUG"); ok {
		cfg.Debug = b
	}
	if v := os.Getenv("CURRENCIES"); v != "" {
		cfg.Currencies = splitCSV(v)
	}
	if v := os.Getenv("INDICES"); v != "" {
		cfg.Indices = splitCSV(v)
	}
	if v := os.Getenv("STOCKS"); v != "" {
		cfg.Stocks = splitCSV(v)
	}

	// FINHUB_API_KEY is the historical name of the Fixer credential.
	if v := os.Getenv("FINHUB_API_KEY"); v != "" {
		cfg.Providers.Fixer.APIKey = v
	}
	if v := os.Getenv("FIXER_API_KEY"); v != "" {
		cfg.Providers.Fixer.APIKey = v
	}

	if b, ok := envBool("OVERLAY_ENABLED"); ok {
		cfg.Overlay.Enabled = b
	}
	if v := os.Getenv("VMIX_HOST"); v != "" {
		cfg.Overlay.Host = v
	}
	if x, ok := envInt("VMIX_PORT"); ok {
		cfg.Overlay.Port = x
	}
	if v := os.Getenv("VMIX_INPUT"); v != "" {
		cfg.Overlay.Input = v
	}

	if v := os.Getenv("DATA_FILE"); v != "" {
		cfg.Persistence.Path = v
	}

	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("REDIS_PREFIX"); v != "" {
		cfg.Redis.Prefix = v
	}
}

// Validate replaces unsafe values with defaults and disables optional
// features that cannot work. Every problem is reported, each wrapping
// ErrInvalid.
func (c *Config) Validate() error {
	def := Default()
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	if c.UpdateIntervalSec <= 0 {
		bad("update_interval must be positive, got %d; using %d", c.UpdateIntervalSec, def.UpdateIntervalSec)
		c.UpdateIntervalSec = def.UpdateIntervalSec
	}
	if c.MaxDurationMin != nil && *c.MaxDurationMin < 0 {
		bad("max_duration_min must not be negative, got %d; running unbounded", *c.MaxDurationMin)
		c.MaxDurationMin = nil
	}
	if c.Server.RequestTimeoutSec <= 0 {
		bad("server.request_timeout_sec must be positive; using %d", def.Server.RequestTimeoutSec)
		c.Server.RequestTimeoutSec = def.Server.RequestTimeoutSec
	}
	if p, err := strconv.Atoi(c.Server.Port); err != nil || p <= 0 || p > 65535 {
		bad("server.port %q is not a valid port; using %s", c.Server.Port, def.Server.Port)
		c.Server.Port = def.Server.Port
	}
	if c.SinkTimeoutSec <= 0 {
		c.SinkTimeoutSec = def.SinkTimeoutSec
	}
	if c.FetchTimeoutSec <= 0 {
		c.FetchTimeoutSec = def.FetchTimeoutSec
	}
	if len(c.Currencies) == 0 && len(c.Indices) == 0 && len(c.Stocks) == 0 {
		bad("no currencies, indices or stocks configured; using defaults")
		c.Currencies, c.Indices = def.Currencies, def.Indices
	}
	for _, k := range c.Currencies {
		if base, code, ok := strings.Cut(k, "-"); !ok || base != "USD" || len(code) != 3 {
			bad("currency key %q must look like USD-XXX", k)
		}
	}

	if c.Overlay.Enabled {
		if c.Overlay.Host == "" || c.Overlay.Port <= 0 || c.Overlay.Port > 65535 || c.Overlay.Input == "" {
			bad("overlay needs host, port and input; overlay disabled")
			c.Overlay.Enabled = false
		}
		if len(c.Overlay.Fields) == 0 && c.Overlay.Ticker == "" {
			bad("overlay has no fields or ticker configured; overlay disabled")
			c.Overlay.Enabled = false
		}
	}
	if c.Overlay.Limit <= 0 {
		c.Overlay.Limit = def.Overlay.Limit
	}
	for field, n := range c.Overlay.Limits {
		if n <= 0 {
			bad("overlay limit for %s must be positive; using default", field)
			delete(c.Overlay.Limits, field)
		}
	}
	if c.Overlay.TimeoutSec <= 0 {
		c.Overlay.TimeoutSec = def.Overlay.TimeoutSec
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		bad("redis enabled without addr; redis disabled")
		c.Redis.Enabled = false
	}
	return errors.Join(errs...)
}

func (c Config) Interval() time.Duration {
	return time.Duration(c.UpdateIntervalSec) * time.Second
}

// MaxDuration reports the run bound and whether one is set.
func (c Config) MaxDuration() (time.Duration, bool) {
	if c.MaxDurationMin == nil {
		return 0, false
	}
	return time.Duration(*c.MaxDurationMin) * time.Minute, true
}

func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSec) * time.Second
}

func (c Config) SinkTimeout() time.Duration {
	return time.Duration(c.SinkTimeoutSec) * time.Second
}

func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSec) * time.Second
}

// OverlayConfig converts the overlay section for the overlay sink.
func (c Config) OverlayConfig() overlay.Config {
	return overlay.Config{
		Keys:    c.Overlay.Fields,
		Ticker:  c.Overlay.Ticker,
		Limit:   c.Overlay.Limit,
		Limits:  c.Overlay.Limits,
		Timeout: time.Duration(c.Overlay.TimeoutSec) * time.Second,
	}
}

// IndexKeys returns the index keys followed by the configured stocks.
func (c Config) IndexKeys() []string {
	out := make([]string, 0, len(c.Indices)+len(c.Stocks))
	out = append(out, c.Indices...)
	return append(out, c.Stocks...)
}

func envInt(key string) (int, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, false
	}
	x, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return x, true
}

func envBool(key string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "y":
		return true, true
	case "0", "false", "no", "n":
		return false, true
	}
	return false, false
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func copyMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
