package yahoo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"quotefeed/internal/provider"
)

// SourceName is the source tag of every quote from this package.
const SourceName = "Yahoo Finance"

// DefaultIndices maps logical index keys to Yahoo tickers.
var DefaultIndices = map[string]string{
	"IBOV":      "^BVSP",
	"SP500":     "^GSPC",
	"NASDAQ":    "^IXIC",
	"DOW":       "^DJI",
	"DAX":       "^GDAXI",
	"FTSE":      "^FTSE",
	"NIKKEI":    "^N225",
	"HANG_SENG": "^HSI",
}

// directQuoted currencies are listed by Yahoo as USD{C}=X; every other one
// as {C}USD=X.
var directQuoted = map[string]bool{"BRL": true, "JPY": true, "CNY": true, "INR": true, "KRW": true}

// CurrencySymbol returns the Yahoo ticker for USD against code and whether
// the ticker is quoted the other way round (units of USD per code).
func CurrencySymbol(code string) (symbol string, inverted bool) {
	code = strings.ToUpper(code)
	if directQuoted[code] {
		return "USD" + code + "=X", false
	}
	return code + "USD=X", true
}

// StockSymbol translates a bare domestic equity ticker to its Yahoo form:
// tickers without an exchange suffix and shorter than 7 characters get ".SA".
func StockSymbol(ticker string) string {
	if !strings.Contains(ticker, ".") && len(ticker) < 7 {
		return ticker + ".SA"
	}
	return ticker
}

// maxParallel bounds concurrent chart requests per Fetch.
const maxParallel = 4

// IndexProvider serves index and equity quotes from 5-minute intraday bars.
// The reference for change is the day's first open.
type IndexProvider struct {
	Client   *Client
	Symbols  map[string]string // logical key -> ticker; unknown keys are treated as equity tickers
	Interval string            // default "5m"
}

func (p *IndexProvider) Name() string { return SourceName }

func (p *IndexProvider) ticker(key string) string {
	if sym, ok := p.Symbols[key]; ok {
		return sym
	}
	if sym, ok := DefaultIndices[key]; ok {
		return sym
	}
	return StockSymbol(key)
}

func (p *IndexProvider) Fetch(ctx context.Context, keys []string) (provider.Quotes, error) {
	interval := p.Interval
	if interval == "" {
		interval = "5m"
	}
	return fetchEach(ctx, keys, func(ctx context.Context, key string) (provider.Quote, error) {
		sym := p.ticker(key)
		s, err := p.Client.Chart(ctx, sym, "1d", interval)
		if err != nil {
			return provider.Quote{}, err
		}
		first, last := s.First(), s.Last()
		high, low := s.Range()
		open := first.Open

		q := provider.NewQuote(key, last.Close, open)
		q.Open, q.High, q.Low = &open, &high, &low
		q.Volume = s.TotalVolume()
		q.Source = SourceName
		q.ObservedAt = last.Time
		q.RawSymbol = sym
		return q, nil
	})
}

// CurrencyProvider serves USD-{C} rates from 1-minute intraday bars. The
// reference for change is the first close of the day. Keys must have the
// form "USD-XXX"; other keys are ignored.
type CurrencyProvider struct {
	Client   *Client
	Interval string // default "1m"
}

func (p *CurrencyProvider) Name() string { return SourceName }

var one = decimal.NewFromInt(1)

func (p *CurrencyProvider) Fetch(ctx context.Context, keys []string) (provider.Quotes, error) {
	interval := p.Interval
	if interval == "" {
		interval = "1m"
	}
	wanted := make([]string, 0, len(keys))
	for _, k := range keys {
		if _, ok := currencyCode(k); ok {
			wanted = append(wanted, k)
		}
	}
	return fetchEach(ctx, wanted, func(ctx context.Context, key string) (provider.Quote, error) {
		code, _ := currencyCode(key)
		sym, inverted := CurrencySymbol(code)
		s, err := p.Client.Chart(ctx, sym, "1d", interval)
		if err != nil {
			return provider.Quote{}, err
		}
		value, ref := s.Last().Close, s.First().Close
		if inverted {
			if value.IsZero() || ref.IsZero() {
				return provider.Quote{}, fmt.Errorf("%s: zero rate", sym)
			}
			value, ref = one.Div(value), one.Div(ref)
		}
		q := provider.NewQuote(key, value, ref)
		q.Source = SourceName
		q.ObservedAt = s.Last().Time
		q.RawSymbol = sym
		return q, nil
	})
}

func currencyCode(key string) (string, bool) {
	base, code, ok := strings.Cut(strings.ToUpper(key), "-")
	if !ok || base != "USD" || len(code) != 3 || code == "USD" {
		return "", false
	}
	return code, true
}

// fetchEach runs fn for every key with bounded parallelism and keeps the
// request order. Failing keys are left out; an error is returned only when
// every key failed.
func fetchEach(ctx context.Context, keys []string, fn func(context.Context, string) (provider.Quote, error)) (provider.Quotes, error) {
	if len(keys) == 0 {
		return provider.Quotes{}, nil
	}
	quotes := make([]*provider.Quote, len(keys))
	var (
		mu   sync.Mutex
		errs []error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallel)
	for i, key := range keys {
		g.Go(func() error {
			q, err := fn(gctx, key)
			if err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				mu.Unlock()
				return nil
			}
			if q.ObservedAt.IsZero() {
				q.ObservedAt = time.Now().UTC()
			}
			quotes[i] = &q
			return nil
		})
	}
	_ = g.Wait()

	var out provider.Quotes
	for _, q := range quotes {
		if q != nil {
			out.Set(*q)
		}
	}
	if out.Len() == 0 && len(errs) > 0 {
		return provider.Quotes{}, errors.Join(errs...)
	}
	return out, nil
}
