package provider

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Class is the data class a quote belongs to.
type Class string

const (
	ClassCurrency Class = "currency"
	ClassIndex    Class = "index"
)

// Quote is the normalized shape returned by all providers.
// Values are decimals to avoid float rounding; Open/High/Low are only
// present for index and equity series.
type Quote struct {
	Key           string           `json:"key"`
	Value         decimal.Decimal  `json:"value"`
	Open          *decimal.Decimal `json:"open,omitempty"`
	High          *decimal.Decimal `json:"high,omitempty"`
	Low           *decimal.Decimal `json:"low,omitempty"`
	Change        decimal.Decimal  `json:"change"`
	ChangePercent decimal.Decimal  `json:"change_percent"`
	Volume        uint64           `json:"volume"`
	Source        string           `json:"source"`
	ObservedAt    time.Time        `json:"observed_at"`
	RawSymbol     string           `json:"raw_symbol"`
}

var hundred = decimal.NewFromInt(100)

// clone copies q including the values behind Open, High and Low.
func (q Quote) clone() Quote {
	q.Open = copyDecimal(q.Open)
	q.High = copyDecimal(q.High)
	q.Low = copyDecimal(q.Low)
	return q
}

func copyDecimal(v *decimal.Decimal) *decimal.Decimal {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// NewQuote builds a quote for key and derives Change and ChangePercent from
// reference. A zero reference means the source offered none: both derived
// fields stay zero. The percentage is taken against the absolute reference so
// its sign always follows the sign of Change.
func NewQuote(key string, value, reference decimal.Decimal) Quote {
	q := Quote{Key: key, Value: value}
	if reference.IsZero() {
		return q
	}
	q.Change = value.Sub(reference)
	q.ChangePercent = q.Change.Div(reference.Abs()).Mul(hundred)
	return q
}

// Provider fetches quotes for a set of logical keys from one upstream.
//
// Keys that fail individually are simply absent from the result. An error is
// returned only when the whole upstream call failed; callers treat it as an
// empty result. "No data" is an empty Quotes with a nil error.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, keys []string) (Quotes, error)
}

// Optional is implemented by providers that need a credential to run.
// Enabled reports false when the credential is missing.
type Optional interface {
	Enabled() bool
}

// IsEnabled reports whether p should be called at all.
func IsEnabled(p Provider) bool {
	if o, ok := p.(Optional); ok {
		return o.Enabled()
	}
	return true
}

// FromUSDRates builds rate quotes from a table of units per USD keyed by
// currency code. Keys of the form "USD-XXX" are looked up in request order;
// missing or unparseable rates are skipped. Rate tables carry no reference,
// so change fields stay zero.
func FromUSDRates(keys []string, rates map[string]json.Number, source string, observed time.Time) Quotes {
	var out Quotes
	for _, key := range keys {
		code, ok := strings.CutPrefix(key, "USD-")
		if !ok {
			continue
		}
		raw, ok := rates[code]
		if !ok {
			continue
		}
		v, err := decimal.NewFromString(raw.String())
		if err != nil {
			continue
		}
		q := NewQuote(key, v, decimal.Zero)
		q.Source = source
		q.ObservedAt = observed
		q.RawSymbol = "USD/" + code
		out.Set(q)
	}
	return out
}
