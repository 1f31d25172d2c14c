// Package bcb reads the official USD/BRL rate published by Banco Central
// do Brasil (SGS series 10813).
package bcb

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"quotefeed/internal/httpx"
	"quotefeed/internal/provider"
)

const (
	SourceName     = "Banco Central do Brasil"
	DefaultBaseURL = "https://api.bcb.gov.br"
	Series         = "10813"
	Key            = "USD-BRL"
)

type Provider struct {
	HTTP    httpx.Doer
	BaseURL string
}

func New(h httpx.Doer) *Provider { return &Provider{HTTP: h, BaseURL: DefaultBaseURL} }

func (p *Provider) Name() string { return SourceName }

type point struct {
	Data  string `json:"data"`
	Valor string `json:"valor"`
}

// Fetch returns USD-BRL when requested. The series carries no reference, so
// change fields stay zero.
func (p *Provider) Fetch(ctx context.Context, keys []string) (provider.Quotes, error) {
	if !slices.Contains(keys, Key) {
		return provider.Quotes{}, nil
	}
	url := fmt.Sprintf("%s/dados/serie/bcdata.sgs.%s/dados/ultimos/1?formato=json", p.BaseURL, Series)
	var points []point
	if err := httpx.GetJSON(ctx, p.HTTP, url, &points); err != nil {
		return provider.Quotes{}, fmt.Errorf("bcb: %w", err)
	}
	if len(points) == 0 {
		return provider.Quotes{}, nil
	}
	latest := points[len(points)-1]
	v, err := decimal.NewFromString(latest.Valor)
	if err != nil {
		return provider.Quotes{}, fmt.Errorf("bcb: parsing valor %q: %w", latest.Valor, err)
	}

	q := provider.NewQuote(Key, v, decimal.Zero)
	q.Source = SourceName
	q.RawSymbol = "sgs." + Series
	q.ObservedAt = time.Now().UTC()
	if day, err := time.Parse("02/01/2006", latest.Data); err == nil {
		q.ObservedAt = day
	}
	return provider.NewQuotes(q), nil
}
