// Package exchangerate is the keyless ExchangeRate-API backup source.
package exchangerate

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"quotefeed/internal/httpx"
	"quotefeed/internal/provider"
)

const (
	SourceName     = "ExchangeRate-API"
	DefaultBaseURL = "https://api.exchangerate-api.com"
)

type Provider struct {
	HTTP    httpx.Doer
	BaseURL string
}

func New(h httpx.Doer) *Provider { return &Provider{HTTP: h, BaseURL: DefaultBaseURL} }

func (p *Provider) Name() string { return SourceName }

type latestResponse struct {
	Base       string                 `json:"base"`
	TimeLastUp int64                  `json:"time_last_updated"`
	Rates      map[string]json.Number `json:"rates"`
}

// Fetch returns USD-{C} for each requested key found in the USD table.
// No change data is offered.
func (p *Provider) Fetch(ctx context.Context, keys []string) (provider.Quotes, error) {
	var body latestResponse
	if err := httpx.GetJSON(ctx, p.HTTP, p.BaseURL+"/v4/latest/USD", &body); err != nil {
		return provider.Quotes{}, fmt.Errorf("exchangerate: %w", err)
	}
	observed := time.Now().UTC()
	if body.TimeLastUp > 0 {
		observed = time.Unix(body.TimeLastUp, 0).UTC()
	}
	return provider.FromUSDRates(keys, body.Rates, SourceName, observed), nil
}
