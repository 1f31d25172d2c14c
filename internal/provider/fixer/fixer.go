// Package fixer is the credentialed Fixer.io rate source. Without an
// access key the provider reports itself disabled and is never called.
package fixer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"quotefeed/internal/httpx"
	"quotefeed/internal/provider"
)

const (
	SourceName = "Fixer.io"
	// DefaultBaseURL is plain http: the free plan does not serve https.
	DefaultBaseURL = "http://data.fixer.io"
)

type Provider struct {
	HTTP    httpx.Doer
	BaseURL string
	Key     string
}

func New(h httpx.Doer, key string) *Provider {
	return &Provider{HTTP: h, BaseURL: DefaultBaseURL, Key: key}
}

func (p *Provider) Name() string { return SourceName }

// Enabled reports whether an access key is configured.
func (p *Provider) Enabled() bool { return strings.TrimSpace(p.Key) != "" }

type latestResponse struct {
	Success   bool                   `json:"success"`
	Timestamp int64                  `json:"timestamp"`
	Base      string                 `json:"base"`
	Rates     map[string]json.Number `json:"rates"`
	Error     *struct {
		Code int    `json:"code"`
		Type string `json:"type"`
		Info string `json:"info"`
	} `json:"error"`
}

func (p *Provider) Fetch(ctx context.Context, keys []string) (provider.Quotes, error) {
	if !p.Enabled() {
		return provider.Quotes{}, nil
	}
	codes := make([]string, 0, len(keys))
	for _, k := range keys {
		if code, ok := strings.CutPrefix(k, "USD-"); ok {
			codes = append(codes, code)
		}
	}
	if len(codes) == 0 {
		return provider.Quotes{}, nil
	}

	query := url.Values{}
	query.Set("access_key", p.Key)
	query.Set("base", "USD")
	query.Set("symbols", strings.Join(codes, ","))

	var body latestResponse
	if err := httpx.GetJSON(ctx, p.HTTP, p.BaseURL+"/api/latest?"+query.Encode(), &body); err != nil {
		// keep the key out of logs
		return provider.Quotes{}, fmt.Errorf("fixer: %s", strings.ReplaceAll(err.Error(), p.Key, "***"))
	}
	if !body.Success {
		if body.Error != nil {
			return provider.Quotes{}, fmt.Errorf("fixer: %d %s: %s", body.Error.Code, body.Error.Type, body.Error.Info)
		}
		return provider.Quotes{}, fmt.Errorf("fixer: request not successful")
	}
	observed := time.Now().UTC()
	if body.Timestamp > 0 {
		observed = time.Unix(body.Timestamp, 0).UTC()
	}
	return provider.FromUSDRates(keys, body.Rates, SourceName, observed), nil
}
