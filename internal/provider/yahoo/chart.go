package yahoo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
)

// ErrNoData is returned when the chart has no usable bar.
var ErrNoData = errors.New("no data")

// Bar is one OHLCV interval.
type Bar struct {
	Time   time.Time
	Open   decimal.Decimal
	High   decimal.Decimal
	Low    decimal.Decimal
	Close  decimal.Decimal
	Volume uint64
}

// Series is the intraday chart of one symbol.
type Series struct {
	Symbol   string
	Currency string
	Bars     []Bar
}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol   string `json:"symbol"`
				Currency string `json:"currency"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*json.Number `json:"open"`
					High   []*json.Number `json:"high"`
					Low    []*json.Number `json:"low"`
					Close  []*json.Number `json:"close"`
					Volume []*json.Number `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// Chart retrieves the bars of symbol for range rng (e.g. "1d") at the given
// interval (e.g. "1m", "5m"). Bars without a close are skipped.
func (c *Client) Chart(ctx context.Context, symbol, rng, interval string) (*Series, error) {
	query := url.Values{}
	query.Set("range", rng)
	query.Set("interval", interval)

	u := fmt.Sprintf("%s/v8/finance/chart/%s?%s", c.baseURL, url.PathEscape(symbol), query.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header = c.header.Clone()

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("performing request: %w", err)
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
		break

	case http.StatusNotFound:
		return nil, fmt.Errorf("symbol %s: not found", symbol)

	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, fmt.Errorf("unauthorized")

	case http.StatusTooManyRequests:
		return nil, fmt.Errorf("rate limited")

	default:
		return nil, fmt.Errorf("unexpected status code: %d", res.StatusCode)
	}

	var body chartResponse
	if err := json.NewDecoder(io.LimitReader(res.Body, 8<<20)).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding chart response: %w", err)
	}
	if e := body.Chart.Error; e != nil {
		return nil, fmt.Errorf("chart error %s: %s", e.Code, e.Description)
	}
	if len(body.Chart.Result) == 0 || len(body.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, fmt.Errorf("symbol %s: %w", symbol, ErrNoData)
	}

	r := body.Chart.Result[0]
	q := r.Indicators.Quote[0]
	s := &Series{Symbol: r.Meta.Symbol, Currency: r.Meta.Currency}
	if s.Symbol == "" {
		s.Symbol = symbol
	}
	for i, ts := range r.Timestamp {
		closeV, ok := num(q.Close, i)
		if !ok {
			continue
		}
		bar := Bar{Time: time.Unix(ts, 0).UTC(), Close: closeV, Open: closeV, High: closeV, Low: closeV}
		if v, ok := num(q.Open, i); ok {
			bar.Open = v
		}
		if v, ok := num(q.High, i); ok {
			bar.High = v
		}
		if v, ok := num(q.Low, i); ok {
			bar.Low = v
		}
		if v, ok := num(q.Volume, i); ok && v.IsPositive() {
			bar.Volume = uint64(v.IntPart())
		}
		s.Bars = append(s.Bars, bar)
	}
	if len(s.Bars) == 0 {
		return nil, fmt.Errorf("symbol %s: %w", symbol, ErrNoData)
	}
	return s, nil
}

func num(vs []*json.Number, i int) (decimal.Decimal, bool) {
	if i >= len(vs) || vs[i] == nil {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(vs[i].String())
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

// Last returns the most recent bar.
func (s *Series) Last() Bar { return s.Bars[len(s.Bars)-1] }

// First returns the earliest bar.
func (s *Series) First() Bar { return s.Bars[0] }

// Range returns the highest high and lowest low of the series.
func (s *Series) Range() (high, low decimal.Decimal) {
	high, low = s.Bars[0].High, s.Bars[0].Low
	for _, b := range s.Bars[1:] {
		if b.High.GreaterThan(high) {
			high = b.High
		}
		if b.Low.LessThan(low) {
			low = b.Low
		}
	}
	return high, low
}

// TotalVolume sums the volume of all bars.
func (s *Series) TotalVolume() uint64 {
	var v uint64
	for _, b := range s.Bars {
		v += b.Volume
	}
	return v
}
