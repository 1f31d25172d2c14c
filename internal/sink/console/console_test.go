package console

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"quotefeed/internal/provider"
	"quotefeed/internal/snapshot"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func sample() *snapshot.Snapshot {
	return snapshot.New(time.Date(2025, 3, 3, 13, 30, 5, 0, time.UTC),
		provider.NewQuotes(provider.Quote{
			Key: "USD-BRL", Value: d("5.8123"), Change: d("0.0142"), ChangePercent: d("0.2449"), Source: "Banco Central do Brasil",
		}),
		provider.NewQuotes(provider.Quote{
			Key: "IBOV", Value: d("128000.75"), Change: d("-4500.5"), ChangePercent: d("-3.3965"), Volume: 9876543210, Source: "Yahoo Finance",
		}),
		true)
}

func TestFormat(t *testing.T) {
	t.Parallel()

	out := Format(sample())

	require.Contains(t, out, "Updated: 03/03/2025 13:30:05")
	require.Contains(t, out, "B3: OPEN")
	require.Contains(t, out, "USD-BRL        5.8123 ▲  +0.24%")
	require.Contains(t, out, "             Source: Banco Central do Brasil")
	require.Contains(t, out, "IBOV         128,000.75 ▼  -3.40%")
	require.Contains(t, out, "Change: -4,500.50 | Volume: 9,876,543,210")
}

func TestThousands(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"0":          "0.00",
		"999.5":      "999.50",
		"1000":       "1,000.00",
		"-1234567.8": "-1,234,567.80",
		"100000":     "100,000.00",
	}
	for in, want := range cases {
		require.Equal(t, want, Thousands(d(in), 2), in)
	}
	require.Equal(t, "12,345", Thousands(d("12345"), 0))
}

func TestSink_WritesAlerts(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	s := New(&buf, false)

	require.NoError(t, s.Publish(t.Context(), sample()))

	out := buf.String()
	require.True(t, strings.HasPrefix(out, strings.Repeat("=", 80)))
	require.Contains(t, out, "ALERTS:\n  IBOV: -3.40%\n")
}
