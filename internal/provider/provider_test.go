package provider

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestNewQuote_ChangeFromReference(t *testing.T) {
	t.Parallel()

	q := NewQuote("IBOV", d("103.5"), d("100"))
	require.True(t, q.Change.Equal(d("3.5")), "change=%s", q.Change)
	require.True(t, q.ChangePercent.Equal(d("3.5")), "pct=%s", q.ChangePercent)

	q = NewQuote("USD-BRL", d("4.9"), d("5"))
	require.True(t, q.Change.Equal(d("-0.1")), "change=%s", q.Change)
	require.True(t, q.ChangePercent.Equal(d("-2")), "pct=%s", q.ChangePercent)
}

func TestNewQuote_ZeroReferenceYieldsZeroPercent(t *testing.T) {
	t.Parallel()

	q := NewQuote("USD-EUR", d("0.92"), decimal.Zero)
	require.True(t, q.ChangePercent.IsZero())
	require.True(t, q.Change.IsZero())
	require.True(t, q.Value.Equal(d("0.92")))
}

func TestNewQuote_PercentSignFollowsChange(t *testing.T) {
	t.Parallel()

	cases := []struct{ value, ref string }{
		{"5", "4"}, {"4", "5"}, {"-1", "-2"}, {"-3", "-2"}, {"0.0001", "0.00005"},
	}
	for _, c := range cases {
		q := NewQuote("K", d(c.value), d(c.ref))
		require.Equalf(t, q.Change.Sign(), q.ChangePercent.Sign(), "value=%s ref=%s", c.value, c.ref)
	}
}

func TestQuotes_SetKeepsPositionOnOverwrite(t *testing.T) {
	t.Parallel()

	var qs Quotes
	qs.Set(Quote{Key: "USD-BRL", Value: d("5.10"), Source: "Yahoo Finance"})
	qs.Set(Quote{Key: "USD-EUR", Value: d("0.92")})
	qs.Set(Quote{Key: "USD-BRL", Value: d("5.12"), Source: "BCB"})

	require.Equal(t, []string{"USD-BRL", "USD-EUR"}, qs.Keys())
	got, ok := qs.Get("USD-BRL")
	require.True(t, ok)
	require.Equal(t, "BCB", got.Source)
	require.Equal(t, 2, qs.Len())
}

func TestQuotes_CloneIsIndependent(t *testing.T) {
	t.Parallel()

	orig := NewQuotes(Quote{Key: "IBOV", Value: d("1")})
	cp := orig.Clone()
	cp.Set(Quote{Key: "SP500", Value: d("2")})

	require.Equal(t, 1, orig.Len())
	require.False(t, orig.Has("SP500"))
	require.Equal(t, 2, cp.Len())
}

func TestQuotes_CloneCopiesRangeValues(t *testing.T) {
	t.Parallel()

	// Arrange
	open, high := d("100"), d("110")
	orig := NewQuotes(Quote{Key: "IBOV", Value: d("105"), Open: &open, High: &high})

	// Act
	cp := orig.Clone()
	q, _ := cp.Get("IBOV")
	*q.Open = d("1")
	*q.High = d("2")

	// Assert
	got, _ := orig.Get("IBOV")
	require.True(t, got.Open.Equal(d("100")), "open=%s", got.Open)
	require.True(t, got.High.Equal(d("110")), "high=%s", got.High)
	require.Nil(t, got.Low)
	require.NotSame(t, got.Open, q.Open)
}

func TestQuotes_JSONPreservesOrder(t *testing.T) {
	t.Parallel()

	qs := NewQuotes(
		Quote{Key: "SP500", Value: d("5000.1")},
		Quote{Key: "IBOV", Value: d("128000")},
		Quote{Key: "DAX", Value: d("18000")},
	)

	b, err := json.Marshal(qs)
	require.NoError(t, err)

	var back Quotes
	require.NoError(t, json.Unmarshal(b, &back))
	require.Equal(t, []string{"SP500", "IBOV", "DAX"}, back.Keys())

	ibov, ok := back.Get("IBOV")
	require.True(t, ok)
	require.True(t, ibov.Value.Equal(d("128000")))
}

func TestQuotes_UnmarshalNullAndGarbage(t *testing.T) {
	t.Parallel()

	var qs Quotes
	require.NoError(t, json.Unmarshal([]byte("null"), &qs))
	require.Equal(t, 0, qs.Len())

	require.Error(t, json.Unmarshal([]byte(`[1,2]`), &qs))
}

func TestQuotes_AllStopsEarly(t *testing.T) {
	t.Parallel()

	qs := NewQuotes(Quote{Key: "A"}, Quote{Key: "B"}, Quote{Key: "C"})
	var seen []string
	for k := range qs.All() {
		seen = append(seen, k)
		if k == "B" {
			break
		}
	}
	require.Equal(t, []string{"A", "B"}, seen)
}
