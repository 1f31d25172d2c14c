package aggregate

import (
	"testing"

	"github.com/shopspring/decimal"

	"quotefeed/internal/provider"
)

func q(key, value, source string) provider.Quote {
	return provider.Quote{Key: key, Value: decimal.RequireFromString(value), Source: source}
}

func valueOf(t *testing.T, qs provider.Quotes, key string) string {
	t.Helper()
	got, ok := qs.Get(key)
	if !ok {
		t.Fatalf("missing key %s in %v", key, qs.Keys())
	}
	return got.Value.String()
}

func TestMerge_OfficialOverridesGeneral(t *testing.T) {
	official := provider.NewQuotes(q("USD-BRL", "5.12", "BCB"))
	general := provider.NewQuotes(
		q("USD-BRL", "5.10", "Yahoo Finance"),
		q("USD-EUR", "0.92", "Yahoo Finance"),
	)

	out := Merge([]Result{
		{Source: "BCB", Quotes: official},
		{Source: "Yahoo Finance", Quotes: general},
	})

	if out.Len() != 2 {
		t.Fatalf("want 2 keys, got %d: %v", out.Len(), out.Keys())
	}
	if v := valueOf(t, out, "USD-BRL"); v != "5.12" {
		t.Fatalf("USD-BRL: want 5.12, got %s", v)
	}
	if v := valueOf(t, out, "USD-EUR"); v != "0.92" {
		t.Fatalf("USD-EUR: want 0.92, got %s", v)
	}
	brl, _ := out.Get("USD-BRL")
	if brl.Source != "BCB" {
		t.Fatalf("USD-BRL source: want BCB, got %s", brl.Source)
	}
}

func TestMerge_HighestPriorityWinsForEveryKey(t *testing.T) {
	results := []Result{
		{Source: "a", Quotes: provider.NewQuotes(q("K1", "1", "a"))},
		{Source: "b", Quotes: provider.NewQuotes(q("K1", "2", "b"), q("K2", "2", "b"))},
		{Source: "c", Quotes: provider.NewQuotes(q("K1", "3", "c"), q("K2", "3", "c"), q("K3", "3", "c"))},
	}

	out := Merge(results)

	want := map[string]string{"K1": "a", "K2": "b", "K3": "c"}
	for key, src := range want {
		got, ok := out.Get(key)
		if !ok || got.Source != src {
			t.Fatalf("%s: want source %s, got %+v", key, src, got)
		}
	}
	if keys := out.Keys(); len(keys) != 3 || keys[0] != "K1" || keys[1] != "K2" || keys[2] != "K3" {
		t.Fatalf("unexpected key order: %v", keys)
	}
}

func TestMerge_FallbackOnlyWhenEverythingAboveIsEmpty(t *testing.T) {
	backup := provider.NewQuotes(
		q("USD-BRL", "5.00", "ExchangeRate-API"),
		q("USD-JPY", "150", "ExchangeRate-API"),
	)

	t.Run("all higher empty", func(t *testing.T) {
		out := Merge([]Result{
			{Source: "BCB"},
			{Source: "Yahoo Finance", Quotes: provider.NewQuotes()},
			{Source: "ExchangeRate-API", Fallback: true, Quotes: backup},
		})
		if out.Len() != backup.Len() {
			t.Fatalf("want backup verbatim, got %v", out.Keys())
		}
		for key, want := range backup.All() {
			got, _ := out.Get(key)
			if !got.Value.Equal(want.Value) || got.Source != want.Source {
				t.Fatalf("%s: want %+v, got %+v", key, want, got)
			}
		}
	})

	t.Run("one key above closes the gate", func(t *testing.T) {
		out := Merge([]Result{
			{Source: "BCB", Quotes: provider.NewQuotes(q("USD-BRL", "5.12", "BCB"))},
			{Source: "Yahoo Finance"},
			{Source: "ExchangeRate-API", Fallback: true, Quotes: backup},
		})
		if out.Len() != 1 || out.Has("USD-JPY") {
			t.Fatalf("backup must not fill per key, got %v", out.Keys())
		}
	})
}

func TestMerge_CredentialedSourceFillsMissingKeysOnly(t *testing.T) {
	out := Merge([]Result{
		{Source: "BCB", Quotes: provider.NewQuotes(q("USD-BRL", "5.12", "BCB"))},
		{Source: "Yahoo Finance", Quotes: provider.NewQuotes(q("USD-EUR", "0.92", "Yahoo Finance"))},
		{Source: "ExchangeRate-API", Fallback: true, Skipped: true},
		{Source: "Fixer", Quotes: provider.NewQuotes(
			q("USD-BRL", "4.00", "Fixer"),
			q("USD-KRW", "1350", "Fixer"),
		)},
	})

	if v := valueOf(t, out, "USD-BRL"); v != "5.12" {
		t.Fatalf("USD-BRL overwritten by lower source: %s", v)
	}
	if v := valueOf(t, out, "USD-KRW"); v != "1350" {
		t.Fatalf("USD-KRW: want 1350, got %s", v)
	}
}

func TestMerge_SkippedSourceContributesNothing(t *testing.T) {
	out := Merge([]Result{
		{Source: "Fixer", Skipped: true, Quotes: provider.NewQuotes(q("USD-BRL", "1", "Fixer"))},
	})
	if out.Len() != 0 {
		t.Fatalf("want empty, got %v", out.Keys())
	}
}

func TestNeedsFallback(t *testing.T) {
	results := []Result{
		{Source: "a"},
		{Source: "b", Fallback: true, Quotes: provider.NewQuotes(q("K", "1", "b"))},
		{Source: "c", Fallback: true},
	}
	if !NeedsFallback(results, 1) {
		t.Fatal("first fallback should be open when nothing above contributed")
	}
	if NeedsFallback(results, 2) {
		t.Fatal("second fallback should be closed once the first contributed")
	}
	if !NeedsFallback(nil, 5) {
		t.Fatal("empty input keeps the gate open")
	}
}
