// Package alert flags quotes whose daily move is unusually large.
package alert

import (
	"fmt"

	"github.com/shopspring/decimal"

	"quotefeed/internal/provider"
	"quotefeed/internal/snapshot"
)

// Thresholds in percent. A move must be strictly greater to alert.
var (
	CurrencyThreshold = decimal.NewFromInt(2)
	IndexThreshold    = decimal.NewFromInt(3)
)

// Alert is one quote over its class threshold.
type Alert struct {
	Key           string          `json:"key"`
	ChangePercent decimal.Decimal `json:"change_percent"`
	Class         provider.Class  `json:"class"`
}

// Message renders the alert as a single display line, e.g. "IBOV: +3.50%".
func (a Alert) Message() string {
	return fmt.Sprintf("%s: %s%%", a.Key, signed(a.ChangePercent, 2))
}

func (a Alert) String() string { return a.Message() }

func signed(v decimal.Decimal, places int32) string {
	s := v.StringFixed(places)
	if v.Sign() >= 0 {
		return "+" + s
	}
	return s
}

// Threshold returns the alert threshold for class.
func Threshold(class provider.Class) decimal.Decimal {
	if class == provider.ClassIndex {
		return IndexThreshold
	}
	return CurrencyThreshold
}

// Evaluate scans currencies then indices in snapshot order.
func Evaluate(snap *snapshot.Snapshot) []Alert {
	if snap == nil {
		return nil
	}
	var out []Alert
	out = appendOver(out, snap.Currencies(), provider.ClassCurrency)
	out = appendOver(out, snap.Indices(), provider.ClassIndex)
	return out
}

func appendOver(out []Alert, qs provider.Quotes, class provider.Class) []Alert {
	limit := Threshold(class)
	for _, q := range qs.All() {
		if q.ChangePercent.Abs().GreaterThan(limit) {
			out = append(out, Alert{Key: q.Key, ChangePercent: q.ChangePercent, Class: class})
		}
	}
	return out
}

// Messages renders alerts to display lines.
func Messages(alerts []Alert) []string {
	out := make([]string, 0, len(alerts))
	for _, a := range alerts {
		out = append(out, a.Message())
	}
	return out
}
