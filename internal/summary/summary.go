// Package summary derives the ranked "top movers" view of a snapshot.
package summary

import (
	"slices"
	"time"

	"quotefeed/internal/alert"
	"quotefeed/internal/markethours"
	"quotefeed/internal/provider"
	"quotefeed/internal/snapshot"
)

// TopN is the number of entries kept per group.
const TopN = 5

// Summary is the condensed view served to dashboards.
type Summary struct {
	SnapshotID    string             `json:"snapshot_id"`
	TakenAt       time.Time          `json:"taken_at"`
	MarketOpen    bool               `json:"market_open"`
	Market        markethours.Status `json:"market"`
	TopCurrencies []provider.Quote   `json:"top_currencies"`
	TopIndices    []provider.Quote   `json:"top_indices"`
	Alerts        []alert.Alert      `json:"alerts"`
	AlertLines    []string           `json:"alert_lines"`
}

// Summarize builds the summary of snap. Market status details are computed
// from the snapshot time.
func Summarize(snap *snapshot.Snapshot) Summary {
	alerts := alert.Evaluate(snap)
	if alerts == nil {
		alerts = []alert.Alert{}
	}
	return Summary{
		SnapshotID:    snap.ID().String(),
		TakenAt:       snap.TakenAt(),
		MarketOpen:    snap.MarketOpen(),
		Market:        markethours.StatusAt(snap.TakenAt()),
		TopCurrencies: Top(snap.Currencies(), TopN),
		TopIndices:    Top(snap.Indices(), TopN),
		Alerts:        alerts,
		AlertLines:    alert.Messages(alerts),
	}
}

// Top returns at most n quotes sorted by descending absolute change
// percent. Ties keep insertion order.
func Top(qs provider.Quotes, n int) []provider.Quote {
	out := qs.Values()
	slices.SortStableFunc(out, func(a, b provider.Quote) int {
		return b.ChangePercent.Abs().Cmp(a.ChangePercent.Abs())
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
