// Package console renders snapshots as a Bloomberg-style text screen.
package console

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"quotefeed/internal/alert"
	"quotefeed/internal/markethours"
	"quotefeed/internal/snapshot"
)

const width = 80

// Format renders snap. It is a pure function of its input.
func Format(snap *snapshot.Snapshot) string {
	var b strings.Builder
	rule := strings.Repeat("=", width)
	sub := strings.Repeat("-", 40)

	b.WriteString(rule + "\n")
	b.WriteString("REAL-TIME MARKET DATA\n")
	b.WriteString(rule + "\n")
	fmt.Fprintf(&b, "Updated: %s\n\n", snap.TakenAt().Format("02/01/2006 15:04:05"))

	state := "CLOSED"
	if snap.MarketOpen() {
		state = "OPEN"
	}
	fmt.Fprintf(&b, "%s: %s\n\n", markethours.Market, state)

	b.WriteString("CURRENCIES\n" + sub + "\n")
	for key, q := range snap.Currencies().All() {
		fmt.Fprintf(&b, "%-12s %8s %s %6s%%\n", key, q.Value.StringFixed(4), trend(q.Change), Signed(q.ChangePercent, 2))
		fmt.Fprintf(&b, "%13sSource: %s\n", "", q.Source)
	}
	b.WriteString("\n")

	b.WriteString("INDICES\n" + sub + "\n")
	for key, q := range snap.Indices().All() {
		fmt.Fprintf(&b, "%-12s %10s %s %6s%%\n", key, Thousands(q.Value, 2), trend(q.Change), Signed(q.ChangePercent, 2))
		fmt.Fprintf(&b, "%13sChange: %s | Volume: %s\n", "", signedThousands(q.Change, 2), Thousands(decimal.NewFromUint64(q.Volume), 0))
	}
	b.WriteString("\n")
	b.WriteString(rule + "\n")
	return b.String()
}

func trend(change decimal.Decimal) string {
	if change.Sign() >= 0 {
		return "▲"
	}
	return "▼"
}

// Signed renders v with places decimals and an explicit sign.
func Signed(v decimal.Decimal, places int32) string {
	if v.Sign() >= 0 {
		return "+" + v.StringFixed(places)
	}
	return v.StringFixed(places)
}

func signedThousands(v decimal.Decimal, places int32) string {
	if v.Sign() >= 0 {
		return "+" + Thousands(v, places)
	}
	return Thousands(v, places)
}

// Thousands renders v with places decimals and comma grouping.
func Thousands(v decimal.Decimal, places int32) string {
	s := v.Abs().StringFixed(places)
	intPart, frac, hasFrac := strings.Cut(s, ".")
	var b strings.Builder
	if v.Sign() < 0 {
		b.WriteByte('-')
	}
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if hasFrac {
		b.WriteByte('.')
		b.WriteString(frac)
	}
	return b.String()
}

// Sink writes the formatted screen followed by alert lines.
type Sink struct {
	W     io.Writer
	Clear bool // emit an ANSI clear-screen first

	mu sync.Mutex
}

func New(w io.Writer, clear bool) *Sink { return &Sink{W: w, Clear: clear} }

func (s *Sink) Name() string { return "console" }

func (s *Sink) Publish(_ context.Context, snap *snapshot.Snapshot) error {
	var b strings.Builder
	if s.Clear {
		b.WriteString("\033[H\033[2J")
	}
	b.WriteString(Format(snap))
	if lines := alert.Messages(alert.Evaluate(snap)); len(lines) > 0 {
		b.WriteString("\nALERTS:\n")
		for _, l := range lines {
			b.WriteString("  " + l + "\n")
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := io.WriteString(s.W, b.String())
	return err
}
