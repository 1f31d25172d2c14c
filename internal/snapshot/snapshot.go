// Package snapshot holds the immutable per-tick aggregate handed to sinks.
package snapshot

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"quotefeed/internal/provider"
)

// Snapshot is one fully merged collection of quotes plus market status.
// It is never mutated after New returns; accessors hand out copies.
type Snapshot struct {
	id         uuid.UUID
	takenAt    time.Time
	currencies provider.Quotes
	indices    provider.Quotes
	marketOpen bool
}

// New builds a Snapshot. The quote sets are copied.
func New(takenAt time.Time, currencies, indices provider.Quotes, marketOpen bool) *Snapshot {
	return &Snapshot{
		id:         uuid.New(),
		takenAt:    takenAt,
		currencies: currencies.Clone(),
		indices:    indices.Clone(),
		marketOpen: marketOpen,
	}
}

func (s *Snapshot) ID() uuid.UUID               { return s.id }
func (s *Snapshot) TakenAt() time.Time          { return s.takenAt }
func (s *Snapshot) MarketOpen() bool            { return s.marketOpen }
func (s *Snapshot) Currencies() provider.Quotes { return s.currencies.Clone() }
func (s *Snapshot) Indices() provider.Quotes    { return s.indices.Clone() }

// Currency returns the quote for a currency pair key.
func (s *Snapshot) Currency(key string) (provider.Quote, bool) { return s.currencies.Get(key) }

// Index returns the quote for an index key.
func (s *Snapshot) Index(key string) (provider.Quote, bool) { return s.indices.Get(key) }

// Lookup searches currencies first, then indices.
func (s *Snapshot) Lookup(key string) (provider.Quote, provider.Class, bool) {
	if q, ok := s.currencies.Get(key); ok {
		return q, provider.ClassCurrency, true
	}
	if q, ok := s.indices.Get(key); ok {
		return q, provider.ClassIndex, true
	}
	return provider.Quote{}, "", false
}

// Empty reports whether no quote at all was collected.
func (s *Snapshot) Empty() bool { return s.currencies.Len() == 0 && s.indices.Len() == 0 }

type wire struct {
	ID         uuid.UUID       `json:"id"`
	TakenAt    time.Time       `json:"taken_at"`
	MarketOpen bool            `json:"market_open"`
	Currencies provider.Quotes `json:"currencies"`
	Indices    provider.Quotes `json:"indices"`
}

func (s *Snapshot) MarshalJSON() ([]byte, error) {
	return json.Marshal(wire{
		ID:         s.id,
		TakenAt:    s.takenAt,
		MarketOpen: s.marketOpen,
		Currencies: s.currencies,
		Indices:    s.indices,
	})
}

func (s *Snapshot) UnmarshalJSON(b []byte) error {
	var w wire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*s = Snapshot{
		id:         w.ID,
		takenAt:    w.TakenAt,
		currencies: w.Currencies,
		indices:    w.Indices,
		marketOpen: w.MarketOpen,
	}
	return nil
}

// Encode serializes s to indented JSON.
func Encode(s *Snapshot) ([]byte, error) {
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return b, nil
}

// Decode parses the output of Encode (or MarshalJSON).
func Decode(b []byte) (*Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &s, nil
}
