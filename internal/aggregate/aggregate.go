// Package aggregate merges the outputs of several providers for one data
// class into a single set of quotes.
package aggregate

import (
	"quotefeed/internal/provider"
)

// Result is one provider's output for a merge group. Callers pass results
// ordered from most to least trusted.
//
// Fallback marks a last-resort source: it is only consulted when every
// result ranked above it came back empty.
type Result struct {
	Source   string
	Fallback bool
	Skipped  bool // not called: missing credential or closed fallback gate
	Quotes   provider.Quotes
}

// NeedsFallback reports whether a fallback sitting at index i should be
// consulted, i.e. the union of everything contributed above it is empty.
func NeedsFallback(results []Result, i int) bool {
	if i > len(results) {
		i = len(results)
	}
	open := true
	for j := 0; j < i; j++ {
		if contributes(results[j], open) {
			open = false
		}
	}
	return open
}

func contributes(r Result, gateOpen bool) bool {
	if r.Skipped || r.Quotes.Len() == 0 {
		return false
	}
	return !r.Fallback || gateOpen
}

// Merge collapses results into one set of quotes. For every key the value of
// the highest-ranked result that has it wins; values are never blended.
// Skipped results and fallbacks whose gate is closed contribute nothing.
//
// Output order is first appearance, scanning results from the most to the
// least trusted.
func Merge(results []Result) provider.Quotes {
	var out provider.Quotes
	for i, r := range results {
		if !contributes(r, NeedsFallback(results, i)) {
			continue
		}
		for key, q := range r.Quotes.All() {
			if out.Has(key) {
				continue
			}
			out.Set(q)
		}
	}
	return out
}
