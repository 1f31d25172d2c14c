package provider

import (
	"bytes"
	"encoding/json"
	"fmt"
	"iter"
)

// Quotes is an insertion-ordered mapping of logical key -> Quote.
// Setting an existing key replaces the value in place and keeps its position.
// The zero value is an empty, ready to use set.
type Quotes struct {
	keys  []string
	byKey map[string]Quote
}

// NewQuotes returns a set holding qs in the given order.
func NewQuotes(qs ...Quote) Quotes {
	var out Quotes
	for _, q := range qs {
		out.Set(q)
	}
	return out
}

// Set stores q under q.Key.
func (s *Quotes) Set(q Quote) {
	if s.byKey == nil {
		s.byKey = make(map[string]Quote)
	}
	if _, ok := s.byKey[q.Key]; !ok {
		s.keys = append(s.keys, q.Key)
	}
	s.byKey[q.Key] = q
}

// Get returns a copy of the quote for key.
func (s Quotes) Get(key string) (Quote, bool) {
	q, ok := s.byKey[key]
	return q.clone(), ok
}

// Has reports whether key is present.
func (s Quotes) Has(key string) bool {
	_, ok := s.byKey[key]
	return ok
}

func (s Quotes) Len() int { return len(s.keys) }

// Keys returns the keys in insertion order.
func (s Quotes) Keys() []string {
	out := make([]string, len(s.keys))
	copy(out, s.keys)
	return out
}

// Values returns the quotes in insertion order.
func (s Quotes) Values() []Quote {
	out := make([]Quote, 0, len(s.keys))
	for _, k := range s.keys {
		out = append(out, s.byKey[k].clone())
	}
	return out
}

// All iterates key/quote pairs in insertion order.
func (s Quotes) All() iter.Seq2[string, Quote] {
	return func(yield func(string, Quote) bool) {
		for _, k := range s.keys {
			if !yield(k, s.byKey[k].clone()) {
				return
			}
		}
	}
}

// Clone returns a copy that shares no storage with s.
func (s Quotes) Clone() Quotes {
	out := Quotes{
		keys:  make([]string, len(s.keys)),
		byKey: make(map[string]Quote, len(s.byKey)),
	}
	copy(out.keys, s.keys)
	for k, v := range s.byKey {
		out.byKey[k] = v.clone()
	}
	return out
}

// MarshalJSON encodes the set as a JSON object whose members follow
// insertion order.
func (s Quotes) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range s.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(s.byKey[k])
		if err != nil {
			return nil, fmt.Errorf("encode quote %s: %w", k, err)
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object keeping member order. The object key
// is authoritative for Quote.Key.
func (s *Quotes) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*s = Quotes{}
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("quotes: expected object, got %v", tok)
	}
	var out Quotes
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("quotes: unexpected key %v", tok)
		}
		var q Quote
		if err := dec.Decode(&q); err != nil {
			return fmt.Errorf("decode quote %s: %w", key, err)
		}
		q.Key = key
		out.Set(q)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*s = out
	return nil
}
