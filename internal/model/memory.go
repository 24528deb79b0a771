// Package model defines the core value types shared by the context engine.
package model

import (
	"reflect"
	"time"
)

// Memory represents a stored memory entry. Keys are unique per store;
// writing an existing key overwrites value, metadata, embedding and timestamp.
type Memory struct {
	ID        string         `json:"id" cbor:"1,keyasint"`
	Key       string         `json:"key" cbor:"2,keyasint"`
	Value     string         `json:"value" cbor:"3,keyasint"`
	Meta      map[string]any `json:"meta,omitempty" cbor:"4,keyasint,omitempty"`
	Embedding []float32      `json:"embedding,omitempty" cbor:"5,keyasint,omitempty"`
	WrittenAt time.Time      `json:"written_at" cbor:"6,keyasint"`
	ExpiresAt *time.Time     `json:"expires_at,omitempty" cbor:"7,keyasint,omitempty"`
	Scope     string         `json:"scope,omitempty" cbor:"8,keyasint,omitempty"`
	Seq       int64          `json:"seq" cbor:"9,keyasint"`
}

// Expired reports whether the entry's TTL has elapsed at now.
func (m Memory) Expired(now time.Time) bool {
	return m.ExpiresAt != nil && !now.Before(*m.ExpiresAt)
}

// HasEmbedding reports whether the entry participates in the vector index.
func (m Memory) HasEmbedding() bool {
	return len(m.Embedding) > 0
}

// Clone returns a copy that shares no mutable state with m.
func (m Memory) Clone() Memory {
	out := m
	if m.Meta != nil {
		out.Meta = make(map[string]any, len(m.Meta))
		for k, v := range m.Meta {
			out.Meta[k] = v
		}
	}
	if m.Embedding != nil {
		out.Embedding = append([]float32(nil), m.Embedding...)
	}
	if m.ExpiresAt != nil {
		t := *m.ExpiresAt
		out.ExpiresAt = &t
	}
	return out
}

// MatchesMeta reports whether every filter key is present in meta with an
// equal scalar value. Numbers compare by value regardless of Go type, since
// JSON-backed stores hand back float64.
func MatchesMeta(meta, filters map[string]any) bool {
	for k, want := range filters {
		got, ok := meta[k]
		if !ok || !ScalarEqual(got, want) {
			return false
		}
	}
	return true
}

// ScalarEqual compares two metadata scalars.
func ScalarEqual(a, b any) bool {
	fa, aNum := Numeric(a)
	fb, bNum := Numeric(b)
	if aNum && bNum {
		return fa == fb
	}
	if aNum != bNum {
		return false
	}
	return reflect.DeepEqual(a, b)
}

// Numeric converts any Go number to float64.
func Numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
