// Package state holds the current phase of a session together with
// arbitrary nested data addressed by dotted paths.
package state

import (
	"errors"
	"sort"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/rcliao/agent-context/internal/model"
)

// State is not safe for concurrent mutation.
type State struct {
	phase string
	valid []string
	data  map[string]any
}

// Option configures a State.
type Option func(*State)

// WithPhases declares the only phase names the state may hold.
func WithPhases(names ...string) Option {
	return func(s *State) {
		seen := map[string]bool{}
		for _, n := range names {
			n = strings.TrimSpace(n)
			if n != "" && !seen[n] {
				seen[n] = true
				s.valid = append(s.valid, n)
			}
		}
	}
}

// WithInitialPhase sets the starting phase.
func WithInitialPhase(name string) Option {
	return func(s *State) { s.phase = strings.TrimSpace(name) }
}

// WithData seeds the nested store with a copy of data.
func WithData(data map[string]any) Option {
	return func(s *State) { s.data = copyMap(data) }
}

// New builds a State. The initial phase must belong to the declared set.
func New(opts ...Option) (*State, error) {
	s := &State{data: map[string]any{}}
	for _, opt := range opts {
		opt(s)
	}
	if s.phase != "" {
		if err := s.Accepts(s.phase); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Phase returns the current phase, or "" when none is set.
func (s *State) Phase() string { return s.phase }

// ValidPhases returns the declared phase set, or nil when phases are
// free-form.
func (s *State) ValidPhases() []string {
	if s.valid == nil {
		return nil
	}
	return append([]string(nil), s.valid...)
}

// Accepts reports whether name may become the current phase.
func (s *State) Accepts(name string) error {
	if s.valid == nil {
		return nil
	}
	for _, v := range s.valid {
		if v == name {
			return nil
		}
	}
	return &model.TransitionError{
		Layer:   model.LayerState,
		From:    s.phase,
		To:      name,
		Allowed: s.ValidPhases(),
		Reason:  "not a declared phase",
	}
}

// SetPhase replaces the current phase. Nothing changes on error.
func (s *State) SetPhase(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("state: empty phase name")
	}
	if err := s.Accepts(name); err != nil {
		return err
	}
	s.phase = name
	return nil
}

func splitPath(path string) []string {
	path = strings.Trim(strings.TrimSpace(path), ".")
	if path == "" {
		return nil
	}
	return strings.Split(path, ".")
}

// Get returns the value at a dotted path such as "user.profile.name".
func (s *State) Get(path string) (any, bool) {
	return lookup(s.data, splitPath(path))
}

func lookup(data map[string]any, keys []string) (any, bool) {
	if len(keys) == 0 {
		return nil, false
	}
	var cur any = data
	for _, k := range keys {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = m[k]; !ok {
			return nil, false
		}
	}
	return cur, true
}

// Set assigns value at path, creating intermediate maps and replacing
// non-map values found along the way.
func (s *State) Set(path string, value any) error {
	keys := splitPath(path)
	if len(keys) == 0 {
		return errors.New("state: path must contain at least one key")
	}
	cur := s.data
	for _, k := range keys[:len(keys)-1] {
		next, ok := cur[k].(map[string]any)
		if !ok {
			next = map[string]any{}
			cur[k] = next
		}
		cur = next
	}
	cur[keys[len(keys)-1]] = value
	return nil
}

// Delete removes the value at path and reports whether it existed.
func (s *State) Delete(path string) bool {
	keys := splitPath(path)
	if len(keys) == 0 {
		return false
	}
	parent := s.data
	if len(keys) > 1 {
		v, ok := lookup(s.data, keys[:len(keys)-1])
		if !ok {
			return false
		}
		if parent, ok = v.(map[string]any); !ok {
			return false
		}
	}
	last := keys[len(keys)-1]
	if _, ok := parent[last]; !ok {
		return false
	}
	delete(parent, last)
	return true
}

// Keys returns the top-level keys in sorted order.
func (s *State) Keys() []string {
	out := make([]string, 0, len(s.data))
	for k := range s.data {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Decode converts the value at path into out, a pointer to a struct, map
// or slice. Struct fields are matched by their json tag, and numeric
// strings convert to numbers.
func (s *State) Decode(path string, out any) error {
	v, ok := s.Get(path)
	if !ok {
		return &pathError{path: path}
	}
	return decode(v, out)
}

func decode(in, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "json",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	return dec.Decode(in)
}

// Snapshot captures the phase and a copy of the data.
func (s *State) Snapshot() Snapshot {
	return Snapshot{phase: s.phase, data: copyMap(s.data)}
}

// Restore replaces phase and data with the snapshot's.
func (s *State) Restore(snap Snapshot) error {
	if snap.phase != "" {
		if err := s.Accepts(snap.phase); err != nil {
			return err
		}
	}
	s.phase = snap.phase
	s.data = copyMap(snap.data)
	return nil
}
