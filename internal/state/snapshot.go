package state

import "fmt"

// Snapshot is an immutable copy of a State. Later changes to the State do
// not show through, and values read from the snapshot are copies.
type Snapshot struct {
	phase string
	data  map[string]any
}

func (s Snapshot) Phase() string { return s.phase }

// Get returns a copy of the value at a dotted path.
func (s Snapshot) Get(path string) (any, bool) {
	v, ok := lookup(s.data, splitPath(path))
	if !ok {
		return nil, false
	}
	return copyValue(v), true
}

// Data returns a copy of the whole nested store.
func (s Snapshot) Data() map[string]any { return copyMap(s.data) }

// Decode converts the value at path into out.
func (s Snapshot) Decode(path string, out any) error {
	v, ok := lookup(s.data, splitPath(path))
	if !ok {
		return &pathError{path: path}
	}
	return decode(copyValue(v), out)
}

type pathError struct{ path string }

func (e *pathError) Error() string { return fmt.Sprintf("state: no value at %q", e.path) }

// copyMap copies nested maps and slices. Other values are copied by
// assignment.
func copyMap(in map[string]any) map[string]any {
	if in == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return copyMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = copyValue(e)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	}
	return v
}
