package memory

// Scratchpad is an ephemeral key-value area scoped to one session. Writes
// replace any prior value; reads report absence explicitly.
type Scratchpad struct {
	data  map[string]any
	order []string
}

// NewScratchpad returns an empty scratchpad.
func NewScratchpad() *Scratchpad {
	return &Scratchpad{data: make(map[string]any)}
}

// Write stores value under key.
func (s *Scratchpad) Write(key string, value any) {
	if _, ok := s.data[key]; !ok {
		s.order = append(s.order, key)
	}
	s.data[key] = value
}

// Read returns the value for key and whether it was present. A stored nil
// is reported as present.
func (s *Scratchpad) Read(key string) (any, bool) {
	v, ok := s.data[key]
	return v, ok
}

// Delete removes key if it exists.
func (s *Scratchpad) Delete(key string) {
	if _, ok := s.data[key]; !ok {
		return
	}
	delete(s.data, key)
	for i, k := range s.order {
		if k == key {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Clear removes every entry.
func (s *Scratchpad) Clear() {
	s.data = make(map[string]any)
	s.order = nil
}

// Keys returns keys in first-write order.
func (s *Scratchpad) Keys() []string {
	return append([]string(nil), s.order...)
}

func (s *Scratchpad) Len() int { return len(s.data) }

func (s *Scratchpad) clone(keys map[string]bool) *Scratchpad {
	out := NewScratchpad()
	for _, k := range s.order {
		if keys == nil || keys[k] {
			out.Write(k, s.data[k])
		}
	}
	return out
}
