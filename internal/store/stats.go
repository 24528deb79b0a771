package store

import (
	"context"
	"os"
	"sort"
	"time"
)

// Stats summarizes a backend's contents.
type Stats struct {
	Backend       string       `json:"backend"`
	Path          string       `json:"path,omitempty"`
	SizeBytes     int64        `json:"size_bytes,omitempty"`
	TotalMemories int          `json:"total_memories"`
	LiveMemories  int          `json:"live_memories"`
	Embedded      int          `json:"embedded"`
	Scopes        []ScopeStats `json:"scopes"`
}

// ScopeStats holds per-scope counts. Unscoped records report scope "".
type ScopeStats struct {
	Scope    string `json:"scope"`
	Count    int    `json:"count"`
	Embedded int    `json:"embedded"`
}

// Summarize computes Stats for b as of now. Expired records count toward
// the total but not toward live or per-scope counts.
func Summarize(ctx context.Context, b Backend, now time.Time) (*Stats, error) {
	all, err := b.List(ctx, Filter{})
	if err != nil {
		return nil, err
	}

	st := &Stats{Backend: b.Name(), TotalMemories: len(all)}
	if s, ok := b.(*SQLite); ok {
		st.Path = s.Path()
		if info, err := os.Stat(s.Path()); err == nil {
			st.SizeBytes = info.Size()
		}
	}

	byScope := map[string]*ScopeStats{}
	for _, m := range all {
		if m.Expired(now) {
			continue
		}
		st.LiveMemories++
		sc, ok := byScope[m.Scope]
		if !ok {
			sc = &ScopeStats{Scope: m.Scope}
			byScope[m.Scope] = sc
		}
		sc.Count++
		if m.HasEmbedding() {
			st.Embedded++
			sc.Embedded++
		}
	}
	for _, sc := range byScope {
		st.Scopes = append(st.Scopes, *sc)
	}
	sort.Slice(st.Scopes, func(i, j int) bool {
		if st.Scopes[i].Count != st.Scopes[j].Count {
			return st.Scopes[i].Count > st.Scopes[j].Count
		}
		return st.Scopes[i].Scope < st.Scopes[j].Scope
	})
	return st, nil
}
