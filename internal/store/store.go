// Package store provides the durable capability behind the memory facade:
// put, get, delete and list-by-filter over model.Memory records.
package store

import (
	"context"
	"fmt"
	"math/rand"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/rcliao/agent-context/internal/model"
)

// Filter narrows List results. Zero values match everything.
type Filter struct {
	Meta   map[string]any
	Scope  string
	Prefix string
}

// Match reports whether m satisfies f.
func (f Filter) Match(m model.Memory) bool {
	if f.Scope != "" && m.Scope != f.Scope {
		return false
	}
	if f.Prefix != "" && !strings.HasPrefix(m.Key, f.Prefix) {
		return false
	}
	return model.MatchesMeta(m.Meta, f.Meta)
}

// Backend is the storage capability the memory facade depends on.
//
// Put upserts by key. A new key receives a fresh ID and the next sequence
// number; overwriting an existing key keeps both, so insertion order is
// stable across updates. Get and Delete wrap model.ErrNotFound for missing
// keys. List returns records ordered by Seq ascending. I/O failures are
// reported as *model.BackendError.
type Backend interface {
	Name() string
	Put(ctx context.Context, m model.Memory) (model.Memory, error)
	Get(ctx context.Context, key string) (model.Memory, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, f Filter) ([]model.Memory, error)
	Close() error
}

// Open returns the backend named by kind. target is a file path for
// "sqlite", a directory for "file", and an address for "redis".
func Open(kind, target string) (Backend, error) {
	switch strings.ToLower(kind) {
	case "", "sqlite":
		return NewSQLite(target)
	case "file":
		return NewFile(target)
	case "redis":
		return NewRedis(target), nil
	case "memory":
		return NewMemory(), nil
	}
	return nil, fmt.Errorf("unknown backend %q (use sqlite, file, redis or memory)", kind)
}

func notFound(key string) error {
	return fmt.Errorf("%w: %s", model.ErrNotFound, key)
}

func backendErr(backend, op, key string, err error) error {
	return &model.BackendError{Backend: backend, Op: op, Key: key, Err: err}
}

type idSource struct {
	mu      sync.Mutex
	entropy *rand.Rand
}

func newIDSource() *idSource {
	return &idSource{entropy: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

func (s *idSource) next() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

// stamp fills fields the caller may leave blank.
func stamp(m model.Memory) model.Memory {
	if m.WrittenAt.IsZero() {
		m.WrittenAt = time.Now().UTC()
	}
	return m
}

var ttlRegex = regexp.MustCompile(`^(\d+)([dhms])$`)

// ParseTTL parses a TTL string like "7d", "24h", "30m" into a time.Duration.
func ParseTTL(s string) (time.Duration, error) {
	m := ttlRegex.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("invalid format %q (use e.g. 7d, 24h, 30m, 60s)", s)
	}
	n, _ := strconv.Atoi(m[1])
	switch m[2] {
	case "d":
		return time.Duration(n) * 24 * time.Hour, nil
	case "h":
		return time.Duration(n) * time.Hour, nil
	case "m":
		return time.Duration(n) * time.Minute, nil
	case "s":
		return time.Duration(n) * time.Second, nil
	}
	return 0, fmt.Errorf("unknown unit %q", m[2])
}
