package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is wrapped by backends when a key does not exist.
var ErrNotFound = errors.New("memory not found")

// ConfigError reports a context configuration problem detected at render or
// transition time.
type ConfigError struct {
	Reason string
	Detail string
}

func (e *ConfigError) Error() string {
	if e.Detail == "" {
		return "config: " + e.Reason
	}
	return fmt.Sprintf("config: %s: %s", e.Reason, e.Detail)
}

// TransitionLayer identifies which validation layer rejected a phase change.
type TransitionLayer string

const (
	// LayerState is the State's declared set of valid phase names.
	LayerState TransitionLayer = "state"
	// LayerPhase is the current Phase template's transitions_to set.
	LayerPhase TransitionLayer = "phase"
)

// TransitionError reports a rejected phase advance.
type TransitionError struct {
	Layer   TransitionLayer
	From    string
	To      string
	Allowed []string
	Reason  string
}

func (e *TransitionError) Error() string {
	msg := fmt.Sprintf("transition %q -> %q rejected by %s", e.From, e.To, e.Layer)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if len(e.Allowed) > 0 {
		msg += " (allowed: " + strings.Join(e.Allowed, ", ") + ")"
	}
	return msg
}

// BackendError wraps a durable backend I/O failure.
type BackendError struct {
	Backend string
	Op      string
	Key     string
	Err     error
}

func (e *BackendError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("%s backend: %s %q: %v", e.Backend, e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("%s backend: %s: %v", e.Backend, e.Op, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// BudgetExceededError is returned only by strict budgets; otherwise an
// over-budget render is reported through a flag on the result.
type BudgetExceededError struct {
	Limit int
	Total int
}

func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("budget: required content needs %d tokens, limit is %d", e.Total, e.Limit)
}
