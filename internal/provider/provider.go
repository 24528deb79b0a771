// Package provider defines the boundary to model inference backends.
package provider

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/rcliao/agent-context/internal/render"
)

// ToolCall is a function invocation requested by the model.
type ToolCall struct {
	ID   string         `json:"id,omitempty"`
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// Response is a complete, non-streamed reply.
type Response struct {
	Text      string     `json:"text"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// Chunk is one increment of a streamed reply.
type Chunk struct {
	Delta string
}

// Stream yields chunks until Next returns io.EOF. A stream cannot be
// restarted. Close releases it early and is safe to call more than once.
type Stream interface {
	Next() (Chunk, error)
	Close() error
}

// Provider performs inference on a rendered payload.
type Provider interface {
	// Format is the payload shape Generate and Stream expect.
	Format() render.Format
	Generate(ctx context.Context, payload render.Payload) (Response, error)
	Stream(ctx context.Context, payload render.Payload) (Stream, error)
}

// ErrPayloadFormat is returned when a payload does not match Format.
var ErrPayloadFormat = errors.New("provider: payload format mismatch")

// Drain reads s to the end and returns the concatenated text. s is closed.
func Drain(s Stream) (string, error) {
	defer s.Close()
	var b strings.Builder
	for {
		c, err := s.Next()
		if errors.Is(err, io.EOF) {
			return b.String(), nil
		}
		if err != nil {
			return b.String(), err
		}
		b.WriteString(c.Delta)
	}
}

// SliceStream streams fixed deltas. It is useful for adapters whose
// backend returns a full reply, and in tests.
func SliceStream(deltas ...string) Stream {
	return &sliceStream{deltas: deltas}
}

type sliceStream struct {
	deltas []string
	pos    int
	closed bool
}

func (s *sliceStream) Next() (Chunk, error) {
	if s.closed || s.pos >= len(s.deltas) {
		return Chunk{}, io.EOF
	}
	d := s.deltas[s.pos]
	s.pos++
	return Chunk{Delta: d}, nil
}

func (s *sliceStream) Close() error {
	s.closed = true
	return nil
}
