// Package session drives a provider from a compose.Context, committing
// each exchange back into the context as whole messages.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/rcliao/agent-context/internal/compose"
	"github.com/rcliao/agent-context/internal/logging"
	"github.com/rcliao/agent-context/internal/phase"
	"github.com/rcliao/agent-context/internal/provider"
	"github.com/rcliao/agent-context/internal/render"
)

// ChatSession serializes access to its Context. Provider calls made by
// SendAsync and Stream run without holding the session lock.
type ChatSession struct {
	mu         sync.Mutex
	cx         *compose.Context
	provider   provider.Provider
	renderOpts []compose.RenderOption
	logger     *zap.Logger
}

type Option func(*ChatSession)

// WithRenderOptions applies opts to every render.
func WithRenderOptions(opts ...compose.RenderOption) Option {
	return func(s *ChatSession) { s.renderOpts = append(s.renderOpts, opts...) }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *ChatSession) { s.logger = logging.OrNop(l) }
}

func New(cx *compose.Context, p provider.Provider, opts ...Option) *ChatSession {
	s := &ChatSession{cx: cx, provider: p, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Context returns the underlying context. Callers must not mutate it while
// a Send, Stream or SendAsync is in flight.
func (s *ChatSession) Context() *compose.Context { return s.cx }

// prepare appends the user message and renders for the provider. Callers
// hold s.mu.
func (s *ChatSession) prepare(ctx context.Context, message string) (render.Payload, string, error) {
	s.cx.AddUserMessage(message)
	res, err := s.cx.Render(ctx, s.provider.Format(), s.renderOpts...)
	if err != nil {
		return nil, "", fmt.Errorf("session: render: %w", err)
	}
	return res.Payload, res.Phase, nil
}

func (s *ChatSession) commit(text string) {
	if text == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cx.AddResponse(text, "")
}

// Send adds message, calls the provider and commits the reply.
func (s *ChatSession) Send(ctx context.Context, message string) (provider.Response, error) {
	s.mu.Lock()
	payload, ph, err := s.prepare(ctx, message)
	s.mu.Unlock()
	if err != nil {
		return provider.Response{}, err
	}
	resp, err := s.provider.Generate(ctx, payload)
	if err != nil {
		return provider.Response{}, fmt.Errorf("session: generate (phase %q): %w", ph, err)
	}
	s.commit(resp.Text)
	s.logger.Debug("reply committed", zap.String("phase", ph), zap.Int("tool_calls", len(resp.ToolCalls)))
	return resp, nil
}

// Pending is an in-flight SendAsync call.
type Pending struct {
	s     *ChatSession
	phase string
	done  chan struct{}
	resp  provider.Response
	err   error
	once  sync.Once
}

// SendAsync renders on the calling goroutine and runs the provider call in
// the background. The reply is committed by Wait.
func (s *ChatSession) SendAsync(ctx context.Context, message string) (*Pending, error) {
	s.mu.Lock()
	payload, ph, err := s.prepare(ctx, message)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	p := &Pending{s: s, phase: ph, done: make(chan struct{})}
	go func() {
		defer close(p.done)
		p.resp, p.err = s.provider.Generate(ctx, payload)
	}()
	return p, nil
}

// Done is closed when the provider call returns.
func (p *Pending) Done() <-chan struct{} { return p.done }

// Wait blocks for the reply and commits it once.
func (p *Pending) Wait() (provider.Response, error) {
	<-p.done
	if p.err != nil {
		return provider.Response{}, fmt.Errorf("session: generate (phase %q): %w", p.phase, p.err)
	}
	p.once.Do(func() { p.s.commit(p.resp.Text) })
	return p.resp, nil
}

// Reply is a streamed response. The accumulated text is committed once
// when the stream ends cleanly. An error, cancellation or early Close
// discards it.
type Reply struct {
	s      *ChatSession
	phase  string
	stream provider.Stream
	buf    strings.Builder
	done   bool
}

// Stream adds message and opens a provider stream.
func (s *ChatSession) Stream(ctx context.Context, message string) (*Reply, error) {
	s.mu.Lock()
	payload, ph, err := s.prepare(ctx, message)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	st, err := s.provider.Stream(ctx, payload)
	if err != nil {
		return nil, fmt.Errorf("session: stream (phase %q): %w", ph, err)
	}
	return &Reply{s: s, phase: ph, stream: st}, nil
}

// Next returns the next chunk, or io.EOF once the reply is committed.
func (r *Reply) Next() (provider.Chunk, error) {
	if r.done {
		return provider.Chunk{}, io.EOF
	}
	c, err := r.stream.Next()
	if errors.Is(err, io.EOF) {
		r.done = true
		r.stream.Close()
		r.s.commit(r.buf.String())
		return provider.Chunk{}, io.EOF
	}
	if err != nil {
		r.discard()
		return provider.Chunk{}, fmt.Errorf("session: stream (phase %q): %w", r.phase, err)
	}
	r.buf.WriteString(c.Delta)
	return c, nil
}

// Buffer is the text received so far.
func (r *Reply) Buffer() string { return r.buf.String() }

func (r *Reply) discard() {
	r.done = true
	r.buf.Reset()
	r.stream.Close()
	r.s.logger.Debug("streamed reply discarded", zap.String("phase", r.phase))
}

// Close stops the stream. An unfinished reply is discarded.
func (r *Reply) Close() error {
	if r.done {
		return nil
	}
	r.done = true
	r.buf.Reset()
	return r.stream.Close()
}

// IsPhaseComplete reports whether the current phase has no legal next
// phase: it declares no transitions and the context treats that as
// terminal.
func (s *ChatSession) IsPhaseComplete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	name := s.cx.CurrentPhase()
	if name == "" {
		return false
	}
	p, ok := s.cx.Phase(name)
	if !ok {
		return false
	}
	return len(p.TransitionsTo) == 0 && s.cx.TransitionPolicy() == phase.Terminal
}
