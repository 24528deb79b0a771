// Package providertest provides an in-process Provider for tests.
package providertest

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/rcliao/agent-context/internal/provider"
	"github.com/rcliao/agent-context/internal/render"
)

// ErrScriptExhausted is returned once every scripted reply was used.
var ErrScriptExhausted = errors.New("providertest: no scripted replies left")

// Scripted replays canned replies in order. Streams split a reply after
// each space. It is safe for concurrent use.
type Scripted struct {
	// Target is the payload format. Empty means render.FormatOpenAI.
	Target  render.Format
	Replies []provider.Response
	// Err fails every Generate and Stream call.
	Err error
	// FailAfter makes streams return StreamErr after that many chunks.
	FailAfter int
	StreamErr error
	// Gate, when set, blocks Generate until it is closed or ctx is done.
	Gate chan struct{}

	mu       sync.Mutex
	next     int
	payloads []render.Payload
}

var _ provider.Provider = (*Scripted)(nil)

// Text returns a Scripted provider replying with texts.
func Text(texts ...string) *Scripted {
	s := &Scripted{}
	for _, t := range texts {
		s.Replies = append(s.Replies, provider.Response{Text: t})
	}
	return s
}

func (s *Scripted) Format() render.Format {
	if s.Target == "" {
		return render.FormatOpenAI
	}
	return s.Target
}

// Payloads returns every payload received so far.
func (s *Scripted) Payloads() []render.Payload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]render.Payload(nil), s.payloads...)
}

func (s *Scripted) take(p render.Payload) (provider.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payloads = append(s.payloads, p)
	if s.Err != nil {
		return provider.Response{}, s.Err
	}
	if p.Format() != s.Format() {
		return provider.Response{}, provider.ErrPayloadFormat
	}
	if s.next >= len(s.Replies) {
		return provider.Response{}, ErrScriptExhausted
	}
	r := s.Replies[s.next]
	s.next++
	return r, nil
}

func (s *Scripted) Generate(ctx context.Context, p render.Payload) (provider.Response, error) {
	if s.Gate != nil {
		select {
		case <-s.Gate:
		case <-ctx.Done():
			return provider.Response{}, ctx.Err()
		}
	}
	return s.take(p)
}

func (s *Scripted) Stream(ctx context.Context, p render.Payload) (provider.Stream, error) {
	r, err := s.take(p)
	if err != nil {
		return nil, err
	}
	return &stream{
		ctx:       ctx,
		parts:     strings.SplitAfter(r.Text, " "),
		failAfter: s.FailAfter,
		failErr:   s.StreamErr,
	}, nil
}

type stream struct {
	ctx       context.Context
	parts     []string
	pos       int
	failAfter int
	failErr   error
	closed    bool
}

func (st *stream) Next() (provider.Chunk, error) {
	if st.closed {
		return provider.Chunk{}, io.EOF
	}
	if err := st.ctx.Err(); err != nil {
		return provider.Chunk{}, err
	}
	if st.failAfter > 0 && st.pos >= st.failAfter {
		return provider.Chunk{}, st.failErr
	}
	if st.pos >= len(st.parts) {
		return provider.Chunk{}, io.EOF
	}
	d := st.parts[st.pos]
	st.pos++
	return provider.Chunk{Delta: d}, nil
}

func (st *stream) Close() error {
	st.closed = true
	return nil
}
