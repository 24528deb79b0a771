// Package gemini adapts the Gemini API to provider.Provider.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"

	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/rcliao/agent-context/internal/logging"
	"github.com/rcliao/agent-context/internal/metrics"
	"github.com/rcliao/agent-context/internal/provider"
	"github.com/rcliao/agent-context/internal/render"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-2.5-flash"

// Provider calls GenerateContent with a render.GeminiPayload.
type Provider struct {
	client  *genai.Client
	model   string
	logger  *zap.Logger
	metrics *metrics.Metrics
}

var _ provider.Provider = (*Provider)(nil)

type Option func(*Provider)

func WithModel(model string) Option {
	return func(p *Provider) {
		if model != "" {
			p.model = model
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(p *Provider) { p.logger = logging.OrNop(l) }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Provider) { p.metrics = m }
}

// New creates a client for the Gemini API.
func New(ctx context.Context, apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return NewFromClient(client, opts...), nil
}

// NewFromClient wraps an existing client.
func NewFromClient(client *genai.Client, opts ...Option) *Provider {
	p := &Provider{client: client, model: DefaultModel, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) Format() render.Format { return render.FormatGemini }

// Model is the model name sent with each request.
func (p *Provider) Model() string { return p.model }

func (p *Provider) Generate(ctx context.Context, payload render.Payload) (provider.Response, error) {
	contents, cfg, err := p.request(payload)
	if err != nil {
		return provider.Response{}, err
	}
	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, cfg)
	p.metrics.ProviderCall("generate", err)
	if err != nil {
		return provider.Response{}, fmt.Errorf("gemini: generate: %w", err)
	}
	return toResponse(resp), nil
}

func (p *Provider) Stream(ctx context.Context, payload render.Payload) (provider.Stream, error) {
	contents, cfg, err := p.request(payload)
	if err != nil {
		return nil, err
	}
	p.metrics.ProviderCall("stream", nil)
	return newStream(p.client.Models.GenerateContentStream(ctx, p.model, contents, cfg)), nil
}

func (p *Provider) request(payload render.Payload) ([]*genai.Content, *genai.GenerateContentConfig, error) {
	var gp render.GeminiPayload
	switch v := payload.(type) {
	case render.GeminiPayload:
		gp = v
	case *render.GeminiPayload:
		gp = *v
	default:
		return nil, nil, fmt.Errorf("%w: gemini needs %s, got %s", provider.ErrPayloadFormat, render.FormatGemini, payload.Format())
	}
	contents, cfg, unused, err := toRequest(gp)
	if err != nil {
		return nil, nil, err
	}
	if len(unused) > 0 {
		p.logger.Warn("ignoring unknown generation config keys", zap.Strings("keys", unused))
	}
	return contents, cfg, nil
}

// generationConfig lists the generation_config keys understood here. Keys
// match with or without underscores, so top_p and topP are equivalent.
type generationConfig struct {
	Temperature      *float32 `mapstructure:"temperature"`
	TopP             *float32 `mapstructure:"top_p"`
	TopK             *float32 `mapstructure:"top_k"`
	CandidateCount   int32    `mapstructure:"candidate_count"`
	MaxOutputTokens  int32    `mapstructure:"max_output_tokens"`
	StopSequences    []string `mapstructure:"stop_sequences"`
	PresencePenalty  *float32 `mapstructure:"presence_penalty"`
	FrequencyPenalty *float32 `mapstructure:"frequency_penalty"`
	Seed             *int32   `mapstructure:"seed"`
	ResponseMIMEType string   `mapstructure:"response_mime_type"`
}

func normalizeKey(s string) string {
	return strings.ToLower(strings.ReplaceAll(s, "_", ""))
}

func decodeGenerationConfig(in map[string]any) (generationConfig, []string, error) {
	var gc generationConfig
	if len(in) == 0 {
		return gc, nil, nil
	}
	var md mapstructure.Metadata
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &gc,
		Metadata:         &md,
		WeaklyTypedInput: true,
		MatchName: func(mapKey, fieldName string) bool {
			return normalizeKey(mapKey) == normalizeKey(fieldName)
		},
	})
	if err != nil {
		return gc, nil, err
	}
	if err := dec.Decode(in); err != nil {
		return gc, nil, fmt.Errorf("gemini: generation config: %w", err)
	}
	return gc, md.Unused, nil
}

// toRequest converts a rendered payload into genai request values. It
// also returns generation config keys that were not recognized.
func toRequest(gp render.GeminiPayload) ([]*genai.Content, *genai.GenerateContentConfig, []string, error) {
	contents := make([]*genai.Content, 0, len(gp.Contents))
	for _, c := range gp.Contents {
		contents = append(contents, &genai.Content{Role: c.Role, Parts: toParts(c.Parts)})
	}

	gc, unused, err := decodeGenerationConfig(gp.GenerationConfig)
	if err != nil {
		return nil, nil, nil, err
	}
	cfg := &genai.GenerateContentConfig{
		Temperature:      gc.Temperature,
		TopP:             gc.TopP,
		TopK:             gc.TopK,
		CandidateCount:   gc.CandidateCount,
		MaxOutputTokens:  gc.MaxOutputTokens,
		StopSequences:    gc.StopSequences,
		PresencePenalty:  gc.PresencePenalty,
		FrequencyPenalty: gc.FrequencyPenalty,
		Seed:             gc.Seed,
		ResponseMIMEType: gc.ResponseMIMEType,
	}
	if gp.SystemInstruction != nil {
		cfg.SystemInstruction = &genai.Content{Parts: toParts(gp.SystemInstruction.Parts)}
	}
	return contents, cfg, unused, nil
}

func toParts(parts []render.GeminiPart) []*genai.Part {
	out := make([]*genai.Part, 0, len(parts))
	for _, p := range parts {
		out = append(out, genai.NewPartFromText(p.Text))
	}
	return out
}

func toResponse(resp *genai.GenerateContentResponse) provider.Response {
	if resp == nil {
		return provider.Response{}
	}
	out := provider.Response{Text: resp.Text()}
	for _, fc := range resp.FunctionCalls() {
		out.ToolCalls = append(out.ToolCalls, provider.ToolCall{ID: fc.ID, Name: fc.Name, Args: fc.Args})
	}
	return out
}

// stream pulls from the SDK's iterator one response at a time.
type stream struct {
	next func() (*genai.GenerateContentResponse, error, bool)
	stop func()
	done bool
}

func newStream(seq iter.Seq2[*genai.GenerateContentResponse, error]) *stream {
	next, stop := iter.Pull2(seq)
	return &stream{next: next, stop: stop}
}

func (s *stream) Next() (provider.Chunk, error) {
	for !s.done {
		resp, err, ok := s.next()
		if !ok {
			s.finish()
			break
		}
		if err != nil {
			s.finish()
			return provider.Chunk{}, fmt.Errorf("gemini: stream: %w", err)
		}
		if text := resp.Text(); text != "" {
			return provider.Chunk{Delta: text}, nil
		}
	}
	return provider.Chunk{}, io.EOF
}

func (s *stream) finish() {
	s.done = true
	s.stop()
}

func (s *stream) Close() error {
	if !s.done {
		s.finish()
	}
	return nil
}
