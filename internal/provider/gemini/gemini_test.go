package gemini

import (
	"context"
	"errors"
	"io"
	"iter"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/rcliao/agent-context/internal/provider"
	"github.com/rcliao/agent-context/internal/render"
)

func samplePayload() render.GeminiPayload {
	return render.GeminiPayload{
		Contents: []render.GeminiContent{
			{Role: render.GeminiRoleUser, Parts: []render.GeminiPart{{Text: "hi"}}},
			{Role: render.GeminiRoleModel, Parts: []render.GeminiPart{{Text: "hello"}}},
		},
		SystemInstruction: &render.GeminiContent{Parts: []render.GeminiPart{{Text: "be nice"}}},
		GenerationConfig: map[string]any{
			"temperature":       0.5,
			"topK":              40,
			"max_output_tokens": 256,
			"stop_sequences":    []string{"END"},
			"safety":            "off",
		},
	}
}

func TestToRequest(t *testing.T) {
	contents, cfg, unused, err := toRequest(samplePayload())
	require.NoError(t, err)

	require.Len(t, contents, 2)
	assert.Equal(t, "user", contents[0].Role)
	assert.Equal(t, "hi", contents[0].Parts[0].Text)
	assert.Equal(t, "model", contents[1].Role)

	require.NotNil(t, cfg.SystemInstruction)
	assert.Equal(t, "be nice", cfg.SystemInstruction.Parts[0].Text)
	require.NotNil(t, cfg.Temperature)
	assert.InDelta(t, 0.5, *cfg.Temperature, 1e-6)
	require.NotNil(t, cfg.TopK)
	assert.InDelta(t, 40, *cfg.TopK, 1e-6)
	assert.Nil(t, cfg.TopP)
	assert.Equal(t, int32(256), cfg.MaxOutputTokens)
	assert.Equal(t, []string{"END"}, cfg.StopSequences)
	assert.Equal(t, []string{"safety"}, unused)
}

func TestToRequestBadConfig(t *testing.T) {
	p := samplePayload()
	p.GenerationConfig = map[string]any{"temperature": "warm"}
	_, _, _, err := toRequest(p)
	assert.Error(t, err)
}

func TestRequestRejectsOtherFormats(t *testing.T) {
	p := NewFromClient(nil)
	_, _, err := p.request(render.TextPayload{Text: "x"})
	assert.ErrorIs(t, err, provider.ErrPayloadFormat)

	_, _, err = p.request(&render.GeminiPayload{})
	assert.NoError(t, err)
}

func TestProviderDefaults(t *testing.T) {
	p := NewFromClient(nil, WithModel(""))
	assert.Equal(t, DefaultModel, p.Model())
	assert.Equal(t, render.FormatGemini, p.Format())
	assert.Equal(t, "gemini-pro", NewFromClient(nil, WithModel("gemini-pro")).Model())

	_, err := New(context.Background(), "")
	assert.Error(t, err)
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Role: "model", Parts: []*genai.Part{{Text: text}}},
		}},
	}
}

func seqOf(resps []*genai.GenerateContentResponse, tail error) iter.Seq2[*genai.GenerateContentResponse, error] {
	return func(yield func(*genai.GenerateContentResponse, error) bool) {
		for _, r := range resps {
			if !yield(r, nil) {
				return
			}
		}
		if tail != nil {
			yield(nil, tail)
		}
	}
}

func TestStream(t *testing.T) {
	s := newStream(seqOf([]*genai.GenerateContentResponse{
		textResponse("Hel"), textResponse(""), textResponse("lo"),
	}, nil))

	text, err := provider.Drain(s)
	require.NoError(t, err)
	assert.Equal(t, "Hello", text)

	_, err = s.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestStreamError(t *testing.T) {
	boom := errors.New("boom")
	s := newStream(seqOf([]*genai.GenerateContentResponse{textResponse("a")}, boom))

	c, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, "a", c.Delta)

	_, err = s.Next()
	assert.ErrorIs(t, err, boom)
	_, err = s.Next()
	assert.ErrorIs(t, err, io.EOF)
	assert.NoError(t, s.Close())
}

func TestStreamCloseEarly(t *testing.T) {
	s := newStream(seqOf([]*genai.GenerateContentResponse{textResponse("a"), textResponse("b")}, nil))
	_, err := s.Next()
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	_, err = s.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestToResponse(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Role: "model", Parts: []*genai.Part{
				{FunctionCall: &genai.FunctionCall{ID: "1", Name: "search", Args: map[string]any{"q": "go"}}},
			}},
		}},
	}
	got := toResponse(resp)
	assert.Equal(t, []provider.ToolCall{{ID: "1", Name: "search", Args: map[string]any{"q": "go"}}}, got.ToolCalls)
	assert.Equal(t, provider.Response{}, toResponse(nil))
}
