package render

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/agent-context/internal/model"
)

func texts(ss ...string) []Item {
	out := make([]Item, len(ss))
	for i, s := range ss {
		out[i] = Item{Text: s}
	}
	return out
}

func sampleSections() []Section {
	return []Section{
		{Type: model.System, Items: texts("You are helpful.")},
		{Type: model.Instructions, Items: texts("Answer briefly.", "Cite sources.")},
		{Type: model.Messages, Items: []Item{
			{Role: model.RoleUser, Text: "Hi"},
			{Role: model.RoleAssistant, Text: "Hello!"},
			{Role: model.RoleUser, Text: "What is Go?"},
		}},
		{Type: model.Tools, Items: texts("search")},
	}
}

func TestParseFormat(t *testing.T) {
	cases := map[string]Format{
		"":          FormatText,
		"TEXT":      FormatText,
		" openai ":  FormatOpenAI,
		"chat":      FormatOpenAI,
		"anthropic": FormatAnthropic,
		"Gemini":    FormatGemini,
	}
	for in, want := range cases {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseFormat("xml")
	assert.Error(t, err)

	_, err = Render(Format("xml"), nil, Config{})
	assert.Error(t, err)
}

func TestRenderText(t *testing.T) {
	p, err := Render(FormatText, sampleSections(), Config{})
	require.NoError(t, err)
	want := strings.Join([]string{
		"<system>",
		"You are helpful.",
		"</system>",
		"<instructions>",
		"Answer briefly.",
		"Cite sources.",
		"</instructions>",
		"<messages>",
		"user: Hi",
		"assistant: Hello!",
		"user: What is Go?",
		"</messages>",
		"<tools>",
		"search",
		"</tools>",
	}, "\n")
	if diff := cmp.Diff(want, p.(TextPayload).Text); diff != "" {
		t.Errorf("text mismatch (-want +got):\n%s", diff)
	}
}

func TestTextRoundTrip(t *testing.T) {
	custom := model.NewSectionType("notes")
	sections := []Section{
		{Type: custom, Items: texts("first line\nsecond line", "another")},
		{Type: model.System, Items: texts("sys")},
		{Type: model.NewSectionType("empty")},
		{Type: model.Tools, Items: texts("")},
	}
	p, err := Render(FormatText, sections, Config{})
	require.NoError(t, err)

	parsed, err := ParseText(p.(TextPayload).Text)
	require.NoError(t, err)
	want := []ParsedSection{
		{Type: custom, Body: "first line\nsecond line\nanother"},
		{Type: model.System, Body: "sys"},
		{Type: model.Tools, Body: ""},
	}
	if diff := cmp.Diff(want, parsed, cmp.AllowUnexported(model.SectionType{})); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestTextRoundTripTagShapedContent(t *testing.T) {
	notes := model.NewSectionType("notes")
	bodies := []string{
		"see the </notes>\n</notes>\ntrailer",
		"<notes>",
		`\</notes>`,
		`\\<system>`,
		`\plain`,
		"<>",
	}
	p, err := Render(FormatText, []Section{{Type: notes, Items: texts(bodies...)}}, Config{})
	require.NoError(t, err)

	parsed, err := ParseText(p.(TextPayload).Text)
	require.NoError(t, err)
	require.Len(t, parsed, 1)
	assert.Equal(t, notes, parsed[0].Type)
	assert.Equal(t, strings.Join(bodies, "\n"), parsed[0].Body)
}

func TestParseTextErrors(t *testing.T) {
	_, err := ParseText("<a>\nbody")
	assert.ErrorContains(t, err, "not closed")
	_, err = ParseText("stray\n<a>\n</a>")
	assert.ErrorContains(t, err, "expected opening tag")

	none, err := ParseText("")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestRenderIsDeterministic(t *testing.T) {
	cfg := Config{GenerationConfig: map[string]any{"temperature": 0.2, "top_p": 0.9}}
	for _, f := range Formats() {
		a, err := Render(f, sampleSections(), cfg)
		require.NoError(t, err)
		b, err := Render(f, sampleSections(), cfg)
		require.NoError(t, err)
		ja, err := json.Marshal(a)
		require.NoError(t, err)
		jb, err := json.Marshal(b)
		require.NoError(t, err)
		assert.Equal(t, string(ja), string(jb), f)
		assert.Equal(t, f, a.Format())
	}
}

func TestRenderMessages(t *testing.T) {
	p, err := Render(FormatOpenAI, sampleSections(), Config{})
	require.NoError(t, err)
	want := Messages{
		{Role: "system", Content: "You are helpful.\n\n[instructions]\nAnswer briefly.\nCite sources.\n\n[tools]\nsearch"},
		{Role: "user", Content: "Hi"},
		{Role: "assistant", Content: "Hello!"},
		{Role: "user", Content: "What is Go?"},
	}
	if diff := cmp.Diff(want, p); diff != "" {
		t.Errorf("messages mismatch (-want +got):\n%s", diff)
	}
}

func TestRenderMessagesWithoutSystem(t *testing.T) {
	p, err := Render(FormatOpenAI, []Section{{Type: model.Messages, Items: []Item{{Role: "user", Text: "x"}}}}, Config{})
	require.NoError(t, err)
	assert.Equal(t, Messages{{Role: "user", Content: "x"}}, p)
}

func TestRenderAnthropic(t *testing.T) {
	sections := append(sampleSections(), Section{
		Type:  model.Messages,
		Items: []Item{{Role: model.RoleSystem, Text: "Late system note."}},
	})
	p, err := Render(FormatAnthropic, sections, Config{})
	require.NoError(t, err)
	got := p.(AnthropicPayload)

	assert.Equal(t, "You are helpful.\n\n[instructions]\nAnswer briefly.\nCite sources.\n\n[tools]\nsearch\n\nLate system note.", got.System)
	for _, m := range got.Messages {
		assert.NotEqual(t, model.RoleSystem, m.Role)
	}
	assert.Len(t, got.Messages, 3)

	raw, err := json.Marshal(got)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"system":"You are helpful.`)
}

func TestRenderGemini(t *testing.T) {
	cfg := Config{
		GenerationConfig: map[string]any{"temperature": 0.2, "max_output_tokens": 256},
		Override:         map[string]any{"temperature": 0.9},
	}
	p, err := Render(FormatGemini, sampleSections(), cfg)
	require.NoError(t, err)
	got := p.(GeminiPayload)

	want := GeminiPayload{
		Contents: []GeminiContent{
			{Role: "user", Parts: []GeminiPart{{Text: "Hi"}}},
			{Role: "model", Parts: []GeminiPart{{Text: "Hello!"}}},
			{Role: "user", Parts: []GeminiPart{{Text: "What is Go?"}}},
		},
		SystemInstruction: &GeminiContent{Parts: []GeminiPart{{
			Text: "You are helpful.\n\n[instructions]\nAnswer briefly.\nCite sources.\n\n[tools]\nsearch",
		}}},
		GenerationConfig: map[string]any{"temperature": 0.9, "max_output_tokens": 256},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("gemini mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, want.SystemInstruction.Parts[0].Text, got.SystemText())

	// The caller's maps are not modified.
	assert.Equal(t, 0.2, cfg.GenerationConfig["temperature"])
}

func TestRenderGeminiWithoutConfig(t *testing.T) {
	p, err := Render(FormatGemini, []Section{{Type: model.Messages, Items: []Item{{Role: "user", Text: "x"}}}}, Config{})
	require.NoError(t, err)
	got := p.(GeminiPayload)
	assert.Nil(t, got.GenerationConfig)
	assert.Nil(t, got.SystemInstruction)
	assert.Equal(t, "", got.SystemText())
}

func TestTextPayloadJSON(t *testing.T) {
	raw, err := json.Marshal(TextPayload{Text: "<a>\nb\n</a>"})
	require.NoError(t, err)
	var back string
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, "<a>\nb\n</a>", back)
}
