package prompt

import (
	"fmt"
	"strings"
	"text/template"
)

// funcs are available to every prompt template.
var funcs = template.FuncMap{
	"escapeLLM":     escapeLLM,
	"truncateWords": truncateWords,
	"upperSnake":    upperSnake,
	"fewShots":      fewShots,
	"join":          join,
}

// escapeLLM quotes double quotes and newlines so a value can sit inside a
// quoted string in the prompt.
func escapeLLM(v any) string {
	s := fmt.Sprint(v)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return strings.ReplaceAll(s, "\n", `\n`)
}

// truncateWords keeps the first n words, appending "..." when any were cut.
func truncateWords(n int, v any) string {
	s := fmt.Sprint(v)
	words := strings.Fields(s)
	if len(words) <= n {
		return s
	}
	return strings.Join(words[:n], " ") + "..."
}

func upperSnake(v any) string {
	return strings.ReplaceAll(strings.ToUpper(fmt.Sprint(v)), " ", "_")
}

// fewShots formats a list of input/output maps as numbered examples.
func fewShots(examples []any) string {
	var b strings.Builder
	for i, ex := range examples {
		m, _ := ex.(map[string]any)
		fmt.Fprintf(&b, "Example %d:\n", i+1)
		fmt.Fprintf(&b, "Input: %v\n", valueOr(m["input"]))
		fmt.Fprintf(&b, "Output: %v\n", valueOr(m["output"]))
		if r := valueOr(m["reasoning"]); r != "" {
			fmt.Fprintf(&b, "Reasoning: %v\n", r)
		}
		b.WriteByte('\n')
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func join(sep string, items []any) string {
	parts := make([]string, len(items))
	for i, it := range items {
		parts[i] = fmt.Sprint(it)
	}
	return strings.Join(parts, sep)
}

func valueOr(v any) any {
	if v == nil {
		return ""
	}
	return v
}
