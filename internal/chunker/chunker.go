// Package chunker splits long markdown documents into token-bounded pieces
// for memory ingestion.
package chunker

import (
	"strings"

	"github.com/rcliao/agent-context/internal/tokens"
)

const (
	DefaultTargetTokens = 100
	DefaultMaxTokens    = 150
)

// Options configures chunking. Sizes are measured with Counter.
type Options struct {
	TargetTokens int
	MaxTokens    int
	Counter      tokens.Counter
}

// DefaultOptions returns heuristic-counted defaults.
func DefaultOptions() Options {
	return Options{
		TargetTokens: DefaultTargetTokens,
		MaxTokens:    DefaultMaxTokens,
		Counter:      tokens.NewHeuristic(),
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.TargetTokens <= 0 {
		o.TargetTokens = d.TargetTokens
	}
	if o.MaxTokens < o.TargetTokens {
		o.MaxTokens = o.TargetTokens + o.TargetTokens/2
	}
	if o.Counter == nil {
		o.Counter = d.Counter
	}
	return o
}

// Piece is one chunk with its 1-based line span in the source.
type Piece struct {
	Text      string
	StartLine int
	EndLine   int
	Tokens    int
}

// Split breaks text into pieces. Text within MaxTokens is returned whole.
func Split(text string, opts Options) []Piece {
	opts = opts.withDefaults()

	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if n := opts.Counter.Count(text); n <= opts.MaxTokens {
		return []Piece{{Text: text, StartLine: 1, EndLine: strings.Count(text, "\n") + 1, Tokens: n}}
	}
	return pack(blocks(text), opts)
}

type block struct {
	text  string
	start int
	end   int
}

// blocks splits on heading lines and runs of blank lines.
func blocks(text string) []block {
	lines := strings.Split(text, "\n")
	var out []block
	var cur []string
	start := 1

	flush := func(end int) {
		if len(cur) == 0 {
			return
		}
		if t := strings.TrimSpace(strings.Join(cur, "\n")); t != "" {
			out = append(out, block{text: t, start: start, end: end})
		}
		cur = nil
		start = end + 1
	}

	prevBlank := false
	for i, line := range lines {
		n := i + 1
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") && len(cur) > 0 {
			flush(n - 1)
		}
		if trimmed == "" {
			if prevBlank && len(cur) > 0 {
				flush(n - 1)
			}
			prevBlank = true
			cur = append(cur, line)
			continue
		}
		prevBlank = false
		cur = append(cur, line)
	}
	flush(len(lines))
	return out
}

// pack greedily merges blocks up to TargetTokens and hard-splits any block
// that alone exceeds MaxTokens.
func pack(bs []block, opts Options) []Piece {
	var out []Piece
	var acc block

	emit := func() {
		t := strings.TrimSpace(acc.text)
		if t == "" {
			return
		}
		n := opts.Counter.Count(t)
		if n > opts.MaxTokens {
			out = append(out, splitLines(t, acc.start, opts)...)
		} else {
			out = append(out, Piece{Text: t, StartLine: acc.start, EndLine: acc.start + strings.Count(t, "\n"), Tokens: n})
		}
		acc = block{}
	}

	for _, b := range bs {
		if acc.text == "" {
			acc = b
			continue
		}
		merged := acc.text + "\n\n" + b.text
		if opts.Counter.Count(merged) <= opts.TargetTokens {
			acc.text = merged
			acc.end = b.end
			continue
		}
		emit()
		acc = b
	}
	emit()
	return out
}

// splitLines cuts an oversized block on line boundaries.
func splitLines(text string, firstLine int, opts Options) []Piece {
	lines := strings.Split(text, "\n")
	var out []Piece
	var cur []string
	curStart := firstLine

	flush := func(end int) {
		if t := strings.TrimSpace(strings.Join(cur, "\n")); t != "" {
			out = append(out, Piece{Text: t, StartLine: curStart, EndLine: end, Tokens: opts.Counter.Count(t)})
		}
	}

	for i, line := range lines {
		if len(cur) > 0 && opts.Counter.Count(strings.Join(append(cur, line), "\n")) > opts.TargetTokens {
			flush(firstLine + i - 1)
			cur = nil
			curStart = firstLine + i
		}
		cur = append(cur, line)
	}
	if len(cur) > 0 {
		flush(firstLine + len(lines) - 1)
	}
	return out
}
