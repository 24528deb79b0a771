package render

import (
	"fmt"
	"strings"

	"github.com/rcliao/agent-context/internal/model"
)

func renderText(sections []Section) TextPayload {
	var b strings.Builder
	for _, s := range sections {
		if len(s.Items) == 0 {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		name := s.Type.Name()
		fmt.Fprintf(&b, "<%s>\n", name)
		for _, it := range s.Items {
			for _, line := range strings.Split(itemText(it), "\n") {
				if needsEscape(line) {
					b.WriteByte('\\')
				}
				b.WriteString(line)
				b.WriteByte('\n')
			}
		}
		fmt.Fprintf(&b, "</%s>", name)
	}
	return TextPayload{Text: b.String()}
}

// needsEscape reports whether a body line must be prefixed with a backslash so
// it cannot be read as a tag: tag-shaped lines and lines that already carry
// such a prefix.
func needsEscape(line string) bool {
	if strings.HasPrefix(line, `\`) {
		return needsEscape(line[1:])
	}
	return len(line) >= 2 && line[0] == '<' && line[len(line)-1] == '>'
}

func unescape(line string) string {
	if strings.HasPrefix(line, `\`) && needsEscape(line[1:]) {
		return line[1:]
	}
	return line
}

func itemText(it Item) string {
	if it.IsMessage() {
		return it.Role + ": " + it.Text
	}
	return it.Text
}

// ParsedSection is one tagged block recovered from text output. Body holds
// the section's entries joined by newlines.
type ParsedSection struct {
	Type model.SectionType
	Body string
}

// ParseText recovers the tagged structure of a text rendering. A block
// opens with a line "<name>" and closes with the first later line
// "</name>". Escaped body lines are restored.
func ParseText(text string) ([]ParsedSection, error) {
	if text == "" {
		return nil, nil
	}
	lines := strings.Split(text, "\n")
	var out []ParsedSection
	for i := 0; i < len(lines); i++ {
		line := lines[i]
		if !strings.HasPrefix(line, "<") || !strings.HasSuffix(line, ">") || strings.HasPrefix(line, "</") {
			return nil, fmt.Errorf("line %d: expected opening tag, got %q", i+1, line)
		}
		name := line[1 : len(line)-1]
		closing := "</" + name + ">"
		end := -1
		for j := i + 1; j < len(lines); j++ {
			if lines[j] == closing {
				end = j
				break
			}
		}
		if end < 0 {
			return nil, fmt.Errorf("line %d: section %q is not closed", i+1, name)
		}
		body := make([]string, 0, end-i-1)
		for _, l := range lines[i+1 : end] {
			body = append(body, unescape(l))
		}
		out = append(out, ParsedSection{
			Type: model.NewSectionType(name),
			Body: strings.Join(body, "\n"),
		})
		i = end
	}
	return out, nil
}
