package format

import (
	"regexp"
	"strings"

	"github.com/gomarkdown/markdown"
)

var listItemPattern = regexp.MustCompile(`^\d+\.\s`)

// PreprocessAssistantText normalizes LLM output before it is stored or
// rendered: curly quotes are straightened and lists get the blank line
// markdown requires.
func PreprocessAssistantText(text string) string {
	if text == "" {
		return text
	}

	text = strings.NewReplacer(
		"“", "\"",
		"”", "\"",
		"‘", "'",
		"’", "'",
	).Replace(text)

	return normalizeMarkdownLists(text)
}

// RenderHTML renders a markdown answer to HTML. Called when saving to the
// database, never during streaming.
func RenderHTML(text string) string {
	return string(markdown.ToHTML([]byte(text), nil, nil))
}

// normalizeMarkdownLists ensures list items have a blank line before them.
// Markdown requires one, but LLMs often emit "**Text:**\n- Item" directly.
func normalizeMarkdownLists(text string) string {
	lines := strings.Split(text, "\n")
	var result []string

	for i := 0; i < len(lines); i++ {
		line := lines[i]

		if isListItem(strings.TrimSpace(line)) && i > 0 {
			prev := strings.TrimSpace(lines[i-1])
			if prev != "" && !isListItem(prev) {
				result = append(result, "")
			}
		}
		result = append(result, line)
	}

	return strings.Join(result, "\n")
}

func isListItem(trimmed string) bool {
	return strings.HasPrefix(trimmed, "- ") ||
		strings.HasPrefix(trimmed, "* ") ||
		strings.HasPrefix(trimmed, "+ ") ||
		listItemPattern.MatchString(trimmed)
}
