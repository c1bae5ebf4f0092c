package format

import (
	"strings"
	"testing"
)

func TestPreprocessAssistantText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"curly quotes", "“quoted” and ‘single’", `"quoted" and 'single'`},
		{"plain text untouched", "nothing to change here", "nothing to change here"},
		{
			name:  "list gets blank line",
			input: "**Findings:**\n- first\n- second",
			want:  "**Findings:**\n\n- first\n- second",
		},
		{
			name:  "existing blank line preserved",
			input: "Intro.\n\n- item",
			want:  "Intro.\n\n- item",
		},
		{
			name:  "numbered list",
			input: "Steps:\n1. one\n2. two",
			want:  "Steps:\n\n1. one\n2. two",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PreprocessAssistantText(tt.input); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRenderHTML(t *testing.T) {
	html := RenderHTML("# Heading\n\nSome **bold** text.")

	if !strings.Contains(html, "<h1") {
		t.Errorf("missing heading in %q", html)
	}
	if !strings.Contains(html, "<strong>bold</strong>") {
		t.Errorf("missing bold in %q", html)
	}
}

func TestRenderHTMLLists(t *testing.T) {
	html := RenderHTML(PreprocessAssistantText("**Findings:**\n- first\n- second"))

	if !strings.Contains(html, "<ul>") || !strings.Contains(html, "<li>first</li>") {
		t.Errorf("list not rendered as ul/li: %q", html)
	}
}
