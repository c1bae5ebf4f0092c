package retrieval

import (
	"strings"
	"testing"
)

func TestExpandQueryAddsSynonyms(t *testing.T) {
	expanded := ExpandQuery("summary of the meeting note")

	for _, want := range []string{"recap", "standup", "memo"} {
		if !strings.Contains(expanded, want) {
			t.Errorf("expanded query %q missing %q", expanded, want)
		}
	}
	if !strings.HasPrefix(expanded, "summary of the meeting note") {
		t.Errorf("original query must stay first, got %q", expanded)
	}
}

func TestExpandQueryNoMatch(t *testing.T) {
	query := "quarterly revenue for acme corp"
	if got := ExpandQuery(query); got != query {
		t.Errorf("query without known phrases must pass through, got %q", got)
	}
}

func TestExpandQuerySkipsPresentVariants(t *testing.T) {
	expanded := ExpandQuery("recap of the meeting summary")
	if strings.Count(strings.ToLower(expanded), "recap") != 1 {
		t.Errorf("variant already in the query must not repeat: %q", expanded)
	}
}

func TestExpandQueryDeterministic(t *testing.T) {
	first := ExpandQuery("comparison of methods in the document")
	for i := 0; i < 10; i++ {
		if got := ExpandQuery("comparison of methods in the document"); got != first {
			t.Fatalf("expansion not deterministic: %q vs %q", first, got)
		}
	}
}
