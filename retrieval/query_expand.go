package retrieval

import (
	"sort"
	"strings"
)

// querySynonyms maps common note-taking and research phrasings to their
// variants so a query still matches chunks that use different wording.
// Phrases should be lowercase.
var querySynonyms = map[string][]string{
	// ============================================================================
	// NOTES & WRITING
	// ============================================================================
	"note":      {"notes", "memo", "jotting", "written down", "noted"},
	"notebook":  {"journal", "workspace", "collection"},
	"summary":   {"summarize", "overview", "tl;dr", "recap", "key points"},
	"outline":   {"structure", "skeleton", "table of contents", "headings"},
	"draft":     {"work in progress", "wip", "unfinished", "rough version"},
	"todo":      {"to-do", "task", "action item", "checklist", "follow up"},
	"deadline":  {"due date", "due by", "timeline", "schedule"},
	"meeting":   {"sync", "standup", "call", "discussion", "1:1"},
	"decision":  {"agreed", "conclusion", "resolved", "settled on"},
	"question":  {"open question", "unclear", "tbd", "to be determined"},
	"idea":      {"brainstorm", "concept", "thought", "proposal"},
	"reference": {"citation", "source", "link", "bibliography"},

	// ============================================================================
	// DOCUMENTS & FILES
	// ============================================================================
	"document": {"doc", "file", "pdf", "attachment", "paper"},
	"upload":   {"uploaded", "imported", "added file"},
	"section":  {"chapter", "heading", "part", "paragraph"},
	"table":    {"spreadsheet", "grid", "csv", "data table"},
	"figure":   {"chart", "diagram", "graph", "plot", "image"},

	// ============================================================================
	// RESEARCH & ANALYSIS
	// ============================================================================
	"finding":    {"result", "outcome", "observation", "discovery"},
	"evidence":   {"support", "data", "proof", "backing"},
	"comparison": {"versus", "vs", "compared to", "difference between", "contrast"},
	"definition": {"meaning", "what is", "explanation", "glossary"},
	"example":    {"instance", "case", "sample", "illustration"},
	"method":     {"approach", "procedure", "process", "technique", "how to"},
	"cause":      {"reason", "why", "because", "due to", "driver"},
	"trend":      {"pattern", "over time", "trajectory", "change"},
}

// ExpandQuery appends synonym variants for recognized phrases to the query.
// Variants already present in the query are not repeated.
func ExpandQuery(query string) string {
	lowerQuery := strings.ToLower(query)

	var additions []string
	seen := make(map[string]bool)
	for phrase, synonyms := range querySynonyms {
		if !strings.Contains(lowerQuery, phrase) {
			continue
		}
		for _, syn := range synonyms {
			lowerSyn := strings.ToLower(syn)
			if strings.Contains(lowerQuery, lowerSyn) || seen[lowerSyn] {
				continue
			}
			seen[lowerSyn] = true
			additions = append(additions, syn)
		}
	}

	if len(additions) == 0 {
		return query
	}
	// Map iteration order is random; sort so expansion is deterministic.
	sort.Strings(additions)
	return query + " " + strings.Join(additions, " ")
}
