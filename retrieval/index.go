package retrieval

import (
	"context"
	"fmt"
	"strings"

	"knowledge-agent/web/types"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"
)

// Chunking bounds. Embedding models degrade past ~500 tokens, roughly four
// characters per token, with a safety margin.
const (
	maxChunkChars = 1500
	minChunkChars = 40
)

// Document is one indexable source (a note, an uploaded document, or a saved
// web page).
type Document struct {
	SourceType string
	SourceID   string
	Title      string
	Sections   []Section
}

type Section struct {
	Title   string
	Content string
}

// Index replaces the stored chunks for a document with freshly split and
// embedded ones.
func (r *Retriever) Index(ctx context.Context, doc Document) (int, error) {
	switch doc.SourceType {
	case types.SourceTypeNote, types.SourceTypeDocument, types.SourceTypeWeb:
	default:
		return 0, fmt.Errorf("unknown source type %q", doc.SourceType)
	}

	if _, err := r.store.DB.ExecContext(ctx,
		`DELETE FROM kb_chunks WHERE source_type = $1 AND source_id = $2`,
		doc.SourceType, doc.SourceID); err != nil {
		return 0, fmt.Errorf("clear previous chunks: %w", err)
	}

	indexed := 0
	for _, section := range doc.Sections {
		for _, chunk := range SplitChunks(section.Content) {
			embedding, err := r.llm.Embed(ctx, r.cfg.EmbeddingLLMHost, chunk)
			if err != nil {
				return indexed, fmt.Errorf("embed chunk: %w", err)
			}
			_, err = r.store.DB.ExecContext(ctx, `
				INSERT INTO kb_chunks (id, source_type, source_id, source_title, section_title, content, embedding)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
			`, uuid.New(), doc.SourceType, doc.SourceID, doc.Title, section.Title, chunk, pgvector.NewVector(embedding))
			if err != nil {
				return indexed, fmt.Errorf("insert chunk: %w", err)
			}
			indexed++
		}
	}

	r.logger.Info("Indexed document",
		zap.String("source_type", doc.SourceType),
		zap.String("source_id", doc.SourceID),
		zap.Int("chunks", indexed))
	return indexed, nil
}

// SplitChunks breaks text into embedding-sized pieces on paragraph
// boundaries, merging short paragraphs and splitting oversized ones on
// sentence boundaries.
func SplitChunks(text string) []string {
	var chunks []string
	var current strings.Builder

	flush := func() {
		chunk := strings.TrimSpace(current.String())
		if len(chunk) >= minChunkChars {
			chunks = append(chunks, chunk)
		}
		current.Reset()
	}

	for _, paragraph := range strings.Split(text, "\n\n") {
		paragraph = strings.TrimSpace(paragraph)
		if paragraph == "" {
			continue
		}

		if len(paragraph) > maxChunkChars {
			flush()
			for _, sentence := range splitSentences(paragraph) {
				if current.Len()+len(sentence) > maxChunkChars {
					flush()
				}
				if current.Len() > 0 {
					current.WriteString(" ")
				}
				current.WriteString(sentence)
			}
			flush()
			continue
		}

		if current.Len()+len(paragraph) > maxChunkChars {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(paragraph)
	}
	flush()

	return chunks
}

func splitSentences(text string) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}

	var sentences []string
	var builder strings.Builder

	isBoundary := func(r rune) bool {
		switch r {
		case '.', '!', '?':
			return true
		default:
			return false
		}
	}

	flush := func() {
		if builder.Len() == 0 {
			return
		}
		sentence := strings.TrimSpace(builder.String())
		if sentence != "" {
			sentences = append(sentences, sentence)
		}
		builder.Reset()
	}

	runes := []rune(trimmed)
	for idx, r := range runes {
		builder.WriteRune(r)
		if !isBoundary(r) {
			continue
		}
		// Sentence ends only when followed by whitespace or end of text,
		// so decimals and abbreviations stay intact.
		if idx == len(runes)-1 || runes[idx+1] == ' ' || runes[idx+1] == '\n' {
			flush()
		}
	}
	flush()
	return sentences
}
