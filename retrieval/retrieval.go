package retrieval

import (
	"context"
	"fmt"
	"strings"

	"knowledge-agent/config"
	"knowledge-agent/database"
	"knowledge-agent/llmclient"
	"knowledge-agent/web/types"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"
)

// Hit is one retrieval result: the citation handed to the client plus the
// chunk text used for context assembly.
type Hit struct {
	Citation types.SourceCitation
	Content  string
}

// Retriever performs nearest-neighbour search over the knowledge base.
type Retriever struct {
	cfg    *config.Config
	store  *database.PostgresStore
	llm    *llmclient.Client
	logger *zap.Logger
}

func New(cfg *config.Config, store *database.PostgresStore, llm *llmclient.Client, logger *zap.Logger) (*Retriever, error) {
	if store == nil {
		return nil, fmt.Errorf("postgres store is required for retrieval")
	}
	return &Retriever{
		cfg:    cfg,
		store:  store,
		llm:    llm,
		logger: logger,
	}, nil
}

// Search embeds the (expanded) query and returns the closest chunks from the
// allowed sources, ordered by distance. Citation ordinals are assigned
// 1-based in result order; chunk text inline references like [1] align with
// that ordering.
func (r *Retriever) Search(ctx context.Context, query, sourceFilter string, includeNotes bool, nResults int) ([]Hit, error) {
	if nResults <= 0 {
		return nil, nil
	}

	expanded := ExpandQuery(query)
	embedding, err := r.llm.Embed(ctx, r.cfg.EmbeddingLLMHost, expanded)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	sourceTypes := allowedSourceTypes(sourceFilter, includeNotes)
	if len(sourceTypes) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(sourceTypes))
	args := []interface{}{pgvector.NewVector(embedding)}
	for i, st := range sourceTypes {
		placeholders[i] = fmt.Sprintf("$%d", i+2)
		args = append(args, st)
	}
	args = append(args, nResults)

	query = fmt.Sprintf(`
		SELECT id, source_type, source_id, source_title, section_title, content,
		       embedding <=> $1 AS distance
		FROM kb_chunks
		WHERE source_type IN (%s)
		ORDER BY embedding <=> $1
		LIMIT $%d
	`, strings.Join(placeholders, ", "), len(sourceTypes)+2)

	rows, err := r.store.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query kb_chunks: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var id uuid.UUID
		var hit Hit
		if err := rows.Scan(&id, &hit.Citation.SourceType, &hit.Citation.SourceID,
			&hit.Citation.SourceTitle, &hit.Citation.SectionTitle, &hit.Content,
			&hit.Citation.Distance); err != nil {
			return nil, err
		}
		if r.cfg.MaxDistance > 0 && hit.Citation.Distance > r.cfg.MaxDistance {
			continue
		}
		hit.Citation.ChunkID = id.String()
		hit.Citation.Index = len(hits) + 1
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	r.logger.Debug("Knowledge-base search finished",
		zap.String("filter", sourceFilter),
		zap.Bool("include_notes", includeNotes),
		zap.Int("hits", len(hits)))
	return hits, nil
}

// Citations strips the chunk text off a hit list.
func Citations(hits []Hit) []types.SourceCitation {
	citations := make([]types.SourceCitation, len(hits))
	for i, hit := range hits {
		citations[i] = hit.Citation
	}
	return citations
}

// allowedSourceTypes maps the request's source filter onto chunk source
// types. Notes are opt-in regardless of the filter.
func allowedSourceTypes(sourceFilter string, includeNotes bool) []string {
	var sourceTypes []string
	switch sourceFilter {
	case types.SourceFilterDocs:
		sourceTypes = []string{types.SourceTypeDocument}
	case types.SourceFilterWeb:
		sourceTypes = []string{types.SourceTypeWeb}
	default:
		sourceTypes = []string{types.SourceTypeDocument, types.SourceTypeWeb}
	}
	if includeNotes {
		sourceTypes = append(sourceTypes, types.SourceTypeNote)
	}
	return sourceTypes
}
