package services

import (
	"context"
	"fmt"
	"strings"

	"knowledge-agent/config"
	apperrors "knowledge-agent/errors"
	"knowledge-agent/prompts"
	"knowledge-agent/retrieval"
	"knowledge-agent/stream"
	"knowledge-agent/web/format"
	"knowledge-agent/web/types"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventSink receives pipeline events in emission order. The SSE handler
// passes a writer-backed sink; the synchronous path passes nil and only uses
// the returned TurnResult.
type EventSink func(event stream.Event) error

// TurnResult is the server-side outcome of one fully drained turn.
type TurnResult struct {
	ConversationID     uuid.UUID
	MessageID          uuid.UUID
	Answer             string
	Sources            []types.SourceCitation
	SuggestedQuestions []string
	Agent              types.AgentDescriptor
}

// ConversationStore is the slice of the database layer the pipeline touches.
type ConversationStore interface {
	CreateConversation(ctx context.Context, title string) (uuid.UUID, error)
	ConversationExists(ctx context.Context, conversationID uuid.UUID) (bool, error)
	CreateMessage(ctx context.Context, conversationID uuid.UUID, msg types.Message) error
	GetMessagesByConversation(ctx context.Context, conversationID uuid.UUID) ([]types.Message, error)
	UpdateConversation(ctx context.Context, conversationID uuid.UUID, title, summary *string) error
}

// Searcher finds the knowledge-base chunks relevant to a query.
type Searcher interface {
	Search(ctx context.Context, query, sourceFilter string, includeNotes bool, nResults int) ([]retrieval.Hit, error)
}

// Generator is the LLM backend used for answers, follow-ups, and titles.
type Generator interface {
	Chat(ctx context.Context, host, model string, messages []types.LLMMessage, temperature *float64) (string, error)
	ChatStream(ctx context.Context, host, model string, messages []types.LLMMessage, temperature *float64) (<-chan string, error)
}

// Pipeline runs the retrieval-augmented answer flow: query analysis,
// knowledge-base search, context assembly, generation, persistence.
type Pipeline struct {
	cfg       *config.Config
	store     ConversationStore
	retriever Searcher
	llm       Generator
	logger    *zap.Logger
}

func NewPipeline(
	cfg *config.Config,
	store ConversationStore,
	retriever Searcher,
	llm Generator,
	logger *zap.Logger,
) *Pipeline {
	return &Pipeline{
		cfg:       cfg,
		store:     store,
		retriever: retriever,
		llm:       llm,
		logger:    logger,
	}
}

// Run executes one chat turn. Events are emitted on sink in protocol order:
// conversation_id first, then status/agent/sources/chunk interleaved, and the
// caller is responsible for the terminal done/error event. A sink error
// (client gone) aborts the turn.
func (p *Pipeline) Run(ctx context.Context, request types.ChatRequest, sink EventSink) (*TurnResult, error) {
	emit := func(event stream.Event) error {
		if sink == nil {
			return nil
		}
		return sink(event)
	}

	conversationID, isNew, err := p.resolveConversation(ctx, request)
	if err != nil {
		return nil, err
	}
	if err := emit(stream.ConversationIDEvent{ConversationID: conversationID.String()}); err != nil {
		return nil, err
	}

	query := strings.TrimSpace(request.Query)
	userMessage := types.Message{
		ID:      uuid.New().String(),
		Role:    types.RoleUser,
		Content: query,
	}
	if err := p.store.CreateMessage(ctx, conversationID, userMessage); err != nil {
		return nil, fmt.Errorf("save user message: %w", err)
	}

	if err := emit(stream.StatusEvent{Stage: stream.StageAnalyzing, Detail: "Understanding your question"}); err != nil {
		return nil, err
	}
	agent, systemPrompt := p.selectAgent(request)
	if err := emit(stream.AgentEvent{Agent: agent}); err != nil {
		return nil, err
	}

	if err := emit(stream.StatusEvent{Stage: stream.StageSearching, Detail: "Searching the knowledge base"}); err != nil {
		return nil, err
	}
	hits, err := p.retriever.Search(ctx, query, request.SourceFilter, request.IncludeNotes, p.cfg.RetrievalResults)
	if err != nil {
		return nil, apperrors.WrapErrorf(apperrors.ErrRetrieval, "knowledge-base search: %v", err)
	}
	citations := retrieval.Citations(hits)
	if err := emit(stream.StatusEvent{
		Stage:  stream.StageRetrieved,
		Detail: fmt.Sprintf("Found %d relevant passages", len(hits)),
	}); err != nil {
		return nil, err
	}
	if err := emit(stream.SourcesEvent{Sources: citations}); err != nil {
		return nil, err
	}

	if err := emit(stream.StatusEvent{Stage: stream.StageGenerating, Detail: "Writing the answer"}); err != nil {
		return nil, err
	}

	history, err := p.buildHistory(ctx, conversationID, systemPrompt, query, hits)
	if err != nil {
		return nil, err
	}
	model := request.Model
	if model == "" {
		model = p.cfg.DefaultModel
	}

	deltas, err := p.llm.ChatStream(ctx, p.cfg.MainLLMHost, model, history, nil)
	if err != nil {
		return nil, apperrors.WrapErrorf(apperrors.ErrLLMCommunication, "start generation: %v", err)
	}

	var answer strings.Builder
	for delta := range deltas {
		answer.WriteString(delta)
		if err := emit(stream.ChunkEvent{Content: delta}); err != nil {
			return nil, err
		}
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if answer.Len() == 0 {
		return nil, apperrors.WrapError(apperrors.ErrLLMCommunication, "model returned an empty answer")
	}

	answerText := format.PreprocessAssistantText(answer.String())

	questions := p.suggestQuestions(ctx, model, query, answerText)
	if len(questions) > 0 {
		if err := emit(stream.SuggestedQuestionsEvent{Questions: questions}); err != nil {
			return nil, err
		}
	}

	assistantMessage := types.Message{
		ID:                 uuid.New().String(),
		Role:               types.RoleAssistant,
		Content:            answerText,
		Rendered:           format.RenderHTML(answerText),
		Sources:            citations,
		SuggestedQuestions: questions,
		ModelUsed:          model,
	}
	if err := p.store.CreateMessage(ctx, conversationID, assistantMessage); err != nil {
		return nil, fmt.Errorf("save assistant message: %w", err)
	}

	if isNew {
		p.generateTitle(ctx, conversationID, model, query)
	}

	messageID, _ := uuid.Parse(assistantMessage.ID)
	return &TurnResult{
		ConversationID:     conversationID,
		MessageID:          messageID,
		Answer:             answerText,
		Sources:            citations,
		SuggestedQuestions: questions,
		Agent:              agent,
	}, nil
}

func (p *Pipeline) resolveConversation(ctx context.Context, request types.ChatRequest) (uuid.UUID, bool, error) {
	if request.ConversationID != "" {
		conversationID, err := uuid.Parse(request.ConversationID)
		if err != nil {
			return uuid.Nil, false, apperrors.WrapErrorf(apperrors.ErrInvalidInput, "invalid conversation id %q", request.ConversationID)
		}
		exists, err := p.store.ConversationExists(ctx, conversationID)
		if err != nil {
			return uuid.Nil, false, fmt.Errorf("look up conversation: %w", err)
		}
		if !exists {
			return uuid.Nil, false, apperrors.WrapErrorf(apperrors.ErrNotFound, "conversation %s", conversationID)
		}
		return conversationID, false, nil
	}

	conversationID, err := p.store.CreateConversation(ctx, deriveTitle(request.Query))
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("create conversation: %w", err)
	}
	return conversationID, true, nil
}

func (p *Pipeline) selectAgent(request types.ChatRequest) (types.AgentDescriptor, string) {
	if request.AgentMode {
		return types.AgentDescriptor{
			Name:        "research",
			Description: "Cross-references sources and surfaces gaps",
		}, prompts.ResearchAgent()
	}
	return types.AgentDescriptor{
		Name:        "assistant",
		Description: "Answers directly from the knowledge base",
	}, prompts.AnswerSystem()
}

// buildHistory assembles the generation prompt: system prompt, prior
// conversation turns, and the user question with its numbered context block.
// Citation ordinals in the block match the sources event exactly.
func (p *Pipeline) buildHistory(ctx context.Context, conversationID uuid.UUID, systemPrompt, query string, hits []retrieval.Hit) ([]types.LLMMessage, error) {
	history := []types.LLMMessage{{Role: "system", Content: systemPrompt}}

	previous, err := p.store.GetMessagesByConversation(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("load conversation history: %w", err)
	}
	for _, msg := range previous {
		// The just-saved user message is re-sent below with its context block.
		if msg.Content == query && msg.Role == types.RoleUser {
			continue
		}
		history = append(history, types.LLMMessage{Role: msg.Role, Content: msg.Content})
	}

	if len(hits) == 0 {
		history = append(history, types.LLMMessage{Role: "user", Content: query})
		return history, nil
	}

	var block strings.Builder
	block.WriteString("CONTEXT:\n")
	for _, hit := range hits {
		title := hit.Citation.SourceTitle
		if hit.Citation.SectionTitle != "" {
			title += " - " + hit.Citation.SectionTitle
		}
		fmt.Fprintf(&block, "[%d] (%s: %s)\n%s\n\n", hit.Citation.Index, hit.Citation.SourceType, title, hit.Content)
	}
	block.WriteString("QUESTION: ")
	block.WriteString(query)

	history = append(history, types.LLMMessage{Role: "user", Content: block.String()})
	return history, nil
}

// suggestQuestions asks the model for follow-ups. Failures only cost the
// auxiliary data, never the turn.
func (p *Pipeline) suggestQuestions(ctx context.Context, model, query, answer string) []string {
	if p.cfg.SuggestedQuestionCount <= 0 {
		return nil
	}

	messages := []types.LLMMessage{
		{Role: "system", Content: prompts.SuggestQuestions()},
		{Role: "user", Content: fmt.Sprintf("Question: %s\n\nAnswer: %s", query, answer)},
	}
	raw, err := p.llm.Chat(ctx, p.cfg.MainLLMHost, model, messages, nil)
	if err != nil {
		p.logger.Warn("Failed to generate suggested questions", zap.Error(err))
		return nil
	}

	var questions []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "-*0123456789. "))
		if line == "" {
			continue
		}
		questions = append(questions, line)
		if len(questions) == p.cfg.SuggestedQuestionCount {
			break
		}
	}
	return questions
}

// generateTitle replaces the derived title of a new conversation with a
// model-written one. Best effort.
func (p *Pipeline) generateTitle(ctx context.Context, conversationID uuid.UUID, model, query string) {
	messages := []types.LLMMessage{
		{Role: "system", Content: prompts.TitleGenerator()},
		{Role: "user", Content: query},
	}
	title, err := p.llm.Chat(ctx, p.cfg.MainLLMHost, model, messages, nil)
	if err != nil {
		p.logger.Debug("Title generation failed, keeping derived title", zap.Error(err))
		return
	}
	title = strings.TrimSpace(strings.Trim(strings.TrimSpace(title), `"`))
	if title == "" {
		return
	}
	if err := p.store.UpdateConversation(ctx, conversationID, &title, nil); err != nil {
		p.logger.Warn("Failed to store generated title", zap.Error(err))
	}
}

func deriveTitle(query string) string {
	title := strings.TrimSpace(query)
	runes := []rune(title)
	if len(runes) > 60 {
		title = strings.TrimSpace(string(runes[:60])) + "…"
	}
	return title
}
