package types

import (
	"errors"
	"strings"
	"time"
)

// Validation errors surfaced before a request is ever sent.
var (
	ErrEmptyQuery          = errors.New("query must not be empty")
	ErrInvalidSourceFilter = errors.New("invalid source filter")
)

// Source filter values accepted on a chat request.
const (
	SourceFilterGeneral = "general"
	SourceFilterDocs    = "docs"
	SourceFilterWeb     = "web"
)

// Citation source types.
const (
	SourceTypeNote     = "note"
	SourceTypeDocument = "document"
	SourceTypeWeb      = "web"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatRequest is the payload for both the streaming and synchronous chat
// endpoints. It is immutable once sent.
type ChatRequest struct {
	Query          string `json:"query"`
	ConversationID string `json:"conversation_id,omitempty"`
	Model          string `json:"model,omitempty"`
	AgentMode      bool   `json:"agent_mode,omitempty"`
	SourceFilter   string `json:"source_filter,omitempty"`
	IncludeNotes   bool   `json:"include_notes,omitempty"`
}

// Validate checks the request invariants that hold on both client and server.
func (r ChatRequest) Validate() error {
	if strings.TrimSpace(r.Query) == "" {
		return ErrEmptyQuery
	}
	switch r.SourceFilter {
	case "", SourceFilterGeneral, SourceFilterDocs, SourceFilterWeb:
		return nil
	}
	return ErrInvalidSourceFilter
}

// ChatResponse is the synchronous equivalent of a fully drained stream.
type ChatResponse struct {
	MessageID      string           `json:"message_id"`
	ConversationID string           `json:"conversation_id"`
	Response       string           `json:"response"`
	Sources        []SourceCitation `json:"sources"`
}

// SourceCitation is one retrieval hit attributed to the answer. The Index
// field is the 1-based ordinal referenced inline in the generated text.
type SourceCitation struct {
	ChunkID      string  `json:"chunk_id"`
	SourceType   string  `json:"source_type"`
	SourceID     string  `json:"source_id"`
	SourceTitle  string  `json:"source_title"`
	SectionTitle string  `json:"section_title,omitempty"`
	Distance     float64 `json:"distance"`
	Index        int     `json:"index"`
}

// AgentDescriptor identifies the specialized agent that produced the answer.
type AgentDescriptor struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Feedback is the only mutable field of a persisted message.
type Feedback struct {
	IsPositive bool `json:"is_positive"`
}

// Message is one entry in a conversation. Append-only once persisted.
type Message struct {
	ID                 string           `json:"id"`
	Role               string           `json:"role"`
	Content            string           `json:"content"`
	Rendered           string           `json:"rendered,omitempty"`
	Sources            []SourceCitation `json:"sources,omitempty"`
	SuggestedQuestions []string         `json:"suggested_questions,omitempty"`
	ModelUsed          string           `json:"model_used,omitempty"`
	Feedback           *Feedback        `json:"feedback,omitempty"`
	CreatedAt          time.Time        `json:"created_at"`
}

// Conversation owns an ordered sequence of messages.
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Summary   string    `json:"summary,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Messages  []Message `json:"messages,omitempty"`
}

// TokenUsage is a read-only snapshot derived per conversation and model.
type TokenUsage struct {
	TotalTokens   int     `json:"total_tokens"`
	Limit         int     `json:"limit"`
	UsagePercent  float64 `json:"usage_percent"`
	Remaining     int     `json:"remaining"`
	IsWarning     bool    `json:"is_warning"`
	IsCritical    bool    `json:"is_critical"`
	MessagesCount int     `json:"messages_count"`
}

// LLMMessage is a message in the format expected by the generation backend.
type LLMMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
