package stream

import (
	"encoding/json"
	"fmt"

	"knowledge-agent/web/types"
)

// Pipeline stages reported by status events.
const (
	StageAnalyzing  = "analyzing"
	StageSearching  = "searching"
	StageRetrieved  = "retrieved"
	StageGenerating = "generating"
)

// Wire discriminator values.
const (
	TypeConversationID     = "conversation_id"
	TypeStatus             = "status"
	TypeSources            = "sources"
	TypeAgent              = "agent"
	TypeChunk              = "chunk"
	TypeSuggestedQuestions = "suggested_questions"
	TypeDone               = "done"
	TypeError              = "error"
)

// Event is one decoded stream event. The set of implementations is closed:
// every event on the wire maps to exactly one variant below.
type Event interface {
	EventType() string
}

// ConversationIDEvent assigns or confirms the conversation identity for the
// turn. Arrives at most once, before any chunk.
type ConversationIDEvent struct {
	ConversationID string
}

// StatusEvent reports human-readable pipeline progress. Non-terminal.
type StatusEvent struct {
	Stage  string
	Detail string
}

// SourcesEvent carries the retrieval result. At most one per turn.
type SourcesEvent struct {
	Sources []types.SourceCitation
}

// AgentEvent identifies the agent answering the turn. At most one.
type AgentEvent struct {
	Agent types.AgentDescriptor
}

// ChunkEvent is an incremental fragment of answer text. Concatenating chunk
// contents in arrival order reconstructs the full answer.
type ChunkEvent struct {
	Content string
}

// SuggestedQuestionsEvent carries follow-up prompts. Zero or one per turn.
type SuggestedQuestionsEvent struct {
	Questions []string
}

// DoneEvent is the terminal success signal. Always last on the success path.
type DoneEvent struct {
	MessageID string
}

// ErrorEvent is the terminal failure signal, mutually exclusive with done.
type ErrorEvent struct {
	Message string
}

func (ConversationIDEvent) EventType() string     { return TypeConversationID }
func (StatusEvent) EventType() string             { return TypeStatus }
func (SourcesEvent) EventType() string            { return TypeSources }
func (AgentEvent) EventType() string              { return TypeAgent }
func (ChunkEvent) EventType() string              { return TypeChunk }
func (SuggestedQuestionsEvent) EventType() string { return TypeSuggestedQuestions }
func (DoneEvent) EventType() string               { return TypeDone }
func (ErrorEvent) EventType() string              { return TypeError }

// envelope is the superset of all variant fields keyed by the type
// discriminator.
type envelope struct {
	Type           string                 `json:"type"`
	ConversationID string                 `json:"conversation_id,omitempty"`
	Stage          string                 `json:"stage,omitempty"`
	Detail         string                 `json:"detail,omitempty"`
	Sources        []types.SourceCitation `json:"sources,omitempty"`
	Agent          *types.AgentDescriptor `json:"agent,omitempty"`
	Content        string                 `json:"content,omitempty"`
	Questions      []string               `json:"questions,omitempty"`
	MessageID      string                 `json:"message_id,omitempty"`
	Error          string                 `json:"error,omitempty"`
}

// DecodeEvent parses one frame payload into a typed event. It is pure: no
// side effects, no handler invocation. Unknown type values return (nil, nil)
// so callers can drop them for forward compatibility; malformed payloads and
// payloads without a type discriminator return an error.
func DecodeEvent(payload []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("decode event payload: %w", err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("event payload missing type discriminator")
	}

	switch env.Type {
	case TypeConversationID:
		return ConversationIDEvent{ConversationID: env.ConversationID}, nil
	case TypeStatus:
		return StatusEvent{Stage: env.Stage, Detail: env.Detail}, nil
	case TypeSources:
		sources := env.Sources
		if sources == nil {
			sources = []types.SourceCitation{}
		}
		return SourcesEvent{Sources: sources}, nil
	case TypeAgent:
		var agent types.AgentDescriptor
		if env.Agent != nil {
			agent = *env.Agent
		}
		return AgentEvent{Agent: agent}, nil
	case TypeChunk:
		return ChunkEvent{Content: env.Content}, nil
	case TypeSuggestedQuestions:
		return SuggestedQuestionsEvent{Questions: env.Questions}, nil
	case TypeDone:
		return DoneEvent{MessageID: env.MessageID}, nil
	case TypeError:
		return ErrorEvent{Message: env.Error}, nil
	}

	// Unrecognized event types are dropped, not failed, so newer servers can
	// add events without breaking older clients.
	return nil, nil
}

// EncodeEvent serializes a typed event into its wire JSON payload.
func EncodeEvent(e Event) ([]byte, error) {
	var env envelope
	switch ev := e.(type) {
	case ConversationIDEvent:
		env = envelope{Type: TypeConversationID, ConversationID: ev.ConversationID}
	case StatusEvent:
		env = envelope{Type: TypeStatus, Stage: ev.Stage, Detail: ev.Detail}
	case SourcesEvent:
		sources := ev.Sources
		if sources == nil {
			sources = []types.SourceCitation{}
		}
		return json.Marshal(struct {
			Type    string                 `json:"type"`
			Sources []types.SourceCitation `json:"sources"`
		}{TypeSources, sources})
	case AgentEvent:
		agent := ev.Agent
		env = envelope{Type: TypeAgent, Agent: &agent}
	case ChunkEvent:
		return json.Marshal(struct {
			Type    string `json:"type"`
			Content string `json:"content"`
		}{TypeChunk, ev.Content})
	case SuggestedQuestionsEvent:
		return json.Marshal(struct {
			Type      string   `json:"type"`
			Questions []string `json:"questions"`
		}{TypeSuggestedQuestions, ev.Questions})
	case DoneEvent:
		env = envelope{Type: TypeDone, MessageID: ev.MessageID}
	case ErrorEvent:
		return json.Marshal(struct {
			Type  string `json:"type"`
			Error string `json:"error"`
		}{TypeError, ev.Message})
	default:
		return nil, fmt.Errorf("unsupported event type %T", e)
	}
	return json.Marshal(env)
}
