package client

import (
	"strings"
	"sync"
	"time"

	"knowledge-agent/web/types"
)

const titleMaxLen = 60

// ConversationView is the client-side projection of the conversation model.
// It is the authoritative in-memory copy until the next fetch. Conversations
// are only created here when a turn completes, so the index never shows an
// entry for a turn that failed or was cancelled.
type ConversationView struct {
	mu            sync.Mutex
	conversations map[string]*types.Conversation
	order         []string
}

func NewConversationView() *ConversationView {
	return &ConversationView{
		conversations: make(map[string]*types.Conversation),
	}
}

// ApplyTurn projects a completed session into the conversation model: the
// user's query and the frozen assistant message are appended to the addressed
// conversation, creating it first if the server assigned a new identity.
func (v *ConversationView) ApplyTurn(query string, turn *Turn) *types.Conversation {
	v.mu.Lock()
	defer v.mu.Unlock()

	now := time.Now()
	conv, ok := v.conversations[turn.ConversationID]
	if !ok {
		conv = &types.Conversation{
			ID:        turn.ConversationID,
			Title:     deriveTitle(query),
			CreatedAt: now,
		}
		v.conversations[turn.ConversationID] = conv
		v.order = append([]string{turn.ConversationID}, v.order...)
	}

	userMessage := types.Message{
		ID:        "local-" + turn.Message.ID,
		Role:      types.RoleUser,
		Content:   query,
		CreatedAt: now,
	}
	assistant := turn.Message
	assistant.CreatedAt = now

	conv.Messages = append(conv.Messages, userMessage, assistant)
	conv.UpdatedAt = now
	return conv
}

// Replace overwrites the local copy of a conversation with a server fetch.
func (v *ConversationView) Replace(conversation types.Conversation) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if _, ok := v.conversations[conversation.ID]; !ok {
		v.order = append([]string{conversation.ID}, v.order...)
	}
	stored := conversation
	v.conversations[conversation.ID] = &stored
}

// ApplyFeedback mutates the feedback field of a persisted message, the only
// mutable part of a message after creation.
func (v *ConversationView) ApplyFeedback(conversationID, messageID string, feedback types.Feedback) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	conv, ok := v.conversations[conversationID]
	if !ok {
		return false
	}
	for i := range conv.Messages {
		if conv.Messages[i].ID == messageID {
			fb := feedback
			conv.Messages[i].Feedback = &fb
			return true
		}
	}
	return false
}

// Remove drops a conversation from the projection.
func (v *ConversationView) Remove(conversationID string) {
	v.mu.Lock()
	defer v.mu.Unlock()

	delete(v.conversations, conversationID)
	for i, id := range v.order {
		if id == conversationID {
			v.order = append(v.order[:i], v.order[i+1:]...)
			break
		}
	}
}

// Get returns a copy of one conversation.
func (v *ConversationView) Get(conversationID string) (types.Conversation, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	conv, ok := v.conversations[conversationID]
	if !ok {
		return types.Conversation{}, false
	}
	return *conv, true
}

// List returns conversations most recently touched first.
func (v *ConversationView) List() []types.Conversation {
	v.mu.Lock()
	defer v.mu.Unlock()

	out := make([]types.Conversation, 0, len(v.order))
	for _, id := range v.order {
		if conv, ok := v.conversations[id]; ok {
			out = append(out, *conv)
		}
	}
	return out
}

func deriveTitle(query string) string {
	title := strings.TrimSpace(query)
	runes := []rune(title)
	if len(runes) > titleMaxLen {
		title = strings.TrimSpace(string(runes[:titleMaxLen])) + "…"
	}
	return title
}
