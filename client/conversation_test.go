package client

import (
	"strings"
	"testing"
	"unicode/utf8"

	"knowledge-agent/web/types"
)

func completedTurn(conversationID, messageID, content string) *Turn {
	return &Turn{
		ConversationID: conversationID,
		Message: types.Message{
			ID:      messageID,
			Role:    types.RoleAssistant,
			Content: content,
		},
	}
}

func TestApplyTurnCreatesConversation(t *testing.T) {
	view := NewConversationView()

	conv := view.ApplyTurn("what is in my notes?", completedTurn("c1", "m1", "Hello world"))

	if conv.ID != "c1" {
		t.Errorf("id = %q", conv.ID)
	}
	if conv.Title != "what is in my notes?" {
		t.Errorf("title = %q", conv.Title)
	}
	if len(conv.Messages) != 2 {
		t.Fatalf("messages = %d, want user + assistant", len(conv.Messages))
	}
	if conv.Messages[0].Role != types.RoleUser || conv.Messages[0].Content != "what is in my notes?" {
		t.Errorf("first message = %#v", conv.Messages[0])
	}
	if conv.Messages[1].Role != types.RoleAssistant || conv.Messages[1].Content != "Hello world" {
		t.Errorf("second message = %#v", conv.Messages[1])
	}
}

func TestApplyTurnAppendsToExisting(t *testing.T) {
	view := NewConversationView()
	view.ApplyTurn("first question", completedTurn("c1", "m1", "first answer"))
	view.ApplyTurn("second question", completedTurn("c1", "m2", "second answer"))

	conv, ok := view.Get("c1")
	if !ok {
		t.Fatal("conversation missing")
	}
	if len(conv.Messages) != 4 {
		t.Errorf("messages = %d, want 4", len(conv.Messages))
	}
	if conv.Title != "first question" {
		t.Errorf("title should stay from the first turn, got %q", conv.Title)
	}
}

func TestListNewestFirst(t *testing.T) {
	view := NewConversationView()
	view.ApplyTurn("older", completedTurn("c1", "m1", "a"))
	view.ApplyTurn("newer", completedTurn("c2", "m2", "b"))

	list := view.List()
	if len(list) != 2 {
		t.Fatalf("list = %d entries", len(list))
	}
	if list[0].ID != "c2" || list[1].ID != "c1" {
		t.Errorf("order = [%s %s], want newest first", list[0].ID, list[1].ID)
	}
}

func TestApplyFeedback(t *testing.T) {
	view := NewConversationView()
	view.ApplyTurn("q", completedTurn("c1", "m1", "a"))

	if !view.ApplyFeedback("c1", "m1", types.Feedback{IsPositive: true}) {
		t.Fatal("feedback not applied")
	}
	conv, _ := view.Get("c1")
	fb := conv.Messages[1].Feedback
	if fb == nil || !fb.IsPositive {
		t.Errorf("feedback = %#v", fb)
	}

	if view.ApplyFeedback("c1", "missing", types.Feedback{}) {
		t.Error("feedback on an unknown message must report false")
	}
	if view.ApplyFeedback("missing", "m1", types.Feedback{}) {
		t.Error("feedback on an unknown conversation must report false")
	}
}

func TestRemove(t *testing.T) {
	view := NewConversationView()
	view.ApplyTurn("q", completedTurn("c1", "m1", "a"))
	view.Remove("c1")

	if _, ok := view.Get("c1"); ok {
		t.Error("conversation still present after removal")
	}
	if len(view.List()) != 0 {
		t.Errorf("list = %v, want empty", view.List())
	}
}

func TestDeriveTitleTruncation(t *testing.T) {
	long := strings.Repeat("a", 100)
	title := deriveTitle(long)
	if utf8.RuneCountInString(title) != titleMaxLen+1 {
		t.Errorf("title length = %d runes", utf8.RuneCountInString(title))
	}
	if !strings.HasSuffix(title, "…") {
		t.Errorf("title %q should end with ellipsis", title)
	}

	// Truncation must never split a multi-byte rune.
	unicodeQuery := strings.Repeat("ü", 100)
	unicodeTitle := deriveTitle(unicodeQuery)
	if !utf8.ValidString(unicodeTitle) {
		t.Errorf("title %q is not valid UTF-8", unicodeTitle)
	}

	if deriveTitle("  short  ") != "short" {
		t.Errorf("short titles should only be trimmed, got %q", deriveTitle("  short  "))
	}
}
