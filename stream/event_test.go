package stream

import (
	"reflect"
	"strings"
	"testing"

	"knowledge-agent/web/types"
)

func TestDecodeEventVariants(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    Event
	}{
		{
			name:    "conversation id",
			payload: `{"type":"conversation_id","conversation_id":"c1"}`,
			want:    ConversationIDEvent{ConversationID: "c1"},
		},
		{
			name:    "status",
			payload: `{"type":"status","stage":"searching","detail":"Searching the knowledge base"}`,
			want:    StatusEvent{Stage: "searching", Detail: "Searching the knowledge base"},
		},
		{
			name:    "sources",
			payload: `{"type":"sources","sources":[{"chunk_id":"k1","source_type":"document","source_id":"d1","source_title":"Paper","distance":0.21,"index":1}]}`,
			want: SourcesEvent{Sources: []types.SourceCitation{{
				ChunkID:     "k1",
				SourceType:  "document",
				SourceID:    "d1",
				SourceTitle: "Paper",
				Distance:    0.21,
				Index:       1,
			}}},
		},
		{
			name:    "sources empty",
			payload: `{"type":"sources","sources":[]}`,
			want:    SourcesEvent{Sources: []types.SourceCitation{}},
		},
		{
			name:    "agent",
			payload: `{"type":"agent","agent":{"name":"research","description":"Cross-references sources"}}`,
			want:    AgentEvent{Agent: types.AgentDescriptor{Name: "research", Description: "Cross-references sources"}},
		},
		{
			name:    "chunk",
			payload: `{"type":"chunk","content":"Hello "}`,
			want:    ChunkEvent{Content: "Hello "},
		},
		{
			name:    "chunk empty content",
			payload: `{"type":"chunk","content":""}`,
			want:    ChunkEvent{Content: ""},
		},
		{
			name:    "suggested questions",
			payload: `{"type":"suggested_questions","questions":["What changed?","Why?"]}`,
			want:    SuggestedQuestionsEvent{Questions: []string{"What changed?", "Why?"}},
		},
		{
			name:    "done",
			payload: `{"type":"done","message_id":"m1"}`,
			want:    DoneEvent{MessageID: "m1"},
		},
		{
			name:    "error",
			payload: `{"type":"error","error":"Something went wrong"}`,
			want:    ErrorEvent{Message: "Something went wrong"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeEvent([]byte(tt.payload))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestDecodeEventUnknownTypeIsDropped(t *testing.T) {
	got, err := DecodeEvent([]byte(`{"type":"telemetry","payload":"x"}`))
	if err != nil {
		t.Fatalf("unknown type must not error, got %v", err)
	}
	if got != nil {
		t.Errorf("unknown type must decode to nil, got %#v", got)
	}
}

func TestDecodeEventMalformed(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"broken json", `{"type":"chunk","content":`},
		{"not json", `garbage`},
		{"missing type", `{"content":"hi"}`},
		{"empty object", `{}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeEvent([]byte(tt.payload)); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	events := []Event{
		ConversationIDEvent{ConversationID: "c1"},
		StatusEvent{Stage: StageGenerating, Detail: "Writing the answer"},
		SourcesEvent{Sources: []types.SourceCitation{{ChunkID: "k1", SourceType: "note", SourceID: "n1", SourceTitle: "Note", Index: 1}}},
		AgentEvent{Agent: types.AgentDescriptor{Name: "assistant"}},
		ChunkEvent{Content: "delta"},
		SuggestedQuestionsEvent{Questions: []string{"Next?"}},
		DoneEvent{MessageID: "m1"},
		ErrorEvent{Message: "boom"},
	}

	for _, event := range events {
		payload, err := EncodeEvent(event)
		if err != nil {
			t.Fatalf("%T: encode: %v", event, err)
		}
		decoded, err := DecodeEvent(payload)
		if err != nil {
			t.Fatalf("%T: decode: %v", event, err)
		}
		if !reflect.DeepEqual(decoded, event) {
			t.Errorf("round trip changed %#v into %#v", event, decoded)
		}
	}
}

func TestEncodeEventEmptySources(t *testing.T) {
	payload, err := EncodeEvent(SourcesEvent{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// A sources event with no hits still carries the array, never null.
	if !strings.Contains(string(payload), `"sources":[]`) {
		t.Errorf("payload %s should contain an empty sources array", payload)
	}
}
