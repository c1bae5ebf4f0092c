package stream

import (
	"reflect"
	"testing"
)

func TestFrameDecoderSingleChunk(t *testing.T) {
	d := NewFrameDecoder()

	frames := d.Decode([]byte("data: {\"type\":\"chunk\",\"content\":\"Hi\"}\n"))
	want := []string{`{"type":"chunk","content":"Hi"}`}
	if !reflect.DeepEqual(frames, want) {
		t.Errorf("got %v, want %v", frames, want)
	}
	if d.Buffered() != 0 {
		t.Errorf("expected empty buffer, have %d bytes", d.Buffered())
	}
}

func TestFrameDecoderChunkBoundaries(t *testing.T) {
	input := "data: {\"type\":\"conversation_id\",\"conversation_id\":\"c1\"}\n" +
		"data: {\"type\":\"chunk\",\"content\":\"Hello\"}\n" +
		"data: {\"type\":\"done\",\"message_id\":\"m1\"}\n"
	want := []string{
		`{"type":"conversation_id","conversation_id":"c1"}`,
		`{"type":"chunk","content":"Hello"}`,
		`{"type":"done","message_id":"m1"}`,
	}

	// The frame sequence must be identical no matter how the bytes arrive.
	splits := []int{1, 2, 3, 7, 17, len(input)}
	for _, size := range splits {
		d := NewFrameDecoder()
		var frames []string
		for start := 0; start < len(input); start += size {
			end := start + size
			if end > len(input) {
				end = len(input)
			}
			frames = append(frames, d.Decode([]byte(input[start:end]))...)
		}
		if !reflect.DeepEqual(frames, want) {
			t.Errorf("chunk size %d: got %v, want %v", size, frames, want)
		}
	}
}

func TestFrameDecoderMultipleFramesInOneChunk(t *testing.T) {
	d := NewFrameDecoder()
	frames := d.Decode([]byte("data: one\ndata: two\ndata: three\n"))
	want := []string{"one", "two", "three"}
	if !reflect.DeepEqual(frames, want) {
		t.Errorf("got %v, want %v", frames, want)
	}
}

func TestFrameDecoderIgnoresNonDataLines(t *testing.T) {
	d := NewFrameDecoder()
	frames := d.Decode([]byte("\n: keep-alive\nevent: ping\ndata: payload\n\n"))
	want := []string{"payload"}
	if !reflect.DeepEqual(frames, want) {
		t.Errorf("got %v, want %v", frames, want)
	}
}

func TestFrameDecoderStripsCarriageReturn(t *testing.T) {
	d := NewFrameDecoder()
	frames := d.Decode([]byte("data: payload\r\n"))
	want := []string{"payload"}
	if !reflect.DeepEqual(frames, want) {
		t.Errorf("got %v, want %v", frames, want)
	}
}

func TestFrameDecoderBuffersPartialLine(t *testing.T) {
	d := NewFrameDecoder()

	if frames := d.Decode([]byte("data: par")); frames != nil {
		t.Errorf("partial line must not produce frames, got %v", frames)
	}
	if d.Buffered() == 0 {
		t.Error("expected partial bytes to stay buffered")
	}

	frames := d.Decode([]byte("tial\n"))
	want := []string{"partial"}
	if !reflect.DeepEqual(frames, want) {
		t.Errorf("got %v, want %v", frames, want)
	}
}

func TestFrameDecoderTrailingPartialStaysUnreturned(t *testing.T) {
	d := NewFrameDecoder()
	frames := d.Decode([]byte("data: complete\ndata: trunca"))
	want := []string{"complete"}
	if !reflect.DeepEqual(frames, want) {
		t.Errorf("got %v, want %v", frames, want)
	}
	// The truncated tail is never surfaced, only counted.
	if d.Buffered() != len("data: trunca") {
		t.Errorf("buffered = %d, want %d", d.Buffered(), len("data: trunca"))
	}
}

func TestFrameDecoderPrefixSplitAcrossChunks(t *testing.T) {
	d := NewFrameDecoder()
	var frames []string
	frames = append(frames, d.Decode([]byte("dat"))...)
	frames = append(frames, d.Decode([]byte("a: spl"))...)
	frames = append(frames, d.Decode([]byte("it\n"))...)
	want := []string{"split"}
	if !reflect.DeepEqual(frames, want) {
		t.Errorf("got %v, want %v", frames, want)
	}
}
