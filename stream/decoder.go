package stream

import "bytes"

// framePrefix marks lines that carry an event payload. Anything else on the
// wire (blank keep-alive lines, comments) is discarded.
const framePrefix = "data: "

// FrameDecoder turns an arbitrarily chunked byte stream into complete frame
// payloads. Chunk boundaries are unrelated to logical event boundaries, so
// the decoder owns a buffer for the trailing partial line. Each decoder
// instance belongs to exactly one stream; decoders are not safe for
// concurrent use.
type FrameDecoder struct {
	buf []byte
}

func NewFrameDecoder() *FrameDecoder {
	return &FrameDecoder{}
}

// Decode consumes the next chunk of bytes and returns the payloads of every
// complete frame observed so far, in order. A frame is one "data: "-prefixed
// line; the prefix is stripped from the returned payloads. Partial trailing
// lines stay buffered until a line terminator arrives. If the transport ends
// with an unterminated line the leftover bytes are simply never returned:
// a truncated final frame is dropped rather than surfaced as an error.
func (d *FrameDecoder) Decode(p []byte) []string {
	d.buf = append(d.buf, p...)

	var frames []string
	for {
		idx := bytes.IndexByte(d.buf, '\n')
		if idx < 0 {
			return frames
		}
		line := d.buf[:idx]
		d.buf = d.buf[idx+1:]

		line = bytes.TrimSuffix(line, []byte("\r"))
		if !bytes.HasPrefix(line, []byte(framePrefix)) {
			continue
		}
		frames = append(frames, string(line[len(framePrefix):]))
	}
}

// Buffered reports how many bytes of an incomplete line are pending.
func (d *FrameDecoder) Buffered() int {
	return len(d.buf)
}
