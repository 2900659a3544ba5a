package sse

import (
	"bytes"

	"github.com/killallgit/tripwire/pkg/events"
)

// framePrefix marks a payload-carrying line in the event stream.
var framePrefix = []byte("data: ")

// DecodeErrorHandler receives malformed-frame errors. Decode errors are
// non-fatal; the stream keeps going.
type DecodeErrorHandler func(line []byte, err error)

// Decoder frames an unbounded chunked byte stream into StreamEvents. Network
// chunk boundaries can fall anywhere, including inside a multi-byte code
// point or inside the "data: " prefix, so the decoder buffers raw bytes and
// only carves at newline bytes. A newline byte never occurs inside a UTF-8
// sequence, which keeps partial runes intact in the buffer until the rest of
// the character arrives.
type Decoder struct {
	buf     []byte
	onError DecodeErrorHandler
}

// NewDecoder creates a decoder. handler may be nil to drop decode errors.
func NewDecoder(handler DecodeErrorHandler) *Decoder {
	return &Decoder{onError: handler}
}

// Feed appends a chunk to the internal buffer and returns every complete
// frame it now contains, in order. A trailing partial line stays buffered for
// the next call. An empty chunk is a no-op.
func (d *Decoder) Feed(chunk []byte) []events.StreamEvent {
	if len(chunk) == 0 {
		return nil
	}
	d.buf = append(d.buf, chunk...)

	var out []events.StreamEvent
	for {
		idx := bytes.IndexByte(d.buf, '\n')
		if idx < 0 {
			break
		}
		line := d.buf[:idx]
		d.buf = d.buf[idx+1:]

		if ev, ok := d.decodeLine(line, true); ok {
			out = append(out, ev)
		}
	}
	return out
}

// Flush salvages a trailing unterminated frame after the stream ends. A
// residual that is not a well-formed frame yields nothing; content is never
// synthesized from trailing garbage.
func (d *Decoder) Flush() []events.StreamEvent {
	line := d.buf
	d.buf = nil
	if len(line) == 0 {
		return nil
	}
	// A truncated frame at the point of failure is the normal case here, so
	// an unparsable residual is dropped without a decode-error signal.
	if ev, ok := d.decodeLine(line, false); ok {
		return []events.StreamEvent{ev}
	}
	return nil
}

// Buffered returns the number of bytes held for the next Feed.
func (d *Decoder) Buffered() int {
	return len(d.buf)
}

func (d *Decoder) decodeLine(line []byte, report bool) (events.StreamEvent, bool) {
	line = bytes.TrimSuffix(line, []byte("\r"))

	// Blank separators and comment lines are not frames.
	if !bytes.HasPrefix(line, framePrefix) {
		return events.StreamEvent{}, false
	}
	payload := line[len(framePrefix):]

	ev, err := events.Parse(payload)
	if err != nil {
		if report && d.onError != nil {
			d.onError(line, err)
		}
		return events.StreamEvent{}, false
	}
	return ev, true
}
