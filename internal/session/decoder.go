package session

import (
	"bytes"
	"strings"
)

// Textual stop tags emitted as ordinary decoded text by some model families
// (turn-boundary and end-of-text markers). Matched against the trailing
// buffer so tags split across token fragments are still caught.
var stopTags = []string{
	"<end_of_turn>",
	"<start_of_turn>",
	"<|im_end|>",
	"<|eot_id|>",
	"<|endoftext|>",
}

// Prefixes of the tags above. A remainder containing one of these at loop
// termination is suppressed rather than emitting a truncated control tag.
var stopTagPrefixes = []string{"<end", "<start", "<|im", "<|eot"}

// retainBytes is the tag-detection window kept in the trailing buffer between
// flushes. It exceeds the longest stop tag so a tag split across a flush
// point is still detected on the next fragment.
const retainBytes = 20

// streamDecoder turns raw decoded byte fragments into safely flushable text.
// Every flush boundary lands on a whole-codepoint end, and any recognized
// stop tag is removed from the output before signaling termination.
type streamDecoder struct {
	buf  []byte
	out  strings.Builder
	sink func(string) error
}

func newStreamDecoder(sink func(string) error) *streamDecoder {
	return &streamDecoder{sink: sink}
}

// push appends a fragment and reports whether a textual stop tag was found.
// When it returns stop=true, output has already been truncated before the
// tag and the buffer discarded. A sink failure is returned as CallbackFailed.
func (d *streamDecoder) push(frag []byte) (stop bool, err error) {
	d.buf = append(d.buf, frag...)

	if idx := findStopTag(d.buf); idx >= 0 {
		pre := d.buf[:idx]
		d.buf = nil
		if safe := utf8Boundary(pre, len(pre)); safe > 0 {
			if err := d.flush(pre[:safe]); err != nil {
				return true, err
			}
		}
		return true, nil
	}

	// Flush the head down to the retention window so the buffer stays
	// bounded while a split tag can still complete on the next fragment.
	if len(d.buf) > retainBytes {
		if safe := utf8Boundary(d.buf, len(d.buf)-retainBytes); safe > 0 {
			if err := d.flush(d.buf[:safe]); err != nil {
				return false, err
			}
			d.buf = d.buf[safe:]
		}
	}
	return false, nil
}

// finish flushes whatever remains at loop termination, unless it contains a
// recognizable stop-tag prefix (generation may have stopped mid-tag for an
// unrelated reason, e.g. budget exhaustion). Sink errors here are swallowed:
// the call already has its accumulated text.
func (d *streamDecoder) finish() {
	if len(d.buf) == 0 {
		return
	}
	for _, p := range stopTagPrefixes {
		if bytes.Contains(d.buf, []byte(p)) {
			d.buf = nil
			return
		}
	}
	rest := d.buf
	d.buf = nil
	d.out.Write(rest)
	if d.sink != nil {
		_ = d.sink(string(rest))
	}
}

// text returns the accumulated flushed output.
func (d *streamDecoder) text() string { return d.out.String() }

func (d *streamDecoder) flush(b []byte) error {
	d.out.Write(b)
	if d.sink != nil {
		if err := d.sink(string(b)); err != nil {
			return ErrCallbackFailed(err)
		}
	}
	return nil
}

// findStopTag returns the earliest index of any stop tag in b, or -1.
func findStopTag(b []byte) int {
	found := -1
	for _, tag := range stopTags {
		if idx := bytes.Index(b, []byte(tag)); idx >= 0 && (found < 0 || idx < found) {
			found = idx
		}
	}
	return found
}

// utf8CharLen reports how many bytes the character starting with b occupies,
// from its leading byte. Invalid leading bytes count as one passable byte.
func utf8CharLen(b byte) int {
	switch {
	case b&0x80 == 0x00:
		return 1
	case b&0xE0 == 0xC0:
		return 2
	case b&0xF0 == 0xE0:
		return 3
	case b&0xF8 == 0xF0:
		return 4
	default:
		return 1
	}
}

// utf8Boundary walks b character by character and returns the largest
// boundary not exceeding max at which a character ends exactly. A cut may
// land short of max; it never lands mid-character.
func utf8Boundary(b []byte, max int) int {
	if max > len(b) {
		max = len(b)
	}
	pos, last := 0, 0
	for pos < max {
		n := utf8CharLen(b[pos])
		if pos+n > max {
			break
		}
		pos += n
		last = pos
	}
	return last
}
