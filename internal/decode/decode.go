// Package decode implements a streaming UTF-8 decoder that reassembles
// multi-byte code points split across PTY read boundaries.
//
// The contract: for any sequence of byte chunks B1, B2, ..., Bn fed to
// successive Decode calls, the concatenation of the returned strings
// equals the UTF-8 decoding of concat(B1..Bn), with invalid bytes replaced
// one-for-one by the standard replacement character and resynchronization
// at the next valid leading byte. A trailing fragment of up to three bytes
// (the longest possible incomplete-but-still-valid UTF-8 prefix) is
// buffered across calls.
package decode

import "unicode/utf8"

// Decoder carries a trailing byte fragment between Decode calls. The zero
// value is ready to use.
type Decoder struct {
	pending []byte
}

// Decode consumes chunk and returns the valid code points it completes.
// Any trailing incomplete-but-possibly-valid sequence is buffered for the
// next call.
func (d *Decoder) Decode(chunk []byte) string {
	if len(chunk) == 0 && len(d.pending) == 0 {
		return ""
	}

	buf := append(d.pending, chunk...)
	d.pending = nil

	out := make([]byte, 0, len(buf))
	i := 0
	for i < len(buf) {
		r, size := utf8.DecodeRune(buf[i:])
		if r == utf8.RuneError {
			if size == 0 {
				// Can't happen: i < len(buf) guarantees at least one byte.
				break
			}
			if size == 1 {
				remaining := buf[i:]
				if couldBeIncomplete(remaining) {
					// Might be a valid prefix of a longer rune that just
					// hasn't arrived yet; buffer it for the next chunk.
					d.pending = append(d.pending, remaining...)
					return string(out)
				}
				// Genuinely invalid byte: substitute and resync.
				out = append(out, "�"...)
				i++
				continue
			}
		}
		out = append(out, buf[i:i+size]...)
		i += size
	}

	return string(out)
}

// couldBeIncomplete reports whether b is a prefix (1-3 bytes, all that's
// arrived so far) that could still extend into a valid multi-byte rune
// once more bytes arrive. It never returns true for more than 3 bytes
// because any valid UTF-8 sequence is at most 4 bytes, and a 4-byte buffer
// that utf8.DecodeRune rejected must already be genuinely invalid.
func couldBeIncomplete(b []byte) bool {
	if len(b) == 0 || len(b) >= 4 {
		return false
	}
	lead := b[0]
	var want int
	switch {
	case lead&0x80 == 0x00: // ASCII; DecodeRune would have accepted it
		return false
	case lead&0xE0 == 0xC0:
		want = 2
	case lead&0xF0 == 0xE0:
		want = 3
	case lead&0xF8 == 0xF0:
		want = 4
	default:
		return false // not a valid lead byte at all
	}
	if len(b) >= want {
		return false // we have enough bytes; DecodeRune already rejected it
	}
	for _, c := range b[1:] {
		if c&0xC0 != 0x80 {
			return false // a non-continuation byte in the tail: not incomplete, just invalid
		}
	}
	return true
}
