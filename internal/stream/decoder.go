// Package stream implements incremental decoding and parsing of the
// newline-delimited reasoning event stream.
package stream

import "bytes"

// LineDecoder reassembles complete text lines from raw byte chunks of a
// streaming response body. Chunks may split a line, or a multi-byte rune,
// at any byte: the decoder buffers raw bytes and only converts to string
// once a full line is available, so the same byte stream always yields the
// same lines regardless of chunk boundaries. One instance per stream.
type LineDecoder struct {
	buf []byte
}

// Decode consumes the next chunk and returns any newly completed lines, in
// order. A line is terminated by '\n'; a trailing '\r' is stripped. Any
// trailing partial line is retained for the next call.
func (d *LineDecoder) Decode(chunk []byte) []string {
	d.buf = append(d.buf, chunk...)

	var lines []string
	for {
		i := bytes.IndexByte(d.buf, '\n')
		if i < 0 {
			break
		}
		lines = append(lines, string(bytes.TrimSuffix(d.buf[:i], []byte{'\r'})))
		d.buf = d.buf[i+1:]
	}
	return lines
}

// Flush returns any buffered partial line at end of stream. The second
// return is false when nothing was buffered.
func (d *LineDecoder) Flush() (string, bool) {
	if len(d.buf) == 0 {
		return "", false
	}
	line := string(bytes.TrimSuffix(d.buf, []byte{'\r'}))
	d.buf = nil
	return line, true
}
