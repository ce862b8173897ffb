package stream

import (
	"reflect"
	"testing"
)

// decodeAll runs a full stream through the decoder in the given chunk
// sizes and returns every line including the flushed tail.
func decodeAll(t *testing.T, data []byte, chunkSizes []int) []string {
	t.Helper()

	d := &LineDecoder{}
	var lines []string
	offset := 0
	for _, size := range chunkSizes {
		end := offset + size
		if end > len(data) {
			end = len(data)
		}
		lines = append(lines, d.Decode(data[offset:end])...)
		offset = end
	}
	if offset < len(data) {
		lines = append(lines, d.Decode(data[offset:])...)
	}
	if tail, ok := d.Flush(); ok {
		lines = append(lines, tail)
	}
	return lines
}

func TestLineDecoder_ChunkBoundaryIndependence(t *testing.T) {
	data := []byte("data: {\"a\":1}\n\ndata: {\"b\":2}\nno marker here\ndata: tail")
	want := decodeAll(t, data, []int{len(data)})

	// Every possible split into two chunks must yield identical lines.
	for i := 0; i <= len(data); i++ {
		got := decodeAll(t, data, []int{i})
		if !reflect.DeepEqual(got, want) {
			t.Errorf("split at %d: got %q, want %q", i, got, want)
		}
	}

	// A pathological byte-at-a-time delivery too.
	sizes := make([]int, len(data))
	for i := range sizes {
		sizes[i] = 1
	}
	if got := decodeAll(t, data, sizes); !reflect.DeepEqual(got, want) {
		t.Errorf("byte-at-a-time: got %q, want %q", got, want)
	}
}

func TestLineDecoder_LineSplitAcrossChunks(t *testing.T) {
	d := &LineDecoder{}

	if lines := d.Decode([]byte(`data: {"a"`)); len(lines) != 0 {
		t.Fatalf("expected no complete lines yet, got %q", lines)
	}
	lines := d.Decode([]byte(":1}\n"))
	if len(lines) != 1 || lines[0] != `data: {"a":1}` {
		t.Fatalf("expected exactly one reassembled line, got %q", lines)
	}
}

func TestLineDecoder_MultiByteRuneSplitAcrossChunks(t *testing.T) {
	// "é" is 0xC3 0xA9; deliver the two bytes in separate chunks.
	d := &LineDecoder{}
	d.Decode([]byte{'h', 0xC3})
	lines := d.Decode([]byte{0xA9, '!', '\n'})
	if len(lines) != 1 || lines[0] != "hé!" {
		t.Fatalf("expected rune to survive the chunk boundary, got %q", lines)
	}
}

func TestLineDecoder_CRLF(t *testing.T) {
	d := &LineDecoder{}
	lines := d.Decode([]byte("one\r\ntwo\r\n"))
	want := []string{"one", "two"}
	if !reflect.DeepEqual(lines, want) {
		t.Fatalf("got %q, want %q", lines, want)
	}
}

func TestLineDecoder_Flush(t *testing.T) {
	d := &LineDecoder{}
	d.Decode([]byte("complete\npartial"))

	line, ok := d.Flush()
	if !ok || line != "partial" {
		t.Fatalf("expected flushed partial line, got %q ok=%v", line, ok)
	}

	if _, ok := d.Flush(); ok {
		t.Error("second flush should report nothing buffered")
	}
}

func TestLineDecoder_FlushEmpty(t *testing.T) {
	d := &LineDecoder{}
	d.Decode([]byte("complete\n"))
	if line, ok := d.Flush(); ok {
		t.Fatalf("expected no buffered content, got %q", line)
	}
}
