package core

// streaming.go wraps raw input for the delimited reader without loading the
// file into memory:
//
//   - countingReader tracks bytes consumed for progress logging
//   - newStreamingSource buffers the input and drops a leading UTF-8 BOM
//
// Invalid UTF-8 is replaced with '?' by the tokenizer as it decodes runes.

import (
	"bufio"
	"bytes"
	"io"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// streamBufferSize is the read buffer for input files.
const streamBufferSize = 64 * 1024

// countingReader wraps an io.Reader to track bytes read.
type countingReader struct {
	reader    io.Reader
	bytesRead int64
	total     int64 // 0 if unknown
}

func (r *countingReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	r.bytesRead += int64(n)
	return n, err
}

// Progress returns the read progress as a percentage (0-100).
// Returns 0 if total is unknown.
func (r *countingReader) Progress() int {
	if r.total <= 0 {
		return 0
	}
	p := int(r.bytesRead * 100 / r.total)
	if p > 100 {
		p = 100
	}
	return p
}

// newStreamingSource returns a buffered reader positioned after any BOM, and
// the counter beneath it.
func newStreamingSource(r io.Reader, totalSize int64) (*bufio.Reader, *countingReader) {
	counter := &countingReader{reader: r, total: totalSize}
	br := bufio.NewReaderSize(counter, streamBufferSize)

	// Peek returns fewer bytes with an error on short input; that is fine
	if head, _ := br.Peek(len(utf8BOM)); bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}
	return br, counter
}
