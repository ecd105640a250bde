package core

// reader.go implements a streaming delimited-text tokenizer.
//
// encoding/csv is not used because it hardcodes '"' as the quote character,
// has no escape character, and aborts on the first malformed quote instead of
// letting the caller count the line and continue.

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"
)

// Default reader settings.
const (
	DefaultDelimiter = ','
	DefaultQuote     = '"'
	DefaultEscape    = '\\'
)

// ReaderOptions configure a DelimitedReader. Zero runes fall back to defaults.
type ReaderOptions struct {
	Delimiter  rune
	Quote      rune
	Escape     rune
	SkipHeader bool
}

func (o ReaderOptions) withDefaults() ReaderOptions {
	if o.Delimiter == 0 {
		o.Delimiter = DefaultDelimiter
	}
	if o.Quote == 0 {
		o.Quote = DefaultQuote
	}
	if o.Escape == 0 {
		o.Escape = DefaultEscape
	}
	return o
}

// Validate rejects option combinations the tokenizer cannot disambiguate.
func (o ReaderOptions) Validate() error {
	o = o.withDefaults()
	if o.Delimiter == o.Quote {
		return fmt.Errorf("delimiter and quote must differ (both %q)", o.Delimiter)
	}
	if o.Delimiter == '\n' || o.Delimiter == '\r' || o.Quote == '\n' || o.Quote == '\r' {
		return errors.New("delimiter and quote cannot be line breaks")
	}
	if o.Delimiter == utf8.RuneError || o.Quote == utf8.RuneError {
		return errors.New("delimiter and quote must be valid characters")
	}
	return nil
}

// Record is one logical line of input. Line is the 1-based physical line the
// record starts on. Malformed records still carry whatever fields were parsed.
type Record struct {
	Line      int
	Fields    []string
	Malformed bool
	Problem   string
}

// Blank reports whether the record is an empty line.
func (r Record) Blank() bool {
	return len(r.Fields) == 0 || (len(r.Fields) == 1 && strings.TrimSpace(r.Fields[0]) == "")
}

// DelimitedReader yields records lazily from a byte stream. It is not
// restartable and not safe for concurrent use.
type DelimitedReader struct {
	opts    ReaderOptions
	br      *bufio.Reader
	counter *countingReader
	closer  io.Closer

	line       int // physical line of the next rune
	headerDone bool
	eof        bool
	field      strings.Builder
}

// NewDelimitedReader reads records from r. size is used for progress
// reporting and may be 0.
func NewDelimitedReader(r io.Reader, size int64, opts ReaderOptions) *DelimitedReader {
	br, counter := newStreamingSource(r, size)
	return &DelimitedReader{
		opts:    opts.withDefaults(),
		br:      br,
		counter: counter,
		line:    1,
	}
}

// OpenDelimitedFile checks that path is a readable regular file and opens it.
// Every failure is a *FileAccessError and no record has been produced.
func OpenDelimitedFile(path string, opts ReaderOptions) (*DelimitedReader, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &FileAccessError{Path: path, Op: "stat", Err: err}
	}
	if info.IsDir() {
		return nil, &FileAccessError{Path: path, Op: "read", Err: errors.New("is a directory")}
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, &FileAccessError{Path: path, Op: "open", Err: err}
	}

	r := NewDelimitedReader(f, info.Size(), opts)
	r.closer = f
	return r, nil
}

// Close releases the underlying file, if any.
func (r *DelimitedReader) Close() error {
	if r.closer == nil {
		return nil
	}
	err := r.closer.Close()
	r.closer = nil
	return err
}

// BytesRead returns how much of the input has been consumed.
func (r *DelimitedReader) BytesRead() int64 { return r.counter.bytesRead }

// Progress returns the consumed share of the input as 0-100.
func (r *DelimitedReader) Progress() int { return r.counter.Progress() }

// Next returns the next record, or io.EOF when the input is exhausted.
// Parse anomalies are reported on the record, never as an error. Only
// underlying I/O failures are returned as errors.
func (r *DelimitedReader) Next() (Record, error) {
	if !r.headerDone {
		r.headerDone = true
		if r.opts.SkipHeader {
			if _, err := r.next(); err != nil {
				return Record{}, err
			}
		}
	}
	return r.next()
}

func (r *DelimitedReader) next() (Record, error) {
	if r.eof {
		return Record{}, io.EOF
	}

	rec := Record{Line: r.line}
	r.field.Reset()

	const (
		stateFieldStart = iota
		stateUnquoted
		stateQuoted
		stateAfterQuote
	)
	state := stateFieldStart
	sawAny := false

	endField := func() {
		rec.Fields = append(rec.Fields, r.field.String())
		r.field.Reset()
	}
	markMalformed := func(problem string) {
		if !rec.Malformed {
			rec.Malformed = true
			rec.Problem = problem
		}
	}

	for {
		c, size, err := r.br.ReadRune()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				return Record{}, fmt.Errorf("read line %d: %w", r.line, err)
			}
			r.eof = true
			if !sawAny {
				return Record{}, io.EOF
			}
			quoted := state == stateQuoted
			if quoted {
				markMalformed(fmt.Sprintf("unterminated quoted field starting on line %d", rec.Line))
			}
			endField()
			if !quoted && state != stateAfterQuote {
				trimCR(rec.Fields)
			}
			return rec, nil
		}
		sawAny = true
		if c == utf8.RuneError && size == 1 {
			c = '?'
		}

		switch state {
		case stateQuoted:
			switch {
			case c == r.opts.Escape && r.opts.Escape != r.opts.Quote:
				nc, nsize, nerr := r.br.ReadRune()
				if nerr != nil {
					// dangling escape at EOF; keep it literally
					r.field.WriteRune(c)
					continue
				}
				if nc == utf8.RuneError && nsize == 1 {
					nc = '?'
				}
				if nc == '\n' {
					r.line++
				}
				if nc != r.opts.Quote && nc != r.opts.Escape {
					// escape only protects the quote and itself
					r.field.WriteRune(c)
				}
				r.field.WriteRune(nc)
			case c == r.opts.Quote:
				if peek, _ := r.peekRune(); peek == r.opts.Quote {
					_, _, _ = r.br.ReadRune()
					r.field.WriteRune(c)
					continue
				}
				state = stateAfterQuote
			default:
				if c == '\n' {
					r.line++
				}
				r.field.WriteRune(c)
			}

		case stateAfterQuote:
			switch c {
			case r.opts.Delimiter:
				endField()
				state = stateFieldStart
			case '\r':
				// tolerate CRLF
			case '\n':
				r.line++
				endField()
				return rec, nil
			default:
				markMalformed(fmt.Sprintf("unexpected %q after closing quote", c))
				r.field.WriteRune(c)
				state = stateUnquoted
			}

		default: // stateFieldStart, stateUnquoted
			switch c {
			case r.opts.Delimiter:
				endField()
				state = stateFieldStart
			case '\n':
				r.line++
				endField()
				trimCR(rec.Fields)
				return rec, nil
			default:
				if c == r.opts.Quote && state == stateFieldStart {
					state = stateQuoted
					continue
				}
				r.field.WriteRune(c)
				state = stateUnquoted
			}
		}
	}
}

func (r *DelimitedReader) peekRune() (rune, error) {
	for n := 1; n <= utf8.UTFMax; n++ {
		b, err := r.br.Peek(n)
		if len(b) < n {
			return utf8.RuneError, err
		}
		if utf8.FullRune(b) {
			c, _ := utf8.DecodeRune(b)
			return c, nil
		}
	}
	return utf8.RuneError, nil
}

// trimCR removes the carriage return a CRLF line ending leaves on the last
// unquoted field.
func trimCR(fields []string) {
	if n := len(fields); n > 0 {
		fields[n-1] = strings.TrimSuffix(fields[n-1], "\r")
	}
}
