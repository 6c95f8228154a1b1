// Package fetcher opens local tabular sources (plain, gzip or zip-wrapped
// delimited text and XLSX reference sheets) and reads them tolerantly.
package fetcher

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
)

// DefaultMaxRecordLines bounds how many physical lines one quoted record may
// span before its opening line is treated as broken.
const DefaultMaxRecordLines = 64

// CSVOptions configures the tolerant CSV reader.
type CSVOptions struct {
	Delimiter  rune // default ','
	Comment    rune // comment character (0 = none)
	LazyQuotes bool
	TrimSpace  bool
	// MaxRecordLines caps a quoted field spanning lines (0 = DefaultMaxRecordLines).
	MaxRecordLines int
}

// MalformedError describes a record the reader dropped. Reading can continue
// after it.
type MalformedError struct {
	Line   int
	Reason string
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("csv: malformed record at line %d: %s", e.Line, e.Reason)
}

// IsMalformed reports whether err is a recoverable per-record error.
func IsMalformed(err error) bool {
	var me *MalformedError
	return errors.As(err, &me)
}

// CSVReader reads a header and then records of the same width. Records of a
// different width or with broken quoting are reported as *MalformedError
// instead of aborting the read.
//
// Input is split into physical lines before parsing. A record that spans
// lines is accepted only when its quotes close within MaxRecordLines and it
// has the header's width. Otherwise only its first line is dropped and the
// lines after it are read again as records of their own, so an unterminated
// quote costs one line rather than the rest of the source.
//
// Blank lines are skipped without being counted, as encoding/csv does.
type CSVReader struct {
	src     *bufio.Reader
	eof     bool
	lineNo  int
	pending []physLine
	lines   []physLine

	parser *csv.Reader
	feed   *recordFeed
	fed    int64

	quotes   quoteState
	maxLines int
	comment  string
	opts     CSVOptions
	header   []string
}

type physLine struct {
	text string
	n    int
}

// NewCSVReader wraps r.
func NewCSVReader(r io.Reader, opts CSVOptions) *CSVReader {
	if opts.Delimiter == 0 {
		opts.Delimiter = ','
	}
	c := &CSVReader{
		src:      bufio.NewReader(r),
		opts:     opts,
		quotes:   quoteState{comma: opts.Delimiter, lazy: opts.LazyQuotes},
		maxLines: opts.MaxRecordLines,
	}
	if c.maxLines <= 0 {
		c.maxLines = DefaultMaxRecordLines
	}
	if opts.Comment != 0 {
		c.comment = string(opts.Comment)
	}
	c.resetParser()
	return c
}

// Header reads the first record. It must be called before Read.
func (c *CSVReader) Header() ([]string, error) {
	if c.header != nil {
		return c.header, nil
	}
	record, err := c.next(0)
	if err == io.EOF {
		return nil, eris.New("csv: empty input, no header row")
	}
	if err != nil {
		return nil, eris.Wrap(err, "csv: read header")
	}
	c.trim(record)
	c.header = record
	return c.header, nil
}

// Read returns the next record. It returns io.EOF at the end of input, a
// *MalformedError for a record that was skipped, or a wrapped I/O error.
func (c *CSVReader) Read() ([]string, error) {
	if c.header == nil {
		if _, err := c.Header(); err != nil {
			return nil, err
		}
	}

	record, err := c.next(len(c.header))
	if err != nil {
		return nil, err
	}
	c.trim(record)
	return record, nil
}

// next assembles the physical lines of one record and parses them. A width
// of 0 accepts any number of fields.
func (c *CSVReader) next(width int) ([]string, error) {
	for {
		first, err := c.line()
		if err != nil {
			return nil, err
		}
		if c.skip(first.text) {
			continue
		}

		lines := append(c.lines[:0], first)
		var text strings.Builder
		text.WriteString(first.text)
		c.quotes.reset()
		c.quotes.scan(first.text)
		for c.quotes.inQuotes && len(lines) < c.maxLines {
			l, err := c.line()
			if err == io.EOF {
				break
			}
			if err != nil {
				return nil, err
			}
			lines = append(lines, l)
			text.WriteString(l.text)
			c.quotes.scan(l.text)
		}
		c.lines = lines

		if c.quotes.inQuotes {
			c.unread(lines[1:])
			return nil, &MalformedError{Line: first.n, Reason: "quoted field not terminated"}
		}

		record, err := c.parse(text.String())
		if err == io.EOF {
			continue
		}
		if err != nil {
			var pe *csv.ParseError
			if !errors.As(err, &pe) {
				return nil, eris.Wrap(err, "csv: parse row")
			}
			c.unread(lines[1:])
			return nil, &MalformedError{Line: first.n, Reason: pe.Err.Error()}
		}
		if width > 0 && len(record) != width {
			c.unread(lines[1:])
			return nil, &MalformedError{
				Line:   first.n,
				Reason: fmt.Sprintf("expected %d fields, got %d", width, len(record)),
			}
		}
		return record, nil
	}
}

// line returns the next physical line, including its terminator.
func (c *CSVReader) line() (physLine, error) {
	if len(c.pending) > 0 {
		l := c.pending[0]
		c.pending = c.pending[1:]
		return l, nil
	}
	if c.eof {
		return physLine{}, io.EOF
	}
	text, err := c.src.ReadString('\n')
	if err == io.EOF {
		c.eof = true
		if text == "" {
			return physLine{}, io.EOF
		}
	} else if err != nil {
		return physLine{}, eris.Wrap(err, "csv: read row")
	}
	c.lineNo++
	return physLine{text: text, n: c.lineNo}, nil
}

// unread queues lines to be read again before any new input.
func (c *CSVReader) unread(lines []physLine) {
	if len(lines) == 0 {
		return
	}
	queued := make([]physLine, 0, len(lines)+len(c.pending))
	queued = append(queued, lines...)
	c.pending = append(queued, c.pending...)
}

func (c *CSVReader) skip(text string) bool {
	if strings.TrimRight(text, "\r\n") == "" {
		return true
	}
	return c.comment != "" && strings.HasPrefix(text, c.comment)
}

// parse runs encoding/csv over the text of exactly one record. The parser is
// rebuilt whenever it did not consume all of it.
func (c *CSVReader) parse(text string) ([]string, error) {
	c.feed.s = text
	c.fed += int64(len(text))
	record, err := c.parser.Read()
	if err != nil || c.parser.InputOffset() != c.fed {
		c.resetParser()
	}
	return record, err
}

func (c *CSVReader) resetParser() {
	c.feed = &recordFeed{}
	c.fed = 0
	p := csv.NewReader(c.feed)
	p.Comma = c.opts.Delimiter
	p.LazyQuotes = c.opts.LazyQuotes
	p.FieldsPerRecord = -1 // width is checked against the header instead
	c.parser = p
}

func (c *CSVReader) trim(record []string) {
	if !c.opts.TrimSpace {
		return
	}
	for i, field := range record {
		record[i] = strings.TrimSpace(field)
	}
}

// recordFeed hands the parser one record's text at a time.
type recordFeed struct{ s string }

func (f *recordFeed) Read(p []byte) (int, error) {
	if f.s == "" {
		return 0, io.EOF
	}
	n := copy(p, f.s)
	f.s = f.s[n:]
	return n, nil
}

// quoteState follows encoding/csv's quoting rules far enough to tell whether
// a record's text so far ends inside a quoted field.
type quoteState struct {
	comma      rune
	lazy       bool
	inQuotes   bool
	fieldStart bool
}

func (q *quoteState) reset() {
	q.inQuotes = false
	q.fieldStart = true
}

func (q *quoteState) scan(line string) {
	for i := 0; i < len(line); {
		r, size := utf8.DecodeRuneInString(line[i:])
		i += size
		if q.inQuotes {
			if r != '"' {
				continue
			}
			rest := line[i:]
			next, _ := utf8.DecodeRuneInString(rest)
			switch {
			case next == '"':
				i++ // escaped quote
			case rest == "" || rest == "\n" || rest == "\r\n" || next == q.comma:
				q.inQuotes = false
			case !q.lazy:
				// encoding/csv rejects the record here.
				q.inQuotes = false
			}
			continue
		}
		switch {
		case r == '"' && q.fieldStart:
			q.inQuotes = true
			q.fieldStart = false
		case r == q.comma || r == '\n':
			q.fieldStart = true
		default:
			q.fieldStart = false
		}
	}
}
