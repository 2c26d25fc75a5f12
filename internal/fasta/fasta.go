// Package fasta reads query-sequence streams in FASTA format into
// domain.Chunk batches, the unit the pipeline scheduler's ingest stage
// hands to the driver.
package fasta

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/evoplace/placer/internal/domain"
)

// FormatError reports a malformed FASTA record, naming the 1-based input
// line it was found on.
type FormatError struct {
	Line int
	Msg  string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("fasta: line %d: %s", e.Line, e.Msg)
}

// Reader streams (header, sequence) records out of a FASTA file one at a
// time, without materializing the whole alignment in memory.
type Reader struct {
	sc       *bufio.Scanner
	line     int
	pending  string // a '>' line already consumed by the previous Next
	hasMore  bool
	alignLen int // set once the first record is seen; 0 means unset
}

// NewReader wraps r as a FASTA record stream.
func NewReader(r io.Reader) *Reader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	return &Reader{sc: sc, hasMore: true}
}

// Next returns the next (header, sequence) record, or io.EOF when the
// stream is exhausted. All sequences in one stream must share the length
// of the stream's first record; a mismatch is reported as *FormatError.
func (r *Reader) Next() (domain.Record, error) {
	header := r.pending
	r.pending = ""
	if header == "" {
		var ok bool
		header, ok = r.nextHeaderLine()
		if !ok {
			return domain.Record{}, io.EOF
		}
	}

	var seq strings.Builder
	for r.sc.Scan() {
		r.line++
		line := strings.TrimSpace(r.sc.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, ">") {
			r.pending = strings.TrimSpace(line[1:])
			break
		}
		seq.WriteString(line)
	}
	if err := r.sc.Err(); err != nil {
		return domain.Record{}, err
	}
	if r.pending == "" {
		r.hasMore = false
	}

	sequence := seq.String()
	if sequence == "" {
		return domain.Record{}, &FormatError{Line: r.line, Msg: "record " + header + " has an empty sequence"}
	}
	if r.alignLen == 0 {
		r.alignLen = len(sequence)
	} else if len(sequence) != r.alignLen {
		return domain.Record{}, &FormatError{
			Line: r.line,
			Msg:  fmt.Sprintf("record %q has length %d, want %d (length of the stream's first record)", header, len(sequence), r.alignLen),
		}
	}

	return domain.Record{Header: header, Sequence: sequence}, nil
}

func (r *Reader) nextHeaderLine() (string, bool) {
	if !r.hasMore {
		return "", false
	}
	for r.sc.Scan() {
		r.line++
		line := strings.TrimSpace(r.sc.Text())
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, ">") {
			r.hasMore = false
			return "", false
		}
		return strings.TrimSpace(line[1:]), true
	}
	r.hasMore = false
	return "", false
}

// ReadChunks drains r into fixed-size domain.Chunk batches of chunkSize
// records, invoking emit for each. The final chunk (which may be smaller
// than chunkSize, including empty if the stream divides evenly) has
// IsLast set; emit is always called at least once so a caller sees the
// end-of-stream marker even for an empty input.
func ReadChunks(r *Reader, chunkSize int, emit func(*domain.Chunk) error) error {
	if chunkSize < 1 {
		chunkSize = 1
	}
	var buf []domain.Record
	flush := func(isLast bool) error {
		chunk := &domain.Chunk{Records: buf, IsLast: isLast}
		buf = nil
		return emit(chunk)
	}

	for {
		rec, err := r.Next()
		if err == io.EOF {
			return flush(true)
		}
		if err != nil {
			return err
		}
		buf = append(buf, rec)
		if len(buf) == chunkSize {
			if err := flush(false); err != nil {
				return err
			}
		}
	}
}
