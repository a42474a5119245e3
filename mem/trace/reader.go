// Package trace reads memory-access traces and records what the cache does
// with each access.
package trace

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/sarchlab/cachesim/mem/cache"
)

// ErrUnknownOp is wrapped by a ParseError when the operation is neither a
// load nor a store. Callers usually skip such records.
var ErrUnknownOp = errors.New("unrecognized trace operation")

// ErrMalformed is wrapped by a ParseError when a line does not have the
// expected fields.
var ErrMalformed = errors.New("malformed trace line")

// A Record is one decoded trace line.
type Record struct {
	Kind         cache.AccessKind
	Address      uint64
	Instructions uint64
}

// ParseError tells which line of a trace could not be decoded.
type ParseError struct {
	Line int
	Text string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("trace line %d %q: %v", e.Line, e.Text, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Reader decodes trace lines of the form `<l|s> <hex address> <count>`.
type Reader struct {
	scanner *bufio.Scanner
	line    int
}

// NewReader creates a Reader over r.
func NewReader(r io.Reader) *Reader {
	return &Reader{scanner: bufio.NewScanner(r)}
}

// Line returns the number of the last line read, starting from 1.
func (r *Reader) Line() int {
	return r.line
}

// Next returns the next record. It returns io.EOF after the last record and a
// *ParseError for a line that cannot be decoded; reading may continue after a
// ParseError.
func (r *Reader) Next() (Record, error) {
	for r.scanner.Scan() {
		r.line++

		text := strings.TrimSpace(r.scanner.Text())
		if text == "" {
			continue
		}

		rec, err := ParseLine(text)
		if err != nil {
			return Record{}, &ParseError{Line: r.line, Text: text, Err: err}
		}

		return rec, nil
	}

	if err := r.scanner.Err(); err != nil {
		return Record{}, err
	}

	return Record{}, io.EOF
}

// ParseLine decodes one non-empty trace line.
func ParseLine(text string) (Record, error) {
	fields := strings.Fields(text)
	if len(fields) != 3 {
		return Record{}, fmt.Errorf("%w: want 3 fields, got %d",
			ErrMalformed, len(fields))
	}

	var rec Record

	switch fields[0] {
	case "l":
		rec.Kind = cache.Load
	case "s":
		rec.Kind = cache.Store
	default:
		return Record{}, fmt.Errorf("%w: %q", ErrUnknownOp, fields[0])
	}

	hex := strings.TrimPrefix(strings.TrimPrefix(fields[1], "0x"), "0X")

	addr, err := strconv.ParseUint(hex, 16, 64)
	if err != nil {
		return Record{}, fmt.Errorf("%w: address %q", ErrMalformed, fields[1])
	}

	count, err := strconv.ParseUint(fields[2], 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("%w: instruction count %q",
			ErrMalformed, fields[2])
	}

	rec.Address = addr
	rec.Instructions = count

	return rec, nil
}

// FormatRecord renders a record back into trace syntax.
func FormatRecord(rec Record) string {
	op := "l"
	if rec.Kind == cache.Store {
		op = "s"
	}

	return fmt.Sprintf("%s 0x%x %d", op, rec.Address, rec.Instructions)
}
