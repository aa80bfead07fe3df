// Package rewrite builds new FASTQ records carrying a UMI.
//
// Every function here is pure: the input record is never modified and the
// returned record shares no memory with it.
package rewrite

import (
	"errors"
	"fmt"
	"slices"
	"unicode/utf8"

	"github.com/vertti/umitransfer/internal/parser"
)

// DefaultDelimiter separates the original identifier from the UMI.
const DefaultDelimiter = ":"

var (
	// ErrEncoding reports a sequence or quality string that is not valid text.
	ErrEncoding = errors.New("invalid text encoding")
	// ErrMissingDescription reports a read-number override on a record
	// without a description to carry it.
	ErrMissingDescription = errors.New("record has no description to edit the read number in")
	// ErrReadNumber reports a read number that is not a single digit.
	ErrReadNumber = errors.New("read number must be a single digit")
)

// Mode selects where the UMI is placed.
type Mode uint8

const (
	// Header appends the UMI to the record identifier.
	Header Mode = iota
	// Inline prepends the UMI sequence and quality to the read.
	Inline
)

func (m Mode) String() string {
	switch m {
	case Header:
		return "header"
	case Inline:
		return "inline"
	default:
		return fmt.Sprintf("unknown(%d)", m)
	}
}

// ParseMode parses a destination mode from its string representation.
func ParseMode(name string) (Mode, error) {
	switch name {
	case "header":
		return Header, nil
	case "inline":
		return Inline, nil
	default:
		return 0, fmt.Errorf("unknown UMI destination: %q (want header or inline)", name)
	}
}

// ReadNumber is an optional override of the first character of a record
// description. The zero value keeps the description unchanged.
type ReadNumber struct {
	Digit int
	Set   bool
}

// Keep leaves the read number of a record untouched.
var Keep = ReadNumber{}

// SetReadNumber returns an override that writes digit.
func SetReadNumber(digit int) ReadNumber {
	return ReadNumber{Digit: digit, Set: true}
}

func (n ReadNumber) String() string {
	if !n.Set {
		return "keep"
	}
	return fmt.Sprint(n.Digit)
}

// Config controls how records are rewritten.
type Config struct {
	Mode      Mode
	Delimiter string // empty means DefaultDelimiter
}

// Apply rewrites rec with the UMI taken from umi according to the mode.
// A set readNumber replaces the first character of the description.
func (c Config) Apply(rec, umi *parser.Record, readNumber ReadNumber) (*parser.Record, error) {
	switch c.Mode {
	case Header:
		delim := c.Delimiter
		if delim == "" {
			delim = DefaultDelimiter
		}
		return ToHeader(rec, umi.Sequence, delim, readNumber)
	case Inline:
		return ToSequence(rec, umi.Sequence, umi.Quality, readNumber)
	default:
		return nil, fmt.Errorf("unknown UMI destination %v", c.Mode)
	}
}

// ToHeader returns a copy of rec whose identifier is extended by delim and
// the UMI sequence.
func ToHeader(rec *parser.Record, umi []byte, delim string, readNumber ReadNumber) (*parser.Record, error) {
	if !utf8.Valid(umi) {
		return nil, fmt.Errorf("UMI sequence of %s: %w", rec.ID, ErrEncoding)
	}
	desc, err := description(rec, readNumber)
	if err != nil {
		return nil, err
	}
	return &parser.Record{
		ID:             rec.ID + delim + string(umi),
		Description:    desc,
		HasDescription: rec.HasDescription,
		Sequence:       slices.Clone(rec.Sequence),
		Quality:        slices.Clone(rec.Quality),
	}, nil
}

// ToSequence returns a copy of rec with the UMI sequence and quality
// prepended to its own. The identifier is unchanged.
func ToSequence(rec *parser.Record, umi, umiQual []byte, readNumber ReadNumber) (*parser.Record, error) {
	for _, part := range [][]byte{umi, umiQual, rec.Sequence, rec.Quality} {
		if !utf8.Valid(part) {
			return nil, fmt.Errorf("sequence data of %s: %w", rec.ID, ErrEncoding)
		}
	}
	desc, err := description(rec, readNumber)
	if err != nil {
		return nil, err
	}
	return &parser.Record{
		ID:             rec.ID,
		Description:    desc,
		HasDescription: rec.HasDescription,
		Sequence:       slices.Concat(umi, rec.Sequence),
		Quality:        slices.Concat(umiQual, rec.Quality),
	}, nil
}

// description applies the read-number override to the first character.
func description(rec *parser.Record, readNumber ReadNumber) (string, error) {
	if !readNumber.Set {
		return rec.Description, nil
	}
	if readNumber.Digit < 0 || readNumber.Digit > 9 {
		return "", fmt.Errorf("%w: %d", ErrReadNumber, readNumber.Digit)
	}
	if !rec.HasDescription || rec.Description == "" {
		return "", fmt.Errorf("record %s: %w", rec.ID, ErrMissingDescription)
	}
	_, size := utf8.DecodeRuneInString(rec.Description)
	return string(rune('0'+readNumber.Digit)) + rec.Description[size:], nil
}
