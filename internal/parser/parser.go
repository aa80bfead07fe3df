// Package parser provides fast FASTQ file parsing.
package parser

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
)

// Record represents a single FASTQ record.
type Record struct {
	ID             string // Identifier without the leading '@', up to the first space or tab
	Description    string // Remainder of the header line after the separator
	HasDescription bool   // Whether the header line carried a description at all
	Sequence       []byte // DNA sequence (A, C, G, T, N)
	Quality        []byte // Quality scores (Phred+33 encoded)
}

// Header returns the header line without the leading '@'.
func (r *Record) Header() string {
	if !r.HasDescription {
		return r.ID
	}
	return r.ID + " " + r.Description
}

// Parser reads FASTQ records from an input stream.
type Parser struct {
	reader *bufio.Reader
	line   []byte // reusable buffer for reading lines
	count  int    // records returned so far
}

// New creates a new FASTQ parser.
func New(r io.Reader) *Parser {
	return &Parser{
		reader: bufio.NewReaderSize(r, 1<<20), // 1MB buffer
		line:   make([]byte, 0, 512),
	}
}

// Next reads and returns the next FASTQ record.
// Returns io.EOF when no more records are available. A stream that ends
// inside a record yields io.ErrUnexpectedEOF.
func (p *Parser) Next() (*Record, error) {
	rec := &Record{}

	// Line 1: Header (starts with @)
	line, err := p.readLine()
	if err != nil {
		return nil, err
	}
	if len(line) == 0 || line[0] != '@' {
		return nil, p.invalid("header line must start with @")
	}
	rec.ID, rec.Description, rec.HasDescription = splitHeader(line[1:])
	if rec.ID == "" {
		return nil, p.invalid("empty record identifier")
	}

	// Line 2: Sequence
	line, err = p.readBody()
	if err != nil {
		return nil, err
	}
	rec.Sequence = make([]byte, len(line))
	copy(rec.Sequence, line)

	// Line 3: Plus line (we ignore it)
	line, err = p.readBody()
	if err != nil {
		return nil, err
	}
	if len(line) == 0 || line[0] != '+' {
		return nil, p.invalid("separator line must start with +")
	}

	// Line 4: Quality scores
	line, err = p.readBody()
	if err != nil {
		return nil, err
	}
	rec.Quality = make([]byte, len(line))
	copy(rec.Quality, line)

	// Validate lengths match
	if len(rec.Sequence) != len(rec.Quality) {
		return nil, p.invalid("sequence and quality lengths must match")
	}

	p.count++
	return rec, nil
}

// Count returns the number of records parsed successfully.
func (p *Parser) Count() int {
	return p.count
}

func (p *Parser) invalid(msg string) error {
	return fmt.Errorf("invalid FASTQ at record %d: %s", p.count+1, msg)
}

// splitHeader separates the identifier from the description at the first
// space or tab.
func splitHeader(header []byte) (id, desc string, hasDesc bool) {
	i := bytes.IndexAny(header, " \t")
	if i < 0 {
		return string(header), "", false
	}
	return string(header[:i]), string(header[i+1:]), true
}

// readBody reads a line that must exist because a record has started.
func (p *Parser) readBody() ([]byte, error) {
	line, err := p.readLine()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("invalid FASTQ at record %d: %w", p.count+1, io.ErrUnexpectedEOF)
	}
	return line, err
}

// readLine reads a line from the input, stripping the newline.
// Reuses an internal buffer to minimize allocations.
func (p *Parser) readLine() ([]byte, error) {
	p.line = p.line[:0]

	for {
		segment, isPrefix, err := p.reader.ReadLine()
		if err != nil {
			return nil, err
		}

		p.line = append(p.line, segment...)

		if !isPrefix {
			break
		}
	}

	// Trim any trailing CR (for Windows line endings)
	p.line = bytes.TrimSuffix(p.line, []byte{'\r'})

	return p.line, nil
}
