// Package sink writes FASTQ records to a destination, optionally through a
// block-parallel gzip compressor.
package sink

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/vertti/umitransfer/internal/compress"
	"github.com/vertti/umitransfer/internal/parser"
)

// Kind tells whether a sink compresses its output.
type Kind uint8

const (
	Plain Kind = iota
	Compressed
)

func (k Kind) String() string {
	if k == Compressed {
		return "gzip"
	}
	return "plain"
}

// Options configures a sink.
type Options struct {
	Compress  bool
	Threads   int // compression workers; values below 1 mean 1
	Level     int // gzip level, clamped to [1,9]; 0 selects the library default
	BlockSize int // uncompressed bytes per compressed block; 0 selects the default
}

// Error describes a failure of a sink operation.
type Error struct {
	Path string
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("output %s: %s: %v", e.Path, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Sink accepts records from a single writer. Close must run on every exit
// path so buffered data and trailing compressed blocks reach the destination.
type Sink struct {
	path    string
	kind    Kind
	records *parser.Writer
	buf     *bufio.Writer
	zw      io.WriteCloser // nil for Plain
	dest    io.Closer      // owned destination, nil when the caller owns it
	count   int
	closed  bool
	err     error
}

// New returns a sink writing to dst. name labels errors. dst is not closed
// by the sink.
func New(dst io.Writer, name string, opts Options) (*Sink, error) {
	s := &Sink{path: name}

	out := dst
	if opts.Compress {
		zw, err := compress.NewWriter(dst, &compress.Options{
			BlockSize: opts.BlockSize,
			Workers:   opts.Threads,
			Level:     opts.Level,
		})
		if err != nil {
			return nil, &Error{Path: name, Op: "create", Err: err}
		}
		s.kind = Compressed
		s.zw = zw
		out = zw
	}

	s.buf = bufio.NewWriterSize(out, 1<<20)
	s.records = parser.NewWriter(s.buf)
	return s, nil
}

// Create creates or truncates the file at path and returns a sink that owns it.
func Create(path string, opts Options) (*Sink, error) {
	f, err := os.Create(path) //nolint:gosec // CLI tool needs to create user-specified files
	if err != nil {
		return nil, &Error{Path: path, Op: "create", Err: err}
	}
	s, err := New(f, path, opts)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	s.dest = f
	return s, nil
}

// Path returns the name the sink was created with.
func (s *Sink) Path() string { return s.path }

// Kind reports whether the sink compresses.
func (s *Sink) Kind() Kind { return s.kind }

// Count returns the number of records written.
func (s *Sink) Count() int { return s.count }

// Write appends the FASTQ encoding of rec.
func (s *Sink) Write(rec *parser.Record) error {
	if s.closed {
		return &Error{Path: s.path, Op: "write", Err: os.ErrClosed}
	}
	if s.err != nil {
		return s.err
	}
	if err := s.records.Write(rec); err != nil {
		s.err = &Error{Path: s.path, Op: "write", Err: err}
		return s.err
	}
	s.count++
	return nil
}

// Close flushes buffered records, finishes compression and releases an
// owned destination. It reports the first failure and is idempotent.
func (s *Sink) Close() error {
	if s.closed {
		return s.err
	}
	s.closed = true

	var errs []error
	if s.err == nil {
		if err := s.buf.Flush(); err != nil {
			errs = append(errs, &Error{Path: s.path, Op: "flush", Err: err})
		}
	}
	if s.zw != nil {
		if err := s.zw.Close(); err != nil {
			errs = append(errs, &Error{Path: s.path, Op: "finish compression", Err: err})
		}
	}
	if s.dest != nil {
		if err := s.dest.Close(); err != nil {
			errs = append(errs, &Error{Path: s.path, Op: "close", Err: err})
		}
	}
	if s.err == nil {
		s.err = errors.Join(errs...)
	}
	return s.err
}
