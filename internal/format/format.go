// Package format detects the framing of FASTQ inputs and unwraps it.
package format

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"
)

// Kind identifies the framing of an input stream.
type Kind uint8

// Supported input framings.
const (
	Plain Kind = iota
	Gzip
	Zstd
)

// Magic bytes identifying compressed framings.
var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

func (k Kind) String() string {
	switch k {
	case Plain:
		return "plain"
	case Gzip:
		return "gzip"
	case Zstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", k)
	}
}

// Detect reports the framing of the stream behind br without consuming it.
func Detect(br *bufio.Reader) (Kind, error) {
	header, err := br.Peek(len(zstdMagic))
	if err != nil && !errors.Is(err, io.EOF) {
		return Plain, err
	}
	switch {
	case bytes.HasPrefix(header, gzipMagic):
		return Gzip, nil
	case bytes.HasPrefix(header, zstdMagic):
		return Zstd, nil
	default:
		return Plain, nil
	}
}

// NewReader returns a reader yielding the decompressed content of r.
// Concatenated gzip members are read as one stream.
func NewReader(r io.Reader) (io.ReadCloser, Kind, error) {
	br := bufio.NewReaderSize(r, 1<<20)
	kind, err := Detect(br)
	if err != nil {
		return nil, kind, fmt.Errorf("cannot inspect input: %w", err)
	}

	switch kind {
	case Gzip:
		gz, err := pgzip.NewReader(br)
		if err != nil {
			return nil, kind, fmt.Errorf("cannot open gzip input: %w", err)
		}
		return gz, kind, nil
	case Zstd:
		dec, err := zstd.NewReader(br)
		if err != nil {
			return nil, kind, fmt.Errorf("cannot open zstd input: %w", err)
		}
		return dec.IOReadCloser(), kind, nil
	default:
		return io.NopCloser(br), kind, nil
	}
}

// Open opens the file at path and unwraps its framing. Closing the returned
// reader also closes the file.
func Open(path string) (io.ReadCloser, Kind, error) {
	f, err := os.Open(path) //nolint:gosec // CLI tool needs to open user-specified files
	if err != nil {
		return nil, Plain, fmt.Errorf("cannot open input: %w", err)
	}
	rc, kind, err := NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, kind, err
	}
	return &fileReader{ReadCloser: rc, file: f}, kind, nil
}

type fileReader struct {
	io.ReadCloser
	file *os.File
}

func (r *fileReader) Close() error {
	return errors.Join(r.ReadCloser.Close(), r.file.Close())
}
