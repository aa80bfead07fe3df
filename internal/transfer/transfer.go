// Package transfer moves UMIs from a dedicated FASTQ stream into the
// records of a read pair.
//
// The three inputs are consumed in lock-step. The run ends cleanly as soon
// as any input runs out, and fails on the first malformed record, the first
// identifier mismatch or the first failed write.
package transfer

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/vertti/umitransfer/internal/parser"
	"github.com/vertti/umitransfer/internal/rewrite"
)

// Stream names used in errors and logs.
const (
	Read1 = "read1"
	Read2 = "read2"
	UMI   = "umi"
)

// Source yields records in file order and io.EOF after the last one.
type Source interface {
	Next() (*parser.Record, error)
}

// Destination accepts rewritten records.
type Destination interface {
	Write(rec *parser.Record) error
}

// Sink is a Destination that must be finalized.
type Sink interface {
	Destination
	Close() error
}

// Stream is a named input.
type Stream struct {
	Name   string
	Path   string
	Source Source
}

// Config controls a run.
type Config struct {
	Rewrite rewrite.Config
	// Read2Number overrides the read number in read 2 descriptions.
	// Read 1 keeps its own.
	Read2Number rewrite.ReadNumber
}

// Summary describes a finished run.
type Summary struct {
	// Records is the number of pairs handed to the destinations. Sinks
	// buffer their output, so the pairs are only on disk once both sinks
	// closed without error; RunAndClose reports such a failure.
	Records int
	// Truncated is set when one input ended while another still had
	// records. The surplus records are not written.
	Truncated bool
}

// Pipeline runs transfers. The zero value is ready to use.
type Pipeline struct {
	Config Config
	Logger *slog.Logger
}

func (p *Pipeline) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return p.Logger
}

// RunAndClose runs the transfer and closes both sinks on every exit path.
// Close failures are joined with the run error.
func (p *Pipeline) RunAndClose(read1, read2, umi Stream, out1, out2 Sink) (summary Summary, err error) {
	defer func() {
		err = errors.Join(err, out1.Close(), out2.Close())
	}()
	return p.Run(read1, read2, umi, out1, out2)
}

// Run rewrites every read1/read2 pair with the UMI at the same position and
// writes the results to out1 and out2. Nothing is written for a position
// that fails validation or rewriting.
func (p *Pipeline) Run(read1, read2, umi Stream, out1, out2 Destination) (Summary, error) {
	log := p.logger()
	read1 = named(read1, Read1)
	read2 = named(read2, Read2)
	umi = named(umi, UMI)

	log.Debug("transferring UMIs",
		"destination", p.Config.Rewrite.Mode,
		"read2_number", p.Config.Read2Number)

	// Pulled in the order read1, umi, read2. Once a stream ends the later
	// ones are not read for that position.
	var summary Summary
	streams := [3]Stream{read1, umi, read2}
	var recs [3]*parser.Record
	for {
		ended := -1
		for i, s := range streams {
			rec, err := s.Source.Next()
			if errors.Is(err, io.EOF) {
				ended = i
				break
			}
			if err != nil {
				return summary, &DecodeError{Stream: s.Name, Path: s.Path, Err: err}
			}
			recs[i] = rec
		}
		if ended >= 0 {
			summary.Truncated = ended > 0 || probe(log, streams[ended+1:])
			break
		}

		pos := summary.Records + 1
		r1, u, r2 := recs[0], recs[1], recs[2]
		if r1.ID != u.ID {
			return summary, &MismatchError{Stream: read1.Name, Record: pos, ReadID: r1.ID, UMIID: u.ID}
		}
		if r2.ID != u.ID {
			return summary, &MismatchError{Stream: read2.Name, Record: pos, ReadID: r2.ID, UMIID: u.ID}
		}

		new1, err := p.Config.Rewrite.Apply(r1, u, rewrite.Keep)
		if err != nil {
			return summary, &RewriteError{Stream: read1.Name, Record: pos, Err: err}
		}
		new2, err := p.Config.Rewrite.Apply(r2, u, p.Config.Read2Number)
		if err != nil {
			return summary, &RewriteError{Stream: read2.Name, Record: pos, Err: err}
		}

		if err := out1.Write(new1); err != nil {
			return summary, fmt.Errorf("writing record %d of %s: %w", pos, read1.Name, err)
		}
		if err := out2.Write(new2); err != nil {
			return summary, fmt.Errorf("writing record %d of %s: %w", pos, read2.Name, err)
		}
		summary.Records = pos
	}

	if summary.Truncated {
		log.Warn("inputs have different numbers of records; surplus records were dropped",
			"records", summary.Records)
	}
	log.Debug("transfer complete", "records", summary.Records)
	return summary, nil
}

// probe reports whether any of the streams still has a record. Errors are
// logged and otherwise ignored since the run is already complete.
func probe(log *slog.Logger, streams []Stream) bool {
	for _, s := range streams {
		_, err := s.Source.Next()
		switch {
		case err == nil:
			return true
		case !errors.Is(err, io.EOF):
			log.Debug("ignoring error past the end of the transfer", "stream", s.Name, "error", err)
		}
	}
	return false
}

func named(s Stream, name string) Stream {
	if s.Name == "" {
		s.Name = name
	}
	return s
}
