// Package compress provides block-parallel gzip compression.
//
// The output of a parallel Writer is a sequence of complete gzip members,
// one per block, written in input order. Any conforming gzip decoder reads
// such a stream as the concatenation of the blocks.
package compress

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/gzip"
	"golang.org/x/sync/errgroup"
)

// DefaultBlockSize is the default number of uncompressed bytes per block.
const DefaultBlockSize = 1 << 20

// Compression level bounds.
const (
	MinLevel = gzip.BestSpeed
	MaxLevel = gzip.BestCompression
)

// ErrClosed is returned by writes after Close.
var ErrClosed = errors.New("compress: write to closed writer")

// Options configures compression behavior.
type Options struct {
	BlockSize int // Uncompressed bytes per block (default: 1 MiB)
	Workers   int // Number of parallel compression workers (default: 1)
	Level     int // Gzip level, clamped to [1,9]; 0 selects the library default
}

// ClampLevel maps level into the valid gzip range. 0 selects the default.
func ClampLevel(level int) int {
	switch {
	case level == 0:
		return gzip.DefaultCompression
	case level < MinLevel:
		return MinLevel
	case level > MaxLevel:
		return MaxLevel
	default:
		return level
	}
}

// compressJob represents a block to be compressed.
type compressJob struct {
	seqNum int
	data   *bytes.Buffer
}

// compressResult represents a compressed block.
type compressResult struct {
	seqNum int
	data   []byte
}

var blockBufferPool = sync.Pool{
	New: func() any {
		return new(bytes.Buffer)
	},
}

// NewWriter returns a gzip writer on w. With a single worker it streams one
// gzip member; otherwise blocks are compressed by a pool of opts.Workers
// goroutines and written in order. Close must be called to flush the last
// block and stop the workers.
func NewWriter(w io.Writer, opts *Options) (io.WriteCloser, error) {
	if opts == nil {
		opts = &Options{}
	}
	level := ClampLevel(opts.Level)
	workers := max(opts.Workers, 1)
	blockSize := opts.BlockSize
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}

	// Single worker path (simpler, no goroutine overhead)
	if workers == 1 {
		gw, err := gzip.NewWriterLevel(w, level)
		if err != nil {
			return nil, fmt.Errorf("creating gzip encoder: %w", err)
		}
		return gw, nil
	}

	return newParallelWriter(w, workers, blockSize, level), nil
}

// parallelWriter splits its input into blocks and compresses them on a
// bounded worker pool. It is not safe for concurrent use.
type parallelWriter struct {
	blockSize int
	block     *bytes.Buffer
	seqNum    int

	ctx     context.Context
	cancel  context.CancelCauseFunc
	group   *errgroup.Group
	jobs    chan compressJob
	results chan compressResult

	collectorErr  error
	collectorDone chan struct{}

	closed bool
	err    error
}

func newParallelWriter(w io.Writer, workers, blockSize, level int) *parallelWriter {
	parent, cancel := context.WithCancelCause(context.Background())
	g, ctx := errgroup.WithContext(parent)

	pw := &parallelWriter{
		blockSize:     blockSize,
		block:         newBlock(blockSize),
		ctx:           ctx,
		cancel:        cancel,
		group:         g,
		jobs:          make(chan compressJob, workers*2),
		results:       make(chan compressResult, workers*2),
		collectorDone: make(chan struct{}),
	}

	// Start workers
	for range workers {
		g.Go(func() error {
			return runCompressionWorker(ctx, pw.jobs, pw.results, level)
		})
	}

	// Collector: write results in order
	go func() {
		defer close(pw.collectorDone)
		pw.collectorErr = collectAndWriteResults(pw.results, w)
		if pw.collectorErr != nil {
			cancel(pw.collectorErr)
		}
	}()

	return pw
}

func newBlock(size int) *bytes.Buffer {
	buf := blockBufferPool.Get().(*bytes.Buffer) //nolint:errcheck // pool always returns *bytes.Buffer
	buf.Reset()
	buf.Grow(size)
	return buf
}

// Write buffers p and dispatches every full block. It blocks while the
// worker queue is full.
func (pw *parallelWriter) Write(p []byte) (int, error) {
	if pw.closed {
		return 0, ErrClosed
	}
	if pw.err != nil {
		return 0, pw.err
	}

	written := 0
	for len(p) > 0 {
		n := min(pw.blockSize-pw.block.Len(), len(p))
		pw.block.Write(p[:n])
		p = p[n:]
		written += n

		if pw.block.Len() >= pw.blockSize {
			if err := pw.dispatch(false); err != nil {
				return written, err
			}
		}
	}
	return written, nil
}

// dispatch hands the current block to the worker pool. An empty block is
// only sent as the final block of an empty stream, so the output is still a
// valid gzip file.
func (pw *parallelWriter) dispatch(final bool) error {
	if pw.block.Len() == 0 && !(final && pw.seqNum == 0) {
		return nil
	}
	select {
	case pw.jobs <- compressJob{seqNum: pw.seqNum, data: pw.block}:
		pw.seqNum++
		pw.block = newBlock(pw.blockSize)
		return nil
	case <-pw.ctx.Done():
		pw.err = context.Cause(pw.ctx)
		return pw.err
	}
}

// Close flushes the final block, waits for the workers and the collector,
// and returns the first error any of them hit. Close is idempotent.
func (pw *parallelWriter) Close() error {
	if pw.closed {
		return pw.err
	}
	pw.closed = true

	var dispatchErr error
	if pw.err == nil {
		dispatchErr = pw.dispatch(true)
	}
	close(pw.jobs)

	// Wait for workers
	workerErr := pw.group.Wait()
	close(pw.results)

	// Wait for collector
	<-pw.collectorDone
	pw.cancel(nil)

	switch {
	case pw.collectorErr != nil:
		pw.err = pw.collectorErr
	case workerErr != nil:
		pw.err = workerErr
	case dispatchErr != nil:
		pw.err = dispatchErr
	}
	return pw.err
}

func runCompressionWorker(ctx context.Context, jobs <-chan compressJob, results chan<- compressResult, level int) error {
	var out bytes.Buffer
	gw, err := gzip.NewWriterLevel(&out, level)
	if err != nil {
		return fmt.Errorf("creating gzip encoder: %w", err)
	}

	for job := range jobs {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		data, err := compressBlock(gw, &out, job.data.Bytes())
		blockBufferPool.Put(job.data)
		if err != nil {
			return fmt.Errorf("compressing block %d: %w", job.seqNum, err)
		}

		select {
		case results <- compressResult{seqNum: job.seqNum, data: data}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// compressBlock encodes block as one complete gzip member.
func compressBlock(gw *gzip.Writer, out *bytes.Buffer, block []byte) ([]byte, error) {
	out.Reset()
	gw.Reset(out)
	if _, err := gw.Write(block); err != nil {
		return nil, err
	}
	if err := gw.Close(); err != nil {
		return nil, err
	}
	// Copy output so the buffer can be reused
	data := make([]byte, out.Len())
	copy(data, out.Bytes())
	return data, nil
}

func collectAndWriteResults(results <-chan compressResult, w io.Writer) error {
	pending := make(map[int][]byte)
	nextSeqNum := 0

	for result := range results {
		pending[result.seqNum] = result.data

		// Write all sequential results available
		for {
			data, ok := pending[nextSeqNum]
			if !ok {
				break
			}
			if _, err := w.Write(data); err != nil {
				return fmt.Errorf("writing block %d: %w", nextSeqNum, err)
			}
			delete(pending, nextSeqNum)
			nextSeqNum++
		}
	}

	return nil
}
