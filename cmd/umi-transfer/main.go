// umi-transfer moves Unique Molecular Identifiers from a separate FASTQ file
// into the read names of a paired-end FASTQ pair.
package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/vertti/umitransfer/internal/config"
	"github.com/vertti/umitransfer/internal/format"
	"github.com/vertti/umitransfer/internal/parser"
	"github.com/vertti/umitransfer/internal/sink"
	"github.com/vertti/umitransfer/internal/transfer"
)

var version = "dev"

const (
	exitSuccess = 0
	exitError   = 1
)

// env is the process environment a command runs in.
type env struct {
	stdin       *bufio.Reader
	stderr      io.Writer
	interactive bool // stdin is a terminal
	logger      *slog.Logger
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	e := env{
		stdin:       bufio.NewReader(os.Stdin),
		stderr:      os.Stderr,
		interactive: term.IsTerminal(int(os.Stdin.Fd())),
	}

	if len(args) == 0 {
		usage(e.stderr)
		return exitError
	}

	switch args[0] {
	case "external":
		if err := runExternal(args[1:], e); err != nil {
			fmt.Fprintf(e.stderr, "error: failed to include the UMIs: %v\n", err)
			return exitError
		}
		return exitSuccess
	case "--version", "-V", "version":
		fmt.Printf("umi-transfer version %s\n", version)
		return exitSuccess
	case "--help", "-h", "help":
		usage(os.Stdout)
		return exitSuccess
	default:
		fmt.Fprintf(e.stderr, "error: unknown command %q\n", args[0])
		usage(e.stderr)
		return exitError
	}
}

func usage(w io.Writer) {
	fmt.Fprintf(w, `umi-transfer - transfer UMIs into the read names of paired FASTQ files

Most tools that use UMIs for deduplication expect the UMI sequence to be
embedded into the read IDs. "umi-transfer external" takes the UMIs from a
separate FASTQ file and embeds them into the IDs of a read pair.

Usage:
  umi-transfer external --in R1.fq.gz --in2 R2.fq.gz --umi RU.fq.gz [options]

Run "umi-transfer external --help" for the options.
`)
}

// newLogger picks a text handler for terminals and JSON otherwise.
func newLogger(w io.Writer, verbose bool) *slog.Logger {
	options := &slog.HandlerOptions{Level: slog.LevelInfo}
	if verbose {
		options.Level = slog.LevelDebug
	}
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return slog.New(slog.NewTextHandler(w, options))
	}
	return slog.New(slog.NewJSONHandler(w, options))
}

// parseExternalFlags builds the options from an optional config file and
// the flags that were set explicitly.
func parseExternalFlags(args []string, stderr io.Writer) (config.Options, bool, bool, error) {
	defaults := config.Default()
	var opts config.Options
	var configPath string
	var verbose, showHelp bool

	flagSet := pflag.NewFlagSet("umi-transfer external", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVar(&opts.Read1, "in", "", "input file 1 with reads (.fq, .fq.gz or .fq.zst)")
	flagSet.StringVar(&opts.Read2, "in2", "", "input file 2 with reads")
	flagSet.StringVar(&opts.UMI, "umi", "", "input file with UMI reads")
	flagSet.StringVarP(&opts.Out, "out", "o", "", "output file for read 1 (default: <in>_with_UMIs.fq)")
	flagSet.StringVar(&opts.Out2, "out2", "", "output file for read 2 (default: <in2>_with_UMIs.fq)")
	flagSet.BoolVarP(&opts.EditReadNumber, "correct_numbers", "c", false, "set the read number of read 2 to 2 in its description")
	flagSet.BoolVarP(&opts.Compress, "gzip", "z", false, "compress output files with gzip")
	flagSet.IntVarP(&opts.CompressionLevel, "compression_level", "l", 0, "gzip compression level 1-9 (default: library default)")
	flagSet.IntVarP(&opts.Threads, "threads", "t", 0, "logical cores to use (default: all)")
	flagSet.StringVarP(&opts.Delimiter, "umi_delim", "d", defaults.Delimiter, "delimiter between read ID and UMI")
	flagSet.StringVar(&opts.Destination, "destination", defaults.Destination, "where to put the UMI: header or inline")
	flagSet.BoolVarP(&opts.Force, "force", "f", false, "overwrite existing output files without asking")
	flagSet.IntVar(&opts.BlockSize, "block_size", defaults.BlockSize, "uncompressed bytes per gzip block")
	flagSet.StringVar(&configPath, "config", "", "YAML file with default options")
	flagSet.BoolVarP(&verbose, "verbose", "v", false, "log debug details")
	flagSet.BoolVarP(&showHelp, "help", "h", false, "show help")

	if err := flagSet.Parse(args); err != nil {
		return opts, verbose, false, err
	}
	if showHelp {
		fmt.Fprintf(stderr, "Usage:\n  umi-transfer external [options]\n\nOptions:\n%s", flagSet.FlagUsages())
		return opts, verbose, true, nil
	}
	if configPath == "" {
		return opts, verbose, false, nil
	}

	// Flags given on the command line win over the config file.
	merged, err := config.Load(configPath)
	if err != nil {
		return opts, verbose, false, err
	}
	flagSet.Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "in":
			merged.Read1 = opts.Read1
		case "in2":
			merged.Read2 = opts.Read2
		case "umi":
			merged.UMI = opts.UMI
		case "out":
			merged.Out = opts.Out
		case "out2":
			merged.Out2 = opts.Out2
		case "correct_numbers":
			merged.EditReadNumber = opts.EditReadNumber
		case "gzip":
			merged.Compress = opts.Compress
		case "compression_level":
			merged.CompressionLevel = opts.CompressionLevel
		case "threads":
			merged.Threads = opts.Threads
		case "umi_delim":
			merged.Delimiter = opts.Delimiter
		case "destination":
			merged.Destination = opts.Destination
		case "force":
			merged.Force = opts.Force
		case "block_size":
			merged.BlockSize = opts.BlockSize
		}
	})
	return merged, verbose, false, nil
}

func runExternal(args []string, e env) error {
	opts, verbose, done, err := parseExternalFlags(args, e.stderr)
	if err != nil || done {
		return err
	}
	if err := opts.Validate(); err != nil {
		return err
	}

	logger := e.logger
	if logger == nil {
		logger = newLogger(e.stderr, verbose)
	}
	start := time.Now()

	out1, out2, err := resolveOutputs(&opts, e)
	if err != nil {
		return err
	}

	logger.Info("transferring UMIs to records", "read1", opts.Read1, "read2", opts.Read2, "umi", opts.UMI)
	summary, err := execute(opts, out1, out2, logger)
	if err != nil {
		return err
	}

	logger.Info(fmt.Sprintf("processed %d records", summary.Records),
		"records", summary.Records, "out", out1, "out2", out2)
	logger.Info(fmt.Sprintf("umi-transfer finished after %.1f seconds", time.Since(start).Seconds()))
	return nil
}

// execute opens the three inputs and two outputs and runs the transfer.
// Every opened file is closed on every path.
func execute(opts config.Options, out1, out2 string, logger *slog.Logger) (summary transfer.Summary, err error) {
	var inputs [3]transfer.Stream
	for i, in := range []struct{ name, path string }{
		{transfer.Read1, opts.Read1},
		{transfer.Read2, opts.Read2},
		{transfer.UMI, opts.UMI},
	} {
		rc, kind, err := format.Open(in.path)
		if err != nil {
			return summary, fmt.Errorf("%s %s: %w", in.name, in.path, err)
		}
		defer rc.Close() //nolint:errcheck // read side, errors surface through decoding
		logger.Debug("opened input", "stream", in.name, "path", in.path, "format", kind)
		inputs[i] = transfer.Stream{Name: in.name, Path: in.path, Source: parser.New(rc)}
	}

	sinkOpts := sink.Options{
		Compress:  opts.Compress,
		Threads:   opts.SinkThreads(),
		Level:     opts.CompressionLevel,
		BlockSize: opts.BlockSize,
	}
	if opts.Compress {
		logger.Debug("compression threads per output", "threads", sinkOpts.Threads)
	}

	s1, err := sink.Create(out1, sinkOpts)
	if err != nil {
		return summary, err
	}
	s2, err := sink.Create(out2, sinkOpts)
	if err != nil {
		return summary, errors.Join(err, s1.Close())
	}

	p := &transfer.Pipeline{
		Config: transfer.Config{Rewrite: opts.Rewrite(), Read2Number: opts.Read2Number()},
		Logger: logger,
	}
	return p.RunAndClose(inputs[0], inputs[1], inputs[2], s1, s2)
}
