// Package config holds the options of a UMI transfer run.
//
// Options can be loaded from a YAML file. Command-line flags that were set
// explicitly take precedence over file values; see cmd/umi-transfer.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"

	"gopkg.in/yaml.v3"

	"github.com/vertti/umitransfer/internal/compress"
	"github.com/vertti/umitransfer/internal/rewrite"
)

// Options configures an external UMI transfer.
type Options struct {
	Read1 string `yaml:"read1"`
	Read2 string `yaml:"read2"`
	UMI   string `yaml:"umi"`
	Out   string `yaml:"out"`
	Out2  string `yaml:"out2"`

	EditReadNumber   bool   `yaml:"edit_read_number"`
	Compress         bool   `yaml:"compress"`
	CompressionLevel int    `yaml:"compression_level"` // 0 = library default
	Threads          int    `yaml:"threads"`           // 0 = all logical cores
	Delimiter        string `yaml:"delimiter"`
	Destination      string `yaml:"destination"` // header or inline
	Force            bool   `yaml:"force"`
	BlockSize        int    `yaml:"block_size"` // uncompressed bytes per gzip block
}

// Default returns the options used when nothing is configured.
func Default() Options {
	return Options{
		Delimiter:   rewrite.DefaultDelimiter,
		Destination: rewrite.Header.String(),
		BlockSize:   compress.DefaultBlockSize,
	}
}

// Load reads options from the YAML file at path on top of Default.
// Unknown keys are rejected.
func Load(path string) (Options, error) {
	opts := Default()
	data, err := os.ReadFile(path) //nolint:gosec // CLI tool needs to open user-specified files
	if err != nil {
		return opts, fmt.Errorf("reading config: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&opts); err != nil && !errors.Is(err, io.EOF) {
		return opts, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return opts, nil
}

// Validate reports every problem with the options at once.
func (o *Options) Validate() error {
	var errs []error
	for _, input := range []struct{ flag, value string }{
		{"--in", o.Read1},
		{"--in2", o.Read2},
		{"--umi", o.UMI},
	} {
		if input.value == "" {
			errs = append(errs, fmt.Errorf("missing required input %s", input.flag))
		}
	}
	if _, err := rewrite.ParseMode(o.Destination); err != nil {
		errs = append(errs, err)
	}
	if o.CompressionLevel != 0 && (o.CompressionLevel < compress.MinLevel || o.CompressionLevel > compress.MaxLevel) {
		errs = append(errs, fmt.Errorf("compression level %d out of range [%d,%d]",
			o.CompressionLevel, compress.MinLevel, compress.MaxLevel))
	}
	if o.Threads < 0 {
		errs = append(errs, fmt.Errorf("threads must not be negative, got %d", o.Threads))
	}
	if o.BlockSize < 0 {
		errs = append(errs, fmt.Errorf("block size must not be negative, got %d", o.BlockSize))
	}
	return errors.Join(errs...)
}

// Rewrite returns the rewrite configuration. Call Validate first.
func (o *Options) Rewrite() rewrite.Config {
	mode, _ := rewrite.ParseMode(o.Destination) //nolint:errcheck // validated
	return rewrite.Config{Mode: mode, Delimiter: o.Delimiter}
}

// correctedReadNumber is written into read 2 descriptions when
// EditReadNumber is set.
const correctedReadNumber = 2

// Read2Number returns the read-number override for read 2 records.
func (o *Options) Read2Number() rewrite.ReadNumber {
	if !o.EditReadNumber {
		return rewrite.Keep
	}
	return rewrite.SetReadNumber(correctedReadNumber)
}

// SinkThreads returns the compression workers for each of the two outputs.
func (o *Options) SinkThreads() int {
	available := o.Threads
	if available == 0 {
		available = runtime.NumCPU()
	}
	return int(compress.ThreadsPerTask(uint(available), 2)) //nolint:gosec // non-negative after Validate
}
