package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/vertti/umitransfer/internal/config"
)

const outputSuffix = "_with_UMIs"

var errNotTerminal = errors.New("stdin is not a terminal, use --force to overwrite")

// resolveOutputs derives and checks both output paths before any input is read.
func resolveOutputs(opts *config.Options, e env) (string, string, error) {
	out1 := outputPath(opts.Read1, opts.Out, opts.Compress)
	out2 := outputPath(opts.Read2, opts.Out2, opts.Compress)
	if sameFile(out1, out2) {
		return "", "", fmt.Errorf("both outputs resolve to %s", out1)
	}

	// Inputs are never overwritten, not even with --force.
	for _, path := range []string{out1, out2} {
		for _, input := range []string{opts.Read1, opts.Read2, opts.UMI} {
			if sameFile(path, input) {
				return "", "", fmt.Errorf("output file %s would overwrite input %s", path, input)
			}
		}
	}

	for _, path := range []string{out1, out2} {
		if err := checkOutputDir(path); err != nil {
			return "", "", err
		}
		if err := checkOverwrite(path, opts.Force, e); err != nil {
			return "", "", err
		}
	}
	return out1, out2, nil
}

// outputPath returns explicit with its .gz suffix matching compress, or a
// name derived from input when explicit is empty.
func outputPath(input, explicit string, compress bool) string {
	path := explicit
	if path == "" {
		path = stem(input) + outputSuffix + ".fq"
	}

	hasGz := strings.HasSuffix(strings.ToLower(path), ".gz")
	switch {
	case compress && !hasGz:
		path += ".gz"
	case !compress && hasGz:
		path = path[:len(path)-len(".gz")]
	}
	return path
}

// stem strips compression and FASTQ extensions from path.
func stem(path string) string {
	for _, ext := range []string{".gz", ".zst"} {
		if strings.HasSuffix(strings.ToLower(path), ext) {
			path = path[:len(path)-len(ext)]
			break
		}
	}
	for _, ext := range []string{".fastq", ".fq"} {
		if strings.HasSuffix(strings.ToLower(path), ext) {
			return path[:len(path)-len(ext)]
		}
	}
	return path
}

// sameFile reports whether a and b name the same file, either by their
// cleaned absolute paths or, when both exist, by identity on disk.
func sameFile(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA == nil && errB == nil && absA == absB {
		return true
	}
	infoA, err := os.Stat(a)
	if err != nil {
		return false
	}
	infoB, err := os.Stat(b)
	if err != nil {
		return false
	}
	return os.SameFile(infoA, infoB)
}

func checkOutputDir(path string) error {
	dir := filepath.Dir(path)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("output file %s is missing or not writeable", path)
	}
	return nil
}

// checkOverwrite allows replacing an existing file only with --force or
// after the user confirms on a terminal.
func checkOverwrite(path string, force bool, e env) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if force {
		return nil
	}
	if !e.interactive {
		return fmt.Errorf("%s exists: %w", path, errNotTerminal)
	}

	ok, err := confirm(e.stdin, e.stderr, fmt.Sprintf("%s exists. Overwrite? (y/n) ", path))
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("output file %s exists, but must not be overwritten", path)
	}
	return nil
}

func confirm(in *bufio.Reader, out io.Writer, question string) (bool, error) {
	fmt.Fprint(out, question)
	answer, err := in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, fmt.Errorf("reading answer: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}
