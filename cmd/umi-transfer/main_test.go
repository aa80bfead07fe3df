package main

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vertti/umitransfer/internal/transfer"
)

const (
	read1FASTQ = "@SCILIFELAB:500:NGISTLM:1:1101:2446:1031 1:N:0:GCTTCAGGGT+AAGGTAGCGT\nTCGTTTTCCGC\n+\nFFFFFFFFFFF\n" +
		"@SCILIFELAB:500:NGISTLM:1:1101:4563:1031 1:N:0:GCTTCAGGGT+AAGGTAGCGT\nACGTACGTACG\n+\nFFFFFFFFF:F\n"
	read2FASTQ = "@SCILIFELAB:500:NGISTLM:1:1101:2446:1031 3:N:0:GCTTCAGGGT+AAGGTAGCGT\nGCGGAAAACGA\n+\nFFFFFFFFFFF\n" +
		"@SCILIFELAB:500:NGISTLM:1:1101:4563:1031 3:N:0:GCTTCAGGGT+AAGGTAGCGT\nCGTACGTACGT\n+\nF:FFFFFFFFF\n"
	umiFASTQ = "@SCILIFELAB:500:NGISTLM:1:1101:2446:1031 2:N:0:GCTTCAGGGT+AAGGTAGCGT\nACCAGCTA\n+\nFFFFFFFF\n" +
		"@SCILIFELAB:500:NGISTLM:1:1101:4563:1031 2:N:0:GCTTCAGGGT+AAGGTAGCGT\nGGTTCCAA\n+\nFFFFFFFF\n"
)

type fixture struct {
	dir               string
	read1, read2, umi string
	stderr, logs      *bytes.Buffer
}

func newFixture(t *testing.T, gzipped bool) *fixture {
	t.Helper()

	f := &fixture{dir: t.TempDir(), stderr: &bytes.Buffer{}, logs: &bytes.Buffer{}}
	ext := ".fq"
	if gzipped {
		ext = ".fq.gz"
	}
	f.read1 = filepath.Join(f.dir, "read1"+ext)
	f.read2 = filepath.Join(f.dir, "read2"+ext)
	f.umi = filepath.Join(f.dir, "umi"+ext)
	for path, content := range map[string]string{f.read1: read1FASTQ, f.read2: read2FASTQ, f.umi: umiFASTQ} {
		if gzipped {
			writeGzipFile(t, path, []byte(content))
			continue
		}
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatalf("write fixture: %v", err)
		}
	}
	return f
}

func (f *fixture) env(stdin string, interactive bool) env {
	return env{
		stdin:       bufio.NewReader(strings.NewReader(stdin)),
		stderr:      f.stderr,
		interactive: interactive,
		logger:      slog.New(slog.NewTextHandler(f.logs, nil)),
	}
}

func (f *fixture) args(extra ...string) []string {
	return append([]string{"--in", f.read1, "--in2", f.read2, "--umi", f.umi}, extra...)
}

func (f *fixture) path(name string) string {
	return filepath.Join(f.dir, name)
}

func readFile(t *testing.T, path string) string {
	t.Helper()

	data, err := os.ReadFile(path) //nolint:gosec // test fixture path
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

func readGzipFile(t *testing.T, path string) string {
	t.Helper()

	f, err := os.Open(path) //nolint:gosec // test fixture path
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer func() { _ = f.Close() }()

	zr, err := gzip.NewReader(f)
	if err != nil {
		t.Fatalf("gzip reader: %v", err)
	}
	data, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("decompress %s: %v", path, err)
	}
	return string(data)
}

func writeGzipFile(t *testing.T, path string, data []byte) {
	t.Helper()

	f, err := os.Create(path) //nolint:gosec // test fixture path
	if err != nil {
		t.Fatalf("create gzip file: %v", err)
	}
	defer func() { _ = f.Close() }()

	gz := gzip.NewWriter(f)
	if _, err := gz.Write(data); err != nil {
		t.Fatalf("write gzip data: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("close gzip writer: %v", err)
	}
}

func TestOutputPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input, explicit string
		compress        bool
		want            string
	}{
		{"data/read1.fq", "", false, "data/read1_with_UMIs.fq"},
		{"data/read1.fq.gz", "", false, "data/read1_with_UMIs.fq"},
		{"data/read1.fastq.gz", "", true, "data/read1_with_UMIs.fq.gz"},
		{"data/read1.fastq.zst", "", true, "data/read1_with_UMIs.fq.gz"},
		{"reads", "", false, "reads_with_UMIs.fq"},
		{"read1.fq", "out/read1_out.fq", true, "out/read1_out.fq.gz"},
		{"read1.fq", "out/read1_out.fq.gz", false, "out/read1_out.fq"},
		{"read1.fq", "out/read1_out.fq.gz", true, "out/read1_out.fq.gz"},
		{"read1.fq", "out/read1_out.fq", false, "out/read1_out.fq"},
	}

	for _, tt := range tests {
		if got := outputPath(tt.input, tt.explicit, tt.compress); got != tt.want {
			t.Errorf("outputPath(%q, %q, %v) = %q, want %q", tt.input, tt.explicit, tt.compress, got, tt.want)
		}
	}
}

func TestRunExternalPlain(t *testing.T) {
	t.Parallel()

	f := newFixture(t, false)
	if err := runExternal(f.args(), f.env("", false)); err != nil {
		t.Fatalf("runExternal: %v", err)
	}

	got := readFile(t, f.path("read1_with_UMIs.fq"))
	want := "@SCILIFELAB:500:NGISTLM:1:1101:2446:1031:ACCAGCTA 1:N:0:GCTTCAGGGT+AAGGTAGCGT\nTCGTTTTCCGC\n+\nFFFFFFFFFFF\n" +
		"@SCILIFELAB:500:NGISTLM:1:1101:4563:1031:GGTTCCAA 1:N:0:GCTTCAGGGT+AAGGTAGCGT\nACGTACGTACG\n+\nFFFFFFFFF:F\n"
	if got != want {
		t.Fatalf("read1 output mismatch:\n got %q\nwant %q", got, want)
	}

	got = readFile(t, f.path("read2_with_UMIs.fq"))
	if !strings.Contains(got, "@SCILIFELAB:500:NGISTLM:1:1101:2446:1031:ACCAGCTA 3:N:0:") {
		t.Fatalf("read2 should keep its read number without --correct_numbers: %q", got)
	}

	logs := f.logs.String()
	for _, want := range []string{"transferring UMIs to records", "processed 2 records", "umi-transfer finished after"} {
		if !strings.Contains(logs, want) {
			t.Errorf("logs missing %q:\n%s", want, logs)
		}
	}
}

func TestRunExternalCompressedWithCorrection(t *testing.T) {
	t.Parallel()

	f := newFixture(t, true)
	args := f.args("--gzip", "--correct_numbers", "--threads", "8", "--compression_level", "9",
		"--out", f.path("read1_out.fq"), "--out2", f.path("read2_out.fq"))
	if err := runExternal(args, f.env("", false)); err != nil {
		t.Fatalf("runExternal: %v", err)
	}

	for _, missing := range []string{"read1_out.fq", "read2_out.fq"} {
		if _, err := os.Stat(f.path(missing)); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("%s should not exist: %v", missing, err)
		}
	}

	got := readGzipFile(t, f.path("read2_out.fq.gz"))
	want := "@SCILIFELAB:500:NGISTLM:1:1101:2446:1031:ACCAGCTA 2:N:0:GCTTCAGGGT+AAGGTAGCGT\nGCGGAAAACGA\n+\nFFFFFFFFFFF\n" +
		"@SCILIFELAB:500:NGISTLM:1:1101:4563:1031:GGTTCCAA 2:N:0:GCTTCAGGGT+AAGGTAGCGT\nCGTACGTACGT\n+\nF:FFFFFFFFF\n"
	if got != want {
		t.Fatalf("read2 output mismatch:\n got %q\nwant %q", got, want)
	}

	got = readGzipFile(t, f.path("read1_out.fq.gz"))
	if !strings.Contains(got, " 1:N:0:") {
		t.Fatalf("read1 must keep its read number: %q", got)
	}
}

func TestRunExternalInlineDestination(t *testing.T) {
	t.Parallel()

	f := newFixture(t, false)
	if err := runExternal(f.args("--destination", "inline"), f.env("", false)); err != nil {
		t.Fatalf("runExternal: %v", err)
	}

	got := readFile(t, f.path("read1_with_UMIs.fq"))
	if !strings.HasPrefix(got, "@SCILIFELAB:500:NGISTLM:1:1101:2446:1031 1:N:0:GCTTCAGGGT+AAGGTAGCGT\nACCAGCTATCGTTTTCCGC\n+\nFFFFFFFFFFFFFFFFFFF\n") {
		t.Fatalf("inline output mismatch: %q", got)
	}
}

func TestRunExternalExistingOutputNotTerminal(t *testing.T) {
	t.Parallel()

	f := newFixture(t, false)
	if err := os.WriteFile(f.path("read1_out.fq"), []byte("GCCATTAGCTGTACC"), 0o600); err != nil {
		t.Fatalf("write existing output: %v", err)
	}

	args := f.args("--out", f.path("read1_out.fq.gz"), "--out2", f.path("read2_out.fq.gz"))
	err := runExternal(args, f.env("yes\n", false))
	if err == nil || !strings.Contains(err.Error(), "not a terminal") {
		t.Fatalf("expected not-a-terminal error, got %v", err)
	}
	if _, err := os.Stat(f.path("read2_out.fq")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("read2 output must not be created: %v", err)
	}
	if got := readFile(t, f.path("read1_out.fq")); got != "GCCATTAGCTGTACC" {
		t.Fatalf("existing output was modified: %q", got)
	}
}

func TestRunExternalExistingOutputForce(t *testing.T) {
	t.Parallel()

	f := newFixture(t, false)
	if err := os.WriteFile(f.path("read1_out.fq"), []byte("GCCATTAGCTGTACC"), 0o600); err != nil {
		t.Fatalf("write existing output: %v", err)
	}

	args := f.args("--out", f.path("read1_out.fq"), "--out2", f.path("read2_out.fq"), "--force")
	if err := runExternal(args, f.env("", false)); err != nil {
		t.Fatalf("runExternal: %v", err)
	}
	if got := readFile(t, f.path("read1_out.fq")); !strings.HasPrefix(got, "@SCILIFELAB") {
		t.Fatalf("output was not overwritten: %q", got)
	}
}

func TestRunExternalRefusesToOverwriteInput(t *testing.T) {
	t.Parallel()

	f := newFixture(t, false)
	link := f.path("umi_link.fq")
	if err := os.Link(f.umi, link); err != nil {
		t.Fatalf("link umi: %v", err)
	}
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("working directory: %v", err)
	}
	relRead2, err := filepath.Rel(wd, f.read2)
	if err != nil {
		t.Fatalf("relative path: %v", err)
	}

	tests := []struct {
		name       string
		out, out2  string
		input      string
		inputValue string
	}{
		{"read1 as out", f.read1, f.path("r2_out.fq"), f.read1, read1FASTQ},
		{"read2 as out2 via unclean path", f.path("r1_out.fq"), f.dir + "/./sub/../read2.fq", f.read2, read2FASTQ},
		{"relative read2 as out", relRead2, f.path("r2_out.fq"), f.read2, read2FASTQ},
		{"hard link to umi", f.path("r1_out.fq"), link, f.umi, umiFASTQ},
	}

	for _, tt := range tests {
		args := f.args("--out", tt.out, "--out2", tt.out2, "--force")
		err := runExternal(args, f.env("y\n", true))
		if err == nil || !strings.Contains(err.Error(), "would overwrite input") {
			t.Fatalf("%s: expected input overwrite error, got %v", tt.name, err)
		}
		if got := readFile(t, tt.input); got != tt.inputValue {
			t.Fatalf("%s: input was modified: %q", tt.name, got)
		}
	}
	for _, name := range []string{"r1_out.fq", "r2_out.fq"} {
		if _, err := os.Stat(f.path(name)); !errors.Is(err, os.ErrNotExist) {
			t.Fatalf("%s must not be created: %v", name, err)
		}
	}
}

func TestSameFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	a := filepath.Join(dir, "a.fq")
	if err := os.WriteFile(a, []byte("@A\nA\n+\nF\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	if !sameFile(a, dir+"/x/../a.fq") {
		t.Error("cleaned paths should match")
	}
	if sameFile(a, filepath.Join(dir, "b.fq")) {
		t.Error("a missing file is not the same as an existing one")
	}
	if !sameFile(filepath.Join(dir, "new.fq"), filepath.Join(dir, "new.fq")) {
		t.Error("identical missing paths should match")
	}
}

func TestRunExternalExistingOutputPrompt(t *testing.T) {
	t.Parallel()

	tests := []struct {
		answer  string
		wantErr bool
	}{
		{"y\n", false},
		{"yes\n", false},
		{"n\n", true},
		{"", true},
	}

	for _, tt := range tests {
		f := newFixture(t, false)
		if err := os.WriteFile(f.path("read1_out.fq"), []byte("old"), 0o600); err != nil {
			t.Fatalf("write existing output: %v", err)
		}

		args := f.args("--out", f.path("read1_out.fq"), "--out2", f.path("read2_out.fq"))
		err := runExternal(args, f.env(tt.answer, true))
		if (err != nil) != tt.wantErr {
			t.Errorf("answer %q: got err %v, wantErr %v", tt.answer, err, tt.wantErr)
		}
		if !strings.Contains(f.stderr.String(), "exists. Overwrite? (y/n)") {
			t.Errorf("answer %q: prompt not shown: %q", tt.answer, f.stderr.String())
		}
	}
}

func TestRunExternalMissingOutputDirectory(t *testing.T) {
	t.Parallel()

	f := newFixture(t, false)
	args := f.args("--out", f.path("nonexisting/read1_out.fq"), "--out2", f.path("read2_out.fq"))
	err := runExternal(args, f.env("", false))
	if err == nil || !strings.Contains(err.Error(), "is missing or not writeable") {
		t.Fatalf("expected missing directory error, got %v", err)
	}
	if _, err := os.Stat(f.path("read2_out.fq")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("read2 output must not be created: %v", err)
	}
}

func TestRunExternalMissingArguments(t *testing.T) {
	t.Parallel()

	f := newFixture(t, false)
	err := runExternal(nil, f.env("", false))
	if err == nil {
		t.Fatal("expected error without arguments")
	}
	for _, want := range []string{"--in\n", "--in2", "--umi"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q should mention %q", err, want)
		}
	}
}

func TestRunExternalMismatchedIDs(t *testing.T) {
	t.Parallel()

	f := newFixture(t, false)
	if err := os.WriteFile(f.umi, []byte("@OTHER\nACCAGCTA\n+\nFFFFFFFF\n"), 0o600); err != nil {
		t.Fatalf("write umi: %v", err)
	}

	err := runExternal(f.args(), f.env("", false))
	var mismatch *transfer.MismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected MismatchError, got %v", err)
	}
	if got := readFile(t, f.path("read1_with_UMIs.fq")); got != "" {
		t.Fatalf("no records may be committed on mismatch, got %q", got)
	}
}

func TestRunExternalConfigFile(t *testing.T) {
	t.Parallel()

	f := newFixture(t, false)
	configPath := f.path("umi.yaml")
	cfg := "read1: " + f.read1 + "\nread2: " + f.read2 + "\numi: " + f.umi + "\ndelimiter: \"_\"\ncompress: true\n"
	if err := os.WriteFile(configPath, []byte(cfg), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	// --umi_delim on the command line overrides the file.
	args := []string{"--config", configPath, "--umi_delim", "-"}
	if err := runExternal(args, f.env("", false)); err != nil {
		t.Fatalf("runExternal: %v", err)
	}

	got := readGzipFile(t, f.path("read1_with_UMIs.fq.gz"))
	if !strings.HasPrefix(got, "@SCILIFELAB:500:NGISTLM:1:1101:2446:1031-ACCAGCTA ") {
		t.Fatalf("config/flag merge not applied: %q", got)
	}
}

func TestRunExternalHelp(t *testing.T) {
	t.Parallel()

	f := newFixture(t, false)
	if err := runExternal([]string{"--help"}, f.env("", false)); err != nil {
		t.Fatalf("help: %v", err)
	}
	if !strings.Contains(f.stderr.String(), "--correct_numbers") {
		t.Fatalf("help should list flags: %q", f.stderr.String())
	}
}
