package transfer

import "fmt"

// DecodeError reports a malformed record in one of the input streams.
type DecodeError struct {
	Stream string // "read1", "read2" or "umi"
	Path   string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("failed to read records from %s: %v", e.Stream, e.Err)
	}
	return fmt.Sprintf("failed to read records from %s (%s): %v", e.Stream, e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// MismatchError reports a read whose identifier differs from the UMI record
// at the same position. It means the inputs are not sorted identically.
type MismatchError struct {
	Stream string
	Record int // 1-based position in the streams
	ReadID string
	UMIID  string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("IDs of UMI and read records mismatch at record %d: %s has %q, umi has %q; please provide sorted files",
		e.Record, e.Stream, e.ReadID, e.UMIID)
}

// RewriteError reports a record that could not be rewritten.
type RewriteError struct {
	Stream string
	Record int
	Err    error
}

func (e *RewriteError) Error() string {
	return fmt.Sprintf("rewriting record %d of %s: %v", e.Record, e.Stream, e.Err)
}

func (e *RewriteError) Unwrap() error { return e.Err }
