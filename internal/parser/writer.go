package parser

import "io"

// AppendRecord appends the FASTQ text of rec to dst:
//
//	@<id> <description>\n<sequence>\n+\n<quality>\n
//
// The space and description are omitted when the record has none.
func AppendRecord(dst []byte, rec *Record) []byte {
	dst = append(dst, '@')
	dst = append(dst, rec.ID...)
	if rec.HasDescription {
		dst = append(dst, ' ')
		dst = append(dst, rec.Description...)
	}
	dst = append(dst, '\n')
	dst = append(dst, rec.Sequence...)
	dst = append(dst, '\n', '+', '\n')
	dst = append(dst, rec.Quality...)
	dst = append(dst, '\n')
	return dst
}

// Writer encodes records as FASTQ text.
type Writer struct {
	w   io.Writer
	buf []byte // scratch buffer reused across records
}

// NewWriter returns a Writer that encodes records to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w, buf: make([]byte, 0, 512)}
}

// Write encodes rec and writes it with a single call to the underlying writer.
func (fw *Writer) Write(rec *Record) error {
	fw.buf = AppendRecord(fw.buf[:0], rec)
	_, err := fw.w.Write(fw.buf)
	return err
}
