package ingest

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// sniffSize is how many leading bytes are inspected to pick a decoder.
const sniffSize = 4096

// ErrEmptySource is returned by NewReader when the stream has no header row.
var ErrEmptySource = errors.New("CSV source is empty")

// ErrInvalidUTF8 is returned by Next when a source read as UTF-8 holds a
// byte sequence that is not UTF-8. Nothing is replaced silently.
var ErrInvalidUTF8 = errors.New("invalid UTF-8 sequence; re-save the file as UTF-8")

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Row is one data record keyed by header name. Values are trimmed.
type Row struct {
	// Number is the 1-based index of the record among data rows.
	Number int
	// Line is the physical line in the source where the record starts.
	Line int

	values map[string]string
}

// NewRow builds a row from an explicit mapping, mostly for callers that
// do not read from CSV (tests, replays of failed imports).
func NewRow(number int, values map[string]string) Row {
	v := make(map[string]string, len(values))
	for k, val := range values {
		v[strings.TrimSpace(k)] = strings.TrimSpace(val)
	}
	return Row{Number: number, values: v}
}

// Get returns the trimmed value of col, or "" when absent.
func (r Row) Get(col string) string {
	return r.values[col]
}

// Has reports whether the source had a column named col, even if empty.
func (r Row) Has(col string) bool {
	_, ok := r.values[col]
	return ok
}

// Raw returns a copy of the row mapping.
func (r Row) Raw() map[string]string {
	out := make(map[string]string, len(r.values))
	for k, v := range r.values {
		out[k] = v
	}
	return out
}

// RowError is a malformed record. The reader stays usable after returning it.
type RowError struct {
	Number int
	Line   int
	// Text is the record as it appeared in the source.
	Text string
	// Fields holds the values parsed before the error, keyed by header.
	Fields map[string]string
	Err    error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %d (line %d): malformed CSV record: %v", e.Number, e.Line, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

// Option configures a Reader.
type Option func(*Reader)

// WithAliases renames source headers to canonical column names.
func WithAliases(aliases map[string]string) Option {
	return func(r *Reader) {
		r.aliases = aliases
	}
}

// Reader streams rows out of a CSV source. It is not restartable.
type Reader struct {
	csv      *csv.Reader
	tape     *tape
	headers  []string
	aliases  map[string]string
	number   int
	encoding string
}

// NewReader reads the header row of r and prepares it for streaming.
// A leading byte-order mark is stripped; UTF-16 sources with a BOM are
// decoded, and sources that are not valid UTF-8 are read as Windows-1252.
func NewReader(r io.Reader, opts ...Option) (*Reader, error) {
	rd := &Reader{}
	for _, opt := range opts {
		opt(rd)
	}

	decoded, enc, err := decode(r)
	if err != nil {
		return nil, err
	}
	rd.encoding = enc

	rd.tape = &tape{r: decoded}
	cr := csv.NewReader(rd.tape)
	cr.FieldsPerRecord = -1 // Allow variable number of fields
	rd.csv = cr

	headers, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmptySource
		}
		return nil, fmt.Errorf("failed to read CSV headers: %w", err)
	}
	rd.tape.cut(cr.InputOffset())

	rd.headers = make([]string, len(headers))
	for i, h := range headers {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if canonical, ok := rd.aliases[h]; ok {
			h = canonical
		}
		rd.headers[i] = h
	}
	return rd, nil
}

// OpenFile opens path and returns a Reader plus the function closing the file.
func OpenFile(path string, opts ...Option) (*Reader, func() error, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", path, err)
	}
	rd, err := NewReader(f, opts...)
	if err != nil {
		_ = f.Close()
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return rd, f.Close, nil
}

// Headers returns the canonical header names in source order.
func (r *Reader) Headers() []string {
	out := make([]string, len(r.headers))
	copy(out, r.headers)
	return out
}

// Encoding names the decoder picked for the source.
func (r *Reader) Encoding() string {
	return r.encoding
}

// Next returns the next row, or io.EOF once the source is exhausted.
// A malformed record is reported as a *RowError; any other error is terminal.
func (r *Reader) Next() (Row, error) {
	record, err := r.csv.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Row{}, io.EOF
		}
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			r.number++
			return Row{}, &RowError{
				Number: r.number,
				Line:   parseErr.StartLine,
				Text:   strings.Trim(r.tape.cut(r.csv.InputOffset()), "\r\n"),
				Fields: r.mapFields(record, false),
				Err:    parseErr.Err,
			}
		}
		return Row{}, fmt.Errorf("failed to read CSV row %d: %w", r.number+1, err)
	}
	r.tape.cut(r.csv.InputOffset())

	r.number++
	line, _ := r.csv.FieldPos(0)
	return Row{Number: r.number, Line: line, values: r.mapFields(record, true)}, nil
}

// mapFields keys record by header. With pad, headers past the end of the
// record map to "".
func (r *Reader) mapFields(record []string, pad bool) map[string]string {
	values := make(map[string]string, len(r.headers))
	for i, h := range r.headers {
		if _, dup := values[h]; dup {
			continue
		}
		switch {
		case i < len(record):
			values[h] = strings.TrimSpace(record[i])
		case pad:
			values[h] = ""
		}
	}
	return values
}

// tape keeps the decoded bytes the csv reader has pulled in but that do not
// belong to a returned record yet.
type tape struct {
	r     io.Reader
	buf   []byte
	start int64
}

func (t *tape) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	t.buf = append(t.buf, p[:n]...)
	return n, err
}

// cut returns the bytes up to offset end and forgets them.
func (t *tape) cut(end int64) string {
	n := int(end - t.start)
	if n < 0 {
		n = 0
	}
	if n > len(t.buf) {
		n = len(t.buf)
	}
	text := string(t.buf[:n])
	t.buf = append(t.buf[:0], t.buf[n:]...)
	t.start += int64(n)
	return text
}

// decode picks a decoder for the stream. Seekable sources are scanned in
// full; others are judged by their first bytes and fail later with
// ErrInvalidUTF8 if the guess was wrong.
func decode(r io.Reader) (io.Reader, string, error) {
	latin1 := false
	if rs, ok := r.(io.ReadSeeker); ok {
		var err error
		if latin1, err = invalidUTF8(rs); err != nil {
			return nil, "", err
		}
	}

	br := bufio.NewReaderSize(r, sniffSize)
	head, err := br.Peek(sniffSize)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return nil, "", fmt.Errorf("failed to read CSV source: %w", err)
	}
	if len(head) == 0 {
		return nil, "", ErrEmptySource
	}

	switch {
	case hasUTF16BOM(head):
		return transform.NewReader(br, unicode.BOMOverride(unicode.UTF8.NewDecoder())), "utf-16", nil
	case !latin1 && validUTF8Prefix(head):
		if bytes.HasPrefix(head, utf8BOM) {
			_, _ = br.Discard(len(utf8BOM))
		}
		return transform.NewReader(br, &strictUTF8{}), "utf-8", nil
	}
	return transform.NewReader(br, charmap.Windows1252.NewDecoder()), "windows-1252", nil
}

// invalidUTF8 reads rs to the end and rewinds it. A source that cannot
// seek is reported as valid.
func invalidUTF8(rs io.ReadSeeker) (bool, error) {
	start, err := rs.Seek(0, io.SeekCurrent)
	if err != nil {
		return false, nil
	}
	_, scanErr := io.Copy(io.Discard, transform.NewReader(rs, &strictUTF8{}))
	if _, err := rs.Seek(start, io.SeekStart); err != nil {
		return false, fmt.Errorf("failed to rewind CSV source: %w", err)
	}
	switch {
	case errors.Is(scanErr, ErrInvalidUTF8):
		return true, nil
	case scanErr != nil:
		return false, fmt.Errorf("failed to read CSV source: %w", scanErr)
	}
	return false, nil
}

// strictUTF8 passes valid UTF-8 through and stops at the first invalid byte.
type strictUTF8 struct {
	transform.NopResetter
	offset int64
}

func (t *strictUTF8) Transform(dst, src []byte, atEOF bool) (nDst, nSrc int, err error) {
	for nSrc < len(src) {
		r, size := utf8.DecodeRune(src[nSrc:])
		if r == utf8.RuneError && size == 1 {
			if !atEOF && !utf8.FullRune(src[nSrc:]) {
				err = transform.ErrShortSrc
				break
			}
			return nDst, nSrc, fmt.Errorf("%w at byte %d", ErrInvalidUTF8, t.offset+int64(nSrc))
		}
		if nDst+size > len(dst) {
			err = transform.ErrShortDst
			break
		}
		nDst += copy(dst[nDst:], src[nSrc:nSrc+size])
		nSrc += size
	}
	t.offset += int64(nSrc)
	return nDst, nSrc, err
}

func hasUTF16BOM(b []byte) bool {
	return len(b) >= 2 && ((b[0] == 0xFF && b[1] == 0xFE) || (b[0] == 0xFE && b[1] == 0xFF))
}

// validUTF8Prefix is utf8.Valid but tolerates a rune cut at the end of b.
func validUTF8Prefix(b []byte) bool {
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		if r == utf8.RuneError && size == 1 {
			return !utf8.FullRune(b)
		}
		b = b[size:]
	}
	return true
}
