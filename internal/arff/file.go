// Package arff reads and rewrites ARFF files as written by MOA.
//
// The codec is deliberately lossless: the header is kept as raw bytes, every
// data line keeps its terminator, and a row only changes in the byte range of
// a field that was explicitly replaced.
package arff

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrNoDataSection = errors.New("arff: no @data section")
	ErrMalformed     = errors.New("arff: malformed")
)

// Row is one data instance. Fields are addressed by attribute index.
type Row struct {
	// Line is the 1-based line number in the source file.
	Line  int
	raw   string
	spans [][2]int
}

// Len returns the number of fields.
func (r *Row) Len() int { return len(r.spans) }

// Raw returns field i exactly as written.
func (r *Row) Raw(i int) string {
	sp := r.spans[i]
	return r.raw[sp[0]:sp[1]]
}

// Value returns field i decoded (quotes removed).
func (r *Row) Value(i int) string {
	return Unquote(r.Raw(i))
}

// Set replaces the raw text of field i. The rest of the line is untouched.
func (r *Row) Set(i int, token string) {
	sp := r.spans[i]
	r.raw = r.raw[:sp[0]] + token + r.raw[sp[1]:]
	delta := len(token) - (sp[1] - sp[0])
	r.spans[i][1] = sp[0] + len(token)
	for j := i + 1; j < len(r.spans); j++ {
		r.spans[j][0] += delta
		r.spans[j][1] += delta
	}
}

// String returns the row text without its line terminator.
func (r *Row) String() string { return r.raw }

type bodyLine struct {
	text string // verbatim text for non-data lines
	eol  string
	row  *Row
}

// File is a parsed ARFF document.
type File struct {
	// Header holds every byte up to and including the @data line.
	Header     []byte
	Relation   string
	Attributes []Attribute

	body []bodyLine
	rows []*Row
}

// Rows returns the data rows in file order.
func (f *File) Rows() []*Row { return f.rows }

// ClassIndex returns the index of the class attribute, the last column by
// MOA convention, or -1 when there are no attributes.
func (f *File) ClassIndex() int { return len(f.Attributes) - 1 }

// ReadFile parses the ARFF file at path.
func ReadFile(path string) (*File, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open arff: %w", err)
	}
	defer fh.Close()

	f, err := Read(fh)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Read parses an ARFF document.
func Read(r io.Reader) (*File, error) {
	br := bufio.NewReader(r)
	f := &File{}
	var header bytes.Buffer
	inData := false
	lineNo := 0

	for {
		raw, err := br.ReadString('\n')
		if raw == "" && err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("read line %d: %w", lineNo+1, err)
		}
		lineNo++
		text, eol := splitEOL(raw)

		if !inData {
			header.WriteString(raw)
			if err := f.parseHeaderLine(text, lineNo); err != nil {
				return nil, err
			}
			if strings.EqualFold(strings.TrimSpace(text), "@data") {
				inData = true
			}
		} else if err := f.parseBodyLine(text, eol, lineNo); err != nil {
			return nil, err
		}

		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("read line %d: %w", lineNo, err)
		}
	}

	if !inData {
		return nil, ErrNoDataSection
	}
	f.Header = header.Bytes()
	return f, nil
}

func splitEOL(raw string) (string, string) {
	switch {
	case strings.HasSuffix(raw, "\r\n"):
		return raw[:len(raw)-2], "\r\n"
	case strings.HasSuffix(raw, "\n"):
		return raw[:len(raw)-1], "\n"
	default:
		return raw, ""
	}
}

func (f *File) parseHeaderLine(text string, lineNo int) error {
	trimmed := strings.TrimSpace(text)
	lower := strings.ToLower(trimmed)
	switch {
	case strings.HasPrefix(lower, "@relation"):
		f.Relation = Unquote(strings.TrimSpace(trimmed[len("@relation"):]))
	case strings.HasPrefix(lower, "@attribute"):
		attr, ok := parseAttribute(trimmed)
		if !ok {
			return fmt.Errorf("%w: line %d: bad attribute declaration %q", ErrMalformed, lineNo, trimmed)
		}
		f.Attributes = append(f.Attributes, attr)
	}
	return nil
}

func (f *File) parseBodyLine(text, eol string, lineNo int) error {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" || strings.HasPrefix(trimmed, "%") {
		f.body = append(f.body, bodyLine{text: text, eol: eol})
		return nil
	}
	if strings.HasPrefix(trimmed, "{") {
		return fmt.Errorf("%w: line %d: sparse instances are not supported", ErrMalformed, lineNo)
	}

	spans := splitFields(text)
	// Tolerate a single trailing comma.
	if len(spans) == len(f.Attributes)+1 && spans[len(spans)-1][0] == spans[len(spans)-1][1] {
		spans = spans[:len(spans)-1]
	}
	if len(spans) != len(f.Attributes) {
		return fmt.Errorf("%w: line %d: %d fields, header declares %d attributes",
			ErrMalformed, lineNo, len(spans), len(f.Attributes))
	}

	row := &Row{Line: lineNo, raw: text, spans: spans}
	f.body = append(f.body, bodyLine{eol: eol, row: row})
	f.rows = append(f.rows, row)
	return nil
}

// Write serializes the file: the header bytes unchanged, then the data lines.
func (f *File) Write(w io.Writer) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.Write(f.Header); err != nil {
		return err
	}
	for _, l := range f.body {
		text := l.text
		if l.row != nil {
			text = l.row.raw
		}
		if _, err := bw.WriteString(text); err != nil {
			return err
		}
		if _, err := bw.WriteString(l.eol); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteFile replaces the file at path atomically, keeping its permissions.
func (f *File) WriteFile(path string) error {
	mode := os.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if err := f.Write(tmp); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		cleanup()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
