// Package loader reads dataset definitions from files.
//
// Three formats are understood: plain text with one canonical definition per
// line, YAML and JSON documents holding structured records. Invalid entries
// never abort a load; they are collected with their location so the caller
// can report them and continue with the valid ones.
package loader

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/moagen/internal/dataset"
)

// ErrFormat means the document itself could not be read as a definition list.
var ErrFormat = errors.New("loader: unsupported document")

// LineError locates one invalid definition.
type LineError struct {
	Line int
	Text string
	Err  error
}

func (e *LineError) Error() string {
	if e.Text == "" {
		return fmt.Sprintf("line %d: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("line %d: %s -> error: %v", e.Line, e.Text, e.Err)
}

func (e *LineError) Unwrap() error { return e.Err }

// Result holds the valid specs in file order and the rejected entries.
type Result struct {
	Specs  []dataset.Spec
	Errors []*LineError
}

// Err joins the per-entry errors, or returns nil when every entry was valid.
func (r *Result) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	errs := make([]error, len(r.Errors))
	for i, e := range r.Errors {
		errs[i] = e
	}
	return errors.Join(errs...)
}

// Load dispatches on the file extension: .yaml/.yml and .json hold records,
// anything else is read line by line.
func Load(path string) (*Result, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
		return LoadRecords(path)
	default:
		return LoadDefinitions(path)
	}
}

// LoadDefinitions reads a line-oriented definition file.
func LoadDefinitions(path string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open definitions: %w", err)
	}
	defer f.Close()
	return ParseDefinitions(f)
}

// ParseDefinitions parses one canonical definition per line. Blank lines and
// lines starting with '#' are skipped.
func ParseDefinitions(r io.Reader) (*Result, error) {
	res := &Result{}
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if line == 1 {
			text = strings.TrimPrefix(text, "\uFEFF")
		}
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		spec, err := dataset.Parse(text)
		if err != nil {
			res.Errors = append(res.Errors, &LineError{Line: line, Text: text, Err: err})
			continue
		}
		res.Specs = append(res.Specs, spec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read definitions: %w", err)
	}
	return res, nil
}

// LoadRecords reads a YAML or JSON record document.
func LoadRecords(path string) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open definitions: %w", err)
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return ParseJSONRecords(data)
	}
	return ParseRecords(data)
}

// ParseRecords decodes a YAML document that is either a list of records or a
// mapping with a "datasets" list.
func ParseRecords(data []byte) (*Result, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFormat, err)
	}
	res := &Result{}
	if len(doc.Content) == 0 {
		return res, nil
	}

	list, err := recordList(doc.Content[0])
	if err != nil {
		return nil, err
	}
	for _, item := range list.Content {
		var rec map[string]any
		if err := item.Decode(&rec); err != nil {
			res.Errors = append(res.Errors, &LineError{
				Line: item.Line,
				Text: flowText(item),
				Err:  fmt.Errorf("%w: record must be a mapping", dataset.ErrSchema),
			})
			continue
		}
		spec, err := dataset.FromRecord(rec)
		if err != nil {
			res.Errors = append(res.Errors, &LineError{Line: item.Line, Text: flowText(item), Err: err})
			continue
		}
		res.Specs = append(res.Specs, spec)
	}
	return res, nil
}

func recordList(root *yaml.Node) (*yaml.Node, error) {
	switch root.Kind {
	case yaml.SequenceNode:
		return root, nil
	case yaml.MappingNode:
		for i := 0; i+1 < len(root.Content); i += 2 {
			if root.Content[i].Value == "datasets" && root.Content[i+1].Kind == yaml.SequenceNode {
				return root.Content[i+1], nil
			}
		}
	}
	return nil, fmt.Errorf("%w: expected a list of records or a mapping with a datasets list", ErrFormat)
}

func flowText(n *yaml.Node) string {
	cp := *n
	cp.Style = yaml.FlowStyle
	out, err := yaml.Marshal(&cp)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

// ParseJSONRecords decodes a JSON array of records or an object with a
// "datasets" array. Entries are numbered by position, starting at 1.
func ParseJSONRecords(data []byte) (*Result, error) {
	var raw json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFormat, err)
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		var wrapped struct {
			Datasets []json.RawMessage `json:"datasets"`
		}
		if err := json.Unmarshal(raw, &wrapped); err != nil || wrapped.Datasets == nil {
			return nil, fmt.Errorf("%w: expected a list of records or an object with a datasets list", ErrFormat)
		}
		items = wrapped.Datasets
	}

	res := &Result{}
	for i, item := range items {
		text := string(bytes.TrimSpace(item))
		dec := json.NewDecoder(bytes.NewReader(item))
		dec.UseNumber()
		var rec map[string]any
		if err := dec.Decode(&rec); err != nil {
			res.Errors = append(res.Errors, &LineError{
				Line: i + 1,
				Text: text,
				Err:  fmt.Errorf("%w: record must be an object", dataset.ErrSchema),
			})
			continue
		}
		spec, err := dataset.FromRecord(rec)
		if err != nil {
			res.Errors = append(res.Errors, &LineError{Line: i + 1, Text: text, Err: err})
			continue
		}
		res.Specs = append(res.Specs, spec)
	}
	return res, nil
}

// WriteDefinitions writes one canonical definition per line.
func WriteDefinitions(path string, specs []dataset.Spec) error {
	var b strings.Builder
	for _, s := range specs {
		b.WriteString(s.String())
		b.WriteByte('\n')
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write definitions: %w", err)
	}
	return nil
}
