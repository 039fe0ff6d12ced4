package dataset

import (
	"regexp"
	"strconv"
	"strings"
)

var definitionPattern = regexp.MustCompile(
	`^(?P<name>[^_]+)` +
		`_f_(?P<functions>\d+(?:_\d+)*)` +
		`(?:_p_(?P<points>\d+(?:_\d+)*)_w_(?P<widths>\d+(?:_\d+)*))?` +
		`_s_(?P<samples>\d+)$`)

// Parse builds a Spec from its canonical string form:
//
//	{generator}_f_{fn...}[_p_{point...}_w_{width...}]_s_{samples}
//
// Surrounding whitespace is ignored.
func Parse(definition string) (Spec, error) {
	input := strings.TrimSpace(definition)
	m := definitionPattern.FindStringSubmatch(input)
	if m == nil {
		return Spec{}, &Error{Kind: ErrParse, Input: definition,
			Message: "expected {generator}_f_{functions}[_p_{points}_w_{widths}]_s_{samples}"}
	}
	group := func(name string) string {
		return m[definitionPattern.SubexpIndex(name)]
	}

	functions, err := splitInts(group("functions"))
	if err != nil {
		return Spec{}, &Error{Kind: ErrParse, Field: "classification_functions", Input: definition, Message: err.Error()}
	}
	points, err := splitInts(group("points"))
	if err != nil {
		return Spec{}, &Error{Kind: ErrParse, Field: "drift_points", Input: definition, Message: err.Error()}
	}
	widths, err := splitInts(group("widths"))
	if err != nil {
		return Spec{}, &Error{Kind: ErrParse, Field: "drift_widths", Input: definition, Message: err.Error()}
	}
	samples, err := strconv.Atoi(group("samples"))
	if err != nil {
		return Spec{}, &Error{Kind: ErrParse, Field: "num_of_samples", Input: definition, Message: err.Error()}
	}

	s, err := New(group("name"), functions, points, widths, samples)
	if err != nil {
		return Spec{}, withInput(err, definition)
	}
	return s, nil
}

func splitInts(s string) ([]int, error) {
	if s == "" {
		return []int{}, nil
	}
	parts := strings.Split(s, "_")
	out := make([]int, len(parts))
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
