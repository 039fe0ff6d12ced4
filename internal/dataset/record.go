package dataset

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strings"
)

// Record keys.
const (
	KeyGenerator = "generator"
	KeyFunctions = "classification_functions"
	KeyPoints    = "drift_points"
	KeyWidths    = "drift_widths"
	KeySamples   = "num_of_samples"
)

var (
	shorthandKeys = []string{KeyFunctions, KeyGenerator, KeySamples}
	fullKeys      = []string{KeyFunctions, KeyPoints, KeyWidths, KeyGenerator, KeySamples}
)

// FromRecord builds a Spec from a structured record, as decoded from YAML or
// JSON. The key set must be exactly the shorthand set
// {generator, classification_functions, num_of_samples} or that set plus
// {drift_points, drift_widths}.
func FromRecord(rec map[string]any) (Spec, error) {
	if rec == nil {
		return Spec{}, newError(ErrSchema, "", "record is empty")
	}
	keys := make([]string, 0, len(rec))
	for k := range rec {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	full := sameKeys(keys, fullKeys)
	if !full && !sameKeys(keys, shorthandKeys) {
		return Spec{}, newError(ErrSchema, "", "keys [%s] must be exactly [%s] or [%s]",
			strings.Join(keys, ", "), strings.Join(shorthandKeys, ", "), strings.Join(fullKeys, ", "))
	}

	generator, ok := rec[KeyGenerator].(string)
	if !ok {
		return Spec{}, newError(ErrSchema, KeyGenerator, "must be a string, got %T", rec[KeyGenerator])
	}
	functions, err := intList(KeyFunctions, rec[KeyFunctions])
	if err != nil {
		return Spec{}, err
	}
	points, widths := []int{}, []int{}
	if full {
		if points, err = intList(KeyPoints, rec[KeyPoints]); err != nil {
			return Spec{}, err
		}
		if widths, err = intList(KeyWidths, rec[KeyWidths]); err != nil {
			return Spec{}, err
		}
	}
	samples, ok := toInt(rec[KeySamples])
	if !ok {
		return Spec{}, newError(ErrType, KeySamples, "got %v (%T)", rec[KeySamples], rec[KeySamples])
	}

	return New(generator, functions, points, widths, samples)
}

func sameKeys(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

// intList converts a decoded sequence into []int. Non-sequences are schema
// errors; non-integer elements are type errors.
func intList(field string, v any) ([]int, error) {
	if ints, ok := v.([]int); ok {
		return append([]int{}, ints...), nil
	}
	rv := reflect.ValueOf(v)
	if v == nil || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return nil, newError(ErrSchema, field, "must be a list, got %T", v)
	}
	out := make([]int, rv.Len())
	for i := range out {
		elem := rv.Index(i).Interface()
		n, ok := toInt(elem)
		if !ok {
			return nil, newError(ErrType, fmt.Sprintf("%s[%d]", field, i), "got %v (%T)", elem, elem)
		}
		out[i] = n
	}
	return out, nil
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int8:
		return int(n), true
	case int16:
		return int(n), true
	case int32:
		return int(n), true
	case int64:
		if n > math.MaxInt || n < math.MinInt {
			return 0, false
		}
		return int(n), true
	case uint:
		if uint64(n) > math.MaxInt {
			return 0, false
		}
		return int(n), true
	case uint8:
		return int(n), true
	case uint16:
		return int(n), true
	case uint32:
		return int(n), true
	case uint64:
		if n > math.MaxInt {
			return 0, false
		}
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return toInt(i)
	default:
		return 0, false
	}
}
