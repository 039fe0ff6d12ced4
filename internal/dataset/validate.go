package dataset

import (
	"math"
	"strings"
)

// maxOption bounds every number handed to MOA; its -p, -w and -m options are
// Java ints. Keeping values under it also keeps the area arithmetic in range.
const maxOption = math.MaxInt32

func halfWidth(width int) int {
	// ceil(width/2) for positive widths
	return width/2 + width%2
}

// validate runs the checks in a fixed order and returns the first failure.
func (s Spec) validate() error {
	g, ok := LookupGenerator(s.generator)
	if !ok {
		return newError(ErrUnsupportedGenerator, "generator", "%q (supported: %s)",
			s.generator, strings.Join(generatorNames(), ", "))
	}
	if len(s.functions) == 0 {
		return newError(ErrArity, "classification_functions", "at least one classification function is required")
	}
	for i, fn := range s.functions {
		if !g.SupportsFunction(fn) {
			return newError(ErrUnsupportedFunction, "classification_functions",
				"function %d at position %d not supported by %s (valid: %d..%d)",
				fn, i, g.Name, g.MinFunction, g.MaxFunction)
		}
	}

	if len(s.points) != len(s.widths) || len(s.points) != len(s.functions)-1 {
		return newError(ErrArity, "drift_points",
			"%d classification functions need %d drift points and widths, got %d points and %d widths",
			len(s.functions), len(s.functions)-1, len(s.points), len(s.widths))
	}

	for i := 1; i < len(s.points); i++ {
		if s.points[i-1] >= s.points[i] {
			return newError(ErrOrdering, "drift_points", "point %d (%d) is not after point %d (%d)",
				i, s.points[i], i-1, s.points[i-1])
		}
	}

	// int64 keeps the bounds exact where int is 32 bits.
	var highWater int64
	for i, point := range s.points {
		width := s.widths[i]
		if width < 1 {
			return newError(ErrWidth, "drift_widths", "width %d at position %d", width, i)
		}
		if width > maxOption {
			return newError(ErrWidth, "drift_widths", "width %d at position %d exceeds %d", width, i, maxOption)
		}
		if point > maxOption {
			return newError(ErrRange, "drift_points", "point %d at position %d exceeds %d", point, i, maxOption)
		}
		offset := int64(halfWidth(width))
		lower := int64(point) - offset
		upper := int64(point) + offset
		if lower < 1 {
			return newError(ErrRange, "drift_points",
				"drift area [%d, %d] begins before the first sample", lower, upper)
		}
		if upper >= int64(s.samples) {
			return newError(ErrRange, "drift_points",
				"drift area [%d, %d] ends at or after the last sample (%d)", lower, upper, s.samples)
		}
		if i > 0 && highWater >= lower {
			return newError(ErrOverlap, "drift_points",
				"drift area [%d, %d] overlaps the previous area ending at %d", lower, upper, highWater)
		}
		highWater = upper
	}

	if s.samples <= 0 || s.samples > maxOption {
		return newError(ErrSampleCount, "num_of_samples", "got %d (must be 1..%d)", s.samples, maxOption)
	}
	return nil
}
