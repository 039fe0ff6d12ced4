// Package dataset models a synthetic dataset definition: the generator
// family, the chain of classification functions and the drifts between them.
//
// A Spec can only be obtained through New, Parse or FromRecord, all of which
// validate fully, so a Spec value in hand is always consistent.
package dataset

import (
	"slices"
	"strconv"
	"strings"
)

// Spec is a validated dataset definition. It is immutable: accessors return
// copies of the underlying slices.
type Spec struct {
	generator string
	functions []int
	points    []int
	widths    []int
	samples   int
}

// Drift is one transition between consecutive classification functions.
type Drift struct {
	Index int
	Point int
	Width int
	From  int
	To    int
	// Lower and Upper bound the drift area [Point-ceil(Width/2), Point+ceil(Width/2)].
	Lower int
	Upper int
}

// Switching reports whether the drift keeps the same classification function,
// which MOA cannot express and which therefore has to be simulated.
func (d Drift) Switching() bool {
	return d.From == d.To
}

// New builds a Spec from explicit field values.
func New(generator string, functions, points, widths []int, samples int) (Spec, error) {
	s := Spec{
		generator: generator,
		functions: slices.Clone(functions),
		points:    slices.Clone(points),
		widths:    slices.Clone(widths),
		samples:   samples,
	}
	if s.points == nil {
		s.points = []int{}
	}
	if s.widths == nil {
		s.widths = []int{}
	}
	if err := s.validate(); err != nil {
		return Spec{}, err
	}
	return s, nil
}

// MustNew is New for fixed inputs known to be valid. It panics otherwise.
func MustNew(generator string, functions, points, widths []int, samples int) Spec {
	s, err := New(generator, functions, points, widths, samples)
	if err != nil {
		panic(err)
	}
	return s
}

// GeneratorName returns the short generator identifier ("Agrawal").
func (s Spec) GeneratorName() string { return s.generator }

// Generator returns the generator metadata. The zero Spec returns a zero value.
func (s Spec) Generator() Generator {
	g, _ := LookupGenerator(s.generator)
	return g
}

// Functions returns the classification function ids in stream order.
func (s Spec) Functions() []int { return slices.Clone(s.functions) }

// DriftPoints returns the drift centres.
func (s Spec) DriftPoints() []int { return slices.Clone(s.points) }

// DriftWidths returns the drift widths, paired positionally with DriftPoints.
func (s Spec) DriftWidths() []int { return slices.Clone(s.widths) }

// Samples returns the total stream length.
func (s Spec) Samples() int { return s.samples }

// IsZero reports whether s was never constructed.
func (s Spec) IsZero() bool { return s.generator == "" && len(s.functions) == 0 }

// Drifts returns the drift segments in stream order.
func (s Spec) Drifts() []Drift {
	out := make([]Drift, len(s.points))
	for i := range s.points {
		offset := halfWidth(s.widths[i])
		out[i] = Drift{
			Index: i,
			Point: s.points[i],
			Width: s.widths[i],
			From:  s.functions[i],
			To:    s.functions[i+1],
			Lower: s.points[i] - offset,
			Upper: s.points[i] + offset,
		}
	}
	return out
}

// HasSwitchingDrift reports whether any drift keeps its classification function.
func (s Spec) HasSwitchingDrift() bool {
	for i := 0; i+1 < len(s.functions); i++ {
		if s.functions[i] == s.functions[i+1] {
			return true
		}
	}
	return false
}

// Equal reports whether two specs describe the same dataset.
func (s Spec) Equal(o Spec) bool {
	return s.generator == o.generator &&
		s.samples == o.samples &&
		slices.Equal(s.functions, o.functions) &&
		slices.Equal(s.points, o.points) &&
		slices.Equal(s.widths, o.widths)
}

// String returns the canonical definition string, e.g.
// "Agrawal_f_1_2_p_100_w_10_s_500". The drift block is omitted when the spec
// has no drifts.
func (s Spec) String() string {
	var b strings.Builder
	b.WriteString(s.generator)
	b.WriteString("_f")
	writeInts(&b, s.functions)
	if len(s.points) > 0 {
		b.WriteString("_p")
		writeInts(&b, s.points)
		b.WriteString("_w")
		writeInts(&b, s.widths)
	}
	b.WriteString("_s_")
	b.WriteString(strconv.Itoa(s.samples))
	return b.String()
}

func writeInts(b *strings.Builder, vals []int) {
	for _, v := range vals {
		b.WriteByte('_')
		b.WriteString(strconv.Itoa(v))
	}
}

// MarshalText encodes the spec as its canonical string.
func (s Spec) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a canonical string. s is left untouched on error.
func (s *Spec) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Record returns the structured form accepted by FromRecord. Specs without
// drifts use the shorthand key set.
func (s Spec) Record() map[string]any {
	rec := map[string]any{
		KeyGenerator: s.generator,
		KeyFunctions: s.Functions(),
		KeySamples:   s.samples,
	}
	if len(s.points) > 0 {
		rec[KeyPoints] = s.DriftPoints()
		rec[KeyWidths] = s.DriftWidths()
	}
	return rec
}
