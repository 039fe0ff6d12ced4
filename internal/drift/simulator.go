// Package drift simulates switching concept drift on generated ARFF data.
//
// MOA cannot drift from a classification function to itself, so a dataset
// such as STAGGER_f_2_2_p_100_w_20_s_400 is generated without any visible
// change at sample 100. The simulator imposes one by remapping class labels
// through a derangement of the observed class set, with a per-row
// probability following the same sigmoid MOA uses for ConceptDriftStream.
package drift

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"slices"

	"github.com/mattjoyce/moagen/internal/arff"
	"github.com/mattjoyce/moagen/internal/dataset"
	"github.com/mattjoyce/moagen/internal/log"
)

var (
	// ErrIO covers a missing, unreadable, malformed or unwritable data file.
	ErrIO = errors.New("drift: data file")
	// ErrDataConsistency means the data contradicts the class set it was built from.
	ErrDataConsistency = errors.New("drift: data consistency")
)

const (
	// saturation and margin drive the early exit: once the current drift is
	// practically complete and the next one has caught up, stop scanning.
	saturation = 0.99
	margin     = 0.01

	expLimit = 700.0

	missingValue = "?"
)

// Sigmoid is the probability that sample i (1-based) follows the post-drift
// concept for a drift centred on point with the given width.
func Sigmoid(i, point, width int) float64 {
	x := -4.0 * float64(i-point) / float64(width)
	if x >= expLimit {
		return 0
	}
	return 1.0 / (1.0 + math.Exp(x))
}

// Simulator applies switching drift. The zero value is not usable; build one
// with New.
type Simulator struct {
	rng *rand.Rand
	// DisableEarlyExit scans every row for every segment.
	DisableEarlyExit bool
	Logger           *slog.Logger
}

// New returns a simulator seeded with seed. A zero seed draws a random one.
func New(seed uint64) *Simulator {
	if seed == 0 {
		seed = rand.Uint64()
	}
	return &Simulator{
		rng:    rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		Logger: log.WithComponent("drift"),
	}
}

// NewWithRand returns a simulator drawing from rng.
func NewWithRand(rng *rand.Rand) *Simulator {
	return &Simulator{rng: rng, Logger: log.WithComponent("drift")}
}

// SegmentReport describes what happened to one switching drift.
type SegmentReport struct {
	Drift   int               `json:"drift"`
	Point   int               `json:"point"`
	Width   int               `json:"width"`
	Skipped bool              `json:"skipped,omitempty"`
	Reason  string            `json:"reason,omitempty"`
	Mapping map[string]string `json:"mapping,omitempty"`
	// Scanned counts rows visited before the end of data or the early exit.
	Scanned   int `json:"scanned"`
	Relabeled int `json:"relabeled"`
	// StoppedAt is the 1-based sample where the early exit fired, 0 otherwise.
	StoppedAt int `json:"stopped_at,omitempty"`
}

// Report summarizes a simulation run over one file.
type Report struct {
	Classes  []string        `json:"classes"`
	Rows     int             `json:"rows"`
	Segments []SegmentReport `json:"segments"`
}

// Relabeled returns the number of rows whose final label differs from the
// generated one.
func (r *Report) Relabeled() int {
	n := 0
	for _, s := range r.Segments {
		n += s.Relabeled
	}
	return n
}

// ApplyFile rewrites the ARFF file at path in place. Only data rows whose
// class changed are touched; the header is written back byte for byte.
func (s *Simulator) ApplyFile(path string, spec dataset.Spec) (*Report, error) {
	f, err := arff.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}
	report, err := s.Apply(f, spec)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := f.WriteFile(path); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}
	return report, nil
}

// Apply relabels f in memory for every switching drift in spec.
func (s *Simulator) Apply(f *arff.File, spec dataset.Spec) (*Report, error) {
	ci := f.ClassIndex()
	if ci < 0 {
		return nil, fmt.Errorf("%w: file declares no attributes", ErrDataConsistency)
	}
	classAttr := f.Attributes[ci]
	rows := f.Rows()

	original := make([]string, len(rows))
	for i, row := range rows {
		original[i] = row.Value(ci)
	}
	classes := classSet(original)
	if classAttr.Kind == arff.KindNominal {
		for _, c := range classes {
			if !classAttr.HasValue(c) {
				return nil, fmt.Errorf("%w: class %q is not declared for attribute %q",
					ErrDataConsistency, c, classAttr.Name)
			}
		}
	}

	report := &Report{Classes: classes, Rows: len(rows)}
	labels := slices.Clone(original)
	drifts := spec.Drifts()
	for i, d := range drifts {
		if !d.Switching() {
			continue
		}
		var next *dataset.Drift
		if i+1 < len(drifts) {
			next = &drifts[i+1]
		}
		seg, err := s.applySegment(labels, classes, d, next)
		if err != nil {
			return nil, err
		}
		s.logger().Debug("switching drift processed",
			"drift", d.Index, "point", d.Point, "width", d.Width,
			"skipped", seg.Skipped, "scanned", seg.Scanned, "relabeled", seg.Relabeled)
		report.Segments = append(report.Segments, seg)
	}

	for i, row := range rows {
		if labels[i] != original[i] {
			row.Set(ci, classAttr.Encode(labels[i]))
		}
	}
	return report, nil
}

func (s *Simulator) applySegment(labels, classes []string, d dataset.Drift, next *dataset.Drift) (SegmentReport, error) {
	seg := SegmentReport{Drift: d.Index, Point: d.Point, Width: d.Width}
	if len(classes) <= 1 {
		// A derangement of fewer than two classes does not exist.
		seg.Skipped = true
		seg.Reason = fmt.Sprintf("class set has %d value(s)", len(classes))
		return seg, nil
	}

	perm := s.derange(classes)
	mapping := make(map[string]string, len(classes))
	for i, c := range classes {
		mapping[c] = perm[i]
	}
	seg.Mapping = mapping

	for j := range labels {
		sample := j + 1
		p := Sigmoid(sample, d.Point, d.Width)
		if next != nil && !s.DisableEarlyExit {
			pNext := Sigmoid(sample, next.Point, next.Width)
			if p > saturation && p-pNext < margin {
				seg.StoppedAt = sample
				break
			}
		}
		seg.Scanned++

		label := labels[j]
		target, known := mapping[label]
		if !known && label != missingValue {
			return seg, fmt.Errorf("%w: row %d has class %q outside the observed class set",
				ErrDataConsistency, sample, label)
		}
		if s.rng.Float64() < p && known {
			labels[j] = target
			seg.Relabeled++
		}
	}
	return seg, nil
}

// derange shuffles classes until no value stays in its position.
// Requires len(classes) >= 2.
func (s *Simulator) derange(classes []string) []string {
	perm := slices.Clone(classes)
	for {
		s.rng.Shuffle(len(perm), func(i, j int) { perm[i], perm[j] = perm[j], perm[i] })
		if !hasFixedPoint(classes, perm) {
			return perm
		}
	}
}

func hasFixedPoint(a, b []string) bool {
	for i := range a {
		if a[i] == b[i] {
			return true
		}
	}
	return false
}

// classSet returns distinct labels in first-seen order, ignoring missing values.
func classSet(labels []string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, l := range labels {
		if l == missingValue {
			continue
		}
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		out = append(out, l)
	}
	return out
}

func (s *Simulator) logger() *slog.Logger {
	if s.Logger == nil {
		return log.Discard()
	}
	return s.Logger
}
