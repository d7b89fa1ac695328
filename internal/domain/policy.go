package domain

import "math"

// DropReason explains why a location produced no record. The empty string
// means the location is kept.
type DropReason string

const (
	DropNone            DropReason = ""
	DropEmpty           DropReason = "empty"
	DropPartialCoverage DropReason = "partial_coverage"
	DropOutOfBounds     DropReason = "out_of_bounds"
)

// MissingValuePolicy decides which samples are valid while a location's
// series is built, and whether the finished location is emitted.
type MissingValuePolicy interface {
	// Sample writes one value per tracked variable at timestep t into out and
	// reports whether the timestep is kept at all.
	Sample(b *Band, t, row, lon int, out []float64) bool
	// Retain inspects a location's finished series, one per variable.
	Retain(series [][]float64) DropReason
	// RecordTimes reports whether records carry their own timestamp series.
	RecordTimes() bool
}

// SameValue is equality under which NaN equals NaN.
func SameValue(a, b float64) bool {
	return (math.IsNaN(a) && math.IsNaN(b)) || a == b
}

// JointNaNPolicy keeps a timestep unless every tracked variable is NaN there.
// Used for raw, native-resolution files.
type JointNaNPolicy struct{}

func (JointNaNPolicy) Sample(b *Band, t, row, lon int, out []float64) bool {
	nan := math.NaN()
	allMissing := true
	for i, f := range b.Vars {
		v := f.At(t, row, lon)
		out[i] = v
		if !SameValue(v, nan) {
			allMissing = false
		}
	}
	return !allMissing
}

// Retain keeps the location if at least one timestep survived.
func (JointNaNPolicy) Retain(series [][]float64) DropReason {
	if len(series) == 0 || len(series[0]) == 0 {
		return DropEmpty
	}
	return DropNone
}

func (JointNaNPolicy) RecordTimes() bool { return true }

// Weekly-mean quality constants for CCMP.
const (
	CCMPMissingSentinel = -999.9
	CCMPWeeklyFullCount = 28 // six-hourly periods in a week
)

// QualityGatedPolicy accepts a period mean only when it is not the sentinel
// and its companion count equals the full window. Each variable is gated on
// its own; every timestep is kept.
type QualityGatedPolicy struct {
	Sentinel  float64
	FullCount float64
}

// NewQualityGatedPolicy builds the gate for one aggregate product.
func NewQualityGatedPolicy(sentinel float64, fullCount int) QualityGatedPolicy {
	return QualityGatedPolicy{Sentinel: sentinel, FullCount: float64(fullCount)}
}

func (p QualityGatedPolicy) Sample(b *Band, t, row, lon int, out []float64) bool {
	for i, f := range b.Vars {
		v := f.At(t, row, lon)
		n := b.Counts[i].At(t, row, lon)
		if !p.isSentinel(v) && n == p.FullCount {
			out[i] = v
		} else {
			out[i] = math.NaN()
		}
	}
	return true
}

// isSentinel compares in single precision: means are stored as float32, and
// -999.9 widened from float32 is not the float64 literal -999.9.
func (p QualityGatedPolicy) isSentinel(v float64) bool {
	return float32(v) == float32(p.Sentinel)
}

// Retain drops the location unless every variable has at least one valid
// value. Partial variable coverage never produces a partial record.
func (QualityGatedPolicy) Retain(series [][]float64) DropReason {
	if len(series) == 0 {
		return DropEmpty
	}
	covered := 0
	for _, s := range series {
		if hasValue(s) {
			covered++
		}
	}
	switch covered {
	case len(series):
		return DropNone
	case 0:
		return DropEmpty
	default:
		return DropPartialCoverage
	}
}

func (QualityGatedPolicy) RecordTimes() bool { return false }

func hasValue(s []float64) bool {
	for _, v := range s {
		if !math.IsNaN(v) {
			return true
		}
	}
	return false
}
