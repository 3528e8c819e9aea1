package pacing

import (
	"math"
	"strconv"
)

// Range is a closed interval of physical values.
type Range struct {
	Min float64
	Max float64
}

// Field ranges.
var (
	RateRange         = Range{Min: 30, Max: 200}
	AOutputRange      = Range{Min: 0, Max: 20}
	VOutputRange      = Range{Min: 0, Max: 25}
	ASensitivityRange = Range{Min: 0.4, Max: 10}
	VSensitivityRange = Range{Min: 0.8, Max: 20}
)

// Async is the sensitivity sentinel for disabled sensing.
const Async = 0.0

// AsyncPosition is the inverted-slider position at and beyond which a
// sensitivity control reads ASYNC.
const AsyncPosition = 99.5

// maxNumericPosition keeps numeric sensitivities off the ASYNC detent.
const maxNumericPosition = 99.49

// RangeFor returns the bounds of f.
func RangeFor(f Field) (Range, bool) {
	switch f {
	case FieldRate:
		return RateRange, true
	case FieldAOutput:
		return AOutputRange, true
	case FieldVOutput:
		return VOutputRange, true
	case FieldASensitivity:
		return ASensitivityRange, true
	case FieldVSensitivity:
		return VSensitivityRange, true
	}
	return Range{}, false
}

// Clamp returns v limited to the range. NaN clamps to Min.
func (r Range) Clamp(v float64) float64 {
	if math.IsNaN(v) || v < r.Min {
		return r.Min
	}
	if v > r.Max {
		return r.Max
	}
	return v
}

// Contains reports whether v lies within the range.
func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// ClampValue clamps v for field f. Sensitivities keep an exact 0 (ASYNC);
// every other value is clamped into the numeric range.
func ClampValue(f Field, v float64) float64 {
	r, ok := RangeFor(f)
	if !ok {
		return v
	}
	if f.IsSensitivity() && v == Async {
		return Async
	}
	return r.Clamp(v)
}

// StepFor returns the nudge step for f at value v. Steps get finer at low
// magnitudes.
func StepFor(f Field, v float64) float64 {
	switch {
	case f == FieldRate:
		switch {
		case v < 50:
			return 1
		case v < 100:
			return 2
		default:
			return 5
		}
	case f.IsPrimary(), f.IsSensitivity():
		switch {
		case v < 1:
			return 0.1
		case v < 5:
			return 0.5
		default:
			return 1
		}
	}
	return 1
}

// SliderToValue maps an inverted slider position p in [0,100] to a
// sensitivity. Position 0 is the least sensitive (Max); positions at or past
// AsyncPosition give ASYNC.
func SliderToValue(p float64, r Range) float64 {
	if p >= AsyncPosition {
		return Async
	}
	if p < 0 || math.IsNaN(p) {
		p = 0
	}
	v := r.Max - (p/AsyncPosition)*(r.Max-r.Min)
	return r.Clamp(round2(v))
}

// ValueToSlider is the inverse of SliderToValue.
func ValueToSlider(v float64, r Range) float64 {
	if v == Async {
		return 100
	}
	v = r.Clamp(v)
	p := (r.Max - v) / (r.Max - r.Min) * AsyncPosition
	if p > maxNumericPosition {
		p = maxNumericPosition
	}
	return p
}

// SensitivityLabel renders a sensitivity for display. Only 0 renders ASYNC.
func SensitivityLabel(v float64) string {
	if v == Async {
		return "ASYNC"
	}
	return formatValue(v) + " mV"
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
