package domain

import (
	"fmt"
	"math"
)

// DefaultSampleSpan is the time-coordinate distance between two original
// samples for 6-hourly data with an "hours since" time unit.
const DefaultSampleSpan = 6.0

// spacingTolerance is the relative tolerance used when comparing sample spacings.
const spacingTolerance = 1e-9

// RebuildTimeAxis computes the time coordinate of the expanded axis.
//
// For expanded index i with grain g = i mod G:
//
//	expanded[i] = orig[i/G] + span * (g*granularity / 360)
//
// where span is the time-coordinate distance covered by one original interval.
// The result is monotonically non-decreasing only when orig is uniformly
// spaced by span; use CheckUniformSpacing to verify that beforehand.
func RebuildTimeAxis(orig []float64, s Schedule, span float64) []float64 {
	grains := s.GrainsPerInterval
	out := make([]float64, s.ExpandedLength(len(orig)))
	for i := range out {
		minutesElapsed := float64((i % grains) * s.GranularityMinutes)
		out[i] = orig[i/grains] + span*(minutesElapsed/ReferencePeriodMinutes)
	}
	return out
}

// InferSampleSpan returns the spacing between the first two original samples.
// It reports false when fewer than two samples exist or the spacing is not positive.
func InferSampleSpan(orig []float64) (float64, bool) {
	if len(orig) < 2 {
		return 0, false
	}
	d := orig[1] - orig[0]
	if d <= 0 || math.IsNaN(d) || math.IsInf(d, 0) {
		return 0, false
	}
	return d, true
}

// CheckUniformSpacing reports the first interval whose spacing differs from span.
func CheckUniformSpacing(orig []float64, span float64) error {
	for i := 1; i < len(orig); i++ {
		d := orig[i] - orig[i-1]
		if math.Abs(d-span) > spacingTolerance*math.Max(1, math.Abs(span)) {
			return fmt.Errorf("time samples %d and %d are %g apart, expected %g", i-1, i, d, span)
		}
	}
	return nil
}

// CheckMonotonic reports the first position where values decreases.
func CheckMonotonic(values []float64) error {
	for i := 1; i < len(values); i++ {
		if values[i] < values[i-1] {
			return fmt.Errorf("time value %d (%g) is less than value %d (%g)", i, values[i], i-1, values[i-1])
		}
	}
	return nil
}
