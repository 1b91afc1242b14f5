// Package waveform converts external waveform data (delimited text files,
// WAV audio) into normalized sample sequences ready for upload to an
// arbitrary waveform generator.
package waveform

import (
	"fmt"
	"math"
)

// OutOfRangeError reports a sample outside [-1, 1] on the pre-normalized
// ingestion path (normalize=false).
type OutOfRangeError struct {
	Index int
	Value float64
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("sample %d out of range: %g not in [-1, 1]", e.Index, e.Value)
}

// CapacityError reports a sequence longer than the target model's
// arbitrary waveform memory. The caller must downsample explicitly;
// nothing in this package truncates silently.
type CapacityError struct {
	Points int
	Max    int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("waveform has %d points, instrument accepts at most %d", e.Points, e.Max)
}

// Normalize maps samples into [-1, 1] without changing order or length.
//
// With normalize true the sequence is scaled by its peak absolute value;
// an all-zero sequence comes back unchanged instead of dividing by zero.
// With normalize false values pass through untouched, but any sample
// outside [-1, 1] fails with an OutOfRangeError so callers feeding
// supposedly pre-normalized data catch upstream bugs before anything
// reaches the instrument.
func Normalize(samples []float64, normalize bool) ([]float64, error) {
	out := make([]float64, len(samples))
	if !normalize {
		for i, v := range samples {
			if v < -1.0 || v > 1.0 {
				return nil, &OutOfRangeError{Index: i, Value: v}
			}
			out[i] = v
		}
		return out, nil
	}

	peak := 0.0
	for _, v := range samples {
		if a := math.Abs(v); a > peak {
			peak = a
		}
	}
	if peak == 0 {
		copy(out, samples)
		return out, nil
	}
	for i, v := range samples {
		out[i] = v / peak
	}
	return out, nil
}
