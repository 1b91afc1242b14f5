package waveform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeScalesByPeak(t *testing.T) {
	out, err := Normalize([]float64{1, -2, 4}, true)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.25, -0.5, 1.0}, out)
}

func TestNormalizeIdempotent(t *testing.T) {
	in := []float64{0.0, 0.5, -1.0, 1.0}
	out, err := Normalize(in, true)
	require.NoError(t, err)
	for i := range in {
		assert.InDelta(t, in[i], out[i], 1e-12)
	}
}

func TestNormalizeAllZeros(t *testing.T) {
	out, err := Normalize([]float64{0, 0, 0}, true)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 0}, out)
}

func TestNormalizePreservesLengthAndOrder(t *testing.T) {
	in := []float64{3, -1, 2, -4, 0}
	out, err := Normalize(in, true)
	require.NoError(t, err)
	require.Len(t, out, len(in))
	assert.Equal(t, []float64{0.75, -0.25, 0.5, -1.0, 0}, out)
}

func TestNormalizeDisabledPassesThrough(t *testing.T) {
	in := []float64{-1.0, 0.25, 1.0}
	out, err := Normalize(in, false)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestNormalizeDisabledRejectsOutOfRange(t *testing.T) {
	_, err := Normalize([]float64{0.5, 1.5}, false)
	require.Error(t, err)
	var oor *OutOfRangeError
	require.ErrorAs(t, err, &oor)
	assert.Equal(t, 1, oor.Index)
	assert.Equal(t, 1.5, oor.Value)
}
