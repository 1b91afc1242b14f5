package waveform

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeWAV builds a PCM test file and returns an open handle positioned
// at the start.
func writeWAV(t *testing.T, rate, bitDepth, channels int, data []int) *os.File {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.wav")
	f, err := os.Create(path)
	require.NoError(t, err)

	enc := wav.NewEncoder(f, rate, bitDepth, channels, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: rate},
		Data:           data,
		SourceBitDepth: bitDepth,
	}
	require.NoError(t, enc.Write(buf))
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())

	f, err = os.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}

func TestDecodeWAV8BitScaling(t *testing.T) {
	f := writeWAV(t, 8000, 8, 1, []int{255, 0, 128, 192})

	res, err := DecodeWAV(f, 0, 0, false)
	require.NoError(t, err)
	require.Equal(t, 4, res.Points)
	assert.InDelta(t, 1.0, res.Samples[0], 0.01)
	assert.InDelta(t, -1.0, res.Samples[1], 1e-9)
	assert.InDelta(t, 0.0, res.Samples[2], 1e-9)
	assert.InDelta(t, 0.5, res.Samples[3], 1e-9)
}

func TestDecodeWAV16BitScaling(t *testing.T) {
	f := writeWAV(t, 44100, 16, 1, []int{0, 16384, -32768, 32767})

	res, err := DecodeWAV(f, 0, 0, false)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, res.Samples[0], 1e-9)
	assert.InDelta(t, 0.5, res.Samples[1], 1e-9)
	assert.InDelta(t, -1.0, res.Samples[2], 1e-9)
	assert.InDelta(t, 1.0, res.Samples[3], 1e-4)
}

func TestDecodeWAVChannelExtraction(t *testing.T) {
	// Stereo: left ramps, right constant.
	data := make([]int, 0, 8)
	for i := 0; i < 4; i++ {
		data = append(data, i*1000, 7000)
	}
	f := writeWAV(t, 44100, 16, 2, data)

	res, err := DecodeWAV(f, 1, 0, false)
	require.NoError(t, err)
	require.Equal(t, 4, res.Points)
	for _, v := range res.Samples {
		assert.InDelta(t, 7000.0/32768.0, v, 1e-9)
	}
}

func TestDecodeWAVChannelOutOfRange(t *testing.T) {
	f := writeWAV(t, 44100, 16, 2, []int{0, 0, 0, 0})

	_, err := DecodeWAV(f, 2, 0, false)
	var chErr *ChannelError
	require.ErrorAs(t, err, &chErr)
	assert.Equal(t, 2, chErr.Channel)
	assert.Equal(t, 2, chErr.Count)
}

func TestDecodeWAVDecimationPreservesDuration(t *testing.T) {
	const frames = 100000
	const rate = 44100
	const budget = 8192

	data := make([]int, frames)
	for i := range data {
		data[i] = int(10000 * math.Sin(2*math.Pi*float64(i)/997))
	}
	f := writeWAV(t, rate, 16, 1, data)

	res, err := DecodeWAV(f, 0, budget, true)
	require.NoError(t, err)
	assert.LessOrEqual(t, res.Points, budget)
	assert.Equal(t, frames, res.SourceFrames)

	// Replaying the decimated sequence at the suggested rate keeps the
	// original wall-clock duration.
	replay := float64(res.Points) / res.SuggestedRate
	original := float64(frames) / float64(rate)
	assert.InDelta(t, 1.0, replay/original, 1e-9)
	assert.InDelta(t, original, res.Duration.Seconds(), 1e-6)
}

func TestDecodeWAVPassThroughBelowBudget(t *testing.T) {
	f := writeWAV(t, 8000, 16, 1, []int{1, 2, 3, 4, 5, 6, 7, 8})

	res, err := DecodeWAV(f, 0, 100, false)
	require.NoError(t, err)
	assert.Equal(t, 8, res.Points)
	assert.InDelta(t, 8000.0, res.SuggestedRate, 1e-9)
}

func TestDecodeWAVRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.wav")
	require.NoError(t, os.WriteFile(path, []byte("this is not a wav file at all"), 0o644))
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	_, err = DecodeWAV(f, 0, 0, true)
	var afErr *AudioFormatError
	require.ErrorAs(t, err, &afErr)
}
