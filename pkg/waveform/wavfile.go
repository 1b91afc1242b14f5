package waveform

import (
	"fmt"
	"io"
	"time"

	"github.com/go-audio/wav"
)

// AudioFormatError reports a WAV stream that cannot be decoded as PCM.
type AudioFormatError struct {
	Reason string
	Err    error
}

func (e *AudioFormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("audio format: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("audio format: %s", e.Reason)
}

func (e *AudioFormatError) Unwrap() error { return e.Err }

// ChannelError reports a channel selector beyond the stream's channel
// count.
type ChannelError struct {
	Channel int
	Count   int
}

func (e *ChannelError) Error() string {
	return fmt.Sprintf("channel %d out of range: stream has %d channel(s)", e.Channel, e.Count)
}

// AudioResult is a decoded, decimated audio clip ready for upload.
type AudioResult struct {
	Samples []float64
	Points  int

	// Duration of the original clip.
	Duration time.Duration
	// SuggestedRate is the arb sample rate (Sa/s) that preserves the
	// clip's wall-clock duration when the decimated sequence replays.
	SuggestedRate float64

	SourceRate   int
	SourceFrames int
}

// DecodeWAV decodes a RIFF/WAVE PCM stream into a sample sequence.
//
// channel selects which channel of a multi-channel stream to extract
// (0-based). When the frame count exceeds maxPoints the stream is
// decimated by keeping every n-th frame, with n chosen so the output
// stays within the budget; no filtering is applied. maxPoints <= 0
// disables decimation. The decoded samples are passed through Normalize
// with the caller's flag.
func DecodeWAV(r io.ReadSeeker, channel, maxPoints int, normalize bool) (*AudioResult, error) {
	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		return nil, &AudioFormatError{Reason: "not a RIFF/WAVE PCM file"}
	}

	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, &AudioFormatError{Reason: "PCM decode failed", Err: err}
	}
	if buf == nil || buf.Format == nil || buf.Format.NumChannels < 1 {
		return nil, &AudioFormatError{Reason: "missing format chunk"}
	}

	nch := buf.Format.NumChannels
	if channel < 0 || channel >= nch {
		return nil, &ChannelError{Channel: channel, Count: nch}
	}

	bits := buf.SourceBitDepth
	if bits == 0 {
		bits = int(d.BitDepth)
	}

	frames := len(buf.Data) / nch
	if frames == 0 {
		return nil, &AudioFormatError{Reason: "empty audio stream"}
	}
	rate := buf.Format.SampleRate
	if rate <= 0 {
		return nil, &AudioFormatError{Reason: "invalid sample rate"}
	}

	mono := make([]float64, frames)
	for i := 0; i < frames; i++ {
		raw := buf.Data[i*nch+channel]
		v, err := decodePCM(raw, bits)
		if err != nil {
			return nil, err
		}
		mono[i] = v
	}

	// Stride decimation, no averaging. The stride is rounded up so the
	// output never exceeds the point budget.
	out := mono
	if maxPoints > 0 && frames > maxPoints {
		stride := frames / maxPoints
		if frames%maxPoints != 0 {
			stride++
		}
		out = make([]float64, 0, frames/stride+1)
		for i := 0; i < frames; i += stride {
			out = append(out, mono[i])
		}
	}

	samples, err := Normalize(out, normalize)
	if err != nil {
		return nil, err
	}

	duration := time.Duration(float64(frames) / float64(rate) * float64(time.Second))
	return &AudioResult{
		Samples:       samples,
		Points:        len(samples),
		Duration:      duration,
		SuggestedRate: float64(rate) * float64(len(samples)) / float64(frames),
		SourceRate:    rate,
		SourceFrames:  frames,
	}, nil
}

// decodePCM maps one raw PCM sample into [-1, 1]. Each bit depth has
// its own zero point and full-scale convention: 8-bit WAV is unsigned
// with silence at 128, wider depths are signed two's complement.
func decodePCM(raw, bits int) (float64, error) {
	switch bits {
	case 8:
		return (float64(raw) - 128.0) / 128.0, nil
	case 16:
		return float64(raw) / 32768.0, nil
	case 24:
		return float64(raw) / 8388608.0, nil
	case 32:
		return float64(raw) / 2147483648.0, nil
	default:
		return 0, &AudioFormatError{Reason: fmt.Sprintf("unsupported bit depth %d", bits)}
	}
}
