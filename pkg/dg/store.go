package dg

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/iu3qez/rigol-dg800/pkg/waveform"
)

// maxWaveformName bounds user-supplied waveform names; the instrument
// catalog truncates longer ones silently.
const maxWaveformName = 26

// Store is the client for the instrument's waveform memory: volatile
// upload, the named non-volatile catalog, and arb selection per
// channel.
type Store struct {
	s *Session
}

// NewStore returns a waveform store client on s.
func NewStore(s *Session) *Store { return &Store{s: s} }

// validateName rejects names the instrument's catalog cannot hold:
// only letters, digits and underscores are portable across firmwares.
func validateName(name string) error {
	if name == "" {
		return &InvalidParameterError{Param: "waveform name", Reason: "empty"}
	}
	if len(name) > maxWaveformName {
		return &InvalidParameterError{Param: "waveform name", Reason: fmt.Sprintf("%q is %d chars, limit is %d", name, len(name), maxWaveformName)}
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
		default:
			return &InvalidParameterError{Param: "waveform name", Reason: fmt.Sprintf("%q contains %q, use letters, digits and underscore", name, r)}
		}
	}
	return nil
}

// Upload writes samples into the channel's volatile waveform memory.
// Samples must already be in [-1, 1]; out-of-range values are rejected,
// never clamped, and a point count above the model's arb memory is a
// capacity error. The whole block goes out as one command so the
// transfer is atomic from the instrument's point of view.
func (st *Store) Upload(ch int, samples []float64) error {
	if ch < 1 || ch > st.s.caps.Channels {
		return &InvalidParameterError{Channel: ch, Param: "channel", Reason: fmt.Sprintf("model %s has channels 1..%d", st.s.caps.Family, st.s.caps.Channels)}
	}
	if len(samples) == 0 {
		return &InvalidParameterError{Channel: ch, Param: "samples", Reason: "empty waveform"}
	}
	if len(samples) > st.s.caps.MaxPoints {
		return &waveform.CapacityError{Points: len(samples), Max: st.s.caps.MaxPoints}
	}
	if _, err := waveform.Normalize(samples, false); err != nil {
		return err
	}

	var cmd []byte
	switch st.s.caps.Encoding {
	case EncodingFloat:
		cmd = encodeFloatList(ch, samples)
	default:
		cmd = encodeDAC16(ch, samples)
	}
	if err := st.s.t.Send(cmd); err != nil {
		return err
	}
	return st.s.checkErrorQueue()
}

// encodeDAC16 builds a SOURn:DATA:DAC16 command with the samples as
// 14-bit DAC codes in an IEEE-488.2 definite-length binary block.
// -1 maps to code 0, +1 to 0x3FFF, little-endian per code.
func encodeDAC16(ch int, samples []float64) []byte {
	data := make([]byte, 2*len(samples))
	for i, v := range samples {
		code := uint16(math.Round((v + 1) / 2 * 0x3FFF))
		binary.LittleEndian.PutUint16(data[2*i:], code)
	}

	length := strconv.Itoa(len(data))
	cmd := make([]byte, 0, 40+len(data))
	cmd = append(cmd, fmt.Sprintf("SOUR%d:DATA:DAC16 VOLATILE,END,#%d%s", ch, len(length), length)...)
	return append(cmd, data...)
}

// encodeFloatList builds the ASCII float form of the volatile upload,
// used by older firmware without DAC16 support.
func encodeFloatList(ch int, samples []float64) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "SOUR%d:DATA VOLATILE", ch)
	for _, v := range samples {
		fmt.Fprintf(&b, ",%.6f", v)
	}
	return []byte(b.String())
}

// Save copies the channel's volatile waveform into the named
// non-volatile catalog slot.
func (st *Store) Save(ch int, name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	if err := st.s.Write("SOUR%d:DATA:COPY %s,VOLATILE", ch, name); err != nil {
		return err
	}
	return st.s.checkErrorQueue()
}

// List returns the stored waveform names in the order the instrument
// reports them. The catalog reply is a comma list of quoted entries.
func (st *Store) List() ([]string, error) {
	reply, err := st.s.Query("SOUR1:DATA:CAT?")
	if err != nil {
		return nil, err
	}

	var names []string
	for _, field := range strings.Split(reply, ",") {
		name := strings.Trim(strings.TrimSpace(field), `"`)
		if name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}

// Delete removes a stored waveform. A name the instrument does not know
// surfaces from its error queue as a NotFoundError.
func (st *Store) Delete(name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	if err := st.s.Write("SOUR1:DATA:DEL %s", name); err != nil {
		return err
	}
	return st.mapNotFound(name, st.s.checkErrorQueue())
}

// Select switches the channel to arb output replaying the named stored
// waveform. VOLATILE selects the volatile memory.
func (st *Store) Select(ch int, name string) error {
	if ch < 1 || ch > st.s.caps.Channels {
		return &InvalidParameterError{Channel: ch, Param: "channel", Reason: fmt.Sprintf("model %s has channels 1..%d", st.s.caps.Family, st.s.caps.Channels)}
	}
	if !strings.EqualFold(name, "VOLATILE") {
		if err := validateName(name); err != nil {
			return err
		}
	}
	if err := st.s.Write("SOUR%d:FUNC ARB", ch); err != nil {
		return err
	}
	if err := st.s.Write("SOUR%d:FUNC:ARB %s", ch, name); err != nil {
		return err
	}
	return st.mapNotFound(name, st.s.checkErrorQueue())
}

// mapNotFound rewrites an error-queue rejection about a missing
// waveform into a NotFoundError, leaving other instrument errors as-is.
func (st *Store) mapNotFound(name string, err error) error {
	ie, ok := err.(*InstrumentError)
	if !ok {
		return err
	}
	msg := strings.ToLower(ie.Msg)
	if ie.Code == -256 || strings.Contains(msg, "not found") || strings.Contains(msg, "exist") {
		return &NotFoundError{Name: name, Code: ie.Code, Msg: ie.Msg}
	}
	return err
}
