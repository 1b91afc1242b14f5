package dg

import (
	"fmt"
	"math"
	"strings"
	"sync"
)

// Function is a generator output function kind.
type Function string

const (
	Sine   Function = "SIN"
	Square Function = "SQU"
	Ramp   Function = "RAMP"
	Pulse  Function = "PULSE"
	Noise  Function = "NOIS"
	Arb    Function = "ARB"
	DC     Function = "DC"
)

// ModulationKind selects the active modulation of a channel.
type ModulationKind string

const (
	ModNone ModulationKind = "NONE"
	ModAM   ModulationKind = "AM"
	ModFM   ModulationKind = "FM"
)

// Modulation holds the parameters of the active modulation. Depth is
// only meaningful for AM, Deviation only for FM.
type Modulation struct {
	Kind      ModulationKind `json:"kind"`
	DepthPct  float64        `json:"depth_pct,omitempty"`
	Deviation float64        `json:"deviation_hz,omitempty"`
	RateHz    float64        `json:"rate_hz,omitempty"`
}

// HighZ is the load value selecting high-impedance output.
var HighZ = math.Inf(1)

// ChannelState mirrors one output channel. The mirror is advisory: the
// instrument may be altered out-of-band (front panel), so getters
// re-query rather than trusting it. Duty cycle is only meaningful for
// Square and Pulse, symmetry only for Ramp.
type ChannelState struct {
	Function    Function   `json:"function"`
	FreqHz      float64    `json:"freq_hz"`
	AmplVpp     float64    `json:"ampl_vpp"`
	OffsetV     float64    `json:"offset_v"`
	PhaseDeg    float64    `json:"phase_deg"`
	DutyPct     float64    `json:"duty_pct"`
	SymmetryPct float64    `json:"symmetry_pct"`
	Output      bool       `json:"output"`
	LoadOhms    float64    `json:"load_ohms"` // HighZ (+Inf) for high impedance
	Mod         Modulation `json:"modulation"`
}

// Generator is the per-channel state manager. Setters validate before
// transmitting, update the mirror after the command succeeds, and
// composite operations apply their settings in a fixed order (function,
// then frequency/amplitude/offset, then shape parameters, then
// modulation, then output) because the instrument rejects shape
// parameters until the function kind matches.
type Generator struct {
	s *Session

	mu    sync.RWMutex
	chans map[int]*ChannelState
}

// NewGenerator builds the state manager for all channels the model
// exposes. Mirrors start from the instrument's factory defaults.
func NewGenerator(s *Session) *Generator {
	g := &Generator{s: s, chans: make(map[int]*ChannelState)}
	for ch := 1; ch <= s.caps.Channels; ch++ {
		g.chans[ch] = &ChannelState{
			Function:    Sine,
			FreqHz:      1000,
			AmplVpp:     5,
			DutyPct:     50,
			SymmetryPct: 50,
			LoadOhms:    HighZ,
			Mod:         Modulation{Kind: ModNone},
		}
	}
	return g
}

// Session exposes the underlying SCPI session.
func (g *Generator) Session() *Session { return g.s }

// Channels returns the channel count of the connected model.
func (g *Generator) Channels() int { return g.s.caps.Channels }

func (g *Generator) channel(ch int) (*ChannelState, error) {
	st, ok := g.chans[ch]
	if !ok {
		return nil, &InvalidParameterError{
			Channel: ch,
			Param:   "channel",
			Reason:  fmt.Sprintf("model %s has channels 1..%d", g.s.caps.Family, g.s.caps.Channels),
		}
	}
	return st, nil
}

// State returns a copy of the advisory mirror for ch.
func (g *Generator) State(ch int) (ChannelState, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	st, err := g.channel(ch)
	if err != nil {
		return ChannelState{}, err
	}
	return *st, nil
}

// SetFunction switches the output function. Frequency, amplitude,
// offset, phase and load persist across the switch; duty cycle and
// symmetry reset to their function default of 50% because their
// meaning is shape-specific.
func (g *Generator) SetFunction(ch int, fn Function) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	st, err := g.channel(ch)
	if err != nil {
		return err
	}
	if !g.functionSupported(fn) {
		return &InvalidParameterError{Channel: ch, Param: "function", Reason: fmt.Sprintf("%q not supported by %s", fn, g.s.caps.Family)}
	}
	if err := g.s.Write("SOUR%d:FUNC %s", ch, fn); err != nil {
		return err
	}
	st.Function = fn
	st.DutyPct = 50
	st.SymmetryPct = 50
	return nil
}

func (g *Generator) functionSupported(fn Function) bool {
	for _, f := range g.s.caps.Functions {
		if strings.EqualFold(f, string(fn)) {
			return true
		}
	}
	return false
}

// SetFrequency sets the output frequency in Hz.
func (g *Generator) SetFrequency(ch int, hz float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.setFrequencyLocked(ch, hz)
}

func (g *Generator) setFrequencyLocked(ch int, hz float64) error {
	st, err := g.channel(ch)
	if err != nil {
		return err
	}
	if hz <= 0 || math.IsNaN(hz) || math.IsInf(hz, 0) {
		return &InvalidParameterError{Channel: ch, Param: "frequency", Reason: fmt.Sprintf("%g Hz, must be > 0", hz)}
	}
	if err := g.s.Write("SOUR%d:FREQ %g", ch, hz); err != nil {
		return err
	}
	st.FreqHz = hz
	return nil
}

// SetFrequencyUnit sets the frequency with an explicit unit, one of
// HZ, KHZ or MHZ.
func (g *Generator) SetFrequencyUnit(ch int, value float64, unit string) error {
	var mult float64
	switch strings.ToUpper(strings.TrimSpace(unit)) {
	case "HZ":
		mult = 1
	case "KHZ":
		mult = 1e3
	case "MHZ":
		mult = 1e6
	default:
		return &InvalidParameterError{Channel: ch, Param: "frequency unit", Reason: fmt.Sprintf("%q, use HZ, KHZ or MHZ", unit)}
	}
	return g.SetFrequency(ch, value*mult)
}

// SetAmplitude sets the amplitude in the channel's current unit
// (Vpp by default).
func (g *Generator) SetAmplitude(ch int, ampl float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.setAmplitudeLocked(ch, ampl)
}

func (g *Generator) setAmplitudeLocked(ch int, ampl float64) error {
	st, err := g.channel(ch)
	if err != nil {
		return err
	}
	if ampl < 0 || math.IsNaN(ampl) || math.IsInf(ampl, 0) {
		return &InvalidParameterError{Channel: ch, Param: "amplitude", Reason: fmt.Sprintf("%g Vpp, must be >= 0", ampl)}
	}
	if err := g.s.Write("SOUR%d:VOLT %g", ch, ampl); err != nil {
		return err
	}
	st.AmplVpp = ampl
	return nil
}

// SetAmplitudeUnit selects VPP, VRMS or DBM for the channel.
func (g *Generator) SetAmplitudeUnit(ch int, unit string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, err := g.channel(ch); err != nil {
		return err
	}
	u := strings.ToUpper(strings.TrimSpace(unit))
	switch u {
	case "VPP", "VRMS", "DBM":
	default:
		return &InvalidParameterError{Channel: ch, Param: "amplitude unit", Reason: fmt.Sprintf("%q, use VPP, VRMS or DBM", unit)}
	}
	return g.s.Write("SOUR%d:VOLT:UNIT %s", ch, u)
}

// GetAmplitudeUnit re-queries the channel's amplitude unit.
func (g *Generator) GetAmplitudeUnit(ch int) (string, error) {
	if _, err := g.State(ch); err != nil {
		return "", err
	}
	return g.s.Query("SOUR%d:VOLT:UNIT?", ch)
}

// SetAmplitudeDBm switches the channel to dBm and sets the level.
// Meaningful for a 50 Ohm load.
func (g *Generator) SetAmplitudeDBm(ch int, dbm float64) error {
	if err := g.SetAmplitudeUnit(ch, "DBM"); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if math.IsNaN(dbm) || math.IsInf(dbm, 0) {
		return &InvalidParameterError{Channel: ch, Param: "amplitude", Reason: "level must be finite"}
	}
	return g.s.Write("SOUR%d:VOLT %g", ch, dbm)
}

// Set50OhmDBm configures the channel for RF work: 50 Ohm load and dBm
// amplitude unit.
func (g *Generator) Set50OhmDBm(ch int) error {
	if err := g.SetLoad(ch, 50); err != nil {
		return err
	}
	return g.SetAmplitudeUnit(ch, "DBM")
}

// SetOffset sets the DC offset in volts.
func (g *Generator) SetOffset(ch int, offset float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.setOffsetLocked(ch, offset)
}

func (g *Generator) setOffsetLocked(ch int, offset float64) error {
	st, err := g.channel(ch)
	if err != nil {
		return err
	}
	if math.IsNaN(offset) || math.IsInf(offset, 0) {
		return &InvalidParameterError{Channel: ch, Param: "offset", Reason: "must be finite"}
	}
	if err := g.s.Write("SOUR%d:VOLT:OFFS %g", ch, offset); err != nil {
		return err
	}
	st.OffsetV = offset
	return nil
}

// SetPhase sets the start phase in degrees, wrapped into [0, 360).
func (g *Generator) SetPhase(ch int, deg float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	st, err := g.channel(ch)
	if err != nil {
		return err
	}
	if math.IsNaN(deg) || math.IsInf(deg, 0) {
		return &InvalidParameterError{Channel: ch, Param: "phase", Reason: "must be finite"}
	}
	wrapped := math.Mod(deg, 360)
	if wrapped < 0 {
		wrapped += 360
	}
	if err := g.s.Write("SOUR%d:PHAS %g", ch, wrapped); err != nil {
		return err
	}
	st.PhaseDeg = wrapped
	return nil
}

// SetDutyCycle sets the duty cycle in percent. Only valid while the
// channel function is Square or Pulse; out-of-range values are
// rejected, never clamped.
func (g *Generator) SetDutyCycle(ch int, pct float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	st, err := g.channel(ch)
	if err != nil {
		return err
	}
	if pct < 0 || pct > 100 || math.IsNaN(pct) {
		return &InvalidParameterError{Channel: ch, Param: "duty cycle", Reason: fmt.Sprintf("%g%%, must be in [0, 100]", pct)}
	}
	var cmd string
	switch st.Function {
	case Square:
		cmd = "SOUR%d:FUNC:SQU:DCYC %g"
	case Pulse:
		cmd = "SOUR%d:FUNC:PULS:DCYC %g"
	default:
		return &InvalidParameterError{Channel: ch, Param: "duty cycle", Reason: fmt.Sprintf("function is %s, duty cycle needs SQU or PULSE", st.Function)}
	}
	if err := g.s.Write(cmd, ch, pct); err != nil {
		return err
	}
	st.DutyPct = pct
	return nil
}

// SetLoad sets the output load impedance in ohms; HighZ selects the
// high-impedance setting.
func (g *Generator) SetLoad(ch int, ohms float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	st, err := g.channel(ch)
	if err != nil {
		return err
	}
	switch {
	case math.IsInf(ohms, 1):
		if err := g.s.Write("OUTP%d:LOAD INF", ch); err != nil {
			return err
		}
	case ohms > 0 && !math.IsNaN(ohms):
		if err := g.s.Write("OUTP%d:LOAD %g", ch, ohms); err != nil {
			return err
		}
	default:
		return &InvalidParameterError{Channel: ch, Param: "load", Reason: fmt.Sprintf("%g Ohm, must be > 0 or HighZ", ohms)}
	}
	st.LoadOhms = ohms
	return nil
}

// SetOutput enables or disables the channel output.
func (g *Generator) SetOutput(ch int, on bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.setOutputLocked(ch, on)
}

func (g *Generator) setOutputLocked(ch int, on bool) error {
	st, err := g.channel(ch)
	if err != nil {
		return err
	}
	state := "OFF"
	if on {
		state = "ON"
	}
	if err := g.s.Write("OUTP%d %s", ch, state); err != nil {
		return err
	}
	st.Output = on
	return nil
}

// SetSampleRate sets the arb replay sample rate in Sa/s.
func (g *Generator) SetSampleRate(ch int, rate float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, err := g.channel(ch); err != nil {
		return err
	}
	if rate <= 0 || math.IsNaN(rate) || math.IsInf(rate, 0) {
		return &InvalidParameterError{Channel: ch, Param: "sample rate", Reason: fmt.Sprintf("%g Sa/s, must be > 0", rate)}
	}
	return g.s.Write("SOUR%d:FUNC:ARB:SRAT %g", ch, rate)
}

// GetSampleRate re-queries the arb sample rate.
func (g *Generator) GetSampleRate(ch int) (float64, error) {
	if _, err := g.State(ch); err != nil {
		return 0, err
	}
	return g.s.QueryFloat("SOUR%d:FUNC:ARB:SRAT?", ch)
}

// GetFrequency re-queries the output frequency; the mirror is refreshed
// with the instrument's answer.
func (g *Generator) GetFrequency(ch int) (float64, error) {
	if _, err := g.State(ch); err != nil {
		return 0, err
	}
	hz, err := g.s.QueryFloat("SOUR%d:FREQ?", ch)
	if err != nil {
		return 0, err
	}
	g.mu.Lock()
	g.chans[ch].FreqHz = hz
	g.mu.Unlock()
	return hz, nil
}

// GetAmplitude re-queries the output amplitude.
func (g *Generator) GetAmplitude(ch int) (float64, error) {
	if _, err := g.State(ch); err != nil {
		return 0, err
	}
	ampl, err := g.s.QueryFloat("SOUR%d:VOLT?", ch)
	if err != nil {
		return 0, err
	}
	g.mu.Lock()
	g.chans[ch].AmplVpp = ampl
	g.mu.Unlock()
	return ampl, nil
}

// GetFunction re-queries the active function kind.
func (g *Generator) GetFunction(ch int) (Function, error) {
	if _, err := g.State(ch); err != nil {
		return "", err
	}
	reply, err := g.s.Query("SOUR%d:FUNC?", ch)
	if err != nil {
		return "", err
	}
	fn := Function(strings.ToUpper(strings.TrimSpace(reply)))
	g.mu.Lock()
	g.chans[ch].Function = fn
	g.mu.Unlock()
	return fn, nil
}

// IsOutputOn re-queries the output enable state.
func (g *Generator) IsOutputOn(ch int) (bool, error) {
	if _, err := g.State(ch); err != nil {
		return false, err
	}
	reply, err := g.s.Query("OUTP%d?", ch)
	if err != nil {
		return false, err
	}
	on := reply == "1" || strings.EqualFold(reply, "ON")
	g.mu.Lock()
	g.chans[ch].Output = on
	g.mu.Unlock()
	return on, nil
}

// SetModulationAM enables amplitude modulation with the internal
// source. Any active FM is cleared first: modulations are mutually
// exclusive.
func (g *Generator) SetModulationAM(ch int, depthPct, rateHz float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	st, err := g.channel(ch)
	if err != nil {
		return err
	}
	if depthPct < 0 || depthPct > 120 || math.IsNaN(depthPct) {
		return &InvalidParameterError{Channel: ch, Param: "AM depth", Reason: fmt.Sprintf("%g%%, must be in [0, 120]", depthPct)}
	}
	if rateHz <= 0 || math.IsNaN(rateHz) || math.IsInf(rateHz, 0) {
		return &InvalidParameterError{Channel: ch, Param: "AM rate", Reason: fmt.Sprintf("%g Hz, must be > 0", rateHz)}
	}

	for _, cmd := range []string{
		fmt.Sprintf("SOUR%d:FM:STAT OFF", ch),
		fmt.Sprintf("SOUR%d:AM:STAT ON", ch),
		fmt.Sprintf("SOUR%d:AM:DEPT %g", ch, depthPct),
		fmt.Sprintf("SOUR%d:AM:INT:FREQ %g", ch, rateHz),
	} {
		if err := g.s.Write("%s", cmd); err != nil {
			return err
		}
	}
	st.Mod = Modulation{Kind: ModAM, DepthPct: depthPct, RateHz: rateHz}
	return nil
}

// SetModulationFM enables frequency modulation with the internal
// source, clearing any active AM.
func (g *Generator) SetModulationFM(ch int, deviationHz, rateHz float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	st, err := g.channel(ch)
	if err != nil {
		return err
	}
	if deviationHz <= 0 || math.IsNaN(deviationHz) || math.IsInf(deviationHz, 0) {
		return &InvalidParameterError{Channel: ch, Param: "FM deviation", Reason: fmt.Sprintf("%g Hz, must be > 0", deviationHz)}
	}
	if rateHz <= 0 || math.IsNaN(rateHz) || math.IsInf(rateHz, 0) {
		return &InvalidParameterError{Channel: ch, Param: "FM rate", Reason: fmt.Sprintf("%g Hz, must be > 0", rateHz)}
	}

	for _, cmd := range []string{
		fmt.Sprintf("SOUR%d:AM:STAT OFF", ch),
		fmt.Sprintf("SOUR%d:FM:STAT ON", ch),
		fmt.Sprintf("SOUR%d:FM:DEV %g", ch, deviationHz),
		fmt.Sprintf("SOUR%d:FM:INT:FREQ %g", ch, rateHz),
	} {
		if err := g.s.Write("%s", cmd); err != nil {
			return err
		}
	}
	st.Mod = Modulation{Kind: ModFM, Deviation: deviationHz, RateHz: rateHz}
	return nil
}

// ModulationOff disables AM, FM and PM on the channel.
func (g *Generator) ModulationOff(ch int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	st, err := g.channel(ch)
	if err != nil {
		return err
	}
	for _, mod := range []string{"AM", "FM", "PM"} {
		if err := g.s.Write("SOUR%d:%s:STAT OFF", ch, mod); err != nil {
			return err
		}
	}
	st.Mod = Modulation{Kind: ModNone}
	return nil
}

// SineBurst configures a sine burst of the given cycle count. Applied
// in order: function, frequency, amplitude, burst parameters, burst
// enable.
func (g *Generator) SineBurst(ch, cycles int, freqHz, amplVpp float64) error {
	if cycles < 1 {
		return &InvalidParameterError{Channel: ch, Param: "burst cycles", Reason: fmt.Sprintf("%d, must be >= 1", cycles)}
	}
	if freqHz <= 0 {
		return &InvalidParameterError{Channel: ch, Param: "frequency", Reason: fmt.Sprintf("%g Hz, must be > 0", freqHz)}
	}
	if amplVpp < 0 {
		return &InvalidParameterError{Channel: ch, Param: "amplitude", Reason: fmt.Sprintf("%g Vpp, must be >= 0", amplVpp)}
	}

	if err := g.SetFunction(ch, Sine); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.setFrequencyLocked(ch, freqHz); err != nil {
		return err
	}
	if err := g.setAmplitudeLocked(ch, amplVpp); err != nil {
		return err
	}
	if err := g.s.Write("SOUR%d:BURS:NCYC %d", ch, cycles); err != nil {
		return err
	}
	return g.s.Write("SOUR%d:BURS:STAT ON", ch)
}

// CustomPulse configures a pulse from width, period and edge time, all
// in seconds. Applied in order: function first, then the pulse shape
// parameters.
func (g *Generator) CustomPulse(ch int, width, period, edgeTime float64) error {
	if width <= 0 {
		return &InvalidParameterError{Channel: ch, Param: "pulse width", Reason: fmt.Sprintf("%g s, must be > 0", width)}
	}
	if period <= 0 {
		return &InvalidParameterError{Channel: ch, Param: "pulse period", Reason: fmt.Sprintf("%g s, must be > 0", period)}
	}
	if width >= period {
		return &InvalidParameterError{Channel: ch, Param: "pulse width", Reason: fmt.Sprintf("%g s does not fit period %g s", width, period)}
	}
	if edgeTime <= 0 {
		return &InvalidParameterError{Channel: ch, Param: "edge time", Reason: fmt.Sprintf("%g s, must be > 0", edgeTime)}
	}

	if err := g.SetFunction(ch, Pulse); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.s.Write("SOUR%d:FUNC:PULS:WIDT %g", ch, width); err != nil {
		return err
	}
	if err := g.s.Write("SOUR%d:FUNC:PULS:PER %g", ch, period); err != nil {
		return err
	}
	return g.s.Write("SOUR%d:FUNC:PULS:TRAN %g", ch, edgeTime)
}

// RampOutput configures a ramp with the given symmetry: 0% falling,
// 50% triangular, 100% rising. Applied in order: function, frequency,
// symmetry.
func (g *Generator) RampOutput(ch int, freqHz, symmetryPct float64) error {
	if freqHz <= 0 {
		return &InvalidParameterError{Channel: ch, Param: "frequency", Reason: fmt.Sprintf("%g Hz, must be > 0", freqHz)}
	}
	if symmetryPct < 0 || symmetryPct > 100 || math.IsNaN(symmetryPct) {
		return &InvalidParameterError{Channel: ch, Param: "symmetry", Reason: fmt.Sprintf("%g%%, must be in [0, 100]", symmetryPct)}
	}

	if err := g.SetFunction(ch, Ramp); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.setFrequencyLocked(ch, freqHz); err != nil {
		return err
	}
	if err := g.s.Write("SOUR%d:FUNC:RAMP:SYMM %g", ch, symmetryPct); err != nil {
		return err
	}
	g.chans[ch].SymmetryPct = symmetryPct
	return nil
}
