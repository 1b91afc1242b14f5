package dg

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGenerator(t *testing.T) (*Generator, *fakeTransport) {
	t.Helper()
	ft := newFakeTransport()
	s, err := Connect(ft, nil)
	require.NoError(t, err)
	g := NewGenerator(s)
	ft.sent = nil // drop the *IDN? from connect
	return g, ft
}

func TestSetFrequencyUpdatesMirror(t *testing.T) {
	g, ft := newTestGenerator(t)

	require.NoError(t, g.SetFrequency(1, 2500))
	assert.Equal(t, []string{"SOUR1:FREQ 2500"}, ft.sent)

	st, err := g.State(1)
	require.NoError(t, err)
	assert.Equal(t, 2500.0, st.FreqHz)
}

func TestSetFrequencyRejectsWithoutSending(t *testing.T) {
	g, ft := newTestGenerator(t)

	for _, hz := range []float64{0, -10} {
		err := g.SetFrequency(1, hz)
		var ipe *InvalidParameterError
		require.ErrorAs(t, err, &ipe, "frequency %g", hz)
	}
	assert.Empty(t, ft.sent, "rejected values must never reach the instrument")
}

func TestSetFrequencyUnitScales(t *testing.T) {
	g, ft := newTestGenerator(t)

	require.NoError(t, g.SetFrequencyUnit(1, 2.5, "kHz"))
	assert.Equal(t, []string{"SOUR1:FREQ 2500"}, ft.sent)

	ft.sent = nil
	require.NoError(t, g.SetFrequencyUnit(1, 1.2, "MHZ"))
	assert.Equal(t, []string{"SOUR1:FREQ 1.2e+06"}, ft.sent)

	err := g.SetFrequencyUnit(1, 1, "GHZ")
	var ipe *InvalidParameterError
	assert.ErrorAs(t, err, &ipe)
}

func TestInvalidChannelRejected(t *testing.T) {
	g, ft := newTestGenerator(t)

	err := g.SetFrequency(3, 1000)
	var ipe *InvalidParameterError
	require.ErrorAs(t, err, &ipe)
	assert.Equal(t, 3, ipe.Channel)
	assert.Empty(t, ft.sent)
}

func TestSetFunctionResetsShapeParameters(t *testing.T) {
	g, _ := newTestGenerator(t)

	require.NoError(t, g.SetFunction(1, Square))
	require.NoError(t, g.SetDutyCycle(1, 25))
	require.NoError(t, g.SetFrequency(1, 5000))

	require.NoError(t, g.SetFunction(1, Sine))
	st, err := g.State(1)
	require.NoError(t, err)
	assert.Equal(t, Sine, st.Function)
	assert.Equal(t, 50.0, st.DutyPct, "duty resets on function switch")
	assert.Equal(t, 5000.0, st.FreqHz, "frequency persists across function switch")
}

func TestSetDutyCycleNeedsSquareOrPulse(t *testing.T) {
	g, ft := newTestGenerator(t)

	err := g.SetDutyCycle(1, 30)
	var ipe *InvalidParameterError
	require.ErrorAs(t, err, &ipe, "sine channel must reject duty cycle")
	assert.Empty(t, ft.sent)

	require.NoError(t, g.SetFunction(1, Square))
	ft.sent = nil
	require.NoError(t, g.SetDutyCycle(1, 30))
	assert.Equal(t, []string{"SOUR1:FUNC:SQU:DCYC 30"}, ft.sent)

	require.NoError(t, g.SetFunction(1, Pulse))
	ft.sent = nil
	require.NoError(t, g.SetDutyCycle(1, 30))
	assert.Equal(t, []string{"SOUR1:FUNC:PULS:DCYC 30"}, ft.sent)

	assert.Error(t, g.SetDutyCycle(1, 101))
}

func TestSetPhaseWraps(t *testing.T) {
	g, ft := newTestGenerator(t)

	require.NoError(t, g.SetPhase(1, 450))
	assert.Equal(t, []string{"SOUR1:PHAS 90"}, ft.sent)

	ft.sent = nil
	require.NoError(t, g.SetPhase(1, -90))
	assert.Equal(t, []string{"SOUR1:PHAS 270"}, ft.sent)
}

func TestSetLoadHighZ(t *testing.T) {
	g, ft := newTestGenerator(t)

	require.NoError(t, g.SetLoad(1, 50))
	require.NoError(t, g.SetLoad(1, HighZ))
	assert.Equal(t, []string{"OUTP1:LOAD 50", "OUTP1:LOAD INF"}, ft.sent)

	var ipe *InvalidParameterError
	assert.ErrorAs(t, g.SetLoad(1, 0), &ipe)
	assert.ErrorAs(t, g.SetLoad(1, -50), &ipe)
}

func TestSetOutput(t *testing.T) {
	g, ft := newTestGenerator(t)

	require.NoError(t, g.SetOutput(2, true))
	require.NoError(t, g.SetOutput(2, false))
	assert.Equal(t, []string{"OUTP2 ON", "OUTP2 OFF"}, ft.sent)
}

func TestGettersRequeryAndRefreshMirror(t *testing.T) {
	g, ft := newTestGenerator(t)
	ft.replies["SOUR1:FREQ?"] = "1.234000e+04"
	ft.replies["SOUR1:VOLT?"] = "2.5"
	ft.replies["SOUR1:FUNC?"] = "SQU"
	ft.replies["OUTP1?"] = "ON"

	hz, err := g.GetFrequency(1)
	require.NoError(t, err)
	assert.Equal(t, 12340.0, hz)

	ampl, err := g.GetAmplitude(1)
	require.NoError(t, err)
	assert.Equal(t, 2.5, ampl)

	fn, err := g.GetFunction(1)
	require.NoError(t, err)
	assert.Equal(t, Square, fn)

	on, err := g.IsOutputOn(1)
	require.NoError(t, err)
	assert.True(t, on)

	// The mirror follows the instrument, not the other way round.
	st, err := g.State(1)
	require.NoError(t, err)
	assert.Equal(t, 12340.0, st.FreqHz)
	assert.Equal(t, Square, st.Function)
	assert.True(t, st.Output)
}

func TestModulationAMTurnsFMOff(t *testing.T) {
	g, ft := newTestGenerator(t)

	require.NoError(t, g.SetModulationAM(1, 80, 100))
	assert.Equal(t, []string{
		"SOUR1:FM:STAT OFF",
		"SOUR1:AM:STAT ON",
		"SOUR1:AM:DEPT 80",
		"SOUR1:AM:INT:FREQ 100",
	}, ft.sent)

	st, err := g.State(1)
	require.NoError(t, err)
	assert.Equal(t, ModAM, st.Mod.Kind)
	assert.Equal(t, 80.0, st.Mod.DepthPct)
}

func TestModulationFMTurnsAMOff(t *testing.T) {
	g, ft := newTestGenerator(t)

	require.NoError(t, g.SetModulationFM(1, 5000, 400))
	assert.Equal(t, []string{
		"SOUR1:AM:STAT OFF",
		"SOUR1:FM:STAT ON",
		"SOUR1:FM:DEV 5000",
		"SOUR1:FM:INT:FREQ 400",
	}, ft.sent)

	st, err := g.State(1)
	require.NoError(t, err)
	assert.Equal(t, ModFM, st.Mod.Kind)
}

func TestModulationValidation(t *testing.T) {
	g, ft := newTestGenerator(t)

	var ipe *InvalidParameterError
	assert.ErrorAs(t, g.SetModulationAM(1, 121, 100), &ipe)
	assert.ErrorAs(t, g.SetModulationAM(1, 50, 0), &ipe)
	assert.ErrorAs(t, g.SetModulationFM(1, 0, 100), &ipe)
	assert.Empty(t, ft.sent)
}

func TestModulationOffClearsAll(t *testing.T) {
	g, ft := newTestGenerator(t)
	require.NoError(t, g.SetModulationAM(1, 50, 100))
	ft.sent = nil

	require.NoError(t, g.ModulationOff(1))
	assert.Equal(t, []string{
		"SOUR1:AM:STAT OFF",
		"SOUR1:FM:STAT OFF",
		"SOUR1:PM:STAT OFF",
	}, ft.sent)

	st, err := g.State(1)
	require.NoError(t, err)
	assert.Equal(t, ModNone, st.Mod.Kind)
}

func TestSineBurstCommandOrder(t *testing.T) {
	g, ft := newTestGenerator(t)

	require.NoError(t, g.SineBurst(1, 3, 1000, 2))
	assert.Equal(t, []string{
		"SOUR1:FUNC SIN",
		"SOUR1:FREQ 1000",
		"SOUR1:VOLT 2",
		"SOUR1:BURS:NCYC 3",
		"SOUR1:BURS:STAT ON",
	}, ft.sent)
}

func TestSineBurstValidatesBeforeSending(t *testing.T) {
	g, ft := newTestGenerator(t)

	var ipe *InvalidParameterError
	assert.ErrorAs(t, g.SineBurst(1, 0, 1000, 2), &ipe)
	assert.ErrorAs(t, g.SineBurst(1, 3, -1, 2), &ipe)
	assert.Empty(t, ft.sent, "no partial configuration on invalid input")
}

func TestCustomPulse(t *testing.T) {
	g, ft := newTestGenerator(t)

	require.NoError(t, g.CustomPulse(1, 1e-6, 1e-3, 1e-8))
	assert.Equal(t, []string{
		"SOUR1:FUNC PULSE",
		"SOUR1:FUNC:PULS:WIDT 1e-06",
		"SOUR1:FUNC:PULS:PER 0.001",
		"SOUR1:FUNC:PULS:TRAN 1e-08",
	}, ft.sent)

	var ipe *InvalidParameterError
	assert.ErrorAs(t, g.CustomPulse(1, 2e-3, 1e-3, 1e-8), &ipe, "width wider than period")
}

func TestRampOutput(t *testing.T) {
	g, ft := newTestGenerator(t)

	require.NoError(t, g.RampOutput(1, 100, 75))
	assert.Equal(t, []string{
		"SOUR1:FUNC RAMP",
		"SOUR1:FREQ 100",
		"SOUR1:FUNC:RAMP:SYMM 75",
	}, ft.sent)

	st, err := g.State(1)
	require.NoError(t, err)
	assert.Equal(t, 75.0, st.SymmetryPct)

	var ipe *InvalidParameterError
	assert.ErrorAs(t, g.RampOutput(1, 100, 101), &ipe)
}

func TestSet50OhmDBmPreset(t *testing.T) {
	g, ft := newTestGenerator(t)

	require.NoError(t, g.Set50OhmDBm(1))
	assert.Equal(t, []string{"OUTP1:LOAD 50", "SOUR1:VOLT:UNIT DBM"}, ft.sent)
}

func TestSetAmplitudeUnit(t *testing.T) {
	g, ft := newTestGenerator(t)

	for _, u := range []string{"VPP", "vrms", "dBm"} {
		require.NoError(t, g.SetAmplitudeUnit(1, u))
	}
	assert.Equal(t, []string{
		"SOUR1:VOLT:UNIT VPP",
		"SOUR1:VOLT:UNIT VRMS",
		"SOUR1:VOLT:UNIT DBM",
	}, ft.sent)

	var ipe *InvalidParameterError
	assert.ErrorAs(t, g.SetAmplitudeUnit(1, "W"), &ipe)
}

func TestSetSampleRate(t *testing.T) {
	g, ft := newTestGenerator(t)

	require.NoError(t, g.SetSampleRate(1, 44100))
	assert.True(t, strings.HasPrefix(ft.sent[0], "SOUR1:FUNC:ARB:SRAT "))

	var ipe *InvalidParameterError
	assert.ErrorAs(t, g.SetSampleRate(1, 0), &ipe)
}
