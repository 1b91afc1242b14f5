package main

import (
	"fmt"
	"log"
	"math"
	"strings"

	"github.com/iu3qez/rigol-dg800/pkg/dg"
)

// ChannelConfig holds one channel's settings for batch application.
// Nil fields are left untouched on the instrument.
type ChannelConfig struct {
	Channel  int      `json:"channel"`
	Function *string  `json:"function,omitempty"`
	FreqHz   *float64 `json:"freq_hz,omitempty"`
	AmplVpp  *float64 `json:"ampl_vpp,omitempty"`
	AmplUnit *string  `json:"ampl_unit,omitempty"`
	OffsetV  *float64 `json:"offset_v,omitempty"`
	PhaseDeg *float64 `json:"phase_deg,omitempty"`
	DutyPct  *float64 `json:"duty_pct,omitempty"`
	LoadOhms *string  `json:"load_ohms,omitempty"` // number in ohms, or "INF"
	ArbRate  *float64 `json:"arb_rate,omitempty"`

	AM *struct {
		DepthPct float64 `json:"depth_pct"`
		RateHz   float64 `json:"rate_hz"`
	} `json:"am,omitempty"`
	FM *struct {
		DeviationHz float64 `json:"deviation_hz"`
		RateHz      float64 `json:"rate_hz"`
	} `json:"fm,omitempty"`

	Output *bool `json:"output,omitempty"`
}

// InstrumentConfig is the top-level JSON config file format.
type InstrumentConfig struct {
	Channels []ChannelConfig `json:"channels"`
}

// applyChannelConfig pushes the non-nil fields of cfg to the
// instrument. Function goes first so shape parameters land on the right
// function, output enable goes last so a half-configured channel is
// never live. Individual failures are logged and application continues;
// the first error is returned at the end.
func applyChannelConfig(g *dg.Generator, cfg *ChannelConfig) error {
	if cfg == nil {
		return nil
	}
	ch := cfg.Channel
	if ch == 0 {
		ch = 1
	}

	var firstErr error
	apply := func(name string, err error) {
		if err != nil {
			log.Printf("Failed to set %s on channel %d: %v", name, ch, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	if cfg.Function != nil {
		apply("function", g.SetFunction(ch, dg.Function(strings.ToUpper(*cfg.Function))))
	}
	if cfg.FreqHz != nil {
		apply("frequency", g.SetFrequency(ch, *cfg.FreqHz))
	}
	if cfg.AmplUnit != nil {
		apply("amplitude unit", g.SetAmplitudeUnit(ch, *cfg.AmplUnit))
	}
	if cfg.AmplVpp != nil {
		apply("amplitude", g.SetAmplitude(ch, *cfg.AmplVpp))
	}
	if cfg.OffsetV != nil {
		apply("offset", g.SetOffset(ch, *cfg.OffsetV))
	}
	if cfg.PhaseDeg != nil {
		apply("phase", g.SetPhase(ch, *cfg.PhaseDeg))
	}
	if cfg.DutyPct != nil {
		apply("duty cycle", g.SetDutyCycle(ch, *cfg.DutyPct))
	}
	if cfg.LoadOhms != nil {
		apply("load", applyLoad(g, ch, *cfg.LoadOhms))
	}
	if cfg.ArbRate != nil {
		apply("arb sample rate", g.SetSampleRate(ch, *cfg.ArbRate))
	}
	if cfg.AM != nil && cfg.FM != nil {
		apply("modulation", fmt.Errorf("channel %d: am and fm are mutually exclusive, pick one", ch))
	} else if cfg.AM != nil {
		apply("AM", g.SetModulationAM(ch, cfg.AM.DepthPct, cfg.AM.RateHz))
	} else if cfg.FM != nil {
		apply("FM", g.SetModulationFM(ch, cfg.FM.DeviationHz, cfg.FM.RateHz))
	}
	if cfg.Output != nil {
		apply("output", g.SetOutput(ch, *cfg.Output))
	}
	return firstErr
}

func applyLoad(g *dg.Generator, ch int, load string) error {
	if strings.EqualFold(strings.TrimSpace(load), "INF") {
		return g.SetLoad(ch, dg.HighZ)
	}
	var ohms float64
	if _, err := fmt.Sscanf(load, "%g", &ohms); err != nil {
		return fmt.Errorf("unparseable load %q: %w", load, err)
	}
	if math.IsNaN(ohms) {
		return fmt.Errorf("unparseable load %q", load)
	}
	return g.SetLoad(ch, ohms)
}

// applyInstrumentConfig applies every channel block in order.
func applyInstrumentConfig(g *dg.Generator, cfg *InstrumentConfig) error {
	var firstErr error
	for i := range cfg.Channels {
		if err := applyChannelConfig(g, &cfg.Channels[i]); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
