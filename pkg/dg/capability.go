package dg

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Block encoding strategies for arbitrary waveform upload.
const (
	EncodingDAC16 = "dac16" // 14-bit DAC codes in an IEEE-488.2 binary block
	EncodingFloat = "float" // ASCII float list (older DG1000 firmware)
)

// Capabilities describes one generator model family. The entry is
// resolved once from the *IDN? reply at connect time and drives arb
// memory limits, channel validation and block encoding; nothing
// re-dispatches on the model string per call.
type Capabilities struct {
	Family    string   `yaml:"family"`
	Match     []string `yaml:"match"` // model-number prefixes from *IDN?
	Channels  int      `yaml:"channels"`
	MaxPoints int      `yaml:"max_points"`
	Encoding  string   `yaml:"encoding"`
	Functions []string `yaml:"functions,omitempty"`
}

var defaultFunctions = []string{"SIN", "SQU", "RAMP", "PULSE", "NOIS", "ARB", "DC"}

// DefaultCapabilities lists the known DG families. More specific
// prefixes come first so DG1022 is not swallowed by a DG1000Z match.
var DefaultCapabilities = []Capabilities{
	{Family: "DG900", Match: []string{"DG95", "DG96", "DG97"}, Channels: 2, MaxPoints: 16384, Encoding: EncodingDAC16, Functions: defaultFunctions},
	{Family: "DG800", Match: []string{"DG81", "DG82", "DG83"}, Channels: 2, MaxPoints: 8192, Encoding: EncodingDAC16, Functions: defaultFunctions},
	{Family: "DG1022", Match: []string{"DG1022"}, Channels: 2, MaxPoints: 8192, Encoding: EncodingFloat, Functions: defaultFunctions},
	{Family: "DG1000Z", Match: []string{"DG10"}, Channels: 2, MaxPoints: 16384, Encoding: EncodingDAC16, Functions: defaultFunctions},
	{Family: "DG4000", Match: []string{"DG40", "DG41"}, Channels: 2, MaxPoints: 16384, Encoding: EncodingDAC16, Functions: defaultFunctions},
}

// genericCapabilities is the conservative fallback for models missing
// from the table: the smallest arb memory of the supported range.
var genericCapabilities = Capabilities{
	Family:    "GENERIC",
	Channels:  2,
	MaxPoints: 8192,
	Encoding:  EncodingDAC16,
	Functions: defaultFunctions,
}

// ResolveCapabilities matches the model field of an *IDN? reply
// (vendor,model,serial,firmware) against the table. The second return
// is false when no entry matched and the generic fallback was used.
func ResolveCapabilities(idn string, table []Capabilities) (Capabilities, bool) {
	model := idn
	if fields := strings.Split(idn, ","); len(fields) >= 2 {
		model = strings.TrimSpace(fields[1])
	}
	model = strings.ToUpper(model)

	for _, caps := range table {
		for _, prefix := range caps.Match {
			if strings.HasPrefix(model, strings.ToUpper(prefix)) {
				return caps, true
			}
		}
	}
	return genericCapabilities, false
}

// LoadCapabilities reads extra model families from a yaml file and
// prepends them to the builtin table, so a site-local entry overrides a
// builtin one with the same prefix.
func LoadCapabilities(path string) ([]Capabilities, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var extra []Capabilities
	if err := yaml.Unmarshal(raw, &extra); err != nil {
		return nil, fmt.Errorf("capability file %s: %w", path, err)
	}

	for i := range extra {
		applyCapabilityDefaults(&extra[i])
		if err := validateCapabilities(&extra[i]); err != nil {
			return nil, fmt.Errorf("capability file %s, entry %d: %w", path, i, err)
		}
	}
	return append(extra, DefaultCapabilities...), nil
}

func applyCapabilityDefaults(c *Capabilities) {
	if c.Channels == 0 {
		c.Channels = 2
	}
	if c.Encoding == "" {
		c.Encoding = EncodingDAC16
	}
	if len(c.Functions) == 0 {
		c.Functions = defaultFunctions
	}
}

func validateCapabilities(c *Capabilities) error {
	if c.Family == "" {
		return fmt.Errorf("family is required")
	}
	if len(c.Match) == 0 {
		return fmt.Errorf("match prefixes are required")
	}
	if c.MaxPoints <= 0 {
		return fmt.Errorf("max_points must be positive")
	}
	if c.Encoding != EncodingDAC16 && c.Encoding != EncodingFloat {
		return fmt.Errorf("unknown encoding %q", c.Encoding)
	}
	return nil
}
