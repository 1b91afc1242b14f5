package main

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/iu3qez/rigol-dg800/pkg/dg"
)

// API Handlers

func writeJSON(w http.ResponseWriter, payload interface{}) {
	json.NewEncoder(w).Encode(payload)
}

// writeAPIError reports a failed instrument operation. Validation and
// instrument rejections come back as success:false with the reason;
// transport-level trouble looks the same to the caller.
func writeAPIError(w http.ResponseWriter, err error) {
	writeJSON(w, map[string]interface{}{
		"success": false,
		"error":   err.Error(),
	})
}

func handleState(w http.ResponseWriter, r *http.Request) {
	gen := serverState.generator()
	if gen == nil {
		http.Error(w, "not connected", 503)
		return
	}

	channels := make(map[int]dg.ChannelState)
	for ch := 1; ch <= gen.Channels(); ch++ {
		if st, err := gen.State(ch); err == nil {
			channels[ch] = st
		}
	}

	serverState.mu.RLock()
	defer serverState.mu.RUnlock()
	writeJSON(w, map[string]interface{}{
		"resource":    serverState.Resource,
		"identity":    serverState.Identity,
		"family":      serverState.Family,
		"channels":    channels,
		"last_upload": serverState.LastUpload,
	})
}

func handleFunction(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		http.Error(w, "Method not allowed", 405)
		return
	}

	var req struct {
		Channel  int    `json:"channel"`
		Function string `json:"function"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}

	gen := serverState.generator()
	if err := gen.SetFunction(req.Channel, dg.Function(strings.ToUpper(req.Function))); err != nil {
		writeAPIError(w, err)
		return
	}

	broadcastJSON(map[string]interface{}{
		"type":     "function_update",
		"channel":  req.Channel,
		"function": strings.ToUpper(req.Function),
	})
	writeJSON(w, map[string]interface{}{"success": true})
}

func handleFrequency(w http.ResponseWriter, r *http.Request) {
	if r.Method == "GET" {
		ch := formInt(r, "channel", 1)
		gen := serverState.generator()
		hz, err := gen.GetFrequency(ch)
		if err != nil {
			writeAPIError(w, err)
			return
		}
		writeJSON(w, map[string]interface{}{"channel": ch, "freq_hz": hz})
		return
	}

	var req struct {
		Channel int     `json:"channel"`
		FreqHz  float64 `json:"freq_hz"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}

	gen := serverState.generator()
	if err := gen.SetFrequency(req.Channel, req.FreqHz); err != nil {
		writeAPIError(w, err)
		return
	}

	broadcastJSON(map[string]interface{}{
		"type":    "frequency_update",
		"channel": req.Channel,
		"freq_hz": req.FreqHz,
	})
	writeJSON(w, map[string]interface{}{"success": true, "freq_hz": req.FreqHz})
}

func handleAmplitude(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		http.Error(w, "Method not allowed", 405)
		return
	}

	var req struct {
		Channel int      `json:"channel"`
		AmplVpp float64  `json:"ampl_vpp"`
		Unit    *string  `json:"unit,omitempty"`
		Offset  *float64 `json:"offset_v,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}

	gen := serverState.generator()
	if req.Unit != nil {
		if err := gen.SetAmplitudeUnit(req.Channel, *req.Unit); err != nil {
			writeAPIError(w, err)
			return
		}
	}
	if err := gen.SetAmplitude(req.Channel, req.AmplVpp); err != nil {
		writeAPIError(w, err)
		return
	}
	if req.Offset != nil {
		if err := gen.SetOffset(req.Channel, *req.Offset); err != nil {
			writeAPIError(w, err)
			return
		}
	}

	broadcastJSON(map[string]interface{}{
		"type":     "amplitude_update",
		"channel":  req.Channel,
		"ampl_vpp": req.AmplVpp,
	})
	writeJSON(w, map[string]interface{}{"success": true})
}

func handleOffset(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		http.Error(w, "Method not allowed", 405)
		return
	}

	var req struct {
		Channel int     `json:"channel"`
		OffsetV float64 `json:"offset_v"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}

	gen := serverState.generator()
	if err := gen.SetOffset(req.Channel, req.OffsetV); err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, map[string]interface{}{"success": true})
}

func handlePhase(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		http.Error(w, "Method not allowed", 405)
		return
	}

	var req struct {
		Channel  int     `json:"channel"`
		PhaseDeg float64 `json:"phase_deg"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}

	gen := serverState.generator()
	if err := gen.SetPhase(req.Channel, req.PhaseDeg); err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, map[string]interface{}{"success": true})
}

func handleDuty(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		http.Error(w, "Method not allowed", 405)
		return
	}

	var req struct {
		Channel int     `json:"channel"`
		DutyPct float64 `json:"duty_pct"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}

	gen := serverState.generator()
	if err := gen.SetDutyCycle(req.Channel, req.DutyPct); err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, map[string]interface{}{"success": true})
}

func handleLoad(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		http.Error(w, "Method not allowed", 405)
		return
	}

	var req struct {
		Channel int    `json:"channel"`
		Load    string `json:"load_ohms"` // number, or "INF"
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}

	gen := serverState.generator()
	if err := applyLoad(gen, req.Channel, req.Load); err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, map[string]interface{}{"success": true})
}

func handleOutput(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		http.Error(w, "Method not allowed", 405)
		return
	}

	var req struct {
		Channel int  `json:"channel"`
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}

	gen := serverState.generator()
	if err := gen.SetOutput(req.Channel, req.Enabled); err != nil {
		writeAPIError(w, err)
		return
	}

	broadcastJSON(map[string]interface{}{
		"type":    "output_update",
		"channel": req.Channel,
		"enabled": req.Enabled,
	})
	writeJSON(w, map[string]interface{}{"success": true})
}

func handleModulation(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		http.Error(w, "Method not allowed", 405)
		return
	}

	var req struct {
		Channel     int     `json:"channel"`
		Kind        string  `json:"kind"` // "am", "fm" or "off"
		DepthPct    float64 `json:"depth_pct"`
		DeviationHz float64 `json:"deviation_hz"`
		RateHz      float64 `json:"rate_hz"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}

	gen := serverState.generator()
	var err error
	switch strings.ToLower(req.Kind) {
	case "am":
		err = gen.SetModulationAM(req.Channel, req.DepthPct, req.RateHz)
	case "fm":
		err = gen.SetModulationFM(req.Channel, req.DeviationHz, req.RateHz)
	case "off":
		err = gen.ModulationOff(req.Channel)
	default:
		http.Error(w, "kind must be am, fm or off", 400)
		return
	}
	if err != nil {
		writeAPIError(w, err)
		return
	}

	broadcastJSON(map[string]interface{}{
		"type":    "modulation_update",
		"channel": req.Channel,
		"kind":    strings.ToLower(req.Kind),
	})
	writeJSON(w, map[string]interface{}{"success": true})
}

func handleBurst(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		http.Error(w, "Method not allowed", 405)
		return
	}

	var req struct {
		Channel int     `json:"channel"`
		Cycles  int     `json:"cycles"`
		FreqHz  float64 `json:"freq_hz"`
		AmplVpp float64 `json:"ampl_vpp"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}

	gen := serverState.generator()
	if err := gen.SineBurst(req.Channel, req.Cycles, req.FreqHz, req.AmplVpp); err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, map[string]interface{}{"success": true})
}
