package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// archiveFileName builds a unique parquet name from the stored waveform
// name (or the original filename for volatile uploads).
func archiveFileName(name, original string) string {
	base := name
	if base == "" {
		base = strings.TrimSuffix(filepath.Base(original), filepath.Ext(original))
	}
	if base == "" {
		base = "waveform"
	}
	return fmt.Sprintf("%s_%d.parquet", base, time.Now().Unix())
}

// Waveform store handlers

// handleWaveformUpload ingests a multipart file field named "waveform"
// and pushes it to the selected channel's volatile memory. Optional
// form fields: channel, name, format, wav_ch, rate, no_normalize.
func handleWaveformUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		http.Error(w, "Method not allowed", 405)
		return
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}

	file, header, err := r.FormFile("waveform")
	if err != nil {
		http.Error(w, "missing waveform file field", 400)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, err.Error(), 400)
		return
	}

	ch := formInt(r, "channel", 1)
	kind := r.FormValue("format")
	if kind == "" {
		switch strings.ToLower(filepath.Ext(header.Filename)) {
		case ".wav":
			kind = "wav"
		default:
			kind = "csv"
		}
	}

	gen := serverState.generator()
	store := serverState.waveformStore()
	samples, info, err := ingestBytes(data, kind, ingestOptions{
		Channel:   formInt(r, "wav_ch", 0),
		MaxPoints: gen.Session().Capabilities().MaxPoints,
		Normalize: !formBool(r, "no_normalize", false),
	})
	if err != nil {
		writeAPIError(w, err)
		return
	}

	if err := store.Upload(ch, samples); err != nil {
		writeAPIError(w, err)
		return
	}

	name := r.FormValue("name")
	if name != "" {
		if err := store.Save(ch, name); err != nil {
			writeAPIError(w, err)
			return
		}
	}

	rate := formFloat(r, "rate", 0)
	if rate == 0 {
		rate = info.SuggestedRate
	}
	if rate > 0 {
		if err := gen.SetSampleRate(ch, rate); err != nil {
			writeAPIError(w, err)
			return
		}
	}

	info.Name = name
	info.Channel = ch
	serverState.mu.Lock()
	serverState.LastUpload = info
	archiveDir := serverState.ArchiveDir
	serverState.mu.Unlock()

	if archiveDir != "" {
		archivePath := filepath.Join(archiveDir, archiveFileName(name, header.Filename))
		meta := ArchiveMeta{Name: name, Source: header.Filename, SuggestedRate: rate}
		if err := WriteWaveformArchive(archivePath, meta, samples); err != nil {
			log.Printf("Archive of %s failed: %v", header.Filename, err)
		}
	}

	broadcastJSON(map[string]interface{}{
		"type":   "waveform_upload",
		"upload": info,
	})
	writeJSON(w, map[string]interface{}{
		"success": true,
		"points":  info.Points,
		"rate":    rate,
	})
}

func handleWaveformList(w http.ResponseWriter, r *http.Request) {
	store := serverState.waveformStore()
	names, err := store.List()
	if err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, map[string]interface{}{"waveforms": names})
}

func handleWaveformDelete(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		http.Error(w, "Method not allowed", 405)
		return
	}

	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}

	store := serverState.waveformStore()
	if err := store.Delete(req.Name); err != nil {
		writeAPIError(w, err)
		return
	}

	broadcastJSON(map[string]interface{}{
		"type": "waveform_delete",
		"name": req.Name,
	})
	writeJSON(w, map[string]interface{}{"success": true})
}

func handleWaveformSelect(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		http.Error(w, "Method not allowed", 405)
		return
	}

	var req struct {
		Channel int    `json:"channel"`
		Name    string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}

	store := serverState.waveformStore()
	if err := store.Select(req.Channel, req.Name); err != nil {
		writeAPIError(w, err)
		return
	}

	broadcastJSON(map[string]interface{}{
		"type":    "waveform_select",
		"channel": req.Channel,
		"name":    req.Name,
	})
	writeJSON(w, map[string]interface{}{"success": true})
}

func handleWaveformRate(w http.ResponseWriter, r *http.Request) {
	if r.Method == "GET" {
		gen := serverState.generator()
		rate, err := gen.GetSampleRate(1)
		if err != nil {
			writeAPIError(w, err)
			return
		}
		writeJSON(w, map[string]interface{}{"rate": rate})
		return
	}

	var req struct {
		Channel int     `json:"channel"`
		Rate    float64 `json:"rate"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}

	gen := serverState.generator()
	if err := gen.SetSampleRate(req.Channel, req.Rate); err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, map[string]interface{}{"success": true})
}

func formInt(r *http.Request, key string, def int) int {
	v := r.FormValue(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func formBool(r *http.Request, key string, def bool) bool {
	v := r.FormValue(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func formFloat(r *http.Request, key string, def float64) float64 {
	v := r.FormValue(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}
