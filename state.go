package main

import (
	"sync"

	"github.com/iu3qez/rigol-dg800/pkg/dg"
)

// Server state
type ServerState struct {
	mu sync.RWMutex

	// Instrument handles, nil until connected
	gen   *dg.Generator
	store *dg.Store

	// Connection info
	Resource string
	Identity string
	Family   string

	// ArchiveDir enables a parquet audit file per server-side upload
	ArchiveDir string

	// Last waveform pushed through the ingestion pipeline
	LastUpload *UploadInfo
}

// UploadInfo summarizes one ingestion result for the UI.
type UploadInfo struct {
	Name          string  `json:"name"`
	Source        string  `json:"source"` // "csv" or "wav"
	Points        int     `json:"points"`
	SuggestedRate float64 `json:"suggested_rate,omitempty"`
	Channel       int     `json:"channel"`
}

var serverState = &ServerState{}

// generator returns the connected state manager, or nil before connect.
func (s *ServerState) generator() *dg.Generator {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gen
}

func (s *ServerState) waveformStore() *dg.Store {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store
}
