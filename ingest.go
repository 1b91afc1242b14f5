package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/iu3qez/rigol-dg800/pkg/waveform"
)

// ingestOptions steers one pass through the ingestion pipeline.
type ingestOptions struct {
	Kind      string // "csv" or "wav"; "" selects by file extension
	Channel   int    // WAV channel to extract, 0-based
	MaxPoints int    // instrument arb memory
	Normalize bool
}

// ingestFile reads a waveform file and returns instrument-ready samples
// plus an UploadInfo for reporting.
func ingestFile(path string, opts ingestOptions) ([]float64, *UploadInfo, error) {
	kind := opts.Kind
	if kind == "" {
		switch strings.ToLower(filepath.Ext(path)) {
		case ".wav":
			kind = "wav"
		case ".csv", ".txt", ".dat":
			kind = "csv"
		default:
			return nil, nil, fmt.Errorf("cannot tell waveform format of %s, use -format", path)
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	return ingest(f, kind, opts)
}

// ingestBytes runs the pipeline on an in-memory upload.
func ingestBytes(data []byte, kind string, opts ingestOptions) ([]float64, *UploadInfo, error) {
	return ingest(bytes.NewReader(data), kind, opts)
}

func ingest(r io.ReadSeeker, kind string, opts ingestOptions) ([]float64, *UploadInfo, error) {
	switch kind {
	case "csv":
		samples, points, err := waveform.ParseCSV(r, opts.MaxPoints, opts.Normalize)
		if err != nil {
			return nil, nil, err
		}
		return samples, &UploadInfo{Source: "csv", Points: points}, nil

	case "wav":
		res, err := waveform.DecodeWAV(r, opts.Channel, opts.MaxPoints, opts.Normalize)
		if err != nil {
			return nil, nil, err
		}
		return res.Samples, &UploadInfo{
			Source:        "wav",
			Points:        res.Points,
			SuggestedRate: res.SuggestedRate,
		}, nil

	default:
		return nil, nil, fmt.Errorf("unknown waveform format %q, use csv or wav", kind)
	}
}
