package main

import (
	"fmt"
	"io"
	"os"

	"github.com/segmentio/parquet-go"
)

// WaveformPoint is one archived sample after ingestion: the normalized
// amplitude the instrument will replay, keyed by point index.
type WaveformPoint struct {
	Index     int32   `parquet:"index"`
	Amplitude float64 `parquet:"amplitude"`
}

// ArchiveMeta is stored as key/value metadata in the parquet footer so
// an archive is self-describing without a sidecar file.
type ArchiveMeta struct {
	Name          string
	Source        string // original file, or "csv"/"wav" for stream input
	SuggestedRate float64
}

// NewArchiveWriter creates a parquet writer carrying the waveform
// metadata in the footer.
func NewArchiveWriter(w io.Writer, meta ArchiveMeta) *parquet.GenericWriter[WaveformPoint] {
	return parquet.NewGenericWriter[WaveformPoint](w,
		parquet.KeyValueMetadata("waveform_name", meta.Name),
		parquet.KeyValueMetadata("source", meta.Source),
		parquet.KeyValueMetadata("suggested_rate", fmt.Sprintf("%g", meta.SuggestedRate)),
	)
}

// WriteWaveformArchive saves normalized samples to a parquet file, one
// row per point.
func WriteWaveformArchive(path string, meta ArchiveMeta, samples []float64) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	writer := NewArchiveWriter(f, meta)
	rows := make([]WaveformPoint, len(samples))
	for i, v := range samples {
		rows[i] = WaveformPoint{Index: int32(i), Amplitude: v}
	}
	if _, err := writer.Write(rows); err != nil {
		f.Close()
		return err
	}
	if err := writer.Close(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
