package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/olekukonko/tablewriter"

	"github.com/iu3qez/rigol-dg800/pkg/dg"
)

// cliOptions collects the one-shot operation flags.
type cliOptions struct {
	ConfigFile string

	UploadFile  string
	Name        string
	Channel     int
	Format      string
	WavChannel  int
	NoNormalize bool
	Rate        float64
	ArchiveFile string

	List       bool
	DeleteName string
	Reset      bool
}

// runCLI executes the requested one-shot operations and exits.
func runCLI(gen *dg.Generator, store *dg.Store, opts cliOptions) {
	s := gen.Session()
	fmt.Printf("Connected: %s\n", s.Identity())
	fmt.Printf("Model family: %s | Channels: %d | Arb memory: %d points\n",
		s.Capabilities().Family, s.Capabilities().Channels, s.Capabilities().MaxPoints)

	if opts.Reset {
		fmt.Println(">>> Resetting instrument to factory defaults")
		if err := s.Reset(); err != nil {
			log.Fatalf("Reset failed: %v", err)
		}
	}

	if opts.ConfigFile != "" {
		fmt.Printf(">>> Loading config from %s\n", opts.ConfigFile)
		data, err := os.ReadFile(opts.ConfigFile)
		if err != nil {
			log.Fatalf("Failed to read config file: %v", err)
		}

		var config InstrumentConfig
		if err := json.Unmarshal(data, &config); err != nil {
			log.Fatalf("Failed to parse config file: %v", err)
		}

		fmt.Println(">>> Applying channel configuration...")
		if err := applyInstrumentConfig(gen, &config); err != nil {
			log.Printf("Warning: Error applying config: %v", err)
		} else {
			fmt.Println("    Configuration applied successfully.")
		}
	}

	if opts.UploadFile != "" {
		uploadCLI(gen, store, opts)
	}

	if opts.DeleteName != "" {
		fmt.Printf(">>> Deleting waveform %q\n", opts.DeleteName)
		if err := store.Delete(opts.DeleteName); err != nil {
			log.Fatalf("Delete failed: %v", err)
		}
		fmt.Println("    Deleted.")
	}

	if opts.List {
		listCLI(store)
	}
}

func uploadCLI(gen *dg.Generator, store *dg.Store, opts cliOptions) {
	fmt.Printf(">>> Ingesting %s\n", opts.UploadFile)

	samples, info, err := ingestFile(opts.UploadFile, ingestOptions{
		Kind:      opts.Format,
		Channel:   opts.WavChannel,
		MaxPoints: gen.Session().Capabilities().MaxPoints,
		Normalize: !opts.NoNormalize,
	})
	if err != nil {
		log.Fatalf("Ingestion failed: %v", err)
	}
	fmt.Printf("    %d points from %s input\n", info.Points, info.Source)

	fmt.Printf(">>> Uploading to channel %d volatile memory\n", opts.Channel)
	if err := store.Upload(opts.Channel, samples); err != nil {
		log.Fatalf("Upload failed: %v", err)
	}

	if opts.Name != "" {
		fmt.Printf(">>> Saving as %q\n", opts.Name)
		if err := store.Save(opts.Channel, opts.Name); err != nil {
			log.Fatalf("Save failed: %v", err)
		}
	}

	selectName := opts.Name
	if selectName == "" {
		selectName = "VOLATILE"
	}
	if err := store.Select(opts.Channel, selectName); err != nil {
		log.Fatalf("Arb select failed: %v", err)
	}

	rate := opts.Rate
	if rate == 0 && info.SuggestedRate > 0 {
		rate = info.SuggestedRate
		fmt.Printf("    Using suggested replay rate %.1f Sa/s\n", rate)
	}
	if rate > 0 {
		if err := gen.SetSampleRate(opts.Channel, rate); err != nil {
			log.Fatalf("Sample rate failed: %v", err)
		}
	}

	if opts.ArchiveFile != "" {
		fmt.Printf(">>> Archiving to %s\n", opts.ArchiveFile)
		meta := ArchiveMeta{Name: selectName, Source: opts.UploadFile, SuggestedRate: rate}
		if err := WriteWaveformArchive(opts.ArchiveFile, meta, samples); err != nil {
			log.Fatalf("Archive failed: %v", err)
		}
	}

	fmt.Println("    Waveform active.")
}

func listCLI(store *dg.Store) {
	names, err := store.List()
	if err != nil {
		log.Fatalf("Catalog query failed: %v", err)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"#", "Waveform"})
	for i, name := range names {
		table.Append([]string{fmt.Sprintf("%d", i+1), name})
	}
	table.Render()
}
