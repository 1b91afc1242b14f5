package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/iu3qez/rigol-dg800/pkg/dg"
	"github.com/iu3qez/rigol-dg800/pkg/visa"
)

func main() {
	// Connection flags
	resource := flag.String("r", "TCPIP0::192.168.1.100::INSTR", "VISA resource of the instrument")
	timeout := flag.Duration("timeout", visa.DefaultTimeout, "Timeout per instrument exchange")
	gpibPort := flag.String("gpib-port", "", "Prologix serial port for GPIB resources (e.g. /dev/ttyUSB0)")
	capsFile := flag.String("caps", "", "Extra model capability entries (yaml)")

	// Server-specific flags
	isServer := flag.Bool("server", false, "Run in WebSocket server mode")
	port := flag.Int("p", 8080, "Port to listen on (Server mode only)")
	archiveDir := flag.String("archive-dir", "", "Archive every server upload as parquet in this directory")

	// Simulation flags
	isSim := flag.Bool("sim", false, "Run against a built-in simulated DG832")

	// CLI operation flags
	var opts cliOptions
	flag.StringVar(&opts.ConfigFile, "config", "", "Channel configuration file (JSON)")
	flag.StringVar(&opts.UploadFile, "upload", "", "Waveform file to upload (.csv or .wav)")
	flag.StringVar(&opts.Name, "name", "", "Store the uploaded waveform under this name")
	flag.IntVar(&opts.Channel, "ch", 1, "Target channel")
	flag.StringVar(&opts.Format, "format", "", "Force waveform format: csv or wav")
	flag.IntVar(&opts.WavChannel, "wav-ch", 0, "WAV channel to extract (0-based)")
	flag.BoolVar(&opts.NoNormalize, "no-normalize", false, "Reject out-of-range samples instead of rescaling")
	flag.Float64Var(&opts.Rate, "rate", 0, "Arb replay rate in Sa/s (0 = suggested from WAV)")
	flag.StringVar(&opts.ArchiveFile, "archive", "", "Also archive the uploaded waveform (parquet)")
	flag.BoolVar(&opts.List, "list", false, "List stored waveforms")
	flag.StringVar(&opts.DeleteName, "delete", "", "Delete a stored waveform")
	flag.BoolVar(&opts.Reset, "reset", false, "Factory reset before other operations")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage of %s:\n", os.Args[0])
		fmt.Fprintln(os.Stderr, "  CLI Mode:    go run . -r <resource> [operations]")
		fmt.Fprintln(os.Stderr, "  Server Mode: go run . -r <resource> --server [options]")
		fmt.Fprintln(os.Stderr, "  Sim Mode:    go run . --sim [options]")
		fmt.Fprintln(os.Stderr, "\nOptions:")
		flag.PrintDefaults()
	}

	flag.Parse()

	// Simulation mode overrides the resource with the built-in instrument
	if *isSim {
		ready := make(chan string, 1)
		go RunSimulator("127.0.0.1:0", ready)
		addr := <-ready
		host, p, _ := strings.Cut(addr, ":")
		*resource = fmt.Sprintf("TCPIP0::%s::%s::SOCKET", host, p)
		time.Sleep(100 * time.Millisecond)
	}

	table := dg.DefaultCapabilities
	if *capsFile != "" {
		var err error
		table, err = dg.LoadCapabilities(*capsFile)
		if err != nil {
			log.Fatalf("Capability file: %v", err)
		}
	}

	t, err := openTransport(*resource, *gpibPort, *timeout)
	if err != nil {
		log.Fatalf("Connect to %s: %v", *resource, err)
	}

	session, err := dg.Connect(t, table)
	if err != nil {
		t.Close()
		log.Fatalf("Instrument handshake failed: %v", err)
	}
	defer session.Close()

	gen := dg.NewGenerator(session)
	store := dg.NewStore(session)

	serverState.mu.Lock()
	serverState.gen = gen
	serverState.store = store
	serverState.Resource = *resource
	serverState.Identity = session.Identity()
	serverState.Family = session.Capabilities().Family
	serverState.ArchiveDir = *archiveDir
	serverState.mu.Unlock()

	if *isServer {
		runServer(*port)
	} else {
		runCLI(gen, store, opts)
	}
}

// openTransport routes GPIB resources through the Prologix adapter and
// everything else through the standard dial path.
func openTransport(resource, gpibPort string, timeout time.Duration) (visa.Transport, error) {
	r, err := visa.ParseResource(resource)
	if err != nil {
		return nil, err
	}
	if r.Type == "GPIB" {
		if gpibPort == "" {
			return nil, fmt.Errorf("GPIB resource needs -gpib-port")
		}
		return visa.NewGPIB(gpibPort, r.Addr)
	}
	return visa.Open(resource, timeout)
}
