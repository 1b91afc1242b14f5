package main

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"net"
	"strconv"
	"strings"
	"sync"
)

// simChannel mirrors one channel of the simulated instrument.
type simChannel struct {
	function string
	freqHz   float64
	amplVpp  float64
	amplUnit string
	offsetV  float64
	phaseDeg float64
	dutyPct  float64
	symmPct  float64
	output   bool
	load     string
	arbName  string
	arbRate  float64
	amOn     bool
	fmOn     bool
	pmOn     bool
}

// simInstrument is a software DG832 on a TCP socket: enough of the
// SCPI surface to exercise the controller end to end without hardware.
// Unknown commands land in the error queue like the real firmware.
type simInstrument struct {
	mu       sync.Mutex
	chans    [2]simChannel
	volatile [2][]float64
	catalog  map[string][]float64
	catOrder []string
	errQ     []string
}

func newSimInstrument() *simInstrument {
	sim := &simInstrument{catalog: make(map[string][]float64)}
	sim.resetLocked()
	return sim
}

func (sim *simInstrument) resetLocked() {
	for i := range sim.chans {
		sim.chans[i] = simChannel{
			function: "SIN", freqHz: 1000, amplVpp: 5, amplUnit: "VPP",
			dutyPct: 50, symmPct: 50, load: "INF", arbRate: 1e6,
		}
	}
	sim.errQ = nil
}

func (sim *simInstrument) pushError(code int, msg string) {
	sim.errQ = append(sim.errQ, fmt.Sprintf("%d,%q", code, msg))
}

// RunSimulator serves the simulated instrument on addr until the
// listener fails. Each connection gets the shared instrument state.
func RunSimulator(addr string, ready chan<- string) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		log.Fatalf("Simulator listen on %s: %v", addr, err)
	}
	log.Printf("Simulated DG832 listening on %s", ln.Addr())
	if ready != nil {
		ready <- ln.Addr().String()
	}

	sim := newSimInstrument()
	for {
		conn, err := ln.Accept()
		if err != nil {
			log.Printf("Simulator accept: %v", err)
			return
		}
		go sim.serve(conn)
	}
}

func (sim *simInstrument) serve(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}

		// A DAC16 upload carries a binary block that may itself contain
		// newline bytes, so the first ReadString can stop short. Pull
		// the remaining block bytes before parsing; the block path must
		// not be trimmed, payload bytes can look like line endings.
		var cmd string
		if strings.Contains(line, ":DATA:DAC16 ") {
			full, err := readBinaryBlock(r, line)
			if err != nil {
				return
			}
			cmd = full
		} else {
			cmd = strings.TrimRight(line, "\r\n")
		}

		reply := sim.handle(cmd)
		if reply != "" {
			if _, err := conn.Write([]byte(reply + "\n")); err != nil {
				return
			}
		}
	}
}

// readBinaryBlock completes a command whose #<n><len> block was split
// by an embedded newline. The returned string holds the whole command
// without its terminating newline.
func readBinaryBlock(r *bufio.Reader, line string) (string, error) {
	hash := strings.IndexByte(line, '#')
	if hash < 0 || hash+2 > len(line) {
		return line, nil
	}
	ndig := int(line[hash+1] - '0')
	if ndig < 1 || ndig > 9 || hash+2+ndig > len(line) {
		return line, nil
	}
	blockLen, err := strconv.Atoi(line[hash+2 : hash+2+ndig])
	if err != nil {
		return line, nil
	}

	// header + payload + the final newline of the command; the missing
	// byte count is exact, block bytes that look like line endings must
	// not terminate the read early.
	want := hash + 2 + ndig + blockLen + 1
	buf := []byte(line)
	if len(buf) < want {
		rest := make([]byte, want-len(buf))
		if _, err := io.ReadFull(r, rest); err != nil {
			return "", err
		}
		buf = append(buf, rest...)
	}
	return strings.TrimSuffix(string(buf), "\n"), nil
}

// handle executes one command and returns the reply, or "" for a
// command with no reply.
func (sim *simInstrument) handle(cmd string) string {
	sim.mu.Lock()
	defer sim.mu.Unlock()

	switch {
	case cmd == "*IDN?":
		return "RIGOL TECHNOLOGIES,DG832,DG8SIM0000001,00.02.05.00.01"
	case cmd == "*RST":
		sim.resetLocked()
		return ""
	case cmd == "SYST:ERR?":
		if len(sim.errQ) == 0 {
			return `0,"No error"`
		}
		head := sim.errQ[0]
		sim.errQ = sim.errQ[1:]
		return head
	}

	ch, rest, ok := sim.splitChannel(cmd)
	if !ok {
		sim.pushError(-113, "Undefined header")
		return unknownReply(cmd)
	}
	return sim.handleChannel(ch, rest, cmd)
}

// splitChannel peels SOURn:/OUTPn prefixes off a command.
func (sim *simInstrument) splitChannel(cmd string) (int, string, bool) {
	for _, prefix := range []string{"SOUR", "OUTP"} {
		if !strings.HasPrefix(cmd, prefix) || len(cmd) < len(prefix)+1 {
			continue
		}
		n := int(cmd[len(prefix)] - '0')
		if n < 1 || n > len(sim.chans) {
			return 0, "", false
		}
		rest := cmd[len(prefix)+1:]
		if prefix == "OUTP" {
			rest = "OUTP" + rest
		} else {
			rest = strings.TrimPrefix(rest, ":")
		}
		return n, rest, true
	}
	return 0, "", false
}

func (sim *simInstrument) handleChannel(ch int, rest, raw string) string {
	c := &sim.chans[ch-1]
	key, arg, _ := strings.Cut(rest, " ")

	switch key {
	case "FUNC":
		c.function = strings.ToUpper(arg)
	case "FUNC?":
		return c.function
	case "FREQ":
		c.freqHz = parseSimFloat(arg)
	case "FREQ?":
		return fmt.Sprintf("%E", c.freqHz)
	case "VOLT":
		c.amplVpp = parseSimFloat(arg)
	case "VOLT?":
		return fmt.Sprintf("%E", c.amplVpp)
	case "VOLT:OFFS":
		c.offsetV = parseSimFloat(arg)
	case "VOLT:OFFS?":
		return fmt.Sprintf("%E", c.offsetV)
	case "VOLT:UNIT":
		c.amplUnit = strings.ToUpper(arg)
	case "VOLT:UNIT?":
		return c.amplUnit
	case "PHAS":
		c.phaseDeg = parseSimFloat(arg)
	case "PHAS?":
		return fmt.Sprintf("%E", c.phaseDeg)
	case "FUNC:SQU:DCYC", "FUNC:PULS:DCYC":
		c.dutyPct = parseSimFloat(arg)
	case "FUNC:RAMP:SYMM":
		c.symmPct = parseSimFloat(arg)
	case "FUNC:PULS:WIDT", "FUNC:PULS:PER", "FUNC:PULS:TRAN":
		// accepted, shape timing is not modelled
	case "FUNC:ARB":
		return sim.selectArb(c, arg)
	case "FUNC:ARB?":
		return c.arbName
	case "FUNC:ARB:SRAT":
		c.arbRate = parseSimFloat(arg)
	case "FUNC:ARB:SRAT?":
		return fmt.Sprintf("%E", c.arbRate)
	case "AM:STAT":
		c.amOn = isSimOn(arg)
	case "FM:STAT":
		c.fmOn = isSimOn(arg)
	case "PM:STAT":
		c.pmOn = isSimOn(arg)
	case "AM:DEPT", "AM:INT:FREQ", "FM:DEV", "FM:INT:FREQ":
		// parameters accepted without modelling the modulator
	case "BURS:NCYC", "BURS:STAT":
	case "OUTP":
		c.output = isSimOn(arg)
	case "OUTP?":
		if c.output {
			return "ON"
		}
		return "OFF"
	case "OUTP:LOAD":
		c.load = strings.ToUpper(arg)
	case "OUTP:LOAD?":
		return c.load
	case "DATA":
		sim.uploadFloats(ch, arg)
	case "DATA:COPY":
		sim.copyVolatile(ch, arg)
	case "DATA:CAT?":
		return sim.catalogReply()
	case "DATA:DEL":
		sim.deleteArb(arg)
	default:
		if strings.HasPrefix(key, "DATA:DAC16") {
			sim.uploadDAC16(ch, raw)
			return ""
		}
		sim.pushError(-113, "Undefined header")
		return unknownReply(raw)
	}
	return ""
}

// unknownReply keeps the request/reply pairing intact when a query was
// not understood: the client still expects one line back.
func unknownReply(cmd string) string {
	if strings.Contains(cmd, "?") {
		return "0"
	}
	return ""
}

func (sim *simInstrument) selectArb(c *simChannel, name string) string {
	if !strings.EqualFold(name, "VOLATILE") {
		if _, ok := sim.catalog[name]; !ok {
			sim.pushError(-256, "File name not found")
			return ""
		}
	}
	c.arbName = name
	return ""
}

func (sim *simInstrument) uploadDAC16(ch int, raw string) {
	hash := strings.IndexByte(raw, '#')
	if hash < 0 {
		sim.pushError(-161, "Invalid block data")
		return
	}
	ndig := int(raw[hash+1] - '0')
	blockLen, _ := strconv.Atoi(raw[hash+2 : hash+2+ndig])
	data := []byte(raw[hash+2+ndig:])
	if len(data) < blockLen || blockLen%2 != 0 {
		sim.pushError(-161, "Invalid block data")
		return
	}

	samples := make([]float64, blockLen/2)
	for i := range samples {
		code := uint16(data[2*i]) | uint16(data[2*i+1])<<8
		samples[i] = float64(code)/0x3FFF*2 - 1
	}
	sim.volatile[ch-1] = samples
}

func (sim *simInstrument) uploadFloats(ch int, arg string) {
	fields := strings.Split(arg, ",")
	if len(fields) < 2 || !strings.EqualFold(fields[0], "VOLATILE") {
		sim.pushError(-109, "Missing parameter")
		return
	}
	samples := make([]float64, 0, len(fields)-1)
	for _, f := range fields[1:] {
		samples = append(samples, parseSimFloat(f))
	}
	sim.volatile[ch-1] = samples
}

func (sim *simInstrument) copyVolatile(ch int, arg string) {
	name, src, found := strings.Cut(arg, ",")
	if !found || !strings.EqualFold(src, "VOLATILE") {
		sim.pushError(-109, "Missing parameter")
		return
	}
	if len(sim.volatile[ch-1]) == 0 {
		sim.pushError(-256, "File name not found")
		return
	}
	if _, exists := sim.catalog[name]; !exists {
		sim.catOrder = append(sim.catOrder, name)
	}
	sim.catalog[name] = append([]float64(nil), sim.volatile[ch-1]...)
}

func (sim *simInstrument) catalogReply() string {
	entries := []string{`"VOLATILE"`}
	for _, name := range sim.catOrder {
		entries = append(entries, `"`+name+`"`)
	}
	return strings.Join(entries, ",")
}

func (sim *simInstrument) deleteArb(name string) {
	if _, ok := sim.catalog[name]; !ok {
		sim.pushError(-256, "File name not found")
		return
	}
	delete(sim.catalog, name)
	for i, n := range sim.catOrder {
		if n == name {
			sim.catOrder = append(sim.catOrder[:i], sim.catOrder[i+1:]...)
			break
		}
	}
}

func parseSimFloat(s string) float64 {
	v, _ := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return v
}

func isSimOn(arg string) bool {
	return strings.EqualFold(arg, "ON") || arg == "1"
}
