// Package dg controls Rigol DG-series arbitrary waveform generators
// over a VISA transport: a SCPI session with model capability
// resolution, a per-channel state manager, and a volatile waveform
// store client.
package dg

import (
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/iu3qez/rigol-dg800/pkg/visa"
)

// Session is a synchronous SCPI exchange with one instrument. All
// higher-level operations (channels, waveform store) go through it
// sequentially; the session provides no cross-call locking, a wrapping
// application must serialize access per instrument.
type Session struct {
	t    visa.Transport
	idn  string
	caps Capabilities
}

// Connect identifies the instrument on t and resolves its model
// capabilities once. An unknown model falls back to a conservative
// generic entry.
func Connect(t visa.Transport, table []Capabilities) (*Session, error) {
	if table == nil {
		table = DefaultCapabilities
	}

	reply, err := t.Query([]byte("*IDN?"))
	if err != nil {
		return nil, fmt.Errorf("identify instrument: %w", err)
	}
	idn := strings.TrimSpace(string(reply))

	caps, known := ResolveCapabilities(idn, table)
	if !known {
		log.Printf("Warning: unknown model in %q, assuming %s (%d points max)", idn, caps.Family, caps.MaxPoints)
	}

	return &Session{t: t, idn: idn, caps: caps}, nil
}

// Identity returns the cached *IDN? reply from connect time.
func (s *Session) Identity() string { return s.idn }

// Capabilities returns the resolved model capability entry.
func (s *Session) Capabilities() Capabilities { return s.caps }

// Write formats and sends one command.
func (s *Session) Write(format string, a ...interface{}) error {
	return s.t.Send([]byte(fmt.Sprintf(format, a...)))
}

// Query formats and sends one query, returning the trimmed reply.
func (s *Session) Query(format string, a ...interface{}) (string, error) {
	reply, err := s.t.Query([]byte(fmt.Sprintf(format, a...)))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(reply)), nil
}

// QueryFloat sends a query and parses the reply as a float.
func (s *Session) QueryFloat(format string, a ...interface{}) (float64, error) {
	reply, err := s.Query(format, a...)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(reply, 64)
	if err != nil {
		return 0, fmt.Errorf("unparseable reply %q to %q: %w", reply, fmt.Sprintf(format, a...), err)
	}
	return v, nil
}

// Reset restores factory defaults (*RST).
func (s *Session) Reset() error {
	return s.Write("*RST")
}

// NextError pops one entry from the SCPI error queue. Code 0 means the
// queue is empty.
func (s *Session) NextError() (int, string, error) {
	reply, err := s.Query("SYST:ERR?")
	if err != nil {
		return 0, "", err
	}
	code, msg, ok := parseErrorReply(reply)
	if !ok {
		return 0, "", fmt.Errorf("unparseable error-queue reply %q", reply)
	}
	return code, msg, nil
}

// DrainErrors empties the SCPI error queue and returns every entry, up
// to the firmware's queue depth.
func (s *Session) DrainErrors() ([]InstrumentError, error) {
	var entries []InstrumentError
	for i := 0; i < 32; i++ {
		code, msg, err := s.NextError()
		if err != nil {
			return entries, err
		}
		if code == 0 {
			return entries, nil
		}
		entries = append(entries, InstrumentError{Code: code, Msg: msg})
	}
	return entries, nil
}

// checkErrorQueue drains the error queue after a command and returns
// the first nonzero entry as an error.
func (s *Session) checkErrorQueue() error {
	code, msg, err := s.NextError()
	if err != nil {
		return err
	}
	if code == 0 {
		return nil
	}
	// Drain any follow-up entries so the next operation starts clean.
	for i := 0; i < 16; i++ {
		c, _, err := s.NextError()
		if err != nil || c == 0 {
			break
		}
	}
	return &InstrumentError{Code: code, Msg: msg}
}

// Close shuts the underlying transport down.
func (s *Session) Close() error {
	return s.t.Close()
}

// parseErrorReply splits a `-113,"Undefined header"` style reply.
func parseErrorReply(reply string) (int, string, bool) {
	code, msg, found := strings.Cut(reply, ",")
	if !found {
		// Some firmwares answer a bare `0` for an empty queue.
		c, err := strconv.Atoi(strings.TrimSpace(reply))
		return c, "", err == nil
	}
	c, err := strconv.Atoi(strings.TrimSpace(code))
	if err != nil {
		return 0, "", false
	}
	return c, strings.Trim(strings.TrimSpace(msg), `"`), true
}
