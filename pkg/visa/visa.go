// Package visa provides the transport layer for SCPI instruments
// addressed by VISA resource strings. Three physical links are
// implemented: raw TCP sockets (Rigol LAN port 5555), USBTMC bulk
// endpoints, and GPIB through a Prologix USB controller. Every
// transport is a synchronous request/response channel with exclusive
// access per session.
package visa

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Transport is the byte-level instrument link. Send writes one command;
// Query writes a command and blocks for the reply. Implementations
// serialize individual exchanges internally, but callers must not issue
// overlapping higher-level operations on one transport.
type Transport interface {
	Send(cmd []byte) error
	Query(cmd []byte) ([]byte, error)
	Close() error
}

// DefaultTimeout bounds a single instrument exchange.
const DefaultTimeout = 5 * time.Second

// DefaultSCPIPort is the raw socket port Rigol instruments listen on.
const DefaultSCPIPort = 5555

// CommError wraps a transport-level failure (connection loss, timeout).
// It is always surfaced and never retried here: retrying blindly on an
// instrument could duplicate physical side effects.
type CommError struct {
	Op  string
	Err error
}

func (e *CommError) Error() string {
	return fmt.Sprintf("visa %s: %v", e.Op, e.Err)
}

func (e *CommError) Unwrap() error { return e.Err }

// Resource is a parsed VISA resource string.
type Resource struct {
	Type string // "TCPIP", "USB" or "GPIB"

	// TCPIP
	Host string
	Port int // 0 selects DefaultSCPIPort

	// USB
	VID    uint16
	PID    uint16
	Serial string

	// GPIB
	Addr int
}

// ParseResource parses VISA addressing conventions:
//
//	TCPIP0::192.168.1.100::INSTR
//	TCPIP0::192.168.1.100::5555::SOCKET
//	USB0::0x1AB1::0x0642::DG8A12345678::INSTR
//	GPIB0::7::INSTR
func ParseResource(s string) (*Resource, error) {
	parts := strings.Split(strings.TrimSpace(s), "::")
	if len(parts) < 2 {
		return nil, fmt.Errorf("invalid VISA resource %q", s)
	}
	kind := strings.ToUpper(strings.TrimRight(parts[0], "0123456789"))

	switch kind {
	case "TCPIP":
		r := &Resource{Type: "TCPIP", Host: parts[1]}
		if r.Host == "" {
			return nil, fmt.Errorf("invalid VISA resource %q: empty host", s)
		}
		if len(parts) >= 4 && strings.EqualFold(parts[3], "SOCKET") {
			port, err := strconv.Atoi(parts[2])
			if err != nil || port <= 0 || port > 65535 {
				return nil, fmt.Errorf("invalid VISA resource %q: bad port %q", s, parts[2])
			}
			r.Port = port
		}
		return r, nil

	case "USB":
		if len(parts) < 4 {
			return nil, fmt.Errorf("invalid VISA resource %q: USB needs vid::pid::serial", s)
		}
		vid, err := strconv.ParseUint(parts[1], 0, 16)
		if err != nil {
			return nil, fmt.Errorf("invalid VISA resource %q: bad vendor id %q", s, parts[1])
		}
		pid, err := strconv.ParseUint(parts[2], 0, 16)
		if err != nil {
			return nil, fmt.Errorf("invalid VISA resource %q: bad product id %q", s, parts[2])
		}
		return &Resource{Type: "USB", VID: uint16(vid), PID: uint16(pid), Serial: parts[3]}, nil

	case "GPIB":
		addr, err := strconv.Atoi(parts[1])
		if err != nil || addr < 0 || addr > 30 {
			return nil, fmt.Errorf("invalid VISA resource %q: bad GPIB address %q", s, parts[1])
		}
		return &Resource{Type: "GPIB", Addr: addr}, nil
	}

	return nil, fmt.Errorf("unsupported VISA resource type %q", parts[0])
}

// Open dials the transport named by a VISA resource string. GPIB
// resources additionally need the Prologix serial port and must go
// through NewGPIB directly.
func Open(resource string, timeout time.Duration) (Transport, error) {
	r, err := ParseResource(resource)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	switch r.Type {
	case "TCPIP":
		return DialTCP(r.Host, r.Port, timeout)
	case "USB":
		return OpenUSBTMC(r.VID, r.PID, r.Serial, timeout)
	case "GPIB":
		return nil, fmt.Errorf("GPIB resource %q needs a Prologix serial port: use NewGPIB", resource)
	}
	return nil, fmt.Errorf("unsupported VISA resource type %q", r.Type)
}
