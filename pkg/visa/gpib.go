package visa

import (
	"strings"
	"sync"

	"github.com/gotmc/prologix"
	"github.com/gotmc/prologix/driver/vcp"
)

// GPIBTransport reaches the instrument through a Prologix GPIB-USB
// controller on a virtual COM port.
type GPIBTransport struct {
	mu   sync.Mutex
	port *vcp.VCP
	gpib *prologix.Controller
}

// NewGPIB opens the Prologix controller on serialPort and addresses the
// instrument at the given GPIB primary address.
func NewGPIB(serialPort string, addr int) (*GPIBTransport, error) {
	port, err := vcp.NewVCP(serialPort)
	if err != nil {
		return nil, &CommError{Op: "open serial " + serialPort, Err: err}
	}

	gpib, err := prologix.NewController(port, addr, false)
	if err != nil {
		port.Close()
		return nil, &CommError{Op: "init prologix controller", Err: err}
	}

	return &GPIBTransport{port: port, gpib: gpib}, nil
}

// Send writes one command to the addressed instrument.
func (t *GPIBTransport) Send(cmd []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.gpib.Command(string(cmd)); err != nil {
		return &CommError{Op: "gpib write", Err: err}
	}
	return nil
}

// Query writes a command and reads the instrument's reply.
func (t *GPIBTransport) Query(cmd []byte) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	reply, err := t.gpib.Query(string(cmd))
	if err != nil {
		return nil, &CommError{Op: "gpib query", Err: err}
	}
	return []byte(strings.TrimRight(reply, "\r\n")), nil
}

// Close returns the instrument to front-panel control and releases the
// serial port.
func (t *GPIBTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.port == nil {
		return nil
	}
	// Best effort: local control, then drain and close the port.
	t.gpib.FrontPanel(true)
	t.port.Flush()
	err := t.port.Close()
	t.port = nil
	if err != nil {
		return &CommError{Op: "close serial", Err: err}
	}
	return nil
}
