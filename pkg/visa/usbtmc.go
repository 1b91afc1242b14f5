package visa

import (
	"context"
	"encoding/binary"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/gousb"
)

// USBTMC Bulk message IDs.
const (
	usbtmcDevDepMsgOut   = 1
	usbtmcReqDevDepMsgIn = 2
)

// USBTMCTransport talks SCPI over the USB Test & Measurement Class
// bulk endpoints. Rigol generators enumerate with VID 0x1AB1.
type USBTMCTransport struct {
	ctx     *gousb.Context
	dev     *gousb.Device
	intf    *gousb.Interface
	release func()
	out     *gousb.OutEndpoint
	in      *gousb.InEndpoint
	timeout time.Duration

	mu  sync.Mutex
	tag uint8
}

// OpenUSBTMC claims the default interface of the device matching
// vid/pid (and serial, when non-empty) and locates its bulk endpoints.
func OpenUSBTMC(vid, pid uint16, serial string, timeout time.Duration) (*USBTMCTransport, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	ctx := gousb.NewContext()
	dev, err := ctx.OpenDeviceWithVIDPID(gousb.ID(vid), gousb.ID(pid))
	if err != nil {
		ctx.Close()
		return nil, &CommError{Op: fmt.Sprintf("open usb %04x:%04x", vid, pid), Err: err}
	}
	if dev == nil {
		ctx.Close()
		return nil, &CommError{Op: fmt.Sprintf("open usb %04x:%04x", vid, pid), Err: fmt.Errorf("device not found")}
	}

	if serial != "" {
		sn, err := dev.SerialNumber()
		if err == nil && !strings.EqualFold(strings.TrimSpace(sn), serial) {
			dev.Close()
			ctx.Close()
			return nil, &CommError{
				Op:  fmt.Sprintf("open usb %04x:%04x", vid, pid),
				Err: fmt.Errorf("serial mismatch: device reports %q, want %q", sn, serial),
			}
		}
	}

	intf, release, err := dev.DefaultInterface()
	if err != nil {
		dev.Close()
		ctx.Close()
		return nil, &CommError{Op: "claim usb interface", Err: err}
	}

	t := &USBTMCTransport{
		ctx:     ctx,
		dev:     dev,
		intf:    intf,
		release: release,
		timeout: timeout,
	}

	// May need modprobe -r usbtmc first if the kernel driver holds the
	// device.
	for _, ep := range intf.Setting.Endpoints {
		if ep.TransferType != gousb.TransferTypeBulk {
			continue
		}
		if ep.Direction == gousb.EndpointDirectionIn && t.in == nil {
			if t.in, err = intf.InEndpoint(ep.Number); err != nil {
				t.Close()
				return nil, &CommError{Op: "open bulk-in endpoint", Err: err}
			}
		}
		if ep.Direction == gousb.EndpointDirectionOut && t.out == nil {
			if t.out, err = intf.OutEndpoint(ep.Number); err != nil {
				t.Close()
				return nil, &CommError{Op: "open bulk-out endpoint", Err: err}
			}
		}
	}
	if t.in == nil || t.out == nil {
		t.Close()
		return nil, &CommError{Op: "probe endpoints", Err: fmt.Errorf("no bulk in/out endpoint pair")}
	}

	return t, nil
}

// Send writes one command as a single USBTMC DEV_DEP_MSG_OUT transfer.
func (t *USBTMCTransport) Send(cmd []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.bulkOutLocked(usbtmcDevDepMsgOut, cmd, true)
}

// Query writes a command, requests a device-dependent message and
// assembles the reply, following transfer continuation until the device
// flags end-of-message.
func (t *USBTMCTransport) Query(cmd []byte) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.bulkOutLocked(usbtmcDevDepMsgOut, cmd, true); err != nil {
		return nil, err
	}

	var reply []byte
	for {
		chunk, eom, err := t.readInLocked()
		if err != nil {
			return nil, err
		}
		reply = append(reply, chunk...)
		if eom {
			break
		}
	}
	return []byte(strings.TrimRight(string(reply), "\r\n")), nil
}

// bulkOutLocked frames payload into a USBTMC Bulk-OUT message: a
// 12-byte header, the payload, zero padding to a 4-byte boundary.
func (t *USBTMCTransport) bulkOutLocked(msgID byte, payload []byte, eom bool) error {
	t.tag++
	if t.tag == 0 {
		t.tag = 1
	}

	msg := make([]byte, 12, 12+len(payload)+3)
	msg[0] = msgID
	msg[1] = t.tag
	msg[2] = ^t.tag
	binary.LittleEndian.PutUint32(msg[4:8], uint32(len(payload)))
	if eom {
		msg[8] = 0x01
	}
	msg = append(msg, payload...)
	for len(msg)%4 != 0 {
		msg = append(msg, 0)
	}

	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()
	if _, err := t.out.WriteContext(ctx, msg); err != nil {
		return &CommError{Op: "usb bulk-out", Err: err}
	}
	return nil
}

// readInLocked issues one REQUEST_DEV_DEP_MSG_IN and reads the reply
// transfer, returning its payload and the EOM flag.
func (t *USBTMCTransport) readInLocked() ([]byte, bool, error) {
	bufSize := 64 * 1024
	req := make([]byte, 12)
	t.tag++
	if t.tag == 0 {
		t.tag = 1
	}
	req[0] = usbtmcReqDevDepMsgIn
	req[1] = t.tag
	req[2] = ^t.tag
	binary.LittleEndian.PutUint32(req[4:8], uint32(bufSize))

	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()
	if _, err := t.out.WriteContext(ctx, req); err != nil {
		return nil, false, &CommError{Op: "usb read request", Err: err}
	}

	buf := make([]byte, 12+bufSize)
	n, err := t.in.ReadContext(ctx, buf)
	if err != nil {
		return nil, false, &CommError{Op: "usb bulk-in", Err: err}
	}
	if n < 12 {
		return nil, false, &CommError{Op: "usb bulk-in", Err: fmt.Errorf("short transfer: %d bytes", n)}
	}

	size := int(binary.LittleEndian.Uint32(buf[4:8]))
	eom := buf[8]&0x01 != 0
	payload := append([]byte(nil), buf[12:n]...)

	// The device may split the payload across USB packets within one
	// transfer; keep reading until the declared size arrives.
	for len(payload) < size {
		m, err := t.in.ReadContext(ctx, buf)
		if err != nil {
			return nil, false, &CommError{Op: "usb bulk-in", Err: err}
		}
		payload = append(payload, buf[:m]...)
	}
	if len(payload) > size {
		payload = payload[:size]
	}
	return payload, eom, nil
}

// Close releases the interface and shuts the USB context down.
func (t *USBTMCTransport) Close() error {
	if t.release != nil {
		t.release()
		t.release = nil
	}
	var err error
	if t.dev != nil {
		err = t.dev.Close()
		t.dev = nil
	}
	if t.ctx != nil {
		if cerr := t.ctx.Close(); err == nil {
			err = cerr
		}
		t.ctx = nil
	}
	if err != nil {
		return &CommError{Op: "close usb", Err: err}
	}
	return nil
}
