package visa

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"
)

// TCPTransport talks SCPI over a raw LAN socket. One command/reply
// exchange holds the connection mutex for its whole duration, so
// replies can never interleave between callers.
type TCPTransport struct {
	addr    string
	timeout time.Duration

	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Reader
}

// DialTCP connects to host on the given port (0 selects the standard
// SCPI raw socket port).
func DialTCP(host string, port int, timeout time.Duration) (*TCPTransport, error) {
	if port == 0 {
		port = DefaultSCPIPort
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))

	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, &CommError{Op: "dial " + addr, Err: err}
	}

	return &TCPTransport{
		addr:    addr,
		timeout: timeout,
		conn:    conn,
		reader:  bufio.NewReader(conn),
	}, nil
}

// Send writes one command followed by the newline terminator. Commands
// are terminator-free; a binary block payload may legitimately end in a
// 0x0A byte, so the terminator is always appended rather than inferred
// from the last byte.
func (t *TCPTransport) Send(cmd []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.writeLocked(cmd)
}

// Query writes a command and reads the newline-terminated reply.
func (t *TCPTransport) Query(cmd []byte) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.writeLocked(cmd); err != nil {
		return nil, err
	}

	t.conn.SetReadDeadline(time.Now().Add(t.timeout))
	line, err := t.reader.ReadString('\n')
	if err != nil {
		return nil, &CommError{Op: "read " + t.addr, Err: err}
	}
	return []byte(strings.TrimRight(line, "\r\n")), nil
}

func (t *TCPTransport) writeLocked(cmd []byte) error {
	if t.conn == nil {
		return &CommError{Op: "write " + t.addr, Err: net.ErrClosed}
	}
	msg := make([]byte, 0, len(cmd)+1)
	msg = append(msg, cmd...)
	msg = append(msg, '\n')
	t.conn.SetWriteDeadline(time.Now().Add(t.timeout))
	if _, err := t.conn.Write(msg); err != nil {
		return &CommError{Op: "write " + t.addr, Err: err}
	}
	return nil
}

// Close shuts the connection down.
func (t *TCPTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	if err != nil {
		return &CommError{Op: "close " + t.addr, Err: err}
	}
	return nil
}
