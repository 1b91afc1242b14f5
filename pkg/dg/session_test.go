package dg

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTransport is a scripted instrument: every sent command is
// recorded, queries answer from the reply map, and SYST:ERR? pops from
// its own queue so error-path tests can inject rejections.
type fakeTransport struct {
	sent    []string
	replies map[string]string
	errQ    []string
	closed  bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{replies: map[string]string{
		"*IDN?": "RIGOL TECHNOLOGIES,DG832,DG8A231500123,00.02.05.00.01",
	}}
}

func (f *fakeTransport) Send(cmd []byte) error {
	f.sent = append(f.sent, string(cmd))
	return nil
}

func (f *fakeTransport) Query(cmd []byte) ([]byte, error) {
	q := string(cmd)
	f.sent = append(f.sent, q)
	if q == "SYST:ERR?" {
		if len(f.errQ) == 0 {
			return []byte(`0,"No error"`), nil
		}
		head := f.errQ[0]
		f.errQ = f.errQ[1:]
		return []byte(head), nil
	}
	reply, ok := f.replies[q]
	if !ok {
		return nil, fmt.Errorf("unscripted query %q", q)
	}
	return []byte(reply), nil
}

func (f *fakeTransport) Close() error {
	f.closed = true
	return nil
}

func TestConnectResolvesModelCapabilities(t *testing.T) {
	ft := newFakeTransport()
	s, err := Connect(ft, nil)
	require.NoError(t, err)

	assert.Equal(t, "DG800", s.Capabilities().Family)
	assert.Equal(t, 8192, s.Capabilities().MaxPoints)
	assert.Equal(t, 2, s.Capabilities().Channels)
	assert.Contains(t, s.Identity(), "DG832")
}

func TestConnectUnknownModelFallsBackToGeneric(t *testing.T) {
	ft := newFakeTransport()
	ft.replies["*IDN?"] = "RIGOL TECHNOLOGIES,DG70000,SN,FW"
	s, err := Connect(ft, nil)
	require.NoError(t, err)

	assert.Equal(t, "GENERIC", s.Capabilities().Family)
	assert.Equal(t, 8192, s.Capabilities().MaxPoints)
}

func TestNextErrorParsesQueueEntry(t *testing.T) {
	ft := newFakeTransport()
	s, err := Connect(ft, nil)
	require.NoError(t, err)

	ft.errQ = []string{`-113,"Undefined header"`}
	code, msg, err := s.NextError()
	require.NoError(t, err)
	assert.Equal(t, -113, code)
	assert.Equal(t, "Undefined header", msg)

	code, _, err = s.NextError()
	require.NoError(t, err)
	assert.Equal(t, 0, code)
}

func TestCheckErrorQueueDrainsFollowups(t *testing.T) {
	ft := newFakeTransport()
	s, err := Connect(ft, nil)
	require.NoError(t, err)

	ft.errQ = []string{`-222,"Data out of range"`, `-113,"Undefined header"`}
	err = s.checkErrorQueue()
	var ie *InstrumentError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, -222, ie.Code)
	assert.Empty(t, ft.errQ, "queue should be drained after the first hit")
}

func TestCloseShutsTransport(t *testing.T) {
	ft := newFakeTransport()
	s, err := Connect(ft, nil)
	require.NoError(t, err)
	require.NoError(t, s.Close())
	assert.True(t, ft.closed)
}
