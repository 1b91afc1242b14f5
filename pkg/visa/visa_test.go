package visa

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResourceTCPIPInstr(t *testing.T) {
	r, err := ParseResource("TCPIP0::192.168.1.100::INSTR")
	require.NoError(t, err)
	assert.Equal(t, "TCPIP", r.Type)
	assert.Equal(t, "192.168.1.100", r.Host)
	assert.Equal(t, 0, r.Port)
}

func TestParseResourceTCPIPSocket(t *testing.T) {
	r, err := ParseResource("TCPIP0::dg800.lan::5555::SOCKET")
	require.NoError(t, err)
	assert.Equal(t, "TCPIP", r.Type)
	assert.Equal(t, "dg800.lan", r.Host)
	assert.Equal(t, 5555, r.Port)
}

func TestParseResourceUSB(t *testing.T) {
	r, err := ParseResource("USB0::0x1AB1::0x0642::DG8A231500123::INSTR")
	require.NoError(t, err)
	assert.Equal(t, "USB", r.Type)
	assert.Equal(t, uint16(0x1AB1), r.VID)
	assert.Equal(t, uint16(0x0642), r.PID)
	assert.Equal(t, "DG8A231500123", r.Serial)
}

func TestParseResourceGPIB(t *testing.T) {
	r, err := ParseResource("GPIB0::7::INSTR")
	require.NoError(t, err)
	assert.Equal(t, "GPIB", r.Type)
	assert.Equal(t, 7, r.Addr)
}

func TestParseResourceRejectsMalformed(t *testing.T) {
	for _, s := range []string{
		"",
		"INSTR",
		"TCPIP0",
		"USB0::notahex::0x0642::SN::INSTR",
		"GPIB0::99::INSTR",
		"SERIAL0::/dev/ttyUSB0::INSTR",
		"TCPIP0::host::notaport::SOCKET",
	} {
		_, err := ParseResource(s)
		assert.Error(t, err, "resource %q", s)
	}
}
