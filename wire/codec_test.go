package wire

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildFrame(t *testing.T, magic Magic, command string, payload []byte) []byte {
	t.Helper()
	return Encode(magic, command, payload)
}

func TestCodecRoundTrip(t *testing.T) {
	payload := []byte("hello inventory")
	frame := buildFrame(t, MagicMainNet, CmdTx, payload)

	c := NewCodec(MagicMainNet, 0)
	var out Message
	status, n := c.Parse(frame, &out)
	require.Equal(t, OK, status)
	require.Equal(t, len(frame), n)
	assert.Equal(t, CmdTx, out.Command())
	assert.Equal(t, payload, out.Payload)
	assert.Equal(t, Checksum(payload), out.Header.Checksum)
}

func TestCodecHandshakeHasNoChecksum(t *testing.T) {
	payload := []byte("version-payload")
	frame := buildFrame(t, MagicMainNet, CmdVersion, payload)

	c := NewCodec(MagicMainNet, 0)
	var out Message
	status, _ := c.Parse(frame, &out)
	require.Equal(t, OK, status)
	assert.Equal(t, [4]byte{}, out.Header.Checksum)
}

func TestCodecChecksumMismatch(t *testing.T) {
	payload := []byte("tx-payload")
	frame := buildFrame(t, MagicMainNet, CmdTx, payload)
	// Corrupt the checksum field (bytes 20-23: magic(4)+command(12)+length(4)).
	frame[20] = frame[20] ^ 0xff

	c := NewCodec(MagicMainNet, 0)
	var out Message
	status, _ := c.Parse(frame, &out)
	assert.Equal(t, Error, status)
}

func TestCodecOversizePayload(t *testing.T) {
	c := NewCodec(MagicMainNet, 8)
	payload := make([]byte, 16)
	frame := buildFrame(t, MagicMainNet, CmdTx, payload)

	var out Message
	status, _ := c.Parse(frame, &out)
	assert.Equal(t, Error, status)
}

func TestCodecResynchronizesAfterGarbage(t *testing.T) {
	payload := []byte("resync-me")
	frame := buildFrame(t, MagicMainNet, CmdPing, payload)

	rnd := rand.New(rand.NewSource(1))
	garbage := make([]byte, 37)
	for i := range garbage {
		for {
			b := byte(rnd.Intn(256))
			// Avoid accidentally embedding the real magic in the noise.
			if b != byte(MagicMainNet) {
				garbage[i] = b
				break
			}
		}
	}

	c := NewCodec(MagicMainNet, 0)
	for _, b := range garbage {
		status := c.Consume(b)
		require.NotEqual(t, Error, status)
	}

	var out Message
	status, n := c.Parse(frame, &out)
	require.Equal(t, OK, status)
	require.Equal(t, len(frame), n)
	assert.Equal(t, CmdPing, out.Command())
	assert.Equal(t, payload, out.Payload)
}

func TestCodecResetRestoresInitialState(t *testing.T) {
	c := NewCodec(MagicMainNet, 0)
	c.Consume(byte(MagicMainNet))
	c.Reset()
	assert.Equal(t, stateStart1, c.state)
	assert.Equal(t, 0, c.counter)
}
