package wire

import (
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChecksumMatchesDoubleSHA256Prefix(t *testing.T) {
	payload := []byte{0x01, 0x02, 0x03}
	sum := Checksum(payload)
	assert.Len(t, sum, 4)
	first := sha256.Sum256(payload)
	second := sha256.Sum256(first[:])
	assert.Equal(t, second[:4], sum[:])
	// A different payload should (overwhelmingly likely) checksum differently.
	assert.NotEqual(t, sum, Checksum([]byte{0x01, 0x02, 0x04}))
}

func TestCommandEncodeDecodeRoundTrip(t *testing.T) {
	raw := encodeCommand(CmdVersion)
	assert.Equal(t, CmdVersion, decodeCommand(raw))

	raw = encodeCommand("tx")
	assert.Equal(t, "tx", decodeCommand(raw))
}

func TestVersionPayloadRoundTrip(t *testing.T) {
	v := &VersionPayload{
		ProtocolVersion: 70001,
		Services:        1,
		Timestamp:       1234567890,
		Nonce:           0xdeadbeef,
		UserAgent:       "/test:1.0/",
		StartHeight:     100,
		Relay:           true,
	}
	w := NewBufBinWriter()
	v.EncodeBinary(w.BinWriter)

	r := NewBinReaderFromBuf(w.Bytes())
	var got VersionPayload
	got.DecodeBinary(r)

	assert.NoError(t, r.Err)
	assert.Equal(t, *v, got)
}
