package filter

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/libcoin/libcoin-sub003/peer"
	"github.com/libcoin/libcoin-sub003/wire"
)

func readyPeer(t *testing.T, manager *peer.Manager, inbound bool) (*peer.Peer, interface{ Close() error }) {
	p, remote := newTestPeer(t, manager, inbound)
	p.MarkReady()
	return p, remote
}

func TestBloomFilterLoadWithinBounds(t *testing.T) {
	manager := peer.NewManager(time.Minute, zaptest.NewLogger(t))
	p, _ := readyPeer(t, manager, true)
	b := NewBloom(zaptest.NewLogger(t))

	payload := wire.FilterLoadPayload{Filter: bytes.Repeat([]byte{0x01}, 100), HashFuncs: 5}
	w := wire.NewBufBinWriter()
	payload.EncodeBinary(w.BinWriter)

	matched, err := b.Apply(p, &wire.Message{Header: wire.Header{Command: wire.CmdFilterLoad}, Payload: w.Bytes()})
	require.NoError(t, err)
	assert.True(t, matched)
	assert.False(t, p.Filter().IsEmpty())
}

func TestBloomFilterLoadRejectsTooManyHashFuncs(t *testing.T) {
	manager := peer.NewManager(time.Minute, zaptest.NewLogger(t))
	p, _ := readyPeer(t, manager, true)
	b := NewBloom(zaptest.NewLogger(t))

	payload := wire.FilterLoadPayload{Filter: bytes.Repeat([]byte{0x01}, 100), HashFuncs: 51}
	w := wire.NewBufBinWriter()
	payload.EncodeBinary(w.BinWriter)

	matched, err := b.Apply(p, &wire.Message{Header: wire.Header{Command: wire.CmdFilterLoad}, Payload: w.Bytes()})
	require.NoError(t, err)
	assert.True(t, matched)
	assert.True(t, p.Filter().IsEmpty(), "filterload with too many hash functions must be dropped, not applied")
}

func TestBloomFilterAddOversizeDisconnects(t *testing.T) {
	manager := peer.NewManager(time.Minute, zaptest.NewLogger(t))
	p, _ := readyPeer(t, manager, true)
	b := NewBloom(zaptest.NewLogger(t))

	payload := wire.FilterAddPayload{Data: make([]byte, 521)}
	w := wire.NewBufBinWriter()
	payload.EncodeBinary(w.BinWriter)

	_, err := b.Apply(p, &wire.Message{Header: wire.Header{Command: wire.CmdFilterAdd}, Payload: w.Bytes()})
	require.NoError(t, err)
	assert.Equal(t, peer.StateClosing, p.State())
}

func TestBloomFilterClearRestoresFullRelay(t *testing.T) {
	manager := peer.NewManager(time.Minute, zaptest.NewLogger(t))
	p, _ := readyPeer(t, manager, true)
	p.SetRelayTxes(false)
	b := NewBloom(zaptest.NewLogger(t))

	_, err := b.Apply(p, &wire.Message{Header: wire.Header{Command: wire.CmdFilterClear}})
	require.NoError(t, err)
	assert.True(t, p.RelayTxes())
	assert.True(t, p.Filter().IsEmpty())
}
