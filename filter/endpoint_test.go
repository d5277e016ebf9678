package filter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/libcoin/libcoin-sub003/peer"
	"github.com/libcoin/libcoin-sub003/wire"
)

type fakePool struct {
	added   []wire.NetAddr
	sample  []wire.NetAddr
}

func (p *fakePool) Add(addr wire.NetAddr, seen time.Time) { p.added = append(p.added, addr) }
func (p *fakePool) Sample(n int) []wire.NetAddr            { return p.sample }

func TestEndpointAddrRelayedToOtherPeers(t *testing.T) {
	manager := peer.NewManager(time.Minute, zaptest.NewLogger(t))
	pool := &fakePool{}
	e := &Endpoint{Pool: pool, Manager: manager, Log: zaptest.NewLogger(t)}

	origin, _ := newTestPeer(t, manager, true)
	other, remote := newTestPeer(t, manager, true)
	_ = other

	addrs := wire.AddrPayload{Addrs: []wire.NetAddr{{Port: 8333}}}
	w := wire.NewBufBinWriter()
	addrs.EncodeBinary(w.BinWriter)

	matched, err := e.Apply(origin, &wire.Message{Header: wire.Header{Command: wire.CmdAddr}, Payload: w.Bytes()})
	require.NoError(t, err)
	assert.True(t, matched)
	assert.Len(t, pool.added, 1)

	relayed := readFrame(t, remote)
	assert.Equal(t, wire.CmdAddr, relayed.Command())
}

func TestEndpointGetAddrRepliesWithSample(t *testing.T) {
	manager := peer.NewManager(time.Minute, zaptest.NewLogger(t))
	pool := &fakePool{sample: []wire.NetAddr{{Port: 1}, {Port: 2}}}
	e := &Endpoint{Pool: pool, Manager: manager, Log: zaptest.NewLogger(t)}

	origin, remote := newTestPeer(t, manager, true)

	matched, err := e.Apply(origin, &wire.Message{Header: wire.Header{Command: wire.CmdGetAddr}})
	require.NoError(t, err)
	assert.True(t, matched)

	frame := readFrame(t, remote)
	assert.Equal(t, wire.CmdAddr, frame.Command())

	var decoded wire.AddrPayload
	r := wire.NewBinReaderFromBuf(frame.Payload)
	decoded.DecodeBinary(r)
	require.NoError(t, r.Err)
	assert.Len(t, decoded.Addrs, 2)
}
