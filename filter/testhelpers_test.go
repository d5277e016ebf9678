package filter

import (
	"net"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/libcoin/libcoin-sub003/peer"
	"github.com/libcoin/libcoin-sub003/wire"
)

// newTestPeer wraps one end of a net.Pipe as a ready-to-use session,
// mirroring peer.newTestPeer but exported here since the peer
// package's helper is unexported.
func newTestPeer(t *testing.T, manager *peer.Manager, inbound bool) (*peer.Peer, net.Conn) {
	t.Helper()
	remote, local := net.Pipe()
	cfg := peer.Config{
		Magic:             wire.MagicSimNet,
		MaxPayload:        wire.DefaultMaxPayload,
		HandshakeTimeout:  2 * time.Second,
		InactivityTimeout: 2 * time.Second,
		KnownInvCapacity:  100,
	}
	p := peer.NewPeer(local, manager, inbound, cfg, nil, zaptest.NewLogger(t))
	if manager != nil {
		manager.Start(p)
		t.Cleanup(func() { manager.Stop(p) })
	} else {
		p.Start()
		t.Cleanup(p.Stop)
	}
	return p, remote
}

// readFrame blocks until the next full message arrives on conn.
func readFrame(t *testing.T, conn net.Conn) *wire.Message {
	t.Helper()
	codec := wire.NewCodec(wire.MagicSimNet, wire.DefaultMaxPayload)
	buf := make([]byte, 4096)
	var out wire.Message
	for {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		n, err := conn.Read(buf)
		if err != nil {
			t.Fatalf("reading frame: %v", err)
		}
		offset := 0
		for offset < n {
			status, consumed := codec.Parse(buf[offset:n], &out)
			offset += consumed
			if status == wire.OK {
				return &out
			}
			if status == wire.Error {
				t.Fatalf("framing error while waiting for message")
			}
		}
	}
}
