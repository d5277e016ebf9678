package filter

import (
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/libcoin/libcoin-sub003/peer"
	"github.com/libcoin/libcoin-sub003/wire"
)

// maxAddrEntries bounds both the addr payloads we accept and the ones
// we send in reply to getaddr (spec §4.5).
const maxAddrEntries = 1000

// EndpointPool is the persistent address-book collaborator the
// endpoint filter maintains (spec §4.5): external so that it can be
// backed by disk or memory independent of the filter's own lifetime.
type EndpointPool interface {
	Add(addr wire.NetAddr, seen time.Time)
	Sample(n int) []wire.NetAddr
}

// Endpoint implements gossip of known addresses: addr/getaddr relay.
// inv/getdata/ping/version are matched with no further work (the
// session records activity itself); the pool is not touched for them
// (spec §4.5).
type Endpoint struct {
	Pool    EndpointPool
	Manager *peer.Manager
	Log     *zap.Logger
}

// Commands implements Filter.
func (e *Endpoint) Commands() []string {
	return []string{wire.CmdAddr, wire.CmdGetAddr, wire.CmdVersion, wire.CmdInv, wire.CmdGetData, wire.CmdPing}
}

// Apply implements Filter.
func (e *Endpoint) Apply(origin *peer.Peer, msg *wire.Message) (bool, error) {
	switch msg.Command() {
	case wire.CmdAddr:
		return e.handleAddr(origin, msg)
	case wire.CmdGetAddr:
		return e.handleGetAddr(origin)
	default:
		// version/inv/getdata/ping carry no address-book content; the
		// session itself already records last-activity on every read,
		// so these are acknowledged as matched with no further work.
		return true, nil
	}
}

func (e *Endpoint) handleAddr(origin *peer.Peer, msg *wire.Message) (bool, error) {
	var payload wire.AddrPayload
	r := wire.NewBinReaderFromBuf(msg.Payload)
	payload.DecodeBinary(r)
	if r.Err != nil {
		return false, ErrShortPayload
	}
	if len(payload.Addrs) > maxAddrEntries {
		payload.Addrs = payload.Addrs[:maxAddrEntries]
	}
	if e.Pool == nil {
		return true, nil
	}

	now := time.Now()
	for _, a := range payload.Addrs {
		e.Pool.Add(a, now)
	}

	if e.Manager != nil {
		e.relayToRandomPeers(origin, payload.Addrs)
	}
	return true, nil
}

// relayToRandomPeers forwards addrs to up to two peers other than
// origin, a fan-out ratio grounded on the original protocol's
// addr-relay default.
func (e *Endpoint) relayToRandomPeers(origin *peer.Peer, addrs []wire.NetAddr) {
	candidates := make([]*peer.Peer, 0)
	for _, p := range e.Manager.Peers() {
		if p != origin {
			candidates = append(candidates, p)
		}
	}
	rand.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})
	if len(candidates) > 2 {
		candidates = candidates[:2]
	}

	out := wire.AddrPayload{Addrs: addrs}
	w := wire.NewBufBinWriter()
	out.EncodeBinary(w.BinWriter)
	if w.Err != nil {
		return
	}
	for _, p := range candidates {
		_ = p.PushMessage(wire.CmdAddr, w.Bytes())
	}
}

func (e *Endpoint) handleGetAddr(origin *peer.Peer) (bool, error) {
	if e.Pool == nil {
		return true, nil
	}
	sample := e.Pool.Sample(maxAddrEntries)
	out := wire.AddrPayload{Addrs: sample}
	w := wire.NewBufBinWriter()
	out.EncodeBinary(w.BinWriter)
	if w.Err != nil {
		return false, w.Err
	}
	if err := origin.PushMessage(wire.CmdAddr, w.Bytes()); err != nil {
		return false, err
	}
	return true, nil
}
