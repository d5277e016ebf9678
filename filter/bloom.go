package filter

import (
	"go.uber.org/zap"

	"github.com/libcoin/libcoin-sub003/bloomfilter"
	"github.com/libcoin/libcoin-sub003/peer"
	"github.com/libcoin/libcoin-sub003/wire"
)

// Bloom implements BIP37 filtered-relay negotiation: filterload
// replaces a peer's filter after bounds checks, filteradd appends an
// element, filterclear restores full relay (spec §4.8).
type Bloom struct {
	Log *zap.Logger
}

// NewBloom constructs a Bloom filter.
func NewBloom(log *zap.Logger) *Bloom {
	return &Bloom{Log: log}
}

// Commands implements Filter.
func (b *Bloom) Commands() []string {
	return []string{wire.CmdFilterLoad, wire.CmdFilterAdd, wire.CmdFilterClear}
}

// Apply implements Filter.
func (b *Bloom) Apply(origin *peer.Peer, msg *wire.Message) (bool, error) {
	if err := requireReady(origin); err != nil {
		return false, err
	}
	switch msg.Command() {
	case wire.CmdFilterLoad:
		return b.handleFilterLoad(origin, msg)
	case wire.CmdFilterAdd:
		return b.handleFilterAdd(origin, msg)
	case wire.CmdFilterClear:
		return b.handleFilterClear(origin)
	}
	return true, nil
}

func (b *Bloom) handleFilterLoad(origin *peer.Peer, msg *wire.Message) (bool, error) {
	var payload wire.FilterLoadPayload
	r := wire.NewBinReaderFromBuf(msg.Payload)
	payload.DecodeBinary(r)
	if r.Err != nil {
		return false, ErrShortPayload
	}

	f, err := bloomfilter.LoadFromPayload(&payload)
	if err != nil {
		b.Log.Debug("filter/bloom: rejecting filterload", zap.Error(err))
		return true, nil
	}
	origin.SetFilter(f)
	origin.SetRelayTxes(true)
	return true, nil
}

func (b *Bloom) handleFilterAdd(origin *peer.Peer, msg *wire.Message) (bool, error) {
	var payload wire.FilterAddPayload
	r := wire.NewBinReaderFromBuf(msg.Payload)
	payload.DecodeBinary(r)
	if r.Err != nil {
		return false, ErrShortPayload
	}

	if err := origin.Filter().Add(payload.Data); err != nil {
		b.Log.Debug("filter/bloom: disconnecting peer for oversize filteradd",
			zap.Error(err))
		origin.Stop()
		return true, nil
	}
	return true, nil
}

func (b *Bloom) handleFilterClear(origin *peer.Peer) (bool, error) {
	origin.SetFilter(bloomfilter.Empty())
	origin.SetRelayTxes(true)
	return true, nil
}
