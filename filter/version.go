package filter

import (
	"time"

	"go.uber.org/zap"

	"github.com/libcoin/libcoin-sub003/peer"
	"github.com/libcoin/libcoin-sub003/wire"
)

// ChainLocator supplies the block locator a fresh outbound session
// uses to kick off initial block download right after the handshake
// completes (spec §4.4).
type ChainLocator interface {
	Locator() []wire.Hash
}

// Version implements the handshake filter: version/verack negotiation,
// self-connect rejection, and the initial getaddr/getblocks a ready
// outbound peer sends (spec §4.4).
type Version struct {
	SelfNonce       uint64
	ProtocolVersion int32
	Services        uint64
	UserAgent       string
	StartHeight     func() int32
	Chain           ChainLocator
	Manager         *peer.Manager
	Log             *zap.Logger
}

// Commands implements Filter.
func (v *Version) Commands() []string {
	return []string{wire.CmdVersion, wire.CmdVerack}
}

// Apply implements Filter. Version and verack are the only commands a
// handshaking peer may send, so this filter never calls requireReady.
func (v *Version) Apply(origin *peer.Peer, msg *wire.Message) (bool, error) {
	switch msg.Command() {
	case wire.CmdVersion:
		return v.handleVersion(origin, msg)
	case wire.CmdVerack:
		return v.handleVerack(origin)
	}
	return false, nil
}

func (v *Version) handleVersion(origin *peer.Peer, msg *wire.Message) (bool, error) {
	var payload wire.VersionPayload
	r := wire.NewBinReaderFromBuf(msg.Payload)
	payload.DecodeBinary(r)
	if r.Err != nil {
		return false, ErrShortPayload
	}

	if payload.Nonce == v.SelfNonce {
		v.Log.Debug("filter/version: rejecting self-connect loopback",
			zap.Uint64("nonce", payload.Nonce))
		origin.Stop()
		return true, nil
	}

	negotiated := v.ProtocolVersion
	if payload.ProtocolVersion < negotiated {
		negotiated = payload.ProtocolVersion
	}
	origin.SetVersion(&payload, negotiated)

	if v.Manager != nil {
		v.Manager.RecordHeight(payload.StartHeight)
	}

	if origin.Inbound() {
		if err := v.SendVersion(origin); err != nil {
			return false, err
		}
	}
	if err := origin.PushMessage(wire.CmdVerack, nil); err != nil {
		return false, err
	}
	return true, nil
}

func (v *Version) handleVerack(origin *peer.Peer) (bool, error) {
	origin.MarkReady()
	if origin.Inbound() {
		return true, nil
	}
	if err := origin.PushMessage(wire.CmdGetAddr, nil); err != nil {
		return false, err
	}
	if v.Chain != nil {
		w := wire.NewBufBinWriter()
		locator := wire.LocatorPayload{
			ProtocolVersion: uint32(v.ProtocolVersion),
			Locator:         v.Chain.Locator(),
		}
		locator.EncodeBinary(w.BinWriter)
		if w.Err != nil {
			return false, w.Err
		}
		if err := origin.PushMessage(wire.CmdGetBlocks, w.Bytes()); err != nil {
			return false, err
		}
	}
	return true, nil
}

// SendVersion pushes our own version message to origin, called by the
// node immediately after an outbound dial succeeds and, from within
// this filter, when an inbound peer speaks first.
func (v *Version) SendVersion(origin *peer.Peer) error {
	now := time.Now().Unix()
	payload := wire.VersionPayload{
		ProtocolVersion: v.ProtocolVersion,
		Services:        v.Services,
		Timestamp:       now,
		Nonce:           v.SelfNonce,
		UserAgent:       v.UserAgent,
		Relay:           true,
	}
	if v.StartHeight != nil {
		payload.StartHeight = v.StartHeight()
	}
	w := wire.NewBufBinWriter()
	payload.EncodeBinary(w.BinWriter)
	if w.Err != nil {
		return w.Err
	}
	return origin.PushMessage(wire.CmdVersion, w.Bytes())
}
