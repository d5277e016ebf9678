package filter

import (
	"crypto/sha256"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcec"
	"go.uber.org/zap"

	"github.com/libcoin/libcoin-sub003/peer"
	"github.com/libcoin/libcoin-sub003/wire"
)

// AlertHandler is invoked, in registration order, with every alert
// this filter accepts.
type AlertHandler func(payload *wire.AlertPayload)

type storedAlert struct {
	payload *wire.AlertPayload
	raw     []byte
}

// Alert implements relay of operator-signed network alerts: ECDSA
// signature verification against a configured public key, cancel-set
// bookkeeping, and version-range relay (spec §4.7).
type Alert struct {
	PublicKey []byte
	Manager   *peer.Manager
	Log       *zap.Logger

	mu       sync.Mutex
	active   map[int32]*storedAlert
	handlers []AlertHandler
}

// NewAlert constructs an Alert filter verifying signatures against
// publicKey (an uncompressed or compressed secp256k1 point).
func NewAlert(publicKey []byte, manager *peer.Manager, log *zap.Logger) *Alert {
	return &Alert{
		PublicKey: publicKey,
		Manager:   manager,
		Log:       log,
		active:    make(map[int32]*storedAlert),
	}
}

// Subscribe registers fn to run on every newly accepted alert.
func (a *Alert) Subscribe(fn AlertHandler) {
	a.mu.Lock()
	a.handlers = append(a.handlers, fn)
	a.mu.Unlock()
}

// Commands implements Filter.
func (a *Alert) Commands() []string {
	return []string{wire.CmdAlert, wire.CmdVersion}
}

// Apply implements Filter.
func (a *Alert) Apply(origin *peer.Peer, msg *wire.Message) (bool, error) {
	switch msg.Command() {
	case wire.CmdAlert:
		return a.handleAlert(origin, msg)
	case wire.CmdVersion:
		return a.handleVersion(origin)
	}
	return false, nil
}

func doubleSHA256(b []byte) [32]byte {
	first := sha256.Sum256(b)
	return sha256.Sum256(first[:])
}

func (a *Alert) handleAlert(origin *peer.Peer, msg *wire.Message) (bool, error) {
	var envelope wire.Alert
	r := wire.NewBinReaderFromBuf(msg.Payload)
	envelope.DecodeBinary(r)
	if r.Err != nil {
		return false, ErrShortPayload
	}

	if !a.verify(envelope.Payload, envelope.Signature) {
		a.Log.Debug("filter/alert: dropping alert with bad signature")
		return true, nil
	}

	var payload wire.AlertPayload
	pr := wire.NewBinReaderFromBuf(envelope.Payload)
	payload.DecodeBinary(pr)
	if pr.Err != nil {
		return false, ErrShortPayload
	}

	if payload.Expiration < time.Now().Unix() {
		return true, nil
	}

	a.mu.Lock()
	if _, dup := a.active[payload.ID]; dup {
		a.mu.Unlock()
		return true, nil
	}
	a.active[payload.ID] = &storedAlert{payload: &payload, raw: msg.Payload}
	if payload.Cancel != 0 {
		delete(a.active, payload.Cancel)
	}
	for _, id := range payload.SetCancel {
		delete(a.active, id)
	}
	handlers := make([]AlertHandler, len(a.handlers))
	copy(handlers, a.handlers)
	a.mu.Unlock()

	for _, h := range handlers {
		h(&payload)
	}
	a.relay(origin, &payload, msg.Payload)
	return true, nil
}

func (a *Alert) verify(payload, signature []byte) bool {
	pub, err := btcec.ParsePubKey(a.PublicKey, btcec.S256())
	if err != nil {
		return false
	}
	sig, err := btcec.ParseSignature(signature, btcec.S256())
	if err != nil {
		return false
	}
	hash := doubleSHA256(payload)
	return sig.Verify(hash[:], pub)
}

// relay forwards a validated alert to every peer (other than origin)
// whose advertised version falls within the alert's applies-to range.
func (a *Alert) relay(origin *peer.Peer, payload *wire.AlertPayload, raw []byte) {
	if a.Manager == nil {
		return
	}
	for _, p := range a.Manager.Peers() {
		if p == origin || !payload.AppliesTo(p.Version()) {
			continue
		}
		_ = p.PushMessage(wire.CmdAlert, raw)
	}
}

// handleVersion pushes every currently-effective alert to a freshly
// connected peer (spec §4.7).
func (a *Alert) handleVersion(origin *peer.Peer) (bool, error) {
	a.mu.Lock()
	alerts := make([]*storedAlert, 0, len(a.active))
	for _, al := range a.active {
		alerts = append(alerts, al)
	}
	a.mu.Unlock()

	for _, al := range alerts {
		if !al.payload.AppliesTo(origin.Version()) {
			continue
		}
		if err := origin.PushMessage(wire.CmdAlert, al.raw); err != nil {
			return false, err
		}
	}
	return true, nil
}
