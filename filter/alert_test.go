package filter

import (
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/libcoin/libcoin-sub003/peer"
	"github.com/libcoin/libcoin-sub003/wire"
)

func signedAlertFrame(t *testing.T, priv *btcec.PrivateKey, payload wire.AlertPayload) []byte {
	t.Helper()
	pw := wire.NewBufBinWriter()
	payload.EncodeBinary(pw.BinWriter)

	hash := doubleSHA256(pw.Bytes())
	sig, err := priv.Sign(hash[:])
	require.NoError(t, err)

	envelope := wire.Alert{Payload: pw.Bytes(), Signature: sig.Serialize()}
	ew := wire.NewBufBinWriter()
	envelope.EncodeBinary(ew.BinWriter)
	return ew.Bytes()
}

func TestAlertAcceptsValidSignatureAndRelays(t *testing.T) {
	priv, err := btcec.NewPrivateKey(btcec.S256())
	require.NoError(t, err)

	manager := peer.NewManager(time.Minute, zaptest.NewLogger(t))
	a := NewAlert(priv.PubKey().SerializeUncompressed(), manager, zaptest.NewLogger(t))

	origin, _ := newTestPeer(t, manager, true)
	other, remote := newTestPeer(t, manager, true)
	other.SetVersion(&wire.VersionPayload{ProtocolVersion: 70001}, 70001)

	var received *wire.AlertPayload
	a.Subscribe(func(p *wire.AlertPayload) { received = p })

	payload := wire.AlertPayload{ID: 1, MinVer: 0, MaxVer: 99999, Expiration: time.Now().Add(time.Hour).Unix(), StatusBar: "test alert"}
	frame := signedAlertFrame(t, priv, payload)

	matched, err := a.Apply(origin, &wire.Message{Header: wire.Header{Command: wire.CmdAlert}, Payload: frame})
	require.NoError(t, err)
	assert.True(t, matched)
	require.NotNil(t, received)
	assert.Equal(t, "test alert", received.StatusBar)

	relayed := readFrame(t, remote)
	assert.Equal(t, wire.CmdAlert, relayed.Command())
}

func TestAlertRejectsBadSignature(t *testing.T) {
	priv, err := btcec.NewPrivateKey(btcec.S256())
	require.NoError(t, err)
	other, err := btcec.NewPrivateKey(btcec.S256())
	require.NoError(t, err)

	manager := peer.NewManager(time.Minute, zaptest.NewLogger(t))
	a := NewAlert(priv.PubKey().SerializeUncompressed(), manager, zaptest.NewLogger(t))
	origin, _ := newTestPeer(t, manager, true)

	var called bool
	a.Subscribe(func(p *wire.AlertPayload) { called = true })

	payload := wire.AlertPayload{ID: 1, Expiration: time.Now().Add(time.Hour).Unix()}
	frame := signedAlertFrame(t, other, payload)

	matched, err := a.Apply(origin, &wire.Message{Header: wire.Header{Command: wire.CmdAlert}, Payload: frame})
	require.NoError(t, err)
	assert.True(t, matched)
	assert.False(t, called, "a signature from an unrelated key must be dropped")
}
