package node

import (
	"crypto/sha256"
	"testing"

	"github.com/btcsuite/btcd/btcec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ripemd160"

	"github.com/libcoin/libcoin-sub003/wire"
)

func pkScriptFor(pubKey []byte) []byte {
	sha := sha256.Sum256(pubKey)
	r := ripemd160.New()
	r.Write(sha[:])
	h := r.Sum(nil)

	script := make([]byte, 0, 25)
	script = append(script, 0x76, 0xa9, 0x14)
	script = append(script, h...)
	script = append(script, 0x88, 0xac)
	return script
}

func pushScript(sig, pubKey []byte) []byte {
	out := make([]byte, 0, len(sig)+len(pubKey)+2)
	out = append(out, byte(len(sig)))
	out = append(out, sig...)
	out = append(out, byte(len(pubKey)))
	out = append(out, pubKey...)
	return out
}

func signedTx(t *testing.T, priv *btcec.PrivateKey) (*wire.Tx, *wire.TxOut, []byte) {
	t.Helper()
	pubKey := priv.PubKey().SerializeUncompressed()
	pkScript := pkScriptFor(pubKey)
	output := &wire.TxOut{Value: 5000, PkScript: pkScript}

	txn := &wire.Tx{
		Version: 1,
		TxIn: []*wire.TxIn{
			{PrevOut: wire.OutPoint{Index: 0}},
		},
		TxOut: []*wire.TxOut{
			{Value: 4000, PkScript: pkScript},
		},
	}

	sigHash := computeSignatureHash(txn, 0, pkScript, 1)
	sig, err := priv.Sign(sigHash[:])
	require.NoError(t, err)
	sigBytes := sig.Serialize()
	txn.TxIn[0].SignatureScript = pushScript(sigBytes, pubKey)
	return txn, output, sigBytes
}

func TestVerifySignatureAcceptsValidSpend(t *testing.T) {
	priv, err := btcec.NewPrivateKey(btcec.S256())
	require.NoError(t, err)
	txn, output, _ := signedTx(t, priv)

	assert.NoError(t, VerifySignature(output, txn, 0, true, 1))
}

func TestVerifySignatureRejectsWrongKey(t *testing.T) {
	priv, err := btcec.NewPrivateKey(btcec.S256())
	require.NoError(t, err)
	txn, output, sigBytes := signedTx(t, priv)

	other, err := btcec.NewPrivateKey(btcec.S256())
	require.NoError(t, err)
	otherPub := other.PubKey().SerializeUncompressed()
	// swap in an unrelated public key: it no longer matches the
	// output script's hash, so verification must fail.
	txn.TxIn[0].SignatureScript = pushScript(sigBytes, otherPub)

	assert.Error(t, VerifySignature(output, txn, 0, true, 1))
}

func TestVerifySignatureRejectsTamperedTx(t *testing.T) {
	priv, err := btcec.NewPrivateKey(btcec.S256())
	require.NoError(t, err)
	txn, output, _ := signedTx(t, priv)

	txn.TxOut[0].Value = 999999

	assert.Error(t, VerifySignature(output, txn, 0, true, 1))
}
