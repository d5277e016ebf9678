package node

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/btcsuite/btcd/btcec"
	"golang.org/x/crypto/ripemd160"

	"github.com/libcoin/libcoin-sub003/wire"
)

// VerifySignature implements verify.SignatureVerifier for standard
// pay-to-pubkey-hash inputs: scriptSig is exactly push(signature),
// push(pubkey), and scriptPubKey's pubkey hash must match. A full
// scripting engine (OP_* interpreter, P2SH redeem-script recursion) is
// out of scope here; see DESIGN.md for why this node only implements
// the shapes the corpus's own wallet code produces.
func VerifySignature(output *wire.TxOut, txn *wire.Tx, inputIndex int, strictP2SH bool, hashType uint32) error {
	if inputIndex < 0 || inputIndex >= len(txn.TxIn) {
		return fmt.Errorf("input %d: index out of range", inputIndex)
	}
	sigScript := txn.TxIn[inputIndex].SignatureScript

	sig, pubKeyBytes, err := extractPushes(sigScript)
	if err != nil {
		return fmt.Errorf("input %d: %w", inputIndex, err)
	}

	pubKey, err := btcec.ParsePubKey(pubKeyBytes, btcec.S256())
	if err != nil {
		return fmt.Errorf("input %d: invalid public key: %w", inputIndex, err)
	}

	if !pubKeyHashMatches(output.PkScript, pubKeyBytes) {
		return fmt.Errorf("input %d: public key does not match output script", inputIndex)
	}

	parsedSig, err := btcec.ParseSignature(sig, btcec.S256())
	if err != nil {
		return fmt.Errorf("input %d: invalid signature encoding: %w", inputIndex, err)
	}

	sigHash := computeSignatureHash(txn, inputIndex, output.PkScript, hashType)
	if !parsedSig.Verify(sigHash[:], pubKey) {
		return fmt.Errorf("input %d: signature verification failed", inputIndex)
	}
	return nil
}

// extractPushes parses a two-element push-only scriptSig: <sig> <pubkey>.
func extractPushes(script []byte) (sig, pubKey []byte, err error) {
	pushes := make([][]byte, 0, 2)
	i := 0
	for i < len(script) {
		opcode := script[i]
		i++
		var length int
		switch {
		case opcode >= 1 && opcode <= 75:
			length = int(opcode)
		default:
			return nil, nil, fmt.Errorf("unsupported opcode 0x%02x in scriptSig", opcode)
		}
		if i+length > len(script) {
			return nil, nil, fmt.Errorf("truncated push in scriptSig")
		}
		pushes = append(pushes, script[i:i+length])
		i += length
	}
	if len(pushes) != 2 {
		return nil, nil, fmt.Errorf("expected 2 pushes in scriptSig, got %d", len(pushes))
	}
	return pushes[0], pushes[1], nil
}

// pubKeyHashMatches reports whether pkScript is the standard
// OP_DUP OP_HASH160 <20-byte hash> OP_EQUALVERIFY OP_CHECKSIG pattern
// and the hash matches hash160(pubKey).
func pubKeyHashMatches(pkScript, pubKey []byte) bool {
	const (
		opDup         = 0x76
		opHash160     = 0xa9
		opEqualVerify = 0x88
		opCheckSig    = 0xac
		pushLen20     = 0x14
	)
	if len(pkScript) != 25 ||
		pkScript[0] != opDup || pkScript[1] != opHash160 || pkScript[2] != pushLen20 ||
		pkScript[23] != opEqualVerify || pkScript[24] != opCheckSig {
		return false
	}
	want := pkScript[3:23]
	got := hash160(pubKey)
	if len(want) != len(got) {
		return false
	}
	for i := range want {
		if want[i] != got[i] {
			return false
		}
	}
	return true
}

func hash160(b []byte) []byte {
	sha := sha256.Sum256(b)
	r := ripemd160.New()
	r.Write(sha[:])
	return r.Sum(nil)
}

// computeSignatureHash builds the original protocol's legacy signature
// hash: the transaction with every other input's script blanked and
// this input's script replaced by the referenced output script,
// serialized with a trailing 4-byte hash type, then double-SHA256'd.
func computeSignatureHash(txn *wire.Tx, inputIndex int, subscript []byte, hashType uint32) [32]byte {
	copyTx := &wire.Tx{
		Version:  txn.Version,
		LockTime: txn.LockTime,
	}
	for i, in := range txn.TxIn {
		blanked := &wire.TxIn{PrevOut: in.PrevOut, Sequence: in.Sequence}
		if i == inputIndex {
			blanked.SignatureScript = subscript
		}
		copyTx.TxIn = append(copyTx.TxIn, blanked)
	}
	copyTx.TxOut = txn.TxOut

	w := wire.NewBufBinWriter()
	copyTx.EncodeBinary(w.BinWriter)
	var typeBuf [4]byte
	binary.LittleEndian.PutUint32(typeBuf[:], hashType)
	w.WriteBytes(typeBuf[:])

	first := sha256.Sum256(w.Bytes())
	return sha256.Sum256(first[:])
}
