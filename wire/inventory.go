package wire

import "bytes"

// InvType identifies the kind of content an inventory vector refers
// to, mirroring libcoin's MSG_TX / MSG_BLOCK enum with the additional
// filtered-block kind added for bloom-filtered relay.
type InvType uint32

// Recognized inventory kinds. Any other value is tolerated by decode
// but fails IsKnownType.
const (
	InvTypeError         InvType = 0
	InvTypeTx            InvType = 1
	InvTypeBlock         InvType = 2
	InvTypeFilteredBlock InvType = 3
)

var invTypeCommand = map[InvType]string{
	InvTypeTx:            CmdTx,
	InvTypeBlock:         CmdBlock,
	InvTypeFilteredBlock: CmdMerkleBlock,
}

// IsKnownType reports whether t is one of the enumerated inventory
// kinds.
func (t InvType) IsKnownType() bool {
	_, ok := invTypeCommand[t]
	return ok
}

// Command returns the wire command used to carry an item of this
// inventory kind in response to a getdata.
func (t InvType) Command() string {
	return invTypeCommand[t]
}

func (t InvType) String() string {
	switch t {
	case InvTypeTx:
		return "tx"
	case InvTypeBlock:
		return "block"
	case InvTypeFilteredBlock:
		return "filtered-block"
	default:
		return "error"
	}
}

// Hash is a 256-bit content hash (double-SHA256 of a block header or
// full transaction body).
type Hash [32]byte

// Compare implements a strict total order on hashes, comparing the
// usual (reversed/little-endian display) byte sequence directly.
func (h Hash) Compare(o Hash) int {
	return bytes.Compare(h[:], o[:])
}

// IsZero reports whether h is the all-zero hash, used as the
// "no parent" / "no stop hash" sentinel.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// InvVect is a typed content identifier: (kind, hash). InvVect values
// form a strict total order on (kind, hash) (Less). InvVect is the key
// of the peer manager's priority map and of each peer's known-inventory
// set; the orphan pool is keyed by plain Hash.
type InvVect struct {
	Type InvType
	Hash Hash
}

// Less implements the (kind, hash) total order from spec §3.
func (a InvVect) Less(b InvVect) bool {
	if a.Type != b.Type {
		return a.Type < b.Type
	}
	return a.Hash.Compare(b.Hash) < 0
}

// DecodeBinary reads an InvVect: a 4-byte little-endian type followed
// by a 32-byte hash.
func (a *InvVect) DecodeBinary(r *BinReader) {
	var typ uint32
	r.ReadLE(&typ)
	a.Type = InvType(typ)
	r.ReadBytes(a.Hash[:])
}

// EncodeBinary writes an InvVect in the wire format.
func (a *InvVect) EncodeBinary(w *BinWriter) {
	w.WriteLE(uint32(a.Type))
	w.WriteBytes(a.Hash[:])
}
