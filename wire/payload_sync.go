package wire

import "crypto/sha256"

// BlockHeader is the canonical 80-byte block header: the only part of
// a block whose hash determines proof-of-work and chain linkage.
type BlockHeader struct {
	Version    int32
	PrevBlock  Hash
	MerkleRoot Hash
	Timestamp  uint32
	Bits       uint32
	Nonce      uint32
}

// DecodeBinary reads a BlockHeader.
func (h *BlockHeader) DecodeBinary(r *BinReader) {
	r.ReadLE(&h.Version)
	r.ReadBytes(h.PrevBlock[:])
	r.ReadBytes(h.MerkleRoot[:])
	r.ReadLE(&h.Timestamp)
	r.ReadLE(&h.Bits)
	r.ReadLE(&h.Nonce)
}

// EncodeBinary writes a BlockHeader.
func (h *BlockHeader) EncodeBinary(w *BinWriter) {
	w.WriteLE(h.Version)
	w.WriteBytes(h.PrevBlock[:])
	w.WriteBytes(h.MerkleRoot[:])
	w.WriteLE(h.Timestamp)
	w.WriteLE(h.Bits)
	w.WriteLE(h.Nonce)
}

// Bytes serializes the header to its canonical 80-byte form.
func (h *BlockHeader) Bytes() []byte {
	w := NewBufBinWriter()
	h.EncodeBinary(w.BinWriter)
	return w.Bytes()
}

// Hash returns the double-SHA256 of the canonical header
// serialization (spec §6).
func (h *BlockHeader) Hash() Hash {
	first := sha256.Sum256(h.Bytes())
	second := sha256.Sum256(first[:])
	return Hash(second)
}

// OutPoint identifies a previous transaction output being spent.
type OutPoint struct {
	Hash  Hash
	Index uint32
}

// TxIn is one input of a transaction.
type TxIn struct {
	PrevOut         OutPoint
	SignatureScript []byte
	Sequence        uint32
}

// TxOut is one output of a transaction.
type TxOut struct {
	Value    int64
	PkScript []byte
}

// Tx is a full canonical transaction body (spec §6).
type Tx struct {
	Version  int32
	TxIn     []*TxIn
	TxOut    []*TxOut
	LockTime uint32
}

// DecodeBinary reads a Tx.
func (t *Tx) DecodeBinary(r *BinReader) {
	r.ReadLE(&t.Version)
	nIn := r.ReadVarUint()
	t.TxIn = make([]*TxIn, nIn)
	for i := range t.TxIn {
		in := &TxIn{}
		r.ReadBytes(in.PrevOut.Hash[:])
		r.ReadLE(&in.PrevOut.Index)
		in.SignatureScript = r.ReadVarBytes()
		r.ReadLE(&in.Sequence)
		t.TxIn[i] = in
	}
	nOut := r.ReadVarUint()
	t.TxOut = make([]*TxOut, nOut)
	for i := range t.TxOut {
		out := &TxOut{}
		r.ReadLE(&out.Value)
		out.PkScript = r.ReadVarBytes()
		t.TxOut[i] = out
	}
	r.ReadLE(&t.LockTime)
}

// EncodeBinary writes a Tx.
func (t *Tx) EncodeBinary(w *BinWriter) {
	w.WriteLE(t.Version)
	w.WriteVarUint(uint64(len(t.TxIn)))
	for _, in := range t.TxIn {
		w.WriteBytes(in.PrevOut.Hash[:])
		w.WriteLE(in.PrevOut.Index)
		w.WriteVarBytes(in.SignatureScript)
		w.WriteLE(in.Sequence)
	}
	w.WriteVarUint(uint64(len(t.TxOut)))
	for _, out := range t.TxOut {
		w.WriteLE(out.Value)
		w.WriteVarBytes(out.PkScript)
	}
	w.WriteLE(t.LockTime)
}

// Bytes serializes the transaction to its canonical form.
func (t *Tx) Bytes() []byte {
	w := NewBufBinWriter()
	t.EncodeBinary(w.BinWriter)
	return w.Bytes()
}

// Hash returns the double-SHA256 of the canonical transaction body
// (spec §6).
func (t *Tx) Hash() Hash {
	first := sha256.Sum256(t.Bytes())
	second := sha256.Sum256(first[:])
	return Hash(second)
}

// Block is a full block: header plus its transactions.
type Block struct {
	Header       BlockHeader
	Transactions []*Tx
}

// DecodeBinary reads a Block.
func (b *Block) DecodeBinary(r *BinReader) {
	b.Header.DecodeBinary(r)
	n := r.ReadVarUint()
	b.Transactions = make([]*Tx, n)
	for i := range b.Transactions {
		tx := &Tx{}
		tx.DecodeBinary(r)
		b.Transactions[i] = tx
	}
}

// EncodeBinary writes a Block.
func (b *Block) EncodeBinary(w *BinWriter) {
	b.Header.EncodeBinary(w)
	w.WriteVarUint(uint64(len(b.Transactions)))
	for _, tx := range b.Transactions {
		tx.EncodeBinary(w)
	}
}

// Hash returns the block's identifying hash: its header hash.
func (b *Block) Hash() Hash {
	return b.Header.Hash()
}

// InvPayload carries a list of inventory vectors, used for inv,
// getdata, and notfound.
type InvPayload struct {
	Items []InvVect
}

// DecodeBinary reads an InvPayload.
func (p *InvPayload) DecodeBinary(r *BinReader) {
	n := r.ReadVarUint()
	p.Items = make([]InvVect, n)
	for i := range p.Items {
		p.Items[i].DecodeBinary(r)
	}
}

// EncodeBinary writes an InvPayload.
func (p *InvPayload) EncodeBinary(w *BinWriter) {
	w.WriteVarUint(uint64(len(p.Items)))
	for i := range p.Items {
		p.Items[i].EncodeBinary(w)
	}
}

// LocatorPayload is the block-locator request shared by getblocks and
// getheaders: a geometrically-spaced list of known hashes plus an
// optional stop hash.
type LocatorPayload struct {
	ProtocolVersion uint32
	Locator         []Hash
	StopHash        Hash
}

// DecodeBinary reads a LocatorPayload.
func (p *LocatorPayload) DecodeBinary(r *BinReader) {
	r.ReadLE(&p.ProtocolVersion)
	n := r.ReadVarUint()
	p.Locator = make([]Hash, n)
	for i := range p.Locator {
		r.ReadBytes(p.Locator[i][:])
	}
	r.ReadBytes(p.StopHash[:])
}

// EncodeBinary writes a LocatorPayload.
func (p *LocatorPayload) EncodeBinary(w *BinWriter) {
	w.WriteLE(p.ProtocolVersion)
	w.WriteVarUint(uint64(len(p.Locator)))
	for i := range p.Locator {
		w.WriteBytes(p.Locator[i][:])
	}
	w.WriteBytes(p.StopHash[:])
}

// HeadersPayload carries up to 2000 block headers in response to
// getheaders.
type HeadersPayload struct {
	Headers []BlockHeader
}

// DecodeBinary reads a HeadersPayload. Each header is followed by a
// CompactSize transaction count that is always zero on the wire.
func (p *HeadersPayload) DecodeBinary(r *BinReader) {
	n := r.ReadVarUint()
	p.Headers = make([]BlockHeader, n)
	for i := range p.Headers {
		p.Headers[i].DecodeBinary(r)
		_ = r.ReadVarUint() // txn_count, always 0 for headers-only relay
	}
}

// EncodeBinary writes a HeadersPayload.
func (p *HeadersPayload) EncodeBinary(w *BinWriter) {
	w.WriteVarUint(uint64(len(p.Headers)))
	for i := range p.Headers {
		p.Headers[i].EncodeBinary(w)
		w.WriteVarUint(0)
	}
}
