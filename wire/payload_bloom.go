package wire

// Bounds on bloom-filter payloads enforced by filter.Bloom (spec
// §4.8).
const (
	MaxFilterBytes  = 36000
	MaxFilterHashes = 50
	MaxFilterAddData = 520
)

// BloomFlag controls how the recipient should update a filter after a
// matching output is found.
type BloomFlag byte

// Recognized filter update flags.
const (
	BloomUpdateNone      BloomFlag = 0
	BloomUpdateAll       BloomFlag = 1
	BloomUpdateP2PubkeyOnly BloomFlag = 2
)

// FilterLoadPayload replaces a peer's bloom filter.
type FilterLoadPayload struct {
	Filter    []byte
	HashFuncs uint32
	Tweak     uint32
	Flags     BloomFlag
}

// DecodeBinary reads a FilterLoadPayload.
func (p *FilterLoadPayload) DecodeBinary(r *BinReader) {
	p.Filter = r.ReadVarBytes()
	r.ReadLE(&p.HashFuncs)
	r.ReadLE(&p.Tweak)
	p.Flags = BloomFlag(r.ReadB())
}

// EncodeBinary writes a FilterLoadPayload.
func (p *FilterLoadPayload) EncodeBinary(w *BinWriter) {
	w.WriteVarBytes(p.Filter)
	w.WriteLE(p.HashFuncs)
	w.WriteLE(p.Tweak)
	w.WriteB(byte(p.Flags))
}

// FilterAddPayload appends one data element to a peer's bloom filter.
type FilterAddPayload struct {
	Data []byte
}

// DecodeBinary reads a FilterAddPayload.
func (p *FilterAddPayload) DecodeBinary(r *BinReader) { p.Data = r.ReadVarBytes() }

// EncodeBinary writes a FilterAddPayload.
func (p *FilterAddPayload) EncodeBinary(w *BinWriter) { w.WriteVarBytes(p.Data) }
