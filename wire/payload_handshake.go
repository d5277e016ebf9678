package wire

// NetAddr is a network address with the services bitfield and a
// last-seen timestamp, as relayed in addr/getaddr and embedded in the
// version handshake. Grounded on the teacher's
// payload.AddressAndTime (pkg/network/payload/address.go), adapted
// from NEO's fixed 16-byte IPv6-mapped address to the same layout
// Bitcoin uses.
type NetAddr struct {
	Timestamp uint32
	Services  uint64
	IP        [16]byte
	Port      uint16
}

// DecodeBinary reads a NetAddr.
func (a *NetAddr) DecodeBinary(r *BinReader) {
	r.ReadLE(&a.Timestamp)
	r.ReadLE(&a.Services)
	r.ReadBytes(a.IP[:])
	r.ReadBE(&a.Port)
}

// EncodeBinary writes a NetAddr.
func (a *NetAddr) EncodeBinary(w *BinWriter) {
	w.WriteLE(a.Timestamp)
	w.WriteLE(a.Services)
	w.WriteBytes(a.IP[:])
	w.WriteBE(a.Port)
}

// VersionPayload is the handshake payload carried by the version
// command (spec §4.4).
type VersionPayload struct {
	ProtocolVersion int32
	Services        uint64
	Timestamp       int64
	AddrRecv        NetAddr
	AddrFrom        NetAddr
	Nonce           uint64
	UserAgent       string
	StartHeight     int32
	Relay           bool
}

// DecodeBinary reads a VersionPayload.
func (v *VersionPayload) DecodeBinary(r *BinReader) {
	r.ReadLE(&v.ProtocolVersion)
	r.ReadLE(&v.Services)
	r.ReadLE(&v.Timestamp)
	v.AddrRecv.DecodeBinary(r)
	v.AddrFrom.DecodeBinary(r)
	r.ReadLE(&v.Nonce)
	v.UserAgent = r.ReadString()
	r.ReadLE(&v.StartHeight)
	v.Relay = r.ReadB() != 0
}

// EncodeBinary writes a VersionPayload.
func (v *VersionPayload) EncodeBinary(w *BinWriter) {
	w.WriteLE(v.ProtocolVersion)
	w.WriteLE(v.Services)
	w.WriteLE(v.Timestamp)
	v.AddrRecv.EncodeBinary(w)
	v.AddrFrom.EncodeBinary(w)
	w.WriteLE(v.Nonce)
	w.WriteString(v.UserAgent)
	w.WriteLE(v.StartHeight)
	if v.Relay {
		w.WriteB(1)
	} else {
		w.WriteB(0)
	}
}

// AddrPayload carries a bounded list of NetAddr entries (spec §4.5
// caps this at 1000 on both send and receive).
type AddrPayload struct {
	Addrs []NetAddr
}

// DecodeBinary reads an AddrPayload.
func (p *AddrPayload) DecodeBinary(r *BinReader) {
	n := r.ReadVarUint()
	p.Addrs = make([]NetAddr, n)
	for i := range p.Addrs {
		p.Addrs[i].DecodeBinary(r)
	}
}

// EncodeBinary writes an AddrPayload.
func (p *AddrPayload) EncodeBinary(w *BinWriter) {
	w.WriteVarUint(uint64(len(p.Addrs)))
	for i := range p.Addrs {
		p.Addrs[i].EncodeBinary(w)
	}
}

// PingPayload carries a nonce echoed back in a pong, used to track
// peer liveness and estimate round-trip latency.
type PingPayload struct {
	Nonce uint64
}

// DecodeBinary reads a PingPayload.
func (p *PingPayload) DecodeBinary(r *BinReader) { r.ReadLE(&p.Nonce) }

// EncodeBinary writes a PingPayload.
func (p *PingPayload) EncodeBinary(w *BinWriter) { w.WriteLE(p.Nonce) }
