package wire

// Alert is the signed, broadcastable notice relayed by filter.Alert
// (spec §4.7). The wire format separates the signed payload bytes
// from the ECDSA signature over them so verification does not require
// re-encoding.
type Alert struct {
	Payload   []byte
	Signature []byte
}

// DecodeBinary reads an Alert envelope.
func (a *Alert) DecodeBinary(r *BinReader) {
	a.Payload = r.ReadVarBytes()
	a.Signature = r.ReadVarBytes()
}

// EncodeBinary writes an Alert envelope.
func (a *Alert) EncodeBinary(w *BinWriter) {
	w.WriteVarBytes(a.Payload)
	w.WriteVarBytes(a.Signature)
}

// AlertPayload is the signed content of an Alert: expiry, the
// applies-to version range, an id used for the cancel set, priority,
// and operator-facing status text. Supplemented from
// original_source/ (libcoin's Alert carries cancel/priority/status
// fields the distilled spec only summarizes as "parse the signed
// payload").
type AlertPayload struct {
	Version     int32
	RelayUntil  int64
	Expiration  int64
	ID          int32
	Cancel      int32
	SetCancel   []int32
	MinVer      int32
	MaxVer      int32
	SetSubVer   []string
	Priority    int32
	Comment     string
	StatusBar   string
	Reserved    string
}

// DecodeBinary reads an AlertPayload.
func (p *AlertPayload) DecodeBinary(r *BinReader) {
	r.ReadLE(&p.Version)
	r.ReadLE(&p.RelayUntil)
	r.ReadLE(&p.Expiration)
	r.ReadLE(&p.ID)
	r.ReadLE(&p.Cancel)
	n := r.ReadVarUint()
	p.SetCancel = make([]int32, n)
	for i := range p.SetCancel {
		r.ReadLE(&p.SetCancel[i])
	}
	r.ReadLE(&p.MinVer)
	r.ReadLE(&p.MaxVer)
	m := r.ReadVarUint()
	p.SetSubVer = make([]string, m)
	for i := range p.SetSubVer {
		p.SetSubVer[i] = r.ReadString()
	}
	r.ReadLE(&p.Priority)
	p.Comment = r.ReadString()
	p.StatusBar = r.ReadString()
	p.Reserved = r.ReadString()
}

// EncodeBinary writes an AlertPayload.
func (p *AlertPayload) EncodeBinary(w *BinWriter) {
	w.WriteLE(p.Version)
	w.WriteLE(p.RelayUntil)
	w.WriteLE(p.Expiration)
	w.WriteLE(p.ID)
	w.WriteLE(p.Cancel)
	w.WriteVarUint(uint64(len(p.SetCancel)))
	for _, c := range p.SetCancel {
		w.WriteLE(c)
	}
	w.WriteLE(p.MinVer)
	w.WriteLE(p.MaxVer)
	w.WriteVarUint(uint64(len(p.SetSubVer)))
	for _, s := range p.SetSubVer {
		w.WriteString(s)
	}
	w.WriteLE(p.Priority)
	w.WriteString(p.Comment)
	w.WriteString(p.StatusBar)
	w.WriteString(p.Reserved)
}

// AppliesTo reports whether the alert's version range covers peerVersion.
func (p *AlertPayload) AppliesTo(peerVersion int32) bool {
	return peerVersion >= p.MinVer && peerVersion <= p.MaxVer
}
