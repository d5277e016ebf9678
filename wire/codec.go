package wire

import "encoding/binary"

// Status is the three-valued result of feeding a byte (or a buffer) to
// the codec, replacing the original parser's boost::tribool with an
// explicit result kind per spec §9's "tribool-returning parser" note.
type Status int

const (
	// Incomplete means more bytes are needed before a decisive result
	// can be produced.
	Incomplete Status = iota
	// OK means a complete, valid Message was decoded.
	OK
	// Error means the stream is malformed (oversize length or bad
	// checksum) and the owning session must be closed.
	Error
)

// parseState is the codec's internal state machine, named after the
// original MessageParser states (start_1..start_4, command,
// messagesize, checksum, payload).
type parseState int

const (
	stateStart1 parseState = iota
	stateStart2
	stateStart3
	stateStart4
	stateCommand
	stateMessageSize
	stateChecksum
	statePayload
)

// magicBytes returns the little-endian byte encoding of a Magic, used
// to drive the self-synchronizing start_1..start_4 states.
func magicBytes(m Magic) [4]byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(m))
	return b
}

// Codec is the incremental, byte-wise parser that recovers discrete
// Messages from a peer's byte stream. It self-synchronizes: any byte
// that does not extend a valid magic resets the parser to stateStart1
// rather than failing the whole connection, matching spec §4.1's
// resynchronization invariant. An oversize length or a bad checksum
// is reported as Error instead.
type Codec struct {
	magic      Magic
	maxPayload uint32

	state   parseState
	counter int

	magicBuf   [4]byte
	commandBuf [CommandSize]byte
	sizeBuf    [4]byte
	checksum   [4]byte

	needChecksum bool
	length       uint32
	payload      []byte

	header Header
}

// NewCodec returns a Codec bound to a chain's magic and the maximum
// accepted payload length (0 selects DefaultMaxPayload).
func NewCodec(magic Magic, maxPayload uint32) *Codec {
	if maxPayload == 0 {
		maxPayload = DefaultMaxPayload
	}
	c := &Codec{magic: magic, maxPayload: maxPayload}
	c.Reset()
	return c
}

// Reset restores the codec to its initial state (stateStart1),
// discarding any partially-parsed message.
func (c *Codec) Reset() {
	c.state = stateStart1
	c.counter = 0
	c.length = 0
	c.needChecksum = false
	c.payload = nil
	c.header = Header{}
}

// Consume advances the parser by one byte. It returns Incomplete until
// a full message has been read (OK) or the stream is provably invalid
// (Error).
func (c *Codec) Consume(b byte) Status {
	expected := magicBytes(c.magic)

	switch c.state {
	case stateStart1, stateStart2, stateStart3, stateStart4:
		idx := int(c.state - stateStart1)
		if b != expected[idx] {
			// Self-synchronize: this byte might itself be the
			// start of the magic, so re-test it at start_1
			// instead of unconditionally discarding it.
			c.state = stateStart1
			c.counter = 0
			if b == expected[0] {
				c.state = stateStart2
			}
			return Incomplete
		}
		c.magicBuf[idx] = b
		if c.state == stateStart4 {
			c.state = stateCommand
			c.counter = 0
		} else {
			c.state++
		}
		return Incomplete

	case stateCommand:
		c.commandBuf[c.counter] = b
		c.counter++
		if c.counter == CommandSize {
			c.header.Magic = c.magic
			c.header.Command = decodeCommand(c.commandBuf)
			c.state = stateMessageSize
			c.counter = 0
		}
		return Incomplete

	case stateMessageSize:
		c.sizeBuf[c.counter] = b
		c.counter++
		if c.counter == 4 {
			c.length = binary.LittleEndian.Uint32(c.sizeBuf[:])
			if c.length > c.maxPayload {
				c.Reset()
				return Error
			}
			c.header.Length = c.length
			c.needChecksum = needsChecksum(c.header.Command)
			c.counter = 0
			if c.needChecksum {
				c.state = stateChecksum
			} else {
				c.state = statePayload
				c.payload = make([]byte, 0, c.length)
				if c.length == 0 {
					return OK
				}
			}
		}
		return Incomplete

	case stateChecksum:
		c.checksum[c.counter] = b
		c.counter++
		if c.counter == 4 {
			c.header.Checksum = c.checksum
			c.state = statePayload
			c.counter = 0
			c.payload = make([]byte, 0, c.length)
			if c.length == 0 {
				if Checksum(c.payload) != c.header.Checksum {
					c.Reset()
					return Error
				}
				return OK
			}
		}
		return Incomplete

	case statePayload:
		c.payload = append(c.payload, b)
		if uint32(len(c.payload)) < c.length {
			return Incomplete
		}
		if c.needChecksum {
			sum := Checksum(c.payload)
			if sum != c.header.Checksum {
				c.Reset()
				return Error
			}
		}
		return OK

	default:
		c.Reset()
		return Error
	}
}

// Message returns the most recently completed message. Valid only
// immediately after Consume or Parse returned OK.
func (c *Codec) Message() *Message {
	payload := make([]byte, len(c.payload))
	copy(payload, c.payload)
	msg := &Message{Header: c.header, Payload: payload}
	return msg
}

// Parse drives Consume over buf until a decisive Status is reached (OK
// or Error), or the buffer is exhausted (Incomplete). It returns the
// number of bytes consumed from buf and, on OK, fills out.
func (c *Codec) Parse(buf []byte, out *Message) (Status, int) {
	for i, b := range buf {
		switch c.Consume(b) {
		case OK:
			*out = *c.Message()
			c.Reset()
			return OK, i + 1
		case Error:
			return Error, i + 1
		}
	}
	return Incomplete, len(buf)
}

// Encode serializes a message for the given command and payload,
// computing the length and (when required) the checksum.
func Encode(magic Magic, command string, payload []byte) []byte {
	w := NewBufBinWriter()
	w.WriteLE(uint32(magic))
	cmd := encodeCommand(command)
	w.WriteLE(cmd[:])
	w.WriteLE(uint32(len(payload)))
	if needsChecksum(command) {
		sum := Checksum(payload)
		w.WriteLE(sum[:])
	}
	w.WriteBytes(payload)
	return w.Bytes()
}
