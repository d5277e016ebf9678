// Package peer implements the per-connection session state machine
// and the manager that owns the set of active sessions (spec §4.2,
// §4.9).
package peer

import (
	"errors"
	"net"
	"sync"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/libcoin/libcoin-sub003/bloomfilter"
	"github.com/libcoin/libcoin-sub003/wire"
)

// State is a peer session's position in its handshake/ready/closing
// lifecycle (spec §4.2).
type State int32

// Session lifecycle states.
const (
	StateHandshaking State = iota
	StateReady
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateHandshaking:
		return "handshaking"
	case StateReady:
		return "ready"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// ErrSessionClosed is returned by PushMessage once a session has
// begun closing.
var ErrSessionClosed = errors.New("peer: session closed")

// sendQueueSize bounds the outgoing message queue; a slow peer applies
// backpressure to its own writer goroutine rather than to the rest of
// the node.
const sendQueueSize = 200

// Config carries the tunables a Peer needs at construction, set once
// by the node from its own configuration.
type Config struct {
	Magic             wire.Magic
	MaxPayload        uint32
	HandshakeTimeout  time.Duration
	InactivityTimeout time.Duration
	KnownInvCapacity  int
}

// Handler is invoked once per decoded message, with a fresh copy of
// the payload, by the session's read loop. It is the filter chain's
// dispatch, passed to NewPeer by the node, so that peer sessions stay
// filter-agnostic, mirroring libcoin's split between Peer and
// MessageHandler.
type Handler func(p *Peer, msg *wire.Message) error

// Peer is one peer-to-peer connection: its negotiated state, codec,
// send queue, and bookkeeping the filters consult and mutate.
// Grounded on the teacher's network.Peer/network.TCPPeer split and on
// the inHandler/outHandler/queueHandler goroutine layout used by the
// pack's bmd peer.go.
type Peer struct {
	conn    net.Conn
	manager *Manager
	cfg     Config
	log     *zap.Logger
	inbound bool

	onMessage Handler

	mu          sync.RWMutex
	state       State
	version     int32
	userAgent   string
	services    uint64
	startHeight int32
	nonce       uint64

	relayTxes atomic.Bool
	filter    *bloomfilter.Filter

	known *knownInventory

	sendCh chan []byte
	quit   chan struct{}
	closed atomic.Bool

	lastRecv atomic.Int64
	lastSend atomic.Int64
}

// NewPeer wraps conn as a new session. The session is not yet reading
// or writing until Start is called.
func NewPeer(conn net.Conn, manager *Manager, inbound bool, cfg Config, onMessage Handler, log *zap.Logger) *Peer {
	if cfg.KnownInvCapacity == 0 {
		cfg.KnownInvCapacity = 1000
	}
	p := &Peer{
		conn:      conn,
		manager:   manager,
		cfg:       cfg,
		log:       log,
		inbound:   inbound,
		onMessage: onMessage,
		state:     StateHandshaking,
		filter:    bloomfilter.Empty(),
		known:     newKnownInventory(cfg.KnownInvCapacity),
		sendCh:    make(chan []byte, sendQueueSize),
		quit:      make(chan struct{}),
	}
	p.relayTxes.Store(true)
	now := time.Now().Unix()
	p.lastRecv.Store(now)
	p.lastSend.Store(now)
	return p
}

// Start launches the read and write loops. Idempotent only in the
// sense that calling it twice starts two sets of loops; callers must
// not do that (mirrors the teacher's single-call Start contract).
func (p *Peer) Start() {
	go p.readLoop()
	go p.writeLoop()
}

// Stop closes the session. Safe to call more than once and from any
// goroutine.
func (p *Peer) Stop() {
	if !p.closed.CAS(false, true) {
		return
	}
	p.setState(StateClosing)
	close(p.quit)
	p.conn.Close()
}

// PushMessage frames command/payload and enqueues it for sending,
// preserving call order (spec §4.2's at-most-once, in-order send
// guarantee).
func (p *Peer) PushMessage(command string, payload []byte) error {
	if p.closed.Load() {
		return ErrSessionClosed
	}
	frame := wire.Encode(p.cfg.Magic, command, payload)
	select {
	case p.sendCh <- frame:
		return nil
	case <-p.quit:
		return ErrSessionClosed
	}
}

func (p *Peer) readLoop() {
	defer p.Stop()

	codec := wire.NewCodec(p.cfg.Magic, p.cfg.MaxPayload)
	buf := make([]byte, 4096)

	deadline := p.handshakeDeadline()
	for {
		if err := p.conn.SetReadDeadline(deadline); err != nil {
			return
		}
		n, err := p.conn.Read(buf)
		if err != nil {
			return
		}
		p.markActivity()

		offset := 0
		for offset < n {
			var msg wire.Message
			status, consumed := codec.Parse(buf[offset:n], &msg)
			offset += consumed
			switch status {
			case wire.OK:
				if err := p.dispatch(&msg); err != nil {
					p.log.Debug("peer: closing after dispatch error",
						zap.String("remote", p.conn.RemoteAddr().String()),
						zap.Error(err))
					return
				}
			case wire.Error:
				p.log.Debug("peer: framing error, closing session",
					zap.String("remote", p.conn.RemoteAddr().String()))
				return
			case wire.Incomplete:
				// keep accumulating
			}
		}

		if p.State() == StateHandshaking {
			deadline = p.handshakeDeadline()
		} else {
			deadline = time.Now().Add(p.cfg.InactivityTimeout)
		}
	}
}

func (p *Peer) dispatch(msg *wire.Message) error {
	if p.onMessage == nil {
		return nil
	}
	return p.onMessage(p, msg)
}

func (p *Peer) writeLoop() {
	for {
		select {
		case frame := <-p.sendCh:
			if err := p.writeFrame(frame); err != nil {
				p.Stop()
				return
			}
			p.markActivity()
		case <-p.quit:
			return
		}
	}
}

func (p *Peer) writeFrame(frame []byte) error {
	_, err := p.conn.Write(frame)
	return err
}

func (p *Peer) handshakeDeadline() time.Time {
	timeout := p.cfg.HandshakeTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return time.Now().Add(timeout)
}

func (p *Peer) markActivity() {
	p.lastRecv.Store(time.Now().Unix())
}

// LastActivity returns the unix timestamp of the last successful read
// or write on this session.
func (p *Peer) LastActivity() time.Time {
	return time.Unix(p.lastRecv.Load(), 0)
}

// Idle reports whether the session has been silent longer than d.
func (p *Peer) Idle(d time.Duration) bool {
	return time.Since(p.LastActivity()) > d
}

func (p *Peer) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

// State returns the session's current lifecycle state.
func (p *Peer) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// MarkReady transitions the session from handshaking to ready once
// both sides have exchanged version/verack.
func (p *Peer) MarkReady() {
	p.setState(StateReady)
}

// SetVersion records the negotiated protocol version and the peer's
// advertised identity, called by filter.Version on receipt of a
// version message.
func (p *Peer) SetVersion(v *wire.VersionPayload, negotiated int32) {
	p.mu.Lock()
	p.version = negotiated
	p.userAgent = v.UserAgent
	p.services = v.Services
	p.startHeight = v.StartHeight
	p.nonce = v.Nonce
	p.mu.Unlock()
	p.relayTxes.Store(v.Relay)
}

// Version returns the negotiated protocol version, or 0 before a
// version message has been received.
func (p *Peer) Version() int32 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.version
}

// SubVersion returns the peer's advertised user-agent string.
func (p *Peer) SubVersion() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.userAgent
}

// Services returns the peer's advertised services bitfield.
func (p *Peer) Services() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.services
}

// Nonce returns the nonce the peer announced in its version message.
func (p *Peer) Nonce() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.nonce
}

// StartingHeight returns the chain height the peer advertised at
// handshake time.
func (p *Peer) StartingHeight() int32 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.startHeight
}

// Addr returns the peer's remote network address.
func (p *Peer) Addr() net.Addr {
	return p.conn.RemoteAddr()
}

// Inbound reports whether this session originated from an accepted
// connection rather than an outbound dial.
func (p *Peer) Inbound() bool {
	return p.inbound
}

// RelayTxes reports whether the peer wants unsolicited transaction
// relay (taken from the version message's relay flag; filterload and
// filterclear set it back to true, per BIP37).
func (p *Peer) RelayTxes() bool {
	return p.relayTxes.Load()
}

// SetRelayTxes updates the relay preference, used by filter.Bloom's
// filterclear handler to re-enable full relay.
func (p *Peer) SetRelayTxes(v bool) {
	p.relayTxes.Store(v)
}

// Filter returns the peer's active bloom filter (never nil; empty by
// default).
func (p *Peer) Filter() *bloomfilter.Filter {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.filter
}

// SetFilter installs a new bloom filter, replacing any previous one.
func (p *Peer) SetFilter(f *bloomfilter.Filter) {
	p.mu.Lock()
	p.filter = f
	p.mu.Unlock()
}

// KnownInventory returns the session's known-inventory LRU set.
func (p *Peer) KnownInventory() *knownInventory {
	return p.known
}

// Manager returns the owning peer manager.
func (p *Peer) Manager() *Manager {
	return p.manager
}
