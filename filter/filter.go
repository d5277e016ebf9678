// Package filter implements the ordered chain of stateful message
// handlers that mutate peer and gossip state (spec §4.3) and the five
// concrete filters built on top of it (spec §§4.4-4.8).
package filter

import (
	"errors"

	"go.uber.org/zap"

	"github.com/libcoin/libcoin-sub003/peer"
	"github.com/libcoin/libcoin-sub003/wire"
)

// ErrOriginNotReady is raised by a filter when it receives a
// non-handshake message from a peer that has not yet sent version.
// The chain swallows it: the message is dropped, not treated as a
// session error (spec §4.3, §7).
var ErrOriginNotReady = errors.New("filter: origin has not completed handshake")

// ErrShortPayload marks a payload too short to decode its expected
// fields. Like ErrOriginNotReady it is swallowed by the chain and
// logged, defensive against malformed peers (spec §4.3, §7).
var ErrShortPayload = errors.New("filter: payload too short to decode")

// Filter is one stage in the chain: it declares the commands it
// consumes and is invoked with a private copy of the payload so
// filters cannot corrupt each other's view (spec §4.3).
type Filter interface {
	// Commands returns the set of message commands this filter
	// processes.
	Commands() []string
	// Apply processes msg from origin. The bool return is OR-combined
	// across every filter that matched the command; a non-nil error
	// other than ErrOriginNotReady/ErrShortPayload propagates to the
	// session, which closes the connection.
	Apply(origin *peer.Peer, msg *wire.Message) (bool, error)
}

// Chain dispatches decoded messages to every registered filter whose
// command set contains the message's command, in fixed registration
// order.
type Chain struct {
	filters   []Filter
	byCommand map[string][]Filter
	log       *zap.Logger
}

// NewChain returns an empty chain.
func NewChain(log *zap.Logger) *Chain {
	return &Chain{
		byCommand: make(map[string][]Filter),
		log:       log,
	}
}

// Install registers f at the end of the chain. Registration order is
// fixed: it determines dispatch order for commands multiple filters
// share (e.g. "version", consumed by both filter.Version and
// filter.Endpoint and filter.Alert).
func (c *Chain) Install(f Filter) {
	c.filters = append(c.filters, f)
	for _, cmd := range f.Commands() {
		c.byCommand[cmd] = append(c.byCommand[cmd], f)
	}
}

// Dispatch routes msg to every filter whose command set contains
// msg.Command(), each given its own copy of the payload. It returns
// true if any filter returned true. Origin-not-ready and short-read
// errors are logged and swallowed; any other error aborts dispatch
// and is returned to the caller (the peer session), which drops the
// connection (spec §4.3, §7).
func (c *Chain) Dispatch(origin *peer.Peer, msg *wire.Message) (bool, error) {
	matched := false
	for _, f := range c.byCommand[msg.Command()] {
		cp := &wire.Message{
			Header:  msg.Header,
			Payload: append([]byte(nil), msg.Payload...),
		}
		ok, err := f.Apply(origin, cp)
		if err != nil {
			if errors.Is(err, ErrOriginNotReady) || errors.Is(err, ErrShortPayload) {
				c.log.Debug("filter: dropping message",
					zap.String("command", msg.Command()),
					zap.Error(err))
				continue
			}
			return matched, err
		}
		if ok {
			matched = true
		}
	}
	return matched, nil
}

// AsHandler adapts the chain to the peer.Handler signature, so a
// node can wire it directly as a session's onMessage callback.
func (c *Chain) AsHandler() peer.Handler {
	return func(origin *peer.Peer, msg *wire.Message) error {
		_, err := c.Dispatch(origin, msg)
		return err
	}
}

// requireReady returns ErrOriginNotReady unless origin has completed
// the handshake. filter.Block and filter.Bloom call it; filter.Version,
// filter.Endpoint and filter.Alert do not.
func requireReady(origin *peer.Peer) error {
	if origin.State() != peer.StateReady {
		return ErrOriginNotReady
	}
	return nil
}

func decode(r *wire.BinReader, fn func(*wire.BinReader)) error {
	fn(r)
	if r.Err != nil {
		return ErrShortPayload
	}
	return nil
}
