// Package node wires the framing codec, peer sessions, filter chain,
// verifier pool, and chain store together into a running full node.
// Grounded on the teacher's pkg/network.Server composition (transport
// plus chain plus a registered set of command handlers), generalized
// from the teacher's single monolithic handleMessage switch to this
// repository's filter-chain dispatch.
package node

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/libcoin/libcoin-sub003/chainstore"
	"github.com/libcoin/libcoin-sub003/config"
	"github.com/libcoin/libcoin-sub003/filter"
	"github.com/libcoin/libcoin-sub003/peer"
	"github.com/libcoin/libcoin-sub003/verify"
	"github.com/libcoin/libcoin-sub003/wire"
)

// Node owns every long-lived collaborator: the listener, the peer
// manager, the filter chain, the verifier pool, and the chain store.
type Node struct {
	cfg   *config.NodeConfig
	log   *zap.Logger
	nonce uint64

	manager     *peer.Manager
	chain       *chainstore.Blockchain
	store       chainstore.Store
	chainFn     func() int32
	addrs       *AddrBook
	verify      *verify.Pool
	filters     *filter.Chain
	blockFilter *filter.Block

	listener net.Listener

	wg   sync.WaitGroup
	quit chan struct{}
}

// New assembles a Node from cfg and genesis but does not yet start
// listening or dialing.
func New(cfg *config.NodeConfig, genesis *wire.Block, log *zap.Logger) (*Node, error) {
	store, err := openStore(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("opening chain store: %w", err)
	}
	chain, err := chainstore.NewBlockchain(store, genesis, log)
	if err != nil {
		return nil, fmt.Errorf("initializing chain: %w", err)
	}

	manager := peer.NewManager(0, log)
	addrs := NewAddrBook()
	verifier := verify.NewPool(VerifySignature, cfg.Protocol.VerifierWorkers, log)
	chain.SetVerifier(verifier)

	n := &Node{
		cfg:     cfg,
		log:     log,
		nonce:   rand.Uint64(),
		manager: manager,
		chain:   chain,
		store:   store,
		addrs:   addrs,
		verify:  verifier,
		quit:    make(chan struct{}),
	}
	n.chainFn = chain.BestHeight
	n.filters = n.buildFilterChain()
	return n, nil
}

func openStore(cfg config.StoreConfig) (chainstore.Store, error) {
	switch cfg.Type {
	case "", "memory":
		return chainstore.NewMemoryStore(), nil
	case "leveldb":
		return chainstore.NewLevelDBStore(chainstore.LevelDBOptions{DataDirectoryPath: cfg.DataDirectoryPath})
	default:
		return nil, fmt.Errorf("unknown store type %q", cfg.Type)
	}
}

// buildFilterChain installs every filter in the order spec §4.11
// requires: handshake first, then gossip, relay, sync, and bloom
// filtering last since it depends on a session already being ready.
func (n *Node) buildFilterChain() *filter.Chain {
	chain := filter.NewChain(n.log)

	chain.Install(&filter.Version{
		SelfNonce:       n.nonce,
		ProtocolVersion: n.cfg.Protocol.ProtocolVersion,
		Services:        n.cfg.Protocol.Services,
		UserAgent:       n.cfg.Protocol.UserAgent,
		StartHeight:     n.chainFn,
		Chain:           n.chain,
		Manager:         n.manager,
		Log:             n.log,
	})
	chain.Install(&filter.Endpoint{
		Pool:    n.addrs,
		Manager: n.manager,
		Log:     n.log,
	})
	if n.cfg.Protocol.RelayAlertPublicKey != "" {
		chain.Install(filter.NewAlert([]byte(n.cfg.Protocol.RelayAlertPublicKey), n.manager, n.log))
	}
	n.blockFilter = filter.NewBlock(n.chain, n.manager, n.log)
	chain.Install(n.blockFilter)
	chain.Install(filter.NewBloom(n.log))

	return chain
}

// retrySweepInterval is how often outstanding getdata requests are
// checked for having exceeded the peer manager's retry delay. It is
// deliberately shorter than peer.DefaultRetryDelay so an overdue item
// is retried promptly rather than waiting for the next inv.
const retrySweepInterval = 30 * time.Second

func (n *Node) runRetrySweeper() {
	defer n.wg.Done()
	ticker := time.NewTicker(retrySweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			n.blockFilter.SweepRetries()
		case <-n.quit:
			return
		}
	}
}

// Listen opens the node's inbound listener without yet accepting
// connections; Run both accepts and dials seeds.
func (n *Node) Listen() error {
	l, err := net.Listen("tcp", n.cfg.Protocol.ListenAddress)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", n.cfg.Protocol.ListenAddress, err)
	}
	n.listener = l
	return nil
}

// Run accepts inbound connections and dials the configured seed list
// until ctx is cancelled or Shutdown is called.
func (n *Node) Run(ctx context.Context) {
	if n.listener != nil {
		n.wg.Add(1)
		go n.acceptLoop()
	}

	n.wg.Add(1)
	go n.runRetrySweeper()

	for _, seed := range n.cfg.Protocol.SeedList {
		seed := seed
		n.wg.Add(1)
		go n.dial(ctx, seed)
	}

	<-ctx.Done()
	n.Shutdown()
}

func (n *Node) acceptLoop() {
	defer n.wg.Done()
	for {
		conn, err := n.listener.Accept()
		if err != nil {
			select {
			case <-n.quit:
				return
			default:
				n.log.Warn("accept failed", zap.Error(err))
				return
			}
		}
		if n.manager.NumInbound() >= n.cfg.Protocol.MaxInboundPeers {
			conn.Close()
			continue
		}
		n.registerConn(conn, true)
	}
}

func (n *Node) dial(ctx context.Context, addr string) {
	defer n.wg.Done()
	select {
	case <-ctx.Done():
		return
	case <-n.quit:
		return
	default:
	}
	if n.manager.NumOutbound() >= n.cfg.Protocol.MaxOutboundPeers {
		return
	}
	conn, err := net.DialTimeout("tcp", addr, 10*time.Second)
	if err != nil {
		n.log.Debug("dial failed", zap.String("addr", addr), zap.Error(err))
		return
	}
	n.registerConn(conn, false)
}

func (n *Node) registerConn(conn net.Conn, inbound bool) {
	p := peer.NewPeer(conn, n.manager, inbound, peer.Config{
		Magic:             wire.Magic(n.cfg.Protocol.Magic),
		MaxPayload:        wire.DefaultMaxPayload,
		HandshakeTimeout:  30 * time.Second,
		InactivityTimeout: 20 * time.Minute,
	}, n.filters.AsHandler(), n.log)
	n.manager.Start(p)

	if !inbound {
		v := &filter.Version{
			SelfNonce:       n.nonce,
			ProtocolVersion: n.cfg.Protocol.ProtocolVersion,
			Services:        n.cfg.Protocol.Services,
			UserAgent:       n.cfg.Protocol.UserAgent,
			StartHeight:     n.chainFn,
		}
		if err := v.SendVersion(p); err != nil {
			n.log.Debug("failed to send version", zap.Error(err))
		}
	}
}

// Shutdown stops every active session and closes the chain store.
func (n *Node) Shutdown() {
	select {
	case <-n.quit:
		return
	default:
		close(n.quit)
	}
	if n.listener != nil {
		n.listener.Close()
	}
	for _, p := range n.manager.Peers() {
		n.manager.Stop(p)
	}
	n.verify.Close()
	if err := n.store.Close(); err != nil {
		n.log.Warn("closing chain store", zap.Error(err))
	}
	n.wg.Wait()
}

// Manager exposes the peer manager for diagnostics and tests.
func (n *Node) Manager() *peer.Manager { return n.manager }

// Chain exposes the block-chain collaborator for diagnostics and tests.
func (n *Node) Chain() *chainstore.Blockchain { return n.chain }
