package filter

import (
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/libcoin/libcoin-sub003/peer"
	"github.com/libcoin/libcoin-sub003/wire"
)

// AcceptStatus is the three-way result of submitting a block or
// transaction to the block-chain collaborator (spec §6).
type AcceptStatus int

// Recognized accept outcomes.
const (
	Accepted AcceptStatus = iota
	Orphan
	Invalid
)

// AcceptOutcome is returned by Blockchainer.AcceptBlock/AcceptTransaction.
type AcceptOutcome struct {
	Status AcceptStatus
	Reason string
}

// Blockchainer is the block-chain collaborator interface consumed by
// the block filter (spec §6): best-height/contains/get queries, the
// transactional accept path, the locator used to drive getblocks, and
// the forward-walk helpers getblocks/getheaders need to answer a
// locator request.
type Blockchainer interface {
	BestHeight() int32
	TotalBlocksEstimate() int32
	ContainsBlock(hash wire.Hash) bool
	ContainsTx(hash wire.Hash) bool
	GetBlock(hash wire.Hash) (*wire.Block, bool)
	GetTransaction(hash wire.Hash) (*wire.Tx, bool)
	AcceptBlock(b *wire.Block) AcceptOutcome
	AcceptTransaction(tx *wire.Tx) AcceptOutcome
	Locator() []wire.Hash
	BlocksAfterLocator(locator []wire.Hash, stop wire.Hash, limit int) []wire.Hash
	HeadersAfterLocator(locator []wire.Hash, stop wire.Hash, limit int) []wire.BlockHeader
}

const (
	defaultOrphanCapacity = 100
	maxInvPerGetBlocks    = 500
	maxHeadersPerReply    = 2000
)

// Block implements relay and synchronization of blocks and
// transactions: inv-driven fetch scheduling, getdata/getblocks/
// getheaders responses, and orphan-block handling with promotion
// (spec §4.6).
type Block struct {
	Chain   Blockchainer
	Manager *peer.Manager
	Orphans *orphanPool
	Log     *zap.Logger

	mu        sync.Mutex
	listeners []func(*wire.Block)
}

// NewBlock constructs a Block filter with its own orphan pool.
func NewBlock(chain Blockchainer, manager *peer.Manager, log *zap.Logger) *Block {
	return &Block{
		Chain:   chain,
		Manager: manager,
		Orphans: newOrphanPool(defaultOrphanCapacity),
		Log:     log,
	}
}

// Subscribe registers fn to be called, in registration order, with
// every block this filter accepts (directly or via orphan promotion).
// The filter never re-enters the listener list while notifying (spec
// §9).
func (f *Block) Subscribe(fn func(*wire.Block)) {
	f.mu.Lock()
	f.listeners = append(f.listeners, fn)
	f.mu.Unlock()
}

func (f *Block) notify(b *wire.Block) {
	f.mu.Lock()
	snapshot := make([]func(*wire.Block), len(f.listeners))
	copy(snapshot, f.listeners)
	f.mu.Unlock()
	for _, fn := range snapshot {
		fn(b)
	}
}

// Commands implements Filter.
func (f *Block) Commands() []string {
	return []string{wire.CmdBlock, wire.CmdTx, wire.CmdGetBlocks, wire.CmdGetHeaders, wire.CmdInv, wire.CmdGetData, wire.CmdVersion}
}

// Apply implements Filter.
func (f *Block) Apply(origin *peer.Peer, msg *wire.Message) (bool, error) {
	if msg.Command() == wire.CmdVersion {
		// Handshake-specific wiring (initial getblocks) lives in
		// filter.Version; nothing to do here yet.
		return false, nil
	}
	if err := requireReady(origin); err != nil {
		return false, err
	}
	switch msg.Command() {
	case wire.CmdInv:
		return f.handleInv(origin, msg)
	case wire.CmdGetData:
		return f.handleGetData(origin, msg)
	case wire.CmdGetBlocks:
		return f.handleGetBlocks(origin, msg)
	case wire.CmdGetHeaders:
		return f.handleGetHeaders(origin, msg)
	case wire.CmdBlock:
		return f.handleBlock(origin, msg)
	case wire.CmdTx:
		return f.handleTx(origin, msg)
	}
	return true, nil
}

func (f *Block) handleInv(origin *peer.Peer, msg *wire.Message) (bool, error) {
	var payload wire.InvPayload
	r := wire.NewBinReaderFromBuf(msg.Payload)
	payload.DecodeBinary(r)
	if r.Err != nil {
		return false, ErrShortPayload
	}

	var toRequest []wire.InvVect
	for _, item := range payload.Items {
		if f.known(item) {
			origin.KnownInventory().Add(item)
			continue
		}
		scheduled := f.Manager.Prioritize(item)
		if !scheduled.After(time.Now()) {
			toRequest = append(toRequest, item)
		}
	}
	if len(toRequest) == 0 {
		return true, nil
	}
	out := wire.InvPayload{Items: toRequest}
	w := wire.NewBufBinWriter()
	out.EncodeBinary(w.BinWriter)
	if w.Err != nil {
		return false, w.Err
	}
	if err := origin.PushMessage(wire.CmdGetData, w.Bytes()); err != nil {
		return false, err
	}
	return true, nil
}

func (f *Block) known(item wire.InvVect) bool {
	switch item.Type {
	case wire.InvTypeBlock, wire.InvTypeFilteredBlock:
		return f.Chain.ContainsBlock(item.Hash)
	case wire.InvTypeTx:
		return f.Chain.ContainsTx(item.Hash)
	}
	return false
}

func (f *Block) handleGetData(origin *peer.Peer, msg *wire.Message) (bool, error) {
	var payload wire.InvPayload
	r := wire.NewBinReaderFromBuf(msg.Payload)
	payload.DecodeBinary(r)
	if r.Err != nil {
		return false, ErrShortPayload
	}

	for _, item := range payload.Items {
		switch item.Type {
		case wire.InvTypeBlock, wire.InvTypeFilteredBlock:
			blk, ok := f.Chain.GetBlock(item.Hash)
			if !ok {
				continue
			}
			w := wire.NewBufBinWriter()
			blk.EncodeBinary(w.BinWriter)
			if w.Err != nil {
				return false, w.Err
			}
			if err := origin.PushMessage(wire.CmdBlock, w.Bytes()); err != nil {
				return false, err
			}
		case wire.InvTypeTx:
			tx, ok := f.Chain.GetTransaction(item.Hash)
			if !ok {
				continue
			}
			w := wire.NewBufBinWriter()
			tx.EncodeBinary(w.BinWriter)
			if w.Err != nil {
				return false, w.Err
			}
			if err := origin.PushMessage(wire.CmdTx, w.Bytes()); err != nil {
				return false, err
			}
		}
	}
	return true, nil
}

func (f *Block) handleGetBlocks(origin *peer.Peer, msg *wire.Message) (bool, error) {
	var locator wire.LocatorPayload
	r := wire.NewBinReaderFromBuf(msg.Payload)
	locator.DecodeBinary(r)
	if r.Err != nil {
		return false, ErrShortPayload
	}

	hashes := f.Chain.BlocksAfterLocator(locator.Locator, locator.StopHash, maxInvPerGetBlocks)
	items := make([]wire.InvVect, len(hashes))
	for i, h := range hashes {
		items[i] = wire.InvVect{Type: wire.InvTypeBlock, Hash: h}
	}
	out := wire.InvPayload{Items: items}
	w := wire.NewBufBinWriter()
	out.EncodeBinary(w.BinWriter)
	if w.Err != nil {
		return false, w.Err
	}
	if err := origin.PushMessage(wire.CmdInv, w.Bytes()); err != nil {
		return false, err
	}
	return true, nil
}

func (f *Block) handleGetHeaders(origin *peer.Peer, msg *wire.Message) (bool, error) {
	var locator wire.LocatorPayload
	r := wire.NewBinReaderFromBuf(msg.Payload)
	locator.DecodeBinary(r)
	if r.Err != nil {
		return false, ErrShortPayload
	}

	headers := f.Chain.HeadersAfterLocator(locator.Locator, locator.StopHash, maxHeadersPerReply)
	out := wire.HeadersPayload{Headers: headers}
	w := wire.NewBufBinWriter()
	out.EncodeBinary(w.BinWriter)
	if w.Err != nil {
		return false, w.Err
	}
	if err := origin.PushMessage(wire.CmdHeaders, w.Bytes()); err != nil {
		return false, err
	}
	return true, nil
}

func (f *Block) handleBlock(origin *peer.Peer, msg *wire.Message) (bool, error) {
	var blk wire.Block
	r := wire.NewBinReaderFromBuf(msg.Payload)
	blk.DecodeBinary(r)
	if r.Err != nil {
		return false, ErrShortPayload
	}

	hash := blk.Hash()
	inv := wire.InvVect{Type: wire.InvTypeBlock, Hash: hash}
	// The block has now actually arrived, whatever becomes of it: stop
	// treating it as outstanding so a later inv for the same hash isn't
	// mistaken for a fresh announcement (spec §3).
	f.Manager.Dequeue(inv)

	if f.Chain.ContainsBlock(hash) {
		origin.KnownInventory().Add(inv)
		return true, nil
	}

	outcome := f.Chain.AcceptBlock(&blk)
	switch outcome.Status {
	case Accepted:
		f.notify(&blk)
		f.promote(hash)
	case Orphan:
		f.Orphans.Add(&blk)
		if err := f.requestOrphanRoot(origin, hash); err != nil {
			return false, err
		}
	case Invalid:
		f.Log.Debug("filter/block: rejecting invalid block",
			zap.String("reason", outcome.Reason))
	}
	return true, nil
}

func (f *Block) handleTx(origin *peer.Peer, msg *wire.Message) (bool, error) {
	var tx wire.Tx
	r := wire.NewBinReaderFromBuf(msg.Payload)
	tx.DecodeBinary(r)
	if r.Err != nil {
		return false, ErrShortPayload
	}

	hash := tx.Hash()
	inv := wire.InvVect{Type: wire.InvTypeTx, Hash: hash}
	// Same rationale as handleBlock: the transaction has arrived, so
	// it is no longer outstanding regardless of acceptance outcome.
	f.Manager.Dequeue(inv)

	if f.Chain.ContainsTx(hash) {
		origin.KnownInventory().Add(inv)
		return true, nil
	}

	outcome := f.Chain.AcceptTransaction(&tx)
	switch outcome.Status {
	case Accepted:
		origin.KnownInventory().Add(inv)
	case Invalid:
		f.Log.Debug("filter/block: rejecting invalid transaction",
			zap.String("reason", outcome.Reason))
	}
	return true, nil
}

// SweepRetries re-requests every inventory item whose getdata window
// has lapsed without the item arriving, from one peer picked at random
// among the active sessions (which can be the peer asked before).
// Intended to be invoked periodically (shorter than the configured
// retry delay) so that a lost getdata is eventually retried even when
// no peer re-announces the inventory (spec §2, §5).
func (f *Block) SweepRetries() {
	due := f.Manager.DueRetries(time.Now())
	if len(due) == 0 {
		return
	}
	peers := f.Manager.Peers()
	if len(peers) == 0 {
		return
	}

	out := wire.InvPayload{Items: due}
	w := wire.NewBufBinWriter()
	out.EncodeBinary(w.BinWriter)
	if w.Err != nil {
		f.Log.Debug("filter/block: failed to encode retry getdata", zap.Error(w.Err))
		return
	}

	target := peers[rand.Intn(len(peers))]
	if err := target.PushMessage(wire.CmdGetData, w.Bytes()); err != nil {
		f.Log.Debug("filter/block: retry getdata send failed", zap.Error(err))
	}
}

// requestOrphanRoot asks origin for everything between our tip and
// the orphan's missing ancestor (spec §4.6, scenario 4).
func (f *Block) requestOrphanRoot(origin *peer.Peer, orphanHash wire.Hash) error {
	root := f.Orphans.Root(orphanHash)
	locator := wire.LocatorPayload{
		Locator:  f.Chain.Locator(),
		StopHash: root,
	}
	w := wire.NewBufBinWriter()
	locator.EncodeBinary(w.BinWriter)
	if w.Err != nil {
		return w.Err
	}
	return origin.PushMessage(wire.CmdGetBlocks, w.Bytes())
}

// promote iteratively accepts orphans whose parent is now known,
// walking the by_prev chain breadth-first (spec §4.6).
func (f *Block) promote(accepted wire.Hash) {
	queue := []wire.Hash{accepted}
	for len(queue) > 0 {
		parent := queue[0]
		queue = queue[1:]

		for _, childHash := range f.Orphans.Children(parent) {
			child, ok := f.Orphans.Get(childHash)
			if !ok {
				continue
			}
			outcome := f.Chain.AcceptBlock(child)
			if outcome.Status != Accepted {
				continue
			}
			f.Orphans.Remove(childHash)
			f.notify(child)
			queue = append(queue, childHash)
		}
	}
}
