package filter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/libcoin/libcoin-sub003/peer"
	"github.com/libcoin/libcoin-sub003/wire"
)

type fakeChain struct {
	blocks map[wire.Hash]*wire.Block
	txs    map[wire.Hash]*wire.Tx
	locator []wire.Hash

	// knownParents marks hashes AcceptBlock will accept as having a
	// known parent (i.e. not orphaned).
	knownParents map[wire.Hash]bool
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		blocks:       make(map[wire.Hash]*wire.Block),
		txs:          make(map[wire.Hash]*wire.Tx),
		knownParents: make(map[wire.Hash]bool),
	}
}

func (c *fakeChain) BestHeight() int32                       { return int32(len(c.blocks)) }
func (c *fakeChain) TotalBlocksEstimate() int32               { return int32(len(c.blocks)) }
func (c *fakeChain) ContainsBlock(hash wire.Hash) bool        { _, ok := c.blocks[hash]; return ok }
func (c *fakeChain) ContainsTx(hash wire.Hash) bool           { _, ok := c.txs[hash]; return ok }
func (c *fakeChain) GetBlock(hash wire.Hash) (*wire.Block, bool) {
	b, ok := c.blocks[hash]
	return b, ok
}
func (c *fakeChain) GetTransaction(hash wire.Hash) (*wire.Tx, bool) {
	tx, ok := c.txs[hash]
	return tx, ok
}
func (c *fakeChain) AcceptBlock(b *wire.Block) AcceptOutcome {
	if !c.knownParents[b.Header.PrevBlock] && !b.Header.PrevBlock.IsZero() {
		return AcceptOutcome{Status: Orphan}
	}
	c.blocks[b.Hash()] = b
	c.knownParents[b.Hash()] = true
	return AcceptOutcome{Status: Accepted}
}
func (c *fakeChain) AcceptTransaction(tx *wire.Tx) AcceptOutcome {
	c.txs[tx.Hash()] = tx
	return AcceptOutcome{Status: Accepted}
}
func (c *fakeChain) Locator() []wire.Hash { return c.locator }
func (c *fakeChain) BlocksAfterLocator(locator []wire.Hash, stop wire.Hash, limit int) []wire.Hash {
	return nil
}
func (c *fakeChain) HeadersAfterLocator(locator []wire.Hash, stop wire.Hash, limit int) []wire.BlockHeader {
	return nil
}

func encodeBlock(b *wire.Block) []byte {
	w := wire.NewBufBinWriter()
	b.EncodeBinary(w.BinWriter)
	return w.Bytes()
}

func TestBlockOrphanThenPromotion(t *testing.T) {
	manager := peer.NewManager(time.Minute, zaptest.NewLogger(t))
	chain := newFakeChain()
	chain.knownParents[wire.Hash{}] = true // genesis parent is "known"
	f := NewBlock(chain, manager, zaptest.NewLogger(t))

	var promoted []wire.Hash
	f.Subscribe(func(b *wire.Block) { promoted = append(promoted, b.Hash()) })

	p, remote := newTestPeer(t, manager, true)
	p.MarkReady()

	root := wire.BlockHeader{PrevBlock: wire.Hash{}, Bits: 1}
	rootBlock := &wire.Block{Header: root}

	childHeader := wire.BlockHeader{PrevBlock: rootBlock.Hash(), Bits: 1, Nonce: 1}
	child := &wire.Block{Header: childHeader}

	// child arrives first: parent (root) unknown -> orphaned, getblocks requested.
	matched, err := f.Apply(p, &wire.Message{Header: wire.Header{Command: wire.CmdBlock}, Payload: encodeBlock(child)})
	require.NoError(t, err)
	assert.True(t, matched)
	getBlocks := readFrame(t, remote)
	assert.Equal(t, wire.CmdGetBlocks, getBlocks.Command())
	assert.Empty(t, promoted)

	// root arrives: accepted directly, which should promote the orphaned child.
	matched, err = f.Apply(p, &wire.Message{Header: wire.Header{Command: wire.CmdBlock}, Payload: encodeBlock(rootBlock)})
	require.NoError(t, err)
	assert.True(t, matched)

	require.Len(t, promoted, 2)
	assert.Equal(t, rootBlock.Hash(), promoted[0])
	assert.Equal(t, child.Hash(), promoted[1])
	assert.True(t, chain.ContainsBlock(child.Hash()))
}

func TestBlockGetDataRespondsInOrder(t *testing.T) {
	manager := peer.NewManager(time.Minute, zaptest.NewLogger(t))
	chain := newFakeChain()
	f := NewBlock(chain, manager, zaptest.NewLogger(t))

	blk := &wire.Block{Header: wire.BlockHeader{Bits: 7}}
	chain.blocks[blk.Hash()] = blk

	p, remote := newTestPeer(t, manager, true)
	p.MarkReady()

	inv := wire.InvPayload{Items: []wire.InvVect{{Type: wire.InvTypeBlock, Hash: blk.Hash()}}}
	w := wire.NewBufBinWriter()
	inv.EncodeBinary(w.BinWriter)

	_, err := f.Apply(p, &wire.Message{Header: wire.Header{Command: wire.CmdGetData}, Payload: w.Bytes()})
	require.NoError(t, err)

	frame := readFrame(t, remote)
	assert.Equal(t, wire.CmdBlock, frame.Command())
}

func invPayloadBytes(items ...wire.InvVect) []byte {
	out := wire.InvPayload{Items: items}
	w := wire.NewBufBinWriter()
	out.EncodeBinary(w.BinWriter)
	return w.Bytes()
}

// TestBlockInvSuppressesDuplicateGetDataAcrossPeers covers spec §3's
// invariant: an inventory identifier already scheduled must not be
// duplicated across peers' outstanding getdata windows, and spec §8's
// at-most-once-per-retry_delay property.
func TestBlockInvSuppressesDuplicateGetDataAcrossPeers(t *testing.T) {
	manager := peer.NewManager(time.Minute, zaptest.NewLogger(t))
	chain := newFakeChain()
	f := NewBlock(chain, manager, zaptest.NewLogger(t))

	unknown := wire.InvVect{Type: wire.InvTypeBlock, Hash: wire.Hash{0x42}}

	p1, remote1 := newTestPeer(t, manager, true)
	p1.MarkReady()
	p2, remote2 := newTestPeer(t, manager, true)
	p2.MarkReady()

	matched, err := f.Apply(p1, &wire.Message{Header: wire.Header{Command: wire.CmdInv}, Payload: invPayloadBytes(unknown)})
	require.NoError(t, err)
	assert.True(t, matched)
	first := readFrame(t, remote1)
	assert.Equal(t, wire.CmdGetData, first.Command())

	// A second, still-unanswered announcement of the very same hash
	// from another peer must not trigger a second getdata: the item
	// is still outstanding, so it is recognized as a duplicate.
	matched, err = f.Apply(p2, &wire.Message{Header: wire.Header{Command: wire.CmdInv}, Payload: invPayloadBytes(unknown)})
	require.NoError(t, err)
	assert.True(t, matched)

	remote2.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	buf := make([]byte, 16)
	_, err = remote2.Read(buf)
	assert.Error(t, err, "no getdata should have been sent to the second peer within retryDelay")

	assert.True(t, manager.Queued(unknown), "inventory should remain queued until the block actually arrives")
}

// TestBlockDequeuesOnlyOnArrival ensures handleInv's send no longer
// dequeues the item, and that arrival (handleBlock) is what clears it.
func TestBlockDequeuesOnlyOnArrival(t *testing.T) {
	manager := peer.NewManager(time.Minute, zaptest.NewLogger(t))
	chain := newFakeChain()
	chain.knownParents[wire.Hash{}] = true
	f := NewBlock(chain, manager, zaptest.NewLogger(t))

	blk := &wire.Block{Header: wire.BlockHeader{PrevBlock: wire.Hash{}, Bits: 9}}
	inv := wire.InvVect{Type: wire.InvTypeBlock, Hash: blk.Hash()}

	p, remote := newTestPeer(t, manager, true)
	p.MarkReady()

	_, err := f.Apply(p, &wire.Message{Header: wire.Header{Command: wire.CmdInv}, Payload: invPayloadBytes(inv)})
	require.NoError(t, err)
	readFrame(t, remote) // the getdata

	assert.True(t, manager.Queued(inv), "getdata was sent but the block has not arrived yet")

	_, err = f.Apply(p, &wire.Message{Header: wire.Header{Command: wire.CmdBlock}, Payload: encodeBlock(blk)})
	require.NoError(t, err)
	assert.False(t, manager.Queued(inv), "arrival of the block should clear the outstanding request")
}

// TestBlockSweepRetriesResendsAfterWindowElapses covers the active
// half of the retry back-off: once retryDelay elapses with no
// arrival, a sweep re-issues getdata to an active peer (here the only one).
func TestBlockSweepRetriesResendsAfterWindowElapses(t *testing.T) {
	retryDelay := 20 * time.Millisecond
	manager := peer.NewManager(retryDelay, zaptest.NewLogger(t))
	chain := newFakeChain()
	f := NewBlock(chain, manager, zaptest.NewLogger(t))

	unknown := wire.InvVect{Type: wire.InvTypeBlock, Hash: wire.Hash{0x77}}

	p, remote := newTestPeer(t, manager, true)
	p.MarkReady()

	_, err := f.Apply(p, &wire.Message{Header: wire.Header{Command: wire.CmdInv}, Payload: invPayloadBytes(unknown)})
	require.NoError(t, err)
	readFrame(t, remote) // first getdata, item never arrives

	time.Sleep(2 * retryDelay)
	f.SweepRetries()

	retry := readFrame(t, remote)
	assert.Equal(t, wire.CmdGetData, retry.Command())
	assert.True(t, manager.Queued(unknown), "sweep retries but does not give up on the item")
}

func TestOrphanRootWalksToMissingAncestor(t *testing.T) {
	pool := newOrphanPool(10)

	o1Prev := wire.Hash{0x01}
	o1 := &wire.Block{Header: wire.BlockHeader{PrevBlock: o1Prev, Nonce: 1}}
	o2 := &wire.Block{Header: wire.BlockHeader{PrevBlock: o1.Hash(), Nonce: 2}}
	o3 := &wire.Block{Header: wire.BlockHeader{PrevBlock: o2.Hash(), Nonce: 3}}

	pool.Add(o1)
	pool.Add(o2)
	pool.Add(o3)

	assert.Equal(t, o1Prev, pool.Root(o3.Hash()))
}
