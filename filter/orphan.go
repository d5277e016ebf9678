package filter

import (
	"container/list"
	"sync"

	"github.com/libcoin/libcoin-sub003/wire"
)

// orphanPool holds blocks whose parent has not yet been seen, indexed
// both by their own hash and by their parent hash, with LRU eviction
// once capacity is reached (spec §4.6). Grounded on the same
// capacity+eviction discipline as peer.knownInventory, generalized
// with a second index for root-finding.
type orphanPool struct {
	mu       sync.Mutex
	capacity int

	byHash map[wire.Hash]*wire.Block
	byPrev map[wire.Hash][]wire.Hash

	order *list.List
	elems map[wire.Hash]*list.Element
}

func newOrphanPool(capacity int) *orphanPool {
	return &orphanPool{
		capacity: capacity,
		byHash:   make(map[wire.Hash]*wire.Block),
		byPrev:   make(map[wire.Hash][]wire.Hash),
		order:    list.New(),
		elems:    make(map[wire.Hash]*list.Element),
	}
}

// Add stores b under its own hash, keyed additionally by its parent
// hash, evicting the least recently added orphan if the pool is now
// over capacity. Re-adding a pooled orphan marks it most recent.
func (p *orphanPool) Add(b *wire.Block) {
	p.mu.Lock()
	defer p.mu.Unlock()

	hash := b.Hash()
	if _, ok := p.byHash[hash]; ok {
		p.order.MoveToFront(p.elems[hash])
		return
	}
	p.byHash[hash] = b
	prev := b.Header.PrevBlock
	p.byPrev[prev] = append(p.byPrev[prev], hash)

	el := p.order.PushFront(hash)
	p.elems[hash] = el

	for p.order.Len() > p.capacity {
		oldest := p.order.Back()
		if oldest == nil {
			break
		}
		p.removeLocked(oldest.Value.(wire.Hash))
	}
}

// Remove discards hash from the pool, detaching it from its parent's
// child list.
func (p *orphanPool) Remove(hash wire.Hash) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removeLocked(hash)
}

func (p *orphanPool) removeLocked(hash wire.Hash) {
	blk, ok := p.byHash[hash]
	if !ok {
		return
	}
	delete(p.byHash, hash)
	if el, ok := p.elems[hash]; ok {
		p.order.Remove(el)
		delete(p.elems, hash)
	}
	prev := blk.Header.PrevBlock
	children := p.byPrev[prev]
	for i, h := range children {
		if h == hash {
			p.byPrev[prev] = append(children[:i], children[i+1:]...)
			break
		}
	}
	if len(p.byPrev[prev]) == 0 {
		delete(p.byPrev, prev)
	}
}

// Children returns the orphans (if any) whose prev-hash is hash,
// i.e. the blocks ready to be promoted once hash is accepted.
func (p *orphanPool) Children(hash wire.Hash) []wire.Hash {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]wire.Hash, len(p.byPrev[hash]))
	copy(out, p.byPrev[hash])
	return out
}

// Get returns the orphan block stored under hash, if any.
func (p *orphanPool) Get(hash wire.Hash) (*wire.Block, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	b, ok := p.byHash[hash]
	return b, ok
}

// Root walks from an orphan's own hash down through by_hash[prev] as
// long as the chain stays inside the pool; the first prev hash that
// is not itself a pooled orphan is the missing ancestor to request
// (spec §4.6, the orphan-root testable property in spec §8).
func (p *orphanPool) Root(hash wire.Hash) wire.Hash {
	p.mu.Lock()
	defer p.mu.Unlock()

	current := hash
	for {
		blk, ok := p.byHash[current]
		if !ok {
			return current
		}
		prev := blk.Header.PrevBlock
		if _, ok := p.byHash[prev]; !ok {
			return prev
		}
		current = prev
	}
}
