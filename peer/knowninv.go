package peer

import (
	"container/list"

	"github.com/libcoin/libcoin-sub003/wire"
)

// knownInventory is a bounded LRU set of inventory identifiers a peer
// has already advertised to us or that we've advertised to it, used
// to suppress redundant relay (spec §4.2). Grounded on the teacher's
// mempool capacity+eviction discipline (pkg/core/mempool/mem_pool.go),
// generalized from a priority-sorted slice to an LRU list since
// known-inventory has no priority, only recency.
type knownInventory struct {
	capacity int
	order    *list.List
	index    map[wire.InvVect]*list.Element
}

func newKnownInventory(capacity int) *knownInventory {
	return &knownInventory{
		capacity: capacity,
		order:    list.New(),
		index:    make(map[wire.InvVect]*list.Element),
	}
}

// Add records inv as known, evicting the least recently added entry
// if the set is at capacity.
func (k *knownInventory) Add(inv wire.InvVect) {
	if el, ok := k.index[inv]; ok {
		k.order.MoveToFront(el)
		return
	}
	el := k.order.PushFront(inv)
	k.index[inv] = el
	for k.order.Len() > k.capacity {
		oldest := k.order.Back()
		if oldest == nil {
			break
		}
		k.order.Remove(oldest)
		delete(k.index, oldest.Value.(wire.InvVect))
	}
}

// Has reports whether inv is known.
func (k *knownInventory) Has(inv wire.InvVect) bool {
	_, ok := k.index[inv]
	return ok
}

// Len returns the number of known entries.
func (k *knownInventory) Len() int {
	return k.order.Len()
}
