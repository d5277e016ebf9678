package node

import (
	"math/rand"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/libcoin/libcoin-sub003/wire"
)

// addrBookCapacity bounds the address book the same way
// filter.maxAddrEntries bounds a single addr message.
const addrBookCapacity = 1000

// entry pairs a known address with the last time it was seen, mirroring
// the teacher's discovery pool's (addr, lastConnectionAttempt) tuples.
type entry struct {
	addr wire.NetAddr
	seen time.Time
}

// AddrBook is the node's persistent-for-process-lifetime address pool,
// implementing filter.EndpointPool. Grounded on the teacher's
// pkg/network.Server peers/discovery bookkeeping (RWMutex-guarded map,
// capacity-bounded), generalized from connected-peer tracking to
// gossiped candidate addresses.
type AddrBook struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// NewAddrBook returns an empty address book.
func NewAddrBook() *AddrBook {
	return &AddrBook{entries: make(map[string]entry)}
}

// Add implements filter.EndpointPool. A newer "seen" timestamp always
// replaces an older one for the same address.
func (b *AddrBook) Add(addr wire.NetAddr, seen time.Time) {
	key := addrKey(addr)
	b.mu.Lock()
	defer b.mu.Unlock()

	if existing, ok := b.entries[key]; ok && existing.seen.After(seen) {
		return
	}
	b.entries[key] = entry{addr: addr, seen: seen}
	if len(b.entries) > addrBookCapacity {
		b.evictOldestLocked()
	}
}

// Sample implements filter.EndpointPool, returning up to n addresses
// chosen uniformly at random.
func (b *AddrBook) Sample(n int) []wire.NetAddr {
	b.mu.RLock()
	defer b.mu.RUnlock()

	all := make([]wire.NetAddr, 0, len(b.entries))
	for _, e := range b.entries {
		all = append(all, e.addr)
	}
	rand.Shuffle(len(all), func(i, j int) { all[i], all[j] = all[j], all[i] })
	if n > len(all) {
		n = len(all)
	}
	return all[:n]
}

// Len reports how many addresses the book currently holds.
func (b *AddrBook) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}

// evictOldestLocked drops the single stalest entry. Caller must hold
// b.mu for writing.
func (b *AddrBook) evictOldestLocked() {
	var oldestKey string
	var oldestSeen time.Time
	first := true
	for k, e := range b.entries {
		if first || e.seen.Before(oldestSeen) {
			oldestKey, oldestSeen, first = k, e.seen, false
		}
	}
	delete(b.entries, oldestKey)
}

func addrKey(addr wire.NetAddr) string {
	ip := net.IP(addr.IP[:])
	return ip.String() + ":" + strconv.Itoa(int(addr.Port))
}
