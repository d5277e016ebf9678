package peer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/libcoin/libcoin-sub003/wire"
)

func TestKnownInventoryEviction(t *testing.T) {
	k := newKnownInventory(2)
	a := wire.InvVect{Type: wire.InvTypeTx, Hash: wire.Hash{0x01}}
	b := wire.InvVect{Type: wire.InvTypeTx, Hash: wire.Hash{0x02}}
	c := wire.InvVect{Type: wire.InvTypeTx, Hash: wire.Hash{0x03}}

	k.Add(a)
	k.Add(b)
	assert.True(t, k.Has(a))
	assert.True(t, k.Has(b))

	k.Add(c)
	assert.Equal(t, 2, k.Len())
	assert.False(t, k.Has(a), "oldest entry should have been evicted")
	assert.True(t, k.Has(b))
	assert.True(t, k.Has(c))
}

func TestKnownInventoryReAddRefreshesRecency(t *testing.T) {
	k := newKnownInventory(2)
	a := wire.InvVect{Type: wire.InvTypeTx, Hash: wire.Hash{0x01}}
	b := wire.InvVect{Type: wire.InvTypeTx, Hash: wire.Hash{0x02}}
	c := wire.InvVect{Type: wire.InvTypeTx, Hash: wire.Hash{0x03}}

	k.Add(a)
	k.Add(b)
	k.Add(a) // refresh a's recency
	k.Add(c) // should evict b, not a

	assert.True(t, k.Has(a))
	assert.False(t, k.Has(b))
	assert.True(t, k.Has(c))
}
