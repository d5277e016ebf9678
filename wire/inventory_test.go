package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInvTypeKnown(t *testing.T) {
	assert.True(t, InvTypeTx.IsKnownType())
	assert.True(t, InvTypeBlock.IsKnownType())
	assert.True(t, InvTypeFilteredBlock.IsKnownType())
	assert.False(t, InvType(99).IsKnownType())
}

func TestInvVectTotalOrder(t *testing.T) {
	a := InvVect{Type: InvTypeTx, Hash: Hash{0x01}}
	b := InvVect{Type: InvTypeTx, Hash: Hash{0x02}}
	c := InvVect{Type: InvTypeBlock, Hash: Hash{0x00}}

	assert.True(t, a.Less(b))
	assert.False(t, b.Less(a))
	assert.True(t, a.Less(c))
	assert.False(t, a.Less(a))
}

func TestInvVectRoundTrip(t *testing.T) {
	in := InvVect{Type: InvTypeBlock, Hash: Hash{0xaa, 0xbb}}
	w := NewBufBinWriter()
	in.EncodeBinary(w.BinWriter)

	r := NewBinReaderFromBuf(w.Bytes())
	var out InvVect
	out.DecodeBinary(r)

	assert.NoError(t, r.Err)
	assert.Equal(t, in, out)
}
