package chainstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStorePutGetDelete(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()

	_, err := s.Get([]byte("missing"))
	assert.ErrorIs(t, err, ErrKeyNotFound)

	require.NoError(t, s.Put([]byte("k1"), []byte("v1")))
	v, err := s.Get([]byte("k1"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), v)

	require.NoError(t, s.Delete([]byte("k1")))
	_, err = s.Get([]byte("k1"))
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestMemoryStoreBatch(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	require.NoError(t, s.Put([]byte("stale"), []byte("x")))

	b := s.Batch()
	b.Put([]byte("a"), []byte("1"))
	b.Put([]byte("b"), []byte("2"))
	b.Delete([]byte("stale"))
	require.NoError(t, s.PutBatch(b))

	v, err := s.Get([]byte("a"))
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), v)
	_, err = s.Get([]byte("stale"))
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestMemoryStoreSeekPrefix(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	require.NoError(t, s.Put(blockKey([]byte{1}), []byte("block1")))
	require.NoError(t, s.Put(blockKey([]byte{2}), []byte("block2")))
	require.NoError(t, s.Put(txKey([]byte{1}), []byte("tx1")))

	var seen int
	s.Seek([]byte{prefixBlockByHash}, func(k, v []byte) { seen++ })
	assert.Equal(t, 2, seen)
}

func TestHeightKeyOrdering(t *testing.T) {
	// heightKey must sort lexicographically in height order so a Seek
	// over the height-index prefix visits blocks in ascending order.
	assert.True(t, string(heightKey(1)) < string(heightKey(2)))
	assert.True(t, string(heightKey(255)) < string(heightKey(256)))
}
