// Package chainstore implements the block-chain collaborator (spec
// §6): a key/value-backed block and transaction index that satisfies
// filter.Blockchainer, plus the underlying storage abstraction it is
// built on. Grounded on the teacher's pkg/core/storage package
// (Store/Batch interfaces, MemoryStore, LevelDBStore), generalized
// from NEO's trie-node/DAO layout to block- and transaction-hash
// keying.
package chainstore

import "errors"

// ErrKeyNotFound is returned by Store.Get when key has no value.
var ErrKeyNotFound = errors.New("chainstore: key not found")

// Batch accumulates writes for an atomic PutBatch.
type Batch interface {
	Put(k, v []byte)
	Delete(k []byte)
}

// Store is the minimal key/value contract the chain index is built
// on, implemented by MemoryStore (tests, simnet) and LevelDBStore
// (persistent nodes).
type Store interface {
	Get(key []byte) ([]byte, error)
	Put(key, value []byte) error
	Delete(key []byte) error
	PutBatch(batch Batch) error
	Seek(key []byte, f func(k, v []byte))
	Batch() Batch
	Close() error
}

// Key namespace prefixes, mirroring the teacher's single-byte storage
// prefix convention (pkg/core/storage's DataBlock/DataTransaction
// family) but naming Bitcoin-family concerns.
const (
	prefixBlockByHash byte = 'b'
	prefixTxByHash    byte = 't'
	prefixHeightIndex byte = 'h'
	prefixMeta        byte = 'm'
)

var metaKeyTip = []byte{prefixMeta, 't'}

func blockKey(hashBytes []byte) []byte {
	return append([]byte{prefixBlockByHash}, hashBytes...)
}

func txKey(hashBytes []byte) []byte {
	return append([]byte{prefixTxByHash}, hashBytes...)
}

func heightKey(height int32) []byte {
	key := make([]byte, 5)
	key[0] = prefixHeightIndex
	key[1] = byte(height >> 24)
	key[2] = byte(height >> 16)
	key[3] = byte(height >> 8)
	key[4] = byte(height)
	return key
}
