// Package bloomfilter implements the BIP37-style bloom filter a peer
// may install on a connection to request filtered relay, consumed by
// filter.Bloom (spec §4.8).
package bloomfilter

import (
	"errors"
	"math"

	"github.com/libcoin/libcoin-sub003/wire"
)

// ErrFilterTooLarge is returned when a filterload payload exceeds the
// bounds checked in spec §4.8.
var ErrFilterTooLarge = errors.New("bloomfilter: filter size exceeds maximum")

// ErrTooManyHashFuncs is returned when a filterload payload requests
// more hash functions than allowed.
var ErrTooManyHashFuncs = errors.New("bloomfilter: hash function count exceeds maximum")

// ErrDataTooLarge is returned when a filteradd element exceeds the
// maximum element size.
var ErrDataTooLarge = errors.New("bloomfilter: element exceeds maximum size")

const bitsPerByte = 8

// seedConstant is BIP37's per-round hash mixing constant.
const seedConstant = 0xfba4c795

// Filter is a peer's bloom filter: a bit array tested and updated via
// a small family of murmur3 hashes parameterized by HashFuncs and
// Tweak.
type Filter struct {
	bits      []byte
	hashFuncs uint32
	tweak     uint32
	flags     wire.BloomFlag

	isEmptyCache bool
	isFullCache  bool
}

// Empty returns the peer's default filter: matches nothing and
// enables full relay is left to the caller (callers check IsEmpty to
// decide whether to relay everything).
func Empty() *Filter {
	return &Filter{isEmptyCache: true}
}

// LoadFromPayload validates and constructs a Filter from a
// filterload payload, enforcing the bounds from spec §4.8: size <=
// 36,000 bytes, hash count <= 50.
func LoadFromPayload(p *wire.FilterLoadPayload) (*Filter, error) {
	if len(p.Filter) > wire.MaxFilterBytes {
		return nil, ErrFilterTooLarge
	}
	if p.HashFuncs > wire.MaxFilterHashes {
		return nil, ErrTooManyHashFuncs
	}
	f := &Filter{
		bits:      append([]byte(nil), p.Filter...),
		hashFuncs: p.HashFuncs,
		tweak:     p.Tweak,
		flags:     p.Flags,
	}
	f.recomputeCaches()
	return f, nil
}

// NewFilter builds a filter sized for nElements at the given false
// positive rate, the construction a wallet-side caller would use
// before sending filterload (kept here since the sizing math belongs
// next to the bit array it sizes).
func NewFilter(nElements int, falsePositiveRate float64, tweak uint32, flags wire.BloomFlag) *Filter {
	bitsLen := uint32(-1 / (math.Ln2 * math.Ln2) * float64(nElements) * math.Log(falsePositiveRate))
	bitsLen = clampBits(bitsLen)
	nHash := uint32(float64(bitsLen*bitsPerByte) / float64(nElements) * math.Ln2)
	if nHash > wire.MaxFilterHashes {
		nHash = wire.MaxFilterHashes
	}
	if nHash < 1 {
		nHash = 1
	}
	f := &Filter{
		bits:      make([]byte, bitsLen),
		hashFuncs: nHash,
		tweak:     tweak,
		flags:     flags,
	}
	f.recomputeCaches()
	return f
}

func clampBits(bitsLen uint32) uint32 {
	maxBits := uint32(wire.MaxFilterBytes * bitsPerByte)
	if bitsLen > maxBits {
		bitsLen = maxBits
	}
	return (bitsLen + bitsPerByte - 1) / bitsPerByte
}

// Add appends a data element to the filter after an element-size
// bound check (spec §4.8: filteradd elements above 520 bytes are a
// protocol violation).
func (f *Filter) Add(data []byte) error {
	if len(data) > wire.MaxFilterAddData {
		return ErrDataTooLarge
	}
	if len(f.bits) == 0 {
		return nil
	}
	for i := uint32(0); i < f.hashFuncs; i++ {
		idx := f.hash(i, data) % uint32(len(f.bits)*bitsPerByte)
		f.bits[idx/bitsPerByte] |= 1 << (idx % bitsPerByte)
	}
	f.recomputeCaches()
	return nil
}

// Contains reports whether data may be present in the filter (bloom
// filters never false-negative, only false-positive).
func (f *Filter) Contains(data []byte) bool {
	if f.isFullCache {
		return true
	}
	if f.isEmptyCache || len(f.bits) == 0 {
		return false
	}
	for i := uint32(0); i < f.hashFuncs; i++ {
		idx := f.hash(i, data) % uint32(len(f.bits)*bitsPerByte)
		if f.bits[idx/bitsPerByte]&(1<<(idx%bitsPerByte)) == 0 {
			return false
		}
	}
	return true
}

// Clear empties the filter, after which IsEmpty reports true and the
// session falls back to full, unfiltered relay.
func (f *Filter) Clear() {
	f.bits = nil
	f.hashFuncs = 0
	f.tweak = 0
	f.recomputeCaches()
}

// IsEmpty reports whether the filter matches nothing, the state a
// freshly-created or cleared peer session starts in.
func (f *Filter) IsEmpty() bool { return f.isEmptyCache }

// IsFull reports whether the filter matches everything (every bit
// set), used as a fast path to skip hashing.
func (f *Filter) IsFull() bool { return f.isFullCache }

func (f *Filter) recomputeCaches() {
	if len(f.bits) == 0 {
		f.isEmptyCache = true
		f.isFullCache = false
		return
	}
	allZero, allOnes := true, true
	for _, b := range f.bits {
		if b != 0 {
			allZero = false
		}
		if b != 0xff {
			allOnes = false
		}
		if !allZero && !allOnes {
			break
		}
	}
	f.isEmptyCache = allZero
	f.isFullCache = allOnes
}

// hash computes the i'th murmur3-32 hash of data, seeded per BIP37.
func (f *Filter) hash(i uint32, data []byte) uint32 {
	seed := i*seedConstant + f.tweak
	return murmur3(seed, data)
}

// murmur3 is a minimal murmur3_32 implementation; no pack dependency
// supplies one, so this is hand-rolled per DESIGN.md.
func murmur3(seed uint32, data []byte) uint32 {
	const (
		c1 = 0xcc9e2d51
		c2 = 0x1b873593
		r1 = 15
		r2 = 13
		m  = 5
		n  = 0xe6546b64
	)

	hash := seed
	length := len(data)
	nBlocks := length / 4

	for i := 0; i < nBlocks; i++ {
		k := uint32(data[i*4]) | uint32(data[i*4+1])<<8 | uint32(data[i*4+2])<<16 | uint32(data[i*4+3])<<24
		k *= c1
		k = (k << r1) | (k >> (32 - r1))
		k *= c2

		hash ^= k
		hash = (hash << r2) | (hash >> (32 - r2))
		hash = hash*m + n
	}

	var k1 uint32
	tailIndex := nBlocks * 4
	switch length & 3 {
	case 3:
		k1 ^= uint32(data[tailIndex+2]) << 16
		fallthrough
	case 2:
		k1 ^= uint32(data[tailIndex+1]) << 8
		fallthrough
	case 1:
		k1 ^= uint32(data[tailIndex])
		k1 *= c1
		k1 = (k1 << r1) | (k1 >> (32 - r1))
		k1 *= c2
		hash ^= k1
	}

	hash ^= uint32(length)
	hash ^= hash >> 16
	hash *= 0x85ebca6b
	hash ^= hash >> 13
	hash *= 0xc2b2ae35
	hash ^= hash >> 16
	return hash
}
