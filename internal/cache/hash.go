package cache

import (
	"encoding/binary"
	"hash"
	"hash/fnv"
	"math"
)

// Hasher builds FNV-1a 64-bit key hashes from fixed-width fields.
type Hasher struct {
	h hash.Hash64
}

// NewHasher returns an empty hasher.
func NewHasher() Hasher {
	return Hasher{h: fnv.New64a()}
}

// Uint32 writes a uint32 to the hash.
func (h Hasher) Uint32(v uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	_, _ = h.h.Write(buf[:])
}

// Uint64 writes a uint64 to the hash.
func (h Hasher) Uint64(v uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	_, _ = h.h.Write(buf[:])
}

// Float64 writes the bit pattern of v. Negative zero is folded into zero
// so values that compare equal hash equal.
func (h Hasher) Float64(v float64) {
	if v == 0 {
		v = 0
	}
	h.Uint64(math.Float64bits(v))
}

// Bool writes a bool to the hash.
func (h Hasher) Bool(v bool) {
	if v {
		_, _ = h.h.Write([]byte{1})
	} else {
		_, _ = h.h.Write([]byte{0})
	}
}

// Sum returns the hash value.
func (h Hasher) Sum() uint64 {
	return h.h.Sum64()
}
