// Package bloom implements a probabilistic set membership filter used as a
// fast-path existence check ahead of an expensive lookup. The queue engine
// uses it to answer whether a file's TTH is already queued without
// consulting its map; the share index does not use it.
//
// A false positive simply falls through to the real lookup; a false
// negative would be incorrect, and the filter never produces one.
package bloom

import (
	"hash/fnv"
	"math"
)

// Filter is a fixed-size bloom filter over byte-slice keys.
type Filter struct {
	bits  []uint64
	m     uint // number of bits
	k     uint // number of hash functions
	count int  // items added, for diagnostics
}

// NewFilter returns a Filter sized for expectedItems entries at the given
// target false-positive probability (0, 1).
func NewFilter(expectedItems int, falsePositiveProbability float64) *Filter {
	if expectedItems < 1 {
		expectedItems = 1
	}
	if falsePositiveProbability <= 0 || falsePositiveProbability >= 1 {
		falsePositiveProbability = 0.01
	}

	m := optimalBits(expectedItems, falsePositiveProbability)
	k := optimalHashCount(m, expectedItems)

	return &Filter{
		bits: make([]uint64, (m+63)/64),
		m:    m,
		k:    k,
	}
}

func optimalBits(n int, p float64) uint {
	m := -1 * float64(n) * math.Log(p) / (math.Ln2 * math.Ln2)
	if m < 64 {
		m = 64
	}
	return uint(math.Ceil(m))
}

func optimalHashCount(m uint, n int) uint {
	k := float64(m) / float64(n) * math.Ln2
	if k < 1 {
		k = 1
	}
	return uint(math.Round(k))
}

// Add inserts key into the filter.
func (f *Filter) Add(key []byte) {
	h1, h2 := baseHashes(key)
	for i := uint(0); i < f.k; i++ {
		bit := f.indexFor(h1, h2, i)
		f.bits[bit/64] |= 1 << (bit % 64)
	}
	f.count++
}

// Contains reports whether key may be in the set. A false return means key
// is definitely absent; a true return may be a false positive.
func (f *Filter) Contains(key []byte) bool {
	h1, h2 := baseHashes(key)
	for i := uint(0); i < f.k; i++ {
		bit := f.indexFor(h1, h2, i)
		if f.bits[bit/64]&(1<<(bit%64)) == 0 {
			return false
		}
	}
	return true
}

// indexFor applies the standard double-hashing scheme (Kirsch-Mitzenmacher)
// to derive the i-th bit index from two independent base hashes.
func (f *Filter) indexFor(h1, h2 uint64, i uint) uint64 {
	return (h1 + uint64(i)*h2) % uint64(f.m)
}

// baseHashes derives two independent 64-bit hashes of key using FNV-1a
// with different seeds, used as the basis for double hashing.
func baseHashes(key []byte) (uint64, uint64) {
	h1 := fnv.New64a()
	h1.Write(key)
	sum1 := h1.Sum64()

	h2 := fnv.New64a()
	h2.Write([]byte{0xff})
	h2.Write(key)
	sum2 := h2.Sum64()
	if sum2 == 0 {
		sum2 = 1
	}

	return sum1, sum2
}

// Count returns the number of items added, for diagnostics and metrics; it
// is not adjusted for estimated duplicates.
func (f *Filter) Count() int { return f.count }

// Reset clears all bits, leaving the filter empty but keeping its sizing.
func (f *Filter) Reset() {
	for i := range f.bits {
		f.bits[i] = 0
	}
	f.count = 0
}
