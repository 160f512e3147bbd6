package matrix

import "math/bits"

// Bitset is a set of physical keys, one bit per key.
type Bitset []uint64

// NewBitset returns an empty set able to hold n keys.
func NewBitset(n int) Bitset {
	return make(Bitset, (n+63)/64)
}

// Set adds key k.
func (b Bitset) Set(k uint8) { b[k/64] |= 1 << (k % 64) }

// Clear removes key k.
func (b Bitset) Clear(k uint8) { b[k/64] &^= 1 << (k % 64) }

// Has reports whether key k is in the set.
func (b Bitset) Has(k uint8) bool {
	if int(k/64) >= len(b) {
		return false
	}
	return b[k/64]&(1<<(k%64)) != 0
}

// Empty reports whether no key is set.
func (b Bitset) Empty() bool {
	for _, w := range b {
		if w != 0 {
			return false
		}
	}
	return true
}

// Count returns the number of keys in the set.
func (b Bitset) Count() int {
	n := 0
	for _, w := range b {
		n += bits.OnesCount64(w)
	}
	return n
}

// Each calls fn for every key in the set, in ascending order.
func (b Bitset) Each(fn func(k uint8)) {
	for i, w := range b {
		for w != 0 {
			t := bits.TrailingZeros64(w)
			fn(uint8(i*64 + t))
			w &= w - 1
		}
	}
}

// Clone returns an independent copy.
func (b Bitset) Clone() Bitset {
	out := make(Bitset, len(b))
	copy(out, b)
	return out
}
