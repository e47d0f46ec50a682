package darp

import "math/bits"

// bitmask is a fixed-width bitset over the cycle's indexed reservation
// set, used for fast conflict checks during trip selection.
type bitmask []uint64

func newBitmask(n int) bitmask { return make(bitmask, (n+63)/64) }

func (m bitmask) set(i int) { m[i/64] |= 1 << (uint(i) % 64) }

func (m bitmask) has(i int) bool { return m[i/64]&(1<<(uint(i)%64)) != 0 }

func (m bitmask) intersects(o bitmask) bool {
	for i := range m {
		if m[i]&o[i] != 0 {
			return true
		}
	}
	return false
}

func (m bitmask) or(o bitmask) {
	for i := range m {
		m[i] |= o[i]
	}
}

func (m bitmask) count() int {
	n := 0
	for _, w := range m {
		n += bits.OnesCount64(w)
	}
	return n
}

func (m bitmask) clone() bitmask {
	out := make(bitmask, len(m))
	copy(out, m)
	return out
}
