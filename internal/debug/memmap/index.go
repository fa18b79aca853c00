package memmap

import "sort"

// index is the ordered map from AlignedStart to Allocation described in
// spec.md §4.2. It is backed by a sorted key slice plus a lookup map
// rather than a balanced tree: Go's standard library has no ordered map,
// and a sorted slice with sort.Search gives the same O(log n) lower-bound
// probe the spec calls for, over a sorted slice like the PCRange list in
// internal/debug/pcmap.go (whose AddrToLine scans linearly).
type index struct {
	keys  []Address
	table map[Address]*Allocation
}

func newIndex() *index {
	return &index{table: make(map[Address]*Allocation)}
}

func (ix *index) len() int {
	return len(ix.keys)
}

// lowerBound returns the position of the first key >= addr.
func (ix *index) lowerBound(addr Address) int {
	return sort.Search(len(ix.keys), func(i int) bool { return ix.keys[i] >= addr })
}

func (ix *index) insert(a *Allocation) {
	i := ix.lowerBound(a.AlignedStart)
	ix.keys = append(ix.keys, 0)
	copy(ix.keys[i+1:], ix.keys[i:])
	ix.keys[i] = a.AlignedStart
	ix.table[a.AlignedStart] = a
}

// get looks up an allocation by its exact AlignedStart.
func (ix *index) get(addr Address) (*Allocation, bool) {
	a, ok := ix.table[addr]

	return a, ok
}

func (ix *index) erase(addr Address) {
	i := ix.lowerBound(addr)
	if i < len(ix.keys) && ix.keys[i] == addr {
		ix.keys = append(ix.keys[:i], ix.keys[i+1:]...)
	}

	delete(ix.table, addr)
}

// candidateAt returns the allocation whose interval could contain addr:
// the entry at-or-after addr, or failing that the one immediately before
// it. Disjointness of allocations makes this two-probe search exhaustive.
func (ix *index) candidateAt(addr Address) (*Allocation, bool) {
	i := ix.lowerBound(addr)
	if i < len(ix.keys) && ix.keys[i] == addr {
		return ix.table[ix.keys[i]], true
	}

	if i > 0 {
		return ix.table[ix.keys[i-1]], true
	}

	if i < len(ix.keys) {
		return ix.table[ix.keys[i]], true
	}

	return nil, false
}

// findContaining returns the unique allocation whose interval encloses
// [addr, addr+size).
func (ix *index) findContaining(addr Address, size uint64) (*Allocation, bool) {
	cand, ok := ix.candidateAt(addr)
	if !ok || !cand.contains(addr, size) {
		return nil, false
	}

	return cand, true
}

// intersects reports whether any live allocation overlaps [addr, addr+size).
func (ix *index) intersects(addr Address, size uint64) bool {
	i := ix.lowerBound(addr)

	if i < len(ix.keys) && intervalsIntersect(ix.keys[i], sizeOf(ix.table[ix.keys[i]]), addr, size) {
		return true
	}

	if i > 0 {
		prev := ix.table[ix.keys[i-1]]
		if intervalsIntersect(prev.AlignedStart, prev.Size, addr, size) {
			return true
		}
	}

	return false
}

func sizeOf(a *Allocation) uint64 {
	if a == nil {
		return 0
	}

	return a.Size
}

// last returns the highest-addressed allocation, if any.
func (ix *index) last() (*Allocation, bool) {
	if len(ix.keys) == 0 {
		return nil, false
	}

	return ix.table[ix.keys[len(ix.keys)-1]], true
}

// all returns every live allocation, ordered by AlignedStart.
func (ix *index) all() []*Allocation {
	out := make([]*Allocation, 0, len(ix.keys))
	for _, k := range ix.keys {
		out = append(out, ix.table[k])
	}

	return out
}
