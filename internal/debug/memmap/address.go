// Package memmap implements the dual-space memory map used by the
// gdb-remote JIT/expression-evaluation path: a non-overlapping interval
// allocator that routes reads and writes to a host shadow buffer, a
// remote inferior process, or both, depending on the allocation's policy.
package memmap

import "encoding/binary"

// Address is a location in the remote process's address space. Host-only
// allocations synthesize values in this same space from a private
// bump-allocated pseudo-heap; they are never valid remote addresses.
type Address uint64

// InvalidAddr is the sentinel meaning "no such address".
const InvalidAddr Address = 0xFFFFFFFFFFFFFFFF

// invalidByteSize is returned by AddressByteSize when neither the remote
// process nor the target can report a pointer width.
const invalidByteSize = ^uint32(0)

// byteOrder resolves the effective byte order: the live remote process's,
// falling back to the target's architectural order, falling back to nil
// when neither is available.
func (m *Map) byteOrder() binary.ByteOrder {
	if p, ok := m.process.Resolve(); ok && p.Alive() {
		return p.ByteOrder()
	}

	if t, ok := m.target.Resolve(); ok {
		return t.ByteOrder()
	}

	return nil
}

// ByteOrder is the public accessor backing the map's `byte_order` operation.
func (m *Map) ByteOrder() binary.ByteOrder {
	return m.byteOrder()
}

// addressByteSize resolves the effective pointer width in bytes.
func (m *Map) addressByteSize() uint32 {
	if p, ok := m.process.Resolve(); ok && p.Alive() {
		return p.AddressByteSize()
	}

	if t, ok := m.target.Resolve(); ok {
		return t.AddressByteSize()
	}

	return invalidByteSize
}

// AddressByteSize is the public accessor backing `address_byte_size`.
func (m *Map) AddressByteSize() uint32 {
	return m.addressByteSize()
}

// intervalsIntersect reports whether the half-open intervals [a1,a1+s1) and
// [a2,a2+s2) overlap. Both intervals must be non-empty.
func intervalsIntersect(a1 Address, s1 uint64, a2 Address, s2 uint64) bool {
	return a2 < a1+Address(s1) && a1 < a2+Address(s2)
}

// alignUp rounds addr up to the next multiple of align, which must be a
// power of two.
func alignUp(addr Address, align uint64) Address {
	mask := Address(align - 1)

	return (addr + mask) &^ mask
}
