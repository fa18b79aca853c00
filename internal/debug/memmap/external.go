package memmap

import "encoding/binary"

// Target is the read-only architecture/image descriptor: byte order,
// pointer width, and static (file-backed) memory such as data sections
// that are readable even with no live process attached.
type Target interface {
	ByteOrder() binary.ByteOrder
	AddressByteSize() uint32
	ReadStaticMemory(addr Address, out []byte) (int, error)
}

// Process is the inferior process the map may mirror allocations into. A
// Process may come and go during the map's lifetime (attach/detach,
// crash, exit); every Map method re-resolves its WeakRef before deciding
// whether a Process is usable.
type Process interface {
	Alive() bool
	SupportsJIT() bool
	Allocate(size uint64, perm Permissions) (Address, error)
	ZeroAllocate(size uint64, perm Permissions) (Address, error)
	Deallocate(addr Address) error
	Read(addr Address, out []byte) (int, error)
	Write(addr Address, data []byte) (int, error)
	ByteOrder() binary.ByteOrder
	AddressByteSize() uint32
}

// WeakRef is a non-owning handle that resolves to a strong reference only
// for the scope of one call. The map never stores a Target or Process
// value directly; it stores a resolver and re-resolves it every time, so a
// process that has been released between calls is observed as gone rather
// than kept alive by the map itself.
type WeakRef[T any] struct {
	resolve func() (T, bool)
}

// Resolve attempts to obtain a strong reference. ok is false if the
// referent has been released, or if the WeakRef was never set.
func (w WeakRef[T]) Resolve() (T, bool) {
	if w.resolve == nil {
		var zero T

		return zero, false
	}

	return w.resolve()
}

// NewWeakRef builds a WeakRef from an arbitrary resolver function, e.g. one
// that consults a sync.WeakPointer-style table owned by the host.
func NewWeakRef[T any](resolve func() (T, bool)) WeakRef[T] {
	return WeakRef[T]{resolve: resolve}
}

// NewStaticRef builds a WeakRef that always resolves to the same value.
// It is genuinely strong, not weak — it exists for hosts and tests that
// own the Map's entire lifetime and have no separate notion of detach.
func NewStaticRef[T any](v T, present bool) WeakRef[T] {
	return WeakRef[T]{resolve: func() (T, bool) { return v, present }}
}
