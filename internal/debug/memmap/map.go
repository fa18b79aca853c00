package memmap

import (
	"encoding/binary"
	"log"
)

// Map is the dual-space memory map: a non-overlapping interval allocator
// over a flat address space that routes Malloc/Free/Read/Write to a host
// shadow buffer, a remote inferior process, or both, depending on each
// allocation's policy.
//
// Map is not internally synchronized. Like gdbserver.Server, which is the
// only intended caller in this tree, callers must serialize their own
// access; no method here blocks except for whatever the Process
// implementation's Read/Write/Allocate calls do.
type Map struct {
	process WeakRef[Process]
	target  WeakRef[Target]
	idx     *index
	logger  *log.Logger
}

// NewMap builds an empty map over the given (possibly absent) process and
// target weak references.
func NewMap(process WeakRef[Process], target WeakRef[Target]) *Map {
	return &Map{
		process: process,
		target:  target,
		idx:     newIndex(),
		logger:  log.Default(),
	}
}

// SetLogger overrides the logger used for downgrade notices (§9: silent
// downgrades are logged, never surfaced as errors). Tests pass a logger
// writing to a buffer rather than relying on the process-wide default.
func (m *Map) SetLogger(l *log.Logger) {
	m.logger = l
}

func (m *Map) logDowngrade(size uint64) {
	if m.logger != nil {
		m.logger.Printf("memmap: downgrading Mirror allocation of %d bytes to HostOnly: no JIT-capable remote attached", size)
	}
}

// Malloc implements spec.md §4.3.
func (m *Map) Malloc(size, alignment uint64, perm Permissions, policy AllocationPolicy, zeroMemory bool) (Address, error) {
	if alignment == 0 {
		alignment = 1
	}

	allocSize := roundUpAllocSize(size, alignment)

	rawStart, effectivePolicy, err := m.reserveRaw(allocSize, perm, policy, zeroMemory)
	if err != nil {
		return InvalidAddr, err
	}

	alignedStart := alignUp(rawStart, alignment)

	alloc := &Allocation{
		RawStart:     rawStart,
		AlignedStart: alignedStart,
		Size:         allocSize,
		Alignment:    alignment,
		Permissions:  perm,
		Policy:       effectivePolicy,
	}
	if effectivePolicy.needsShadow() {
		alloc.Shadow = make([]byte, allocSize)
	}

	m.idx.insert(alloc)

	return alignedStart, nil
}

// roundUpAllocSize implements spec.md §4.3's rounding rule exactly, with
// the "+alignment then mask" order preserved as written. For a size that
// is not already a multiple of alignment this yields the next multiple,
// the same result "+alignment-1 then mask" would give.
func roundUpAllocSize(size, alignment uint64) uint64 {
	if size == 0 {
		return alignment
	}

	mask := alignment - 1
	if size&mask != 0 {
		return (size + alignment) &^ mask
	}

	return size
}

// reserveRaw dispatches Malloc's policy-specific backing-store selection
// and returns the raw (unaligned) start address plus the policy actually
// used (which may differ from the requested one for a downgraded Mirror).
func (m *Map) reserveRaw(allocSize uint64, perm Permissions, policy AllocationPolicy, zeroMemory bool) (Address, AllocationPolicy, error) {
	switch policy {
	case HostOnly:
		raw, err := m.findFreeSpace(allocSize, perm)
		if err != nil {
			return InvalidAddr, policy, err
		}

		return raw, HostOnly, nil

	case Mirror:
		if p, ok := m.process.Resolve(); ok && p.Alive() && p.SupportsJIT() {
			raw, err := remoteAllocate(p, allocSize, perm, zeroMemory)
			if err != nil {
				return InvalidAddr, policy, newErrWrap(RemoteAllocFailed, "remote allocation failed", err)
			}

			return raw, Mirror, nil
		}

		m.logDowngrade(allocSize)

		raw, err := m.findFreeSpace(allocSize, perm)
		if err != nil {
			return InvalidAddr, policy, err
		}

		return raw, HostOnly, nil

	case ProcessOnly:
		p, ok := m.process.Resolve()
		if !ok || !p.Alive() {
			return InvalidAddr, policy, newErr(RemoteRequired, "ProcessOnly allocation requires an attached, live process")
		}

		if !p.SupportsJIT() {
			return InvalidAddr, policy, newErr(RemoteUnsupported, "remote process cannot allocate JIT memory")
		}

		raw, err := remoteAllocate(p, allocSize, perm, zeroMemory)
		if err != nil {
			return InvalidAddr, policy, newErrWrap(RemoteAllocFailed, "remote allocation failed", err)
		}

		return raw, ProcessOnly, nil

	default:
		return InvalidAddr, policy, newErr(InvalidPolicy, "unknown allocation policy")
	}
}

func remoteAllocate(p Process, size uint64, perm Permissions, zeroMemory bool) (Address, error) {
	if zeroMemory {
		return p.ZeroAllocate(size, perm)
	}

	return p.Allocate(size, perm)
}

// findFreeSpace implements spec.md §4.2's find_free_space: delegate to a
// live, allocation-capable remote first, otherwise bump-allocate a
// host-only pseudo-heap at 4096-byte granularity with no reuse of gaps.
func (m *Map) findFreeSpace(size uint64, perm Permissions) (Address, error) {
	if p, ok := m.process.Resolve(); ok && p.Alive() && p.SupportsJIT() {
		addr, err := p.Allocate(size, perm)
		if err != nil {
			return InvalidAddr, newErrWrap(AddressSpaceFull, "remote could not satisfy host-pseudo-heap request", err)
		}

		return addr, nil
	}

	last, ok := m.idx.last()
	if !ok {
		return 0, nil
	}

	return alignUp(last.end(), 4096), nil
}

// FindSpace is the public accessor backing the `find_space` operation.
func (m *Map) FindSpace(size uint64) (Address, error) {
	addr, err := m.findFreeSpace(size, PermRead|PermWrite)
	if err != nil {
		return InvalidAddr, newErr(AddressSpaceFull, "no free space available")
	}

	return addr, nil
}

// IntersectsAllocation is the public accessor backing `intersects_allocation`.
func (m *Map) IntersectsAllocation(addr Address, size uint64) bool {
	return m.idx.intersects(addr, size)
}

// Free implements spec.md §4.4.
func (m *Map) Free(addr Address) error {
	a, ok := m.idx.get(addr)
	if !ok {
		return newErr(NotFound, "no allocation at the given address")
	}

	m.releaseOnRemote(a)
	m.idx.erase(addr)

	return nil
}

// releaseOnRemote deallocates a's RawStart on the remote when the policy
// calls for it. HostOnly allocations are included because find_free_space
// may itself have delegated to a live remote allocator for its address
// (spec.md §4.2); when that happened, RawStart is a genuine remote
// address that must be released there too.
func (m *Map) releaseOnRemote(a *Allocation) {
	p, ok := m.process.Resolve()
	if !ok || !p.Alive() {
		return
	}

	switch a.Policy {
	case HostOnly:
		if p.SupportsJIT() {
			_ = p.Deallocate(a.RawStart)
		}
	case Mirror, ProcessOnly:
		_ = p.Deallocate(a.RawStart)
	}
}

// Leak implements spec.md §4.5: marks an allocation as not-to-be-freed at
// shutdown. Idempotent by construction — setting Leaked true twice is a
// no-op the second time.
func (m *Map) Leak(addr Address) error {
	a, ok := m.idx.get(addr)
	if !ok {
		return newErr(NotFound, "no allocation at the given address")
	}

	a.Leaked = true

	return nil
}

// Shutdown implements spec.md §4.6: frees every non-leaked allocation and
// drops leaked ones without freeing them. Remote deallocation failures are
// swallowed, matching Free's own "ignore the result" contract.
func (m *Map) Shutdown() {
	for _, a := range m.idx.all() {
		if !a.Leaked {
			m.releaseOnRemote(a)
		}
	}

	m.idx = newIndex()
}

// WriteMemory implements spec.md §4.7.
func (m *Map) WriteMemory(addr Address, data []byte) error {
	size := uint64(len(data))

	a, ok := m.idx.findContaining(addr, size)
	if !ok {
		if p, pok := m.process.Resolve(); pok && p.Alive() {
			_, err := p.Write(addr, data)

			return err
		}

		return newErr(OutOfRange, "write covers no allocation and no remote is attached")
	}

	offset := addr - a.AlignedStart
	if uint64(offset) > a.Size { // preserved as `>`, not `>=`; see spec.md §9
		return newErr(OutOfRange, "offset past end of allocation")
	}

	switch a.Policy {
	case HostOnly:
		if len(a.Shadow) == 0 {
			return newErr(EmptyShadow, "host-only allocation missing shadow buffer")
		}

		copy(a.Shadow[offset:], data)

		return nil

	case Mirror:
		if len(a.Shadow) == 0 {
			return newErr(EmptyShadow, "mirror allocation missing shadow buffer")
		}

		copy(a.Shadow[offset:], data)

		if p, pok := m.process.Resolve(); pok && p.Alive() {
			if _, err := p.Write(addr, data); err != nil {
				return err
			}
		}

		return nil

	case ProcessOnly:
		if p, pok := m.process.Resolve(); pok && p.Alive() {
			_, err := p.Write(addr, data)

			return err
		}
		// No remote and nowhere to store the bytes: documented silent no-op.
		return nil

	default:
		return newErr(InvalidPolicy, "allocation carries an unknown policy")
	}
}

// ReadMemory implements spec.md §4.8.
func (m *Map) ReadMemory(out []byte, addr Address) (int, error) {
	size := uint64(len(out))

	a, ok := m.idx.findContaining(addr, size)
	if !ok {
		if p, pok := m.process.Resolve(); pok && p.Alive() {
			return p.Read(addr, out)
		}

		if t, tok := m.target.Resolve(); tok {
			return t.ReadStaticMemory(addr, out)
		}

		return 0, newErr(OutOfRange, "read covers no allocation, remote, or target")
	}

	offset := addr - a.AlignedStart
	if uint64(offset) > a.Size { // defensive; should not occur given findContaining
		return 0, newErr(OutOfRange, "offset past end of allocation")
	}

	switch a.Policy {
	case HostOnly:
		return readShadow(a, offset, out)

	case Mirror:
		if p, pok := m.process.Resolve(); pok && p.Alive() {
			return p.Read(addr, out)
		}

		return readShadow(a, offset, out)

	case ProcessOnly:
		if p, pok := m.process.Resolve(); pok && p.Alive() {
			return p.Read(addr, out)
		}
		// No remote to read from: documented silent no-op, zero bytes read.
		return 0, nil

	default:
		return 0, newErr(InvalidPolicy, "allocation carries an unknown policy")
	}
}

func readShadow(a *Allocation, offset Address, out []byte) (int, error) {
	if len(a.Shadow) == 0 {
		return 0, newErr(EmptyShadow, "allocation missing shadow buffer")
	}

	if uint64(offset)+uint64(len(out)) > uint64(len(a.Shadow)) {
		return 0, newErr(ShortShadow, "read would run past the end of the shadow buffer")
	}

	return copy(out, a.Shadow[offset:uint64(offset)+uint64(len(out))]), nil
}

// GetAllocSize implements spec.md §4.9.
func (m *Map) GetAllocSize(addr Address) (uint64, error) {
	a, ok := m.idx.findContaining(addr, 0)
	if !ok {
		return 0, newErr(OutOfRange, "no allocation contains the address")
	}

	return uint64(a.end() - addr), nil
}

// MemoryView is the byte view returned by GetMemoryData, annotated with the
// byte order and pointer width in effect at the time it was produced.
type MemoryView struct {
	Bytes           []byte
	ByteOrder       binary.ByteOrder
	AddressByteSize uint32
}

// GetMemoryData implements spec.md §4.10.
func (m *Map) GetMemoryData(addr Address, size uint64) (MemoryView, error) {
	a, ok := m.idx.findContaining(addr, size)
	if !ok {
		return MemoryView{}, newErr(OutOfRange, "no allocation contains the requested range")
	}

	offset := addr - a.AlignedStart

	switch a.Policy {
	case ProcessOnly:
		return MemoryView{}, newErr(HostUnavailable, "get_memory_data is unsupported for ProcessOnly allocations")

	case HostOnly:
		return viewShadow(a, offset, size, m)

	case Mirror:
		p, pok := m.process.Resolve()
		if !pok || !p.Alive() {
			// Open question preserved as-is (spec.md §9): with Mirror and no
			// remote, the extractor is left unset rather than falling back
			// to the shadow, so this reports EmptyShadow even if the shadow
			// itself has data.
			return MemoryView{}, newErr(EmptyShadow, "get_memory_data under Mirror with no remote attached")
		}

		if len(a.Shadow) == 0 {
			return MemoryView{}, newErr(EmptyShadow, "mirror allocation missing shadow buffer")
		}

		if _, err := p.Read(a.AlignedStart, a.Shadow); err != nil {
			return MemoryView{}, newErrWrap(RemoteAllocFailed, "refreshing shadow from remote failed", err)
		}

		return viewShadow(a, offset, size, m)

	default:
		return MemoryView{}, newErr(InvalidPolicy, "allocation carries an unknown policy")
	}
}

func viewShadow(a *Allocation, offset Address, size uint64, m *Map) (MemoryView, error) {
	if len(a.Shadow) == 0 {
		return MemoryView{}, newErr(EmptyShadow, "allocation missing shadow buffer")
	}

	if uint64(offset)+size > uint64(len(a.Shadow)) {
		return MemoryView{}, newErr(ShortShadow, "requested range exceeds the shadow buffer")
	}

	return MemoryView{
		Bytes:           a.Shadow[offset : uint64(offset)+size],
		ByteOrder:       m.byteOrder(),
		AddressByteSize: m.addressByteSize(),
	}, nil
}
