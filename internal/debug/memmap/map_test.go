package memmap

import (
	"bytes"
	"errors"
	"log"
	"testing"
)

func noRemoteNoTarget() *Map {
	m := NewMap(WeakRef[Process]{}, WeakRef[Target]{})
	m.SetLogger(log.New(bytes.NewBuffer(nil), "", 0))

	return m
}

func withRemote(p *mockProcess) *Map {
	m := NewMap(NewStaticRef[Process](p, true), WeakRef[Target]{})
	m.SetLogger(log.New(bytes.NewBuffer(nil), "", 0))

	return m
}

// Scenario 1 (spec.md §8): HostOnly malloc rounds size up, aligns the
// start, and reads back zeros.
func TestMallocHostOnlyRoundsSizeAndZeros(t *testing.T) {
	m := noRemoteNoTarget()

	addr, err := m.Malloc(100, 16, PermRead|PermWrite, HostOnly, true)
	if err != nil {
		t.Fatalf("Malloc: %v", err)
	}

	if addr%16 != 0 {
		t.Fatalf("address %#x is not 16-aligned", uint64(addr))
	}

	size, err := m.GetAllocSize(addr)
	if err != nil {
		t.Fatalf("GetAllocSize: %v", err)
	}

	if size != 112 {
		t.Fatalf("size = %d, want 112 (100 rounded up to next multiple of 16)", size)
	}

	out := make([]byte, size)
	if _, err := m.ReadMemory(out, addr); err != nil {
		t.Fatalf("ReadMemory: %v", err)
	}

	for i, b := range out {
		if b != 0 {
			t.Fatalf("byte %d = %d, want 0", i, b)
		}
	}
}

// Scenario 2: Mirror with no remote silently downgrades to HostOnly and
// round-trips through the shadow buffer.
func TestMallocMirrorDowngradesWithoutRemote(t *testing.T) {
	m := noRemoteNoTarget()

	addr, err := m.Malloc(8, 8, PermRead|PermWrite, Mirror, false)
	if err != nil {
		t.Fatalf("Malloc: %v", err)
	}

	want := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	if err := m.WriteMemory(addr, want); err != nil {
		t.Fatalf("WriteMemory: %v", err)
	}

	got := make([]byte, 8)
	if _, err := m.ReadMemory(got, addr); err != nil {
		t.Fatalf("ReadMemory: %v", err)
	}

	if !bytes.Equal(got, want) {
		t.Fatalf("round trip = %v, want %v", got, want)
	}
}

// Scenario 3: ProcessOnly allocates on the remote, with no shadow, and
// round-trips through it.
func TestMallocProcessOnlyRoutesToRemote(t *testing.T) {
	p := newMockProcess()
	m := withRemote(p)

	addr, err := m.Malloc(32, 8, PermRead|PermWrite|PermExecute, ProcessOnly, true)
	if err != nil {
		t.Fatalf("Malloc: %v", err)
	}

	if addr != 0x70000000 {
		t.Fatalf("addr = %#x, want 0x70000000", uint64(addr))
	}

	a, ok := m.idx.get(addr)
	if !ok {
		t.Fatalf("allocation missing from index")
	}

	if len(a.Shadow) != 0 {
		t.Fatalf("ProcessOnly allocation must not carry a shadow buffer")
	}

	want := bytes.Repeat([]byte{0xAB}, 32)
	if err := m.WriteMemory(addr, want); err != nil {
		t.Fatalf("WriteMemory: %v", err)
	}

	got := make([]byte, 32)
	if _, err := m.ReadMemory(got, addr); err != nil {
		t.Fatalf("ReadMemory: %v", err)
	}

	if !bytes.Equal(got, want) {
		t.Fatalf("round trip = %v, want %v", got, want)
	}
}

// Scenario 4: pointer round trip at 4-byte little-endian width.
func TestPointerRoundTripLittleEndian32(t *testing.T) {
	p := newMockProcess()
	p.ptrSize = 4
	m := withRemote(p)

	addr, err := m.Malloc(8, 8, PermRead|PermWrite, Mirror, true)
	if err != nil {
		t.Fatalf("Malloc: %v", err)
	}

	if err := m.WritePointerToMemory(addr, 0xDEADBEEF); err != nil {
		t.Fatalf("WritePointerToMemory: %v", err)
	}

	got, err := m.ReadPointerFromMemory(addr)
	if err != nil {
		t.Fatalf("ReadPointerFromMemory: %v", err)
	}

	if got != 0xDEADBEEF {
		t.Fatalf("pointer = %#x, want 0xDEADBEEF", uint64(got))
	}
}

// Scenario 5: Free on a ProcessOnly allocation deallocates exactly once on
// the remote, and a second Free reports NotFound.
func TestFreeProcessOnlyCallsRemoteOnce(t *testing.T) {
	p := newMockProcess()
	m := withRemote(p)

	addr, err := m.Malloc(16, 8, PermRead|PermWrite, ProcessOnly, false)
	if err != nil {
		t.Fatalf("Malloc: %v", err)
	}

	a, _ := m.idx.get(addr)
	rawStart := a.RawStart

	if err := m.Free(addr); err != nil {
		t.Fatalf("Free: %v", err)
	}

	if len(p.deallocated) != 1 || p.deallocated[0] != rawStart {
		t.Fatalf("deallocated = %v, want exactly [%#x]", p.deallocated, uint64(rawStart))
	}

	if err := m.Free(addr); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second Free: err = %v, want NotFound", err)
	}
}

// Scenario 6 (spec.md §8, generalized): find_free_space always computes
// the next host-only start from the previous entry's end rounded up to a
// 4096-byte page (§4.2) — for allocations this small, that means each
// successive host-only allocation lands on its own fresh page, strictly
// increasing aligned_start (property 9) with 4096-byte spacing (§9).
func TestHostOnlyBumpHeapPageGranularity(t *testing.T) {
	m := noRemoteNoTarget()

	want := []Address{0, 0x1000, 0x2000, 0x3000}

	var prev Address = InvalidAddr

	for i, w := range want {
		addr, err := m.Malloc(100, 16, PermRead|PermWrite, HostOnly, false)
		if err != nil {
			t.Fatalf("Malloc[%d]: %v", i, err)
		}

		if addr != w {
			t.Fatalf("allocation %d = %#x, want %#x", i, uint64(addr), uint64(w))
		}

		if prev != InvalidAddr && addr <= prev {
			t.Fatalf("allocation %d address %#x did not strictly increase over %#x", i, uint64(addr), uint64(prev))
		}

		prev = addr
	}
}

// Property: leak is idempotent; repeated calls after the first are no-ops,
// and Free still works afterward (leak only changes shutdown behavior).
func TestLeakIdempotentAndFreeStillWorks(t *testing.T) {
	m := noRemoteNoTarget()

	addr, _ := m.Malloc(16, 8, PermRead|PermWrite, HostOnly, false)

	if err := m.Leak(addr); err != nil {
		t.Fatalf("Leak: %v", err)
	}

	if err := m.Leak(addr); err != nil {
		t.Fatalf("second Leak: %v", err)
	}

	if err := m.Free(addr); err != nil {
		t.Fatalf("Free after Leak: %v", err)
	}
}

// Property: Shutdown frees non-leaked allocations on the remote and drops
// leaked ones without deallocating them.
func TestShutdownFreesOnlyNonLeaked(t *testing.T) {
	p := newMockProcess()
	m := withRemote(p)

	leaked, err := m.Malloc(16, 8, PermRead|PermWrite, ProcessOnly, false)
	if err != nil {
		t.Fatalf("Malloc leaked: %v", err)
	}

	if err := m.Leak(leaked); err != nil {
		t.Fatalf("Leak: %v", err)
	}

	freed, err := m.Malloc(16, 8, PermRead|PermWrite, ProcessOnly, false)
	if err != nil {
		t.Fatalf("Malloc freed: %v", err)
	}

	leakedAlloc, _ := m.idx.get(leaked)
	freedAlloc, _ := m.idx.get(freed)

	m.Shutdown()

	for _, d := range p.deallocated {
		if d == leakedAlloc.RawStart {
			t.Fatalf("leaked allocation's raw address %#x was deallocated", uint64(d))
		}
	}

	found := false

	for _, d := range p.deallocated {
		if d == freedAlloc.RawStart {
			found = true
		}
	}

	if !found {
		t.Fatalf("non-leaked allocation's raw address %#x was not deallocated", uint64(freedAlloc.RawStart))
	}

	if m.idx.len() != 0 {
		t.Fatalf("index has %d entries after shutdown, want 0", m.idx.len())
	}
}

// Property: disjointness and containment hold for every live allocation
// across a mix of policies.
func TestDisjointnessAndContainment(t *testing.T) {
	p := newMockProcess()
	m := withRemote(p)

	var addrs []Address

	policies := []AllocationPolicy{HostOnly, Mirror, ProcessOnly}
	for i, pol := range policies {
		addr, err := m.Malloc(uint64(40+i*8), 8, PermRead|PermWrite, pol, false)
		if err != nil {
			t.Fatalf("Malloc[%s]: %v", pol, err)
		}

		addrs = append(addrs, addr)
	}

	allocs := m.idx.all()
	for i := range allocs {
		for j := range allocs {
			if i == j {
				continue
			}

			if intervalsIntersect(allocs[i].AlignedStart, allocs[i].Size, allocs[j].AlignedStart, allocs[j].Size) {
				t.Fatalf("allocations %d and %d overlap", i, j)
			}
		}
	}

	for _, addr := range addrs {
		a, ok := m.idx.get(addr)
		if !ok {
			t.Fatalf("allocation at %#x missing from index", uint64(addr))
		}

		found, ok := m.idx.findContaining(a.AlignedStart, a.Size)
		if !ok || found != a {
			t.Fatalf("findContaining(%#x, %d) did not return the allocation itself", uint64(addr), a.Size)
		}
	}
}

// get_memory_data under Mirror with no remote is EmptyShadow, not a
// fallback to the shadow buffer (spec.md §9 open question, preserved).
func TestGetMemoryDataMirrorNoRemoteIsEmptyShadow(t *testing.T) {
	m := noRemoteNoTarget()

	addr, err := m.Malloc(16, 8, PermRead|PermWrite, Mirror, false)
	if err != nil {
		t.Fatalf("Malloc: %v", err)
	}

	// The Mirror request downgraded to HostOnly since there is no remote,
	// so force a genuine Mirror allocation record to exercise the branch.
	a, _ := m.idx.get(addr)
	a.Policy = Mirror

	if _, err := m.GetMemoryData(addr, 4); !errors.Is(err, ErrEmptyShadow) {
		t.Fatalf("GetMemoryData: err = %v, want EmptyShadow", err)
	}
}

func TestGetMemoryDataProcessOnlyIsHostUnavailable(t *testing.T) {
	p := newMockProcess()
	m := withRemote(p)

	addr, err := m.Malloc(16, 8, PermRead|PermWrite, ProcessOnly, false)
	if err != nil {
		t.Fatalf("Malloc: %v", err)
	}

	if _, err := m.GetMemoryData(addr, 4); !errors.Is(err, ErrHostUnavailable) {
		t.Fatalf("GetMemoryData: err = %v, want HostUnavailable", err)
	}
}

func TestWriteMemoryOutOfRangeWithNoRemote(t *testing.T) {
	m := noRemoteNoTarget()

	if err := m.WriteMemory(0x9999, []byte{1}); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("WriteMemory: err = %v, want OutOfRange", err)
	}
}

func TestReadMemoryFallsBackToTargetStaticMemory(t *testing.T) {
	target := newMockTarget()
	target.static[0x4000] = 0x42

	m := NewMap(WeakRef[Process]{}, NewStaticRef[Target](target, true))

	out := make([]byte, 1)
	if _, err := m.ReadMemory(out, 0x4000); err != nil {
		t.Fatalf("ReadMemory: %v", err)
	}

	if out[0] != 0x42 {
		t.Fatalf("out[0] = %#x, want 0x42", out[0])
	}
}

func TestProcessOnlyRequiresRemote(t *testing.T) {
	m := noRemoteNoTarget()

	if _, err := m.Malloc(16, 8, PermRead|PermWrite, ProcessOnly, false); !errors.Is(err, ErrRemoteRequired) {
		t.Fatalf("Malloc: err = %v, want RemoteRequired", err)
	}
}

func TestProcessOnlyUnsupportedJIT(t *testing.T) {
	p := newMockProcess()
	p.jitCapable = false
	m := withRemote(p)

	if _, err := m.Malloc(16, 8, PermRead|PermWrite, ProcessOnly, false); !errors.Is(err, ErrRemoteUnsupported) {
		t.Fatalf("Malloc: err = %v, want RemoteUnsupported", err)
	}
}

func TestRemoteAllocFailedPropagates(t *testing.T) {
	p := newMockProcess()
	p.failAlloc = true
	m := withRemote(p)

	if _, err := m.Malloc(16, 8, PermRead|PermWrite, ProcessOnly, false); !errors.Is(err, ErrRemoteAllocFailed) {
		t.Fatalf("Malloc: err = %v, want RemoteAllocFailed", err)
	}
}
