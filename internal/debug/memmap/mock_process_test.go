package memmap

import (
	"encoding/binary"
	"fmt"
)

// mockProcess is a minimal in-memory stand-in for a real inferior, used by
// every test in this package. It records calls the way the teacher's
// gdbserver.Server records simulated inferior memory, so shutdown/free
// tests can assert exactly which addresses were deallocated.
type mockProcess struct {
	mem map[Address][]byte

	order   binary.ByteOrder
	ptrSize uint32

	alive      bool
	jitCapable bool
	failAlloc  bool
	nextAddr   Address

	deallocated []Address
}

func newMockProcess() *mockProcess {
	return &mockProcess{
		mem:        make(map[Address][]byte),
		order:      binary.LittleEndian,
		ptrSize:    8,
		alive:      true,
		jitCapable: true,
		nextAddr:   0x70000000,
	}
}

func (p *mockProcess) Alive() bool       { return p.alive }
func (p *mockProcess) SupportsJIT() bool { return p.jitCapable }

func (p *mockProcess) Allocate(size uint64, _ Permissions) (Address, error) {
	if p.failAlloc {
		return InvalidAddr, fmt.Errorf("mock allocator out of memory")
	}

	addr := p.nextAddr
	p.nextAddr += Address(size)
	p.mem[addr] = make([]byte, size)

	return addr, nil
}

func (p *mockProcess) ZeroAllocate(size uint64, perm Permissions) (Address, error) {
	return p.Allocate(size, perm)
}

func (p *mockProcess) Deallocate(addr Address) error {
	p.deallocated = append(p.deallocated, addr)
	delete(p.mem, addr)

	return nil
}

func (p *mockProcess) Read(addr Address, out []byte) (int, error) {
	buf, ok := p.mem[addr]
	if !ok {
		// Tolerate reads into the middle of a tracked allocation.
		for base, data := range p.mem {
			if addr >= base && addr+Address(len(out)) <= base+Address(len(data)) {
				off := addr - base

				return copy(out, data[off:off+Address(len(out))]), nil
			}
		}

		return 0, fmt.Errorf("mock process: unmapped read at %#x", uint64(addr))
	}

	return copy(out, buf), nil
}

func (p *mockProcess) Write(addr Address, data []byte) (int, error) {
	buf, ok := p.mem[addr]
	if !ok {
		for base, existing := range p.mem {
			if addr >= base && addr+Address(len(data)) <= base+Address(len(existing)) {
				off := addr - base
				copy(existing[off:], data)

				return len(data), nil
			}
		}

		return 0, fmt.Errorf("mock process: unmapped write at %#x", uint64(addr))
	}

	copy(buf, data)

	return len(data), nil
}

func (p *mockProcess) ByteOrder() binary.ByteOrder { return p.order }
func (p *mockProcess) AddressByteSize() uint32     { return p.ptrSize }

// mockTarget supplies a fallback byte order/pointer width and a tiny
// static memory image, the way a read-only ELF/DWARF image would.
type mockTarget struct {
	order   binary.ByteOrder
	ptrSize uint32
	static  map[Address]byte
}

func newMockTarget() *mockTarget {
	return &mockTarget{order: binary.LittleEndian, ptrSize: 8, static: map[Address]byte{}}
}

func (t *mockTarget) ByteOrder() binary.ByteOrder { return t.order }
func (t *mockTarget) AddressByteSize() uint32     { return t.ptrSize }

func (t *mockTarget) ReadStaticMemory(addr Address, out []byte) (int, error) {
	for i := range out {
		b, ok := t.static[addr+Address(i)]
		if !ok {
			return i, fmt.Errorf("mock target: no static memory at %#x", uint64(addr)+uint64(i))
		}

		out[i] = b
	}

	return len(out), nil
}
