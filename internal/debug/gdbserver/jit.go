package gdbserver

import (
	"encoding/binary"
	"strconv"
	"strings"

	"github.com/orizon-lang/orizon/internal/debug/memmap"
)

// inferiorProcess adapts Server's flat mem map into a memmap.Process, so
// the JIT allocator and the plain 'm'/'M' RSP handlers share one backing
// store under one mutex. Attach/Detach flip jitAttached to simulate a
// remote that comes and goes, the way a real inferior does across run/stop
// cycles.
type inferiorProcess struct {
	s *Server
}

func (p *inferiorProcess) Alive() bool {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()

	return p.s.jitAttached
}

func (p *inferiorProcess) SupportsJIT() bool { return true }

func (p *inferiorProcess) Allocate(size uint64, _ memmap.Permissions) (memmap.Address, error) {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()

	addr := p.s.nextJITAddr
	p.s.nextJITAddr += size
	p.s.jitAllocs[uint64(addr)] = size

	return memmap.Address(addr), nil
}

func (p *inferiorProcess) ZeroAllocate(size uint64, perm memmap.Permissions) (memmap.Address, error) {
	addr, err := p.Allocate(size, perm)
	if err != nil {
		return memmap.InvalidAddr, err
	}

	p.s.mu.Lock()
	for i := uint64(0); i < size; i++ {
		p.s.mem[uint64(addr)+i] = 0
	}
	p.s.mu.Unlock()

	return addr, nil
}

func (p *inferiorProcess) Deallocate(addr memmap.Address) error {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()

	size, ok := p.s.jitAllocs[uint64(addr)]
	if !ok {
		return nil
	}

	for i := uint64(0); i < size; i++ {
		delete(p.s.mem, uint64(addr)+i)
	}

	delete(p.s.jitAllocs, uint64(addr))

	return nil
}

func (p *inferiorProcess) Read(addr memmap.Address, out []byte) (int, error) {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()

	for i := range out {
		out[i] = p.s.mem[uint64(addr)+uint64(i)]
	}

	return len(out), nil
}

func (p *inferiorProcess) Write(addr memmap.Address, data []byte) (int, error) {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()

	for i, b := range data {
		p.s.mem[uint64(addr)+uint64(i)] = b
	}

	return len(data), nil
}

func (p *inferiorProcess) ByteOrder() binary.ByteOrder { return binary.LittleEndian }
func (p *inferiorProcess) AddressByteSize() uint32     { return 8 }

// handleJITAllocate implements the `_M<hex-size>,<hex-permissions>` packet:
// allocate size bytes of JIT scratch space, mirrored onto the simulated
// inferior when attached and falling back to host-only storage otherwise.
func (s *Server) handleJITAllocate(cmd string) string {
	body := strings.TrimPrefix(cmd, "_M")

	parts := strings.SplitN(body, ",", 2)
	if len(parts) != 2 {
		return "E01"
	}

	size, err1 := strconv.ParseUint(parts[0], 16, 64)
	permBits, err2 := strconv.ParseUint(parts[1], 16, 32)

	if err1 != nil || err2 != nil || size == 0 {
		return "E01"
	}

	addr, err := s.jit.Malloc(size, 8, memmap.Permissions(permBits), memmap.Mirror, true)
	if err != nil {
		return "E01"
	}

	return strconv.FormatUint(uint64(addr), 16)
}

// handleJITDeallocate implements the `_m<hex-addr>` packet.
func (s *Server) handleJITDeallocate(cmd string) string {
	addrHex := strings.TrimPrefix(cmd, "_m")

	addr, err := strconv.ParseUint(addrHex, 16, 64)
	if err != nil {
		return "E01"
	}

	if err := s.jit.Free(memmap.Address(addr)); err != nil {
		return "E01"
	}

	return "OK"
}
