package memmap

import (
	"encoding/binary"
	"fmt"
)

// NaturalSize requested as a scalar's width means "use the value's own
// natural size", which this package takes to be 8 bytes: every scalar is
// carried internally as a uint64, the same canonical width gdbserver uses
// for its register file.
const NaturalSize uint32 = 0xFFFFFFFF

// effectiveByteOrder falls back to little-endian when neither a live
// remote nor a target can report one; the spec's "invalid" sentinel has no
// natural Go representation for an encoding/binary.ByteOrder.
func (m *Map) effectiveByteOrder() binary.ByteOrder {
	if bo := m.byteOrder(); bo != nil {
		return bo
	}

	return binary.LittleEndian
}

// WriteScalarToMemory implements spec.md §4.11: encode scalar into a
// fixed-width buffer using the current byte order, then WriteMemory.
func (m *Map) WriteScalarToMemory(addr Address, scalar uint64, size uint32) error {
	if size == NaturalSize {
		size = 8
	}

	if size == 0 {
		return newErr(ZeroSize, "scalar write of size 0")
	}

	switch size {
	case 1, 2, 4, 8:
	default:
		return newErr(UnsupportedSize, fmt.Sprintf("unsupported scalar size %d", size))
	}

	buf := make([]byte, size)
	order := m.effectiveByteOrder()

	switch size {
	case 1:
		buf[0] = byte(scalar)
	case 2:
		order.PutUint16(buf, uint16(scalar))
	case 4:
		order.PutUint32(buf, uint32(scalar))
	case 8:
		order.PutUint64(buf, scalar)
	}

	return m.WriteMemory(addr, buf)
}

// ReadScalarFromMemory implements spec.md §4.11.
func (m *Map) ReadScalarFromMemory(addr Address, size uint32) (uint64, error) {
	switch size {
	case 1, 2, 4, 8:
	default:
		return 0, newErr(UnsupportedSize, fmt.Sprintf("unsupported scalar size %d", size))
	}

	buf := make([]byte, size)

	n, err := m.ReadMemory(buf, addr)
	if err != nil {
		return 0, err
	}

	if uint32(n) < size {
		return 0, newErr(OutOfRange, "short read while decoding scalar")
	}

	order := m.effectiveByteOrder()

	switch size {
	case 1:
		return uint64(buf[0]), nil
	case 2:
		return uint64(order.Uint16(buf)), nil
	case 4:
		return uint64(order.Uint32(buf)), nil
	default:
		return order.Uint64(buf), nil
	}
}

// WritePointerToMemory implements spec.md §4.11's pointer shorthand.
func (m *Map) WritePointerToMemory(addr Address, ptr Address) error {
	width := m.addressByteSize()
	if width != 4 && width != 8 {
		return newErr(UnsupportedSize, "pointer width must resolve to 4 or 8 bytes")
	}

	return m.WriteScalarToMemory(addr, uint64(ptr), width)
}

// ReadPointerFromMemory implements spec.md §4.11's pointer shorthand.
func (m *Map) ReadPointerFromMemory(addr Address) (Address, error) {
	width := m.addressByteSize()
	if width != 4 && width != 8 {
		return InvalidAddr, newErr(UnsupportedSize, "pointer width must resolve to 4 or 8 bytes")
	}

	v, err := m.ReadScalarFromMemory(addr, width)
	if err != nil {
		return InvalidAddr, err
	}

	return Address(v), nil
}
