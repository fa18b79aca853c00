package memmap

import (
	"encoding/binary"
	"errors"
	"testing"
)

// Property 5 (spec.md §8): scalar round trip for every supported width, in
// both byte orders.
func TestScalarRoundTripBothOrdersAllWidths(t *testing.T) {
	for _, order := range []binary.ByteOrder{binary.LittleEndian, binary.BigEndian} {
		for _, width := range []uint32{1, 2, 4, 8} {
			p := newMockProcess()
			p.order = order
			m := withRemote(p)

			addr, err := m.Malloc(8, 8, PermRead|PermWrite, Mirror, true)
			if err != nil {
				t.Fatalf("Malloc: %v", err)
			}

			var value uint64

			switch width {
			case 1:
				value = 0x7A
			case 2:
				value = 0xBEEF
			case 4:
				value = 0xCAFEBABE
			default:
				value = 0x0123456789ABCDEF
			}

			if err := m.WriteScalarToMemory(addr, value, width); err != nil {
				t.Fatalf("WriteScalarToMemory(width=%d, order=%v): %v", width, order, err)
			}

			got, err := m.ReadScalarFromMemory(addr, width)
			if err != nil {
				t.Fatalf("ReadScalarFromMemory(width=%d, order=%v): %v", width, order, err)
			}

			if got != value {
				t.Fatalf("width=%d order=%v: got %#x, want %#x", width, order, got, value)
			}
		}
	}
}

// Property 6: pointer round trip at both 4- and 8-byte pointer widths.
func TestPointerRoundTripBothWidths(t *testing.T) {
	for _, width := range []uint32{4, 8} {
		p := newMockProcess()
		p.ptrSize = width
		m := withRemote(p)

		addr, err := m.Malloc(8, 8, PermRead|PermWrite, Mirror, true)
		if err != nil {
			t.Fatalf("Malloc: %v", err)
		}

		var ptr Address = 0x1000

		if width == 8 {
			ptr = 0x0011223344556677
		}

		if err := m.WritePointerToMemory(addr, ptr); err != nil {
			t.Fatalf("WritePointerToMemory(width=%d): %v", width, err)
		}

		got, err := m.ReadPointerFromMemory(addr)
		if err != nil {
			t.Fatalf("ReadPointerFromMemory(width=%d): %v", width, err)
		}

		if got != ptr {
			t.Fatalf("width=%d: got %#x, want %#x", width, uint64(got), uint64(ptr))
		}
	}
}

func TestScalarUnsupportedSize(t *testing.T) {
	m := noRemoteNoTarget()

	addr, err := m.Malloc(8, 8, PermRead|PermWrite, HostOnly, false)
	if err != nil {
		t.Fatalf("Malloc: %v", err)
	}

	if _, err := m.ReadScalarFromMemory(addr, 3); !errors.Is(err, ErrUnsupportedSize) {
		t.Fatalf("ReadScalarFromMemory(size=3): err = %v, want UnsupportedSize", err)
	}

	if err := m.WriteScalarToMemory(addr, 1, 0); !errors.Is(err, ErrZeroSize) {
		t.Fatalf("WriteScalarToMemory(size=0): err = %v, want ZeroSize", err)
	}
}

func TestScalarNaturalSizeIsEightBytes(t *testing.T) {
	m := noRemoteNoTarget()

	addr, err := m.Malloc(8, 8, PermRead|PermWrite, HostOnly, false)
	if err != nil {
		t.Fatalf("Malloc: %v", err)
	}

	if err := m.WriteScalarToMemory(addr, 0x42, NaturalSize); err != nil {
		t.Fatalf("WriteScalarToMemory: %v", err)
	}

	got, err := m.ReadScalarFromMemory(addr, 8)
	if err != nil {
		t.Fatalf("ReadScalarFromMemory: %v", err)
	}

	if got != 0x42 {
		t.Fatalf("got %#x, want 0x42", got)
	}
}

// §4.3's size-rounding rule: zero becomes alignment, a size already a
// multiple of alignment is left unchanged, and any other size rounds up
// to the next multiple of alignment. The expression adds alignment (not
// alignment-1) before masking, which gives the same next multiple.
func TestAllocSizeRoundingRule(t *testing.T) {
	cases := []struct {
		size, alignment, want uint64
	}{
		{size: 0, alignment: 16, want: 16},
		{size: 16, alignment: 16, want: 16},
		{size: 17, alignment: 16, want: 32},
		{size: 100, alignment: 16, want: 112},
		{size: 1, alignment: 8, want: 16},
	}

	for _, c := range cases {
		got := roundUpAllocSize(c.size, c.alignment)
		if got != c.want {
			t.Fatalf("roundUpAllocSize(%d, %d) = %d, want %d", c.size, c.alignment, got, c.want)
		}
	}
}
