package gdbserver

import "testing"

func TestRSP_JITAllocateWithoutInferiorDowngradesToHostOnly(t *testing.T) {
	srv := NewServer(buildDebugInfo(1))
	w, r := pipeServer(t, srv)

	_, _ = w.Write(encodeRSP("QStartNoAckMode"))
	_ = w.Flush()
	_, _, _ = readReply(r)

	// No inferior attached: allocation must still succeed, backed by the
	// map's host-only pseudo-heap rather than erroring out.
	_, _ = w.Write(encodeRSP("_M10,3"))
	_ = w.Flush()

	_, payload, err := readReply(r)
	if err != nil {
		t.Fatal(err)
	}

	if payload == "" || payload[0] == 'E' {
		t.Fatalf("expected an address, got %q", payload)
	}
}

func TestRSP_JITAllocateWriteReadThroughFlatMemory(t *testing.T) {
	srv := NewServer(buildDebugInfo(1))
	srv.AttachInferior()
	w, r := pipeServer(t, srv)

	_, _ = w.Write(encodeRSP("QStartNoAckMode"))
	_ = w.Flush()
	_, _, _ = readReply(r)

	_, _ = w.Write(encodeRSP("_M4,3"))
	_ = w.Flush()

	_, addrHex, err := readReply(r)
	if err != nil {
		t.Fatal(err)
	}

	if addrHex == "" || addrHex[0] == 'E' {
		t.Fatalf("allocation failed: %q", addrHex)
	}

	// The allocated region must be addressable through the plain 'M'/'m'
	// packets, since it shares Server's flat mem map.
	_, _ = w.Write(encodeRSP("M" + addrHex + ",4:deadbeef"))
	_ = w.Flush()

	_, payload, err := readReply(r)
	if err != nil {
		t.Fatal(err)
	}

	if payload != "OK" {
		t.Fatalf("expected OK, got %q", payload)
	}

	_, _ = w.Write(encodeRSP("m" + addrHex + ",4"))
	_ = w.Flush()

	_, payload, err = readReply(r)
	if err != nil {
		t.Fatal(err)
	}

	if payload != "deadbeef" {
		t.Fatalf("expected deadbeef, got %q", payload)
	}
}

func TestRSP_JITDeallocateThenReadIsZero(t *testing.T) {
	srv := NewServer(buildDebugInfo(1))
	srv.AttachInferior()
	w, r := pipeServer(t, srv)

	_, _ = w.Write(encodeRSP("QStartNoAckMode"))
	_ = w.Flush()
	_, _, _ = readReply(r)

	_, _ = w.Write(encodeRSP("_M8,3"))
	_ = w.Flush()

	_, addrHex, err := readReply(r)
	if err != nil {
		t.Fatal(err)
	}

	_, _ = w.Write(encodeRSP("M" + addrHex + ",1:ff"))
	_ = w.Flush()
	_, _, _ = readReply(r)

	_, _ = w.Write(encodeRSP("_m" + addrHex))
	_ = w.Flush()

	_, payload, err := readReply(r)
	if err != nil {
		t.Fatal(err)
	}

	if payload != "OK" {
		t.Fatalf("expected OK, got %q", payload)
	}

	_, _ = w.Write(encodeRSP("m" + addrHex + ",1"))
	_ = w.Flush()

	_, payload, err = readReply(r)
	if err != nil {
		t.Fatal(err)
	}

	if payload != "00" {
		t.Fatalf("expected deallocated byte to read back as 00, got %q", payload)
	}
}

func TestRSP_JITAllocateZeroSizeIsError(t *testing.T) {
	srv := NewServer(buildDebugInfo(1))
	w, r := pipeServer(t, srv)

	_, _ = w.Write(encodeRSP("QStartNoAckMode"))
	_ = w.Flush()
	_, _, _ = readReply(r)

	_, _ = w.Write(encodeRSP("_M0,3"))
	_ = w.Flush()

	_, payload, err := readReply(r)
	if err != nil {
		t.Fatal(err)
	}

	if payload != "E01" {
		t.Fatalf("expected E01, got %q", payload)
	}
}
