package bind

import "testing"

func TestReadULEBRoundTrip(t *testing.T) {
	cases := []uint64{0, 1, 0x7f, 0x80, 0xff, 0x3fff, 0x4000, 1 << 35, ^uint64(0)}
	for _, n := range cases {
		encoded := EncodeULEB(n)
		got, consumed := ReadULEB(encoded, 0)
		if got != n {
			t.Errorf("ReadULEB(EncodeULEB(%#x)) = %#x, want %#x", n, got, n)
		}
		if consumed != len(encoded) {
			t.Errorf("ReadULEB consumed %d bytes, want %d", consumed, len(encoded))
		}
	}
}

func TestReadSLEBRoundTrip(t *testing.T) {
	cases := []int64{0, 1, -1, 63, -64, 64, -65, 1 << 40, -(1 << 40)}
	for _, n := range cases {
		encoded := EncodeSLEB(n)
		got, consumed := ReadSLEB(encoded, 0)
		if got != n {
			t.Errorf("ReadSLEB(EncodeSLEB(%d)) = %d, want %d", n, got, n)
		}
		if consumed != len(encoded) {
			t.Errorf("ReadSLEB consumed %d bytes, want %d", consumed, len(encoded))
		}
	}
}

func TestReadULEBAtOffset(t *testing.T) {
	blob := append([]byte{0xAA, 0xBB}, EncodeULEB(300)...)
	got, consumed := ReadULEB(blob, 2)
	if got != 300 {
		t.Fatalf("got %d, want 300", got)
	}
	if consumed != 2 {
		t.Fatalf("consumed %d, want 2", consumed)
	}
}

func TestReadULEBExhaustedBlob(t *testing.T) {
	// No terminator byte before the blob runs out: the decoder returns
	// whatever it accumulated rather than failing, per spec §4.1 — the
	// dispatcher is the one that notices exhaustion.
	blob := []byte{0x80, 0x80}
	value, consumed := ReadULEB(blob, 0)
	if consumed != 2 {
		t.Fatalf("consumed %d, want 2", consumed)
	}
	if value != 0 {
		t.Fatalf("value %#x, want 0", value)
	}
}

func TestReadSLEBSignBitHandling(t *testing.T) {
	// -2 encodes as a single byte 0x7e (0b0111_1110): bit 6 set, so the
	// decoder must sign-extend.
	got, consumed := ReadSLEB([]byte{0x7e}, 0)
	if got != -2 {
		t.Fatalf("got %d, want -2", got)
	}
	if consumed != 1 {
		t.Fatalf("consumed %d, want 1", consumed)
	}
}
