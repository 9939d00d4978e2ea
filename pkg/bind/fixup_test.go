package bind

import (
	"encoding/binary"
	"errors"
	"testing"
)

func TestFixupAbsolute32BigEndian32BitImage(t *testing.T) {
	sym := &fakeSymbol{name: "_g", ordinal: 1, linked: 0x00020000}
	img, _ := newTestImage([]Symbol{sym}, []Segment{fakeSegment{vaddr: 0x1000, memsize: 0x1000}}, 4)
	img.ByteOrder = binary.BigEndian

	blob := []byte{}
	blob = append(blob, byte(OpSetDylibOrdinalImm)|1)
	blob = append(blob, byte(OpSetTypeImm)|2)
	blob = append(blob, byte(OpSetSymbolTrailingFlagsImm)|0)
	blob = append(blob, []byte("_g")...)
	blob = append(blob, 0)
	blob = append(blob, byte(OpSetSegmentAndOffsetULEB)|0)
	blob = append(blob, EncodeULEB(0x4)...)
	blob = append(blob, byte(OpDoBind))
	blob = append(blob, byte(OpDone))

	if _, err := BindNormal(img, blob); err != nil {
		t.Fatalf("BindNormal: %v", err)
	}

	mem := img.Memory.(*fakeMemory)
	got := binary.BigEndian.Uint32(mem.buf[0x1004:0x1008])
	if got != 0x00020000 {
		t.Fatalf("stored value = %#x, want 0x20000", got)
	}
	if len(sym.bindXrefs) != 1 || sym.bindXrefs[0] != 0x1004 {
		t.Fatalf("bind_xrefs = %v, want [0x1004]", sym.bindXrefs)
	}
}

func TestFixupAddendAddedToLinkedSymbol(t *testing.T) {
	sym := &fakeSymbol{name: "_v", ordinal: 1, linked: 0x9000}
	img, _ := newTestImage([]Symbol{sym}, []Segment{fakeSegment{vaddr: 0x1000, memsize: 0x1000}}, 8)

	blob := []byte{}
	blob = append(blob, byte(OpSetDylibOrdinalImm)|1)
	blob = append(blob, byte(OpSetTypeImm)|1)
	blob = append(blob, byte(OpSetAddendSLEB))
	blob = append(blob, EncodeSLEB(-16)...)
	blob = append(blob, byte(OpSetSymbolTrailingFlagsImm)|0)
	blob = append(blob, []byte("_v")...)
	blob = append(blob, 0)
	blob = append(blob, byte(OpSetSegmentAndOffsetULEB)|0)
	blob = append(blob, EncodeULEB(0)...)
	blob = append(blob, byte(OpDoBind))
	blob = append(blob, byte(OpDone))

	if _, err := BindNormal(img, blob); err != nil {
		t.Fatalf("BindNormal: %v", err)
	}

	mem := img.Memory.(*fakeMemory)
	got := binary.LittleEndian.Uint64(mem.buf[0x1000:0x1008])
	if got != 0x9000-16 {
		t.Fatalf("stored value = %#x, want %#x", got, 0x9000-16)
	}
}

func TestDoBindAddAddrImmScaled(t *testing.T) {
	sym := &fakeSymbol{name: "_s", ordinal: 1, linked: 0x1111}
	img, _ := newTestImage([]Symbol{sym}, []Segment{fakeSegment{vaddr: 0x1000, memsize: 0x1000}}, 8)

	blob := []byte{}
	blob = append(blob, byte(OpSetDylibOrdinalImm)|1)
	blob = append(blob, byte(OpSetTypeImm)|1)
	blob = append(blob, byte(OpSetSymbolTrailingFlagsImm)|0)
	blob = append(blob, []byte("_s")...)
	blob = append(blob, 0)
	blob = append(blob, byte(OpSetSegmentAndOffsetULEB)|0)
	blob = append(blob, EncodeULEB(0)...)
	blob = append(blob, byte(OpDoBindAddAddrImmScaled)|2) // scale=2 -> skip 16 then +8
	blob = append(blob, byte(OpDoBind))
	blob = append(blob, byte(OpDone))

	res, err := BindNormal(img, blob)
	if err != nil {
		t.Fatalf("BindNormal: %v", err)
	}
	if res.BoundCount != 2 {
		t.Fatalf("BoundCount = %d, want 2", res.BoundCount)
	}
	want := []uint64{0x1000, 0x1018}
	if len(sym.bindXrefs) != 2 || sym.bindXrefs[0] != want[0] || sym.bindXrefs[1] != want[1] {
		t.Fatalf("bind_xrefs = %v, want %v", sym.bindXrefs, want)
	}
}

func TestOpcodeErrorUnwrapsToSentinel(t *testing.T) {
	img, _ := newTestImage(nil, []Segment{fakeSegment{vaddr: 0, memsize: 0x10}}, 8)
	blob := []byte{0xD0, byte(OpDone)}
	_, err := BindNormal(img, blob, Strict(true))
	if err == nil {
		t.Fatal("expected error")
	}
	var opErr *OpcodeError
	if !errors.As(err, &opErr) {
		t.Fatalf("error %v is not *OpcodeError", err)
	}
	if opErr.Opcode != 0xD0 {
		t.Fatalf("Opcode = %#x, want 0xD0", opErr.Opcode)
	}
	if !errors.Is(err, ErrUnknownOpcode) {
		t.Fatalf("errors.Is(err, ErrUnknownOpcode) = false")
	}
}
