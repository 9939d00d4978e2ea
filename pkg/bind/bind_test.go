package bind

import (
	"encoding/binary"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// fakeSegment is the minimal Segment a test needs.
type fakeSegment struct {
	vaddr   uint64
	memsize uint64
}

func (s fakeSegment) VAddr() uint64   { return s.vaddr }
func (s fakeSegment) MemSize() uint64 { return s.memsize }

// fakeSymbol is a concrete, mutable Symbol used to seed a SymbolIndex
// with pre-existing (already-linked) image symbols.
type fakeSymbol struct {
	name      string
	ordinal   int64
	stab      bool
	linked    uint64
	bindXrefs []uint64
}

func (s *fakeSymbol) Name() string          { return s.name }
func (s *fakeSymbol) LibraryOrdinal() int64 { return s.ordinal }
func (s *fakeSymbol) IsStab() bool          { return s.stab }
func (s *fakeSymbol) LinkedAddr() uint64    { return s.linked }
func (s *fakeSymbol) RecordXref(location uint64) {
	s.bindXrefs = append(s.bindXrefs, location)
}

// fakeMemory is a flat byte buffer addressed directly by RVA, with an
// identity AddressTranslator (LVA == RVA) since these tests never model
// a separate file-offset space.
type fakeMemory struct {
	buf []byte
}

func newFakeMemory(size int) *fakeMemory { return &fakeMemory{buf: make([]byte, size)} }

func (m *fakeMemory) Store(rva uint64, data []byte) error {
	if int(rva)+len(data) > len(m.buf) {
		grown := make([]byte, int(rva)+len(data))
		copy(grown, m.buf)
		m.buf = grown
	}
	copy(m.buf[rva:], data)
	return nil
}

type identityTranslator struct{}

func (identityTranslator) ToRVA(lva uint64) uint64 { return lva }

func newTestImage(syms []Symbol, segs []Segment, pointerSize uint8) (*Image, *[]Symbol) {
	ordered := make([]Symbol, 0)
	return &Image{
		Segments:    segs,
		Symbols:     NewSymbolIndex(syms, &ordered),
		Memory:      newFakeMemory(0x2000),
		Translator:  identityTranslator{},
		ByteOrder:   binary.LittleEndian,
		PointerSize: pointerSize,
	}, &ordered
}

// Scenario 1: minimal pointer bind (spec §8).
func TestBindNormalMinimalPointerBind(t *testing.T) {
	foo := &fakeSymbol{name: "_foo", ordinal: 1, linked: 0x2000}
	img, _ := newTestImage([]Symbol{foo}, []Segment{fakeSegment{vaddr: 0x1000, memsize: 0x1000}}, 8)

	blob := []byte{}
	blob = append(blob, byte(OpSetDylibOrdinalImm)|1)
	blob = append(blob, byte(OpSetTypeImm)|1)
	blob = append(blob, byte(OpSetSymbolTrailingFlagsImm)|0)
	blob = append(blob, []byte("_foo")...)
	blob = append(blob, 0)
	blob = append(blob, byte(OpSetSegmentAndOffsetULEB)|0)
	blob = append(blob, EncodeULEB(0x10)...)
	blob = append(blob, byte(OpDoBind))
	blob = append(blob, byte(OpDone))

	res, err := BindNormal(img, blob)
	if err != nil {
		t.Fatalf("BindNormal: %v", err)
	}
	if res.BoundCount != 1 {
		t.Fatalf("BoundCount = %d, want 1", res.BoundCount)
	}

	mem := img.Memory.(*fakeMemory)
	got := mem.buf[0x1010 : 0x1010+8]
	want := make([]byte, 8)
	binary.LittleEndian.PutUint64(want, 0x2000)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("memory mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]uint64{0x1010}, foo.bindXrefs); diff != "" {
		t.Errorf("bind_xrefs mismatch (-want +got):\n%s", diff)
	}
}

// Scenario 2: imported symbol suppresses addend.
func TestBindNormalImportedSymbolSuppressesAddend(t *testing.T) {
	foo := &fakeSymbol{name: "_foo", ordinal: 1, linked: 0}
	img, _ := newTestImage([]Symbol{foo}, []Segment{fakeSegment{vaddr: 0x1000, memsize: 0x1000}}, 8)

	blob := []byte{}
	blob = append(blob, byte(OpSetDylibOrdinalImm)|1)
	blob = append(blob, byte(OpSetTypeImm)|1)
	blob = append(blob, byte(OpSetAddendSLEB))
	blob = append(blob, EncodeSLEB(0x100)...)
	blob = append(blob, byte(OpSetSymbolTrailingFlagsImm)|0)
	blob = append(blob, []byte("_foo")...)
	blob = append(blob, 0)
	blob = append(blob, byte(OpSetSegmentAndOffsetULEB)|0)
	blob = append(blob, EncodeULEB(0x10)...)
	blob = append(blob, byte(OpDoBind))
	blob = append(blob, byte(OpDone))

	if _, err := BindNormal(img, blob); err != nil {
		t.Fatalf("BindNormal: %v", err)
	}

	mem := img.Memory.(*fakeMemory)
	got := mem.buf[0x1010 : 0x1010+8]
	for _, b := range got {
		if b != 0 {
			t.Fatalf("expected all-zero bytes for unresolved import, got %x", got)
		}
	}
	if len(foo.bindXrefs) != 1 || foo.bindXrefs[0] != 0x1010 {
		t.Fatalf("bind_xrefs = %v, want [0x1010]", foo.bindXrefs)
	}
}

// Scenario 3: ULEB-times-skipping stride binding.
func TestBindNormalULEBTimesSkipping(t *testing.T) {
	foo := &fakeSymbol{name: "_foo", ordinal: 1, linked: 0x5000}
	img, _ := newTestImage([]Symbol{foo}, []Segment{fakeSegment{vaddr: 0x1000, memsize: 80}}, 8)

	blob := []byte{}
	blob = append(blob, byte(OpSetDylibOrdinalImm)|1)
	blob = append(blob, byte(OpSetTypeImm)|1)
	blob = append(blob, byte(OpSetSymbolTrailingFlagsImm)|0)
	blob = append(blob, []byte("_foo")...)
	blob = append(blob, 0)
	blob = append(blob, byte(OpSetSegmentAndOffsetULEB)|0)
	blob = append(blob, EncodeULEB(0)...)
	blob = append(blob, byte(OpDoBindULEBTimesSkippingULEB))
	blob = append(blob, EncodeULEB(5)...)
	blob = append(blob, EncodeULEB(8)...) // skip=8, pointer_size=8 -> stride 16
	blob = append(blob, byte(OpDone))

	res, err := BindNormal(img, blob)
	if err != nil {
		t.Fatalf("BindNormal: %v", err)
	}
	if res.BoundCount != 5 {
		t.Fatalf("BoundCount = %d, want 5", res.BoundCount)
	}
	want := []uint64{0x1000, 0x1010, 0x1020, 0x1030, 0x1040}
	if diff := cmp.Diff(want, foo.bindXrefs); diff != "" {
		t.Errorf("bind_xrefs mismatch (-want +got):\n%s", diff)
	}
}

// A 6th iteration of the same stride (spec §8 scenario 3's "sixth
// bounds-check") lands at offset 80, outside a 70-byte segment.
func TestBindNormalULEBTimesSkippingOverflowsSegment(t *testing.T) {
	foo := &fakeSymbol{name: "_foo", ordinal: 1, linked: 0x5000}
	img, _ := newTestImage([]Symbol{foo}, []Segment{fakeSegment{vaddr: 0x1000, memsize: 70}}, 8)

	blob := []byte{}
	blob = append(blob, byte(OpSetDylibOrdinalImm)|1)
	blob = append(blob, byte(OpSetTypeImm)|1)
	blob = append(blob, byte(OpSetSymbolTrailingFlagsImm)|0)
	blob = append(blob, []byte("_foo")...)
	blob = append(blob, 0)
	blob = append(blob, byte(OpSetSegmentAndOffsetULEB)|0)
	blob = append(blob, EncodeULEB(0)...)
	blob = append(blob, byte(OpDoBindULEBTimesSkippingULEB))
	blob = append(blob, EncodeULEB(6)...)
	blob = append(blob, EncodeULEB(8)...)
	blob = append(blob, byte(OpDone))

	if _, err := BindNormal(img, blob); err == nil {
		t.Fatal("expected InvalidBinary error for out-of-bounds stride, got nil")
	}
}

// Scenario 4: placeholder creation on symbol miss.
func TestBindNormalPlaceholderCreation(t *testing.T) {
	img, ordered := newTestImage(nil, []Segment{fakeSegment{vaddr: 0x1000, memsize: 0x1000}}, 8)

	blob := []byte{}
	blob = append(blob, byte(OpSetDylibOrdinalImm)|2)
	blob = append(blob, byte(OpSetTypeImm)|1)
	blob = append(blob, byte(OpSetSymbolTrailingFlagsImm)|0)
	blob = append(blob, []byte("_bar")...)
	blob = append(blob, 0)
	blob = append(blob, byte(OpSetSegmentAndOffsetULEB)|0)
	blob = append(blob, EncodeULEB(0x10)...)
	blob = append(blob, byte(OpDoBind))
	blob = append(blob, byte(OpDone))

	if _, err := BindNormal(img, blob); err != nil {
		t.Fatalf("BindNormal: %v", err)
	}

	if len(*ordered) != 1 {
		t.Fatalf("ordered symbols = %d, want 1", len(*ordered))
	}
	ph := (*ordered)[0]
	if ph.Name() != "_bar" || ph.LibraryOrdinal() != 2 {
		t.Fatalf("placeholder = (%q, %d), want (_bar, 2)", ph.Name(), ph.LibraryOrdinal())
	}

	mem := img.Memory.(*fakeMemory)
	got := mem.buf[0x1010 : 0x1010+8]
	for _, b := range got {
		if b != 0 {
			t.Fatalf("expected zero bytes for unresolved placeholder, got %x", got)
		}
	}
}

// Scenario 5: overflow-encoded negative delta wraps modulo 2**64.
func TestAddAddressWrapsModulo64Bits(t *testing.T) {
	s := NewState(8)
	s.Address = 0x20
	s.AddAddress(0xFFFFFFFFFFFFFFF0)
	if s.Address != 0x10 {
		t.Fatalf("Address = %#x, want 0x10", s.Address)
	}
}

func TestBindNormalAddAddrULEBOverflow(t *testing.T) {
	foo := &fakeSymbol{name: "_foo", ordinal: 1, linked: 0x5000}
	img, _ := newTestImage([]Symbol{foo}, []Segment{fakeSegment{vaddr: 0, memsize: 0x100}}, 8)

	blob := []byte{}
	blob = append(blob, byte(OpSetDylibOrdinalImm)|1)
	blob = append(blob, byte(OpSetTypeImm)|1)
	blob = append(blob, byte(OpSetSymbolTrailingFlagsImm)|0)
	blob = append(blob, []byte("_foo")...)
	blob = append(blob, 0)
	blob = append(blob, byte(OpSetSegmentAndOffsetULEB)|0)
	blob = append(blob, EncodeULEB(0x20)...)
	blob = append(blob, byte(OpAddAddrULEB))
	blob = append(blob, EncodeULEB(0xFFFFFFFFFFFFFFF0)...)
	blob = append(blob, byte(OpDone))

	s := NewState(img.PointerSize)
	if len(img.Segments) > 0 {
		seg := img.Segments[0]
		s.SegEndAddress = seg.VAddr() + seg.MemSize()
	}
	if err := dispatch(blob, s, img, normalTable(), false); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if s.Address != 0x10 {
		t.Fatalf("Address = %#x, want 0x10", s.Address)
	}
}

// Scenario 6: lazy record boundary resets state except Index.
func TestBindLazyRecordBoundaryResets(t *testing.T) {
	a := &fakeSymbol{name: "_a", ordinal: 1, linked: 0x4000}
	b := &fakeSymbol{name: "_b", ordinal: 2, linked: 0x6000}
	img, _ := newTestImage([]Symbol{a, b}, []Segment{fakeSegment{vaddr: 0x1000, memsize: 0x1000}}, 8)

	var blob []byte
	// record 1: ordinal 1, "_a", segment 0 offset 0x8, DO_BIND, DONE
	blob = append(blob, byte(OpSetDylibOrdinalImm)|1)
	blob = append(blob, byte(OpSetSymbolTrailingFlagsImm)|0)
	blob = append(blob, []byte("_a")...)
	blob = append(blob, 0)
	blob = append(blob, byte(OpSetSegmentAndOffsetULEB)|0)
	blob = append(blob, EncodeULEB(0x8)...)
	blob = append(blob, byte(OpDoBind))
	blob = append(blob, byte(OpDone))
	// record 2: sets ordinal 2 itself; "_b" is only registered under
	// ordinal 2, so the lookup matches b instead of synthesizing a
	// placeholder, and the bind lands at segment 0 offset 0x18.
	blob = append(blob, byte(OpSetDylibOrdinalImm)|2)
	blob = append(blob, byte(OpSetSymbolTrailingFlagsImm)|0)
	blob = append(blob, []byte("_b")...)
	blob = append(blob, 0)
	blob = append(blob, byte(OpSetSegmentAndOffsetULEB)|0)
	blob = append(blob, EncodeULEB(0x18)...)
	blob = append(blob, byte(OpDoBind))
	blob = append(blob, byte(OpDone))

	res, err := BindLazy(img, blob)
	if err != nil {
		t.Fatalf("BindLazy: %v", err)
	}
	if res.BoundCount != 2 {
		t.Fatalf("BoundCount = %d, want 2", res.BoundCount)
	}
	if len(a.bindXrefs) != 1 || a.bindXrefs[0] != 0x1008 {
		t.Fatalf("a.bindXrefs = %v, want [0x1008]", a.bindXrefs)
	}
	if len(b.bindXrefs) != 1 || b.bindXrefs[0] != 0x1018 {
		t.Fatalf("b.bindXrefs = %v, want [0x1018]", b.bindXrefs)
	}
}

func TestBindNormalAndLazyNilBlobIsNoop(t *testing.T) {
	img, _ := newTestImage(nil, nil, 8)
	if res, err := BindNormal(img, nil); err != nil || res.BoundCount != 0 {
		t.Fatalf("BindNormal(nil) = (%v, %v), want (0, nil)", res, err)
	}
	if res, err := BindLazy(img, nil); err != nil || res.BoundCount != 0 {
		t.Fatalf("BindLazy(nil) = (%v, %v), want (0, nil)", res, err)
	}
}

func TestBindNormalUnknownOpcodeStrictMode(t *testing.T) {
	img, _ := newTestImage(nil, []Segment{fakeSegment{vaddr: 0, memsize: 0x10}}, 8)
	blob := []byte{0xD0, byte(OpDone)} // 0xD0 has no handler
	if _, err := BindNormal(img, blob, Strict(true)); err == nil {
		t.Fatal("expected error in strict mode for unknown opcode")
	}
}

func TestBindNormalUnknownOpcodeNonStrictDesyncsButDoesNotFail(t *testing.T) {
	img, _ := newTestImage(nil, []Segment{fakeSegment{vaddr: 0, memsize: 0x10}}, 8)
	blob := []byte{0xD0, byte(OpDone)}
	res, err := BindNormal(img, blob)
	if err != nil {
		t.Fatalf("BindNormal: %v", err)
	}
	if res.BoundCount != 0 {
		t.Fatalf("BoundCount = %d, want 0", res.BoundCount)
	}
}

func TestBindNormalPCRel32(t *testing.T) {
	sym := &fakeSymbol{name: "_fn", ordinal: 1, linked: 0x3000}
	img, _ := newTestImage([]Symbol{sym}, []Segment{fakeSegment{vaddr: 0x1000, memsize: 0x1000}}, 8)

	blob := []byte{}
	blob = append(blob, byte(OpSetDylibOrdinalImm)|1)
	blob = append(blob, byte(OpSetTypeImm)|3)
	blob = append(blob, byte(OpSetSymbolTrailingFlagsImm)|0)
	blob = append(blob, []byte("_fn")...)
	blob = append(blob, 0)
	blob = append(blob, byte(OpSetSegmentAndOffsetULEB)|0)
	blob = append(blob, EncodeULEB(0x100)...)
	blob = append(blob, byte(OpDoBind))
	blob = append(blob, byte(OpDone))

	if _, err := BindNormal(img, blob); err != nil {
		t.Fatalf("BindNormal: %v", err)
	}

	mem := img.Memory.(*fakeMemory)
	location := uint64(0x1100)
	want := uint32(0x3000 - (location + 4))
	got := binary.LittleEndian.Uint32(mem.buf[location : location+4])
	if got != want {
		t.Fatalf("pcrel32 value = %#x, want %#x", got, want)
	}
}

func TestBindNormalUnknownBindingTypeIsFatal(t *testing.T) {
	sym := &fakeSymbol{name: "_fn", ordinal: 1, linked: 0x3000}
	img, _ := newTestImage([]Symbol{sym}, []Segment{fakeSegment{vaddr: 0x1000, memsize: 0x1000}}, 8)

	blob := []byte{}
	blob = append(blob, byte(OpSetDylibOrdinalImm)|1)
	blob = append(blob, byte(OpSetTypeImm)|7)
	blob = append(blob, byte(OpSetSymbolTrailingFlagsImm)|0)
	blob = append(blob, []byte("_fn")...)
	blob = append(blob, 0)
	blob = append(blob, byte(OpSetSegmentAndOffsetULEB)|0)
	blob = append(blob, EncodeULEB(0x10)...)
	blob = append(blob, byte(OpDoBind))
	blob = append(blob, byte(OpDone))

	if _, err := BindNormal(img, blob); err == nil {
		t.Fatal("expected error for unknown binding type")
	}
}

func TestSymbolIndexAmbiguousMatchFails(t *testing.T) {
	a := &fakeSymbol{name: "_dup", ordinal: 1, linked: 0x100}
	b := &fakeSymbol{name: "_dup", ordinal: 1, linked: 0x200}
	idx := NewSymbolIndex([]Symbol{a, b}, nil)
	if _, _, err := idx.Find("_dup", 1); err == nil {
		t.Fatal("expected ambiguous-match error")
	}
}

func TestSymbolIndexIgnoresStabSymbols(t *testing.T) {
	stab := &fakeSymbol{name: "_foo", ordinal: 1, linked: 0x100, stab: true}
	idx := NewSymbolIndex([]Symbol{stab}, nil)
	if _, ok, err := idx.Find("_foo", 1); ok || err != nil {
		t.Fatalf("Find returned (ok=%v, err=%v), want (false, nil)", ok, err)
	}
}
