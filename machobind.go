package macho

import (
	"fmt"

	"github.com/appsworld/macho-bind/pkg/bind"
	"github.com/appsworld/macho-bind/types"
)

// machoSegment adapts a *Segment to bind.Segment.
type machoSegment struct {
	seg *Segment
}

func (s machoSegment) VAddr() uint64   { return s.seg.Addr }
func (s machoSegment) MemSize() uint64 { return s.seg.Memsz }

// machoSymbol adapts a symbol table entry to bind.Symbol. It carries its
// own ordinal, decoded once from Desc via GET_LIBRARY_ORDINAL, and holds
// the bind locations the interpreter records against it.
type machoSymbol struct {
	name    string
	ordinal int64
	linked  uint64
	isStab  bool
	xrefs   []uint64
}

func (s *machoSymbol) Name() string          { return s.name }
func (s *machoSymbol) LibraryOrdinal() int64 { return s.ordinal }
func (s *machoSymbol) IsStab() bool          { return s.isStab }
func (s *machoSymbol) LinkedAddr() uint64    { return s.linked }
func (s *machoSymbol) RecordXref(location uint64) {
	s.xrefs = append(s.xrefs, location)
}

// BindXrefs exposes the addresses a resolved or placeholder symbol was
// bound against, mirroring placeholderSymbol.BindXrefs for callers that
// inspect bind results after the fact.
func (s *machoSymbol) BindXrefs() []uint64 { return s.xrefs }

// libraryOrdinal decodes the GET_LIBRARY_ORDINAL(n_desc) bit field into
// the signed ordinal space the bind opcodes use: the special values
// SELF/DYNAMIC_LOOKUP/EXECUTABLE map to 0/-2/-1, everything else passes
// through as a 1-based positive dylib index.
func libraryOrdinal(desc types.NDescType) int64 {
	switch desc.GetLibraryOrdinal() {
	case types.SELF_LIBRARY_ORDINAL:
		return bind.OrdinalSelf
	case types.DYNAMIC_LOOKUP_ORDINAL:
		return bind.OrdinalFlatLookup
	case types.EXECUTABLE_ORDINAL:
		return bind.OrdinalExecutable
	default:
		return int64(desc.GetLibraryOrdinal())
	}
}

// machoMemory adapts a flat byte buffer, keyed by file offset, to
// bind.Memory. The buffer is supplied by the caller of Bind: it is
// typically the mapped image the binary will execute from, or a
// scratch copy obtained via Segment.Data for dry-run analysis.
type machoMemory struct {
	buf []byte
}

func (m *machoMemory) Store(rva uint64, data []byte) error {
	end := rva + uint64(len(data))
	if end > uint64(len(m.buf)) {
		return fmt.Errorf("bind: write of %d bytes at rva %#x exceeds buffer of length %d", len(data), rva, len(m.buf))
	}
	copy(m.buf[rva:end], data)
	return nil
}

// fileOffsetTranslator converts the load addresses bind opcodes speak
// into file offsets via the segment table, the same arithmetic File.GetOffset
// already performs for section lookups.
type fileOffsetTranslator struct {
	f *File
}

func (t fileOffsetTranslator) ToRVA(lva uint64) uint64 {
	off, err := t.f.GetOffset(lva)
	if err != nil {
		return lva
	}
	return off
}

// bindImage builds the pkg/bind.Image view of f: its segments, a symbol
// index seeded from the symbol table, and the address-space plumbing
// fixups need to turn a bind opcode's load address into an offset in buf.
func (f *File) bindImage(buf []byte) (*bind.Image, []*machoSymbol) {
	segs := make([]bind.Segment, 0, len(f.Segments()))
	for _, seg := range f.Segments() {
		segs = append(segs, machoSegment{seg: seg})
	}

	var wrapped []*machoSymbol
	var asBindSymbols []bind.Symbol
	if f.Symtab != nil {
		wrapped = make([]*machoSymbol, len(f.Symtab.Syms))
		asBindSymbols = make([]bind.Symbol, len(f.Symtab.Syms))
		for i, sym := range f.Symtab.Syms {
			w := &machoSymbol{
				name:    sym.Name,
				ordinal: libraryOrdinal(sym.Desc),
				linked:  sym.Value,
				isStab:  sym.Type.IsDebugSym(),
			}
			wrapped[i] = w
			asBindSymbols[i] = w
		}
	}

	pointerSize := uint8(4)
	if f.is64bit() {
		pointerSize = 8
	}

	img := &bind.Image{
		Segments:    segs,
		Symbols:     bind.NewSymbolIndex(asBindSymbols, nil),
		Memory:      &machoMemory{buf: buf},
		Translator:  fileOffsetTranslator{f: f},
		ByteOrder:   f.ByteOrder,
		PointerSize: pointerSize,
	}
	return img, wrapped
}

// dyldInfoOffsets extracts the bind-opcode stream offsets from whichever
// of LC_DYLD_INFO / LC_DYLD_INFO_ONLY is present, the same load commands
// file.go's Export already remaps when relocating a linked image.
func (f *File) dyldInfoOffsets() (bindOff, bindSize, lazyOff, lazySize uint32, ok bool) {
	for _, l := range f.Loads {
		switch info := l.(type) {
		case *DyldInfo:
			return info.BindOff, info.BindSize, info.LazyBindOff, info.LazyBindSize, true
		case *DyldInfoOnly:
			return info.BindOff, info.BindSize, info.LazyBindOff, info.LazyBindSize, true
		}
	}
	return 0, 0, 0, 0, false
}

// Bind runs the image's normal and lazy bind-opcode streams against buf,
// a byte-addressable copy of the image keyed by file offset, patching
// every resolved or placeholder binding into buf in place. It returns the
// combined count of pointers written across both streams.
func (f *File) Bind(buf []byte, opts ...bind.Option) (*bind.Result, error) {
	bindOff, bindSize, lazyOff, lazySize, ok := f.dyldInfoOffsets()
	if !ok {
		return &bind.Result{}, nil
	}

	img, _ := f.bindImage(buf)

	total := &bind.Result{}

	if bindSize > 0 {
		blob := make([]byte, bindSize)
		if _, err := f.ReadAt(blob, int64(bindOff)); err != nil {
			return nil, fmt.Errorf("bind: reading normal bind opcodes: %w", err)
		}
		res, err := bind.BindNormal(img, blob, opts...)
		if err != nil {
			return nil, err
		}
		total.BoundCount += res.BoundCount
	}

	if lazySize > 0 {
		blob := make([]byte, lazySize)
		if _, err := f.ReadAt(blob, int64(lazyOff)); err != nil {
			return nil, fmt.Errorf("bind: reading lazy bind opcodes: %w", err)
		}
		res, err := bind.BindLazy(img, blob, opts...)
		if err != nil {
			return nil, err
		}
		total.BoundCount += res.BoundCount
	}

	return total, nil
}
