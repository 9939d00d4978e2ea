package macho

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/appsworld/macho-bind/pkg/bind"
	"github.com/appsworld/macho-bind/types"
)

func TestLibraryOrdinal(t *testing.T) {
	tests := []struct {
		name string
		desc types.NDescType
		want int64
	}{
		{"self", types.SELF_LIBRARY_ORDINAL << 8, bind.OrdinalSelf},
		{"dynamic lookup", types.DYNAMIC_LOOKUP_ORDINAL << 8, bind.OrdinalFlatLookup},
		{"executable", types.EXECUTABLE_ORDINAL << 8, bind.OrdinalExecutable},
		{"regular dylib", types.NDescType(3) << 8, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := libraryOrdinal(tt.desc); got != tt.want {
				t.Errorf("libraryOrdinal(%#x) = %d, want %d", uint16(tt.desc), got, tt.want)
			}
		})
	}
}

func TestMachoMemoryStore(t *testing.T) {
	m := &machoMemory{buf: make([]byte, 16)}

	if err := m.Store(4, []byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if !bytes.Equal(m.buf[4:8], []byte{1, 2, 3, 4}) {
		t.Errorf("buf[4:8] = %v, want [1 2 3 4]", m.buf[4:8])
	}

	if err := m.Store(15, []byte{1, 2}); err == nil {
		t.Error("Store past end of buffer: got nil error, want out-of-range error")
	}
}

// testReader adapts a bytes.Reader to types.MachoReader. Bind and GetOffset
// never exercise SeekToAddr/ReadAtAddr, so they're left unimplemented.
type testReader struct {
	*bytes.Reader
}

func (testReader) SeekToAddr(addr uint64) error {
	return errors.New("not implemented")
}

func (testReader) ReadAtAddr(buf []byte, addr uint64) (int, error) {
	return 0, errors.New("not implemented")
}

// newTestFile builds a minimal 64-bit File with one segment spanning file
// offset 0, a symbol table with a single imported symbol, and an
// LC_DYLD_INFO_ONLY command pointing bindOpcodes at rawFile.
func newTestFile(rawFile []byte, bindOff, bindSize uint32, sym Symbol) *File {
	seg := &Segment{
		SegmentHeader: SegmentHeader{
			LoadCmd: types.LC_SEGMENT_64,
			Name:    "__DATA",
			Addr:    0x1000,
			Memsz:   0x1000,
			Offset:  0,
			Filesz:  0x1000,
		},
	}

	dyldInfo := &DyldInfoOnly{
		DyldInfoOnlyCmd: types.DyldInfoOnlyCmd{
			LoadCmd: types.LC_DYLD_INFO_ONLY,
		},
		BindOff:  bindOff,
		BindSize: bindSize,
	}

	f := &File{
		FileTOC: FileTOC{
			FileHeader: types.FileHeader{
				Magic: types.Magic64,
				CPU:   types.CPUAmd64,
			},
			ByteOrder: binary.LittleEndian,
			Loads:     []Load{seg, dyldInfo},
		},
		Symtab: &Symtab{Syms: []Symbol{sym}},
	}
	f.sr = testReader{bytes.NewReader(rawFile)}
	return f
}

func TestFileBind(t *testing.T) {
	blob := []byte{}
	blob = append(blob, byte(bind.OpSetDylibOrdinalImm)|1)
	blob = append(blob, byte(bind.OpSetTypeImm)|byte(types.BIND_TYPE_POINTER))
	blob = append(blob, byte(bind.OpSetSymbolTrailingFlagsImm)|0)
	blob = append(blob, []byte("_foo")...)
	blob = append(blob, 0)
	blob = append(blob, byte(bind.OpSetSegmentAndOffsetULEB)|0)
	blob = append(blob, bind.EncodeULEB(0x10)...)
	blob = append(blob, byte(bind.OpDoBind))
	blob = append(blob, byte(bind.OpDone))

	sym := Symbol{Name: "_foo", Desc: types.NDescType(1) << 8, Value: 0x2000}
	f := newTestFile(blob, 0, uint32(len(blob)), sym)

	buf := make([]byte, 0x1000)
	res, err := f.Bind(buf)
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if res.BoundCount != 1 {
		t.Fatalf("BoundCount = %d, want 1", res.BoundCount)
	}

	want := make([]byte, 8)
	binary.LittleEndian.PutUint64(want, 0x2000)
	if got := buf[0x10 : 0x10+8]; !bytes.Equal(got, want) {
		t.Errorf("buf[0x10:0x18] = %#v, want %#v", got, want)
	}
}

func TestFileBindNoDyldInfo(t *testing.T) {
	f := &File{
		FileTOC: FileTOC{
			FileHeader: types.FileHeader{Magic: types.Magic64},
			ByteOrder:  binary.LittleEndian,
		},
	}

	res, err := f.Bind(make([]byte, 16))
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if res.BoundCount != 0 {
		t.Errorf("BoundCount = %d, want 0", res.BoundCount)
	}
}

func TestDyldInfoOffsets(t *testing.T) {
	t.Run("LC_DYLD_INFO", func(t *testing.T) {
		f := &File{FileTOC: FileTOC{Loads: []Load{
			&DyldInfo{BindOff: 0x10, BindSize: 0x20, LazyBindOff: 0x30, LazyBindSize: 0x40},
		}}}
		bindOff, bindSize, lazyOff, lazySize, ok := f.dyldInfoOffsets()
		if !ok || bindOff != 0x10 || bindSize != 0x20 || lazyOff != 0x30 || lazySize != 0x40 {
			t.Errorf("dyldInfoOffsets() = (%#x, %#x, %#x, %#x, %v), want (0x10, 0x20, 0x30, 0x40, true)", bindOff, bindSize, lazyOff, lazySize, ok)
		}
	})

	t.Run("LC_DYLD_INFO_ONLY", func(t *testing.T) {
		f := &File{FileTOC: FileTOC{Loads: []Load{
			&DyldInfoOnly{BindOff: 0x50, BindSize: 0x60},
		}}}
		bindOff, bindSize, _, _, ok := f.dyldInfoOffsets()
		if !ok || bindOff != 0x50 || bindSize != 0x60 {
			t.Errorf("dyldInfoOffsets() = (%#x, %#x, _, _, %v), want (0x50, 0x60, _, _, true)", bindOff, bindSize, ok)
		}
	})

	t.Run("absent", func(t *testing.T) {
		f := &File{}
		if _, _, _, _, ok := f.dyldInfoOffsets(); ok {
			t.Error("dyldInfoOffsets() on a file with no LC_DYLD_INFO[_ONLY]: got ok, want !ok")
		}
	})
}

func TestFileOffsetTranslatorToRVA(t *testing.T) {
	f := newTestFile(nil, 0, 0, Symbol{})
	tr := fileOffsetTranslator{f: f}

	if got, want := tr.ToRVA(0x1010), uint64(0x10); got != want {
		t.Errorf("ToRVA(0x1010) = %#x, want %#x", got, want)
	}

	// An address outside every segment falls back to the address itself.
	if got, want := tr.ToRVA(0xdead), uint64(0xdead); got != want {
		t.Errorf("ToRVA(0xdead) = %#x, want %#x", got, want)
	}
}
