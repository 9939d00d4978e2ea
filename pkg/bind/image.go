package bind

import "encoding/binary"

// Segment is the slice of a Mach-O LC_SEGMENT the interpreter needs:
// enough to compute an effective address and bounds-check it.
type Segment interface {
	VAddr() uint64
	MemSize() uint64
}

// Symbol is an external entity the fixup handler resolves against and
// patches. The interpreter never constructs a Symbol's identity fields;
// it only reads Name/LibraryOrdinal/IsStab/LinkedAddr and appends to
// BindXrefs via RecordXref.
type Symbol interface {
	Name() string
	LibraryOrdinal() int64
	IsStab() bool
	LinkedAddr() uint64
	RecordXref(location uint64)
}

// SymbolTable resolves (name, library ordinal) pairs to a Symbol,
// synthesizing a placeholder on miss per spec §4.4 step 1.
type SymbolTable interface {
	// Find returns the unique symbol matching name and ordinal among
	// non-stab symbols. ok is false when no match exists (the caller
	// should fall back to AddPlaceholder); an error is returned only
	// when more than one symbol matches.
	Find(name string, ordinal int64) (sym Symbol, ok bool, err error)
	// AddPlaceholder synthesizes and registers a new unresolved symbol,
	// appending it to the image's symbol collection and its
	// ordered-symbols list for deterministic iteration.
	AddPlaceholder(name string, ordinal int64) Symbol
}

// Memory is the image's byte-addressable, writable in-memory
// representation, addressed by relative virtual address (RVA).
type Memory interface {
	Store(rva uint64, data []byte) error
}

// AddressTranslator converts a load virtual address (the address space
// the binding opcodes speak) to the image's relative virtual address
// space that Memory.Store expects.
type AddressTranslator interface {
	ToRVA(lva uint64) uint64
}

// Image bundles everything the interpreter treats as an external
// collaborator (spec §6): segment table, symbol table, memory, address
// translation, and the two properties that vary by target architecture.
type Image struct {
	Segments    []Segment
	Symbols     SymbolTable
	Memory      Memory
	Translator  AddressTranslator
	ByteOrder   binary.ByteOrder
	PointerSize uint8 // 4 or 8
}
