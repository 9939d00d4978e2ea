package bind

import "github.com/appsworld/macho-bind/types"

// BindType identifies how a resolved symbol value is patched into image
// memory at DO_BIND time.
type BindType uint8

const (
	// BindTypePointer writes value as an unsigned integer of the image's
	// pointer width, in the image's byte order.
	BindTypePointer BindType = types.BIND_TYPE_POINTER
	// BindTypeAbsolute32 truncates location and value to 32 bits and
	// writes a plain 32-bit store.
	BindTypeAbsolute32 BindType = types.BIND_TYPE_TEXT_ABSOLUTE32
	// BindTypePCRel32 stores value relative to the instruction following
	// the fixup location (location+4).
	BindTypePCRel32 BindType = types.BIND_TYPE_TEXT_PCREL32
)

// Special library ordinal values, sign-extended from a 4-bit immediate by
// SET_DYLIB_SPECIAL_IMM.
const (
	OrdinalSelf       = types.BIND_SPECIAL_DYLIB_SELF
	OrdinalExecutable = types.BIND_SPECIAL_DYLIB_MAIN_EXECUTABLE
	OrdinalFlatLookup = types.BIND_SPECIAL_DYLIB_FLAT_LOOKUP
	OrdinalWeak       = types.BIND_SPECIAL_DYLIB_WEAK_LOOKUP
)

// State is the binding VM's register file: one instance owns the cursor
// through an opcode blob and everything an opcode handler can mutate.
type State struct {
	Index         int
	Done          bool
	LibOrdinal    int64
	SymName       string
	SymFlags      uint8
	BindingType   BindType
	Addend        int64
	SegmentIndex  int
	Address       uint64
	SegEndAddress uint64
	PointerSize   uint8

	boundCount int
}

// NewState returns a zeroed normal-mode State; binding_type defaults to 0
// (set explicitly by SET_TYPE_IMM in every real binding stream) while lazy
// records default it to BindTypePointer, per spec §3.
func NewState(pointerSize uint8) *State {
	return &State{PointerSize: pointerSize}
}

// resetForLazyRecord restores every register except Index to its initial
// value, matching the re-seed the orchestrator performs between lazy
// binding records (spec §3 "Outside a record... in lazy mode only").
func (s *State) resetForLazyRecord() {
	index := s.Index
	pointerSize := s.PointerSize
	boundCount := s.boundCount
	*s = State{
		Index:       index,
		PointerSize: pointerSize,
		BindingType: BindTypePointer,
		boundCount:  boundCount,
	}
}

// AddAddress advances Address by delta modulo 2**64. Go's uint64 addition
// already wraps at 2**64, which is exactly the overflow semantics dyld
// relies on to encode backward jumps as huge positive ULEBs (spec §3,
// §9); there is no separate wraparound subtraction to perform here.
func (s *State) AddAddress(delta uint64) {
	s.Address += delta
}

// checkBounds enforces the normal-mode invariant that every DO_BIND-class
// write lands strictly inside the current segment. Lazy mode never calls
// this: SegEndAddress stays 0 there and bounds tracking is skipped by
// design (spec §9, "Lazy bounds-check asymmetry").
func (s *State) checkBounds() error {
	if s.Address >= s.SegEndAddress {
		return invalidBinaryf("bind: address %#x >= segment end %#x at blob offset %#x", s.Address, s.SegEndAddress, s.Index)
	}
	return nil
}
