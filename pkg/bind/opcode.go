package bind

import (
	"log"

	"github.com/appsworld/macho-bind/types"
)

// Opcode is the top nibble of a binding instruction byte.
type Opcode byte

// Binding opcodes, cast from the teacher's types.BIND_OPCODE_* constants
// (mach-o/loader.h's own encoding) rather than redeclared here. Every
// opcode is a multiple of 0x10.
const (
	OpDone                        Opcode = types.BIND_OPCODE_DONE
	OpSetDylibOrdinalImm          Opcode = types.BIND_OPCODE_SET_DYLIB_ORDINAL_IMM
	OpSetDylibOrdinalULEB         Opcode = types.BIND_OPCODE_SET_DYLIB_ORDINAL_ULEB
	OpSetDylibSpecialImm          Opcode = types.BIND_OPCODE_SET_DYLIB_SPECIAL_IMM
	OpSetSymbolTrailingFlagsImm   Opcode = types.BIND_OPCODE_SET_SYMBOL_TRAILING_FLAGS_IMM
	OpSetTypeImm                  Opcode = types.BIND_OPCODE_SET_TYPE_IMM
	OpSetAddendSLEB               Opcode = types.BIND_OPCODE_SET_ADDEND_SLEB
	OpSetSegmentAndOffsetULEB     Opcode = types.BIND_OPCODE_SET_SEGMENT_AND_OFFSET_ULEB
	OpAddAddrULEB                 Opcode = types.BIND_OPCODE_ADD_ADDR_ULEB
	OpDoBind                      Opcode = types.BIND_OPCODE_DO_BIND
	OpDoBindAddAddrULEB           Opcode = types.BIND_OPCODE_DO_BIND_ADD_ADDR_ULEB
	OpDoBindAddAddrImmScaled      Opcode = types.BIND_OPCODE_DO_BIND_ADD_ADDR_IMM_SCALED
	OpDoBindULEBTimesSkippingULEB Opcode = types.BIND_OPCODE_DO_BIND_ULEB_TIMES_SKIPPING_ULEB

	opcodeMask    byte = types.BIND_OPCODE_MASK
	immediateMask byte = types.BIND_IMMEDIATE_MASK
	opcodeSlots        = 0x0D // 13 opcodes, 0x00..0xC0 stepped by 0x10
)

// handlerFunc is one opcode handler: consumes the immediate nibble, may
// read further operands from blob advancing state.Index, mutates state,
// and may invoke the fixup handler against img. It returns an error only
// for conditions spec §7 calls fatal (InvalidBinary).
type handlerFunc func(s *State, img *Image, immediate byte, blob []byte) error

// handlerTable is a dense array indexed by opcode>>4, per the §9 design
// note preferring this over a map keyed by the raw opcode byte.
type handlerTable [opcodeSlots]handlerFunc

func (t *handlerTable) set(op Opcode, h handlerFunc) {
	t[op>>4] = h
}

func (t *handlerTable) lookup(op Opcode) handlerFunc {
	idx := op >> 4
	if int(idx) >= len(t) {
		return nil
	}
	return t[idx]
}

// dispatch drives the opcode loop described in spec §4.2 until
// state.Done or the blob is exhausted. strict controls whether an
// unknown opcode is fatal (ErrUnknownOpcode) or merely logged, matching
// the source's default "log and desynchronize" behavior (spec §7, §9).
func dispatch(blob []byte, s *State, img *Image, table *handlerTable, strict bool) error {
	for !s.Done && s.Index < len(blob) {
		raw := blob[s.Index]
		opcode := Opcode(raw & opcodeMask)
		immediate := raw & immediateMask
		s.Index++

		handler := table.lookup(opcode)
		if handler == nil {
			if strict {
				return &OpcodeError{Opcode: raw, Offset: s.Index - 1, err: ErrUnknownOpcode}
			}
			log.Printf("bind: unknown opcode %#02x at offset %#x, continuing without advancing past operands", raw, s.Index-1)
			continue
		}

		if err := handler(s, img, immediate, blob); err != nil {
			return err
		}
	}
	return nil
}
