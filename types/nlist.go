package types

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// An Nlist is a Mach-O generic symbol table entry.
type Nlist struct {
	Name uint32
	Type NType
	Sect uint8
	Desc NDescType
}

// An Nlist32 is a Mach-O 32-bit symbol table entry.
type Nlist32 struct {
	Nlist
	Value uint32
}

func (n *Nlist32) Put32(b []byte, o binary.ByteOrder) uint32 {
	o.PutUint32(b[0:], n.Name)
	b[4] = byte(n.Type)
	b[5] = byte(n.Sect)
	o.PutUint16(b[6:], uint16(n.Desc))
	o.PutUint32(b[8:], uint32(n.Value))
	return 8 + 4
}

// An Nlist64 is a Mach-O 64-bit symbol table entry.
type Nlist64 struct {
	Nlist
	Value uint64
}

func (n *Nlist64) Put64(b []byte, o binary.ByteOrder) uint32 {
	o.PutUint32(b[0:], n.Name)
	b[4] = byte(n.Type)
	b[5] = byte(n.Sect)
	o.PutUint16(b[6:], uint16(n.Desc))
	o.PutUint64(b[8:], n.Value)
	return 8 + 8
}

type NType uint8

/*
 * The n_type field really contains four fields:
 *	unsigned char N_STAB:3,
 *		      N_PEXT:1,
 *		      N_TYPE:3,
 *		      N_EXT:1;
 * which are used via the following masks.
 */
const (
	N_STAB NType = 0xe0 /* if any of these bits set, a symbolic debugging entry */
	N_PEXT NType = 0x10 /* private external symbol bit */
	N_TYPE NType = 0x0e /* mask for the type bits */
	N_EXT  NType = 0x01 /* external symbol bit, set for external symbols */
)

/*
 * Values for N_TYPE bits of the n_type field.
 */
const (
	N_UNDF NType = 0x0 /* undefined, n_sect == NO_SECT */
	N_ABS  NType = 0x2 /* absolute, n_sect == NO_SECT */
	N_SECT NType = 0xe /* defined in section number n_sect */
	N_PBUD NType = 0xc /* prebound undefined (defined in a dylib) */
	N_INDR NType = 0xa /* indirect */
)

func (t NType) IsDebugSym() bool {
	return (t & N_STAB) != 0
}

func (t NType) IsPrivateExternalSym() bool {
	return (t & N_PEXT) != 0
}

func (t NType) IsExternalSym() bool {
	return (t & N_EXT) != 0
}

func (t NType) IsUndefinedSym() bool {
	return (t & N_TYPE) == N_UNDF
}
func (t NType) IsAbsoluteSym() bool {
	return (t & N_TYPE) == N_ABS
}
func (t NType) IsDefinedInSection() bool {
	return (t & N_TYPE) == N_SECT
}
func (t NType) IsPreboundUndefinedSym() bool {
	return (t & N_TYPE) == N_PBUD
}
func (t NType) IsIndirectSym() bool {
	return (t & N_TYPE) == N_INDR
}

func (t NType) String(secName string) string {
	var tStr string
	if t.IsDebugSym() {
		tStr += "debug|"
	}
	if t.IsPrivateExternalSym() {
		tStr += "priv_ext|"
	}
	if t.IsExternalSym() {
		tStr += "ext|"
	}
	if t.IsUndefinedSym() {
		tStr += "undef|"
	}
	if t.IsAbsoluteSym() {
		tStr += "abs|"
	}
	if t.IsDefinedInSection() {
		tStr += fmt.Sprintf("%s|", secName)
	}
	if t.IsPreboundUndefinedSym() {
		tStr += "prebound_undef|"
	}
	if t.IsIndirectSym() {
		tStr += "indir|"
	}
	return strings.TrimSuffix(tStr, "|")
}

type NDescType uint16

func (d NDescType) GetCommAlign() NDescType {
	return (d >> 8) & 0x0f
}

const REFERENCE_TYPE NDescType = 0x7

const (
	/* types of references */
	REFERENCE_FLAG_UNDEFINED_NON_LAZY         NDescType = 0
	REFERENCE_FLAG_UNDEFINED_LAZY             NDescType = 1
	REFERENCE_FLAG_DEFINED                    NDescType = 2
	REFERENCE_FLAG_PRIVATE_DEFINED            NDescType = 3
	REFERENCE_FLAG_PRIVATE_UNDEFINED_NON_LAZY NDescType = 4
	REFERENCE_FLAG_PRIVATE_UNDEFINED_LAZY     NDescType = 5
)

func (d NDescType) IsUndefinedNonLazy() bool {
	return (d & REFERENCE_TYPE) == REFERENCE_FLAG_UNDEFINED_NON_LAZY
}
func (d NDescType) IsUndefinedLazy() bool {
	return (d & REFERENCE_TYPE) == REFERENCE_FLAG_UNDEFINED_LAZY
}
func (d NDescType) IsDefined() bool {
	return (d & REFERENCE_TYPE) == REFERENCE_FLAG_DEFINED
}
func (d NDescType) IsPrivateDefined() bool {
	return (d & REFERENCE_TYPE) == REFERENCE_FLAG_PRIVATE_DEFINED
}
func (d NDescType) IsPrivateUndefinedNonLazy() bool {
	return (d & REFERENCE_TYPE) == REFERENCE_FLAG_PRIVATE_UNDEFINED_NON_LAZY
}
func (d NDescType) IsPrivateUndefinedLazy() bool {
	return (d & REFERENCE_TYPE) == REFERENCE_FLAG_PRIVATE_UNDEFINED_LAZY
}

// GetLibraryOrdinal extracts the GET_LIBRARY_ORDINAL(n_desc) bit field:
// bits 8-15 of n_desc hold the ordinal of the dylib an imported symbol
// should bind against.
func (d NDescType) GetLibraryOrdinal() NDescType {
	return (d >> 8) & 0xff
}

func (t NDescType) String() string {
	var tStr string
	if t.IsUndefinedNonLazy() {
		tStr += "undef_nonlazy|"
	}
	if t.IsUndefinedLazy() {
		tStr += "undef_lazy|"
	}
	if t.IsDefined() {
		tStr += "def|"
	}
	if t.IsPrivateDefined() {
		tStr += "priv_def|"
	}
	if t.IsPrivateUndefinedNonLazy() {
		tStr += "pri_undef_nonlazy|"
	}
	if t.IsPrivateUndefinedLazy() {
		tStr += "priv_undef_lazy|"
	}
	return strings.TrimSuffix(tStr, "|")
}

// Special GET_LIBRARY_ORDINAL values from loader.h.
const (
	SELF_LIBRARY_ORDINAL   NDescType = 0x0
	MAX_LIBRARY_ORDINAL    NDescType = 0xfd
	DYNAMIC_LOOKUP_ORDINAL NDescType = 0xfe
	EXECUTABLE_ORDINAL     NDescType = 0xff
)

const (
	/*
	 * The N_NO_DEAD_STRIP bit of the n_desc field only ever appears in a
	 * relocatable .o file (MH_OBJECT filetype). And is used to indicate to the
	 * static link editor it is never to dead strip the symbol.
	 */
	NO_DEAD_STRIP NDescType = 0x0020 /* symbol is not to be dead stripped */

	/*
	 * The N_WEAK_REF bit of the n_desc field indicates to the dynamic linker that
	 * the undefined symbol is allowed to be missing and is to have the address of
	 * zero when missing.
	 */
	WEAK_REF NDescType = 0x0040 /* symbol is weak referenced */

	/*
	 * The N_WEAK_DEF bit of the n_desc field indicates to the static and dynamic
	 * linkers that the symbol definition is weak, allowing a non-weak symbol to
	 * also be used which causes the weak definition to be discarded. Currently
	 * this is only supported for symbols in coalesced sections.
	 */
	WEAK_DEF NDescType = 0x0080 /* coalesced symbol is a weak definition */
)
