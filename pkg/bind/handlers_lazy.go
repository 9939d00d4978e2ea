package bind

// Lazy opcode handlers. The lazy table is a strict subset of the normal
// one: SET_SEGMENT_AND_OFFSET_ULEB never touches SegEndAddress, and
// DO_BIND never bounds-checks or auto-increments (spec §4.3, "Lazy
// mode"). Every other opcode handler is shared with normal mode.

func lazyTable() *handlerTable {
	var t handlerTable
	t.set(OpDone, opDone)
	t.set(OpSetDylibOrdinalImm, opSetDylibOrdinalImm)
	t.set(OpSetDylibOrdinalULEB, opSetDylibOrdinalULEB)
	t.set(OpSetDylibSpecialImm, opSetDylibSpecialImm)
	t.set(OpSetSymbolTrailingFlagsImm, opSetSymbolTrailingFlagsImm)
	t.set(OpSetTypeImm, opSetTypeImm)
	t.set(OpSetSegmentAndOffsetULEB, opSetSegmentAndOffsetULEBLazy)
	t.set(OpDoBind, opDoBindLazy)
	return &t
}

func opSetSegmentAndOffsetULEBLazy(s *State, img *Image, immediate byte, blob []byte) error {
	offset, n := ReadULEB(blob, s.Index)
	seg := img.Segments[int(immediate)]
	s.Address = seg.VAddr() + offset
	s.Index += n
	return nil
}

func opDoBindLazy(s *State, img *Image, immediate byte, blob []byte) error {
	return fixup(img, s)
}
