package bind

// fixup resolves state's current symbol against img, computes the value
// to store, and patches img.Memory at the finalized address, per spec
// §4.4. It is invoked by the normal and lazy DO_BIND-class handlers; it
// never touches state.Index or state.Address itself — incrementing the
// address for the next bind is the calling opcode handler's job.
func fixup(img *Image, s *State) error {
	symbol, ok, err := img.Symbols.Find(s.SymName, s.LibOrdinal)
	if err != nil {
		return err
	}
	if !ok {
		symbol = img.Symbols.AddPlaceholder(s.SymName, s.LibOrdinal)
	}

	var value uint64
	if symbol.LinkedAddr() != 0 {
		value = symbol.LinkedAddr() + uint64(s.Addend)
	}

	location := s.Address

	switch s.BindingType {
	case BindTypePointer:
		buf := make([]byte, s.PointerSize)
		if s.PointerSize == 8 {
			img.ByteOrder.PutUint64(buf, value)
		} else {
			img.ByteOrder.PutUint32(buf, uint32(value))
		}
		if err := img.Memory.Store(img.Translator.ToRVA(location), buf); err != nil {
			return err
		}
		symbol.RecordXref(location)

	case BindTypeAbsolute32:
		location32 := uint32(location)
		value32 := uint32(value)
		buf := make([]byte, 4)
		img.ByteOrder.PutUint32(buf, value32)
		if err := img.Memory.Store(img.Translator.ToRVA(uint64(location32)), buf); err != nil {
			return err
		}
		symbol.RecordXref(uint64(location32))

	case BindTypePCRel32:
		location32 := uint32(location)
		value32 := uint32(value - (location + 4))
		buf := make([]byte, 4)
		img.ByteOrder.PutUint32(buf, value32)
		if err := img.Memory.Store(img.Translator.ToRVA(uint64(location32)), buf); err != nil {
			return err
		}
		symbol.RecordXref(uint64(location32))

	default:
		return invalidBinaryf("bind: unknown binding type %d", s.BindingType)
	}

	s.boundCount++
	return nil
}
