package bind

// placeholderSymbol is the BindingSymbol the fixup handler synthesizes
// when no image symbol matches a (name, library ordinal) pair. LinkedAddr
// is always 0: a placeholder is by definition unresolved.
type placeholderSymbol struct {
	name      string
	ordinal   int64
	bindXrefs []uint64
}

func (p *placeholderSymbol) Name() string          { return p.name }
func (p *placeholderSymbol) LibraryOrdinal() int64 { return p.ordinal }
func (p *placeholderSymbol) IsStab() bool          { return false }
func (p *placeholderSymbol) LinkedAddr() uint64    { return 0 }
func (p *placeholderSymbol) RecordXref(location uint64) {
	p.bindXrefs = append(p.bindXrefs, location)
}

// BindXrefs exposes the locations recorded against a placeholder symbol,
// for callers that want to inspect what a synthesized symbol was bound to.
func (p *placeholderSymbol) BindXrefs() []uint64 { return p.bindXrefs }

type symKey struct {
	name    string
	ordinal int64
}

// SymbolIndex is the default SymbolTable: a map built once per image
// (spec §9 "a rewrite SHOULD build a (name, library_ordinal) -> symbol
// index") instead of the source's per-bind linear scan, preserving both
// placeholder-creation semantics and the "more than one match is fatal"
// check of spec §4.4 step 1.
type SymbolIndex struct {
	byKey          map[symKey][]Symbol
	orderedSymbols *[]Symbol
}

// NewSymbolIndex builds an index over syms. orderedSymbols, if non-nil,
// is appended to whenever a placeholder is synthesized, mirroring the
// source's binary._ordered_symbols list used for deterministic output.
func NewSymbolIndex(syms []Symbol, orderedSymbols *[]Symbol) *SymbolIndex {
	idx := &SymbolIndex{
		byKey:          make(map[symKey][]Symbol, len(syms)),
		orderedSymbols: orderedSymbols,
	}
	for _, s := range syms {
		if s.IsStab() {
			continue
		}
		key := symKey{s.Name(), s.LibraryOrdinal()}
		idx.byKey[key] = append(idx.byKey[key], s)
	}
	return idx
}

// Find implements SymbolTable. The index is built from non-stab symbols
// only, so a hit here always satisfies the "AND is_stab is false"
// condition of spec §4.4 step 1 without a second pass.
func (idx *SymbolIndex) Find(name string, ordinal int64) (Symbol, bool, error) {
	matches := idx.byKey[symKey{name, ordinal}]
	switch len(matches) {
	case 0:
		return nil, false, nil
	case 1:
		return matches[0], true, nil
	default:
		return nil, false, invalidBinaryf("bind: more than one symbol matches (%q, %d)", name, ordinal)
	}
}

// AddPlaceholder implements SymbolTable.
func (idx *SymbolIndex) AddPlaceholder(name string, ordinal int64) Symbol {
	ph := &placeholderSymbol{name: name, ordinal: ordinal}
	key := symKey{name, ordinal}
	idx.byKey[key] = append(idx.byKey[key], ph)
	if idx.orderedSymbols != nil {
		*idx.orderedSymbols = append(*idx.orderedSymbols, ph)
	}
	return ph
}
