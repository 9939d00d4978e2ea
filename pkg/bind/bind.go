// Package bind interprets Apple dyld's compact bind-opcode bytecode: the
// stack-based virtual machine that Mach-O images use to record symbol
// bindings. Given a blob of opcodes and an Image exposing the segments,
// symbol table, and writable memory it binds against, BindNormal and
// BindLazy walk the blob, resolve each symbol by name and library
// ordinal, and patch the image's in-memory representation.
//
// The package does no Mach-O container parsing of its own; Image's
// fields are external collaborators supplied by a caller that already
// parsed load commands and segments.
package bind

// Option configures an orchestrator entry point.
type Option func(*options)

type options struct {
	strict bool
}

// Strict turns an unknown opcode into a fatal ErrUnknownOpcode instead of
// the source's default "log and keep going without advancing past
// operands" behavior (spec §7, §9). Off by default for bug-for-bug
// compatibility with existing test binaries that may contain opcodes an
// older interpreter would have skipped.
func Strict(v bool) Option {
	return func(o *options) { o.strict = v }
}

// Result records what a single binding pass did, independent of the
// Image's own state, for callers that want a summary without walking
// img.Symbols themselves.
type Result struct {
	// BoundCount is the number of DO_BIND-class fixups applied.
	BoundCount int
}

func resolveOptions(opts []Option) options {
	var o options
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// BindNormal performs non-lazy, non-weak binding: spec §4.3's normal
// opcode table, over one continuous pass ending at the blob's first
// DONE or exhaustion. blob may be nil, in which case BindNormal returns
// immediately with no effect (spec §7, BlobAbsent).
func BindNormal(img *Image, blob []byte, opts ...Option) (*Result, error) {
	if blob == nil {
		return &Result{}, nil
	}
	o := resolveOptions(opts)

	s := NewState(img.PointerSize)
	// Seed seg_end_address from segment 0 before the dispatcher runs, so
	// a DO_BIND-class opcode issued before any
	// SET_SEGMENT_AND_OFFSET_ULEB bounds-checks against segment 0 rather
	// than an undefined segment — a real quirk of the original
	// do_normal_bind, preserved here (SPEC_FULL.md, Supplemented
	// Features #3).
	if len(img.Segments) > 0 {
		seg := img.Segments[0]
		s.SegEndAddress = seg.VAddr() + seg.MemSize()
	}

	if err := dispatch(blob, s, img, normalTable(), o.strict); err != nil {
		return nil, err
	}
	return &Result{BoundCount: s.boundCount}, nil
}

// BindLazy performs lazy binding (spec §4.3, "Lazy mode"). The blob is
// treated as a sequence of independent records, each terminated by
// DONE; after every DONE the orchestrator re-seeds the state (preserving
// Index) and re-enters the dispatcher, until the blob is exhausted.
// blob may be nil, in which case BindLazy returns immediately.
func BindLazy(img *Image, blob []byte, opts ...Option) (*Result, error) {
	if blob == nil {
		return &Result{}, nil
	}
	o := resolveOptions(opts)

	s := NewState(img.PointerSize)
	s.BindingType = BindTypePointer

	table := lazyTable()
	for s.Index < len(blob) {
		s.resetForLazyRecord()
		if err := dispatch(blob, s, img, table, o.strict); err != nil {
			return nil, err
		}
	}
	return &Result{BoundCount: s.boundCount}, nil
}
