package bind

import (
	"errors"
	"fmt"
)

// ErrInvalidBinary is the sentinel wrapped by every fatal condition raised
// while interpreting a binding stream: an out-of-bounds address at a
// DO_BIND-class opcode, more than one symbol match, or an unknown binding
// type.
var ErrInvalidBinary = errors.New("invalid binding stream")

// ErrUnknownOpcode is wrapped by *OpcodeError when the dispatcher meets a
// byte whose top nibble has no registered handler. In the default
// (non-strict) orchestrator mode this is logged, not returned; in Strict
// mode it is surfaced wrapping this sentinel.
var ErrUnknownOpcode = errors.New("unknown bind opcode")

// OpcodeError carries the offending opcode and the blob offset it was
// read from.
type OpcodeError struct {
	Opcode byte
	Offset int
	err    error
}

func (e *OpcodeError) Error() string {
	return fmt.Sprintf("bind: opcode %#02x at offset %#x: %v", e.Opcode, e.Offset, e.err)
}

func (e *OpcodeError) Unwrap() error { return e.err }

func invalidBinaryf(format string, args ...any) error {
	return fmt.Errorf(fmt.Sprintf(format, args...)+": %w", ErrInvalidBinary)
}
