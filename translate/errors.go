package translate

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupported is returned for instructions the handler set does not
	// translate (jsr, ret, multianewarray, unknown opcodes).
	ErrUnsupported = errors.New("unsupported instruction")

	// ErrStackUnderflow is returned when an instruction pops more values
	// than the operand stack model holds.
	ErrStackUnderflow = errors.New("operand stack underflow")

	// ErrTooManyInvokeDynamics is returned when a method name owns more
	// invokedynamic sites than the trampoline descriptor scheme can encode.
	ErrTooManyInvokeDynamics = errors.New("too many invokedynamic sites")
)

// Error is a generation-time failure. It identifies the class, the method
// and the position of the offending instruction.
type Error struct {
	Class  string
	Method string // name followed by descriptor
	Index  int    // instruction index, -1 if the failure is not tied to one
	Insn   string
	Err    error
}

func (e *Error) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("%s.%s: %v", e.Class, e.Method, e.Err)
	}
	return fmt.Sprintf("%s.%s: instruction %d (%s): %v", e.Class, e.Method, e.Index, e.Insn, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
