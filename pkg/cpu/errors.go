package cpu

import (
	"errors"
	"fmt"
)

var (
	ErrValueRange     = errors.New("value does not fit operand")
	ErrReadOnly       = errors.New("operand cannot be written")
	ErrAddressingMode = errors.New("invalid addressing mode")
	ErrNotImplemented = errors.New("feature not implemented")
	ErrHalted         = errors.New("cpu halted")
	ErrNoInstruction  = errors.New("no instruction after prefixes")
	ErrSnapshot       = errors.New("invalid snapshot")
)

// NotImplementedError is returned for opcodes that decode but have no
// behaviour, and for empty table slots.
type NotImplementedError struct {
	Opcode   byte
	Reg      byte
	Group    bool
	Mnemonic string
}

func (e *NotImplementedError) Error() string {
	name := e.Mnemonic
	if name == "" {
		name = "(none)"
	}
	if e.Group {
		return fmt.Sprintf("opcode %02X /%d %s: %s", e.Opcode, e.Reg, name, ErrNotImplemented)
	}
	return fmt.Sprintf("opcode %02X %s: %s", e.Opcode, name, ErrNotImplemented)
}

func (e *NotImplementedError) Unwrap() error {
	return ErrNotImplemented
}
