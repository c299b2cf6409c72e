package cpu

import (
	"fmt"

	"github.com/vatine/emu8086/pkg/memory"
)

// Field is an operand field kind, named the way opcode maps name them:
// E is the ModRM r/m operand, G the ModRM reg operand, I an immediate,
// J a relative jump target, O a direct memory offset, S a segment
// register, A a far pointer. A trailing b, w or v gives the width (v is
// the native word), p a far pointer in memory.
type Field uint8

const (
	FieldNone Field = iota

	// Byte registers, in ModRM encoding order.
	FieldAL
	FieldCL
	FieldDL
	FieldBL
	FieldAH
	FieldCH
	FieldDH
	FieldBH

	// Word registers, in ModRM encoding order.
	FieldAX
	FieldCX
	FieldDX
	FieldBX
	FieldSP
	FieldBP
	FieldSI
	FieldDI

	// Segment registers, in ModRM encoding order.
	FieldES
	FieldCS
	FieldSS
	FieldDS

	FieldOne
	FieldThree

	FieldEb
	FieldEv
	FieldEw
	FieldGb
	FieldGv
	FieldSw
	FieldM
	FieldMp

	FieldIb
	FieldIbs // byte immediate sign-extended to a word
	FieldIv
	FieldIw
	FieldJb
	FieldJv
	FieldAp
	FieldOb
	FieldOv

	numFields
)

var fieldNames = [numFields]string{
	"",
	"AL", "CL", "DL", "BL", "AH", "CH", "DH", "BH",
	"AX", "CX", "DX", "BX", "SP", "BP", "SI", "DI",
	"ES", "CS", "SS", "DS",
	"_1", "_3",
	"Eb", "Ev", "Ew", "Gb", "Gv", "Sw", "M", "Mp",
	"Ib", "Ibs", "Iv", "Iw", "Jb", "Jv", "Ap", "Ob", "Ov",
}

func (f Field) String() string {
	if f < numFields {
		return fieldNames[f]
	}
	return "?"
}

var (
	byteRegs = [8]Reg8{AL, CL, DL, BL, AH, CH, DH, BH}
	wordRegs = [8]Reg{AX, CX, DX, BX, SP, BP, SI, DI}
	segRegs  = [4]Reg{ES, CS, SS, DS}
)

// SizeClass is the operand size an instruction works at, derived from
// its destination field.
type SizeClass uint8

const (
	SizeUnknown SizeClass = iota
	SizeByte
	SizeWord
	SizeWordOrDword
)

var sizeNames = [...]string{"unknown", "byte", "word", "word-or-dword"}

func (s SizeClass) String() string {
	if int(s) < len(sizeNames) {
		return sizeNames[s]
	}
	return "?"
}

func (f Field) Size() SizeClass {
	switch {
	case f >= FieldAL && f <= FieldBH:
		return SizeByte
	case f >= FieldAX && f <= FieldDS:
		return SizeWord
	}
	switch f {
	case FieldEb, FieldGb, FieldIb, FieldJb, FieldOb:
		return SizeByte
	case FieldEw, FieldSw, FieldIw, FieldIbs:
		return SizeWord
	case FieldEv, FieldGv, FieldIv, FieldJv, FieldOv:
		return SizeWordOrDword
	}
	return SizeUnknown
}

// Largest value a write to the field may carry.
func (f Field) mask() uint32 {
	if f.Size() == SizeByte {
		return 0xff
	}
	return 0xffff
}

func (f Field) readOnly() bool {
	switch f {
	case FieldOne, FieldThree, FieldIb, FieldIbs, FieldIv, FieldIw, FieldJb, FieldJv, FieldAp:
		return true
	}
	return false
}

// Addr is where an operand lives in memory. Register and constant
// operands have no address, Mem is false for them.
type Addr struct {
	Seg Reg
	Off uint16
	Mem bool
}

func (a Addr) String() string {
	if !a.Mem {
		return "-"
	}
	return fmt.Sprintf("%s:%04X", a.Seg, a.Off)
}

// Absolute address of a, using the current segment register value.
func (c *CPU) abs(a Addr) uint32 {
	return memory.Seg2Abs(c.Reg16(a.Seg), a.Off)
}

func (c *CPU) read8(a Addr) (uint8, error) {
	return c.mem.Read8(c.abs(a))
}

func (c *CPU) read16(a Addr) (uint16, error) {
	return c.mem.Read16(c.abs(a))
}

func (c *CPU) write8(a Addr, v uint8) error {
	return c.mem.Write8(c.abs(a), v)
}

func (c *CPU) write16(a Addr, v uint16) error {
	return c.mem.Write16(c.abs(a), v)
}

// Claim n bytes of the instruction stream for an operand and return
// where they start.
func (c *CPU) immediate(x *DecodeContext, n uint16) Addr {
	a := Addr{Seg: CS, Off: c.Reg16(IP) + x.IPDelta + x.AddrBytes, Mem: true}
	x.AddrBytes += n
	return a
}

// address resolves where a field's operand lives, consuming any
// displacement or immediate bytes it owns. Fields have to be resolved in
// instruction stream order: destination first, then source.
func (c *CPU) address(x *DecodeContext, f Field) (Addr, error) {
	switch f {
	case FieldEb, FieldEv, FieldEw:
		if c.op.Mod == 3 {
			return Addr{}, nil
		}
		return c.modrmAddress(x)
	case FieldM, FieldMp:
		if c.op.Mod == 3 {
			return Addr{}, fmt.Errorf("%s with a register operand: %w", f, ErrAddressingMode)
		}
		return c.modrmAddress(x)
	case FieldIb, FieldIbs, FieldJb:
		return c.immediate(x, 1), nil
	case FieldIv, FieldIw, FieldJv:
		return c.immediate(x, 2), nil
	case FieldAp:
		return c.immediate(x, 4), nil
	case FieldOb, FieldOv:
		off, err := c.read16(c.immediate(x, 2))
		if err != nil {
			return Addr{}, err
		}
		return Addr{Seg: x.Segment, Off: off, Mem: true}, nil
	}
	return Addr{}, nil
}

// The effective address encoded by the ModRM byte's mod and rm fields.
func (c *CPU) modrmAddress(x *DecodeContext) (Addr, error) {
	var base uint16
	stack := false

	switch c.op.RM {
	case 0:
		base = c.Reg16(BX) + c.Reg16(SI)
	case 1:
		base = c.Reg16(BX) + c.Reg16(DI)
	case 2:
		base = c.Reg16(BP) + c.Reg16(SI)
		stack = true
	case 3:
		base = c.Reg16(BP) + c.Reg16(DI)
		stack = true
	case 4:
		base = c.Reg16(SI)
	case 5:
		base = c.Reg16(DI)
	case 6:
		if c.op.Mod == 0 {
			off, err := c.read16(c.immediate(x, 2))
			if err != nil {
				return Addr{}, err
			}
			return Addr{Seg: x.Segment, Off: off, Mem: true}, nil
		}
		base = c.Reg16(BP)
		stack = true
	case 7:
		base = c.Reg16(BX)
	}

	switch c.op.Mod {
	case 1:
		d, err := c.read8(c.immediate(x, 1))
		if err != nil {
			return Addr{}, err
		}
		base += uint16(int8(d))
	case 2:
		d, err := c.read16(c.immediate(x, 2))
		if err != nil {
			return Addr{}, err
		}
		base += d
	}

	seg := x.Segment
	if stack && !x.Override {
		seg = SS
	}
	return Addr{Seg: seg, Off: base, Mem: true}, nil
}

// read fetches an operand value. a must come from address for the same
// field in the same cycle.
func (c *CPU) read(f Field, a Addr) (uint32, error) {
	switch {
	case f >= FieldAL && f <= FieldBH:
		return uint32(c.Reg8(byteRegs[f-FieldAL])), nil
	case f >= FieldAX && f <= FieldDI:
		return uint32(c.Reg16(wordRegs[f-FieldAX])), nil
	case f >= FieldES && f <= FieldDS:
		return uint32(c.Reg16(segRegs[f-FieldES])), nil
	}

	switch f {
	case FieldOne:
		return 1, nil
	case FieldThree:
		return 3, nil
	case FieldEb:
		if c.op.Mod == 3 {
			return uint32(c.Reg8(byteRegs[c.op.RM])), nil
		}
		v, err := c.read8(a)
		return uint32(v), err
	case FieldEv, FieldEw:
		if c.op.Mod == 3 {
			return uint32(c.Reg16(wordRegs[c.op.RM])), nil
		}
		v, err := c.read16(a)
		return uint32(v), err
	case FieldGb:
		return uint32(c.Reg8(byteRegs[c.op.Reg])), nil
	case FieldGv:
		return uint32(c.Reg16(wordRegs[c.op.Reg])), nil
	case FieldSw:
		return uint32(c.Reg16(segRegs[c.op.Reg&3])), nil
	case FieldIb, FieldOb:
		v, err := c.read8(a)
		return uint32(v), err
	case FieldIbs:
		v, err := c.read8(a)
		return uint32(uint16(int8(v))), err
	case FieldIv, FieldIw, FieldOv, FieldM, FieldMp:
		v, err := c.read16(a)
		return uint32(v), err
	case FieldJb:
		d, err := c.read8(a)
		return uint32(c.Reg16(IP) + uint16(int8(d))), err
	case FieldJv:
		d, err := c.read16(a)
		return uint32(c.Reg16(IP) + d), err
	}
	return 0, fmt.Errorf("read of %q: %w", f.String(), ErrAddressingMode)
}

// readFar fetches an offset:segment pair, for Ap and Mp fields.
func (c *CPU) readFar(f Field, a Addr) (segment, offset uint16, err error) {
	if f != FieldAp && f != FieldMp {
		return 0, 0, fmt.Errorf("far read of %s: %w", f, ErrAddressingMode)
	}
	if offset, err = c.read16(a); err != nil {
		return 0, 0, err
	}
	a.Off += 2
	if segment, err = c.read16(a); err != nil {
		return 0, 0, err
	}
	return segment, offset, nil
}

// write stores an operand value. Values wider than the field are
// rejected, as are writes to immediates, constants and jump targets.
func (c *CPU) write(f Field, a Addr, v uint32) error {
	if f.readOnly() {
		return fmt.Errorf("write to %s: %w", f, ErrReadOnly)
	}
	if v > f.mask() {
		return fmt.Errorf("write of 0x%x to %s: %w", v, f, ErrValueRange)
	}

	switch {
	case f >= FieldAL && f <= FieldBH:
		c.SetReg8(byteRegs[f-FieldAL], uint8(v))
		return nil
	case f >= FieldAX && f <= FieldDI:
		c.SetReg16(wordRegs[f-FieldAX], uint16(v))
		return nil
	case f >= FieldES && f <= FieldDS:
		c.SetReg16(segRegs[f-FieldES], uint16(v))
		return nil
	}

	switch f {
	case FieldEb:
		if c.op.Mod == 3 {
			c.SetReg8(byteRegs[c.op.RM], uint8(v))
			return nil
		}
		return c.write8(a, uint8(v))
	case FieldEv, FieldEw:
		if c.op.Mod == 3 {
			c.SetReg16(wordRegs[c.op.RM], uint16(v))
			return nil
		}
		return c.write16(a, uint16(v))
	case FieldGb:
		c.SetReg8(byteRegs[c.op.Reg], uint8(v))
		return nil
	case FieldGv:
		c.SetReg16(wordRegs[c.op.Reg], uint16(v))
		return nil
	case FieldSw:
		c.SetReg16(segRegs[c.op.Reg&3], uint16(v))
		return nil
	case FieldOb:
		return c.write8(a, uint8(v))
	case FieldOv, FieldM, FieldMp:
		return c.write16(a, uint16(v))
	}
	return fmt.Errorf("write to %q: %w", f.String(), ErrAddressingMode)
}
