package cpu

import (
	"encoding/binary"
	"math/bits"
)

// Reg names one of the 16-bit register slots.
type Reg uint8

// Slot order in the register file.
const (
	AX Reg = iota
	BX
	CX
	DX
	SI
	DI
	BP
	SP
	IP
	CS
	DS
	ES
	SS
	FLAGS
	numRegs
)

var regNames = [...]string{"AX", "BX", "CX", "DX", "SI", "DI", "BP", "SP", "IP", "CS", "DS", "ES", "SS", "FLAGS"}

func (r Reg) String() string {
	if r < numRegs {
		return regNames[r]
	}
	return "?"
}

// Reg8 names a byte half of AX, BX, CX or DX.
type Reg8 uint8

const (
	AL Reg8 = iota
	AH
	BL
	BH
	CL
	CH
	DL
	DH
)

var reg8Names = [...]string{"AL", "AH", "BL", "BH", "CL", "CH", "DL", "DH"}

func (r Reg8) String() string {
	if int(r) < len(reg8Names) {
		return reg8Names[r]
	}
	return "?"
}

// Byte offset of a byte register within the register file. AL sits in the
// low byte of AX, AH in the high byte, and so on.
func (r Reg8) offset() int {
	return 2*int(r/2) + int(r%2)
}

// Flag bit positions within FLAGS.
const (
	FlagCF uint16 = 1 << 0
	FlagPF uint16 = 1 << 2
	FlagAF uint16 = 1 << 4
	FlagZF uint16 = 1 << 6
	FlagSF uint16 = 1 << 7
	FlagTF uint16 = 1 << 8
	FlagIF uint16 = 1 << 9
	FlagDF uint16 = 1 << 10
	FlagOF uint16 = 1 << 11
)

// Registers is the register file. Byte registers alias the word
// registers through one shared buffer.
type Registers struct {
	buf [2 * numRegs]byte
}

func (r *Registers) Reg16(reg Reg) uint16 {
	return binary.LittleEndian.Uint16(r.buf[2*int(reg):])
}

func (r *Registers) SetReg16(reg Reg, v uint16) {
	binary.LittleEndian.PutUint16(r.buf[2*int(reg):], v)
}

func (r *Registers) Reg8(reg Reg8) uint8 {
	return r.buf[reg.offset()]
}

func (r *Registers) SetReg8(reg Reg8, v uint8) {
	r.buf[reg.offset()] = v
}

// Flag reports whether a FLAGS bit is set.
func (r *Registers) Flag(f uint16) bool {
	return r.Reg16(FLAGS)&f != 0
}

func (r *Registers) SetFlag(f uint16, on bool) {
	v := r.Reg16(FLAGS)
	if on {
		v |= f
	} else {
		v &^= f
	}
	r.SetReg16(FLAGS, v)
}

// Words returns the register file in slot order.
func (r *Registers) Words() []uint16 {
	rv := make([]uint16, numRegs)
	for ix := range rv {
		rv[ix] = r.Reg16(Reg(ix))
	}
	return rv
}

var parityTable [256]bool

func init() {
	for ix := range parityTable {
		parityTable[ix] = bits.OnesCount8(uint8(ix))%2 == 0
	}
}
