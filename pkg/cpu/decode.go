package cpu

import (
	"fmt"
)

// RepeatState is the repeat prefix in force for a string instruction.
type RepeatState uint8

const (
	RepNone RepeatState = iota
	Rep                 // repeat while CX != 0
	RepZ                // ... and ZF set
	RepNZ               // ... and ZF clear
)

var repeatNames = [...]string{"none", "rep", "repz", "repnz"}

func (r RepeatState) String() string {
	if int(r) < len(repeatNames) {
		return repeatNames[r]
	}
	return "?"
}

// DecodeContext carries the per-cycle decode state. A fresh one is made
// for every cycle.
type DecodeContext struct {
	// Data segment for memory operands, DS unless overridden.
	Segment  Reg
	Override bool
	Repeat   RepeatState
	// Last prefix byte applied, 0 if none.
	Prefix byte
	// IP of the first byte of the instruction, prefixes included.
	Start uint16
	// Bytes of opcode and ModRM, and bytes claimed by operands. IP moves
	// by their sum once the instruction is done.
	IPDelta   uint16
	AddrBytes uint16

	rep byte // last REP prefix byte seen
}

// Jump stops IP from being advanced past the current instruction. Any
// handler that loads IP with an absolute value calls it.
func (x *DecodeContext) Jump() {
	x.IPDelta = 0
	x.AddrBytes = 0
}

type handler func(c *CPU, x *DecodeContext, dst, src Field) error

// Instr describes one instruction: its mnemonic, the operand fields it
// works on and the behaviour.
type Instr struct {
	Name     string
	Dst, Src Field
	// Opcode byte, plus the ModRM byte if the instruction has one.
	Size       uint16
	exec       handler
	repeatable bool
}

func (in *Instr) String() string {
	switch {
	case in.Dst == FieldNone:
		return in.Name
	case in.Src == FieldNone:
		return in.Name + " " + in.Dst.String()
	}
	return in.Name + " " + in.Dst.String() + "," + in.Src.String()
}

// A table slot holds either one instruction, or eight selected by the
// ModRM reg field.
type entry struct {
	single *Instr
	group  *[8]*Instr
}

var instructionTable [256]entry

func usesModRM(f Field) bool {
	switch f {
	case FieldEb, FieldEv, FieldEw, FieldGb, FieldGv, FieldSw, FieldM, FieldMp:
		return true
	}
	return false
}

func instr(name string, h handler, dst, src Field) *Instr {
	in := &Instr{Name: name, Dst: dst, Src: src, Size: 1, exec: h}
	if usesModRM(dst) || usesModRM(src) {
		in.Size = 2
	}
	return in
}

func stringInstr(name string, h handler) *Instr {
	in := instr(name, h, FieldNone, FieldNone)
	in.repeatable = true
	return in
}

// Register an instruction against a specific opcode
func register(opcode byte, in *Instr) {
	if instructionTable[opcode].single != nil || instructionTable[opcode].group != nil {
		panic(fmt.Sprintf("opcode %02X registered twice", opcode))
	}
	instructionTable[opcode].single = in
}

// Register a group opcode. All members carry a ModRM byte.
func registerGroup(opcode byte, members [8]*Instr) {
	if instructionTable[opcode].single != nil || instructionTable[opcode].group != nil {
		panic(fmt.Sprintf("opcode %02X registered twice", opcode))
	}
	for _, in := range members {
		if in != nil {
			in.Size = 2
		}
	}
	instructionTable[opcode].group = &members
}

// Opcode is the decoded form of the instruction at CS:IP.
type Opcode struct {
	Opcode byte
	ModRM  byte
	Prefix byte
	D, W   byte
	Mod    byte
	Reg    byte
	RM     byte
	Size   SizeClass
	Instr  *Instr
}

// Split out the fields of an opcode and its (possible) ModRM byte, and
// look up the instruction.
func describe(opcode, modrm byte) Opcode {
	op := Opcode{
		Opcode: opcode,
		ModRM:  modrm,
		D:      (opcode >> 1) & 1,
		W:      opcode & 1,
		Mod:    modrm >> 6,
		Reg:    (modrm >> 3) & 7,
		RM:     modrm & 7,
	}
	e := instructionTable[opcode]
	switch {
	case e.single != nil:
		op.Instr = e.single
	case e.group != nil:
		op.Instr = e.group[op.Reg]
	}
	if op.Instr != nil {
		op.Size = op.Instr.Dst.Size()
	}
	return op
}

func (o Opcode) String() string {
	if o.Instr == nil {
		return fmt.Sprintf("(bad %02X)", o.Opcode)
	}
	return o.Instr.String()
}

func (o Opcode) grouped() bool {
	return instructionTable[o.Opcode].group != nil
}

func (o Opcode) notImplemented() *NotImplementedError {
	e := &NotImplementedError{Opcode: o.Opcode, Reg: o.Reg, Group: o.grouped()}
	if o.Instr != nil {
		e.Mnemonic = o.Instr.Name
	}
	return e
}

func isPrefix(b byte) bool {
	switch b {
	case 0x26, 0x2e, 0x36, 0x3e, 0xf2, 0xf3:
		return true
	}
	return false
}

// Repeat class of a REP prefix, which depends on what it prefixes.
// CMPS and SCAS test ZF, the other string instructions only count.
func repeatClass(prefix, next byte) RepeatState {
	switch next {
	case 0xa6, 0xa7, 0xae, 0xaf:
		if prefix == 0xf2 {
			return RepNZ
		}
		return RepZ
	}
	return Rep
}

func notImplemented(c *CPU, x *DecodeContext, dst, src Field) error {
	return c.op.notImplemented()
}

func init() {
	alu := []struct {
		base byte
		name string
		h    handler
	}{
		{0x00, "ADD", opAdd},
		{0x08, "OR", opOr},
		{0x10, "ADC", opAdc},
		{0x18, "SBB", opSbb},
		{0x20, "AND", opAnd},
		{0x28, "SUB", opSub},
		{0x30, "XOR", opXor},
		{0x38, "CMP", opCmp},
	}
	for _, a := range alu {
		register(a.base+0, instr(a.name, a.h, FieldEb, FieldGb))
		register(a.base+1, instr(a.name, a.h, FieldEv, FieldGv))
		register(a.base+2, instr(a.name, a.h, FieldGb, FieldEb))
		register(a.base+3, instr(a.name, a.h, FieldGv, FieldEv))
		register(a.base+4, instr(a.name, a.h, FieldAL, FieldIb))
		register(a.base+5, instr(a.name, a.h, FieldAX, FieldIv))
	}

	register(0x06, instr("PUSH", opPush, FieldES, FieldNone))
	register(0x07, instr("POP", opPop, FieldES, FieldNone))
	register(0x0e, instr("PUSH", opPush, FieldCS, FieldNone))
	register(0x16, instr("PUSH", opPush, FieldSS, FieldNone))
	register(0x17, instr("POP", opPop, FieldSS, FieldNone))
	register(0x1e, instr("PUSH", opPush, FieldDS, FieldNone))
	register(0x1f, instr("POP", opPop, FieldDS, FieldNone))

	register(0x27, instr("DAA", notImplemented, FieldNone, FieldNone))
	register(0x2f, instr("DAS", notImplemented, FieldNone, FieldNone))
	register(0x37, instr("AAA", notImplemented, FieldNone, FieldNone))
	register(0x3f, instr("AAS", notImplemented, FieldNone, FieldNone))

	for ix := byte(0); ix < 8; ix++ {
		r := FieldAX + Field(ix)
		register(0x40+ix, instr("INC", opInc, r, FieldNone))
		register(0x48+ix, instr("DEC", opDec, r, FieldNone))
		register(0x50+ix, instr("PUSH", opPush, r, FieldNone))
		register(0x58+ix, instr("POP", opPop, r, FieldNone))
		register(0xb0+ix, instr("MOV", opMov, FieldAL+Field(ix), FieldIb))
		register(0xb8+ix, instr("MOV", opMov, r, FieldIv))
		if ix > 0 {
			register(0x90+ix, instr("XCHG", opXchg, r, FieldAX))
		}
	}

	for ix, name := range jccNames {
		register(0x70+byte(ix), instr(name, opJcc, FieldJb, FieldNone))
	}

	grp1 := func(dst, src Field) [8]*Instr {
		return [8]*Instr{
			instr("ADD", opAdd, dst, src),
			instr("OR", opOr, dst, src),
			instr("ADC", opAdc, dst, src),
			instr("SBB", opSbb, dst, src),
			instr("AND", opAnd, dst, src),
			instr("SUB", opSub, dst, src),
			instr("XOR", opXor, dst, src),
			instr("CMP", opCmp, dst, src),
		}
	}
	registerGroup(0x80, grp1(FieldEb, FieldIb))
	registerGroup(0x81, grp1(FieldEv, FieldIv))
	registerGroup(0x82, grp1(FieldEb, FieldIb))
	registerGroup(0x83, grp1(FieldEv, FieldIbs))

	register(0x84, instr("TEST", opTest, FieldEb, FieldGb))
	register(0x85, instr("TEST", opTest, FieldEv, FieldGv))
	register(0x86, instr("XCHG", opXchg, FieldEb, FieldGb))
	register(0x87, instr("XCHG", opXchg, FieldEv, FieldGv))
	register(0x88, instr("MOV", opMov, FieldEb, FieldGb))
	register(0x89, instr("MOV", opMov, FieldEv, FieldGv))
	register(0x8a, instr("MOV", opMov, FieldGb, FieldEb))
	register(0x8b, instr("MOV", opMov, FieldGv, FieldEv))
	register(0x8c, instr("MOV", opMov, FieldEw, FieldSw))
	register(0x8d, instr("LEA", opLea, FieldGv, FieldM))
	register(0x8e, instr("MOV", opMov, FieldSw, FieldEw))
	registerGroup(0x8f, [8]*Instr{instr("POP", opPop, FieldEv, FieldNone)})

	register(0x90, instr("NOP", opNop, FieldNone, FieldNone))
	register(0x98, instr("CBW", notImplemented, FieldNone, FieldNone))
	register(0x99, instr("CWD", notImplemented, FieldNone, FieldNone))
	register(0x9a, instr("CALL", opCallFar, FieldAp, FieldNone))
	register(0x9b, instr("WAIT", opNop, FieldNone, FieldNone))
	register(0x9c, instr("PUSHF", opPushf, FieldNone, FieldNone))
	register(0x9d, instr("POPF", opPopf, FieldNone, FieldNone))
	register(0x9e, instr("SAHF", opSahf, FieldNone, FieldNone))
	register(0x9f, instr("LAHF", opLahf, FieldNone, FieldNone))

	register(0xa0, instr("MOV", opMov, FieldAL, FieldOb))
	register(0xa1, instr("MOV", opMov, FieldAX, FieldOv))
	register(0xa2, instr("MOV", opMov, FieldOb, FieldAL))
	register(0xa3, instr("MOV", opMov, FieldOv, FieldAX))
	register(0xa4, stringInstr("MOVSB", opMovs))
	register(0xa5, stringInstr("MOVSW", opMovs))
	register(0xa6, stringInstr("CMPSB", opCmps))
	register(0xa7, stringInstr("CMPSW", opCmps))
	register(0xa8, instr("TEST", opTest, FieldAL, FieldIb))
	register(0xa9, instr("TEST", opTest, FieldAX, FieldIv))
	register(0xaa, stringInstr("STOSB", opStos))
	register(0xab, stringInstr("STOSW", opStos))
	register(0xac, stringInstr("LODSB", opLods))
	register(0xad, stringInstr("LODSW", opLods))
	register(0xae, stringInstr("SCASB", opScas))
	register(0xaf, stringInstr("SCASW", opScas))

	register(0xc2, instr("RET", opRet, FieldIw, FieldNone))
	register(0xc3, instr("RET", opRet, FieldNone, FieldNone))
	register(0xc4, instr("LES", opLoadFar, FieldGv, FieldMp))
	register(0xc5, instr("LDS", opLoadFar, FieldGv, FieldMp))
	registerGroup(0xc6, [8]*Instr{instr("MOV", opMov, FieldEb, FieldIb)})
	registerGroup(0xc7, [8]*Instr{instr("MOV", opMov, FieldEv, FieldIv)})
	register(0xca, instr("RETF", opRetf, FieldIw, FieldNone))
	register(0xcb, instr("RETF", opRetf, FieldNone, FieldNone))
	register(0xcc, instr("INT", opInt, FieldThree, FieldNone))
	register(0xcd, instr("INT", opInt, FieldIb, FieldNone))
	register(0xce, instr("INTO", opInto, FieldNone, FieldNone))
	register(0xcf, instr("IRET", opIret, FieldNone, FieldNone))

	grp2 := func(dst, src Field) [8]*Instr {
		return [8]*Instr{
			instr("ROL", opShift, dst, src),
			instr("ROR", opShift, dst, src),
			instr("RCL", opShift, dst, src),
			instr("RCR", opShift, dst, src),
			instr("SHL", opShift, dst, src),
			instr("SHR", opShift, dst, src),
			nil,
			instr("SAR", opShift, dst, src),
		}
	}
	registerGroup(0xd0, grp2(FieldEb, FieldOne))
	registerGroup(0xd1, grp2(FieldEv, FieldOne))
	registerGroup(0xd2, grp2(FieldEb, FieldCL))
	registerGroup(0xd3, grp2(FieldEv, FieldCL))

	register(0xd4, instr("AAM", notImplemented, FieldIb, FieldNone))
	register(0xd5, instr("AAD", notImplemented, FieldIb, FieldNone))
	register(0xd7, instr("XLAT", notImplemented, FieldNone, FieldNone))
	for ix := byte(0xd8); ix <= 0xdf; ix++ {
		register(ix, instr("ESC", notImplemented, FieldEv, FieldNone))
	}

	register(0xe0, instr("LOOPNZ", opLoop, FieldJb, FieldNone))
	register(0xe1, instr("LOOPZ", opLoop, FieldJb, FieldNone))
	register(0xe2, instr("LOOP", opLoop, FieldJb, FieldNone))
	register(0xe3, instr("JCXZ", opJcxz, FieldJb, FieldNone))
	register(0xe4, instr("IN", opIn, FieldAL, FieldIb))
	register(0xe5, instr("IN", opIn, FieldAX, FieldIb))
	register(0xe6, instr("OUT", opOut, FieldIb, FieldAL))
	register(0xe7, instr("OUT", opOut, FieldIb, FieldAX))
	register(0xe8, instr("CALL", opCall, FieldJv, FieldNone))
	register(0xe9, instr("JMP", opJmp, FieldJv, FieldNone))
	register(0xea, instr("JMP", opJmpFar, FieldAp, FieldNone))
	register(0xeb, instr("JMP", opJmp, FieldJb, FieldNone))
	register(0xec, instr("IN", opIn, FieldAL, FieldDX))
	register(0xed, instr("IN", opIn, FieldAX, FieldDX))
	register(0xee, instr("OUT", opOut, FieldDX, FieldAL))
	register(0xef, instr("OUT", opOut, FieldDX, FieldAX))

	register(0xf0, instr("LOCK", opNop, FieldNone, FieldNone))
	register(0xf4, instr("HLT", opHlt, FieldNone, FieldNone))
	register(0xf5, instr("CMC", opCmc, FieldNone, FieldNone))

	grp3 := func(dst, imm Field) [8]*Instr {
		return [8]*Instr{
			instr("TEST", opTest, dst, imm),
			nil,
			instr("NOT", opNot, dst, FieldNone),
			instr("NEG", opNeg, dst, FieldNone),
			instr("MUL", notImplemented, dst, FieldNone),
			instr("IMUL", notImplemented, dst, FieldNone),
			instr("DIV", notImplemented, dst, FieldNone),
			instr("IDIV", notImplemented, dst, FieldNone),
		}
	}
	registerGroup(0xf6, grp3(FieldEb, FieldIb))
	registerGroup(0xf7, grp3(FieldEv, FieldIv))

	register(0xf8, instr("CLC", opFlag, FieldNone, FieldNone))
	register(0xf9, instr("STC", opFlag, FieldNone, FieldNone))
	register(0xfa, instr("CLI", opFlag, FieldNone, FieldNone))
	register(0xfb, instr("STI", opFlag, FieldNone, FieldNone))
	register(0xfc, instr("CLD", opFlag, FieldNone, FieldNone))
	register(0xfd, instr("STD", opFlag, FieldNone, FieldNone))

	registerGroup(0xfe, [8]*Instr{
		instr("INC", opInc, FieldEb, FieldNone),
		instr("DEC", opDec, FieldEb, FieldNone),
	})
	registerGroup(0xff, [8]*Instr{
		instr("INC", opInc, FieldEv, FieldNone),
		instr("DEC", opDec, FieldEv, FieldNone),
		instr("CALL", opCallIndirect, FieldEv, FieldNone),
		instr("CALL", opCallFar, FieldMp, FieldNone),
		instr("JMP", opJmpIndirect, FieldEv, FieldNone),
		instr("JMP", opJmpFar, FieldMp, FieldNone),
		instr("PUSH", opPush, FieldEv, FieldNone),
	})
}
