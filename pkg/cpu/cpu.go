// The 8086 CPU package.
//
// Real mode only: 16-bit registers, segment:offset addressing into a
// flat memory of up to 1 MiB, and a port bus for IN/OUT.
//
// The cpu package includes the register file, operand addressing, the
// instruction table and the decode/execute cycle.
package cpu

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/vatine/emu8086/pkg/iobus"
	"github.com/vatine/emu8086/pkg/memory"
)

// PortBus is what IN and OUT talk to.
type PortBus interface {
	In(port uint16, w iobus.Width) (uint16, error)
	Out(port uint16, w iobus.Width, v uint16) error
}

// Basic CPU data structure
type CPU struct {
	Registers

	mem   *memory.Memory
	ports PortBus

	op      Opcode
	cycles  uint64
	halted  bool
	segment Reg         // data segment used by the last cycle
	repeat  RepeatState // repeat in progress, RepNone between instructions
	ipDelta uint16      // IP advance of the last cycle
}

// Create a CPU on top of a memory and a port bus. A nil bus gets a bus
// with nothing attached.
func New(mem *memory.Memory, ports PortBus) *CPU {
	if ports == nil {
		ports = iobus.New()
	}
	return &CPU{mem: mem, ports: ports, segment: DS}
}

func (c *CPU) Memory() *memory.Memory {
	return c.mem
}

// Number of cycles executed so far.
func (c *CPU) Cycles() uint64 {
	return c.cycles
}

func (c *CPU) Halted() bool {
	return c.halted
}

// Resume clears the halted state, as an interrupt would.
func (c *CPU) Resume() {
	c.halted = false
}

// The most recently decoded instruction.
func (c *CPU) Opcode() Opcode {
	return c.op
}

// Fetch the opcode at CS:IP and, speculatively, the byte after it.
func (c *CPU) decode() error {
	ip := c.Reg16(IP)
	opcode, err := c.read8(Addr{Seg: CS, Off: ip, Mem: true})
	if err != nil {
		return err
	}
	modrm, err := c.read8(Addr{Seg: CS, Off: ip + 1, Mem: true})
	if err != nil {
		modrm = 0
	}
	c.op = describe(opcode, modrm)
	return nil
}

// Record a prefix byte in the decode context. The class of a repeat
// prefix is settled once the prefixed opcode is known.
func (c *CPU) applyPrefix(x *DecodeContext) {
	p := c.op.Opcode
	x.Prefix = p
	switch p {
	case 0x26:
		x.Segment, x.Override = ES, true
	case 0x2e:
		x.Segment, x.Override = CS, true
	case 0x36:
		x.Segment, x.Override = SS, true
	case 0x3e:
		x.Segment, x.Override = DS, true
	case 0xf2, 0xf3:
		x.rep = p
	}
}

// Cycle decodes and executes one instruction.
//
// A code segment holding nothing but prefixes fails with
// ErrNoInstruction once IP comes back round to where the cycle started.
//
// A repeated string instruction executes one iteration per cycle, with
// IP left on its first prefix until the repeat is done. Errors leave
// whatever state the instruction had changed so far.
func (c *CPU) Cycle() error {
	if c.halted {
		return ErrHalted
	}

	x := &DecodeContext{Segment: DS, Start: c.Reg16(IP)}
	if err := c.decode(); err != nil {
		return fmt.Errorf("fetch at %04X:%04X: %w", c.Reg16(CS), c.Reg16(IP), err)
	}
	for isPrefix(c.op.Opcode) {
		c.applyPrefix(x)
		c.SetReg16(IP, c.Reg16(IP)+1)
		if c.Reg16(IP) == x.Start {
			return fmt.Errorf("%04X:%04X: %w", c.Reg16(CS), x.Start, ErrNoInstruction)
		}
		if err := c.decode(); err != nil {
			return fmt.Errorf("fetch at %04X:%04X: %w", c.Reg16(CS), c.Reg16(IP), err)
		}
	}
	if x.rep != 0 {
		x.Repeat = repeatClass(x.rep, c.op.Opcode)
	}
	c.op.Prefix = x.Prefix
	c.segment = x.Segment

	in := c.op.Instr
	if in == nil {
		fields := logrus.Fields{
			"cs":     c.Reg16(CS),
			"ip":     c.Reg16(IP),
			"opcode": c.op.Opcode,
			"modrm":  c.op.ModRM,
		}
		logrus.WithFields(fields).Errorf("Non-existent instruction, %02x", c.op.Opcode)
		return c.op.notImplemented()
	}

	if logrus.IsLevelEnabled(logrus.DebugLevel) {
		fields := logrus.Fields{
			"cycle":  c.cycles,
			"cs":     fmt.Sprintf("%04X", c.Reg16(CS)),
			"ip":     fmt.Sprintf("%04X", c.Reg16(IP)),
			"op":     c.op.String(),
			"prefix": x.Prefix,
		}
		logrus.WithFields(fields).Debug("CPU cycle")
	}

	x.IPDelta += in.Size
	var err error
	if in.repeatable && x.Repeat != RepNone {
		err = c.repeatString(x, in)
	} else {
		c.repeat = RepNone
		err = in.exec(c, x, in.Dst, in.Src)
	}
	if err != nil {
		return fmt.Errorf("%04X:%04X %s: %w", c.Reg16(CS), c.Reg16(IP), c.op, err)
	}

	c.ipDelta = x.IPDelta + x.AddrBytes
	c.SetReg16(IP, c.Reg16(IP)+c.ipDelta)
	c.cycles++
	return nil
}

// One iteration of a repeated string instruction. While more iterations
// remain, IP goes back to the first prefix so the next cycle picks the
// instruction up again.
func (c *CPU) repeatString(x *DecodeContext, in *Instr) error {
	if c.Reg16(CX) == 0 {
		c.repeat = RepNone
		return nil
	}
	if err := in.exec(c, x, in.Dst, in.Src); err != nil {
		return err
	}

	more := c.Reg16(CX) != 0
	switch x.Repeat {
	case RepZ:
		more = more && c.Flag(FlagZF)
	case RepNZ:
		more = more && !c.Flag(FlagZF)
	}
	if !more {
		c.repeat = RepNone
		return nil
	}
	c.repeat = x.Repeat
	c.SetReg16(IP, x.Start)
	x.Jump()
	return nil
}

// Push a word: SP moves down by two, then the word is stored at SS:SP.
func (c *CPU) push(v uint16) error {
	sp := c.Reg16(SP) - 2
	c.SetReg16(SP, sp)
	return c.write16(Addr{Seg: SS, Off: sp, Mem: true}, v)
}

// Pop a word: read from SS:SP, then SP moves up by two.
func (c *CPU) pop() (uint16, error) {
	sp := c.Reg16(SP)
	v, err := c.read16(Addr{Seg: SS, Off: sp, Mem: true})
	if err != nil {
		return 0, err
	}
	c.SetReg16(SP, sp+2)
	return v, nil
}

// Push and Pop are the stack operations, for drivers and tests.
func (c *CPU) Push(v uint16) error {
	return c.push(v)
}

func (c *CPU) Pop() (uint16, error) {
	return c.pop()
}
