package cpu

import (
	"github.com/vatine/emu8086/pkg/iobus"
)

func opNop(c *CPU, x *DecodeContext, dst, src Field) error {
	return nil
}

func opMov(c *CPU, x *DecodeContext, dst, src Field) error {
	da, err := c.address(x, dst)
	if err != nil {
		return err
	}
	_, v, err := c.operand(x, src)
	if err != nil {
		return err
	}
	return c.write(dst, da, v)
}

func opXchg(c *CPU, x *DecodeContext, dst, src Field) error {
	da, err := c.address(x, dst)
	if err != nil {
		return err
	}
	sa, err := c.address(x, src)
	if err != nil {
		return err
	}
	d, err := c.read(dst, da)
	if err != nil {
		return err
	}
	s, err := c.read(src, sa)
	if err != nil {
		return err
	}
	if err := c.write(dst, da, s); err != nil {
		return err
	}
	return c.write(src, sa, d)
}

func opLea(c *CPU, x *DecodeContext, dst, src Field) error {
	da, err := c.address(x, dst)
	if err != nil {
		return err
	}
	sa, err := c.address(x, src)
	if err != nil {
		return err
	}
	return c.write(dst, da, uint32(sa.Off))
}

// LES and LDS: load a far pointer into a register and ES or DS.
func opLoadFar(c *CPU, x *DecodeContext, dst, src Field) error {
	da, err := c.address(x, dst)
	if err != nil {
		return err
	}
	sa, err := c.address(x, src)
	if err != nil {
		return err
	}
	seg, off, err := c.readFar(src, sa)
	if err != nil {
		return err
	}
	if err := c.write(dst, da, uint32(off)); err != nil {
		return err
	}
	if c.op.Opcode == 0xc4 {
		c.SetReg16(ES, seg)
	} else {
		c.SetReg16(DS, seg)
	}
	return nil
}

// PUSH SP stores SP as it is after the decrement.
func opPush(c *CPU, x *DecodeContext, dst, src Field) error {
	_, v, err := c.operand(x, dst)
	if err != nil {
		return err
	}
	if dst == FieldSP || (dst == FieldEv && c.op.Mod == 3 && c.op.RM == 4) {
		v -= 2
	}
	return c.push(uint16(v))
}

func opPop(c *CPU, x *DecodeContext, dst, src Field) error {
	a, err := c.address(x, dst)
	if err != nil {
		return err
	}
	v, err := c.pop()
	if err != nil {
		return err
	}
	return c.write(dst, a, uint32(v))
}

func opPushf(c *CPU, x *DecodeContext, dst, src Field) error {
	return c.push(c.Reg16(FLAGS))
}

func opPopf(c *CPU, x *DecodeContext, dst, src Field) error {
	v, err := c.pop()
	if err != nil {
		return err
	}
	c.SetReg16(FLAGS, v)
	return nil
}

// SF, ZF, AF, PF and CF travel between AH and FLAGS.
const ahFlags = FlagSF | FlagZF | FlagAF | FlagPF | FlagCF

func opSahf(c *CPU, x *DecodeContext, dst, src Field) error {
	f := c.Reg16(FLAGS)&^ahFlags | uint16(c.Reg8(AH))&ahFlags
	c.SetReg16(FLAGS, f)
	return nil
}

func opLahf(c *CPU, x *DecodeContext, dst, src Field) error {
	c.SetReg8(AH, uint8(c.Reg16(FLAGS)))
	return nil
}

func portWidth(f Field) iobus.Width {
	if f.Size() == SizeByte {
		return iobus.Byte
	}
	return iobus.Word
}

// IN acc, port
func opIn(c *CPU, x *DecodeContext, dst, src Field) error {
	da, err := c.address(x, dst)
	if err != nil {
		return err
	}
	_, port, err := c.operand(x, src)
	if err != nil {
		return err
	}
	v, err := c.ports.In(uint16(port), portWidth(dst))
	if err != nil {
		return err
	}
	return c.write(dst, da, uint32(v))
}

// OUT port, acc
func opOut(c *CPU, x *DecodeContext, dst, src Field) error {
	_, port, v, err := c.operands(x, dst, src)
	if err != nil {
		return err
	}
	return c.ports.Out(uint16(port), portWidth(src), uint16(v))
}
