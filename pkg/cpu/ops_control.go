package cpu

var jccNames = [16]string{
	"JO", "JNO", "JB", "JNB", "JZ", "JNZ", "JBE", "JA",
	"JS", "JNS", "JP", "JNP", "JL", "JGE", "JLE", "JG",
}

// Condition tested by Jcc number cc. Odd numbers are the negation of the
// even one before them.
func (c *CPU) condition(cc byte) bool {
	var t bool
	switch cc >> 1 {
	case 0:
		t = c.Flag(FlagOF)
	case 1:
		t = c.Flag(FlagCF)
	case 2:
		t = c.Flag(FlagZF)
	case 3:
		t = c.Flag(FlagCF) || c.Flag(FlagZF)
	case 4:
		t = c.Flag(FlagSF)
	case 5:
		t = c.Flag(FlagPF)
	case 6:
		t = c.Flag(FlagSF) != c.Flag(FlagOF)
	case 7:
		t = c.Flag(FlagZF) || c.Flag(FlagSF) != c.Flag(FlagOF)
	}
	if cc&1 != 0 {
		t = !t
	}
	return t
}

// Address of the instruction after the current one.
func (c *CPU) next(x *DecodeContext) uint16 {
	return c.Reg16(IP) + x.IPDelta + x.AddrBytes
}

// Relative jumps set IP to the target computed from the current IP and
// let the normal advance add the instruction length.
func opJmp(c *CPU, x *DecodeContext, dst, src Field) error {
	_, target, err := c.operand(x, dst)
	if err != nil {
		return err
	}
	c.SetReg16(IP, uint16(target))
	return nil
}

func opJcc(c *CPU, x *DecodeContext, dst, src Field) error {
	_, target, err := c.operand(x, dst)
	if err != nil {
		return err
	}
	if c.condition(c.op.Opcode & 0x0f) {
		c.SetReg16(IP, uint16(target))
	}
	return nil
}

func opLoop(c *CPU, x *DecodeContext, dst, src Field) error {
	_, target, err := c.operand(x, dst)
	if err != nil {
		return err
	}
	cx := c.Reg16(CX) - 1
	c.SetReg16(CX, cx)
	take := cx != 0
	switch c.op.Opcode {
	case 0xe0:
		take = take && !c.Flag(FlagZF)
	case 0xe1:
		take = take && c.Flag(FlagZF)
	}
	if take {
		c.SetReg16(IP, uint16(target))
	}
	return nil
}

func opJcxz(c *CPU, x *DecodeContext, dst, src Field) error {
	_, target, err := c.operand(x, dst)
	if err != nil {
		return err
	}
	if c.Reg16(CX) == 0 {
		c.SetReg16(IP, uint16(target))
	}
	return nil
}

func opJmpIndirect(c *CPU, x *DecodeContext, dst, src Field) error {
	_, target, err := c.operand(x, dst)
	if err != nil {
		return err
	}
	c.SetReg16(IP, uint16(target))
	x.Jump()
	return nil
}

func opJmpFar(c *CPU, x *DecodeContext, dst, src Field) error {
	a, err := c.address(x, dst)
	if err != nil {
		return err
	}
	seg, off, err := c.readFar(dst, a)
	if err != nil {
		return err
	}
	c.SetReg16(CS, seg)
	c.SetReg16(IP, off)
	x.Jump()
	return nil
}

func opCall(c *CPU, x *DecodeContext, dst, src Field) error {
	_, target, err := c.operand(x, dst)
	if err != nil {
		return err
	}
	if err := c.push(c.next(x)); err != nil {
		return err
	}
	c.SetReg16(IP, uint16(target))
	return nil
}

func opCallIndirect(c *CPU, x *DecodeContext, dst, src Field) error {
	_, target, err := c.operand(x, dst)
	if err != nil {
		return err
	}
	if err := c.push(c.next(x)); err != nil {
		return err
	}
	c.SetReg16(IP, uint16(target))
	x.Jump()
	return nil
}

func opCallFar(c *CPU, x *DecodeContext, dst, src Field) error {
	a, err := c.address(x, dst)
	if err != nil {
		return err
	}
	seg, off, err := c.readFar(dst, a)
	if err != nil {
		return err
	}
	if err := c.push(c.Reg16(CS)); err != nil {
		return err
	}
	if err := c.push(c.next(x)); err != nil {
		return err
	}
	c.SetReg16(CS, seg)
	c.SetReg16(IP, off)
	x.Jump()
	return nil
}

// Optional stack adjustment carried by RET n.
func (c *CPU) release(x *DecodeContext, f Field) (uint16, error) {
	if f == FieldNone {
		return 0, nil
	}
	_, n, err := c.operand(x, f)
	return uint16(n), err
}

func opRet(c *CPU, x *DecodeContext, dst, src Field) error {
	n, err := c.release(x, dst)
	if err != nil {
		return err
	}
	ip, err := c.pop()
	if err != nil {
		return err
	}
	c.SetReg16(SP, c.Reg16(SP)+n)
	c.SetReg16(IP, ip)
	x.Jump()
	return nil
}

func opRetf(c *CPU, x *DecodeContext, dst, src Field) error {
	n, err := c.release(x, dst)
	if err != nil {
		return err
	}
	ip, err := c.pop()
	if err != nil {
		return err
	}
	cs, err := c.pop()
	if err != nil {
		return err
	}
	c.SetReg16(SP, c.Reg16(SP)+n)
	c.SetReg16(CS, cs)
	c.SetReg16(IP, ip)
	x.Jump()
	return nil
}

// Enter an interrupt handler: push FLAGS, CS and the return IP, then
// load CS:IP from the vector table at vector*4.
func (c *CPU) interrupt(vector uint8, ret uint16) error {
	if err := c.push(c.Reg16(FLAGS)); err != nil {
		return err
	}
	if err := c.push(c.Reg16(CS)); err != nil {
		return err
	}
	if err := c.push(ret); err != nil {
		return err
	}
	c.SetFlag(FlagIF, false)
	c.SetFlag(FlagTF, false)

	ivt := uint32(vector) * 4
	off, err := c.mem.Read16(ivt)
	if err != nil {
		return err
	}
	seg, err := c.mem.Read16(ivt + 2)
	if err != nil {
		return err
	}
	c.SetReg16(CS, seg)
	c.SetReg16(IP, off)
	return nil
}

// Interrupt delivers an external interrupt between cycles. A halted CPU
// wakes up.
func (c *CPU) Interrupt(vector uint8) error {
	c.halted = false
	return c.interrupt(vector, c.Reg16(IP))
}

func opInt(c *CPU, x *DecodeContext, dst, src Field) error {
	_, vector, err := c.operand(x, dst)
	if err != nil {
		return err
	}
	if err := c.interrupt(uint8(vector), c.next(x)); err != nil {
		return err
	}
	x.Jump()
	return nil
}

func opInto(c *CPU, x *DecodeContext, dst, src Field) error {
	if !c.Flag(FlagOF) {
		return nil
	}
	if err := c.interrupt(4, c.next(x)); err != nil {
		return err
	}
	x.Jump()
	return nil
}

func opIret(c *CPU, x *DecodeContext, dst, src Field) error {
	ip, err := c.pop()
	if err != nil {
		return err
	}
	cs, err := c.pop()
	if err != nil {
		return err
	}
	flags, err := c.pop()
	if err != nil {
		return err
	}
	c.SetReg16(IP, ip)
	c.SetReg16(CS, cs)
	c.SetReg16(FLAGS, flags)
	x.Jump()
	return nil
}

func opHlt(c *CPU, x *DecodeContext, dst, src Field) error {
	c.halted = true
	return nil
}

func opFlag(c *CPU, x *DecodeContext, dst, src Field) error {
	switch c.op.Opcode {
	case 0xf8:
		c.SetFlag(FlagCF, false)
	case 0xf9:
		c.SetFlag(FlagCF, true)
	case 0xfa:
		c.SetFlag(FlagIF, false)
	case 0xfb:
		c.SetFlag(FlagIF, true)
	case 0xfc:
		c.SetFlag(FlagDF, false)
	case 0xfd:
		c.SetFlag(FlagDF, true)
	}
	return nil
}

func opCmc(c *CPU, x *DecodeContext, dst, src Field) error {
	c.SetFlag(FlagCF, !c.Flag(FlagCF))
	return nil
}
