package cpu

// String instructions read from DS:SI (segment overridable) and write
// to ES:DI. Index registers move by the element size, downwards when DF
// is set. Under a repeat prefix each call is one iteration and counts CX
// down by one.

func (c *CPU) source(x *DecodeContext) Addr {
	return Addr{Seg: x.Segment, Off: c.Reg16(SI), Mem: true}
}

func (c *CPU) destination() Addr {
	return Addr{Seg: ES, Off: c.Reg16(DI), Mem: true}
}

func (c *CPU) readWidth(a Addr, w width) (uint32, error) {
	if w.bytes == 1 {
		v, err := c.read8(a)
		return uint32(v), err
	}
	v, err := c.read16(a)
	return uint32(v), err
}

func (c *CPU) writeWidth(a Addr, w width, v uint32) error {
	if w.bytes == 1 {
		return c.write8(a, uint8(v))
	}
	return c.write16(a, uint16(v))
}

func (c *CPU) accumulator(w width) uint32 {
	if w.bytes == 1 {
		return uint32(c.Reg8(AL))
	}
	return uint32(c.Reg16(AX))
}

func (c *CPU) setAccumulator(w width, v uint32) {
	if w.bytes == 1 {
		c.SetReg8(AL, uint8(v))
	} else {
		c.SetReg16(AX, uint16(v))
	}
}

func (c *CPU) stepIndex(r Reg, w width) {
	v := c.Reg16(r)
	if c.Flag(FlagDF) {
		v -= w.bytes
	} else {
		v += w.bytes
	}
	c.SetReg16(r, v)
}

func (c *CPU) countRepeat(x *DecodeContext) {
	if x.Repeat != RepNone {
		c.SetReg16(CX, c.Reg16(CX)-1)
	}
}

func opMovs(c *CPU, x *DecodeContext, dst, src Field) error {
	w := c.width()
	v, err := c.readWidth(c.source(x), w)
	if err != nil {
		return err
	}
	if err := c.writeWidth(c.destination(), w, v); err != nil {
		return err
	}
	c.stepIndex(SI, w)
	c.stepIndex(DI, w)
	c.countRepeat(x)
	return nil
}

func opCmps(c *CPU, x *DecodeContext, dst, src Field) error {
	w := c.width()
	s, err := c.readWidth(c.source(x), w)
	if err != nil {
		return err
	}
	d, err := c.readWidth(c.destination(), w)
	if err != nil {
		return err
	}
	c.subFlags(s, d, 0, s-d, w)
	c.stepIndex(SI, w)
	c.stepIndex(DI, w)
	c.countRepeat(x)
	return nil
}

func opScas(c *CPU, x *DecodeContext, dst, src Field) error {
	w := c.width()
	d, err := c.readWidth(c.destination(), w)
	if err != nil {
		return err
	}
	a := c.accumulator(w)
	c.subFlags(a, d, 0, a-d, w)
	c.stepIndex(DI, w)
	c.countRepeat(x)
	return nil
}

func opLods(c *CPU, x *DecodeContext, dst, src Field) error {
	w := c.width()
	v, err := c.readWidth(c.source(x), w)
	if err != nil {
		return err
	}
	c.setAccumulator(w, v)
	c.stepIndex(SI, w)
	c.countRepeat(x)
	return nil
}

func opStos(c *CPU, x *DecodeContext, dst, src Field) error {
	w := c.width()
	if err := c.writeWidth(c.destination(), w, c.accumulator(w)); err != nil {
		return err
	}
	c.stepIndex(DI, w)
	c.countRepeat(x)
	return nil
}
