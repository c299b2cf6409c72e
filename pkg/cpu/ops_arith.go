package cpu

// Operand width as the ALU sees it.
type width struct {
	mask, sign uint32
	bytes      uint16
}

var (
	byteWidth = width{mask: 0xff, sign: 0x80, bytes: 1}
	wordWidth = width{mask: 0xffff, sign: 0x8000, bytes: 2}
)

// Width of the current instruction, from its destination field or, when
// that says nothing, the opcode's w bit.
func (c *CPU) width() width {
	switch c.op.Size {
	case SizeByte:
		return byteWidth
	case SizeWord, SizeWordOrDword:
		return wordWidth
	}
	if c.op.W == 0 {
		return byteWidth
	}
	return wordWidth
}

func (c *CPU) setSZP(r uint32, w width) {
	r &= w.mask
	c.SetFlag(FlagZF, r == 0)
	c.SetFlag(FlagSF, r&w.sign != 0)
	c.SetFlag(FlagPF, parityTable[uint8(r)])
}

// Flags after r = d + s (+ carry in).
func (c *CPU) addFlags(d, s, r uint32, w width) {
	c.SetFlag(FlagCF, r > w.mask)
	c.SetFlag(FlagOF, (d^r)&(s^r)&w.sign != 0)
	c.SetFlag(FlagAF, (d^s^r)&0x10 != 0)
	c.setSZP(r, w)
}

// Flags after r = d - s (- borrow).
func (c *CPU) subFlags(d, s, borrow, r uint32, w width) {
	c.SetFlag(FlagCF, d < s+borrow)
	c.SetFlag(FlagOF, (d^s)&(d^r)&w.sign != 0)
	c.SetFlag(FlagAF, (d^s^r)&0x10 != 0)
	c.setSZP(r, w)
}

// Logical results clear CF, OF and AF.
func (c *CPU) logicFlags(r uint32, w width) {
	c.SetFlag(FlagCF, false)
	c.SetFlag(FlagOF, false)
	c.SetFlag(FlagAF, false)
	c.setSZP(r, w)
}

// Resolve both operands, in instruction stream order, and read them.
func (c *CPU) operands(x *DecodeContext, dst, src Field) (Addr, uint32, uint32, error) {
	da, err := c.address(x, dst)
	if err != nil {
		return da, 0, 0, err
	}
	sa, err := c.address(x, src)
	if err != nil {
		return da, 0, 0, err
	}
	d, err := c.read(dst, da)
	if err != nil {
		return da, 0, 0, err
	}
	s, err := c.read(src, sa)
	if err != nil {
		return da, 0, 0, err
	}
	return da, d, s, nil
}

// Resolve and read a single operand.
func (c *CPU) operand(x *DecodeContext, f Field) (Addr, uint32, error) {
	a, err := c.address(x, f)
	if err != nil {
		return a, 0, err
	}
	v, err := c.read(f, a)
	return a, v, err
}

func (c *CPU) carry() uint32 {
	if c.Flag(FlagCF) {
		return 1
	}
	return 0
}

func (c *CPU) add(x *DecodeContext, dst, src Field, withCarry bool) error {
	da, d, s, err := c.operands(x, dst, src)
	if err != nil {
		return err
	}
	w := c.width()
	cin := uint32(0)
	if withCarry {
		cin = c.carry()
	}
	r := d + s + cin
	c.addFlags(d, s, r, w)
	return c.write(dst, da, r&w.mask)
}

func (c *CPU) sub(x *DecodeContext, dst, src Field, withBorrow, store bool) error {
	da, d, s, err := c.operands(x, dst, src)
	if err != nil {
		return err
	}
	w := c.width()
	bin := uint32(0)
	if withBorrow {
		bin = c.carry()
	}
	r := d - s - bin
	c.subFlags(d, s, bin, r, w)
	if !store {
		return nil
	}
	return c.write(dst, da, r&w.mask)
}

func opAdd(c *CPU, x *DecodeContext, dst, src Field) error {
	return c.add(x, dst, src, false)
}

func opAdc(c *CPU, x *DecodeContext, dst, src Field) error {
	return c.add(x, dst, src, true)
}

func opSub(c *CPU, x *DecodeContext, dst, src Field) error {
	return c.sub(x, dst, src, false, true)
}

func opSbb(c *CPU, x *DecodeContext, dst, src Field) error {
	return c.sub(x, dst, src, true, true)
}

func opCmp(c *CPU, x *DecodeContext, dst, src Field) error {
	return c.sub(x, dst, src, false, false)
}

// INC and DEC leave CF alone.
func opInc(c *CPU, x *DecodeContext, dst, src Field) error {
	a, d, err := c.operand(x, dst)
	if err != nil {
		return err
	}
	w := c.width()
	cf := c.Flag(FlagCF)
	r := d + 1
	c.addFlags(d, 1, r, w)
	c.SetFlag(FlagCF, cf)
	return c.write(dst, a, r&w.mask)
}

func opDec(c *CPU, x *DecodeContext, dst, src Field) error {
	a, d, err := c.operand(x, dst)
	if err != nil {
		return err
	}
	w := c.width()
	cf := c.Flag(FlagCF)
	r := d - 1
	c.subFlags(d, 1, 0, r, w)
	c.SetFlag(FlagCF, cf)
	return c.write(dst, a, r&w.mask)
}

// NEG is 0 - operand. The most negative value stays put with OF and CF
// set, zero stays zero with CF clear; both fall out of the subtraction
// flags.
func opNeg(c *CPU, x *DecodeContext, dst, src Field) error {
	a, d, err := c.operand(x, dst)
	if err != nil {
		return err
	}
	w := c.width()
	r := 0 - d
	c.subFlags(0, d, 0, r, w)
	return c.write(dst, a, r&w.mask)
}

func opNot(c *CPU, x *DecodeContext, dst, src Field) error {
	a, d, err := c.operand(x, dst)
	if err != nil {
		return err
	}
	return c.write(dst, a, ^d&c.width().mask)
}

func (c *CPU) logic(x *DecodeContext, dst, src Field, f func(d, s uint32) uint32, store bool) error {
	da, d, s, err := c.operands(x, dst, src)
	if err != nil {
		return err
	}
	w := c.width()
	r := f(d, s) & w.mask
	c.logicFlags(r, w)
	if !store {
		return nil
	}
	return c.write(dst, da, r)
}

func opAnd(c *CPU, x *DecodeContext, dst, src Field) error {
	return c.logic(x, dst, src, func(d, s uint32) uint32 { return d & s }, true)
}

func opOr(c *CPU, x *DecodeContext, dst, src Field) error {
	return c.logic(x, dst, src, func(d, s uint32) uint32 { return d | s }, true)
}

func opXor(c *CPU, x *DecodeContext, dst, src Field) error {
	return c.logic(x, dst, src, func(d, s uint32) uint32 { return d ^ s }, true)
}

func opTest(c *CPU, x *DecodeContext, dst, src Field) error {
	return c.logic(x, dst, src, func(d, s uint32) uint32 { return d & s }, false)
}

// Shifts and rotates, selected by the ModRM reg field. The count is
// applied one bit at a time. OF is only defined for a count of one and is
// left alone otherwise.
func opShift(c *CPU, x *DecodeContext, dst, src Field) error {
	da, v, n, err := c.operands(x, dst, src)
	if err != nil {
		return err
	}
	if n == 0 {
		return nil
	}

	w := c.width()
	kind := c.op.Reg
	orig := v
	cf := c.Flag(FlagCF)
	for i := uint32(0); i < n; i++ {
		msb := v&w.sign != 0
		lsb := v&1 != 0
		switch kind {
		case 0: // ROL
			v = (v << 1) & w.mask
			if msb {
				v |= 1
			}
			cf = msb
		case 1: // ROR
			v >>= 1
			if lsb {
				v |= w.sign
			}
			cf = lsb
		case 2: // RCL
			v = (v << 1) & w.mask
			if cf {
				v |= 1
			}
			cf = msb
		case 3: // RCR
			v >>= 1
			if cf {
				v |= w.sign
			}
			cf = lsb
		case 4: // SHL
			v = (v << 1) & w.mask
			cf = msb
		case 5: // SHR
			v >>= 1
			cf = lsb
		case 7: // SAR
			v = v>>1 | v&w.sign
			cf = lsb
		}
	}

	c.SetFlag(FlagCF, cf)
	if n == 1 {
		top := v&w.sign != 0
		switch kind {
		case 0, 2, 4:
			c.SetFlag(FlagOF, top != cf)
		case 1, 3:
			c.SetFlag(FlagOF, top != (v&(w.sign>>1) != 0))
		case 5:
			c.SetFlag(FlagOF, orig&w.sign != 0)
		case 7:
			c.SetFlag(FlagOF, false)
		}
	}
	if kind >= 4 {
		c.setSZP(v, w)
	}
	return c.write(dst, da, v)
}
