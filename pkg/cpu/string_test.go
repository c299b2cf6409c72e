package cpu

import (
	"testing"
)

func TestStos(t *testing.T) {
	cases := []struct {
		opcode   byte
		df       bool
		di       uint16
		expected uint16
	}{
		{0xaa, false, 0x0100, 0x0101},
		{0xaa, true, 0x0100, 0x00ff},
		{0xab, false, 0x0100, 0x0102},
		{0xab, true, 0x0100, 0x00fe},
	}

	for ix, tc := range cases {
		c := newTestCPU(t, tc.opcode)
		c.SetReg16(ES, 0x0200)
		c.SetReg16(DI, tc.di)
		c.SetReg16(AX, 0xbeef)
		c.SetFlag(FlagDF, tc.df)
		run(t, c, 1)

		if c.Reg16(DI) != tc.expected {
			t.Errorf("Case #%d, DI is 0x%04x, expected 0x%04x", ix, c.Reg16(DI), tc.expected)
		}
		if tc.opcode == 0xaa {
			v, _ := c.mem.Read8(0x2100)
			if v != 0xef {
				t.Errorf("Case #%d, stored 0x%02x, expected 0xef", ix, v)
			}
			hi, _ := c.mem.Read8(0x2101)
			if hi != 0 {
				t.Errorf("Case #%d, STOSB touched the next byte", ix)
			}
		} else {
			v, _ := c.mem.Read16(0x2100)
			if v != 0xbeef {
				t.Errorf("Case #%d, stored 0x%04x, expected 0xbeef", ix, v)
			}
		}
	}
}

func TestLods(t *testing.T) {
	// LODSW / ES: LODSB
	c := newTestCPU(t, 0xad, 0x26, 0xac)
	c.SetReg16(DS, 0x0100)
	c.SetReg16(ES, 0x0200)
	c.SetReg16(SI, 0x0010)
	c.mem.Write16(0x1010, 0x1234)
	c.mem.Write8(0x2012, 0x77)

	run(t, c, 1)
	if c.Reg16(AX) != 0x1234 || c.Reg16(SI) != 0x0012 {
		t.Errorf("LODSW gave AX=0x%04x SI=0x%04x", c.Reg16(AX), c.Reg16(SI))
	}
	run(t, c, 1)
	if c.Reg8(AL) != 0x77 || c.Reg16(SI) != 0x0013 {
		t.Errorf("ES: LODSB gave AL=0x%02x SI=0x%04x", c.Reg8(AL), c.Reg16(SI))
	}
}

func TestRepMovs(t *testing.T) {
	// REP MOVSB / HLT
	c := newTestCPU(t, 0xf3, 0xa4, 0xf4)
	c.SetReg16(DS, 0x0100)
	c.SetReg16(ES, 0x0200)
	c.SetReg16(SI, 0x0000)
	c.SetReg16(DI, 0x0000)
	c.SetReg16(CX, 3)
	c.mem.Load(0x1000, []byte{1, 2, 3, 4})

	run(t, c, 1)
	if c.Reg16(IP) != 0 || c.Reg16(CX) != 2 {
		t.Errorf("after one iteration IP=%d CX=%d, expected 0 and 2", c.Reg16(IP), c.Reg16(CX))
	}
	if s := c.Snapshot(); s.Repeat != Rep {
		t.Errorf("repeat state is %s, expected rep", s.Repeat)
	}
	run(t, c, 2)
	if c.Reg16(IP) != 2 || c.Reg16(CX) != 0 {
		t.Errorf("after the last iteration IP=%d CX=%d, expected 2 and 0", c.Reg16(IP), c.Reg16(CX))
	}
	if s := c.Snapshot(); s.Repeat != RepNone {
		t.Errorf("repeat state is %s, expected none", s.Repeat)
	}
	for ix, expected := range []byte{1, 2, 3, 0} {
		v, _ := c.mem.Read8(0x2000 + uint32(ix))
		if v != expected {
			t.Errorf("byte %d is %d, expected %d", ix, v, expected)
		}
	}
	if c.Reg16(SI) != 3 || c.Reg16(DI) != 3 {
		t.Errorf("SI=%d DI=%d, expected 3 and 3", c.Reg16(SI), c.Reg16(DI))
	}
}

func TestRepZeroCount(t *testing.T) {
	// REP STOSW with CX=0 does nothing
	c := newTestCPU(t, 0xf3, 0xab)
	c.SetReg16(ES, 0x0100)
	c.SetReg16(AX, 0xffff)
	run(t, c, 1)

	if c.Reg16(IP) != 2 || c.Reg16(DI) != 0 {
		t.Errorf("IP=%d DI=%d, expected 2 and 0", c.Reg16(IP), c.Reg16(DI))
	}
	v, _ := c.mem.Read16(0x1000)
	if v != 0 {
		t.Errorf("memory written: 0x%04x", v)
	}
}

func TestRepCompare(t *testing.T) {
	cases := []struct {
		code    []byte
		repeat  RepeatState
		cycles  int
		cx      uint16
		zf      bool
		comment string
	}{
		{[]byte{0xf3, 0xa6}, RepZ, 3, 2, false, "REPZ CMPSB stops at the first difference"},
		{[]byte{0xf2, 0xa6}, RepNZ, 1, 4, true, "REPNZ CMPSB stops at the first match"},
		{[]byte{0x26, 0xf3, 0xa6}, RepZ, 3, 2, false, "segment prefix before REPZ"},
	}

	for ix, tc := range cases {
		c := newTestCPU(t, tc.code...)
		c.SetReg16(DS, 0x0100)
		c.SetReg16(ES, 0x0100)
		c.SetReg16(DI, 0x0010)
		c.SetReg16(CX, 5)
		c.mem.Load(0x1000, []byte{'a', 'b', 'c', 'd', 'e'})
		c.mem.Load(0x1010, []byte{'a', 'b', 'x', 'd', 'e'})

		if err := c.Cycle(); err != nil {
			t.Fatalf("Case #%d, unexpected error %v", ix, err)
		}
		if c.Snapshot().Repeat != tc.repeat && tc.cycles > 1 {
			t.Errorf("Case #%d (%s), repeat state %s, expected %s", ix, tc.comment, c.Snapshot().Repeat, tc.repeat)
		}
		run(t, c, tc.cycles-1)

		if c.Reg16(CX) != tc.cx || c.Flag(FlagZF) != tc.zf {
			t.Errorf("Case #%d (%s), CX=%d ZF=%v, expected %d %v", ix, tc.comment, c.Reg16(CX), c.Flag(FlagZF), tc.cx, tc.zf)
		}
		if c.Reg16(IP) != uint16(len(tc.code)) {
			t.Errorf("Case #%d (%s), IP=%d, expected %d", ix, tc.comment, c.Reg16(IP), len(tc.code))
		}
	}
}

func TestRepScas(t *testing.T) {
	// REPNZ SCASB looking for 'c'
	c := newTestCPU(t, 0xf2, 0xae)
	c.SetReg16(ES, 0x0100)
	c.SetReg16(CX, 0x10)
	c.SetReg8(AL, 'c')
	c.mem.Load(0x1000, []byte("abcdef"))

	for n := 0; c.Reg16(IP) == 0; n++ {
		if n > 0x10 {
			t.Fatalf("scan did not terminate")
		}
		run(t, c, 1)
	}
	if c.Reg16(DI) != 3 || !c.Flag(FlagZF) || c.Reg16(CX) != 0x0d {
		t.Errorf("DI=%d ZF=%v CX=%d", c.Reg16(DI), c.Flag(FlagZF), c.Reg16(CX))
	}
}
