package cpu

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/vatine/emu8086/pkg/iobus"
	"github.com/vatine/emu8086/pkg/memory"
)

// A CPU over a full 1M memory, with code loaded at 0000:0000.
func newTestCPU(t *testing.T, code ...byte) *CPU {
	t.Helper()
	m, err := memory.New(memory.MaxSize)
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if err := m.Load(0, code); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	return New(m, nil)
}

func run(t *testing.T, c *CPU, n int) {
	t.Helper()
	for ix := 0; ix < n; ix++ {
		if err := c.Cycle(); err != nil {
			t.Fatalf("cycle %d: unexpected error %v", ix, err)
		}
	}
}

func TestEndToEnd(t *testing.T) {
	// IN AX, 21h / OR AX, 40h / OUT 21h, AX / HLT
	c := newTestCPU(t, 0xe5, 0x21, 0x83, 0xc8, 0x40, 0xe7, 0x21, 0xf4)
	bus := iobus.New()
	pic := iobus.NewLatch(iobus.ReadWrite, map[uint16]uint16{0x21: 0x00})
	bus.Register("pic", pic)
	bus.Map("pic", 0x21)
	c.ports = bus

	run(t, c, 4)

	if pic.Value(0x21) != 0x0040 {
		t.Errorf("port 0x21 is 0x%04x, expected 0x0040", pic.Value(0x21))
	}
	if !c.Halted() {
		t.Errorf("expected the CPU to be halted")
	}
	if c.Cycles() != 4 {
		t.Errorf("saw %d cycles, expected 4", c.Cycles())
	}
	if ip := c.Reg16(IP); ip != 8 {
		t.Errorf("IP is 0x%04x, expected 0x0008", ip)
	}

	if err := c.Cycle(); !errors.Is(err, ErrHalted) {
		t.Errorf("cycle on a halted CPU, saw %v", err)
	}
	if c.Cycles() != 4 {
		t.Errorf("halted cycle was counted")
	}
}

func TestPrefixTransparency(t *testing.T) {
	cases := []struct {
		code []byte
		ip   uint16
	}{
		{[]byte{0x05, 0x01, 0x00}, 3},
		{[]byte{0x3e, 0x05, 0x01, 0x00}, 4},
		{[]byte{0x2e, 0x05, 0x01, 0x00}, 4},
		{[]byte{0x26, 0x36, 0x05, 0x01, 0x00}, 5},
		{[]byte{0xf3, 0x05, 0x01, 0x00}, 4},
	}

	for ix, tc := range cases {
		c := newTestCPU(t, tc.code...)
		c.SetReg16(AX, 0x1234)
		run(t, c, 1)
		if c.Reg16(AX) != 0x1235 {
			t.Errorf("Case #%d, AX is 0x%04x, expected 0x1235", ix, c.Reg16(AX))
		}
		if c.Reg16(IP) != tc.ip {
			t.Errorf("Case #%d, IP is %d, expected %d", ix, c.Reg16(IP), tc.ip)
		}
	}
}

func TestSegmentOverride(t *testing.T) {
	// MOV AL, ES:[BX] / MOV AL, [BX]
	c := newTestCPU(t, 0x26, 0x8a, 0x07, 0x8a, 0x07)
	c.SetReg16(ES, 0x1000)
	c.SetReg16(DS, 0x2000)
	c.SetReg16(BX, 0x0010)
	c.mem.Write8(0x10010, 0xaa)
	c.mem.Write8(0x20010, 0xbb)

	run(t, c, 1)
	if c.Reg8(AL) != 0xaa {
		t.Errorf("with ES override AL is 0x%02x, expected 0xaa", c.Reg8(AL))
	}
	if c.Opcode().Prefix != 0x26 {
		t.Errorf("prefix recorded as 0x%02x, expected 0x26", c.Opcode().Prefix)
	}
	run(t, c, 1)
	if c.Reg8(AL) != 0xbb {
		t.Errorf("without override AL is 0x%02x, expected 0xbb", c.Reg8(AL))
	}
}

func TestNotImplemented(t *testing.T) {
	cases := []struct {
		code     []byte
		mnemonic string
	}{
		{[]byte{0x27}, "DAA"},
		{[]byte{0x2f}, "DAS"},
		{[]byte{0x37}, "AAA"},
		{[]byte{0x3f}, "AAS"},
		{[]byte{0x98}, "CBW"},
		{[]byte{0x99}, "CWD"},
		{[]byte{0xd4, 0x0a}, "AAM"},
		{[]byte{0xd5, 0x0a}, "AAD"},
		{[]byte{0xd7}, "XLAT"},
		{[]byte{0xf6, 0xe3}, "MUL"},
		{[]byte{0xf7, 0xeb}, "IMUL"},
		{[]byte{0xf6, 0xf3}, "DIV"},
		{[]byte{0xf7, 0xfb}, "IDIV"},
		{[]byte{0xd8, 0xc0}, "ESC"},
		{[]byte{0x0f}, ""},
		{[]byte{0x60}, ""},
		{[]byte{0xfe, 0xd0}, ""},
		{[]byte{0xd0, 0xf0}, ""},
	}

	for ix, tc := range cases {
		c := newTestCPU(t, tc.code...)
		err := c.Cycle()
		if !errors.Is(err, ErrNotImplemented) {
			t.Errorf("Case #%d, saw %v, expected ErrNotImplemented", ix, err)
			continue
		}
		var nie *NotImplementedError
		if !errors.As(err, &nie) {
			t.Errorf("Case #%d, expected a *NotImplementedError", ix)
			continue
		}
		if nie.Mnemonic != tc.mnemonic || nie.Opcode != tc.code[0] {
			t.Errorf("Case #%d, saw %02X %q, expected %02X %q", ix, nie.Opcode, nie.Mnemonic, tc.code[0], tc.mnemonic)
		}
		if c.Cycles() != 0 {
			t.Errorf("Case #%d, failed cycle was counted", ix)
		}
	}
}

func TestInterruptWakesHalted(t *testing.T) {
	c := newTestCPU(t, 0xf4)
	c.mem.Write16(0x08*4, 0x0200)
	c.mem.Write16(0x08*4+2, 0x0000)
	c.mem.Write8(0x0200, 0xcf) // IRET
	c.SetReg16(SP, 0x1000)

	run(t, c, 1)
	if !c.Halted() {
		t.Fatalf("expected the CPU to be halted")
	}
	if err := c.Interrupt(8); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if c.Halted() || c.Reg16(IP) != 0x0200 {
		t.Errorf("after interrupt halted=%v IP=0x%04x", c.Halted(), c.Reg16(IP))
	}
	run(t, c, 1)
	if c.Reg16(IP) != 0x0001 || c.Reg16(SP) != 0x1000 {
		t.Errorf("after IRET IP=0x%04x SP=0x%04x", c.Reg16(IP), c.Reg16(SP))
	}
}

func TestFetchOutOfRange(t *testing.T) {
	m, _ := memory.New(memory.MinSize)
	c := New(m, nil)
	c.SetReg16(IP, memory.MinSize)

	if err := c.Cycle(); !errors.Is(err, memory.ErrAddress) {
		t.Errorf("saw %v, expected memory.ErrAddress", err)
	}
}

func TestPortErrors(t *testing.T) {
	// OUT 43h, AL
	c := newTestCPU(t, 0xe6, 0x43)
	bus := iobus.New()
	bus.Register("pit", iobus.NewLatch(iobus.ReadOnly, nil))
	bus.Map("pit", 0x43)
	c.ports = bus

	if err := c.Cycle(); !errors.Is(err, iobus.ErrReadOnly) {
		t.Errorf("saw %v, expected iobus.ErrReadOnly", err)
	}
}

func TestPrefixOnlySegment(t *testing.T) {
	for ix, p := range []byte{0x2e, 0xf3, 0x26} {
		c := newTestCPU(t, bytes.Repeat([]byte{p}, 0x10000)...)
		c.SetReg16(IP, 0x1234)

		done := make(chan error, 1)
		go func() { done <- c.Cycle() }()
		select {
		case err := <-done:
			if !errors.Is(err, ErrNoInstruction) {
				t.Errorf("Case #%d, saw %v, expected ErrNoInstruction", ix, err)
			}
		case <-time.After(3 * time.Second):
			t.Fatalf("Case #%d, Cycle did not return on a segment of prefixes", ix)
		}
		if c.Reg16(IP) != 0x1234 || c.Cycles() != 0 {
			t.Errorf("Case #%d, IP=0x%04x cycles=%d", ix, c.Reg16(IP), c.Cycles())
		}
	}
}

func TestRepeatClassAfterPrefixes(t *testing.T) {
	// REPNZ / CS: / SCASB, then REP / ES: / STOSB
	c := newTestCPU(t, 0xf2, 0x2e, 0xae, 0xf3, 0x26, 0xaa)
	c.SetReg16(ES, 0x0100)
	c.SetReg16(CX, 2)
	c.SetReg8(AL, 0x55)

	if err := c.Cycle(); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if c.repeat != RepNZ || c.Reg16(IP) != 0 {
		t.Errorf("SCASB saw repeat %s, IP %d", c.repeat, c.Reg16(IP))
	}

	c.SetReg16(IP, 3)
	c.SetReg16(CX, 2)
	if err := c.Cycle(); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if c.repeat != Rep || c.Reg16(IP) != 3 {
		t.Errorf("STOSB saw repeat %s, IP %d", c.repeat, c.Reg16(IP))
	}
}
