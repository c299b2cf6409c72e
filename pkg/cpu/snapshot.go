package cpu

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
)

// OpcodeState is the raw decode of the last instruction. The
// instruction itself is looked up again on restore.
type OpcodeState struct {
	Opcode byte `json:"opcode"`
	ModRM  byte `json:"modrm"`
	Prefix byte `json:"prefix"`
}

// Snapshot is everything needed to resume a CPU and its memory.
type Snapshot struct {
	Cycles    uint64      `json:"cycles"`
	Halted    bool        `json:"halted"`
	Segment   Reg         `json:"segment"`
	Repeat    RepeatState `json:"repeat"`
	IPDelta   uint16      `json:"ipDelta"`
	Memory    []uint16    `json:"memory"`
	Registers []uint16    `json:"registers"`
	Opcode    OpcodeState `json:"opcode"`
}

// Take a snapshot. The snapshot shares nothing with the CPU.
func (c *CPU) Snapshot() *Snapshot {
	return &Snapshot{
		Cycles:    c.cycles,
		Halted:    c.halted,
		Segment:   c.segment,
		Repeat:    c.repeat,
		IPDelta:   c.ipDelta,
		Memory:    c.mem.Words(),
		Registers: c.Words(),
		Opcode: OpcodeState{
			Opcode: c.op.Opcode,
			ModRM:  c.op.ModRM,
			Prefix: c.op.Prefix,
		},
	}
}

// Restore state from a snapshot taken on a CPU with the same memory size.
func (c *CPU) Restore(s *Snapshot) error {
	if len(s.Registers) != int(numRegs) {
		return fmt.Errorf("%w: %d registers, expected %d", ErrSnapshot, len(s.Registers), numRegs)
	}
	if s.Segment >= numRegs || s.Repeat > RepNZ {
		return fmt.Errorf("%w: segment %d, repeat %d", ErrSnapshot, s.Segment, s.Repeat)
	}
	if err := c.mem.SetWords(s.Memory); err != nil {
		return fmt.Errorf("%w: %v", ErrSnapshot, err)
	}
	for ix, v := range s.Registers {
		c.SetReg16(Reg(ix), v)
	}
	c.cycles = s.Cycles
	c.halted = s.Halted
	c.segment = s.Segment
	c.repeat = s.Repeat
	c.ipDelta = s.IPDelta
	c.op = describe(s.Opcode.Opcode, s.Opcode.ModRM)
	c.op.Prefix = s.Opcode.Prefix
	return nil
}

// Write a snapshot as gzip compressed JSON.
func WriteSnapshot(w io.Writer, s *Snapshot) error {
	zw := gzip.NewWriter(w)
	if err := json.NewEncoder(zw).Encode(s); err != nil {
		zw.Close()
		return err
	}
	return zw.Close()
}

func ReadSnapshot(r io.Reader) (*Snapshot, error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSnapshot, err)
	}
	defer zr.Close()

	var s Snapshot
	if err := json.NewDecoder(zr).Decode(&s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSnapshot, err)
	}
	return &s, nil
}
