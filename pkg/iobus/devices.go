package iobus

// NullDevice reads as zero and swallows writes.
type NullDevice struct{}

func (NullDevice) ReadPort(uint16, Width) (uint16, error) { return 0, nil }

func (NullDevice) WritePort(uint16, Width, uint16) error { return nil }

// Access restricts what a Latch allows.
type Access uint8

const (
	ReadWrite Access = iota
	ReadOnly
	WriteOnly
)

// Latch remembers the last value written to each port and hands it back
// on reads. Seed it to make ports read something other than zero.
type Latch struct {
	access Access
	values map[uint16]uint16
	writes []uint16
}

func NewLatch(access Access, seed map[uint16]uint16) *Latch {
	l := &Latch{access: access, values: map[uint16]uint16{}}
	for p, v := range seed {
		l.values[p] = v
	}
	return l
}

func (l *Latch) ReadPort(port uint16, w Width) (uint16, error) {
	if l.access == WriteOnly {
		return 0, ErrWriteOnly
	}
	return l.values[port] & w.Mask(), nil
}

func (l *Latch) WritePort(port uint16, w Width, v uint16) error {
	if l.access == ReadOnly {
		return ErrReadOnly
	}
	if w == Byte {
		v = l.values[port]&0xff00 | v&0xff
	}
	l.values[port] = v
	l.writes = append(l.writes, port)
	return nil
}

// Value currently latched for a port.
func (l *Latch) Value(port uint16) uint16 {
	return l.values[port]
}

// Writes lists the ports written, oldest first.
func (l *Latch) Writes() []uint16 {
	return append([]uint16(nil), l.writes...)
}
