// Package memory provides the flat, byte addressed store an 8086 sees
// through its 20-bit physical address space.
//
// Words are little-endian. The store is owned by a single machine and is
// not safe for concurrent use.
package memory

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

const (
	// Smallest and largest memories we are willing to build.
	MinSize = 1024
	MaxSize = 1 << 20

	// Where a BIOS image lands.
	BIOSSegment = 0xF000
	BIOSOffset  = 0x0100
)

var (
	ErrSize    = errors.New("memory size out of range")
	ErrAddress = errors.New("address out of range")
)

// Seg2Abs turns a segment:offset pair into an absolute address. No
// wrapping is applied, so FFFF:FFFF yields 0x10FFEF.
func Seg2Abs(segment, offset uint16) uint32 {
	return uint32(segment)<<4 + uint32(offset)
}

// Memory is a byte array with a little-endian word view on top.
type Memory struct {
	data []byte
}

// Create a new zeroed memory of the given size in bytes.
func New(size int) (*Memory, error) {
	if size < MinSize || size > MaxSize {
		return nil, fmt.Errorf("%w: %d not in [%d, %d]", ErrSize, size, MinSize, MaxSize)
	}
	return &Memory{data: make([]byte, size)}, nil
}

// Size in bytes.
func (m *Memory) Len() int {
	return len(m.data)
}

func (m *Memory) check(addr uint32, n int) error {
	if uint64(addr)+uint64(n) > uint64(len(m.data)) {
		return fmt.Errorf("%w: 0x%05x (+%d) past 0x%05x", ErrAddress, addr, n, len(m.data))
	}
	return nil
}

func (m *Memory) Read8(addr uint32) (uint8, error) {
	if err := m.check(addr, 1); err != nil {
		return 0, err
	}
	return m.data[addr], nil
}

func (m *Memory) Write8(addr uint32, v uint8) error {
	if err := m.check(addr, 1); err != nil {
		return err
	}
	m.data[addr] = v
	return nil
}

// Read a little-endian word, low byte at addr.
func (m *Memory) Read16(addr uint32) (uint16, error) {
	if err := m.check(addr, 2); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(m.data[addr:]), nil
}

func (m *Memory) Write16(addr uint32, v uint16) error {
	if err := m.check(addr, 2); err != nil {
		return err
	}
	binary.LittleEndian.PutUint16(m.data[addr:], v)
	return nil
}

// Copy a blob into memory, starting at addr. The whole blob must fit.
func (m *Memory) Load(addr uint32, blob []byte) error {
	if err := m.check(addr, len(blob)); err != nil {
		return fmt.Errorf("load of %d bytes: %w", len(blob), err)
	}
	copy(m.data[addr:], blob)
	fields := logrus.Fields{
		"addr": fmt.Sprintf("0x%05x", addr),
		"size": len(blob),
	}
	logrus.WithFields(fields).Debug("memory loaded")
	return nil
}

// LoadAt is Load with a segment:offset destination.
func (m *Memory) LoadAt(segment, offset uint16, blob []byte) error {
	return m.Load(Seg2Abs(segment, offset), blob)
}

// LoadBIOS places a BIOS image at F000:0100.
func (m *Memory) LoadBIOS(image []byte) error {
	return m.LoadAt(BIOSSegment, BIOSOffset, image)
}

// Words returns a copy of memory as little-endian words. An odd trailing
// byte ends up in the low half of the last word.
func (m *Memory) Words() []uint16 {
	rv := make([]uint16, (len(m.data)+1)/2)
	for ix := range rv {
		lo := uint16(m.data[2*ix])
		hi := uint16(0)
		if 2*ix+1 < len(m.data) {
			hi = uint16(m.data[2*ix+1])
		}
		rv[ix] = hi<<8 | lo
	}
	return rv
}

// SetWords is the inverse of Words; the word count has to match.
func (m *Memory) SetWords(words []uint16) error {
	if len(words) != (len(m.data)+1)/2 {
		return fmt.Errorf("%w: %d words for %d bytes", ErrSize, len(words), len(m.data))
	}
	for ix, w := range words {
		m.data[2*ix] = uint8(w)
		if 2*ix+1 < len(m.data) {
			m.data[2*ix+1] = uint8(w >> 8)
		}
	}
	return nil
}
