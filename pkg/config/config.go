// Package config holds the machine configuration and its validation.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/vatine/emu8086/pkg/memory"
)

var (
	ErrMemorySize = errors.New("memory size out of range")
	ErrSyntax     = errors.New("syntax error")
)

// Config describes one machine.
type Config struct {
	// Memory size in bytes.
	MemorySize int
	// BIOS image, placed at F000:0100. Optional.
	BIOS string
	// Program image and where it goes.
	Program     string
	LoadSegment uint16
	LoadOffset  uint16
	// Initial CS:IP. Defaults to the load address.
	EntrySegment uint16
	EntryOffset  uint16
	EntrySet     bool
	// Initial SS:SP.
	StackSegment uint16
	StackPointer uint16
	// Stop after this many cycles, 0 for no limit.
	MaxCycles uint64
	LogLevel  string
	// Lua port device script. Optional.
	PortScript string
	// Initial values for ports served by the default latch.
	PortSeeds map[uint16]uint16
}

func Default() Config {
	return Config{
		MemorySize:   memory.MaxSize,
		LoadSegment:  0x0000,
		LoadOffset:   0x0100,
		StackSegment: 0x0000,
		StackPointer: 0xfffe,
		LogLevel:     "info",
		PortSeeds:    map[uint16]uint16{},
	}
}

// Entry returns the initial CS:IP.
func (c Config) Entry() (uint16, uint16) {
	if c.EntrySet {
		return c.EntrySegment, c.EntryOffset
	}
	return c.LoadSegment, c.LoadOffset
}

func (c Config) Validate() error {
	if c.MemorySize < memory.MinSize || c.MemorySize > memory.MaxSize {
		return fmt.Errorf("%w: %d not in [%d, %d]", ErrMemorySize, c.MemorySize, memory.MinSize, memory.MaxSize)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	if end := memory.Seg2Abs(c.LoadSegment, c.LoadOffset); end >= uint32(c.MemorySize) {
		return fmt.Errorf("load address 0x%05x outside a %d byte memory", end, c.MemorySize)
	}
	return nil
}

// ParseSize accepts a byte count in decimal or 0x-hex, optionally
// followed by K or M.
func ParseSize(s string) (int, error) {
	s = strings.TrimSpace(s)
	mult := 1
	switch {
	case strings.HasSuffix(s, "K"), strings.HasSuffix(s, "k"):
		mult = 1024
		s = s[:len(s)-1]
	case strings.HasSuffix(s, "M"), strings.HasSuffix(s, "m"):
		mult = 1024 * 1024
		s = s[:len(s)-1]
	}
	n, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: size %q", ErrSyntax, s)
	}
	return int(n) * mult, nil
}

func parseWord(s string) (uint16, error) {
	n, err := strconv.ParseUint(s, 16, 16)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a hex word", ErrSyntax, s)
	}
	return uint16(n), nil
}

// ParseSegOff parses "SSSS:OOOO", both halves in hex.
func ParseSegOff(s string) (uint16, uint16, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("%w: %q is not segment:offset", ErrSyntax, s)
	}
	seg, err := parseWord(parts[0])
	if err != nil {
		return 0, 0, err
	}
	off, err := parseWord(parts[1])
	if err != nil {
		return 0, 0, err
	}
	return seg, off, nil
}

// ParsePortSeed parses "port=value", both in hex.
func ParsePortSeed(s string) (uint16, uint16, error) {
	parts := strings.Split(strings.TrimSpace(s), "=")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("%w: %q is not port=value", ErrSyntax, s)
	}
	port, err := parseWord(parts[0])
	if err != nil {
		return 0, 0, err
	}
	v, err := parseWord(parts[1])
	if err != nil {
		return 0, 0, err
	}
	return port, v, nil
}

// ParsePortRange parses "low-high" in hex. A single port is a range of one.
func ParsePortRange(s string) (uint16, uint16, error) {
	low, high, found := strings.Cut(strings.TrimSpace(s), "-")
	lo, err := parseWord(low)
	if err != nil {
		return 0, 0, err
	}
	if !found {
		return lo, lo, nil
	}
	hi, err := parseWord(high)
	if err != nil {
		return 0, 0, err
	}
	if hi < lo {
		return 0, 0, fmt.Errorf("%w: port range %q runs backwards", ErrSyntax, s)
	}
	return lo, hi, nil
}
