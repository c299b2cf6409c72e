// Package iobus connects a CPU's IN/OUT instructions to port devices.
//
// Devices are registered by name and then attached to one or more port
// ranges. Ports nobody claimed are answered by a null device.
package iobus

import (
	"errors"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"
)

// Width of a port transfer.
type Width uint8

const (
	Byte Width = 1
	Word Width = 2
)

func (w Width) Mask() uint16 {
	if w == Byte {
		return 0xff
	}
	return 0xffff
}

var (
	ErrUnknownDevice = errors.New("unknown device")
	ErrPortConflict  = errors.New("port range already claimed")
	ErrReadOnly      = errors.New("port is read-only")
	ErrWriteOnly     = errors.New("port is write-only")
)

// The general interface for anything hanging off the port bus.
type Device interface {
	// Read a byte or word from a port.
	ReadPort(port uint16, w Width) (uint16, error)
	// Write a byte or word to a port.
	WritePort(port uint16, w Width, v uint16) error
}

// Upper and lower bounds (inclusive) of a port range
type PortRange struct {
	Low, High uint16
}

func (r PortRange) overlaps(o PortRange) bool {
	return r.Low <= o.High && o.Low <= r.High
}

type attachment struct {
	Range PortRange
	Name  string
}

// Bus routes port accesses to devices. Not safe for concurrent use, a
// bus belongs to one machine.
type Bus struct {
	devices  map[string]Device
	attached []attachment
	null     Device
}

func New() *Bus {
	return &Bus{
		devices: map[string]Device{},
		null:    NullDevice{},
	}
}

// Register a device under a name. Names are unique.
func (b *Bus) Register(name string, d Device) error {
	if _, ok := b.devices[name]; ok {
		return fmt.Errorf("device %q already registered", name)
	}
	b.devices[name] = d
	return nil
}

// Device looks up a registered device.
func (b *Bus) Device(name string) (Device, error) {
	d, ok := b.devices[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDevice, name)
	}
	return d, nil
}

// Attach a registered device to a port range. Ranges may not overlap.
func (b *Bus) Attach(name string, r PortRange) error {
	if _, err := b.Device(name); err != nil {
		return err
	}
	if r.High < r.Low {
		r.Low, r.High = r.High, r.Low
	}
	for _, a := range b.attached {
		if a.Range.overlaps(r) {
			return fmt.Errorf("%w: 0x%04x-0x%04x held by %q", ErrPortConflict, a.Range.Low, a.Range.High, a.Name)
		}
	}
	b.attached = append(b.attached, attachment{Range: r, Name: name})
	sort.Slice(b.attached, func(i, j int) bool {
		return b.attached[i].Range.Low < b.attached[j].Range.Low
	})
	return nil
}

// Map attaches a device to a handful of single ports.
func (b *Bus) Map(name string, ports ...uint16) error {
	for _, p := range ports {
		if err := b.Attach(name, PortRange{p, p}); err != nil {
			return err
		}
	}
	return nil
}

// Find the device serving a port, and whether it was actually mapped.
func (b *Bus) find(port uint16) (Device, string, bool) {
	ix := sort.Search(len(b.attached), func(i int) bool {
		return b.attached[i].Range.High >= port
	})
	if ix < len(b.attached) && b.attached[ix].Range.Low <= port {
		a := b.attached[ix]
		return b.devices[a.Name], a.Name, true
	}
	return b.null, "null", false
}

// In performs a port read.
func (b *Bus) In(port uint16, w Width) (uint16, error) {
	d, name, mapped := b.find(port)
	fields := logrus.Fields{
		"port":   fmt.Sprintf("0x%04x", port),
		"width":  w,
		"device": name,
	}
	if !mapped {
		logrus.WithFields(fields).Warn("read from unmapped port")
	}
	v, err := d.ReadPort(port, w)
	if err != nil {
		return 0, fmt.Errorf("in 0x%04x: %w", port, err)
	}
	v &= w.Mask()
	fields["value"] = v
	logrus.WithFields(fields).Debug("port read")
	return v, nil
}

// Out performs a port write.
func (b *Bus) Out(port uint16, w Width, v uint16) error {
	d, name, mapped := b.find(port)
	fields := logrus.Fields{
		"port":   fmt.Sprintf("0x%04x", port),
		"width":  w,
		"device": name,
		"value":  v,
	}
	if !mapped {
		logrus.WithFields(fields).Warn("write to unmapped port")
	}
	if err := d.WritePort(port, w, v&w.Mask()); err != nil {
		return fmt.Errorf("out 0x%04x: %w", port, err)
	}
	logrus.WithFields(fields).Debug("port write")
	return nil
}
