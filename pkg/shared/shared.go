package shared

// A port device designed to be attached to multiple machines at the same
// time. All port state lives in one goroutine; machines talk to it over a
// channel, so each machine keeps its single-threaded core.

import (
	"github.com/sirupsen/logrus"

	"github.com/vatine/emu8086/pkg/iobus"
)

type op interface {
	execute(*sharedPortsBackend)
}

type SharedPorts struct {
	cmd chan op
}

type sharedPortsBackend struct {
	ports map[uint16]uint16
	cmd   chan op
}

type setPort struct {
	port  uint16
	width iobus.Width
	value uint16
	ret   chan uint16
}

type getPort struct {
	port  uint16
	width iobus.Width
	ret   chan uint16
}

func (c getPort) execute(b *sharedPortsBackend) {
	fields := logrus.Fields{
		"port": c.port,
		"op":   "get",
	}
	logrus.WithFields(fields).Debug("get value")
	c.ret <- b.ports[c.port] & c.width.Mask()
}

func (c setPort) execute(b *sharedPortsBackend) {
	fields := logrus.Fields{
		"port":  c.port,
		"value": c.value,
		"op":    "set",
	}
	logrus.WithFields(fields).Debug("set value")
	rv := b.ports[c.port]
	if c.width == iobus.Byte {
		b.ports[c.port] = rv&0xff00 | c.value&0xff
	} else {
		b.ports[c.port] = c.value
	}
	c.ret <- rv
}

func (b *sharedPortsBackend) run() {
	for cmd := range b.cmd {
		cmd.execute(b)
	}
}

// Start the backing goroutine. It runs until Close is called.
func NewSharedPorts() SharedPorts {
	c := make(chan op)
	backend := sharedPortsBackend{cmd: c, ports: map[uint16]uint16{}}
	go backend.run()

	return SharedPorts{cmd: c}
}

func (s SharedPorts) ReadPort(port uint16, w iobus.Width) (uint16, error) {
	c := make(chan uint16)
	s.cmd <- getPort{port: port, width: w, ret: c}
	rv := <-c
	close(c)
	return rv, nil
}

func (s SharedPorts) WritePort(port uint16, w iobus.Width, v uint16) error {
	c := make(chan uint16)
	s.cmd <- setPort{port: port, width: w, value: v, ret: c}
	<-c
	close(c)
	return nil
}

// Stop the backing goroutine. Using the device afterwards panics.
func (s SharedPorts) Close() {
	close(s.cmd)
}
