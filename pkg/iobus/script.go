package iobus

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
	lua "github.com/yuin/gopher-lua"
)

// ScriptDevice is a port device whose behaviour lives in a Lua script.
// The script defines
//
//	function read(port, width) ... return value end
//	function write(port, width, value) ... end
//
// and may set a global table `ports` listing the ports it wants. Either
// handler may be left out, the device then acts write-only or read-only.
// Scripts can call log(msg) to emit a log line. read must return an
// integer; negative values down to -32768 wrap as two's complement.
type ScriptDevice struct {
	name string
	L    *lua.LState
}

// Build a script device from Lua source.
func NewScriptDevice(name, source string) (*ScriptDevice, error) {
	L := lua.NewState()
	s := &ScriptDevice{name: name, L: L}
	L.SetGlobal("log", L.NewFunction(s.luaLog))
	if err := L.DoString(source); err != nil {
		L.Close()
		return nil, fmt.Errorf("script device %q: %w", name, err)
	}
	return s, nil
}

// Build a script device from a file on disk.
func LoadScriptDevice(name, path string) (*ScriptDevice, error) {
	L := lua.NewState()
	s := &ScriptDevice{name: name, L: L}
	L.SetGlobal("log", L.NewFunction(s.luaLog))
	if err := L.DoFile(path); err != nil {
		L.Close()
		return nil, fmt.Errorf("script device %q: %w", name, err)
	}
	return s, nil
}

func (s *ScriptDevice) luaLog(L *lua.LState) int {
	msg := L.CheckString(1)
	logrus.WithFields(logrus.Fields{"device": s.name}).Info(msg)
	return 0
}

// Ports returns the contents of the script's `ports` table, if any.
func (s *ScriptDevice) Ports() []uint16 {
	tbl, ok := s.L.GetGlobal("ports").(*lua.LTable)
	if !ok {
		return nil
	}
	var rv []uint16
	tbl.ForEach(func(_, v lua.LValue) {
		if n, ok := v.(lua.LNumber); ok {
			rv = append(rv, uint16(n))
		}
	})
	return rv
}

func (s *ScriptDevice) handler(name string) (lua.LValue, bool) {
	fn := s.L.GetGlobal(name)
	return fn, fn.Type() == lua.LTFunction
}

func (s *ScriptDevice) ReadPort(port uint16, w Width) (uint16, error) {
	fn, ok := s.handler("read")
	if !ok {
		return 0, ErrWriteOnly
	}
	err := s.L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, lua.LNumber(port), lua.LNumber(w))
	if err != nil {
		return 0, fmt.Errorf("script device %q: %w", s.name, err)
	}
	ret := s.L.Get(-1)
	s.L.Pop(1)
	n, ok := ret.(lua.LNumber)
	if !ok {
		return 0, fmt.Errorf("script device %q: read returned %s, not a number", s.name, ret.Type())
	}
	f := float64(n)
	if f != math.Trunc(f) || f < math.MinInt16 || f > math.MaxUint16 {
		return 0, fmt.Errorf("script device %q: read returned %v, not a port value", s.name, f)
	}
	return uint16(int64(f)) & w.Mask(), nil
}

func (s *ScriptDevice) WritePort(port uint16, w Width, v uint16) error {
	fn, ok := s.handler("write")
	if !ok {
		return ErrReadOnly
	}
	err := s.L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}, lua.LNumber(port), lua.LNumber(w), lua.LNumber(v))
	if err != nil {
		return fmt.Errorf("script device %q: %w", s.name, err)
	}
	return nil
}

// Close releases the Lua state.
func (s *ScriptDevice) Close() {
	s.L.Close()
}
