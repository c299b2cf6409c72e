// Package machine puts memory, a port bus and a CPU together and drives
// the CPU one cycle at a time.
package machine

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/vatine/emu8086/pkg/config"
	"github.com/vatine/emu8086/pkg/cpu"
	"github.com/vatine/emu8086/pkg/iobus"
	"github.com/vatine/emu8086/pkg/memory"
)

// Why a run stopped.
const (
	StopHalted    = "halted"
	StopBudget    = "budget"
	StopCancelled = "cancelled"
	StopError     = "error"
)

// How often Run looks at its context.
const checkEvery = 256

type Machine struct {
	Name   string
	CPU    *cpu.CPU
	Memory *memory.Memory
	Ports  *iobus.Bus
	// Serves the ports listed in the config's PortSeeds.
	Seeds *iobus.Latch

	script *iobus.ScriptDevice
}

// Result of a run.
type Result struct {
	Name      string
	Cycles    uint64
	Reason    string
	Registers []uint16
}

// New builds a machine around a program image and an optional BIOS.
func New(cfg config.Config, program, bios []byte) (*Machine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	mem, err := memory.New(cfg.MemorySize)
	if err != nil {
		return nil, err
	}

	if len(bios) > 0 {
		if err := mem.LoadBIOS(bios); err != nil {
			return nil, fmt.Errorf("bios: %w", err)
		}
	}
	if err := mem.LoadAt(cfg.LoadSegment, cfg.LoadOffset, program); err != nil {
		return nil, fmt.Errorf("program: %w", err)
	}

	m := &Machine{
		Name:   cfg.Program,
		Memory: mem,
		Ports:  iobus.New(),
		Seeds:  iobus.NewLatch(iobus.ReadWrite, cfg.PortSeeds),
	}
	if len(cfg.PortSeeds) > 0 {
		ports := make([]uint16, 0, len(cfg.PortSeeds))
		for port := range cfg.PortSeeds {
			ports = append(ports, port)
		}
		if err := m.Attach("seeds", m.Seeds, ports...); err != nil {
			return nil, err
		}
	}
	if cfg.PortScript != "" {
		s, err := iobus.LoadScriptDevice("script", cfg.PortScript)
		if err != nil {
			return nil, err
		}
		m.script = s
		if err := m.Attach("script", s, s.Ports()...); err != nil {
			s.Close()
			return nil, err
		}
	}

	m.CPU = cpu.New(mem, m.Ports)
	cs, ip := cfg.Entry()
	m.CPU.SetReg16(cpu.CS, cs)
	m.CPU.SetReg16(cpu.IP, ip)
	m.CPU.SetReg16(cpu.DS, cfg.LoadSegment)
	m.CPU.SetReg16(cpu.ES, cfg.LoadSegment)
	m.CPU.SetReg16(cpu.SS, cfg.StackSegment)
	m.CPU.SetReg16(cpu.SP, cfg.StackPointer)

	fields := logrus.Fields{
		"program": cfg.Program,
		"size":    len(program),
		"load":    fmt.Sprintf("%04X:%04X", cfg.LoadSegment, cfg.LoadOffset),
		"entry":   fmt.Sprintf("%04X:%04X", cs, ip),
		"memory":  cfg.MemorySize,
	}
	logrus.WithFields(fields).Info("machine loaded")
	return m, nil
}

// Load reads the program and BIOS named in cfg from disk.
func Load(cfg config.Config) (*Machine, error) {
	program, err := os.ReadFile(cfg.Program)
	if err != nil {
		return nil, err
	}
	var bios []byte
	if cfg.BIOS != "" {
		if bios, err = os.ReadFile(cfg.BIOS); err != nil {
			return nil, err
		}
	}
	return New(cfg, program, bios)
}

// Attach registers a device and maps it onto the given ports.
func (m *Machine) Attach(name string, d iobus.Device, ports ...uint16) error {
	if err := m.Ports.Register(name, d); err != nil {
		return err
	}
	return m.Ports.Map(name, ports...)
}

func (m *Machine) Close() {
	if m.script != nil {
		m.script.Close()
	}
}

func (m *Machine) result(n uint64, reason string) Result {
	return Result{
		Name:      m.Name,
		Cycles:    n,
		Reason:    reason,
		Registers: m.CPU.Words(),
	}
}

// Run cycles the CPU until it halts, budget cycles have run (0 is no
// limit), ctx is done, or a cycle fails.
func (m *Machine) Run(ctx context.Context, budget uint64) (Result, error) {
	var n uint64
	reason := StopBudget
	for budget == 0 || n < budget {
		if n%checkEvery == 0 && ctx.Err() != nil {
			reason = StopCancelled
			break
		}
		if err := m.CPU.Cycle(); err != nil {
			if errors.Is(err, cpu.ErrHalted) {
				reason = StopHalted
				break
			}
			logrus.WithFields(logrus.Fields{
				"machine": m.Name,
				"cycle":   m.CPU.Cycles(),
			}).Errorf("run stopped: %v", err)
			return m.result(n, StopError), err
		}
		n++
		if m.CPU.Halted() {
			reason = StopHalted
			break
		}
	}

	fields := logrus.Fields{
		"machine": m.Name,
		"cycles":  n,
		"reason":  reason,
	}
	logrus.WithFields(fields).Info("run finished")
	if reason == StopCancelled {
		return m.result(n, reason), ctx.Err()
	}
	return m.result(n, reason), nil
}

// RunAll runs one machine per config, at most limit at a time (limit <= 0
// means no limit). Each machine is built by Load and then handed to setup,
// if given, before it runs. The first failure cancels the rest.
func RunAll(ctx context.Context, cfgs []config.Config, limit int, setup func(*Machine) error) ([]Result, error) {
	results := make([]Result, len(cfgs))
	g, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}

	for ix, cfg := range cfgs {
		ix, cfg := ix, cfg
		g.Go(func() error {
			m, err := Load(cfg)
			if err != nil {
				return fmt.Errorf("%s: %w", cfg.Program, err)
			}
			defer m.Close()
			if setup != nil {
				if err := setup(m); err != nil {
					return fmt.Errorf("%s: %w", cfg.Program, err)
				}
			}
			r, err := m.Run(ctx, cfg.MaxCycles)
			results[ix] = r
			if err != nil {
				return fmt.Errorf("%s: %w", cfg.Program, err)
			}
			return nil
		})
	}

	err := g.Wait()
	return results, err
}
