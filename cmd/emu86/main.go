// Command emu86 loads one or more flat binary images into 8086 machines and
// runs them until they halt.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"

	"github.com/sirupsen/logrus"
	"golang.org/x/term"

	"github.com/vatine/emu8086/pkg/config"
	"github.com/vatine/emu8086/pkg/cpu"
	"github.com/vatine/emu8086/pkg/iobus"
	"github.com/vatine/emu8086/pkg/machine"
	"github.com/vatine/emu8086/pkg/shared"
)

type options struct {
	cfg      config.Config
	programs []string
	snapshot string
	restore  string
	mailbox  string
	jobs     int
}

func parseFlags(args []string, errOut io.Writer) (options, error) {
	var o options
	o.cfg = config.Default()

	fs := flag.NewFlagSet("emu86", flag.ContinueOnError)
	fs.SetOutput(errOut)
	fs.Usage = func() {
		fmt.Fprintf(errOut, "usage: emu86 [flags] program...\n")
		fs.PrintDefaults()
	}

	mem := fs.String("mem", "1M", "memory size, with an optional K or M suffix")
	load := fs.String("load", "0000:0100", "load address, segment:offset in hex")
	entry := fs.String("entry", "", "initial CS:IP, defaults to the load address")
	stack := fs.String("stack", "0000:FFFE", "initial SS:SP")
	fs.StringVar(&o.cfg.BIOS, "bios", "", "BIOS image, placed at F000:0100")
	fs.Uint64Var(&o.cfg.MaxCycles, "cycles", 0, "stop after this many cycles, 0 for no limit")
	fs.StringVar(&o.cfg.PortScript, "ports", "", "Lua script serving I/O ports")
	fs.StringVar(&o.cfg.LogLevel, "log-level", "info", "log level")
	fs.Func("seed", "initial port value, port=value in hex (repeatable)", func(s string) error {
		port, v, err := config.ParsePortSeed(s)
		if err != nil {
			return err
		}
		o.cfg.PortSeeds[port] = v
		return nil
	})
	fs.StringVar(&o.snapshot, "snapshot", "", "write a snapshot here when the run stops")
	fs.StringVar(&o.restore, "restore", "", "restore this snapshot before running")
	fs.StringVar(&o.mailbox, "mailbox", "", "port range, low-high in hex, shared by all programs")
	fs.IntVar(&o.jobs, "jobs", 0, "programs to run at once, 0 for all of them")

	if err := fs.Parse(args); err != nil {
		return o, err
	}
	o.programs = fs.Args()
	if len(o.programs) == 0 {
		fs.Usage()
		return o, errors.New("no program given")
	}

	var err error
	if o.cfg.MemorySize, err = config.ParseSize(*mem); err != nil {
		return o, err
	}
	if o.cfg.LoadSegment, o.cfg.LoadOffset, err = config.ParseSegOff(*load); err != nil {
		return o, err
	}
	if o.cfg.StackSegment, o.cfg.StackPointer, err = config.ParseSegOff(*stack); err != nil {
		return o, err
	}
	if *entry != "" {
		if o.cfg.EntrySegment, o.cfg.EntryOffset, err = config.ParseSegOff(*entry); err != nil {
			return o, err
		}
		o.cfg.EntrySet = true
	}
	if len(o.programs) > 1 && (o.snapshot != "" || o.restore != "") {
		return o, errors.New("snapshots only work with a single program")
	}
	return o, o.cfg.Validate()
}

func setupLogging(level string) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logrus.SetLevel(lvl)
	logrus.SetOutput(os.Stderr)
	if term.IsTerminal(int(os.Stderr.Fd())) {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}
}

var dumpOrder = []cpu.Reg{
	cpu.AX, cpu.BX, cpu.CX, cpu.DX,
	cpu.SI, cpu.DI, cpu.BP, cpu.SP,
	cpu.CS, cpu.DS, cpu.ES, cpu.SS,
	cpu.IP, cpu.FLAGS,
}

// dump writes the registers of a finished run. A terminal gets a table,
// anything else gets one key=value per line.
func dump(w io.Writer, r machine.Result, table bool) {
	if len(r.Registers) == 0 {
		return
	}
	if !table {
		fmt.Fprintf(w, "machine=%s reason=%s cycles=%d\n", r.Name, r.Reason, r.Cycles)
		for _, reg := range dumpOrder {
			fmt.Fprintf(w, "%s=%04x\n", strings.ToLower(reg.String()), r.Registers[reg])
		}
		return
	}

	fmt.Fprintf(w, "%s: %s after %d cycles\n", r.Name, r.Reason, r.Cycles)
	tw := tabwriter.NewWriter(w, 0, 4, 1, ' ', 0)
	for ix, reg := range dumpOrder {
		sep := "\t"
		if ix%4 == 3 || ix == len(dumpOrder)-1 {
			sep = "\n"
		}
		fmt.Fprintf(tw, "%s=%04X%s", reg, r.Registers[reg], sep)
	}
	tw.Flush()
}

func restoreSnapshot(m *machine.Machine, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	s, err := cpu.ReadSnapshot(f)
	if err != nil {
		return err
	}
	return m.CPU.Restore(s)
}

func writeSnapshot(m *machine.Machine, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := cpu.WriteSnapshot(f, m.CPU.Snapshot()); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func runOne(ctx context.Context, o options, out io.Writer, table bool) error {
	cfg := o.cfg
	cfg.Program = o.programs[0]
	m, err := machine.Load(cfg)
	if err != nil {
		return err
	}
	defer m.Close()

	if o.restore != "" {
		if err := restoreSnapshot(m, o.restore); err != nil {
			return err
		}
		logrus.WithFields(logrus.Fields{"snapshot": o.restore}).Info("restored")
	}

	r, runErr := m.Run(ctx, cfg.MaxCycles)
	dump(out, r, table)

	if o.snapshot != "" {
		if err := writeSnapshot(m, o.snapshot); err != nil {
			return err
		}
		logrus.WithFields(logrus.Fields{"snapshot": o.snapshot}).Info("snapshot written")
	}
	return runErr
}

func runMany(ctx context.Context, o options, out io.Writer, table bool) error {
	var cfgs []config.Config
	for _, p := range o.programs {
		cfg := o.cfg
		cfg.Program = p
		cfgs = append(cfgs, cfg)
	}

	var setup func(*machine.Machine) error
	if o.mailbox != "" {
		lo, hi, err := config.ParsePortRange(o.mailbox)
		if err != nil {
			return err
		}
		ports := shared.NewSharedPorts()
		defer ports.Close()
		setup = func(m *machine.Machine) error {
			if err := m.Ports.Register("mailbox", ports); err != nil {
				return err
			}
			return m.Ports.Attach("mailbox", iobus.PortRange{Low: lo, High: hi})
		}
	}

	results, err := machine.RunAll(ctx, cfgs, o.jobs, setup)
	for _, r := range results {
		dump(out, r, table)
	}
	return err
}

func main() {
	o, err := parseFlags(os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "emu86: %v\n", err)
		os.Exit(2)
	}
	setupLogging(o.cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	table := term.IsTerminal(int(os.Stdout.Fd()))
	if len(o.programs) == 1 {
		err = runOne(ctx, o, os.Stdout, table)
	} else {
		err = runMany(ctx, o, os.Stdout, table)
	}
	if err != nil {
		logrus.Errorf("emu86: %v", err)
		stop()
		os.Exit(1)
	}
}
