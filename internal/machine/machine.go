// Package machine assembles the emulated Apple //e: memory banks and
// soft-switches, the 65C02 core, the clock and timer table, the slot
// framework with its card drivers, the audio sink and the regulator
// that paces it all. The Machine is owned by the CPU goroutine; other
// threads reach it only through the regulator's command ring, the
// audio rings and the paddle byte stores.
package machine

import (
	"fmt"
	"log"

	"golang.org/x/sync/errgroup"

	"github.com/mii-emu/miigo/internal/audio"
	"github.com/mii-emu/miigo/internal/clock"
	"github.com/mii-emu/miigo/internal/cpu6502"
	"github.com/mii-emu/miigo/internal/membank"
	"github.com/mii-emu/miigo/internal/mockingboard"
	"github.com/mii-emu/miigo/internal/regulator"
	"github.com/mii-emu/miigo/internal/signal"
	"github.com/mii-emu/miigo/internal/slot"
	"github.com/mii-emu/miigo/internal/ssc"
	"github.com/mii-emu/miigo/internal/sscworker"
	"github.com/mii-emu/miigo/internal/vcd"
)

// CyclesPerFrame is one NTSC video field at PHI0 rate.
const CyclesPerFrame = 17030

// SlotSpec names a driver and its options for one slot.
type SlotSpec struct {
	Driver string
	Opts   map[string]string
}

// Options configures machine construction.
type Options struct {
	// ROM is the 12 KB $D000-$FFFF image. Nil installs a built-in
	// stub that parks the CPU in a monitor-style idle loop.
	ROM []byte
	// AudioOff runs without a host audio device.
	AudioOff bool
	// Trace enables the instruction trace ring from the start.
	Trace bool
	// VCDPath, when set, traces the interrupt lines to a VCD file.
	VCDPath string
	// FrameRate is the regulator pace; 0 means 60 Hz.
	FrameRate float64
	// Slots maps slot number to driver.
	Slots map[int]SlotSpec
	// JoystickPath is the host joystick device; empty disables it.
	JoystickPath string
	// Speed is the emulation speed in MHz; 0 means stock 1.023.
	Speed float64
}

// Machine is the whole emulated computer.
type Machine struct {
	bus   *membank.Bus
	clk   *clock.Clock
	cpu   *cpu6502.CPU
	snd   *audio.Sink
	table *slot.Table
	work  *sscworker.Worker
	reg   *regulator.Regulator
	pool  *signal.Pool
	trace *vcd.Sink

	ram *membank.Bank
	io  *membank.Bank
	lc  *languageCard

	speed float64

	// IRQ aggregator: one bit per registered line; the CPU's IRQ input
	// is the OR of them all.
	irqBits  uint64
	irqNames []string
	sigIRQ   *signal.Signal
	sigNMI   *signal.Signal

	sw       switches
	speaker  *speakerState
	frames   uint64
	joystick *regulator.Joystick
}

// New builds and wires the machine. The returned machine is stopped;
// post a Run command to its Regulator (tests drive it with RunCycles).
func New(opt Options) (*Machine, error) {
	m := &Machine{
		bus:   membank.NewBus(),
		clk:   clock.New(),
		pool:  signal.NewPool(),
		speed: opt.Speed,
	}
	if m.speed <= 0 {
		m.speed = float64(clock.PhiHz) / 1e6
	}

	sigs := m.pool.Init(0, []string{"IRQ", "NMI"})
	m.sigIRQ, m.sigNMI = sigs[0], sigs[1]
	m.sigIRQ.SetFlags(signal.FILTERED | signal.INIT)
	m.sigNMI.SetFlags(signal.FILTERED | signal.INIT)

	// Memory: main RAM, the soft-switch page, the language card over
	// $D000-$FFFF.
	m.ram = membank.NewBank("main", 0x0000, 0xC000)
	m.bus.MapBank(m.ram)
	m.io = membank.NewBank("io", 0xC000, 0x100)
	m.bus.MapBank(m.io)
	m.lc = newLanguageCard(m.bus, opt.ROM)
	m.installSwitches()
	m.bus.VaporByte = m.vaporByte

	m.cpu = cpu6502.New(m.bus)
	m.cpu.SetTrace(opt.Trace)

	// Audio before cards: the Mockingboard attaches a source at init.
	var drv audio.Driver
	if !opt.AudioOff {
		var err error
		drv, err = audio.NewOtoDriver(audio.SampleRate)
		if err != nil {
			log.Printf("audio: %v, running silent", err)
			drv = nil
		}
	}
	m.snd = audio.NewSink(drv)
	m.speaker = newSpeaker(m.snd)

	m.table = slot.NewTable(m, m.io)
	m.work = sscworker.New()
	registerDrivers(m.work)
	for n, spec := range opt.Slots {
		if err := m.table.Mount(n, spec.Driver, spec.Opts); err != nil {
			// Configuration errors skip the offending slot; startup
			// continues.
			log.Printf("slot %d: %v", n, err)
		}
	}

	// The frame timer advances the video frame counter and flushes
	// the speaker; it is the heartbeat RunFrame waits on.
	m.clk.Register(func(any) uint64 {
		m.frames++
		m.speaker.flushTo(m.clk.Cycles())
		return CyclesPerFrame
	}, nil, CyclesPerFrame, "frame")

	if opt.VCDPath != "" {
		m.trace = vcd.NewSink(m.pool, opt.VCDPath, 978) // ~978 ns per PHI0 cycle
		m.trace.AddSignal(m.sigIRQ, 1, "IRQ")
		m.trace.AddSignal(m.sigNMI, 1, "NMI")
		if err := m.trace.Start(); err != nil {
			log.Printf("vcd: %v", err)
			m.trace = nil
		}
	}

	if err := m.snd.Start(); err != nil {
		log.Printf("audio: %v", err)
	}
	if opt.AudioOff {
		m.snd.SetMuted(true)
	}

	if opt.JoystickPath != "" {
		js, err := regulator.OpenJoystick(opt.JoystickPath, m)
		if err != nil {
			log.Printf("joystick: %v", err)
		} else {
			m.joystick = js
		}
	}

	m.reg = regulator.New(m, opt.FrameRate)
	m.cpu.Reset()
	return m, nil
}

// registerDrivers fills the slot registry. disk2 and smartport are
// placeholders until the disk image layer lands; selecting one is a
// configuration error, not a crash.
func registerDrivers(w *sscworker.Worker) {
	mockingboard.Register()
	ssc.Register(w)
	registerROM1MB()
	for _, name := range []string{"disk2", "smartport"} {
		name := name
		slot.RegisterDriver(&slot.Driver{
			Name: name,
			Desc: name + " (not implemented)",
			Init: func(slot.Host, *slot.Slot, map[string]string) (slot.Card, error) {
				return nil, fmt.Errorf("driver %s not implemented", name)
			},
		})
	}
}

// Regulator returns the command surface for the UI thread.
func (m *Machine) Regulator() *regulator.Regulator { return m.reg }

// CPU exposes the core for the debugger and tests.
func (m *Machine) CPU() *cpu6502.CPU { return m.cpu }

// Slots exposes the slot table for out-of-band card commands.
func (m *Machine) Slots() *slot.Table { return m.table }

// Frames returns the video frame counter.
func (m *Machine) Frames() uint64 { return m.frames }

// slot.Host implementation.

func (m *Machine) Clock() *clock.Clock { return m.clk }
func (m *Machine) Bus() *membank.Bus   { return m.bus }
func (m *Machine) Audio() *audio.Sink  { return m.snd }
func (m *Machine) Speed() float64      { return m.speed }

type irqLine struct {
	m   *Machine
	bit uint64
}

func (l *irqLine) Raise() { l.m.setIRQBits(l.m.irqBits | l.bit) }
func (l *irqLine) Clear() { l.m.setIRQBits(l.m.irqBits &^ l.bit) }

// RegisterIRQ allocates one line in the aggregator.
func (m *Machine) RegisterIRQ(name string) slot.IRQ {
	bit := uint64(1) << len(m.irqNames)
	m.irqNames = append(m.irqNames, name)
	return &irqLine{m: m, bit: bit}
}

func (m *Machine) setIRQBits(bits uint64) {
	was := m.irqBits != 0
	m.irqBits = bits
	now := bits != 0
	if was != now {
		m.cpu.SetIRQ(now)
		if m.trace != nil {
			m.trace.SetCycle(m.cpu.TotalCycles)
		}
		v := uint32(0)
		if now {
			v = 1
		}
		m.sigIRQ.Raise(v)
	}
}

// regulator.Machine implementation.

// stepOnce executes one instruction and lets the timer table catch up,
// keeping CPU and peripherals in cycle lockstep.
func (m *Machine) stepOnce() {
	prev := m.cpu.TotalCycles
	m.cpu.Step()
	m.clk.Advance(m.cpu.TotalCycles - prev)
	m.clk.Run()
}

// RunFrame runs instructions until the frame counter advances.
func (m *Machine) RunFrame() {
	start := m.frames
	for m.frames == start {
		m.stepOnce()
	}
}

// StepInstruction executes exactly one instruction.
func (m *Machine) StepInstruction() { m.stepOnce() }

// RunCycles drives the machine for at least n cycles; test scaffolding
// and the debug console use it.
func (m *Machine) RunCycles(n uint64) {
	target := m.cpu.TotalCycles + n
	for m.cpu.TotalCycles < target {
		m.stepOnce()
	}
}

// Reset is a warm reset: CPU vector fetch, cards, switches.
func (m *Machine) Reset() {
	m.sw = switches{}
	m.lc.reset()
	m.table.Reset()
	m.cpu.Reset()
}

// Dispose tears the machine down in LIFO order: cards first (the last
// SSC leaving terminates the worker), then audio and traces.
func (m *Machine) Dispose() {
	if m.joystick != nil {
		m.joystick.Close()
		m.joystick = nil
	}
	m.table.Dispose()
	m.work.Terminate()
	m.snd.Close()
	if m.trace != nil {
		m.trace.Stop()
		m.trace = nil
	}
}

// PasteChar implements the regulator's keyboard feed: one character
// per frame, refused while the guest has not read the previous one.
func (m *Machine) PasteChar(ch byte) bool {
	if m.sw.keyLatch&0x80 != 0 {
		return false
	}
	if ch == '\n' {
		ch = '\r'
	}
	m.KeyDown(ch)
	return true
}

// KeyDown latches one keypress into the keyboard soft-switch.
func (m *Machine) KeyDown(ch byte) {
	m.sw.keyLatch = ch | 0x80
}

// SetPaddle implements regulator.PaddleSink; single aligned byte
// stores keep the CPU thread's reads tear-free.
func (m *Machine) SetPaddle(axis int, v byte) {
	if axis >= 0 && axis < len(m.sw.paddles) {
		m.sw.paddles[axis] = v
	}
}

// SetButton implements regulator.PaddleSink.
func (m *Machine) SetButton(button int, down bool) {
	if button >= 0 && button < len(m.sw.buttons) {
		m.sw.buttons[button] = down
	}
}

// Run drives the machine until the regulator terminates. Extra tasks
// (the debug console, UI pumps) run under the same group so one
// failure tears the whole lifecycle down together.
func (m *Machine) Run(extra ...func() error) error {
	var g errgroup.Group
	g.Go(func() error {
		m.reg.Loop()
		return nil
	})
	for _, fn := range extra {
		g.Go(fn)
	}
	return g.Wait()
}

// vaporByte approximates the floating video bus: the byte the video
// scanner would currently be fetching from the text page.
func (m *Machine) vaporByte() byte {
	return m.ram.Peek(0x0400 + uint16(m.clk.Cycles()&0x3ff))
}
