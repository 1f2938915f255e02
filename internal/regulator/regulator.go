// Package regulator paces the CPU thread: a frame timer wakes it at the
// configured rate (60 Hz by default), it drains the UI command ring,
// then runs, steps or idles the machine according to its mode. Paste
// text is metered out one character per frame so guest keyboard
// readers see a realistic cadence.
package regulator

import (
	"log"
	"sync/atomic"
	"time"

	"golang.design/x/clipboard"

	"github.com/mii-emu/miigo/internal/ring"
)

// Command is one UI request.
type Command uint8

const (
	CmdReset Command = iota
	CmdStop
	CmdStep
	CmdRun
	CmdPaste
	CmdTerminate
)

// Msg carries a command plus its payload: Count for CmdStep, Text for
// CmdPaste (empty Text pastes the host clipboard).
type Msg struct {
	Cmd   Command
	Count int
	Text  string
}

// Mode is the regulator's run state.
type Mode int32

const (
	ModeInit Mode = iota
	ModeRunning
	ModeStep
	ModeStopped
	ModeTerminate
)

// Machine is the surface the regulator drives; implemented by
// internal/machine.
type Machine interface {
	// RunFrame executes one frame's worth of cycles.
	RunFrame()
	// StepInstruction executes exactly one instruction.
	StepInstruction()
	Reset()
	Dispose()
	// PasteChar offers one character to the keyboard latch; false
	// means the guest has not consumed the previous one yet.
	PasteChar(ch byte) bool
}

const cmdDepth = 16

// Regulator is the frame-paced state machine. Post is the only method
// safe to call from other goroutines.
type Regulator struct {
	m    Machine
	cmds *ring.Ring[Msg]
	mode atomic.Int32

	frame time.Duration

	stepBudget int
	pending    []byte

	clipboardOK bool
}

// New builds a regulator running at frameHz.
func New(m Machine, frameHz float64) *Regulator {
	if frameHz <= 0 {
		frameHz = 60
	}
	r := &Regulator{
		m:     m,
		cmds:  ring.NewRing[Msg](cmdDepth),
		frame: time.Duration(float64(time.Second) / frameHz),
	}
	r.mode.Store(int32(ModeStopped))
	if err := clipboard.Init(); err == nil {
		r.clipboardOK = true
	}
	return r
}

// Mode returns the current run state.
func (r *Regulator) Mode() Mode { return Mode(r.mode.Load()) }

// Post enqueues a command from the UI thread. It reports false when
// the ring is full; the caller may retry next frame.
func (r *Regulator) Post(msg Msg) bool {
	return r.cmds.Write(msg)
}

// Loop runs until a Terminate command, then disposes the machine.
func (r *Regulator) Loop() {
	ticker := time.NewTicker(r.frame)
	defer ticker.Stop()
	for r.Mode() != ModeTerminate {
		<-ticker.C
		r.Tick()
	}
	r.m.Dispose()
}

// Tick is one frame wake: drain commands, deliver one paste character,
// then advance the machine per the mode. Split out from Loop so tests
// can drive frames without wall-clock time.
func (r *Regulator) Tick() {
	r.drainCommands()

	if len(r.pending) > 0 && r.Mode() == ModeRunning {
		if r.m.PasteChar(r.pending[0]) {
			r.pending = r.pending[1:]
		}
	}

	switch r.Mode() {
	case ModeRunning:
		r.m.RunFrame()
	case ModeStep:
		r.m.StepInstruction()
		r.stepBudget--
		if r.stepBudget <= 0 {
			r.mode.Store(int32(ModeStopped))
		}
	case ModeStopped, ModeInit:
		// skip to the next timer tick
	}
}

func (r *Regulator) drainCommands() {
	for {
		msg, ok := r.cmds.Read()
		if !ok {
			return
		}
		switch msg.Cmd {
		case CmdReset:
			r.m.Reset()
		case CmdStop:
			r.mode.Store(int32(ModeStopped))
		case CmdStep:
			n := msg.Count
			if n <= 0 {
				n = 1
			}
			r.stepBudget += n
			r.mode.Store(int32(ModeStep))
		case CmdRun:
			if r.stepBudget > 0 {
				r.mode.Store(int32(ModeStep))
			} else {
				r.mode.Store(int32(ModeRunning))
			}
		case CmdPaste:
			text := msg.Text
			if text == "" && r.clipboardOK {
				text = string(clipboard.Read(clipboard.FmtText))
			}
			if text == "" {
				log.Printf("regulator: paste requested with empty clipboard")
				continue
			}
			r.pending = append(r.pending, []byte(text)...)
		case CmdTerminate:
			r.mode.Store(int32(ModeTerminate))
			return
		}
	}
}
