// Package vcd implements the value-change-dump trace sink (C3): it
// attaches to signals from an internal/signal pool and records every
// raise as a timestamped entry in a 256-deep ring, later flushed to a
// standard IEEE 1364 VCD text file with a 10 ns timescale.
package vcd

import (
	"fmt"
	"os"
	"time"

	"github.com/mii-emu/miigo/internal/ring"
	"github.com/mii-emu/miigo/internal/signal"
)

const (
	logDepth    = 256
	maxSignals  = 128
	baseAlias   = 0x21 // '!' — first VCD alias character
	timescaleNs = 10
)

type traced struct {
	name   string
	size   int
	alias  byte
	vcdSig *signal.Signal
}

type logEntry struct {
	sigIndex int
	when     uint64
	value    uint32
	floating bool
}

// Sink is a VCD trace sink bound to one output file and one signal pool.
// AddSignal attaches a traced wire; Start opens the file and writes the
// header; every subsequent raise of a traced signal is buffered in a
// fixed-depth ring until Flush or Stop drains it to text.
type Sink struct {
	pool         *signal.Pool
	filename     string
	cyclesToNsec uint64

	signals []traced
	log     *ring.Ring[logEntry]

	cycle  uint64
	start  uint64
	output *os.File
}

// NewSink returns a sink bound to pool, writing to filename once Start is
// called. cyclesToNsec converts one CPU cycle into nanoseconds (the 14.318
// MHz reference cited by the clock glossary, expressed as a caller-supplied
// factor so the sink itself stays clock-rate agnostic).
func NewSink(pool *signal.Pool, filename string, cyclesToNsec uint64) *Sink {
	return &Sink{
		pool:         pool,
		filename:     filename,
		cyclesToNsec: cyclesToNsec,
		log:          ring.NewRing[logEntry](logDepth),
	}
}

// SetCycle records the current cycle count; every subsequent traced raise
// is timestamped against it until the next call.
func (s *Sink) SetCycle(cycle uint64) {
	s.cycle = cycle
}

// AddSignal registers src as a traced wire of the given bit width. Raising
// src thereafter enqueues a log entry; if the sink's ring is full the log
// is flushed synchronously before the new entry is written, matching the
// "flush when full" failure behaviour — no entries are silently dropped
// while an output file is open. Returns an error once maxSignals traced
// wires have already been registered.
func (s *Sink) AddSignal(src *signal.Signal, bitSize int, name string) error {
	if len(s.signals) >= maxSignals {
		return fmt.Errorf("vcd: too many traced signals, cannot add %q", name)
	}
	index := len(s.signals)
	alias := byte(baseAlias + index)

	iname := fmt.Sprintf(">vcd.%s", name)
	if bitSize > 1 {
		iname = fmt.Sprintf("%d>vcd.%s", bitSize, name)
	}
	vcdSig := s.pool.AllocLike(iname)
	vcdSig.RegisterNotify(func(value uint32, param any) {
		s.notify(index, value, vcdSig.Flags()&signal.FLOATING != 0)
	}, nil)
	src.Connect(vcdSig)

	s.signals = append(s.signals, traced{name: name, size: bitSize, alias: alias, vcdSig: vcdSig})
	return nil
}

func (s *Sink) notify(index int, value uint32, floating bool) {
	if s.log.Full() {
		if s.output == nil {
			s.log.Read() // nowhere to flush: drop the oldest entry
		} else {
			s.flushLog()
		}
	}
	s.log.Write(logEntry{sigIndex: index, when: s.cycle, value: value, floating: floating})
}

// Start opens the output file and writes the VCD header: $date/$version,
// a 10 ns $timescale, one $var wire per traced signal, and an initial
// $dumpvars block with every signal floating. Any output still open from
// an earlier Start is closed first. If the file cannot be created it
// returns an error and no further enqueues are flushed; the ring keeps
// discarding its oldest entries silently as new raises arrive.
func (s *Sink) Start() error {
	s.start = 0
	s.log.Reset()

	if s.output != nil {
		s.Stop()
	}
	f, err := os.Create(s.filename)
	if err != nil {
		return fmt.Errorf("vcd: opening %s: %w", s.filename, err)
	}
	s.output = f

	fmt.Fprintf(s.output, "$date %s $end\n", time.Now().Format(time.ANSIC))
	fmt.Fprintf(s.output, "$version mii-go 1.0.0 $end\n")
	fmt.Fprintf(s.output, "$timescale %dns $end\n", timescaleNs)
	fmt.Fprintf(s.output, "$scope module logic $end\n")
	for _, sig := range s.signals {
		fmt.Fprintf(s.output, "$var wire %d %c %s $end\n", sig.size, sig.alias, sig.name)
	}
	fmt.Fprintf(s.output, "$upscope $end\n")
	fmt.Fprintf(s.output, "$enddefinitions $end\n")

	fmt.Fprintf(s.output, "$dumpvars\n")
	for _, sig := range s.signals {
		fmt.Fprintf(s.output, "%s\n", floatingText(sig))
	}
	fmt.Fprintf(s.output, "$end\n")
	return nil
}

// Stop flushes any queued entries and closes the output file.
func (s *Sink) Stop() error {
	s.flushLog()
	if s.output == nil {
		return nil
	}
	err := s.output.Close()
	s.output = nil
	return err
}

// flushLog drains the ring to text. Two events on the same signal landing
// in the same 10 ns bucket are nudged one unit apart so the waveform shows
// a pulse instead of a single flat transition; this nudging is scoped to
// the signal that repeats, not the whole timestamp — a different signal
// may still share the original bucket untouched.
func (s *Sink) flushLog() {
	if s.log.Empty() || s.output == nil {
		return
	}

	var seen [maxSignals / 64]uint64
	var oldBase uint64
	first := true

	for {
		entry, ok := s.log.Read()
		if !ok {
			break
		}
		base := (s.cyclesToNsec * (entry.when - s.start)) / timescaleNs

		word, bit := entry.sigIndex>>6, uint64(1)<<uint(entry.sigIndex&63)
		if base == oldBase && seen[word]&bit != 0 {
			base++
		}
		if base > oldBase || first {
			seen = [maxSignals / 64]uint64{}
			fmt.Fprintf(s.output, "#%d\n", base)
			oldBase = base
			first = false
		}
		seen[word] |= bit

		sig := s.signals[entry.sigIndex]
		if entry.floating {
			fmt.Fprintf(s.output, "%s\n", floatingText(sig))
		} else {
			fmt.Fprintf(s.output, "%s\n", valueText(sig, entry.value))
		}
	}
}

func valueText(s traced, value uint32) string {
	out := make([]byte, 0, s.size+3)
	if s.size > 1 {
		out = append(out, 'b')
	}
	for i := s.size; i > 0; i-- {
		if value&(1<<uint(i-1)) != 0 {
			out = append(out, '1')
		} else {
			out = append(out, '0')
		}
	}
	if s.size > 1 {
		out = append(out, ' ')
	}
	out = append(out, s.alias)
	return string(out)
}

func floatingText(s traced) string {
	out := make([]byte, 0, s.size+3)
	if s.size > 1 {
		out = append(out, 'b')
	}
	for i := 0; i < s.size; i++ {
		out = append(out, 'x')
	}
	if s.size > 1 {
		out = append(out, ' ')
	}
	out = append(out, s.alias)
	return string(out)
}
