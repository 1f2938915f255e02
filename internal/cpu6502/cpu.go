// Package cpu6502 implements the 6502/65C02 execution core. The CPU is
// stepped in lockstep with the machine clock: Run executes whole
// instructions until the requested cycle budget is consumed, checking
// the IRQ latch and the NMI edge before each one. The instruction set
// is always the 65C02's: decimal-mode ADC/SBC flag behaviour, the fixed
// JMP (abs) page-wrap, the extra addressing modes, and the remaining
// opcode space executing as NOPs of the documented widths. The Enhanced
// flag only selects the 65C02 clearing of D on interrupts and BRK and
// the extra cycle of decimal-mode ADC/SBC; NMOS decimal flags and the
// NMOS JMP (abs) wrap are not modelled.
package cpu6502

import (
	"fmt"
	"sync/atomic"

	"github.com/mii-emu/miigo/internal/ring"
)

// Status register flags.
const (
	FlagC = 0x01
	FlagZ = 0x02
	FlagI = 0x04
	FlagD = 0x08
	FlagB = 0x10
	FlagU = 0x20
	FlagV = 0x40
	FlagN = 0x80
)

// Interrupt and reset vectors.
const (
	VecNMI   = 0xFFFA
	VecReset = 0xFFFC
	VecIRQ   = 0xFFFE

	stackBase = 0x0100

	// TraceDepth is the number of records the instruction trace ring
	// keeps.
	TraceDepth = 64
)

// Bus is the CPU's window onto the machine: every memory access of
// every instruction goes through it, including interrupt stack pushes.
type Bus interface {
	Read(addr uint16) byte
	Write(addr uint16, v byte)
}

// TraceRecord is one disassembled instruction, captured before
// execution.
type TraceRecord struct {
	PC    uint16
	Cycle uint64
	Text  string
}

var nzTable [256]byte

func init() {
	for i := range nzTable {
		if i == 0 {
			nzTable[i] = FlagZ
		}
		if i&0x80 != 0 {
			nzTable[i] |= FlagN
		}
	}
}

// CPU is the processor state. Registers are exported for the debugger
// and tests; the interrupt lines are atomics so peripherals on other
// goroutines may pull them.
type CPU struct {
	PC uint16
	A  byte
	X  byte
	Y  byte
	S  byte
	P  byte

	TotalCycles uint64

	// Enhanced selects the 65C02 (//e enhanced) D clear on interrupts
	// and BRK and the decimal-mode ADC/SBC extra cycle.
	Enhanced bool

	bus Bus

	irqLine atomic.Bool
	nmiLine atomic.Bool
	nmiPrev bool

	trace atomic.Bool
	Trace *ring.Ring[TraceRecord]
}

func New(bus Bus) *CPU {
	return &CPU{
		bus:      bus,
		Enhanced: true,
		P:        FlagU | FlagI,
		S:        0xfd,
		// A ring holds one element less than its size, so double it.
		Trace: ring.NewRing[TraceRecord](TraceDepth * 2),
	}
}

// Reset loads PC from the reset vector and restores power-on flags.
func (c *CPU) Reset() {
	c.PC = uint16(c.bus.Read(VecReset)) | uint16(c.bus.Read(VecReset+1))<<8
	c.P = FlagU | FlagI
	c.S = 0xfd
	c.nmiPrev = false
	c.TotalCycles += 7
}

// SetIRQ drives the level-sensitive IRQ line.
func (c *CPU) SetIRQ(level bool) { c.irqLine.Store(level) }

// IRQ returns the current line level.
func (c *CPU) IRQ() bool { return c.irqLine.Load() }

// SetNMI drives the NMI line; the CPU services the rising edge.
func (c *CPU) SetNMI(level bool) { c.nmiLine.Store(level) }

// SetTrace toggles the pre-execution disassembly ring.
func (c *CPU) SetTrace(on bool) { c.trace.Store(on) }

// Tracing reports whether the trace ring is active.
func (c *CPU) Tracing() bool { return c.trace.Load() }

// Run executes at least one instruction and returns once TotalCycles
// has advanced by at least nCycles.
func (c *CPU) Run(nCycles uint64) {
	target := c.TotalCycles + nCycles
	for {
		c.Step()
		if c.TotalCycles >= target {
			return
		}
	}
}

// Step services any pending interrupt, then executes one instruction.
func (c *CPU) Step() {
	nmi := c.nmiLine.Load()
	if nmi && !c.nmiPrev {
		c.interrupt(VecNMI)
	} else if c.irqLine.Load() && c.P&FlagI == 0 {
		c.interrupt(VecIRQ)
	}
	c.nmiPrev = nmi

	if c.trace.Load() {
		text, _ := Disassemble(c.bus, c.PC)
		rec := TraceRecord{PC: c.PC, Cycle: c.TotalCycles, Text: text}
		if c.Trace.Len() >= TraceDepth {
			c.Trace.Read()
		}
		c.Trace.Write(rec)
	}
	c.execute(c.fetch())
}

// interrupt runs the 6502 vectoring sequence: push PCH, PCL, P with B
// clear, set I (the 65C02 also clears D), load the vector.
func (c *CPU) interrupt(vector uint16) {
	c.push(byte(c.PC >> 8))
	c.push(byte(c.PC))
	c.push(c.P&^FlagB | FlagU)
	c.P |= FlagI
	if c.Enhanced {
		c.P &^= FlagD
	}
	c.PC = uint16(c.bus.Read(vector)) | uint16(c.bus.Read(vector+1))<<8
	c.TotalCycles += 7
}

// TraceText drains the trace ring into a printable slice, oldest first.
func (c *CPU) TraceText() []string {
	out := make([]string, 0, c.Trace.Len())
	for {
		rec, ok := c.Trace.Read()
		if !ok {
			return out
		}
		out = append(out, fmt.Sprintf("%08d %04X  %s", rec.Cycle, rec.PC, rec.Text))
	}
}

func (c *CPU) fetch() byte {
	v := c.bus.Read(c.PC)
	c.PC++
	return v
}

func (c *CPU) fetch16() uint16 {
	lo := uint16(c.fetch())
	return lo | uint16(c.fetch())<<8
}

func (c *CPU) push(v byte) {
	c.bus.Write(stackBase+uint16(c.S), v)
	c.S--
}

func (c *CPU) pull() byte {
	c.S++
	return c.bus.Read(stackBase + uint16(c.S))
}

func (c *CPU) setNZ(v byte) {
	c.P = c.P&^(FlagN|FlagZ) | nzTable[v]
}

func (c *CPU) setFlag(flag byte, on bool) {
	if on {
		c.P |= flag
	} else {
		c.P &^= flag
	}
}

// Addressing helpers. The pen out-parameter accumulates the one-cycle
// page-crossing penalty for read instructions.

func (c *CPU) zp() uint16  { return uint16(c.fetch()) }
func (c *CPU) zpX() uint16 { return uint16(c.fetch() + c.X) }
func (c *CPU) zpY() uint16 { return uint16(c.fetch() + c.Y) }
func (c *CPU) abs() uint16 { return c.fetch16() }

func (c *CPU) absX(pen *uint64) uint16 {
	base := c.fetch16()
	addr := base + uint16(c.X)
	if pen != nil && base&0xff00 != addr&0xff00 {
		*pen++
	}
	return addr
}

func (c *CPU) absY(pen *uint64) uint16 {
	base := c.fetch16()
	addr := base + uint16(c.Y)
	if pen != nil && base&0xff00 != addr&0xff00 {
		*pen++
	}
	return addr
}

func (c *CPU) readZPPtr(ptr byte) uint16 {
	return uint16(c.bus.Read(uint16(ptr))) | uint16(c.bus.Read(uint16(ptr+1)))<<8
}

func (c *CPU) indX() uint16 {
	return c.readZPPtr(c.fetch() + c.X)
}

func (c *CPU) indY(pen *uint64) uint16 {
	base := c.readZPPtr(c.fetch())
	addr := base + uint16(c.Y)
	if pen != nil && base&0xff00 != addr&0xff00 {
		*pen++
	}
	return addr
}

func (c *CPU) zpInd() uint16 {
	return c.readZPPtr(c.fetch())
}

// branch takes the relative displacement when cond holds: +1 cycle
// taken, +1 more crossing a page.
func (c *CPU) branch(cond bool) uint64 {
	disp := int8(c.fetch())
	if !cond {
		return 2
	}
	old := c.PC
	c.PC += uint16(disp)
	if old&0xff00 != c.PC&0xff00 {
		return 4
	}
	return 3
}

func (c *CPU) adc(value byte) {
	if c.P&FlagD != 0 {
		a := uint16(c.A)
		b := uint16(value)
		carry := uint16(0)
		if c.P&FlagC != 0 {
			carry = 1
		}
		lo := a&0x0f + b&0x0f + carry
		carry = 0
		if lo > 9 {
			lo -= 10
			carry = 1
		}
		hi := a>>4&0x0f + b>>4&0x0f + carry
		carry = 0
		if hi > 9 {
			hi -= 10
			carry = 1
		}
		result := byte(hi<<4 | lo)
		old := c.A
		c.A = result
		c.setFlag(FlagC, carry == 1)
		c.setNZ(result)
		c.setFlag(FlagV, (old^value)&0x80 == 0 && (old^result)&0x80 != 0)
		return
	}
	sum := uint16(c.A) + uint16(value)
	if c.P&FlagC != 0 {
		sum++
	}
	result := byte(sum)
	c.setFlag(FlagC, sum > 0xff)
	c.setFlag(FlagV, (c.A^value)&0x80 == 0 && (c.A^result)&0x80 != 0)
	c.A = result
	c.setNZ(result)
}

func (c *CPU) sbc(value byte) {
	if c.P&FlagD != 0 {
		a := uint16(c.A)
		b := uint16(value)
		borrow := uint16(1)
		if c.P&FlagC != 0 {
			borrow = 0
		}
		lo := a&0x0f - b&0x0f - borrow
		borrow = 0
		if lo&0x10 != 0 {
			lo = (lo - 6) & 0x0f
			borrow = 1
		}
		hi := a>>4&0x0f - b>>4&0x0f - borrow
		borrow = 0
		if hi&0x10 != 0 {
			hi = (hi - 6) & 0x0f
			borrow = 1
		}
		result := byte(hi<<4 | lo)
		old := c.A
		c.A = result
		c.setFlag(FlagC, borrow == 0)
		c.setNZ(result)
		c.setFlag(FlagV, (old^value)&0x80 != 0 && (old^result)&0x80 != 0)
		return
	}
	diff := uint16(c.A) - uint16(value)
	if c.P&FlagC == 0 {
		diff--
	}
	result := byte(diff)
	c.setFlag(FlagC, diff < 0x100)
	c.setFlag(FlagV, (c.A^value)&0x80 != 0 && (c.A^result)&0x80 != 0)
	c.A = result
	c.setNZ(result)
}

func (c *CPU) compare(reg, value byte) {
	diff := reg - value
	c.setFlag(FlagC, reg >= value)
	c.setNZ(diff)
}

func (c *CPU) bitTest(value byte) {
	c.setFlag(FlagZ, c.A&value == 0)
	c.P = c.P&^(FlagN|FlagV) | value&(FlagN|FlagV)
}

func (c *CPU) aslVal(v byte) byte {
	c.setFlag(FlagC, v&0x80 != 0)
	v <<= 1
	c.setNZ(v)
	return v
}

func (c *CPU) lsrVal(v byte) byte {
	c.setFlag(FlagC, v&0x01 != 0)
	v >>= 1
	c.setNZ(v)
	return v
}

func (c *CPU) rolVal(v byte) byte {
	carryIn := byte(0)
	if c.P&FlagC != 0 {
		carryIn = 1
	}
	c.setFlag(FlagC, v&0x80 != 0)
	v = v<<1 | carryIn
	c.setNZ(v)
	return v
}

func (c *CPU) rorVal(v byte) byte {
	carryIn := byte(0)
	if c.P&FlagC != 0 {
		carryIn = 0x80
	}
	c.setFlag(FlagC, v&0x01 != 0)
	v = v>>1 | carryIn
	c.setNZ(v)
	return v
}

func (c *CPU) rmw(addr uint16, fn func(byte) byte) {
	c.bus.Write(addr, fn(c.bus.Read(addr)))
}

// decimalPenalty is the 65C02's extra cycle for decimal-mode ADC/SBC.
func (c *CPU) decimalPenalty() uint64 {
	if c.Enhanced && c.P&FlagD != 0 {
		return 1
	}
	return 0
}
