package cpu6502

import (
	"strings"
	"testing"
)

type ramBus struct{ mem [0x10000]byte }

func (b *ramBus) Read(addr uint16) byte     { return b.mem[addr] }
func (b *ramBus) Write(addr uint16, v byte) { b.mem[addr] = v }

func load(b *ramBus, addr uint16, prog ...byte) {
	copy(b.mem[addr:], prog)
	b.mem[VecReset] = byte(addr)
	b.mem[VecReset+1] = byte(addr >> 8)
}

func newCPU(prog ...byte) (*CPU, *ramBus) {
	b := &ramBus{}
	load(b, 0x0600, prog...)
	c := New(b)
	c.Reset()
	return c, b
}

func TestLoadStoreRoundTrip(t *testing.T) {
	c, b := newCPU(
		0xA9, 0x42, // LDA #$42
		0x8D, 0x00, 0x20, // STA $2000
		0xA2, 0x10, // LDX #$10
		0x9D, 0x00, 0x20, // STA $2000,X
	)
	for i := 0; i < 4; i++ {
		c.Step()
	}
	if b.mem[0x2000] != 0x42 || b.mem[0x2010] != 0x42 {
		t.Fatalf("stores: %02x %02x", b.mem[0x2000], b.mem[0x2010])
	}
}

func TestFlagsNZ(t *testing.T) {
	c, _ := newCPU(0xA9, 0x00, 0xA9, 0x80)
	c.Step()
	if c.P&FlagZ == 0 || c.P&FlagN != 0 {
		t.Fatalf("LDA #0 flags: %02x", c.P)
	}
	c.Step()
	if c.P&FlagN == 0 || c.P&FlagZ != 0 {
		t.Fatalf("LDA #$80 flags: %02x", c.P)
	}
}

func TestADCBinaryCarryOverflow(t *testing.T) {
	c, _ := newCPU(0x18, 0xA9, 0x7F, 0x69, 0x01) // CLC; LDA #$7F; ADC #1
	for i := 0; i < 3; i++ {
		c.Step()
	}
	if c.A != 0x80 {
		t.Fatalf("A = %02x", c.A)
	}
	if c.P&FlagV == 0 || c.P&FlagN == 0 || c.P&FlagC != 0 {
		t.Fatalf("flags = %02x, want V,N set, C clear", c.P)
	}
}

func TestADCDecimal(t *testing.T) {
	// 65C02 decimal: flags track the BCD result.
	c, _ := newCPU(0xF8, 0x18, 0xA9, 0x19, 0x69, 0x01) // SED; CLC; LDA #$19; ADC #1
	for i := 0; i < 4; i++ {
		c.Step()
	}
	if c.A != 0x20 {
		t.Fatalf("BCD 19+01 = %02x, want 20", c.A)
	}
	if c.P&FlagZ != 0 || c.P&FlagC != 0 {
		t.Fatalf("flags = %02x", c.P)
	}
}

func TestSBCDecimal(t *testing.T) {
	c, _ := newCPU(0xF8, 0x38, 0xA9, 0x20, 0xE9, 0x01) // SED; SEC; LDA #$20; SBC #1
	for i := 0; i < 4; i++ {
		c.Step()
	}
	if c.A != 0x19 {
		t.Fatalf("BCD 20-01 = %02x, want 19", c.A)
	}
	if c.P&FlagC == 0 {
		t.Fatalf("borrow flagged on clean subtract: %02x", c.P)
	}
}

func TestDecimalModeCostsExtraCycle(t *testing.T) {
	c, _ := newCPU(0x69, 0x01) // ADC #1, binary
	c.Step()
	binary := c.TotalCycles
	c2, _ := newCPU(0xF8, 0x69, 0x01) // SED; ADC #1
	c2.Step()
	start := c2.TotalCycles
	c2.Step()
	if got := c2.TotalCycles - start; got != binary-7+1 {
		// binary includes the 7-cycle reset; compare instruction cost.
		t.Fatalf("decimal ADC cost %d cycles, binary cost %d", got, binary-7)
	}
}

func TestBranchTaken(t *testing.T) {
	c, _ := newCPU(0xA9, 0x00, 0xF0, 0x02, 0xA9, 0x01, 0xEA) // LDA #0; BEQ +2; LDA #1; NOP
	c.Step()
	c.Step() // branch taken, skips LDA #1
	c.Step() // NOP at 0x0606
	if c.A != 0 {
		t.Fatalf("branch not taken: A=%02x", c.A)
	}
	if c.PC != 0x0607 {
		t.Fatalf("PC = %04x", c.PC)
	}
}

func TestJSRRTS(t *testing.T) {
	c, b := newCPU(0x20, 0x00, 0x07, 0xEA) // JSR $0700; NOP
	b.mem[0x0700] = 0x60                   // RTS
	c.Step()
	if c.PC != 0x0700 {
		t.Fatalf("JSR PC = %04x", c.PC)
	}
	c.Step()
	if c.PC != 0x0603 {
		t.Fatalf("RTS PC = %04x", c.PC)
	}
}

func TestBRKAndRTI(t *testing.T) {
	c, b := newCPU(0x00, 0xFF, 0xEA) // BRK; (sig); NOP
	b.mem[VecIRQ] = 0x00
	b.mem[VecIRQ+1] = 0x80
	b.mem[0x8000] = 0x40 // RTI
	c.P |= FlagD
	c.Step()
	if c.PC != 0x8000 {
		t.Fatalf("BRK vectored to %04x", c.PC)
	}
	if c.P&FlagI == 0 {
		t.Fatalf("BRK did not set I")
	}
	if c.P&FlagD != 0 {
		t.Fatalf("65C02 BRK did not clear D")
	}
	c.Step() // RTI
	// BRK is two bytes: return lands past the signature byte.
	if c.PC != 0x0602 {
		t.Fatalf("RTI returned to %04x, want 0602", c.PC)
	}
	if c.P&FlagD == 0 {
		t.Fatalf("RTI did not restore D")
	}
}

func TestIRQServicedWhenEnabled(t *testing.T) {
	c, b := newCPU(0x58, 0xEA, 0xEA) // CLI; NOP; NOP
	b.mem[VecIRQ] = 0x00
	b.mem[VecIRQ+1] = 0x90
	b.mem[0x9000] = 0xEA
	c.Step() // CLI
	c.SetIRQ(true)
	c.Step() // services IRQ, then executes handler's first opcode
	if c.PC != 0x9001 {
		t.Fatalf("IRQ not serviced: PC=%04x", c.PC)
	}
	if c.P&FlagI == 0 {
		t.Fatalf("I not set during service")
	}
	// Pushed status has B clear.
	pushed := b.mem[stackBase+uint16(c.S)+1]
	if pushed&FlagB != 0 {
		t.Fatalf("pushed P has B set: %02x", pushed)
	}
}

func TestIRQMaskedByIFlag(t *testing.T) {
	c, _ := newCPU(0xEA, 0xEA) // I set after reset
	c.SetIRQ(true)
	c.Step()
	if c.PC != 0x0601 {
		t.Fatalf("masked IRQ was serviced: PC=%04x", c.PC)
	}
}

func TestNMIIsEdgeTriggered(t *testing.T) {
	c, b := newCPU(0xEA, 0xEA, 0xEA, 0xEA)
	b.mem[VecNMI] = 0x00
	b.mem[VecNMI+1] = 0xA0
	for i := 0; i < 16; i++ {
		b.mem[0xA000+uint16(i)] = 0xEA
	}
	c.SetNMI(true)
	c.Step()
	if c.PC != 0xA001 {
		t.Fatalf("NMI not serviced: PC=%04x", c.PC)
	}
	// Line still high: no retrigger.
	c.Step()
	if c.PC != 0xA002 {
		t.Fatalf("NMI retriggered without an edge: PC=%04x", c.PC)
	}
	c.SetNMI(false)
	c.Step()
	c.SetNMI(true)
	c.Step()
	if c.PC != 0xA001 {
		t.Fatalf("second NMI edge not serviced: PC=%04x", c.PC)
	}
}

func TestRunAdvancesAtLeastN(t *testing.T) {
	prog := make([]byte, 0, 256)
	for i := 0; i < 128; i++ {
		prog = append(prog, 0xEA)
	}
	c, _ := newCPU(prog...)
	start := c.TotalCycles
	c.Run(100)
	if got := c.TotalCycles - start; got < 100 {
		t.Fatalf("Run(100) advanced %d cycles", got)
	}
}

func TestTraceRingRecordsDisassembly(t *testing.T) {
	c, _ := newCPU(0xA9, 0x42, 0x8D, 0x00, 0x20, 0xEA)
	c.SetTrace(true)
	c.Step()
	c.Step()
	c.Step()
	lines := c.TraceText()
	if len(lines) != 3 {
		t.Fatalf("trace has %d lines", len(lines))
	}
	if !strings.Contains(lines[0], "LDA #$42") {
		t.Fatalf("line 0 = %q", lines[0])
	}
	if !strings.Contains(lines[1], "STA $2000") {
		t.Fatalf("line 1 = %q", lines[1])
	}
}

func TestTraceRingKeepsLatest64(t *testing.T) {
	prog := make([]byte, 0, 200)
	for i := 0; i < 100; i++ {
		prog = append(prog, 0xEA)
	}
	c, _ := newCPU(prog...)
	c.SetTrace(true)
	for i := 0; i < 100; i++ {
		c.Step()
	}
	lines := c.TraceText()
	if len(lines) != TraceDepth-1 && len(lines) != TraceDepth {
		t.Fatalf("trace kept %d lines", len(lines))
	}
	// The newest record is the 100th instruction.
	if !strings.Contains(lines[len(lines)-1], "NOP") {
		t.Fatalf("last line = %q", lines[len(lines)-1])
	}
}

func TestStackPushPull(t *testing.T) {
	c, _ := newCPU(0xA9, 0x42, 0x48, 0xA9, 0x00, 0x68) // LDA;PHA;LDA #0;PLA
	for i := 0; i < 4; i++ {
		c.Step()
	}
	if c.A != 0x42 {
		t.Fatalf("PLA: A=%02x", c.A)
	}
}

func TestSTZAndTSB(t *testing.T) {
	c, b := newCPU(
		0xA9, 0x0F, // LDA #$0F
		0x85, 0x10, // STA $10
		0xA9, 0xF0, // LDA #$F0
		0x04, 0x10, // TSB $10
		0x64, 0x11, // STZ $11
	)
	b.mem[0x11] = 0xAA
	for i := 0; i < 5; i++ {
		c.Step()
	}
	if b.mem[0x10] != 0xFF {
		t.Fatalf("TSB result %02x", b.mem[0x10])
	}
	if b.mem[0x11] != 0x00 {
		t.Fatalf("STZ result %02x", b.mem[0x11])
	}
}

func TestZPIndirectMode(t *testing.T) {
	c, b := newCPU(0xB2, 0x20) // LDA ($20)
	b.mem[0x20] = 0x34
	b.mem[0x21] = 0x12
	b.mem[0x1234] = 0x99
	c.Step()
	if c.A != 0x99 {
		t.Fatalf("LDA (zp): A=%02x", c.A)
	}
}

func TestJMPIndirectPageWrapFixed(t *testing.T) {
	c, b := newCPU(0x6C, 0xFF, 0x10) // JMP ($10FF)
	b.mem[0x10FF] = 0x00
	b.mem[0x1100] = 0x80 // 65C02 reads across the boundary
	b.mem[0x1000] = 0xFF // the NMOS-bug byte, must not be used
	c.Step()
	if c.PC != 0x8000 {
		t.Fatalf("JMP ($10FF) landed at %04x, want 8000", c.PC)
	}
}

func TestUndefinedOpcodesAreNOPs(t *testing.T) {
	c, _ := newCPU(0x03, 0x44, 0x55, 0x5C, 0x00, 0x00, 0xEA)
	c.Step() // 0x03: 1-byte NOP
	if c.PC != 0x0601 {
		t.Fatalf("0x03 width wrong: PC=%04x", c.PC)
	}
	c.Step() // 0x44: 2-byte NOP
	if c.PC != 0x0603 {
		t.Fatalf("0x44 width wrong: PC=%04x", c.PC)
	}
	c.Step() // 0x5C: 3-byte NOP
	if c.PC != 0x0606 {
		t.Fatalf("0x5C width wrong: PC=%04x", c.PC)
	}
}
