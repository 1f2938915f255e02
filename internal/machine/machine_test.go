package machine

import "testing"

func newTestMachine(t *testing.T, opt Options) *Machine {
	t.Helper()
	opt.AudioOff = true
	m, err := New(opt)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(m.Dispose)
	return m
}

func TestBootParksInROMAndFramesAdvance(t *testing.T) {
	m := newTestMachine(t, Options{})
	m.RunCycles(1_000_000)
	if pc := m.CPU().PC; pc < 0xF800 {
		t.Fatalf("PC = %04x, want inside ROM entry loop", pc)
	}
	if m.Frames() < 1 {
		t.Fatalf("frame counter did not advance: %d", m.Frames())
	}
	// ~58 frames in a million cycles.
	if m.Frames() < 50 || m.Frames() > 70 {
		t.Fatalf("frame counter = %d, want ~58", m.Frames())
	}
}

func TestKeyboardLatchAndStrobe(t *testing.T) {
	m := newTestMachine(t, Options{})
	if !m.PasteChar('A') {
		t.Fatalf("paste refused on empty latch")
	}
	if m.PasteChar('B') {
		t.Fatalf("paste accepted before the guest read the latch")
	}
	if got := m.bus.Read(0xC000); got != 'A'|0x80 {
		t.Fatalf("keyboard read = %02x", got)
	}
	m.bus.Read(0xC010) // clear strobe
	if got := m.bus.Read(0xC000); got&0x80 != 0 {
		t.Fatalf("strobe survived $C010: %02x", got)
	}
	if !m.PasteChar('B') {
		t.Fatalf("paste refused after strobe clear")
	}
}

func TestMainRAMRoundTrip(t *testing.T) {
	m := newTestMachine(t, Options{})
	m.bus.Write(0x1234, 0x5A)
	if got := m.bus.Read(0x1234); got != 0x5A {
		t.Fatalf("RAM read = %02x", got)
	}
}

func TestROMIsWriteProtectedByDefault(t *testing.T) {
	m := newTestMachine(t, Options{})
	before := m.bus.Read(0xF800)
	m.bus.Write(0xF800, 0x00)
	if got := m.bus.Read(0xF800); got != before {
		t.Fatalf("ROM write leaked through: %02x -> %02x", before, got)
	}
}

func TestLanguageCardBanking(t *testing.T) {
	m := newTestMachine(t, Options{})
	// Two reads of $C081 arm write enable (ROM still readable).
	m.bus.Read(0xC081)
	m.bus.Read(0xC081)
	m.bus.Write(0xD000, 0x42)
	romByte := m.bus.Read(0xD000)
	if romByte == 0x42 {
		t.Fatalf("read-ROM mode returned RAM")
	}
	// Switch to read RAM, same bank.
	m.bus.Read(0xC083)
	m.bus.Read(0xC083)
	if got := m.bus.Read(0xD000); got != 0x42 {
		t.Fatalf("LC RAM read = %02x, want 42", got)
	}
	// Bank 1 is distinct storage.
	m.bus.Read(0xC08B)
	m.bus.Read(0xC08B)
	if got := m.bus.Read(0xD000); got == 0x42 {
		t.Fatalf("bank 1 aliases bank 2")
	}
	// $E000 region is common to both bank selects.
	m.bus.Write(0xE000, 0x77)
	m.bus.Read(0xC083)
	if got := m.bus.Read(0xE000); got != 0x77 {
		t.Fatalf("$E000 RAM = %02x", got)
	}
}

func TestLanguageCardWriteProtect(t *testing.T) {
	m := newTestMachine(t, Options{})
	m.bus.Read(0xC083)
	m.bus.Read(0xC083) // read RAM, write enabled
	m.bus.Write(0xD100, 0x11)
	m.bus.Read(0xC080) // read RAM, write protect
	m.bus.Write(0xD100, 0x99)
	if got := m.bus.Read(0xD100); got != 0x11 {
		t.Fatalf("write protect failed: %02x", got)
	}
}

func TestPaddleTimerFollowsPosition(t *testing.T) {
	m := newTestMachine(t, Options{})
	m.SetPaddle(0, 200)
	m.bus.Read(0xC070) // strobe
	if got := m.bus.Read(0xC064); got&0x80 == 0 {
		t.Fatalf("paddle bit low immediately after strobe")
	}
	m.clk.Advance(200*paddleCyclesPerCount + 1)
	if got := m.bus.Read(0xC064); got&0x80 != 0 {
		t.Fatalf("paddle bit still high after the ramp")
	}
}

func TestButtonsReadBit7(t *testing.T) {
	m := newTestMachine(t, Options{})
	m.SetButton(0, true)
	if got := m.bus.Read(0xC061); got&0x80 == 0 {
		t.Fatalf("button 0 not visible")
	}
	m.SetButton(0, false)
	if got := m.bus.Read(0xC061); got&0x80 != 0 {
		t.Fatalf("button 0 stuck")
	}
}

func TestVideoSwitchesReadBack(t *testing.T) {
	m := newTestMachine(t, Options{})
	m.bus.Read(0xC051) // text on
	if got := m.bus.Read(0xC01A); got&0x80 == 0 {
		t.Fatalf("text switch not set")
	}
	m.bus.Read(0xC050)
	if got := m.bus.Read(0xC01A); got&0x80 != 0 {
		t.Fatalf("text switch not cleared")
	}
}

func TestIRQAggregatorORsLines(t *testing.T) {
	m := newTestMachine(t, Options{})
	a := m.RegisterIRQ("a")
	b := m.RegisterIRQ("b")
	a.Raise()
	b.Raise()
	if !m.CPU().IRQ() {
		t.Fatalf("IRQ line low with two raisers")
	}
	a.Clear()
	if !m.CPU().IRQ() {
		t.Fatalf("IRQ dropped while b still holds it")
	}
	b.Clear()
	if m.CPU().IRQ() {
		t.Fatalf("IRQ line stuck high")
	}
}

func TestMountInvalidDriverIsNonFatal(t *testing.T) {
	m := newTestMachine(t, Options{
		Slots: map[int]SlotSpec{
			3: {Driver: "disk2"},
			5: {Driver: "nosuchthing"},
		},
	})
	// Startup must have continued; the machine still boots.
	m.RunCycles(10_000)
	if m.CPU().PC < 0xF800 {
		t.Fatalf("machine did not boot with bad slot config")
	}
}

func TestMockingboardMountedInSlot4(t *testing.T) {
	m := newTestMachine(t, Options{
		Slots: map[int]SlotSpec{4: {Driver: "mockingboard"}},
	})
	// The VIA IER is readable through the card ROM page.
	if got := m.bus.Read(0xC40E); got&0x80 == 0 {
		t.Fatalf("VIA IER read = %02x, want bit 7 set", got)
	}
}

func TestStepInstructionAdvancesOnce(t *testing.T) {
	m := newTestMachine(t, Options{})
	before := m.CPU().TotalCycles
	m.StepInstruction()
	delta := m.CPU().TotalCycles - before
	if delta < 1 || delta > 8 {
		t.Fatalf("one instruction took %d cycles", delta)
	}
}
