package machine

import "github.com/mii-emu/miigo/internal/membank"

// languageCard is the $D000-$FFFF banking hardware: 12 KB of ROM
// shadowed by 16 KB of RAM (two switchable 4 KB banks under $D000 plus
// 8 KB above $E000), controlled through the $C080-$C08F switches.
type languageCard struct {
	bank *membank.Bank

	rom []byte        // 12 KB at $D000
	ram [0x4000]byte  // bank1 $D000, bank2 $D000, then $E000-$FFFF

	readRAM     bool
	writeEnable bool
	bank2       bool
	// The hardware arms write enable only on the second consecutive
	// read of an odd switch.
	preWrite bool
}

func newLanguageCard(bus *membank.Bus, rom []byte) *languageCard {
	lc := &languageCard{rom: builtinROM(rom)}
	lc.bank = membank.NewBank("lc", 0xD000, 0x3000)
	bus.MapBank(lc.bank)
	lc.bank.InstallAccessCB(lc.memAccess, nil, 0xD0, 0xFF, true)
	lc.reset()
	return lc
}

func (lc *languageCard) reset() {
	lc.readRAM = false
	lc.writeEnable = false
	lc.bank2 = true
	lc.preWrite = false
}

// access decodes a $C080-$C08F touch: bit 3 selects bank 1, bits 0-1
// select the read source and write arming.
func (lc *languageCard) access(addr uint16, write bool) {
	lc.bank2 = addr&0x08 == 0
	low := addr & 0x03
	lc.readRAM = low == 0x00 || low == 0x03
	if low&0x01 != 0 {
		if write {
			lc.preWrite = false
		} else if lc.preWrite {
			lc.writeEnable = true
		} else {
			lc.preWrite = true
		}
	} else {
		lc.preWrite = false
		lc.writeEnable = false
	}
}

func (lc *languageCard) ramOffset(addr uint16) int {
	if addr < 0xE000 {
		off := int(addr - 0xD000)
		if !lc.bank2 {
			return off
		}
		return 0x1000 + off
	}
	return 0x2000 + int(addr-0xE000)
}

func (lc *languageCard) memAccess(_ *membank.Bank, _ any, addr uint16, data *byte, write bool) bool {
	if write {
		if lc.writeEnable {
			lc.ram[lc.ramOffset(addr)] = *data
		}
		return true
	}
	if lc.readRAM {
		*data = lc.ram[lc.ramOffset(addr)]
	} else {
		*data = lc.rom[addr-0xD000]
	}
	return true
}

// builtinROM returns the provided image, or a stub that parks the CPU
// in a tight monitor loop so a ROM-less machine still boots somewhere
// sane.
func builtinROM(rom []byte) []byte {
	if len(rom) == 0x3000 {
		return rom
	}
	img := make([]byte, 0x3000)
	for i := range img {
		img[i] = 0xEA
	}
	// $F800: JMP $F800
	const entry = 0xF800
	img[entry-0xD000] = 0x4C
	img[entry-0xD000+1] = 0x00
	img[entry-0xD000+2] = 0xF8
	// Reset, NMI and IRQ vectors all point at the loop.
	for _, vec := range []int{0xFFFA, 0xFFFC, 0xFFFE} {
		img[vec-0xD000] = 0x00
		img[vec-0xD000+1] = 0xF8
	}
	return img
}
