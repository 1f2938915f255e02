package machine

import "github.com/mii-emu/miigo/internal/membank"

// switches is the machine-mode soft-switch state behind $C000-$C07F.
type switches struct {
	keyLatch byte

	store80 bool
	text    bool
	mixed   bool
	page2   bool
	hires   bool
	altChar bool
	col80   bool

	paddles      [4]byte
	buttons      [3]bool
	paddleStrobe uint64 // cycle of the last $C070 touch
}

// paddleCyclesPerCount is the RC discharge constant: a full-scale
// paddle holds the timer bit for about 2816 cycles.
const paddleCyclesPerCount = 11

func (m *Machine) installSwitches() {
	m.io.InstallAccessCB(m.switchAccess, nil, 0xC0, 0xC0, true)
}

// switchAccess implements $C000-$C08F; the slot windows above $C090
// belong to the slot table's callback.
func (m *Machine) switchAccess(_ *membank.Bank, _ any, addr uint16, data *byte, write bool) bool {
	if addr >= 0xC090 {
		return false
	}
	if addr >= 0xC080 {
		m.lc.access(addr, write)
		if !write {
			*data = m.vaporByte()
		}
		return true
	}
	switch {
	case addr == 0xC000 && !write:
		*data = m.sw.keyLatch
		return true
	case addr == 0xC000 && write:
		m.sw.store80 = false
		return true
	case addr == 0xC001 && write:
		m.sw.store80 = true
		return true
	case addr == 0xC00C && write:
		m.sw.col80 = false
		return true
	case addr == 0xC00D && write:
		m.sw.col80 = true
		return true
	case addr == 0xC00E && write:
		m.sw.altChar = false
		return true
	case addr == 0xC00F && write:
		m.sw.altChar = true
		return true
	case addr == 0xC010:
		m.sw.keyLatch &^= 0x80
		if !write {
			*data = m.sw.keyLatch
		}
		return true
	case addr == 0xC030:
		m.speaker.toggle(m.clk.Cycles())
		if !write {
			*data = m.vaporByte()
		}
		return true
	case addr >= 0xC050 && addr <= 0xC057:
		m.videoSwitch(addr)
		if !write {
			*data = m.vaporByte()
		}
		return true
	case addr >= 0xC061 && addr <= 0xC063 && !write:
		*data = 0
		if m.sw.buttons[addr-0xC061] {
			*data = 0x80
		}
		return true
	case addr >= 0xC064 && addr <= 0xC067 && !write:
		// The paddle timer bit stays high until the RC ramp crosses
		// the paddle position.
		i := addr - 0xC064
		elapsed := m.clk.Cycles() - m.sw.paddleStrobe
		*data = 0
		if elapsed < uint64(m.sw.paddles[i])*paddleCyclesPerCount {
			*data = 0x80
		}
		return true
	case addr == 0xC070:
		m.sw.paddleStrobe = m.clk.Cycles()
		if !write {
			*data = m.vaporByte()
		}
		return true
	case !write && addr >= 0xC018 && addr <= 0xC01F:
		*data = m.statusBit(addr) | m.sw.keyLatch&0x7f
		return true
	}
	if !write {
		*data = m.vaporByte()
	}
	return true
}

func (m *Machine) videoSwitch(addr uint16) {
	on := addr&1 != 0
	switch addr &^ 1 {
	case 0xC050: // note $C050 clears TEXT, $C051 sets it
		m.sw.text = on
	case 0xC052:
		m.sw.mixed = on
	case 0xC054:
		m.sw.page2 = on
	case 0xC056:
		m.sw.hires = on
	}
}

// statusBit returns the readable state of a mode switch in bit 7.
func (m *Machine) statusBit(addr uint16) byte {
	var on bool
	switch addr {
	case 0xC018:
		on = m.sw.store80
	case 0xC01A:
		on = m.sw.text
	case 0xC01B:
		on = m.sw.mixed
	case 0xC01C:
		on = m.sw.page2
	case 0xC01D:
		on = m.sw.hires
	case 0xC01E:
		on = m.sw.altChar
	case 0xC01F:
		on = m.sw.col80
	}
	if on {
		return 0x80
	}
	return 0
}
