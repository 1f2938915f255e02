package machine

import (
	"fmt"
	"os"

	"github.com/mii-emu/miigo/internal/slot"
)

// rom1mbCard is a 1 MB banked ROM card: the I/O window's first two
// registers select a 256-byte bank, which the card's $Cn00 ROM page
// then exposes. Images load from the file= option; a missing file is
// a configuration error.
type rom1mbCard struct {
	slot *slot.Slot
	data []byte
	bank uint16
}

const rom1mbSize = 1 << 20

func registerROM1MB() {
	slot.RegisterDriver(&slot.Driver{
		Name: "rom1mb",
		Desc: "1MB ROM card",
		Init: newROM1MB,
	})
}

func newROM1MB(h slot.Host, s *slot.Slot, opts map[string]string) (slot.Card, error) {
	c := &rom1mbCard{slot: s, data: make([]byte, rom1mbSize)}
	if path, ok := opts["file"]; ok {
		img, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("rom1mb: %w", err)
		}
		copy(c.data, img)
	}
	return c, nil
}

// Access: register 0/1 hold the bank number, low byte then high byte.
func (c *rom1mbCard) Access(addr uint16, data byte, write bool) byte {
	switch addr & 0x0f {
	case 0x0:
		if write {
			c.bank = c.bank&0xff00 | uint16(data)
		} else {
			return byte(c.bank)
		}
	case 0x1:
		if write {
			c.bank = c.bank&0x00ff | uint16(data)<<8
		} else {
			return byte(c.bank >> 8)
		}
	}
	return 0
}

// ROMAccess serves the selected bank through the card's $Cn00 page.
func (c *rom1mbCard) ROMAccess(addr uint16, data *byte, write bool) bool {
	if addr >= 0xC800 {
		return false
	}
	if write {
		return true // ROM: writes drop
	}
	off := int(c.bank)*0x100 + int(addr&0xff)
	*data = c.data[off%rom1mbSize]
	return true
}

func (c *rom1mbCard) Reset()   { c.bank = 0 }
func (c *rom1mbCard) Dispose() {}
