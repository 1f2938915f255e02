// Package slot implements the peripheral card framework: driver
// registration, the per-slot $C0n0-$C0nF I/O windows, the $Cn00-$CnFF
// card ROM pages and the shared $C800-$CFFF expansion window. Cards are
// tagged driver instances behind a small interface; the linker-section
// registration of the original becomes an explicit named registry.
package slot

import (
	"fmt"
	"sort"
	"sync"

	"github.com/mii-emu/miigo/internal/audio"
	"github.com/mii-emu/miigo/internal/clock"
	"github.com/mii-emu/miigo/internal/membank"
)

const (
	// FirstSlot and LastSlot bound the populated slots; slot 0 is the
	// language card position and takes no peripheral drivers here.
	FirstSlot = 1
	LastSlot  = 7

	ioBase   = 0xC080 // slot n I/O window at ioBase + n*0x10
	romBase  = 0xC100 // slot n ROM page at 0xC000 + n*0x100
	expBase  = 0xC800 // shared expansion window
	expReset = 0xCFFF // touching releases the expansion window
)

// IRQ is one card's interrupt line into the machine's aggregator.
type IRQ interface {
	Raise()
	Clear()
}

// Host is the machine surface a card sees: shared time, memory, audio
// and interrupt fan-in. Implemented by internal/machine.
type Host interface {
	Clock() *clock.Clock
	Bus() *membank.Bus
	Audio() *audio.Sink
	RegisterIRQ(name string) IRQ
	// Speed is the emulation speed in MHz, used to scale host-facing
	// timer periods when the machine runs faster than stock.
	Speed() float64
}

// Card is a mounted driver instance.
type Card interface {
	// Access handles the slot's I/O window; addr is absolute
	// ($C0n0-$C0nF). For reads the return value is the bus byte.
	Access(addr uint16, data byte, write bool) byte
	Reset()
	Dispose()
}

// ROMAccessor is implemented by cards that intercept their $Cn00 ROM
// page (and the expansion window while they own it). Returning true
// consumes the access.
type ROMAccessor interface {
	ROMAccess(addr uint16, data *byte, write bool) bool
}

// Commander is implemented by cards accepting out-of-band commands
// (set tty config, load disk image).
type Commander interface {
	Command(cmd string, payload any) (any, error)
}

// InitFunc builds a card mounted in s. opts carries the k=v pairs from
// the --slot flag.
type InitFunc func(h Host, s *Slot, opts map[string]string) (Card, error)

// Driver describes one mountable card type.
type Driver struct {
	Name string
	Desc string
	Init InitFunc
}

var (
	driverMu sync.Mutex
	drivers  = map[string]*Driver{}
)

// RegisterDriver adds a driver to the registry; later registrations
// with the same name replace earlier ones.
func RegisterDriver(d *Driver) {
	driverMu.Lock()
	drivers[d.Name] = d
	driverMu.Unlock()
}

// FindDriver returns the named driver or nil.
func FindDriver(name string) *Driver {
	driverMu.Lock()
	defer driverMu.Unlock()
	return drivers[name]
}

// DriverNames returns the registered names, sorted.
func DriverNames() []string {
	driverMu.Lock()
	defer driverMu.Unlock()
	names := make([]string, 0, len(drivers))
	for n := range drivers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Slot is one of the seven peripheral positions.
type Slot struct {
	ID             int // 1..7
	DriverName     string
	AuxROMSelected bool

	card  Card
	table *Table
}

// Card returns the mounted card, or nil.
func (s *Slot) Card() Card { return s.card }

// IOBase returns the first address of the slot's I/O window.
func (s *Slot) IOBase() uint16 { return ioBase + uint16(s.ID)*0x10 }

// ROMBase returns the slot's $Cn00 page address.
func (s *Slot) ROMBase() uint16 { return 0xC000 + uint16(s.ID)*0x100 }

// ROM returns the shared card ROM bank so drivers can install their
// page and expansion images.
func (s *Slot) ROM() *membank.Bank { return s.table.rom }

// Table owns the seven slots and the card ROM bank, and wires both into
// the bus. One per machine, CPU-thread owned.
type Table struct {
	host  Host
	slots [LastSlot + 1]Slot
	rom   *membank.Bank

	// expansionOwner is the slot currently holding $C800-$CFFF, or 0.
	expansionOwner int
}

// NewTable creates the table and maps the card ROM bank ($C100-$CFFF)
// onto the bus. The soft-switch bank covering page $C0 must already be
// mapped; the table installs its I/O window callback there.
func NewTable(h Host, ioBank *membank.Bank) *Table {
	t := &Table{host: h}
	for i := range t.slots {
		t.slots[i].ID = i
		t.slots[i].table = t
	}
	t.rom = membank.NewBank("cardrom", romBase, 0x0F00)
	h.Bus().MapBank(t.rom)
	t.rom.InstallAccessCB(t.romAccess, nil, 0xC1, 0xCF, true)
	ioBank.InstallAccessCB(t.ioAccess, nil, 0xC0, 0xC0, true)
	return t
}

// Mount instantiates driverName in slot n.
func (t *Table) Mount(n int, driverName string, opts map[string]string) error {
	if n < FirstSlot || n > LastSlot {
		return fmt.Errorf("slot %d out of range", n)
	}
	d := FindDriver(driverName)
	if d == nil {
		return fmt.Errorf("slot %d: unknown driver %q", n, driverName)
	}
	s := &t.slots[n]
	if s.card != nil {
		return fmt.Errorf("slot %d already holds %s", n, s.DriverName)
	}
	card, err := d.Init(t.host, s, opts)
	if err != nil {
		return fmt.Errorf("slot %d: %s: %w", n, driverName, err)
	}
	s.card = card
	s.DriverName = driverName
	return nil
}

// Unmount disposes the card in slot n.
func (t *Table) Unmount(n int) {
	if n < FirstSlot || n > LastSlot {
		return
	}
	s := &t.slots[n]
	if s.card != nil {
		s.card.Dispose()
		s.card = nil
		s.DriverName = ""
		s.AuxROMSelected = false
	}
	if t.expansionOwner == n {
		t.expansionOwner = 0
	}
}

// Slot returns slot n for inspection.
func (t *Table) Slot(n int) *Slot {
	if n < FirstSlot || n > LastSlot {
		return nil
	}
	return &t.slots[n]
}

// Command forwards an out-of-band command to the card in slot n.
func (t *Table) Command(n int, cmd string, payload any) (any, error) {
	s := t.Slot(n)
	if s == nil || s.card == nil {
		return nil, fmt.Errorf("slot %d: no card", n)
	}
	c, ok := s.card.(Commander)
	if !ok {
		return nil, fmt.Errorf("slot %d: %s takes no commands", n, s.DriverName)
	}
	return c.Command(cmd, payload)
}

// Reset resets every mounted card.
func (t *Table) Reset() {
	for i := FirstSlot; i <= LastSlot; i++ {
		if t.slots[i].card != nil {
			t.slots[i].card.Reset()
		}
	}
}

// Dispose unmounts everything, in slot order.
func (t *Table) Dispose() {
	for i := FirstSlot; i <= LastSlot; i++ {
		t.Unmount(i)
	}
}

// ioAccess routes $C080-$C0FF to the owning card's Access.
func (t *Table) ioAccess(_ *membank.Bank, _ any, addr uint16, data *byte, write bool) bool {
	if addr < ioBase+0x10 {
		return false // $C080-$C08F is the language card, not ours
	}
	n := int(addr-ioBase) >> 4
	s := &t.slots[n]
	if s.card == nil {
		return false
	}
	res := s.card.Access(addr, *data, write)
	if !write {
		*data = res
	}
	return true
}

// releaseExpansion clears every slot's aux-ROM flag and frees the
// shared window; it runs before any other $CFFF side effect.
func (t *Table) releaseExpansion() {
	for i := FirstSlot; i <= LastSlot; i++ {
		t.slots[i].AuxROMSelected = false
	}
	t.expansionOwner = 0
}

// romAccess handles $C100-$CFFF: the per-slot pages select the slot's
// aux ROM (and claim the expansion window for it), $CFFF releases the
// window, and accesses are offered to the owning card first.
func (t *Table) romAccess(_ *membank.Bank, _ any, addr uint16, data *byte, write bool) bool {
	if addr == expReset {
		t.releaseExpansion()
		return false
	}
	var s *Slot
	if addr < expBase {
		n := int(addr>>8) - 0xC0
		s = &t.slots[n]
		if !s.AuxROMSelected {
			s.AuxROMSelected = true
			if t.expansionOwner == 0 {
				t.expansionOwner = n
			}
		}
	} else if t.expansionOwner != 0 {
		s = &t.slots[t.expansionOwner]
	}
	if s == nil || s.card == nil {
		return false
	}
	if ra, ok := s.card.(ROMAccessor); ok {
		return ra.ROMAccess(addr, data, write)
	}
	return false
}
