// Package mockingboard glues a pair of 6522 VIAs and a pair of
// AY-3-8913 PSGs into a slot card. The VIAs' ports A and B form the PSG
// bus and bus-control lines; a clock timer ticks the pairs in lockstep
// with the CPU and periodically renders the accumulated slice into the
// audio sink, one PSG per stereo channel.
package mockingboard

import (
	"github.com/mii-emu/miigo/internal/audio"
	"github.com/mii-emu/miigo/internal/ay8913"
	"github.com/mii-emu/miigo/internal/clock"
	"github.com/mii-emu/miigo/internal/slot"
	"github.com/mii-emu/miigo/internal/via6522"
)

// Register windows inside the card's $Cn00 ROM page. The high bit of
// the page offset selects the chip pair.
const (
	chip2Select = 0x80

	// renderFrames is the per-flush rendering contract; the buffer
	// carries 200 extra frames of headroom beyond it.
	renderFrames  = 1024
	bufferFrames  = 1224
	flushSamples  = 512 // samples accumulated per flush window
	syncPeriod    = 8   // cycles between timer-driven syncs
)

// Card is one Mockingboard.
type Card struct {
	host slot.Host
	slot *slot.Slot
	irq  slot.IRQ

	via [2]*via6522.VIA
	psg [2]*ay8913.PSG

	// The 6522-to-AY interface: port A drives the data bus, port B
	// bits 0-2 drive BC1/BDIR//RESET.
	bus    [2]uint8
	busCtl [2]uint8

	syncBudget  uint64
	renderSlice uint64 // cycles accumulated since the last render
	lastCycles  uint64

	timerID    uint8
	source     *audio.Source
	flushEvery uint64
	lastFlush  uint64

	renderBuf [bufferFrames * 2]float32
}

// Register installs the mockingboard driver in the slot registry.
func Register() {
	slot.RegisterDriver(&slot.Driver{
		Name: "mockingboard",
		Desc: "Mockingboard",
		Init: newCard,
	})
}

func newCard(h slot.Host, s *slot.Slot, opts map[string]string) (slot.Card, error) {
	c := &Card{
		host: h,
		slot: s,
		irq:  h.RegisterIRQ("mockingboard"),
	}
	clockHz := float32(clock.PhiHz)
	for i := 0; i < 2; i++ {
		c.via[i] = via6522.New()
		c.psg[i] = ay8913.New(clockHz)
	}
	c.lastCycles = h.Clock().Cycles()
	c.flushEvery = uint64(flushSamples * float64(clock.PhiHz) / audio.SampleRate)
	c.lastFlush = c.lastCycles
	c.source = h.Audio().AddSource()
	c.source.SetState(audio.Playing)
	c.timerID = h.Clock().Register(c.timer, nil, syncPeriod, "mockingboard")
	return c, nil
}

// timer keeps the VIA/PSG pair synchronised with CPU time and flushes
// rendered audio at the sample-block cadence.
func (c *Card) timer(any) uint64 {
	now := c.host.Clock().Cycles()
	if c.Sync(now) {
		c.irq.Raise()
	} else {
		c.irq.Clear()
	}
	if now-c.lastFlush >= c.flushEvery {
		c.lastFlush = now
		c.flush()
	}
	return syncPeriod
}

// Sync advances both chip pairs one PHI0 cycle at a time until the
// card's clock catches up with now. It reports whether either VIA is
// asserting its interrupt.
func (c *Card) Sync(now uint64) bool {
	c.syncBudget += now - c.lastCycles
	c.lastCycles = now
	for c.syncBudget > 0 {
		for i := 0; i < 2; i++ {
			c.via[i].Tick(&c.bus[i], &c.busCtl[i])
			c.psg[i].Update(&c.bus[i], c.busCtl[i], c.renderSlice)
		}
		c.syncBudget--
		c.renderSlice++
	}
	return c.via[0].IRQ() || c.via[1].IRQ()
}

// flush renders the accumulated slice, one PSG per stereo channel, and
// pushes the interleaved block into the audio source. Trailing samples
// of the shorter channel are zero-filled so the channels stay in
// lockstep.
func (c *Card) flush() {
	buf := c.renderBuf[:]
	for i := range buf {
		buf[i] = 0
	}
	limit := buf[:renderFrames*2]
	l := c.psg[0].Render(c.renderSlice, 0, limit, 2, audio.SampleRate)
	r := c.psg[1].Render(c.renderSlice, 1, limit, 2, audio.SampleRate)
	n := l
	if r > n {
		n = r
	}
	// The per-channel renders only touch their own interleave slot, so
	// the shorter side's tail is already zero.
	c.source.PushBlock(buf[:n*2])
	c.renderSlice = 0
}

// ROMAccess decodes the VIA register windows at $Cn00-$Cn0F (chip 1)
// and $Cn80-$Cn8F (chip 2); everything else falls through to ROM.
func (c *Card) ROMAccess(addr uint16, data *byte, write bool) bool {
	off := uint8(addr)
	if addr >= 0xC800 {
		return false
	}
	if off&0x70 != 0 {
		return false
	}
	chip := 0
	if off&chip2Select != 0 {
		chip = 1
	}
	reg := off & 0xf
	if write {
		c.via[chip].Write(reg, *data)
	} else {
		*data = c.via[chip].Read(reg)
	}
	return true
}

// Access is the slot I/O window; the Mockingboard decodes nothing
// there, so reads float.
func (c *Card) Access(addr uint16, data byte, write bool) byte {
	return 0xff
}

// Reset puts both chip pairs back to power-on state.
func (c *Card) Reset() {
	for i := 0; i < 2; i++ {
		c.via[i].Reset()
		c.psg[i].Reset(0)
		c.bus[i] = 0
		c.busCtl[i] = 0
	}
	c.syncBudget = 0
	c.renderSlice = 0
	c.lastCycles = c.host.Clock().Cycles()
}

// Dispose detaches the audio source and the sync timer.
func (c *Card) Dispose() {
	c.host.Clock().Unregister(c.timerID)
	c.host.Audio().RemoveSource(c.source)
}
