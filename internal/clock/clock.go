// Package clock keeps the machine's monotonic PHI0 cycle counter and a
// table of up to 64 cycle-scheduled callbacks. Peripherals register a
// callback with an initial delay; the runner fires every due entry each
// time the CPU thread advances the counter. A callback's return value
// reschedules it (cycles until the next fire) or, when zero, releases
// the slot for reuse.
package clock

import (
	"math/bits"
	"reflect"
)

// None is returned by Register when all 64 timer slots are in use.
const None = 0xff

// Callback is invoked when a timer fires. The return value is the delay
// in cycles until the next fire; returning 0 frees the slot.
type Callback func(param any) uint64

type timer struct {
	fireAt uint64
	cb     Callback
	param  any
	name   string
}

// Clock is the shared cycle counter plus the timer table. It is owned by
// the CPU thread; no method is safe for concurrent use from other
// goroutines.
type Clock struct {
	cycles uint64
	inUse  uint64 // bitmap, bit i set = timers[i] active
	timers [64]timer
}

func New() *Clock {
	return &Clock{}
}

// Cycles returns the current cycle count.
func (c *Clock) Cycles() uint64 { return c.cycles }

// Advance moves the cycle counter forward by n cycles. Due timers fire
// on the next Run call; Advance itself never calls back.
func (c *Clock) Advance(n uint64) {
	c.cycles += n
}

// Register claims the lowest free timer slot, schedules its first fire
// at now+delay and returns the slot index, or None when the table is
// full. The name is kept for diagnostics only.
func (c *Clock) Register(cb Callback, param any, delay uint64, name string) uint8 {
	free := ^c.inUse
	if free == 0 {
		return None
	}
	id := uint8(bits.TrailingZeros64(free))
	c.inUse |= 1 << id
	c.timers[id] = timer{
		fireAt: c.cycles + delay,
		cb:     cb,
		param:  param,
		name:   name,
	}
	return id
}

// Unregister releases a slot. Releasing a free or out-of-range slot is a
// no-op.
func (c *Clock) Unregister(id uint8) {
	if id >= 64 {
		return
	}
	c.inUse &^= 1 << id
	c.timers[id] = timer{}
}

// Set reschedules an active timer to fire at now+delay, after
// verifying cb is the callback the slot was registered with — a stale
// id cannot reprogram someone else's timer. A delay of 0 releases the
// slot. It returns the cycles that remained before the previous
// deadline (deadlines already in the past clamp to 0); a free slot or
// a callback mismatch is a no-op returning 0.
func (c *Clock) Set(id uint8, cb Callback, delay uint64) uint64 {
	if id >= 64 || c.inUse&(1<<id) == 0 {
		return 0
	}
	t := &c.timers[id]
	if cb == nil || reflect.ValueOf(cb).Pointer() != reflect.ValueOf(t.cb).Pointer() {
		return 0
	}
	var remain uint64
	if t.fireAt > c.cycles {
		remain = t.fireAt - c.cycles
	}
	if delay == 0 {
		c.Unregister(id)
		return remain
	}
	t.fireAt = c.cycles + delay
	return remain
}

// Get returns the cycles remaining until the timer fires, 0 when it is
// due or the slot is free.
func (c *Clock) Get(id uint8) uint64 {
	if id >= 64 || c.inUse&(1<<id) == 0 {
		return 0
	}
	if t := &c.timers[id]; t.fireAt > c.cycles {
		return t.fireAt - c.cycles
	}
	return 0
}

// Active returns the number of claimed slots.
func (c *Clock) Active() int {
	return bits.OnesCount64(c.inUse)
}

// Run fires every active timer whose deadline has passed, in ascending
// slot order. Callbacks returning 0 release their slot; a positive
// return d reschedules at fireAt+d. A timer that is still due after
// rescheduling fires again on the next Run, not within this one.
func (c *Clock) Run() {
	pending := c.inUse
	for pending != 0 {
		id := uint8(bits.TrailingZeros64(pending))
		pending &^= 1 << id
		t := &c.timers[id]
		if t.fireAt > c.cycles {
			continue
		}
		d := t.cb(t.param)
		if d == 0 {
			c.Unregister(id)
		} else {
			t.fireAt += d
		}
	}
}

// The PHI0 clock expressed against the 14.318 MHz master reference: 14
// reference ticks per CPU cycle, 978 ns nominal.
const (
	MasterHz   = 14318180
	RefPerPhi0 = 14
	PhiHz      = MasterHz / RefPerPhi0 // 1.0227 MHz nominal
)
