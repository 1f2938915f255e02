// Package signal implements the named, multi-fan-out signal graph used for
// tracing and cooperative IRQ-like notification. A Signal carries a 32-bit
// value and a list of hooks: plain notify callbacks, or chained signals
// that re-raise the same value. Raising walks the hook list depth-first
// with a per-hook re-entrance guard, so a signal reachable from its own
// notify callback (directly or through a chain) does not recurse forever.
package signal

import "sync"

// Flag bits describing a signal's behaviour. NOT inverts the raised value
// as a logical (not bitwise) negation — signals are single-bit lines more
// often than wide buses, so "not" means "zero becomes one", not a 32-bit
// complement. FILTERED suppresses propagation when the new value equals
// the stored one. FLOATING marks the signal as currently undriven. INIT is
// set by Init/AllocLike and means "not yet raised": it gates the FILTERED
// check so the very first raise always propagates regardless of value,
// then is cleared before the first raise's hooks run.
type Flag uint8

const (
	NOT Flag = 1 << iota
	FILTERED
	FLOATING
	INIT
)

// NotifyFunc is called with the post-NOT value of a raise, along with the
// opaque param supplied at registration time.
type NotifyFunc func(value uint32, param any)

// hook is one entry in a signal's fan-out list: either a notify callback
// or a chained signal, never both. active is the per-hook re-entrance
// guard described in raise.
type hook struct {
	notify NotifyFunc
	param  any
	chain  *Signal
	active bool
}

// Signal is a named 32-bit value with flags and a list of hooks.
type Signal struct {
	pool  *Pool
	index int
	name  string

	flags Flag
	value uint32
	hooks []*hook
}

// Name returns the signal's registered name, or "" for a heap-owned
// signal allocated via Pool.AllocLike with no name of its own.
func (s *Signal) Name() string { return s.name }

// Index returns the signal's slot in its owning pool.
func (s *Signal) Index() int { return s.index }

// Value returns the last value stored by a raise.
func (s *Signal) Value() uint32 { return s.value }

// Flags returns the signal's current flag bits.
func (s *Signal) Flags() Flag { return s.flags }

// SetFlags replaces the signal's flag bits wholesale.
func (s *Signal) SetFlags(f Flag) { s.flags = f }

// Connect adds dst as a chained hook of s: raising s also raises dst with
// the same value. Connections are deduplicated — connecting the same
// (src, dst) pair twice is a no-op.
func (s *Signal) Connect(dst *Signal) {
	for _, h := range s.hooks {
		if h.chain == dst {
			return
		}
	}
	s.hooks = append(s.hooks, &hook{chain: dst})
}

// RegisterNotify appends a notify callback to s's hook list. It is called
// on every raise that is not suppressed by FILTERED, with s's post-NOT
// value and the supplied param.
func (s *Signal) RegisterNotify(fn NotifyFunc, param any) {
	s.hooks = append(s.hooks, &hook{notify: fn, param: param})
}

// Raise drives the signal to value, inheriting its current FLOATING state.
func (s *Signal) Raise(value uint32) {
	s.raise(value, s.flags&FLOATING != 0)
}

// RaiseFloat drives the signal to value and explicitly sets whether it is
// floating afterward.
func (s *Signal) RaiseFloat(value uint32, isFloating bool) {
	s.raise(value, isFloating)
}

func (s *Signal) raise(value uint32, isFloating bool) {
	if s.flags&NOT != 0 {
		if value != 0 {
			value = 0
		} else {
			value = 1
		}
	}
	if s.flags&FILTERED != 0 && s.flags&INIT == 0 && value == s.value {
		return
	}
	s.flags &^= INIT | FLOATING
	if isFloating {
		s.flags |= FLOATING
	}
	for _, h := range s.hooks {
		if h.active {
			continue
		}
		h.active = true
		if h.notify != nil {
			h.notify(value, h.param)
		}
		if h.chain != nil {
			h.chain.raise(value, isFloating)
		}
		h.active = false
	}
	// The stored value updates only after every hook has run, so a notify
	// callback can still compare the value it was passed against the
	// signal's previous state.
	s.value = value
}

// Free detaches the signal from its pool and drops all its hooks. A freed
// signal must not be raised again.
func (s *Signal) Free() {
	s.hooks = nil
	if s.pool != nil {
		s.pool.free(s)
		s.pool = nil
	}
}

// Pool is an appendable sparse array of signals, indexed by name and
// enumerable in index order through Signals. Signals register themselves
// on Init/AllocLike and deregister on Free.
type Pool struct {
	mu      sync.Mutex
	entries []*Signal
	byName  map[string]int
}

// NewPool returns an empty signal pool.
func NewPool() *Pool {
	return &Pool{byName: make(map[string]int)}
}

// Init allocates len(names) contiguous signals starting at baseID,
// registers each under its name, and returns them in order.
func (p *Pool) Init(baseID int, names []string) []*Signal {
	p.mu.Lock()
	defer p.mu.Unlock()

	need := baseID + len(names)
	if need > len(p.entries) {
		grown := make([]*Signal, need)
		copy(grown, p.entries)
		p.entries = grown
	}
	out := make([]*Signal, len(names))
	for i, name := range names {
		s := &Signal{pool: p, index: baseID + i, name: name, flags: INIT}
		p.entries[baseID+i] = s
		if name != "" {
			p.byName[name] = baseID + i
		}
		out[i] = s
	}
	return out
}

// AllocLike is the heap-owned counterpart to Init: it allocates one
// additional signal appended at the end of the pool rather than at a
// caller-chosen contiguous base, the way the VCD sink allocates one
// tracing signal per traced wire as it discovers them.
func (p *Pool) AllocLike(name string) *Signal {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := &Signal{pool: p, index: len(p.entries), name: name, flags: INIT}
	p.entries = append(p.entries, s)
	if name != "" {
		p.byName[name] = s.index
	}
	return s
}

// ByName looks up a live signal by its registered name.
func (p *Pool) ByName(name string) (*Signal, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx, ok := p.byName[name]
	if !ok {
		return nil, false
	}
	return p.entries[idx], true
}

// ByIndex looks up a live signal by slot index.
func (p *Pool) ByIndex(i int) (*Signal, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if i < 0 || i >= len(p.entries) || p.entries[i] == nil {
		return nil, false
	}
	return p.entries[i], true
}

// Signals returns a snapshot of every currently live signal, ordered by
// index ascending.
func (p *Pool) Signals() []*Signal {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]*Signal, 0, len(p.entries))
	for _, s := range p.entries {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (p *Pool) free(s *Signal) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if s.index >= 0 && s.index < len(p.entries) && p.entries[s.index] == s {
		p.entries[s.index] = nil
	}
	if s.name != "" {
		if idx, ok := p.byName[s.name]; ok && idx == s.index {
			delete(p.byName, s.name)
		}
	}
}
