// Package audio implements the sample mixing sink. Each producer (a
// Mockingboard PSG pair, the machine speaker) owns a Source holding a
// lock-free sample ring; the host driver's callback pulls blocks from
// the sink, which drains and mixes every attached source's ring. The
// driver abstraction keeps oto behind an interface so headless runs and
// tests can use a silent driver.
package audio

import (
	"sync"

	"github.com/mii-emu/miigo/internal/ring"
)

const (
	// SampleRate is the host output rate, float32 interleaved stereo.
	SampleRate = 44100
	// Channels is the interleave width (LRLR).
	Channels = 2
	// FrameSize is the per-source ring capacity in samples.
	FrameSize = 4096
)

// State tracks where a source is in its start/stop ramp.
type State uint8

const (
	Idle State = iota
	Starting
	Playing
	Stopping
)

// Driver is the host audio output. Start begins pulling interleaved
// stereo float32 blocks through the callback from the driver's own
// thread; Stop ceases pulls. Close releases the device.
type Driver interface {
	Start(pull func(out []float32)) error
	Stop()
	Close()
}

// Source is one producer of samples. The producing side (CPU thread)
// writes into the ring; the sink drains it from the driver callback.
type Source struct {
	sink     *Sink
	fifo     *ring.Ring[float32]
	state    State
	lastRead int

	mu            sync.Mutex
	volume        float32
	volMultiplier float32
}

// Push appends one sample; it reports false when the ring is full
// (the consumer has stalled or the producer is ahead of real time).
func (s *Source) Push(v float32) bool {
	return s.fifo.Write(v)
}

// PushBlock appends a block, returning the count written.
func (s *Source) PushBlock(v []float32) int {
	return s.fifo.BulkWrite(v)
}

// SetState records the producer-declared state. The sink does not read
// it: Mix treats every attached source alike, with no padding at
// start/stop edges.
func (s *Source) SetState(st State) { s.state = st }

// State returns the producer-declared state.
func (s *Source) State() State { return s.state }

// SetVolume sets the volume on the 0..10 scale and derives the sample
// multiplier. Values outside the scale clamp.
func (s *Source) SetVolume(v float32) {
	if v < 0 {
		v = 0
	} else if v > 10 {
		v = 10
	}
	s.mu.Lock()
	s.volume = v
	s.volMultiplier = v / 10
	s.mu.Unlock()
}

// Volume returns the 0..10 volume.
func (s *Source) Volume() float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.volume
}

func (s *Source) multiplier() float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.volMultiplier
}

// Pending returns the number of buffered samples.
func (s *Source) Pending() int { return s.fifo.Len() }

// Sink mixes all attached sources into the host driver's pull buffer.
type Sink struct {
	mu      sync.Mutex
	sources []*Source
	drv     Driver
	muted   bool
	started bool

	// scratch is reused across pulls to drain source rings.
	scratch []float32
}

func NewSink(drv Driver) *Sink {
	return &Sink{
		drv:     drv,
		scratch: make([]float32, FrameSize),
	}
}

// AddSource attaches a new source and returns it. Safe to call while
// the driver is running.
func (k *Sink) AddSource() *Source {
	s := &Source{
		sink:          k,
		fifo:          ring.NewRing[float32](FrameSize),
		volume:        10,
		volMultiplier: 1,
	}
	k.mu.Lock()
	k.sources = append(k.sources, s)
	k.mu.Unlock()
	return s
}

// RemoveSource detaches a source; its remaining samples are dropped.
func (k *Sink) RemoveSource(s *Source) {
	k.mu.Lock()
	defer k.mu.Unlock()
	for i, cur := range k.sources {
		if cur == s {
			k.sources = append(k.sources[:i], k.sources[i+1:]...)
			s.sink = nil
			return
		}
	}
}

// SetMuted silences the mix without touching per-source volumes.
func (k *Sink) SetMuted(m bool) {
	k.mu.Lock()
	k.muted = m
	k.mu.Unlock()
}

// Muted reports the mute flag.
func (k *Sink) Muted() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.muted
}

// Start begins host playback. With a nil driver (audio disabled) it is
// a no-op; producers keep writing and their rings simply saturate.
func (k *Sink) Start() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.drv == nil || k.started {
		return nil
	}
	if err := k.drv.Start(k.Mix); err != nil {
		return err
	}
	k.started = true
	return nil
}

// Stop ceases playback; Close releases the device.
func (k *Sink) Stop() {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.drv != nil && k.started {
		k.drv.Stop()
		k.started = false
	}
}

func (k *Sink) Close() {
	k.Stop()
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.drv != nil {
		k.drv.Close()
		k.drv = nil
	}
}

// Mix fills out with the sum of every source's pending samples, scaled
// by their volume multipliers. Sources short of samples contribute what
// they have and silence for the rest; that underrun is visible to the
// producer through its advancing lastRead cursor. Called from the
// driver's pull thread.
func (k *Sink) Mix(out []float32) {
	for i := range out {
		out[i] = 0
	}
	k.mu.Lock()
	muted := k.muted
	sources := k.sources
	if len(k.scratch) < len(out) {
		k.scratch = make([]float32, len(out))
	}
	scratch := k.scratch
	k.mu.Unlock()

	for _, s := range sources {
		n := s.fifo.BulkRead(scratch[:len(out)])
		s.lastRead += n
		if muted {
			continue
		}
		mult := s.multiplier()
		for i := 0; i < n; i++ {
			out[i] += scratch[i] * mult
		}
	}
}
