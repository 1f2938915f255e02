package audio

import (
	"encoding/binary"
	"math"
	"sync"

	"github.com/ebitengine/oto/v3"
)

// OtoDriver drives the host sound device through ebitengine/oto. Oto
// pulls interleaved little-endian float32 frames through io.Reader;
// we bridge that to the sink's pull callback.
type OtoDriver struct {
	ctx    *oto.Context
	player *oto.Player

	mu        sync.Mutex
	pull      func([]float32)
	sampleBuf []float32
	started   bool
}

// NewOtoDriver opens the default output device for interleaved stereo
// float32 at sampleRate.
func NewOtoDriver(sampleRate int) (*OtoDriver, error) {
	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: Channels,
		Format:       oto.FormatFloat32LE,
	}
	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, err
	}
	<-ready
	return &OtoDriver{ctx: ctx}, nil
}

func (d *OtoDriver) Start(pull func(out []float32)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return nil
	}
	d.pull = pull
	d.player = d.ctx.NewPlayer(d)
	d.player.Play()
	d.started = true
	return nil
}

// Read is oto's pull path: one call per hardware block.
func (d *OtoDriver) Read(p []byte) (int, error) {
	d.mu.Lock()
	pull := d.pull
	n := len(p) / 4
	if len(d.sampleBuf) < n {
		d.sampleBuf = make([]float32, n)
	}
	samples := d.sampleBuf[:n]
	d.mu.Unlock()

	if pull == nil {
		for i := range p {
			p[i] = 0
		}
		return len(p), nil
	}
	pull(samples)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(p[i*4:], math.Float32bits(s))
	}
	return n * 4, nil
}

func (d *OtoDriver) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started && d.player != nil {
		d.player.Pause()
		d.started = false
	}
}

func (d *OtoDriver) Close() {
	d.Stop()
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.player != nil {
		d.player.Close()
		d.player = nil
	}
}

// SilentDriver discards everything; used by tests (--audio-off runs the
// sink with no driver at all). The
// sink still mixes when Pull is invoked manually, which lets tests
// drive the pull path deterministically.
type SilentDriver struct {
	mu   sync.Mutex
	pull func([]float32)
}

func (d *SilentDriver) Start(pull func(out []float32)) error {
	d.mu.Lock()
	d.pull = pull
	d.mu.Unlock()
	return nil
}

func (d *SilentDriver) Stop() {
	d.mu.Lock()
	d.pull = nil
	d.mu.Unlock()
}

func (d *SilentDriver) Close() { d.Stop() }

// Pull runs one synchronous pull of n samples, returning the mixed
// block, or nil when stopped.
func (d *SilentDriver) Pull(n int) []float32 {
	d.mu.Lock()
	pull := d.pull
	d.mu.Unlock()
	if pull == nil {
		return nil
	}
	out := make([]float32, n)
	pull(out)
	return out
}
