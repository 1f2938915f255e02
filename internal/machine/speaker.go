package machine

import (
	"github.com/mii-emu/miigo/internal/audio"
	"github.com/mii-emu/miigo/internal/clock"
)

// speakerState turns $C030 toggles into samples. The cone has two
// positions; every toggle first renders the elapsed interval at the
// old level, so click timing lands on the right sample.
type speakerState struct {
	source *audio.Source
	level  float32
	last   uint64 // cycle the sample stream has been rendered up to

	cyclesPerSample float64
	frac            float64 // fractional sample carry between flushes
}

const speakerLevel = 0.25

func newSpeaker(snd *audio.Sink) *speakerState {
	s := &speakerState{
		source:          snd.AddSource(),
		level:           -speakerLevel,
		cyclesPerSample: float64(clock.PhiHz) / audio.SampleRate,
	}
	s.source.SetState(audio.Playing)
	return s
}

func (s *speakerState) toggle(now uint64) {
	s.flushTo(now)
	s.level = -s.level
}

// flushTo renders the current level for every sample position between
// the last flush and now. Stereo interleave: the speaker is mono,
// written to both channels.
func (s *speakerState) flushTo(now uint64) {
	if now <= s.last {
		return
	}
	span := float64(now-s.last) + s.frac
	n := int(span / s.cyclesPerSample)
	s.frac = span - float64(n)*s.cyclesPerSample
	s.last = now
	for i := 0; i < n; i++ {
		if !s.source.Push(s.level) || !s.source.Push(s.level) {
			// Ring saturated: the consumer stalled, drop the rest.
			return
		}
	}
}
