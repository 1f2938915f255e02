package audio

import (
	"sync"
	"testing"
)

func TestMixSumsSourcesWithVolume(t *testing.T) {
	drv := &SilentDriver{}
	k := NewSink(drv)
	if err := k.Start(); err != nil {
		t.Fatal(err)
	}

	a := k.AddSource()
	b := k.AddSource()
	b.SetVolume(5) // half

	for i := 0; i < 4; i++ {
		a.Push(0.5)
		b.Push(0.4)
	}
	out := drv.Pull(4)
	for i, s := range out {
		want := float32(0.5) + 0.4*0.5
		if diff := s - want; diff > 1e-6 || diff < -1e-6 {
			t.Fatalf("sample %d = %v, want %v", i, s, want)
		}
	}
}

func TestMixUnderrunPadsWithSilence(t *testing.T) {
	drv := &SilentDriver{}
	k := NewSink(drv)
	k.Start()
	s := k.AddSource()
	s.Push(1.0)
	out := drv.Pull(4)
	if out[0] != 1.0 {
		t.Fatalf("sample 0 = %v, want 1.0", out[0])
	}
	for i := 1; i < 4; i++ {
		if out[i] != 0 {
			t.Fatalf("underrun sample %d = %v, want 0", i, out[i])
		}
	}
}

func TestMuteSilencesWithoutTouchingVolume(t *testing.T) {
	drv := &SilentDriver{}
	k := NewSink(drv)
	k.Start()
	s := k.AddSource()
	s.SetVolume(8)
	k.SetMuted(true)
	s.Push(1.0)
	out := drv.Pull(1)
	if out[0] != 0 {
		t.Fatalf("muted output = %v", out[0])
	}
	if s.Volume() != 8 {
		t.Fatalf("mute changed volume: %v", s.Volume())
	}
	// Muted pulls still drain the ring so producers don't stall.
	if s.Pending() != 0 {
		t.Fatalf("muted pull left %d samples buffered", s.Pending())
	}
}

func TestRemoveSourceDetaches(t *testing.T) {
	drv := &SilentDriver{}
	k := NewSink(drv)
	k.Start()
	s := k.AddSource()
	s.Push(1.0)
	k.RemoveSource(s)
	out := drv.Pull(1)
	if out[0] != 0 {
		t.Fatalf("removed source still mixed: %v", out[0])
	}
}

func TestVolumeClamps(t *testing.T) {
	k := NewSink(nil)
	s := k.AddSource()
	s.SetVolume(42)
	if s.Volume() != 10 {
		t.Fatalf("volume = %v, want clamp to 10", s.Volume())
	}
	s.SetVolume(-1)
	if s.Volume() != 0 {
		t.Fatalf("volume = %v, want clamp to 0", s.Volume())
	}
}

func TestNilDriverSinkIsInert(t *testing.T) {
	k := NewSink(nil)
	if err := k.Start(); err != nil {
		t.Fatalf("nil-driver start: %v", err)
	}
	s := k.AddSource()
	for i := 0; i < FrameSize*2; i++ {
		s.Push(0.1) // ring saturates, must not block or panic
	}
	k.Close()
}

func TestConcurrentProducerAndPuller(t *testing.T) {
	drv := &SilentDriver{}
	k := NewSink(drv)
	k.Start()
	s := k.AddSource()

	const total = 100000
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		pushed := 0
		for pushed < total {
			if s.Push(float32(pushed%255 + 1)) {
				pushed++
			}
		}
	}()
	got := 0
	for got < total {
		out := drv.Pull(256)
		for _, v := range out {
			if v != 0 {
				got++
			}
		}
		_ = out
	}
	wg.Wait()
}
