package vcd

import (
	"bufio"
	"os"
	"strings"
	"testing"

	"github.com/mii-emu/miigo/internal/signal"
)

func TestStartWritesHeaderAndInitialDumpvars(t *testing.T) {
	pool := signal.NewPool()
	sigs := pool.Init(0, []string{"A"})
	a := sigs[0]

	path := tempVCDPath(t)
	sink := NewSink(pool, path, 70) // ~70ns/cycle at 14.318MHz-ish scale
	if err := sink.AddSignal(a, 1, "A"); err != nil {
		t.Fatalf("AddSignal: %v", err)
	}
	if err := sink.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	sink.Stop()

	lines := readLines(t, path)
	mustContain(t, lines, "$timescale 10ns $end")
	mustContain(t, lines, "$var wire 1 ! A $end")
	mustContain(t, lines, "$dumpvars")
	mustContain(t, lines, "x!") // floating initial value, single-bit signal
}

func TestScenarioS4_SameBucketTieBreak(t *testing.T) {
	pool := signal.NewPool()
	sigs := pool.Init(0, []string{"A", "B"})
	a, b := sigs[0], sigs[1]

	path := tempVCDPath(t)
	sink := NewSink(pool, path, 10) // 10 ns/cycle: one 10ns bucket per cycle, so cycle 100 is #100
	if err := sink.AddSignal(a, 1, "A"); err != nil {
		t.Fatalf("AddSignal A: %v", err)
	}
	if err := sink.AddSignal(b, 1, "B"); err != nil {
		t.Fatalf("AddSignal B: %v", err)
	}
	if err := sink.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	sink.SetCycle(100)
	a.Raise(1)
	b.Raise(1)
	a.Raise(0)
	sink.Stop()

	lines := readLines(t, path)
	var timestamps []string
	var order []string // timestamp headers and value changes, in file order
	for _, l := range lines {
		if strings.HasPrefix(l, "#") {
			timestamps = append(timestamps, l)
			order = append(order, l)
		}
		switch l {
		case "1!", "0!", "1\"", "0\"":
			order = append(order, l)
		}
	}
	// The nudge is scoped to the signal that repeats: B's raise shares
	// A's #100 bucket, only A's second transition moves to #101.
	if len(timestamps) != 2 {
		t.Fatalf("got %d timestamps after the header, want 2: %v", len(timestamps), timestamps)
	}
	if timestamps[0] != "#100" {
		t.Fatalf("first timestamp = %s, want #100", timestamps[0])
	}
	if timestamps[1] != "#101" {
		t.Fatalf("A's second raise in the same bucket should be nudged forward: got %s, want #101", timestamps[1])
	}
	want := []string{"#100", "1!", "1\"", "#101", "0!"}
	if len(order) != len(want) {
		t.Fatalf("change sequence = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("change sequence = %v, want %v", order, want)
		}
	}
}

func TestAddSignalRejectsBeyondCapacity(t *testing.T) {
	pool := signal.NewPool()
	path := tempVCDPath(t)
	sink := NewSink(pool, path, 70)

	for i := 0; i < maxSignals; i++ {
		s := pool.AllocLike("")
		if err := sink.AddSignal(s, 1, "sig"); err != nil {
			t.Fatalf("AddSignal #%d: unexpected error: %v", i, err)
		}
	}
	extra := pool.AllocLike("")
	if err := sink.AddSignal(extra, 1, "overflow"); err == nil {
		t.Fatalf("AddSignal past capacity should fail")
	}
}

func TestStartFailureLeavesRingDiscarding(t *testing.T) {
	pool := signal.NewPool()
	sigs := pool.Init(0, []string{"A"})
	a := sigs[0]

	sink := NewSink(pool, "/nonexistent-dir/out.vcd", 70)
	if err := sink.AddSignal(a, 1, "A"); err != nil {
		t.Fatalf("AddSignal: %v", err)
	}
	if err := sink.Start(); err == nil {
		t.Fatalf("Start against an unopenable path should fail")
	}
	// With no output open, raises must not panic or block.
	a.Raise(1)
	a.Raise(0)
}

func tempVCDPath(t *testing.T) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "trace-*.vcd")
	if err != nil {
		t.Fatalf("CreateTemp: %v", err)
	}
	f.Close()
	return f.Name()
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Open %s: %v", path, err)
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	return lines
}

func mustContain(t *testing.T, lines []string, want string) {
	t.Helper()
	for _, l := range lines {
		if strings.Contains(l, want) {
			return
		}
	}
	t.Fatalf("output did not contain %q", want)
}
