package sscworker

import (
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

// hostPair gives the worker one end of a socketpair and the test the
// other, standing in for the card's tty.
func hostPair(t *testing.T) (workerFd, testFd int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatal(err)
	}
	unix.SetNonblock(fds[0], true)
	return fds[0], fds[1]
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestHostToGuestFlowsIntoRX(t *testing.T) {
	w := New()
	wfd, tfd := hostPair(t)
	defer unix.Close(tfd)

	p := NewPort("test")
	p.SetFd(wfd)
	if err := w.Start(p); err != nil {
		t.Fatal(err)
	}
	defer w.Terminate()

	unix.Write(tfd, []byte("HELLO"))
	waitFor(t, "rx bytes", func() bool { return p.RX.Len() >= 5 })
	buf := make([]byte, 5)
	p.RX.BulkRead(buf)
	if string(buf) != "HELLO" {
		t.Fatalf("rx = %q", buf)
	}
}

func TestGuestToHostDrainsTX(t *testing.T) {
	w := New()
	wfd, tfd := hostPair(t)
	defer unix.Close(tfd)

	p := NewPort("test")
	p.SetFd(wfd)
	if err := w.Start(p); err != nil {
		t.Fatal(err)
	}
	defer w.Terminate()

	for _, b := range []byte("WORLD") {
		p.TX.Write(b)
	}
	w.Wake()

	got := make([]byte, 0, 5)
	buf := make([]byte, 8)
	deadline := time.Now().Add(2 * time.Second)
	for len(got) < 5 {
		if time.Now().After(deadline) {
			t.Fatalf("host side received %q", got)
		}
		n, err := unix.Read(tfd, buf)
		if n > 0 {
			got = append(got, buf[:n]...)
		}
		if err != nil && err != unix.EAGAIN {
			t.Fatal(err)
		}
	}
	if string(got) != "WORLD" {
		t.Fatalf("host got %q", got)
	}
	waitFor(t, "tx drained", func() bool { return p.TX.Empty() })
}

func TestRXBoundedByRingCapacity(t *testing.T) {
	w := New()
	wfd, tfd := hostPair(t)
	defer unix.Close(tfd)

	p := NewPort("test")
	p.SetFd(wfd)
	if err := w.Start(p); err != nil {
		t.Fatal(err)
	}
	defer w.Terminate()

	// More than the ring holds: the worker must stop reading at the
	// ring's capacity and pick the rest up after a drain.
	payload := make([]byte, 40)
	for i := range payload {
		payload[i] = byte('a' + i%26)
	}
	unix.Write(tfd, payload)

	waitFor(t, "first fill", func() bool { return p.RX.Len() == p.RX.Cap() })

	var got []byte
	deadline := time.Now().Add(2 * time.Second)
	for len(got) < len(payload) {
		if time.Now().After(deadline) {
			t.Fatalf("received %d of %d bytes", len(got), len(payload))
		}
		buf := make([]byte, 8)
		n := p.RX.BulkRead(buf)
		got = append(got, buf[:n]...)
		w.Wake()
		time.Sleep(time.Millisecond)
	}
	for i := range got {
		if got[i] != payload[i] {
			t.Fatalf("byte %d = %c, want %c", i, got[i], payload[i])
		}
	}
}

func TestHostErrorDropsPortToInit(t *testing.T) {
	w := New()
	wfd, tfd := hostPair(t)

	p := NewPort("test")
	p.SetFd(wfd)
	if err := w.Start(p); err != nil {
		t.Fatal(err)
	}
	defer w.Terminate()

	unix.Close(tfd) // peer vanishes: read returns EOF
	waitFor(t, "port back to init", func() bool { return p.State() == StateInit })
	if p.Fd() != -1 {
		t.Fatalf("failed port keeps fd %d", p.Fd())
	}
}

func TestLastPortLeavingStopsWorker(t *testing.T) {
	w := New()
	wfd, tfd := hostPair(t)
	defer unix.Close(tfd)

	p := NewPort("test")
	p.SetFd(wfd)
	if err := w.Start(p); err != nil {
		t.Fatal(err)
	}
	w.Stop(p)
	if p.State() != StateStopped {
		t.Fatalf("state = %d after stop", p.State())
	}
	// The goroutine exited with the last port; a new Start must spin
	// a fresh one.
	wfd2, tfd2 := hostPair(t)
	defer unix.Close(tfd2)
	p2 := NewPort("second")
	p2.SetFd(wfd2)
	if err := w.Start(p2); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "second port running", func() bool { return p2.State() == StateRunning })
	w.Terminate()
}
