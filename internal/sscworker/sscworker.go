// Package sscworker runs the single host-I/O goroutine shared by every
// Super Serial Card. The CPU thread never blocks on host I/O: it talks
// to the worker through a command ring plus per-card rx/tx byte rings,
// and wakes it through one end of a socketpair. The worker multiplexes
// all active cards' file descriptors with poll(2) under a 1 ms timeout.
package sscworker

import (
	"log"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/mii-emu/miigo/internal/ring"
)

// Port states, advanced by both the card (Init/Start/Stop) and the
// worker (Running/Stopped).
const (
	StateInit int32 = iota
	StateStart
	StateRunning
	StateStop
	StateStopped
)

const (
	cmdStart = iota
	cmdStop
	cmdTerminate

	// FIFODepth matches the 6551's effective buffering; deliberately
	// tiny so guest flow control is exercised.
	FIFODepth = 16

	cmdDepth = 8
)

// Port is the shared endpoint state between one card and the worker.
// The rings are SPSC: the worker produces rx and consumes tx; the CPU
// thread does the opposite.
type Port struct {
	Name string
	RX   *ring.Ring[byte]
	TX   *ring.Ring[byte]

	fd    atomic.Int32
	state atomic.Int32
}

// NewPort allocates a port with its byte rings; the fd is attached
// later, when the card opens its endpoint.
func NewPort(name string) *Port {
	p := &Port{
		Name: name,
		RX:   ring.NewRing[byte](FIFODepth),
		TX:   ring.NewRing[byte](FIFODepth),
	}
	p.fd.Store(-1)
	return p
}

// SetFd attaches the host file descriptor.
func (p *Port) SetFd(fd int) { p.fd.Store(int32(fd)) }

// Fd returns the current descriptor, -1 when closed or invalid.
func (p *Port) Fd() int { return int(p.fd.Load()) }

// State returns the port's lifecycle state.
func (p *Port) State() int32 { return p.state.Load() }

// SetState is used by the card side for Init/Start/Stop transitions.
func (p *Port) SetState(s int32) { p.state.Store(s) }

type command struct {
	kind int
	port *Port
}

// Worker owns the I/O goroutine. The zero value is not usable; call
// New.
type Worker struct {
	mu      sync.Mutex
	cmds    *ring.Ring[command]
	signal  [2]int // socketpair; [1] is the CPU side, [0] the worker side
	started bool
	done    chan struct{}
}

func New() *Worker {
	return &Worker{
		cmds: ring.NewRing[command](cmdDepth),
	}
}

// Start adds the port to the worker's active set, spawning the
// goroutine on first use. The port's fd must already be open.
func (w *Worker) Start(p *Port) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.started {
		fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
		if err != nil {
			return err
		}
		w.signal = fds
		unix.SetNonblock(fds[0], true)
		w.done = make(chan struct{})
		w.started = true
		go w.loop()
	}
	p.SetState(StateStart)
	w.cmds.Write(command{kind: cmdStart, port: p})
	w.wakeLocked()
	return nil
}

// Stop removes the port, closes its fd and waits for the worker to
// acknowledge. When the last port leaves, the worker terminates and
// joins.
func (w *Worker) Stop(p *Port) {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		p.SetState(StateStopped)
		return
	}
	p.SetState(StateStop)
	w.cmds.Write(command{kind: cmdStop, port: p})
	w.wakeLocked()
	w.mu.Unlock()
	for p.State() != StateStopped {
		time.Sleep(time.Millisecond)
	}
}

// Terminate shuts the goroutine down regardless of remaining ports.
func (w *Worker) Terminate() {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return
	}
	w.cmds.Write(command{kind: cmdTerminate})
	w.wakeLocked()
	done := w.done
	w.mu.Unlock()
	<-done
}

// Wake kicks the worker out of its poll, e.g. after the CPU thread
// refills tx or frees rx space.
func (w *Worker) Wake() {
	w.mu.Lock()
	w.wakeLocked()
	w.mu.Unlock()
}

func (w *Worker) wakeLocked() {
	if w.started {
		b := []byte{0x55}
		unix.Write(w.signal[1], b)
	}
}

func (w *Worker) finish(active []*Port) {
	w.mu.Lock()
	// Commands that raced the shutdown would otherwise strand their
	// ports in Start/Stop limbo.
	for {
		cmd, ok := w.cmds.Read()
		if !ok {
			break
		}
		switch cmd.kind {
		case cmdStart:
			cmd.port.SetState(StateInit)
		case cmdStop:
			cmd.port.SetState(StateStopped)
		}
	}
	unix.Close(w.signal[0])
	unix.Close(w.signal[1])
	w.started = false
	close(w.done)
	w.mu.Unlock()
	for _, p := range active {
		p.SetState(StateStopped)
	}
}

// loop is the worker goroutine body.
func (w *Worker) loop() {
	var active []*Port
	defer func() { w.finish(active) }()

	remove := func(p *Port) {
		for i, cur := range active {
			if cur == p {
				active = append(active[:i], active[i+1:]...)
				break
			}
		}
		if fd := p.Fd(); fd >= 0 {
			p.SetFd(-1)
			unix.Close(fd)
		}
	}

	for {
		for {
			cmd, ok := w.cmds.Read()
			if !ok {
				break
			}
			switch cmd.kind {
			case cmdStart:
				active = append(active, cmd.port)
				cmd.port.SetState(StateRunning)
			case cmdStop:
				remove(cmd.port)
				if len(active) == 0 {
					// finish marks the last port Stopped once the worker
					// is down, so Stop returns only after the shutdown.
					active = append(active, cmd.port)
					return
				}
				cmd.port.SetState(StateStopped)
			case cmdTerminate:
				return
			}
		}

		fds := make([]unix.PollFd, 1, 1+len(active))
		fds[0] = unix.PollFd{Fd: int32(w.signal[0]), Events: unix.POLLIN}
		idx := make([]*Port, 1, 1+len(active))
		for _, p := range active {
			fd := p.Fd()
			if fd < 0 {
				continue
			}
			var ev int16
			if !p.RX.Full() {
				ev |= unix.POLLIN
			}
			if !p.TX.Empty() {
				ev |= unix.POLLOUT
			}
			if ev == 0 {
				continue
			}
			fds = append(fds, unix.PollFd{Fd: int32(fd), Events: ev})
			idx = append(idx, p)
		}

		n, err := unix.Poll(fds, 1)
		if err != nil {
			if err == unix.EINTR || err == unix.EAGAIN {
				continue
			}
			log.Printf("ssc worker: poll: %v", err)
			return
		}
		if n == 0 {
			continue
		}
		if fds[0].Revents&unix.POLLIN != 0 {
			var b [8]byte
			unix.Read(w.signal[0], b[:])
		}
		for i := 1; i < len(fds); i++ {
			p := idx[i]
			rev := fds[i].Revents
			if rev == 0 {
				continue
			}
			if rev&unix.POLLIN != 0 {
				w.readInto(p)
			}
			if rev&unix.POLLOUT != 0 {
				w.writeFrom(p)
			}
			if rev&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 && rev&unix.POLLIN == 0 {
				w.fail(p, unix.EIO)
			}
		}
	}
}

// readInto performs one bounded non-blocking read, limited by the rx
// ring's free space, copying through a stack buffer so the ring's bulk
// write stays simple.
func (w *Worker) readInto(p *Port) {
	fd := p.Fd()
	if fd < 0 {
		return
	}
	var buf [FIFODepth]byte
	free := p.RX.Cap() - p.RX.Len()
	if free <= 0 {
		return
	}
	n, err := unix.Read(fd, buf[:free])
	if err != nil {
		if err == unix.EINTR || err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return
		}
		w.fail(p, err)
		return
	}
	if n == 0 { // EOF: peer closed
		w.fail(p, unix.EPIPE)
		return
	}
	p.RX.BulkWrite(buf[:n])
}

// writeFrom peeks the tx ring into a stack buffer, writes what the
// host accepts and only then consumes that many bytes from the ring.
func (w *Worker) writeFrom(p *Port) {
	fd := p.Fd()
	if fd < 0 {
		return
	}
	var buf [FIFODepth]byte
	pending := p.TX.Len()
	for i := 0; i < pending; i++ {
		buf[i], _ = p.TX.PeekAt(i)
	}
	if pending == 0 {
		return
	}
	n, err := unix.Write(fd, buf[:pending])
	if err != nil {
		if err == unix.EINTR || err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return
		}
		w.fail(p, err)
		return
	}
	var sink [FIFODepth]byte
	p.TX.BulkRead(sink[:n])
}

// fail closes the port's fd and drops it back to Init; the card notices
// on its next status poll and requires a fresh DTR assertion to reopen.
func (w *Worker) fail(p *Port, err error) {
	log.Printf("ssc worker: %s: host i/o error: %v", p.Name, err)
	if fd := p.Fd(); fd >= 0 {
		p.SetFd(-1)
		unix.Close(fd)
	}
	p.SetState(StateInit)
}
