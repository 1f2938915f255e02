package ssc

import (
	"fmt"
	"os"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"
)

// EndpointKind selects how the card reaches the host side.
type EndpointKind int

const (
	KindDevice EndpointKind = iota
	KindPTY
	KindSocket
)

// Config is the card's host-endpoint configuration.
type Config struct {
	Kind       EndpointKind
	Device     string // path for KindDevice
	SocketPort int    // localhost port for KindSocket
	Baud       int
	Bits       int // control-nibble encoding: 0=8,1=7,2=6,3=5
	Parity     int // 0=none, 1=odd, 2=even, 3=mark/space
	Stop       int // 0=one, 1=two
	Handshake  bool
}

// DefaultConfig mirrors the card's DIP switch factory position.
func DefaultConfig() Config {
	return Config{
		Kind:   KindDevice,
		Device: "/dev/tnt0",
		Baud:   9600,
		Bits:   0,
		Parity: 0,
		Stop:   0,
	}
}

// endpoint is an open host connection. ptyMaster keeps the *os.File
// alive for pty endpoints so the fd isn't finalized under us.
type endpoint struct {
	fd        int
	path      string // slave path for ptys, as displayed to the user
	ptyMaster *os.File
	ptySlave  *os.File
	isTTY     bool
}

// open establishes the host connection per the configured kind.
func (cfg *Config) open() (*endpoint, error) {
	switch cfg.Kind {
	case KindPTY:
		master, slave, err := pty.Open()
		if err != nil {
			return nil, fmt.Errorf("ssc: openpty: %w", err)
		}
		// The worker owns (and eventually closes) the descriptor it
		// polls, so hand it a dup and keep the master File for our own
		// lifetime management.
		fd, err := unix.Dup(int(master.Fd()))
		if err != nil {
			master.Close()
			slave.Close()
			return nil, fmt.Errorf("ssc: dup pty: %w", err)
		}
		unix.SetNonblock(fd, true)
		return &endpoint{
			fd:        fd,
			path:      slave.Name(),
			ptyMaster: master,
			ptySlave:  slave,
			isTTY:     true,
		}, nil
	case KindSocket:
		fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
		if err != nil {
			return nil, fmt.Errorf("ssc: socket: %w", err)
		}
		addr := &unix.SockaddrInet4{Port: cfg.SocketPort, Addr: [4]byte{127, 0, 0, 1}}
		if err := unix.Connect(fd, addr); err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("ssc: connect localhost:%d: %w", cfg.SocketPort, err)
		}
		unix.SetNonblock(fd, true)
		return &endpoint{
			fd:    fd,
			path:  fmt.Sprintf("localhost:%d", cfg.SocketPort),
			isTTY: false,
		}, nil
	default:
		fd, err := unix.Open(cfg.Device, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK, 0)
		if err != nil {
			return nil, fmt.Errorf("ssc: open %s: %w", cfg.Device, err)
		}
		return &endpoint{fd: fd, path: cfg.Device, isTTY: true}, nil
	}
}

// close releases whatever the card still owns. Callers that handed the
// descriptor to the worker (which closes it itself) must set fd to -1
// first.
func (e *endpoint) close() {
	if e.fd >= 0 {
		unix.Close(e.fd)
		e.fd = -1
	}
	if e.ptySlave != nil {
		e.ptySlave.Close()
		e.ptySlave = nil
	}
	if e.ptyMaster != nil {
		e.ptyMaster.Close()
		e.ptyMaster = nil
	}
}

// applyTermios puts the line in raw mode and programs
// baud/bits/stop/parity/handshake. Harmless on non-tty endpoints.
func (e *endpoint) applyTermios(baudNibble int, bits, parity, stop int, handshake bool) error {
	if !e.isTTY {
		return nil
	}
	tio, err := unix.IoctlGetTermios(e.fd, unix.TCGETS)
	if err != nil {
		return err
	}
	// cfmakeraw
	tio.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP |
		unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	tio.Oflag &^= unix.OPOST
	tio.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	tio.Cflag &^= unix.CSIZE | unix.PARENB | unix.PARODD | unix.CSTOPB
	tio.Cc[unix.VMIN] = 1
	tio.Cc[unix.VTIME] = 0

	if flag := baudFlag[baudNibble&0xf]; flag != 0 {
		tio.Cflag = tio.Cflag&^unix.CBAUD | flag
		tio.Ispeed = flag
		tio.Ospeed = flag
	}
	tio.Cflag |= bitsFlag[bits&3]
	tio.Cflag |= stopFlag[stop&1]
	tio.Cflag |= parityFlag[parity&3]
	if handshake {
		tio.Cflag |= unix.CRTSCTS
	} else {
		tio.Cflag &^= unix.CRTSCTS
	}
	return unix.IoctlSetTermios(e.fd, unix.TCSETS, tio)
}

// setModemLines drives DTR and RTS on real serial devices; ptys and
// sockets have no modem lines and ignore the request.
func (e *endpoint) setModemLines(dtr, rts bool) {
	if !e.isTTY || e.ptyMaster != nil {
		return
	}
	status, err := unix.IoctlGetInt(e.fd, unix.TIOCMGET)
	if err != nil {
		return
	}
	if dtr {
		status |= unix.TIOCM_DTR
	} else {
		status &^= unix.TIOCM_DTR
	}
	if rts {
		status |= unix.TIOCM_RTS
	} else {
		status &^= unix.TIOCM_RTS
	}
	unix.IoctlSetPointerInt(e.fd, unix.TIOCMSET, status)
}
