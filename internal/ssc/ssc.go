// Package ssc implements the Super Serial Card: a 6551 ACIA register
// model in front of two 16-byte rx/tx rings serviced by the shared host
// I/O worker. The CPU thread only ever touches the rings and the
// registers; opening, polling and blocking I/O on the host endpoint
// (serial device, pty or socket) belong to the worker goroutine.
package ssc

import (
	"fmt"
	"log"
	"strconv"

	"github.com/mii-emu/miigo/internal/clock"
	"github.com/mii-emu/miigo/internal/slot"
	"github.com/mii-emu/miigo/internal/sscworker"
)

// 6551 status register bits.
const (
	StatusParityErr  = 1 << 0
	StatusFramingErr = 1 << 1
	StatusOverrun    = 1 << 2
	StatusRXFull     = 1 << 3
	StatusTXEmpty    = 1 << 4
	StatusDCD        = 1 << 5
	StatusDSR        = 1 << 6
	StatusIRQ        = 1 << 7

	// StatusReset is the status value after a soft reset.
	StatusReset = StatusTXEmpty
)

// 6551 command register bits. The RX IRQ disable sits at bit 4 so the
// reset value below reads back as "RX IRQ disabled, receiver off";
// echo takes bit 1 in exchange.
const (
	CmdDTR         = 1 << 0 // 1 = receiver enabled
	CmdEcho        = 1 << 1
	CmdIRQTShift   = 2      // two-bit TX-IRQ/RTS/BRK field
	CmdIRQRDisable = 1 << 4 // 1 = RX IRQ disabled
	CmdParityShift = 5

	// CommandReset is the command value installed by a soft reset: RX
	// IRQ disabled, receiver off.
	CommandReset = 0x10
)

// DIP switch bank 2 bits.
const (
	sw2IRQEnable = 1 << 0
	sw2DataBits  = 1 << 6
	sw2StopBits  = 1 << 7
)

const defaultTimerDelay = 11520

// Card is one mounted SSC.
type Card struct {
	host   slot.Host
	slot   *slot.Slot
	irq    slot.IRQ
	worker *sscworker.Worker
	port   *sscworker.Port

	conf Config
	ep   *endpoint

	timerID    uint8
	timerDelay uint64

	dipsw1, dipsw2 byte
	control        byte
	command        byte
	status         byte

	totalRX, totalTX uint32
	humanConfig      string
}

// Register installs the ssc driver, bound to the given worker. All
// cards share one worker; the machine owns its lifetime.
func Register(w *sscworker.Worker) {
	slot.RegisterDriver(&slot.Driver{
		Name: "ssc",
		Desc: "Super Serial card",
		Init: func(h slot.Host, s *slot.Slot, opts map[string]string) (slot.Card, error) {
			return newCard(h, s, w, opts)
		},
	})
}

func newCard(h slot.Host, s *slot.Slot, w *sscworker.Worker, opts map[string]string) (*Card, error) {
	conf, err := parseOpts(opts)
	if err != nil {
		return nil, err
	}
	c := &Card{
		host:   h,
		slot:   s,
		irq:    h.RegisterIRQ(fmt.Sprintf("ssc%d", s.ID)),
		worker: w,
		port:   sscworker.NewPort(fmt.Sprintf("ssc%d", s.ID)),
		conf:   conf,

		// Factory DIP position: communication mode, 9600 baud; IRQs
		// wired so guest programs that probe the switches use them.
		dipsw1:     0x80 | 14,
		dipsw2:     sw2IRQEnable,
		command:    CommandReset,
		status:     StatusReset,
		timerDelay: defaultTimerDelay,
	}
	c.timerID = clock.None
	return c, nil
}

func parseOpts(opts map[string]string) (Config, error) {
	conf := DefaultConfig()
	for k, v := range opts {
		switch k {
		case "device", "tty":
			conf.Kind = KindDevice
			conf.Device = v
		case "pty":
			conf.Kind = KindPTY
		case "port", "socket":
			p, err := strconv.Atoi(v)
			if err != nil || p <= 0 || p > 0xffff {
				return conf, fmt.Errorf("ssc: invalid socket port %q", v)
			}
			conf.Kind = KindSocket
			conf.SocketPort = p
		case "baud":
			b, err := strconv.Atoi(v)
			if err != nil {
				return conf, fmt.Errorf("ssc: invalid baud %q", v)
			}
			if _, err := baudIndex(b); err != nil {
				return conf, err
			}
			conf.Baud = b
		default:
			return conf, fmt.Errorf("ssc: unknown option %q", k)
		}
	}
	return conf, nil
}

// start opens the host endpoint and hands it to the worker; called on
// the first DTR assertion.
func (c *Card) start() {
	if c.port.State() == sscworker.StateRunning {
		return
	}
	if c.ep != nil {
		// A previous endpoint the worker abandoned; its fd is gone
		// once the port shows -1.
		if c.port.Fd() < 0 {
			c.ep.fd = -1
		}
		c.ep.close()
		c.ep = nil
	}
	ep, err := c.conf.open()
	if err != nil {
		log.Printf("ssc%d: %v", c.slot.ID, err)
		return
	}
	nib, err := baudIndex(c.conf.Baud)
	if err != nil {
		nib = 14 // 9600
	}
	if err := ep.applyTermios(nib, c.conf.Bits, c.conf.Parity, c.conf.Stop, c.conf.Handshake); err != nil {
		log.Printf("ssc%d: termios: %v", c.slot.ID, err)
	}
	c.dipsw1 = 0x80 | byte(nib)
	c.humanConfig = fmt.Sprintf("%s baud:%d %d%c%d", ep.path, c.conf.Baud,
		bitsCount[c.conf.Bits&3], "noeb"[c.conf.Parity&3], c.conf.Stop+1)
	c.ep = ep
	c.port.RX.Reset()
	c.port.TX.Reset()
	c.port.SetFd(ep.fd)
	if err := c.worker.Start(c.port); err != nil {
		log.Printf("ssc%d: worker: %v", c.slot.ID, err)
		c.port.SetFd(-1)
		ep.close()
		c.ep = nil
		return
	}
	if c.timerID == clock.None {
		c.timerID = c.host.Clock().Register(c.statusPoll, nil, c.timerDelay,
			fmt.Sprintf("ssc%d", c.slot.ID))
	} else {
		c.host.Clock().Set(c.timerID, c.statusPoll, c.timerDelay)
	}
}

// statusPoll is the cyclic timer that mirrors ring occupancy into the
// status register and arbitrates the IRQ line. Deliberately decoupled
// from exact character pacing: it only has to run often enough not to
// miss data.
func (c *Card) statusPoll(any) uint64 {
	if c.port.State() != sscworker.StateRunning {
		c.timerID = clock.None
		return 0
	}
	rxFull := !c.port.RX.Empty()
	txEmpty := !c.port.TX.Full()
	c.status &^= StatusRXFull | StatusTXEmpty
	if rxFull {
		c.status |= StatusRXFull
	}
	if txEmpty {
		c.status |= StatusTXEmpty
	}
	irq := false
	if rxFull && c.rxIRQEnabled() {
		irq = true
	}
	if !irq && txEmpty && c.txIRQEnabled() {
		irq = true
	}
	if irq {
		c.status |= StatusIRQ
		c.irq.Raise()
	}
	return c.timerDelay
}

func (c *Card) rxIRQEnabled() bool {
	return c.command&CmdIRQRDisable == 0
}

func (c *Card) txIRQEnabled() bool {
	return (c.command>>CmdIRQTShift)&3 == 1
}

// Access decodes the card's I/O window registers.
func (c *Card) Access(addr uint16, data byte, write bool) byte {
	switch addr & 0x0f {
	case 0x1:
		if !write {
			return c.dipsw1
		}
	case 0x2:
		if !write {
			return c.dipsw2
		}
	case 0x8:
		return c.accessData(data, write)
	case 0x9:
		if write {
			c.softReset()
			return 0
		}
		res := c.status
		c.status &^= StatusIRQ
		c.irq.Clear()
		return res
	case 0xa:
		if !write {
			return c.command
		}
		c.setCommand(data)
	case 0xb:
		if !write {
			return c.control
		}
		c.setControl(data)
	}
	return 0
}

// accessData is register 8: the transmit/receive data port.
func (c *Card) accessData(data byte, write bool) byte {
	if c.port.State() != sscworker.StateRunning {
		return 0
	}
	if write {
		wasEmpty := c.port.TX.Empty()
		c.totalTX++
		c.port.TX.Write(data)
		if wasEmpty {
			c.worker.Wake()
		}
		if c.port.TX.Full() {
			c.status &^= StatusTXEmpty
		}
		return 0
	}
	if c.port.RX.Empty() {
		return 0
	}
	c.totalRX++
	wasFull := c.port.RX.Full()
	res, _ := c.port.RX.Read()
	if c.port.RX.Empty() {
		c.status &^= StatusRXFull
	} else {
		if wasFull {
			c.worker.Wake()
		}
		if c.rxIRQEnabled() {
			c.irq.Raise()
		}
	}
	return res
}

// softReset restores the 6551 power-on register defaults. DTR drops,
// so the host endpoint needs a fresh DTR assertion afterwards.
func (c *Card) softReset() {
	c.command = CommandReset
	c.control = 0
	c.status = StatusReset
	c.irq.Clear()
}

// setCommand handles the command register: DTR, IRQ masks, RTS/BRK
// field, echo and parity. The echo bit is decoded and stored but the
// card performs no local echo, same as the hardware ROM never enabling
// it.
func (c *Card) setCommand(data byte) {
	if c.command&CmdDTR == 0 && data&CmdDTR != 0 {
		c.start()
	}
	if c.ep == nil || c.ep.fd < 0 {
		return
	}
	// Enabling the RX IRQ while the flag is already up behaves as a
	// level interrupt: the line re-asserts immediately.
	if c.command&CmdIRQRDisable != 0 && data&CmdIRQRDisable == 0 {
		if c.status&StatusIRQ != 0 {
			c.irq.Raise()
		}
	}
	dtr := data&CmdDTR != 0
	rts := (data>>CmdIRQTShift)&3 == 0
	c.ep.setModemLines(dtr, !rts)
	c.command = data
}

// setControl handles the control register: baud, word length and stop
// bits. It reprograms the host termios and recomputes the
// per-character status-poll period.
func (c *Card) setControl(data byte) {
	c.control = data
	rate := baudRate[data&0x0f]
	if rate <= 0 {
		log.Printf("ssc%d: control %02x selects invalid baud, keeping %d",
			c.slot.ID, data, c.conf.Baud)
		return
	}
	bits := int(data>>5) & 3
	stop := int(data>>7) & 1
	parity := int(c.command>>CmdParityShift) & 3
	if c.ep != nil && c.ep.fd >= 0 {
		if err := c.ep.applyTermios(int(data&0x0f), bits, parity, stop, c.conf.Handshake); err != nil {
			log.Printf("ssc%d: termios: %v", c.slot.ID, err)
		}
	}
	frame := 1 + bitsCount[bits] + stop + 1
	if parity != 0 {
		frame++
	}
	cps := float64(rate) / float64(frame)
	c.timerDelay = uint64(1e6 * c.host.Speed() / cps)
	if c.timerDelay == 0 {
		c.timerDelay = 1
	}
	if c.timerID != clock.None && c.host.Clock().Get(c.timerID) > c.timerDelay {
		c.host.Clock().Set(c.timerID, c.statusPoll, c.timerDelay)
	}
	c.conf.Baud = rate
	c.conf.Bits = bits
	c.conf.Stop = stop
	c.conf.Parity = parity
}

// Reset is the machine-level reset: registers return to defaults but
// the host endpoint stays as it is, mirroring the hardware's reset
// line only touching the 6551.
func (c *Card) Reset() {
	c.softReset()
}

// Dispose stops the worker side and releases everything.
func (c *Card) Dispose() {
	if c.port.State() == sscworker.StateRunning {
		c.worker.Stop(c.port) // worker closes the fd
		if c.ep != nil {
			c.ep.fd = -1
			c.ep.close()
			c.ep = nil
		}
	} else if c.ep != nil {
		c.ep.close()
		c.ep = nil
	}
	if c.timerID != clock.None {
		c.host.Clock().Unregister(c.timerID)
		c.timerID = clock.None
	}
	c.irq.Clear()
}

// Command implements out-of-band configuration.
func (c *Card) Command(cmd string, payload any) (any, error) {
	switch cmd {
	case "set-tty":
		conf, ok := payload.(Config)
		if !ok {
			return nil, fmt.Errorf("ssc: set-tty wants a Config")
		}
		if _, err := baudIndex(conf.Baud); err != nil {
			return nil, err
		}
		c.conf = conf
		return nil, nil
	case "get-tty":
		return c.conf, nil
	case "status":
		return c.humanConfig, nil
	}
	return nil, fmt.Errorf("ssc: unknown command %q", cmd)
}

// TTYPath returns the host endpoint path users attach to: the slave
// path for ptys, the device path otherwise. Empty until DTR first
// opens the endpoint.
func (c *Card) TTYPath() string {
	if c.ep == nil {
		return ""
	}
	return c.ep.path
}

// HumanConfig returns the displayed line configuration string.
func (c *Card) HumanConfig() string { return c.humanConfig }
