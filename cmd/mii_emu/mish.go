package main

import (
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"

	"golang.org/x/term"

	"github.com/mii-emu/miigo/internal/machine"
	"github.com/mii-emu/miigo/internal/regulator"
)

// console is the MISH_TELNET_PORT debug shell: a line-oriented terminal
// over TCP that posts commands into the regulator's ring. Beyond
// reading counters, the only machine state it touches directly is the
// CPU trace ring, which the trace command drains.
type console struct {
	m  *machine.Machine
	ln net.Listener
}

func newConsole(m *machine.Machine, port string) (*console, error) {
	ln, err := net.Listen("tcp", "localhost:"+port)
	if err != nil {
		return nil, err
	}
	return &console{m: m, ln: ln}, nil
}

func (c *console) serve() error {
	for {
		conn, err := c.ln.Accept()
		if err != nil {
			return nil // listener closed on shutdown
		}
		go c.session(conn)
	}
}

// close unblocks serve; safe to call after the regulator exits.
func (c *console) close() {
	c.ln.Close()
}

func (c *console) session(conn net.Conn) {
	defer conn.Close()
	t := term.NewTerminal(conn, "mii> ")
	fmt.Fprintf(t, "mii debug console. commands: status run stop step [n] reset trace quit\n")
	for {
		line, err := t.ReadLine()
		if err == io.EOF || err != nil {
			return
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "status":
			fmt.Fprintf(t, "frames=%d cycles=%d mode=%d\n",
				c.m.Frames(), c.m.CPU().TotalCycles, c.m.Regulator().Mode())
		case "run":
			c.m.Regulator().Post(regulator.Msg{Cmd: regulator.CmdRun})
		case "stop":
			c.m.Regulator().Post(regulator.Msg{Cmd: regulator.CmdStop})
		case "step":
			n := 1
			if len(fields) > 1 {
				if v, err := strconv.Atoi(fields[1]); err == nil {
					n = v
				}
			}
			c.m.Regulator().Post(regulator.Msg{Cmd: regulator.CmdStep, Count: n})
		case "reset":
			c.m.Regulator().Post(regulator.Msg{Cmd: regulator.CmdReset})
		case "trace":
			for _, l := range c.m.CPU().TraceText() {
				fmt.Fprintf(t, "%s\n", l)
			}
		case "paste":
			c.m.Regulator().Post(regulator.Msg{
				Cmd:  regulator.CmdPaste,
				Text: strings.Join(fields[1:], " "),
			})
		case "quit":
			return
		default:
			fmt.Fprintf(t, "unknown command %q\n", fields[0])
		}
	}
}
