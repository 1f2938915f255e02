package regulator

import (
	"encoding/binary"
	"io"
	"os"
	"sync"
)

// PaddleSink receives normalised joystick state. The implementation
// writes single aligned bytes into the paddle soft-switch bank, so the
// CPU thread's reads are tear-free without further synchronisation.
type PaddleSink interface {
	SetPaddle(axis int, value byte)
	SetButton(button int, down bool)
}

// jsEvent is the kernel joydev report: 32-bit timestamp, signed value,
// event type and axis/button number.
type jsEvent struct {
	Time   uint32
	Value  int16
	Type   uint8
	Number uint8
}

const (
	jsEventButton = 0x01
	jsEventAxis   = 0x02
	jsEventInit   = 0x80
)

// Joystick reads one kernel joystick device on its own goroutine.
type Joystick struct {
	f    *os.File
	sink PaddleSink

	stopOnce sync.Once
	done     chan struct{}

	// raw centered axis values, kept for the square remap
	axes [2]int
}

// OpenJoystick starts reading path (e.g. /dev/input/js0). A missing
// device is not an error to the machine; the caller just runs without
// a stick.
func OpenJoystick(path string, sink PaddleSink) (*Joystick, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	j := &Joystick{f: f, sink: sink, done: make(chan struct{})}
	go j.loop()
	return j, nil
}

// Close stops the reader goroutine.
func (j *Joystick) Close() {
	j.stopOnce.Do(func() {
		j.f.Close()
		<-j.done
	})
}

func (j *Joystick) loop() {
	defer close(j.done)
	var buf [8]byte
	for {
		if _, err := io.ReadFull(j.f, buf[:]); err != nil {
			return
		}
		ev := jsEvent{
			Time:   binary.LittleEndian.Uint32(buf[0:]),
			Value:  int16(binary.LittleEndian.Uint16(buf[4:])),
			Type:   buf[6],
			Number: buf[7],
		}
		j.handle(ev)
	}
}

func (j *Joystick) handle(ev jsEvent) {
	switch ev.Type &^ jsEventInit {
	case jsEventButton:
		if ev.Number < 2 {
			j.sink.SetButton(int(ev.Number), ev.Value != 0)
		}
	case jsEventAxis:
		if ev.Number >= 2 {
			return
		}
		j.axes[ev.Number] = int(ev.Value) / 256 // -128..127
		x, y := remapSquare(j.axes[0], j.axes[1])
		j.sink.SetPaddle(0, byte(x+128))
		j.sink.SetPaddle(1, byte(y+128))
	}
}

// remapSquare stretches the circular stick envelope toward the square
// response of the original analogue hardware: each axis is pushed
// outward in proportion to how far the other axis is deflected,
// v' = v + |other| * (v/256), then clamped.
func remapSquare(x, y int) (int, int) {
	ax, ay := x, y
	if ax < 0 {
		ax = -ax
	}
	if ay < 0 {
		ay = -ay
	}
	nx := x + ay*x/256
	ny := y + ax*y/256
	return clampAxis(nx), clampAxis(ny)
}

func clampAxis(v int) int {
	if v < -128 {
		return -128
	}
	if v > 127 {
		return 127
	}
	return v
}
