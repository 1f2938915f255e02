package ssc

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// The 6551 control register's low nibble indexes these tables; the two
// entries with no tty speed are invalid and rejected at configuration
// time.
var baudRate = [16]int{
	0:  1152000,
	1:  50,
	2:  75,
	3:  110,
	4:  134,
	5:  150,
	6:  300,
	7:  600,
	8:  1200,
	9:  1800,
	10: 2400,
	11: -3600,
	12: 4800,
	13: -7200,
	14: 9600,
	15: 19200,
}

var baudFlag = [16]uint32{
	0:  unix.B1152000,
	1:  unix.B50,
	2:  unix.B75,
	3:  unix.B110,
	4:  unix.B134,
	5:  unix.B150,
	6:  unix.B300,
	7:  unix.B600,
	8:  unix.B1200,
	9:  unix.B1800,
	10: unix.B2400,
	12: unix.B4800,
	14: unix.B9600,
	15: unix.B19200,
}

// Word length, control register bits 5-6.
var bitsFlag = [4]uint32{
	unix.CS8, unix.CS7, unix.CS6, unix.CS5,
}

var bitsCount = [4]int{8, 7, 6, 5}

// Stop bits, control register bit 7.
var stopFlag = [2]uint32{0, unix.CSTOPB}

// Parity, command register bits 5-6 (bit 7 selects mark/space, which
// the tty layer cannot express; it degrades to even/odd).
var parityFlag = [4]uint32{
	0, unix.PARODD, unix.PARENB, unix.PARENB | unix.PARODD,
}

// baudIndex maps a configured rate back to the control nibble.
func baudIndex(rate int) (int, error) {
	for i, r := range baudRate {
		if r == rate && r > 0 {
			return i, nil
		}
	}
	return 0, fmt.Errorf("ssc: unsupported baud rate %d", rate)
}
