package cpu6502

import "fmt"

// Addressing modes, used by both the disassembler and the trace ring.
type addrMode uint8

const (
	modeImp addrMode = iota
	modeAcc
	modeImm
	modeZP
	modeZPX
	modeZPY
	modeAbs
	modeAbsX
	modeAbsY
	modeInd
	modeIndX
	modeIndY
	modeZPInd
	modeAbsXInd
	modeRel
)

var modeSize = [...]uint8{
	modeImp:     1,
	modeAcc:     1,
	modeImm:     2,
	modeZP:      2,
	modeZPX:     2,
	modeZPY:     2,
	modeAbs:     3,
	modeAbsX:    3,
	modeAbsY:    3,
	modeInd:     3,
	modeIndX:    2,
	modeIndY:    2,
	modeZPInd:   2,
	modeAbsXInd: 3,
	modeRel:     2,
}

type opInfo struct {
	name string
	mode addrMode
}

// opTable drives the disassembler; execution decodes independently so
// a table slip cannot corrupt CPU semantics, only trace text.
var opTable = [256]opInfo{}

func setOp(code byte, name string, mode addrMode) {
	opTable[code] = opInfo{name: name, mode: mode}
}

func init() {
	for i := range opTable {
		opTable[i] = opInfo{name: "NOP", mode: modeImp}
	}
	type e struct {
		code byte
		name string
		mode addrMode
	}
	ops := []e{
		{0x00, "BRK", modeImm}, {0x01, "ORA", modeIndX}, {0x04, "TSB", modeZP},
		{0x05, "ORA", modeZP}, {0x06, "ASL", modeZP}, {0x08, "PHP", modeImp},
		{0x09, "ORA", modeImm}, {0x0A, "ASL", modeAcc}, {0x0C, "TSB", modeAbs},
		{0x0D, "ORA", modeAbs}, {0x0E, "ASL", modeAbs},
		{0x10, "BPL", modeRel}, {0x11, "ORA", modeIndY}, {0x12, "ORA", modeZPInd},
		{0x14, "TRB", modeZP}, {0x15, "ORA", modeZPX}, {0x16, "ASL", modeZPX},
		{0x18, "CLC", modeImp}, {0x19, "ORA", modeAbsY}, {0x1A, "INC", modeAcc},
		{0x1C, "TRB", modeAbs}, {0x1D, "ORA", modeAbsX}, {0x1E, "ASL", modeAbsX},
		{0x20, "JSR", modeAbs}, {0x21, "AND", modeIndX}, {0x24, "BIT", modeZP},
		{0x25, "AND", modeZP}, {0x26, "ROL", modeZP}, {0x28, "PLP", modeImp},
		{0x29, "AND", modeImm}, {0x2A, "ROL", modeAcc}, {0x2C, "BIT", modeAbs},
		{0x2D, "AND", modeAbs}, {0x2E, "ROL", modeAbs},
		{0x30, "BMI", modeRel}, {0x31, "AND", modeIndY}, {0x32, "AND", modeZPInd},
		{0x34, "BIT", modeZPX}, {0x35, "AND", modeZPX}, {0x36, "ROL", modeZPX},
		{0x38, "SEC", modeImp}, {0x39, "AND", modeAbsY}, {0x3A, "DEC", modeAcc},
		{0x3C, "BIT", modeAbsX}, {0x3D, "AND", modeAbsX}, {0x3E, "ROL", modeAbsX},
		{0x40, "RTI", modeImp}, {0x41, "EOR", modeIndX}, {0x45, "EOR", modeZP},
		{0x46, "LSR", modeZP}, {0x48, "PHA", modeImp}, {0x49, "EOR", modeImm},
		{0x4A, "LSR", modeAcc}, {0x4C, "JMP", modeAbs}, {0x4D, "EOR", modeAbs},
		{0x4E, "LSR", modeAbs},
		{0x50, "BVC", modeRel}, {0x51, "EOR", modeIndY}, {0x52, "EOR", modeZPInd},
		{0x55, "EOR", modeZPX}, {0x56, "LSR", modeZPX}, {0x58, "CLI", modeImp},
		{0x59, "EOR", modeAbsY}, {0x5A, "PHY", modeImp}, {0x5D, "EOR", modeAbsX},
		{0x5E, "LSR", modeAbsX},
		{0x60, "RTS", modeImp}, {0x61, "ADC", modeIndX}, {0x64, "STZ", modeZP},
		{0x65, "ADC", modeZP}, {0x66, "ROR", modeZP}, {0x68, "PLA", modeImp},
		{0x69, "ADC", modeImm}, {0x6A, "ROR", modeAcc}, {0x6C, "JMP", modeInd},
		{0x6D, "ADC", modeAbs}, {0x6E, "ROR", modeAbs},
		{0x70, "BVS", modeRel}, {0x71, "ADC", modeIndY}, {0x72, "ADC", modeZPInd},
		{0x74, "STZ", modeZPX}, {0x75, "ADC", modeZPX}, {0x76, "ROR", modeZPX},
		{0x78, "SEI", modeImp}, {0x79, "ADC", modeAbsY}, {0x7A, "PLY", modeImp},
		{0x7C, "JMP", modeAbsXInd}, {0x7D, "ADC", modeAbsX}, {0x7E, "ROR", modeAbsX},
		{0x80, "BRA", modeRel}, {0x81, "STA", modeIndX}, {0x84, "STY", modeZP},
		{0x85, "STA", modeZP}, {0x86, "STX", modeZP}, {0x88, "DEY", modeImp},
		{0x89, "BIT", modeImm}, {0x8A, "TXA", modeImp}, {0x8C, "STY", modeAbs},
		{0x8D, "STA", modeAbs}, {0x8E, "STX", modeAbs},
		{0x90, "BCC", modeRel}, {0x91, "STA", modeIndY}, {0x92, "STA", modeZPInd},
		{0x94, "STY", modeZPX}, {0x95, "STA", modeZPX}, {0x96, "STX", modeZPY},
		{0x98, "TYA", modeImp}, {0x99, "STA", modeAbsY}, {0x9A, "TXS", modeImp},
		{0x9C, "STZ", modeAbs}, {0x9D, "STA", modeAbsX}, {0x9E, "STZ", modeAbsX},
		{0xA0, "LDY", modeImm}, {0xA1, "LDA", modeIndX}, {0xA2, "LDX", modeImm},
		{0xA4, "LDY", modeZP}, {0xA5, "LDA", modeZP}, {0xA6, "LDX", modeZP},
		{0xA8, "TAY", modeImp}, {0xA9, "LDA", modeImm}, {0xAA, "TAX", modeImp},
		{0xAC, "LDY", modeAbs}, {0xAD, "LDA", modeAbs}, {0xAE, "LDX", modeAbs},
		{0xB0, "BCS", modeRel}, {0xB1, "LDA", modeIndY}, {0xB2, "LDA", modeZPInd},
		{0xB4, "LDY", modeZPX}, {0xB5, "LDA", modeZPX}, {0xB6, "LDX", modeZPY},
		{0xB8, "CLV", modeImp}, {0xB9, "LDA", modeAbsY}, {0xBA, "TSX", modeImp},
		{0xBC, "LDY", modeAbsX}, {0xBD, "LDA", modeAbsX}, {0xBE, "LDX", modeAbsY},
		{0xC0, "CPY", modeImm}, {0xC1, "CMP", modeIndX}, {0xC4, "CPY", modeZP},
		{0xC5, "CMP", modeZP}, {0xC6, "DEC", modeZP}, {0xC8, "INY", modeImp},
		{0xC9, "CMP", modeImm}, {0xCA, "DEX", modeImp}, {0xCC, "CPY", modeAbs},
		{0xCD, "CMP", modeAbs}, {0xCE, "DEC", modeAbs},
		{0xD0, "BNE", modeRel}, {0xD1, "CMP", modeIndY}, {0xD2, "CMP", modeZPInd},
		{0xD5, "CMP", modeZPX}, {0xD6, "DEC", modeZPX}, {0xD8, "CLD", modeImp},
		{0xD9, "CMP", modeAbsY}, {0xDA, "PHX", modeImp}, {0xDD, "CMP", modeAbsX},
		{0xDE, "DEC", modeAbsX},
		{0xE0, "CPX", modeImm}, {0xE1, "SBC", modeIndX}, {0xE4, "CPX", modeZP},
		{0xE5, "SBC", modeZP}, {0xE6, "INC", modeZP}, {0xE8, "INX", modeImp},
		{0xE9, "SBC", modeImm}, {0xEA, "NOP", modeImp}, {0xEC, "CPX", modeAbs},
		{0xED, "SBC", modeAbs}, {0xEE, "INC", modeAbs},
		{0xF0, "BEQ", modeRel}, {0xF1, "SBC", modeIndY}, {0xF2, "SBC", modeZPInd},
		{0xF5, "SBC", modeZPX}, {0xF6, "INC", modeZPX}, {0xF8, "SED", modeImp},
		{0xF9, "SBC", modeAbsY}, {0xFA, "PLX", modeImp}, {0xFD, "SBC", modeAbsX},
		{0xFE, "INC", modeAbsX},
	}
	for _, o := range ops {
		setOp(o.code, o.name, o.mode)
	}
	// Two- and three-byte 65C02 NOP shapes, so the trace shows the
	// right instruction width.
	for _, code := range []byte{0x02, 0x22, 0x42, 0x62, 0x82, 0xC2, 0xE2} {
		setOp(code, "NOP", modeImm)
	}
	for _, code := range []byte{0x44, 0x54, 0xD4, 0xF4} {
		setOp(code, "NOP", modeZP)
	}
	for _, code := range []byte{0x5C, 0xDC, 0xFC} {
		setOp(code, "NOP", modeAbs)
	}
}

// Disassemble formats the instruction at pc, reading its operand bytes
// through the bus. It returns the text and the instruction length.
func Disassemble(bus Bus, pc uint16) (string, uint8) {
	op := bus.Read(pc)
	info := opTable[op]
	size := modeSize[info.mode]
	var b1, b2 byte
	if size > 1 {
		b1 = bus.Read(pc + 1)
	}
	if size > 2 {
		b2 = bus.Read(pc + 2)
	}
	abs := uint16(b1) | uint16(b2)<<8
	var text string
	switch info.mode {
	case modeImp:
		text = info.name
	case modeAcc:
		text = info.name + " A"
	case modeImm:
		text = fmt.Sprintf("%s #$%02X", info.name, b1)
	case modeZP:
		text = fmt.Sprintf("%s $%02X", info.name, b1)
	case modeZPX:
		text = fmt.Sprintf("%s $%02X,X", info.name, b1)
	case modeZPY:
		text = fmt.Sprintf("%s $%02X,Y", info.name, b1)
	case modeAbs:
		text = fmt.Sprintf("%s $%04X", info.name, abs)
	case modeAbsX:
		text = fmt.Sprintf("%s $%04X,X", info.name, abs)
	case modeAbsY:
		text = fmt.Sprintf("%s $%04X,Y", info.name, abs)
	case modeInd:
		text = fmt.Sprintf("%s ($%04X)", info.name, abs)
	case modeIndX:
		text = fmt.Sprintf("%s ($%02X,X)", info.name, b1)
	case modeIndY:
		text = fmt.Sprintf("%s ($%02X),Y", info.name, b1)
	case modeZPInd:
		text = fmt.Sprintf("%s ($%02X)", info.name, b1)
	case modeAbsXInd:
		text = fmt.Sprintf("%s ($%04X,X)", info.name, abs)
	case modeRel:
		dest := pc + 2 + uint16(int8(b1))
		text = fmt.Sprintf("%s $%04X", info.name, dest)
	}
	return text, size
}
