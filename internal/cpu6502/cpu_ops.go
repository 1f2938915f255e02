package cpu6502

// execute decodes and runs one opcode, charging its cycles to
// TotalCycles. The NMOS holes execute as 65C02 NOPs of the documented
// widths and cycle counts.
func (c *CPU) execute(op byte) {
	var cy uint64
	switch op {

	// Loads
	case 0xA9:
		c.A = c.fetch()
		c.setNZ(c.A)
		cy = 2
	case 0xA5:
		c.A = c.bus.Read(c.zp())
		c.setNZ(c.A)
		cy = 3
	case 0xB5:
		c.A = c.bus.Read(c.zpX())
		c.setNZ(c.A)
		cy = 4
	case 0xAD:
		c.A = c.bus.Read(c.abs())
		c.setNZ(c.A)
		cy = 4
	case 0xBD:
		c.A = c.bus.Read(c.absX(&cy))
		c.setNZ(c.A)
		cy += 4
	case 0xB9:
		c.A = c.bus.Read(c.absY(&cy))
		c.setNZ(c.A)
		cy += 4
	case 0xA1:
		c.A = c.bus.Read(c.indX())
		c.setNZ(c.A)
		cy = 6
	case 0xB1:
		c.A = c.bus.Read(c.indY(&cy))
		c.setNZ(c.A)
		cy += 5
	case 0xB2:
		c.A = c.bus.Read(c.zpInd())
		c.setNZ(c.A)
		cy = 5
	case 0xA2:
		c.X = c.fetch()
		c.setNZ(c.X)
		cy = 2
	case 0xA6:
		c.X = c.bus.Read(c.zp())
		c.setNZ(c.X)
		cy = 3
	case 0xB6:
		c.X = c.bus.Read(c.zpY())
		c.setNZ(c.X)
		cy = 4
	case 0xAE:
		c.X = c.bus.Read(c.abs())
		c.setNZ(c.X)
		cy = 4
	case 0xBE:
		c.X = c.bus.Read(c.absY(&cy))
		c.setNZ(c.X)
		cy += 4
	case 0xA0:
		c.Y = c.fetch()
		c.setNZ(c.Y)
		cy = 2
	case 0xA4:
		c.Y = c.bus.Read(c.zp())
		c.setNZ(c.Y)
		cy = 3
	case 0xB4:
		c.Y = c.bus.Read(c.zpX())
		c.setNZ(c.Y)
		cy = 4
	case 0xAC:
		c.Y = c.bus.Read(c.abs())
		c.setNZ(c.Y)
		cy = 4
	case 0xBC:
		c.Y = c.bus.Read(c.absX(&cy))
		c.setNZ(c.Y)
		cy += 4

	// Stores
	case 0x85:
		c.bus.Write(c.zp(), c.A)
		cy = 3
	case 0x95:
		c.bus.Write(c.zpX(), c.A)
		cy = 4
	case 0x8D:
		c.bus.Write(c.abs(), c.A)
		cy = 4
	case 0x9D:
		c.bus.Write(c.absX(nil), c.A)
		cy = 5
	case 0x99:
		c.bus.Write(c.absY(nil), c.A)
		cy = 5
	case 0x81:
		c.bus.Write(c.indX(), c.A)
		cy = 6
	case 0x91:
		c.bus.Write(c.indY(nil), c.A)
		cy = 6
	case 0x92:
		c.bus.Write(c.zpInd(), c.A)
		cy = 5
	case 0x86:
		c.bus.Write(c.zp(), c.X)
		cy = 3
	case 0x96:
		c.bus.Write(c.zpY(), c.X)
		cy = 4
	case 0x8E:
		c.bus.Write(c.abs(), c.X)
		cy = 4
	case 0x84:
		c.bus.Write(c.zp(), c.Y)
		cy = 3
	case 0x94:
		c.bus.Write(c.zpX(), c.Y)
		cy = 4
	case 0x8C:
		c.bus.Write(c.abs(), c.Y)
		cy = 4
	case 0x64: // STZ
		c.bus.Write(c.zp(), 0)
		cy = 3
	case 0x74:
		c.bus.Write(c.zpX(), 0)
		cy = 4
	case 0x9C:
		c.bus.Write(c.abs(), 0)
		cy = 4
	case 0x9E:
		c.bus.Write(c.absX(nil), 0)
		cy = 5

	// Transfers
	case 0xAA:
		c.X = c.A
		c.setNZ(c.X)
		cy = 2
	case 0xA8:
		c.Y = c.A
		c.setNZ(c.Y)
		cy = 2
	case 0x8A:
		c.A = c.X
		c.setNZ(c.A)
		cy = 2
	case 0x98:
		c.A = c.Y
		c.setNZ(c.A)
		cy = 2
	case 0xBA:
		c.X = c.S
		c.setNZ(c.X)
		cy = 2
	case 0x9A:
		c.S = c.X
		cy = 2

	// Stack
	case 0x48:
		c.push(c.A)
		cy = 3
	case 0x68:
		c.A = c.pull()
		c.setNZ(c.A)
		cy = 4
	case 0x08:
		c.push(c.P | FlagB | FlagU)
		cy = 3
	case 0x28:
		c.P = c.pull()&^FlagB | FlagU
		cy = 4
	case 0xDA: // PHX
		c.push(c.X)
		cy = 3
	case 0xFA: // PLX
		c.X = c.pull()
		c.setNZ(c.X)
		cy = 4
	case 0x5A: // PHY
		c.push(c.Y)
		cy = 3
	case 0x7A: // PLY
		c.Y = c.pull()
		c.setNZ(c.Y)
		cy = 4

	// Logic
	case 0x29:
		c.A &= c.fetch()
		c.setNZ(c.A)
		cy = 2
	case 0x25:
		c.A &= c.bus.Read(c.zp())
		c.setNZ(c.A)
		cy = 3
	case 0x35:
		c.A &= c.bus.Read(c.zpX())
		c.setNZ(c.A)
		cy = 4
	case 0x2D:
		c.A &= c.bus.Read(c.abs())
		c.setNZ(c.A)
		cy = 4
	case 0x3D:
		c.A &= c.bus.Read(c.absX(&cy))
		c.setNZ(c.A)
		cy += 4
	case 0x39:
		c.A &= c.bus.Read(c.absY(&cy))
		c.setNZ(c.A)
		cy += 4
	case 0x21:
		c.A &= c.bus.Read(c.indX())
		c.setNZ(c.A)
		cy = 6
	case 0x31:
		c.A &= c.bus.Read(c.indY(&cy))
		c.setNZ(c.A)
		cy += 5
	case 0x32:
		c.A &= c.bus.Read(c.zpInd())
		c.setNZ(c.A)
		cy = 5
	case 0x09:
		c.A |= c.fetch()
		c.setNZ(c.A)
		cy = 2
	case 0x05:
		c.A |= c.bus.Read(c.zp())
		c.setNZ(c.A)
		cy = 3
	case 0x15:
		c.A |= c.bus.Read(c.zpX())
		c.setNZ(c.A)
		cy = 4
	case 0x0D:
		c.A |= c.bus.Read(c.abs())
		c.setNZ(c.A)
		cy = 4
	case 0x1D:
		c.A |= c.bus.Read(c.absX(&cy))
		c.setNZ(c.A)
		cy += 4
	case 0x19:
		c.A |= c.bus.Read(c.absY(&cy))
		c.setNZ(c.A)
		cy += 4
	case 0x01:
		c.A |= c.bus.Read(c.indX())
		c.setNZ(c.A)
		cy = 6
	case 0x11:
		c.A |= c.bus.Read(c.indY(&cy))
		c.setNZ(c.A)
		cy += 5
	case 0x12:
		c.A |= c.bus.Read(c.zpInd())
		c.setNZ(c.A)
		cy = 5
	case 0x49:
		c.A ^= c.fetch()
		c.setNZ(c.A)
		cy = 2
	case 0x45:
		c.A ^= c.bus.Read(c.zp())
		c.setNZ(c.A)
		cy = 3
	case 0x55:
		c.A ^= c.bus.Read(c.zpX())
		c.setNZ(c.A)
		cy = 4
	case 0x4D:
		c.A ^= c.bus.Read(c.abs())
		c.setNZ(c.A)
		cy = 4
	case 0x5D:
		c.A ^= c.bus.Read(c.absX(&cy))
		c.setNZ(c.A)
		cy += 4
	case 0x59:
		c.A ^= c.bus.Read(c.absY(&cy))
		c.setNZ(c.A)
		cy += 4
	case 0x41:
		c.A ^= c.bus.Read(c.indX())
		c.setNZ(c.A)
		cy = 6
	case 0x51:
		c.A ^= c.bus.Read(c.indY(&cy))
		c.setNZ(c.A)
		cy += 5
	case 0x52:
		c.A ^= c.bus.Read(c.zpInd())
		c.setNZ(c.A)
		cy = 5

	// BIT / TRB / TSB
	case 0x24:
		c.bitTest(c.bus.Read(c.zp()))
		cy = 3
	case 0x2C:
		c.bitTest(c.bus.Read(c.abs()))
		cy = 4
	case 0x34:
		c.bitTest(c.bus.Read(c.zpX()))
		cy = 4
	case 0x3C:
		c.bitTest(c.bus.Read(c.absX(&cy)))
		cy += 4
	case 0x89: // BIT # only affects Z
		c.setFlag(FlagZ, c.A&c.fetch() == 0)
		cy = 2
	case 0x14: // TRB zp
		c.rmw(c.zp(), func(v byte) byte {
			c.setFlag(FlagZ, c.A&v == 0)
			return v &^ c.A
		})
		cy = 5
	case 0x1C:
		c.rmw(c.abs(), func(v byte) byte {
			c.setFlag(FlagZ, c.A&v == 0)
			return v &^ c.A
		})
		cy = 6
	case 0x04: // TSB zp
		c.rmw(c.zp(), func(v byte) byte {
			c.setFlag(FlagZ, c.A&v == 0)
			return v | c.A
		})
		cy = 5
	case 0x0C:
		c.rmw(c.abs(), func(v byte) byte {
			c.setFlag(FlagZ, c.A&v == 0)
			return v | c.A
		})
		cy = 6

	// Arithmetic
	case 0x69:
		c.adc(c.fetch())
		cy = 2 + c.decimalPenalty()
	case 0x65:
		c.adc(c.bus.Read(c.zp()))
		cy = 3 + c.decimalPenalty()
	case 0x75:
		c.adc(c.bus.Read(c.zpX()))
		cy = 4 + c.decimalPenalty()
	case 0x6D:
		c.adc(c.bus.Read(c.abs()))
		cy = 4 + c.decimalPenalty()
	case 0x7D:
		c.adc(c.bus.Read(c.absX(&cy)))
		cy += 4 + c.decimalPenalty()
	case 0x79:
		c.adc(c.bus.Read(c.absY(&cy)))
		cy += 4 + c.decimalPenalty()
	case 0x61:
		c.adc(c.bus.Read(c.indX()))
		cy = 6 + c.decimalPenalty()
	case 0x71:
		c.adc(c.bus.Read(c.indY(&cy)))
		cy += 5 + c.decimalPenalty()
	case 0x72:
		c.adc(c.bus.Read(c.zpInd()))
		cy = 5 + c.decimalPenalty()
	case 0xE9:
		c.sbc(c.fetch())
		cy = 2 + c.decimalPenalty()
	case 0xE5:
		c.sbc(c.bus.Read(c.zp()))
		cy = 3 + c.decimalPenalty()
	case 0xF5:
		c.sbc(c.bus.Read(c.zpX()))
		cy = 4 + c.decimalPenalty()
	case 0xED:
		c.sbc(c.bus.Read(c.abs()))
		cy = 4 + c.decimalPenalty()
	case 0xFD:
		c.sbc(c.bus.Read(c.absX(&cy)))
		cy += 4 + c.decimalPenalty()
	case 0xF9:
		c.sbc(c.bus.Read(c.absY(&cy)))
		cy += 4 + c.decimalPenalty()
	case 0xE1:
		c.sbc(c.bus.Read(c.indX()))
		cy = 6 + c.decimalPenalty()
	case 0xF1:
		c.sbc(c.bus.Read(c.indY(&cy)))
		cy += 5 + c.decimalPenalty()
	case 0xF2:
		c.sbc(c.bus.Read(c.zpInd()))
		cy = 5 + c.decimalPenalty()

	// Compares
	case 0xC9:
		c.compare(c.A, c.fetch())
		cy = 2
	case 0xC5:
		c.compare(c.A, c.bus.Read(c.zp()))
		cy = 3
	case 0xD5:
		c.compare(c.A, c.bus.Read(c.zpX()))
		cy = 4
	case 0xCD:
		c.compare(c.A, c.bus.Read(c.abs()))
		cy = 4
	case 0xDD:
		c.compare(c.A, c.bus.Read(c.absX(&cy)))
		cy += 4
	case 0xD9:
		c.compare(c.A, c.bus.Read(c.absY(&cy)))
		cy += 4
	case 0xC1:
		c.compare(c.A, c.bus.Read(c.indX()))
		cy = 6
	case 0xD1:
		c.compare(c.A, c.bus.Read(c.indY(&cy)))
		cy += 5
	case 0xD2:
		c.compare(c.A, c.bus.Read(c.zpInd()))
		cy = 5
	case 0xE0:
		c.compare(c.X, c.fetch())
		cy = 2
	case 0xE4:
		c.compare(c.X, c.bus.Read(c.zp()))
		cy = 3
	case 0xEC:
		c.compare(c.X, c.bus.Read(c.abs()))
		cy = 4
	case 0xC0:
		c.compare(c.Y, c.fetch())
		cy = 2
	case 0xC4:
		c.compare(c.Y, c.bus.Read(c.zp()))
		cy = 3
	case 0xCC:
		c.compare(c.Y, c.bus.Read(c.abs()))
		cy = 4

	// Increments / decrements
	case 0xE6:
		c.rmw(c.zp(), func(v byte) byte { v++; c.setNZ(v); return v })
		cy = 5
	case 0xF6:
		c.rmw(c.zpX(), func(v byte) byte { v++; c.setNZ(v); return v })
		cy = 6
	case 0xEE:
		c.rmw(c.abs(), func(v byte) byte { v++; c.setNZ(v); return v })
		cy = 6
	case 0xFE:
		c.rmw(c.absX(nil), func(v byte) byte { v++; c.setNZ(v); return v })
		cy = 7
	case 0x1A: // INC A
		c.A++
		c.setNZ(c.A)
		cy = 2
	case 0xC6:
		c.rmw(c.zp(), func(v byte) byte { v--; c.setNZ(v); return v })
		cy = 5
	case 0xD6:
		c.rmw(c.zpX(), func(v byte) byte { v--; c.setNZ(v); return v })
		cy = 6
	case 0xCE:
		c.rmw(c.abs(), func(v byte) byte { v--; c.setNZ(v); return v })
		cy = 6
	case 0xDE:
		c.rmw(c.absX(nil), func(v byte) byte { v--; c.setNZ(v); return v })
		cy = 7
	case 0x3A: // DEC A
		c.A--
		c.setNZ(c.A)
		cy = 2
	case 0xE8:
		c.X++
		c.setNZ(c.X)
		cy = 2
	case 0xCA:
		c.X--
		c.setNZ(c.X)
		cy = 2
	case 0xC8:
		c.Y++
		c.setNZ(c.Y)
		cy = 2
	case 0x88:
		c.Y--
		c.setNZ(c.Y)
		cy = 2

	// Shifts / rotates
	case 0x0A:
		c.A = c.aslVal(c.A)
		cy = 2
	case 0x06:
		c.rmw(c.zp(), c.aslVal)
		cy = 5
	case 0x16:
		c.rmw(c.zpX(), c.aslVal)
		cy = 6
	case 0x0E:
		c.rmw(c.abs(), c.aslVal)
		cy = 6
	case 0x1E:
		c.rmw(c.absX(nil), c.aslVal)
		cy = 7
	case 0x4A:
		c.A = c.lsrVal(c.A)
		cy = 2
	case 0x46:
		c.rmw(c.zp(), c.lsrVal)
		cy = 5
	case 0x56:
		c.rmw(c.zpX(), c.lsrVal)
		cy = 6
	case 0x4E:
		c.rmw(c.abs(), c.lsrVal)
		cy = 6
	case 0x5E:
		c.rmw(c.absX(nil), c.lsrVal)
		cy = 7
	case 0x2A:
		c.A = c.rolVal(c.A)
		cy = 2
	case 0x26:
		c.rmw(c.zp(), c.rolVal)
		cy = 5
	case 0x36:
		c.rmw(c.zpX(), c.rolVal)
		cy = 6
	case 0x2E:
		c.rmw(c.abs(), c.rolVal)
		cy = 6
	case 0x3E:
		c.rmw(c.absX(nil), c.rolVal)
		cy = 7
	case 0x6A:
		c.A = c.rorVal(c.A)
		cy = 2
	case 0x66:
		c.rmw(c.zp(), c.rorVal)
		cy = 5
	case 0x76:
		c.rmw(c.zpX(), c.rorVal)
		cy = 6
	case 0x6E:
		c.rmw(c.abs(), c.rorVal)
		cy = 6
	case 0x7E:
		c.rmw(c.absX(nil), c.rorVal)
		cy = 7

	// Jumps and subroutines
	case 0x4C:
		c.PC = c.fetch16()
		cy = 3
	case 0x6C:
		// 65C02: the pointer read carries across the page boundary.
		ptr := c.fetch16()
		c.PC = uint16(c.bus.Read(ptr)) | uint16(c.bus.Read(ptr+1))<<8
		cy = 6
	case 0x7C: // JMP (abs,X)
		ptr := c.fetch16() + uint16(c.X)
		c.PC = uint16(c.bus.Read(ptr)) | uint16(c.bus.Read(ptr+1))<<8
		cy = 6
	case 0x20:
		addr := c.fetch16()
		ret := c.PC - 1
		c.push(byte(ret >> 8))
		c.push(byte(ret))
		c.PC = addr
		cy = 6
	case 0x60:
		lo := uint16(c.pull())
		c.PC = (lo | uint16(c.pull())<<8) + 1
		cy = 6
	case 0x40: // RTI
		c.P = c.pull()&^FlagB | FlagU
		lo := uint16(c.pull())
		c.PC = lo | uint16(c.pull())<<8
		cy = 6

	// Branches
	case 0x10:
		cy = c.branch(c.P&FlagN == 0)
	case 0x30:
		cy = c.branch(c.P&FlagN != 0)
	case 0x50:
		cy = c.branch(c.P&FlagV == 0)
	case 0x70:
		cy = c.branch(c.P&FlagV != 0)
	case 0x90:
		cy = c.branch(c.P&FlagC == 0)
	case 0xB0:
		cy = c.branch(c.P&FlagC != 0)
	case 0xD0:
		cy = c.branch(c.P&FlagZ == 0)
	case 0xF0:
		cy = c.branch(c.P&FlagZ != 0)
	case 0x80: // BRA
		cy = c.branch(true)

	// Flag operations
	case 0x18:
		c.P &^= FlagC
		cy = 2
	case 0x38:
		c.P |= FlagC
		cy = 2
	case 0x58:
		c.P &^= FlagI
		cy = 2
	case 0x78:
		c.P |= FlagI
		cy = 2
	case 0xB8:
		c.P &^= FlagV
		cy = 2
	case 0xD8:
		c.P &^= FlagD
		cy = 2
	case 0xF8:
		c.P |= FlagD
		cy = 2

	// BRK: a two-byte instruction; the signature byte is skipped.
	case 0x00:
		c.PC++
		c.push(byte(c.PC >> 8))
		c.push(byte(c.PC))
		c.push(c.P | FlagB | FlagU)
		c.P |= FlagI
		if c.Enhanced {
			c.P &^= FlagD
		}
		c.PC = uint16(c.bus.Read(VecIRQ)) | uint16(c.bus.Read(VecIRQ+1))<<8
		cy = 7

	case 0xEA:
		cy = 2

	default:
		cy = c.nopFor(op)
	}
	c.TotalCycles += cy
}

// nopFor consumes the operand bytes of an undefined opcode and returns
// its cycle count, per the 65C02 NOP grid.
func (c *CPU) nopFor(op byte) uint64 {
	switch {
	case op&0x0f == 0x03 || op&0x0f == 0x07 || op&0x0f == 0x0b || op&0x0f == 0x0f:
		return 1 // single-byte, single-cycle
	case op == 0x44:
		c.PC++
		return 3
	case op == 0x54 || op == 0xd4 || op == 0xf4:
		c.PC++
		return 4
	case op == 0x5c:
		c.PC += 2
		return 8
	case op == 0xdc || op == 0xfc:
		c.PC += 2
		return 4
	case op&0x0f == 0x02:
		c.PC++
		return 2
	default:
		return 2
	}
}
