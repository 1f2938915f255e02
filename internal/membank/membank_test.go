package membank

import "testing"

func TestRoundTripWithoutCallbacks(t *testing.T) {
	bus := NewBus()
	ram := NewBank("main", 0x0000, 0xC000)
	bus.MapBank(ram)

	for _, addr := range []uint16{0x0000, 0x00FF, 0x0800, 0xBFFF} {
		bus.Write(addr, byte(addr^0x5A))
		if got := bus.Read(addr); got != byte(addr^0x5A) {
			t.Fatalf("addr %04x: got %02x want %02x", addr, got, byte(addr^0x5A))
		}
	}
}

func TestUnmappedReadReturnsVaporByte(t *testing.T) {
	bus := NewBus()
	bus.VaporByte = func() byte { return 0xEE }
	if got := bus.Read(0xD000); got != 0xEE {
		t.Fatalf("unmapped read = %02x, want vapor EE", got)
	}
	bus.Write(0xD000, 0x12) // dropped, must not panic
}

func TestCallbackConsumesWrite(t *testing.T) {
	bus := NewBus()
	sw := NewBank("io", 0xC000, 0x100)
	bus.MapBank(sw)

	var seen []uint16
	sw.InstallAccessCB(func(b *Bank, param any, addr uint16, data *byte, write bool) bool {
		seen = append(seen, addr)
		return true
	}, nil, 0xC0, 0xC0, false)

	bus.Write(0xC030, 0x7F)
	if len(seen) != 1 || seen[0] != 0xC030 {
		t.Fatalf("callback saw %v", seen)
	}
	if sw.Peek(0xC030) != 0 {
		t.Fatalf("consumed write reached backing store")
	}
}

func TestCallbackOrderAndOverlap(t *testing.T) {
	bus := NewBus()
	b := NewBank("io", 0xC000, 0x100)
	bus.MapBank(b)

	var order []int
	mk := func(tag int, consume bool) AccessFunc {
		return func(_ *Bank, _ any, _ uint16, _ *byte, _ bool) bool {
			order = append(order, tag)
			return consume
		}
	}
	b.InstallAccessCB(mk(1, false), nil, 0xC0, 0xC0, true)
	b.InstallAccessCB(mk(2, true), nil, 0xC0, 0xC0, true)
	b.InstallAccessCB(mk(3, false), nil, 0xC0, 0xC0, true)

	bus.Read(0xC011)
	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Fatalf("dispatch order = %v, want [1 2 3]", order)
	}
}

func TestReadCallbackOptIn(t *testing.T) {
	bus := NewBus()
	b := NewBank("io", 0xC000, 0x100)
	bus.MapBank(b)

	writes, reads := 0, 0
	b.InstallAccessCB(func(_ *Bank, _ any, _ uint16, _ *byte, write bool) bool {
		if write {
			writes++
		} else {
			reads++
		}
		return false
	}, nil, 0xC0, 0xC0, false) // writes only

	bus.Write(0xC000, 1)
	bus.Read(0xC000)
	if writes != 1 || reads != 0 {
		t.Fatalf("writes=%d reads=%d, want 1,0", writes, reads)
	}
}

func TestCallbackCanOverrideReadValue(t *testing.T) {
	bus := NewBus()
	b := NewBank("io", 0xC000, 0x100)
	bus.MapBank(b)
	b.InstallAccessCB(func(_ *Bank, _ any, addr uint16, data *byte, write bool) bool {
		if !write {
			*data = 0xA5
			return true
		}
		return false
	}, nil, 0xC0, 0xC0, true)

	if got := bus.Read(0xC061); got != 0xA5 {
		t.Fatalf("read = %02x, want A5", got)
	}
}

func TestWriteBytesInstallsROM(t *testing.T) {
	bus := NewBus()
	rom := NewBank("rom", 0xC100, 0x0F00)
	bus.MapBank(rom)
	img := []byte{0xA9, 0x00, 0x60}
	rom.WriteBytes(0xC200, img)
	for i, want := range img {
		if got := bus.Read(0xC200 + uint16(i)); got != want {
			t.Fatalf("rom[%d] = %02x want %02x", i, got, want)
		}
	}
}
