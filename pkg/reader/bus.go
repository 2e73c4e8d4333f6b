package reader

import (
	"fmt"
	"time"
)

// Port identifies a physical port group.
type Port byte

// Ports of the reader.
const (
	PortA Port = iota
	PortB
	PortC
	PortD
	PortE

	NumPorts = 5
)

// String implements fmt.Stringer.
func (p Port) String() string {
	if p < NumPorts {
		return "R" + string('A'+rune(p))
	}
	return fmt.Sprintf("port(%d)", byte(p))
}

// Line is a single output line.
type Line struct {
	Port Port
	Bit  uint8
}

// String implements fmt.Stringer.
func (l Line) String() string {
	return fmt.Sprintf("%s%d", l.Port, l.Bit)
}

// Lines used by the reader.
var (
	RB0 = Line{PortB, 0}
	RB1 = Line{PortB, 1}
	RB2 = Line{PortB, 2}
	RB4 = Line{PortB, 4}
	RB5 = Line{PortB, 5}
	RC0 = Line{PortC, 0}
	RC1 = Line{PortC, 1}
	RC2 = Line{PortC, 2}
	RC5 = Line{PortC, 5}
	RE0 = Line{PortE, 0}
	RE1 = Line{PortE, 1}
	RE2 = Line{PortE, 2}

	// LineCE is the active-low chip enable.
	LineCE = RE2
	// LineOE is the active-low output enable.
	LineOE = RC5
)

// Address bus layout.
const (
	// LowPort carries address bits 0-5 as its low six bits.
	LowPort Port = PortA
	// LowBits is the number of address bits on LowPort.
	LowBits = 6
	// LowMask selects the address bits on LowPort.
	LowMask = 1<<LowBits - 1
	// DataPort is sampled for the data byte.
	DataPort Port = PortD

	// DefaultSettle is the settle time after driving an address.
	DefaultSettle = 2 * time.Microsecond
)

// LineMapEntry assigns one address bit to one line.
type LineMapEntry struct {
	AddrBit uint8
	Line    Line
	// Enabled is false for a wired but undriven bit.
	Enabled bool
}

// LineMap is an ordered table of address bit assignments.
type LineMap []LineMapEntry

// DefaultLineMap is the wiring of the reader board. Bit 15 is wired to RE1
// but not driven, so only 15 address bits reach the chip.
var DefaultLineMap = LineMap{
	{AddrBit: 15, Line: RE1, Enabled: false},
	{AddrBit: 14, Line: RE0, Enabled: true},
	{AddrBit: 13, Line: RC2, Enabled: true},
	{AddrBit: 12, Line: RC1, Enabled: true},
	{AddrBit: 11, Line: RC0, Enabled: true},
	{AddrBit: 10, Line: RB5, Enabled: true},
	{AddrBit: 9, Line: RB4, Enabled: true},
	{AddrBit: 8, Line: RB2, Enabled: true},
	{AddrBit: 7, Line: RB1, Enabled: true},
	{AddrBit: 6, Line: RB0, Enabled: true},
}

// Apply sets every enabled line to its address bit.
func (m LineMap) Apply(bus Bus, addr int64) {
	for _, e := range m {
		if e.Enabled {
			bus.SetLine(e.Line, (addr>>e.AddrBit)&1 != 0)
		}
	}
}

// Decode rebuilds the mapped address bits from line levels.
func (m LineMap) Decode(level func(Line) bool) (addr int64) {
	for _, e := range m {
		if e.Enabled && level(e.Line) {
			addr |= 1 << e.AddrBit
		}
	}
	return
}

// Mask returns the address bits the map can drive, including LowPort bits.
func (m LineMap) Mask() (mask int64) {
	mask = LowMask
	for _, e := range m {
		if e.Enabled {
			mask |= 1 << e.AddrBit
		}
	}
	return
}

// Bus is the hardware facing port interface.
type Bus interface {
	SetLine(l Line, high bool)
	WritePort(p Port, v byte)
	ReadPort(p Port) byte
}

// Driver drives addresses onto the bus and samples data.
type Driver struct {
	Bus    Bus
	Map    LineMap
	Settle time.Duration
	// Delay waits for the settle time. The watchdog is not kicked.
	Delay func(time.Duration)
}

// NewDriver creates a Driver with the default wiring.
func NewDriver(bus Bus) *Driver {
	return &Driver{
		Bus:    bus,
		Map:    DefaultLineMap,
		Settle: DefaultSettle,
		Delay:  SpinDelay,
	}
}

// SpinDelay busy waits for d.
func SpinDelay(d time.Duration) {
	for start := time.Now(); time.Since(start) < d; {
	}
}

// AssertEnable pulls /CE and /OE low. Nothing releases them afterwards.
func (d *Driver) AssertEnable() {
	d.Bus.SetLine(LineCE, false)
	d.Bus.SetLine(LineOE, false)
}

// ClearLow zeroes the low address port.
func (d *Driver) ClearLow() {
	d.Bus.WritePort(LowPort, 0)
}

// DriveAddress puts addr on the bus and waits for it to settle.
func (d *Driver) DriveAddress(addr int64) {
	d.Map.Apply(d.Bus, addr)
	d.Bus.WritePort(LowPort, byte(addr&LowMask))
	d.SettleDelay()
}

// SettleDelay waits the settle time.
func (d *Driver) SettleDelay() {
	if d.Delay != nil {
		d.Delay(d.Settle)
	}
}

// Sample reads the data port.
func (d *Driver) Sample() byte {
	return d.Bus.ReadPort(DataPort)
}

// Read drives addr and samples the data.
func (d *Driver) Read(addr int64) byte {
	d.DriveAddress(addr)
	return d.Sample()
}
