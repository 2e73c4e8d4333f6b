package sim

import (
	"sync"

	"github.com/robotalks/romreader/pkg/reader"
)

// Floating is read from the data port while the chip outputs are disabled.
const Floating byte = 0xff

// Chip simulates the port latches of the reader with a parallel memory
// chip wired to them. It implements reader.Bus.
type Chip struct {
	Map   reader.LineMap
	Image []byte

	lock  sync.Mutex
	latch [reader.NumPorts]byte
	reads uint64
}

// NewChip creates a Chip holding image, wired with the default line map.
func NewChip(image []byte) *Chip {
	return &Chip{Map: reader.DefaultLineMap, Image: image}
}

// Reset clears all port latches, as on power-on.
func (c *Chip) Reset() {
	c.lock.Lock()
	c.latch = [reader.NumPorts]byte{}
	c.lock.Unlock()
}

// SetLine implements reader.Bus.
func (c *Chip) SetLine(l reader.Line, high bool) {
	c.lock.Lock()
	if high {
		c.latch[l.Port] |= 1 << l.Bit
	} else {
		c.latch[l.Port] &^= 1 << l.Bit
	}
	c.lock.Unlock()
}

// WritePort implements reader.Bus.
func (c *Chip) WritePort(p reader.Port, v byte) {
	c.lock.Lock()
	c.latch[p] = v
	c.lock.Unlock()
}

// ReadPort implements reader.Bus.
func (c *Chip) ReadPort(p reader.Port) byte {
	c.lock.Lock()
	defer c.lock.Unlock()
	if p != reader.DataPort {
		return c.latch[p]
	}
	c.reads++
	if c.level(reader.LineCE) || c.level(reader.LineOE) || len(c.Image) == 0 {
		return Floating
	}
	return c.Image[c.address()%int64(len(c.Image))]
}

// Level returns the level of a line.
func (c *Chip) Level(l reader.Line) bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.level(l)
}

// Address returns the address currently presented to the chip.
func (c *Chip) Address() int64 {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.address()
}

// Reads returns how many times the data port was sampled.
func (c *Chip) Reads() uint64 {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.reads
}

func (c *Chip) level(l reader.Line) bool {
	return c.latch[l.Port]&(1<<l.Bit) != 0
}

func (c *Chip) address() int64 {
	return c.Map.Decode(c.level) | int64(c.latch[reader.LowPort]&reader.LowMask)
}
