package host

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/golang/glog"

	fx "github.com/robotalks/romreader/pkg/framework"
	"github.com/robotalks/romreader/pkg/reader"
)

var (
	// ErrCommandTooLong indicates the command does not fit the command buffer.
	ErrCommandTooLong = errors.New("command too long")
	// ErrInvalidCommand indicates the raw command can't be sent as is.
	ErrInvalidCommand = errors.New("invalid command")
	// ErrDesync indicates an earlier response was not fully received and
	// the byte stream can no longer be trusted. Reopen the link.
	ErrDesync = errors.New("response stream out of sync")
)

// Dump is the response of a scan.
type Dump struct {
	Base int32
	Data []byte
	// Placeholder is set for stub commands, Data is not real content.
	Placeholder bool
}

// End returns the address following the last byte.
func (d *Dump) End() int64 {
	return int64(d.Base) + int64(len(d.Data))
}

// Client talks to a reader over a link. The reader never acknowledges,
// so the client tracks the address range it configured.
type Client struct {
	// ByteTime is the expected transfer time of a single response byte,
	// used to derive deadlines.
	ByteTime time.Duration
	// Timeout is added to every response deadline.
	Timeout time.Duration
	// StubPlaceholders tells whether the reader answers stub commands
	// with placeholder bytes. Without them stub commands are not sent.
	StubPlaceholders bool

	rw     io.ReadWriter
	rng    reader.AddressRange
	lock   sync.Mutex
	stats  Stats
	desync bool
}

// Stats counts client activity.
type Stats struct {
	Commands      uint64
	BytesReceived uint64
}

// Defaults for deadline computation.
const (
	// DefaultByteTime is 10 bits at 115200 baud, with margin.
	DefaultByteTime = 100 * time.Microsecond
	DefaultTimeout  = 2 * time.Second
)

// NewClient creates a Client assuming the reader is in power-on state.
func NewClient(rw io.ReadWriter) *Client {
	return &Client{
		ByteTime:         DefaultByteTime,
		Timeout:          DefaultTimeout,
		StubPlaceholders: true,
		rw:               rw,
		rng:              reader.DefaultRange,
	}
}

// Range returns the address range the reader is believed to use.
func (c *Client) Range() reader.AddressRange {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.rng
}

// Stats returns activity counters.
func (c *Client) Stats() Stats {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.stats
}

// Desynced tells whether a response was lost and the link must be reopened.
func (c *Client) Desynced() bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.desync
}

// FormatCommand encodes a command with an optional argument.
func FormatCommand(cmd reader.Command, arg int32) ([]byte, error) {
	if reader.CommandFromTag(cmd.Tag()) != cmd || cmd == reader.CmdNone {
		return nil, ErrInvalidCommand
	}
	buf := []byte{cmd.Tag()}
	if cmd.HasArg() {
		buf = strconv.AppendInt(buf, int64(arg), 10)
	}
	buf = append(buf, reader.CR)
	if len(buf) > reader.CommandSize {
		return nil, fmt.Errorf("%w: %q", ErrCommandTooLong, buf)
	}
	return buf, nil
}

func (c *Client) send(cmd reader.Command, arg int32) error {
	buf, err := FormatCommand(cmd, arg)
	if err != nil {
		return err
	}
	return c.write(buf)
}

func (c *Client) write(buf []byte) error {
	if c.desync {
		return ErrDesync
	}
	glog.V(2).Infof("SND %q", buf)
	if _, err := c.rw.Write(buf); err != nil {
		return err
	}
	c.stats.Commands++
	return nil
}

func (c *Client) receive(ctx context.Context, n int64) ([]byte, error) {
	if n == 0 {
		return []byte{}, nil
	}
	ctx, cancel := context.WithTimeout(ctx, c.Timeout+time.Duration(n)*c.ByteTime)
	defer cancel()
	data := make([]byte, n)
	var got int
	err := fx.RunWithContext(ctx, func() (err error) {
		got, err = io.ReadFull(c.rw, data)
		return
	})
	if err != nil {
		// the reader keeps sending, whatever is left poisons the next response
		c.desync = true
		return nil, err
	}
	glog.V(2).Infof("RCV %d bytes", got)
	c.stats.BytesReceived += uint64(got)
	return data, nil
}

// SetMin sets the first address of scans.
func (c *Client) SetMin(addr int32) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	if err := c.send(reader.CmdSetMin, addr); err != nil {
		return err
	}
	c.rng.Min = addr
	return nil
}

// SetMax sets the last address of scans.
func (c *Client) SetMax(addr int32) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	if err := c.send(reader.CmdSetMax, addr); err != nil {
		return err
	}
	c.rng.Max = addr
	return nil
}

// SetRange sets both ends of the scan range.
func (c *Client) SetRange(r reader.AddressRange) error {
	if err := c.SetMin(r.Min); err != nil {
		return err
	}
	return c.SetMax(r.Max)
}

// Read scans the configured range over the parallel bus.
func (c *Client) Read(ctx context.Context) (*Dump, error) {
	return c.scan(ctx, reader.CmdReadParallel)
}

// ReadI2C runs the I2C stub. The returned dump is marked Placeholder.
func (c *Client) ReadI2C(ctx context.Context) (*Dump, error) {
	return c.scan(ctx, reader.CmdReadI2C)
}

// ReadSPI runs the SPI stub. The returned dump is marked Placeholder.
func (c *Client) ReadSPI(ctx context.Context) (*Dump, error) {
	return c.scan(ctx, reader.CmdReadSPI)
}

// scan skips the command when the reader would send nothing back: the
// reader flushes its input before scanning, so a command following an
// unanswered scan could be discarded.
func (c *Client) scan(ctx context.Context, cmd reader.Command) (*Dump, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.desync {
		return nil, ErrDesync
	}
	if c.rng.Len() == 0 || (cmd.IsStub() && !c.StubPlaceholders) {
		return &Dump{Base: c.rng.Min, Data: []byte{}, Placeholder: cmd.IsStub()}, nil
	}
	if err := c.send(cmd, 0); err != nil {
		return nil, err
	}
	data, err := c.receive(ctx, c.rng.Len())
	if err != nil {
		return nil, err
	}
	return &Dump{Base: c.rng.Min, Data: data, Placeholder: cmd.IsStub()}, nil
}

// ReadLocation reads a single address. The range is not changed.
func (c *Client) ReadLocation(ctx context.Context, addr int32) (byte, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	if err := c.send(reader.CmdReadLocation, addr); err != nil {
		return 0, err
	}
	data, err := c.receive(ctx, 1)
	if err != nil {
		return 0, err
	}
	return data[0], nil
}

// Dump reads r in chunks of at most chunk bytes, calling progress after
// each chunk. The reader is left with range r.
func (c *Client) Dump(ctx context.Context, r reader.AddressRange, chunk int32, progress func(done, total int64)) (*Dump, error) {
	chunk = dumpChunk(r, chunk)
	result := &Dump{Base: r.Min, Data: make([]byte, 0, r.Len())}
	for from := int64(r.Min); from <= int64(r.Max); from += int64(chunk) {
		to := from + int64(chunk) - 1
		if to > int64(r.Max) {
			to = int64(r.Max)
		}
		if err := c.SetRange(reader.AddressRange{Min: int32(from), Max: int32(to)}); err != nil {
			return nil, err
		}
		part, err := c.Read(ctx)
		if err != nil {
			return nil, err
		}
		result.Data = append(result.Data, part.Data...)
		if progress != nil {
			progress(int64(len(result.Data)), r.Len())
		}
	}
	return result, c.SetRange(r)
}

// dumpChunk returns chunk, or the whole range clamped to int32 when chunk
// is not positive.
func dumpChunk(r reader.AddressRange, chunk int32) int32 {
	if chunk > 0 {
		return chunk
	}
	if n := r.Len(); n > 0 && n < math.MaxInt32 {
		return int32(n)
	}
	return math.MaxInt32
}

// Raw sends a command verbatim and reads n response bytes. The tracked
// range is updated for set commands.
func (c *Client) Raw(ctx context.Context, cmd string, n int64) ([]byte, error) {
	if len(cmd) == 0 || len(cmd) > reader.CommandSize-1 {
		return nil, ErrInvalidCommand
	}
	var buf reader.CommandBuffer
	copy(buf[:], cmd)
	buf.Sanitize()
	c.lock.Lock()
	defer c.lock.Unlock()
	if err := c.write(append([]byte(cmd), reader.CR)); err != nil {
		return nil, err
	}
	switch reader.CommandFromTag(buf.Tag()) {
	case reader.CmdSetMin:
		c.rng.Min = buf.Arg()
	case reader.CmdSetMax:
		c.rng.Max = buf.Arg()
	}
	return c.receive(ctx, n)
}
