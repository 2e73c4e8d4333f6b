package reader

import (
	"context"
	"errors"

	"github.com/golang/glog"
)

// AddressRange is the inclusive range of a scan. Min > Max is allowed
// and makes every scan empty.
type AddressRange struct {
	Min int32
	Max int32
}

// DefaultRange covers a 27256 (32K x 8) part.
var DefaultRange = AddressRange{Min: 0, Max: 32767}

// Len returns the number of addresses in the range.
func (r AddressRange) Len() int64 {
	if r.Min > r.Max {
		return 0
	}
	return int64(r.Max) - int64(r.Min) + 1
}

// Ident is the identification sequence of the reader. Stub commands send
// its first byte as placeholder data.
var Ident = [CommandSize]byte{'E', 'R', 'e', 'a', 'd', 'e', 'r', 0}

// State is everything the firmware keeps between commands.
type State struct {
	Buffer CommandBuffer
	Range  AddressRange
}

// Reset restores power-on state.
func (s *State) Reset() {
	s.Buffer = CommandBuffer{}
	s.Range = DefaultRange
}

// Stats counts engine activity.
type Stats struct {
	Commands  uint64
	Ignored   uint64
	Scans     uint64
	BytesSent uint64
	Flushed   uint64
}

// Engine is the command interpreter of the reader.
type Engine struct {
	Transport *Transport
	Driver    *Driver
	State     State
	// StubPlaceholders enables placeholder bytes for stub commands.
	StubPlaceholders bool

	stats Stats
}

// NewEngine creates an Engine in power-on state.
func NewEngine(t *Transport, d *Driver) *Engine {
	e := &Engine{Transport: t, Driver: d, StubPlaceholders: true}
	e.State.Reset()
	return e
}

// Stats returns activity counters.
func (e *Engine) Stats() Stats {
	return e.stats
}

// Run processes commands forever. Stub results are logged only.
func (e *Engine) Run(ctx context.Context) error {
	for {
		cmd, err := e.Step(ctx)
		if err != nil {
			if errors.Is(err, ErrNotImplemented) {
				glog.Warningf("%v", err)
				continue
			}
			return err
		}
		glog.V(3).Infof("%s done, range [%d, %d]", cmd, e.State.Range.Min, e.State.Range.Max)
	}
}

// Step reads one command and executes it.
func (e *Engine) Step(ctx context.Context) (Command, error) {
	e.Transport.KeepAlive()
	if _, err := ReadCommand(ctx, e.Transport, e.State.Buffer[:], CommandSize); err != nil {
		return CmdNone, err
	}
	e.State.Buffer.Sanitize()
	return e.Dispatch(ctx)
}

// Dispatch executes the command in the buffer.
func (e *Engine) Dispatch(ctx context.Context) (Command, error) {
	e.stats.Commands++
	buf := &e.State.Buffer
	cmd := CommandFromTag(buf.Tag())
	switch cmd {
	case CmdReadParallel:
		return cmd, e.scan(ctx, e.State.Range)
	case CmdReadLocation:
		return cmd, e.readLocation(ctx, int64(buf.Arg()))
	case CmdReadI2C, CmdReadSPI:
		return cmd, e.stub(ctx, cmd, e.State.Range)
	case CmdSetMin:
		e.State.Range.Min = buf.Arg()
	case CmdSetMax:
		e.State.Range.Max = buf.Arg()
	default:
		e.stats.Ignored++
		glog.V(4).Infof("ignored command %q", buf[:])
	}
	return cmd, nil
}

func (e *Engine) flush() error {
	n, err := e.Transport.FlushInbound()
	e.stats.Flushed += uint64(n)
	return err
}

func (e *Engine) send(ctx context.Context, b byte) error {
	if err := e.Transport.SendByte(ctx, b); err != nil {
		return err
	}
	e.stats.BytesSent++
	return nil
}

func (e *Engine) scan(ctx context.Context, r AddressRange) error {
	if err := e.flush(); err != nil {
		return err
	}
	e.stats.Scans++
	e.Driver.AssertEnable()
	for i := int64(r.Min); i <= int64(r.Max); i++ {
		if err := e.send(ctx, e.Driver.Read(i)); err != nil {
			return err
		}
		e.Transport.KeepAlive()
	}
	return nil
}

func (e *Engine) readLocation(ctx context.Context, addr int64) error {
	if err := e.flush(); err != nil {
		return err
	}
	e.Driver.AssertEnable()
	return e.send(ctx, e.Driver.Read(addr))
}

func (e *Engine) stub(ctx context.Context, cmd Command, r AddressRange) error {
	if err := e.flush(); err != nil {
		return err
	}
	e.stats.Scans++
	e.Driver.ClearLow()
	nerr := &NotImplementedError{Command: cmd}
	if !e.StubPlaceholders {
		return nerr
	}
	for i := int64(r.Min); i <= int64(r.Max); i++ {
		if err := e.send(ctx, Ident[0]); err != nil {
			return err
		}
		nerr.Placeholders++
		e.Driver.SettleDelay()
		e.Transport.KeepAlive()
	}
	return nerr
}
