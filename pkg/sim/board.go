package sim

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/golang/glog"

	fx "github.com/robotalks/romreader/pkg/framework"
	"github.com/robotalks/romreader/pkg/link"
	"github.com/robotalks/romreader/pkg/reader"
)

// DefaultPollIdle is the pause between two polls of the link.
const DefaultPollIdle = 50 * time.Microsecond

// Board is a simulated reader: the firmware engine, its chip and watchdog.
type Board struct {
	Chip     *Chip
	Watchdog *Watchdog
	// Idle runs between link polls.
	Idle             func()
	StubPlaceholders bool

	lock   sync.Mutex
	resets int
}

// NewBoard creates a Board with image loaded into its chip.
func NewBoard(image []byte) *Board {
	return &Board{
		Chip:             NewChip(image),
		Watchdog:         NewWatchdog(DefaultWatchdogTimeout),
		Idle:             func() { time.Sleep(DefaultPollIdle) },
		StubPlaceholders: true,
	}
}

// Resets returns the number of watchdog resets.
func (b *Board) Resets() int {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.resets
}

func (b *Board) powerOn(l reader.Link) *reader.Engine {
	b.Chip.Reset()
	t := reader.NewTransport(l, b.Watchdog)
	t.Idle = b.Idle
	e := reader.NewEngine(t, reader.NewDriver(b.Chip))
	e.StubPlaceholders = b.StubPlaceholders
	return e
}

// Run runs the firmware on l until ctx is done or the link fails.
// A watchdog expiry restarts the firmware from power-on state.
func (b *Board) Run(ctx context.Context, l reader.Link) error {
	for {
		err := b.runOnce(ctx, l)
		if err != ErrWatchdogReset {
			return err
		}
		b.lock.Lock()
		b.resets++
		b.lock.Unlock()
		glog.Warningf("board reset (%d)", b.Resets())
	}
}

func (b *Board) runOnce(ctx context.Context, l reader.Link) error {
	e := b.powerOn(l)
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	wdCh := make(chan error, 1)
	go func() {
		err := b.Watchdog.Run(runCtx)
		if err == ErrWatchdogReset {
			cancel()
		}
		wdCh <- err
	}()
	err := e.Run(runCtx)
	cancel()
	if wdErr := <-wdCh; wdErr == ErrWatchdogReset && ctx.Err() == nil {
		return ErrWatchdogReset
	}
	return err
}

// Serve runs the firmware over a stream until the stream or ctx ends.
func (b *Board) Serve(ctx context.Context, rw io.ReadWriter) error {
	port := link.NewPort(rw)
	defer port.Close()
	err := b.Run(ctx, port)
	if err == nil || ctx.Err() != nil {
		return err
	}
	if drainErr := port.Drain(ctx); drainErr != nil {
		glog.V(2).Infof("drain: %v", drainErr)
	}
	return err
}

// Server accepts host links one at a time and serves each with the Board,
// the way a single serial port serves one host.
type Server struct {
	Listener link.Listener
	Board    *Board
}

// Run implements Runnable.
func (s *Server) Run(ctx context.Context) error {
	glog.Infof("reader listening on %s", s.Listener.Addr())
	return fx.RunWithContextCloser(ctx, s.Listener, func() error {
		for {
			conn, err := s.Listener.Accept()
			if err != nil {
				return err
			}
			glog.Info("host connected")
			err = fx.RunWithContextCloser(ctx, conn, func() error {
				return s.Board.Serve(ctx, conn)
			})
			glog.Infof("host disconnected: %v", err)
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}
	})
}
