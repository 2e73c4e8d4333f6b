package link

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"
)

var (
	// ErrRxEmpty indicates Receive was called with nothing received.
	ErrRxEmpty = errors.New("receive buffer empty")
	// ErrTxFull indicates Transmit was called while the transmitter is busy.
	ErrTxFull = errors.New("transmit buffer full")
	// ErrClosed indicates the port is closed.
	ErrClosed = errors.New("port closed")
)

// Default FIFO depths.
const (
	DefaultRxDepth = 64
	DefaultTxDepth = 64
)

// Port implements reader.Link over a stream. A read loop fills the
// receive FIFO and a write loop drains the transmit FIFO, so the
// reader only ever polls flags, like it does with a UART.
type Port struct {
	rw io.ReadWriter

	rxCh    chan byte
	txCh    chan byte
	pending int64
	done    chan struct{}
	once    sync.Once

	errLock sync.Mutex
	rxErr   error
	txErr   error
}

// NewPort creates a Port with default FIFO depths and starts its loops.
func NewPort(rw io.ReadWriter) *Port {
	return NewPortSize(rw, DefaultRxDepth, DefaultTxDepth)
}

// NewPortSize creates a Port with given FIFO depths.
func NewPortSize(rw io.ReadWriter, rxDepth, txDepth int) *Port {
	p := &Port{
		rw:   rw,
		rxCh: make(chan byte, rxDepth),
		txCh: make(chan byte, txDepth),
		done: make(chan struct{}),
	}
	go p.readLoop()
	go p.writeLoop()
	return p
}

// RxReady implements reader.Link. A pending read error also reports ready
// so Receive can surface it.
func (p *Port) RxReady() bool {
	return len(p.rxCh) > 0 || p.readErr() != nil
}

// Receive implements reader.Link.
func (p *Port) Receive() (byte, error) {
	select {
	case b := <-p.rxCh:
		return b, nil
	default:
	}
	if err := p.readErr(); err != nil {
		return 0, err
	}
	return 0, ErrRxEmpty
}

// TxReady implements reader.Link.
func (p *Port) TxReady() bool {
	return len(p.txCh) < cap(p.txCh) || p.writeErr() != nil
}

// Transmit implements reader.Link.
func (p *Port) Transmit(b byte) error {
	if err := p.writeErr(); err != nil {
		return err
	}
	atomic.AddInt64(&p.pending, 1)
	select {
	case p.txCh <- b:
		return nil
	default:
		atomic.AddInt64(&p.pending, -1)
		return ErrTxFull
	}
}

// Pending returns the number of bytes not yet written out.
func (p *Port) Pending() int {
	return int(atomic.LoadInt64(&p.pending))
}

// Drain waits until every transmitted byte is written out.
func (p *Port) Drain(ctx context.Context) error {
	for p.Pending() > 0 {
		if err := p.writeErr(); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
	return nil
}

// Close stops the loops and closes the underlying stream if possible.
func (p *Port) Close() (err error) {
	p.once.Do(func() {
		close(p.done)
		p.setErr(&p.rxErr, ErrClosed)
		p.setErr(&p.txErr, ErrClosed)
		if closer, ok := p.rw.(io.Closer); ok {
			err = closer.Close()
		}
	})
	return
}

func (p *Port) readLoop() {
	buf := make([]byte, cap(p.rxCh))
	for {
		n, err := p.rw.Read(buf)
		for _, b := range buf[:n] {
			select {
			case p.rxCh <- b:
			case <-p.done:
				return
			}
		}
		if err != nil {
			glog.V(2).Infof("read loop stopped: %v", err)
			p.setErr(&p.rxErr, err)
			return
		}
	}
}

func (p *Port) writeLoop() {
	buf := make([]byte, 0, cap(p.txCh))
	for {
		select {
		case <-p.done:
			return
		case b := <-p.txCh:
			buf = append(buf[:0], b)
		}
		for len(buf) < cap(buf) && len(p.txCh) > 0 {
			buf = append(buf, <-p.txCh)
		}
		_, err := p.rw.Write(buf)
		atomic.AddInt64(&p.pending, -int64(len(buf)))
		if err != nil {
			glog.V(2).Infof("write loop stopped: %v", err)
			p.setErr(&p.txErr, err)
			return
		}
	}
}

func (p *Port) setErr(target *error, err error) {
	p.errLock.Lock()
	if *target == nil {
		*target = err
	}
	p.errLock.Unlock()
}

func (p *Port) readErr() error {
	p.errLock.Lock()
	defer p.errLock.Unlock()
	return p.rxErr
}

func (p *Port) writeErr() error {
	p.errLock.Lock()
	defer p.errLock.Unlock()
	return p.txErr
}
