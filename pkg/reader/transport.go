package reader

import "context"

// Link is the polled serial port of the reader.
type Link interface {
	// RxReady reports a received byte is waiting.
	RxReady() bool
	// Receive takes the received byte. Only valid after RxReady.
	Receive() (byte, error)
	// TxReady reports the transmit register is empty.
	TxReady() bool
	// Transmit loads the transmit register. Only valid after TxReady.
	Transmit(byte) error
}

// Watchdog is the supervisory timer which must be kicked during any wait.
type Watchdog interface {
	Kick()
}

// KickFunc is func form of Watchdog.
type KickFunc func()

// Kick implements Watchdog.
func (f KickFunc) Kick() {
	f()
}

type nopWatchdog struct{}

func (nopWatchdog) Kick() {}

// Transport provides blocking byte exchange over a Link, kicking the
// watchdog on every poll.
type Transport struct {
	Link     Link
	Watchdog Watchdog
	// Idle is called between polls if set.
	Idle func()
	// MaxPolls bounds a single wait. 0 waits forever.
	MaxPolls int
}

// NewTransport creates a Transport.
func NewTransport(link Link, wd Watchdog) *Transport {
	if wd == nil {
		wd = nopWatchdog{}
	}
	return &Transport{Link: link, Watchdog: wd}
}

// KeepAlive kicks the watchdog.
func (t *Transport) KeepAlive() {
	if t.Watchdog != nil {
		t.Watchdog.Kick()
	}
}

func (t *Transport) poll(ctx context.Context, ready func() bool) error {
	for n := 0; !ready(); n++ {
		t.KeepAlive()
		if t.MaxPolls > 0 && n >= t.MaxPolls {
			return ErrPollExhausted
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if t.Idle != nil {
			t.Idle()
		}
	}
	return nil
}

// ReceiveByte waits until a byte arrives and returns it.
func (t *Transport) ReceiveByte(ctx context.Context) (byte, error) {
	if err := t.poll(ctx, t.Link.RxReady); err != nil {
		return 0, err
	}
	return t.Link.Receive()
}

// SendByte waits until the transmit register is empty and writes b.
func (t *Transport) SendByte(ctx context.Context, b byte) error {
	if err := t.poll(ctx, t.Link.TxReady); err != nil {
		return err
	}
	return t.Link.Transmit(b)
}

// FlushInbound discards everything currently buffered on the receive side
// and returns the number of bytes dropped.
func (t *Transport) FlushInbound() (n int, err error) {
	for t.Link.RxReady() {
		if _, err = t.Link.Receive(); err != nil {
			return
		}
		n++
		t.KeepAlive()
	}
	return
}
