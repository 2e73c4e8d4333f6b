package reader

import (
	"errors"
	"time"
)

var errLinkClosed = errors.New("link closed")

type fakeLink struct {
	in      []byte
	out     []byte
	txBusy  int
	rxDelay int
}

func (l *fakeLink) feed(s string) *fakeLink {
	l.in = append(l.in, s...)
	return l
}

func (l *fakeLink) RxReady() bool {
	if l.rxDelay > 0 {
		l.rxDelay--
		return false
	}
	return len(l.in) > 0
}

func (l *fakeLink) Receive() (byte, error) {
	if len(l.in) == 0 {
		return 0, errLinkClosed
	}
	b := l.in[0]
	l.in = l.in[1:]
	return b, nil
}

func (l *fakeLink) TxReady() bool {
	if l.txBusy > 0 {
		l.txBusy--
		return false
	}
	return true
}

func (l *fakeLink) Transmit(b byte) error {
	l.out = append(l.out, b)
	return nil
}

type kickCounter int

func (k *kickCounter) Kick() { *k++ }

type fakeBus struct {
	lines  map[Line]bool
	ports  [NumPorts]byte
	writes int
	// data returns the byte for the current address.
	data func(addr int64) byte
}

func newFakeBus() *fakeBus {
	return &fakeBus{lines: make(map[Line]bool)}
}

func (b *fakeBus) SetLine(l Line, high bool) {
	b.lines[l] = high
}

func (b *fakeBus) WritePort(p Port, v byte) {
	b.ports[p] = v
	b.writes++
}

func (b *fakeBus) ReadPort(p Port) byte {
	if p == DataPort && b.data != nil {
		return b.data(b.address())
	}
	return b.ports[p]
}

func (b *fakeBus) address() int64 {
	addr := DefaultLineMap.Decode(func(l Line) bool { return b.lines[l] })
	return addr | int64(b.ports[LowPort]&LowMask)
}

type testRig struct {
	link   *fakeLink
	bus    *fakeBus
	kicks  kickCounter
	delays []time.Duration
	engine *Engine
}

func newTestRig() *testRig {
	r := &testRig{link: &fakeLink{}, bus: newFakeBus()}
	r.bus.data = func(addr int64) byte { return byte(addr) ^ byte(addr>>8) }
	t := NewTransport(r.link, &r.kicks)
	t.MaxPolls = 1000
	d := NewDriver(r.bus)
	d.Delay = func(dur time.Duration) { r.delays = append(r.delays, dur) }
	r.engine = NewEngine(t, d)
	return r
}

func expectedData(from, to int64) (out []byte) {
	for i := from; i <= to; i++ {
		out = append(out, byte(i)^byte(i>>8))
	}
	return
}
