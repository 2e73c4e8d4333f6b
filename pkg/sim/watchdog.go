package sim

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/golang/glog"
)

// DefaultWatchdogTimeout is 8 x 18ms, the prescaled watchdog period of the
// reader part.
const DefaultWatchdogTimeout = 144 * time.Millisecond

// ErrWatchdogReset is returned by Watchdog.Run when it expires.
var ErrWatchdogReset = errors.New("watchdog reset")

// Watchdog is a supervisory timer. It implements reader.Watchdog.
// It expires when a full period passes without a kick.
type Watchdog struct {
	Timeout time.Duration

	kicked  int32
	kicks   uint64
	expires uint64
}

// NewWatchdog creates a Watchdog.
func NewWatchdog(timeout time.Duration) *Watchdog {
	if timeout <= 0 {
		timeout = DefaultWatchdogTimeout
	}
	return &Watchdog{Timeout: timeout}
}

// Kick implements reader.Watchdog.
func (w *Watchdog) Kick() {
	atomic.StoreInt32(&w.kicked, 1)
	atomic.AddUint64(&w.kicks, 1)
}

// Kicks returns the total number of kicks.
func (w *Watchdog) Kicks() uint64 {
	return atomic.LoadUint64(&w.kicks)
}

// Expires returns how many times the watchdog fired.
func (w *Watchdog) Expires() uint64 {
	return atomic.LoadUint64(&w.expires)
}

// Run supervises until ctx is done or the watchdog expires.
func (w *Watchdog) Run(ctx context.Context) error {
	atomic.StoreInt32(&w.kicked, 1)
	ticker := time.NewTicker(w.Timeout)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if atomic.SwapInt32(&w.kicked, 0) == 0 {
				atomic.AddUint64(&w.expires, 1)
				glog.Warningf("watchdog expired after %v", w.Timeout)
				return ErrWatchdogReset
			}
		}
	}
}
