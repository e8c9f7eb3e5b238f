// Package progress provides the cooperative cancellation channel polled by
// long running tile fetches.
package progress

import (
	"context"
	"io"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
)

// ErrTypeCanceled is the error type returned once a monitor reports that its
// operation was canceled.
const ErrTypeCanceled = "canceled"

// DefaultPollInterval is the interval used by Context to poll its monitor.
const DefaultPollInterval = 50 * time.Millisecond

// Monitor is polled at natural suspension points of a long running operation.
// Setting the cancellation state does not interrupt anything: the operation
// notices it the next time it checks.
type Monitor interface {
	IsCanceled() bool
}

// Func adapts a function to a Monitor.
type Func func() bool

func (f Func) IsCanceled() bool {
	return f()
}

// Never is a monitor that is never canceled.
var Never Monitor = Func(func() bool { return false })

// Canceled reports whether m is set and canceled.
func Canceled(m Monitor) bool {
	return m != nil && m.IsCanceled()
}

// Check returns a canceled error when m is canceled.
func Check(m Monitor) error {
	if Canceled(m) {
		return errors.New("operation canceled").WithType(ErrTypeCanceled)
	}
	return nil
}

// Reader returns a reader that fails with a canceled error on the first read
// following the cancellation of m.
func Reader(r io.Reader, m Monitor) io.Reader {
	if m == nil {
		return r
	}
	return &reader{r: r, m: m}
}

type reader struct {
	r io.Reader
	m Monitor
}

func (r *reader) Read(p []byte) (int, error) {
	if err := Check(r.m); err != nil {
		return 0, err
	}
	return r.r.Read(p)
}

// Context returns a copy of parent that is canceled once m reports
// cancellation. The monitor is polled every interval until the returned
// context is done; the returned cancel function must be called to stop
// polling.
func Context(parent context.Context, m Monitor, interval time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	if m == nil {
		return ctx, cancel
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return

			case <-ticker.C:
				if m.IsCanceled() {
					cancel()
					return
				}
			}
		}
	}()

	return ctx, cancel
}
