// Package debounce coalesces bursts of write requests into one delayed write.
package debounce

import (
	"sync"
	"time"

	"github.com/sweeney/fridge-monitor/internal/logger"
)

// Timer is the part of *time.Timer a Debouncer needs.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f to run after d, like time.AfterFunc.
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Debouncer delays writes of a value of type T. Each Request replaces the
// pending value and restarts the delay, so only the latest value of a burst
// is written. A failed write is retried after another delay unless a newer
// value has been requested meanwhile.
type Debouncer[T any] struct {
	delay time.Duration
	write func(T) error
	after AfterFunc
	log   *logger.Logger

	writeMu sync.Mutex // serializes writes; taken before mu

	mu      sync.Mutex
	value   T
	pending bool
	seq     uint64
	timer   Timer
	stopped bool
}

// New returns a Debouncer writing through write after delay.
func New[T any](delay time.Duration, write func(T) error, log *logger.Logger) *Debouncer[T] {
	return &Debouncer[T]{
		delay: delay,
		write: write,
		after: realAfterFunc,
		log:   log,
	}
}

// WithAfterFunc replaces the timer factory. Used by tests.
func (d *Debouncer[T]) WithAfterFunc(after AfterFunc) *Debouncer[T] {
	d.after = after
	return d
}

// Request queues v for writing, replacing any pending value.
func (d *Debouncer[T]) Request(v T) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.schedule(v)
}

// schedule must be called with mu held.
func (d *Debouncer[T]) schedule(v T) {
	d.value = v
	d.pending = true
	d.seq++
	if d.timer != nil {
		d.timer.Stop()
	}
	seq := d.seq
	d.timer = d.after(d.delay, func() { d.fire(seq) })
}

func (d *Debouncer[T]) fire(seq uint64) {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	d.mu.Lock()
	if d.stopped || !d.pending || seq != d.seq {
		d.mu.Unlock()
		return
	}
	v := d.take()
	d.mu.Unlock()

	if err := d.write(v); err != nil {
		d.log.Warnw("debounced write failed, will retry", "err", err, "delay", d.delay)
		d.mu.Lock()
		if !d.stopped && !d.pending {
			d.schedule(v)
		}
		d.mu.Unlock()
	}
}

// take clears the pending value and returns it. mu must be held.
func (d *Debouncer[T]) take() T {
	v := d.value
	var zero T
	d.value = zero
	d.pending = false
	d.timer = nil
	return v
}

// Pending reports whether a write is waiting for its delay.
func (d *Debouncer[T]) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending
}

// Flush writes the pending value immediately, if any.
func (d *Debouncer[T]) Flush() error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	d.mu.Lock()
	if !d.pending {
		d.mu.Unlock()
		return nil
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	v := d.take()
	d.mu.Unlock()

	return d.write(v)
}

// Stop cancels any pending write. Later requests are ignored.
func (d *Debouncer[T]) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	d.take()
}
