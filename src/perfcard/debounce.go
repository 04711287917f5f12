package perfcard

import (
	"sync"
	"time"
)

// Debouncer coalesces size notifications: fn runs once with the last size after
// no new notification arrived for the quiet period.
type Debouncer struct {
	mu      sync.Mutex
	quiet   time.Duration
	fn      func(width, height int)
	timer   *time.Timer
	w, h    int
	pending bool
}

func NewDebouncer(quiet time.Duration, fn func(width, height int)) *Debouncer {
	return &Debouncer{quiet: quiet, fn: fn}
}

// Notify records a new size and restarts the quiet period.
func (d *Debouncer) Notify(width, height int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.w, d.h = width, height
	d.pending = true
	if d.quiet <= 0 {
		d.pending = false
		go d.fn(width, height)
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.quiet, d.fire)
}

func (d *Debouncer) fire() {
	d.mu.Lock()
	if !d.pending {
		d.mu.Unlock()
		return
	}
	d.pending = false
	w, h := d.w, d.h
	d.mu.Unlock()
	d.fn(w, h)
}

// Flush applies a pending size immediately.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.mu.Unlock()
	d.fire()
}

// Stop drops any pending notification.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.pending = false
}
