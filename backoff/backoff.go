// Package backoff implements the reconnect strategy for a single unreliable
// connection: exponentially growing retry delays bounded above, jitter to avoid
// synchronized reconnect storms across bridge instances, and a hard retry
// ceiling after which the connection is considered lost for good.
package backoff

import (
	"errors"
	"math/rand"
	"sync"
	"time"
)

// ErrReconnectExhausted is reported once the retry ceiling has been exceeded
// without an intervening successful reconnect.
var ErrReconnectExhausted = errors.New("backoff: reconnect attempts exhausted")

// retryCeiling is the maximum number of disconnect notifications tolerated
// over the lifetime of one Reconnector.
const retryCeiling = 5

// Session is the subset of connection behavior the reconnector drives.
type Session interface {
	// Connected reports whether the session currently has a live connection.
	Connected() bool
	// JumpServer advances to the next configured server endpoint and attempts
	// to connect there.
	JumpServer()
}

// Reconnector schedules one-shot reconnection checks with exponential backoff.
// The attempt counter is cumulative for the lifetime of the instance; it is
// never reset, so flapping connections eventually exhaust the ceiling.
type Reconnector struct {
	MinInterval int // floor, in seconds
	MaxInterval int // cap on the exponential term, in seconds

	mu             sync.Mutex
	attempts       int
	checkScheduled bool

	exhausted     chan struct{}
	exhaustedOnce sync.Once

	// test seams
	randFloat func() float64
	schedule  func(d time.Duration, fn func())
}

// New returns a Reconnector with the given delay bounds in seconds.
func New(minInterval, maxInterval int) *Reconnector {
	return &Reconnector{
		MinInterval: minInterval,
		MaxInterval: maxInterval,
		exhausted:   make(chan struct{}),
		randFloat:   rand.Float64,
		schedule: func(d time.Duration, fn func()) {
			time.AfterFunc(d, fn)
		},
	}
}

// Disconnected is invoked whenever the session reports itself disconnected.
// It increments the attempt counter and, unless a check is already pending,
// schedules a single reconnection check after the computed delay. When the
// ceiling is exceeded it returns ErrReconnectExhausted and signals the
// Exhausted channel; the owner decides how to terminate.
func (r *Reconnector) Disconnected(sess Session) error {
	r.mu.Lock()
	r.attempts++
	if r.attempts > retryCeiling {
		r.mu.Unlock()
		r.exhaustedOnce.Do(func() { close(r.exhausted) })
		return ErrReconnectExhausted
	}
	if r.checkScheduled {
		r.mu.Unlock()
		return nil
	}
	delay := r.delayLocked()
	r.checkScheduled = true
	r.mu.Unlock()

	r.schedule(delay, func() { r.check(sess) })
	return nil
}

// delayLocked computes the next retry delay. The jitter multiplication happens
// before flooring at MinInterval, so early attempts saturate at the floor
// rather than growing; callers rely on this exact order of operations.
func (r *Reconnector) delayLocked() time.Duration {
	intvl := 1<<uint(r.attempts) - 1
	if intvl > r.MaxInterval {
		intvl = r.MaxInterval
	}
	intvl = int(float64(intvl) * r.randFloat())
	if intvl < r.MinInterval {
		intvl = r.MinInterval
	}
	return time.Duration(intvl) * time.Second
}

// check runs as the scheduled one-shot callback.
func (r *Reconnector) check(sess Session) {
	r.mu.Lock()
	r.checkScheduled = false
	r.mu.Unlock()

	if sess.Connected() {
		return
	}
	if err := r.Disconnected(sess); err != nil {
		return
	}
	sess.JumpServer()
}

// Exhausted is closed once the retry ceiling has been exceeded.
func (r *Reconnector) Exhausted() <-chan struct{} {
	return r.exhausted
}

// Attempts returns the cumulative disconnect count.
func (r *Reconnector) Attempts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempts
}
