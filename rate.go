package videoengine

import (
	"sync"
	"time"
)

// RateTracker counts events and reports the rate over the last sampling
// window of at least one second.
type RateTracker struct {
	mu         sync.Mutex
	now        func() time.Time
	total      int64
	lastTotal  int64
	lastSample time.Time
	rate       int
}

// NewRateTracker creates a tracker using the wall clock.
func NewRateTracker() *RateTracker {
	return newRateTrackerWithClock(time.Now)
}

func newRateTrackerWithClock(now func() time.Time) *RateTracker {
	return &RateTracker{now: now, lastSample: now()}
}

// Update records n events.
func (r *RateTracker) Update(n int) {
	r.mu.Lock()
	r.total += int64(n)
	r.mu.Unlock()
}

// Total returns the number of events recorded so far.
func (r *RateTracker) Total() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.total
}

// Rate returns events per second. The value is recomputed once a full
// second has passed since the previous sample and held until then.
func (r *RateTracker) Rate() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	elapsed := now.Sub(r.lastSample)
	if elapsed >= time.Second {
		r.rate = int(time.Duration(r.total-r.lastTotal) * time.Second / elapsed)
		r.lastTotal = r.total
		r.lastSample = now
	}
	return r.rate
}
