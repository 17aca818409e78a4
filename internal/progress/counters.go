// Package progress tracks pipeline completion counts and renders a live
// throughput line.
package progress

import (
	"sync/atomic"
	"time"
)

// Counters is the only state shared by every worker. All updates are atomic.
type Counters struct {
	dispatched atomic.Int64
	succeeded  atomic.Int64
	failed     atomic.Int64
	start      time.Time
}

// NewCounters returns zeroed counters with the clock started now.
func NewCounters() *Counters {
	return &Counters{start: time.Now()}
}

// Dispatch records that a worker took an item.
func (c *Counters) Dispatch() {
	c.dispatched.Add(1)
}

// Complete records the terminal outcome of one item.
func (c *Counters) Complete(succeeded bool) {
	if succeeded {
		c.succeeded.Add(1)
	} else {
		c.failed.Add(1)
	}
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Dispatched int64
	Succeeded  int64
	Failed     int64
	Elapsed    time.Duration
}

// Snapshot reads the counters. Individual fields are consistent; the set
// as a whole may straddle a concurrent update, which is fine for display.
func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		Dispatched: c.dispatched.Load(),
		Succeeded:  c.succeeded.Load(),
		Failed:     c.failed.Load(),
		Elapsed:    time.Since(c.start),
	}
}

// Completed is succeeded plus failed.
func (s Snapshot) Completed() int64 {
	return s.Succeeded + s.Failed
}

// Rate is completions per second since start.
func (s Snapshot) Rate() float64 {
	secs := s.Elapsed.Seconds()
	if secs <= 0 {
		return 0
	}
	return float64(s.Completed()) / secs
}
