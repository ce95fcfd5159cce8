// Package optime implements the process-wide monotonic logical clock used to
// stamp replicated operations: strictly increasing (seconds, counter) pairs,
// skewing forward rather than regressing when the wall clock goes backwards.
package optime

import (
	"sync"
	"time"
)

// OpTime is a totally ordered logical timestamp.
type OpTime struct {
	Seconds uint32
	Counter uint32
}

// Less reports whether t sorts strictly before other in lexicographic order.
func (t OpTime) Less(other OpTime) bool {
	if t.Seconds != other.Seconds {
		return t.Seconds < other.Seconds
	}
	return t.Counter < other.Counter
}

// Equal reports whether t and other are the same timestamp.
func (t OpTime) Equal(other OpTime) bool {
	return t.Seconds == other.Seconds && t.Counter == other.Counter
}

// WaitOutcome describes why WaitForAdvance returned.
type WaitOutcome int

const (
	Advanced WaitOutcome = iota
	TimedOut
)

// NowFunc returns the current wall-clock second; overridable for tests.
type NowFunc func() uint32

func defaultNow() uint32 {
	return uint32(time.Now().Unix())
}

// Oracle is a process-wide source of strictly increasing OpTime values.
type Oracle struct {
	mu   sync.Mutex
	cond *sync.Cond
	last OpTime
	now  NowFunc
}

// New constructs an Oracle using the real wall clock.
func New() *Oracle {
	return NewWithClock(defaultNow)
}

// NewWithClock constructs an Oracle using a caller-supplied clock, primarily
// for deterministic tests of the skew-forward behavior.
func NewWithClock(now NowFunc) *Oracle {
	o := &Oracle{now: now}
	o.cond = sync.NewCond(&o.mu)
	return o
}

// Now produces the next OpTime in the strictly increasing sequence.
func (o *Oracle) Now() OpTime {
	o.mu.Lock()
	defer o.mu.Unlock()

	t := o.now()
	switch {
	case t == o.last.Seconds:
		o.last.Counter++
	case t > o.last.Seconds:
		o.last.Seconds = t
		o.last.Counter = 1
	default:
		// Wall clock regressed: skew forward rather than regress.
		o.last.Counter++
	}

	o.cond.Broadcast()
	return o.last
}

// GetLast returns the most recently produced OpTime without advancing it.
func (o *Oracle) GetLast() OpTime {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.last
}

// WaitForAdvance blocks until the stored value differs from snapshot or the
// timeout elapses, returning which happened and the value observed.
func (o *Oracle) WaitForAdvance(snapshot OpTime, timeout time.Duration) (WaitOutcome, OpTime) {
	deadline := time.Now().Add(timeout)

	o.mu.Lock()
	defer o.mu.Unlock()

	for o.last.Equal(snapshot) {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return TimedOut, o.last
		}
		condWaitTimeout(o.cond, remaining)
	}
	if time.Now().After(deadline) && o.last.Equal(snapshot) {
		return TimedOut, o.last
	}
	return Advanced, o.last
}

// condWaitTimeout waits on c for at most d, unblocking itself via a timer
// that broadcasts on the same condition. The caller's own loop is
// responsible for re-checking its predicate and the deadline afterward.
func condWaitTimeout(c *sync.Cond, d time.Duration) {
	timer := time.AfterFunc(d, func() {
		c.L.Lock()
		c.Broadcast()
		c.L.Unlock()
	})
	defer timer.Stop()
	c.Wait()
}
