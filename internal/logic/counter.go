package logic

import "sync/atomic"

// PulseCounter accumulates tube pulses between samples.
//
// OnPulse is the only method called from the edge-event goroutine; everything
// else belongs to the loop. The zero value is ready to use.
type PulseCounter struct {
	counts atomic.Uint64
	sig    atomic.Bool
}

// OnPulse records one rising edge. It must stay lock-free and must not log.
func (c *PulseCounter) OnPulse() {
	c.counts.Add(1)
	c.sig.Store(true)
}

// Counts returns the pulses accumulated since the last Take.
func (c *PulseCounter) Counts() uint64 {
	return c.counts.Load()
}

// Take returns the accumulated pulses and resets the counter to zero in one
// atomic step, so an edge racing the sample lands in exactly one window.
func (c *PulseCounter) Take() uint64 {
	return c.counts.Swap(0)
}

// SignalSeen reports whether at least one pulse arrived since startup.
func (c *PulseCounter) SignalSeen() bool {
	return c.sig.Load()
}
