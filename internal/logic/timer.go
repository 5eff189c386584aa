package logic

// Timer fires on an interval measured against a wrapping millisecond clock.
type Timer struct {
	last     uint32
	interval uint32
}

// NewTimer creates a timer whose reference point is start.
func NewTimer(interval, start uint32) *Timer {
	return &Timer{last: start, interval: interval}
}

// Elapsed returns the milliseconds since the timer last fired.
// Unsigned subtraction keeps the result correct across clock wraparound.
func Elapsed(now, last uint32) uint32 {
	return now - last
}

// Due reports whether the interval has elapsed at now.
func (t *Timer) Due(now uint32) bool {
	return Elapsed(now, t.last) >= t.interval
}

// Reset moves the reference point to now.
func (t *Timer) Reset(now uint32) {
	t.last = now
}

// Fire resets the timer and returns true if it was due.
func (t *Timer) Fire(now uint32) bool {
	if !t.Due(now) {
		return false
	}
	t.last = now
	return true
}

// Interval returns the configured interval.
func (t *Timer) Interval() uint32 {
	return t.interval
}
