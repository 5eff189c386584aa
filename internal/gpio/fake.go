package gpio

import (
	"errors"
	"sync"
)

// FakeSource is a test double that emits pulses on demand.
type FakeSource struct {
	mu      sync.Mutex
	onPulse func()

	// StartError, if set, will be returned by Start.
	StartError error

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakeSource creates a FakeSource.
func NewFakeSource() *FakeSource {
	return &FakeSource{}
}

// Start records the pulse handler.
func (f *FakeSource) Start(onPulse func()) error {
	if f.StartError != nil {
		return f.StartError
	}
	if onPulse == nil {
		return errors.New("gpio: nil pulse handler")
	}
	f.mu.Lock()
	f.onPulse = onPulse
	f.mu.Unlock()
	return nil
}

// Emit delivers n rising edges. Pulses emitted before Start or after Close are dropped.
func (f *FakeSource) Emit(n int) {
	f.mu.Lock()
	h := f.onPulse
	f.mu.Unlock()
	if h == nil {
		return
	}
	for i := 0; i < n; i++ {
		h()
	}
}

// Close detaches the handler.
func (f *FakeSource) Close() error {
	f.mu.Lock()
	f.onPulse = nil
	f.Closed = true
	f.mu.Unlock()
	return nil
}
