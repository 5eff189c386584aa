//go:build !linux

package gpio

import "errors"

// RealSource is not available on non-Linux platforms.
type RealSource struct{}

// NewRealSource returns a source that fails to start on non-Linux platforms.
func NewRealSource(chip string, offset int) *RealSource {
	return &RealSource{}
}

// Start is not implemented on non-Linux platforms.
func (s *RealSource) Start(onPulse func()) error {
	return errors.New("gpio: not supported on this platform (requires Linux)")
}

// Close is not implemented on non-Linux platforms.
func (s *RealSource) Close() error {
	return nil
}
