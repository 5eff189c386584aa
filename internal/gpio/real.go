//go:build linux

package gpio

import (
	"errors"
	"fmt"
	"sync"

	"github.com/warthog618/go-gpiocdev"
)

// RealSource watches a GPIO line for rising edges using the character device.
type RealSource struct {
	chipName string
	offset   int

	mu   sync.Mutex
	line *gpiocdev.Line
}

// NewRealSource creates a pulse source for the given chip and line offset.
// The line is not requested until Start.
func NewRealSource(chip string, offset int) *RealSource {
	return &RealSource{chipName: chip, offset: offset}
}

// Start requests the line as an input with rising-edge events.
func (s *RealSource) Start(onPulse func()) error {
	if onPulse == nil {
		return errors.New("gpio: nil pulse handler")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.line != nil {
		return errors.New("gpio: source already started")
	}

	// The tube board drives the line actively, so no bias is applied.
	line, err := gpiocdev.RequestLine(s.chipName, s.offset,
		gpiocdev.AsInput,
		gpiocdev.WithRisingEdge,
		gpiocdev.WithEventHandler(func(evt gpiocdev.LineEvent) {
			if evt.Type == gpiocdev.LineEventRisingEdge {
				onPulse()
			}
		}),
	)
	if err != nil {
		return fmt.Errorf("request line %s:%d: %w", s.chipName, s.offset, err)
	}
	s.line = line
	return nil
}

// Close releases the line. Reconfigures it to a plain input with pull-down
// (matching Pi boot defaults) before closing.
func (s *RealSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.line == nil {
		return nil
	}

	var errs []error
	if err := s.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
		errs = append(errs, fmt.Errorf("reconfigure line: %w", err))
	}
	if err := s.line.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close line: %w", err))
	}
	s.line = nil

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
