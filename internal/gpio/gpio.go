// Package gpio delivers Geiger tube pulses from a GPIO line.
// The real implementation uses the Linux GPIO character device with
// kernel edge detection. The fake implementation allows testing without hardware.
package gpio

// Source emits a callback for every rising edge on the tube signal line.
type Source interface {
	// Start begins edge detection. onPulse is called from a goroutine owned
	// by the source and must return quickly.
	Start(onPulse func()) error

	// Close releases GPIO resources. No onPulse calls happen after it returns.
	Close() error
}

// Defaults for a Raspberry Pi with the tube board VIN on BCM 27.
const (
	DefaultChip = "gpiochip0"
	DefaultLine = 27
)
