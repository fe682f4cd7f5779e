// Package gpio drives the alert buzzer on the thermocouple hat.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// Alerter switches an audible alert on or off.
type Alerter interface {
	// Set drives the output: true sounds the buzzer.
	Set(on bool) error

	// Close silences the output and releases GPIO resources.
	Close() error
}

// DefaultBuzzerPin is the buzzer line on the hat (BCM numbering).
const DefaultBuzzerPin = 27

// DefaultChip is the GPIO character device of the Pi header.
const DefaultChip = "gpiochip0"
