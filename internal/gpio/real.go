//go:build linux

package gpio

import (
	"fmt"
	"sync"

	"github.com/warthog618/go-gpiocdev"
)

// RealAlerter drives a buzzer through the Linux GPIO character device.
type RealAlerter struct {
	mu   sync.Mutex
	chip *gpiocdev.Chip
	line *gpiocdev.Line
	on   bool
}

// NewRealAlerter requests pin on chip as an output, initially off.
func NewRealAlerter(chipName string, pin int) (*RealAlerter, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	line, err := chip.RequestLine(pin, gpiocdev.AsOutput(0), gpiocdev.WithConsumer("fridge-monitor"))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request buzzer pin %d: %w", pin, err)
	}

	return &RealAlerter{chip: chip, line: line}, nil
}

// Set drives the buzzer line. Repeated values are not rewritten.
func (a *RealAlerter) Set(on bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.line == nil {
		return fmt.Errorf("buzzer closed")
	}
	if on == a.on {
		return nil
	}
	v := 0
	if on {
		v = 1
	}
	if err := a.line.SetValue(v); err != nil {
		return fmt.Errorf("set buzzer: %w", err)
	}
	a.on = on
	return nil
}

// Close switches the buzzer off and releases the line.
// The pin is returned to input with pull-down, the Pi boot default, so
// the buzzer stays silent across reboots.
func (a *RealAlerter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var errs []error
	if a.line != nil {
		if err := a.line.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("silence buzzer: %w", err))
		}
		if err := a.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure buzzer pin: %w", err))
		}
		if err := a.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close buzzer pin: %w", err))
		}
		a.line = nil
	}
	if a.chip != nil {
		if err := a.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
		a.chip = nil
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
