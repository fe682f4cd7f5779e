//go:build !linux

package gpio

import "errors"

// RealAlerter is not available on non-Linux platforms.
type RealAlerter struct{}

// NewRealAlerter returns an error on non-Linux platforms.
func NewRealAlerter(chipName string, pin int) (*RealAlerter, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}

// Set is not implemented on non-Linux platforms.
func (a *RealAlerter) Set(on bool) error {
	return errors.New("gpio: not supported")
}

// Close is not implemented on non-Linux platforms.
func (a *RealAlerter) Close() error {
	return nil
}
