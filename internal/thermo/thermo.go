// Package thermo converts MAX31850K thermocouple scratchpads into
// calibrated type K temperatures.
// Decoding is pure: no I/O, no clocks, no logging.
package thermo

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrSensorFault is returned when the digitizer reports an open or
	// shorted thermocouple.
	ErrSensorFault = errors.New("thermo: sensor fault")
	// ErrNotReady is returned when the 1-Wire CRC check did not pass.
	ErrNotReady = errors.New("thermo: sensor not ready")
)

// ScratchpadLen is the number of bytes in a MAX31850K scratchpad.
const ScratchpadLen = 9

// MicrovoltsPerDegree is the MAX31850K type K conversion factor, in mV/°C.
const MicrovoltsPerDegree = 0.041276

// Scratchpad is a raw MAX31850K memory read.
type Scratchpad [ScratchpadLen]byte

// Fault reports whether the fault bit is set.
func (s Scratchpad) Fault() bool {
	return s[0]&0x01 == 0x01
}

// Thermocouple returns the uncompensated thermocouple temperature in °C.
func (s Scratchpad) Thermocouple() float64 {
	raw := int(s[1])<<6 | int(s[0])>>2
	return float64(signExtend(raw, 14)) / 4.0
}

// ColdJunction returns the internal reference junction temperature in °C.
func (s Scratchpad) ColdJunction() float64 {
	raw := int(s[3])<<4 | int(s[2])>>4
	return float64(signExtend(raw, 12)) / 16.0
}

// Address returns the AD0-AD3 strap address (0-15).
func (s Scratchpad) Address() int {
	return int(s[4] & 0x0F)
}

// signExtend interprets the low bits of v as a two's complement value.
func signExtend(v, bits int) int {
	v &= 1<<bits - 1
	if v&(1<<(bits-1)) != 0 {
		v -= 1 << bits
	}
	return v
}

// Decode returns the linearized, cold-junction compensated temperature in °C.
func Decode(s Scratchpad) (float64, error) {
	if s.Fault() {
		return 0, ErrSensorFault
	}
	return Linearize(s.Thermocouple(), s.ColdJunction()), nil
}

// Linearize corrects the digitizer's linear thermocouple reading tc using
// the cold junction temperature cj, both in °C.
func Linearize(tc, cj float64) float64 {
	vcj := ColdJunctionVoltage(cj)
	vt := MicrovoltsPerDegree * (tc - cj)
	return VoltageToTemperature(vt + vcj)
}

// ParseSlave parses the contents of a w1_slave file. The first line holds
// the hex scratchpad followed by the CRC verdict.
//
//	72 01 ff 14 f0 ff ff ff d9 : crc=d9 YES
func ParseSlave(text string) (Scratchpad, error) {
	var s Scratchpad
	lines := strings.Split(strings.TrimSpace(text), "\n")
	if len(lines) == 0 || !strings.HasSuffix(strings.TrimSpace(lines[0]), "YES") {
		return s, ErrNotReady
	}
	fields := strings.Fields(lines[0])
	if len(fields) < ScratchpadLen {
		return s, fmt.Errorf("parse scratchpad: %d bytes, want %d", len(fields), ScratchpadLen)
	}
	for i := 0; i < ScratchpadLen; i++ {
		b, err := strconv.ParseUint(fields[i], 16, 8)
		if err != nil {
			return s, fmt.Errorf("parse scratchpad byte %d: %w", i, err)
		}
		s[i] = byte(b)
	}
	return s, nil
}

// ParseMilliCelsius parses the temperature line of a plain 1-Wire
// thermometer (DS18S20 and friends).
//
//	32 00 4b 46 ff ff 02 10 f4 : crc=f4 YES
//	32 00 4b 46 ff ff 02 10 f4 t=24875
func ParseMilliCelsius(text string) (float64, error) {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	if len(lines) < 2 || !strings.HasSuffix(strings.TrimSpace(lines[0]), "YES") {
		return 0, ErrNotReady
	}
	_, value, ok := strings.Cut(lines[1], "t=")
	if !ok {
		return 0, fmt.Errorf("parse temperature: no t= in %q", lines[1])
	}
	milli, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("parse temperature: %w", err)
	}
	return float64(milli) / 1000.0, nil
}
