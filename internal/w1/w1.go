// Package w1 reads temperatures from 1-Wire devices exposed by the Linux
// w1 sysfs driver. The fake implementation allows testing without hardware.
package w1

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/sweeney/fridge-monitor/internal/thermo"
)

// Source reads one channel's temperature in °C.
type Source interface {
	Read() (float64, error)
}

// DefaultBaseDir is where the kernel exposes 1-Wire slaves.
const DefaultBaseDir = "/sys/bus/w1/devices"

const slaveFile = "w1_slave"

// Family codes of supported devices.
const (
	FamilyDS18S20   = 0x10
	FamilyMAX31850K = 0x3b
)

// ErrNoSensor is returned when a required device is missing.
var ErrNoSensor = errors.New("w1: no sensor found")

// Device is one slave directory, e.g. 3b-0000001a2b3c.
type Device struct {
	ID     string
	Family byte
	path   string
}

// Discover lists the supported devices under baseDir, sorted by ID.
func Discover(baseDir string) ([]Device, error) {
	entries, err := os.ReadDir(baseDir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", baseDir, err)
	}
	var devices []Device
	for _, e := range entries {
		prefix, _, ok := strings.Cut(e.Name(), "-")
		if !ok || len(prefix) != 2 {
			continue
		}
		family, err := strconv.ParseUint(prefix, 16, 8)
		if err != nil {
			continue
		}
		switch family {
		case FamilyDS18S20, FamilyMAX31850K:
			devices = append(devices, Device{
				ID:     e.Name(),
				Family: byte(family),
				path:   filepath.Join(baseDir, e.Name(), slaveFile),
			})
		}
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].ID < devices[j].ID })
	return devices, nil
}

func (d Device) read() (string, error) {
	data, err := os.ReadFile(d.path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", d.ID, err)
	}
	return string(data), nil
}

// Thermocouple is a MAX31850K digitizer.
type Thermocouple struct {
	Device
}

// Read decodes the scratchpad into a compensated temperature.
func (t *Thermocouple) Read() (float64, error) {
	text, err := t.read()
	if err != nil {
		return 0, err
	}
	s, err := thermo.ParseSlave(text)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", t.ID, err)
	}
	v, err := thermo.Decode(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", t.ID, err)
	}
	return v, nil
}

// Address reads the AD0-AD3 strap address.
func (t *Thermocouple) Address() (int, error) {
	text, err := t.read()
	if err != nil {
		return 0, err
	}
	s, err := thermo.ParseSlave(text)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", t.ID, err)
	}
	return s.Address(), nil
}

// Thermometer is a DS18S20 board sensor.
type Thermometer struct {
	Device
}

// Read returns the sensor's temperature.
func (t *Thermometer) Read() (float64, error) {
	text, err := t.read()
	if err != nil {
		return 0, err
	}
	v, err := thermo.ParseMilliCelsius(text)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", t.ID, err)
	}
	return v, nil
}

// Sensors are the devices found on the hat.
type Sensors struct {
	Board         *Thermometer
	Thermocouples []*Thermocouple // ordered by strap address
}

// Scan discovers the board sensor and up to max thermocouples.
// A thermocouple whose address cannot be read sorts last.
func Scan(baseDir string, max int) (Sensors, error) {
	devices, err := Discover(baseDir)
	if err != nil {
		return Sensors{}, err
	}

	var s Sensors
	type addressed struct {
		tc   *Thermocouple
		addr int
	}
	var tcs []addressed
	for _, d := range devices {
		switch d.Family {
		case FamilyDS18S20:
			if s.Board == nil {
				s.Board = &Thermometer{Device: d}
			}
		case FamilyMAX31850K:
			tc := &Thermocouple{Device: d}
			addr, err := tc.Address()
			if err != nil {
				addr = 1 << 8
			}
			tcs = append(tcs, addressed{tc: tc, addr: addr})
		}
	}
	if s.Board == nil {
		return Sensors{}, fmt.Errorf("board sensor: %w", ErrNoSensor)
	}
	if len(tcs) == 0 {
		return Sensors{}, fmt.Errorf("thermocouple: %w", ErrNoSensor)
	}

	sort.SliceStable(tcs, func(i, j int) bool { return tcs[i].addr < tcs[j].addr })
	for i, a := range tcs {
		if i == max {
			break
		}
		s.Thermocouples = append(s.Thermocouples, a.tc)
	}
	return s, nil
}
