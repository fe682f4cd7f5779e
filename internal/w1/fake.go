package w1

import (
	"errors"
	"sync"
)

// Reading is one scripted result of FakeSource.
type Reading struct {
	Temp float64
	Err  error
}

// FakeSource is a test double that returns scripted readings.
// Each call to Read consumes the next reading; the last one repeats.
type FakeSource struct {
	mu       sync.Mutex
	readings []Reading
	index    int
	reads    int
}

// NewFakeSource creates a FakeSource with the given readings.
func NewFakeSource(readings ...Reading) *FakeSource {
	return &FakeSource{readings: readings}
}

// Constant returns a FakeSource that always reads temp.
func Constant(temp float64) *FakeSource {
	return NewFakeSource(Reading{Temp: temp})
}

// Read returns the next scripted reading.
func (f *FakeSource) Read() (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.readings) == 0 {
		return 0, errors.New("no readings configured")
	}
	r := f.readings[f.index]
	if f.index < len(f.readings)-1 {
		f.index++
	}
	f.reads++
	return r.Temp, r.Err
}

// Set replaces the script and restarts it.
func (f *FakeSource) Set(readings ...Reading) {
	f.mu.Lock()
	f.readings = readings
	f.index = 0
	f.mu.Unlock()
}

// Reads reports how many times Read was called.
func (f *FakeSource) Reads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads
}
