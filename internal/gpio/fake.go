package gpio

import "sync"

// FakeAlerter records buzzer states for test assertions.
type FakeAlerter struct {
	mu sync.Mutex

	// States contains every value passed to Set, in order.
	States []bool

	// SetError, if set, will be returned by Set.
	SetError error

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakeAlerter creates a FakeAlerter.
func NewFakeAlerter() *FakeAlerter {
	return &FakeAlerter{}
}

// Set records the requested state.
func (f *FakeAlerter) Set(on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SetError != nil {
		return f.SetError
	}
	f.States = append(f.States, on)
	return nil
}

// On reports the last recorded state.
func (f *FakeAlerter) On() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.States) > 0 && f.States[len(f.States)-1]
}

// Close records the close and silences the fake.
func (f *FakeAlerter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	f.States = append(f.States, false)
	return nil
}
