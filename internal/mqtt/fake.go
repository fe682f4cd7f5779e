package mqtt

import "sync"

// Message is one publish recorded by FakeSink.
type Message struct {
	Key    string
	Value  string
	Retain bool
}

// FakeSink records publishes for test assertions. Safe for concurrent use.
type FakeSink struct {
	mu sync.Mutex

	messages     []Message
	systemEvents []SystemEvent
	connected    bool
	publishErr   error
	closed       bool
}

// NewFakeSink creates a connected FakeSink.
func NewFakeSink() *FakeSink {
	return &FakeSink{connected: true}
}

// Publish records the message.
func (f *FakeSink) Publish(key, value string, retain bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return ErrNotConnected
	}
	if f.publishErr != nil {
		return f.publishErr
	}
	f.messages = append(f.messages, Message{Key: key, Value: value, Retain: retain})
	return nil
}

// PublishSystem records the system event.
func (f *FakeSink) PublishSystem(event SystemEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.systemEvents = append(f.systemEvents, event)
	return nil
}

// IsConnected reports the simulated connection state.
func (f *FakeSink) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

// SetConnected changes the simulated connection state.
func (f *FakeSink) SetConnected(c bool) {
	f.mu.Lock()
	f.connected = c
	f.mu.Unlock()
}

// SetPublishError makes Publish fail with err until cleared with nil.
func (f *FakeSink) SetPublishError(err error) {
	f.mu.Lock()
	f.publishErr = err
	f.mu.Unlock()
}

// Messages returns a copy of the recorded messages.
func (f *FakeSink) Messages() []Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Message(nil), f.messages...)
}

// Last returns the most recent value published for key.
func (f *FakeSink) Last(key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.messages) - 1; i >= 0; i-- {
		if f.messages[i].Key == key {
			return f.messages[i].Value, true
		}
	}
	return "", false
}

// SystemEvents returns a copy of the recorded system events.
func (f *FakeSink) SystemEvents() []SystemEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SystemEvent(nil), f.systemEvents...)
}

// Close marks the sink as closed.
func (f *FakeSink) Close() error {
	f.mu.Lock()
	f.closed = true
	f.connected = false
	f.mu.Unlock()
	return nil
}

// Closed reports whether Close was called.
func (f *FakeSink) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Reset clears recorded messages.
func (f *FakeSink) Reset() {
	f.mu.Lock()
	f.messages = nil
	f.systemEvents = nil
	f.mu.Unlock()
}
