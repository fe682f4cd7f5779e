package mqtt

import (
	"errors"
	"math"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/fridge-monitor/internal/logger"
)

func TestTopics(t *testing.T) {
	tp := Topics{Base: "home/fridge"}
	if got := tp.State("tc1_temperature"); got != "home/fridge/tc1_temperature" {
		t.Errorf("State = %s", got)
	}
	if got := tp.Command(); got != "home/fridge/alarm_disable/set" {
		t.Errorf("Command = %s", got)
	}
	if got := tp.Availability(); got != "home/fridge/availability" {
		t.Errorf("Availability = %s", got)
	}
}

func TestFormatTemperature(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{4.0, "4.00"},
		{-18.456, "-18.46"},
		{23.027249090070466, "23.03"},
		{math.NaN(), "unavailable"},
		{math.Inf(1), "unavailable"},
	}
	for _, tt := range tests {
		if got := FormatTemperature(tt.in); got != tt.want {
			t.Errorf("FormatTemperature(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatSwitch(t *testing.T) {
	if FormatSwitch(true) != "ON" || FormatSwitch(false) != "OFF" {
		t.Error("unexpected switch payloads")
	}
}

func TestFormatSystemPayloadExactJSON(t *testing.T) {
	event := SystemEvent{
		Timestamp: time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC),
		Event:     "SHUTDOWN",
		Reason:    "SIGTERM",
	}
	payload, err := FormatSystemPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := `{"system":{"timestamp":"2026-02-03T10:00:00Z","event":"SHUTDOWN","reason":"SIGTERM"}}`
	if string(payload) != want {
		t.Errorf("got  %s\nwant %s", payload, want)
	}
}

func TestFormatSystemPayloadOmitsEmptyReason(t *testing.T) {
	payload, err := FormatSystemPayload(SystemEvent{
		Timestamp: time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC),
		Event:     "RECONNECTED",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := `{"system":{"timestamp":"2026-02-03T10:00:00Z","event":"RECONNECTED"}}`
	if string(payload) != want {
		t.Errorf("got  %s\nwant %s", payload, want)
	}
}

func TestFormatSystemPayloadRaw(t *testing.T) {
	raw := []byte(`{"status":"ok"}`)
	payload, err := FormatSystemPayload(SystemEvent{Event: "STARTUP", RawPayload: raw})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(payload) != string(raw) {
		t.Errorf("got %s, want raw payload", payload)
	}
}

func TestFakeSink(t *testing.T) {
	f := NewFakeSink()
	if err := f.Publish("alarm", "ON", true); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	f.Publish("alarm", "OFF", true)

	if got, ok := f.Last("alarm"); !ok || got != "OFF" {
		t.Errorf("Last = %q, %v", got, ok)
	}
	if _, ok := f.Last("missing"); ok {
		t.Error("Last reported a value for an unpublished key")
	}
	if len(f.Messages()) != 2 {
		t.Errorf("expected 2 messages, got %d", len(f.Messages()))
	}

	f.SetConnected(false)
	if err := f.Publish("alarm", "ON", true); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}

	f.SetConnected(true)
	f.SetPublishError(errors.New("boom"))
	if err := f.Publish("alarm", "ON", true); err == nil {
		t.Error("expected publish error")
	}

	f.Reset()
	if len(f.Messages()) != 0 {
		t.Error("Reset did not clear messages")
	}
	f.Close()
	if !f.Closed() || f.IsConnected() {
		t.Error("Close should mark closed and disconnected")
	}
}

func newOfflineClient(t *testing.T) *Client {
	t.Helper()
	return NewClient(Options{
		Broker:     "tcp://127.0.0.1:1",
		ClientID:   "test",
		BaseTopic:  "test/fridge",
		BufferSize: 2,
	}, logger.Nop())
}

func TestClientPublishWhileDisconnected(t *testing.T) {
	c := newOfflineClient(t)
	if c.IsConnected() {
		t.Fatal("client should not be connected before Connect")
	}
	if err := c.Publish("alarm", "ON", true); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}

func TestClientBuffersSystemEvents(t *testing.T) {
	c := newOfflineClient(t)
	for _, ev := range []string{"STARTUP", "RECONNECTED", "SHUTDOWN"} {
		if err := c.PublishSystem(SystemEvent{Event: ev}); err != nil {
			t.Fatalf("PublishSystem: %v", err)
		}
	}
	if n := c.buffer.len(); n != 2 {
		t.Fatalf("buffered %d events, want 2", n)
	}
	msgs := c.buffer.drainAll()
	if msgs[0].topic != "test/fridge/system" {
		t.Errorf("topic = %s", msgs[0].topic)
	}
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 0 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 0 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

var _ paho.Message = fakeMessage{}

func TestClientDeliversCommands(t *testing.T) {
	c := newOfflineClient(t)
	var got []string
	c.OnCommand(func(p string) { got = append(got, p) })

	c.handleMessage(nil, fakeMessage{topic: c.Topics().Command(), payload: []byte("ON")})
	c.handleMessage(nil, fakeMessage{topic: c.Topics().Command(), payload: []byte("off")})

	if len(got) != 2 || got[0] != "ON" || got[1] != "off" {
		t.Errorf("commands = %v", got)
	}
}

func TestClientIgnoresCommandsWithoutHandler(t *testing.T) {
	c := newOfflineClient(t)
	c.handleMessage(nil, fakeMessage{payload: []byte("ON")})
}
