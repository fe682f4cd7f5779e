// Package mqtt maps monitor state onto MQTT topics and delivers
// alarm-disable commands from the broker.
package mqtt

import (
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"time"
)

// ErrNotConnected is returned by Publish while the broker is unreachable.
var ErrNotConnected = errors.New("mqtt: not connected")

// Sink publishes state values by key.
type Sink interface {
	// Publish sends value to the topic for key.
	Publish(key, value string, retain bool) error

	// IsConnected reports whether publishes can currently succeed.
	IsConnected() bool
}

// DefaultBaseTopic is the prefix of every topic.
const DefaultBaseTopic = "home/fridge-monitor"

// Availability payloads.
const (
	PayloadOnline  = "online"
	PayloadOffline = "offline"
)

// Keys published outside the coordinator.
const (
	KeySystem = "system"
	KeyRSSI   = "rssi"
)

// Topics derives topic names from a base topic.
type Topics struct {
	Base string
}

// State is the topic for a published key.
func (t Topics) State(key string) string {
	return t.Base + "/" + key
}

// Command is the topic alarm-disable commands arrive on.
func (t Topics) Command() string {
	return t.Base + "/alarm_disable/set"
}

// Availability is the topic carrying online/offline and the last will.
func (t Topics) Availability() string {
	return t.Base + "/availability"
}

// FormatTemperature renders a temperature with two decimals.
// NaN renders as "unavailable".
func FormatTemperature(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "unavailable"
	}
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// FormatSwitch renders a boolean as ON or OFF.
func FormatSwitch(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}

// SystemEvent represents a lifecycle event (STARTUP, SHUTDOWN, RECONNECTED).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string
	Reason     string // shutdown only, e.g. "SIGTERM"
	RawPayload []byte // pre-formatted payload; returned as-is by FormatSystemPayload
}

// SystemPayload is the JSON body of a simple system event.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}
	return json.Marshal(SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	})
}
