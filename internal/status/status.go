// Package status provides a thread-safe status tracker for the fridge-monitor daemon.
// It is read by the HTTP handlers and the lifecycle events published over MQTT.
package status

import (
	"math"
	"sync"
	"time"

	"github.com/sweeney/fridge-monitor/internal/logic"
	"github.com/sweeney/fridge-monitor/internal/store"
)

// MaxEvents bounds the alarm events kept for display.
const MaxEvents = 20

// NetworkInfo contains network state as reported by pi-helper.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	SampleInterval time.Duration
	TickInterval   time.Duration
	SaveDelay      time.Duration
	ResetHour      int
	Broker         string
	BaseTopic      string
	HTTPAddr       string
	StoreDriver    string
}

// ChannelStatus is the last published view of one channel.
type ChannelStatus struct {
	Name      string
	Reference bool
	Temp      float64 // latest minute bucket; NaN before the first tick
	Average   float64 // 24 h average; NaN before the first tick
	Delta     float64 // °C/min; NaN with fewer than two buckets
	Alarm     logic.AlarmState
	DoorOpen  bool
	Updated   time.Time
}

// NewChannelStatus returns a status with every reading unknown.
func NewChannelStatus(name string, reference bool) ChannelStatus {
	return ChannelStatus{
		Name:      name,
		Reference: reference,
		Temp:      math.NaN(),
		Average:   math.NaN(),
		Delta:     math.NaN(),
		Alarm:     logic.AlarmNormal,
	}
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Channels      []ChannelStatus
	AlarmDisable  bool
	Alarm         bool
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	RSSI          *int
	Network       *NetworkInfo
	Events        []store.AlarmEvent // newest first
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
		now: time.Now,
	}
}

// WithClock replaces the clock used to stamp snapshots.
func (t *Tracker) WithClock(now func() time.Time) *Tracker {
	t.now = now
	return t
}

// UpdateChannel stores cs, replacing the channel with the same name.
// New channels keep their insertion order.
func (t *Tracker) UpdateChannel(cs ChannelStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.snap.Channels {
		if t.snap.Channels[i].Name == cs.Name {
			t.snap.Channels[i] = cs
			return
		}
	}
	t.snap.Channels = append(t.snap.Channels, cs)
}

// SetAlarm sets the promoted alarm flags.
func (t *Tracker) SetAlarm(alarmDisable, alarm bool) {
	t.mu.Lock()
	t.snap.AlarmDisable = alarmDisable
	t.snap.Alarm = alarm
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetRSSI sets the Wi-Fi signal level; nil when it cannot be measured.
func (t *Tracker) SetRSSI(rssi *int) {
	t.mu.Lock()
	t.snap.RSSI = rssi
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// RecordEvent keeps e among the most recent alarm events.
func (t *Tracker) RecordEvent(e store.AlarmEvent) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	events := append([]store.AlarmEvent{e}, t.snap.Events...)
	if len(events) > MaxEvents {
		events = events[:MaxEvents]
	}
	t.snap.Events = events
	return nil
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set from the tracker's clock at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	s.Channels = append([]ChannelStatus(nil), t.snap.Channels...)
	s.Events = append([]store.AlarmEvent(nil), t.snap.Events...)
	if t.snap.RSSI != nil {
		v := *t.snap.RSSI
		s.RSSI = &v
	}
	if t.snap.Network != nil {
		n := *t.snap.Network
		s.Network = &n
	}
	t.mu.RUnlock()
	s.Now = t.now()
	return s
}
