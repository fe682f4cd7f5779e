package status

import (
	"encoding/json"
	"math"
	"time"

	"github.com/sweeney/fridge-monitor/internal/logic"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string        `json:"event,omitempty"`
	Reason        string        `json:"reason,omitempty"`
	AlarmDisable  bool          `json:"alarm_disable"`
	Alarm         bool          `json:"alarm"`
	Channels      []ChannelJSON `json:"channels"`
	UptimeSeconds int64         `json:"uptime_seconds"`
	StartTime     string        `json:"start_time"`
	Timestamp     string        `json:"timestamp"`
	MQTT          MQTTStatus    `json:"mqtt"`
	RSSI          *int          `json:"rssi,omitempty"`
	Network       *NetworkJSON  `json:"network,omitempty"`
	Events        []EventJSON   `json:"recent_events,omitempty"`
	Config        ConfigJSON    `json:"config"`
}

// ChannelJSON is the JSON representation of a channel. Unknown readings
// are null.
type ChannelJSON struct {
	Name        string   `json:"name"`
	Reference   bool     `json:"reference,omitempty"`
	Temperature *float64 `json:"temperature"`
	Average     *float64 `json:"average_24h"`
	Delta       *float64 `json:"delta_per_min"`
	Alarm       string   `json:"alarm,omitempty"`
	Door        string   `json:"door,omitempty"`
	Updated     string   `json:"updated,omitempty"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
	BaseTopic string `json:"base_topic"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// EventJSON is the JSON representation of an alarm event.
type EventJSON struct {
	Time    string `json:"time"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	SampleSeconds int64  `json:"sample_seconds"`
	TickSeconds   int64  `json:"tick_seconds"`
	SaveSeconds   int64  `json:"save_delay_seconds"`
	ResetHour     int    `json:"alarm_disable_reset_hour"`
	Broker        string `json:"broker"`
	HTTPAddr      string `json:"http_addr"`
	Store         string `json:"store"`
}

// rounded returns v to two decimals, or nil when it is not a number.
func rounded(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	r := math.Round(v*100) / 100
	return &r
}

func buildChannel(cs ChannelStatus) ChannelJSON {
	c := ChannelJSON{
		Name:        cs.Name,
		Reference:   cs.Reference,
		Temperature: rounded(cs.Temp),
		Average:     rounded(cs.Average),
		Delta:       rounded(cs.Delta),
	}
	if !cs.Updated.IsZero() {
		c.Updated = cs.Updated.UTC().Format(time.RFC3339)
	}
	if !cs.Reference {
		c.Alarm = string(cs.Alarm)
		c.Door = string(logic.DoorClosed)
		if cs.DoorOpen {
			c.Door = string(logic.DoorOpen)
		}
	}
	return c
}

func buildInner(snap Snapshot) StatusInner {
	inner := StatusInner{
		AlarmDisable:  snap.AlarmDisable,
		Alarm:         snap.Alarm,
		Channels:      make([]ChannelJSON, 0, len(snap.Channels)),
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT: MQTTStatus{
			Connected: snap.MQTTConnected,
			Broker:    snap.Config.Broker,
			BaseTopic: snap.Config.BaseTopic,
		},
		RSSI: snap.RSSI,
		Config: ConfigJSON{
			SampleSeconds: int64(snap.Config.SampleInterval.Seconds()),
			TickSeconds:   int64(snap.Config.TickInterval.Seconds()),
			SaveSeconds:   int64(snap.Config.SaveDelay.Seconds()),
			ResetHour:     snap.Config.ResetHour,
			Broker:        snap.Config.Broker,
			HTTPAddr:      snap.Config.HTTPAddr,
			Store:         snap.Config.StoreDriver,
		},
	}
	for _, cs := range snap.Channels {
		inner.Channels = append(inner.Channels, buildChannel(cs))
	}
	for _, e := range snap.Events {
		inner.Events = append(inner.Events, EventJSON{
			Time:    e.Time.UTC().Format(time.RFC3339),
			Kind:    e.Kind,
			Message: e.Message,
		})
	}
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
