// Package logic contains the per-channel temperature statistics and the
// door and alarm state machines.
// Nothing here touches hardware, MQTT or the OS. Time is always injected
// via time.Time parameters, and a Channel is owned by a single goroutine.
package logic

import (
	"fmt"
	"time"
)

// Window and noise constants. These are empirical values carried over from
// the deployed fridge monitors and are not derived from anything.
const (
	// RawWindow bounds the age of raw samples kept for the minute average.
	RawWindow = 57 * time.Second
	// BucketWindow bounds the age of minute buckets relative to the newest.
	BucketWindow = 24*time.Hour - 30*time.Second
	// NoiseThreshold is the sample-to-sample jump, in °C, treated as noise.
	NoiseThreshold = 3.0
	// MaxDroppedNoisy consecutive noisy samples are dropped; the next is kept.
	MaxDroppedNoisy = 3
	// DoorHysteresis is the deadband, in °C/min, below the rise threshold.
	DoorHysteresis = 0.5
)

// AlarmState is the state of a channel's temperature alarm.
type AlarmState string

const (
	AlarmNormal  AlarmState = "NORMAL"
	AlarmPending AlarmState = "PENDING"
	AlarmActive  AlarmState = "ACTIVE"
)

// DoorState is the inferred state of the door in front of a probe.
type DoorState string

const (
	DoorClosed DoorState = "CLOSED"
	DoorOpen   DoorState = "OPEN"
)

// Thresholds configures the alarm and door machines of one channel.
type Thresholds struct {
	// SetTemp arms the alarm once held for SetTime.
	SetTemp float64
	// ResetTemp clears an active alarm. Must be below SetTemp.
	ResetTemp float64
	// MaxTemp raises the alarm immediately.
	MaxTemp float64
	// SetTime is how long SetTemp must be held before the alarm goes active.
	SetTime time.Duration
	// RiseThreshold in °C/min opens the door.
	RiseThreshold float64
}

// DefaultThresholds returns the stock alarm and door settings.
func DefaultThresholds() Thresholds {
	return Thresholds{
		SetTemp:       15,
		ResetTemp:     10,
		MaxTemp:       25,
		SetTime:       30 * time.Minute,
		RiseThreshold: 1.0,
	}
}

// Validate reports inconsistent thresholds.
func (t Thresholds) Validate() error {
	if t.ResetTemp >= t.SetTemp {
		return fmt.Errorf("reset temp %.2f must be below set temp %.2f", t.ResetTemp, t.SetTemp)
	}
	if t.MaxTemp < t.SetTemp {
		return fmt.Errorf("max temp %.2f must not be below set temp %.2f", t.MaxTemp, t.SetTemp)
	}
	if t.SetTime < 0 {
		return fmt.Errorf("set time %v must not be negative", t.SetTime)
	}
	return nil
}

// Sample is a single accepted raw reading.
type Sample struct {
	Time time.Time
	Temp float64
}

// Bucket is a one-minute average.
type Bucket struct {
	Time time.Time
	Temp float64
}

// Snapshot is the durable part of a channel.
type Snapshot struct {
	Average float64
	Delta   float64 // NaN when fewer than two buckets exist
	Buckets []Bucket
}

// TickResult describes the outcome of one minute tick.
type TickResult struct {
	// Updated is false when the raw window was empty and nothing changed.
	Updated bool
	Temp    float64
	Average float64
	Delta   float64

	Alarm        AlarmState
	AlarmChanged bool
	Door         DoorState
	DoorChanged  bool
}
