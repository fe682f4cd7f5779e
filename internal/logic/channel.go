package logic

import (
	"fmt"
	"math"
	"time"

	"github.com/sweeney/fridge-monitor/internal/logger"
)

// Channel keeps the rolling statistics and alarm state of one probe.
// Samples and buckets are stored oldest first.
type Channel struct {
	name       string
	reference  bool
	thresholds Thresholds
	log        *logger.Logger

	raw     []Sample
	buckets []Bucket
	average float64
	delta   float64

	alarm      AlarmState
	alarmSince time.Time
	door       DoorState
	noisy      int
}

// NewChannel creates a thermocouple channel with alarm and door tracking.
func NewChannel(name string, th Thresholds, log *logger.Logger) *Channel {
	return &Channel{
		name:       name,
		thresholds: th,
		log:        log,
		delta:      math.NaN(),
		alarm:      AlarmNormal,
		door:       DoorClosed,
	}
}

// NewReferenceChannel creates a channel that only keeps statistics.
// The board sensor is such a channel; it never raises alarms.
func NewReferenceChannel(name string, log *logger.Logger) *Channel {
	c := NewChannel(name, Thresholds{}, log)
	c.reference = true
	return c
}

// Append adds a raw reading. Invalid readings are dropped, and up to
// MaxDroppedNoisy consecutive readings that jump by NoiseThreshold or more
// are dropped before one is accepted anyway.
func (c *Channel) Append(temp float64, now time.Time) {
	if math.IsNaN(temp) || math.IsInf(temp, 0) {
		c.log.Warnw("dropped invalid sample", "channel", c.name, "temp", temp)
		return
	}

	c.evictRaw(now)

	if n := len(c.raw); n > 0 {
		delta := temp - c.raw[n-1].Temp
		if math.Abs(delta) >= NoiseThreshold {
			c.noisy++
			if c.noisy <= MaxDroppedNoisy {
				c.log.Infow(fmt.Sprintf("dropped %s noisy sample", ordinal(c.noisy)),
					"channel", c.name, "temp", temp, "delta", delta)
				return
			}
			c.log.Infow("accepted noisy sample", "channel", c.name, "temp", temp,
				"delta", delta, "consecutive", c.noisy)
		}
	}

	c.noisy = 0
	c.raw = append(c.raw, Sample{Time: now, Temp: temp})
}

func (c *Channel) evictRaw(now time.Time) {
	i := 0
	for i < len(c.raw) && now.Sub(c.raw[i].Time) > RawWindow {
		i++
	}
	if i > 0 {
		c.raw = append(c.raw[:0], c.raw[i:]...)
	}
}

func (c *Channel) evictBuckets(newest time.Time) {
	i := 0
	for i < len(c.buckets) && newest.Sub(c.buckets[i].Time) > BucketWindow {
		i++
	}
	if i > 0 {
		c.buckets = append(c.buckets[:0], c.buckets[i:]...)
	}
}

// Tick closes the current minute: the raw window is averaged into a new
// bucket, the 24 hour statistics are refreshed and the door and alarm
// machines are stepped. It is a no-op when no raw samples are held.
func (c *Channel) Tick(now time.Time) TickResult {
	c.evictRaw(now)
	if len(c.raw) == 0 {
		return TickResult{Alarm: c.alarm, Door: c.door, Delta: c.delta, Average: c.average}
	}

	sum := 0.0
	for _, s := range c.raw {
		sum += s.Temp
	}
	temp := sum / float64(len(c.raw))

	c.buckets = append(c.buckets, Bucket{Time: now, Temp: temp})
	c.evictBuckets(now)
	c.delta = bucketDelta(c.buckets)
	c.average = bucketMean(c.buckets)

	res := TickResult{
		Updated: true,
		Temp:    temp,
		Average: c.average,
		Delta:   c.delta,
	}
	if !c.reference {
		res.DoorChanged = c.stepDoor()
		res.AlarmChanged = c.stepAlarm(temp, now)
	}
	res.Alarm = c.alarm
	res.Door = c.door
	return res
}

// bucketDelta returns the rate of change between the two newest buckets in
// °C per minute.
func bucketDelta(b []Bucket) float64 {
	n := len(b)
	if n < 2 {
		return math.NaN()
	}
	minutes := b[n-1].Time.Sub(b[n-2].Time).Minutes()
	if minutes <= 0 {
		return math.NaN()
	}
	return (b[n-1].Temp - b[n-2].Temp) / minutes
}

func bucketMean(b []Bucket) float64 {
	if len(b) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range b {
		sum += x.Temp
	}
	return sum / float64(len(b))
}

func (c *Channel) stepDoor() bool {
	if math.IsNaN(c.delta) {
		return false
	}
	rise := c.thresholds.RiseThreshold
	switch c.door {
	case DoorClosed:
		if c.delta >= rise {
			c.door = DoorOpen
			c.log.Infow("door opened", "channel", c.name, "delta", c.delta)
			return true
		}
	case DoorOpen:
		if c.delta < rise-DoorHysteresis {
			c.door = DoorClosed
			c.log.Infow("door closed", "channel", c.name, "delta", c.delta)
			return true
		}
	}
	return false
}

func (c *Channel) stepAlarm(temp float64, now time.Time) bool {
	th := c.thresholds
	from := c.alarm

	switch c.alarm {
	case AlarmNormal:
		switch {
		case temp >= th.MaxTemp:
			c.alarm = AlarmActive
			c.alarmSince = now
		case temp >= th.SetTemp && th.SetTime <= 0:
			c.alarm = AlarmActive
			c.alarmSince = now
		case temp >= th.SetTemp:
			c.alarm = AlarmPending
			c.alarmSince = now
		}
	case AlarmPending:
		switch {
		case temp < th.SetTemp:
			c.alarm = AlarmNormal
			c.alarmSince = time.Time{}
		case temp >= th.MaxTemp, now.Sub(c.alarmSince) >= th.SetTime:
			c.alarm = AlarmActive
		}
	case AlarmActive:
		if temp <= th.ResetTemp {
			c.alarm = AlarmNormal
			c.alarmSince = time.Time{}
		}
	}

	if c.alarm == from {
		return false
	}
	c.log.Infow("alarm transition", "channel", c.name, "from", from, "to", c.alarm, "temp", temp)
	return true
}

// Name returns the channel's display name.
func (c *Channel) Name() string { return c.name }

// IsReference reports whether the channel is excluded from alarms.
func (c *Channel) IsReference() bool { return c.reference }

// Average returns the mean of the retained minute buckets.
func (c *Channel) Average() float64 { return c.average }

// Delta returns the latest rate of change in °C/min, NaN if unknown.
func (c *Channel) Delta() float64 { return c.delta }

// Latest returns the newest minute bucket.
func (c *Channel) Latest() (Bucket, bool) {
	if len(c.buckets) == 0 {
		return Bucket{}, false
	}
	return c.buckets[len(c.buckets)-1], true
}

// Buckets returns a copy of the minute buckets, newest first.
func (c *Channel) Buckets() []Bucket {
	out := make([]Bucket, len(c.buckets))
	for i, b := range c.buckets {
		out[len(c.buckets)-1-i] = b
	}
	return out
}

// RawLen returns the number of raw samples currently held.
func (c *Channel) RawLen() int { return len(c.raw) }

// AlarmState returns the alarm machine's state.
func (c *Channel) AlarmState() AlarmState { return c.alarm }

// AlarmSince returns when the alarm went pending, zero when normal.
func (c *Channel) AlarmSince() time.Time { return c.alarmSince }

// Alarm reports whether the alarm is active.
func (c *Channel) Alarm() bool { return c.alarm == AlarmActive }

// DoorOpen reports whether the door is considered open.
func (c *Channel) DoorOpen() bool { return c.door == DoorOpen }

// Snapshot returns the durable part of the channel.
func (c *Channel) Snapshot() Snapshot {
	b := make([]Bucket, len(c.buckets))
	copy(b, c.buckets)
	return Snapshot{Average: c.average, Delta: c.delta, Buckets: b}
}

// Restore loads a snapshot. Raw samples, the noise counter and the alarm
// and door machines start from their defaults.
func (c *Channel) Restore(s Snapshot) {
	c.buckets = make([]Bucket, len(s.Buckets))
	copy(c.buckets, s.Buckets)
	c.average = s.Average
	c.delta = s.Delta
	c.raw = nil
	c.noisy = 0
	c.alarm = AlarmNormal
	c.alarmSince = time.Time{}
	c.door = DoorClosed
}

func ordinal(n int) string {
	suffix := "th"
	switch n % 10 {
	case 1:
		suffix = "st"
	case 2:
		suffix = "nd"
	case 3:
		suffix = "rd"
	}
	if n%100 >= 11 && n%100 <= 13 {
		suffix = "th"
	}
	return fmt.Sprintf("%d%s", n, suffix)
}
