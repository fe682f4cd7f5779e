// Package monitor runs the sampling loop: it reads every probe, feeds the
// channel statistics, publishes the minute results and hands the channel
// alarms to the coordinator.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sweeney/fridge-monitor/internal/coordinator"
	"github.com/sweeney/fridge-monitor/internal/logger"
	"github.com/sweeney/fridge-monitor/internal/logic"
	"github.com/sweeney/fridge-monitor/internal/mqtt"
	"github.com/sweeney/fridge-monitor/internal/status"
	"github.com/sweeney/fridge-monitor/internal/store"
	"github.com/sweeney/fridge-monitor/internal/w1"
)

// Probe binds a sensor to its channel statistics.
type Probe struct {
	Channel *logic.Channel
	Source  w1.Source
	// Key prefixes the published keys, e.g. "tc1" → "tc1_temperature".
	Key string
}

// AlarmUpdater receives the per-channel alarm flags after each tick.
type AlarmUpdater interface {
	UpdateAlarms(alarms [coordinator.MaxChannels]bool)
}

// Options configures a Sampler. Probe 0 must be the reference channel.
type Options struct {
	Probes  []Probe
	Sink    mqtt.Sink
	Alarms  AlarmUpdater
	Tracker *status.Tracker
	Log     *logger.Logger
	// RSSI, if set, is published each tick when it succeeds.
	RSSI func() (int, error)
}

// Sampler owns the channels. Only its goroutine may touch them.
type Sampler struct {
	opts Options
	log  *logger.Logger
	// failing remembers the last read error per probe so a stuck sensor
	// logs once per change of error.
	failing []string
}

// New returns a Sampler. It panics if more probes are given than the
// coordinator can track.
func New(opts Options) *Sampler {
	if len(opts.Probes) > coordinator.MaxChannels {
		panic(fmt.Sprintf("monitor: %d probes, at most %d supported", len(opts.Probes), coordinator.MaxChannels))
	}
	s := &Sampler{
		opts:    opts,
		log:     opts.Log,
		failing: make([]string, len(opts.Probes)),
	}
	if opts.Tracker != nil {
		for _, p := range opts.Probes {
			opts.Tracker.UpdateChannel(status.NewChannelStatus(p.Channel.Name(), p.Channel.IsReference()))
		}
	}
	return s
}

// Sample reads every probe once and appends the readings.
// A failed read leaves the channel untouched.
func (s *Sampler) Sample(now time.Time) {
	for i, p := range s.opts.Probes {
		v, err := p.Source.Read()
		if err != nil {
			if msg := err.Error(); msg != s.failing[i] {
				s.log.Warnw("sensor read failed", "channel", p.Channel.Name(), "err", err)
				s.failing[i] = msg
			}
			continue
		}
		if s.failing[i] != "" {
			s.log.Infow("sensor recovered", "channel", p.Channel.Name())
			s.failing[i] = ""
		}
		p.Channel.Append(v, now)
	}
}

// Tick closes the minute on every channel, publishes the results and
// forwards the alarm flags.
func (s *Sampler) Tick(now time.Time) {
	var alarms [coordinator.MaxChannels]bool
	for i, p := range s.opts.Probes {
		res := p.Channel.Tick(now)
		alarms[i] = p.Channel.Alarm()
		if !res.Updated {
			continue
		}

		s.publish(p.Key+"_temperature", mqtt.FormatTemperature(res.Temp))
		s.publish(p.Key+"_average", mqtt.FormatTemperature(res.Average))
		if !p.Channel.IsReference() {
			s.publish(p.Key+"_door", mqtt.FormatSwitch(p.Channel.DoorOpen()))
		}

		if s.opts.Tracker != nil {
			s.opts.Tracker.UpdateChannel(status.ChannelStatus{
				Name:      p.Channel.Name(),
				Reference: p.Channel.IsReference(),
				Temp:      res.Temp,
				Average:   res.Average,
				Delta:     res.Delta,
				Alarm:     res.Alarm,
				DoorOpen:  res.Door == logic.DoorOpen,
				Updated:   now,
			})
		}
	}
	if s.opts.Alarms != nil {
		s.opts.Alarms.UpdateAlarms(alarms)
	}

	if s.opts.RSSI != nil {
		rssi, err := s.opts.RSSI()
		if err != nil {
			s.log.Debugw("rssi unavailable", "err", err)
			if s.opts.Tracker != nil {
				s.opts.Tracker.SetRSSI(nil)
			}
		} else {
			s.publish(mqtt.KeyRSSI, fmt.Sprintf("%d", rssi))
			if s.opts.Tracker != nil {
				s.opts.Tracker.SetRSSI(&rssi)
			}
		}
	}
	if s.opts.Tracker != nil {
		s.opts.Tracker.SetMQTTConnected(s.opts.Sink.IsConnected())
	}
}

func (s *Sampler) publish(key, value string) {
	err := s.opts.Sink.Publish(key, value, true)
	switch {
	case err == nil:
	case errors.Is(err, mqtt.ErrNotConnected):
		s.log.Debugw("not connected, skipping publish", "key", key)
	default:
		s.log.Warnw("publish failed", "key", key, "err", err)
	}
}

// Run samples on sample ticks and closes minutes on minute ticks until ctx
// is cancelled.
func (s *Sampler) Run(ctx context.Context, now func() time.Time, sample, minute <-chan time.Time) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sample:
			s.Sample(now())
		case <-minute:
			s.Tick(now())
		}
	}
}

// ChannelStore is the part of store.Store used for channel snapshots.
type ChannelStore interface {
	LoadChannel(name string) (logic.Snapshot, error)
	SaveChannel(name string, s logic.Snapshot) error
}

// Restore loads each channel's snapshot. Missing or unreadable snapshots
// leave the channel at its defaults.
func (s *Sampler) Restore(st ChannelStore) {
	for _, p := range s.opts.Probes {
		snap, err := st.LoadChannel(p.Channel.Name())
		switch {
		case err == nil:
			p.Channel.Restore(snap)
			s.log.Infow("restored channel", "channel", p.Channel.Name(), "buckets", len(snap.Buckets))
		case errors.Is(err, store.ErrNotFound):
			s.log.Infow("no saved state, starting fresh", "channel", p.Channel.Name())
		default:
			s.log.Warnw("discarding saved state", "channel", p.Channel.Name(), "err", err)
		}
	}
}

// Save writes every channel's snapshot. Call only after Run has returned.
func (s *Sampler) Save(st ChannelStore) error {
	var errs []error
	for _, p := range s.opts.Probes {
		if err := st.SaveChannel(p.Channel.Name(), p.Channel.Snapshot()); err != nil {
			errs = append(errs, fmt.Errorf("save %s: %w", p.Channel.Name(), err))
		}
	}
	return errors.Join(errs...)
}
