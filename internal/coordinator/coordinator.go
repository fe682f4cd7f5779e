package coordinator

import (
	"strings"
	"sync"
	"time"

	"github.com/sweeney/fridge-monitor/internal/logger"
	"github.com/sweeney/fridge-monitor/internal/store"
)

// DefaultResetHour is the local hour at which alarm-disable is cleared.
const DefaultResetHour = 18

// Sink receives published fields.
type Sink interface {
	Publish(key, value string, retain bool) error
	IsConnected() bool
}

// Alerter drives the audible alarm.
type Alerter interface {
	Set(on bool) error
}

// Saver persists the global snapshot, typically after a delay.
type Saver interface {
	Request(store.GlobalSnapshot)
	Flush() error
}

// EventRecorder keeps a log of alarm transitions.
type EventRecorder interface {
	RecordEvent(store.AlarmEvent) error
}

// Options configures a Coordinator. Sink, Saver and Log are required.
type Options struct {
	Sink    Sink
	Saver   Saver
	Alerter Alerter
	Events  EventRecorder
	Log     *logger.Logger

	// Channels is the number of thermocouples whose alarm flags are published.
	Channels  int
	ResetHour int
	// Buzzer enables the alerter; when false it is only ever switched off.
	Buzzer bool
}

// Coordinator holds two generations of GlobalState. Producers write Next;
// Reconcile promotes Next into Current and publishes the difference.
type Coordinator struct {
	opts Options
	log  *logger.Logger

	mu      sync.Mutex
	current GlobalState
	next    GlobalState
	dirty   bool
	rearm   bool
	closed  bool
}

// New returns a Coordinator with both generations set to initial. The first
// Reconcile republishes everything.
func New(initial GlobalState, opts Options) *Coordinator {
	initial.combine()
	return &Coordinator{
		opts:    opts,
		log:     opts.Log,
		current: initial,
		next:    initial,
		dirty:   true,
		rearm:   true,
	}
}

// HandleCommand applies an alarm-disable command payload. It reports
// whether the payload was understood.
func (c *Coordinator) HandleCommand(payload string) bool {
	switch strings.ToLower(strings.TrimSpace(payload)) {
	case "on":
		c.SetAlarmDisable(true)
		return true
	case "off":
		c.SetAlarmDisable(false)
		return true
	default:
		c.log.Warnw("ignoring unknown alarm disable command", "payload", payload)
		return false
	}
}

// SetAlarmDisable sets the requested alarm-disable flag.
func (c *Coordinator) SetAlarmDisable(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.next.AlarmDisable = on
}

// UpdateAlarms replaces the per-channel alarm flags.
func (c *Coordinator) UpdateAlarms(alarms [MaxChannels]bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.next.Alarms = alarms
	c.next.combine()
}

// CheckDailyReset clears alarm-disable once each time the clock enters the
// reset hour. It reports whether it cleared the flag.
func (c *Coordinator) CheckDailyReset(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	if now.Hour() != c.opts.ResetHour {
		c.rearm = true
		return false
	}
	if !c.rearm || !c.next.AlarmDisable {
		return false
	}
	c.next.AlarmDisable = false
	c.rearm = false
	c.log.Infow("daily reset cleared alarm disable", "hour", c.opts.ResetHour)
	return true
}

// MarkDirty forces the next Reconcile to republish every field.
func (c *Coordinator) MarkDirty() {
	c.mu.Lock()
	c.dirty = true
	c.mu.Unlock()
}

// Reconcile publishes the difference between Next and Current. It returns
// TransitionNone when nothing was promoted.
func (c *Coordinator) Reconcile(now time.Time) Transition {
	c.mu.Lock()
	if c.closed || (c.next == c.current && !c.dirty) {
		c.mu.Unlock()
		return TransitionNone
	}
	if !c.opts.Sink.IsConnected() {
		c.mu.Unlock()
		return TransitionNone
	}
	cur, next, force := c.current, c.next, c.dirty
	tr := Classify(cur, next)
	c.current = next
	c.dirty = false
	c.mu.Unlock()

	c.apply(now, tr, cur, next, force)
	return tr
}

// apply performs the side effects of a promotion. Called without mu.
func (c *Coordinator) apply(now time.Time, tr Transition, cur, next GlobalState, force bool) {
	for _, f := range changedFields(cur, next, c.opts.Channels, force) {
		if err := c.opts.Sink.Publish(f.Key, f.Value, true); err != nil {
			c.log.Warnw("publish failed, will retry", "key", f.Key, "err", err)
			c.MarkDirty()
			break
		}
	}

	if c.opts.Alerter != nil {
		on := c.opts.Buzzer && next.Sounding()
		if err := c.opts.Alerter.Set(on); err != nil {
			c.log.Warnw("set buzzer", "on", on, "err", err)
		}
	}

	if cur != next {
		c.opts.Saver.Request(store.GlobalSnapshot{AlarmDisable: next.AlarmDisable})
	}

	if tr == TransitionRefreshed {
		c.log.Debugw(tr.Message(), "alarm_disable", next.AlarmDisable, "alarm", next.Alarm)
		return
	}
	c.log.Infow(tr.Message(), "alarm_disable", next.AlarmDisable, "alarm", next.Alarm)
	if c.opts.Events != nil {
		e := store.AlarmEvent{Time: eventTime(now), Kind: string(tr), Message: tr.Message()}
		if err := c.opts.Events.RecordEvent(e); err != nil {
			c.log.Warnw("record alarm event", "err", err)
		}
	}
}

// Current returns the last promoted state.
func (c *Coordinator) Current() GlobalState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Next returns the requested state.
func (c *Coordinator) Next() GlobalState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.next
}

// Dirty reports whether a forced republish is pending.
func (c *Coordinator) Dirty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dirty
}

// Close flushes the pending save and silences the alerter. Later calls
// that would change state are ignored.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	if c.opts.Alerter != nil {
		if err := c.opts.Alerter.Set(false); err != nil {
			c.log.Warnw("switch buzzer off", "err", err)
		}
	}
	return c.opts.Saver.Flush()
}
