// Package coordinator reconciles the alarm state shared by the sampler, the
// command handler and the daily reset into one published state.
package coordinator

import (
	"fmt"
	"time"
)

// MaxChannels is the board sensor plus up to three thermocouples.
const MaxChannels = 4

// ReferenceChannel is the board sensor's index; it never counts as an alarm.
const ReferenceChannel = 0

// GlobalState is the state shared across producers. It is comparable with ==.
type GlobalState struct {
	AlarmDisable bool
	Alarms       [MaxChannels]bool
	// Alarm is the OR of every non-reference channel alarm.
	Alarm bool
}

// combine recomputes Alarm from Alarms.
func (s *GlobalState) combine() {
	s.Alarm = false
	for i, a := range s.Alarms {
		if i != ReferenceChannel && a {
			s.Alarm = true
		}
	}
}

// Sounding reports whether the alarm is active and not silenced.
func (s GlobalState) Sounding() bool {
	return s.Alarm && !s.AlarmDisable
}

// Transition classifies the change between two generations of GlobalState.
type Transition string

const (
	TransitionNone             Transition = ""
	TransitionSilenced         Transition = "SILENCED"
	TransitionDisableOn        Transition = "DISABLE_ON"
	TransitionResumed          Transition = "RESUMED"
	TransitionDisableOff       Transition = "DISABLE_OFF"
	TransitionSuppressedActive Transition = "SUPPRESSED_ACTIVE"
	TransitionActive           Transition = "ACTIVE"
	TransitionDiscontinued     Transition = "DISCONTINUED"
	TransitionRefreshed        Transition = "REFRESHED"
)

// Message returns the log line for a transition.
func (t Transition) Message() string {
	switch t {
	case TransitionSilenced:
		return "Alarm Disable turned ON. Active alarm was silenced."
	case TransitionDisableOn:
		return "Alarm Disable turned ON."
	case TransitionResumed:
		return "Alarm Disable turned OFF. Active alarm was resumed."
	case TransitionDisableOff:
		return "Alarm Disable turned OFF. No active alarms."
	case TransitionSuppressedActive:
		return "Alarm active but silenced by Alarm Disable."
	case TransitionActive:
		return "Alarm active."
	case TransitionDiscontinued:
		return "Alarm discontinued."
	case TransitionRefreshed:
		return "State refreshed."
	default:
		return ""
	}
}

// Classify names the transition from cur to next. Every combination maps
// to exactly one Transition; changes that are not alarm related, such as a
// single channel alarm flipping while another keeps the combined alarm on,
// are TransitionRefreshed.
func Classify(cur, next GlobalState) Transition {
	switch {
	case !cur.AlarmDisable && next.AlarmDisable:
		if cur.Alarm || next.Alarm {
			return TransitionSilenced
		}
		return TransitionDisableOn
	case cur.AlarmDisable && !next.AlarmDisable:
		if cur.Alarm || next.Alarm {
			return TransitionResumed
		}
		return TransitionDisableOff
	case !cur.Alarm && next.Alarm && next.AlarmDisable:
		return TransitionSuppressedActive
	case !cur.Alarm && next.Alarm && !next.AlarmDisable:
		return TransitionActive
	case cur.Alarm && !next.Alarm:
		return TransitionDiscontinued
	default:
		return TransitionRefreshed
	}
}

// Keys used for published fields.
const (
	KeyAlarmDisable = "alarm_disable"
	KeyAlarm        = "alarm"
)

// ChannelAlarmKey is the published key of a thermocouple's own alarm flag.
func ChannelAlarmKey(i int) string {
	return fmt.Sprintf("tc%d_alarm", i)
}

// Field is one published key/value pair.
type Field struct {
	Key   string
	Value string
}

// fields lists the published projection of s for the first n thermocouples.
func fields(s GlobalState, n int) []Field {
	out := []Field{
		{Key: KeyAlarmDisable, Value: onOff(s.AlarmDisable)},
		{Key: KeyAlarm, Value: onOff(s.Sounding())},
	}
	for i := 1; i <= n && i < MaxChannels; i++ {
		out = append(out, Field{Key: ChannelAlarmKey(i), Value: onOff(s.Alarms[i])})
	}
	return out
}

// changedFields returns the fields of next that differ from cur, or all of
// them when force is set.
func changedFields(cur, next GlobalState, n int, force bool) []Field {
	before := fields(cur, n)
	after := fields(next, n)
	var out []Field
	for i := range after {
		if force || before[i] != after[i] {
			out = append(out, after[i])
		}
	}
	return out
}

func onOff(b bool) string {
	if b {
		return "ON"
	}
	return "OFF"
}

// eventTime normalizes event timestamps.
func eventTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}
