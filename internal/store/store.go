// Package store persists channel statistics, the alarm-disable switch and
// the alarm event log.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode"

	"github.com/sweeney/fridge-monitor/internal/logic"
)

var (
	// ErrNotFound means nothing has been saved yet; callers use defaults.
	ErrNotFound = errors.New("store: not found")
	// ErrCorrupt means the saved data could not be decoded.
	ErrCorrupt = errors.New("store: corrupt data")
	// ErrVersion means the saved data has an unsupported format version.
	ErrVersion = errors.New("store: unsupported version")
)

// Version is the current snapshot format version.
const Version = 1

// Store loads and saves durable state.
type Store interface {
	LoadChannel(name string) (logic.Snapshot, error)
	SaveChannel(name string, s logic.Snapshot) error
	LoadGlobal() (GlobalSnapshot, error)
	SaveGlobal(g GlobalSnapshot) error
	RecordEvent(e AlarmEvent) error
	Close() error
}

// GlobalSnapshot is the durable part of the shared alarm state. Alarm flags
// are deliberately absent: alarms always start cleared.
type GlobalSnapshot struct {
	AlarmDisable bool
}

// AlarmEvent is one classified alarm transition.
type AlarmEvent struct {
	ID      string    `json:"id"`
	Time    time.Time `json:"time"`
	Kind    string    `json:"kind"`
	Message string    `json:"message"`
}

type snapshotDoc struct {
	Version int         `json:"version"`
	Average float64     `json:"average"`
	Delta   *float64    `json:"delta"` // null encodes NaN
	Buckets []bucketDoc `json:"buckets"`
}

type bucketDoc struct {
	Time time.Time `json:"t"`
	Temp float64   `json:"v"`
}

type globalDoc struct {
	Version      int  `json:"version"`
	AlarmDisable bool `json:"alarm_disable"`
}

// EncodeSnapshot serializes a channel snapshot.
func EncodeSnapshot(s logic.Snapshot) ([]byte, error) {
	doc := snapshotDoc{
		Version: Version,
		Average: s.Average,
		Buckets: make([]bucketDoc, len(s.Buckets)),
	}
	if !math.IsNaN(s.Delta) {
		d := s.Delta
		doc.Delta = &d
	}
	for i, b := range s.Buckets {
		doc.Buckets[i] = bucketDoc{Time: b.Time, Temp: b.Temp}
	}
	return json.Marshal(doc)
}

// DecodeSnapshot parses data written by EncodeSnapshot.
func DecodeSnapshot(data []byte) (logic.Snapshot, error) {
	var doc snapshotDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return logic.Snapshot{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if doc.Version != Version {
		return logic.Snapshot{}, fmt.Errorf("%w: %d", ErrVersion, doc.Version)
	}
	s := logic.Snapshot{
		Average: doc.Average,
		Delta:   math.NaN(),
		Buckets: make([]logic.Bucket, len(doc.Buckets)),
	}
	if doc.Delta != nil {
		s.Delta = *doc.Delta
	}
	for i, b := range doc.Buckets {
		s.Buckets[i] = logic.Bucket{Time: b.Time, Temp: b.Temp}
	}
	return s, nil
}

// EncodeGlobal serializes the global snapshot.
func EncodeGlobal(g GlobalSnapshot) ([]byte, error) {
	return json.Marshal(globalDoc{Version: Version, AlarmDisable: g.AlarmDisable})
}

// DecodeGlobal parses data written by EncodeGlobal.
func DecodeGlobal(data []byte) (GlobalSnapshot, error) {
	var doc globalDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return GlobalSnapshot{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if doc.Version != Version {
		return GlobalSnapshot{}, fmt.Errorf("%w: %d", ErrVersion, doc.Version)
	}
	return GlobalSnapshot{AlarmDisable: doc.AlarmDisable}, nil
}

// slug turns a channel name into a file-system and key friendly string.
func slug(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "_"
	}
	return b.String()
}
