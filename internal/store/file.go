package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/sweeney/fridge-monitor/internal/logic"
)

const (
	globalFile = "state.json"
	eventsFile = "events.jsonl"
)

// FileStore keeps one JSON document per channel in a directory.
// Writes go through a temporary file and a rename so a crash never leaves
// a half-written snapshot behind.
type FileStore struct {
	dir string
	mu  sync.Mutex // guards the events file
}

// NewFileStore creates the directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (f *FileStore) channelPath(name string) string {
	return filepath.Join(f.dir, "channel-"+slug(name)+".json")
}

// LoadChannel reads a channel snapshot.
func (f *FileStore) LoadChannel(name string) (logic.Snapshot, error) {
	data, err := f.read(f.channelPath(name))
	if err != nil {
		return logic.Snapshot{}, err
	}
	return DecodeSnapshot(data)
}

// SaveChannel writes a channel snapshot.
func (f *FileStore) SaveChannel(name string, s logic.Snapshot) error {
	data, err := EncodeSnapshot(s)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return writeAtomic(f.channelPath(name), data)
}

// LoadGlobal reads the alarm-disable state.
func (f *FileStore) LoadGlobal() (GlobalSnapshot, error) {
	data, err := f.read(filepath.Join(f.dir, globalFile))
	if err != nil {
		return GlobalSnapshot{}, err
	}
	return DecodeGlobal(data)
}

// SaveGlobal writes the alarm-disable state.
func (f *FileStore) SaveGlobal(g GlobalSnapshot) error {
	data, err := EncodeGlobal(g)
	if err != nil {
		return fmt.Errorf("encode global: %w", err)
	}
	return writeAtomic(filepath.Join(f.dir, globalFile), data)
}

// RecordEvent appends the event as one JSON line.
func (f *FileStore) RecordEvent(e AlarmEvent) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	file, err := os.OpenFile(filepath.Join(f.dir, eventsFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open events: %w", err)
	}
	if _, err := file.Write(append(line, '\n')); err != nil {
		file.Close()
		return fmt.Errorf("append event: %w", err)
	}
	return file.Close()
}

// Close is a no-op; every write is self-contained.
func (f *FileStore) Close() error {
	return nil
}

func (f *FileStore) read(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	return data, nil
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename %s: %w", filepath.Base(path), err)
	}
	return nil
}
