package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/sweeney/fridge-monitor/internal/logic"
)

const sqliteDriverName = "sqlite"

const (
	schemaChannelSnapshots = `
CREATE TABLE IF NOT EXISTS channel_snapshots (
    name TEXT PRIMARY KEY,
    version INTEGER NOT NULL,
    payload BLOB NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
`
	schemaGlobalState = `
CREATE TABLE IF NOT EXISTS global_state (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    version INTEGER NOT NULL,
    payload BLOB NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
`
	schemaAlarmEvents = `
CREATE TABLE IF NOT EXISTS alarm_events (
    id TEXT PRIMARY KEY,
    occurred_at TIMESTAMP NOT NULL,
    kind TEXT NOT NULL,
    message TEXT NOT NULL
);
`
)

const (
	globalStateRowID = 1

	upsertChannelSQL = `
		INSERT INTO channel_snapshots (name, version, payload, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			version=excluded.version,
			payload=excluded.payload,
			updated_at=excluded.updated_at
	`
	selectChannelSQL = `SELECT payload FROM channel_snapshots WHERE name=?`

	upsertGlobalSQL = `
		INSERT INTO global_state (id, version, payload, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			version=excluded.version,
			payload=excluded.payload,
			updated_at=excluded.updated_at
	`
	selectGlobalSQL = `SELECT payload FROM global_state WHERE id=?`

	insertEventSQL = `INSERT INTO alarm_events (id, occurred_at, kind, message) VALUES (?, ?, ?, ?)`
)

// SQLiteStore keeps snapshots and the alarm event log in SQLite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens or creates the database at path and ensures the schema.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open(sqliteDriverName, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite at %q: %w", path, err)
	}

	// One writer; SQLite does not benefit from more.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA busy_timeout = 5000;",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set %s: %w", pragma, err)
		}
	}

	if err := ensureSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return NewSQLiteStore(db), nil
}

// NewSQLiteStore wraps an already opened database.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db, now: time.Now}
}

func ensureSchema(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin schema transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for i, stmt := range []string{
		schemaChannelSnapshots,
		schemaGlobalState,
		schemaAlarmEvents,
	} {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema transaction: %w", err)
	}
	return nil
}

// LoadChannel reads a channel snapshot.
func (s *SQLiteStore) LoadChannel(name string) (logic.Snapshot, error) {
	var payload []byte
	err := s.db.QueryRow(selectChannelSQL, slug(name)).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return logic.Snapshot{}, ErrNotFound
	}
	if err != nil {
		return logic.Snapshot{}, fmt.Errorf("select channel %q: %w", name, err)
	}
	return DecodeSnapshot(payload)
}

// SaveChannel upserts a channel snapshot.
func (s *SQLiteStore) SaveChannel(name string, snap logic.Snapshot) error {
	payload, err := EncodeSnapshot(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if _, err := s.db.Exec(upsertChannelSQL, slug(name), Version, payload, s.now().UTC()); err != nil {
		return fmt.Errorf("save channel %q: %w", name, err)
	}
	return nil
}

// LoadGlobal reads the alarm-disable state.
func (s *SQLiteStore) LoadGlobal() (GlobalSnapshot, error) {
	var payload []byte
	err := s.db.QueryRow(selectGlobalSQL, globalStateRowID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return GlobalSnapshot{}, ErrNotFound
	}
	if err != nil {
		return GlobalSnapshot{}, fmt.Errorf("select global state: %w", err)
	}
	return DecodeGlobal(payload)
}

// SaveGlobal upserts the alarm-disable state.
func (s *SQLiteStore) SaveGlobal(g GlobalSnapshot) error {
	payload, err := EncodeGlobal(g)
	if err != nil {
		return fmt.Errorf("encode global: %w", err)
	}
	if _, err := s.db.Exec(upsertGlobalSQL, globalStateRowID, Version, payload, s.now().UTC()); err != nil {
		return fmt.Errorf("save global state: %w", err)
	}
	return nil
}

// RecordEvent inserts an alarm event, assigning an id when missing.
func (s *SQLiteStore) RecordEvent(e AlarmEvent) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if _, err := s.db.Exec(insertEventSQL, e.ID, e.Time.UTC(), e.Kind, e.Message); err != nil {
		return fmt.Errorf("insert alarm event: %w", err)
	}
	return nil
}

// Events returns the most recent alarm events, newest first.
func (s *SQLiteStore) Events(limit int) ([]AlarmEvent, error) {
	rows, err := s.db.Query(`SELECT id, occurred_at, kind, message FROM alarm_events ORDER BY occurred_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("select alarm events: %w", err)
	}
	defer rows.Close()

	var events []AlarmEvent
	for rows.Next() {
		var e AlarmEvent
		if err := rows.Scan(&e.ID, &e.Time, &e.Kind, &e.Message); err != nil {
			return nil, fmt.Errorf("scan alarm event: %w", err)
		}
		e.Time = e.Time.UTC()
		events = append(events, e)
	}
	return events, rows.Err()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
