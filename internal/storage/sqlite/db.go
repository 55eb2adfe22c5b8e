package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"floorbot/internal/domain"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = domain.ErrNotFound

const schema = `
CREATE TABLE IF NOT EXISTS operational_events (
	id                 TEXT PRIMARY KEY,
	company_id         TEXT NOT NULL,
	communication_id   TEXT DEFAULT '',
	event_type         TEXT NOT NULL,
	severity           TEXT NOT NULL,
	status             TEXT NOT NULL DEFAULT 'open',
	machine_name       TEXT DEFAULT '',
	machine_code       TEXT DEFAULT '',
	part_code          TEXT DEFAULT '',
	part_name          TEXT DEFAULT '',
	sender_phone       TEXT DEFAULT '',
	sender_name        TEXT DEFAULT '',
	department         TEXT DEFAULT '',
	production_stop    INTEGER,
	was_replaced       INTEGER,
	extracted_fields   TEXT DEFAULT '{}',
	metadata           TEXT DEFAULT '{}',
	escalation_sent_at DATETIME,
	created_at         DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_company_created ON operational_events(company_id, created_at);
CREATE INDEX IF NOT EXISTS idx_events_machine ON operational_events(company_id, machine_code);

CREATE TABLE IF NOT EXISTS machine_history (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	company_id       TEXT NOT NULL,
	machine_code     TEXT DEFAULT '',
	machine_name     TEXT DEFAULT '',
	event_type       TEXT NOT NULL,
	part_code        TEXT DEFAULT '',
	part_name        TEXT DEFAULT '',
	quantity         INTEGER NOT NULL DEFAULT 1,
	event_id         TEXT NOT NULL,
	communication_id TEXT DEFAULT '',
	created_at       DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_history_part ON machine_history(company_id, part_code);
CREATE INDEX IF NOT EXISTS idx_history_event ON machine_history(event_id);

CREATE TABLE IF NOT EXISTS incomplete_events (
	id                TEXT PRIMARY KEY,
	company_id        TEXT NOT NULL,
	communication_id  TEXT DEFAULT '',
	sender_phone      TEXT DEFAULT '',
	sender_digits     TEXT NOT NULL,
	pending_questions TEXT NOT NULL DEFAULT '[]',
	answers           TEXT NOT NULL DEFAULT '[]',
	status            TEXT NOT NULL DEFAULT 'pending',
	draft             TEXT NOT NULL DEFAULT '{}',
	created_at        DATETIME NOT NULL,
	updated_at        DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_incomplete_sender ON incomplete_events(company_id, sender_digits, status);

CREATE TABLE IF NOT EXISTS departments (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	company_id TEXT NOT NULL,
	name       TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS users (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	company_id      TEXT NOT NULL,
	name            TEXT NOT NULL,
	phone           TEXT DEFAULT '',
	whatsapp_number TEXT DEFAULT '',
	hierarchy_level INTEGER NOT NULL,
	department      TEXT DEFAULT '',
	department_id   INTEGER,
	active          INTEGER NOT NULL DEFAULT 1,
	deleted_at      DATETIME
);
CREATE INDEX IF NOT EXISTS idx_users_company_level ON users(company_id, hierarchy_level);
`

func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	// sqlite allows a single writer; serializing connections keeps
	// transactions from tripping over SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return db, nil
}

// Store is the sqlite-backed event store, clarification tracker storage and
// local organizational directory.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

func New(db *sql.DB) *Store {
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Open initializes the schema at path and wraps it in a Store.
func Open(path string) (*Store, error) {
	db, err := InitDB(path)
	if err != nil {
		return nil, err
	}
	return New(db), nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// inTx runs fn inside one transaction and commits only if fn succeeds.
func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func encodeJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func nullBool(b *bool) sql.NullBool {
	if b == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *b, Valid: true}
}

func boolPtr(nb sql.NullBool) *bool {
	if !nb.Valid {
		return nil
	}
	v := nb.Bool
	return &v
}
