// Package state persists the session snapshot across console restarts.
package state

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"tunneldeck-console/internal/models"
)

// Keys for the persisted snapshot. All three are written together, cleared
// together, and read together; a snapshot missing any of them is discarded.
const (
	keyToken     = "session.token"
	keyUser      = "session.user"
	keyExpiresAt = "session.expires_at"
)

// Store holds console state in a local SQLite file. The session store is the
// only writer.
type Store struct {
	db      *sql.DB
	sealKey *[32]byte
}

// Open initializes the state database, runs migrations, and loads or creates
// the sealing key stored next to the database file.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping state database: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	key, err := loadOrCreateKey(path + ".key")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to load sealing key: %w", err)
	}

	return &Store{db: db, sealKey: key}, nil
}

// Close closes the state database
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveSnapshot writes the full snapshot in one transaction. The token is
// sealed before it touches disk.
func (s *Store) SaveSnapshot(snap *models.Snapshot) error {
	sealed, err := seal(s.sealKey, snap.Token)
	if err != nil {
		return err
	}

	userJSON := "null"
	if snap.User != nil {
		raw, err := json.Marshal(snap.User)
		if err != nil {
			return err
		}
		userJSON = string(raw)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, kv := range [][2]string{
		{keyToken, sealed},
		{keyUser, userJSON},
		{keyExpiresAt, snap.ExpiresAt.Format(time.RFC3339)},
	} {
		if err := setValue(tx, kv[0], kv[1]); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// LoadSnapshot reads the persisted snapshot. It returns nil (and erases the
// stored rows) when the snapshot is missing a field, fails to unseal, fails
// to parse, or has already expired.
func (s *Store) LoadSnapshot(now time.Time) (*models.Snapshot, error) {
	sealed, err1 := s.getValue(keyToken)
	userJSON, err2 := s.getValue(keyUser)
	expiresStr, err3 := s.getValue(keyExpiresAt)
	if err1 != nil || err2 != nil || err3 != nil {
		// Nothing stored, or a partial write; clean up whatever is there
		s.Clear()
		return nil, nil
	}

	token, err := open(s.sealKey, sealed)
	if err != nil {
		s.Clear()
		return nil, nil
	}

	expiresAt, err := time.Parse(time.RFC3339, expiresStr)
	if err != nil {
		s.Clear()
		return nil, nil
	}

	var user *models.User
	if userJSON != "" && userJSON != "null" {
		user = &models.User{}
		if err := json.Unmarshal([]byte(userJSON), user); err != nil {
			s.Clear()
			return nil, nil
		}
	}

	snap := &models.Snapshot{Token: token, User: user, ExpiresAt: expiresAt}
	if !snap.Valid(now) {
		s.Clear()
		return nil, nil
	}

	return snap, nil
}

// Clear erases the persisted snapshot. Safe to call when nothing is stored.
func (s *Store) Clear() error {
	_, err := s.db.Exec("DELETE FROM state WHERE key IN (?, ?, ?)", keyToken, keyUser, keyExpiresAt)
	return err
}

func (s *Store) getValue(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM state WHERE key = ?", key).Scan(&value)
	return value, err
}

func setValue(tx *sql.Tx, key, value string) error {
	_, err := tx.Exec(`
		INSERT INTO state (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = ?, updated_at = ?
	`, key, value, time.Now(), value, time.Now())
	return err
}

// migrate runs all state database migrations
func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS migrations (
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if err := runMigration(db, m); err != nil {
			return fmt.Errorf("migration %s failed: %w", m.name, err)
		}
	}

	return nil
}

type migration struct {
	name string
	up   string
}

func runMigration(db *sql.DB, m migration) error {
	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM migrations WHERE name = ?", m.name).Scan(&count)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil // Already applied
	}

	if _, err := db.Exec(m.up); err != nil {
		return err
	}

	_, err = db.Exec("INSERT INTO migrations (name) VALUES (?)", m.name)
	return err
}

var migrations = []migration{
	{
		name: "001_create_state",
		up: `
			CREATE TABLE state (
				key TEXT PRIMARY KEY,
				value TEXT NOT NULL,
				updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
			);
		`,
	},
}
