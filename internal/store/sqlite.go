package store

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite" // SQLite driver.
)

// SQLite is a durable KV backed by a single SQLite table.
type SQLite struct {
	mu  sync.Mutex
	db  *sql.DB
	log *slog.Logger
}

// OpenSQLite opens or creates the database at path and applies migrations.
func OpenSQLite(path string, log *slog.Logger) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	s := &SQLite{db: db, log: log}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);`)
	return err
}

// Get implements KV.Get.
func (s *SQLite) Get(key string, dest any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	var raw []byte
	err := s.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&raw)
	if err != nil {
		if err != sql.ErrNoRows {
			s.log.Warn("kv read failed", "key", key, "error", err)
		}
		return false
	}
	return json.Unmarshal(raw, dest) == nil
}

// Set implements KV.Set. Write failures are logged and swallowed.
func (s *SQLite) Set(key string, value any) {
	raw, err := json.Marshal(value)
	if err != nil {
		s.log.Warn("kv marshal failed", "key", key, "error", err)
		return
	}
	s.setRaw(key, raw)
}

func (s *SQLite) setRaw(key string, raw []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO kv (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, string(raw))
	if err != nil {
		s.log.Warn("kv write failed", "key", key, "error", err)
	}
}

// Snapshot implements KV.Snapshot.
func (s *SQLite) Snapshot(keys []string) map[string]json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	blob := make(map[string]json.RawMessage, len(keys))
	for _, k := range keys {
		var raw []byte
		err := s.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, k).Scan(&raw)
		if err != nil {
			continue
		}
		blob[k] = json.RawMessage(raw)
	}
	return blob
}

// Restore implements KV.Restore.
func (s *SQLite) Restore(blob map[string]json.RawMessage) {
	for k, raw := range blob {
		s.setRaw(k, raw)
	}
}
