package store

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"konduit.dev/node/channel"
)

const createChannelsTable = `
CREATE TABLE IF NOT EXISTS channels (
	keytag BLOB PRIMARY KEY,
	record BLOB
) WITHOUT ROWID;
CREATE TABLE IF NOT EXISTS settings (
	name  TEXT PRIMARY KEY,
	value TEXT NOT NULL
);`

const sqliteSchemaVersion = "1"

// SQLiteStore keeps channel records in one table keyed by keytag. SQLite
// compares BLOB keys with memcmp, so ORDER BY keytag is bytewise order.
type SQLiteStore struct {
	dir       string
	conn      *sql.DB
	writeLock sync.Mutex
	manifest  *Manifest
}

var _ Store = (*SQLiteStore)(nil)

func OpenSQLite(dir string) (*SQLiteStore, error) {
	conn, err := sql.Open("sqlite3", filepath.Join(dir, "db", "channels.sqlite"))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	for _, pragma := range []string{"PRAGMA synchronous = NORMAL", "PRAGMA journal_mode=WAL"} {
		if _, err := conn.Exec(pragma); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("sqlite %s: %w", pragma, err)
		}
	}
	if _, err := conn.Exec(createChannelsTable); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}
	if _, err := conn.Exec("INSERT OR REPLACE INTO settings(name, value) VALUES(?, ?)", "version", sqliteSchemaVersion); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("sqlite settings: %w", err)
	}
	m, err := loadManifest(dir)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return &SQLiteStore{dir: dir, conn: conn, manifest: m}, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

func (s *SQLiteStore) Manifest() *Manifest {
	if s == nil {
		return nil
	}
	return s.manifest
}

func (s *SQLiteStore) SetManifest(m *Manifest) error {
	if s == nil {
		return fmt.Errorf("store: nil")
	}
	if err := writeManifestAtomic(s.dir, m); err != nil {
		return err
	}
	s.manifest = m
	return nil
}

func (s *SQLiteStore) Get(key channel.Keytag) ([]byte, bool, error) {
	var out []byte
	err := s.conn.QueryRow("SELECT record FROM channels WHERE keytag = ?", []byte(key)).Scan(&out)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if out == nil {
		out = []byte{}
	}
	return out, true, nil
}

func (s *SQLiteStore) Put(key channel.Keytag, val []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("store: empty keytag")
	}
	s.writeLock.Lock()
	defer s.writeLock.Unlock()
	_, err := s.conn.Exec("INSERT OR REPLACE INTO channels(keytag, record) VALUES(?, ?)", []byte(key), val)
	return err
}

func (s *SQLiteStore) Delete(key channel.Keytag) error {
	s.writeLock.Lock()
	defer s.writeLock.Unlock()
	_, err := s.conn.Exec("DELETE FROM channels WHERE keytag = ?", []byte(key))
	return err
}

func (s *SQLiteStore) Keys() ([]channel.Keytag, error) {
	var out []channel.Keytag
	err := s.ForEach(func(key channel.Keytag, _ []byte) error {
		out = append(out, key)
		return nil
	})
	return out, err
}

func (s *SQLiteStore) ForEach(fn func(key channel.Keytag, val []byte) error) error {
	rows, err := s.conn.Query("SELECT keytag, record FROM channels ORDER BY keytag ASC")
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var k, v []byte
		if err := rows.Scan(&k, &v); err != nil {
			return err
		}
		if err := fn(channel.Keytag(k), v); err != nil {
			return err
		}
	}
	return rows.Err()
}
