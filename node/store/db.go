package store

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"konduit.dev/node/channel"

	bolt "go.etcd.io/bbolt"
)

var bucketChannels = []byte("channels_by_keytag")

// BoltStore keeps channel records in a single bbolt bucket. bbolt cursors
// iterate keys in bytewise order, which is keytag order.
type BoltStore struct {
	dir      string
	db       *bolt.DB
	manifest *Manifest
}

var _ Store = (*BoltStore)(nil)

func OpenBolt(dir string) (*BoltStore, error) {
	path := filepath.Join(dir, "db", "kv.db")
	bdb, err := bolt.Open(path, 0o600, &bolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("open bbolt: %w", err)
	}
	s := &BoltStore{dir: dir, db: bdb}
	if err := s.db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketChannels); err != nil {
			return fmt.Errorf("create bucket %s: %w", string(bucketChannels), err)
		}
		return nil
	}); err != nil {
		_ = bdb.Close()
		return nil, err
	}
	m, err := loadManifest(dir)
	if err != nil {
		_ = bdb.Close()
		return nil, err
	}
	s.manifest = m
	return s, nil
}

func (s *BoltStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *BoltStore) Manifest() *Manifest {
	if s == nil {
		return nil
	}
	return s.manifest
}

func (s *BoltStore) SetManifest(m *Manifest) error {
	if s == nil {
		return fmt.Errorf("store: nil")
	}
	if err := writeManifestAtomic(s.dir, m); err != nil {
		return err
	}
	s.manifest = m
	return nil
}

func (s *BoltStore) Get(key channel.Keytag) ([]byte, bool, error) {
	var (
		out []byte
		ok  bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketChannels).Get(key)
		if v == nil {
			return nil
		}
		out, ok = append([]byte{}, v...), true
		return nil
	})
	return out, ok, err
}

func (s *BoltStore) Put(key channel.Keytag, val []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("store: empty keytag")
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketChannels).Put(key, val)
	})
}

func (s *BoltStore) Delete(key channel.Keytag) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketChannels).Delete(key)
	})
}

func (s *BoltStore) Keys() ([]channel.Keytag, error) {
	var out []channel.Keytag
	err := s.ForEach(func(key channel.Keytag, _ []byte) error {
		out = append(out, key)
		return nil
	})
	return out, err
}

// ForEach hands fn copies of each key and value; fn may retain them.
func (s *BoltStore) ForEach(fn func(key channel.Keytag, val []byte) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketChannels).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if err := fn(append(channel.Keytag(nil), k...), append([]byte(nil), v...)); err != nil {
				return err
			}
		}
		return nil
	})
}

func loadManifest(dir string) (*Manifest, error) {
	m, err := readManifest(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	if m.SchemaVersion > SchemaVersionV1 {
		return nil, fmt.Errorf("manifest schema_version %d > supported %d", m.SchemaVersion, SchemaVersionV1)
	}
	return m, nil
}
