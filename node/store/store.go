package store

import (
	"fmt"
	"path/filepath"

	"konduit.dev/node/channel"
)

const (
	BackendBolt   = "bolt"
	BackendSQLite = "sqlite"
)

// Store persists one opaque record per channel keytag. ForEach and Keys walk
// records in ascending bytewise keytag order, the order Coiter expects.
type Store interface {
	Get(key channel.Keytag) ([]byte, bool, error)
	Put(key channel.Keytag, val []byte) error
	Delete(key channel.Keytag) error
	Keys() ([]channel.Keytag, error)
	ForEach(fn func(key channel.Keytag, val []byte) error) error
	Manifest() *Manifest
	SetManifest(m *Manifest) error
	Close() error
}

// Open opens the backend named by backend under datadir/networks/<network>.
func Open(backend, datadir, network string) (Store, error) {
	if datadir == "" {
		return nil, fmt.Errorf("datadir required")
	}
	if network == "" {
		return nil, fmt.Errorf("network required")
	}
	dir := NetworkDir(datadir, network)
	if err := ensureDir(filepath.Join(dir, "db")); err != nil {
		return nil, err
	}
	var (
		s   Store
		err error
	)
	switch backend {
	case BackendBolt, "":
		s, err = OpenBolt(dir)
	case BackendSQLite:
		s, err = OpenSQLite(dir)
	default:
		return nil, fmt.Errorf("unknown db backend %q", backend)
	}
	if err != nil {
		return nil, err
	}
	if m := s.Manifest(); m != nil && m.Network != network {
		_ = s.Close()
		return nil, fmt.Errorf("manifest network %q does not match %q", m.Network, network)
	}
	return s, nil
}
