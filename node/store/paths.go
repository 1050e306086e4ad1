package store

import (
	"fmt"
	"os"
	"path/filepath"
)

// NetworkDir is the on-disk directory for one ledger network:
//
//	datadir/networks/<network>/
func NetworkDir(datadir string, network string) string {
	return filepath.Join(datadir, "networks", network)
}

func ensureDir(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", path, err)
	}
	return nil
}

// WriteFileAtomic replaces path with b so readers see either the old or the
// new contents: write temp, fsync temp, rename, fsync dir.
func WriteFileAtomic(path string, b []byte) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600) // #nosec G304 -- operator-controlled path.
	if err != nil {
		return fmt.Errorf("open tmp: %w", err)
	}
	_, werr := f.Write(b)
	serr := f.Sync()
	cerr := f.Close()
	switch {
	case werr != nil:
		return fmt.Errorf("write tmp: %w", werr)
	case serr != nil:
		return fmt.Errorf("fsync tmp: %w", serr)
	case cerr != nil:
		return fmt.Errorf("close tmp: %w", cerr)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename: %w", err)
	}
	d, err := os.Open(filepath.Dir(path)) // #nosec G304 -- operator-controlled path.
	if err != nil {
		return fmt.Errorf("open dir: %w", err)
	}
	if err := d.Sync(); err != nil {
		_ = d.Close()
		return fmt.Errorf("fsync dir: %w", err)
	}
	return d.Close()
}
