package node

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// maxSnapshotBytes caps what the node will read from an operator file.
const maxSnapshotBytes = 64 << 20

func readFileByPath(path string) ([]byte, error) {
	return readFileFromDir(filepath.Dir(path), filepath.Base(path))
}

// readFileFromDir reads a single entry of dir, refusing names that would
// leave it and files above maxSnapshotBytes.
func readFileFromDir(dir, name string) ([]byte, error) {
	if name == "" || name == "." || name == ".." || filepath.Base(name) != name {
		return nil, fmt.Errorf("invalid file name: %q", name)
	}
	fsys := os.DirFS(dir)
	info, err := fs.Stat(fsys, name)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", name)
	}
	if info.Size() > maxSnapshotBytes {
		return nil, fmt.Errorf("%s: %d bytes exceeds %d", name, info.Size(), maxSnapshotBytes)
	}
	return fs.ReadFile(fsys, name)
}
