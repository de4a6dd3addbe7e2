// Package file stores record pages as files in a directory.
package file

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// Persist implements the layered.Persist interface for storing and loading
// pages from files.
type Persist struct {
	basepath string
}

// Load loads the bytes persisted in the named file.
func (p Persist) Load(ctx context.Context, name string) ([]byte, error) {
	return os.ReadFile(filepath.Join(p.basepath, name))
}

// Store persists the given bytes in a file of the given name, if it
// doesn't exist already. The file is written under a temporary name and
// renamed, so a partially-written page is never visible.
func (p Persist) Store(ctx context.Context, name string, bytes []byte) error {
	path := filepath.Join(p.basepath, name)
	_, err := os.Stat(path)
	if err == nil {
		return nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	tmp, err := os.CreateTemp(p.basepath, name+".tmp*")
	if err != nil {
		return err
	}
	_, err = tmp.Write(bytes)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// NewPersistForPath returns a Persist that loads and stores pages as
// files in the directory at the given path.
//
//	p := NewPersistForPath("/var/db/users")
//	blob, err := p.Load(ctx, "mF2T0VfTnC6qfkz4fKzEQsMmSSWh9RTVAikO4W6B6Lw")
func NewPersistForPath(path string) Persist {
	return Persist{path}
}
