// Package bolt stores record pages in a bbolt database bucket.
package bolt

import (
	"context"
	"fmt"
	"io/fs"
	"time"

	"go.etcd.io/bbolt"
)

// Persist implements the layered.Persist interface for storing and loading
// pages as values in a bbolt bucket, keyed by name.
type Persist struct {
	db     *bbolt.DB
	bucket []byte
	owned  bool
}

// Open opens (creating if needed) the database file at path and returns a
// Persist using the named bucket. Close releases the database.
func Open(path, bucket string) (*Persist, error) {
	db, err := bbolt.Open(path, 0o644, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	p, err := NewPersist(db, bucket)
	if err != nil {
		db.Close()
		return nil, err
	}
	p.owned = true
	return p, nil
}

// NewPersist returns a Persist using the named bucket of an already-open
// database, creating the bucket if needed.
func NewPersist(db *bbolt.DB, bucket string) (*Persist, error) {
	name := []byte(bucket)
	err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(name)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create bucket %s: %w", bucket, err)
	}
	return &Persist{db: db, bucket: name}, nil
}

// Load loads the bytes persisted under the given name.
func (p *Persist) Load(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var b []byte
	err := p.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(p.bucket).Get([]byte(name))
		if v == nil {
			return fmt.Errorf("%s: %w", name, fs.ErrNotExist)
		}
		// v is only valid for the life of the transaction
		b = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

// Store persists the given bytes under the given name, if not present
// already.
func (p *Persist) Store(ctx context.Context, name string, b []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.db.Update(func(tx *bbolt.Tx) error {
		buck := tx.Bucket(p.bucket)
		if buck.Get([]byte(name)) != nil {
			return nil
		}
		return buck.Put([]byte(name), b)
	})
}

// Close closes the database if it was opened by Open.
func (p *Persist) Close() error {
	if !p.owned {
		return nil
	}
	return p.db.Close()
}
