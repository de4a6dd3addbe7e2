package layered

import (
	"errors"
	"fmt"
)

var (
	// ErrKeyNotFound is matched by errors returned from FetchOrError.
	ErrKeyNotFound = errors.New("key not found")
	// ErrCorrupted means a stored blob failed its checksum or could not be decoded.
	ErrCorrupted = errors.New("corrupted blob")
	// ErrNoPersist means a snapshot operation needed RemoteConfig.StoreImmutablePartsWith.
	ErrNoPersist = errors.New("no persistence mechanism set; set RemoteConfig.StoreImmutablePartsWith")
)

// KeyNotFoundError reports the key that was absent from both layers.
type KeyNotFoundError struct {
	Key any
}

func (e *KeyNotFoundError) Error() string {
	return fmt.Sprintf("key not found: %v", e.Key)
}

func (e *KeyNotFoundError) Is(target error) bool {
	return target == ErrKeyNotFound
}

func corruptf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrCorrupted, fmt.Sprintf(format, args...))
}
