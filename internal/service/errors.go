package service

import (
	"errors"
	"fmt"
)

// ErrCodeSpaceExhausted is returned by Issue when every generated candidate was
// already taken within the configured number of attempts.
var ErrCodeSpaceExhausted = errors.New("could not create a shareable link")

// StorageError wraps a backing-store failure with the operation that failed.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("stream code storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func storageError(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}
