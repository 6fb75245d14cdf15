package db

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

var (
	// ErrNotFound reports that the requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrPoolExhausted reports that the bounded wait for a pooled connection
	// elapsed. The caller may retry with backoff; the store never retries.
	ErrPoolExhausted = errors.New("connection pool exhausted")
)

// StorageError wraps a driver failure with the operation that produced it.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return &StorageError{Op: op, Err: err}
}
