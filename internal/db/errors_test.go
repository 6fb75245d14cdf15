package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
)

func TestWrapNil(t *testing.T) {
	if err := wrap("op", nil); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestWrapNoRows(t *testing.T) {
	err := wrap("get user", pgx.ErrNoRows)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeadlineOnSaturatedPoolIsExhaustion(t *testing.T) {
	s := &Store{saturated: func() bool { return true }}
	err := s.wrap("get user", fmt.Errorf("acquire: %w", context.DeadlineExceeded))
	if !errors.Is(err, ErrPoolExhausted) {
		t.Fatalf("expected ErrPoolExhausted, got %v", err)
	}
}

func TestDeadlineWithPoolHeadroomIsStorageError(t *testing.T) {
	s := &Store{saturated: func() bool { return false }}
	err := s.wrap("list unread", fmt.Errorf("query: %w", context.DeadlineExceeded))
	if errors.Is(err, ErrPoolExhausted) {
		t.Fatalf("slow query misclassified as pool exhaustion: %v", err)
	}
	var storageErr *StorageError
	if !errors.As(err, &storageErr) {
		t.Fatalf("expected StorageError, got %v", err)
	}
}

func TestWrapDriverError(t *testing.T) {
	cause := errors.New("connection refused")
	err := wrap("list peers", cause)

	var storageErr *StorageError
	if !errors.As(err, &storageErr) {
		t.Fatalf("expected StorageError, got %v", err)
	}
	if storageErr.Op != "list peers" {
		t.Fatalf("expected op to survive wrapping, got %s", storageErr.Op)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected Unwrap to reach the cause")
	}
}
