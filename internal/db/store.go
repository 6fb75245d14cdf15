package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	pool           *pgxpool.Pool
	acquireTimeout time.Duration
	saturated      func() bool
}

func NewStore(pool *pgxpool.Pool, acquireTimeout time.Duration) *Store {
	return &Store{
		pool:           pool,
		acquireTimeout: acquireTimeout,
		saturated: func() bool {
			stat := pool.Stat()
			return stat.AcquiredConns() >= stat.MaxConns()
		},
	}
}

// wrap classifies an operation failure. A deadline hit while every pooled
// connection is handed out is pool exhaustion; the same deadline on a pool
// with headroom is a slow query and stays a StorageError.
func (s *Store) wrap(op string, err error) error {
	if err != nil && errors.Is(err, context.DeadlineExceeded) && s.saturated() {
		return fmt.Errorf("%s: %w", op, ErrPoolExhausted)
	}
	return wrap(op, err)
}

// opCtx bounds every store operation, including the wait for a pooled
// connection when the pool is saturated.
func (s *Store) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.acquireTimeout)
}

func (s *Store) WithTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		identity BIGINT PRIMARY KEY,
		display_name VARCHAR(255) NOT NULL,
		handle VARCHAR(100) NOT NULL DEFAULT '',
		role VARCHAR(50) NOT NULL DEFAULT '' CHECK (role IN ('', 'student', 'teacher', 'head_teacher', 'admin')),
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS assignments (
		id BIGSERIAL PRIMARY KEY,
		student_id BIGINT NOT NULL REFERENCES users(identity),
		teacher_id BIGINT NOT NULL REFERENCES users(identity),
		subject VARCHAR(100) NOT NULL DEFAULT '',
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (student_id, teacher_id, subject)
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id BIGSERIAL PRIMARY KEY,
		uid VARCHAR(100) UNIQUE NOT NULL,
		sender_id BIGINT NOT NULL REFERENCES users(identity),
		receiver_id BIGINT NOT NULL REFERENCES users(identity),
		content TEXT NOT NULL DEFAULT '',
		content_kind VARCHAR(20) NOT NULL DEFAULT 'text',
		is_read BOOLEAN NOT NULL DEFAULT FALSE,
		status VARCHAR(20) NOT NULL DEFAULT 'pending',
		in_reply_to BIGINT REFERENCES messages(id),
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		read_at TIMESTAMPTZ,
		replied_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_sender ON messages (sender_id)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_receiver ON messages (receiver_id)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_status ON messages (status)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_created ON messages (created_at DESC)`,
}

// Bootstrap ensures the tables and indexes exist. Safe to run on every start.
func (s *Store) Bootstrap(ctx context.Context) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	err := s.WithTx(ctx, func(tx pgx.Tx) error {
		for _, stmt := range schema {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return err
			}
		}
		return nil
	})
	return s.wrap("bootstrap schema", err)
}
