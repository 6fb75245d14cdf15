package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"edurelay/internal/model"
)

const userColumns = `identity, display_name, handle, role, active, created_at, updated_at`

func scanUser(row pgx.Row) (model.User, error) {
	var user model.User
	err := row.Scan(
		&user.Identity,
		&user.DisplayName,
		&user.Handle,
		&user.Role,
		&user.Active,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	return user, err
}

// UpsertUser creates the user on first contact and refreshes display name and
// handle when they changed. The role column is never touched here.
func (s *Store) UpsertUser(ctx context.Context, identity int64, displayName, handle string) (model.User, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	row := s.pool.QueryRow(ctx, `
		INSERT INTO users (identity, display_name, handle)
		VALUES ($1, $2, $3)
		ON CONFLICT (identity) DO UPDATE
		SET display_name = EXCLUDED.display_name, handle = EXCLUDED.handle, updated_at = now()
		WHERE users.display_name <> EXCLUDED.display_name OR users.handle <> EXCLUDED.handle
		RETURNING `+userColumns, identity, displayName, handle)
	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		// Nothing changed, the conditional update returned no row.
		return s.GetUser(ctx, identity)
	}
	return user, s.wrap("upsert user", err)
}

func (s *Store) SetUserRole(ctx context.Context, identity int64, role model.Role) (model.User, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	row := s.pool.QueryRow(ctx, `
		UPDATE users
		SET role = $2, updated_at = now()
		WHERE identity = $1
		RETURNING `+userColumns, identity, role)
	user, err := scanUser(row)
	return user, s.wrap("set user role", err)
}

func (s *Store) GetUser(ctx context.Context, identity int64) (model.User, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	row := s.pool.QueryRow(ctx, `
		SELECT `+userColumns+` FROM users WHERE identity = $1`, identity)
	user, err := scanUser(row)
	return user, s.wrap("get user", err)
}

func (s *Store) ListUsersByRole(ctx context.Context, role model.Role) ([]model.User, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE role = $1 AND active
		ORDER BY display_name COLLATE "C"`, role)
	if err != nil {
		return nil, s.wrap("list users by role", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, s.wrap("list users by role", err)
		}
		users = append(users, user)
	}
	return users, s.wrap("list users by role", rows.Err())
}

func (s *Store) DeactivateUser(ctx context.Context, identity int64) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	tag, err := s.pool.Exec(ctx, `
		UPDATE users SET active = FALSE, updated_at = now() WHERE identity = $1`, identity)
	if err != nil {
		return s.wrap("deactivate user", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
