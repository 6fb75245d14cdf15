package db

import (
	"context"

	"edurelay/internal/model"
)

// Direction selects which side of an assignment a peer listing resolves.
type Direction int

const (
	TeachersOfStudent Direction = iota
	StudentsOfTeacher
)

// UpsertAssignment pairs a student with a teacher. Re-inserting an existing
// (student, teacher, subject) triple reactivates it instead of duplicating.
func (s *Store) UpsertAssignment(ctx context.Context, studentID, teacherID int64, subject string) (model.Assignment, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	row := s.pool.QueryRow(ctx, `
		INSERT INTO assignments (student_id, teacher_id, subject)
		VALUES ($1, $2, $3)
		ON CONFLICT (student_id, teacher_id, subject) DO UPDATE
		SET active = TRUE, created_at = now()
		RETURNING id, student_id, teacher_id, subject, active, created_at`,
		studentID, teacherID, subject)

	var a model.Assignment
	err := row.Scan(&a.ID, &a.StudentID, &a.TeacherID, &a.Subject, &a.Active, &a.CreatedAt)
	return a, s.wrap("upsert assignment", err)
}

// ListPeers resolves the active counterparts of an identity, ordered by
// display name for deterministic menus.
func (s *Store) ListPeers(ctx context.Context, identity int64, direction Direction) ([]model.Peer, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	join, filter := "a.teacher_id", "a.student_id"
	if direction == StudentsOfTeacher {
		join, filter = "a.student_id", "a.teacher_id"
	}

	rows, err := s.pool.Query(ctx, `
		SELECT u.identity, u.display_name, u.handle, u.role, u.active, u.created_at, u.updated_at, a.subject
		FROM users u
		JOIN assignments a ON u.identity = `+join+`
		WHERE `+filter+` = $1 AND a.active AND u.active
		ORDER BY u.display_name COLLATE "C"`, identity)
	if err != nil {
		return nil, s.wrap("list peers", err)
	}
	defer rows.Close()

	var peers []model.Peer
	for rows.Next() {
		var p model.Peer
		err := rows.Scan(
			&p.User.Identity,
			&p.User.DisplayName,
			&p.User.Handle,
			&p.User.Role,
			&p.User.Active,
			&p.User.CreatedAt,
			&p.User.UpdatedAt,
			&p.Subject,
		)
		if err != nil {
			return nil, s.wrap("list peers", err)
		}
		peers = append(peers, p)
	}
	return peers, s.wrap("list peers", rows.Err())
}
