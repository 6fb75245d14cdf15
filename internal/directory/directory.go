// Package directory resolves role-scoped peer listings on top of the store.
package directory

import (
	"context"

	"edurelay/internal/db"
	"edurelay/internal/model"
)

type Store interface {
	ListPeers(ctx context.Context, identity int64, direction db.Direction) ([]model.Peer, error)
}

type Service struct {
	store Store
}

func New(store Store) *Service {
	return &Service{store: store}
}

// TeachersOf lists the active teachers assigned to a student, ordered by
// display name. No assignments is not an error: the list is empty.
func (s *Service) TeachersOf(ctx context.Context, studentID int64) ([]model.Peer, error) {
	return s.list(ctx, studentID, db.TeachersOfStudent)
}

// StudentsOf lists the active students assigned to a teacher.
func (s *Service) StudentsOf(ctx context.Context, teacherID int64) ([]model.Peer, error) {
	return s.list(ctx, teacherID, db.StudentsOfTeacher)
}

func (s *Service) list(ctx context.Context, identity int64, direction db.Direction) ([]model.Peer, error) {
	peers, err := s.store.ListPeers(ctx, identity, direction)
	if err != nil {
		return nil, err
	}
	if peers == nil {
		peers = []model.Peer{}
	}
	return peers, nil
}
