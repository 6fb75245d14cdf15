package directory

import (
	"context"
	"errors"
	"testing"

	"edurelay/internal/db"
	"edurelay/internal/model"
)

type fakeStore struct {
	peers map[db.Direction]map[int64][]model.Peer
	err   error
}

func (f *fakeStore) ListPeers(_ context.Context, identity int64, direction db.Direction) ([]model.Peer, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.peers[direction][identity], nil
}

func TestTeachersOfEmptyIsNotAnError(t *testing.T) {
	svc := New(&fakeStore{peers: map[db.Direction]map[int64][]model.Peer{}})
	peers, err := svc.TeachersOf(context.Background(), 42)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if peers == nil || len(peers) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", peers)
	}
}

func TestStudentsOfPassesThrough(t *testing.T) {
	want := []model.Peer{
		{User: model.User{Identity: 1, DisplayName: "Alice"}, Subject: "Math"},
		{User: model.User{Identity: 2, DisplayName: "Bob"}},
	}
	svc := New(&fakeStore{peers: map[db.Direction]map[int64][]model.Peer{
		db.StudentsOfTeacher: {7: want},
	}})
	peers, err := svc.StudentsOf(context.Background(), 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(peers) != 2 || peers[0].User.DisplayName != "Alice" || peers[1].User.DisplayName != "Bob" {
		t.Fatalf("unexpected peers: %#v", peers)
	}
}

func TestListingSurfacesStoreErrors(t *testing.T) {
	cause := errors.New("boom")
	svc := New(&fakeStore{err: cause})
	if _, err := svc.TeachersOf(context.Background(), 1); !errors.Is(err, cause) {
		t.Fatalf("expected store error to surface, got %v", err)
	}
}
