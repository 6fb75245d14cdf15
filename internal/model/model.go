package model

import "time"

type Role string

const (
	RoleNone        Role = ""
	RoleStudent     Role = "student"
	RoleTeacher     Role = "teacher"
	RoleHeadTeacher Role = "head_teacher"
	RoleAdmin       Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleTeacher, RoleHeadTeacher, RoleAdmin:
		return true
	}
	return false
}

type ContentKind string

const (
	KindText     ContentKind = "text"
	KindPhoto    ContentKind = "photo"
	KindDocument ContentKind = "document"
	KindVoice    ContentKind = "voice"
	KindMedia    ContentKind = "media"
)

type MessageStatus string

const (
	StatusPending MessageStatus = "pending"
	StatusReplied MessageStatus = "replied"
)

// User identity is the platform-assigned numeric id; users are deactivated,
// never deleted.
type User struct {
	Identity    int64
	DisplayName string
	Handle      string
	Role        Role
	Active      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Assignment pairs a student with a teacher, optionally scoped to a subject.
// The (student, teacher, subject) triple is unique.
type Assignment struct {
	ID        int64
	StudentID int64
	TeacherID int64
	Subject   string
	Active    bool
	CreatedAt time.Time
}

// Peer is a directory listing entry: the counterpart user plus the subject
// of the assignment that links the two.
type Peer struct {
	User    User
	Subject string
}

// Message is immutable once created except for the read/replied flags, which
// only move forward.
type Message struct {
	ID         int64
	UID        string
	SenderID   int64
	ReceiverID int64
	Content    string
	Kind       ContentKind
	IsRead     bool
	Status     MessageStatus
	InReplyTo  *int64
	CreatedAt  time.Time
	ReadAt     *time.Time
	RepliedAt  *time.Time
}

// ChatMessage is a message joined with its sender's display name for
// conversation rendering.
type ChatMessage struct {
	Message
	SenderName string
}
