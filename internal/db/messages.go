package db

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"edurelay/internal/model"
)

const messageColumns = `id, uid, sender_id, receiver_id, content, content_kind, is_read, status, in_reply_to, created_at, read_at, replied_at`

const chatMessageColumns = `m.id, m.uid, m.sender_id, m.receiver_id, m.content, m.content_kind, m.is_read, m.status, m.in_reply_to, m.created_at, m.read_at, m.replied_at, sender.display_name`

func scanMessage(row pgx.Row) (model.Message, error) {
	var m model.Message
	err := row.Scan(
		&m.ID,
		&m.UID,
		&m.SenderID,
		&m.ReceiverID,
		&m.Content,
		&m.Kind,
		&m.IsRead,
		&m.Status,
		&m.InReplyTo,
		&m.CreatedAt,
		&m.ReadAt,
		&m.RepliedAt,
	)
	return m, err
}

func (s *Store) CreateMessage(ctx context.Context, senderID, receiverID int64, content string, kind model.ContentKind, inReplyTo *int64) (model.Message, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	row := s.pool.QueryRow(ctx, `
		INSERT INTO messages (uid, sender_id, receiver_id, content, content_kind, in_reply_to)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+messageColumns,
		uuid.NewString(), senderID, receiverID, content, kind, inReplyTo)
	m, err := scanMessage(row)
	return m, s.wrap("create message", err)
}

func (s *Store) GetMessage(ctx context.Context, id int64) (model.Message, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	row := s.pool.QueryRow(ctx, `
		SELECT `+messageColumns+` FROM messages WHERE id = $1`, id)
	m, err := scanMessage(row)
	return m, s.wrap("get message", err)
}

// MarkRead flips is_read forward. A message that is already read is left
// untouched, so replays cannot clear read_at.
func (s *Store) MarkRead(ctx context.Context, id int64) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	_, err := s.pool.Exec(ctx, `
		UPDATE messages
		SET is_read = TRUE, read_at = now()
		WHERE id = $1 AND is_read = FALSE`, id)
	return s.wrap("mark read", err)
}

// MarkReplied flips status pending -> replied. Never moves backward.
func (s *Store) MarkReplied(ctx context.Context, id int64) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	_, err := s.pool.Exec(ctx, `
		UPDATE messages
		SET status = $2, replied_at = now()
		WHERE id = $1 AND status = $3`, id, model.StatusReplied, model.StatusPending)
	return s.wrap("mark replied", err)
}

func (s *Store) queryChatMessages(ctx context.Context, query string, args ...any) ([]model.ChatMessage, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []model.ChatMessage
	for rows.Next() {
		var cm model.ChatMessage
		err := rows.Scan(
			&cm.ID,
			&cm.UID,
			&cm.SenderID,
			&cm.ReceiverID,
			&cm.Content,
			&cm.Kind,
			&cm.IsRead,
			&cm.Status,
			&cm.InReplyTo,
			&cm.CreatedAt,
			&cm.ReadAt,
			&cm.RepliedAt,
			&cm.SenderName,
		)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, cm)
	}
	return msgs, rows.Err()
}

// ListConversation returns one window of the conversation between two
// identities, ascending by creation time regardless of viewer direction.
func (s *Store) ListConversation(ctx context.Context, a, b int64, limit, offset int) ([]model.ChatMessage, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	msgs, err := s.queryChatMessages(ctx, `
		SELECT `+chatMessageColumns+`
		FROM messages m
		JOIN users sender ON m.sender_id = sender.identity
		WHERE (m.sender_id = $1 AND m.receiver_id = $2)
		   OR (m.sender_id = $2 AND m.receiver_id = $1)
		ORDER BY m.created_at ASC
		LIMIT $3 OFFSET $4`, a, b, limit, offset)
	return msgs, s.wrap("list conversation", err)
}

func (s *Store) CountConversation(ctx context.Context, a, b int64) (int, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT count(*)
		FROM messages
		WHERE (sender_id = $1 AND receiver_id = $2)
		   OR (sender_id = $2 AND receiver_id = $1)`, a, b).Scan(&count)
	return count, s.wrap("count conversation", err)
}

// ListUnread returns pending unread messages addressed to the receiver,
// newest first.
func (s *Store) ListUnread(ctx context.Context, receiverID int64) ([]model.ChatMessage, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	msgs, err := s.queryChatMessages(ctx, `
		SELECT `+chatMessageColumns+`
		FROM messages m
		JOIN users sender ON m.sender_id = sender.identity
		WHERE m.receiver_id = $1 AND m.is_read = FALSE AND m.status = $2
		ORDER BY m.created_at DESC`, receiverID, model.StatusPending)
	return msgs, s.wrap("list unread", err)
}
