package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"edurelay/internal/db"
	"edurelay/internal/keyboard"
	"edurelay/internal/model"
	"edurelay/internal/relay"
)

const helpText = `This bot relays messages between students and teachers.

/start opens the main menu for your role.
/settings lets you change your role.
/cancel abandons whatever you were doing.

Students pick a teacher and write a message. Teachers get the message with
a Reply button and answer in place. Conversations are browsable page by page.`

func (m *Machine) handleStart(ctx context.Context, ev relay.Event) (Session, error) {
	user, err := m.store.UpsertUser(ctx, ev.Identity, ev.DisplayName, ev.Handle)
	if err != nil {
		return Session{}, fmt.Errorf("register user: %w", err)
	}
	if !user.Role.Valid() || user.Role == model.RoleNone {
		m.notify(ctx, ev.Identity, "Welcome! Who are you?", keyboard.RoleMenu())
		return Session{State: StateSelectingRole}, nil
	}
	m.showMainMenu(ctx, user)
	return Session{State: StateIdle}, nil
}

func (m *Machine) handleSettings(ctx context.Context, ev relay.Event, sess Session) (Session, error) {
	m.notify(ctx, ev.Identity, "Settings", keyboard.SettingsMenu())
	return sess, nil
}

func (m *Machine) handleCancel(ctx context.Context, ev relay.Event) (Session, error) {
	user, err := m.store.GetUser(ctx, ev.Identity)
	if errors.Is(err, db.ErrNotFound) {
		m.notify(ctx, ev.Identity, "Send /start to begin.", nil)
		return Session{State: StateIdle}, nil
	}
	if err != nil {
		return Session{}, fmt.Errorf("load user: %w", err)
	}
	if user.Role == model.RoleNone {
		m.notify(ctx, ev.Identity, "Who are you?", keyboard.RoleMenu())
		return Session{State: StateSelectingRole}, nil
	}
	m.showMainMenu(ctx, user)
	return Session{State: StateIdle}, nil
}

func (m *Machine) handleRoleChosen(ctx context.Context, ev relay.Event, _ Session) (Session, error) {
	role := model.Role(strings.TrimPrefix(ev.Action, keyboard.RolePrefix))
	if !role.Valid() || role == model.RoleNone {
		return Session{State: StateSelectingRole}, validation("Pick a role from the buttons.")
	}
	user, err := m.store.SetUserRole(ctx, ev.Identity, role)
	if err != nil {
		return Session{}, fmt.Errorf("set role: %w", err)
	}
	m.showMainMenu(ctx, user)
	return Session{State: StateIdle}, nil
}

func (m *Machine) showMainMenu(ctx context.Context, user model.User) {
	m.notify(ctx, user.Identity,
		fmt.Sprintf("Hello, %s. What would you like to do?", user.DisplayName),
		keyboard.MainMenu(user.Role))
}

// handleSendMessage begins the student compose flow: pick a teacher, then
// write the message.
func (m *Machine) handleSendMessage(ctx context.Context, ev relay.Event, sess Session) (Session, error) {
	peers, err := m.dir.TeachersOf(ctx, ev.Identity)
	if err != nil {
		return Session{}, fmt.Errorf("list teachers: %w", err)
	}
	if len(peers) == 0 {
		m.notify(ctx, ev.Identity, "You have no teachers assigned yet. Ask your administrator.", keyboard.CancelMenu())
		return sess, nil
	}
	m.notify(ctx, ev.Identity, "Choose a teacher:", keyboard.PeerList(peers))
	return Session{State: StateSelectingTeacher}, nil
}

func (m *Machine) handleViewMessages(ctx context.Context, ev relay.Event, sess Session) (Session, error) {
	user, err := m.store.GetUser(ctx, ev.Identity)
	if err != nil {
		return Session{}, fmt.Errorf("load user: %w", err)
	}
	switch user.Role {
	case model.RoleTeacher, model.RoleHeadTeacher, model.RoleAdmin:
		unread, err := m.store.ListUnread(ctx, ev.Identity)
		if err != nil {
			return Session{}, fmt.Errorf("list unread: %w", err)
		}
		if len(unread) > 0 {
			m.notify(ctx, ev.Identity,
				fmt.Sprintf("You have %d unanswered message(s). Pick one to reply:", len(unread)),
				keyboard.UnreadList(unread, m.pageSize))
			return Session{State: StateIdle}, nil
		}
		peers, err := m.dir.StudentsOf(ctx, ev.Identity)
		if err != nil {
			return Session{}, fmt.Errorf("list students: %w", err)
		}
		if len(peers) == 0 {
			m.notify(ctx, ev.Identity, "No new messages.", keyboard.MainMenu(user.Role))
			return Session{State: StateIdle}, nil
		}
		m.notify(ctx, ev.Identity, "No new messages. Open a conversation:", keyboard.PeerList(peers))
		return Session{State: StateViewingChat}, nil
	default:
		peers, err := m.dir.TeachersOf(ctx, ev.Identity)
		if err != nil {
			return Session{}, fmt.Errorf("list teachers: %w", err)
		}
		if len(peers) == 0 {
			m.notify(ctx, ev.Identity, "You have no conversations yet.", keyboard.MainMenu(user.Role))
			return Session{State: StateIdle}, nil
		}
		m.notify(ctx, ev.Identity, "Whose conversation do you want to open?", keyboard.PeerList(peers))
		return Session{State: StateViewingChat}, nil
	}
}

func (m *Machine) handleMyPeers(ctx context.Context, ev relay.Event, sess Session) (Session, error) {
	user, err := m.store.GetUser(ctx, ev.Identity)
	if err != nil {
		return Session{}, fmt.Errorf("load user: %w", err)
	}
	var peers []model.Peer
	if user.Role == model.RoleStudent {
		peers, err = m.dir.TeachersOf(ctx, ev.Identity)
	} else {
		peers, err = m.dir.StudentsOf(ctx, ev.Identity)
	}
	if err != nil {
		return Session{}, fmt.Errorf("list peers: %w", err)
	}
	if len(peers) == 0 {
		m.notify(ctx, ev.Identity, "Nobody is assigned to you yet.", keyboard.MainMenu(user.Role))
		return sess, nil
	}
	var b strings.Builder
	b.WriteString("Your assignments:\n")
	for _, p := range peers {
		if p.Subject != "" {
			fmt.Fprintf(&b, "- %s (%s)\n", p.User.DisplayName, p.Subject)
		} else {
			fmt.Fprintf(&b, "- %s\n", p.User.DisplayName)
		}
	}
	m.notify(ctx, ev.Identity, b.String(), keyboard.MainMenu(user.Role))
	return sess, nil
}

func (m *Machine) handleListByRole(ctx context.Context, ev relay.Event, sess Session, role model.Role) (Session, error) {
	users, err := m.store.ListUsersByRole(ctx, role)
	if err != nil {
		return Session{}, fmt.Errorf("list %s users: %w", role, err)
	}
	if len(users) == 0 {
		m.notify(ctx, ev.Identity, "Nobody registered with that role yet.", keyboard.CancelMenu())
		return sess, nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d registered:\n", len(users))
	for _, u := range users {
		if u.Handle != "" {
			fmt.Fprintf(&b, "- %s (@%s)\n", u.DisplayName, u.Handle)
		} else {
			fmt.Fprintf(&b, "- %s\n", u.DisplayName)
		}
	}
	m.notify(ctx, ev.Identity, b.String(), keyboard.CancelMenu())
	return sess, nil
}

// handlePeerChosen stashes the selected peer and moves to composing.
func (m *Machine) handlePeerChosen(ctx context.Context, ev relay.Event, peerID int64) (Session, error) {
	peer, err := m.store.GetUser(ctx, peerID)
	if errors.Is(err, db.ErrNotFound) {
		return Session{}, ErrSessionInconsistency
	}
	if err != nil {
		return Session{}, fmt.Errorf("load peer: %w", err)
	}
	m.notify(ctx, ev.Identity,
		fmt.Sprintf("Write your message to %s:", peer.DisplayName),
		keyboard.CancelMenu())
	return Session{
		State:    StateWritingMessage,
		PeerID:   peer.Identity,
		PeerName: peer.DisplayName,
	}, nil
}

// handleReplyChosen stashes the message being answered, marks it read and
// moves to the reply compose state. Only the addressed receiver may reply.
func (m *Machine) handleReplyChosen(ctx context.Context, ev relay.Event, messageID int64) (Session, error) {
	msg, err := m.store.GetMessage(ctx, messageID)
	if errors.Is(err, db.ErrNotFound) {
		return Session{}, ErrSessionInconsistency
	}
	if err != nil {
		return Session{}, fmt.Errorf("load message: %w", err)
	}
	if msg.ReceiverID != ev.Identity {
		return Session{}, validation("That message was not addressed to you.")
	}
	if err := m.store.MarkRead(ctx, msg.ID); err != nil {
		return Session{}, fmt.Errorf("mark read: %w", err)
	}
	m.notify(ctx, ev.Identity,
		fmt.Sprintf("Replying to:\n%s\n\nWrite your answer:", truncate(msg.Content, 200)),
		keyboard.CancelMenu())
	return Session{
		State:         StateReplyingMessage,
		ReplyToID:     msg.ID,
		ReplyToSender: msg.SenderID,
	}, nil
}

// handleComposeContent persists and relays a fresh message. The row is
// written first: a relay failure never loses the message, the sender just
// gets told delivery is pending.
func (m *Machine) handleComposeContent(ctx context.Context, ev relay.Event, sess Session) (Session, error) {
	if sess.PeerID == 0 {
		return Session{}, ErrSessionInconsistency
	}
	// Sender is loaded first: once the row is persisted the flow must reach a
	// notice, not a generic failure.
	user, err := m.store.GetUser(ctx, ev.Identity)
	if err != nil {
		return Session{}, fmt.Errorf("load sender: %w", err)
	}
	msg, err := m.store.CreateMessage(ctx, ev.Identity, sess.PeerID, ev.Text, ev.ContentKind, nil)
	if err != nil {
		return Session{}, fmt.Errorf("store message: %w", err)
	}
	deliverErr := m.relay.Send(ctx, relay.Render{
		Recipient: sess.PeerID,
		Text:      fmt.Sprintf("New message from %s:\n\n%s", user.DisplayName, msg.Content),
		Buttons:   keyboard.ReplyButton(msg.ID),
	})
	if deliverErr != nil {
		m.notify(ctx, ev.Identity,
			fmt.Sprintf("Your message to %s is saved but could not be delivered right now. They will see it when they check their messages.", sess.PeerName),
			keyboard.MainMenu(user.Role))
	} else {
		m.notify(ctx, ev.Identity,
			fmt.Sprintf("Message sent to %s.", sess.PeerName),
			keyboard.MainMenu(user.Role))
	}
	return Session{State: StateIdle}, nil
}

// handleReplyContent persists the reply linked to the original, flips the
// original to replied and relays the answer back.
func (m *Machine) handleReplyContent(ctx context.Context, ev relay.Event, sess Session) (Session, error) {
	if sess.ReplyToID == 0 || sess.ReplyToSender == 0 {
		return Session{}, ErrSessionInconsistency
	}
	original, err := m.store.GetMessage(ctx, sess.ReplyToID)
	if errors.Is(err, db.ErrNotFound) {
		return Session{}, ErrSessionInconsistency
	}
	if err != nil {
		return Session{}, fmt.Errorf("load original: %w", err)
	}
	user, err := m.store.GetUser(ctx, ev.Identity)
	if err != nil {
		return Session{}, fmt.Errorf("load sender: %w", err)
	}
	inReplyTo := original.ID
	reply, err := m.store.CreateMessage(ctx, ev.Identity, original.SenderID, ev.Text, ev.ContentKind, &inReplyTo)
	if err != nil {
		return Session{}, fmt.Errorf("store reply: %w", err)
	}
	if err := m.store.MarkReplied(ctx, original.ID); err != nil {
		return Session{}, fmt.Errorf("mark replied: %w", err)
	}
	deliverErr := m.relay.Send(ctx, relay.Render{
		Recipient: original.SenderID,
		Text:      fmt.Sprintf("Reply from %s:\n\n%s", user.DisplayName, reply.Content),
		Buttons:   keyboard.ReplyButton(reply.ID),
	})
	if deliverErr != nil {
		m.notify(ctx, ev.Identity,
			"Your reply is saved but could not be delivered right now.",
			keyboard.MainMenu(user.Role))
	} else {
		m.notify(ctx, ev.Identity, "Reply sent.", keyboard.MainMenu(user.Role))
	}
	return Session{State: StateIdle}, nil
}

// showChatPage renders one window of the conversation between a and b.
// Out-of-range pages clamp to the nearest valid page instead of erroring.
func (m *Machine) showChatPage(ctx context.Context, viewer, a, b int64, page int) (Session, error) {
	total, err := m.store.CountConversation(ctx, a, b)
	if err != nil {
		return Session{}, fmt.Errorf("count conversation: %w", err)
	}
	peerID := a
	if peerID == viewer {
		peerID = b
	}
	if total == 0 {
		m.notify(ctx, viewer, "No messages in this conversation yet.",
			[][]relay.Button{{
				{Label: "New message", Action: keyboard.ActionNewMessage(peerID)},
				{Label: "Back", Action: keyboard.ActionBackToMain},
			}})
		return Session{State: StateViewingChat, PeerID: peerID}, nil
	}
	totalPages := (total + m.pageSize - 1) / m.pageSize
	if page < 0 {
		page = 0
	}
	if page > totalPages-1 {
		page = totalPages - 1
	}
	msgs, err := m.store.ListConversation(ctx, a, b, m.pageSize, page*m.pageSize)
	if err != nil {
		return Session{}, fmt.Errorf("list conversation: %w", err)
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Conversation, page %d of %d:\n\n", page+1, totalPages)
	for _, msg := range msgs {
		marker := ""
		if msg.SenderID == viewer {
			marker = " (you)"
		}
		fmt.Fprintf(&sb, "%s%s [%s]:\n%s\n\n",
			msg.SenderName, marker,
			msg.CreatedAt.Format("02 Jan 15:04"),
			msg.Content)
	}
	m.notify(ctx, viewer, sb.String(), keyboard.ChatPager(a, b, page, totalPages, peerID))
	return Session{State: StateViewingChat, PeerID: peerID}, nil
}
