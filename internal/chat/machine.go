// Package chat drives the per-user conversation state machine: role
// onboarding, peer selection, message composition, replies and history
// paging. One session per identity, serialized per identity.
package chat

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"edurelay/internal/keyboard"
	"edurelay/internal/model"
	"edurelay/internal/relay"
)

var handledEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "edurelay_events_handled_total",
	Help: "Inbound events handled by the conversation machine.",
}, []string{"kind"})

func init() {
	prometheus.MustRegister(handledEvents)
}

// Storage is the slice of the store the machine needs. Errors are surfaced,
// never retried here.
type Storage interface {
	UpsertUser(ctx context.Context, identity int64, displayName, handle string) (model.User, error)
	SetUserRole(ctx context.Context, identity int64, role model.Role) (model.User, error)
	GetUser(ctx context.Context, identity int64) (model.User, error)
	ListUsersByRole(ctx context.Context, role model.Role) ([]model.User, error)
	CreateMessage(ctx context.Context, senderID, receiverID int64, content string, kind model.ContentKind, inReplyTo *int64) (model.Message, error)
	GetMessage(ctx context.Context, id int64) (model.Message, error)
	MarkRead(ctx context.Context, id int64) error
	MarkReplied(ctx context.Context, id int64) error
	ListConversation(ctx context.Context, a, b int64, limit, offset int) ([]model.ChatMessage, error)
	CountConversation(ctx context.Context, a, b int64) (int, error)
	ListUnread(ctx context.Context, receiverID int64) ([]model.ChatMessage, error)
}

type Directory interface {
	TeachersOf(ctx context.Context, studentID int64) ([]model.Peer, error)
	StudentsOf(ctx context.Context, teacherID int64) ([]model.Peer, error)
}

type Machine struct {
	sessions SessionStore
	store    Storage
	dir      Directory
	relay    relay.Relay
	pageSize int
	now      func() time.Time

	mu    sync.Mutex
	locks map[int64]*identityLock
}

// identityLock serializes handlers for one identity. refs counts holders and
// waiters so the registry entry can be dropped once nobody needs it.
type identityLock struct {
	mu   sync.Mutex
	refs int
}

func NewMachine(sessions SessionStore, store Storage, dir Directory, rl relay.Relay, pageSize int) *Machine {
	if pageSize <= 0 {
		pageSize = 10
	}
	return &Machine{
		sessions: sessions,
		store:    store,
		dir:      dir,
		relay:    rl,
		pageSize: pageSize,
		now:      time.Now,
		locks:    map[int64]*identityLock{},
	}
}

func (m *Machine) acquire(identity int64) *identityLock {
	m.mu.Lock()
	l, ok := m.locks[identity]
	if !ok {
		l = &identityLock{}
		m.locks[identity] = l
	}
	l.refs++
	m.mu.Unlock()
	l.mu.Lock()
	return l
}

// tryAcquire takes the identity lock only if it is free.
func (m *Machine) tryAcquire(identity int64) (*identityLock, bool) {
	m.mu.Lock()
	l, ok := m.locks[identity]
	if !ok {
		l = &identityLock{}
		m.locks[identity] = l
	}
	l.refs++
	m.mu.Unlock()
	if l.mu.TryLock() {
		return l, true
	}
	m.unref(identity, l)
	return nil, false
}

func (m *Machine) release(identity int64, l *identityLock) {
	l.mu.Unlock()
	m.unref(identity, l)
}

func (m *Machine) unref(identity int64, l *identityLock) {
	m.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(m.locks, identity)
	}
	m.mu.Unlock()
}

// HandleEvent processes one inbound event. Events for the same identity are
// serialized: session data is not atomic across storage calls, so a second
// in-flight handler must wait for the first to commit its transition.
func (m *Machine) HandleEvent(ctx context.Context, ev relay.Event) {
	handledEvents.WithLabelValues(kindLabel(ev.Kind)).Inc()

	l := m.acquire(ev.Identity)
	defer m.release(ev.Identity, l)

	sess, ok, err := m.sessions.Get(ctx, ev.Identity)
	if err != nil {
		zap.L().Error("session load failed", zap.Int64("identity", ev.Identity), zap.Error(err))
		ok = false
	}
	if !ok {
		sess = Session{State: StateIdle}
	}

	next, err := m.dispatch(ctx, ev, sess)
	if err != nil {
		m.handleFailure(ctx, ev, sess, err)
		return
	}
	m.saveSession(ctx, ev.Identity, next)
}

func (m *Machine) dispatch(ctx context.Context, ev relay.Event, sess Session) (Session, error) {
	switch ev.Kind {
	case relay.EventCommand:
		return m.dispatchCommand(ctx, ev, sess)
	case relay.EventAction:
		return m.dispatchAction(ctx, ev, sess)
	case relay.EventContent:
		return m.dispatchContent(ctx, ev, sess)
	}
	return sess, validation("Unsupported input.")
}

func (m *Machine) dispatchCommand(ctx context.Context, ev relay.Event, sess Session) (Session, error) {
	switch ev.Command {
	case "start":
		return m.handleStart(ctx, ev)
	case "help":
		m.notify(ctx, ev.Identity, helpText, nil)
		return sess, nil
	case "settings":
		return m.handleSettings(ctx, ev, sess)
	case "cancel":
		return m.handleCancel(ctx, ev)
	}
	return sess, validation("Unknown command. Try /help.")
}

func (m *Machine) dispatchAction(ctx context.Context, ev relay.Event, sess Session) (Session, error) {
	switch ev.Action {
	case keyboard.ActionNoop:
		return sess, nil
	case keyboard.ActionCancel, keyboard.ActionBackToMain:
		return m.handleCancel(ctx, ev)
	case keyboard.ActionLogout:
		m.notify(ctx, ev.Identity, "Signed out. Send /start when you need the bot again.", nil)
		return Session{State: StateIdle}, nil
	case keyboard.ActionHelp:
		m.notify(ctx, ev.Identity, helpText, nil)
		return sess, nil
	case keyboard.ActionChangeRole:
		m.notify(ctx, ev.Identity, "Pick your new role:", keyboard.RoleMenu())
		return Session{State: StateSelectingRole}, nil
	case keyboard.ActionSendMessage:
		return m.handleSendMessage(ctx, ev, sess)
	case keyboard.ActionViewMessages:
		return m.handleViewMessages(ctx, ev, sess)
	case keyboard.ActionMyPeers:
		return m.handleMyPeers(ctx, ev, sess)
	case keyboard.ActionListTeachers:
		return m.handleListByRole(ctx, ev, sess, model.RoleTeacher)
	case keyboard.ActionListStudents:
		return m.handleListByRole(ctx, ev, sess, model.RoleStudent)
	}

	switch {
	case strings.HasPrefix(ev.Action, keyboard.RolePrefix):
		if sess.State != StateSelectingRole {
			return sess, validation("Role selection is not active. Send /start first.")
		}
		return m.handleRoleChosen(ctx, ev, sess)

	case strings.HasPrefix(ev.Action, keyboard.SelectPeerPrefix):
		peerID, err := parseID(ev.Action, keyboard.SelectPeerPrefix)
		if err != nil {
			return sess, validation("That button is no longer valid.")
		}
		switch sess.State {
		case StateSelectingTeacher:
			return m.handlePeerChosen(ctx, ev, peerID)
		case StateViewingChat:
			return m.showChatPage(ctx, ev.Identity, ev.Identity, peerID, 0)
		}
		return sess, validation("Please finish or cancel your current action first.")

	case strings.HasPrefix(ev.Action, keyboard.NewMessagePrefix):
		peerID, err := parseID(ev.Action, keyboard.NewMessagePrefix)
		if err != nil {
			return sess, validation("That button is no longer valid.")
		}
		return m.handlePeerChosen(ctx, ev, peerID)

	case strings.HasPrefix(ev.Action, keyboard.ReplyPrefix):
		messageID, err := parseID(ev.Action, keyboard.ReplyPrefix)
		if err != nil {
			return sess, validation("That button is no longer valid.")
		}
		return m.handleReplyChosen(ctx, ev, messageID)

	case strings.HasPrefix(ev.Action, keyboard.ChatPagePrefix):
		a, b, page, err := parseChatPage(ev.Action)
		if err != nil {
			return sess, validation("That button is no longer valid.")
		}
		if a != ev.Identity && b != ev.Identity {
			return sess, validation("That conversation is not yours.")
		}
		return m.showChatPage(ctx, ev.Identity, a, b, page)
	}
	return sess, validation("Unknown action.")
}

func (m *Machine) dispatchContent(ctx context.Context, ev relay.Event, sess Session) (Session, error) {
	if strings.TrimSpace(ev.Text) == "" {
		return sess, validation("Empty messages cannot be sent.")
	}
	switch sess.State {
	case StateWritingMessage:
		return m.handleComposeContent(ctx, ev, sess)
	case StateReplyingMessage:
		return m.handleReplyContent(ctx, ev, sess)
	}
	return sess, validation("Please use the menu buttons, or send /start.")
}

// handleFailure maps handler errors to user notices. Validation keeps the
// session; everything else resets it to a safe idle state.
func (m *Machine) handleFailure(ctx context.Context, ev relay.Event, sess Session, err error) {
	var vErr *ValidationError
	switch {
	case errors.As(err, &vErr):
		m.notify(ctx, ev.Identity, vErr.msg, nil)
		m.saveSession(ctx, ev.Identity, sess)
	case errors.Is(err, ErrSessionInconsistency):
		zap.L().Warn("session context lost",
			zap.Int64("identity", ev.Identity),
			zap.String("state", string(sess.State)),
			zap.String("action", ev.Action))
		m.notify(ctx, ev.Identity, "That action is no longer available. Send /start to open the menu.", nil)
		m.saveSession(ctx, ev.Identity, Session{State: StateIdle})
	default:
		zap.L().Error("handler failed",
			zap.Int64("identity", ev.Identity),
			zap.String("state", string(sess.State)),
			zap.String("action", ev.Action),
			zap.Error(err))
		m.notify(ctx, ev.Identity, "Something went wrong. Please try again in a moment.", nil)
		m.saveSession(ctx, ev.Identity, Session{State: StateIdle})
	}
}

func (m *Machine) saveSession(ctx context.Context, identity int64, s Session) {
	if s.State == StateIdle && s.PeerID == 0 && s.ReplyToID == 0 {
		if err := m.sessions.Clear(ctx, identity); err != nil {
			zap.L().Error("session clear failed", zap.Int64("identity", identity), zap.Error(err))
		}
		return
	}
	s.UpdatedAt = m.now()
	if err := m.sessions.Put(ctx, identity, s); err != nil {
		zap.L().Error("session save failed", zap.Int64("identity", identity), zap.Error(err))
	}
}

// StartSessionSweeper evicts sessions idle past ttl. TryLock makes sure an
// in-flight handler is never raced; a busy identity is retried next sweep.
func (m *Machine) StartSessionSweeper(ctx context.Context, ttl, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.sweepSessions(ctx, ttl)
			}
		}
	}()
}

func (m *Machine) sweepSessions(ctx context.Context, ttl time.Duration) {
	cutoff := m.now().Add(-ttl)
	stale, err := m.sessions.Stale(ctx, cutoff)
	if err != nil {
		zap.L().Warn("session sweep failed", zap.Error(err))
		return
	}
	for _, identity := range stale {
		l, ok := m.tryAcquire(identity)
		if !ok {
			continue
		}
		if sess, ok, err := m.sessions.Get(ctx, identity); err == nil && ok && sess.UpdatedAt.Before(cutoff) {
			if err := m.sessions.Clear(ctx, identity); err != nil {
				zap.L().Warn("session evict failed", zap.Int64("identity", identity), zap.Error(err))
			}
		}
		m.release(identity, l)
	}
}

func (m *Machine) send(ctx context.Context, r relay.Render) {
	if err := m.relay.Send(ctx, r); err != nil {
		zap.L().Warn("send failed", zap.Int64("recipient", r.Recipient), zap.Error(err))
	}
}

func (m *Machine) notify(ctx context.Context, recipient int64, text string, buttons [][]relay.Button) {
	m.send(ctx, relay.Render{Recipient: recipient, Text: text, Buttons: buttons})
}

func kindLabel(kind relay.EventKind) string {
	switch kind {
	case relay.EventCommand:
		return "command"
	case relay.EventAction:
		return "action"
	case relay.EventContent:
		return "content"
	}
	return "unknown"
}

func parseID(action, prefix string) (int64, error) {
	return strconv.ParseInt(strings.TrimPrefix(action, prefix), 10, 64)
}

func parseChatPage(action string) (a, b int64, page int, err error) {
	parts := strings.Split(strings.TrimPrefix(action, keyboard.ChatPagePrefix), "_")
	if len(parts) != 3 {
		return 0, 0, 0, validation("malformed page action")
	}
	if a, err = strconv.ParseInt(parts[0], 10, 64); err != nil {
		return 0, 0, 0, err
	}
	if b, err = strconv.ParseInt(parts[1], 10, 64); err != nil {
		return 0, 0, 0, err
	}
	if page, err = strconv.Atoi(parts[2]); err != nil {
		return 0, 0, 0, err
	}
	return a, b, page, nil
}

// truncate shortens s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
