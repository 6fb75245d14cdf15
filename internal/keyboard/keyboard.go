// Package keyboard builds the selectable menus shown to users. Everything
// here is a pure function of its inputs: no I/O, no stored state.
package keyboard

import (
	"fmt"
	"strconv"
	"unicode/utf8"

	"edurelay/internal/model"
	"edurelay/internal/relay"
)

// Action ids consumed by the conversation machine's dispatcher.
const (
	ActionSendMessage  = "send_message"
	ActionViewMessages = "view_messages"
	ActionMyPeers      = "my_peers"
	ActionListTeachers = "list_teachers"
	ActionListStudents = "list_students"
	ActionBackToMain   = "back_to_main"
	ActionCancel       = "cancel"
	ActionLogout       = "logout"
	ActionHelp         = "help"
	ActionChangeRole   = "change_role"
	ActionNoop         = "noop"

	RolePrefix       = "role_"
	SelectPeerPrefix = "select_peer_"
	ReplyPrefix      = "reply_"
	NewMessagePrefix = "new_message_"
	ChatPagePrefix   = "chat_page_"
)

func ActionRole(role model.Role) string {
	return RolePrefix + string(role)
}

func ActionSelectPeer(identity int64) string {
	return SelectPeerPrefix + strconv.FormatInt(identity, 10)
}

func ActionReply(messageID int64) string {
	return ReplyPrefix + strconv.FormatInt(messageID, 10)
}

func ActionNewMessage(peerID int64) string {
	return NewMessagePrefix + strconv.FormatInt(peerID, 10)
}

func ActionChatPage(a, b int64, page int) string {
	return fmt.Sprintf("%s%d_%d_%d", ChatPagePrefix, a, b, page)
}

func RoleMenu() [][]relay.Button {
	return [][]relay.Button{
		{
			{Label: "Student", Action: ActionRole(model.RoleStudent)},
			{Label: "Teacher", Action: ActionRole(model.RoleTeacher)},
		},
		{{Label: "Head teacher", Action: ActionRole(model.RoleHeadTeacher)}},
		{{Label: "Administrator", Action: ActionRole(model.RoleAdmin)}},
	}
}

func MainMenu(role model.Role) [][]relay.Button {
	var rows [][]relay.Button
	switch role {
	case model.RoleStudent:
		rows = [][]relay.Button{
			{{Label: "Message a teacher", Action: ActionSendMessage}},
			{{Label: "My conversations", Action: ActionViewMessages}},
			{{Label: "My teachers", Action: ActionMyPeers}},
		}
	case model.RoleTeacher:
		rows = [][]relay.Button{
			{{Label: "Student messages", Action: ActionViewMessages}},
			{{Label: "My students", Action: ActionMyPeers}},
		}
	case model.RoleHeadTeacher, model.RoleAdmin:
		rows = [][]relay.Button{
			{{Label: "Teachers", Action: ActionListTeachers}},
			{{Label: "Students", Action: ActionListStudents}},
		}
	}
	return append(rows, []relay.Button{
		{Label: "Help", Action: ActionHelp},
		{Label: "Log out", Action: ActionLogout},
	})
}

func PeerList(peers []model.Peer) [][]relay.Button {
	rows := make([][]relay.Button, 0, len(peers)+1)
	for _, p := range peers {
		label := p.User.DisplayName
		if p.Subject != "" {
			label = fmt.Sprintf("%s (%s)", p.User.DisplayName, p.Subject)
		}
		rows = append(rows, []relay.Button{{Label: label, Action: ActionSelectPeer(p.User.Identity)}})
	}
	return append(rows, []relay.Button{{Label: "Back", Action: ActionBackToMain}})
}

func SettingsMenu() [][]relay.Button {
	return [][]relay.Button{
		{{Label: "Change role", Action: ActionChangeRole}},
		{{Label: "Back", Action: ActionBackToMain}},
	}
}

func CancelMenu() [][]relay.Button {
	return [][]relay.Button{{{Label: "Cancel", Action: ActionCancel}}}
}

// ReplyButton is the inline affordance attached to a relayed message.
func ReplyButton(messageID int64) [][]relay.Button {
	return [][]relay.Button{{{Label: "Reply", Action: ActionReply(messageID)}}}
}

// UnreadList puts a reply button on each of the first max unread messages.
func UnreadList(msgs []model.ChatMessage, max int) [][]relay.Button {
	if len(msgs) > max {
		msgs = msgs[:max]
	}
	rows := make([][]relay.Button, 0, len(msgs)+1)
	for _, m := range msgs {
		rows = append(rows, []relay.Button{{
			Label:  fmt.Sprintf("%s: %s", m.SenderName, truncate(m.Content, 30)),
			Action: ActionReply(m.ID),
		}})
	}
	return append(rows, []relay.Button{{Label: "Back", Action: ActionBackToMain}})
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

// ChatPager navigates a conversation window between identities a and b.
func ChatPager(a, b int64, page, totalPages int, peerID int64) [][]relay.Button {
	var nav []relay.Button
	if page > 0 {
		nav = append(nav, relay.Button{Label: "Prev", Action: ActionChatPage(a, b, page-1)})
	}
	nav = append(nav, relay.Button{Label: fmt.Sprintf("%d/%d", page+1, totalPages), Action: ActionNoop})
	if page < totalPages-1 {
		nav = append(nav, relay.Button{Label: "Next", Action: ActionChatPage(a, b, page+1)})
	}
	return [][]relay.Button{
		nav,
		{
			{Label: "New message", Action: ActionNewMessage(peerID)},
			{Label: "Back", Action: ActionBackToMain},
		},
	}
}
