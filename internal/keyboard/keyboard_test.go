package keyboard

import (
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"

	"edurelay/internal/model"
)

func TestMenusAreDeterministic(t *testing.T) {
	peers := []model.Peer{
		{User: model.User{Identity: 1, DisplayName: "Alice"}, Subject: "Math"},
		{User: model.User{Identity: 2, DisplayName: "Bob"}},
	}
	if !reflect.DeepEqual(RoleMenu(), RoleMenu()) {
		t.Fatalf("RoleMenu is not deterministic")
	}
	if !reflect.DeepEqual(MainMenu(model.RoleStudent), MainMenu(model.RoleStudent)) {
		t.Fatalf("MainMenu is not deterministic")
	}
	if !reflect.DeepEqual(PeerList(peers), PeerList(peers)) {
		t.Fatalf("PeerList is not deterministic")
	}
	if !reflect.DeepEqual(ChatPager(1, 2, 1, 3, 2), ChatPager(1, 2, 1, 3, 2)) {
		t.Fatalf("ChatPager is not deterministic")
	}
}

func TestRoleMenuCoversAllRoles(t *testing.T) {
	actions := map[string]bool{}
	for _, row := range RoleMenu() {
		for _, b := range row {
			actions[b.Action] = true
		}
	}
	for _, role := range []model.Role{model.RoleStudent, model.RoleTeacher, model.RoleHeadTeacher, model.RoleAdmin} {
		if !actions[ActionRole(role)] {
			t.Fatalf("role menu is missing %s", role)
		}
	}
}

func TestMainMenuPerRole(t *testing.T) {
	student := MainMenu(model.RoleStudent)
	if student[0][0].Action != ActionSendMessage {
		t.Fatalf("student menu should lead with send message, got %s", student[0][0].Action)
	}
	teacher := MainMenu(model.RoleTeacher)
	if teacher[0][0].Action != ActionViewMessages {
		t.Fatalf("teacher menu should lead with messages, got %s", teacher[0][0].Action)
	}
	for _, role := range []model.Role{model.RoleStudent, model.RoleTeacher, model.RoleHeadTeacher, model.RoleAdmin} {
		rows := MainMenu(role)
		last := rows[len(rows)-1]
		if len(last) != 2 || last[1].Action != ActionLogout {
			t.Fatalf("%s menu should end with help/logout", role)
		}
	}
}

func TestPeerListLabelsAndActions(t *testing.T) {
	peers := []model.Peer{
		{User: model.User{Identity: 10, DisplayName: "Alice"}, Subject: "Math"},
		{User: model.User{Identity: 20, DisplayName: "Bob"}},
	}
	rows := PeerList(peers)
	if len(rows) != 3 {
		t.Fatalf("expected 2 peers + back row, got %d rows", len(rows))
	}
	if rows[0][0].Label != "Alice (Math)" || rows[0][0].Action != "select_peer_10" {
		t.Fatalf("unexpected first peer row: %+v", rows[0][0])
	}
	if rows[1][0].Label != "Bob" || rows[1][0].Action != "select_peer_20" {
		t.Fatalf("unexpected second peer row: %+v", rows[1][0])
	}
	if rows[2][0].Action != ActionBackToMain {
		t.Fatalf("expected back row, got %+v", rows[2][0])
	}
}

func TestChatPagerEdges(t *testing.T) {
	first := ChatPager(1, 2, 0, 3, 2)
	if first[0][0].Action == ActionChatPage(1, 2, -1) {
		t.Fatalf("first page must not offer prev")
	}
	if first[0][len(first[0])-1].Action != ActionChatPage(1, 2, 1) {
		t.Fatalf("first page should offer next")
	}

	last := ChatPager(1, 2, 2, 3, 2)
	if last[0][0].Action != ActionChatPage(1, 2, 1) {
		t.Fatalf("last page should offer prev")
	}
	if last[0][len(last[0])-1].Action != ActionNoop {
		t.Fatalf("last page must not offer next")
	}

	single := ChatPager(1, 2, 0, 1, 2)
	if len(single[0]) != 1 || single[0][0].Action != ActionNoop {
		t.Fatalf("single page should only show the indicator, got %+v", single[0])
	}
}

func TestUnreadListCapsButtons(t *testing.T) {
	msgs := make([]model.ChatMessage, 5)
	for i := range msgs {
		msgs[i].ID = int64(i + 1)
		msgs[i].SenderName = "S"
		msgs[i].Content = "hello"
	}
	rows := UnreadList(msgs, 3)
	if len(rows) != 4 {
		t.Fatalf("expected 3 reply rows + back row, got %d", len(rows))
	}
	if rows[0][0].Action != ActionReply(1) {
		t.Fatalf("unexpected reply action: %s", rows[0][0].Action)
	}
}

func TestUnreadListPreviewKeepsRunesWhole(t *testing.T) {
	msgs := []model.ChatMessage{{
		Message:    model.Message{ID: 1, Content: "a" + strings.Repeat("ё", 40)},
		SenderName: "S",
	}}
	label := UnreadList(msgs, 3)[0][0].Label
	if !utf8.ValidString(label) {
		t.Fatalf("preview split a rune: %q", label)
	}
	if !strings.HasSuffix(label, "...") {
		t.Fatalf("long content not truncated: %q", label)
	}
}

func TestTruncateShortAndBoundaryInputs(t *testing.T) {
	if got := truncate("short", 30); got != "short" {
		t.Fatalf("short input changed: %q", got)
	}
	got := truncate(strings.Repeat("ё", 20), 31)
	if !utf8.ValidString(got) {
		t.Fatalf("odd cut split a rune: %q", got)
	}
	if got != strings.Repeat("ё", 15)+"..." {
		t.Fatalf("expected cut back to rune boundary, got %q", got)
	}
}
