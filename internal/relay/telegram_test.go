package relay

import (
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"edurelay/internal/model"
)

func TestEventFromCommand(t *testing.T) {
	upd := tgbotapi.Update{Message: &tgbotapi.Message{
		From:     &tgbotapi.User{ID: 42, FirstName: "Ada", LastName: "Lovelace", UserName: "ada"},
		Text:     "/start",
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: 6}},
	}}
	ev, ok := EventFromUpdate(upd)
	if !ok {
		t.Fatalf("expected an event")
	}
	if ev.Kind != EventCommand || ev.Command != "start" {
		t.Fatalf("expected start command, got kind=%d command=%q", ev.Kind, ev.Command)
	}
	if ev.Identity != 42 || ev.DisplayName != "Ada Lovelace" || ev.Handle != "ada" {
		t.Fatalf("unexpected sender mapping: %+v", ev)
	}
}

func TestEventFromCallback(t *testing.T) {
	upd := tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		From: &tgbotapi.User{ID: 7, FirstName: "Bob"},
		Data: "select_peer_42",
	}}
	ev, ok := EventFromUpdate(upd)
	if !ok {
		t.Fatalf("expected an event")
	}
	if ev.Kind != EventAction || ev.Action != "select_peer_42" {
		t.Fatalf("expected action event, got kind=%d action=%q", ev.Kind, ev.Action)
	}
}

func TestEventFromContent(t *testing.T) {
	cases := map[string]struct {
		msg  tgbotapi.Message
		text string
		kind model.ContentKind
	}{
		"text":     {tgbotapi.Message{Text: "Hello"}, "Hello", model.KindText},
		"photo":    {tgbotapi.Message{Photo: []tgbotapi.PhotoSize{{}}}, "[photo]", model.KindPhoto},
		"document": {tgbotapi.Message{Document: &tgbotapi.Document{FileName: "hw.pdf"}}, "[file] hw.pdf", model.KindDocument},
		"voice":    {tgbotapi.Message{Voice: &tgbotapi.Voice{}}, "[voice]", model.KindVoice},
		"sticker":  {tgbotapi.Message{Sticker: &tgbotapi.Sticker{}}, "[media]", model.KindMedia},
	}
	for name, tc := range cases {
		msg := tc.msg
		msg.From = &tgbotapi.User{ID: 1, FirstName: "A"}
		ev, ok := EventFromUpdate(tgbotapi.Update{Message: &msg})
		if !ok {
			t.Fatalf("%s: expected an event", name)
		}
		if ev.Kind != EventContent || ev.Text != tc.text || ev.ContentKind != tc.kind {
			t.Fatalf("%s: got text=%q kind=%q", name, ev.Text, ev.ContentKind)
		}
	}
}

func TestEventFromUpdateWithoutSenderDropped(t *testing.T) {
	if _, ok := EventFromUpdate(tgbotapi.Update{}); ok {
		t.Fatalf("expected empty update to be dropped")
	}
	if _, ok := EventFromUpdate(tgbotapi.Update{Message: &tgbotapi.Message{Text: "hi"}}); ok {
		t.Fatalf("expected update without sender to be dropped")
	}
}
