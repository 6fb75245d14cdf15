package relay

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"edurelay/internal/model"
)

// Telegram adapts the bot API to the relay boundary.
type Telegram struct {
	api *tgbotapi.BotAPI
}

func NewTelegram(token string) (*Telegram, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	return &Telegram{api: api}, nil
}

func (t *Telegram) SetCommands() error {
	commands := tgbotapi.NewSetMyCommands(
		tgbotapi.BotCommand{Command: "start", Description: "Open the main menu"},
		tgbotapi.BotCommand{Command: "help", Description: "How to use the bot"},
		tgbotapi.BotCommand{Command: "settings", Description: "Your profile"},
		tgbotapi.BotCommand{Command: "cancel", Description: "Cancel the current action"},
	)
	_, err := t.api.Request(commands)
	return err
}

func (t *Telegram) Send(ctx context.Context, r Render) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	msg := tgbotapi.NewMessage(r.Recipient, r.Text)
	if len(r.Buttons) > 0 {
		rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(r.Buttons))
		for _, row := range r.Buttons {
			buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
			for _, b := range row {
				buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Label, b.Action))
			}
			rows = append(rows, buttons)
		}
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	}
	if _, err := t.api.Send(msg); err != nil {
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	return nil
}

// Run consumes the update stream until the context is cancelled. Each event is
// dispatched on its own goroutine; per-identity ordering is enforced by the
// conversation machine, not here.
func (t *Telegram) Run(ctx context.Context, handle func(context.Context, Event)) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := t.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			t.api.StopReceivingUpdates()
			return
		case upd, ok := <-updates:
			if !ok {
				return
			}
			if cq := upd.CallbackQuery; cq != nil {
				if _, err := t.api.Request(tgbotapi.NewCallback(cq.ID, "")); err != nil {
					zap.L().Warn("answer callback failed", zap.Error(err))
				}
			}
			ev, ok := EventFromUpdate(upd)
			if !ok {
				continue
			}
			go handle(ctx, ev)
		}
	}
}

// EventFromUpdate maps a platform update to a relay event. Updates with no
// usable sender are dropped.
func EventFromUpdate(upd tgbotapi.Update) (Event, bool) {
	if cq := upd.CallbackQuery; cq != nil && cq.From != nil {
		return Event{
			Identity:    cq.From.ID,
			DisplayName: displayName(cq.From),
			Handle:      cq.From.UserName,
			Kind:        EventAction,
			Action:      cq.Data,
		}, true
	}

	msg := upd.Message
	if msg == nil || msg.From == nil {
		return Event{}, false
	}
	ev := Event{
		Identity:    msg.From.ID,
		DisplayName: displayName(msg.From),
		Handle:      msg.From.UserName,
	}
	if msg.IsCommand() {
		ev.Kind = EventCommand
		ev.Command = msg.Command()
		return ev, true
	}

	ev.Kind = EventContent
	switch {
	case msg.Text != "":
		ev.Text, ev.ContentKind = msg.Text, model.KindText
	case len(msg.Photo) > 0:
		ev.Text, ev.ContentKind = "[photo]", model.KindPhoto
	case msg.Document != nil:
		ev.Text, ev.ContentKind = "[file] "+msg.Document.FileName, model.KindDocument
	case msg.Voice != nil:
		ev.Text, ev.ContentKind = "[voice]", model.KindVoice
	default:
		ev.Text, ev.ContentKind = "[media]", model.KindMedia
	}
	return ev, true
}

func displayName(u *tgbotapi.User) string {
	name := u.FirstName
	if u.LastName != "" {
		name += " " + u.LastName
	}
	return name
}
