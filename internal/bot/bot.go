// Package bot adapts Telegram updates to conversation turns and sends the replies back.
package bot

import (
	"context"
	"io"
	"strings"

	"crmbot/internal/conversation"
	"crmbot/internal/telegram"
	"crmbot/platform/logger"
)

// Machine runs one conversation turn.
type Machine interface {
	Handle(ctx context.Context, in conversation.Input) conversation.Reply
}

// Transport is the part of the Bot API client the adapter uses.
type Transport interface {
	SendMessage(ctx context.Context, chatID int64, text string, keyboard *telegram.InlineKeyboardMarkup) error
	AnswerCallbackQuery(ctx context.Context, queryID string) error
	OpenFile(ctx context.Context, fileID string) (io.ReadCloser, error)
}

var commands = map[string]conversation.Action{
	"/start":  conversation.ActionMenu,
	"/menu":   conversation.ActionMenu,
	"/cancel": conversation.ActionCancel,
	"/id":     conversation.ActionWhoAmI,
}

type Bot struct {
	machine   Machine
	transport Transport
	log       *logger.Logger
}

func New(machine Machine, transport Transport, log *logger.Logger) *Bot {
	return &Bot{machine: machine, transport: transport, log: log}
}

// HandleUpdate is a telegram.UpdateHandler.
func (b *Bot) HandleUpdate(ctx context.Context, u telegram.Update) {
	ctx = context.WithValue(ctx, logger.UpdateIDKey, u.UpdateID)
	in, ok := b.toInput(u)
	if !ok {
		return
	}
	if u.CallbackQuery != nil {
		if err := b.transport.AnswerCallbackQuery(ctx, u.CallbackQuery.ID); err != nil {
			b.log.WithContext(ctx).Warn("answer callback query", "error", err)
		}
	}

	reply := b.machine.Handle(ctx, in)
	if reply.Text == "" {
		return
	}
	if err := b.transport.SendMessage(ctx, in.ChatID, reply.Text, keyboard(reply.Buttons)); err != nil {
		b.log.WithContext(ctx).Error("send reply", "chat_id", in.ChatID, "error", err)
	}
}

func (b *Bot) toInput(u telegram.Update) (conversation.Input, bool) {
	switch {
	case u.CallbackQuery != nil:
		cq := u.CallbackQuery
		if cq.Message == nil {
			return conversation.Input{}, false
		}
		action, arg := conversation.ParseCallback(cq.Data)
		return conversation.Input{ChatID: cq.Message.Chat.ID, UserID: cq.From.ID, Action: action, Arg: arg}, true

	case u.Message != nil && u.Message.From != nil:
		msg := u.Message
		in := conversation.Input{ChatID: msg.Chat.ID, UserID: msg.From.ID, Text: msg.Text}
		if action, ok := command(msg.Text); ok {
			in.Action = action
			in.Text = ""
		}
		if doc := msg.Document; doc != nil {
			fileID := doc.FileID
			in.Document = &conversation.Document{
				FileName: doc.FileName,
				Size:     doc.FileSize,
				Open: func(ctx context.Context) (io.ReadCloser, error) {
					return b.transport.OpenFile(ctx, fileID)
				},
			}
		}
		return in, true
	}
	return conversation.Input{}, false
}

// command recognises "/cancel" and "/cancel@BotName".
func command(text string) (conversation.Action, bool) {
	if !strings.HasPrefix(text, "/") {
		return conversation.ActionNone, false
	}
	name, _, _ := strings.Cut(strings.Fields(text)[0], "@")
	action, ok := commands[strings.ToLower(name)]
	return action, ok
}

func keyboard(rows [][]conversation.Button) *telegram.InlineKeyboardMarkup {
	if len(rows) == 0 {
		return nil
	}
	kb := &telegram.InlineKeyboardMarkup{InlineKeyboard: make([][]telegram.InlineKeyboardButton, 0, len(rows))}
	for _, row := range rows {
		out := make([]telegram.InlineKeyboardButton, 0, len(row))
		for _, btn := range row {
			out = append(out, telegram.InlineKeyboardButton{Text: btn.Text, CallbackData: btn.Data})
		}
		kb.InlineKeyboard = append(kb.InlineKeyboard, out)
	}
	return kb
}
