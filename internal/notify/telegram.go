package notify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/feedwatch/feedwatch/internal/core"
)

// TelegramSender is the part of *tgbotapi.BotAPI the sink uses.
type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram posts notifications as HTML messages to one chat.
type Telegram struct {
	Sender TelegramSender
	ChatID int64
}

// NewTelegram connects a bot for token.
func NewTelegram(token string, chatID int64) (*Telegram, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, errors.New("telegram token is required")
	}
	if chatID == 0 {
		return nil, errors.New("telegram chat id is required")
	}

	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &Telegram{Sender: api, ChatID: chatID}, nil
}

// Send posts n to the chat.
func (t *Telegram) Send(ctx context.Context, n core.Notification) error {
	if t == nil || t.Sender == nil {
		return errors.New("telegram sink is not configured")
	}
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return err
		}
	}

	msg := tgbotapi.NewMessage(t.ChatID, FormatHTML(n))
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = n.ImageURL == ""
	if _, err := t.Sender.Send(msg); err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	return nil
}

// FormatHTML renders n with Telegram's HTML subset.
func FormatHTML(n core.Notification) string {
	var b strings.Builder

	if n.Title != "" {
		b.WriteString("<b>")
		b.WriteString(html.EscapeString(n.Title))
		b.WriteString("</b>\n")
	}
	if n.AuthorName != "" {
		name := html.EscapeString(n.AuthorName)
		if n.AuthorURL != "" {
			fmt.Fprintf(&b, "<b><a href=\"%s\">%s</a></b>\n", html.EscapeString(n.AuthorURL), name)
		} else {
			fmt.Fprintf(&b, "<b>%s</b>\n", name)
		}
	}
	if n.Body != "" {
		b.WriteString(html.EscapeString(n.Body))
		b.WriteString("\n")
	}
	for _, field := range n.Fields {
		if field.Name == "Link" && n.URL != "" {
			fmt.Fprintf(&b, "\n<a href=\"%s\">View post</a>", html.EscapeString(n.URL))
			continue
		}
		fmt.Fprintf(&b, "\n<i>%s:</i> %s", html.EscapeString(field.Name), html.EscapeString(field.Value))
	}
	if n.ImageURL != "" {
		fmt.Fprintf(&b, "\n<a href=\"%s\">&#8203;</a>", html.EscapeString(n.ImageURL))
	}
	return strings.TrimSpace(b.String())
}
