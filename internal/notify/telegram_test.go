package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/require"

	"github.com/feedwatch/feedwatch/internal/core"
)

type fakeTelegram struct {
	sent []tgbotapi.Chattable
	err  error
}

func (f *fakeTelegram) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if f.err != nil {
		return tgbotapi.Message{}, f.err
	}
	f.sent = append(f.sent, c)
	return tgbotapi.Message{MessageID: len(f.sent)}, nil
}

func TestTelegramSendHTML(t *testing.T) {
	fake := &fakeTelegram{}
	sink := &Telegram{Sender: fake, ChatID: 42}

	f := Formatter{Clock: func() time.Time { return fixedNow }}
	require.NoError(t, sink.Send(context.Background(), f.Item("alice", sampleItem())))

	require.Len(t, fake.sent, 1)
	msg, ok := fake.sent[0].(tgbotapi.MessageConfig)
	require.True(t, ok)
	require.Equal(t, int64(42), msg.ChatID)
	require.Equal(t, tgbotapi.ModeHTML, msg.ParseMode)
	require.False(t, msg.DisableWebPagePreview)
	require.Contains(t, msg.Text, `<a href="https://example.com/alice">Alice</a>`)
	require.Contains(t, msg.Text, `<a href="https://example.com/alice/status/1001">View post</a>`)
	require.Contains(t, msg.Text, "<i>Engagement:</i>")
}

func TestTelegramSendError(t *testing.T) {
	sink := &Telegram{Sender: &fakeTelegram{err: errors.New("chat not found")}, ChatID: 1}
	err := sink.Send(context.Background(), core.Notification{Body: "x"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "chat not found")
}

func TestTelegramCanceledContext(t *testing.T) {
	fake := &fakeTelegram{}
	sink := &Telegram{Sender: fake, ChatID: 1}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, sink.Send(ctx, core.Notification{Body: "x"}), context.Canceled)
	require.Empty(t, fake.sent)
}

func TestFormatHTMLEscapes(t *testing.T) {
	text := FormatHTML(core.Notification{
		Title:  "<alert>",
		Body:   "a & b",
		Fields: []core.NotificationField{{Name: "Error", Value: "x < y"}},
	})
	require.Equal(t, "<b>&lt;alert&gt;</b>\na &amp; b\n\n<i>Error:</i> x &lt; y", text)
}

func TestNewTelegramValidates(t *testing.T) {
	_, err := NewTelegram("", 1)
	require.Error(t, err)
	_, err = NewTelegram("token", 0)
	require.Error(t, err)
}
