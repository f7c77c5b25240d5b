// Package notify formats monitor events and delivers them to a chat sink.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/feedwatch/feedwatch/internal/core"
)

// Colors used when none is configured.
const (
	DefaultColor      = 0x1DA1F2
	DefaultAlertColor = 0xFF0000
)

// Sink delivers a notification.
type Sink interface {
	Send(ctx context.Context, n core.Notification) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, n core.Notification) error

// Send calls f.
func (f SinkFunc) Send(ctx context.Context, n core.Notification) error {
	return f(ctx, n)
}

// Formatter builds notifications for new items and admin alerts.
type Formatter struct {
	Color      int
	AlertColor int
	Clock      func() time.Time
}

// Item builds the notification for a newly observed item on handle.
func (f Formatter) Item(handle string, item *core.Item) core.Notification {
	author := item.Author
	if author == "" {
		author = "@" + handle
	}

	n := core.Notification{
		AuthorName: author,
		AuthorURL:  item.AuthorURL,
		URL:        item.URL,
		Body:       item.Text,
		Color:      orDefault(f.Color, DefaultColor),
		Timestamp:  item.Timestamp,
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = f.now()
	}

	for _, media := range item.Media {
		if media.URL != "" && (media.Type == "" || media.Type == "photo" || media.Type == "image") {
			n.ImageURL = media.URL
			break
		}
	}

	metrics := item.Metrics
	if metrics.Likes > 0 || metrics.Reposts > 0 || metrics.Replies > 0 {
		n.Fields = append(n.Fields, core.NotificationField{
			Name:   "Engagement",
			Value:  fmt.Sprintf("❤️ %d | 🔄 %d | 💬 %d", metrics.Likes, metrics.Reposts, metrics.Replies),
			Inline: true,
		})
	}
	if item.URL != "" {
		n.Fields = append(n.Fields, core.NotificationField{
			Name:   "Link",
			Value:  fmt.Sprintf("[View post](%s)", item.URL),
			Inline: true,
		})
	}
	return n
}

// Alert builds the admin alert for a failed check on handle.
func (f Formatter) Alert(handle string, err error) core.Notification {
	message := "unknown error"
	if err != nil {
		message = err.Error()
	}
	return core.Notification{
		Title: "⚠️ Monitoring Error",
		Body:  fmt.Sprintf("Error monitoring @%s", handle),
		Fields: []core.NotificationField{
			{Name: "Error", Value: message},
		},
		Color:     orDefault(f.AlertColor, DefaultAlertColor),
		Timestamp: f.now(),
	}
}

func (f Formatter) now() time.Time {
	if f.Clock != nil {
		return f.Clock()
	}
	return time.Now().UTC()
}

func orDefault(value, fallback int) int {
	if value == 0 {
		return fallback
	}
	return value
}
