package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/feedwatch/feedwatch/internal/core"
	"github.com/feedwatch/feedwatch/internal/observability"
)

// Log writes notifications to the structured log. It is the sink used when
// no chat platform is configured.
type Log struct {
	Logger observability.Logger
}

// Send logs n at info level.
func (l *Log) Send(ctx context.Context, n core.Notification) error {
	fields := []zap.Field{
		zap.String("title", n.Title),
		zap.String("author", n.AuthorName),
		zap.String("url", n.URL),
		zap.String("body", n.Body),
		zap.Time("timestamp", n.Timestamp),
	}
	if n.ImageURL != "" {
		fields = append(fields, zap.String("image", n.ImageURL))
	}
	for _, field := range n.Fields {
		fields = append(fields, zap.String("field."+field.Name, field.Value))
	}
	observability.OrNop(l.Logger).Info("Notification", fields...)
	return nil
}
