// Package delivery defines outbound notification transports.
package delivery

import (
	"context"
	"log/slog"
	"sort"

	"github.com/example/hall-booking/internal/logging"
)

// PushMessage is a device push addressed to a user.
type PushMessage struct {
	UserID string
	Title  string
	Body   string
	Data   map[string]string
}

// EmailMessage references a template by name; rendering happens in the transport.
type EmailMessage struct {
	To       string
	Template string
	Data     map[string]string
}

// PushSender delivers device push notifications.
type PushSender interface {
	SendPush(ctx context.Context, msg PushMessage) error
}

// EmailSender delivers transactional email.
type EmailSender interface {
	SendEmail(ctx context.Context, msg EmailMessage) error
}

// LogTransport records outbound messages as structured log lines. It is the
// default transport until a real push or mail provider is configured.
type LogTransport struct {
	logger *slog.Logger
}

// NewLogTransport returns a transport writing to logger.
func NewLogTransport(logger *slog.Logger) *LogTransport {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogTransport{logger: logger}
}

// SendPush implements PushSender.
func (t *LogTransport) SendPush(ctx context.Context, msg PushMessage) error {
	t.loggerFor(ctx).InfoContext(ctx, "push dispatched",
		"channel", "push",
		"user_id", msg.UserID,
		"title", msg.Title,
		"data_keys", sortedKeys(msg.Data),
	)
	return nil
}

// SendEmail implements EmailSender.
func (t *LogTransport) SendEmail(ctx context.Context, msg EmailMessage) error {
	t.loggerFor(ctx).InfoContext(ctx, "email dispatched",
		"channel", "email",
		"to", msg.To,
		"template", msg.Template,
		"data_keys", sortedKeys(msg.Data),
	)
	return nil
}

func (t *LogTransport) loggerFor(ctx context.Context) *slog.Logger {
	return logging.FromContextOr(ctx, t.logger)
}

func sortedKeys(m map[string]string) []string {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
