package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Permissions is the platform's notification permission state. Provisional
// (iOS quiet delivery) counts as granted for scheduling purposes.
type Permissions struct {
	Granted     bool
	Provisional bool
}

// Allowed reports whether scheduling may proceed.
func (p Permissions) Allowed() bool {
	return p.Granted || p.Provisional
}

// Content is the payload handed to the platform notification service.
type Content struct {
	Title    string
	Body     string
	ImageURL string
	Badge    *int
	Data     map[string]any
}

// Notifier is the local notification platform boundary. All calls may fail;
// callers treat failures as best-effort and log rather than propagate.
type Notifier interface {
	Permissions(ctx context.Context) (Permissions, error)
	RequestPermissions(ctx context.Context) (Permissions, error)
	// Schedule registers a local notification for sendAt and returns the
	// platform-assigned identifier used to cancel it later.
	Schedule(ctx context.Context, content Content, sendAt time.Time, channelID string) (string, error)
	Cancel(ctx context.Context, id string) error
	SetBadgeCount(ctx context.Context, n int) error
	// EnsureChannel creates the Android channel if needed and returns its id,
	// or "" on platforms without channels.
	EnsureChannel(ctx context.Context, id, name string) (string, error)
}

// LogNotifier is a nil-safe Notifier that records send attempts in the log.
// Stands in for the device-side platform service when the scheduler runs
// server-side or in development.
type LogNotifier struct {
	logger   *slog.Logger
	channels bool
}

// NewLogNotifier creates a logging notifier. Pass channels=true to emulate
// a platform with notification channels (Android).
func NewLogNotifier(logger *slog.Logger, channels bool) *LogNotifier {
	return &LogNotifier{logger: logger, channels: channels}
}

func (n *LogNotifier) Permissions(context.Context) (Permissions, error) {
	if n == nil {
		return Permissions{}, nil
	}
	return Permissions{Granted: true}, nil
}

func (n *LogNotifier) RequestPermissions(ctx context.Context) (Permissions, error) {
	return n.Permissions(ctx)
}

func (n *LogNotifier) Schedule(_ context.Context, content Content, sendAt time.Time, channelID string) (string, error) {
	if n == nil {
		return "", nil
	}
	id := uuid.NewString()
	n.logger.Info("notification scheduled",
		"id", id, "title", content.Title, "send_at", sendAt, "channel", channelID)
	return id, nil
}

func (n *LogNotifier) Cancel(_ context.Context, id string) error {
	if n == nil {
		return nil
	}
	n.logger.Info("notification canceled", "id", id)
	return nil
}

func (n *LogNotifier) SetBadgeCount(_ context.Context, count int) error {
	if n == nil {
		return nil
	}
	n.logger.Info("badge count set", "count", count)
	return nil
}

func (n *LogNotifier) EnsureChannel(_ context.Context, id, name string) (string, error) {
	if n == nil || !n.channels {
		return "", nil
	}
	n.logger.Info("notification channel ensured", "id", id, "name", name)
	return id, nil
}
