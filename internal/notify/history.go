package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/playbuddy/playbuddy-notify/internal/kv"
)

// History is the capped, most-recent-first log of notifications shown to the
// user, backing the in-app notification center. The 50-item cap and the
// descending sort are enforced on every write.
type History struct {
	store kv.Store
	now   func() time.Time
}

// NewHistory creates a history log over the given store.
func NewHistory(store kv.Store) *History {
	return &History{store: store, now: time.Now}
}

// BuildHistoryID builds the identifier for a new history entry.
func BuildHistoryID(source Source, createdAt int64) string {
	prefix := string(source)
	if prefix == "" {
		prefix = "notification"
	}
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return fmt.Sprintf("%s-%d-%s", prefix, createdAt, suffix)
}

// Get returns the stored history, sorted descending by createdAt and capped.
// Corrupt stored state decodes to an empty log.
func (h *History) Get(ctx context.Context) ([]HistoryItem, error) {
	raw, _, err := h.store.Get(ctx, keyHistory)
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	return normalizeHistory(decodeStoredHistory(raw)), nil
}

// Set overwrites the history, dropping invalid entries and re-enforcing the
// cap and sort.
func (h *History) Set(ctx context.Context, items []HistoryItem) ([]HistoryItem, error) {
	next := normalizeHistory(items)
	encoded, err := json.Marshal(next)
	if err != nil {
		return nil, fmt.Errorf("encode history: %w", err)
	}
	if err := h.store.Set(ctx, keyHistory, string(encoded)); err != nil {
		return nil, fmt.Errorf("write history: %w", err)
	}
	return next, nil
}

// Add appends a new entry with a generated id.
func (h *History) Add(ctx context.Context, item HistoryItem) (HistoryItem, error) {
	history, err := h.Get(ctx)
	if err != nil {
		return HistoryItem{}, err
	}
	item.ID = BuildHistoryID(item.Source, item.CreatedAt)
	if _, err := h.Set(ctx, append([]HistoryItem{item}, history...)); err != nil {
		return HistoryItem{}, err
	}
	return item, nil
}

// Upsert updates the existing entry for (eventId, source) in place, or
// appends when none exists. Entries without an event id always append.
func (h *History) Upsert(ctx context.Context, item HistoryItem) (HistoryItem, error) {
	history, err := h.Get(ctx)
	if err != nil {
		return HistoryItem{}, err
	}

	if item.EventID != 0 {
		for i, existing := range history {
			if existing.EventID == item.EventID && existing.Source == item.Source {
				item.ID = existing.ID
				history[i] = item
				if _, err := h.Set(ctx, history); err != nil {
					return HistoryItem{}, err
				}
				return item, nil
			}
		}
	}
	return h.Add(ctx, item)
}

// SeenAt returns the timestamp (Unix millis) up to which the user has viewed
// the history screen.
func (h *History) SeenAt(ctx context.Context) (int64, error) {
	raw, ok, err := h.store.Get(ctx, keyHistorySeenAt)
	if err != nil {
		return 0, fmt.Errorf("read history seen-at: %w", err)
	}
	if !ok {
		return 0, nil
	}
	parsed, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, nil
	}
	return parsed, nil
}

// MarkSeen records the seen-at cursor.
func (h *History) MarkSeen(ctx context.Context, at time.Time) error {
	if err := h.store.Set(ctx, keyHistorySeenAt, strconv.FormatInt(at.UnixMilli(), 10)); err != nil {
		return fmt.Errorf("write history seen-at: %w", err)
	}
	return nil
}

// UnreadCount counts entries that have fired but not been seen.
func (h *History) UnreadCount(ctx context.Context) (int, error) {
	history, err := h.Get(ctx)
	if err != nil {
		return 0, err
	}
	if len(history) == 0 {
		return 0, nil
	}
	seenAt, err := h.SeenAt(ctx)
	if err != nil {
		return 0, err
	}

	now := h.now().UnixMilli()
	count := 0
	for _, item := range history {
		if item.CreatedAt <= now && item.CreatedAt > seenAt {
			count++
		}
	}
	return count, nil
}

func normalizeHistory(items []HistoryItem) []HistoryItem {
	next := make([]HistoryItem, 0, len(items))
	for _, item := range items {
		if item.CreatedAt > 0 {
			next = append(next, item)
		}
	}
	sort.SliceStable(next, func(i, j int) bool {
		return next[i].CreatedAt > next[j].CreatedAt
	})
	if len(next) > maxHistoryItems {
		next = next[:maxHistoryItems]
	}
	return next
}
