// Package notify implements local-notification planning for the PlayBuddy
// client: organizer announcement batches and discover-game re-engagement
// reminders.
//
// Pipeline: eligibility window → candidate pick → batch schedule → persist
// plan → reconcile fired slots into history. All date arithmetic is pinned
// to America/New_York so eligibility does not depend on where the process
// runs.
package notify

import (
	"encoding/json"
	"time"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

// Zone is the reference time zone for all window and interval math.
const Zone = "America/New_York"

const (
	// Organizer batch scheduling
	Interval   = 4 * 24 * time.Hour
	BatchCount = 5

	// Per-slot event lookahead window, days relative to the send time.
	eventWindowStartDays = 2
	eventWindowEndDays   = 10

	// Preview eligibility window defaults, days relative to now.
	previewWindowStartDays = 0
	previewWindowEndDays   = 28

	// History
	maxHistoryItems = 50

	// Notification channels
	DefaultChannelID      = "default"
	DiscoverGameChannelID = "discover-game"
)

// Discover-game cadence.
const (
	discoverInterval   = 3 * 24 * time.Hour
	reminderInterval   = 30 * 24 * time.Hour
	inactivityWindow   = 14 * 24 * time.Hour
	reminderBatchCount = 6
)

// Persisted kv keys. Kept byte-compatible with the mobile client's stored
// state so either side can read the other's writes.
const (
	keyPushEnabled        = "pushNotificationsEnabled"
	keyPushPrompted       = "pushNotificationsPrompted"
	keyOrganizerIDs       = "organizerNotificationIds"
	keyOrganizerSchedule  = "organizerNotificationSchedule"
	keyOrganizerLastSent  = "organizerNotificationLastSentAt"
	keyHistory            = "notificationHistory"
	keyHistorySeenAt      = "notificationHistorySeenAt"
	keyRemotePushToken    = "remotePushToken"
	keyDiscoverEnabled    = "discoverGameNotificationsEnabled"
	keyDiscoverPrompted   = "discoverGameNotificationsPrompted"
	keyDiscoverSwipeCount = "discoverGameSwipeCount"
	keyDiscoverLastSwipe  = "discoverGameLastSwipeAt"
	keyDiscoverIDs        = "discoverGameNotificationIds"
)

// Placeholder content for slots with no eligible event.
const (
	placeholderTitle = "No eligible events"
	placeholderBody  = "No event found 5-10 days after this send date."
)

// --------------------------------------------------------------------------
// Types
// --------------------------------------------------------------------------

// Source identifies where a notification originated.
type Source string

const (
	SourceOrganizer    Source = "organizer"
	SourceTest         Source = "test"
	SourceBadge        Source = "badge"
	SourceBroadcast    Source = "broadcast"
	SourceAdminReview  Source = "admin_review"
	SourceDiscoverGame Source = "discover_game"
)

// PlanItem is one scheduled slot of an organizer batch. SendAt is Unix
// milliseconds. Slots without an eligible event carry placeholder content
// and no EventID.
type PlanItem struct {
	SendAt  int64  `json:"sendAt"`
	Title   string `json:"title"`
	Body    string `json:"body"`
	EventID int64  `json:"eventId,omitempty"`
}

// SendTime returns the slot's send time.
func (p PlanItem) SendTime() time.Time {
	return time.UnixMilli(p.SendAt)
}

// HistoryItem is one entry of the user-facing notification history.
// CreatedAt is Unix milliseconds.
type HistoryItem struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	CreatedAt int64  `json:"createdAt"`
	Source    Source `json:"source,omitempty"`
	EventID   int64  `json:"eventId,omitempty"`
	ImageURL  string `json:"imageUrl,omitempty"`
}

// --------------------------------------------------------------------------
// Stored-state decoding — fallback-typed, never errors on corrupt JSON
// --------------------------------------------------------------------------

func decodeStoredIDs(raw string) []string {
	if raw == "" {
		return nil
	}
	var parsed []string
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil
	}
	ids := parsed[:0]
	for _, id := range parsed {
		if id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

func decodeStoredSchedule(raw string) []PlanItem {
	if raw == "" {
		return nil
	}
	var parsed []PlanItem
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil
	}
	items := parsed[:0]
	for _, item := range parsed {
		if item.SendAt > 0 && item.Title != "" {
			items = append(items, item)
		}
	}
	return items
}

func decodeStoredHistory(raw string) []HistoryItem {
	if raw == "" {
		return nil
	}
	var parsed []HistoryItem
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil
	}
	return parsed
}

// --------------------------------------------------------------------------
// Zone loading
// --------------------------------------------------------------------------

// zone returns the pinned reference location, falling back to UTC if the
// zone database is unavailable.
func zone() *time.Location {
	loc, err := time.LoadLocation(Zone)
	if err != nil {
		return time.UTC
	}
	return loc
}
