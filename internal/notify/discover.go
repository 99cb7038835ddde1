package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/playbuddy/playbuddy-notify/internal/event"
	"github.com/playbuddy/playbuddy-notify/internal/kv"
	"github.com/playbuddy/playbuddy-notify/internal/metrics"
)

// DiscoverScheduler plans re-engagement reminders for the swipe discovery
// game. While the user stays inside a 14-day inactivity window it schedules
// "N new events" nudges every 3 days; once the window is crossed it falls
// back to a monthly reminder cadence indefinitely.
type DiscoverScheduler struct {
	store    kv.Store
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time

	// enableInFlight guards the enable flow against re-entrant triggers.
	// Instance-owned so parallel test instances cannot leak state.
	enableInFlight atomic.Bool
}

// NewDiscoverScheduler creates a discover-game scheduler.
func NewDiscoverScheduler(store kv.Store, notifier Notifier, logger *slog.Logger, opts ...DiscoverOption) *DiscoverScheduler {
	d := &DiscoverScheduler{
		store:    store,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DiscoverOption configures a DiscoverScheduler.
type DiscoverOption func(*DiscoverScheduler)

// WithDiscoverClock overrides the time source. Used by tests.
func WithDiscoverClock(now func() time.Time) DiscoverOption {
	return func(d *DiscoverScheduler) { d.now = now }
}

// Enabled reports the discover-game notifications flag.
func (d *DiscoverScheduler) Enabled(ctx context.Context) bool {
	raw, _, err := d.store.Get(ctx, keyDiscoverEnabled)
	if err != nil {
		d.logger.Warn("read discover enabled failed", "error", err)
		return false
	}
	return raw == "true"
}

// SetEnabled records the discover-game notifications flag.
func (d *DiscoverScheduler) SetEnabled(ctx context.Context, enabled bool) error {
	return d.store.Set(ctx, keyDiscoverEnabled, strconv.FormatBool(enabled))
}

// Prompted reports whether the user has been asked about discover reminders.
func (d *DiscoverScheduler) Prompted(ctx context.Context) bool {
	raw, _, err := d.store.Get(ctx, keyDiscoverPrompted)
	if err != nil {
		d.logger.Warn("read discover prompted failed", "error", err)
		return false
	}
	return raw == "true"
}

// SetPrompted records that the user has been asked.
func (d *DiscoverScheduler) SetPrompted(ctx context.Context, prompted bool) error {
	return d.store.Set(ctx, keyDiscoverPrompted, strconv.FormatBool(prompted))
}

// RecordSwipe bumps the swipe counter, stamps the last-swipe time, and
// clears the app badge. Returns the new swipe count.
func (d *DiscoverScheduler) RecordSwipe(ctx context.Context) (int64, error) {
	raw, _, err := d.store.Get(ctx, keyDiscoverSwipeCount)
	if err != nil {
		return 0, fmt.Errorf("read swipe count: %w", err)
	}
	count, _ := strconv.ParseInt(raw, 10, 64)
	count++

	now := d.now().UnixMilli()
	err = d.store.MultiSet(ctx, map[string]string{
		keyDiscoverSwipeCount: strconv.FormatInt(count, 10),
		keyDiscoverLastSwipe:  strconv.FormatInt(now, 10),
	})
	if err != nil {
		return 0, fmt.Errorf("record swipe: %w", err)
	}

	if err := d.notifier.SetBadgeCount(ctx, 0); err != nil {
		d.logger.Warn("clear badge failed", "error", err)
	}
	return count, nil
}

// LastSwipeAt returns the last recorded swipe time, zero when none exists.
func (d *DiscoverScheduler) LastSwipeAt(ctx context.Context) time.Time {
	raw, ok, err := d.store.Get(ctx, keyDiscoverLastSwipe)
	if err != nil || !ok {
		return time.Time{}
	}
	millis, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || millis == 0 {
		return time.Time{}
	}
	return time.UnixMilli(millis)
}

// Cancel revokes all scheduled discover-game notifications, best-effort.
func (d *DiscoverScheduler) Cancel(ctx context.Context) {
	raw, _, err := d.store.Get(ctx, keyDiscoverIDs)
	if err != nil {
		d.logger.Warn("read discover ids failed", "error", err)
	}
	for _, id := range decodeStoredIDs(raw) {
		if err := d.notifier.Cancel(ctx, id); err != nil {
			d.logger.Warn("cancel discover notification failed", "id", id, "error", err)
		}
	}
	if err := d.store.Remove(ctx, keyDiscoverIDs); err != nil {
		d.logger.Warn("remove discover ids failed", "error", err)
	}
}

// Reset cancels everything and clears all discover-game state.
func (d *DiscoverScheduler) Reset(ctx context.Context) {
	d.Cancel(ctx)
	err := d.store.MultiRemove(ctx, []string{
		keyDiscoverEnabled,
		keyDiscoverPrompted,
		keyDiscoverSwipeCount,
		keyDiscoverLastSwipe,
	})
	if err != nil {
		d.logger.Warn("clear discover state failed", "error", err)
	}
	if err := d.notifier.SetBadgeCount(ctx, 0); err != nil {
		d.logger.Warn("clear badge failed", "error", err)
	}
}

// Enable marks the feature enabled (single-flight) and schedules reminders.
// Returns false when permissions are missing or another enable is running.
func (d *DiscoverScheduler) Enable(ctx context.Context, events []event.Event) (bool, error) {
	if !d.enableInFlight.CompareAndSwap(false, true) {
		return false, nil
	}
	defer d.enableInFlight.Store(false)

	perms, err := d.notifier.RequestPermissions(ctx)
	if err != nil {
		return false, fmt.Errorf("request permissions: %w", err)
	}
	if !perms.Allowed() {
		if err := d.SetPrompted(ctx, true); err != nil {
			d.logger.Warn("set discover prompted failed", "error", err)
		}
		return false, nil
	}

	if err := d.SetEnabled(ctx, true); err != nil {
		return false, err
	}
	if err := d.SetPrompted(ctx, true); err != nil {
		d.logger.Warn("set discover prompted failed", "error", err)
	}
	d.Schedule(ctx, events)
	return true, nil
}

// Schedule replaces the discover-game reminder batch. Disabled state, a
// missing swipe history, or absent permissions all cancel and bail — normal
// outcomes, not errors.
func (d *DiscoverScheduler) Schedule(ctx context.Context, events []event.Event) {
	if !d.Enabled(ctx) {
		d.Cancel(ctx)
		return
	}
	lastSwipe := d.LastSwipeAt(ctx)
	if lastSwipe.IsZero() {
		d.Cancel(ctx)
		return
	}

	perms, err := d.notifier.Permissions(ctx)
	if err != nil {
		d.logger.Warn("read permissions failed", "error", err)
	}
	if !perms.Allowed() {
		d.Cancel(ctx)
		metrics.SchedulerRuns.WithLabelValues("discover_game", "no_permission").Inc()
		return
	}

	now := d.now()
	newEventCount := CountEventsCreatedAfter(events, lastSwipe)
	if err := d.notifier.SetBadgeCount(ctx, newEventCount); err != nil {
		d.logger.Warn("set badge failed", "error", err)
	}

	d.Cancel(ctx)

	channelID, err := d.notifier.EnsureChannel(ctx, DiscoverGameChannelID, "Discover Game")
	if err != nil {
		d.logger.Warn("ensure channel failed", "error", err)
	}

	badge := newEventCount
	newEventsContent := Content{
		Title: "Discover Game",
		Body:  fmt.Sprintf("%d new events since you last swiped!", newEventCount),
		Badge: &badge,
		Data:  map[string]any{"source": string(SourceDiscoverGame), "newEventCount": newEventCount},
	}
	reminderContent := Content{
		Title: "Discover Game",
		Body:  "Play a quick swipe game to plan your week",
		Badge: &badge,
		Data:  map[string]any{"source": string(SourceDiscoverGame), "newEventCount": newEventCount},
	}

	var sendTimes []time.Time
	if now.Sub(lastSwipe) < inactivityWindow {
		sendTimes = UpcomingReminderTimes(lastSwipe, now)
	}
	reminderTimes := MonthlyReminderTimes(lastSwipe, now)

	var scheduledIDs []string
	schedule := func(content Content, sendAt time.Time) {
		id, err := d.notifier.Schedule(ctx, content, sendAt, channelID)
		if err != nil {
			d.logger.Warn("schedule discover notification failed", "send_at", sendAt, "error", err)
			metrics.SlotFailures.WithLabelValues("discover_game").Inc()
			return
		}
		scheduledIDs = append(scheduledIDs, id)
		metrics.SlotsScheduled.WithLabelValues("discover_game").Inc()
	}

	for _, sendAt := range sendTimes {
		schedule(newEventsContent, sendAt)
	}
	for _, sendAt := range reminderTimes {
		if !sendAt.After(now) {
			continue
		}
		schedule(reminderContent, sendAt)
	}

	if len(scheduledIDs) == 0 {
		return
	}
	if encoded, err := json.Marshal(scheduledIDs); err == nil {
		if err := d.store.Set(ctx, keyDiscoverIDs, string(encoded)); err != nil {
			d.logger.Warn("write discover ids failed", "error", err)
		}
	}
	metrics.SchedulerRuns.WithLabelValues("discover_game", "scheduled").Inc()
	d.logger.Info("discover reminders scheduled",
		"count", len(scheduledIDs), "new_events", newEventCount)
}

// CountEventsCreatedAfter counts events created after the cutoff, falling
// back to the start date when an event has no created timestamp.
func CountEventsCreatedAfter(events []event.Event, cutoff time.Time) int {
	loc := zone()
	count := 0
	for _, ev := range events {
		created, ok := ev.CreatedTime(loc)
		if !ok {
			continue
		}
		if created.After(cutoff) {
			count++
		}
	}
	return count
}

// UpcomingReminderTimes returns the future 3-day-cadence sends between the
// last swipe and the end of the inactivity window.
func UpcomingReminderTimes(lastSwipeAt, now time.Time) []time.Time {
	var times []time.Time
	endAt := lastSwipeAt.Add(inactivityWindow)
	for sendAt := lastSwipeAt.Add(discoverInterval); !sendAt.After(endAt); sendAt = sendAt.Add(discoverInterval) {
		if sendAt.After(now) {
			times = append(times, sendAt)
		}
	}
	return times
}

// MonthlyReminderTimes returns the batch of monthly reminders starting at
// the end of the inactivity window, skipped forward past now.
func MonthlyReminderTimes(lastSwipeAt, now time.Time) []time.Time {
	startAt := lastSwipeAt.Add(inactivityWindow)
	next := startAt
	if now.After(startAt) {
		elapsed := now.Sub(startAt)
		intervals := int64(elapsed/reminderInterval) + 1
		next = startAt.Add(time.Duration(intervals) * reminderInterval)
	}

	times := make([]time.Time, 0, reminderBatchCount)
	for i := 0; i < reminderBatchCount; i++ {
		times = append(times, next.Add(time.Duration(i)*reminderInterval))
	}
	return times
}
