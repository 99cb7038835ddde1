package notify

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/playbuddy/playbuddy-notify/internal/event"
	"github.com/playbuddy/playbuddy-notify/internal/kv"
)

// mockNotifier records platform calls; func fields override behavior per test.
type mockNotifier struct {
	permissionsFunc func(ctx context.Context) (Permissions, error)
	scheduleFunc    func(ctx context.Context, content Content, sendAt time.Time, channelID string) (string, error)

	scheduled []scheduledCall
	canceled  []string
	badges    []int
}

type scheduledCall struct {
	content   Content
	sendAt    time.Time
	channelID string
}

func (m *mockNotifier) Permissions(ctx context.Context) (Permissions, error) {
	if m.permissionsFunc != nil {
		return m.permissionsFunc(ctx)
	}
	return Permissions{Granted: true}, nil
}

func (m *mockNotifier) RequestPermissions(ctx context.Context) (Permissions, error) {
	return m.Permissions(ctx)
}

func (m *mockNotifier) Schedule(ctx context.Context, content Content, sendAt time.Time, channelID string) (string, error) {
	m.scheduled = append(m.scheduled, scheduledCall{content: content, sendAt: sendAt, channelID: channelID})
	if m.scheduleFunc != nil {
		return m.scheduleFunc(ctx, content, sendAt, channelID)
	}
	return fmt.Sprintf("notif-%d", len(m.scheduled)), nil
}

func (m *mockNotifier) Cancel(_ context.Context, id string) error {
	m.canceled = append(m.canceled, id)
	return nil
}

func (m *mockNotifier) SetBadgeCount(_ context.Context, n int) error {
	m.badges = append(m.badges, n)
	return nil
}

func (m *mockNotifier) EnsureChannel(_ context.Context, id, _ string) (string, error) {
	return id, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestScheduler(store kv.Store, n Notifier, now time.Time) *Scheduler {
	return NewScheduler(store, n, testLogger(),
		WithClock(func() time.Time { return now }),
		WithRand(rand.New(rand.NewPCG(1, 2))))
}

func testBase(t *testing.T) time.Time {
	t.Helper()
	return time.Date(2025, 6, 1, 12, 0, 0, 0, testLoc(t))
}

func organizerEvent(id, orgID int64, name string, start time.Time) event.Event {
	return event.Event{
		ID:        id,
		Name:      name,
		StartDate: start.Format(time.RFC3339),
		Organizer: event.Organizer{ID: orgID, Name: fmt.Sprintf("Org %d", orgID)},
	}
}

// --------------------------------------------------------------------------
// Schedule
// --------------------------------------------------------------------------

func TestSchedulePromoSlotAndPlaceholders(t *testing.T) {
	ctx := context.Background()
	base := testBase(t)
	store := kv.NewMemory()
	n := &mockNotifier{}
	s := newTestScheduler(store, n, base)

	// Cadence anchored three days ago, so the next slot lands tomorrow.
	lastSent := base.Add(-3 * 24 * time.Hour)
	if err := store.Set(ctx, keyOrganizerLastSent, strconv.FormatInt(lastSent.UnixMilli(), 10)); err != nil {
		t.Fatal(err)
	}

	eventStart := base.Add(5 * 24 * time.Hour)
	promoEvent := organizerEvent(2, 20, "Promo Party", eventStart)
	promoEvent.PromoCodes = percentPromo(20)
	events := []event.Event{
		organizerEvent(1, 10, "Followed Social", eventStart),
		promoEvent,
		organizerEvent(3, 30, "Far Future", base.Add(40*24*time.Hour)),
	}

	plan := s.Schedule(ctx, ScheduleInput{
		Events:               events,
		FollowedOrganizerIDs: map[int64]struct{}{10: {}},
	})

	if len(plan) != BatchCount {
		t.Fatalf("plan has %d slots, want %d", len(plan), BatchCount)
	}

	wantFirst := lastSent.Add(Interval).UnixMilli()
	if plan[0].SendAt != wantFirst {
		t.Errorf("slot 0 sendAt = %d, want %d (lastSentAt + interval)", plan[0].SendAt, wantFirst)
	}
	for i := 1; i < len(plan); i++ {
		if gap := plan[i].SendAt - plan[i-1].SendAt; gap != Interval.Milliseconds() {
			t.Errorf("gap between slots %d and %d = %dms, want %dms", i-1, i, gap, Interval.Milliseconds())
		}
	}

	// Promo event wins slot 0 even though another event is from a followed
	// organizer.
	if plan[0].EventID != 2 {
		t.Errorf("slot 0 event = %d, want promo event 2", plan[0].EventID)
	}
	if !strings.Contains(plan[0].Title, "20% off") {
		t.Errorf("slot 0 title = %q, want promo suffix", plan[0].Title)
	}

	// Remaining slots have no eligible event and carry placeholder content
	// with no platform call.
	for i := 1; i < len(plan); i++ {
		if plan[i].EventID != 0 || plan[i].Title != placeholderTitle || plan[i].Body != placeholderBody {
			t.Errorf("slot %d = %+v, want placeholder", i, plan[i])
		}
	}
	if len(n.scheduled) != 1 {
		t.Errorf("platform schedule calls = %d, want 1", len(n.scheduled))
	}

	// The plan round-trips through the store.
	persisted := s.Plan(ctx)
	if len(persisted) != len(plan) {
		t.Fatalf("persisted plan has %d slots, want %d", len(persisted), len(plan))
	}
	for i := range plan {
		if persisted[i] != plan[i] {
			t.Errorf("persisted slot %d = %+v, want %+v", i, persisted[i], plan[i])
		}
	}

	raw, ok, err := store.Get(ctx, keyOrganizerIDs)
	if err != nil || !ok {
		t.Fatalf("scheduled ids not persisted: ok=%v err=%v", ok, err)
	}
	if ids := decodeStoredIDs(raw); len(ids) != 1 {
		t.Errorf("persisted ids = %v, want exactly one", ids)
	}
}

func TestScheduleAntiRepeatAcrossSlots(t *testing.T) {
	ctx := context.Background()
	base := testBase(t)
	store := kv.NewMemory()
	n := &mockNotifier{}
	s := newTestScheduler(store, n, base)

	// Both events sit in the windows of slots 0 and 1 but nothing later.
	events := []event.Event{
		organizerEvent(1, 10, "First", base.Add(11*24*time.Hour+7*time.Hour)),
		organizerEvent(2, 10, "Second", base.Add(12*24*time.Hour+7*time.Hour)),
	}

	plan := s.Schedule(ctx, ScheduleInput{Events: events})

	if plan[0].EventID == 0 || plan[1].EventID == 0 {
		t.Fatalf("slots 0 and 1 should both carry events, got %+v, %+v", plan[0], plan[1])
	}
	if plan[0].EventID == plan[1].EventID {
		t.Errorf("slots 0 and 1 both announce event %d, want distinct events", plan[0].EventID)
	}
	for i := 2; i < len(plan); i++ {
		if plan[i].EventID != 0 {
			t.Errorf("slot %d unexpectedly carries event %d", i, plan[i].EventID)
		}
	}
}

func TestScheduleWithoutPermission(t *testing.T) {
	ctx := context.Background()
	base := testBase(t)
	store := kv.NewMemory()
	n := &mockNotifier{
		permissionsFunc: func(context.Context) (Permissions, error) {
			return Permissions{}, nil
		},
	}
	s := newTestScheduler(store, n, base)

	// Leftover state from a previous run with permission.
	if err := store.MultiSet(ctx, map[string]string{
		keyOrganizerIDs:      `["a","b"]`,
		keyOrganizerSchedule: `[{"sendAt":1,"title":"x","body":"y"}]`,
		keyOrganizerLastSent: "1000",
	}); err != nil {
		t.Fatal(err)
	}

	plan := s.Schedule(ctx, ScheduleInput{
		Events: []event.Event{organizerEvent(1, 10, "Social", base.Add(5*24*time.Hour))},
	})

	if len(plan) != 0 {
		t.Fatalf("plan = %+v, want empty without permission", plan)
	}
	if len(n.scheduled) != 0 {
		t.Errorf("platform schedule calls = %d, want 0", len(n.scheduled))
	}
	if len(n.canceled) != 2 || n.canceled[0] != "a" || n.canceled[1] != "b" {
		t.Errorf("canceled = %v, want [a b]", n.canceled)
	}
	for _, key := range []string{keyOrganizerIDs, keyOrganizerSchedule, keyOrganizerLastSent} {
		if _, ok, _ := store.Get(ctx, key); ok {
			t.Errorf("key %q survived a no-permission cancel", key)
		}
	}
}

func TestScheduleSlotFailureContinuesBatch(t *testing.T) {
	ctx := context.Background()
	base := testBase(t)
	store := kv.NewMemory()
	n := &mockNotifier{
		scheduleFunc: func(context.Context, Content, time.Time, string) (string, error) {
			return "", fmt.Errorf("platform busy")
		},
	}
	s := newTestScheduler(store, n, base)

	plan := s.Schedule(ctx, ScheduleInput{
		Events: []event.Event{organizerEvent(1, 10, "Social", base.Add(8*24*time.Hour))},
	})

	// The slot stays in the plan even though the platform rejected it.
	if len(plan) != BatchCount {
		t.Fatalf("plan has %d slots, want %d", len(plan), BatchCount)
	}
	if plan[0].EventID != 1 {
		t.Errorf("slot 0 event = %d, want 1", plan[0].EventID)
	}
	raw, _, _ := store.Get(ctx, keyOrganizerIDs)
	if ids := decodeStoredIDs(raw); len(ids) != 0 {
		t.Errorf("persisted ids = %v, want none after platform failures", ids)
	}
}

// --------------------------------------------------------------------------
// computeNextSendAt
// --------------------------------------------------------------------------

func TestComputeNextSendAtDefaultsToNow(t *testing.T) {
	ctx := context.Background()
	base := testBase(t)
	store := kv.NewMemory()
	s := newTestScheduler(store, &mockNotifier{}, base)

	last, next := s.computeNextSendAt(ctx)

	if !last.Equal(base) {
		t.Errorf("lastSentAt = %v, want now %v", last, base)
	}
	if !next.Equal(base.Add(Interval)) {
		t.Errorf("nextSendAt = %v, want %v", next, base.Add(Interval))
	}
	raw, ok, _ := store.Get(ctx, keyOrganizerLastSent)
	if !ok || raw != strconv.FormatInt(base.UnixMilli(), 10) {
		t.Errorf("persisted lastSentAt = %q ok=%v, want now", raw, ok)
	}
}

func TestComputeNextSendAtSkipsElapsedIntervals(t *testing.T) {
	ctx := context.Background()
	base := testBase(t)
	store := kv.NewMemory()
	s := newTestScheduler(store, &mockNotifier{}, base)

	// Ten days overdue: two whole intervals elapsed, the third is pending.
	lastSent := base.Add(-10 * 24 * time.Hour)
	if err := store.Set(ctx, keyOrganizerLastSent, strconv.FormatInt(lastSent.UnixMilli(), 10)); err != nil {
		t.Fatal(err)
	}

	last, next := s.computeNextSendAt(ctx)

	if !last.Equal(lastSent) {
		t.Errorf("lastSentAt = %v, want stored %v", last, lastSent)
	}
	if !next.After(base) {
		t.Errorf("nextSendAt = %v, want strictly after now", next)
	}
	if rem := next.Sub(lastSent) % Interval; rem != 0 {
		t.Errorf("nextSendAt is %v past lastSentAt, want a whole number of intervals", rem)
	}
	if want := base.Add(2 * 24 * time.Hour); !next.Equal(want) {
		t.Errorf("nextSendAt = %v, want %v", next, want)
	}
}

func TestComputeNextSendAtAdvancesFromElapsedSlot(t *testing.T) {
	ctx := context.Background()
	base := testBase(t)
	store := kv.NewMemory()
	s := newTestScheduler(store, &mockNotifier{}, base)

	storedLast := base.Add(-6 * 24 * time.Hour)
	elapsedSlot := base.Add(-24 * time.Hour)
	if err := store.Set(ctx, keyOrganizerLastSent, strconv.FormatInt(storedLast.UnixMilli(), 10)); err != nil {
		t.Fatal(err)
	}
	if err := s.setPlan(ctx, []PlanItem{
		{SendAt: elapsedSlot.UnixMilli(), Title: "x", Body: "y", EventID: 1},
		{SendAt: base.Add(3 * 24 * time.Hour).UnixMilli(), Title: "x", Body: "y", EventID: 2},
	}); err != nil {
		t.Fatal(err)
	}

	last, next := s.computeNextSendAt(ctx)

	// The elapsed slot is newer than the stored value and wins; the future
	// slot is ignored.
	if !last.Equal(elapsedSlot) {
		t.Errorf("lastSentAt = %v, want elapsed slot %v", last, elapsedSlot)
	}
	if !next.Equal(elapsedSlot.Add(Interval)) {
		t.Errorf("nextSendAt = %v, want %v", next, elapsedSlot.Add(Interval))
	}
	raw, _, _ := store.Get(ctx, keyOrganizerLastSent)
	if raw != strconv.FormatInt(elapsedSlot.UnixMilli(), 10) {
		t.Errorf("persisted lastSentAt = %q, want the elapsed slot time", raw)
	}
}

// --------------------------------------------------------------------------
// SyncHistory
// --------------------------------------------------------------------------

func TestSyncHistoryFoldsElapsedSlots(t *testing.T) {
	ctx := context.Background()
	base := testBase(t)
	store := kv.NewMemory()
	s := newTestScheduler(store, &mockNotifier{}, base)

	fired := base.Add(-2 * 24 * time.Hour)
	pending := base.Add(2 * 24 * time.Hour)
	if err := s.setPlan(ctx, []PlanItem{
		{SendAt: fired.UnixMilli(), Title: "Fired", Body: "b", EventID: 7},
		{SendAt: pending.UnixMilli(), Title: "Pending", Body: "b", EventID: 8},
	}); err != nil {
		t.Fatal(err)
	}

	if err := s.SyncHistory(ctx); err != nil {
		t.Fatal(err)
	}

	history, err := s.History().Get(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 1 {
		t.Fatalf("history has %d entries, want 1 (only the elapsed slot)", len(history))
	}
	entry := history[0]
	if entry.EventID != 7 || entry.Source != SourceOrganizer || entry.CreatedAt != fired.UnixMilli() {
		t.Errorf("entry = %+v, want event 7 at the slot's send time", entry)
	}
	if !strings.HasPrefix(entry.ID, "organizer-") {
		t.Errorf("entry id = %q, want organizer prefix", entry.ID)
	}
}

func TestSyncHistoryIdempotent(t *testing.T) {
	ctx := context.Background()
	base := testBase(t)
	store := kv.NewMemory()
	s := newTestScheduler(store, &mockNotifier{}, base)

	if err := s.setPlan(ctx, []PlanItem{
		{SendAt: base.Add(-24 * time.Hour).UnixMilli(), Title: "Fired", Body: "b", EventID: 7},
	}); err != nil {
		t.Fatal(err)
	}

	if err := s.SyncHistory(ctx); err != nil {
		t.Fatal(err)
	}
	first, _, _ := store.Get(ctx, keyHistory)

	if err := s.SyncHistory(ctx); err != nil {
		t.Fatal(err)
	}
	second, _, _ := store.Get(ctx, keyHistory)

	if first != second {
		t.Errorf("second sync changed stored history:\n  first:  %s\n  second: %s", first, second)
	}
}

func TestSyncHistoryUpdatesRecomputedSlot(t *testing.T) {
	ctx := context.Background()
	base := testBase(t)
	store := kv.NewMemory()
	s := newTestScheduler(store, &mockNotifier{}, base)

	sendAt := base.Add(-24 * time.Hour).UnixMilli()
	if err := s.setPlan(ctx, []PlanItem{
		{SendAt: sendAt, Title: "Old Title", Body: "b", EventID: 7},
	}); err != nil {
		t.Fatal(err)
	}
	if err := s.SyncHistory(ctx); err != nil {
		t.Fatal(err)
	}
	before, _ := s.History().Get(ctx)

	// A reschedule recomputed the slot's content for the same event.
	if err := s.setPlan(ctx, []PlanItem{
		{SendAt: sendAt, Title: "New Title", Body: "b", EventID: 7},
	}); err != nil {
		t.Fatal(err)
	}
	if err := s.SyncHistory(ctx); err != nil {
		t.Fatal(err)
	}

	after, _ := s.History().Get(ctx)
	if len(after) != 1 {
		t.Fatalf("history has %d entries, want 1 (updated in place)", len(after))
	}
	if after[0].ID != before[0].ID {
		t.Errorf("entry id changed from %q to %q, want stable", before[0].ID, after[0].ID)
	}
	if after[0].Title != "New Title" {
		t.Errorf("entry title = %q, want %q", after[0].Title, "New Title")
	}
}

// --------------------------------------------------------------------------
// Candidate / flags
// --------------------------------------------------------------------------

func TestCandidate(t *testing.T) {
	base := testBase(t)
	s := newTestScheduler(kv.NewMemory(), &mockNotifier{}, base)

	events := []event.Event{organizerEvent(1, 10, "Social", base.Add(5*24*time.Hour))}
	picked, content := s.Candidate(events, nil, time.Time{})
	if picked == nil || picked.ID != 1 {
		t.Fatalf("candidate = %+v, want event 1", picked)
	}
	if content.Body != "Social" {
		t.Errorf("content body = %q, want event name", content.Body)
	}

	// Nothing in the window.
	picked, _ = s.Candidate(events, nil, base.Add(30*24*time.Hour))
	if picked != nil {
		t.Errorf("candidate = %+v, want nil outside the window", picked)
	}
}

func TestSchedulerFlags(t *testing.T) {
	ctx := context.Background()
	s := newTestScheduler(kv.NewMemory(), &mockNotifier{}, testBase(t))

	if s.Enabled(ctx) || s.Prompted(ctx) {
		t.Fatal("flags should default to false")
	}
	if err := s.SetEnabled(ctx, true); err != nil {
		t.Fatal(err)
	}
	if err := s.SetPrompted(ctx, true); err != nil {
		t.Fatal(err)
	}
	if !s.Enabled(ctx) || !s.Prompted(ctx) {
		t.Error("flags should read back true")
	}
}
