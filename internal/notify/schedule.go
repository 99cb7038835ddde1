package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/playbuddy/playbuddy-notify/internal/event"
	"github.com/playbuddy/playbuddy-notify/internal/kv"
	"github.com/playbuddy/playbuddy-notify/internal/metrics"
)

// Scheduler plans the rolling batch of organizer announcement notifications.
// A run replaces the previous batch wholesale: old platform notifications
// are canceled and the persisted plan is overwritten, while lastSentAt is
// preserved so the cadence survives reschedules.
//
// Runs within one process are serialized by a mutex. Two processes sharing a
// store can still race the read-modify-write of lastSentAt; the kv layer has
// no transactions and this is an accepted gap.
type Scheduler struct {
	store    kv.Store
	notifier Notifier
	history  *History
	logger   *slog.Logger
	rng      *rand.Rand
	now      func() time.Time

	mu sync.Mutex
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithRand overrides the random source used for candidate picks.
func WithRand(rng *rand.Rand) Option {
	return func(s *Scheduler) { s.rng = rng }
}

// NewScheduler creates an organizer notification scheduler.
func NewScheduler(store kv.Store, notifier Notifier, logger *slog.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:    store,
		notifier: notifier,
		history:  NewHistory(store),
		logger:   logger,
		rng:      rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.history.now = s.now
	return s
}

// History returns the history log sharing this scheduler's store and clock.
func (s *Scheduler) History() *History {
	return s.history
}

// --------------------------------------------------------------------------
// Persisted flags
// --------------------------------------------------------------------------

// Enabled reports the push-notifications-enabled flag.
func (s *Scheduler) Enabled(ctx context.Context) bool {
	return s.boolFlag(ctx, keyPushEnabled)
}

// SetEnabled records the push-notifications-enabled flag.
func (s *Scheduler) SetEnabled(ctx context.Context, enabled bool) error {
	return s.setBoolFlag(ctx, keyPushEnabled, enabled)
}

// Prompted reports whether the user has been asked about notifications.
func (s *Scheduler) Prompted(ctx context.Context) bool {
	return s.boolFlag(ctx, keyPushPrompted)
}

// SetPrompted records that the user has been asked.
func (s *Scheduler) SetPrompted(ctx context.Context, prompted bool) error {
	return s.setBoolFlag(ctx, keyPushPrompted, prompted)
}

func (s *Scheduler) boolFlag(ctx context.Context, key string) bool {
	raw, _, err := s.store.Get(ctx, key)
	if err != nil {
		s.logger.Warn("read flag failed", "key", key, "error", err)
		return false
	}
	return raw == "true"
}

func (s *Scheduler) setBoolFlag(ctx context.Context, key string, value bool) error {
	return s.store.Set(ctx, key, strconv.FormatBool(value))
}

// --------------------------------------------------------------------------
// Plan access
// --------------------------------------------------------------------------

// Plan returns the persisted schedule sorted ascending by send time.
// Corrupt stored state decodes to an empty plan.
func (s *Scheduler) Plan(ctx context.Context) []PlanItem {
	raw, _, err := s.store.Get(ctx, keyOrganizerSchedule)
	if err != nil {
		s.logger.Warn("read schedule failed", "error", err)
		return nil
	}
	plan := decodeStoredSchedule(raw)
	sort.SliceStable(plan, func(i, j int) bool { return plan[i].SendAt < plan[j].SendAt })
	return plan
}

func (s *Scheduler) setPlan(ctx context.Context, plan []PlanItem) error {
	encoded, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("encode schedule: %w", err)
	}
	if err := s.store.Set(ctx, keyOrganizerSchedule, string(encoded)); err != nil {
		return fmt.Errorf("write schedule: %w", err)
	}
	return nil
}

// --------------------------------------------------------------------------
// Cancellation
// --------------------------------------------------------------------------

// CancelOptions controls what a cancellation preserves.
type CancelOptions struct {
	PreserveLastSentAt bool
	PreserveSchedule   bool
}

// Cancel revokes every platform notification recorded in the id list,
// best-effort, and clears the id list. Schedule and lastSentAt state are
// cleared unless preserved.
func (s *Scheduler) Cancel(ctx context.Context, opts CancelOptions) {
	raw, _, err := s.store.Get(ctx, keyOrganizerIDs)
	if err != nil {
		s.logger.Warn("read scheduled ids failed", "error", err)
	}
	for _, id := range decodeStoredIDs(raw) {
		if err := s.notifier.Cancel(ctx, id); err != nil {
			s.logger.Warn("cancel notification failed", "id", id, "error", err)
		}
	}
	if err := s.store.Remove(ctx, keyOrganizerIDs); err != nil {
		s.logger.Warn("remove scheduled ids failed", "error", err)
	}
	if !opts.PreserveSchedule {
		if err := s.store.Remove(ctx, keyOrganizerSchedule); err != nil {
			s.logger.Warn("remove schedule failed", "error", err)
		}
	}
	if !opts.PreserveLastSentAt {
		if err := s.store.Remove(ctx, keyOrganizerLastSent); err != nil {
			s.logger.Warn("remove last-sent-at failed", "error", err)
		}
	}
}

// --------------------------------------------------------------------------
// Next send time
// --------------------------------------------------------------------------

// computeNextSendAt derives the next slot time from the later of the stored
// lastSentAt and the most recent already-elapsed slot of the previous plan,
// advanced by whole intervals until it is strictly in the future.
func (s *Scheduler) computeNextSendAt(ctx context.Context) (lastSentAt, nextSendAt time.Time) {
	now := s.now().UnixMilli()

	var storedLastSent int64
	if raw, ok, err := s.store.Get(ctx, keyOrganizerLastSent); err != nil {
		s.logger.Warn("read last-sent-at failed", "error", err)
	} else if ok {
		if parsed, err := strconv.ParseInt(raw, 10, 64); err == nil {
			storedLastSent = parsed
		}
	}

	var lastFromSchedule int64
	for _, item := range s.Plan(ctx) {
		if item.SendAt <= now && item.SendAt > lastFromSchedule {
			lastFromSchedule = item.SendAt
		}
	}

	last := max(storedLastSent, lastFromSchedule)
	if last == 0 {
		last = now
	}
	if last != storedLastSent {
		if err := s.store.Set(ctx, keyOrganizerLastSent, strconv.FormatInt(last, 10)); err != nil {
			s.logger.Warn("write last-sent-at failed", "error", err)
		}
	}

	next := last + Interval.Milliseconds()
	for next <= now {
		next += Interval.Milliseconds()
	}
	return time.UnixMilli(last), time.UnixMilli(next)
}

// --------------------------------------------------------------------------
// History reconciliation
// --------------------------------------------------------------------------

// SyncHistory folds already-elapsed plan slots into the history log, so a
// slot that fired is recorded even if the app never reopened between the
// fire and the next reschedule. Entries already present for an event are
// updated in place when the slot's content was recomputed. Idempotent.
func (s *Scheduler) SyncHistory(ctx context.Context) error {
	plan := s.Plan(ctx)
	if len(plan) == 0 {
		return nil
	}
	history, err := s.history.Get(ctx)
	if err != nil {
		return err
	}

	now := s.now().UnixMilli()
	existingByEventID := make(map[int64]int)
	for i, item := range history {
		if item.Source != SourceOrganizer || item.EventID == 0 {
			continue
		}
		if _, ok := existingByEventID[item.EventID]; !ok {
			existingByEventID[item.EventID] = i
		}
	}

	updated := false
	for _, slot := range plan {
		if slot.EventID == 0 {
			continue
		}
		if i, ok := existingByEventID[slot.EventID]; ok {
			existing := history[i]
			if existing.CreatedAt != slot.SendAt || existing.Title != slot.Title || existing.Body != slot.Body {
				existing.CreatedAt = slot.SendAt
				existing.Title = slot.Title
				existing.Body = slot.Body
				history[i] = existing
				updated = true
			}
			continue
		}
		if slot.SendAt > now {
			continue
		}
		history = append(history, HistoryItem{
			ID:        BuildHistoryID(SourceOrganizer, slot.SendAt),
			Title:     slot.Title,
			Body:      slot.Body,
			CreatedAt: slot.SendAt,
			Source:    SourceOrganizer,
			EventID:   slot.EventID,
		})
		updated = true
	}

	if !updated {
		return nil
	}
	_, err = s.history.Set(ctx, history)
	return err
}

// --------------------------------------------------------------------------
// Batch scheduling
// --------------------------------------------------------------------------

// ScheduleInput carries the caller-supplied data a scheduling run consumes.
type ScheduleInput struct {
	Events               []event.Event
	FollowedOrganizerIDs map[int64]struct{}
}

// Schedule runs one batch: five slots at four-day intervals, each announcing
// an event starting 2–10 days after its send time. Permission absence is a
// normal empty outcome; individual platform failures are logged and the
// batch continues. Returns the produced plan, which is also persisted.
func (s *Scheduler) Schedule(ctx context.Context, in ScheduleInput) []PlanItem {
	s.mu.Lock()
	defer s.mu.Unlock()

	perms, err := s.notifier.Permissions(ctx)
	if err != nil {
		s.logger.Warn("read permissions failed", "error", err)
	}
	if !perms.Allowed() {
		s.Cancel(ctx, CancelOptions{})
		metrics.SchedulerRuns.WithLabelValues("organizer", "no_permission").Inc()
		return []PlanItem{}
	}

	// Fold slots that already fired into history before replacing the plan.
	if err := s.SyncHistory(ctx); err != nil {
		s.logger.Warn("history sync failed", "error", err)
	}

	_, nextSendAt := s.computeNextSendAt(ctx)
	s.Cancel(ctx, CancelOptions{PreserveLastSentAt: true, PreserveSchedule: true})

	channelID, err := s.notifier.EnsureChannel(ctx, DefaultChannelID, "Default")
	if err != nil {
		s.logger.Warn("ensure channel failed", "error", err)
	}

	scheduledIDs := make([]string, 0, BatchCount)
	plan := make([]PlanItem, 0, BatchCount)
	usedEventIDs := make(map[int64]struct{})

	for i := 0; i < BatchCount; i++ {
		sendAt := nextSendAt.Add(time.Duration(i) * Interval)
		windowStart, windowEnd := WindowForSendAt(sendAt)
		eligible := EligibleEventsInWindow(in.Events, windowStart, windowEnd)
		picked := PickEvent(s.rng, PickInput{
			Eligible:             eligible,
			FollowedOrganizerIDs: in.FollowedOrganizerIDs,
			UsedEventIDs:         usedEventIDs,
		})

		if picked == nil {
			plan = append(plan, PlanItem{
				SendAt: sendAt.UnixMilli(),
				Title:  placeholderTitle,
				Body:   placeholderBody,
			})
			metrics.EmptySlots.Inc()
			continue
		}

		usedEventIDs[picked.ID] = struct{}{}
		content := buildContent(*picked)
		content.Data["sendAt"] = sendAt.UnixMilli()
		plan = append(plan, PlanItem{
			SendAt:  sendAt.UnixMilli(),
			Title:   content.Title,
			Body:    content.Body,
			EventID: picked.ID,
		})

		id, err := s.notifier.Schedule(ctx, content, sendAt, channelID)
		if err != nil {
			s.logger.Warn("schedule notification failed", "event_id", picked.ID, "send_at", sendAt, "error", err)
			metrics.SlotFailures.WithLabelValues("organizer").Inc()
			continue
		}
		scheduledIDs = append(scheduledIDs, id)
		metrics.SlotsScheduled.WithLabelValues("organizer").Inc()
	}

	if encoded, err := json.Marshal(scheduledIDs); err == nil {
		if err := s.store.Set(ctx, keyOrganizerIDs, string(encoded)); err != nil {
			s.logger.Warn("write scheduled ids failed", "error", err)
		}
	}
	if err := s.setPlan(ctx, plan); err != nil {
		s.logger.Warn("persist plan failed", "error", err)
	}

	metrics.SchedulerRuns.WithLabelValues("organizer", "scheduled").Inc()
	s.logger.Info("organizer batch scheduled",
		"slots", len(plan), "scheduled", len(scheduledIDs), "next_send_at", nextSendAt)
	return plan
}

// --------------------------------------------------------------------------
// Previews
// --------------------------------------------------------------------------

// Candidate returns the event and content an immediate notification at
// sendAt would carry, or nil when no event is eligible. Anti-repeat state
// does not apply to one-off candidates.
func (s *Scheduler) Candidate(events []event.Event, followedOrganizerIDs map[int64]struct{}, sendAt time.Time) (*event.Event, Content) {
	if sendAt.IsZero() {
		sendAt = s.now()
	}
	windowStart, windowEnd := WindowForSendAt(sendAt)
	eligible := EligibleEventsInWindow(events, windowStart, windowEnd)
	picked := PickEvent(s.rng, PickInput{
		Eligible:             eligible,
		FollowedOrganizerIDs: followedOrganizerIDs,
		UsedEventIDs:         map[int64]struct{}{},
	})
	if picked == nil {
		return nil, Content{}
	}
	return picked, buildContent(*picked)
}

// EligibilityInfo summarizes preview eligibility for display ("enable
// notifications now — here is what you'd get").
type EligibilityInfo struct {
	EligibleCount  int          `json:"eligible_count"`
	WindowStart    string       `json:"window_start"`
	WindowEnd      string       `json:"window_end"`
	CandidateEvent *event.Event `json:"candidate_event,omitempty"`
	CandidateStart string       `json:"candidate_start,omitempty"`
}

// Eligibility reports how many followed-organizer events fall in the preview
// window and the earliest candidate.
func (s *Scheduler) Eligibility(events []event.Event, followedOrganizerIDs map[int64]struct{}, window WindowDays) EligibilityInfo {
	eligible, windowStart, windowEnd := OrganizerEligibility(events, followedOrganizerIDs, s.now(), window)
	info := EligibilityInfo{
		EligibleCount: len(eligible),
		WindowStart:   windowStart.Format("2006-01-02"),
		WindowEnd:     windowEnd.Format("2006-01-02"),
	}
	if len(eligible) > 0 {
		candidate := eligible[0]
		info.CandidateEvent = &candidate.Event
		info.CandidateStart = candidate.Start.Format("2006-01-02 15:04")
	}
	return info
}
