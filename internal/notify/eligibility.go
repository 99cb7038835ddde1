package notify

import (
	"sort"
	"time"

	"github.com/playbuddy/playbuddy-notify/internal/event"
)

// EligibleEvent pairs an event with its parsed start time.
type EligibleEvent struct {
	Event event.Event
	Start time.Time
}

// WindowForSendAt returns the event lookahead window for a notification
// delivered at sendAt: from start-of-day 2 days after the send to end-of-day
// 10 days after, in the reference zone. Recipients always see events they
// can still act on.
func WindowForSendAt(sendAt time.Time) (time.Time, time.Time) {
	loc := zone()
	base := sendAt.In(loc)
	return startOfDay(base.AddDate(0, 0, eventWindowStartDays)),
		endOfDay(base.AddDate(0, 0, eventWindowEndDays))
}

// EligibleEventsInWindow returns the events whose start time parses and
// falls within [windowStart, windowEnd] inclusive, sorted ascending by
// start. Pure function of its inputs.
func EligibleEventsInWindow(events []event.Event, windowStart, windowEnd time.Time) []EligibleEvent {
	loc := zone()
	var eligible []EligibleEvent
	for _, ev := range events {
		start, ok := ev.StartTime(loc)
		if !ok {
			continue
		}
		if start.Before(windowStart) || start.After(windowEnd) {
			continue
		}
		eligible = append(eligible, EligibleEvent{Event: ev, Start: start})
	}
	sort.SliceStable(eligible, func(i, j int) bool {
		return eligible[i].Start.Before(eligible[j].Start)
	})
	return eligible
}

// WindowDays overrides the preview eligibility window, in days from now.
type WindowDays struct {
	Start *int
	End   *int
}

// OrganizerEligibility returns the events from followed organizers inside
// the preview window (default today through +28 days). Used for immediate
// single-notification previews, not batch scheduling.
func OrganizerEligibility(events []event.Event, followedOrganizerIDs map[int64]struct{}, now time.Time, window WindowDays) ([]EligibleEvent, time.Time, time.Time) {
	loc := zone()
	startDays := previewWindowStartDays
	endDays := previewWindowEndDays
	if window.Start != nil {
		startDays = *window.Start
	}
	if window.End != nil {
		endDays = *window.End
	}
	base := now.In(loc)
	windowStart := startOfDay(base.AddDate(0, 0, startDays))
	windowEnd := endOfDay(base.AddDate(0, 0, endDays))

	if len(events) == 0 || len(followedOrganizerIDs) == 0 {
		return nil, windowStart, windowEnd
	}

	var followed []event.Event
	for _, ev := range events {
		if _, ok := followedOrganizerIDs[ev.Organizer.ID]; ok {
			followed = append(followed, ev)
		}
	}
	return EligibleEventsInWindow(followed, windowStart, windowEnd), windowStart, windowEnd
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func endOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, int(time.Second-time.Nanosecond), t.Location())
}
