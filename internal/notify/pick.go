package notify

import (
	"math/rand/v2"

	"github.com/playbuddy/playbuddy-notify/internal/event"
)

// PickInput carries the candidate pool and selection state for one slot.
type PickInput struct {
	Eligible             []EligibleEvent
	FollowedOrganizerIDs map[int64]struct{}
	// UsedEventIDs tracks events already chosen earlier in the batch.
	UsedEventIDs map[int64]struct{}
}

// PickEvent selects the event to announce for one slot, or nil.
//
// Priority order:
//  1. Promo-bearing events win outright and are exempt from the anti-repeat
//     rule — a discounted event may be announced again in a later slot.
//  2. Otherwise, events not yet used in this batch, preferring followed
//     organizers and falling back to any unused event.
//
// Selection within the final pool is uniform random from rng.
func PickEvent(rng *rand.Rand, in PickInput) *event.Event {
	isFollowed := func(ev event.Event) bool {
		_, ok := in.FollowedOrganizerIDs[ev.Organizer.ID]
		return ok
	}

	pickRandom := func(candidates []EligibleEvent) *event.Event {
		if len(candidates) == 0 {
			return nil
		}
		ev := candidates[rng.IntN(len(candidates))].Event
		return &ev
	}

	var promo []EligibleEvent
	for _, entry := range in.Eligible {
		if entry.Event.HasPromoCodes() {
			promo = append(promo, entry)
		}
	}
	if len(promo) > 0 {
		// Prefer unused promo events, but repeat one rather than drop the promo.
		var unused []EligibleEvent
		for _, entry := range promo {
			if _, used := in.UsedEventIDs[entry.Event.ID]; !used {
				unused = append(unused, entry)
			}
		}
		if len(unused) > 0 {
			return pickRandom(unused)
		}
		return pickRandom(promo)
	}

	var remaining []EligibleEvent
	for _, entry := range in.Eligible {
		if _, used := in.UsedEventIDs[entry.Event.ID]; !used {
			remaining = append(remaining, entry)
		}
	}
	if len(remaining) == 0 {
		return nil
	}

	var followed []EligibleEvent
	for _, entry := range remaining {
		if isFollowed(entry.Event) {
			followed = append(followed, entry)
		}
	}
	if len(followed) > 0 {
		return pickRandom(followed)
	}
	return pickRandom(remaining)
}
