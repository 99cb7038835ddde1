// Package event defines the event model this service consumes. Events are
// caller-supplied (calendar data from the mobile client or admin tooling);
// nothing here fetches them.
package event

import (
	"strings"
	"time"
)

// Promo code scopes.
const (
	PromoScopeEvent     = "event"
	PromoScopeOrganizer = "organizer"
)

// Discount types.
const (
	DiscountPercent = "percent"
	DiscountFixed   = "fixed"
)

// PromoCode is a discount attached to an event or an organizer.
type PromoCode struct {
	Code         string  `json:"promo_code"`
	Scope        string  `json:"scope"`
	Discount     float64 `json:"discount"`
	DiscountType string  `json:"discount_type"`
}

// Organizer is the entity hosting an event.
type Organizer struct {
	ID         int64       `json:"id"`
	Name       string      `json:"name"`
	PromoCodes []PromoCode `json:"promo_codes,omitempty"`
}

// Event is a single calendar event as supplied by callers.
type Event struct {
	ID         int64       `json:"id"`
	Name       string      `json:"name"`
	StartDate  string      `json:"start_date"`
	CreatedAt  string      `json:"created_at,omitempty"`
	ImageURL   string      `json:"image_url,omitempty"`
	Organizer  Organizer   `json:"organizer"`
	PromoCodes []PromoCode `json:"promo_codes,omitempty"`
}

// Timestamp layouts accepted for start/created dates, tried in order.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp parses an event timestamp string. Returns ok=false for
// blank or unparseable values.
func ParseTimestamp(value string, loc *time.Location) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// StartTime returns the event's start time in loc, or ok=false when the
// start date is missing or invalid.
func (e Event) StartTime(loc *time.Location) (time.Time, bool) {
	t, ok := ParseTimestamp(e.StartDate, loc)
	if !ok {
		return time.Time{}, false
	}
	return t.In(loc), true
}

// CreatedTime returns when the event was created, falling back to the start
// date when no created timestamp is present.
func (e Event) CreatedTime(loc *time.Location) (time.Time, bool) {
	if t, ok := ParseTimestamp(e.CreatedAt, loc); ok {
		return t.In(loc), true
	}
	return e.StartTime(loc)
}

// HasPromoCodes reports whether the event carries an active promo code,
// either event-scoped or inherited from its organizer.
func (e Event) HasPromoCodes() bool {
	return len(e.PromoCodes) > 0 || len(e.Organizer.PromoCodes) > 0
}

// PrimaryPromoCode returns the promo code a notification should surface:
// event-scoped first, then organizer-scoped, then the first of either list.
func (e Event) PrimaryPromoCode() (PromoCode, bool) {
	for _, c := range e.PromoCodes {
		if c.Scope == PromoScopeEvent {
			return c, true
		}
	}
	for _, c := range e.Organizer.PromoCodes {
		if c.Scope == PromoScopeOrganizer {
			return c, true
		}
	}
	if len(e.PromoCodes) > 0 {
		return e.PromoCodes[0], true
	}
	if len(e.Organizer.PromoCodes) > 0 {
		return e.Organizer.PromoCodes[0], true
	}
	return PromoCode{}, false
}
