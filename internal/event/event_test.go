package event

import (
	"testing"
	"time"
)

func TestParseTimestampLayouts(t *testing.T) {
	loc := time.UTC
	tests := []struct {
		name  string
		value string
		ok    bool
	}{
		{"rfc3339", "2025-06-08T19:00:00Z", true},
		{"rfc3339 nano", "2025-06-08T19:00:00.123456Z", true},
		{"naive datetime", "2025-06-08T19:00:00", true},
		{"space datetime", "2025-06-08 19:00:00", true},
		{"date only", "2025-06-08", true},
		{"padded", "  2025-06-08  ", true},
		{"blank", "", false},
		{"whitespace", "   ", false},
		{"garbage", "next tuesday", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseTimestamp(tt.value, loc)
			if ok != tt.ok {
				t.Fatalf("ParseTimestamp(%q) ok = %v, want %v", tt.value, ok, tt.ok)
			}
			if ok && (got.Year() != 2025 || got.Month() != time.June || got.Day() != 8) {
				t.Errorf("ParseTimestamp(%q) = %v, want June 8 2025", tt.value, got)
			}
		})
	}
}

func TestStartTimeInvalid(t *testing.T) {
	ev := Event{StartDate: "not a date"}
	if _, ok := ev.StartTime(time.UTC); ok {
		t.Error("StartTime on invalid date = ok, want !ok")
	}
}

func TestCreatedTimeFallsBackToStart(t *testing.T) {
	ev := Event{StartDate: "2025-06-08T19:00:00Z"}
	got, ok := ev.CreatedTime(time.UTC)
	if !ok {
		t.Fatal("CreatedTime = !ok, want start-date fallback")
	}
	if got.Day() != 8 {
		t.Errorf("CreatedTime = %v, want the start date", got)
	}

	ev.CreatedAt = "2025-06-01T10:00:00Z"
	got, ok = ev.CreatedTime(time.UTC)
	if !ok || got.Day() != 1 {
		t.Errorf("CreatedTime = %v ok=%v, want the created timestamp", got, ok)
	}
}

func TestHasPromoCodes(t *testing.T) {
	if (Event{}).HasPromoCodes() {
		t.Error("event without codes reports promos")
	}
	withEvent := Event{PromoCodes: []PromoCode{{Code: "X"}}}
	if !withEvent.HasPromoCodes() {
		t.Error("event-scoped code not detected")
	}
	withOrg := Event{Organizer: Organizer{PromoCodes: []PromoCode{{Code: "X"}}}}
	if !withOrg.HasPromoCodes() {
		t.Error("organizer-scoped code not detected")
	}
}

func TestPrimaryPromoCodePrecedence(t *testing.T) {
	ev := Event{
		PromoCodes: []PromoCode{
			{Code: "UNSCOPED"},
			{Code: "EVENT", Scope: PromoScopeEvent},
		},
		Organizer: Organizer{
			PromoCodes: []PromoCode{{Code: "ORG", Scope: PromoScopeOrganizer}},
		},
	}

	code, ok := ev.PrimaryPromoCode()
	if !ok || code.Code != "EVENT" {
		t.Errorf("primary = %+v, want the event-scoped code", code)
	}

	// No event-scoped code: organizer scope wins.
	ev.PromoCodes = []PromoCode{{Code: "UNSCOPED"}}
	code, _ = ev.PrimaryPromoCode()
	if code.Code != "ORG" {
		t.Errorf("primary = %+v, want the organizer-scoped code", code)
	}

	// No scoped codes at all: first event code.
	ev.Organizer.PromoCodes = nil
	code, _ = ev.PrimaryPromoCode()
	if code.Code != "UNSCOPED" {
		t.Errorf("primary = %+v, want the first event code", code)
	}

	if _, ok := (Event{}).PrimaryPromoCode(); ok {
		t.Error("primary on a promo-less event = ok, want !ok")
	}
}
