package notify

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/playbuddy/playbuddy-notify/internal/event"
)

// Preview is the user-visible content a notification for an event would
// carry.
type Preview struct {
	Title    string `json:"title"`
	Body     string `json:"body"`
	ImageURL string `json:"image_url,omitempty"`
}

// BuildPreview renders notification content for an event:
// "<ddd M/D> <organizer>" with an optional promo suffix, body is the event
// name verbatim. Deterministic pure function.
func BuildPreview(ev event.Event) Preview {
	loc := zone()

	dateLabel := "Upcoming"
	if start, ok := ev.StartTime(loc); ok {
		dateLabel = fmt.Sprintf("%s %d/%d", start.Format("Mon"), int(start.Month()), start.Day())
	}

	organizerName := strings.TrimSpace(ev.Organizer.Name)
	if organizerName == "" {
		organizerName = "Organizer"
	}

	title := fmt.Sprintf("%s %s", dateLabel, organizerName)
	if label, ok := promoLabel(ev); ok {
		title = fmt.Sprintf("%s - %s", title, label)
	}

	return Preview{
		Title:    title,
		Body:     ev.Name,
		ImageURL: strings.TrimSpace(ev.ImageURL),
	}
}

// promoLabel renders the discount suffix for the event's primary promo code.
func promoLabel(ev event.Event) (string, bool) {
	code, ok := ev.PrimaryPromoCode()
	if !ok {
		return "", false
	}
	discount := strconv.FormatFloat(code.Discount, 'f', -1, 64)
	if code.DiscountType == event.DiscountPercent {
		return discount + "% off", true
	}
	return "$" + discount + " off", true
}

// buildContent wraps a preview as platform notification content. The image,
// when present, is attached as rich media on platforms that support it.
func buildContent(ev event.Event) Content {
	preview := BuildPreview(ev)
	content := Content{
		Title: preview.Title,
		Body:  preview.Body,
		Data: map[string]any{
			"eventId": ev.ID,
			"source":  string(SourceOrganizer),
		},
	}
	if preview.ImageURL != "" {
		content.ImageURL = preview.ImageURL
		content.Data["imageUrl"] = preview.ImageURL
	}
	return content
}
