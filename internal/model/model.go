package model

import "time"

const dateLayout = "2006-01-02"

// MarkerKind discriminates the two shapes a feed start/end value can take.
type MarkerKind int

const (
	// MarkerInstant is a timezone-aware point in time.
	MarkerInstant MarkerKind = iota
	// MarkerFloatingDate is a bare calendar date with no time-of-day or
	// zone, used by all-day events.
	MarkerFloatingDate
)

// Marker is a start or end value exactly as it appeared in the feed,
// before normalization into the display timezone.
type Marker struct {
	Kind MarkerKind

	// Instant is valid when Kind == MarkerInstant. It keeps the event's
	// own zone so that the raw serialization is stable across feeds.
	Instant time.Time

	// Date is valid when Kind == MarkerFloatingDate. Only the year,
	// month and day fields are meaningful.
	Date time.Time
}

// Instant wraps a zoned time in a Marker.
func Instant(t time.Time) Marker {
	return Marker{Kind: MarkerInstant, Instant: t}
}

// FloatingDate wraps the calendar date of t in a Marker, discarding any
// time-of-day and zone information.
func FloatingDate(t time.Time) Marker {
	return Marker{
		Kind: MarkerFloatingDate,
		Date: time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC),
	}
}

// String returns the raw serialization of the marker: RFC3339 for
// instants, a plain date for floating dates. This string is part of the
// dedup key, so it must not depend on any display configuration.
func (m Marker) String() string {
	if m.Kind == MarkerFloatingDate {
		return m.Date.Format(dateLayout)
	}
	return m.Instant.Format(time.RFC3339)
}

// RawOccurrence is one concrete event instance as produced by the
// recurrence-expanding reader, prior to normalization.
type RawOccurrence struct {
	// Source is the feed location this occurrence came from.
	Source string

	Title string

	Start Marker

	// End is the explicit end marker, if the feed carried one.
	End *Marker

	// Duration is set when the feed carried a DURATION instead of an
	// explicit end. Ignored when End is non-nil.
	Duration *time.Duration
}

// Key is the dedup identity of an occurrence. Feeds (Google in
// particular) sometimes emit the same instance both as a recurring
// expansion and as a standalone event, and the same feed may be listed
// twice; title plus raw start collapses those. Color, end and timezone
// differences are deliberately ignored.
func (o RawOccurrence) Key() string {
	return o.Title + "_" + o.Start.String()
}

// CanonicalEvent is the normalized, display-ready event record. The JSON
// field names are a stable contract with downstream consumers.
type CanonicalEvent struct {
	Title string `json:"title"`

	// Start is RFC3339 with offset for timed events, a bare date for
	// all-day events.
	Start string `json:"start"`

	// End is empty when the occurrence had neither an end nor a duration.
	End string `json:"end,omitempty"`

	AllDay bool `json:"allDay"`

	BackgroundColor string `json:"backgroundColor"`
	TextColor       string `json:"textColor"`
}
