package agg

import (
	"time"

	"inkcal/internal/model"
)

// SkipCompleted drops events whose end is at or before now, implementing
// the "hide completed events" option. Events without an end are never
// dropped; there is no way to know they are over. All-day ends (bare
// dates) are interpreted as midnight in loc.
func SkipCompleted(events []model.CanonicalEvent, now time.Time, loc *time.Location) []model.CanonicalEvent {
	out := make([]model.CanonicalEvent, 0, len(events))
	for _, ev := range events {
		if ev.End != "" {
			end, err := parseEventTime(ev.End, loc)
			if err == nil && !end.After(now) {
				continue
			}
		}
		out = append(out, ev)
	}
	return out
}

// parseEventTime reads a canonical event timestamp: RFC3339 for timed
// events, a bare date for all-day events.
func parseEventTime(s string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.ParseInLocation("2006-01-02", s, loc)
}
